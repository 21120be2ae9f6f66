// Copyright (c) 2025 David F. Watson
//
// This file is part of rsvp-site.
//
// rsvp-site is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Open an issue at https://github.com/davidfwatson/rsvp-site for commercial licensing options.

//go:build unix

package admin

import (
	"errors"
	"os"

	"golang.org/x/sys/unix"
)

// lockFile takes an exclusive advisory lock on path, blocking until it is
// available.
func lockFile(path string) (func() error, error) {
	// #nosec G304 - lock path is derived from the configured store path
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, defaultFilePerms)
	if err != nil {
		return nil, err
	}

	fd := int(f.Fd())
	for {
		err = unix.Flock(fd, unix.LOCK_EX)
		if !errors.Is(err, unix.EINTR) {
			break
		}
	}
	if err != nil {
		_ = f.Close()
		return nil, err
	}

	return func() error {
		return errors.Join(unix.Flock(fd, unix.LOCK_UN), f.Close())
	}, nil
}
