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

//go:build windows

package admin

import (
	"io/fs"

	"github.com/google/renameio/v2/maybe"
)

// replaceFile writes path in place. renameio cannot replace a file
// atomically on Windows, so the hook is never consulted here.
func replaceFile(path string, data []byte, perm fs.FileMode, _ func(string) error) error {
	return maybe.WriteFile(path, data, perm)
}
