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

package main

import (
	"os"

	"github.com/davidfwatson/rsvp-site/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
