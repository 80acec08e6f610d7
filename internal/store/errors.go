// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package store

import "zombiezen.com/go/sqlite"

// isUniqueConstraintError reports whether err is a SQLite UNIQUE
// constraint violation, the signal the Ports component uses to
// detect a colliding port or identity during an insert and retry with
// a fresh port search.
func isUniqueConstraintError(err error) bool {
	return sqlite.ErrCode(err) == sqlite.ResultConstraintUnique
}
