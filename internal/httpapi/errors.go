// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package httpapi

import "github.com/curiositech/port-daddy/internal/kernelerr"

// errReaperUnavailable is returned when a handler needs the reaper but
// the daemon was constructed without one.
var errReaperUnavailable = kernelerr.New(kernelerr.Fatal, "reaper is not configured")

// errorStatus maps a kernel error's Kind to an HTTP status and stable
// error code.
func errorStatus(err error) (int, string) {
	switch kernelerr.KindOf(err) {
	case kernelerr.Validation:
		return 400, "VALIDATION"
	case kernelerr.Conflict:
		return 409, "CONFLICT"
	case kernelerr.NotFound:
		return 404, "NOT_FOUND"
	case kernelerr.Expired:
		return 409, "EXPIRED"
	case kernelerr.Capacity:
		return 429, "CAPACITY"
	case kernelerr.Transient:
		return 500, "TRANSIENT"
	case kernelerr.Fatal:
		return 500, "FATAL"
	default:
		return 500, "INTERNAL"
	}
}
