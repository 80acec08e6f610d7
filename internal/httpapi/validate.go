// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package httpapi

import (
	"time"

	"github.com/curiositech/port-daddy/internal/kernelerr"
)

const (
	minPID = 1
	maxPID = 99999

	minPort = 1024
	maxPort = 65535

	minTTL = time.Millisecond
	maxTTL = 24 * time.Hour
)

func validatePort(port int) error {
	if port != 0 && (port < minPort || port > maxPort) {
		return kernelerr.Newf(kernelerr.Validation, "port must be in [%d, %d]", minPort, maxPort)
	}
	return nil
}

func validatePID(pid int64) error {
	if pid < minPID || pid > maxPID {
		return kernelerr.Newf(kernelerr.Validation, "pid must be in [%d, %d]", minPID, maxPID)
	}
	return nil
}

func validateTTL(ttl time.Duration) error {
	if ttl != 0 && (ttl < minTTL || ttl > maxTTL) {
		return kernelerr.Newf(kernelerr.Validation, "ttl must be in [%s, %s]", minTTL, maxTTL)
	}
	return nil
}

// parseTTLMillis converts a millisecond count from a JSON request
// body into a time.Duration, validating it against the configured
// bound. A zero value means "no expiry".
func parseTTLMillis(ms int64) (time.Duration, error) {
	ttl := time.Duration(ms) * time.Millisecond
	if err := validateTTL(ttl); err != nil {
		return 0, err
	}
	return ttl, nil
}
