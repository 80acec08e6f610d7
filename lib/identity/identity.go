// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package identity implements the colon-scoped naming key used
// throughout the coordination kernel: project[:stack[:context]].
package identity

import (
	"fmt"
	"strings"
)

// maxSegmentLength bounds a single segment to keep identities usable
// as path components and log fields.
const maxSegmentLength = 128

// maxSegments is the maximum number of colon-separated segments.
const maxSegments = 3

// allowedChars is the set of characters permitted in an identity
// segment: a-z, A-Z, 0-9, '.', '_', '-'.
var allowedChars [256]bool

func init() {
	for c := byte('a'); c <= 'z'; c++ {
		allowedChars[c] = true
	}
	for c := byte('A'); c <= 'Z'; c++ {
		allowedChars[c] = true
	}
	for c := byte('0'); c <= '9'; c++ {
		allowedChars[c] = true
	}
	allowedChars['.'] = true
	allowedChars['_'] = true
	allowedChars['-'] = true
}

// Identity is a validated project[:stack[:context]] key. The zero
// value is invalid; construct with Parse.
type Identity struct {
	segments [3]string
	count    int
}

// Parse validates and parses s into an Identity. Each of the 1-3
// colon-separated segments must be non-empty and contain only
// alphanumerics, '.', '_', '-'. Wildcards are rejected here — use
// ParseQuery for identity patterns accepted in read filters.
func Parse(s string) (Identity, error) {
	return parse(s, false)
}

// ParseQuery validates s as an identity query pattern: like Parse, but
// a single '*' is additionally accepted as a whole segment, matching
// any value in that position and, if it is the final segment, any
// number of trailing segments.
func ParseQuery(s string) (Identity, error) {
	return parse(s, true)
}

func parse(s string, allowWildcard bool) (Identity, error) {
	if s == "" {
		return Identity{}, fmt.Errorf("identity: empty")
	}

	parts := strings.Split(s, ":")
	if len(parts) > maxSegments {
		return Identity{}, fmt.Errorf("identity %q: at most %d segments allowed", s, maxSegments)
	}

	var id Identity
	for i, part := range parts {
		if err := validateSegment(part, allowWildcard); err != nil {
			return Identity{}, fmt.Errorf("identity %q: segment %d: %w", s, i+1, err)
		}
		id.segments[i] = part
	}
	id.count = len(parts)
	return id, nil
}

func validateSegment(segment string, allowWildcard bool) error {
	if segment == "*" && allowWildcard {
		return nil
	}
	if segment == "" {
		return fmt.Errorf("empty segment")
	}
	if len(segment) > maxSegmentLength {
		return fmt.Errorf("segment longer than %d characters", maxSegmentLength)
	}
	for i := 0; i < len(segment); i++ {
		if !allowedChars[segment[i]] {
			return fmt.Errorf("invalid character %q at position %d (allowed: a-z, A-Z, 0-9, ., _, -)", segment[i], i)
		}
	}
	return nil
}

// Project returns the first segment.
func (id Identity) Project() string { return id.segments[0] }

// Stack returns the second segment, or "" if not present.
func (id Identity) Stack() string { return id.segments[1] }

// Context returns the third segment, or "" if not present.
func (id Identity) Context() string { return id.segments[2] }

// Depth returns the number of segments present (1-3). Zero for the
// zero value.
func (id Identity) Depth() int { return id.count }

// IsZero reports whether id is the unparsed zero value.
func (id Identity) IsZero() bool { return id.count == 0 }

// String returns the colon-joined identity, e.g. "myapp:api".
func (id Identity) String() string {
	if id.count == 0 {
		return ""
	}
	return strings.Join(id.segments[:id.count], ":")
}

// MarshalText implements encoding.TextMarshaler.
func (id Identity) MarshalText() ([]byte, error) {
	if id.count == 0 {
		return nil, fmt.Errorf("identity: cannot marshal zero value")
	}
	return []byte(id.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *Identity) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// IsAncestorOf reports whether id is a strict prefix of other, segment
// by segment — e.g. "myapp" is an ancestor of "myapp:api" and
// "myapp:api:worker". Used for changelog rollup visibility.
func (id Identity) IsAncestorOf(other Identity) bool {
	if id.count >= other.count {
		return false
	}
	for i := 0; i < id.count; i++ {
		if id.segments[i] != other.segments[i] {
			return false
		}
	}
	return true
}

// Matches reports whether a candidate identity satisfies a query
// pattern produced by ParseQuery. A '*' segment matches any single
// segment at that position; a trailing '*' also matches any number of
// additional segments beyond it. Non-wildcard segments must match
// exactly.
func (query Identity) Matches(candidate Identity) bool {
	for i := 0; i < query.count; i++ {
		if query.segments[i] == "*" {
			if i >= candidate.count {
				return false
			}
			if i == query.count-1 {
				return true
			}
			continue
		}
		if i >= candidate.count || query.segments[i] != candidate.segments[i] {
			return false
		}
	}
	return query.count == candidate.count
}
