// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package identity

import "testing"

func TestParseValid(t *testing.T) {
	cases := []string{
		"myapp",
		"myapp:api",
		"myapp:api:worker",
		"my-app_1:api.v2",
	}
	for _, s := range cases {
		id, err := Parse(s)
		if err != nil {
			t.Errorf("Parse(%q): unexpected error: %v", s, err)
			continue
		}
		if id.String() != s {
			t.Errorf("Parse(%q).String() = %q", s, id.String())
		}
	}
}

func TestParseInvalid(t *testing.T) {
	cases := []string{
		"",
		"myapp:",
		"myapp::ctx",
		"myapp:api:ctx:extra",
		"my app",
		"myapp/api",
		"*",
		"myapp:*",
	}
	for _, s := range cases {
		if _, err := Parse(s); err == nil {
			t.Errorf("Parse(%q): expected error, got none", s)
		}
	}
}

func TestParseQueryWildcard(t *testing.T) {
	if _, err := ParseQuery("myapp:*"); err != nil {
		t.Fatalf("ParseQuery: %v", err)
	}
	if _, err := ParseQuery("*"); err != nil {
		t.Fatalf("ParseQuery: %v", err)
	}
}

func TestMatches(t *testing.T) {
	query, err := ParseQuery("myapp:*")
	if err != nil {
		t.Fatalf("ParseQuery: %v", err)
	}
	yes, _ := Parse("myapp:api")
	yes2, _ := Parse("myapp:api:worker")
	no, _ := Parse("otherapp:api")

	if !query.Matches(yes) {
		t.Errorf("expected match for %q", yes)
	}
	if !query.Matches(yes2) {
		t.Errorf("expected match for %q", yes2)
	}
	if query.Matches(no) {
		t.Errorf("unexpected match for %q", no)
	}
}

func TestExactQueryRequiresSameDepth(t *testing.T) {
	query, err := ParseQuery("myapp:api")
	if err != nil {
		t.Fatalf("ParseQuery: %v", err)
	}
	deeper, _ := Parse("myapp:api:worker")
	if query.Matches(deeper) {
		t.Errorf("exact query must not match deeper identity")
	}
}

func TestIsAncestorOf(t *testing.T) {
	a, _ := Parse("myapp")
	b, _ := Parse("myapp:api")
	c, _ := Parse("myapp:api:worker")
	other, _ := Parse("otherapp:api")

	if !a.IsAncestorOf(b) || !a.IsAncestorOf(c) || !b.IsAncestorOf(c) {
		t.Errorf("expected ancestor relationships to hold")
	}
	if a.IsAncestorOf(a) {
		t.Errorf("identity must not be its own ancestor")
	}
	if a.IsAncestorOf(other) {
		t.Errorf("unrelated identities must not be ancestors")
	}
}

func TestMarshalUnmarshalText(t *testing.T) {
	id, err := Parse("myapp:api")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	text, err := id.MarshalText()
	if err != nil {
		t.Fatalf("MarshalText: %v", err)
	}
	var roundTrip Identity
	if err := roundTrip.UnmarshalText(text); err != nil {
		t.Fatalf("UnmarshalText: %v", err)
	}
	if roundTrip != id {
		t.Errorf("round-trip mismatch: got %+v, want %+v", roundTrip, id)
	}
}
