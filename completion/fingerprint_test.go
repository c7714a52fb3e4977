// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package completion

import (
	"strings"
	"testing"
)

func TestComputeFingerprint_Deterministic(t *testing.T) {
	code := &CodeContext{
		Language:     "go",
		Prefix:       "package main\n\nfunc main() {\n\tfmt.",
		CurrentLine:  "\tfmt.",
		CursorLine:   3,
		CursorColumn: 6,
		Imports:      []string{"fmt", "os"},
	}

	a := ComputeFingerprint(code)
	b := ComputeFingerprint(code)

	if a != b {
		t.Errorf("fingerprint not deterministic: %s != %s", a, b)
	}
	if len(a) != 64 {
		t.Errorf("fingerprint length = %d, want 64 hex chars", len(a))
	}
}

func TestComputeFingerprint_PrecomputedWins(t *testing.T) {
	code := &CodeContext{Language: "go", Fingerprint: "precomputed"}

	if got := ComputeFingerprint(code); got != "precomputed" {
		t.Errorf("ComputeFingerprint = %s, want precomputed", got)
	}
}

func TestComputeFingerprint_IgnoresDistantPrefix(t *testing.T) {
	// Only the last 100 prefix characters participate; an edit further
	// back must not change the key.
	tail := strings.Repeat("x", 100)
	a := ComputeFingerprint(&CodeContext{Language: "go", Prefix: "aaa" + tail})
	b := ComputeFingerprint(&CodeContext{Language: "go", Prefix: "bbb" + tail})

	if a != b {
		t.Error("fingerprint changed for edit outside the last 100 chars")
	}
}

func TestComputeFingerprint_SensitiveFields(t *testing.T) {
	base := CodeContext{
		Language:     "go",
		Prefix:       "foo",
		CurrentLine:  "foo",
		CursorLine:   1,
		CursorColumn: 3,
		Imports:      []string{"fmt"},
	}

	tests := []struct {
		name   string
		mutate func(*CodeContext)
	}{
		{"language", func(c *CodeContext) { c.Language = "python" }},
		{"prefix", func(c *CodeContext) { c.Prefix = "bar" }},
		{"current line", func(c *CodeContext) { c.CurrentLine = "bar" }},
		{"cursor line", func(c *CodeContext) { c.CursorLine = 2 }},
		{"cursor column", func(c *CodeContext) { c.CursorColumn = 4 }},
		{"imports", func(c *CodeContext) { c.Imports = []string{"os"} }},
	}

	want := ComputeFingerprint(&base)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mutated := base
			tt.mutate(&mutated)
			if ComputeFingerprint(&mutated) == want {
				t.Errorf("fingerprint unchanged after %s mutation", tt.name)
			}
		})
	}
}

func TestComputeFingerprint_ImportsBeyondFifthIgnored(t *testing.T) {
	imports := []string{"a", "b", "c", "d", "e", "f"}
	a := ComputeFingerprint(&CodeContext{Language: "go", Imports: imports})

	changed := append([]string{}, imports...)
	changed[5] = "zzz"
	b := ComputeFingerprint(&CodeContext{Language: "go", Imports: changed})

	if a != b {
		t.Error("fingerprint changed for import beyond the fifth")
	}
}
