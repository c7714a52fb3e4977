// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package budget

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianComplete/completion"
)

func wideContext() *completion.CodeContext {
	return &completion.CodeContext{
		Language:     "go",
		Prefix:       strings.Repeat("alpha beta gamma delta ", 200),
		Suffix:       strings.Repeat("one two three four ", 100),
		CurrentLine:  "alpha beta",
		CursorLine:   50,
		CursorColumn: 4,
		Imports:      []string{"fmt", "os", "strings"},
		ProjectInfo:  "name: demo\nversion: 1\nauthors: many",
		ReadmeText:   strings.Repeat("readme words here ", 50),
		Symbols: []completion.Symbol{
			{Name: "Outer", Kind: completion.SymbolKindFunction, StartLine: 0, EndLine: 100},
			{Name: "helper", Kind: completion.SymbolKindFunction, StartLine: 120, EndLine: 140},
			{Name: "Inner", Kind: completion.SymbolKindMethod, StartLine: 40, EndLine: 60},
			{Name: "unrelated", Kind: completion.SymbolKindVariable, StartLine: 200, EndLine: 201},
		},
	}
}

func TestTruncateToBudget_NoopWhenFits(t *testing.T) {
	code := &completion.CodeContext{Language: "go", Prefix: "short", CurrentLine: "short"}

	out := TruncateToBudget(code, 1000)

	assert.Equal(t, code.Prefix, out.Prefix)
	assert.Equal(t, code.CurrentLine, out.CurrentLine)
}

func TestTruncateToBudget_FitsBudget(t *testing.T) {
	code := wideContext()
	budget := 200

	out := TruncateToBudget(code, budget)

	assert.LessOrEqual(t, EstimateContextTokens(out), budget)
}

func TestTruncateToBudget_PreservesPrefixTail(t *testing.T) {
	code := wideContext()
	code.Prefix = strings.Repeat("filler words everywhere ", 300) + "cursorTail"

	out := TruncateToBudget(code, 50)

	require.NotEmpty(t, out.Prefix)
	assert.True(t, strings.HasSuffix(out.Prefix, "cursorTail"),
		"prefix tail nearest the cursor must survive truncation, got %q", tail(out.Prefix, 30))
	assert.True(t, strings.HasPrefix(out.Prefix, TruncationMarker),
		"shrunk prefix must carry a leading truncation marker")
}

func TestTruncateToBudget_ReadmeDropsBeforePrefix(t *testing.T) {
	// No suffix, so the first stage that can free tokens is the readme.
	code := &completion.CodeContext{
		Language:   "go",
		Prefix:     strings.Repeat("word ", 100),
		ReadmeText: strings.Repeat("doc ", 150),
	}
	est := EstimateContextTokens(code)
	require.Equal(t, 250, est)

	out := TruncateToBudget(code, 120)

	// Dropping the readme alone brings the estimate to 100, so later
	// stages never run and the prefix survives untouched.
	assert.Empty(t, out.ReadmeText)
	assert.Equal(t, code.Prefix, out.Prefix)
}

func TestTruncateToBudget_SuffixMarked(t *testing.T) {
	code := wideContext()

	out := TruncateToBudget(code, 400)

	if out.Suffix != code.Suffix {
		assert.True(t, strings.HasSuffix(out.Suffix, TruncationMarker),
			"shrunk suffix must end with the truncation marker")
	}
}

func TestTruncateToBudget_SymbolsContainCursor(t *testing.T) {
	code := wideContext()

	out := TruncateToBudget(code, 30)

	for _, sym := range out.Symbols {
		assert.LessOrEqual(t, sym.StartLine, code.CursorLine)
		assert.GreaterOrEqual(t, sym.EndLine, code.CursorLine)
	}
	assert.LessOrEqual(t, len(out.Symbols), 2, "symbol cap near 30%% of 4")
}

func TestTruncateToBudget_InputUntouched(t *testing.T) {
	code := wideContext()
	origPrefix := code.Prefix
	origSymbols := len(code.Symbols)

	_ = TruncateToBudget(code, 10)

	assert.Equal(t, origPrefix, code.Prefix)
	assert.Len(t, code.Symbols, origSymbols)
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
