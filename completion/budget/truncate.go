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

	"github.com/AleutianAI/AleutianComplete/completion"
)

// TruncationMarker is appended (or prepended) where text was removed.
const TruncationMarker = "…"

// symbolKeepShare caps retained symbols near this fraction of the
// original count during truncation.
const symbolKeepShare = 0.30

// Truncate trims a code context to the token budget of the given model,
// using DefaultContextShare of the raw limit.
//
// The input context is never modified; a trimmed copy is returned. When
// the context already fits, the copy is field-identical.
func Truncate(code *completion.CodeContext, modelID string) *completion.CodeContext {
	return TruncateToBudget(code, ContextBudget(modelID, DefaultContextShare))
}

// TruncateToBudget trims a code context until its estimated token count
// fits the budget.
//
// Fields are trimmed in fixed priority order, re-estimating after each
// step and stopping as soon as the estimate fits:
//
//  1. Shrink the suffix proportionally, appending a truncation marker.
//  2. Drop readme text entirely.
//  3. Reduce project info to its first line.
//  4. Keep only symbols whose range contains the cursor, capped near
//     30% of the original count.
//  5. Shrink the prefix from its start, keeping the tail nearest the
//     cursor behind a leading truncation marker.
//
// The prefix tail closest to the cursor is always the last thing to go:
// it carries the most signal for the completion.
func TruncateToBudget(code *completion.CodeContext, budget int) *completion.CodeContext {
	out := *code
	out.Imports = append([]string(nil), code.Imports...)
	out.Symbols = append([]completion.Symbol(nil), code.Symbols...)

	if budget < 1 {
		budget = 1
	}
	if EstimateContextTokens(&out) <= budget {
		return &out
	}

	// Step 1: suffix, proportional to the overshoot.
	if out.Suffix != "" {
		est := EstimateContextTokens(&out)
		keep := float64(budget) / float64(est)
		runes := []rune(out.Suffix)
		n := int(float64(len(runes)) * keep)
		if n < len(runes) {
			out.Suffix = string(runes[:n]) + TruncationMarker
		}
		if EstimateContextTokens(&out) <= budget {
			return &out
		}
	}

	// Step 2: readme text.
	if out.ReadmeText != "" {
		out.ReadmeText = ""
		if EstimateContextTokens(&out) <= budget {
			return &out
		}
	}

	// Step 3: project info down to its first line.
	if out.ProjectInfo != "" {
		if i := strings.IndexByte(out.ProjectInfo, '\n'); i >= 0 {
			out.ProjectInfo = out.ProjectInfo[:i]
		}
		if EstimateContextTokens(&out) <= budget {
			return &out
		}
	}

	// Step 4: symbols whose range contains the cursor, capped.
	if len(out.Symbols) > 0 {
		maxKeep := int(float64(len(out.Symbols)) * symbolKeepShare)
		if maxKeep < 1 {
			maxKeep = 1
		}
		kept := out.Symbols[:0]
		for _, sym := range out.Symbols {
			if sym.StartLine <= out.CursorLine && out.CursorLine <= sym.EndLine {
				kept = append(kept, sym)
			}
			if len(kept) == maxKeep {
				break
			}
		}
		out.Symbols = kept
		if EstimateContextTokens(&out) <= budget {
			return &out
		}
	}

	// Step 5: prefix from the start, keeping the cursor-nearest tail.
	out.Prefix = shrinkPrefix(out.Prefix, budget-estimateWithoutPrefix(&out))

	return &out
}

// estimateWithoutPrefix is the context estimate with the prefix blanked.
func estimateWithoutPrefix(code *completion.CodeContext) int {
	saved := code.Prefix
	code.Prefix = ""
	est := EstimateContextTokens(code)
	code.Prefix = saved
	return est
}

// shrinkPrefix returns the longest prefix tail whose estimate fits
// allowance, with a leading truncation marker. A non-positive allowance
// collapses the prefix to the marker alone.
func shrinkPrefix(prefix string, allowance int) string {
	if prefix == "" {
		return prefix
	}
	if allowance <= 0 {
		return TruncationMarker
	}

	runes := []rune(prefix)

	// Binary search the largest kept tail that fits.
	lo, hi := 0, len(runes)
	for lo < hi {
		mid := (lo + hi + 1) / 2
		candidate := TruncationMarker + string(runes[len(runes)-mid:])
		if EstimateTokens(candidate) <= allowance {
			lo = mid
		} else {
			hi = mid - 1
		}
	}

	if lo == len(runes) {
		return prefix
	}
	return TruncationMarker + string(runes[len(runes)-lo:])
}
