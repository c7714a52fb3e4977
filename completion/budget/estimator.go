// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package budget provides heuristic token estimation and context
// truncation so that assembled completion requests fit a model's
// context window.
//
// The estimator is an upper-bound approximation, not a tokenizer.
// Overestimating is the safe direction: truncation triggers slightly
// early instead of risking a context-overflow rejection from the
// provider.
package budget

import (
	"unicode"

	"github.com/AleutianAI/AleutianComplete/completion"
)

// EstimateTokens approximates the token count of text as word count plus
// punctuation count.
//
// Code tokenizers split identifiers at punctuation, so counting each
// punctuation rune as its own token keeps the estimate an upper bound
// for typical source text.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}

	tokens := 0
	inWord := false
	for _, r := range text {
		switch {
		case unicode.IsSpace(r):
			inWord = false
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			tokens++
			inWord = false
		default:
			if !inWord {
				tokens++
				inWord = true
			}
		}
	}
	return tokens
}

// EstimateContextTokens sums the estimate over every text field of a
// code context that is sent to the model.
func EstimateContextTokens(code *completion.CodeContext) int {
	total := EstimateTokens(code.Prefix) +
		EstimateTokens(code.Suffix) +
		EstimateTokens(code.CurrentLine) +
		EstimateTokens(code.ProjectInfo) +
		EstimateTokens(code.ReadmeText)

	for _, imp := range code.Imports {
		total += EstimateTokens(imp)
	}
	for _, sym := range code.Symbols {
		total += EstimateTokens(sym.Name) + 1
	}
	return total
}
