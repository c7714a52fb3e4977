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

// DefaultContextShare is the fraction of a model's raw context window
// made available to assembled context. The remainder is reserved for
// the completion itself.
const DefaultContextShare = 0.80

// DefaultModelLimit is the raw token limit assumed for unknown models.
// Deliberately conservative.
const DefaultModelLimit = 4096

// modelLimits maps model identifiers to raw context-window sizes.
var modelLimits = map[string]int{
	"gpt-4o":        128000,
	"gpt-4o-mini":   128000,
	"gpt-4-turbo":   128000,
	"gpt-4":         8192,
	"gpt-3.5-turbo": 16385,
	"o3-mini":       200000,
}

// ModelLimit returns the raw context-window size for a model, falling
// back to DefaultModelLimit for unknown identifiers.
func ModelLimit(modelID string) int {
	if limit, ok := modelLimits[modelID]; ok {
		return limit
	}
	return DefaultModelLimit
}

// ContextBudget returns the token budget available to assembled context
// for a model: the configured share of the raw limit.
//
// Inputs:
//   - modelID: The model identifier. Unknown models get the safe default.
//   - share: Fraction of the raw limit for context. Values outside (0, 1]
//     fall back to DefaultContextShare.
//
// Outputs:
//   - int: The context token budget. Always positive.
func ContextBudget(modelID string, share float64) int {
	if share <= 0 || share > 1 {
		share = DefaultContextShare
	}
	b := int(float64(ModelLimit(modelID)) * share)
	if b < 1 {
		b = 1
	}
	return b
}
