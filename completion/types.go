// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package completion defines the shared types for the completion request
// core: the code context captured at the cursor, completion items returned
// by a model, request priorities, fingerprinting, and the typed error kinds
// used across the pipeline.
//
// The core never talks to an editor or a network directly. It receives an
// already-built CodeContext from the host and delegates the actual model
// call to a Dispatcher implementation.
package completion

import (
	"context"
	"time"
)

// SymbolKind classifies a symbol descriptor in a CodeContext.
type SymbolKind string

const (
	SymbolKindFunction  SymbolKind = "function"
	SymbolKindMethod    SymbolKind = "method"
	SymbolKindClass     SymbolKind = "class"
	SymbolKindInterface SymbolKind = "interface"
	SymbolKindVariable  SymbolKind = "variable"
	SymbolKindConstant  SymbolKind = "constant"
	SymbolKindField     SymbolKind = "field"
)

// Symbol describes one symbol visible from the cursor position.
type Symbol struct {
	// Name is the symbol identifier.
	Name string `json:"name"`

	// Kind is the symbol classification.
	Kind SymbolKind `json:"kind"`

	// StartLine is the first line of the symbol's source range (0-based).
	StartLine int `json:"start_line"`

	// EndLine is the last line of the symbol's source range (0-based).
	EndLine int `json:"end_line"`
}

// CodeContext is the snapshot of editor state for one completion request.
//
// The context is owned by the caller and only read by the core. Components
// that need a modified context (the truncator) return a copy.
type CodeContext struct {
	// Language is the editor language identifier (e.g. "go", "python").
	Language string `json:"language"`

	// Prefix is the document text before the cursor.
	Prefix string `json:"prefix"`

	// Suffix is the document text after the cursor.
	Suffix string `json:"suffix"`

	// CurrentLine is the full text of the line containing the cursor.
	CurrentLine string `json:"current_line"`

	// CursorLine is the 0-based line of the cursor.
	CursorLine int `json:"cursor_line"`

	// CursorColumn is the 0-based column of the cursor.
	CursorColumn int `json:"cursor_column"`

	// Imports are the import statements of the current file, in order.
	Imports []string `json:"imports,omitempty"`

	// Symbols are the symbol descriptors extracted by the host.
	Symbols []Symbol `json:"symbols,omitempty"`

	// ProjectInfo is optional auxiliary project metadata text.
	ProjectInfo string `json:"project_info,omitempty"`

	// ReadmeText is optional auxiliary readme text.
	ReadmeText string `json:"readme_text,omitempty"`

	// Fingerprint is an optional precomputed fingerprint. When empty the
	// core derives one; see Fingerprint().
	Fingerprint string `json:"fingerprint,omitempty"`
}

// ItemKind classifies a completion item.
type ItemKind string

const (
	ItemKindText     ItemKind = "text"
	ItemKindFunction ItemKind = "function"
	ItemKindSnippet  ItemKind = "snippet"
)

// Item is one completion suggestion returned by the model.
type Item struct {
	// Label is the display text.
	Label string `json:"label"`

	// InsertText is the text inserted on accept. Falls back to Label
	// when empty.
	InsertText string `json:"insert_text,omitempty"`

	// Detail is a short one-line description.
	Detail string `json:"detail,omitempty"`

	// Documentation is optional longer documentation.
	Documentation string `json:"documentation,omitempty"`

	// Kind is the item classification.
	Kind ItemKind `json:"kind,omitempty"`
}

// Priority is the admission priority of a completion request.
type Priority int

const (
	// PriorityLow is for speculative or prefetch requests.
	PriorityLow Priority = iota

	// PriorityNormal is the default for user-triggered completions.
	PriorityNormal

	// PriorityHigh is for explicitly invoked completions.
	PriorityHigh

	// PriorityCritical bypasses all admission thresholds short of a
	// hard denial.
	PriorityCritical
)

// String returns the human-readable priority name.
func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityNormal:
		return "normal"
	case PriorityHigh:
		return "high"
	case PriorityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// Dispatcher performs the actual model call for one completion request.
//
// Implementations must honor context cancellation and return errors
// classified with the kinds in errors.go so the pipeline can decide
// retryability and circuit-breaker accounting.
//
// Thread Safety: Implementations must be safe for concurrent use.
type Dispatcher interface {
	// Send requests completions for the given context.
	//
	// Inputs:
	//   - ctx: Context for cancellation and timeout. Must not be nil.
	//   - code: The (possibly truncated) code context. Read-only.
	//
	// Outputs:
	//   - []Item: The completion items. May be empty.
	//   - error: Non-nil on failure; see errors.go for the kinds.
	Send(ctx context.Context, code *CodeContext) ([]Item, error)
}

// UsageSnapshot reports quota consumption for one rate window.
type UsageSnapshot struct {
	// Window is the window name ("minute", "hour", "day", "month").
	Window string `json:"window"`

	// Requests is the number of requests consumed in the window.
	Requests int `json:"requests"`

	// RequestLimit is the request ceiling for the window (0 = unlimited).
	RequestLimit int `json:"request_limit"`

	// Tokens is the token cost consumed in the window.
	Tokens int `json:"tokens"`

	// TokenLimit is the token ceiling for the window (0 = unlimited).
	TokenLimit int `json:"token_limit"`

	// ResetsAt is when the oldest sample in the window expires.
	ResetsAt time.Time `json:"resets_at"`
}

// PercentUsed returns the higher of the request and token usage ratios,
// as a value in [0, 1+). Unlimited dimensions report zero.
func (u UsageSnapshot) PercentUsed() float64 {
	var reqPct, tokPct float64
	if u.RequestLimit > 0 {
		reqPct = float64(u.Requests) / float64(u.RequestLimit)
	}
	if u.TokenLimit > 0 {
		tokPct = float64(u.Tokens) / float64(u.TokenLimit)
	}
	if reqPct > tokPct {
		return reqPct
	}
	return tokPct
}
