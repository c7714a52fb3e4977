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
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

const (
	// fingerprintPrefixChars is how much prefix tail participates in the
	// fingerprint. Edits further back than this do not invalidate the
	// cached completions for the cursor position.
	fingerprintPrefixChars = 100

	// fingerprintImports is how many leading imports participate in the
	// fingerprint.
	fingerprintImports = 5
)

// ComputeFingerprint derives the deterministic cache / single-flight key
// for a code context.
//
// The key is a SHA-256 over {language, last 100 prefix characters, current
// line, first 5 imports, cursor line and column}. A precomputed value on
// the context takes precedence.
//
// Two contexts with equal fingerprints are treated as the same request by
// the cache and the debouncer.
func ComputeFingerprint(code *CodeContext) string {
	if code.Fingerprint != "" {
		return code.Fingerprint
	}

	prefix := code.Prefix
	if len(prefix) > fingerprintPrefixChars {
		prefix = prefix[len(prefix)-fingerprintPrefixChars:]
	}

	imports := code.Imports
	if len(imports) > fingerprintImports {
		imports = imports[:fingerprintImports]
	}

	var b strings.Builder
	b.WriteString(code.Language)
	b.WriteByte(0)
	b.WriteString(prefix)
	b.WriteByte(0)
	b.WriteString(code.CurrentLine)
	b.WriteByte(0)
	b.WriteString(strings.Join(imports, "\n"))
	b.WriteByte(0)
	fmt.Fprintf(&b, "%d:%d", code.CursorLine, code.CursorColumn)

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}
