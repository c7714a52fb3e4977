// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/AleutianAI/AleutianComplete/completion"
)

// buildContext assembles a CodeContext from a file position. Editor
// integrations supply richer contexts (symbols, project info); this is
// the minimum useful for the CLI harness.
func buildContext(path string, line, col int, lang string) (*completion.CodeContext, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read source file: %w", err)
	}
	lines := strings.Split(string(raw), "\n")

	if line < 1 {
		line = 1
	}
	if line > len(lines) {
		line = len(lines)
	}
	current := lines[line-1]
	if col < 0 || col > len(current) {
		col = len(current)
	}

	prefix := strings.Join(lines[:line-1], "\n")
	if prefix != "" {
		prefix += "\n"
	}
	prefix += current[:col]

	suffix := current[col:]
	if line < len(lines) {
		suffix += "\n" + strings.Join(lines[line:], "\n")
	}

	if lang == "" {
		lang = languageFromExt(path)
	}

	return &completion.CodeContext{
		Language:     lang,
		Prefix:       prefix,
		Suffix:       suffix,
		CurrentLine:  current,
		CursorLine:   line - 1,
		CursorColumn: col,
		Imports:      scanImports(lines),
	}, nil
}

// languageFromExt maps a file extension to a language id.
func languageFromExt(path string) string {
	switch filepath.Ext(path) {
	case ".go":
		return "go"
	case ".py":
		return "python"
	case ".ts", ".tsx":
		return "typescript"
	case ".js", ".jsx":
		return "javascript"
	case ".rs":
		return "rust"
	case ".java":
		return "java"
	case ".c", ".h":
		return "c"
	case ".cc", ".cpp", ".hpp":
		return "cpp"
	default:
		return "plaintext"
	}
}

// scanImports collects lines that look like import statements across
// common languages. Good enough for prompt context; not a parser.
func scanImports(lines []string) []string {
	var out []string
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(trimmed, "import "),
			strings.HasPrefix(trimmed, "from "),
			strings.HasPrefix(trimmed, "use "),
			strings.HasPrefix(trimmed, "#include "),
			strings.HasPrefix(trimmed, "require "):
			out = append(out, trimmed)
		}
	}
	return out
}
