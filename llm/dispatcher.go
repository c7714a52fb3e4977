// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package llm dispatches completion requests to an OpenAI-compatible
// chat endpoint and maps transport failures onto the typed error kinds
// the pipeline's breaker and limiter account for.
package llm

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/AleutianAI/AleutianComplete/completion"
)

const systemPrompt = "You are a code completion engine. Given code before " +
	"and after a cursor, reply with only the code that belongs at the " +
	"cursor. No prose, no markdown fences."

// Config configures the dispatcher.
type Config struct {
	// APIKey authenticates against the endpoint. Falls back to
	// OPENAI_API_KEY.
	APIKey string `json:"api_key" yaml:"api_key"`

	// BaseURL overrides the endpoint for OpenAI-compatible servers
	// (vLLM, llama.cpp, LiteLLM). Empty uses the default.
	BaseURL string `json:"base_url" yaml:"base_url"`

	// Model is the completion model identifier (default: gpt-4o-mini).
	Model string `json:"model" yaml:"model"`

	// MaxCompletionTokens caps the generated completion length
	// (default: 256).
	MaxCompletionTokens int `json:"max_completion_tokens" yaml:"max_completion_tokens"`

	// Temperature for sampling (default: 0.2).
	Temperature float32 `json:"temperature" yaml:"temperature"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Model:               "gpt-4o-mini",
		MaxCompletionTokens: 256,
		Temperature:         0.2,
	}
}

// Dispatcher implements completion.Dispatcher over chat completions.
//
// Thread Safety: Safe for concurrent use.
type Dispatcher struct {
	client      *openai.Client
	model       string
	maxTokens   int
	temperature float32
	logger      *slog.Logger
}

// New creates a dispatcher.
//
// Inputs:
//   - cfg: Dispatcher configuration. Zero fields take defaults; the API
//     key falls back to the OPENAI_API_KEY environment variable.
//   - logger: Structured logger. Nil uses slog.Default().
//
// Outputs:
//   - *Dispatcher: Ready to use.
//   - error: Non-nil when no API key is available.
func New(cfg Config, logger *slog.Logger) (*Dispatcher, error) {
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("llm: %w: no API key configured", completion.ErrAuthentication)
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if cfg.MaxCompletionTokens <= 0 {
		cfg.MaxCompletionTokens = 256
	}
	if logger == nil {
		logger = slog.Default()
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	return &Dispatcher{
		client:      openai.NewClientWithConfig(clientCfg),
		model:       cfg.Model,
		maxTokens:   cfg.MaxCompletionTokens,
		temperature: cfg.Temperature,
		logger:      logger,
	}, nil
}

// Model returns the configured model identifier, for budget lookups.
func (d *Dispatcher) Model() string {
	return d.model
}

// Send dispatches one completion request.
//
// Description:
//
//	Builds a fill-in-the-middle prompt from the (already truncated)
//	context, calls the chat endpoint, and returns the generated text as
//	a single completion item. Failures come back wrapped in the typed
//	error kinds (completion.ErrNetwork, ErrServer, ...).
func (d *Dispatcher) Send(ctx context.Context, code *completion.CodeContext) ([]completion.Item, error) {
	req := openai.ChatCompletionRequest{
		Model: d.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: buildPrompt(code)},
		},
		MaxCompletionTokens: d.maxTokens,
		Temperature:         d.temperature,
	}

	resp, err := d.client.CreateChatCompletion(ctx, req)
	if err != nil {
		mapped := mapError(err)
		d.logger.Debug("completion dispatch failed",
			"model", d.model, "error", mapped)
		return nil, mapped
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("llm: %w: no choices returned", completion.ErrServer)
	}

	text := cleanCompletion(resp.Choices[0].Message.Content)
	if text == "" {
		return nil, nil
	}
	return []completion.Item{{
		Label:      firstLine(text),
		InsertText: text,
		Detail:     d.model,
		Kind:       completion.ItemKindText,
	}}, nil
}

// buildPrompt renders the fill-in-the-middle request for the model.
func buildPrompt(code *completion.CodeContext) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Language: %s\n", code.Language)
	if len(code.Imports) > 0 {
		fmt.Fprintf(&b, "Imports:\n%s\n", strings.Join(code.Imports, "\n"))
	}
	if code.ProjectInfo != "" {
		fmt.Fprintf(&b, "Project: %s\n", code.ProjectInfo)
	}
	b.WriteString("<code_before_cursor>\n")
	b.WriteString(code.Prefix)
	b.WriteString("\n</code_before_cursor>\n")
	if code.Suffix != "" {
		b.WriteString("<code_after_cursor>\n")
		b.WriteString(code.Suffix)
		b.WriteString("\n</code_after_cursor>\n")
	}
	b.WriteString("Complete the code at the cursor.")
	return b.String()
}

// cleanCompletion strips markdown fences models add despite the system
// prompt.
func cleanCompletion(text string) string {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		if idx := strings.Index(text, "\n"); idx >= 0 {
			text = text[idx+1:]
		} else {
			return ""
		}
		text = strings.TrimSuffix(strings.TrimSpace(text), "```")
		text = strings.TrimRight(text, "\n")
	}
	return text
}

func firstLine(text string) string {
	if idx := strings.IndexByte(text, '\n'); idx >= 0 {
		return text[:idx]
	}
	return text
}
