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
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianComplete/clock"
	"github.com/AleutianAI/AleutianComplete/completion"
	"github.com/AleutianAI/AleutianComplete/completion/pipeline"
	"github.com/AleutianAI/AleutianComplete/llm"
	"github.com/AleutianAI/AleutianComplete/telemetry"
)

var (
	configPath string
	filePath   string
	lineNum    int
	colNum     int
	language   string
	priority   string

	rootCmd = &cobra.Command{
		Use:   "complete",
		Short: "A cli for the Aleutian code completion client core",
		Long: `Complete runs the editor-embedded completion pipeline from the
command line: cache, debounce, admission control, circuit breaker, and
token-budget truncation around one model dispatch.`,
	}

	runCmd = &cobra.Command{
		Use:   "run",
		Short: "Request a completion for a file position",
		RunE:  runCompletion,
	}

	usageCmd = &cobra.Command{
		Use:   "usage",
		Short: "Print the rate limiter window snapshot for the configured tier",
		RunE:  runUsage,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config")

	runCmd.Flags().StringVar(&filePath, "file", "", "Source file to complete in")
	runCmd.Flags().IntVar(&lineNum, "line", 1, "Cursor line (1-based)")
	runCmd.Flags().IntVar(&colNum, "col", 0, "Cursor column (0-based)")
	runCmd.Flags().StringVar(&language, "language", "", "Language id (default: from file extension)")
	runCmd.Flags().StringVar(&priority, "priority", "normal", "Priority: low, normal, high, critical")
	runCmd.MarkFlagRequired("file")

	rootCmd.AddCommand(runCmd, usageCmd)
}

func newService(cfg Config, logger *slog.Logger) (*pipeline.Service, error) {
	tier, err := cfg.tier()
	if err != nil {
		return nil, err
	}

	dispatcher, err := llm.New(cfg.LLM, logger)
	if err != nil {
		return nil, err
	}

	pcfg := pipeline.DefaultConfig()
	pcfg.Model = cfg.Model
	if cfg.ContextShare > 0 {
		pcfg.ContextShare = cfg.ContextShare
	}
	pcfg.Limiter.Tier = tier

	return pipeline.New(pcfg, dispatcher, logger, clock.Real()), nil
}

func runCompletion(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	tcfg := telemetry.DefaultConfig()
	if cfg.Telemetry.TraceExporter != "" {
		tcfg.TraceExporter = cfg.Telemetry.TraceExporter
	}
	if cfg.Telemetry.MetricExporter != "" {
		tcfg.MetricExporter = cfg.Telemetry.MetricExporter
	}
	if cfg.Telemetry.OTLPEndpoint != "" {
		tcfg.OTLPEndpoint = cfg.Telemetry.OTLPEndpoint
	}
	shutdown, err := telemetry.Init(cmd.Context(), tcfg)
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer shutdown(context.Background())

	svc, err := newService(cfg, logger)
	if err != nil {
		return err
	}
	defer svc.Close()

	code, err := buildContext(filePath, lineNum, colNum, language)
	if err != nil {
		return err
	}

	items, err := svc.RequestCompletion(cmd.Context(), code, parsePriority(priority))
	if err != nil {
		return fmt.Errorf("completion failed: %w", err)
	}
	if len(items) == 0 {
		fmt.Println("(no completions)")
		return nil
	}
	for _, item := range items {
		fmt.Printf("--- %s\n%s\n", item.Label, item.InsertText)
	}
	return nil
}

func runUsage(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	tier, err := cfg.tier()
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	svc, err := newService(cfg, logger)
	if err != nil {
		return err
	}
	defer svc.Close()

	fmt.Printf("tier: %s\n", tier.Name)
	fmt.Printf("%-8s %10s %14s %12s %14s\n", "window", "requests", "request_limit", "tokens", "token_limit")
	for _, w := range svc.Usage() {
		fmt.Printf("%-8s %10d %14s %12d %14s\n",
			w.Window, w.Requests, formatLimit(w.RequestLimit), w.Tokens, formatLimit(w.TokenLimit))
	}
	return nil
}

func formatLimit(n int) string {
	if n <= 0 {
		return "unlimited"
	}
	return fmt.Sprintf("%d", n)
}

func parsePriority(s string) completion.Priority {
	switch s {
	case "low":
		return completion.PriorityLow
	case "high":
		return completion.PriorityHigh
	case "critical":
		return completion.PriorityCritical
	default:
		return completion.PriorityNormal
	}
}
