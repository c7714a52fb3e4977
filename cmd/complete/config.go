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

	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/AleutianComplete/completion/ratelimit"
	"github.com/AleutianAI/AleutianComplete/llm"
)

// Config is the YAML configuration for the complete CLI.
type Config struct {
	// Model is the completion model identifier.
	Model string `yaml:"model"`

	// Tier selects the subscription tier: free, pro, or unlimited.
	Tier string `yaml:"tier"`

	// ContextShare is the fraction of the model limit given to context.
	ContextShare float64 `yaml:"context_share"`

	// LLM configures the dispatcher endpoint.
	LLM llm.Config `yaml:"llm"`

	// Telemetry selects exporters for traces and metrics.
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// TelemetryConfig mirrors the exporter selection of telemetry.Config.
type TelemetryConfig struct {
	TraceExporter  string `yaml:"trace_exporter"`
	MetricExporter string `yaml:"metric_exporter"`
	OTLPEndpoint   string `yaml:"otlp_endpoint"`
}

func defaultCLIConfig() Config {
	return Config{
		Model: "gpt-4o-mini",
		Tier:  "free",
		LLM:   llm.DefaultConfig(),
	}
}

// loadConfig reads the YAML config, returning defaults when the path is
// empty.
func loadConfig(path string) (Config, error) {
	cfg := defaultCLIConfig()
	if path == "" {
		return cfg, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// tier maps the configured tier name to its ceilings.
func (c Config) tier() (ratelimit.Tier, error) {
	switch c.Tier {
	case "", "free":
		return ratelimit.FreeTier(), nil
	case "pro":
		return ratelimit.ProTier(), nil
	case "unlimited":
		return ratelimit.UnlimitedTier(), nil
	default:
		return ratelimit.Tier{}, fmt.Errorf("unknown tier %q", c.Tier)
	}
}
