// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ratelimit

// Ceiling bounds one window in both tracked dimensions. Zero means
// unlimited for that dimension.
type Ceiling struct {
	Requests int `json:"requests"`
	Tokens   int `json:"tokens"`
}

// Tier is one subscription level's set of window ceilings. Changing
// tiers replaces all ceilings atomically.
type Tier struct {
	Name   string  `json:"name"`
	Minute Ceiling `json:"minute"`
	Hour   Ceiling `json:"hour"`
	Day    Ceiling `json:"day"`
	Month  Ceiling `json:"month"`
}

// FreeTier returns the default entry-level ceilings.
func FreeTier() Tier {
	return Tier{
		Name:   "free",
		Minute: Ceiling{Requests: 10, Tokens: 20000},
		Hour:   Ceiling{Requests: 200, Tokens: 300000},
		Day:    Ceiling{Requests: 1000, Tokens: 1500000},
		Month:  Ceiling{Requests: 15000, Tokens: 20000000},
	}
}

// ProTier returns the paid-plan ceilings.
func ProTier() Tier {
	return Tier{
		Name:   "pro",
		Minute: Ceiling{Requests: 60, Tokens: 120000},
		Hour:   Ceiling{Requests: 2000, Tokens: 3000000},
		Day:    Ceiling{Requests: 20000, Tokens: 25000000},
		Month:  Ceiling{Requests: 400000, Tokens: 400000000},
	}
}

// UnlimitedTier returns a tier with no ceilings, for self-hosted
// deployments and tests.
func UnlimitedTier() Tier {
	return Tier{Name: "unlimited"}
}
