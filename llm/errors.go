// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/sashabaranov/go-openai"

	"github.com/AleutianAI/AleutianComplete/completion"
)

// mapError classifies a go-openai failure into the typed error kinds.
//
// 401/403 map to authentication, 429 to rate limiting, remaining 4xx to
// invalid request, 5xx to server. Deadline expiry maps to timeout and
// transport-level failures to network. Everything else is unknown.
func mapError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("llm: %w: %v", completion.ErrTimeout, err)
	}
	if errors.Is(err, context.Canceled) {
		return err
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return mapStatus(apiErr.HTTPStatusCode, err)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		if reqErr.HTTPStatusCode > 0 {
			return mapStatus(reqErr.HTTPStatusCode, err)
		}
		return fmt.Errorf("llm: %w: %v", completion.ErrNetwork, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return fmt.Errorf("llm: %w: %v", completion.ErrTimeout, err)
		}
		return fmt.Errorf("llm: %w: %v", completion.ErrNetwork, err)
	}

	return fmt.Errorf("llm: %w: %v", completion.ErrUnknown, err)
}

func mapStatus(status int, err error) error {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return fmt.Errorf("llm: %w: %v", completion.ErrAuthentication, err)
	case status == http.StatusTooManyRequests:
		return &completion.RateLimitError{}
	case status >= 500:
		return fmt.Errorf("llm: %w: status %d: %v", completion.ErrServer, status, err)
	case status >= 400:
		return fmt.Errorf("llm: %w: status %d: %v", completion.ErrInvalidRequest, status, err)
	default:
		return fmt.Errorf("llm: %w: status %d: %v", completion.ErrUnknown, status, err)
	}
}
