package ai

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"expert-assistant/internal/domain"
)

// classifyStatus maps a provider HTTP status to the domain taxonomy.
func classifyStatus(provider string, status int, code, msg string) error {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%s: %w: %s", provider, domain.ErrAuthentication, nonEmpty(msg, http.StatusText(status)))
	default:
		return fmt.Errorf("%s: %w", provider, &domain.UpstreamError{StatusCode: status, Code: code, Message: msg})
	}
}

// classifyTransport handles errors that carry no provider status. Context
// errors pass through untouched so callers can tell cancellation apart.
func classifyTransport(ctx context.Context, provider string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w: %v", provider, domain.ErrNetwork, err)
	}
	return fmt.Errorf("%s: %w: %v", provider, domain.ErrMalformedResponse, err)
}

func missingCredentials(provider string) error {
	return fmt.Errorf("%s: %w: no api key configured", provider, domain.ErrAuthentication)
}

func nonEmpty(v, def string) string {
	if v != "" {
		return v
	}
	return def
}
