package ai

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/sashabaranov/go-openai"
)

// Provider failure taxonomy. Callers match with errors.Is; the concrete
// provider error stays in the chain for logging.
var (
	// ErrProviderUnavailable covers unreachable or timed-out embedding and
	// expansion providers. Index mutations observing it leave no partial state.
	ErrProviderUnavailable = errors.New("provider unavailable")

	// ErrGenerationUnavailable is the fatal condition for an answer call:
	// the generation provider could not produce a completion.
	ErrGenerationUnavailable = errors.New("generation unavailable")

	// ErrRateLimited is a provider-side throttle, surfaced distinctly from
	// timeouts so callers can back off instead of retrying immediately.
	ErrRateLimited = errors.New("provider rate limited")

	// ErrAuthFailed is a provider-side credential rejection.
	ErrAuthFailed = errors.New("provider authentication failed")
)

// classifyProviderError maps a go-openai client error onto the taxonomy.
// Rate-limit and auth failures are kept distinct from plain unavailability.
func classifyProviderError(err error) error {
	if err == nil {
		return nil
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.HTTPStatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return ErrAuthFailed
		case http.StatusTooManyRequests:
			return ErrRateLimited
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrProviderUnavailable
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return ErrProviderUnavailable
	}

	return ErrProviderUnavailable
}
