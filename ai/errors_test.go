package ai

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestClassifyProviderError(t *testing.T) {
	t.Run("Nil", func(t *testing.T) {
		assert.NoError(t, classifyProviderError(nil))
	})

	t.Run("AuthFailed", func(t *testing.T) {
		for _, code := range []int{http.StatusUnauthorized, http.StatusForbidden} {
			err := classifyProviderError(&openai.APIError{HTTPStatusCode: code})
			assert.ErrorIs(t, err, ErrAuthFailed)
		}
	})

	t.Run("RateLimited", func(t *testing.T) {
		err := classifyProviderError(&openai.APIError{HTTPStatusCode: http.StatusTooManyRequests})
		assert.ErrorIs(t, err, ErrRateLimited)
	})

	t.Run("ServerErrorIsUnavailable", func(t *testing.T) {
		err := classifyProviderError(&openai.APIError{HTTPStatusCode: http.StatusInternalServerError})
		assert.ErrorIs(t, err, ErrProviderUnavailable)
	})

	t.Run("NetTimeout", func(t *testing.T) {
		assert.ErrorIs(t, classifyProviderError(timeoutErr{}), ErrProviderUnavailable)
	})

	t.Run("ContextErrors", func(t *testing.T) {
		assert.ErrorIs(t, classifyProviderError(context.DeadlineExceeded), ErrProviderUnavailable)
		assert.ErrorIs(t, classifyProviderError(context.Canceled), ErrProviderUnavailable)
	})

	t.Run("UnknownIsUnavailable", func(t *testing.T) {
		assert.ErrorIs(t, classifyProviderError(errors.New("connection refused")), ErrProviderUnavailable)
	})
}
