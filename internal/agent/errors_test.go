package agent

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"charm.land/fantasy"
	"github.com/stretchr/testify/require"

	"github.com/dotcommander/connectchat/internal/config"
	"github.com/dotcommander/connectchat/internal/errs"
)

func TestFallbackFor(t *testing.T) {
	mod := config.Model{Name: "gpt-4.1", API: "openai", Fallback: "gpt-4o-mini"}
	notFound := fmt.Errorf("step 0: %w", &fantasy.ProviderError{StatusCode: http.StatusNotFound})

	name, ok := FallbackFor(notFound, mod)
	require.True(t, ok)
	require.Equal(t, "gpt-4o-mini", name)

	_, ok = FallbackFor(notFound, config.Model{Name: "gpt-4.1"})
	require.False(t, ok)

	_, ok = FallbackFor(&fantasy.ProviderError{StatusCode: http.StatusBadRequest}, mod)
	require.False(t, ok)

	_, ok = FallbackFor(errors.New("boom"), mod)
	require.False(t, ok)
}

func TestClassifyError(t *testing.T) {
	svc := New(&config.Config{})
	mod := config.Model{Name: "gpt-4.1", API: "openai"}

	for name, tc := range map[string]struct {
		err    error
		status int
		reason string
	}{
		"missing model": {
			err:    &fantasy.ProviderError{StatusCode: http.StatusNotFound},
			status: http.StatusBadGateway,
			reason: "Missing model 'gpt-4.1' for API 'openai'.",
		},
		"context length": {
			err:    &fantasy.ProviderError{StatusCode: http.StatusBadRequest, Message: "context_length_exceeded"},
			status: http.StatusRequestEntityTooLarge,
			reason: "Maximum prompt size exceeded.",
		},
		"context length in body": {
			err:    &fantasy.ProviderError{StatusCode: http.StatusBadRequest, ResponseBody: []byte(`{"code":"context_length_exceeded"}`)},
			status: http.StatusRequestEntityTooLarge,
			reason: "Maximum prompt size exceeded.",
		},
		"rate limited": {
			err:    fmt.Errorf("step 1: %w", &fantasy.ProviderError{StatusCode: http.StatusTooManyRequests}),
			status: http.StatusTooManyRequests,
		},
		"unauthorized": {
			err:    &fantasy.ProviderError{StatusCode: http.StatusUnauthorized},
			status: http.StatusBadGateway,
		},
		"timeout": {
			err:    fmt.Errorf("step 0: %w", context.DeadlineExceeded),
			status: http.StatusGatewayTimeout,
			reason: "The request timed out.",
		},
		"cancelled": {
			err:    context.Canceled,
			status: http.StatusRequestTimeout,
			reason: "The request was cancelled.",
		},
		"other": {
			err:    errors.New("connection reset"),
			status: http.StatusBadGateway,
			reason: "There was a problem with the openai API request.",
		},
		"already user facing": {
			err:    errs.Error{Reason: "Model x is not in the settings file.", Status: http.StatusBadRequest},
			status: http.StatusBadRequest,
			reason: "Model x is not in the settings file.",
		},
	} {
		t.Run(name, func(t *testing.T) {
			err := svc.ClassifyError(tc.err, mod)
			status, reason := errs.Status(err)
			require.Equal(t, tc.status, status)
			if tc.reason != "" {
				require.Equal(t, tc.reason, reason)
			}
			require.NotEmpty(t, reason)
		})
	}
}
