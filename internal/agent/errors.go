package agent

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"charm.land/fantasy"

	"github.com/dotcommander/connectchat/internal/config"
	"github.com/dotcommander/connectchat/internal/errs"
)

// FallbackFor reports the model to retry with when err says mod does not
// exist upstream.
func FallbackFor(err error, mod config.Model) (string, bool) {
	var providerErr *fantasy.ProviderError
	if !errors.As(err, &providerErr) || providerErr.StatusCode != http.StatusNotFound {
		return "", false
	}
	return mod.Fallback, mod.Fallback != ""
}

// ClassifyError turns a failed turn into a user-facing error carrying the
// HTTP status the API answers with.
func (s *Service) ClassifyError(err error, mod config.Model) error {
	var uerr errs.Error
	if errors.As(err, &uerr) {
		return err
	}

	var providerErr *fantasy.ProviderError
	if errors.As(err, &providerErr) {
		return classifyProviderError(providerErr, mod)
	}

	switch {
	case errors.Is(err, context.Canceled):
		return errs.Error{Err: err, Reason: "The request was cancelled.", Status: http.StatusRequestTimeout}
	case errors.Is(err, context.DeadlineExceeded):
		return errs.Error{Err: err, Reason: "The request timed out.", Status: http.StatusGatewayTimeout}
	}
	return errs.Error{
		Err:    err,
		Reason: fmt.Sprintf("There was a problem with the %s API request.", mod.API),
		Status: http.StatusBadGateway,
	}
}

func classifyProviderError(err *fantasy.ProviderError, mod config.Model) errs.Error {
	title := func(fallback string) string {
		if reason := fantasy.ErrorTitleForStatusCode(err.StatusCode); reason != "" {
			return reason
		}
		return fallback
	}

	switch err.StatusCode {
	case http.StatusNotFound:
		return errs.Error{
			Err:    err,
			Reason: fmt.Sprintf("Missing model '%s' for API '%s'.", mod.Name, mod.API),
			Status: http.StatusBadGateway,
		}
	case http.StatusBadRequest:
		if isContextLengthExceeded(err) {
			return errs.Error{Err: err, Reason: "Maximum prompt size exceeded.", Status: http.StatusRequestEntityTooLarge}
		}
		return errs.Error{Err: err, Reason: title(fmt.Sprintf("%s API request error.", mod.API)), Status: http.StatusBadGateway}
	case http.StatusUnauthorized, http.StatusForbidden:
		return errs.Error{Err: err, Reason: title(fmt.Sprintf("%s API authentication failed.", mod.API)), Status: http.StatusBadGateway}
	case http.StatusTooManyRequests:
		return errs.Error{Err: err, Reason: title("Rate limited by the model API."), Status: http.StatusTooManyRequests}
	}

	if err.IsRetryable() {
		return errs.Error{Err: err, Reason: title("Retryable API error."), Status: http.StatusServiceUnavailable}
	}
	return errs.Error{Err: err, Reason: title(fmt.Sprintf("%s API request error.", mod.API)), Status: http.StatusBadGateway}
}

func isContextLengthExceeded(err *fantasy.ProviderError) bool {
	return strings.Contains(strings.ToLower(err.Message), "context_length_exceeded") ||
		strings.Contains(strings.ToLower(string(err.ResponseBody)), "context_length_exceeded")
}
