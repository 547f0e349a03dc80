package core

import (
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	RelayErrorBadInput         = "RELAY_BAD_INPUT"
	RelayErrorSignatureInvalid = "RELAY_SIGNATURE_INVALID"
	RelayErrorAuthFailed       = "RELAY_AUTH_FAILED"
	RelayErrorFetchFailed      = "RELAY_FETCH_FAILED"
	RelayErrorForwardFailed    = "RELAY_FORWARD_FAILED"
	RelayErrorNotFound         = "RELAY_NOT_FOUND"
	RelayErrorExternalFailure  = "RELAY_EXTERNAL_FAILURE"
	RelayErrorInternal         = "RELAY_INTERNAL_ERROR"
)

// NewAuthError reports a failed credential exchange with the marketplace.
func NewAuthError(source error, message string, metadata map[string]any) *goerrors.Error {
	return relayError(source, goerrors.CategoryAuth, message, http.StatusBadGateway, RelayErrorAuthFailed, metadata)
}

// NewFetchError reports a failed or malformed order lookup.
func NewFetchError(source error, message string, metadata map[string]any) *goerrors.Error {
	return relayError(source, goerrors.CategoryExternal, message, http.StatusBadGateway, RelayErrorFetchFailed, metadata)
}

// NewForwardError reports a failed delivery to the downstream webhook.
func NewForwardError(source error, message string, metadata map[string]any) *goerrors.Error {
	return relayError(source, goerrors.CategoryExternal, message, http.StatusBadGateway, RelayErrorForwardFailed, metadata)
}

func NewBadInputError(source error, message string, metadata map[string]any) *goerrors.Error {
	return relayError(source, goerrors.CategoryBadInput, message, http.StatusBadRequest, RelayErrorBadInput, metadata)
}

func NewSignatureError(source error, message string) *goerrors.Error {
	return relayError(source, goerrors.CategoryAuth, message, http.StatusUnauthorized, RelayErrorSignatureInvalid, nil)
}

func IsAuthError(err error) bool {
	return hasTextCode(err, RelayErrorAuthFailed)
}

func IsFetchError(err error) bool {
	return hasTextCode(err, RelayErrorFetchFailed)
}

func IsForwardError(err error) bool {
	return hasTextCode(err, RelayErrorForwardFailed)
}

// MapError normalizes any error into a relay envelope with an HTTP code and text code.
func MapError(err error) *goerrors.Error {
	if err == nil {
		return nil
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return ensureRelayErrorEnvelope(richErr)
	}

	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	switch {
	case strings.Contains(msg, "signature"):
		return newRelayError(err.Error(), goerrors.CategoryAuth, RelayErrorSignatureInvalid)
	case strings.Contains(msg, "not found"):
		return newRelayError(err.Error(), goerrors.CategoryNotFound, RelayErrorNotFound)
	case strings.Contains(msg, "required"), strings.Contains(msg, "invalid"), strings.Contains(msg, "malformed"):
		return newRelayError(err.Error(), goerrors.CategoryBadInput, RelayErrorBadInput)
	}

	mapped := goerrors.MapToError(err, goerrors.DefaultErrorMappers())
	return ensureRelayErrorEnvelope(mapped)
}

func relayError(
	source error,
	category goerrors.Category,
	message string,
	code int,
	textCode string,
	metadata map[string]any,
) *goerrors.Error {
	var err *goerrors.Error
	if source == nil {
		err = goerrors.New(message, category)
	} else {
		err = goerrors.Wrap(source, category, message)
	}
	err = err.WithCode(code).WithTextCode(textCode)
	if len(metadata) > 0 {
		err = err.WithMetadata(metadata)
	}
	return err
}

func newRelayError(message string, category goerrors.Category, textCode string) *goerrors.Error {
	return ensureRelayErrorEnvelope(
		goerrors.New(message, category).
			WithTextCode(textCode),
	)
}

func ensureRelayErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = relayHTTPStatus(err.Category)
	}
	if !strings.HasPrefix(strings.TrimSpace(err.TextCode), "RELAY_") {
		err.TextCode = defaultRelayTextCode(err.Category)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}

func hasTextCode(err error, textCode string) bool {
	if err == nil {
		return false
	}
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		return false
	}
	return richErr.TextCode == textCode
}

func defaultRelayTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return RelayErrorBadInput
	case goerrors.CategoryNotFound:
		return RelayErrorNotFound
	case goerrors.CategoryAuth, goerrors.CategoryAuthz:
		return RelayErrorSignatureInvalid
	case goerrors.CategoryExternal:
		return RelayErrorExternalFailure
	default:
		return RelayErrorInternal
	}
}

func relayHTTPStatus(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return http.StatusForbidden
	case goerrors.CategoryExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
