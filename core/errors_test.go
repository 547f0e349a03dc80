package core

import (
	"errors"
	"net/http"
	"testing"
)

func TestRelayErrorConstructors(t *testing.T) {
	cases := []struct {
		name     string
		err      error
		wantCode int
		wantText string
	}{
		{name: "bad input", err: NewBadInputError(nil, "malformed", nil), wantCode: http.StatusBadRequest, wantText: RelayErrorBadInput},
		{name: "signature", err: NewSignatureError(errors.New("mismatch"), "signature"), wantCode: http.StatusUnauthorized, wantText: RelayErrorSignatureInvalid},
		{name: "auth", err: NewAuthError(errors.New("invalid_grant"), "refresh", nil), wantText: RelayErrorAuthFailed},
		{name: "fetch", err: NewFetchError(nil, "order lookup", nil), wantText: RelayErrorFetchFailed},
		{name: "forward", err: NewForwardError(nil, "forward", map[string]any{"order_id": "1"}), wantText: RelayErrorForwardFailed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			mapped := MapError(tc.err)
			if mapped.TextCode != tc.wantText {
				t.Fatalf("expected text code %q, got %q", tc.wantText, mapped.TextCode)
			}
			if tc.wantCode != 0 && mapped.Code != tc.wantCode {
				t.Fatalf("expected code %d, got %d", tc.wantCode, mapped.Code)
			}
			if mapped.Code == 0 {
				t.Fatalf("expected an http code")
			}
		})
	}
	if !IsAuthError(NewAuthError(nil, "x", nil)) || IsAuthError(NewFetchError(nil, "x", nil)) || IsForwardError(errors.New("x")) {
		t.Fatalf("unexpected error classification")
	}
}

func TestMapError_PlainErrors(t *testing.T) {
	if MapError(nil) != nil {
		t.Fatalf("expected nil for nil error")
	}
	cases := map[string]string{
		"signature mismatch":     RelayErrorSignatureInvalid,
		"delivery not found":     RelayErrorNotFound,
		"order id is required":   RelayErrorBadInput,
		"body is malformed json": RelayErrorBadInput,
	}
	for message, want := range cases {
		if got := MapError(errors.New(message)).TextCode; got != want {
			t.Fatalf("MapError(%q) text code = %q, want %q", message, got, want)
		}
	}
	if mapped := MapError(errors.New("connection reset")); mapped.Code < http.StatusInternalServerError {
		t.Fatalf("expected 5xx for unknown failure, got %d", mapped.Code)
	}
}

func TestMapError_StorageFailureKeepsRelayTextCode(t *testing.T) {
	mapped := MapError(errors.New("database is locked"))
	if mapped.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", mapped.Code)
	}
	if mapped.TextCode != RelayErrorInternal {
		t.Fatalf("expected %q, got %q", RelayErrorInternal, mapped.TextCode)
	}
}
