package command

import (
	"context"
	"errors"
	"net/http"
	"testing"

	gocmd "github.com/goliatone/go-command"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-order-relay/core"
)

type stubProcessor struct {
	processFn func(ctx context.Context, req core.InboundRequest) (core.InboundResult, error)
}

func (s stubProcessor) Process(ctx context.Context, req core.InboundRequest) (core.InboundResult, error) {
	if s.processFn == nil {
		return core.InboundResult{}, nil
	}
	return s.processFn(ctx, req)
}

func TestProcessNotificationCommand_DelegatesAndStoresResult(t *testing.T) {
	called := false
	cmd := NewProcessNotificationCommand(stubProcessor{
		processFn: func(_ context.Context, req core.InboundRequest) (core.InboundResult, error) {
			called = true
			if req.ProviderID != core.ProviderMercadoLibre {
				t.Fatalf("unexpected provider %q", req.ProviderID)
			}
			return core.InboundResult{Accepted: true, StatusCode: http.StatusOK, Metadata: map[string]any{"status": "processed"}}, nil
		},
	})

	collector := gocmd.NewResult[core.InboundResult]()
	ctx := gocmd.ContextWithResult(context.Background(), collector)
	err := cmd.Execute(ctx, ProcessNotificationMessage{Request: core.InboundRequest{
		ProviderID: core.ProviderMercadoLibre,
		Body:       []byte(`{"topic":"orders_v2","resource":"/orders/1"}`),
	}})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !called {
		t.Fatalf("expected processor invocation")
	}
	result, ok := collector.Load()
	if !ok {
		t.Fatalf("expected result to be stored")
	}
	if !result.Accepted || result.Metadata["status"] != "processed" {
		t.Fatalf("unexpected result %#v", result)
	}
}

func TestProcessNotificationCommand_StoresResultAlongsideError(t *testing.T) {
	cmd := NewProcessNotificationCommand(stubProcessor{
		processFn: func(context.Context, core.InboundRequest) (core.InboundResult, error) {
			return core.InboundResult{Accepted: true, StatusCode: http.StatusOK},
				core.NewForwardError(errors.New("503"), "forward failed", nil)
		},
	})

	collector := gocmd.NewResult[core.InboundResult]()
	ctx := gocmd.ContextWithResult(context.Background(), collector)
	err := cmd.Execute(ctx, ProcessNotificationMessage{Request: core.InboundRequest{
		ProviderID: core.ProviderMercadoLibre,
		Body:       []byte(`{}`),
	}})
	if !core.IsForwardError(err) {
		t.Fatalf("expected forward error, got %v", err)
	}
	result, ok := collector.Load()
	if !ok || !result.Accepted || result.StatusCode != http.StatusOK {
		t.Fatalf("expected acknowledged result to be stored, got %#v ok=%t", result, ok)
	}
}

func TestProcessNotificationMessage_ValidateReturnsRichError(t *testing.T) {
	err := (ProcessNotificationMessage{}).Validate()
	if err == nil {
		t.Fatalf("expected validation error")
	}
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		t.Fatalf("expected go-errors envelope, got %T", err)
	}
	if rich.Category != goerrors.CategoryValidation {
		t.Fatalf("expected validation category, got %q", rich.Category)
	}
	if rich.TextCode != core.RelayErrorBadInput {
		t.Fatalf("expected %q text code, got %q", core.RelayErrorBadInput, rich.TextCode)
	}

	err = (ProcessNotificationMessage{Request: core.InboundRequest{ProviderID: "mercadolibre", Body: []byte("  ")}}).Validate()
	if err == nil {
		t.Fatalf("expected empty body to fail validation")
	}
}

func TestProcessNotificationCommand_NilProcessorReturnsRichError(t *testing.T) {
	var cmd *ProcessNotificationCommand
	err := cmd.Execute(context.Background(), ProcessNotificationMessage{})
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		t.Fatalf("expected go-errors envelope, got %T", err)
	}
	if rich.Category != goerrors.CategoryInternal {
		t.Fatalf("expected internal category, got %q", rich.Category)
	}
}
