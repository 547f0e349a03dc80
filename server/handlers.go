package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	gocmd "github.com/goliatone/go-command"
	relaycommand "github.com/goliatone/go-order-relay/command"
	"github.com/goliatone/go-order-relay/core"
	relayquery "github.com/goliatone/go-order-relay/query"
	"github.com/goliatone/go-order-relay/webhooks"
)

type errorEnvelope struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	TextCode string `json:"text_code"`
	Message  string `json:"message"`
}

func (h *handlers) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (h *handlers) root(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodHead {
		w.WriteHeader(http.StatusOK)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":      true,
		"service": h.cfg.ServiceName,
		"version": h.cfg.Version,
	})
}

func (h *handlers) notification(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.cfg.MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, core.RelayErrorBadInput, "notification body exceeds limit")
			return
		}
		writeError(w, http.StatusBadRequest, core.RelayErrorBadInput, "notification body could not be read")
		return
	}

	collector := gocmd.NewResult[core.InboundResult]()
	ctx := gocmd.ContextWithResult(r.Context(), collector)
	err = h.deps.Notifications.Execute(ctx, relaycommand.ProcessNotificationMessage{
		Request: core.InboundRequest{
			ProviderID: core.ProviderMercadoLibre,
			Surface:    core.SurfaceWebhook,
			Headers:    flattenHeaders(r.Header),
			Body:       body,
			Metadata: map[string]any{
				"request_id": middleware.GetReqID(r.Context()),
			},
		},
	})
	result, _ := collector.Load()

	if err != nil && !result.Accepted {
		mapped := core.MapError(err)
		status := result.StatusCode
		if status == 0 {
			status = mapped.Code
		}
		if status < http.StatusBadRequest {
			status = http.StatusInternalServerError
		}
		h.logger.WithContext(ctx).Warn("notification rejected",
			"status_code", status,
			"text_code", mapped.TextCode,
			"error", err.Error(),
		)
		writeError(w, status, mapped.TextCode, mapped.Message)
		return
	}
	if err != nil {
		h.logger.WithContext(ctx).Error("notification acknowledged with error",
			append(core.FlattenFields(core.RedactSensitiveMap(result.Metadata)), "error", err.Error())...,
		)
	}

	status := result.StatusCode
	if status == 0 {
		status = http.StatusOK
	}
	response := map[string]any{"ok": true}
	for key, value := range result.Metadata {
		response[key] = value
	}
	writeJSON(w, status, response)
}

func (h *handlers) listDeliveries(w http.ResponseWriter, r *http.Request) {
	values := r.URL.Query()
	limit, err := intParam(values.Get("limit"))
	if err != nil {
		writeError(w, http.StatusBadRequest, core.RelayErrorBadInput, "limit must be an integer")
		return
	}
	offset, err := intParam(values.Get("offset"))
	if err != nil {
		writeError(w, http.StatusBadRequest, core.RelayErrorBadInput, "offset must be an integer")
		return
	}

	page, err := h.deps.Deliveries.Query(r.Context(), relayquery.ListDeliveriesMessage{
		Filter: webhooks.DeliveryFilter{
			ProviderID: strings.TrimSpace(values.Get("provider_id")),
			Status:     strings.TrimSpace(values.Get("status")),
			Limit:      limit,
			Offset:     offset,
		},
	})
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (h *handlers) getDelivery(w http.ResponseWriter, r *http.Request) {
	record, err := h.deps.Delivery.Query(r.Context(), relayquery.GetDeliveryMessage{
		ProviderID: chi.URLParam(r, "providerID"),
		DeliveryID: chi.URLParam(r, "deliveryID"),
	})
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (h *handlers) recentSales(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r.URL.Query().Get("limit"))
	if err != nil {
		writeError(w, http.StatusBadRequest, core.RelayErrorBadInput, "limit must be an integer")
		return
	}
	sales, err := h.deps.Sales.Query(r.Context(), relayquery.RecentSalesMessage{Limit: limit})
	if err != nil {
		h.logger.WithContext(r.Context()).Warn("recent sales listing failed", "error", err.Error())
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sales)
}

func intParam(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	return strconv.Atoi(raw)
}

func flattenHeaders(header http.Header) map[string]string {
	out := make(map[string]string, len(header))
	for key := range header {
		out[key] = header.Get(key)
	}
	return out
}

func writeMappedError(w http.ResponseWriter, err error) {
	mapped := core.MapError(err)
	status := mapped.Code
	if status < http.StatusBadRequest {
		status = http.StatusInternalServerError
	}
	writeError(w, status, mapped.TextCode, mapped.Message)
}

func writeError(w http.ResponseWriter, status int, textCode string, message string) {
	writeJSON(w, status, errorEnvelope{Error: errorBody{TextCode: textCode, Message: message}})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
