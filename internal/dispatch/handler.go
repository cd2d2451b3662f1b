package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/wolfman30/careplus-reminders/internal/notify"
	"github.com/wolfman30/careplus-reminders/internal/observability/metrics"
	"github.com/wolfman30/careplus-reminders/pkg/logging"
)

const (
	corsAllowOrigin  = "*"
	corsAllowHeaders = "authorization, x-client-info, apikey, content-type, idempotency-key"

	guardWriteTimeout = 5 * time.Second

	// IdempotencyHeader opts a call into replay protection when a guard is configured.
	IdempotencyHeader = "Idempotency-Key"
)

type successEnvelope struct {
	Success            bool            `json:"success"`
	Channel            notify.Channel  `json:"channel"`
	NotificationResult json.RawMessage `json:"notificationResult"`
}

type failureEnvelope struct {
	Error   string `json:"error"`
	Success bool   `json:"success"`
}

// Handler is the HTTP face of the send-notification function.
type Handler struct {
	dispatcher Dispatcher
	guard      *IdempotencyGuard
	metrics    *metrics.DispatchMetrics
	logger     *logging.Logger
}

// HandlerOption configures a Handler.
type HandlerOption func(*Handler)

// WithIdempotency enables Idempotency-Key handling. A nil guard leaves it disabled.
func WithIdempotency(guard *IdempotencyGuard) HandlerOption {
	return func(h *Handler) { h.guard = guard }
}

func WithHandlerMetrics(m *metrics.DispatchMetrics) HandlerOption {
	return func(h *Handler) { h.metrics = m }
}

func NewHandler(dispatcher Dispatcher, logger *logging.Logger, opts ...HandlerOption) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	h := &Handler{dispatcher: dispatcher, logger: logger}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", corsAllowOrigin)
	w.Header().Set("Access-Control-Allow-Headers", corsAllowHeaders)
}

// CORS sets the permissive cross-origin headers on every response, including
// ones written by middleware that runs before the Handler.
func CORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		setCORSHeaders(w)
		next.ServeHTTP(w, r)
	})
}

// WriteFailure writes the failure envelope with CORS headers. Its signature
// lets middleware in front of the Handler reject requests in the same shape.
func WriteFailure(w http.ResponseWriter, _ *http.Request, status int, msg string) {
	setCORSHeaders(w)
	writeEnvelope(w, status, failureBody(msg))
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	setCORSHeaders(w)

	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}
	if r.Method != http.MethodPost {
		writeEnvelope(w, http.StatusMethodNotAllowed, failureBody("method not allowed"))
		return
	}

	req, err := DecodeRequest(r.Body)
	if err != nil {
		h.logger.Warn("invalid dispatch request", "error", err)
		writeEnvelope(w, http.StatusInternalServerError, failureBody(err.Error()))
		return
	}

	key := r.Header.Get(IdempotencyHeader)
	if h.guard == nil || key == "" {
		status, body := h.run(r, req)
		writeEnvelope(w, status, body)
		return
	}

	fingerprint := req.Fingerprint()
	stored, err := h.guard.Begin(r.Context(), key, fingerprint)
	switch {
	case errors.Is(err, ErrInFlight):
		writeEnvelope(w, http.StatusConflict, failureBody(err.Error()))
		return
	case errors.Is(err, ErrInvalidIdempotencyKey):
		writeEnvelope(w, http.StatusBadRequest, failureBody(err.Error()))
		return
	case errors.Is(err, ErrIdempotencyMismatch):
		writeEnvelope(w, http.StatusUnprocessableEntity, failureBody(err.Error()))
		return
	case err != nil:
		h.logger.Warn("idempotency guard unavailable, dispatching without it", "error", err)
		status, body := h.run(r, req)
		writeEnvelope(w, status, body)
		return
	case stored != nil:
		h.metrics.ObserveIdempotentReplay()
		h.logger.Info("replaying stored dispatch response", "appointment_id", req.AppointmentID)
		writeEnvelope(w, stored.Status, stored.Body)
		return
	}

	status, body, sent := h.runTracked(r, req)

	// The caller may have gone away; the reservation still has to be settled.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), guardWriteTimeout)
	defer cancel()
	if sent {
		if err := h.guard.Complete(ctx, key, StoredResponse{Status: status, Body: body, Fingerprint: fingerprint}); err != nil {
			h.logger.Warn("failed to store dispatch response", "error", err)
		}
	} else if err := h.guard.Release(ctx, key); err != nil {
		h.logger.Warn("failed to release idempotency key", "error", err)
	}
	writeEnvelope(w, status, body)
}

func (h *Handler) run(r *http.Request, req Request) (int, []byte) {
	status, body, _ := h.runTracked(r, req)
	return status, body
}

// runTracked also reports whether the provider accepted the message, which decides
// whether a retry with the same key may send again.
func (h *Handler) runTracked(r *http.Request, req Request) (int, []byte, bool) {
	res, err := h.dispatcher.Dispatch(r.Context(), req)
	if err != nil {
		return http.StatusInternalServerError, failureBody(err.Error()), sentBeforeFailure(err)
	}
	payload := res.Payload
	if len(payload) == 0 {
		payload = json.RawMessage("null")
	}
	body, _ := json.Marshal(successEnvelope{Success: true, Channel: req.Channel, NotificationResult: payload})
	return http.StatusOK, body, true
}

func sentBeforeFailure(err error) bool {
	switch notify.KindOf(err) {
	case notify.KindLedgerReadFailed, notify.KindLedgerWriteFailed:
		return true
	default:
		return false
	}
}

func failureBody(msg string) []byte {
	body, _ := json.Marshal(failureEnvelope{Error: msg, Success: false})
	return body
}

func writeEnvelope(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
