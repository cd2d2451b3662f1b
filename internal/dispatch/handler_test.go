package dispatch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/careplus-reminders/internal/notify"
	"github.com/wolfman30/careplus-reminders/pkg/logging"
)

const smsBody = `{"appointmentId":"appt-1","channel":"sms","patientName":"Ana","patientPhone":"+15551234567","appointmentDate":"2024-05-01","appointmentTime":"10:00","appointmentType":"Checkup"}`

func post(h http.Handler, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/functions/v1/send-notification", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func assertCORS(t *testing.T, rec *httptest.ResponseRecorder) {
	t.Helper()
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "authorization, x-client-info, apikey, content-type, idempotency-key", rec.Header().Get("Access-Control-Allow-Headers"))
}

func TestHandler_Options(t *testing.T) {
	f := newFixture(t)
	h := NewHandler(f.svc, logging.New("error"))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/functions/v1/send-notification", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Body.String())
	assertCORS(t, rec)
	assert.Zero(t, f.sms.calls())
}

func TestHandler_SuccessEnvelope(t *testing.T) {
	f := newFixture(t)
	h := NewHandler(f.svc, logging.New("error"))

	rec := post(h, smsBody, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assertCORS(t, rec)
	assert.JSONEq(t, `{"success":true,"channel":"sms","notificationResult":{"sid":"SM1"}}`, rec.Body.String())
}

func TestHandler_FailureEnvelopes(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{"malformed json", `{"appointmentId":`, "invalid request body"},
		{"unknown channel", `{"appointmentId":"appt-1","channel":"fax","patientName":"Ana"}`, "invalid channel"},
		{"missing appointment id", `{"channel":"sms","patientName":"Ana","patientPhone":"+1555"}`, "appointmentId is required"},
		{"missing phone", `{"appointmentId":"appt-1","channel":"whatsapp","patientName":"Ana","patientPhone":null}`, "missing contact information for whatsapp notification to Ana"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			h := NewHandler(f.svc, logging.New("error"))

			rec := post(h, tt.body, nil)
			assert.Equal(t, http.StatusInternalServerError, rec.Code)
			assertCORS(t, rec)
			assert.Contains(t, rec.Body.String(), `"success":false`)
			assert.Contains(t, rec.Body.String(), tt.wantErr)
			assert.Zero(t, f.whatsapp.calls()+f.sms.calls())
		})
	}
}

func TestHandler_ProviderErrorEnvelope(t *testing.T) {
	f := newFixture(t)
	f.sms.err = &notify.Error{Kind: notify.KindProviderRequestFailed, Channel: notify.ChannelSMS, Provider: "twilio", Status: 400, Message: "Invalid 'To' Phone Number"}
	h := NewHandler(f.svc, logging.New("error"))

	rec := post(h, smsBody, nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"success":false,"error":"twilio sms error: status 400: Invalid 'To' Phone Number"}`, rec.Body.String())
}

func TestHandler_MethodNotAllowed(t *testing.T) {
	f := newFixture(t)
	h := NewHandler(f.svc, logging.New("error"))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/functions/v1/send-notification", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assertCORS(t, rec)
}

func newGuard(t *testing.T) (*miniredis.Miniredis, *IdempotencyGuard) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, NewIdempotencyGuard(client, time.Hour)
}

func TestHandler_IdempotencyKeyReplaysStoredResponse(t *testing.T) {
	f := newFixture(t)
	mr, guard := newGuard(t)
	h := NewHandler(f.svc, logging.New("error"), WithIdempotency(guard))

	headers := map[string]string{IdempotencyHeader: "reminder-123"}
	first := post(h, smsBody, headers)
	second := post(h, smsBody, headers)

	assert.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, http.StatusOK, second.Code)
	assert.JSONEq(t, first.Body.String(), second.Body.String())
	assert.Equal(t, 1, f.sms.calls())

	count, _ := f.repo.ReminderCount(context.Background(), apptID)
	assert.Equal(t, 1, count)
	assert.True(t, mr.Exists("careplus:dispatch:idem:reminder-123"))
	assert.Equal(t, time.Hour, mr.TTL("careplus:dispatch:idem:reminder-123"))
}

func TestHandler_IdempotencyKeyReleasedWhenNothingWasSent(t *testing.T) {
	f := newFixture(t)
	mr, guard := newGuard(t)
	h := NewHandler(f.svc, logging.New("error"), WithIdempotency(guard))
	f.sms.err = &notify.Error{Kind: notify.KindProviderRequestFailed, Channel: notify.ChannelSMS, Provider: "twilio", Status: 503}

	headers := map[string]string{IdempotencyHeader: "retry-me"}
	rec := post(h, smsBody, headers)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.False(t, mr.Exists("careplus:dispatch:idem:retry-me"))

	f.sms.err = nil
	rec = post(h, smsBody, headers)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2, f.sms.calls())
}

func TestHandler_IdempotencyKeyInFlight(t *testing.T) {
	f := newFixture(t)
	mr, guard := newGuard(t)
	h := NewHandler(f.svc, logging.New("error"), WithIdempotency(guard))
	require.NoError(t, mr.Set("careplus:dispatch:idem:busy", idempotencyInFlight))

	rec := post(h, smsBody, map[string]string{IdempotencyHeader: "busy"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Zero(t, f.sms.calls())
}

func TestHandler_WithoutKeyGuardIsBypassed(t *testing.T) {
	f := newFixture(t)
	_, guard := newGuard(t)
	h := NewHandler(f.svc, logging.New("error"), WithIdempotency(guard))

	post(h, smsBody, nil)
	post(h, smsBody, nil)
	assert.Equal(t, 2, f.sms.calls())
}

func TestHandler_RedisDownFailsOpen(t *testing.T) {
	f := newFixture(t)
	mr, guard := newGuard(t)
	mr.Close()
	h := NewHandler(f.svc, logging.New("error"), WithIdempotency(guard))

	rec := post(h, smsBody, map[string]string{IdempotencyHeader: "k"})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, f.sms.calls())
}

func TestDecodeRequest(t *testing.T) {
	req, err := DecodeRequest(strings.NewReader(`{"appointmentId":" appt-1 ","channel":"EMAIL","patientName":"Ana","patientEmail":" ana@example.com ","appointmentDate":"2024-05-01","appointmentTime":"10:00","appointmentType":"Checkup"}`))
	require.NoError(t, err)
	assert.Equal(t, "appt-1", req.AppointmentID)
	assert.Equal(t, notify.ChannelEmail, req.Channel)
	assert.Equal(t, "ana@example.com", req.Recipient())
	assert.Equal(t, "EMAIL reminder sent to Ana for appointment on 2024-05-01 at 10:00", AuditDetails(req))
}

func TestIdempotencyGuard_InvalidKey(t *testing.T) {
	_, guard := newGuard(t)
	_, err := guard.Begin(context.Background(), strings.Repeat("k", maxIdempotencyKeyLen+1), "")
	assert.ErrorIs(t, err, ErrInvalidIdempotencyKey)
	assert.Nil(t, NewIdempotencyGuard(nil, time.Minute))
}

type dispatcherFunc func(ctx context.Context, req Request) (notify.Result, error)

func (fn dispatcherFunc) Dispatch(ctx context.Context, req Request) (notify.Result, error) {
	return fn(ctx, req)
}

func TestHandler_IdempotencyKeyReleasedWhenClientGoesAway(t *testing.T) {
	f := newFixture(t)
	mr, guard := newGuard(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	dropped := NewHandler(dispatcherFunc(func(ctx context.Context, req Request) (notify.Result, error) {
		cancel()
		return notify.Result{}, &notify.Error{Kind: notify.KindProviderRequestFailed, Channel: req.Channel, Provider: "twilio", Err: ctx.Err()}
	}), logging.New("error"), WithIdempotency(guard))

	req := httptest.NewRequest(http.MethodPost, "/functions/v1/send-notification", strings.NewReader(smsBody)).WithContext(ctx)
	req.Header.Set(IdempotencyHeader, "dropped")
	rec := httptest.NewRecorder()
	dropped.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.False(t, mr.Exists("careplus:dispatch:idem:dropped"))

	retry := post(NewHandler(f.svc, logging.New("error"), WithIdempotency(guard)), smsBody, map[string]string{IdempotencyHeader: "dropped"})
	assert.Equal(t, http.StatusOK, retry.Code)
	assert.Equal(t, 1, f.sms.calls())
}

func TestIdempotencyGuard_ReservationExpiresBeforeStoredResponse(t *testing.T) {
	mr, guard := newGuard(t)

	stored, err := guard.Begin(context.Background(), "fresh", smsRequest().Fingerprint())
	require.NoError(t, err)
	assert.Nil(t, stored)
	assert.Equal(t, defaultInFlightTTL, mr.TTL("careplus:dispatch:idem:fresh"))

	mr.FastForward(defaultInFlightTTL + time.Second)
	stored, err = guard.Begin(context.Background(), "fresh", smsRequest().Fingerprint())
	require.NoError(t, err)
	assert.Nil(t, stored)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	short := NewIdempotencyGuard(client, 30*time.Second)
	_, err = short.Begin(context.Background(), "short", "")
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, mr.TTL("careplus:dispatch:idem:short"))
}

func TestHandler_IdempotencyKeyReusedForDifferentRequest(t *testing.T) {
	f := newFixture(t)
	mr, guard := newGuard(t)
	h := NewHandler(f.svc, logging.New("error"), WithIdempotency(guard))

	headers := map[string]string{IdempotencyHeader: "shared"}
	first := post(h, smsBody, headers)
	require.Equal(t, http.StatusOK, first.Code)

	emailBody := `{"appointmentId":"appt-1","channel":"email","patientName":"Ana","patientEmail":"ana@example.com","appointmentDate":"2024-05-01","appointmentTime":"10:00","appointmentType":"Checkup"}`
	second := post(h, emailBody, headers)
	assert.Equal(t, http.StatusUnprocessableEntity, second.Code)
	assertCORS(t, second)
	assert.Contains(t, second.Body.String(), `"success":false`)
	assert.Zero(t, f.email.calls())

	require.NoError(t, mr.Set("careplus:dispatch:idem:busy-other", idempotencyInFlight+":someone-else"))
	rec := post(h, smsBody, map[string]string{IdempotencyHeader: "busy-other"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, 1, f.sms.calls())
}

func TestRequestFingerprint(t *testing.T) {
	a := smsRequest()
	b := smsRequest()
	assert.Equal(t, a.Fingerprint(), b.Fingerprint())

	b.Channel = notify.ChannelWhatsApp
	assert.NotEqual(t, a.Fingerprint(), b.Fingerprint())

	c := smsRequest()
	c.AppointmentID = "other"
	assert.NotEqual(t, a.Fingerprint(), c.Fingerprint())
}

func TestCORSAndWriteFailure(t *testing.T) {
	rec := httptest.NewRecorder()
	CORS(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)
	assertCORS(t, rec)

	rec = httptest.NewRecorder()
	WriteFailure(rec, httptest.NewRequest(http.MethodPost, "/", nil), http.StatusTooManyRequests, "rate limit exceeded")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assertCORS(t, rec)
	assert.JSONEq(t, `{"success":false,"error":"rate limit exceeded"}`, rec.Body.String())
}
