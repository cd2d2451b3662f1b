package dispatch

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/careplus-reminders/internal/appointments"
	"github.com/wolfman30/careplus-reminders/internal/audit"
	"github.com/wolfman30/careplus-reminders/internal/notify"
	"github.com/wolfman30/careplus-reminders/internal/observability/metrics"
	"github.com/wolfman30/careplus-reminders/pkg/logging"
)

var tracer = otel.Tracer("careplus.internal.dispatch")

// Dispatcher runs the send pipeline for one request.
type Dispatcher interface {
	Dispatch(ctx context.Context, req Request) (notify.Result, error)
}

// Service validates, sends, updates the reminder ledger and appends to the audit log.
type Service struct {
	senders notify.Senders
	ledger  appointments.Ledger
	audit   audit.Logger
	metrics *metrics.DispatchMetrics
	logger  *logging.Logger
	now     func() time.Time
}

// Option configures a Service.
type Option func(*Service)

func WithMetrics(m *metrics.DispatchMetrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func NewService(senders notify.Senders, ledger appointments.Ledger, auditLog audit.Logger, logger *logging.Logger, opts ...Option) *Service {
	if ledger == nil {
		panic("dispatch: ledger required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	s := &Service{
		senders: senders,
		ledger:  ledger,
		audit:   auditLog,
		logger:  logger,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ Dispatcher = (*Service)(nil)

// Dispatch sends one reminder. A send is never compensated: if the ledger update fails
// afterwards the message has still gone out and the error is returned.
func (s *Service) Dispatch(ctx context.Context, req Request) (notify.Result, error) {
	ctx, span := tracer.Start(ctx, "dispatch.send", trace.WithAttributes(
		attribute.String("careplus.channel", string(req.Channel)),
		attribute.String("careplus.appointment_id", req.AppointmentID),
	))
	defer span.End()

	res, err := s.dispatch(ctx, req)
	if err != nil {
		span.RecordError(err)
		s.metrics.ObserveDispatch(string(req.Channel), outcome(err))
		s.logger.Error("reminder dispatch failed",
			"error", err,
			"appointment_id", req.AppointmentID,
			"channel", req.Channel,
			"kind", notify.KindOf(err),
		)
		return notify.Result{}, err
	}
	s.metrics.ObserveDispatch(string(req.Channel), "success")
	s.logger.Info("reminder dispatched", "appointment_id", req.AppointmentID, "channel", req.Channel, "provider", res.Provider)
	return res, nil
}

func (s *Service) dispatch(ctx context.Context, req Request) (notify.Result, error) {
	if err := ValidateContact(req.Channel, req.PatientName, req.PatientPhone, req.PatientEmail); err != nil {
		return notify.Result{}, err
	}

	sender, err := s.senders.For(req.Channel)
	if err != nil {
		return notify.Result{}, err
	}

	started := s.now()
	res, err := sender.Send(ctx, req.message())
	s.metrics.ObserveProviderLatency(string(req.Channel), providerOf(res, err), s.now().Sub(started).Seconds())
	if err != nil {
		return notify.Result{}, err
	}

	count, err := s.ledger.ReminderCount(ctx, req.AppointmentID)
	if err != nil {
		msg := "failed to read reminder count"
		if errors.Is(err, appointments.ErrNotFound) {
			msg = "appointment " + req.AppointmentID + " not found"
		}
		return notify.Result{}, &notify.Error{Kind: notify.KindLedgerReadFailed, Channel: req.Channel, Message: msg, Err: err}
	}
	if err := s.ledger.RecordReminderSent(ctx, req.AppointmentID, count+1, s.now()); err != nil {
		return notify.Result{}, &notify.Error{Kind: notify.KindLedgerWriteFailed, Channel: req.Channel, Message: "failed to update reminder", Err: err}
	}

	s.appendAudit(ctx, req)
	return res, nil
}

// appendAudit is best effort: failures go to the logger and a counter only.
func (s *Service) appendAudit(ctx context.Context, req Request) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Append(ctx, req.Channel.AuditAction(), AuditDetails(req)); err != nil {
		s.metrics.ObserveAuditFailure(string(req.Channel))
		s.logger.Warn("audit log append failed", "error", err, "appointment_id", req.AppointmentID, "channel", req.Channel)
	}
}

func providerOf(res notify.Result, err error) string {
	var nerr *notify.Error
	if errors.As(err, &nerr) && nerr.Provider != "" {
		return nerr.Provider
	}
	if res.Provider != "" {
		return res.Provider
	}
	return "unknown"
}

func outcome(err error) string {
	if kind := notify.KindOf(err); kind != "" {
		return string(kind)
	}
	return "internal"
}
