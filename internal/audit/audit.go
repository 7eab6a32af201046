// Package audit records security-relevant events. Recording is
// fire-and-forget: a failed write is logged and counted but never returned
// to the operation that triggered it.
package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/roomify/apiserver/internal/metrics"
	"github.com/roomify/apiserver/types"
)

const defaultTimeout = 3 * time.Second

// Sink persists or forwards a single audit entry.
type Sink interface {
	Write(ctx context.Context, entry types.AuditEntry) error
}

// Recorder stamps entries and hands them to a Sink with a bounded timeout.
type Recorder struct {
	sink    Sink
	timeout time.Duration
	logger  *slog.Logger
	now     func() time.Time
}

// Option customizes a Recorder.
type Option func(*Recorder)

func WithTimeout(timeout time.Duration) Option {
	return func(r *Recorder) {
		if timeout > 0 {
			r.timeout = timeout
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(r *Recorder) {
		if logger != nil {
			r.logger = logger
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(r *Recorder) {
		r.now = now
	}
}

func NewRecorder(sink Sink, opts ...Option) *Recorder {
	r := &Recorder{
		sink:    sink,
		timeout: defaultTimeout,
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Record appends an entry. It returns once the sink has accepted the entry,
// the timeout has elapsed or the write has failed; failures are swallowed.
func (r *Recorder) Record(ctx context.Context, actor, action, target string, metadata map[string]string) {
	if actor == "" {
		actor = types.ActorSystem
	}
	entry := types.AuditEntry{
		EventID:   uuid.NewString(),
		Actor:     actor,
		Action:    action,
		Target:    target,
		Metadata:  metadata,
		CreatedAt: r.now().UTC(),
	}

	// The decision being audited has already been made; a caller that goes
	// away must not drop its audit entry.
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
	defer cancel()

	if err := r.sink.Write(writeCtx, entry); err != nil {
		metrics.AuditWriteFailures.Inc()
		r.logger.Error("audit write failed",
			slog.String("event_id", entry.EventID),
			slog.String("actor", entry.Actor),
			slog.String("action", entry.Action),
			slog.String("target", entry.Target),
			slog.Any("error", err),
		)
	}
}

// RecordDecision forwards an authorization decision. The action is
// "<resource>.<operation>" and the target is AUTHORIZED or DENIED.
func (r *Recorder) RecordDecision(ctx context.Context, decision types.AuthorizationDecision) {
	outcome := types.OutcomeDenied
	level := slog.LevelWarn
	if decision.Authorized {
		outcome = types.OutcomeAuthorized
		level = slog.LevelInfo
	}
	department := decision.Department
	if department == "" {
		department = "N/A"
	}

	r.logger.Log(ctx, level, "authorization decision",
		slog.String("actor", decision.Actor),
		slog.String("resource", decision.Resource),
		slog.String("operation", decision.Operation),
		slog.Bool("authorized", decision.Authorized),
		slog.String("reason", decision.Reason),
		slog.String("department", department),
	)

	r.Record(ctx, decision.Actor, decision.Resource+"."+decision.Operation, outcome, map[string]string{
		"reason":     decision.Reason,
		"department": department,
	})
}
