package lifecycle

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	apperr "github.com/17ms/zeronote/pkg/errors"
)

// tracerName is the OpenTelemetry instrumentation scope for lifecycle
// spans.
const tracerName = "github.com/17ms/zeronote/pkg/lifecycle"

// Hook runs during Start or Stop. A non-nil error moves the service to
// [StateFailed].
type Hook func(ctx context.Context) error

// Check reports the health of one dependency for [Service.Health].
type Check func(ctx context.Context) error

// StateChangeHandler observes transitions. Handlers run synchronously
// under the state mutex and must not call back into the service.
type StateChangeHandler func(old, new State)

// namedCheck pairs a check with the name reported when it fails.
type namedCheck struct {
	name  string
	check Check
}

// Info is a point-in-time snapshot served by the health endpoint.
type Info struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	State   State  `json:"state"`

	// StartedAt and Uptime are set only while the service is running.
	StartedAt *time.Time    `json:"started_at,omitempty"`
	Uptime    time.Duration `json:"uptime,omitempty"`
}

// Service tracks the lifecycle of the running process. It is safe for
// concurrent use.
type Service struct {
	name    string
	version string

	mu        sync.RWMutex
	state     State
	startedAt *time.Time

	tracer trace.Tracer
	logger *slog.Logger

	onStart  []Hook
	onStop   []Hook
	checks   []namedCheck
	handlers []StateChangeHandler
}

// ===========================================================================
// Options
// ===========================================================================

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger; slog.Default() is used otherwise.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithTracerProvider records lifecycle spans on tp instead of the global
// provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *Service) {
		if tp != nil {
			s.tracer = tp.Tracer(tracerName)
		}
	}
}

// WithOnStart appends a start hook. Hooks run in registration order.
func WithOnStart(h Hook) Option {
	return func(s *Service) { s.onStart = append(s.onStart, h) }
}

// WithOnStop appends a stop hook. Stop hooks run in reverse registration
// order so that resources opened first are released last.
func WithOnStop(h Hook) Option {
	return func(s *Service) { s.onStop = append(s.onStop, h) }
}

// WithHealthCheck registers a dependency check reported by Health.
func WithHealthCheck(name string, c Check) Option {
	return func(s *Service) { s.checks = append(s.checks, namedCheck{name: name, check: c}) }
}

// OnStateChange registers a transition observer.
func OnStateChange(h StateChangeHandler) Option {
	return func(s *Service) { s.handlers = append(s.handlers, h) }
}

// ===========================================================================
// Service
// ===========================================================================

// New returns a Service in [StateUnknown]. Name and version are required
// and appear on every span and log line.
func New(name, version string, opts ...Option) (*Service, error) {
	if name == "" {
		return nil, apperr.New(apperr.CodeValidation, "lifecycle: service name must not be empty")
	}
	if version == "" {
		return nil, apperr.New(apperr.CodeValidation, "lifecycle: service version must not be empty")
	}
	s := &Service{
		name:    name,
		version: version,
		state:   StateUnknown,
		tracer:  otel.Tracer(tracerName),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// State returns the current state.
func (s *Service) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Info returns a snapshot of the service identity and uptime. /healthz
// serves it next to the health status.
func (s *Service) Info() Info {
	s.mu.RLock()
	defer s.mu.RUnlock()

	info := Info{Name: s.name, Version: s.version, State: s.state}
	if s.startedAt != nil && s.state == StateRunning {
		t := *s.startedAt
		info.StartedAt = &t
		info.Uptime = time.Since(t)
	}
	return info
}

// SetState moves the service to next, rejecting transitions outside the
// matrix with [apperr.CodeConflict].
func (s *Service) SetState(next State) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	old := s.state
	if !ValidTransition(old, next) {
		return apperr.Newf(apperr.CodeConflict,
			"lifecycle: invalid state transition from %q to %q", old, next)
	}
	s.state = next

	// A panicking handler must not leave the mutex held.
	for _, h := range s.handlers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					s.logger.Error("lifecycle: state change handler panicked",
						"panic", r,
						"old_state", string(old),
						"new_state", string(next),
					)
				}
			}()
			h(old, next)
		}()
	}
	return nil
}

// Health reports nil when the service is running and every registered
// check passes. Otherwise it returns a [apperr.CodeUnavailable] error
// whose details name the failing checks.
func (s *Service) Health(ctx context.Context) error {
	if state := s.State(); state != StateRunning {
		return apperr.Newf(apperr.CodeUnavailable,
			"lifecycle: service is not running, current state is %q", state)
	}

	var failed map[string]any
	for _, c := range s.checks {
		if err := c.check(ctx); err != nil {
			if failed == nil {
				failed = make(map[string]any)
			}
			failed[c.name] = err.Error()
		}
	}
	if failed != nil {
		return apperr.New(apperr.CodeUnavailableDependency,
			"lifecycle: dependency check failed").WithDetails(failed)
	}
	return nil
}

// Start runs the start hooks between Starting and Running.
func (s *Service) Start(ctx context.Context) error {
	ctx, span := s.startSpan(ctx, "lifecycle.Start")
	defer span.End()

	if err := ctx.Err(); err != nil {
		return fail(span, apperr.Wrap(err, apperr.CodeTimeout, "lifecycle: start canceled before execution"))
	}
	if err := s.SetState(StateStarting); err != nil {
		return fail(span, err)
	}

	s.logger.InfoContext(ctx, "lifecycle: starting service", "service", s.name, "version", s.version)

	for _, h := range s.onStart {
		if err := h(ctx); err != nil {
			s.logger.ErrorContext(ctx, "lifecycle: start hook failed", "service", s.name, "error", err)
			_ = s.SetState(StateFailed)
			return fail(span, apperr.Wrap(err, apperr.CodeInternal, "lifecycle: start hook failed"))
		}
	}

	if err := s.SetState(StateRunning); err != nil {
		return fail(span, err)
	}
	now := time.Now().UTC()
	s.mu.Lock()
	s.startedAt = &now
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "lifecycle: service started", "service", s.name)
	span.SetStatus(codes.Ok, "")
	return nil
}

// Stop runs the stop hooks between Stopping and Stopped. Calling Stop on
// a terminal service is a no-op. Every hook runs even if an earlier one
// fails; the first failure is returned.
func (s *Service) Stop(ctx context.Context) error {
	ctx, span := s.startSpan(ctx, "lifecycle.Stop")
	defer span.End()

	if s.State().IsTerminal() {
		span.SetStatus(codes.Ok, "")
		return nil
	}
	if err := s.SetState(StateStopping); err != nil {
		return fail(span, err)
	}

	s.logger.InfoContext(ctx, "lifecycle: stopping service", "service", s.name)

	var firstErr error
	for i := len(s.onStop) - 1; i >= 0; i-- {
		if err := s.onStop[i](ctx); err != nil {
			s.logger.ErrorContext(ctx, "lifecycle: stop hook failed", "service", s.name, "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	if firstErr != nil {
		_ = s.SetState(StateFailed)
		return fail(span, apperr.Wrap(firstErr, apperr.CodeInternal, "lifecycle: stop hook failed"))
	}

	if err := s.SetState(StateStopped); err != nil {
		return fail(span, err)
	}
	s.mu.Lock()
	s.startedAt = nil
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "lifecycle: service stopped", "service", s.name)
	span.SetStatus(codes.Ok, "")
	return nil
}

// startSpan opens a lifecycle span tagged with the service identity.
func (s *Service) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("service.name", s.name),
			attribute.String("service.version", s.version),
		),
	)
}

// fail records err on span and returns it.
func fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
