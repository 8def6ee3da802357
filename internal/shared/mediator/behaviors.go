package mediator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Validatable requests are checked by the Validation behavior before the
// handler runs.
type Validatable interface {
	Validate() error
}

// Logging records the outcome and latency of every dispatched request.
func Logging(logger *slog.Logger) Behavior {
	if logger == nil {
		logger = slog.Default()
	}
	return func(ctx context.Context, req Request, next Next) (any, error) {
		info, _ := RouteFromContext(ctx)
		started := time.Now()
		logger.Debug("request dispatch started",
			"event", "mediator_dispatch_started",
			"module", "internal/shared/mediator",
			"layer", "application",
			"request", req.RequestName(),
			"kind", info.Kind,
		)
		out, err := next(ctx)
		elapsed := time.Since(started)
		if err != nil {
			level := slog.LevelError
			if IsPermanent(err) || errors.Is(err, context.Canceled) {
				level = slog.LevelWarn
			}
			logger.Log(ctx, level, "request dispatch failed",
				"event", "mediator_dispatch_failed",
				"module", "internal/shared/mediator",
				"layer", "application",
				"request", req.RequestName(),
				"kind", info.Kind,
				"duration_ms", elapsed.Milliseconds(),
				"error", err.Error(),
			)
			return out, err
		}
		logger.Info("request dispatched",
			"event", "mediator_dispatch_completed",
			"module", "internal/shared/mediator",
			"layer", "application",
			"request", req.RequestName(),
			"kind", info.Kind,
			"duration_ms", elapsed.Milliseconds(),
		)
		return out, nil
	}
}

// Validation rejects requests whose Validate method fails. Failures reported
// as ozzo-validation field errors are kept per field.
func Validation() Behavior {
	return func(ctx context.Context, req Request, next Next) (any, error) {
		if v, ok := req.(Validatable); ok {
			if err := v.Validate(); err != nil {
				return nil, toValidationError(req.RequestName(), err)
			}
		}
		return next(ctx)
	}
}

// Performance warns when a request takes longer than threshold.
func Performance(logger *slog.Logger, threshold time.Duration) Behavior {
	if logger == nil {
		logger = slog.Default()
	}
	if threshold <= 0 {
		threshold = 500 * time.Millisecond
	}
	return func(ctx context.Context, req Request, next Next) (any, error) {
		started := time.Now()
		out, err := next(ctx)
		if elapsed := time.Since(started); elapsed > threshold {
			logger.Warn("slow request",
				"event", "mediator_slow_request",
				"module", "internal/shared/mediator",
				"layer", "application",
				"request", req.RequestName(),
				"duration_ms", elapsed.Milliseconds(),
				"threshold_ms", threshold.Milliseconds(),
			)
		}
		return out, err
	}
}

// Recovery converts a handler panic into an error wrapping ErrHandlerPanic.
func Recovery(logger *slog.Logger) Behavior {
	if logger == nil {
		logger = slog.Default()
	}
	return func(ctx context.Context, req Request, next Next) (out any, err error) {
		defer func() {
			if recovered := recover(); recovered != nil {
				logger.Error("request handler panicked",
					"event", "mediator_handler_panic",
					"module", "internal/shared/mediator",
					"layer", "application",
					"request", req.RequestName(),
					"panic", fmt.Sprint(recovered),
				)
				out = nil
				err = fmt.Errorf("%w: %s: %v", ErrHandlerPanic, req.RequestName(), recovered)
			}
		}()
		return next(ctx)
	}
}

func toValidationError(name string, err error) error {
	if existing, ok := AsValidationError(err); ok {
		return existing
	}
	var internal validation.InternalError
	if errors.As(err, &internal) {
		return err
	}

	out := &ValidationError{Request: name}
	var fields validation.Errors
	if errors.As(err, &fields) {
		keys := make([]string, 0, len(fields))
		for key := range fields {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			if fields[key] == nil {
				continue
			}
			out.Failures = append(out.Failures, FieldError{Field: key, Message: fields[key].Error()})
		}
		return out
	}
	out.Failures = []FieldError{{Message: err.Error()}}
	return out
}
