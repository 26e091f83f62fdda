package interceptors

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"connectrpc.com/connect"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/FACorreiaa/family-finance-tracker/pkg/metrics"
)

// NewLoggingInterceptor logs every unary call with its duration and result code
// and records it in the RPC metrics.
func NewLoggingInterceptor(logger *slog.Logger, m *metrics.Metrics) connect.UnaryInterceptorFunc {
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			start := time.Now()
			procedure := req.Spec().Procedure

			resp, err := next(ctx, req)

			elapsed := time.Since(start)
			code := codeOf(err)
			m.ObserveRPC(procedure, code, elapsed)

			attrs := []any{
				slog.String("procedure", procedure),
				slog.String("code", code),
				slog.Duration("duration", elapsed),
				slog.String("peer", req.Peer().Addr),
			}
			if err != nil {
				attrs = append(attrs, slog.Any("error", err))
				if code == connect.CodeInternal.String() || code == connect.CodeUnknown.String() {
					logger.ErrorContext(ctx, "rpc failed", attrs...)
				} else {
					logger.WarnContext(ctx, "rpc rejected", attrs...)
				}
				return resp, err
			}

			logger.DebugContext(ctx, "rpc completed", attrs...)
			return resp, nil
		}
	}
}

// NewTracingInterceptor opens a server span per unary call
func NewTracingInterceptor() connect.UnaryInterceptorFunc {
	tracer := otel.Tracer("github.com/FACorreiaa/family-finance-tracker/rpc")

	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			ctx, span := tracer.Start(ctx, req.Spec().Procedure,
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(attribute.String("rpc.system", "connect_rpc")),
			)
			defer span.End()

			resp, err := next(ctx, req)
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, codeOf(err))
			}
			return resp, err
		}
	}
}

func codeOf(err error) string {
	if err == nil {
		return "ok"
	}
	var connectErr *connect.Error
	if errors.As(err, &connectErr) {
		return connectErr.Code().String()
	}
	return connect.CodeUnknown.String()
}
