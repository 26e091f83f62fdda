package api

import (
	"context"
	"encoding/json"
	"net/http"

	"connectrpc.com/connect"

	"github.com/FACorreiaa/family-finance-tracker/internal/domain/auth/handler"
	financehandler "github.com/FACorreiaa/family-finance-tracker/internal/domain/finance/handler"
	recoveryhandler "github.com/FACorreiaa/family-finance-tracker/internal/domain/recovery/handler"
	"github.com/FACorreiaa/family-finance-tracker/pkg/interceptors"
	"github.com/FACorreiaa/family-finance-tracker/pkg/middleware"
	"github.com/FACorreiaa/family-finance-tracker/pkg/rpc"
)

// Routes mounts every service behind the interceptor chain, plus the health
// and metrics endpoints, wrapped in rate limiting and CORS.
func (d *Dependencies) Routes(limiter *middleware.RateLimiter) http.Handler {
	validate := func(ctx context.Context, token string) (interceptors.Principal, error) {
		id, err := d.AuthService.ValidateAccessToken(ctx, token)
		if err != nil {
			return interceptors.Principal{}, err
		}
		return interceptors.Principal{UserID: id.UID, Email: id.Email}, nil
	}

	opts := []connect.HandlerOption{
		rpc.WithJSON(),
		connect.WithInterceptors(
			interceptors.NewTracingInterceptor(),
			interceptors.NewLoggingInterceptor(d.Logger, d.Metrics),
			interceptors.NewAuthInterceptor(validate, handler.PublicProcedures...),
		),
	}

	mux := http.NewServeMux()
	mux.Handle(handler.NewAuthServiceHandler(d.AuthHandler, opts...))
	mux.Handle(financehandler.NewFinanceServiceHandler(d.FinanceHandler, opts...))
	mux.Handle(recoveryhandler.NewRecoveryServiceHandler(d.RecoveryHandler, opts...))

	mux.HandleFunc("GET /healthz", d.healthz)
	if d.Config.Observability.MetricsEnabled {
		mux.Handle("GET /metrics", d.Metrics.Handler())
	}

	return middleware.CORS(d.Config.Server.AllowedOrigins, limiter.Middleware(mux))
}

func (d *Dependencies) healthz(w http.ResponseWriter, r *http.Request) {
	status := map[string]any{
		"status":     "ok",
		"workspaces": len(d.Registry.Loaded()),
	}
	code := http.StatusOK
	if d.DB != nil {
		if err := d.DB.Pool.Ping(r.Context()); err != nil {
			status["status"] = "degraded"
			status["database"] = err.Error()
			code = http.StatusServiceUnavailable
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(status)
}
