// Package handler exposes legacy data recovery as the RecoveryService.
package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"connectrpc.com/connect"

	"github.com/FACorreiaa/family-finance-tracker/internal/domain/auth"
	"github.com/FACorreiaa/family-finance-tracker/internal/domain/recovery"
	"github.com/FACorreiaa/family-finance-tracker/internal/domain/workspace"
)

const RecoveryServiceName = "finance.v1.RecoveryService"

const (
	ScanProcedure          = "/" + RecoveryServiceName + "/Scan"
	ImportProcedure        = "/" + RecoveryServiceName + "/Import"
	GetStatusProcedure     = "/" + RecoveryServiceName + "/GetStatus"
	ResetProcedure         = "/" + RecoveryServiceName + "/Reset"
	GetBackupProcedure     = "/" + RecoveryServiceName + "/GetBackup"
	RestoreBackupProcedure = "/" + RecoveryServiceName + "/RestoreBackup"
)

type ScanRequest struct{}

// CollectionSummary is what a scan found in one legacy collection
type CollectionSummary struct {
	Name           string                  `json:"name"`
	Documents      int                     `json:"documents"`
	Classification recovery.Classification `json:"classification"`
	Importable     bool                    `json:"importable"`
}

type ScanResponse struct {
	State       recovery.State          `json:"state"`
	Found       bool                    `json:"found"`
	Collections []CollectionSummary     `json:"collections"`
	Matches     []recovery.Match        `json:"matches"`
	Failures    []recovery.ProbeFailure `json:"failures,omitempty"`
}

type ImportRequest struct{}

type ImportResponse struct {
	Report *recovery.Report `json:"report"`
}

type GetStatusRequest struct{}

type GetStatusResponse struct {
	State  recovery.State   `json:"state"`
	Report *recovery.Report `json:"report,omitempty"`
}

type ResetRequest struct{}

type ResetResponse struct {
	State recovery.State `json:"state"`
}

type GetBackupRequest struct{}

type BackupSummary struct {
	Timestamp    time.Time `json:"timestamp"`
	Transactions int       `json:"transactions"`
	Budgets      int       `json:"budgets"`
	Goals        int       `json:"goals"`
}

type GetBackupResponse struct {
	Found  bool           `json:"found"`
	Backup *BackupSummary `json:"backup,omitempty"`
}

type RestoreBackupRequest struct{}

type RestoreBackupResponse struct {
	Restored BackupSummary `json:"restored"`
}

// RecoveryHandler keeps one recovery session per user
type RecoveryHandler struct {
	orchestrator *recovery.Orchestrator
	restorer     *recovery.Restorer
	registry     *workspace.Registry
	logger       *slog.Logger

	mu       sync.Mutex
	sessions map[string]*recovery.Session
}

func NewRecoveryHandler(
	orchestrator *recovery.Orchestrator,
	restorer *recovery.Restorer,
	registry *workspace.Registry,
	logger *slog.Logger,
) *RecoveryHandler {
	return &RecoveryHandler{
		orchestrator: orchestrator,
		restorer:     restorer,
		registry:     registry,
		logger:       logger,
		sessions:     make(map[string]*recovery.Session),
	}
}

// NewRecoveryServiceHandler mounts the handler's procedures and returns the path prefix to route
func NewRecoveryServiceHandler(h *RecoveryHandler, opts ...connect.HandlerOption) (string, http.Handler) {
	mux := http.NewServeMux()
	mux.Handle(ScanProcedure, connect.NewUnaryHandler(ScanProcedure, h.Scan, opts...))
	mux.Handle(ImportProcedure, connect.NewUnaryHandler(ImportProcedure, h.Import, opts...))
	mux.Handle(GetStatusProcedure, connect.NewUnaryHandler(GetStatusProcedure, h.GetStatus, opts...))
	mux.Handle(ResetProcedure, connect.NewUnaryHandler(ResetProcedure, h.Reset, opts...))
	mux.Handle(GetBackupProcedure, connect.NewUnaryHandler(GetBackupProcedure, h.GetBackup, opts...))
	mux.Handle(RestoreBackupProcedure, connect.NewUnaryHandler(RestoreBackupProcedure, h.RestoreBackup, opts...))
	return "/" + RecoveryServiceName + "/", mux
}

func (h *RecoveryHandler) session(ctx context.Context) (*recovery.Session, auth.Identity, error) {
	id, ok := auth.IdentityFromContext(ctx)
	if !ok {
		return nil, auth.Identity{}, connect.NewError(connect.CodeUnauthenticated, recovery.ErrUnauthenticated)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	s, ok := h.sessions[id.UID]
	if !ok {
		s = recovery.NewSession(h.orchestrator, id)
		h.sessions[id.UID] = s
	}
	return s, id, nil
}

// Scan probes the legacy store for the caller's data. A finished or
// reviewed session is reset first so a scan can always be repeated.
func (h *RecoveryHandler) Scan(
	ctx context.Context,
	req *connect.Request[ScanRequest],
) (*connect.Response[ScanResponse], error) {
	s, id, err := h.session(ctx)
	if err != nil {
		return nil, err
	}

	if s.State() != recovery.StateIdle {
		if err := s.Reset(); err != nil {
			return nil, toConnectError(err)
		}
	}

	scan, err := s.Scan(ctx)
	if err != nil {
		h.logger.Error("recovery scan failed", slog.String("user_id", id.UID), slog.Any("error", err))
		return nil, toConnectError(err)
	}

	resp := &ScanResponse{
		State:       s.State(),
		Found:       scan.Probe.Found,
		Collections: make([]CollectionSummary, 0, len(scan.Classifications)),
		Matches:     scan.Probe.Matches,
		Failures:    scan.Probe.Failures,
	}
	for _, name := range scan.Probe.Collections() {
		c := scan.Classifications[name]
		resp.Collections = append(resp.Collections, CollectionSummary{
			Name:           name,
			Documents:      len(scan.Probe.Data[name]),
			Classification: c,
			Importable:     c.Importable(),
		})
	}
	sort.SliceStable(resp.Collections, func(i, j int) bool { return resp.Collections[i].Name < resp.Collections[j].Name })
	return connect.NewResponse(resp), nil
}

// Import writes the reviewed scan into the caller's workspace
func (h *RecoveryHandler) Import(
	ctx context.Context,
	req *connect.Request[ImportRequest],
) (*connect.Response[ImportResponse], error) {
	s, id, err := h.session(ctx)
	if err != nil {
		return nil, err
	}

	ws, err := h.registry.Get(ctx, id.UID)
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}

	report, err := s.Import(ctx, recovery.Targets{
		Transactions: ws.Transactions,
		Budgets:      ws.Budgets,
		Goals:        ws.Goals,
		Categories:   ws.Categories,
	})
	if err != nil {
		return nil, toConnectError(err)
	}

	if _, err := ws.RefreshBudgets(ctx); err != nil {
		h.logger.Warn("failed to refresh budgets after recovery",
			slog.String("user_id", id.UID),
			slog.Any("error", err),
		)
	}
	return connect.NewResponse(&ImportResponse{Report: report}), nil
}

// GetStatus reports the session state and the last import report
func (h *RecoveryHandler) GetStatus(
	ctx context.Context,
	req *connect.Request[GetStatusRequest],
) (*connect.Response[GetStatusResponse], error) {
	s, _, err := h.session(ctx)
	if err != nil {
		return nil, err
	}
	return connect.NewResponse(&GetStatusResponse{State: s.State(), Report: s.LastReport()}), nil
}

// Reset returns the session to idle
func (h *RecoveryHandler) Reset(
	ctx context.Context,
	req *connect.Request[ResetRequest],
) (*connect.Response[ResetResponse], error) {
	s, _, err := h.session(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.Reset(); err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&ResetResponse{State: s.State()}), nil
}

// GetBackup describes the snapshot taken before the last import
func (h *RecoveryHandler) GetBackup(
	ctx context.Context,
	req *connect.Request[GetBackupRequest],
) (*connect.Response[GetBackupResponse], error) {
	_, id, err := h.session(ctx)
	if err != nil {
		return nil, err
	}

	snap, err := h.restorer.Load(ctx, id.UID)
	if errors.Is(err, recovery.ErrNoBackup) {
		return connect.NewResponse(&GetBackupResponse{Found: false}), nil
	}
	if err != nil {
		return nil, toConnectError(err)
	}
	summary := summarize(snap)
	return connect.NewResponse(&GetBackupResponse{Found: true, Backup: &summary}), nil
}

// RestoreBackup replaces transactions, budgets and goals with the snapshot
func (h *RecoveryHandler) RestoreBackup(
	ctx context.Context,
	req *connect.Request[RestoreBackupRequest],
) (*connect.Response[RestoreBackupResponse], error) {
	_, id, err := h.session(ctx)
	if err != nil {
		return nil, err
	}

	ws, err := h.registry.Get(ctx, id.UID)
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}

	snap, err := h.restorer.Restore(ctx, id.UID, recovery.RestoreTargets{
		Transactions: ws.Transactions,
		Budgets:      ws.Budgets,
		Goals:        ws.Goals,
	})
	if err != nil {
		return nil, toConnectError(err)
	}
	if _, err := ws.RefreshBudgets(ctx); err != nil {
		h.logger.Warn("failed to refresh budgets after restore",
			slog.String("user_id", id.UID),
			slog.Any("error", err),
		)
	}

	h.logger.Info("recovery backup restored",
		slog.String("user_id", id.UID),
		slog.Time("backup_time", snap.Timestamp),
	)
	return connect.NewResponse(&RestoreBackupResponse{Restored: summarize(snap)}), nil
}

func summarize(snap *recovery.Snapshot) BackupSummary {
	return BackupSummary{
		Timestamp:    snap.Timestamp,
		Transactions: len(snap.Transactions),
		Budgets:      len(snap.Budgets),
		Goals:        len(snap.Goals),
	}
}

func toConnectError(err error) error {
	switch {
	case errors.Is(err, recovery.ErrUnauthenticated):
		return connect.NewError(connect.CodeUnauthenticated, err)
	case errors.Is(err, recovery.ErrInvalidState):
		return connect.NewError(connect.CodeFailedPrecondition, err)
	case errors.Is(err, recovery.ErrNoBackup):
		return connect.NewError(connect.CodeNotFound, err)
	default:
		return connect.NewError(connect.CodeInternal, err)
	}
}
