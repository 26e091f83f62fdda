package handler

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"connectrpc.com/connect"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FACorreiaa/family-finance-tracker/internal/domain/recovery"
	"github.com/FACorreiaa/family-finance-tracker/internal/domain/workspace"
	"github.com/FACorreiaa/family-finance-tracker/pkg/docstore"
	"github.com/FACorreiaa/family-finance-tracker/pkg/interceptors"
	"github.com/FACorreiaa/family-finance-tracker/pkg/metrics"
	"github.com/FACorreiaa/family-finance-tracker/pkg/storage"
)

var fixedNow = time.Date(2024, time.March, 15, 12, 0, 0, 0, time.UTC)

func clock() time.Time { return fixedNow }

type testEnv struct {
	store    *docstore.MemoryStore
	registry *workspace.Registry
	handler  *RecoveryHandler
}

func newTestEnv() testEnv {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := docstore.NewMemoryStore()
	kv := storage.NewMemoryKV()
	m := metrics.New()

	prober := recovery.NewProber(store, recovery.ProberConfig{}, logger, m)
	orchestrator := recovery.NewOrchestrator(prober, nil, kv, logger, m).WithClock(clock)
	registry := workspace.NewRegistry(kv, logger).WithClock(clock)

	return testEnv{
		store:    store,
		registry: registry,
		handler:  NewRecoveryHandler(orchestrator, recovery.NewRestorer(kv), registry, logger),
	}
}

func aliceCtx() context.Context {
	return interceptors.WithPrincipal(context.Background(), interceptors.Principal{UserID: "u1", Email: "alice@example.com"})
}

func TestRecoveryHandler_ScanImportRestore(t *testing.T) {
	ctx := aliceCtx()
	env := newTestEnv()
	h := env.handler

	require.NoError(t, env.store.Set(ctx, "users/u1/financas", "legacy-1", map[string]any{
		"descricao": "Aluguel", "valor": -1200, "categoria": "Moradia", "data": "2024-03-10",
	}))
	require.NoError(t, env.store.Set(ctx, "metas", "legacy-2", map[string]any{
		"userId": "u1", "titulo": "Viagem", "meta": 5000, "atual": 1000,
	}))

	scan, err := h.Scan(ctx, connect.NewRequest(&ScanRequest{}))
	require.NoError(t, err)
	assert.True(t, scan.Msg.Found)
	assert.Equal(t, recovery.StateReviewing, scan.Msg.State)
	require.Len(t, scan.Msg.Collections, 2)
	assert.Equal(t, "financas", scan.Msg.Collections[0].Name)
	assert.True(t, scan.Msg.Collections[0].Importable)
	assert.Equal(t, "metas", scan.Msg.Collections[1].Name)

	imported, err := h.Import(ctx, connect.NewRequest(&ImportRequest{}))
	require.NoError(t, err)
	assert.Equal(t, recovery.StateSuccess, imported.Msg.Report.State)
	assert.Equal(t, 2, imported.Msg.Report.TotalImported)

	ws, err := env.registry.Get(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, ws.Transactions.GetAll(), 1)
	assert.Equal(t, "Aluguel", ws.Transactions.GetAll()[0].Description)
	require.Len(t, ws.Goals.GetAll(), 1)

	status, err := h.GetStatus(ctx, connect.NewRequest(&GetStatusRequest{}))
	require.NoError(t, err)
	assert.Equal(t, recovery.StateSuccess, status.Msg.State)
	require.NotNil(t, status.Msg.Report)

	// A second import needs a new scan
	_, err = h.Import(ctx, connect.NewRequest(&ImportRequest{}))
	assert.Equal(t, connect.CodeFailedPrecondition, connect.CodeOf(err))

	backup, err := h.GetBackup(ctx, connect.NewRequest(&GetBackupRequest{}))
	require.NoError(t, err)
	require.True(t, backup.Msg.Found)
	assert.Equal(t, 0, backup.Msg.Backup.Transactions)
	assert.Equal(t, fixedNow, backup.Msg.Backup.Timestamp)

	restored, err := h.RestoreBackup(ctx, connect.NewRequest(&RestoreBackupRequest{}))
	require.NoError(t, err)
	assert.Equal(t, 0, restored.Msg.Restored.Transactions)
	assert.Empty(t, ws.Transactions.GetAll())
	assert.Empty(t, ws.Goals.GetAll())
}

func TestRecoveryHandler_ScanCanBeRepeated(t *testing.T) {
	ctx := aliceCtx()
	h := newTestEnv().handler

	first, err := h.Scan(ctx, connect.NewRequest(&ScanRequest{}))
	require.NoError(t, err)
	assert.False(t, first.Msg.Found)
	assert.Equal(t, recovery.StateNoData, first.Msg.State)
	assert.Empty(t, first.Msg.Collections)

	second, err := h.Scan(ctx, connect.NewRequest(&ScanRequest{}))
	require.NoError(t, err)
	assert.Equal(t, recovery.StateNoData, second.Msg.State)

	_, err = h.Import(ctx, connect.NewRequest(&ImportRequest{}))
	assert.Equal(t, connect.CodeFailedPrecondition, connect.CodeOf(err))

	reset, err := h.Reset(ctx, connect.NewRequest(&ResetRequest{}))
	require.NoError(t, err)
	assert.Equal(t, recovery.StateIdle, reset.Msg.State)
}

func TestRecoveryHandler_Backups(t *testing.T) {
	ctx := aliceCtx()
	h := newTestEnv().handler

	backup, err := h.GetBackup(ctx, connect.NewRequest(&GetBackupRequest{}))
	require.NoError(t, err)
	assert.False(t, backup.Msg.Found)
	assert.Nil(t, backup.Msg.Backup)

	_, err = h.RestoreBackup(ctx, connect.NewRequest(&RestoreBackupRequest{}))
	assert.Equal(t, connect.CodeNotFound, connect.CodeOf(err))
}

func TestRecoveryHandler_RequiresAuthentication(t *testing.T) {
	h := newTestEnv().handler

	tests := []struct {
		name string
		call func(context.Context) error
	}{
		{"scan", func(ctx context.Context) error {
			_, err := h.Scan(ctx, connect.NewRequest(&ScanRequest{}))
			return err
		}},
		{"import", func(ctx context.Context) error {
			_, err := h.Import(ctx, connect.NewRequest(&ImportRequest{}))
			return err
		}},
		{"restore", func(ctx context.Context) error {
			_, err := h.RestoreBackup(ctx, connect.NewRequest(&RestoreBackupRequest{}))
			return err
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, connect.CodeUnauthenticated, connect.CodeOf(tt.call(context.Background())))
		})
	}
}
