package recovery

import (
	"context"
	"fmt"
	"time"

	"github.com/FACorreiaa/family-finance-tracker/internal/domain/budgets"
	"github.com/FACorreiaa/family-finance-tracker/internal/domain/goals"
	"github.com/FACorreiaa/family-finance-tracker/internal/domain/transactions"
	"github.com/FACorreiaa/family-finance-tracker/pkg/storage"
)

const backupKeyPrefix = "recovery_backup/"

// BackupKey is the local key of a user's pre-import snapshot
func BackupKey(uid string) string {
	return backupKeyPrefix + uid
}

// Snapshot is the state of the live collections taken before an import
type Snapshot struct {
	Timestamp    time.Time                  `json:"timestamp"`
	Transactions []transactions.Transaction `json:"transactions"`
	Budgets      []budgets.Budget           `json:"budgets"`
	Goals        []goals.Goal               `json:"goals"`
}

// Replacer swaps a manager's whole collection
type Replacer[T any] interface {
	ReplaceAll(ctx context.Context, items []T) error
}

// RestoreTargets are the managers a snapshot is restored into
type RestoreTargets struct {
	Transactions Replacer[transactions.Transaction]
	Budgets      Replacer[budgets.Budget]
	Goals        Replacer[goals.Goal]
}

func saveSnapshot(ctx context.Context, kv storage.KV, uid string, snap Snapshot) error {
	if err := storage.PutJSON(ctx, kv, BackupKey(uid), snap); err != nil {
		return fmt.Errorf("failed to save recovery backup: %w", err)
	}
	return nil
}

// Restorer reads and applies pre-import snapshots. Restoring is always an
// explicit call; imports never roll back on their own.
type Restorer struct {
	kv storage.KV
}

// NewRestorer creates a restorer over the local store
func NewRestorer(kv storage.KV) *Restorer {
	return &Restorer{kv: kv}
}

// Load returns the user's snapshot or ErrNoBackup
func (r *Restorer) Load(ctx context.Context, uid string) (*Snapshot, error) {
	var snap Snapshot
	found, err := storage.GetJSON(ctx, r.kv, BackupKey(uid), &snap)
	if err != nil {
		return nil, fmt.Errorf("failed to read recovery backup: %w", err)
	}
	if !found {
		return nil, ErrNoBackup
	}
	return &snap, nil
}

// Restore replaces the live collections with the snapshot's content
func (r *Restorer) Restore(ctx context.Context, uid string, targets RestoreTargets) (*Snapshot, error) {
	snap, err := r.Load(ctx, uid)
	if err != nil {
		return nil, err
	}

	if targets.Transactions != nil {
		if err := targets.Transactions.ReplaceAll(ctx, snap.Transactions); err != nil {
			return nil, fmt.Errorf("failed to restore transactions: %w", err)
		}
	}
	if targets.Budgets != nil {
		if err := targets.Budgets.ReplaceAll(ctx, snap.Budgets); err != nil {
			return nil, fmt.Errorf("failed to restore budgets: %w", err)
		}
	}
	if targets.Goals != nil {
		if err := targets.Goals.ReplaceAll(ctx, snap.Goals); err != nil {
			return nil, fmt.Errorf("failed to restore goals: %w", err)
		}
	}
	return snap, nil
}
