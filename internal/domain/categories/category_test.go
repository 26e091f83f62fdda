package categories

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FACorreiaa/family-finance-tracker/pkg/storage"
)

func newTestManager(t *testing.T) (*Manager, storage.KV) {
	t.Helper()
	kv := storage.NewMemoryKV()
	m := NewManager(kv, "u1", slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, m.Load(context.Background()))
	return m, kv
}

func TestDefaults(t *testing.T) {
	all := Defaults()
	require.Len(t, all, 15)

	income := 0
	for _, c := range all {
		assert.NotEmpty(t, c.Icon, c.ID)
		assert.Regexp(t, `^#[0-9A-F]{6}$`, c.Color, c.ID)
		if c.Type == TypeIncome {
			income++
		}
	}
	assert.Equal(t, 5, income)

	// Callers receive a copy
	all[0].Name = "changed"
	assert.Equal(t, "Salário", Defaults()[0].Name)
}

func TestManager_Add(t *testing.T) {
	m, kv := newTestManager(t)
	ctx := context.Background()

	pets, err := m.Add(ctx, Category{Name: " Pets ", Type: "despesa"})
	require.NoError(t, err)
	assert.Equal(t, "Pets", pets.Name)
	assert.Equal(t, TypeExpense, pets.Type)
	assert.Equal(t, DefaultIcon, pets.Icon)
	assert.Equal(t, DefaultColor, pets.Color)
	assert.True(t, pets.Custom)

	tests := []struct {
		name    string
		input   Category
		wantErr error
	}{
		{"empty name", Category{Name: "  "}, ErrInvalidCategory},
		{"unknown type", Category{Name: "Doações", Type: "transfer"}, ErrInvalidCategory},
		{"duplicate custom", Category{Name: "pets"}, ErrDuplicate},
		{"duplicate built-in", Category{Name: "lazer", Type: TypeExpense}, ErrDuplicate},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := m.Add(ctx, tt.input)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	// Same name under the other type is allowed
	_, err = m.Add(ctx, Category{Name: "Lazer", Type: TypeIncome})
	require.NoError(t, err)

	reloaded := NewManager(kv, "u1", slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, reloaded.Load(ctx))
	assert.Len(t, reloaded.Custom(), 2)
	assert.Len(t, reloaded.GetAll(), 17)
	assert.Len(t, reloaded.ByType(TypeIncome), 6)
}

func TestManager_Info(t *testing.T) {
	m, _ := newTestManager(t)

	assert.Equal(t, "🍽️", m.Info("alimentacao").Icon)
	assert.Equal(t, "transporte", m.Info("Transporte").ID)

	unknown := m.Info("Pets")
	assert.Equal(t, "Pets", unknown.Name)
	assert.Equal(t, "❓", unknown.Icon)
	assert.Equal(t, "#6B7280", unknown.Color)
}

func TestManager_ReplaceAll(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, m.ReplaceAll(ctx, []Category{{ID: "c1", Name: "Pets", Type: TypeExpense, Custom: true}}))
	assert.Len(t, m.Custom(), 1)

	require.NoError(t, m.ReplaceAll(ctx, nil))
	assert.Empty(t, m.Custom())
	assert.Len(t, m.GetAll(), 15)
}
