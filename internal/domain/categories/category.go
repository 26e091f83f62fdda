// Package categories holds the built-in category catalogue, user-defined
// categories and the engine that suggests a category for a description.
package categories

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/FACorreiaa/family-finance-tracker/internal/domain/finance"
	"github.com/FACorreiaa/family-finance-tracker/pkg/storage"
)

// StorageName is the per-user key holding custom categories
const StorageName = "categories"

const (
	TypeIncome  = "income"
	TypeExpense = "expense"

	DefaultIcon  = "📊"
	DefaultColor = "#3B82F6"
	unknownIcon  = "❓"
	unknownColor = "#6B7280"
	DefaultName  = "Categoria"
	GeneralName  = "Geral"
)

var (
	ErrInvalidCategory = errors.New("invalid category")
	ErrDuplicate       = errors.New("category already exists")
)

// Category is a label for transactions with display attributes
type Category struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Icon   string `json:"icon"`
	Color  string `json:"color"`
	Type   string `json:"type"`
	Custom bool   `json:"custom"`

	Recovery *finance.Provenance `json:"recovery,omitempty"`
}

var defaults = []Category{
	{ID: "salario", Name: "Salário", Icon: "💰", Color: "#10B981", Type: TypeIncome},
	{ID: "freelance", Name: "Freelance", Icon: "💻", Color: "#8B5CF6", Type: TypeIncome},
	{ID: "investimentos", Name: "Investimentos", Icon: "📈", Color: "#06B6D4", Type: TypeIncome},
	{ID: "vendas", Name: "Vendas", Icon: "🛒", Color: "#F59E0B", Type: TypeIncome},
	{ID: "outros_ganhos", Name: "Outros Ganhos", Icon: "💸", Color: "#84CC16", Type: TypeIncome},

	{ID: "alimentacao", Name: "Alimentação", Icon: "🍽️", Color: "#EF4444", Type: TypeExpense},
	{ID: "transporte", Name: "Transporte", Icon: "🚗", Color: "#F97316", Type: TypeExpense},
	{ID: "moradia", Name: "Moradia", Icon: "🏠", Color: "#8B5CF6", Type: TypeExpense},
	{ID: "saude", Name: "Saúde", Icon: "🏥", Color: "#EC4899", Type: TypeExpense},
	{ID: "educacao", Name: "Educação", Icon: "📚", Color: "#3B82F6", Type: TypeExpense},
	{ID: "lazer", Name: "Lazer", Icon: "🎬", Color: "#10B981", Type: TypeExpense},
	{ID: "roupas", Name: "Roupas", Icon: "👔", Color: "#F59E0B", Type: TypeExpense},
	{ID: "tecnologia", Name: "Tecnologia", Icon: "📱", Color: "#6366F1", Type: TypeExpense},
	{ID: "servicos", Name: "Serviços", Icon: "🔧", Color: "#84CC16", Type: TypeExpense},
	{ID: "outros_gastos", Name: "Outros Gastos", Icon: "💳", Color: "#6B7280", Type: TypeExpense},
}

// Defaults returns the built-in catalogue
func Defaults() []Category {
	return append([]Category{}, defaults...)
}

// Manager owns one user's custom categories on top of the built-in ones
type Manager struct {
	mu     sync.RWMutex
	custom []Category
	kv     storage.KV
	key    string
	logger *slog.Logger
}

// NewManager creates a manager persisting custom categories under users/{uid}/categories
func NewManager(kv storage.KV, uid string, logger *slog.Logger) *Manager {
	return &Manager{
		kv:     kv,
		key:    storage.UserKey(uid, StorageName),
		logger: logger,
	}
}

// Load replaces the custom categories with what is persisted
func (m *Manager) Load(ctx context.Context) error {
	var items []Category
	if _, err := storage.GetJSON(ctx, m.kv, m.key, &items); err != nil {
		return fmt.Errorf("failed to load categories: %w", err)
	}
	if items == nil {
		items = []Category{}
	}

	m.mu.Lock()
	m.custom = items
	m.mu.Unlock()
	return nil
}

// Add stores a custom category. Names are unique per type, case-insensitively,
// across both built-in and custom categories.
func (m *Manager) Add(ctx context.Context, c Category) (Category, error) {
	c.Name = strings.TrimSpace(c.Name)
	if c.Name == "" {
		return Category{}, fmt.Errorf("%w: name is required", ErrInvalidCategory)
	}
	switch strings.ToLower(c.Type) {
	case TypeIncome, "receita", "receitas":
		c.Type = TypeIncome
	case "", TypeExpense, "despesa", "despesas":
		c.Type = TypeExpense
	default:
		return Category{}, fmt.Errorf("%w: unknown type %q", ErrInvalidCategory, c.Type)
	}
	if c.Icon == "" {
		c.Icon = DefaultIcon
	}
	if c.Color == "" {
		c.Color = DefaultColor
	}
	c.ID = uuid.NewString()
	c.Custom = true

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.allLocked() {
		if existing.Type == c.Type && strings.EqualFold(existing.Name, c.Name) {
			return Category{}, fmt.Errorf("%w: %s", ErrDuplicate, c.Name)
		}
	}

	next := append(append([]Category{}, m.custom...), c)
	if err := m.persist(ctx, next); err != nil {
		return Category{}, err
	}
	m.custom = next
	return c, nil
}

// GetAll returns built-in categories followed by custom ones
func (m *Manager) GetAll() []Category {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.allLocked()
}

// Custom returns only the user's categories
func (m *Manager) Custom() []Category {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Category{}, m.custom...)
}

// ByType returns categories of one type
func (m *Manager) ByType(typ string) []Category {
	out := make([]Category, 0)
	for _, c := range m.GetAll() {
		if c.Type == typ {
			out = append(out, c)
		}
	}
	return out
}

// Info returns the category with the given id or name. Unknown categories get
// a placeholder icon and colour carrying the requested name.
func (m *Manager) Info(idOrName string) Category {
	for _, c := range m.GetAll() {
		if c.ID == idOrName || strings.EqualFold(c.Name, idOrName) {
			return c
		}
	}
	return Category{ID: idOrName, Name: idOrName, Icon: unknownIcon, Color: unknownColor, Type: TypeExpense}
}

// ReplaceAll swaps the custom categories
func (m *Manager) ReplaceAll(ctx context.Context, items []Category) error {
	if items == nil {
		items = []Category{}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.persist(ctx, items); err != nil {
		return err
	}
	m.custom = items
	return nil
}

func (m *Manager) allLocked() []Category {
	out := make([]Category, 0, len(defaults)+len(m.custom))
	out = append(out, defaults...)
	return append(out, m.custom...)
}

func (m *Manager) persist(ctx context.Context, items []Category) error {
	if err := storage.PutJSON(ctx, m.kv, m.key, items); err != nil {
		return fmt.Errorf("failed to save categories: %w", err)
	}
	m.logger.Debug("categories saved", slog.Int("count", len(items)))
	return nil
}
