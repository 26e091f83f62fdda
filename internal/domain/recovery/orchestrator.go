package recovery

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/FACorreiaa/family-finance-tracker/internal/domain/auth"
	"github.com/FACorreiaa/family-finance-tracker/internal/domain/budgets"
	"github.com/FACorreiaa/family-finance-tracker/internal/domain/categories"
	"github.com/FACorreiaa/family-finance-tracker/internal/domain/finance"
	"github.com/FACorreiaa/family-finance-tracker/internal/domain/goals"
	"github.com/FACorreiaa/family-finance-tracker/internal/domain/transactions"
	"github.com/FACorreiaa/family-finance-tracker/pkg/metrics"
	"github.com/FACorreiaa/family-finance-tracker/pkg/storage"
)

// Manager is the part of a live data manager used by an import
type Manager[T any] interface {
	Add(ctx context.Context, item T) (T, error)
	GetAll() []T
}

// Targets are the live managers receiving imported records. Categories is
// optional; category collections are skipped without it.
type Targets struct {
	Transactions Manager[transactions.Transaction]
	Budgets      Manager[budgets.Budget]
	Goals        Manager[goals.Goal]
	Categories   Manager[categories.Category]
}

// ScanResult is the outcome of probing and classifying
type ScanResult struct {
	Probe           ProbeResult               `json:"probe"`
	Classifications map[string]Classification `json:"classifications"`
}

// ImportError describes one record that could not be imported
type ImportError struct {
	OriginalID string `json:"original_id"`
	Message    string `json:"message"`
}

// CollectionReport is the import outcome of one legacy collection
type CollectionReport struct {
	Collection     string         `json:"collection"`
	Classification Classification `json:"classification"`
	Imported       int            `json:"imported"`
	Errors         []ImportError  `json:"errors"`
	AlreadyPresent int            `json:"already_present,omitempty"`
	Skipped        bool           `json:"skipped,omitempty"`
	SkipReason     string         `json:"skip_reason,omitempty"`
}

// Report summarises an import run
type Report struct {
	State         State              `json:"state"`
	TotalImported int                `json:"total_imported"`
	Collections   []CollectionReport `json:"collections"`
	BackupKey     string             `json:"backup_key,omitempty"`
	StartedAt     time.Time          `json:"started_at"`
	FinishedAt    time.Time          `json:"finished_at"`
}

// ErrorCount is the number of records that failed across all collections
func (r Report) ErrorCount() int {
	n := 0
	for _, c := range r.Collections {
		n += len(c.Errors)
	}
	return n
}

// Orchestrator runs probe, classify, map, backup and import in sequence
type Orchestrator struct {
	prober     *Prober
	classifier Classifier
	mapper     *Mapper
	kv         storage.KV
	logger     *slog.Logger
	metrics    *metrics.Metrics
	now        func() time.Time
}

// NewOrchestrator wires an orchestrator. A nil classifier uses RuleClassifier.
func NewOrchestrator(prober *Prober, classifier Classifier, kv storage.KV, logger *slog.Logger, m *metrics.Metrics) *Orchestrator {
	if classifier == nil {
		classifier = RuleClassifier{}
	}
	return &Orchestrator{
		prober:     prober,
		classifier: classifier,
		mapper:     NewMapper(time.Now),
		kv:         kv,
		logger:     logger,
		metrics:    m,
		now:        time.Now,
	}
}

// WithClock overrides the time source of the orchestrator, its prober and mapper
func (o *Orchestrator) WithClock(now func() time.Time) *Orchestrator {
	o.now = now
	o.mapper = NewMapper(now)
	o.prober.now = now
	return o
}

// Scan probes the store and classifies every collection found
func (o *Orchestrator) Scan(ctx context.Context, id auth.Identity) (*ScanResult, error) {
	if id.IsZero() {
		return nil, ErrUnauthenticated
	}

	probe := o.prober.Probe(ctx, id)
	result := &ScanResult{
		Probe:           probe,
		Classifications: make(map[string]Classification, len(probe.Data)),
	}
	for _, name := range probe.Collections() {
		c := ClassifyCollection(o.classifier, probe.Data[name])
		result.Classifications[name] = c
		o.logger.Info("legacy collection classified",
			slog.String("collection", name),
			slog.String("kind", c.Kind),
			slog.Float64("confidence", c.Confidence),
			slog.Bool("ambiguous", c.Ambiguous),
		)
	}
	return result, nil
}

// Import converts and writes the records of a scan. It snapshots the live
// collections first, then adds records one at a time; a failing record is
// reported and the loop moves on.
func (o *Orchestrator) Import(ctx context.Context, id auth.Identity, scan *ScanResult, targets Targets) (*Report, error) {
	if id.IsZero() {
		return nil, ErrUnauthenticated
	}
	if targets.Transactions == nil || targets.Budgets == nil || targets.Goals == nil {
		return nil, fmt.Errorf("transaction, budget and goal managers are required")
	}

	ctx, span := otel.Tracer(tracerName).Start(ctx, "recovery.Import")
	defer span.End()
	span.SetAttributes(attribute.String("user_id", id.UID))

	report := &Report{
		State:       StateNoData,
		Collections: make([]CollectionReport, 0),
		StartedAt:   o.now().UTC(),
	}
	if scan == nil || !scan.Probe.Found {
		report.FinishedAt = o.now().UTC()
		o.metrics.ObserveRecoveryRun(string(report.State))
		return report, nil
	}

	snap := Snapshot{
		Timestamp:    o.now().UTC(),
		Transactions: targets.Transactions.GetAll(),
		Budgets:      targets.Budgets.GetAll(),
		Goals:        targets.Goals.GetAll(),
	}
	if err := saveSnapshot(ctx, o.kv, id.UID, snap); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "backup failed")
		return nil, err
	}
	report.BackupKey = BackupKey(id.UID)

	for _, name := range scan.Probe.Collections() {
		class, ok := scan.Classifications[name]
		if !ok {
			class = ClassifyCollection(o.classifier, scan.Probe.Data[name])
		}
		cr := o.importCollection(ctx, name, class, scan.Probe.Data[name], targets)
		report.TotalImported += cr.Imported
		report.Collections = append(report.Collections, cr)
	}

	report.State = StateSuccess
	if report.ErrorCount() > 0 {
		report.State = StatePartialSuccess
	}
	report.FinishedAt = o.now().UTC()

	o.metrics.ObserveRecoveryRun(string(report.State))
	span.SetAttributes(
		attribute.String("state", string(report.State)),
		attribute.Int("imported", report.TotalImported),
		attribute.Int("errors", report.ErrorCount()),
	)
	o.logger.Info("recovery import finished",
		slog.String("user_id", id.UID),
		slog.String("state", string(report.State)),
		slog.Int("imported", report.TotalImported),
		slog.Int("errors", report.ErrorCount()),
	)
	return report, nil
}

// Run scans and, when data was found, imports it
func (o *Orchestrator) Run(ctx context.Context, id auth.Identity, targets Targets) (*Report, error) {
	scan, err := o.Scan(ctx, id)
	if err != nil {
		return nil, err
	}
	return o.Import(ctx, id, scan, targets)
}

func (o *Orchestrator) importCollection(ctx context.Context, name string, class Classification, docs []Document, targets Targets) CollectionReport {
	cr := CollectionReport{
		Collection:     name,
		Classification: class,
		Errors:         make([]ImportError, 0),
	}

	var (
		add  func(context.Context, Document) error
		live map[string]bool
	)
	switch class.Kind {
	case finance.KindTransaction:
		live = liveIDs(targets.Transactions.GetAll(), func(t transactions.Transaction) string { return t.ID })
		add = func(ctx context.Context, d Document) error {
			_, err := targets.Transactions.Add(ctx, o.mapper.Transaction(d))
			return err
		}
	case finance.KindBudget:
		live = liveIDs(targets.Budgets.GetAll(), func(b budgets.Budget) string { return b.ID })
		add = func(ctx context.Context, d Document) error {
			_, err := targets.Budgets.Add(ctx, o.mapper.Budget(d))
			return err
		}
	case finance.KindGoal:
		live = liveIDs(targets.Goals.GetAll(), func(g goals.Goal) string { return g.ID })
		add = func(ctx context.Context, d Document) error {
			_, err := targets.Goals.Add(ctx, o.mapper.Goal(d))
			return err
		}
	case finance.KindCategory:
		if targets.Categories == nil {
			cr.Skipped, cr.SkipReason = true, "no category manager"
			return cr
		}
		live = liveIDs(targets.Categories.GetAll(), func(c categories.Category) string { return c.ID })
		add = func(ctx context.Context, d Document) error {
			_, err := targets.Categories.Add(ctx, o.mapper.Category(d))
			return err
		}
	default:
		cr.Skipped, cr.SkipReason = true, "unrecognised document shape"
		o.logger.Info("legacy collection skipped",
			slog.String("collection", name),
			slog.Int("documents", len(docs)),
		)
		return cr
	}

	for _, d := range docs {
		// Records pushed by cloud sync live under users/{uid} with their current id
		if live[d.ID] {
			cr.AlreadyPresent++
			continue
		}
		if err := add(ctx, d); err != nil {
			o.logger.Warn("failed to import legacy document",
				slog.String("collection", name),
				slog.String("original_id", d.ID),
				slog.Any("error", err),
			)
			cr.Errors = append(cr.Errors, ImportError{OriginalID: d.ID, Message: err.Error()})
			continue
		}
		cr.Imported++
	}

	if cr.AlreadyPresent > 0 {
		o.logger.Info("legacy documents already present locally",
			slog.String("collection", name),
			slog.Int("documents", cr.AlreadyPresent),
		)
	}

	o.metrics.ObserveImport(class.Kind, cr.Imported, len(cr.Errors))
	return cr
}

func liveIDs[T any](items []T, id func(T) string) map[string]bool {
	ids := make(map[string]bool, len(items))
	for _, item := range items {
		if key := id(item); key != "" {
			ids[key] = true
		}
	}
	return ids
}
