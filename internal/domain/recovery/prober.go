package recovery

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/FACorreiaa/family-finance-tracker/internal/domain/auth"
	"github.com/FACorreiaa/family-finance-tracker/pkg/docstore"
	"github.com/FACorreiaa/family-finance-tracker/pkg/metrics"
)

const tracerName = "github.com/FACorreiaa/family-finance-tracker/internal/domain/recovery"

// ProberConfig bounds the cost of a scan
type ProberConfig struct {
	Candidates []string
	// SampleSize caps each probe read
	SampleSize int
	// FetchLimit caps the full read of a matching location; 0 reads everything
	FetchLimit int
}

// Prober looks for a user's documents under candidate collection names
type Prober struct {
	store   docstore.Store
	cfg     ProberConfig
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// NewProber creates a prober. Missing config values fall back to the default
// candidates and a sample of 5.
func NewProber(store docstore.Store, cfg ProberConfig, logger *slog.Logger, m *metrics.Metrics) *Prober {
	if len(cfg.Candidates) == 0 {
		cfg.Candidates = DefaultCandidates
	}
	if cfg.SampleSize <= 0 {
		cfg.SampleSize = 5
	}
	if cfg.FetchLimit < 0 {
		cfg.FetchLimit = 0
	}
	return &Prober{store: store, cfg: cfg, logger: logger, metrics: m, now: time.Now}
}

type probe struct {
	location Location
	query    docstore.Query
}

func (p *Prober) probesFor(name string, id auth.Identity) []probe {
	probes := []probe{
		{LocationUserScoped, docstore.Query{Path: docstore.UserCollection(id.UID, name)}},
		{LocationRootByUserID, docstore.Query{Path: name, Field: FieldUserID, Value: id.UID}},
	}
	if id.Email != "" {
		probes = append(probes, probe{LocationRootByEmail, docstore.Query{Path: name, Field: FieldUserEmail, Value: id.Email}})
	}
	return append(probes, probe{LocationRootUnfiltered, docstore.Query{Path: name}})
}

// Probe scans every candidate. It never fails: probes that error are logged,
// recorded in Failures and treated as empty.
func (p *Prober) Probe(ctx context.Context, id auth.Identity) ProbeResult {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "recovery.Probe",
		trace.WithAttributes(
			attribute.String("user_id", id.UID),
			attribute.Int("candidates", len(p.cfg.Candidates)),
		),
	)
	defer span.End()

	result := ProbeResult{
		Matches: make([]Match, 0),
		Data:    make(map[string][]Document),
	}

	for _, name := range p.cfg.Candidates {
		seen := make(map[string]bool)

		for _, pr := range p.probesFor(name, id) {
			sample := pr.query
			sample.Limit = p.cfg.SampleSize

			docs, err := p.store.Find(ctx, sample)
			if err != nil {
				p.fail(&result, name, pr, err)
				continue
			}
			if len(docs) == 0 {
				p.metrics.ObserveProbe(string(pr.location), "miss")
				continue
			}
			p.metrics.ObserveProbe(string(pr.location), "hit")

			included := pr.location != LocationRootUnfiltered
			result.Matches = append(result.Matches, Match{
				Collection: name,
				Path:       pr.query.Path,
				Location:   pr.location,
				Sampled:    len(docs),
				Included:   included,
			})
			if !included {
				p.logger.Warn("unfiltered legacy collection found, documents not imported",
					slog.String("collection", name),
					slog.Int("sampled", len(docs)),
				)
				continue
			}

			// A short sample already holds the whole location
			if len(docs) >= p.cfg.SampleSize {
				full := pr.query
				full.Limit = p.cfg.FetchLimit
				all, err := p.store.Find(ctx, full)
				if err != nil {
					p.fail(&result, name, pr, err)
				} else {
					docs = all
				}
			}

			recoveredAt := p.now().UTC()
			for _, d := range docs {
				key := d.Path + "\x00" + d.ID
				if seen[key] {
					continue
				}
				seen[key] = true
				result.Data[name] = append(result.Data[name], Document{
					ID:          d.ID,
					Collection:  name,
					Path:        d.Path,
					Location:    pr.location,
					Fields:      d.Data,
					RecoveredAt: recoveredAt,
				})
			}
			p.logger.Info("legacy documents found",
				slog.String("collection", name),
				slog.String("path", pr.query.Path),
				slog.String("location", string(pr.location)),
				slog.Int("documents", len(result.Data[name])),
			)
		}
	}

	result.Found = len(result.Data) > 0
	span.SetAttributes(
		attribute.Bool("found", result.Found),
		attribute.Int("documents", result.DocumentCount()),
		attribute.Int("failures", len(result.Failures)),
	)
	return result
}

func (p *Prober) fail(result *ProbeResult, name string, pr probe, err error) {
	p.metrics.ObserveProbe(string(pr.location), "error")
	p.logger.Warn("legacy probe failed",
		slog.String("collection", name),
		slog.String("path", pr.query.Path),
		slog.String("location", string(pr.location)),
		slog.Any("error", err),
	)
	result.Failures = append(result.Failures, ProbeFailure{
		Collection: name,
		Path:       pr.query.Path,
		Location:   pr.location,
		Error:      err.Error(),
	})
}
