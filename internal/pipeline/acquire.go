package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kalambet/dexview/internal/catalog"
)

// MaxConcurrency caps the detail fan-out regardless of configuration.
const MaxConcurrency = 32

// Source is the remote collection: one list call plus one detail call per
// summary entry.
type Source interface {
	FetchSummaryPage(ctx context.Context) ([]catalog.Summary, error)
	FetchDetail(ctx context.Context, locator string) (catalog.Item, error)
}

// Recorder receives acquisition measurements. *metrics.Metrics satisfies it.
type Recorder interface {
	AcquisitionDone(ok bool, items int, d time.Duration)
	DetailFetched(ok bool)
	ItemsExcluded(n int)
}

// Acquirer turns one summary page into a fully enriched, ordered catalog.
type Acquirer struct {
	source      Source
	concurrency int
	policy      catalog.MalformedPolicy
	recorder    Recorder
	logger      *slog.Logger
}

// Option configures an Acquirer.
type Option func(*Acquirer)

// WithConcurrency bounds the number of in-flight detail fetches.
// Values are clamped to [1, MaxConcurrency].
func WithConcurrency(n int) Option {
	return func(a *Acquirer) { a.concurrency = n }
}

// WithPolicy selects how items without categories are handled.
func WithPolicy(p catalog.MalformedPolicy) Option {
	return func(a *Acquirer) { a.policy = p }
}

// WithRecorder attaches a metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(a *Acquirer) { a.recorder = r }
}

// WithLogger replaces the default logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Acquirer) { a.logger = l }
}

// NewAcquirer creates an Acquirer reading from source.
func NewAcquirer(source Source, opts ...Option) *Acquirer {
	a := &Acquirer{
		source:      source,
		concurrency: MaxConcurrency,
		policy:      catalog.PolicyExclude,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.concurrency < 1 {
		a.concurrency = 1
	}
	if a.concurrency > MaxConcurrency {
		a.concurrency = MaxConcurrency
	}
	if a.policy == "" {
		a.policy = catalog.PolicyExclude
	}
	return a
}

// Acquire runs the two-phase fetch:
//  1. fetch the summary page
//  2. fetch every detail concurrently, bounded by the configured limit
//  3. fail the whole acquisition on the first error, cancelling the rest
//  4. return items in summary order
//
// No partial collection is ever returned: on error the result is nil.
func (a *Acquirer) Acquire(ctx context.Context) (items []catalog.Item, err error) {
	start := time.Now()
	defer func() {
		if a.recorder != nil {
			a.recorder.AcquisitionDone(err == nil, len(items), time.Since(start))
		}
	}()

	summaries, err := a.source.FetchSummaryPage(ctx)
	if err != nil {
		return nil, &catalog.AcquisitionError{Stage: catalog.StageSummary, Err: err}
	}
	a.logger.Debug("summary page fetched", "entries", len(summaries))

	results := make([]catalog.Item, len(summaries))
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(a.concurrency)

	for i, s := range summaries {
		g.Go(func() error {
			if gCtx.Err() != nil {
				return gCtx.Err()
			}
			item, err := a.source.FetchDetail(gCtx, s.Locator)
			// Stragglers abandoned after a sibling failed are not outcomes.
			if a.recorder != nil && (err == nil || gCtx.Err() == nil) {
				a.recorder.DetailFetched(err == nil)
			}
			if err != nil {
				return &catalog.AcquisitionError{Stage: catalog.StageDetail, Locator: s.Locator, Err: err}
			}
			results[i] = item
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		// A cancelled sibling returns the bare context error; the group
		// keeps only the first error, which is the real cause.
		var acqErr *catalog.AcquisitionError
		if !errors.As(err, &acqErr) {
			err = &catalog.AcquisitionError{Stage: catalog.StageDetail, Err: err}
		}
		return nil, err
	}

	if err := checkUniqueIDs(summaries, results); err != nil {
		return nil, err
	}

	items, excluded := a.applyPolicy(results)
	if len(excluded) > 0 {
		a.logger.Warn("excluded items with no categories", "excluded", len(excluded), "ids", excluded)
		if a.recorder != nil {
			a.recorder.ItemsExcluded(len(excluded))
		}
	}
	return items, nil
}

// checkUniqueIDs rejects a collection in which two detail records share an
// id. results[i] was fetched from summaries[i].
func checkUniqueIDs(summaries []catalog.Summary, results []catalog.Item) error {
	seen := make(map[int]int, len(results))
	for i, it := range results {
		if first, ok := seen[it.ID]; ok {
			return &catalog.AcquisitionError{
				Stage:   catalog.StageDetail,
				Locator: summaries[i].Locator,
				Err: &catalog.MalformedResponseError{
					URL:   summaries[i].Locator,
					Field: "id",
					Err:   fmt.Errorf("duplicate id %d, already returned by %s", it.ID, summaries[first].Locator),
				},
			}
		}
		seen[it.ID] = i
	}
	return nil
}

// applyPolicy handles items whose detail record listed no categories.
func (a *Acquirer) applyPolicy(in []catalog.Item) ([]catalog.Item, []int) {
	out := make([]catalog.Item, 0, len(in))
	var excluded []int
	for _, it := range in {
		if len(it.Categories) > 0 {
			out = append(out, it)
			continue
		}
		switch a.policy {
		case catalog.PolicyUnknown:
			it.Categories = []string{catalog.UnknownCategory}
			out = append(out, it)
		default:
			excluded = append(excluded, it.ID)
		}
	}
	return out, excluded
}
