// Package cleaning implements the basic cleaning step of the pricing
// pipeline: drop price outliers, impute missing values and publish the
// cleaned sample as a new artifact version.
package cleaning

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/animus-labs/basic-cleaning/internal/domain"
	"github.com/animus-labs/basic-cleaning/internal/table"
)

var (
	ErrResolution = errors.New("resolution error")
	ErrParse      = errors.New("parse error")
	ErrPublish    = errors.New("publish error")
)

const (
	ColumnPrice           = "price"
	ColumnLastReview      = "last_review"
	ColumnReviewsPerMonth = "reviews_per_month"
	ColumnName            = "name"
	ColumnHostName        = "host_name"

	OutputFile = "clean_sample.csv"

	// TextPlaceholder replaces missing names. It must never be empty.
	TextPlaceholder = "-"
	ZeroRate        = "0"
)

// SentinelDate stands in for a review date that was never recorded.
var SentinelDate = time.Date(2010, time.January, 1, 0, 0, 0, 0, time.UTC)

const (
	dateLayout     = "2006-01-02"
	dateTimeLayout = "2006-01-02 15:04:05"
)

var requiredColumns = []string{
	ColumnPrice,
	ColumnLastReview,
	ColumnReviewsPerMonth,
	ColumnName,
	ColumnHostName,
}

// Resolver materializes an input artifact and returns its local path.
type Resolver interface {
	Resolve(ctx context.Context, qualifiedName string) (string, error)
}

// Publisher registers a local file as a new version of the named artifact.
type Publisher interface {
	Publish(ctx context.Context, name, kind, description, path string) (domain.ArtifactVersion, error)
}

type Options struct {
	Resolver  Resolver
	Publisher Publisher
	// WorkDir receives the serialized output. Defaults to the current
	// directory.
	WorkDir string
	Logger  *slog.Logger
}

type Procedure struct {
	resolver  Resolver
	publisher Publisher
	workDir   string
	logger    *slog.Logger
}

type Result struct {
	RowsIn          int
	RowsOut         int
	RowsDropped     int
	DatesDefaulted  int
	RatesFilled     int
	NamesFilled     int
	HostNamesFilled int
	OutputPath      string
	Published       domain.ArtifactVersion
}

// Summary is the run summary recorded with the job run.
func (r Result) Summary() map[string]any {
	out := map[string]any{
		"rows_in":           r.RowsIn,
		"rows_out":          r.RowsOut,
		"rows_dropped":      r.RowsDropped,
		"dates_defaulted":   r.DatesDefaulted,
		"rates_filled":      r.RatesFilled,
		"names_filled":      r.NamesFilled,
		"host_names_filled": r.HostNamesFilled,
	}
	if r.Published.ID != "" {
		out["output_artifact"] = r.Published.QualifiedName()
		out["output_sha256"] = r.Published.SHA256
	}
	return out
}

func New(opts Options) (*Procedure, error) {
	if opts.Resolver == nil {
		return nil, errors.New("resolver is required")
	}
	if opts.Publisher == nil {
		return nil, errors.New("publisher is required")
	}
	workDir := strings.TrimSpace(opts.WorkDir)
	if workDir == "" {
		workDir = "."
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &Procedure{
		resolver:  opts.Resolver,
		publisher: opts.Publisher,
		workDir:   workDir,
		logger:    logger.With("component", "cleaning"),
	}, nil
}

// Run executes the cleaning steps in order. The returned Result carries the
// counters gathered so far even when an error is returned.
func (p *Procedure) Run(ctx context.Context, cfg Config) (Result, error) {
	var res Result
	if p == nil || p.resolver == nil || p.publisher == nil {
		return res, errors.New("cleaning procedure not initialized")
	}
	if err := cfg.Validate(); err != nil {
		return res, err
	}

	p.logger.Info("fetching input artifact", "input_artifact", cfg.InputArtifact)
	localPath, err := p.resolver.Resolve(ctx, cfg.InputArtifact)
	if err != nil {
		return res, fmt.Errorf("%w: %w", ErrResolution, err)
	}

	p.logger.Info("reading table", "path", localPath)
	tbl, err := table.ReadFile(localPath)
	if err != nil {
		return res, fmt.Errorf("%w: %w", ErrParse, err)
	}
	if err := tbl.RequireColumns(requiredColumns...); err != nil {
		return res, fmt.Errorf("%w: %w", ErrParse, err)
	}
	res.RowsIn = tbl.Len()

	dropped, err := filterPrice(tbl, cfg.MinPrice, cfg.MaxPrice)
	if err != nil {
		return res, fmt.Errorf("%w: %w", ErrParse, err)
	}
	res.RowsDropped = dropped
	res.RowsOut = tbl.Len()
	p.logger.Info("dropped price outliers",
		"min_price", cfg.MinPrice,
		"max_price", cfg.MaxPrice,
		"rows_in", res.RowsIn,
		"rows_dropped", res.RowsDropped,
	)

	res.DatesDefaulted = normalizeDates(tbl)
	res.RatesFilled = fillColumn(tbl, ColumnReviewsPerMonth, ZeroRate)
	res.NamesFilled = fillColumn(tbl, ColumnName, TextPlaceholder)
	res.HostNamesFilled = fillColumn(tbl, ColumnHostName, TextPlaceholder)

	res.OutputPath = filepath.Join(p.workDir, OutputFile)
	p.logger.Info("saving results", "path", res.OutputPath, "rows_out", res.RowsOut)
	if err := tbl.WriteFile(res.OutputPath); err != nil {
		return res, fmt.Errorf("write %s: %w", OutputFile, err)
	}

	p.logger.Info("publishing output artifact", "output_name", cfg.OutputName, "output_type", cfg.OutputType)
	published, err := p.publisher.Publish(ctx, cfg.OutputName, cfg.OutputType, cfg.OutputDescription, res.OutputPath)
	if err != nil {
		return res, fmt.Errorf("%w: %w", ErrPublish, err)
	}
	res.Published = published
	p.logger.Info("cleaning finished", "output_artifact", published.QualifiedName(), "rows_out", res.RowsOut)
	return res, nil
}

// filterPrice keeps rows whose price lies in [minPrice, maxPrice]. A missing
// price never satisfies the bound.
func filterPrice(tbl *table.Table, minPrice, maxPrice float64) (int, error) {
	col, _ := tbl.Column(ColumnPrice)
	line := 0
	return tbl.Filter(func(row table.Row) (bool, error) {
		line++
		price, ok, err := table.Float(row[col])
		if err != nil {
			return false, fmt.Errorf("row %d column %s: %w", line, ColumnPrice, err)
		}
		return ok && price >= minPrice && price <= maxPrice, nil
	})
}

// normalizeDates rewrites last_review as a date. Missing or unreadable
// values become SentinelDate. Values carrying an offset are converted to
// UTC. Times of day, with the finest fractional precision present, are kept
// only when at least one value has one.
func normalizeDates(tbl *table.Table) int {
	col, _ := tbl.Column(ColumnLastReview)
	rows := tbl.Rows()
	dates := make([]time.Time, len(rows))
	defaulted := 0
	withClock := false
	digits := 0
	for i, row := range rows {
		var ts time.Time
		ok := false
		if !row[col].Null {
			ts, ok = table.ParseDate(row[col].Text)
		}
		if !ok {
			ts = SentinelDate
			defaulted++
		}
		ts = ts.UTC()
		if hasClock(ts) {
			withClock = true
		}
		digits = max(digits, fractionDigits(ts))
		dates[i] = ts
	}

	layout := dateLayout
	if withClock {
		layout = dateTimeLayout
		if digits > 0 {
			layout += "." + strings.Repeat("0", digits)
		}
	}
	for i, row := range rows {
		row[col] = table.Value(dates[i].Format(layout))
	}
	return defaulted
}

func hasClock(ts time.Time) bool {
	h, m, s := ts.Clock()
	return h != 0 || m != 0 || s != 0 || ts.Nanosecond() != 0
}

// fractionDigits reports the millisecond, microsecond or nanosecond
// precision needed to print ts without loss.
func fractionDigits(ts time.Time) int {
	ns := ts.Nanosecond()
	switch {
	case ns == 0:
		return 0
	case ns%1_000_000 == 0:
		return 3
	case ns%1_000 == 0:
		return 6
	default:
		return 9
	}
}

func fillColumn(tbl *table.Table, name, value string) int {
	col, _ := tbl.Column(name)
	return tbl.FillNull(col, value)
}
