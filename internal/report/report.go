// Package report persists the per-cycle opportunity document and renders
// the top-N summary.
package report

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"time"

	"github.com/alanyoungcy/arbscanner/internal/domain"
	"github.com/alanyoungcy/arbscanner/internal/store/file"
)

// Writer writes the latest report to a local file and, when a blob writer is
// configured, archives a timestamped copy.
type Writer struct {
	path   string
	blob   domain.BlobWriter
	prefix string
	logger *slog.Logger
}

// NewWriter creates a Writer for localPath. blob may be nil.
func NewWriter(localPath string, blob domain.BlobWriter, prefix string, logger *slog.Logger) *Writer {
	return &Writer{
		path:   localPath,
		blob:   blob,
		prefix: prefix,
		logger: logger.With(slog.String("component", "report")),
	}
}

// Path returns the local report path.
func (w *Writer) Path() string { return w.path }

// Write replaces the local report atomically. A failed archive upload is
// logged and does not fail the write.
func (w *Writer) Write(ctx context.Context, r domain.Report) error {
	if r.Opportunities == nil {
		r.Opportunities = []domain.Opportunity{}
	}
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("report: marshal: %w", err)
	}
	if err := file.WriteAtomic(w.path, data); err != nil {
		return fmt.Errorf("report: write %s: %w", w.path, err)
	}

	if w.blob == nil {
		return nil
	}
	key := ArchivePath(w.prefix, r.Timestamp)
	if err := w.blob.Put(ctx, key, bytes.NewReader(data), "application/json"); err != nil {
		w.logger.WarnContext(ctx, "report archive failed",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		return nil
	}
	w.logger.DebugContext(ctx, "report archived", slog.String("key", key))
	return nil
}

// ArchivePath returns <prefix>/YYYY/MM/DD/<timestamp>.json in UTC.
func ArchivePath(prefix string, ts time.Time) string {
	ts = ts.UTC()
	return path.Join(prefix, ts.Format("2006/01/02"), ts.Format("20060102T150405.000Z")+".json")
}

// LoadLatest reads the report at localPath. A missing file yields
// domain.ErrNotFound.
func LoadLatest(localPath string) (domain.Report, error) {
	data, err := os.ReadFile(localPath)
	if errors.Is(err, os.ErrNotExist) {
		return domain.Report{}, fmt.Errorf("report: %s: %w", localPath, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Report{}, fmt.Errorf("report: read %s: %w", localPath, err)
	}
	var r domain.Report
	if err := json.Unmarshal(data, &r); err != nil {
		return domain.Report{}, fmt.Errorf("report: decode %s: %w", localPath, err)
	}
	return r, nil
}

// SummaryLines formats the best n opportunities, one per line. A non-positive
// n yields no lines.
func SummaryLines(opps []domain.Opportunity, n int) []string {
	if n <= 0 {
		return nil
	}
	if n > len(opps) {
		n = len(opps)
	}
	lines := make([]string, 0, n)
	for _, o := range opps[:n] {
		lines = append(lines, fmt.Sprintf("%s [%s] | buy %s %.6f -> sell %s %.6f | net=%.3f%%",
			o.Symbol, o.Currency, o.BuySource, o.BuyPrice, o.SellSource, o.SellPrice, o.NetPercent))
	}
	return lines
}
