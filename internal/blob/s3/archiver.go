package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/alanyoungcy/futuresbot/internal/domain"
)

// multipartThreshold is the serialized trade log size above which the
// archiver switches to multipart upload.
const multipartThreshold = 8 * 1024 * 1024

// ReportArchiver implements domain.ReportArchiver by serializing a completed
// backtest run to object storage: the per-fill trade log as JSONL and the run
// summary as a single JSON document, both under backtests/{runID}/.
type ReportArchiver struct {
	writer domain.BlobWriter
}

// NewReportArchiver creates a ReportArchiver uploading through the given
// writer.
func NewReportArchiver(writer domain.BlobWriter) *ReportArchiver {
	return &ReportArchiver{writer: writer}
}

var _ domain.ReportArchiver = (*ReportArchiver)(nil)

// ArchiveRun uploads the run's trade log and summary and returns the prefix
// they were written under.
func (a *ReportArchiver) ArchiveRun(ctx context.Context, result domain.BacktestResult) (string, error) {
	if result.RunID == "" {
		return "", fmt.Errorf("s3blob: archive run: empty run id")
	}
	prefix := "backtests/" + result.RunID + "/"

	tradeLog, err := marshalJSONL(result.Trades)
	if err != nil {
		return "", fmt.Errorf("s3blob: archive run %s: marshal trades: %w", result.RunID, err)
	}

	tradesPath := prefix + "trades.jsonl"
	if int64(len(tradeLog)) > multipartThreshold {
		err = a.writer.PutMultipart(ctx, tradesPath, bytes.NewReader(tradeLog), ContentTypeJSONL, 0)
	} else {
		err = a.writer.Put(ctx, tradesPath, bytes.NewReader(tradeLog), ContentTypeJSONL)
	}
	if err != nil {
		return "", fmt.Errorf("s3blob: archive run %s: upload trades: %w", result.RunID, err)
	}

	// The summary omits the inlined trade slice; it lives in trades.jsonl.
	summary := result
	summary.Trades = nil

	buf, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return "", fmt.Errorf("s3blob: archive run %s: marshal summary: %w", result.RunID, err)
	}
	if err := a.writer.Put(ctx, prefix+"summary.json", bytes.NewReader(buf), ContentTypeJSON); err != nil {
		return "", fmt.Errorf("s3blob: archive run %s: upload summary: %w", result.RunID, err)
	}

	return prefix, nil
}

// marshalJSONL serialises a slice of values as newline-delimited JSON.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}
