package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"blocktrader/internal/domain"
)

// Archiver exports a symbol's closed blocks to object storage as JSONL
// before close-out condensation collapses them into a single profit total.
// The export is the only durable record of individual round trips after a
// close-out, so it runs before any deletion.
type Archiver struct {
	writer domain.BlobWriter
	closed domain.ClosedBlockStore
}

// NewArchiver creates an Archiver.
func NewArchiver(writer domain.BlobWriter, closed domain.ClosedBlockStore) *Archiver {
	return &Archiver{writer: writer, closed: closed}
}

// ExportClosedBlocks uploads every archived round trip for (user, symbol),
// plus any extra records not yet persisted (the liquidation fill), and
// returns the number of records written.
func (a *Archiver) ExportClosedBlocks(ctx context.Context, userID, symbol string, extra []domain.ClosedBlock) (int, error) {
	archived, err := a.closed.ListBySymbol(ctx, userID, symbol)
	if err != nil {
		return 0, fmt.Errorf("s3blob: export closed blocks query: %w", err)
	}

	records := append(archived, extra...)
	if len(records) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(records)
	if err != nil {
		return 0, fmt.Errorf("s3blob: export closed blocks marshal: %w", err)
	}

	path := exportPath(userID, symbol, time.Now().UTC())
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: export closed blocks upload: %w", err)
	}

	return len(records), nil
}

// exportPath builds the S3 key for one close-out export:
//
//	closed_blocks/u1/ACME/20260830T143000Z.jsonl
func exportPath(userID, symbol string, at time.Time) string {
	return fmt.Sprintf("closed_blocks/%s/%s/%s.jsonl", userID, symbol, at.Format("20060102T150405Z"))
}

// marshalJSONL serialises records as newline-delimited JSON.
func marshalJSONL(records []domain.ClosedBlock) ([]byte, error) {
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
