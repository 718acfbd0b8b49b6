package store

import (
	"bytes"
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/klauspost/compress/gzip"
)

// StoreRawPayload keeps a gzip-compressed copy of an upstream response body.
// Identical bodies are stored once; a duplicate returns 0.
func (s *Store) StoreRawPayload(ctx context.Context, runID int64, source, target string, payload []byte) (int64, error) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write(payload); err != nil {
		return 0, fmt.Errorf("compress payload: %w", err)
	}
	if err := gz.Close(); err != nil {
		return 0, fmt.Errorf("close gzip: %w", err)
	}

	hash := sha256.Sum256(payload)

	var ingestRunID sql.NullInt64
	if runID > 0 {
		ingestRunID = sql.NullInt64{Int64: runID, Valid: true}
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO raw_payloads (ingest_run_id, fetched_at, source, target, payload_compressed, payload_hash)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(payload_hash) DO NOTHING
	`, ingestRunID, formatTime(time.Now()), source, target, buf.Bytes(), hex.EncodeToString(hash[:]))
	if err != nil {
		return 0, unavailable("insert raw payload", err)
	}

	n, err := result.RowsAffected()
	if err != nil || n == 0 {
		return 0, nil
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, unavailable("insert raw payload", err)
	}
	return id, nil
}

// GetRawPayload returns the decompressed payload stored for an ingest run.
// It returns nil when the run stored no payload.
func (s *Store) GetRawPayload(ctx context.Context, runID int64) ([]byte, error) {
	var compressed []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT payload_compressed FROM raw_payloads WHERE ingest_run_id = ?
	`, runID).Scan(&compressed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, unavailable("get raw payload", err)
	}

	gz, err := gzip.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, fmt.Errorf("open gzip: %w", err)
	}
	defer gz.Close()
	return io.ReadAll(gz)
}
