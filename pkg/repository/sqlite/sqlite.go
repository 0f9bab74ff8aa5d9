package sqlite

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"math"
	"sync"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/recall/pkg/domain/interfaces"
	"github.com/secmon-lab/recall/pkg/domain/model"
	"github.com/secmon-lab/recall/pkg/utils/logging"

	_ "modernc.org/sqlite"
)

// CaptureRepository stores captures in a local SQLite database. Responses live
// in their own table so an append is a single INSERT instead of a rewrite of
// the whole record.
type CaptureRepository struct {
	db *sql.DB
	mu sync.Mutex // serializes writers
}

var _ interfaces.CaptureRepository = &CaptureRepository{}

// New opens (or creates) the database at path and applies the schema
func New(ctx context.Context, path string) (*CaptureRepository, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, storageError(err, "failed to open sqlite database", goerr.V("path", path))
	}

	r := &CaptureRepository{db: db}
	if err := r.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	logging.From(ctx).Info("capture store opened", "path", path)
	return r, nil
}

func (r *CaptureRepository) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS captures (
			id TEXT PRIMARY KEY,
			ocr_text TEXT NOT NULL,
			timestamp INTEGER NOT NULL,
			embedding BLOB
		)`,
		`CREATE INDEX IF NOT EXISTS idx_captures_timestamp ON captures(timestamp)`,
		`CREATE TABLE IF NOT EXISTS capture_responses (
			capture_id TEXT NOT NULL REFERENCES captures(id) ON DELETE CASCADE,
			seq INTEGER NOT NULL,
			text TEXT NOT NULL,
			PRIMARY KEY (capture_id, seq)
		)`,
	}

	for _, stmt := range stmts {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return storageError(err, "failed to apply schema", goerr.V("stmt", stmt[:min(len(stmt), 60)]))
		}
	}
	return nil
}

func (r *CaptureRepository) Create(ctx context.Context, capture *model.Capture) error {
	if capture == nil || capture.ID == "" {
		return goerr.New("capture id is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return storageError(err, "failed to begin transaction")
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	res, err := tx.ExecContext(ctx,
		`INSERT INTO captures (id, ocr_text, timestamp, embedding) VALUES (?, ?, ?, ?) ON CONFLICT(id) DO NOTHING`,
		string(capture.ID), capture.OCRText, capture.Timestamp, encodeEmbedding(capture.Embedding))
	if err != nil {
		return storageError(err, "failed to insert capture", goerr.V(model.CaptureIDKey, capture.ID))
	}
	if n, err := res.RowsAffected(); err != nil {
		return storageError(err, "failed to read affected rows")
	} else if n == 0 {
		return goerr.Wrap(model.ErrCaptureAlreadyExists, "capture already exists", goerr.V(model.CaptureIDKey, capture.ID))
	}

	for seq, text := range capture.Responses {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO capture_responses (capture_id, seq, text) VALUES (?, ?, ?)`,
			string(capture.ID), seq, text); err != nil {
			return storageError(err, "failed to insert response", goerr.V(model.CaptureIDKey, capture.ID))
		}
	}

	if err := tx.Commit(); err != nil {
		return storageError(err, "failed to commit capture", goerr.V(model.CaptureIDKey, capture.ID))
	}
	return nil
}

func (r *CaptureRepository) Get(ctx context.Context, id model.CaptureID) (*model.Capture, error) {
	var (
		c    model.Capture
		blob []byte
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT id, ocr_text, timestamp, embedding FROM captures WHERE id = ?`, string(id)).
		Scan(&c.ID, &c.OCRText, &c.Timestamp, &blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, goerr.Wrap(model.ErrCaptureNotFound, "capture not found", goerr.V(model.CaptureIDKey, id))
	}
	if err != nil {
		return nil, storageError(err, "failed to get capture", goerr.V(model.CaptureIDKey, id))
	}
	c.Embedding = decodeEmbedding(blob)

	rows, err := r.db.QueryContext(ctx,
		`SELECT text FROM capture_responses WHERE capture_id = ? ORDER BY seq`, string(id))
	if err != nil {
		return nil, storageError(err, "failed to get responses", goerr.V(model.CaptureIDKey, id))
	}
	defer rows.Close()

	c.Responses = []string{}
	for rows.Next() {
		var text string
		if err := rows.Scan(&text); err != nil {
			return nil, storageError(err, "failed to scan response", goerr.V(model.CaptureIDKey, id))
		}
		c.Responses = append(c.Responses, text)
	}
	if err := rows.Err(); err != nil {
		return nil, storageError(err, "failed to iterate responses", goerr.V(model.CaptureIDKey, id))
	}

	return &c, nil
}

func (r *CaptureRepository) AppendResponse(ctx context.Context, id model.CaptureID, response string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return storageError(err, "failed to begin transaction")
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	var exists int
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM captures WHERE id = ?`, string(id)).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return goerr.Wrap(model.ErrCaptureNotFound, "capture not found", goerr.V(model.CaptureIDKey, id))
	}
	if err != nil {
		return storageError(err, "failed to look up capture", goerr.V(model.CaptureIDKey, id))
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO capture_responses (capture_id, seq, text)
		 SELECT ?, COALESCE(MAX(seq), -1) + 1, ? FROM capture_responses WHERE capture_id = ?`,
		string(id), response, string(id)); err != nil {
		return storageError(err, "failed to append response", goerr.V(model.CaptureIDKey, id))
	}

	if err := tx.Commit(); err != nil {
		return storageError(err, "failed to commit response", goerr.V(model.CaptureIDKey, id))
	}
	return nil
}

func (r *CaptureRepository) PutEmbedding(ctx context.Context, id model.CaptureID, embedding []float32) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	res, err := r.db.ExecContext(ctx, `UPDATE captures SET embedding = ? WHERE id = ?`,
		encodeEmbedding(embedding), string(id))
	if err != nil {
		return storageError(err, "failed to store embedding", goerr.V(model.CaptureIDKey, id))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return storageError(err, "failed to read affected rows")
	}
	if n == 0 {
		return goerr.Wrap(model.ErrCaptureNotFound, "capture not found", goerr.V(model.CaptureIDKey, id))
	}
	return nil
}

func (r *CaptureRepository) Delete(ctx context.Context, id model.CaptureID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err := r.db.ExecContext(ctx, `DELETE FROM captures WHERE id = ?`, string(id)); err != nil {
		return storageError(err, "failed to delete capture", goerr.V(model.CaptureIDKey, id))
	}
	return nil
}

func (r *CaptureRepository) List(ctx context.Context) ([]*model.Capture, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, ocr_text, timestamp, embedding FROM captures`)
	if err != nil {
		return nil, storageError(err, "failed to list captures")
	}
	defer rows.Close()

	byID := make(map[model.CaptureID]*model.Capture)
	result := []*model.Capture{}
	for rows.Next() {
		var (
			c    model.Capture
			blob []byte
		)
		if err := rows.Scan(&c.ID, &c.OCRText, &c.Timestamp, &blob); err != nil {
			return nil, storageError(err, "failed to scan capture")
		}
		c.Embedding = decodeEmbedding(blob)
		c.Responses = []string{}
		byID[c.ID] = &c
		result = append(result, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, storageError(err, "failed to iterate captures")
	}

	respRows, err := r.db.QueryContext(ctx,
		`SELECT capture_id, text FROM capture_responses ORDER BY capture_id, seq`)
	if err != nil {
		return nil, storageError(err, "failed to list responses")
	}
	defer respRows.Close()

	for respRows.Next() {
		var (
			id   model.CaptureID
			text string
		)
		if err := respRows.Scan(&id, &text); err != nil {
			return nil, storageError(err, "failed to scan response")
		}
		if c, ok := byID[id]; ok {
			c.Responses = append(c.Responses, text)
		}
	}
	if err := respRows.Err(); err != nil {
		return nil, storageError(err, "failed to iterate responses")
	}

	return result, nil
}

func (r *CaptureRepository) Prune(ctx context.Context, keep int) ([]model.CaptureID, error) {
	if keep <= 0 {
		return nil, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, storageError(err, "failed to begin transaction")
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	rows, err := tx.QueryContext(ctx,
		`SELECT id FROM captures ORDER BY timestamp DESC, id ASC LIMIT -1 OFFSET ?`, keep)
	if err != nil {
		return nil, storageError(err, "failed to select evictions")
	}

	var evicted []model.CaptureID
	for rows.Next() {
		var id model.CaptureID
		if err := rows.Scan(&id); err != nil {
			_ = rows.Close()
			return nil, storageError(err, "failed to scan eviction")
		}
		evicted = append(evicted, id)
	}
	if err := rows.Close(); err != nil {
		return nil, storageError(err, "failed to close eviction rows")
	}

	for _, id := range evicted {
		if _, err := tx.ExecContext(ctx, `DELETE FROM captures WHERE id = ?`, string(id)); err != nil {
			return nil, storageError(err, "failed to evict capture", goerr.V(model.CaptureIDKey, id))
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, storageError(err, "failed to commit eviction")
	}
	return evicted, nil
}

func (r *CaptureRepository) Close() error {
	if err := r.db.Close(); err != nil {
		return storageError(err, "failed to close sqlite database")
	}
	return nil
}

func storageError(err error, msg string, opts ...goerr.Option) error {
	return goerr.Wrap(errors.Join(model.ErrStorage, err), msg, opts...)
}

// encodeEmbedding packs the vector as little-endian float32. nil stays NULL.
func encodeEmbedding(v []float32) []byte {
	if v == nil {
		return nil
	}
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeEmbedding(buf []byte) []float32 {
	if len(buf) == 0 {
		return nil
	}
	v := make([]float32, len(buf)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return v
}
