package history

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS history (
	id             TEXT PRIMARY KEY,
	created_at     INTEGER NOT NULL,
	mode_key       TEXT NOT NULL,
	audio_path     TEXT,
	transcript_raw TEXT NOT NULL DEFAULT '',
	output_final   TEXT NOT NULL DEFAULT '',
	stt_provider   TEXT NOT NULL DEFAULT '',
	stt_model      TEXT NOT NULL DEFAULT '',
	llm_provider   TEXT,
	llm_model      TEXT,
	duration_ms    INTEGER NOT NULL DEFAULT 0,
	error          TEXT
);
CREATE INDEX IF NOT EXISTS idx_history_created_at ON history(created_at DESC);
`

const columns = `id, created_at, mode_key, audio_path, transcript_raw, output_final,
	stt_provider, stt_model, llm_provider, llm_model, duration_ms, error`

// foldFunc is a Unicode-aware lower() for search; SQLite's own lower() and
// LIKE only fold ASCII.
const foldFunc = "fold"

var (
	registerOnce sync.Once
	registerErr  error
)

func registerFold() error {
	registerOnce.Do(func() {
		registerErr = sqlite.RegisterDeterministicScalarFunction(foldFunc, 1,
			func(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
				switch v := args[0].(type) {
				case string:
					return strings.ToLower(v), nil
				case []byte:
					return strings.ToLower(string(v)), nil
				default:
					return v, nil
				}
			})
	})
	return registerErr
}

// SQLiteStore is a Store backed by a SQLite file.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// Open opens or creates the database at path with WAL and ensures the schema.
func Open(path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("history: create data dir: %w: %w", ErrStorage, err)
	}
	if err := registerFold(); err != nil {
		return nil, fmt.Errorf("history: register %s: %w: %w", foldFunc, ErrStorage, err)
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("history: open database: %w: %w", ErrStorage, err)
	}

	// Verify connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("history: ping database: %w: %w", ErrStorage, err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("history: create schema: %w: %w", ErrStorage, err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Insert stores item. An empty ID gets a new uuid and a zero CreatedAt
// gets the current time.
func (s *SQLiteStore) Insert(ctx context.Context, item Item) (Item, error) {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `INSERT INTO history (`+columns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		item.ID, item.CreatedAt.UnixNano(), item.ModeKey, nullable(item.AudioPath),
		item.TranscriptRaw, item.OutputFinal, item.STTProvider, item.STTModel,
		nullable(item.LLMProvider), nullable(item.LLMModel), item.DurationMS, nullable(item.Error),
	)
	if err != nil {
		return Item{}, fmt.Errorf("history: insert %s: %w: %w", item.ID, ErrStorage, err)
	}
	return item, nil
}

// Get returns the item with id or ErrNotFound.
func (s *SQLiteStore) Get(ctx context.Context, id string) (Item, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+columns+` FROM history WHERE id = ?`, id)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Item{}, fmt.Errorf("history: %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return Item{}, fmt.Errorf("history: get %s: %w: %w", id, ErrStorage, err)
	}
	return item, nil
}

// Update overwrites the output-related fields of id. ID and CreatedAt never
// change.
func (s *SQLiteStore) Update(ctx context.Context, id string, p Patch) (Item, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE history
		SET mode_key = ?, output_final = ?, llm_provider = ?, llm_model = ?, error = ?,
			transcript_raw = COALESCE(?, transcript_raw),
			stt_provider = COALESCE(?, stt_provider),
			stt_model = COALESCE(?, stt_model)
		WHERE id = ?`,
		p.ModeKey, p.OutputFinal, nullable(p.LLMProvider), nullable(p.LLMModel), nullable(p.Error),
		nullable(p.TranscriptRaw), nullable(p.STTProvider), nullable(p.STTModel), id,
	)
	if err != nil {
		return Item{}, fmt.Errorf("history: update %s: %w: %w", id, ErrStorage, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return Item{}, fmt.Errorf("history: %s: %w", id, ErrNotFound)
	}
	return s.Get(ctx, id)
}

// Query returns a page of items, newest first.
func (s *SQLiteStore) Query(ctx context.Context, q Query) ([]Item, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	offset := max(q.Offset, 0)

	var (
		rows *sql.Rows
		err  error
	)
	if search := strings.TrimSpace(q.Search); search != "" {
		pattern := "%" + escapeLike(strings.ToLower(search)) + "%"
		rows, err = s.db.QueryContext(ctx, `SELECT `+columns+` FROM history
			WHERE `+foldFunc+`(transcript_raw) LIKE ? ESCAPE '\' OR `+foldFunc+`(output_final) LIKE ? ESCAPE '\'
			ORDER BY created_at DESC, rowid DESC
			LIMIT ? OFFSET ?`, pattern, pattern, limit, offset)
	} else {
		rows, err = s.db.QueryContext(ctx, `SELECT `+columns+` FROM history
			ORDER BY created_at DESC, rowid DESC
			LIMIT ? OFFSET ?`, limit, offset)
	}
	if err != nil {
		return nil, fmt.Errorf("history: query: %w: %w", ErrStorage, err)
	}
	defer rows.Close()

	items := []Item{}
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("history: scan: %w: %w", ErrStorage, err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history: query: %w: %w", ErrStorage, err)
	}
	return items, nil
}

// Delete removes id and its retained audio file. A file that cannot be
// removed is logged; the record is deleted regardless.
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	// One statement so the removed row and the file path always agree.
	var audioPath sql.NullString
	err := s.db.QueryRowContext(ctx, `DELETE FROM history WHERE id = ? RETURNING audio_path`, id).Scan(&audioPath)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("history: %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("history: delete %s: %w: %w", id, ErrStorage, err)
	}

	if audioPath.Valid && audioPath.String != "" {
		if err := os.Remove(audioPath.String); err != nil && !errors.Is(err, os.ErrNotExist) {
			slog.Warn("[History] failed to remove audio file", "id", id, "path", audioPath.String, "error", err)
		}
	}
	return nil
}

// DeleteMany deletes each id in turn and keeps going after failures. It
// returns how many records were deleted and the joined errors.
func (s *SQLiteStore) DeleteMany(ctx context.Context, ids []string) (int, error) {
	var (
		deleted int
		errs    []error
	)
	for _, id := range ids {
		if err := s.Delete(ctx, id); err != nil {
			errs = append(errs, err)
			continue
		}
		deleted++
	}
	return deleted, errors.Join(errs...)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanItem(sc scanner) (Item, error) {
	var (
		item                                  Item
		createdAt                             int64
		audioPath, llmProvider, llmModel, msg sql.NullString
	)
	if err := sc.Scan(&item.ID, &createdAt, &item.ModeKey, &audioPath,
		&item.TranscriptRaw, &item.OutputFinal, &item.STTProvider, &item.STTModel,
		&llmProvider, &llmModel, &item.DurationMS, &msg); err != nil {
		return Item{}, err
	}
	item.CreatedAt = time.Unix(0, createdAt)
	item.AudioPath = fromNull(audioPath)
	item.LLMProvider = fromNull(llmProvider)
	item.LLMModel = fromNull(llmModel)
	item.Error = fromNull(msg)
	return item, nil
}

func nullable(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func fromNull(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
