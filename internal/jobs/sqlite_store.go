package jobs

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jo-hoe/podify/internal/common"
	"github.com/jo-hoe/podify/internal/podcast"
	"github.com/jo-hoe/podify/internal/util"

	_ "modernc.org/sqlite"
)

// SQLiteStore is the durable job backend, shareable by several processes
// pointing at the same database file.
type SQLiteStore struct {
	db       *sql.DB
	log      *slog.Logger
	capacity Capacity
	now      func() time.Time
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens the database at path and applies the schema.
func NewSQLiteStore(path string, capacity Capacity, log *slog.Logger) (*SQLiteStore, error) {
	// Busy timeout to avoid SQLITE_BUSY in concurrent access.
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)", path, common.SQLiteBusyTimeoutMS)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := migrate(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLiteStore{db: db, log: log, capacity: capacity, now: time.Now}, nil
}

func migrate(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS jobs (
		id TEXT PRIMARY KEY,
		status TEXT NOT NULL,
		progress INTEGER NOT NULL DEFAULT 0,
		stage TEXT NOT NULL DEFAULT '',
		message TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL,
		config_json TEXT,
		result_json TEXT,
		error_message TEXT NOT NULL DEFAULT ''
	);
	CREATE INDEX IF NOT EXISTS idx_jobs_active ON jobs (status, created_at);
	`
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Create(ctx context.Context) (*Job, error) {
	job := newJob(util.NewID(), s.now())
	if err := s.insert(ctx, job); err != nil {
		return nil, err
	}
	return job, nil
}

func (s *SQLiteStore) insert(ctx context.Context, job *Job) error {
	cfg, err := marshalOptional(job.Config)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	res, err := marshalOptional(job.Result)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO jobs (id, status, progress, stage, message, created_at, config_json, result_json, error_message)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID, string(job.Status), job.Progress, string(job.Stage), job.Message, job.CreatedAt.UnixNano(), cfg, res, job.Error,
	)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

// Get returns not found on any backend failure; lookups are advisory.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*Job, bool) {
	job, err := s.get(ctx, id)
	if err != nil {
		if !errors.Is(err, ErrNotFound) && s.log != nil {
			s.log.Warn("job lookup failed", "job_id", id, "err", err)
		}
		return nil, false
	}
	return job, true
}

func (s *SQLiteStore) get(ctx context.Context, id string) (*Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, status, progress, stage, message, created_at, config_json, result_json, error_message
		FROM jobs WHERE id = ?`, id)

	var job Job
	var status, stage string
	var created int64
	var cfg, res sql.NullString
	if err := row.Scan(&job.ID, &status, &job.Progress, &stage, &job.Message, &created, &cfg, &res, &job.Error); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan job: %w", err)
	}
	job.Status = Status(status)
	job.Stage = podcast.Stage(stage)
	job.CreatedAt = time.Unix(0, created).UTC()
	if cfg.Valid && cfg.String != "" {
		var c podcast.PodcastConfig
		if err := json.Unmarshal([]byte(cfg.String), &c); err != nil {
			return nil, fmt.Errorf("decode config: %w", err)
		}
		job.Config = &c
	}
	if res.Valid && res.String != "" {
		var r podcast.Result
		if err := json.Unmarshal([]byte(res.String), &r); err != nil {
			return nil, fmt.Errorf("decode result: %w", err)
		}
		job.Result = &r
	}
	return &job, nil
}

// Update writes only the columns named by p, so concurrent writers touching
// disjoint fields do not clobber each other.
func (s *SQLiteStore) Update(ctx context.Context, id string, p Patch) error {
	var sets []string
	var args []any
	add := func(col string, v any) {
		sets = append(sets, col+" = ?")
		args = append(args, v)
	}
	if p.Status != nil {
		add("status", string(*p.Status))
	}
	if p.Progress != nil {
		add("progress", *p.Progress)
	}
	if p.Stage != nil {
		add("stage", string(*p.Stage))
	}
	if p.Message != nil {
		add("message", *p.Message)
	}
	if p.Config != nil {
		b, err := json.Marshal(p.Config)
		if err != nil {
			return fmt.Errorf("marshal config: %w", err)
		}
		add("config_json", string(b))
	}
	if p.Result != nil {
		b, err := json.Marshal(p.Result)
		if err != nil {
			return fmt.Errorf("marshal result: %w", err)
		}
		add("result_json", string(b))
	}
	if p.Error != nil {
		add("error_message", *p.Error)
	}
	if len(sets) == 0 {
		return nil
	}
	args = append(args, id)
	out, err := s.db.ExecContext(ctx, `UPDATE jobs SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...) // #nosec G202 - column names are constants
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	if n, err := out.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) IsAtCapacity(ctx context.Context) (bool, error) {
	n, err := s.ActiveCount(ctx)
	if err != nil {
		return false, err
	}
	return n >= s.capacity.Limit, nil
}

// ActiveCount counts pending or processing jobs younger than the staleness window.
func (s *SQLiteStore) ActiveCount(ctx context.Context) (int, error) {
	cutoff := s.now().Add(-s.capacity.StaleAfter).UnixNano()
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM jobs WHERE status IN (?, ?) AND created_at > ?`,
		string(StatusPending), string(StatusProcessing), cutoff,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count active jobs: %w", err)
	}
	return n, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func marshalOptional[T any](v *T) (*string, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	str := string(b)
	return &str, nil
}
