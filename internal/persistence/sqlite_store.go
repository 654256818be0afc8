// Package persistence is the durable (cold) tier: append-only subtitle
// results, job records and the video table behind the public catalog.
package persistence

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/berios/subtitle-backend/internal/catalog"
	"github.com/berios/subtitle-backend/internal/jobs"
	"github.com/berios/subtitle-backend/internal/subtitles"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("db path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	store := &SQLiteStore{db: db}
	if err := store.init(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) init(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "PRAGMA journal_mode = WAL;"); err != nil {
		return fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, "PRAGMA busy_timeout = 5000;"); err != nil {
		return fmt.Errorf("set busy timeout: %w", err)
	}
	// Bootstrap schema_migrations table so we can track applied versions.
	if _, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	entries, err := migrationFiles.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		version := migrationVersion(entry.Name())
		if version <= 0 {
			continue
		}
		var exists int
		if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM schema_migrations WHERE version = ?`, version).Scan(&exists); err != nil {
			return fmt.Errorf("check migration %s: %w", entry.Name(), err)
		}
		if exists > 0 {
			continue
		}
		content, err := migrationFiles.ReadFile(filepath.Join("migrations", entry.Name()))
		if err != nil {
			return fmt.Errorf("read migration %s: %w", entry.Name(), err)
		}
		if _, err := s.db.ExecContext(ctx, string(content)); err != nil {
			return fmt.Errorf("apply migration %s: %w", entry.Name(), err)
		}
		if _, err := s.db.ExecContext(ctx, `INSERT INTO schema_migrations (version) VALUES (?)`, version); err != nil {
			return fmt.Errorf("record migration %s: %w", entry.Name(), err)
		}
	}
	return nil
}

// migrationVersion extracts the leading integer from a migration filename (e.g. "001_init.sql" → 1).
func migrationVersion(name string) int {
	for i, c := range name {
		if c < '0' || c > '9' {
			if i == 0 {
				return 0
			}
			n, _ := strconv.Atoi(name[:i])
			return n
		}
	}
	n, _ := strconv.Atoi(name)
	return n
}

func (s *SQLiteStore) FindLatestResult(ctx context.Context, jobKey string) (*jobs.ResultRecord, bool, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT job_key, video_id, language, payload, content_hash, size_bytes, generated_at
		 FROM subtitle_records
		 WHERE job_key = ?
		 ORDER BY generated_at DESC, id DESC
		 LIMIT 1`,
		jobKey,
	)

	var rec jobs.ResultRecord
	var payload string
	err := row.Scan(
		&rec.JobKey,
		&rec.VideoID,
		&rec.Language,
		&payload,
		&rec.ContentHash,
		&rec.SizeBytes,
		&rec.GeneratedAt,
	)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	rec.Payload = []byte(payload)
	return &rec, true, nil
}

func (s *SQLiteStore) InsertResult(ctx context.Context, rec *jobs.ResultRecord) error {
	if rec == nil {
		return fmt.Errorf("result record is nil")
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO subtitle_records (job_key, video_id, language, payload, content_hash, size_bytes, generated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.JobKey,
		rec.VideoID,
		rec.Language,
		string(rec.Payload),
		rec.ContentHash,
		rec.SizeBytes,
		rec.GeneratedAt,
	)
	if err != nil {
		return err
	}
	return s.upsertVideo(ctx, rec)
}

// upsertVideo keeps the videos table in sync with persisted results. First
// insert wins for identity fields; title and uploader are refreshed when the
// payload carries them.
func (s *SQLiteStore) upsertVideo(ctx context.Context, rec *jobs.ResultRecord) error {
	var title, uploader string
	if payload, err := subtitles.Decode(rec.Payload); err == nil {
		title = payload.Title()
		uploader = payload.Uploader()
	}

	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO videos (video_id, title, uploader, added_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(video_id) DO UPDATE SET
			title = CASE WHEN excluded.title != '' THEN excluded.title ELSE videos.title END,
			uploader = CASE WHEN excluded.uploader != '' THEN excluded.uploader ELSE videos.uploader END`,
		rec.VideoID,
		title,
		uploader,
		rec.GeneratedAt,
	)
	return err
}

func (s *SQLiteStore) InsertJob(ctx context.Context, rec *jobs.Record) error {
	return s.upsertJob(ctx, rec)
}

func (s *SQLiteStore) UpdateJob(ctx context.Context, rec *jobs.Record) error {
	return s.upsertJob(ctx, rec)
}

func (s *SQLiteStore) upsertJob(ctx context.Context, rec *jobs.Record) error {
	if rec == nil {
		return fmt.Errorf("job record is nil")
	}
	var finishedAt sql.NullTime
	if rec.FinishedAt != nil {
		finishedAt = sql.NullTime{Time: *rec.FinishedAt, Valid: true}
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO job_records (id, job_key, status, requested_at, finished_at, error_message)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			status=excluded.status,
			finished_at=excluded.finished_at,
			error_message=excluded.error_message`,
		rec.ID,
		rec.JobKey,
		string(rec.Status),
		rec.RequestedAt,
		finishedAt,
		rec.ErrorMessage,
	)
	return err
}

// FindJob returns the job record by id.
func (s *SQLiteStore) FindJob(ctx context.Context, id string) (*jobs.Record, bool, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT id, job_key, status, requested_at, finished_at, error_message
		 FROM job_records
		 WHERE id = ?`,
		id,
	)

	var rec jobs.Record
	var status string
	var finishedAt sql.NullTime
	err := row.Scan(&rec.ID, &rec.JobKey, &status, &rec.RequestedAt, &finishedAt, &rec.ErrorMessage)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	rec.Status = jobs.Status(status)
	if finishedAt.Valid {
		t := finishedAt.Time
		rec.FinishedAt = &t
	}
	return &rec, true, nil
}

func (s *SQLiteStore) ListPublicVideos(ctx context.Context) ([]catalog.Video, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT video_id, title, uploader, source_url, duration_sec, added_at
		 FROM videos
		 WHERE is_public = 1
		 ORDER BY added_at DESC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ret := make([]catalog.Video, 0)
	for rows.Next() {
		var item catalog.Video
		if err := rows.Scan(
			&item.VideoID,
			&item.Title,
			&item.Uploader,
			&item.SourceURL,
			&item.DurationSec,
			&item.AddedAt,
		); err != nil {
			return nil, err
		}
		ret = append(ret, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ret, nil
}
