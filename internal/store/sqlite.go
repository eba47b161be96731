package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"quakebot/internal/quake"
	"quakebot/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db        *sql.DB
	log       logx.Logger
	staleness time.Duration
}

// Open initializes the SQLite-backed store, creating the schema if needed.
func Open(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("store path is required")
	}
	if dir := filepath.Dir(cfg.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a single writer connection; the claim protocol relies
	// on statement-level atomicity, not on parallel connections.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	staleness := cfg.Staleness
	if staleness <= 0 {
		staleness = DefaultStaleness
	}

	st := &sqliteStore{db: db, log: log, staleness: staleness}
	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) IsDelivered(ctx context.Context, id string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM quakes WHERE id = ? AND sent_at IS NOT NULL`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, unavailable("is_delivered", err)
	}
	return true, nil
}

func (s *sqliteStore) DeliveredIDs(ctx context.Context) (map[string]struct{}, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM quakes WHERE sent_at IS NOT NULL`)
	if err != nil {
		return nil, unavailable("delivered_ids", err)
	}
	defer rows.Close()

	ids := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, unavailable("delivered_ids", err)
		}
		ids[id] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("delivered_ids", err)
	}
	return ids, nil
}

func (s *sqliteStore) DeliveredCount(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM quakes WHERE sent_at IS NOT NULL`).Scan(&n)
	if err != nil {
		return 0, unavailable("delivered_count", err)
	}
	return n, nil
}

// TryClaim is one conditional upsert, so two instances racing on the same id
// resolve inside the engine: exactly one statement's WHERE clause matches.
func (s *sqliteStore) TryClaim(ctx context.Context, id string, now time.Time) (bool, error) {
	nowMs := now.UTC().UnixMilli()
	cutoff := nowMs - s.staleness.Milliseconds()

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO quakes(id, reserved_at) VALUES(?, ?)
		 ON CONFLICT(id) DO UPDATE SET reserved_at = excluded.reserved_at
		 WHERE quakes.sent_at IS NULL
		   AND (quakes.reserved_at IS NULL OR quakes.reserved_at < ?)`,
		id, nowMs, cutoff,
	)
	if err != nil {
		return false, unavailable("try_claim", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, unavailable("try_claim", err)
	}
	return n > 0, nil
}

func (s *sqliteStore) Commit(ctx context.Context, ev quake.Event, now time.Time) error {
	sentMs := now.UTC().UnixMilli()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO quakes(id, mag, place, title, time, updated, url, detail, status,
		                    tsunami, sig, net, code, latitude, longitude, depth_km,
		                    sent_at, reserved_at)
		 VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,NULL)
		 ON CONFLICT(id) DO UPDATE SET
		   mag = excluded.mag, place = excluded.place, title = excluded.title,
		   time = excluded.time, updated = excluded.updated, url = excluded.url,
		   detail = excluded.detail, status = excluded.status,
		   tsunami = excluded.tsunami, sig = excluded.sig,
		   net = excluded.net, code = excluded.code,
		   latitude = excluded.latitude, longitude = excluded.longitude,
		   depth_km = excluded.depth_km,
		   sent_at = excluded.sent_at, reserved_at = NULL`,
		ev.ID, ev.Magnitude, ev.Place, ev.Title, ev.Time, ev.Updated, ev.URL,
		ev.Detail, ev.Status, ev.Tsunami, ev.Significance, ev.Net, ev.Code,
		ev.Latitude, ev.Longitude, ev.DepthKm, sentMs,
	)
	if err != nil {
		return unavailable("commit", err)
	}
	return nil
}

func (s *sqliteStore) ReleaseClaim(ctx context.Context, id string) error {
	// Terminal records are never touched.
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM quakes WHERE id = ? AND sent_at IS NULL`, id)
	if err != nil {
		return unavailable("release_claim", err)
	}
	return nil
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrUnavailable, op, err)
}
