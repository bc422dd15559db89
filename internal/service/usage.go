package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// ErrUsageUnavailable is returned when no ledger database is configured.
var ErrUsageUnavailable = errors.New("usage ledger unavailable")

const usageSchema = `CREATE TABLE IF NOT EXISTS overlay_events (
	session_id VARCHAR NOT NULL,
	layer_id   VARCHAR NOT NULL,
	action     VARCHAR NOT NULL,
	at         TIMESTAMP NOT NULL
)`

// UsageService records session events into DuckDB and aggregates them per layer.
type UsageService struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewUsageService creates the ledger table on db. A nil db yields a service
// whose every call returns ErrUsageUnavailable.
func NewUsageService(db *sql.DB, logger *slog.Logger) (*UsageService, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &UsageService{db: db, logger: logger}
	if db == nil {
		return s, nil
	}
	if _, err := db.Exec(usageSchema); err != nil {
		return nil, fmt.Errorf("creating overlay_events: %w", err)
	}
	return s, nil
}

// Available reports whether a database is attached.
func (s *UsageService) Available() bool {
	return s != nil && s.db != nil
}

// Record appends one event.
func (s *UsageService) Record(ctx context.Context, e Event) error {
	if !s.Available() {
		return ErrUsageUnavailable
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO overlay_events (session_id, layer_id, action, at) VALUES (?, ?, ?, ?)`,
		e.SessionID, e.LayerID, e.Action, e.At.UTC())
	if err != nil {
		return fmt.Errorf("recording %s event: %w", e.Action, err)
	}
	return nil
}

// Summary returns per-layer counts, ordered by layer id.
func (s *UsageService) Summary(ctx context.Context) ([]LayerUsage, error) {
	if !s.Available() {
		return nil, ErrUsageUnavailable
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT layer_id,
			count(*) FILTER (WHERE action = ?),
			count(*) FILTER (WHERE action = ?),
			count(*) FILTER (WHERE action = ?)
		FROM overlay_events
		WHERE layer_id <> ''
		GROUP BY layer_id
		ORDER BY layer_id`,
		ActionSelected, ActionLoaded, ActionFailed)
	if err != nil {
		return nil, fmt.Errorf("querying usage: %w", err)
	}
	defer rows.Close()

	out := []LayerUsage{}
	for rows.Next() {
		var u LayerUsage
		if err := rows.Scan(&u.LayerID, &u.Selected, &u.Loaded, &u.Failed); err != nil {
			return nil, fmt.Errorf("scanning usage: %w", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// Export writes the raw ledger to a parquet file.
func (s *UsageService) Export(ctx context.Context, path string) error {
	if !s.Available() {
		return ErrUsageUnavailable
	}
	quoted := "'" + strings.ReplaceAll(path, "'", "''") + "'"
	if _, err := s.db.ExecContext(ctx,
		"COPY overlay_events TO "+quoted+" (FORMAT PARQUET)"); err != nil {
		return fmt.Errorf("exporting usage to %s: %w", path, err)
	}
	return nil
}

// Run records every bus event until ctx is done.
func (s *UsageService) Run(ctx context.Context, bus *EventBus) {
	if !s.Available() {
		return
	}
	sub := bus.Subscribe(func(e Event) bool {
		return e.Action != ActionBaseLayer
	})
	defer bus.Unsubscribe(sub)

	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-sub.C:
			if !ok {
				return
			}
			if err := s.Record(ctx, e); err != nil {
				s.logger.Warn("usage record failed", "error", err)
			}
		}
	}
}
