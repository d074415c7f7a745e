package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/okian/dashboard-api/internal/domain/analytics"
	"github.com/okian/dashboard-api/internal/domain/model"
	"github.com/okian/dashboard-api/pkg/metrics"
)

const (
	UserEventsCreateTable = `
	CREATE TABLE IF NOT EXISTS user_events (
		event_id      TEXT PRIMARY KEY,
		deployment_id BIGINT NOT NULL,
		user_id       BIGINT,
		event_type    TEXT NOT NULL,
		user_name     TEXT,
		user_email    TEXT,
		auth_method   TEXT,
		ip_address    TEXT,
		occurred_at   TIMESTAMPTZ NOT NULL
	);
	CREATE INDEX IF NOT EXISTS user_events_deployment_type_time
		ON user_events (deployment_id, event_type, occurred_at);
	`
	UserEventInsertQuery = `
	INSERT INTO user_events (event_id, deployment_id, user_id, event_type, user_name, user_email, auth_method, ip_address, occurred_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	ON CONFLICT (event_id) DO NOTHING;
	`
	UserEventStatsQuery = `
	SELECT
		COUNT(DISTINCT user_id) FILTER (WHERE event_type = 'signin' AND occurred_at BETWEEN $2 AND $3),
		COUNT(*) FILTER (WHERE event_type = 'signup' AND occurred_at BETWEEN $2 AND $3),
		COUNT(*) FILTER (WHERE event_type = 'organization_created' AND occurred_at BETWEEN $2 AND $3),
		COUNT(*) FILTER (WHERE event_type = 'workspace_created' AND occurred_at BETWEEN $2 AND $3),
		COUNT(DISTINCT user_id) FILTER (WHERE event_type = 'signup')
	FROM user_events
	WHERE deployment_id = $1;
	`
	UserEventRecentSignupsQuery = `
	SELECT user_name, user_email, auth_method, occurred_at
	FROM user_events
	WHERE deployment_id = $1 AND event_type = 'signup'
	ORDER BY occurred_at DESC
	LIMIT $2;
	`
	UserEventDailyQuery = `
	SELECT to_char(date_trunc('day', occurred_at AT TIME ZONE 'UTC'), 'YYYY-MM-DD'), COUNT(*)
	FROM user_events
	WHERE deployment_id = $1 AND event_type = $2 AND occurred_at BETWEEN $3 AND $4
	GROUP BY 1;
	`
	UserEventCountQuery = `SELECT COUNT(*) FROM user_events;`
)

// PostgresStore keeps events in a PostgreSQL table.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to dsn and ensures the schema exists.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	if dsn == "" {
		return nil, ErrMissingDSN
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, UserEventsCreateTable); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

// Record implements Store.
func (s *PostgresStore) Record(ctx context.Context, e model.UserEvent) (bool, error) { //nolint:gocritic // events are values
	defer observe("record", time.Now())

	tag, err := s.pool.Exec(ctx, UserEventInsertQuery,
		e.EventID, e.DeploymentID, e.UserID, string(e.Type),
		nullString(e.UserName), nullString(e.UserEmail), nullString(e.AuthMethod), nullString(e.IPAddress),
		e.Timestamp.UTC(),
	)
	if err != nil {
		metrics.RecordStoreError("record")
		return false, fmt.Errorf("insert event: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// Stats implements Store.
func (s *PostgresStore) Stats(ctx context.Context, deploymentID int64, r analytics.Range) (analytics.Stats, error) {
	defer observe("stats", time.Now())

	var st analytics.Stats
	err := s.pool.QueryRow(ctx, UserEventStatsQuery, deploymentID, r.From.UTC(), r.To.UTC()).Scan(
		&st.UniqueSignins, &st.Signups, &st.OrganizationsCreated, &st.WorkspacesCreated, &st.TotalSignups,
	)
	if err != nil {
		metrics.RecordStoreError("stats")
		return analytics.Stats{}, fmt.Errorf("query stats: %w", err)
	}
	return st, nil
}

// RecentSignups implements Store.
func (s *PostgresStore) RecentSignups(ctx context.Context, deploymentID int64, limit int) ([]analytics.RecentSignup, error) {
	defer observe("recent_signups", time.Now())
	if limit <= 0 {
		return nil, ErrInvalidLimit
	}

	rows, err := s.pool.Query(ctx, UserEventRecentSignupsQuery, deploymentID, limit)
	if err != nil {
		metrics.RecordStoreError("recent_signups")
		return nil, fmt.Errorf("query recent signups: %w", err)
	}
	defer rows.Close()

	out := make([]analytics.RecentSignup, 0, limit)
	for rows.Next() {
		var (
			name, email, method *string
			at                  time.Time
		)
		if err := rows.Scan(&name, &email, &method, &at); err != nil {
			return nil, fmt.Errorf("scan recent signup: %w", err)
		}
		out = append(out, analytics.RecentSignup{
			Name:   deref(name),
			Email:  deref(email),
			Method: deref(method),
			Date:   at.UTC(),
		})
	}
	if err := rows.Err(); err != nil {
		metrics.RecordStoreError("recent_signups")
		return nil, err
	}
	return out, nil
}

// DailyCounts implements Store.
func (s *PostgresStore) DailyCounts(ctx context.Context, deploymentID int64, t model.EventType, r analytics.Range) ([]analytics.DailyCount, error) {
	defer observe("daily_counts", time.Now())

	rows, err := s.pool.Query(ctx, UserEventDailyQuery, deploymentID, string(t), r.From.UTC(), r.To.UTC())
	if err != nil {
		metrics.RecordStoreError("daily_counts")
		return nil, fmt.Errorf("query daily counts: %w", err)
	}
	sparse := make(map[string]int64)
	var (
		day   string
		count int64
	)
	_, err = pgx.ForEachRow(rows, []any{&day, &count}, func() error {
		sparse[day] = count
		return nil
	})
	if err != nil {
		metrics.RecordStoreError("daily_counts")
		return nil, fmt.Errorf("scan daily counts: %w", err)
	}
	return analytics.FillDays(r, sparse), nil
}

// Count implements Store.
func (s *PostgresStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, UserEventCountQuery).Scan(&n); err != nil {
		return 0, fmt.Errorf("count events: %w", err)
	}
	return n, nil
}

// Close releases the connection pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
