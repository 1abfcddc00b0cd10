package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gyaneshwarpardhi/markovflow/internal/alert"
	"github.com/gyaneshwarpardhi/markovflow/internal/event"
	"github.com/gyaneshwarpardhi/markovflow/internal/markov"
	"github.com/gyaneshwarpardhi/markovflow/internal/perturb"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS events (
    id          TEXT PRIMARY KEY,
    ts          TIMESTAMPTZ NOT NULL,
    actor_id    TEXT NOT NULL,
    entity_id   TEXT NOT NULL,
    action      TEXT NOT NULL,
    context     JSONB,
    received_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS events_received_at_idx ON events (received_at DESC);

CREATE TABLE IF NOT EXISTS alerts (
    id              TEXT PRIMARY KEY,
    scenario_id     TEXT NOT NULL,
    severity        TEXT NOT NULL,
    score           DOUBLE PRECISION NOT NULL,
    reason          TEXT NOT NULL,
    kl_divergence   DOUBLE PRECISION NOT NULL,
    total_variation DOUBLE PRECISION NOT NULL,
    impact_radius   INT NOT NULL,
    evidence        JSONB,
    triggered_at    TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS alerts_triggered_at_idx ON alerts (triggered_at DESC);
`

// Postgres is a pgx-backed Store.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres parses dsn, establishes a pool, pings, and bootstraps the
// schema. The pool is tuned for sustained ingestion.
func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("store: parse postgres dsn: %w", err)
	}
	cfg.MaxConns = 20
	cfg.MinConns = 2
	cfg.MaxConnIdleTime = 5 * time.Minute
	cfg.ConnConfig.ConnectTimeout = 10 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("store: connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("store: ping postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		pool.Close()
		return nil, fmt.Errorf("store: bootstrap schema: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

// Close releases the underlying connection pool.
func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}

func (p *Postgres) AppendEvent(ctx context.Context, ev *event.Event) error {
	ctxJSON, err := json.Marshal(ev.Context)
	if err != nil {
		return fmt.Errorf("store: marshal event context: %w", err)
	}
	_, err = p.pool.Exec(ctx,
		`INSERT INTO events (id, ts, actor_id, entity_id, action, context, received_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (id) DO NOTHING`,
		ev.ID, ev.Timestamp, ev.ActorID, ev.EntityID, ev.Action, ctxJSON, ev.ReceivedAt)
	if err != nil {
		return fmt.Errorf("store: insert event %s: %w", ev.ID, err)
	}
	return nil
}

func (p *Postgres) RecentEvents(ctx context.Context, limit int) ([]*event.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := p.pool.Query(ctx,
		`SELECT id, ts, actor_id, entity_id, action, context, received_at
		 FROM events ORDER BY received_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("store: query events: %w", err)
	}
	defer rows.Close()

	var out []*event.Event
	for rows.Next() {
		var ev event.Event
		var ctxJSON []byte
		if err := rows.Scan(&ev.ID, &ev.Timestamp, &ev.ActorID, &ev.EntityID, &ev.Action, &ctxJSON, &ev.ReceivedAt); err != nil {
			return nil, fmt.Errorf("store: scan event: %w", err)
		}
		if len(ctxJSON) > 0 {
			if err := json.Unmarshal(ctxJSON, &ev.Context); err != nil {
				return nil, fmt.Errorf("store: unmarshal event context: %w", err)
			}
		}
		out = append(out, &ev)
	}
	return out, rows.Err()
}

func (p *Postgres) CountEvents(ctx context.Context) (int64, error) {
	var n int64
	if err := p.pool.QueryRow(ctx, `SELECT COUNT(*) FROM events`).Scan(&n); err != nil {
		return 0, fmt.Errorf("store: count events: %w", err)
	}
	return n, nil
}

func (p *Postgres) SaveAlert(ctx context.Context, a *alert.Alert) error {
	evidence, err := json.Marshal(struct {
		States    interface{} `json:"states"`
		Baseline  interface{} `json:"baseline"`
		Perturbed interface{} `json:"perturbed"`
	}{a.States, a.Baseline, a.Perturbed})
	if err != nil {
		return fmt.Errorf("store: marshal alert evidence: %w", err)
	}
	_, err = p.pool.Exec(ctx,
		`INSERT INTO alerts (id, scenario_id, severity, score, reason,
		                     kl_divergence, total_variation, impact_radius, evidence, triggered_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		a.ID, a.ScenarioID, string(a.Severity), a.Score, a.Reason,
		a.KLDivergence, a.TotalVariation, a.ImpactRadius, evidence, a.TriggeredAt)
	if err != nil {
		return fmt.Errorf("store: insert alert %s: %w", a.ID, err)
	}
	return nil
}

func (p *Postgres) RecentAlerts(ctx context.Context, limit int) ([]*alert.Alert, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := p.pool.Query(ctx,
		`SELECT id, scenario_id, severity, score, reason,
		        kl_divergence, total_variation, impact_radius, evidence, triggered_at
		 FROM alerts ORDER BY triggered_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("store: query alerts: %w", err)
	}
	defer rows.Close()

	var out []*alert.Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func scanAlert(row pgx.Row) (*alert.Alert, error) {
	var a alert.Alert
	var severity string
	var evidence []byte
	if err := row.Scan(&a.ID, &a.ScenarioID, &severity, &a.Score, &a.Reason,
		&a.KLDivergence, &a.TotalVariation, &a.ImpactRadius, &evidence, &a.TriggeredAt); err != nil {
		return nil, fmt.Errorf("store: scan alert: %w", err)
	}
	a.Severity = alert.Severity(severity)
	if len(evidence) > 0 {
		var ev struct {
			States    []perturb.StateShift `json:"states"`
			Baseline  markov.Distribution  `json:"baseline"`
			Perturbed markov.Distribution  `json:"perturbed"`
		}
		if err := json.Unmarshal(evidence, &ev); err != nil {
			return nil, fmt.Errorf("store: unmarshal alert evidence: %w", err)
		}
		a.States = ev.States
		a.Baseline = ev.Baseline
		a.Perturbed = ev.Perturbed
	}
	return &a, nil
}
