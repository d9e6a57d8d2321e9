package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fdezr/frontdesk/internal/conversation"
)

// PostgresSessionStore persists conversation state in PostgreSQL. The full
// state is stored as a JSONB document keyed by session id.
type PostgresSessionStore struct {
	pool *pgxpool.Pool
}

func NewPostgresSessionStore(ctx context.Context, databaseURL string) (*PostgresSessionStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := initSessionSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresSessionStore{pool: pool}, nil
}

func initSessionSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS booking_sessions (
			id TEXT PRIMARY KEY,
			tenant_id TEXT NOT NULL,
			state JSONB NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE INDEX IF NOT EXISTS idx_booking_sessions_tenant_updated ON booking_sessions (tenant_id, updated_at);`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *PostgresSessionStore) Get(ctx context.Context, id string) (*conversation.State, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx,
		`SELECT state FROM booking_sessions WHERE id=$1`, id).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query session: %w", err)
	}

	st, err := decodeState(raw)
	if err != nil {
		return nil, fmt.Errorf("decode session %s: %w", id, err)
	}
	return st, nil
}

func (s *PostgresSessionStore) Put(ctx context.Context, state *conversation.State) error {
	state.UpdatedAt = time.Now().UTC()
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode session %s: %w", state.ID, err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO booking_sessions (id, tenant_id, state, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (id) DO UPDATE SET state=EXCLUDED.state, updated_at=EXCLUDED.updated_at`,
		state.ID, state.TenantID, raw, state.CreatedAt, state.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (s *PostgresSessionStore) Delete(ctx context.Context, id string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM booking_sessions WHERE id=$1`, id); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

func (s *PostgresSessionStore) Close() error {
	s.pool.Close()
	return nil
}

// PostgresAppointmentStore persists confirmed bookings in PostgreSQL.
type PostgresAppointmentStore struct {
	pool *pgxpool.Pool
}

func NewPostgresAppointmentStore(ctx context.Context, databaseURL string) (*PostgresAppointmentStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := initAppointmentSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresAppointmentStore{pool: pool}, nil
}

func initAppointmentSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS appointments (
			id TEXT PRIMARY KEY,
			tenant_id TEXT NOT NULL,
			session_id TEXT NOT NULL,
			event_id TEXT NOT NULL DEFAULT '',
			name TEXT NOT NULL,
			email TEXT NOT NULL,
			phone TEXT NOT NULL,
			slot_start TIMESTAMPTZ NOT NULL,
			slot_end TIMESTAMPTZ NOT NULL,
			time_zone TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE INDEX IF NOT EXISTS idx_appointments_tenant_created ON appointments (tenant_id, created_at);`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *PostgresAppointmentStore) Save(ctx context.Context, appt Appointment) error {
	if appt.CreatedAt.IsZero() {
		appt.CreatedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO appointments (id, tenant_id, session_id, event_id, name, email, phone, slot_start, slot_end, time_zone, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		appt.ID, appt.TenantID, appt.SessionID, appt.EventID,
		appt.Name, appt.Email, appt.Phone,
		appt.SlotStart, appt.SlotEnd, appt.TimeZone, appt.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("save appointment: %w", err)
	}
	return nil
}

func (s *PostgresAppointmentStore) ByID(ctx context.Context, id string) (Appointment, error) {
	var a Appointment
	err := s.pool.QueryRow(ctx,
		`SELECT id, tenant_id, session_id, event_id, name, email, phone, slot_start, slot_end, time_zone, created_at
		 FROM appointments WHERE id=$1`, id).
		Scan(&a.ID, &a.TenantID, &a.SessionID, &a.EventID, &a.Name, &a.Email, &a.Phone,
			&a.SlotStart, &a.SlotEnd, &a.TimeZone, &a.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Appointment{}, ErrNotFound
	}
	if err != nil {
		return Appointment{}, fmt.Errorf("query appointment: %w", err)
	}
	return a, nil
}

func (s *PostgresAppointmentStore) ByTenant(ctx context.Context, tenantID string, limit int) ([]Appointment, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, tenant_id, session_id, event_id, name, email, phone, slot_start, slot_end, time_zone, created_at
		 FROM appointments WHERE tenant_id=$1 ORDER BY created_at DESC LIMIT $2`,
		tenantID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query appointments: %w", err)
	}
	defer rows.Close()

	items := make([]Appointment, 0, limit)
	for rows.Next() {
		var a Appointment
		if err := rows.Scan(&a.ID, &a.TenantID, &a.SessionID, &a.EventID, &a.Name, &a.Email, &a.Phone,
			&a.SlotStart, &a.SlotEnd, &a.TimeZone, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan appointment row: %w", err)
		}
		items = append(items, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate appointment rows: %w", err)
	}
	return items, nil
}

func (s *PostgresAppointmentStore) Close() error {
	s.pool.Close()
	return nil
}
