/*
Package sqlite provides the SQLite-backed reservation ledger and parameter store.

PURPOSE:
  Durable storage for reservations and system parameters. Implements
  booking.TxStore and booking.ParameterStore.

SCHEMA:
  reservations        One row per stay; status-based lifecycle
  system_parameters   key / type / value records

CONCURRENCY:
  - One connection, guarded by a RWMutex: many readers, one writer
  - WithTx opens an IMMEDIATE transaction (_txlock=immediate), so the
    write lock is taken before the overlap query. A second create cannot
    read stale availability between our read and our insert.
  - UpdateStatus is "UPDATE ... WHERE id = ? AND status = ?"; zero rows
    affected means another writer moved the reservation first.
  - SQLITE_BUSY / SQLITE_LOCKED and context expiry surface as
    booking.TransientError.

WAL MODE:
  Write-Ahead Logging for file databases: readers don't block the writer
  and crash recovery is better.

USAGE:
  store, err := sqlite.New("./data/stay.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  svc := booking.NewService(store, factory.NewParameterProvider(store))

MIGRATION:
  Schema is auto-migrated on New() and default parameters are seeded when
  absent. Existing parameter values are never overwritten.

SEE ALSO:
  - booking/store.go: Interface definitions
  - booking/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/warp/stay-booking/booking"
	"github.com/warp/stay-booking/factory"
)

// Store implements booking.TxStore and booking.ParameterStore using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	dsn := dbPath + "?_foreign_keys=on&_busy_timeout=5000&_txlock=immediate"
	if dbPath != ":memory:" {
		dsn += "&_journal_mode=WAL"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection keeps ":memory:" one database and serializes writers.
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	if err := store.seedParameters(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to seed parameters: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS reservations (
		id TEXT PRIMARY KEY,
		arrival_date TEXT NOT NULL,
		arrival_block TEXT NOT NULL CHECK (arrival_block IN ('morning', 'night')),
		departure_date TEXT NOT NULL,
		departure_block TEXT NOT NULL CHECK (departure_block IN ('morning', 'night')),
		adults INTEGER NOT NULL CHECK (adults >= 0),
		children INTEGER NOT NULL CHECK (children >= 0),
		status TEXT NOT NULL CHECK (status IN ('requested', 'confirmed', 'cancelled')),
		estimated_amount TEXT NOT NULL,
		final_amount TEXT,
		deposit_amount TEXT,
		deposit_reference TEXT,
		client_name TEXT,
		client_email TEXT,
		client_phone TEXT,
		client_organization TEXT,
		client_notes TEXT,
		cancellation_reason TEXT,
		refund_eligible INTEGER,
		confirmed_at TEXT,
		cancelled_at TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		CHECK (departure_date > arrival_date)
	);

	-- Overlap queries (hot path): active reservations by date window
	CREATE INDEX IF NOT EXISTS idx_reservations_active_dates
		ON reservations(arrival_date, departure_date)
		WHERE status != 'cancelled';

	CREATE INDEX IF NOT EXISTS idx_reservations_status
		ON reservations(status);

	CREATE TABLE IF NOT EXISTS system_parameters (
		key TEXT PRIMARY KEY,
		type TEXT NOT NULL CHECK (type IN ('integer', 'boolean', 'string')),
		value TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

func (s *Store) seedParameters(ctx context.Context) error {
	now := time.Now().UTC().Format(time.RFC3339)
	for _, p := range factory.RecordsFromParameters(booking.DefaultParameters()) {
		_, err := s.db.ExecContext(ctx,
			`INSERT OR IGNORE INTO system_parameters (key, type, value, updated_at) VALUES (?, ?, ?, ?)`,
			p.Key, string(p.Type), p.Value, now)
		if err != nil {
			return err
		}
	}
	return nil
}

// Reset clears every reservation and restores the default parameters
// (for demo scenarios).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, table := range []string{"reservations", "system_parameters"} {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return classify("reset", err)
		}
	}
	return s.seedParameters(ctx)
}

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// =============================================================================
// RESERVATION STORE (booking.ReservationStore interface)
// =============================================================================

func (s *Store) FindOverlapping(ctx context.Context, start, end booking.Date) ([]booking.Reservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return findOverlapping(ctx, s.db, start, end)
}

func (s *Store) Insert(ctx context.Context, r booking.Reservation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return insert(ctx, s.db, r)
}

func (s *Store) UpdateStatus(ctx context.Context, r booking.Reservation, from booking.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return updateStatus(ctx, s.db, r, from)
}

func (s *Store) Get(ctx context.Context, id booking.ReservationID) (*booking.Reservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return get(ctx, s.db, id)
}

func (s *Store) List(ctx context.Context, filter booking.ReservationFilter) ([]booking.Reservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return list(ctx, s.db, filter)
}

// WithTx executes a function within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(store booking.ReservationStore) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return classify("begin transaction", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{tx: sqlTx}); err != nil {
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return classify("commit transaction", err)
	}
	return nil
}

// txStore runs every call on the open transaction. The parent lock is held.
type txStore struct {
	tx *sql.Tx
}

func (ts *txStore) FindOverlapping(ctx context.Context, start, end booking.Date) ([]booking.Reservation, error) {
	return findOverlapping(ctx, ts.tx, start, end)
}

func (ts *txStore) Insert(ctx context.Context, r booking.Reservation) error {
	return insert(ctx, ts.tx, r)
}

func (ts *txStore) UpdateStatus(ctx context.Context, r booking.Reservation, from booking.Status) error {
	return updateStatus(ctx, ts.tx, r, from)
}

func (ts *txStore) Get(ctx context.Context, id booking.ReservationID) (*booking.Reservation, error) {
	return get(ctx, ts.tx, id)
}

func (ts *txStore) List(ctx context.Context, filter booking.ReservationFilter) ([]booking.Reservation, error) {
	return list(ctx, ts.tx, filter)
}

// =============================================================================
// QUERIES
// =============================================================================

const reservationColumns = `
	id, arrival_date, arrival_block, departure_date, departure_block, adults, children,
	status, estimated_amount, final_amount, deposit_amount, deposit_reference,
	client_name, client_email, client_phone, client_organization, client_notes,
	cancellation_reason, refund_eligible, confirmed_at, cancelled_at, created_at, updated_at`

func findOverlapping(ctx context.Context, q querier, start, end booking.Date) ([]booking.Reservation, error) {
	query := `SELECT ` + reservationColumns + `
		FROM reservations
		WHERE status != 'cancelled'
		  AND arrival_date <= ? AND departure_date >= ?
		ORDER BY arrival_date ASC, created_at ASC`

	return queryReservations(ctx, q, "find overlapping reservations", query, end.String(), start.String())
}

func insert(ctx context.Context, q querier, r booking.Reservation) error {
	query := `INSERT INTO reservations (` + reservationColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := q.ExecContext(ctx, query,
		string(r.ID),
		r.ArrivalDate.String(),
		string(r.ArrivalBlock),
		r.DepartureDate.String(),
		string(r.DepartureBlock),
		r.Adults,
		r.Children,
		string(r.Status),
		r.EstimatedAmount.String(),
		nullDecimal(r.FinalAmount),
		nullDecimal(r.DepositAmount),
		r.DepositReference,
		r.Client.Name,
		r.Client.Email,
		r.Client.Phone,
		r.Client.Organization,
		r.Client.Notes,
		r.CancellationReason,
		nullBool(r.RefundEligible),
		nullTime(r.ConfirmedAt),
		nullTime(r.CancelledAt),
		formatTime(r.CreatedAt),
		formatTime(r.UpdatedAt),
	)
	if err != nil {
		return classify("insert reservation", err)
	}
	return nil
}

func updateStatus(ctx context.Context, q querier, r booking.Reservation, from booking.Status) error {
	query := `
		UPDATE reservations SET
			status = ?, adults = ?, children = ?,
			final_amount = ?, deposit_amount = ?, deposit_reference = ?,
			cancellation_reason = ?, refund_eligible = ?,
			confirmed_at = ?, cancelled_at = ?, updated_at = ?
		WHERE id = ? AND status = ?`

	res, err := q.ExecContext(ctx, query,
		string(r.Status), r.Adults, r.Children,
		nullDecimal(r.FinalAmount), nullDecimal(r.DepositAmount), r.DepositReference,
		r.CancellationReason, nullBool(r.RefundEligible),
		nullTime(r.ConfirmedAt), nullTime(r.CancelledAt), formatTime(r.UpdatedAt),
		string(r.ID), string(from),
	)
	if err != nil {
		return classify("update reservation status", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return classify("update reservation status", err)
	}
	if n == 0 {
		var exists int
		if err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM reservations WHERE id = ?`, string(r.ID)).Scan(&exists); err != nil {
			return classify("update reservation status", err)
		}
		if exists == 0 {
			return booking.ErrReservationNotFound
		}
		return booking.ErrConcurrentModification
	}
	return nil
}

func get(ctx context.Context, q querier, id booking.ReservationID) (*booking.Reservation, error) {
	query := `SELECT ` + reservationColumns + ` FROM reservations WHERE id = ?`

	rs, err := queryReservations(ctx, q, "get reservation", query, string(id))
	if err != nil {
		return nil, err
	}
	if len(rs) == 0 {
		return nil, booking.ErrReservationNotFound
	}
	return &rs[0], nil
}

func list(ctx context.Context, q querier, filter booking.ReservationFilter) ([]booking.Reservation, error) {
	var (
		where []string
		args  []any
	)
	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, st := range filter.Statuses {
			placeholders[i] = "?"
			args = append(args, string(st))
		}
		where = append(where, "status IN ("+strings.Join(placeholders, ", ")+")")
	}
	if filter.ArrivalBefore != nil {
		where = append(where, "arrival_date < ?")
		args = append(args, filter.ArrivalBefore.String())
	}

	query := `SELECT ` + reservationColumns + ` FROM reservations`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY arrival_date ASC, created_at ASC"

	return queryReservations(ctx, q, "list reservations", query, args...)
}

func queryReservations(ctx context.Context, q querier, op, query string, args ...any) ([]booking.Reservation, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify(op, err)
	}
	defer rows.Close()

	var out []booking.Reservation
	for rows.Next() {
		r, err := scanReservation(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(op, err)
	}
	return out, nil
}

func scanReservation(rows *sql.Rows) (booking.Reservation, error) {
	var (
		r                                       booking.Reservation
		id, arrival, arrivalBlock               string
		departure, departureBlock, status       string
		estimated                               string
		final, deposit, depositRef              sql.NullString
		name, email, phone, organization, notes sql.NullString
		reason                                  sql.NullString
		refund                                  sql.NullInt64
		confirmedAt, cancelledAt                sql.NullString
		createdAt, updatedAt                    string
	)

	err := rows.Scan(
		&id, &arrival, &arrivalBlock, &departure, &departureBlock, &r.Adults, &r.Children,
		&status, &estimated, &final, &deposit, &depositRef,
		&name, &email, &phone, &organization, &notes,
		&reason, &refund, &confirmedAt, &cancelledAt, &createdAt, &updatedAt,
	)
	if err != nil {
		return booking.Reservation{}, err
	}

	r.ID = booking.ReservationID(id)
	if r.ArrivalDate, err = booking.ParseDate(arrival); err != nil {
		return booking.Reservation{}, err
	}
	if r.DepartureDate, err = booking.ParseDate(departure); err != nil {
		return booking.Reservation{}, err
	}
	r.ArrivalBlock = booking.Block(arrivalBlock)
	r.DepartureBlock = booking.Block(departureBlock)
	r.Status = booking.Status(status)

	if r.EstimatedAmount, err = decimal.NewFromString(estimated); err != nil {
		return booking.Reservation{}, fmt.Errorf("estimated_amount: %w", err)
	}
	if r.FinalAmount, err = parseNullDecimal(final); err != nil {
		return booking.Reservation{}, fmt.Errorf("final_amount: %w", err)
	}
	if r.DepositAmount, err = parseNullDecimal(deposit); err != nil {
		return booking.Reservation{}, fmt.Errorf("deposit_amount: %w", err)
	}
	r.DepositReference = depositRef.String

	r.Client = booking.Client{
		Name:         name.String,
		Email:        email.String,
		Phone:        phone.String,
		Organization: organization.String,
		Notes:        notes.String,
	}

	r.CancellationReason = reason.String
	if refund.Valid {
		eligible := refund.Int64 != 0
		r.RefundEligible = &eligible
	}

	r.ConfirmedAt = parseNullTime(confirmedAt)
	r.CancelledAt = parseNullTime(cancelledAt)
	r.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	r.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)

	return r, nil
}

// =============================================================================
// PARAMETER STORE (booking.ParameterStore interface)
// =============================================================================

func (s *Store) LoadParameters(ctx context.Context) ([]booking.ParameterRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `SELECT key, type, value FROM system_parameters ORDER BY key`)
	if err != nil {
		return nil, classify("load parameters", err)
	}
	defer rows.Close()

	var out []booking.ParameterRecord
	for rows.Next() {
		var p booking.ParameterRecord
		var typ string
		if err := rows.Scan(&p.Key, &typ, &p.Value); err != nil {
			return nil, fmt.Errorf("load parameters: %w", err)
		}
		p.Type = booking.ParameterType(typ)
		out = append(out, p)
	}
	return out, rows.Err()
}

// SaveParameters upserts all records atomically.
func (s *Store) SaveParameters(ctx context.Context, records []booking.ParameterRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return classify("begin transaction", err)
	}
	defer sqlTx.Rollback()

	now := time.Now().UTC().Format(time.RFC3339)
	for _, p := range records {
		_, err := sqlTx.ExecContext(ctx, `
			INSERT INTO system_parameters (key, type, value, updated_at) VALUES (?, ?, ?, ?)
			ON CONFLICT(key) DO UPDATE SET type = excluded.type, value = excluded.value, updated_at = excluded.updated_at`,
			p.Key, string(p.Type), p.Value, now)
		if err != nil {
			return classify("save parameter "+p.Key, err)
		}
	}

	if err := sqlTx.Commit(); err != nil {
		return classify("commit parameters", err)
	}
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

// classify marks contention and timeouts as retryable.
func classify(op string, err error) error {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) &&
		(sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked) {
		return &booking.TransientError{Op: op, Err: err}
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return &booking.TransientError{Op: op, Err: err}
	}
	return fmt.Errorf("failed to %s: %w", op, err)
}

func formatTime(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func parseNullTime(s sql.NullString) *time.Time {
	if !s.Valid {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, s.String)
	if err != nil {
		return nil
	}
	return &t
}

func nullDecimal(d *decimal.Decimal) sql.NullString {
	if d == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: d.String(), Valid: true}
}

func parseNullDecimal(s sql.NullString) (*decimal.Decimal, error) {
	if !s.Valid {
		return nil, nil
	}
	d, err := decimal.NewFromString(s.String)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func nullBool(b *bool) sql.NullInt64 {
	if b == nil {
		return sql.NullInt64{}
	}
	if *b {
		return sql.NullInt64{Int64: 1, Valid: true}
	}
	return sql.NullInt64{Int64: 0, Valid: true}
}
