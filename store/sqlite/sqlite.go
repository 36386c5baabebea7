/*
Package sqlite provides the SQLite-backed implementation of the billing
storage interfaces.

PURPOSE:
  Implements billing.Store (identity + bills) and auth.AdminStore using
  SQLite. In production the same patterns apply to PostgreSQL - only minor
  SQL dialect differences.

KEY TABLES:
  residents: address PRIMARY KEY, name, uid UNIQUE (nullable)
  bills:     one row per billed address; address UNIQUE enforces the
             at-most-one-bill invariant
  admins:    dashboard credentials (bcrypt hashes), not part of the core

CONSTRAINTS AS SAFETY NET:
  The unique index on residents.uid is the final arbiter against UID
  collisions under concurrent writers. The engine pre-checks ownership
  for friendlier errors, but a race that slips past the pre-check still
  surfaces as billing.ErrUIDConflict, never as silent identity merging.

AMOUNT STORAGE:
  Bill amounts are stored as TEXT and parsed with shopspring/decimal to
  avoid floating-point drift on round-trip.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. WithTx holds the write lock for
  the whole closure, so transactional views must use the unlocked
  helpers.

WAL MODE:
  Opened with WAL and foreign keys on, as for any small service expected
  to serve reads while an import is writing.

USAGE:
  store, err := sqlite.New("./data/billdesk.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  engine := billing.NewEngine(store)

SEE ALSO:
  - billing/store.go: Interface definitions
  - billing/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/openmuni/billdesk/auth"
	"github.com/openmuni/billdesk/billing"
	"github.com/shopspring/decimal"
)

// Store implements billing.Store and auth.AdminStore using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

var (
	_ billing.Store   = (*Store)(nil)
	_ auth.AdminStore = (*Store)(nil)
)

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
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
	-- Dashboard credentials (external auth collaborator, not core)
	CREATE TABLE IF NOT EXISTS admins (
		id TEXT PRIMARY KEY,
		username TEXT UNIQUE NOT NULL,
		password_hash TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	-- Resident identity: address is the immutable primary key, uid the
	-- optional unique public lookup key
	CREATE TABLE IF NOT EXISTS residents (
		address TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		uid TEXT UNIQUE
	);

	-- Current bill per address; address UNIQUE enforces at-most-one
	CREATE TABLE IF NOT EXISTS bills (
		bill_id INTEGER PRIMARY KEY AUTOINCREMENT,
		address TEXT UNIQUE NOT NULL,
		amount TEXT NOT NULL,
		due_date TEXT NOT NULL,
		FOREIGN KEY(address) REFERENCES residents(address)
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// querier abstracts *sql.DB and *sql.Tx so the same statement helpers
// serve both the ambient store and transactional views.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// =============================================================================
// IDENTITY STORE
// =============================================================================

// FindByAddress returns the resident at the normalized address, or nil.
func (s *Store) FindByAddress(ctx context.Context, address billing.Address) (*billing.Resident, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return findByAddress(ctx, s.db, address)
}

func findByAddress(ctx context.Context, q querier, address billing.Address) (*billing.Resident, error) {
	row := q.QueryRowContext(ctx,
		`SELECT address, name, uid FROM residents WHERE address = ?`, string(address))
	return scanResident(row)
}

// FindByUID returns the resident owning the given UID, or nil.
func (s *Store) FindByUID(ctx context.Context, uid string) (*billing.Resident, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return findByUID(ctx, s.db, uid)
}

func findByUID(ctx context.Context, q querier, uid string) (*billing.Resident, error) {
	if uid == "" {
		return nil, nil
	}
	row := q.QueryRowContext(ctx,
		`SELECT address, name, uid FROM residents WHERE uid = ?`, uid)
	return scanResident(row)
}

// UpsertResident inserts or fully replaces the row for the address.
func (s *Store) UpsertResident(ctx context.Context, r billing.Resident) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return upsertResident(ctx, s.db, r)
}

func upsertResident(ctx context.Context, q querier, r billing.Resident) error {
	query := `
		INSERT INTO residents (address, name, uid) VALUES (?, ?, ?)
		ON CONFLICT(address) DO UPDATE SET
			name = excluded.name,
			uid = excluded.uid
	`
	_, err := q.ExecContext(ctx, query, string(r.Address), r.Name, nullString(r.UID))
	if err != nil {
		if isUniqueConstraintError(err) {
			return &billing.UIDConflictError{UID: r.UID, Requested: r.Address}
		}
		return fmt.Errorf("failed to upsert resident: %w", err)
	}
	return nil
}

func scanResident(row *sql.Row) (*billing.Resident, error) {
	var (
		r   billing.Resident
		uid sql.NullString
	)
	err := row.Scan(&r.Address, &r.Name, &uid)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan resident: %w", err)
	}
	r.UID = uid.String
	return &r, nil
}

// =============================================================================
// BILL STORE
// =============================================================================

// FindBill returns the current bill for the address, or nil.
func (s *Store) FindBill(ctx context.Context, address billing.Address) (*billing.Bill, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return findBill(ctx, s.db, address)
}

func findBill(ctx context.Context, q querier, address billing.Address) (*billing.Bill, error) {
	var (
		b      billing.Bill
		amount string
	)
	row := q.QueryRowContext(ctx,
		`SELECT address, amount, due_date FROM bills WHERE address = ?`, string(address))
	err := row.Scan(&b.Address, &amount, &b.DueDate)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan bill: %w", err)
	}
	b.Amount, err = decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("failed to parse stored amount %q: %w", amount, err)
	}
	return &b, nil
}

// ReplaceBill deletes any existing bill for the address and inserts the
// new one only when the amount is positive.
func (s *Store) ReplaceBill(ctx context.Context, bill billing.Bill) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return replaceBill(ctx, s.db, bill)
}

func replaceBill(ctx context.Context, q querier, bill billing.Bill) error {
	if _, err := q.ExecContext(ctx,
		`DELETE FROM bills WHERE address = ?`, string(bill.Address)); err != nil {
		return fmt.Errorf("failed to delete old bill: %w", err)
	}
	if !bill.Amount.IsPositive() {
		return nil
	}
	_, err := q.ExecContext(ctx,
		`INSERT INTO bills (address, amount, due_date) VALUES (?, ?, ?)`,
		string(bill.Address), bill.Amount.String(), bill.DueDate)
	if err != nil {
		return fmt.Errorf("failed to insert bill: %w", err)
	}
	return nil
}

// ListAllWithResidents returns every resident left-joined with their
// current bill, ordered by address ascending.
func (s *Store) ListAllWithResidents(ctx context.Context) ([]billing.ResidentBill, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listAllWithResidents(ctx, s.db)
}

func listAllWithResidents(ctx context.Context, q querier) ([]billing.ResidentBill, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT r.address, r.name, r.uid, b.amount, b.due_date
		FROM residents r
		LEFT JOIN bills b ON r.address = b.address
		ORDER BY r.address ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list residents: %w", err)
	}
	defer rows.Close()

	var result []billing.ResidentBill
	for rows.Next() {
		var (
			rb      billing.ResidentBill
			uid     sql.NullString
			amount  sql.NullString
			dueDate sql.NullString
		)
		if err := rows.Scan(&rb.Resident.Address, &rb.Resident.Name, &uid, &amount, &dueDate); err != nil {
			return nil, fmt.Errorf("failed to scan listing row: %w", err)
		}
		rb.Resident.UID = uid.String
		if amount.Valid {
			parsed, err := decimal.NewFromString(amount.String)
			if err != nil {
				return nil, fmt.Errorf("failed to parse stored amount %q: %w", amount.String, err)
			}
			rb.Bill = &billing.Bill{
				Address: rb.Resident.Address,
				Amount:  parsed,
				DueDate: dueDate.String,
			}
		}
		result = append(result, rb)
	}
	return result, rows.Err()
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx runs fn against a transactional view of the store. The write
// lock is held for the whole closure, so concurrent reconciles serialize
// here rather than interleave at the statement level.
func (s *Store) WithTx(ctx context.Context, fn func(store billing.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{tx: sqlTx}); err != nil {
		return err
	}

	return sqlTx.Commit()
}

// txStore is the transactional view handed to WithTx closures. It must
// not take the parent's mutex: WithTx already holds it.
type txStore struct {
	tx *sql.Tx
}

func (ts *txStore) FindByAddress(ctx context.Context, address billing.Address) (*billing.Resident, error) {
	return findByAddress(ctx, ts.tx, address)
}

func (ts *txStore) FindByUID(ctx context.Context, uid string) (*billing.Resident, error) {
	return findByUID(ctx, ts.tx, uid)
}

func (ts *txStore) UpsertResident(ctx context.Context, r billing.Resident) error {
	return upsertResident(ctx, ts.tx, r)
}

func (ts *txStore) FindBill(ctx context.Context, address billing.Address) (*billing.Bill, error) {
	return findBill(ctx, ts.tx, address)
}

func (ts *txStore) ReplaceBill(ctx context.Context, bill billing.Bill) error {
	return replaceBill(ctx, ts.tx, bill)
}

func (ts *txStore) ListAllWithResidents(ctx context.Context) ([]billing.ResidentBill, error) {
	return listAllWithResidents(ctx, ts.tx)
}

// WithTx on a transactional view reuses the open transaction. SQLite has
// no nested transactions; the outer commit/rollback governs.
func (ts *txStore) WithTx(_ context.Context, fn func(store billing.Store) error) error {
	return fn(ts)
}

// =============================================================================
// ADMIN STORE
// =============================================================================

// GetAdminByUsername returns the admin record, or nil if none exists.
func (s *Store) GetAdminByUsername(ctx context.Context, username string) (*auth.Admin, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		a       auth.Admin
		created string
	)
	row := s.db.QueryRowContext(ctx,
		`SELECT id, username, password_hash, created_at FROM admins WHERE username = ?`, username)
	err := row.Scan(&a.ID, &a.Username, &a.PasswordHash, &created)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan admin: %w", err)
	}
	a.CreatedAt, _ = time.Parse(time.RFC3339, created)
	return &a, nil
}

// SaveAdmin inserts a new admin. Usernames are unique.
func (s *Store) SaveAdmin(ctx context.Context, a auth.Admin) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO admins (id, username, password_hash, created_at) VALUES (?, ?, ?, ?)`,
		a.ID, a.Username, a.PasswordHash, a.CreatedAt.UTC().Format(time.RFC3339))
	if err != nil {
		if isUniqueConstraintError(err) {
			return auth.ErrUsernameTaken
		}
		return fmt.Errorf("failed to save admin: %w", err)
	}
	return nil
}

// CountAdmins returns how many admin accounts exist. Used to decide
// whether to seed the default account on startup.
func (s *Store) CountAdmins(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM admins`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count admins: %w", err)
	}
	return n, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func isUniqueConstraintError(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "duplicate key"))
}
