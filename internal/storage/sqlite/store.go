// Package sqlite provides an AccountStore on an embedded SQLite database.
// It is used for local development and tests; every statement runs on a
// single connection, which gives the per-account and role-change
// serialisation the store contract asks for.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Hata214/BackEnd/internal/models"
	"github.com/Hata214/BackEnd/internal/storage"
	"github.com/google/uuid"

	_ "modernc.org/sqlite"
)

var _ storage.AccountStore = (*Store)(nil)

const accountColumns = `id, username, email, password_hash, role, active, failed_attempts, locked_until, last_login_at, created_at, updated_at`

// Store provides SQLite-backed persistence for accounts.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// NewAccountStore opens (or creates) the database at path and runs migrations.
func NewAccountStore(ctx context.Context, path string) (*Store, error) {
	dsn := path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	s := newStore(db)
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func newStore(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// Close releases database resources.
func (s *Store) Close() {
	if s.db != nil {
		s.db.Close()
	}
}

func (s *Store) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS accounts (
			id TEXT PRIMARY KEY,
			username TEXT NOT NULL UNIQUE,
			email TEXT NOT NULL UNIQUE COLLATE NOCASE,
			password_hash TEXT NOT NULL,
			role TEXT NOT NULL DEFAULT 'user' CHECK (role IN ('user', 'admin', 'super_admin')),
			active INTEGER NOT NULL DEFAULT 1,
			failed_attempts INTEGER NOT NULL DEFAULT 0 CHECK (failed_attempts >= 0),
			locked_until TEXT,
			last_login_at TEXT,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_accounts_role ON accounts(role);`,
		`CREATE TRIGGER IF NOT EXISTS accounts_protect_super_admin_update
			BEFORE UPDATE OF role ON accounts
			WHEN OLD.role = 'super_admin' AND NEW.role <> 'super_admin'
			BEGIN SELECT RAISE(ABORT, 'super_admin role is immutable'); END;`,
		`CREATE TRIGGER IF NOT EXISTS accounts_protect_super_admin_delete
			BEFORE DELETE ON accounts
			WHEN OLD.role = 'super_admin'
			BEGIN SELECT RAISE(ABORT, 'super_admin role is immutable'); END;`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply migrations: %w", err)
		}
	}
	return nil
}

// CreateAccount inserts a new account row.
func (s *Store) CreateAccount(ctx context.Context, account models.Account) (models.Account, error) {
	if account.ID == "" {
		account.ID = uuid.NewString()
	}
	if account.Role == "" {
		account.Role = models.RoleUser
	}
	now := formatTime(s.now())
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO accounts (id, username, email, password_hash, role, active, failed_attempts, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, 0, ?, ?)`,
		account.ID, account.Username, strings.ToLower(account.Email), account.PasswordHash,
		string(account.Role), boolToInt(account.Active), now, now,
	)
	if err != nil {
		return models.Account{}, mapError(fmt.Errorf("create account: %w", err))
	}
	return s.FindByID(ctx, account.ID)
}

// FindByID fetches an account by its id.
func (s *Store) FindByID(ctx context.Context, id string) (models.Account, error) {
	return scanAccount(s.db.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = ?`, id))
}

// FindByIdentifier fetches the account matching the identifier as id, email
// or username, preferring an id match, then email, then username.
func (s *Store) FindByIdentifier(ctx context.Context, identifier string) (models.Account, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts
		 WHERE id = ?1 OR email = ?1 OR username = ?1
		 ORDER BY CASE WHEN id = ?1 THEN 0 WHEN email = ?1 THEN 1 ELSE 2 END
		 LIMIT 1`,
		identifier)
	return scanAccount(row)
}

// ListAccounts returns every account ordered by creation time.
func (s *Store) ListAccounts(ctx context.Context) ([]models.Account, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+accountColumns+` FROM accounts ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	accounts := []models.Account{}
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, account)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate accounts: %w", err)
	}
	return accounts, nil
}

// CountByRole returns the number of accounts holding role.
func (s *Store) CountByRole(ctx context.Context, role models.Role) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM accounts WHERE role = ?`, string(role)).Scan(&count); err != nil {
		return 0, fmt.Errorf("count accounts by role: %w", err)
	}
	return count, nil
}

// MutateLoginState runs fn against the account and persists the lockout fields.
func (s *Store) MutateLoginState(ctx context.Context, id string, fn storage.LoginStateFunc) (models.Account, error) {
	var out models.Account
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		account, err := scanAccount(tx.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = ?`, id))
		if err != nil {
			return err
		}
		if err := fn(&account); err != nil {
			return err
		}
		account.UpdatedAt = s.now()
		if _, err := tx.ExecContext(ctx,
			`UPDATE accounts SET failed_attempts = ?, locked_until = ?, last_login_at = ?, updated_at = ? WHERE id = ?`,
			account.FailedAttempts, nullTime(account.LockedUntil), nullTime(account.LastLoginAt), formatTime(account.UpdatedAt), id,
		); err != nil {
			return fmt.Errorf("update login state: %w", err)
		}
		out = account
		return nil
	})
	if err != nil {
		return models.Account{}, mapError(err)
	}
	return out, nil
}

// MutateRole runs fn with the current admin count and persists the role.
func (s *Store) MutateRole(ctx context.Context, id string, fn storage.RoleChangeFunc) (models.Account, error) {
	var out models.Account
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		account, err := scanAccount(tx.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = ?`, id))
		if err != nil {
			return err
		}
		var admins int
		if err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM accounts WHERE role = ? AND id <> ?`, string(models.RoleAdmin), id,
		).Scan(&admins); err != nil {
			return fmt.Errorf("count admins: %w", err)
		}
		previous := account.Role
		if err := fn(&account, admins); err != nil {
			return err
		}
		if previous == models.RoleSuperAdmin && account.Role != previous {
			return storage.ErrProtectedRole
		}
		account.UpdatedAt = s.now()
		if _, err := tx.ExecContext(ctx,
			`UPDATE accounts SET role = ?, updated_at = ? WHERE id = ?`,
			string(account.Role), formatTime(account.UpdatedAt), id,
		); err != nil {
			return fmt.Errorf("update role: %w", err)
		}
		out = account
		return nil
	})
	if err != nil {
		return models.Account{}, mapError(err)
	}
	return out, nil
}

// SetActive flips the active flag after guard approves. Reactivation also clears lockout state.
func (s *Store) SetActive(ctx context.Context, id string, active bool, guard storage.AccountGuard) (models.Account, error) {
	var out models.Account
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		account, err := scanAccount(tx.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = ?`, id))
		if err != nil {
			return err
		}
		if guard != nil {
			if err := guard(account); err != nil {
				return err
			}
		}
		account.Active = active
		if active {
			account.FailedAttempts = 0
			account.LockedUntil = nil
		}
		account.UpdatedAt = s.now()
		if _, err := tx.ExecContext(ctx,
			`UPDATE accounts SET active = ?, failed_attempts = ?, locked_until = ?, updated_at = ? WHERE id = ?`,
			boolToInt(account.Active), account.FailedAttempts, nullTime(account.LockedUntil), formatTime(account.UpdatedAt), id,
		); err != nil {
			return fmt.Errorf("update active flag: %w", err)
		}
		out = account
		return nil
	})
	if err != nil {
		return models.Account{}, mapError(err)
	}
	return out, nil
}

// SetPasswordHash replaces the stored password hash.
func (s *Store) SetPasswordHash(ctx context.Context, id, hash string) (models.Account, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE accounts SET password_hash = ?, updated_at = ? WHERE id = ?`,
		hash, formatTime(s.now()), id)
	if err != nil {
		return models.Account{}, mapError(fmt.Errorf("update password: %w", err))
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return models.Account{}, storage.ErrNotFound
	}
	return s.FindByID(ctx, id)
}

// DeleteAccount removes an account after guard approves.
func (s *Store) DeleteAccount(ctx context.Context, id string, guard storage.AccountGuard) error {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		account, err := scanAccount(tx.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = ?`, id))
		if err != nil {
			return err
		}
		if guard != nil {
			if err := guard(account); err != nil {
				return err
			}
		}
		result, err := tx.ExecContext(ctx, `DELETE FROM accounts WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("delete account: %w", err)
		}
		if n, _ := result.RowsAffected(); n == 0 {
			return storage.ErrNotFound
		}
		return nil
	})
	return mapError(err)
}

func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAccount(s scanner) (models.Account, error) {
	var account models.Account
	var role string
	var active int
	var lockedUntil, lastLogin sql.NullString
	var createdAt, updatedAt string

	err := s.Scan(&account.ID, &account.Username, &account.Email, &account.PasswordHash, &role, &active,
		&account.FailedAttempts, &lockedUntil, &lastLogin, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Account{}, storage.ErrNotFound
		}
		return models.Account{}, fmt.Errorf("scan account: %w", err)
	}

	account.Role = models.Role(role)
	account.Active = active != 0
	if account.LockedUntil, err = parseNullTime(lockedUntil); err != nil {
		return models.Account{}, err
	}
	if account.LastLoginAt, err = parseNullTime(lastLogin); err != nil {
		return models.Account{}, err
	}
	if account.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return models.Account{}, fmt.Errorf("parse created_at: %w", err)
	}
	if account.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return models.Account{}, fmt.Errorf("parse updated_at: %w", err)
	}
	return account, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func parseNullTime(v sql.NullString) (*time.Time, error) {
	if !v.Valid || v.String == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339Nano, v.String)
	if err != nil {
		return nil, fmt.Errorf("parse timestamp %q: %w", v.String, err)
	}
	return &t, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func mapError(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "UNIQUE constraint failed"):
		return storage.ErrAlreadyExists
	case strings.Contains(msg, "super_admin role is immutable"):
		return storage.ErrProtectedRole
	}
	return err
}
