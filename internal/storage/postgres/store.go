package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Hata214/BackEnd/internal/models"
	"github.com/Hata214/BackEnd/internal/storage"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Ensure Store satisfies the storage.AccountStore interface at compile time.
var _ storage.AccountStore = (*Store)(nil)

// roleChangeLockKey is the advisory lock serialising role changes.
const roleChangeLockKey int64 = 0x524f4c45

const accountColumns = `id, username, email, password_hash, role, active, failed_attempts, locked_until, last_login_at, created_at, updated_at`

// Store provides Postgres-backed persistence for accounts.
type Store struct {
	pool *pgxpool.Pool
}

// NewAccountStore creates a new Store and runs migrations.
func NewAccountStore(ctx context.Context, databaseURL string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	s := &Store{pool: pool}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return s, nil
}

// Close releases database resources.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

func (s *Store) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS accounts (
			id TEXT PRIMARY KEY,
			username TEXT UNIQUE NOT NULL,
			email TEXT UNIQUE NOT NULL,
			password_hash TEXT NOT NULL,
			role TEXT NOT NULL DEFAULT 'user',
			active BOOLEAN NOT NULL DEFAULT TRUE,
			failed_attempts INTEGER NOT NULL DEFAULT 0,
			locked_until TIMESTAMPTZ,
			last_login_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);`,
		`ALTER TABLE accounts DROP CONSTRAINT IF EXISTS accounts_role_check;`,
		`ALTER TABLE accounts ADD CONSTRAINT accounts_role_check CHECK (role IN ('user', 'admin', 'super_admin'));`,
		`ALTER TABLE accounts DROP CONSTRAINT IF EXISTS accounts_failed_attempts_check;`,
		`ALTER TABLE accounts ADD CONSTRAINT accounts_failed_attempts_check CHECK (failed_attempts >= 0);`,
		`CREATE UNIQUE INDEX IF NOT EXISTS accounts_email_lower_idx ON accounts (lower(email));`,
		`CREATE INDEX IF NOT EXISTS accounts_role_idx ON accounts (role);`,
		`CREATE OR REPLACE FUNCTION protect_super_admin() RETURNS trigger AS $$
		BEGIN
			IF TG_OP = 'DELETE' AND OLD.role = 'super_admin' THEN
				RAISE EXCEPTION 'super_admin role is immutable';
			END IF;
			IF TG_OP = 'UPDATE' AND OLD.role = 'super_admin' AND NEW.role <> 'super_admin' THEN
				RAISE EXCEPTION 'super_admin role is immutable';
			END IF;
			IF TG_OP = 'DELETE' THEN
				RETURN OLD;
			END IF;
			RETURN NEW;
		END;
		$$ LANGUAGE plpgsql;`,
		`DROP TRIGGER IF EXISTS accounts_protect_super_admin ON accounts;`,
		`CREATE TRIGGER accounts_protect_super_admin BEFORE UPDATE OR DELETE ON accounts
			FOR EACH ROW EXECUTE FUNCTION protect_super_admin();`,
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
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
	const query = `
		INSERT INTO accounts (id, username, email, password_hash, role, active)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING ` + accountColumns
	row := s.pool.QueryRow(ctx, query, account.ID, account.Username, strings.ToLower(account.Email), account.PasswordHash, string(account.Role), account.Active)
	created, err := scanAccount(row)
	if err != nil {
		return models.Account{}, mapError(err)
	}
	return created, nil
}

// FindByID fetches an account by its id.
func (s *Store) FindByID(ctx context.Context, id string) (models.Account, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id)
	return scanAccount(row)
}

// FindByIdentifier fetches the account matching the identifier as id, email
// or username, preferring an id match, then email, then username.
func (s *Store) FindByIdentifier(ctx context.Context, identifier string) (models.Account, error) {
	const query = `
	SELECT ` + accountColumns + `
	FROM accounts
	WHERE id = $1 OR lower(email) = lower($1) OR username = $1
	ORDER BY CASE WHEN id = $1 THEN 0 WHEN lower(email) = lower($1) THEN 1 ELSE 2 END
	LIMIT 1;
	`
	row := s.pool.QueryRow(ctx, query, identifier)
	return scanAccount(row)
}

// ListAccounts returns every account ordered by creation time.
func (s *Store) ListAccounts(ctx context.Context) ([]models.Account, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+accountColumns+` FROM accounts ORDER BY created_at ASC`)
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
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM accounts WHERE role = $1`, string(role)).Scan(&count); err != nil {
		return 0, fmt.Errorf("count accounts by role: %w", err)
	}
	return count, nil
}

// MutateLoginState runs fn against the row-locked account and persists the lockout fields.
func (s *Store) MutateLoginState(ctx context.Context, id string, fn storage.LoginStateFunc) (models.Account, error) {
	var out models.Account
	err := pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		account, err := lockAccount(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := fn(&account); err != nil {
			return err
		}
		const update = `
			UPDATE accounts
			SET failed_attempts = $2, locked_until = $3, last_login_at = $4, updated_at = NOW()
			WHERE id = $1
			RETURNING ` + accountColumns
		row := tx.QueryRow(ctx, update, id, account.FailedAttempts, account.LockedUntil, account.LastLoginAt)
		out, err = scanAccount(row)
		return err
	})
	if err != nil {
		return models.Account{}, mapError(err)
	}
	return out, nil
}

// MutateRole runs fn under the store-wide role-change lock and persists the role.
func (s *Store) MutateRole(ctx context.Context, id string, fn storage.RoleChangeFunc) (models.Account, error) {
	var out models.Account
	err := pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, roleChangeLockKey); err != nil {
			return fmt.Errorf("acquire role lock: %w", err)
		}
		account, err := lockAccount(ctx, tx, id)
		if err != nil {
			return err
		}
		var admins int
		if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM accounts WHERE role = $1 AND id <> $2`, string(models.RoleAdmin), id).Scan(&admins); err != nil {
			return fmt.Errorf("count admins: %w", err)
		}
		previous := account.Role
		if err := fn(&account, admins); err != nil {
			return err
		}
		if previous == models.RoleSuperAdmin && account.Role != previous {
			return storage.ErrProtectedRole
		}
		const update = `
			UPDATE accounts SET role = $2, updated_at = NOW()
			WHERE id = $1 AND role <> 'super_admin'
			RETURNING ` + accountColumns
		row := tx.QueryRow(ctx, update, id, string(account.Role))
		out, err = scanAccount(row)
		return err
	})
	if err != nil {
		return models.Account{}, mapError(err)
	}
	return out, nil
}

// SetActive flips the active flag after guard approves. Reactivation also clears lockout state.
func (s *Store) SetActive(ctx context.Context, id string, active bool, guard storage.AccountGuard) (models.Account, error) {
	var out models.Account
	err := pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		account, err := lockAccount(ctx, tx, id)
		if err != nil {
			return err
		}
		if guard != nil {
			if err := guard(account); err != nil {
				return err
			}
		}
		const update = `
			UPDATE accounts
			SET active = $2,
				failed_attempts = CASE WHEN $2 THEN 0 ELSE failed_attempts END,
				locked_until = CASE WHEN $2 THEN NULL ELSE locked_until END,
				updated_at = NOW()
			WHERE id = $1
			RETURNING ` + accountColumns
		out, err = scanAccount(tx.QueryRow(ctx, update, id, active))
		return err
	})
	if err != nil {
		return models.Account{}, mapError(err)
	}
	return out, nil
}

// SetPasswordHash replaces the stored password hash.
func (s *Store) SetPasswordHash(ctx context.Context, id, hash string) (models.Account, error) {
	const update = `
		UPDATE accounts
		SET password_hash = $2, updated_at = NOW()
		WHERE id = $1
		RETURNING ` + accountColumns
	out, err := scanAccount(s.pool.QueryRow(ctx, update, id, hash))
	if err != nil {
		return models.Account{}, mapError(err)
	}
	return out, nil
}

// DeleteAccount removes an account after guard approves.
func (s *Store) DeleteAccount(ctx context.Context, id string, guard storage.AccountGuard) error {
	err := pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		account, err := lockAccount(ctx, tx, id)
		if err != nil {
			return err
		}
		if guard != nil {
			if err := guard(account); err != nil {
				return err
			}
		}
		tag, err := tx.Exec(ctx, `DELETE FROM accounts WHERE id = $1`, id)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return storage.ErrNotFound
		}
		return nil
	})
	return mapError(err)
}

func lockAccount(ctx context.Context, tx pgx.Tx, id string) (models.Account, error) {
	row := tx.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1 FOR UPDATE`, id)
	return scanAccount(row)
}

func scanAccount(row pgx.Row) (models.Account, error) {
	var account models.Account
	var role string
	var lockedUntil, lastLogin *time.Time
	if err := row.Scan(&account.ID, &account.Username, &account.Email, &account.PasswordHash, &role, &account.Active,
		&account.FailedAttempts, &lockedUntil, &lastLogin, &account.CreatedAt, &account.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Account{}, storage.ErrNotFound
		}
		return models.Account{}, err
	}
	account.Role = models.Role(role)
	account.LockedUntil = lockedUntil
	account.LastLoginAt = lastLogin
	return account, nil
}

func mapError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == "23505":
			return storage.ErrAlreadyExists
		case pgErr.Code == "P0001" && strings.Contains(pgErr.Message, "super_admin"):
			return storage.ErrProtectedRole
		}
	}
	return err
}
