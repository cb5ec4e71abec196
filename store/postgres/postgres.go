// Package postgres implements [store.Store] on PostgreSQL through pgx/v5.
//
// Unique-constraint violations are mapped to the store.ErrDuplicate family by
// constraint name, so callers can retry identifier generation. All other
// failures are wrapped with an oops error code.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"

	"github.com/MrEthical07/authcore/role"
	"github.com/MrEthical07/authcore/store"
)

// poolIface is the pgx surface the store needs. *pgxpool.Pool and
// pgxmock.PgxPoolIface both satisfy it.
type poolIface interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// execer is satisfied by both the pool and a transaction.
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

const (
	accountColumns = `id, password_hash, COALESCE(email, ''), COALESCE(phone, ''), display_name, avatar_url,
		role, enabled, credential_mode, created_at, updated_at`
	bindingColumns = `id, provider, external_id, COALESCE(union_id, ''), account_id, display_name, avatar_url,
		created_at, updated_at`
)

// Store is a PostgreSQL account store.
type Store struct {
	pool poolIface
	now  func() time.Time
}

// New wraps an existing pool.
func New(pool poolIface) *Store {
	return &Store{pool: pool, now: time.Now}
}

// Open connects to dsn and returns a Store along with the pool's Close.
func Open(ctx context.Context, dsn string) (*Store, func(), error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, nil, oops.Code("DB_CONNECT_FAILED").Wrap(err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, oops.Code("DB_PING_FAILED").Wrap(err)
	}
	return New(pool), pool.Close, nil
}

func (s *Store) FindAccountByIdentifier(ctx context.Context, accountID string) (*store.Account, error) {
	return s.findAccount(ctx, "ACCOUNT_QUERY_FAILED", `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, accountID)
}

func (s *Store) FindAccountByEmail(ctx context.Context, email string) (*store.Account, error) {
	return s.findAccount(ctx, "ACCOUNT_QUERY_FAILED", `SELECT `+accountColumns+` FROM accounts WHERE email = $1`, store.NormalizeEmail(email))
}

func (s *Store) FindAccountByPhone(ctx context.Context, phone string) (*store.Account, error) {
	return s.findAccount(ctx, "ACCOUNT_QUERY_FAILED", `SELECT `+accountColumns+` FROM accounts WHERE phone = $1`, phone)
}

func (s *Store) findAccount(ctx context.Context, code, query string, arg any) (*store.Account, error) {
	var (
		a        store.Account
		roleName string
		mode     int16
	)
	err := s.pool.QueryRow(ctx, query, arg).Scan(
		&a.ID, &a.PasswordHash, &a.Email, &a.Phone, &a.DisplayName, &a.AvatarURL,
		&roleName, &a.Enabled, &mode, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, oops.Code(code).With("lookup", arg).Wrap(err)
	}

	r, err := role.Parse(roleName)
	if err != nil {
		return nil, oops.Code("ACCOUNT_ROLE_INVALID").With("account_id", a.ID).Wrap(err)
	}
	a.Role = r
	a.CredentialMode = store.CredentialMode(mode)
	return &a, nil
}

func (s *Store) AccountExists(ctx context.Context, accountID string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM accounts WHERE id = $1)`, accountID).Scan(&exists)
	if err != nil {
		return false, oops.Code("ACCOUNT_EXISTS_FAILED").With("account_id", accountID).Wrap(err)
	}
	return exists, nil
}

func (s *Store) InsertAccount(ctx context.Context, account *store.Account) error {
	return s.insertAccount(ctx, s.pool, account)
}

func (s *Store) insertAccount(ctx context.Context, db execer, account *store.Account) error {
	now := s.now().UTC()
	account.Email = store.NormalizeEmail(account.Email)
	_, err := db.Exec(ctx,
		`INSERT INTO accounts (id, password_hash, email, phone, display_name, avatar_url, role, enabled, credential_mode, created_at, updated_at)
		 VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), $5, $6, $7, $8, $9, $10, $10)`,
		account.ID, account.PasswordHash, account.Email, account.Phone, account.DisplayName, account.AvatarURL,
		account.Role.String(), account.Enabled, int16(account.CredentialMode), now,
	)
	if err != nil {
		if dup := duplicateError(err); dup != nil {
			return dup
		}
		return oops.Code("ACCOUNT_INSERT_FAILED").With("account_id", account.ID).Wrap(err)
	}
	account.CreatedAt, account.UpdatedAt = now, now
	return nil
}

func (s *Store) UpdateAccount(ctx context.Context, account *store.Account) error {
	now := s.now().UTC()
	account.Email = store.NormalizeEmail(account.Email)
	tag, err := s.pool.Exec(ctx,
		`UPDATE accounts SET password_hash = $2, email = NULLIF($3, ''), phone = NULLIF($4, ''), display_name = $5,
		 avatar_url = $6, role = $7, enabled = $8, credential_mode = $9, updated_at = $10
		 WHERE id = $1`,
		account.ID, account.PasswordHash, account.Email, account.Phone, account.DisplayName, account.AvatarURL,
		account.Role.String(), account.Enabled, int16(account.CredentialMode), now,
	)
	if err != nil {
		if dup := duplicateError(err); dup != nil {
			return dup
		}
		return oops.Code("ACCOUNT_UPDATE_FAILED").With("account_id", account.ID).Wrap(err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	account.UpdatedAt = now
	return nil
}

func (s *Store) FindBindingByExternalID(ctx context.Context, provider, externalID string) (*store.SocialBinding, error) {
	return s.findBinding(ctx, `SELECT `+bindingColumns+` FROM social_bindings WHERE provider = $1 AND external_id = $2`, provider, externalID)
}

func (s *Store) FindBindingByUnionID(ctx context.Context, provider, unionID string) (*store.SocialBinding, error) {
	if unionID == "" {
		return nil, store.ErrNotFound
	}
	return s.findBinding(ctx, `SELECT `+bindingColumns+` FROM social_bindings WHERE provider = $1 AND union_id = $2`, provider, unionID)
}

func (s *Store) FindBindingForAccount(ctx context.Context, accountID, provider string) (*store.SocialBinding, error) {
	return s.findBinding(ctx, `SELECT `+bindingColumns+` FROM social_bindings WHERE account_id = $1 AND provider = $2`, accountID, provider)
}

func (s *Store) findBinding(ctx context.Context, query string, args ...any) (*store.SocialBinding, error) {
	var (
		b  store.SocialBinding
		id uuid.UUID
	)
	err := s.pool.QueryRow(ctx, query, args...).Scan(
		&id, &b.Provider, &b.ExternalID, &b.UnionID, &b.AccountID, &b.DisplayName, &b.AvatarURL,
		&b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, oops.Code("BINDING_QUERY_FAILED").With("args", args).Wrap(err)
	}
	b.ID = id.String()
	return &b, nil
}

func (s *Store) InsertBinding(ctx context.Context, binding *store.SocialBinding) error {
	return s.insertBinding(ctx, s.pool, binding)
}

func (s *Store) insertBinding(ctx context.Context, db execer, binding *store.SocialBinding) error {
	if binding.ID == "" {
		binding.ID = uuid.NewString()
	}
	id, err := uuid.Parse(binding.ID)
	if err != nil {
		return oops.Code("BINDING_ID_INVALID").With("binding_id", binding.ID).Wrap(err)
	}
	now := s.now().UTC()
	_, err = db.Exec(ctx,
		`INSERT INTO social_bindings (id, provider, external_id, union_id, account_id, display_name, avatar_url, created_at, updated_at)
		 VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, $7, $8, $8)`,
		id, binding.Provider, binding.ExternalID, binding.UnionID, binding.AccountID,
		binding.DisplayName, binding.AvatarURL, now,
	)
	if err != nil {
		if dup := duplicateError(err); dup != nil {
			return dup
		}
		if isForeignKeyViolation(err) {
			return store.ErrNotFound
		}
		return oops.Code("BINDING_INSERT_FAILED").With("provider", binding.Provider).Wrap(err)
	}
	binding.CreatedAt, binding.UpdatedAt = now, now
	return nil
}

func (s *Store) UpdateBinding(ctx context.Context, binding *store.SocialBinding) error {
	id, err := uuid.Parse(binding.ID)
	if err != nil {
		return oops.Code("BINDING_ID_INVALID").With("binding_id", binding.ID).Wrap(err)
	}
	now := s.now().UTC()
	tag, err := s.pool.Exec(ctx,
		`UPDATE social_bindings SET external_id = $2, union_id = NULLIF($3, ''), display_name = $4, avatar_url = $5, updated_at = $6
		 WHERE id = $1`,
		id, binding.ExternalID, binding.UnionID, binding.DisplayName, binding.AvatarURL, now,
	)
	if err != nil {
		if dup := duplicateError(err); dup != nil {
			return dup
		}
		return oops.Code("BINDING_UPDATE_FAILED").With("binding_id", binding.ID).Wrap(err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	binding.UpdatedAt = now
	return nil
}

func (s *Store) DeleteBinding(ctx context.Context, accountID, provider string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM social_bindings WHERE account_id = $1 AND provider = $2`, accountID, provider)
	if err != nil {
		return oops.Code("BINDING_DELETE_FAILED").With("account_id", accountID).With("provider", provider).Wrap(err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) CountBindings(ctx context.Context, accountID, excludingProvider string) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT count(*) FROM social_bindings WHERE account_id = $1 AND ($2 = '' OR provider <> $2)`,
		accountID, excludingProvider,
	).Scan(&n)
	if err != nil {
		return 0, oops.Code("BINDING_COUNT_FAILED").With("account_id", accountID).Wrap(err)
	}
	return n, nil
}

// InsertAccountWithBinding inserts both rows in one transaction.
func (s *Store) InsertAccountWithBinding(ctx context.Context, account *store.Account, binding *store.SocialBinding) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return oops.Code("TX_BEGIN_FAILED").Wrap(err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := s.insertAccount(ctx, tx, account); err != nil {
		return err
	}
	binding.AccountID = account.ID
	if err := s.insertBinding(ctx, tx, binding); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return oops.Code("TX_COMMIT_FAILED").Wrap(err)
	}
	return nil
}

// duplicateError maps a unique violation to its store sentinel, or returns nil.
func duplicateError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != pgerrcode.UniqueViolation {
		return nil
	}
	switch pgErr.ConstraintName {
	case "accounts_pkey":
		return store.ErrDuplicateAccountID
	case "accounts_email_key":
		return store.ErrDuplicateEmail
	case "accounts_phone_key":
		return store.ErrDuplicatePhone
	case "social_bindings_pkey", "social_bindings_external_key", "social_bindings_union_key", "social_bindings_account_provider_key":
		return store.ErrDuplicateBinding
	default:
		return fmt.Errorf("%w: %s", store.ErrDuplicate, pgErr.ConstraintName)
	}
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.ForeignKeyViolation
}

var _ store.Store = (*Store)(nil)
