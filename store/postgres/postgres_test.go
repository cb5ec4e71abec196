package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrEthical07/authcore/role"
	"github.com/MrEthical07/authcore/store"
)

var fixedNow = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func newMockStore(t *testing.T) (*Store, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err, "failed to create mock")
	t.Cleanup(mock.Close)
	s := New(mock)
	s.now = func() time.Time { return fixedNow }
	return s, mock
}

func uniqueViolation(constraint string) error {
	return &pgconn.PgError{Code: pgerrcode.UniqueViolation, ConstraintName: constraint}
}

func accountRow() *pgxmock.Rows {
	return pgxmock.NewRows([]string{
		"id", "password_hash", "email", "phone", "display_name", "avatar_url",
		"role", "enabled", "credential_mode", "created_at", "updated_at",
	}).AddRow("1234567890", "$argon2id$...", "user@example.com", "", "User", "", "admin", true, int16(3), fixedNow, fixedNow)
}

func TestFindAccountByEmail(t *testing.T) {
	tests := []struct {
		name      string
		setupMock func(mock pgxmock.PgxPoolIface)
		wantErr   error
		wantInfra bool
	}{
		{
			name: "found",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery(`SELECT .+ FROM accounts WHERE email = \$1`).
					WithArgs("user@example.com").
					WillReturnRows(accountRow())
			},
		},
		{
			name: "not found",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery(`SELECT .+ FROM accounts WHERE email = \$1`).
					WithArgs("user@example.com").
					WillReturnError(pgx.ErrNoRows)
			},
			wantErr: store.ErrNotFound,
		},
		{
			name: "connection failure",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery(`SELECT .+ FROM accounts WHERE email = \$1`).
					WithArgs("user@example.com").
					WillReturnError(errors.New("connection refused"))
			},
			wantInfra: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, mock := newMockStore(t)
			tt.setupMock(mock)

			a, err := s.FindAccountByEmail(context.Background(), " User@Example.com")
			switch {
			case tt.wantErr != nil:
				assert.ErrorIs(t, err, tt.wantErr)
			case tt.wantInfra:
				require.Error(t, err)
				assert.True(t, store.IsInfrastructure(err))
				assert.Contains(t, err.Error(), "connection refused")
			default:
				require.NoError(t, err)
				assert.Equal(t, "1234567890", a.ID)
				assert.Equal(t, role.Admin, a.Role)
				assert.Equal(t, store.CredentialBoth, a.CredentialMode)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestInsertAccountMapsUniqueViolations(t *testing.T) {
	tests := []struct {
		constraint string
		want       error
	}{
		{"accounts_pkey", store.ErrDuplicateAccountID},
		{"accounts_email_key", store.ErrDuplicateEmail},
		{"accounts_phone_key", store.ErrDuplicatePhone},
	}

	for _, tt := range tests {
		t.Run(tt.constraint, func(t *testing.T) {
			s, mock := newMockStore(t)
			mock.ExpectExec(`INSERT INTO accounts`).
				WithArgs("1234567890", "", "a@b.com", "", "", "", "standard", true, int16(1), fixedNow).
				WillReturnError(uniqueViolation(tt.constraint))

			err := s.InsertAccount(context.Background(), &store.Account{
				ID: "1234567890", Email: "A@B.com", Role: role.Standard, Enabled: true,
				CredentialMode: store.CredentialPassword,
			})
			assert.ErrorIs(t, err, tt.want)
			assert.ErrorIs(t, err, store.ErrDuplicate)
			assert.False(t, store.IsInfrastructure(err))
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestInsertAccountSetsTimestamps(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec(`INSERT INTO accounts`).
		WithArgs("1234567890", "", "", "", "Name", "", "standard", true, int16(2), fixedNow).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	a := &store.Account{ID: "1234567890", DisplayName: "Name", Role: role.Standard, Enabled: true, CredentialMode: store.CredentialSocial}
	require.NoError(t, s.InsertAccount(context.Background(), a))
	assert.Equal(t, fixedNow, a.CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateAccountMissingRow(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec(`UPDATE accounts SET`).
		WithArgs("1234567890", "", "", "", "", "", "standard", false, int16(0), fixedNow).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.UpdateAccount(context.Background(), &store.Account{ID: "1234567890", Role: role.Standard})
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindBindingByUnionID(t *testing.T) {
	s, mock := newMockStore(t)
	id := uuid.New()
	mock.ExpectQuery(`SELECT .+ FROM social_bindings WHERE provider = \$1 AND union_id = \$2`).
		WithArgs("wechat", "u-1").
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "provider", "external_id", "union_id", "account_id", "display_name", "avatar_url", "created_at", "updated_at",
		}).AddRow(id, "wechat", "ext-1", "u-1", "1234567890", "Nick", "https://img", fixedNow, fixedNow))

	b, err := s.FindBindingByUnionID(context.Background(), "wechat", "u-1")
	require.NoError(t, err)
	assert.Equal(t, id.String(), b.ID)
	assert.Equal(t, "1234567890", b.AccountID)
	assert.NoError(t, mock.ExpectationsWereMet())

	_, err = s.FindBindingByUnionID(context.Background(), "wechat", "")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestInsertAccountWithBindingRollsBackOnBindingConflict(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO accounts`).
		WithArgs("1234567890", "", "", "", "", "", "standard", true, int16(2), fixedNow).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`INSERT INTO social_bindings`).
		WithArgs(pgxmock.AnyArg(), "github", "42", "", "1234567890", "", "", fixedNow).
		WillReturnError(uniqueViolation("social_bindings_external_key"))
	mock.ExpectRollback()

	err := s.InsertAccountWithBinding(context.Background(),
		&store.Account{ID: "1234567890", Role: role.Standard, Enabled: true, CredentialMode: store.CredentialSocial},
		&store.SocialBinding{Provider: "github", ExternalID: "42"},
	)
	assert.ErrorIs(t, err, store.ErrDuplicateBinding)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertAccountWithBindingCommits(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO accounts`).
		WithArgs("1234567890", "", "", "", "", "", "standard", true, int16(2), fixedNow).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`INSERT INTO social_bindings`).
		WithArgs(pgxmock.AnyArg(), "github", "42", "", "1234567890", "", "", fixedNow).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	b := &store.SocialBinding{Provider: "github", ExternalID: "42"}
	err := s.InsertAccountWithBinding(context.Background(),
		&store.Account{ID: "1234567890", Role: role.Standard, Enabled: true, CredentialMode: store.CredentialSocial}, b)
	require.NoError(t, err)
	assert.Equal(t, "1234567890", b.AccountID)
	_, parseErr := uuid.Parse(b.ID)
	assert.NoError(t, parseErr)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCountBindingsExcludingProvider(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(`SELECT count\(\*\) FROM social_bindings`).
		WithArgs("1234567890", "github").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(2))

	n, err := s.CountBindings(context.Background(), "1234567890", "github")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteBindingNotFound(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec(`DELETE FROM social_bindings`).
		WithArgs("1234567890", "github").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	assert.ErrorIs(t, s.DeleteBinding(context.Background(), "1234567890", "github"), store.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrateURL(t *testing.T) {
	assert.Equal(t, "pgx5://u@h/db", migrateURL("postgres://u@h/db"))
	assert.Equal(t, "pgx5://u@h/db", migrateURL("postgresql://u@h/db"))
	assert.Equal(t, "pgx5://u@h/db", migrateURL("pgx5://u@h/db"))
}

func TestEmbeddedMigrationsPresent(t *testing.T) {
	entries, err := migrationsFS.ReadDir("migrations")
	require.NoError(t, err)
	assert.Len(t, entries, 4)
}
