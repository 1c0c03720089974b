// Package pgstore implements the authcore store on Postgres via the
// database/sql interface over the pgx driver. Unique-constraint races
// surface as authcore.ErrAlreadyExists so the identity linker can recover
// by re-fetching; every other driver failure wraps
// authcore.ErrStoreUnavailable.
package pgstore

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/firdaws-app/authcore"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrations embed.FS

const pgUniqueViolation = "23505"

// Store is a Postgres-backed authcore.Store.
type Store struct {
	db *sql.DB
}

var _ authcore.Store = (*Store)(nil)

// Open connects to dsn, runs pending migrations, and returns the store.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("db open: %w", err)
	}

	store := &Store{db: db}
	if err := store.runMigrations(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrations: %w", err)
	}
	return store, nil
}

// NewWithDB wraps an existing connection pool without running migrations.
// Used by tests and hosts that manage schema themselves.
func NewWithDB(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) runMigrations(ctx context.Context) error {
	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	return goose.UpContext(ctx, s.db, "migrations")
}

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

const userColumns = `id, email, name, image, location, timezone, password_hash,
	two_factor_enabled, two_factor_secret, created_at, updated_at`

func scanUser(row *sql.Row) (*authcore.User, error) {
	user := &authcore.User{}
	err := row.Scan(
		&user.ID, &user.Email, &user.Name, &user.Image,
		&user.Location, &user.Timezone, &user.PasswordHash,
		&user.TwoFactorEnabled, &user.TwoFactorSecret,
		&user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		return nil, mapError(err)
	}
	return user, nil
}

func (s *Store) FindUserByEmail(ctx context.Context, email string) (*authcore.User, error) {
	return scanUser(s.db.QueryRowContext(ctx,
		`select `+userColumns+` from users where email = $1`, email))
}

func (s *Store) FindUserByID(ctx context.Context, id string) (*authcore.User, error) {
	return scanUser(s.db.QueryRowContext(ctx,
		`select `+userColumns+` from users where id = $1`, id))
}

func (s *Store) CreateUser(ctx context.Context, user *authcore.User) (*authcore.User, error) {
	id := user.ID
	if id == "" {
		id = uuid.NewString()
	}
	return scanUser(s.db.QueryRowContext(ctx, `
		insert into users (id, email, name, image, location, timezone,
			password_hash, two_factor_enabled, two_factor_secret)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		returning `+userColumns,
		id, user.Email, user.Name, user.Image, user.Location, user.Timezone,
		user.PasswordHash, user.TwoFactorEnabled, user.TwoFactorSecret,
	))
}

func (s *Store) UpdateUser(ctx context.Context, id string, update authcore.UserUpdate) (*authcore.User, error) {
	assignments := []string{"updated_at = now()"}
	args := []any{id}

	set := func(column string, value any) {
		args = append(args, value)
		assignments = append(assignments, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if update.Name != nil {
		set("name", *update.Name)
	}
	if update.Image != nil {
		set("image", *update.Image)
	}
	if update.Location != nil {
		set("location", *update.Location)
	}
	if update.Timezone != nil {
		set("timezone", *update.Timezone)
	}
	if update.PasswordHash != nil {
		set("password_hash", *update.PasswordHash)
	}
	if update.TwoFactorEnabled != nil {
		set("two_factor_enabled", *update.TwoFactorEnabled)
	}
	if update.TwoFactorSecret != nil {
		set("two_factor_secret", *update.TwoFactorSecret)
	}

	query := `update users set ` + strings.Join(assignments, ", ") +
		` where id = $1 returning ` + userColumns
	return scanUser(s.db.QueryRowContext(ctx, query, args...))
}

func (s *Store) FindLinkedAccount(ctx context.Context, provider, providerAccountID string) (*authcore.LinkedAccount, error) {
	link := &authcore.LinkedAccount{}
	var expiresAt sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		select id, user_id, provider, provider_account_id, access_token,
			refresh_token, expires_at, created_at
		from linked_accounts
		where provider = $1 and provider_account_id = $2`,
		provider, providerAccountID,
	).Scan(
		&link.ID, &link.UserID, &link.Provider, &link.ProviderAccountID,
		&link.AccessToken, &link.RefreshToken, &expiresAt, &link.CreatedAt,
	)
	if err != nil {
		return nil, mapError(err)
	}
	if expiresAt.Valid {
		link.ExpiresAt = expiresAt.Time
	}
	return link, nil
}

func (s *Store) CreateLinkedAccount(ctx context.Context, account *authcore.LinkedAccount) (*authcore.LinkedAccount, error) {
	id := account.ID
	if id == "" {
		id = uuid.NewString()
	}
	var expiresAt any
	if !account.ExpiresAt.IsZero() {
		expiresAt = account.ExpiresAt
	}

	created := *account
	created.ID = id
	err := s.db.QueryRowContext(ctx, `
		insert into linked_accounts (id, user_id, provider, provider_account_id,
			access_token, refresh_token, expires_at)
		values ($1, $2, $3, $4, $5, $6, $7)
		returning created_at`,
		id, account.UserID, account.Provider, account.ProviderAccountID,
		account.AccessToken, account.RefreshToken, expiresAt,
	).Scan(&created.CreatedAt)
	if err != nil {
		return nil, mapError(err)
	}
	return &created, nil
}

func (s *Store) CreateVerificationToken(ctx context.Context, token *authcore.VerificationToken) error {
	id := token.ID
	if id == "" {
		id = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx, `
		insert into verification_tokens (id, user_id, flow, expires_at)
		values ($1, $2, $3, $4)`,
		id, token.UserID, token.Flow, token.ExpiresAt,
	)
	return mapError(err)
}

func (s *Store) FindValidVerificationToken(ctx context.Context, userID, flow string) (*authcore.VerificationToken, error) {
	token := &authcore.VerificationToken{}
	err := s.db.QueryRowContext(ctx, `
		select id, user_id, flow, expires_at
		from verification_tokens
		where user_id = $1 and flow = $2 and expires_at > now()
		order by expires_at desc
		limit 1`,
		userID, flow,
	).Scan(&token.ID, &token.UserID, &token.Flow, &token.ExpiresAt)
	if err != nil {
		return nil, mapError(err)
	}
	return token, nil
}

// ConsumeVerificationToken deletes the token in one statement; the
// rows-affected count decides the race between concurrent consumers.
func (s *Store) ConsumeVerificationToken(ctx context.Context, id string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		delete from verification_tokens
		where id = $1 and expires_at > now()`,
		id,
	)
	if err != nil {
		return false, mapError(err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, mapError(err)
	}
	return affected > 0, nil
}

func (s *Store) DeleteVerificationTokens(ctx context.Context, userID, flow string) error {
	_, err := s.db.ExecContext(ctx, `
		delete from verification_tokens
		where user_id = $1 and flow = $2`,
		userID, flow,
	)
	return mapError(err)
}

// mapError translates driver errors into the store contract's sentinels.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return authcore.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return authcore.ErrAlreadyExists
	}
	return fmt.Errorf("%w: %v", authcore.ErrStoreUnavailable, err)
}

// PingContext verifies connectivity within timeout. Hosts call it at
// startup before serving sign-ins.
func (s *Store) PingContext(ctx context.Context, timeout time.Duration) error {
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := s.db.PingContext(pingCtx); err != nil {
		return fmt.Errorf("%w: %v", authcore.ErrStoreUnavailable, err)
	}
	return nil
}
