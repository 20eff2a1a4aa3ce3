package postgres

import (
	"context"
	"errors"
	"strings"
	"time"

	"roundrobin/onboarding-service/internal/models"
	"roundrobin/onboarding-service/internal/store"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolation = "23505"

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func translate(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return store.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return store.ErrDuplicateEmail
	}
	return err
}

const userColumns = `id, email, is_admin, is_owner, applicant_org_id, created_at, updated_at`

func scanUser(row rowScanner, extra ...any) (models.User, error) {
	var user models.User
	dest := append([]any{&user.ID, &user.Email, &user.IsAdmin, &user.IsOwner, &user.ApplicantOrgID, &user.CreatedAt, &user.UpdatedAt}, extra...)
	if err := row.Scan(dest...); err != nil {
		return models.User{}, translate(err)
	}
	return user, nil
}

func (s *Store) CreateUser(ctx context.Context, input store.CreateUserInput) (models.User, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO users (email, password_hash, is_admin, is_owner, applicant_org_id)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+userColumns,
		strings.ToLower(strings.TrimSpace(input.Email)), nullable(input.PasswordHash), input.IsAdmin, input.IsOwner, input.ApplicantOrgID)
	return scanUser(row)
}

func (s *Store) GetUser(ctx context.Context, id int64) (models.User, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	return scanUser(row)
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (models.User, string, error) {
	var hash *string
	row := s.pool.QueryRow(ctx, `
		SELECT `+userColumns+`, password_hash
		FROM users
		WHERE lower(email) = lower($1)
	`, strings.TrimSpace(email))
	user, err := scanUser(row, &hash)
	if err != nil {
		return models.User{}, "", err
	}
	return user, deref(hash), nil
}

const orgColumns = `id, company_name, primary_contact_name, primary_contact_email, storage_bucket_base, status, created_at, updated_at`

func scanOrg(row rowScanner) (models.ApplicantOrg, error) {
	var org models.ApplicantOrg
	if err := row.Scan(&org.ID, &org.CompanyName, &org.PrimaryContactName, &org.PrimaryContactEmail, &org.StorageBucketBase, &org.Status, &org.CreatedAt, &org.UpdatedAt); err != nil {
		return models.ApplicantOrg{}, translate(err)
	}
	return org, nil
}

func (s *Store) CreateOrgWithContact(ctx context.Context, input store.CreateOrgInput) (models.ApplicantOrg, models.User, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.ApplicantOrg{}, models.User{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	var org models.ApplicantOrg
	org, err = scanOrg(tx.QueryRow(ctx, `
		INSERT INTO applicant_org (company_name, primary_contact_name, primary_contact_email, storage_bucket_base, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+orgColumns,
		input.CompanyName, input.PrimaryContactName, strings.ToLower(input.PrimaryContactEmail), input.StorageBucketBase, models.OrgInvited))
	if err != nil {
		return models.ApplicantOrg{}, models.User{}, err
	}

	var user models.User
	user, err = scanUser(tx.QueryRow(ctx, `
		INSERT INTO users (email, is_admin, is_owner, applicant_org_id)
		VALUES ($1, FALSE, FALSE, $2)
		RETURNING `+userColumns,
		org.PrimaryContactEmail, org.ID))
	if err != nil {
		return models.ApplicantOrg{}, models.User{}, err
	}

	if err = tx.Commit(ctx); err != nil {
		return models.ApplicantOrg{}, models.User{}, err
	}
	return org, user, nil
}

func (s *Store) GetOrg(ctx context.Context, id int64) (models.ApplicantOrg, error) {
	return scanOrg(s.pool.QueryRow(ctx, `SELECT `+orgColumns+` FROM applicant_org WHERE id = $1`, id))
}

func (s *Store) ListOrgs(ctx context.Context) ([]models.ApplicantOrg, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+orgColumns+` FROM applicant_org ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orgs []models.ApplicantOrg
	for rows.Next() {
		org, err := scanOrg(rows)
		if err != nil {
			return nil, err
		}
		orgs = append(orgs, org)
	}
	return orgs, rows.Err()
}

func (s *Store) UpdateOrg(ctx context.Context, input store.UpdateOrgInput) (models.ApplicantOrg, error) {
	return scanOrg(s.pool.QueryRow(ctx, `
		UPDATE applicant_org
		SET company_name = $2, primary_contact_name = $3, primary_contact_email = $4, status = $5, updated_at = NOW()
		WHERE id = $1
		RETURNING `+orgColumns,
		input.ID, input.CompanyName, input.PrimaryContactName, strings.ToLower(input.PrimaryContactEmail), input.Status))
}

const fileColumns = `id, url, applicant_org_id, file_category, note, uploaded_by, signed_url, signed_url_expires_at, created_at, updated_at`

func scanFile(row rowScanner) (models.File, error) {
	var file models.File
	var note, signedURL, expiresAt *string
	if err := row.Scan(&file.ID, &file.URL, &file.ApplicantOrgID, &file.Category, &note, &file.UploadedBy, &signedURL, &expiresAt, &file.CreatedAt, &file.UpdatedAt); err != nil {
		return models.File{}, translate(err)
	}
	file.Note = deref(note)
	file.SignedURL = deref(signedURL)
	file.SignedURLExpiresAt = deref(expiresAt)
	return file, nil
}

func (s *Store) GetFile(ctx context.Context, id int64) (models.File, error) {
	return scanFile(s.pool.QueryRow(ctx, `SELECT `+fileColumns+` FROM files WHERE id = $1`, id))
}

func (s *Store) CreateFile(ctx context.Context, input store.CreateFileInput) (models.File, error) {
	return scanFile(s.pool.QueryRow(ctx, `
		INSERT INTO files (url, applicant_org_id, file_category, note, uploaded_by)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+fileColumns,
		input.URL, input.ApplicantOrgID, input.Category, nullable(input.Note), input.UploadedBy))
}

func (s *Store) ListOrgFiles(ctx context.Context, orgID int64) ([]models.File, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+fileColumns+`
		FROM files
		WHERE applicant_org_id = $1
		ORDER BY created_at DESC, id DESC
	`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var files []models.File
	for rows.Next() {
		file, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		files = append(files, file)
	}
	return files, rows.Err()
}

func (s *Store) CountFilesByCategory(ctx context.Context, orgID int64) (map[string]int, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT file_category, COUNT(*)
		FROM files
		WHERE applicant_org_id = $1
		GROUP BY file_category
	`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var category string
		var count int
		if err := rows.Scan(&category, &count); err != nil {
			return nil, err
		}
		counts[category] = count
	}
	return counts, rows.Err()
}

func (s *Store) CacheSignedURL(ctx context.Context, id int64, signedURL, expiresAt string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE files SET signed_url = $2, signed_url_expires_at = $3, updated_at = NOW()
		WHERE id = $1
	`, id, signedURL, expiresAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) CreateResetToken(ctx context.Context, token models.ResetToken) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO password_reset_tokens (id, user_id, token_hash, expires_at, used)
		VALUES ($1, $2, $3, $4, $5)
	`, token.ID, token.UserID, token.TokenHash, token.ExpiresAt, token.Used)
	return err
}

func (s *Store) GetResetToken(ctx context.Context, id string) (models.ResetToken, error) {
	var token models.ResetToken
	row := s.pool.QueryRow(ctx, `
		SELECT id, user_id, token_hash, expires_at, used
		FROM password_reset_tokens
		WHERE id = $1
	`, id)
	if err := row.Scan(&token.ID, &token.UserID, &token.TokenHash, &token.ExpiresAt, &token.Used); err != nil {
		return models.ResetToken{}, translate(err)
	}
	return token, nil
}

func (s *Store) ConsumeResetToken(ctx context.Context, id string, passwordHash string, now time.Time) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// The guarded update is the claim: of two concurrent consumers only one
	// sees a row come back.
	var userID int64
	err = tx.QueryRow(ctx, `
		UPDATE password_reset_tokens SET used = TRUE
		WHERE id = $1 AND NOT used AND expires_at > $2
		RETURNING user_id
	`, id, now).Scan(&userID)
	if err != nil {
		return translate(err)
	}

	tag, err := tx.Exec(ctx, `
		UPDATE users SET password_hash = $2, updated_at = NOW()
		WHERE id = $1
	`, userID, passwordHash)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return tx.Commit(ctx)
}

func (s *Store) PruneResetTokens(ctx context.Context, userID int64, now time.Time) error {
	_, err := s.pool.Exec(ctx, `
		DELETE FROM password_reset_tokens
		WHERE user_id = $1 AND (used OR expires_at <= $2)
	`, userID, now)
	return err
}

func nullable(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}

func deref(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
