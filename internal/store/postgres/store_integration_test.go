package postgres

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"roundrobin/onboarding-service/internal/models"
	"roundrobin/onboarding-service/internal/store"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oklog/ulid/v2"
)

func TestCreateOrgWithContact(t *testing.T) {
	ctx := context.Background()
	st, cleanup := setupTestStore(t, ctx)
	t.Cleanup(cleanup)

	org, user, err := st.CreateOrgWithContact(ctx, store.CreateOrgInput{
		CompanyName:         "Acme Widgets",
		PrimaryContactName:  "Pat Doe",
		PrimaryContactEmail: "Pat@Acme.test",
		StorageBucketBase:   "acme",
	})
	if err != nil {
		t.Fatalf("create org: %v", err)
	}
	if org.Status != models.OrgInvited || org.PrimaryContactEmail != "pat@acme.test" {
		t.Fatalf("unexpected org %+v", org)
	}
	if user.ApplicantOrgID == nil || *user.ApplicantOrgID != org.ID || user.IsAdmin || user.IsOwner {
		t.Fatalf("unexpected contact user %+v", user)
	}
	_, hash, err := st.GetUserByEmail(ctx, "PAT@acme.test")
	if err != nil {
		t.Fatalf("get contact: %v", err)
	}
	if hash != "" {
		t.Fatalf("invited user must not have a password")
	}

	_, _, err = st.CreateOrgWithContact(ctx, store.CreateOrgInput{
		CompanyName:         "Acme Again",
		PrimaryContactName:  "Pat Doe",
		PrimaryContactEmail: "pat@acme.test",
		StorageBucketBase:   "acme2",
	})
	if !errors.Is(err, store.ErrDuplicateEmail) {
		t.Fatalf("expected duplicate email, got %v", err)
	}
	orgs, err := st.ListOrgs(ctx)
	if err != nil {
		t.Fatalf("list orgs: %v", err)
	}
	if len(orgs) != 1 {
		t.Fatalf("expected failed insert to roll back, got %d orgs", len(orgs))
	}
}

func TestFileCacheRoundTrip(t *testing.T) {
	ctx := context.Background()
	st, cleanup := setupTestStore(t, ctx)
	t.Cleanup(cleanup)

	org, user, err := st.CreateOrgWithContact(ctx, store.CreateOrgInput{
		CompanyName:         "Files Inc",
		PrimaryContactName:  "Sam Roe",
		PrimaryContactEmail: "sam@files.test",
		StorageBucketBase:   "files",
	})
	if err != nil {
		t.Fatalf("create org: %v", err)
	}

	first, err := st.CreateFile(ctx, store.CreateFileInput{
		URL:            "https://storage.test/bucket/1/EIN_LETTER_1_1_a.pdf",
		ApplicantOrgID: org.ID,
		Category:       "EIN_LETTER",
		UploadedBy:     user.ID,
	})
	if err != nil {
		t.Fatalf("create file: %v", err)
	}
	if first.SignedURL != "" || first.SignedURLExpiresAt != "" || first.Note != "" {
		t.Fatalf("new file must have no cache, got %+v", first)
	}
	if _, err := st.CreateFile(ctx, store.CreateFileInput{
		URL:            "https://storage.test/bucket/1/EIN_LETTER_1_2_b.pdf",
		ApplicantOrgID: org.ID,
		Category:       "EIN_LETTER",
		Note:           "second copy",
		UploadedBy:     user.ID,
	}); err != nil {
		t.Fatalf("create second file: %v", err)
	}

	expires := time.Date(2025, 3, 8, 12, 0, 0, 0, time.UTC).Format(time.RFC3339Nano)
	if err := st.CacheSignedURL(ctx, first.ID, "https://signed.test/a", expires); err != nil {
		t.Fatalf("cache url: %v", err)
	}
	got, err := st.GetFile(ctx, first.ID)
	if err != nil {
		t.Fatalf("get file: %v", err)
	}
	if got.SignedURL != "https://signed.test/a" || got.SignedURLExpiresAt != expires {
		t.Fatalf("unexpected cache %+v", got)
	}

	counts, err := st.CountFilesByCategory(ctx, org.ID)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if counts["EIN_LETTER"] != 2 {
		t.Fatalf("expected 2 EIN letters, got %v", counts)
	}

	if err := st.CacheSignedURL(ctx, first.ID+1000, "x", expires); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := st.GetFile(ctx, first.ID+1000); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestConcurrentCacheWritesLastWriterWins(t *testing.T) {
	ctx := context.Background()
	st, cleanup := setupTestStore(t, ctx)
	t.Cleanup(cleanup)

	org, user, err := st.CreateOrgWithContact(ctx, store.CreateOrgInput{
		CompanyName:         "Race Co",
		PrimaryContactName:  "Lee Poe",
		PrimaryContactEmail: "lee@race.test",
		StorageBucketBase:   "race",
	})
	if err != nil {
		t.Fatalf("create org: %v", err)
	}
	file, err := st.CreateFile(ctx, store.CreateFileInput{URL: "https://storage.test/b/k", ApplicantOrgID: org.ID, Category: "OTHER", UploadedBy: user.ID})
	if err != nil {
		t.Fatalf("create file: %v", err)
	}

	urls := []string{"https://signed.test/1", "https://signed.test/2"}
	var wg sync.WaitGroup
	for _, u := range urls {
		wg.Add(1)
		go func(u string) {
			defer wg.Done()
			if err := st.CacheSignedURL(ctx, file.ID, u, "2030-01-01T00:00:00Z"); err != nil {
				t.Errorf("cache: %v", err)
			}
		}(u)
	}
	wg.Wait()

	got, err := st.GetFile(ctx, file.ID)
	if err != nil {
		t.Fatalf("get file: %v", err)
	}
	if got.SignedURL != urls[0] && got.SignedURL != urls[1] {
		t.Fatalf("expected one of the written urls, got %q", got.SignedURL)
	}
}

func TestResetTokens(t *testing.T) {
	ctx := context.Background()
	st, cleanup := setupTestStore(t, ctx)
	t.Cleanup(cleanup)

	user, err := st.CreateUser(ctx, store.CreateUserInput{Email: "Owner@Example.test", PasswordHash: "hash", IsAdmin: true, IsOwner: true})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	if _, err := st.CreateUser(ctx, store.CreateUserInput{Email: "owner@example.test", PasswordHash: "hash", IsAdmin: true}); !errors.Is(err, store.ErrDuplicateEmail) {
		t.Fatalf("expected duplicate email, got %v", err)
	}

	now := time.Now().UTC().Truncate(time.Second)
	live := models.ResetToken{ID: ulid.Make().String(), UserID: user.ID, TokenHash: "h1", ExpiresAt: now.Add(time.Hour)}
	stale := models.ResetToken{ID: ulid.Make().String(), UserID: user.ID, TokenHash: "h2", ExpiresAt: now.Add(-time.Minute)}
	for _, token := range []models.ResetToken{live, stale} {
		if err := st.CreateResetToken(ctx, token); err != nil {
			t.Fatalf("create token: %v", err)
		}
	}

	if err := st.PruneResetTokens(ctx, user.ID, now); err != nil {
		t.Fatalf("prune: %v", err)
	}
	if _, err := st.GetResetToken(ctx, stale.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected expired token pruned, got %v", err)
	}
	got, err := st.GetResetToken(ctx, live.ID)
	if err != nil {
		t.Fatalf("get live token: %v", err)
	}
	if got.Used || !got.ExpiresAt.Equal(live.ExpiresAt) {
		t.Fatalf("unexpected token %+v", got)
	}

	expired := models.ResetToken{ID: ulid.Make().String(), UserID: user.ID, TokenHash: "h3", ExpiresAt: now.Add(time.Minute)}
	if err := st.CreateResetToken(ctx, expired); err != nil {
		t.Fatalf("create token: %v", err)
	}
	if err := st.ConsumeResetToken(ctx, expired.ID, "late-hash", now.Add(2*time.Minute)); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected expired token to be refused, got %v", err)
	}

	if err := st.ConsumeResetToken(ctx, live.ID, "new-hash", now); err != nil {
		t.Fatalf("consume: %v", err)
	}
	if err := st.ConsumeResetToken(ctx, live.ID, "second-hash", now); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected second consume to fail, got %v", err)
	}
	if err := st.ConsumeResetToken(ctx, ulid.Make().String(), "x", now); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected unknown token to be refused, got %v", err)
	}
	if err := st.PruneResetTokens(ctx, user.ID, now.Add(2*time.Minute)); err != nil {
		t.Fatalf("prune: %v", err)
	}
	if _, err := st.GetResetToken(ctx, live.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected used token pruned, got %v", err)
	}
	if _, hash, err := st.GetUserByEmail(ctx, "owner@example.test"); err != nil || hash != "new-hash" {
		t.Fatalf("expected new hash, got %q err=%v", hash, err)
	}
}

func TestConcurrentConsumeResetTokenSingleUse(t *testing.T) {
	ctx := context.Background()
	st, cleanup := setupTestStore(t, ctx)
	t.Cleanup(cleanup)

	user, err := st.CreateUser(ctx, store.CreateUserInput{Email: "race@example.test", PasswordHash: "old", IsAdmin: true, IsOwner: true})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	now := time.Now().UTC()
	token := models.ResetToken{ID: ulid.Make().String(), UserID: user.ID, TokenHash: "h", ExpiresAt: now.Add(time.Hour)}
	if err := st.CreateResetToken(ctx, token); err != nil {
		t.Fatalf("create token: %v", err)
	}

	hashes := []string{"hash-a", "hash-b", "hash-c", "hash-d"}
	results := make([]error, len(hashes))
	var wg sync.WaitGroup
	for i, hash := range hashes {
		wg.Add(1)
		go func(i int, hash string) {
			defer wg.Done()
			results[i] = st.ConsumeResetToken(ctx, token.ID, hash, now)
		}(i, hash)
	}
	wg.Wait()

	winner := ""
	for i, err := range results {
		switch {
		case err == nil:
			if winner != "" {
				t.Fatalf("token consumed twice: %s and %s", winner, hashes[i])
			}
			winner = hashes[i]
		case !errors.Is(err, store.ErrNotFound):
			t.Fatalf("unexpected consume error: %v", err)
		}
	}
	if winner == "" {
		t.Fatal("expected exactly one consumer to succeed")
	}
	if _, hash, err := st.GetUserByEmail(ctx, user.Email); err != nil || hash != winner {
		t.Fatalf("expected winning hash %q, got %q err=%v", winner, hash, err)
	}
}

func setupTestStore(t *testing.T, ctx context.Context) (*Store, func()) {
	t.Helper()
	dsn := os.Getenv("TEST_DB_DSN")
	if dsn == "" {
		t.Skip("TEST_DB_DSN is required for integration tests")
	}

	schema := "test_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	if err := execAdmin(ctx, dsn, "CREATE SCHEMA "+schema); err != nil {
		t.Fatalf("create schema: %v", err)
	}

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		t.Fatalf("parse dsn: %v", err)
	}
	cfg.ConnConfig.RuntimeParams["search_path"] = schema
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		t.Fatalf("open pool: %v", err)
	}

	if _, err := Migrate(ctx, pool); err != nil {
		pool.Close()
		t.Fatalf("apply migrations: %v", err)
	}
	if applied, err := Migrate(ctx, pool); err != nil || len(applied) != 0 {
		pool.Close()
		t.Fatalf("expected migrations to be idempotent, applied=%v err=%v", applied, err)
	}

	cleanup := func() {
		pool.Close()
		_ = execAdmin(context.Background(), dsn, "DROP SCHEMA "+schema+" CASCADE")
	}
	return NewStore(pool), cleanup
}

func execAdmin(ctx context.Context, dsn, sql string) error {
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return err
	}
	defer conn.Close(ctx)
	_, err = conn.Exec(ctx, sql)
	return err
}
