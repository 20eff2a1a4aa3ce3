package store

import (
	"context"
	"time"

	"roundrobin/onboarding-service/internal/models"
)

type CreateUserInput struct {
	Email          string
	PasswordHash   string
	IsAdmin        bool
	IsOwner        bool
	ApplicantOrgID *int64
}

type CreateOrgInput struct {
	CompanyName         string
	PrimaryContactName  string
	PrimaryContactEmail string
	StorageBucketBase   string
}

type UpdateOrgInput struct {
	ID                  int64
	CompanyName         string
	PrimaryContactName  string
	PrimaryContactEmail string
	Status              models.OrgStatus
}

type CreateFileInput struct {
	URL            string
	ApplicantOrgID int64
	Category       string
	Note           string
	UploadedBy     int64
}

type UserStore interface {
	CreateUser(ctx context.Context, input CreateUserInput) (models.User, error)
	GetUser(ctx context.Context, id int64) (models.User, error)
	// GetUserByEmail also returns the stored password hash.
	GetUserByEmail(ctx context.Context, email string) (models.User, string, error)
}

type OrgStore interface {
	// CreateOrgWithContact inserts the organization and an applicant user for
	// its primary contact in one transaction.
	CreateOrgWithContact(ctx context.Context, input CreateOrgInput) (models.ApplicantOrg, models.User, error)
	GetOrg(ctx context.Context, id int64) (models.ApplicantOrg, error)
	ListOrgs(ctx context.Context) ([]models.ApplicantOrg, error)
	UpdateOrg(ctx context.Context, input UpdateOrgInput) (models.ApplicantOrg, error)
}

type FileStore interface {
	GetFile(ctx context.Context, id int64) (models.File, error)
	CreateFile(ctx context.Context, input CreateFileInput) (models.File, error)
	ListOrgFiles(ctx context.Context, orgID int64) ([]models.File, error)
	CountFilesByCategory(ctx context.Context, orgID int64) (map[string]int, error)
	// CacheSignedURL overwrites the cached access URL; the last writer wins.
	CacheSignedURL(ctx context.Context, id int64, signedURL, expiresAt string) error
}

type ResetTokenStore interface {
	CreateResetToken(ctx context.Context, token models.ResetToken) error
	GetResetToken(ctx context.Context, id string) (models.ResetToken, error)
	// ConsumeResetToken marks a live, unused token as used and sets the
	// user's password hash in one transaction. A token that is already used,
	// expired or unknown yields ErrNotFound and changes nothing.
	ConsumeResetToken(ctx context.Context, id string, passwordHash string, now time.Time) error
	// PruneResetTokens removes used or expired tokens of the user.
	PruneResetTokens(ctx context.Context, userID int64, now time.Time) error
}

type Store interface {
	UserStore
	OrgStore
	FileStore
	ResetTokenStore
	Ping(ctx context.Context) error
}
