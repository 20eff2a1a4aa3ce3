package models

import "time"

type User struct {
	ID             int64     `json:"id"`
	Email          string    `json:"email"`
	IsAdmin        bool      `json:"isAdmin"`
	IsOwner        bool      `json:"isOwner"`
	ApplicantOrgID *int64    `json:"applicantOrgId"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

type OrgStatus string

const (
	OrgInvited    OrgStatus = "invited"
	OrgInProgress OrgStatus = "in_progress"
	OrgApplied    OrgStatus = "applied"
	OrgApproved   OrgStatus = "approved"
	OrgRejected   OrgStatus = "rejected"
	OrgArchived   OrgStatus = "archived"
)

func (s OrgStatus) Valid() bool {
	switch s {
	case OrgInvited, OrgInProgress, OrgApplied, OrgApproved, OrgRejected, OrgArchived:
		return true
	default:
		return false
	}
}

type ApplicantOrg struct {
	ID                  int64     `json:"id"`
	CompanyName         string    `json:"companyName"`
	PrimaryContactName  string    `json:"primaryContactName"`
	PrimaryContactEmail string    `json:"primaryContactEmail"`
	StorageBucketBase   string    `json:"storageBucketBase"`
	Status              OrgStatus `json:"status"`
	CreatedAt           time.Time `json:"createdAt"`
	UpdatedAt           time.Time `json:"updatedAt"`
}

// File is a stored object reference. SignedURL and SignedURLExpiresAt are the
// access cache; the expiry is kept as the raw persisted text.
type File struct {
	ID                 int64     `json:"id"`
	URL                string    `json:"url"`
	ApplicantOrgID     int64     `json:"-"`
	Category           string    `json:"file_category"`
	Note               string    `json:"note,omitempty"`
	UploadedBy         int64     `json:"-"`
	SignedURL          string    `json:"-"`
	SignedURLExpiresAt string    `json:"-"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

type ResetToken struct {
	ID        string
	UserID    int64
	TokenHash string
	ExpiresAt time.Time
	Used      bool
}
