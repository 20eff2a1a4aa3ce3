// Package files owns uploaded documents: placing them in object storage,
// recording them, and handing out time-limited access URLs that are cached on
// the file row until shortly before they expire.
package files

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"roundrobin/onboarding-service/internal/logging"
	"roundrobin/onboarding-service/internal/models"
	"roundrobin/onboarding-service/internal/requirements"
	"roundrobin/onboarding-service/internal/storage"
	"roundrobin/onboarding-service/internal/store"
)

const (
	// SignedURLTTL is the longest validity the provider accepts for a presigned GET.
	SignedURLTTL = 7 * 24 * time.Hour
	// SafetyMargin is how long a cached URL must still be valid to be reused.
	SafetyMargin = time.Minute

	DefaultMaxUploadBytes = 50 << 20

	// TimestampLayout renders instants as UTC ISO-8601 with milliseconds.
	TimestampLayout = "2006-01-02T15:04:05.000Z"
)

var (
	ErrNotFound           = errors.New("file not found")
	ErrProviderFailure    = errors.New("failed to generate signed url")
	ErrInvalidRequirement = errors.New("invalid requirement type")
	ErrNoFile             = errors.New("no file provided")
	ErrFileTooLarge       = errors.New("file size exceeds limit")
	ErrStorage            = errors.New("failed to upload file")
	ErrMetadata           = errors.New("failed to save file metadata")
)

type ObjectStore interface {
	PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error)
	Put(ctx context.Context, key, contentType string, body io.Reader, size int64) error
	ObjectURL(key string) string
}

type Options struct {
	MaxUploadBytes int64
	// TestPrefix stores objects under test/ so non-production uploads stay apart.
	TestPrefix bool
	Now        func() time.Time
}

type Service struct {
	files      store.FileStore
	objects    ObjectStore
	log        logging.Sink
	now        func() time.Time
	maxUpload  int64
	testPrefix bool
}

func NewService(files store.FileStore, objects ObjectStore, sink logging.Sink, opts Options) *Service {
	svc := &Service{
		files:      files,
		objects:    objects,
		log:        sink,
		now:        opts.Now,
		maxUpload:  opts.MaxUploadBytes,
		testPrefix: opts.TestPrefix,
	}
	if svc.now == nil {
		svc.now = time.Now
	}
	if svc.maxUpload <= 0 {
		svc.maxUpload = DefaultMaxUploadBytes
	}
	return svc
}

type AccessURL struct {
	URL       string
	ExpiresAt time.Time
}

// ResolveAccessURL returns a usable access URL for the file, reusing the
// cached one while it stays valid past the safety margin.
func (s *Service) ResolveAccessURL(ctx context.Context, fileID int64) (AccessURL, error) {
	file, err := s.lookup(ctx, fileID)
	if err != nil {
		return AccessURL{}, err
	}
	return s.resolve(ctx, file)
}

// ResolveOrgAccessURL is ResolveAccessURL restricted to files of one
// organization; files of other organizations are reported as not found.
func (s *Service) ResolveOrgAccessURL(ctx context.Context, orgID, fileID int64) (AccessURL, error) {
	file, err := s.lookup(ctx, fileID)
	if err != nil {
		return AccessURL{}, err
	}
	if file.ApplicantOrgID != orgID {
		s.log.Error(ctx, "files", ErrNotFound, logging.Fields{"fileId": fileID, "clientID": orgID})
		return AccessURL{}, ErrNotFound
	}
	return s.resolve(ctx, file)
}

func (s *Service) lookup(ctx context.Context, fileID int64) (models.File, error) {
	file, err := s.files.GetFile(ctx, fileID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.log.Error(ctx, "files", ErrNotFound, logging.Fields{"fileId": fileID})
			return models.File{}, ErrNotFound
		}
		return models.File{}, fmt.Errorf("get file %d: %w", fileID, err)
	}
	return file, nil
}

func (s *Service) resolve(ctx context.Context, file models.File) (AccessURL, error) {
	now := s.now().UTC()
	if cached, ok := s.cached(ctx, file); ok && cached.ExpiresAt.After(now.Add(SafetyMargin)) {
		s.log.Info(ctx, "files", "returning cached signed url", logging.Fields{"fileId": file.ID})
		return cached, nil
	}

	key, err := storage.KeyFromURL(file.URL)
	if err != nil {
		s.log.Error(ctx, "files", err, logging.Fields{"fileId": file.ID})
		return AccessURL{}, ErrProviderFailure
	}
	signed, err := s.objects.PresignGet(ctx, key, SignedURLTTL)
	if err != nil {
		s.log.Error(ctx, "files", err, logging.Fields{"fileId": file.ID, "key": key})
		return AccessURL{}, ErrProviderFailure
	}

	expiresAt := now.Add(SignedURLTTL)
	if err := s.files.CacheSignedURL(ctx, file.ID, signed, expiresAt.Format(time.RFC3339Nano)); err != nil {
		s.log.Error(ctx, "files", err, logging.Fields{"fileId": file.ID, "key": key})
		return AccessURL{}, ErrProviderFailure
	}
	s.log.Info(ctx, "files", "generated and cached new signed url", logging.Fields{
		"fileId":    file.ID,
		"expiresAt": FormatTimestamp(expiresAt),
	})
	return AccessURL{URL: signed, ExpiresAt: expiresAt}, nil
}

// cached reads the persisted pair. An unparsable expiry counts as no cache.
func (s *Service) cached(ctx context.Context, file models.File) (AccessURL, bool) {
	if file.SignedURL == "" || file.SignedURLExpiresAt == "" {
		return AccessURL{}, false
	}
	expiresAt, err := time.Parse(time.RFC3339Nano, file.SignedURLExpiresAt)
	if err != nil {
		s.log.Error(ctx, "files", fmt.Errorf("invalid cached expiration: %w", err), logging.Fields{
			"fileId":    file.ID,
			"expiresAt": file.SignedURLExpiresAt,
		})
		return AccessURL{}, false
	}
	return AccessURL{URL: file.SignedURL, ExpiresAt: expiresAt.UTC()}, true
}

type UploadInput struct {
	OrgID       int64
	Requirement string
	Note        string
	Filename    string
	ContentType string
	Size        int64
	Body        io.Reader
	UploadedBy  int64
}

type UploadResult struct {
	File     models.File
	Key      string
	Filename string
	Size     int64
}

// Upload stores the object first and records it afterwards; a storage
// failure leaves no row behind.
func (s *Service) Upload(ctx context.Context, in UploadInput) (UploadResult, error) {
	if !requirements.Valid(in.Requirement) {
		return UploadResult{}, ErrInvalidRequirement
	}
	name := cleanFilename(in.Filename)
	if in.Body == nil || in.Size <= 0 || name == "" {
		return UploadResult{}, ErrNoFile
	}
	if in.Size > s.maxUpload {
		return UploadResult{}, ErrFileTooLarge
	}

	key := s.objectKey(in.OrgID, in.Requirement, name)
	if err := s.objects.Put(ctx, key, in.ContentType, in.Body, in.Size); err != nil {
		s.log.Error(ctx, "files", err, logging.Fields{"key": key})
		return UploadResult{}, ErrStorage
	}
	s.log.Info(ctx, "files", "file uploaded to storage", logging.Fields{"key": key})

	file, err := s.files.CreateFile(ctx, store.CreateFileInput{
		URL:            s.objects.ObjectURL(key),
		ApplicantOrgID: in.OrgID,
		Category:       in.Requirement,
		Note:           strings.TrimSpace(in.Note),
		UploadedBy:     in.UploadedBy,
	})
	if err != nil {
		s.log.Error(ctx, "files", err, logging.Fields{"clientID": in.OrgID, "requirement": in.Requirement})
		return UploadResult{}, ErrMetadata
	}
	s.log.Info(ctx, "files", "file metadata saved", logging.Fields{
		"fileId":      file.ID,
		"clientID":    in.OrgID,
		"requirement": in.Requirement,
		"fileSize":    in.Size,
	})
	return UploadResult{File: file, Key: key, Filename: name, Size: in.Size}, nil
}

func (s *Service) objectKey(orgID int64, requirement, name string) string {
	key := fmt.Sprintf("%d/%s_%d_%d_%s", orgID, requirement, orgID, s.now().UnixMilli(), name)
	if s.testPrefix {
		return "test/" + key
	}
	return key
}

func cleanFilename(name string) string {
	name = strings.TrimSpace(strings.ReplaceAll(name, "\\", "/"))
	if name == "" {
		return ""
	}
	base := path.Base(name)
	if base == "." || base == "/" {
		return ""
	}
	return base
}

// List returns the organization's files, newest first.
func (s *Service) List(ctx context.Context, orgID int64) ([]models.File, error) {
	files, err := s.files.ListOrgFiles(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("list files for org %d: %w", orgID, err)
	}
	if files == nil {
		files = []models.File{}
	}
	return files, nil
}

func (s *Service) Progress(ctx context.Context, orgID int64) (requirements.Report, error) {
	counts, err := s.files.CountFilesByCategory(ctx, orgID)
	if err != nil {
		return requirements.Report{}, fmt.Errorf("count files for org %d: %w", orgID, err)
	}
	return requirements.Progress(counts), nil
}

func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}
