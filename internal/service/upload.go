package service

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/victorivanov/courier/internal/models"
	"github.com/victorivanov/courier/internal/snowflake"
)

const maxUploadSize = 10 << 20 // 10 MB

// FileStorage abstracts object storage operations for testability.
type FileStorage interface {
	Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error
	GetURL(key string) string
	Delete(ctx context.Context, key string) error
}

// UploadService is the attachment pipeline: size policy, coarse
// classification, and the blob store round trip. Blobs are opaque; there is
// no scanning, transcoding, or deduplication.
type UploadService struct {
	sf      *snowflake.Generator
	storage FileStorage
}

// NewUploadService creates an UploadService.
func NewUploadService(sf *snowflake.Generator, storage FileStorage) *UploadService {
	return &UploadService{sf: sf, storage: storage}
}

// Upload stores a blob and returns the attachment reference to embed in a
// message. The size cap is enforced before any storage call; a storage
// failure is retryable and leaves any accompanying text send unaffected.
func (s *UploadService) Upload(ctx context.Context, userID int64, filename string, size int64, contentType string, reader io.Reader) (*models.Attachment, error) {
	if size > maxUploadSize {
		return nil, BadRequest("FILE_TOO_LARGE", "file must be under 10 MB")
	}
	if size <= 0 {
		return nil, BadRequest("EMPTY_FILE", "file is empty")
	}

	uploadID := s.sf.Generate().Int64()
	cleanFilename := filepath.Base(filename)
	key := fmt.Sprintf("attachments/%d/%d/%s", userID, uploadID, cleanFilename)

	if err := s.storage.Upload(ctx, key, reader, size, contentType); err != nil {
		return nil, Retryable("UPLOAD_FAILED", "failed to upload file, try again")
	}

	return &models.Attachment{
		URL:         s.storage.GetURL(key),
		Kind:        classify(contentType),
		DisplayName: cleanFilename,
	}, nil
}

// classify maps a declared content type to the coarse kind the UI renders.
func classify(contentType string) string {
	if strings.HasPrefix(contentType, "image/") {
		return models.AttachmentKindImage
	}
	return models.AttachmentKindFile
}
