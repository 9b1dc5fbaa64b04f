package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

var (
	ErrStorage         = errors.New("storage failure")
	ErrNotFound        = errors.New("stored object not found")
	ErrUnsupportedType = errors.New("unsupported file type")
	ErrTooLarge        = errors.New("file too large")
)

// DefaultMaxBytes is the upload size limit when none is configured.
const DefaultMaxBytes = 10 << 20

// Storage keeps the original uploaded files. Locators returned by Store are opaque to callers.
type Storage interface {
	Store(ctx context.Context, key string, data []byte, contentType string) (string, error)
	Retrieve(ctx context.Context, locator string) ([]byte, error)
	Delete(ctx context.Context, locator string) error
}

var allowed = []string{"image/jpeg", "image/png", "application/pdf", "text/plain"}

// FileInfo is what content sniffing found out about an upload.
type FileInfo struct {
	MIMEType  string
	Extension string
	Size      int64
}

// Inspect validates an upload by its content, never by the name or type the client claims.
func Inspect(data []byte, maxBytes int64) (*FileInfo, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty file", ErrUnsupportedType)
	}

	if maxBytes > 0 && int64(len(data)) > maxBytes {
		return nil, fmt.Errorf("%w: %d bytes exceeds the %d byte limit", ErrTooLarge, len(data), maxBytes)
	}

	mt := mimetype.Detect(data)

	for _, a := range allowed {
		if mt.Is(a) {
			return &FileInfo{MIMEType: a, Extension: mt.Extension(), Size: int64(len(data))}, nil
		}
	}

	return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, mt.String())
}

// Key builds the object key for a new upload: user_<owner>/<kind>/<uuid><ext>.
func Key(ownerID uuid.UUID, kind, ext string) string {
	return fmt.Sprintf("user_%s/%s/%s%s", ownerID, kind, uuid.NewString(), ext)
}
