package storage_test

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrJamesThe3rd/docket/internal/storage"
)

var (
	pngHeader  = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x02\x00\x00\x00")
	jpegHeader = []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 'J', 'F', 'I', 'F', 0x00, 0x01}
	pdfHeader  = []byte("%PDF-1.4\n%\xe2\xe3\xcf\xd3\n1 0 obj\n<<>>\nendobj\n")
)

func TestInspect(t *testing.T) {
	type testCase struct {
		name     string
		data     []byte
		max      int64
		wantMIME string
		wantExt  string
		wantErr  error
	}

	tests := []testCase{
		{name: "PNG", data: pngHeader, max: storage.DefaultMaxBytes, wantMIME: "image/png", wantExt: ".png"},
		{name: "JPEG", data: jpegHeader, max: storage.DefaultMaxBytes, wantMIME: "image/jpeg", wantExt: ".jpg"},
		{name: "PDF", data: pdfHeader, max: storage.DefaultMaxBytes, wantMIME: "application/pdf", wantExt: ".pdf"},
		{name: "PlainText", data: []byte("LIDL\nTOTAL 12,40\n"), max: storage.DefaultMaxBytes, wantMIME: "text/plain", wantExt: ".txt"},
		{name: "Empty", data: nil, max: storage.DefaultMaxBytes, wantErr: storage.ErrUnsupportedType},
		{name: "TooLarge", data: []byte(strings.Repeat("a", 32)), max: 16, wantErr: storage.ErrTooLarge},
		{name: "Zip", data: []byte("PK\x03\x04\x14\x00\x00\x00\x08\x00"), max: storage.DefaultMaxBytes, wantErr: storage.ErrUnsupportedType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info, err := storage.Inspect(tt.data, tt.max)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, info)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.wantMIME, info.MIMEType)
			assert.Equal(t, tt.wantExt, info.Extension)
			assert.Equal(t, int64(len(tt.data)), info.Size)
		})
	}
}

func TestKey(t *testing.T) {
	owner := uuid.MustParse("7f1c4a52-7a6e-4b3f-9d1e-3c2b1a0f9e8d")

	key := storage.Key(owner, "receipt", ".pdf")

	assert.True(t, strings.HasPrefix(key, "user_7f1c4a52-7a6e-4b3f-9d1e-3c2b1a0f9e8d/receipt/"))
	assert.True(t, strings.HasSuffix(key, ".pdf"))
	assert.NotEqual(t, key, storage.Key(owner, "receipt", ".pdf"))
}

func TestLocal_RoundTrip(t *testing.T) {
	ctx := context.Background()

	s, err := storage.NewLocal(t.TempDir())
	require.NoError(t, err)

	loc, err := s.Store(ctx, "user_1/receipt/a.txt", []byte("hello"), "text/plain")
	require.NoError(t, err)

	data, err := s.Retrieve(ctx, loc)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), data)

	require.NoError(t, s.Delete(ctx, loc))
	require.NoError(t, s.Delete(ctx, loc), "deleting twice is a no-op")

	_, err = s.Retrieve(ctx, loc)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestLocal_RejectsEscapingLocator(t *testing.T) {
	s, err := storage.NewLocal(t.TempDir())
	require.NoError(t, err)

	_, err = s.Retrieve(context.Background(), "../../etc/passwd")
	assert.ErrorIs(t, err, storage.ErrStorage)
}
