package blob

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
	puts    int
	putErr  error
}

func newFakeStore() *fakeStore {
	return &fakeStore{objects: make(map[string][]byte), types: make(map[string]string)}
}

func (f *fakeStore) Exists(_ context.Context, key string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.objects[key]
	return ok, nil
}

func (f *fakeStore) Put(_ context.Context, key, contentType string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.putErr != nil {
		return f.putErr
	}
	f.puts++
	f.objects[key] = data
	f.types[key] = contentType
	return nil
}

func (f *fakeStore) URL(key string) string {
	return "https://blobs.example/" + key
}

func serveFile(t *testing.T, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestRelocate(t *testing.T) {
	srv := serveFile(t, "PNGDATA")
	fs := newFakeStore()
	r := NewRelocator(fs, Options{Prefix: "attachments/", HTTPClient: srv.Client()})

	sum := sha256.Sum256([]byte("PNGDATA"))
	wantKey := "attachments/" + hex.EncodeToString(sum[:]) + "/team-photo.png"

	got, err := r.Relocate(context.Background(), srv.URL+"/a.png", "Team Photo.PNG", "image/png")
	require.NoError(t, err)
	assert.Equal(t, "https://blobs.example/"+wantKey, got)
	assert.Equal(t, []byte("PNGDATA"), fs.objects[wantKey])
	assert.Equal(t, "image/png", fs.types[wantKey])

	again, err := r.Relocate(context.Background(), srv.URL+"/a.png", "Team Photo.PNG", "image/png")
	require.NoError(t, err)
	assert.Equal(t, got, again)
	assert.Equal(t, 1, fs.puts, "identical content is uploaded once")
}

func TestRelocateDefaultsContentType(t *testing.T) {
	srv := serveFile(t, "bytes")
	fs := newFakeStore()
	r := NewRelocator(fs, Options{HTTPClient: srv.Client()})

	_, err := r.Relocate(context.Background(), srv.URL+"/f", "notes", "")
	require.NoError(t, err)
	for _, ct := range fs.types {
		assert.Equal(t, "application/octet-stream", ct)
	}
}

func TestRelocateErrors(t *testing.T) {
	srv := serveFile(t, strings.Repeat("x", 64))

	t.Run("download status", func(t *testing.T) {
		r := NewRelocator(newFakeStore(), Options{HTTPClient: srv.Client()})
		_, err := r.Relocate(context.Background(), srv.URL+"/missing", "a.txt", "")
		assert.ErrorContains(t, err, "unexpected status 404")
	})

	t.Run("too large", func(t *testing.T) {
		r := NewRelocator(newFakeStore(), Options{HTTPClient: srv.Client(), MaxBytes: 10})
		_, err := r.Relocate(context.Background(), srv.URL+"/big", "a.txt", "")
		assert.ErrorIs(t, err, ErrTooLarge)
	})

	t.Run("upload failure", func(t *testing.T) {
		fs := newFakeStore()
		fs.putErr = errors.New("access denied")
		r := NewRelocator(fs, Options{HTTPClient: srv.Client()})
		_, err := r.Relocate(context.Background(), srv.URL+"/f", "a.txt", "")
		assert.ErrorContains(t, err, "access denied")
	})
}

func TestObjectName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"report.pdf", "report.pdf"},
		{"Q3 Plan_final.DOCX", "q3-plan-final.docx"},
		{"../../etc/passwd", "passwd"},
		{`C:\Users\me\pic.jpg`, "pic.jpg"},
		{"日本語.png", "file.png"},
		{"README", "readme"},
		{".env", "file.env"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ObjectName(tt.in))
		})
	}
}

func TestStoreURLs(t *testing.T) {
	key := "attachments/abc/my file.png"

	s3Default := &S3Store{bucket: "media", region: "ap-northeast-1"}
	assert.Equal(t, "https://media.s3.ap-northeast-1.amazonaws.com/attachments/abc/my%20file.png", s3Default.URL(key))

	s3Minio := &S3Store{bucket: "media", endpoint: "http://localhost:9000/"}
	assert.Equal(t, "http://localhost:9000/media/attachments/abc/my%20file.png", s3Minio.URL(key))

	s3CDN := &S3Store{bucket: "media", publicBaseURL: "https://cdn.example.com/"}
	assert.Equal(t, "https://cdn.example.com/attachments/abc/my%20file.png", s3CDN.URL(key))

	gcs := &GCSStore{bucket: "media"}
	assert.Equal(t, "https://storage.googleapis.com/media/attachments/abc/my%20file.png", gcs.URL(key))
}

func TestPassthrough(t *testing.T) {
	url, err := Passthrough{}.Relocate(context.Background(), "https://cdn.test/a.png", "a.png", "image/png")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.test/a.png", url)

	_, err = Passthrough{}.Relocate(context.Background(), "", "a.png", "")
	assert.Error(t, err)
}
