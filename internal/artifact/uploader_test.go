package artifact

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"genrouter/internal/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	objects map[string][]byte
	types   map[string]string
	failPut bool
}

func newMemStore() *memStore {
	return &memStore{objects: map[string][]byte{}, types: map[string]string{}}
}

func (m *memStore) Put(ctx context.Context, key, contentType string, content []byte) error {
	if m.failPut {
		return errors.New("bucket unavailable")
	}
	m.objects[key] = content
	m.types[key] = contentType
	return nil
}

func (m *memStore) URL(ctx context.Context, key string) (string, error) {
	return "https://cdn.example/" + key, nil
}

func TestUploader_Persist(t *testing.T) {
	store := newMemStore()
	u := NewUploader(store, "/gen/", nil)
	u.now = func() time.Time { return time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC) }

	res := &core.ImageResult{
		Images:  []string{"data:image/png;base64,aGVsbG8=", "https://elsewhere/img.png"},
		ModelID: "sdxl",
	}
	out := u.Persist(context.Background(), res)

	require.Len(t, out.Images, 2)
	assert.True(t, strings.HasPrefix(out.Images[0], "https://cdn.example/gen/2026/03/04/"))
	assert.True(t, strings.HasSuffix(out.Images[0], ".png"))
	assert.Equal(t, "https://elsewhere/img.png", out.Images[1])
	assert.Equal(t, "sdxl", out.ModelID)
	assert.Equal(t, "data:image/png;base64,aGVsbG8=", res.Images[0], "input is not mutated")

	require.Len(t, store.objects, 1)
	for key, content := range store.objects {
		assert.Equal(t, "hello", string(content))
		assert.Equal(t, core.ImageFormatPNG, store.types[key])
	}
}

func TestUploader_FailureKeepsOriginal(t *testing.T) {
	store := newMemStore()
	store.failPut = true
	u := NewUploader(store, "", nil)

	res := &core.ImageResult{Images: []string{"data:image/png;base64,aGVsbG8="}}
	out := u.Persist(context.Background(), res)
	assert.Same(t, res, out)
}

func TestUploader_BadBase64KeepsOriginal(t *testing.T) {
	u := NewUploader(newMemStore(), "", nil)

	res := &core.ImageResult{Images: []string{"data:image/png;base64,!!!"}}
	assert.Same(t, res, u.Persist(context.Background(), res))
}

func TestNewS3Store_RequiresSettings(t *testing.T) {
	_, err := NewS3Store(S3Config{})
	assert.Error(t, err)

	_, err = NewS3Store(S3Config{Endpoint: "localhost:9000", AccessKey: "a", SecretKey: "b"})
	assert.Error(t, err)

	s, err := NewS3Store(S3Config{Endpoint: "localhost:9000", AccessKey: "a", SecretKey: "b", Bucket: "gen", PublicBaseURL: "http://localhost:9000/"})
	require.NoError(t, err)
	url, err := s.URL(context.Background(), "images/x.png")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:9000/gen/images/x.png", url)
}
