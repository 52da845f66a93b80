package relocate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeUploader struct {
	mu      sync.Mutex
	uploads []string // keys, in order
	files   map[string][]byte
	failFor map[string]int // key -> remaining failures
}

func newFakeUploader() *fakeUploader {
	return &fakeUploader{files: make(map[string][]byte), failFor: make(map[string]int)}
}

func (f *fakeUploader) Upload(_ context.Context, key, path, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failFor[key] > 0 {
		f.failFor[key]--
		return errors.New("upload refused")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	f.uploads = append(f.uploads, key)
	f.files[key] = data
	return nil
}

type countingHandler struct {
	mu    sync.Mutex
	gets  map[string]int
	heads map[string]int
	body  map[string][]byte
	ctype map[string]string
}

func newCountingHandler() *countingHandler {
	return &countingHandler{
		gets:  make(map[string]int),
		heads: make(map[string]int),
		body:  make(map[string][]byte),
		ctype: make(map[string]string),
	}
}

func (h *countingHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	defer h.mu.Unlock()
	switch r.Method {
	case http.MethodHead:
		h.heads[r.URL.Path]++
		// the store never has anything in these tests unless marked
		w.WriteHeader(http.StatusNotFound)
	case http.MethodGet:
		h.gets[r.URL.Path]++
		data, ok := h.body[r.URL.Path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if ct := h.ctype[r.URL.Path]; ct != "" {
			w.Header().Set("Content-Type", ct)
		}
		w.Write(data)
	}
}

func newTestRelocator(t *testing.T, srvURL string, up Uploader) *Relocator {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	return New(Config{
		PublicBaseURL:  srvURL + "/public",
		KeyPrefix:      "images",
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
	}, up, logger)
}

func TestExtractImageURLs(t *testing.T) {
	body := `intro ![a](https://img.example/a.png) text
<img class="x" src="https://img.example/b.jpg" alt="b"> and again
![dup](https://img.example/a.png)`

	urls := ExtractImageURLs(body)
	assert.Equal(t, []string{"https://img.example/a.png", "https://img.example/b.jpg"}, urls)

	assert.Empty(t, ExtractImageURLs("no images here, just [a link](https://example.com)"))
}

func TestRelocateURLCacheHit(t *testing.T) {
	h := newCountingHandler()
	h.body["/a.png"] = []byte("png-bytes")
	h.ctype["/a.png"] = "image/png"
	srv := httptest.NewServer(h)
	defer srv.Close()

	up := newFakeUploader()
	r := newTestRelocator(t, srv.URL, up)
	cache := NewCache()

	first, err := r.RelocateURL(context.Background(), cache, srv.URL+"/a.png")
	require.NoError(t, err)
	second, err := r.RelocateURL(context.Background(), cache, srv.URL+"/a.png")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, h.gets["/a.png"], "second call must be a pure cache hit")
	assert.Len(t, up.uploads, 1)
	assert.True(t, strings.HasPrefix(first, srv.URL+"/public/images/"))
	assert.True(t, strings.HasSuffix(first, ".png"))
}

func TestRelocateURLIdenticalBytesShareOneUpload(t *testing.T) {
	h := newCountingHandler()
	h.body["/one.png"] = []byte("same-bytes")
	h.body["/two.png"] = []byte("same-bytes")
	h.ctype["/one.png"] = "image/png"
	h.ctype["/two.png"] = "image/png"
	srv := httptest.NewServer(h)
	defer srv.Close()

	up := newFakeUploader()
	r := newTestRelocator(t, srv.URL, up)
	cache := NewCache()

	first, err := r.RelocateURL(context.Background(), cache, srv.URL+"/one.png")
	require.NoError(t, err)
	second, err := r.RelocateURL(context.Background(), cache, srv.URL+"/two.png")
	require.NoError(t, err)

	assert.Equal(t, first, second, "identical bytes must land on the same key")
	assert.Len(t, up.uploads, 1, "identical bytes must upload once")
	assert.Equal(t, 2, h.gets["/one.png"]+h.gets["/two.png"])
}

func TestRelocateURLSkipsUploadWhenObjectExists(t *testing.T) {
	h := newCountingHandler()
	h.body["/a.jpg"] = []byte("jpeg-bytes")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			w.WriteHeader(http.StatusOK) // already stored
			return
		}
		h.ServeHTTP(w, r)
	}))
	defer srv.Close()

	up := newFakeUploader()
	r := newTestRelocator(t, srv.URL, up)

	relocated, err := r.RelocateURL(context.Background(), NewCache(), srv.URL+"/a.jpg")
	require.NoError(t, err)
	assert.NotEmpty(t, relocated)
	assert.Empty(t, up.uploads, "existing object must short-circuit the upload")
}

func TestRelocateURLRetriesUpload(t *testing.T) {
	h := newCountingHandler()
	h.body["/a.png"] = []byte("png-bytes")
	h.ctype["/a.png"] = "image/png"
	srv := httptest.NewServer(h)
	defer srv.Close()

	up := newFakeUploader()
	r := newTestRelocator(t, srv.URL, up)

	// compute the expected key by relocating once in a throwaway run
	warm := NewCache()
	relocated, err := r.RelocateURL(context.Background(), warm, srv.URL+"/a.png")
	require.NoError(t, err)
	key := strings.TrimPrefix(relocated, srv.URL+"/public/")

	up.failFor[key] = 2
	_, err = r.RelocateURL(context.Background(), NewCache(), srv.URL+"/a.png")
	require.NoError(t, err, "two failures are within the retry budget")

	up.failFor[key] = 3
	_, err = r.RelocateURL(context.Background(), NewCache(), srv.URL+"/a.png")
	require.Error(t, err, "three failures exhaust the retry budget")
	assert.Contains(t, err.Error(), "after 3 attempts")
}

func TestRewriteSubstitutesAndDegradesPerImage(t *testing.T) {
	h := newCountingHandler()
	h.body["/good.png"] = []byte("good-bytes")
	h.ctype["/good.png"] = "image/png"
	srv := httptest.NewServer(h)
	defer srv.Close()

	up := newFakeUploader()
	r := newTestRelocator(t, srv.URL, up)

	body := fmt.Sprintf("![g](%s/good.png)\n![b](%s/missing.png)\n", srv.URL, srv.URL)
	rewritten, failures, err := r.Rewrite(context.Background(), NewCache(), body)
	require.NoError(t, err)

	assert.Equal(t, 1, failures)
	assert.NotContains(t, rewritten, "/good.png")
	assert.Contains(t, rewritten, "/public/images/")
	// failed image keeps its original URL
	assert.Contains(t, rewritten, srv.URL+"/missing.png")
}

func TestRewriteNoImagesIsNoop(t *testing.T) {
	up := newFakeUploader()
	r := newTestRelocator(t, "http://127.0.0.1:0", up)

	body := "plain text, no images"
	rewritten, failures, err := r.Rewrite(context.Background(), NewCache(), body)
	require.NoError(t, err)
	assert.Zero(t, failures)
	assert.Equal(t, body, rewritten)
}

func TestDetectContentType(t *testing.T) {
	assert.Equal(t, "image/png", detectContentType("image/png", "https://x/y"))
	assert.Equal(t, "image/webp", detectContentType("image/webp; charset=binary", "https://x/y"))
	assert.Equal(t, "image/gif", detectContentType("application/octet-stream", "https://x/y/z.gif?sig=1"))
	assert.Equal(t, "image/jpeg", detectContentType("", "https://x/y/no-extension"))
}
