package user_test

import (
	"bytes"
	"context"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"accounts-api/internal/auth"
	"accounts-api/internal/media"
	"accounts-api/internal/observability"
	"accounts-api/internal/user"
)

var pngHeader = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 13, 'I', 'H', 'D', 'R'}

type fakeImageStore struct {
	images map[string][]string
}

func newFakeImageStore() *fakeImageStore {
	return &fakeImageStore{images: map[string][]string{"user-1": {}}}
}

func (s *fakeImageStore) AddImage(_ context.Context, userID, url string) error {
	if _, ok := s.images[userID]; !ok {
		return user.ErrUserNotFound
	}
	s.images[userID] = append(s.images[userID], url)
	return nil
}

func (s *fakeImageStore) RemoveImage(_ context.Context, userID, url string) error {
	urls := s.images[userID]
	for i, existing := range urls {
		if existing == url {
			s.images[userID] = append(urls[:i], urls[i+1:]...)
			return nil
		}
	}
	return user.ErrImageNotFound
}

func (s *fakeImageStore) ListImages(_ context.Context, userID string) ([]string, error) {
	urls, ok := s.images[userID]
	if !ok {
		return nil, user.ErrUserNotFound
	}
	return urls, nil
}

type fixture struct {
	store   *fakeImageStore
	storage *media.Storage
	guard   func(http.HandlerFunc) http.Handler
	cookies []*http.Cookie
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	storage, err := media.NewStorage(t.TempDir())
	require.NoError(t, err)

	store := newFakeImageStore()
	handlerCodec := auth.NewCookieCodec("cookie-secret", false)
	tokens := auth.NewTokenManager("test-secret", 24*time.Hour, 30*24*time.Hour)

	pair, err := tokens.IssuePair("user-1", "a@x.com")
	require.NoError(t, err)
	rec := httptest.NewRecorder()
	handlerCodec.SetTokenPair(rec, pair, 24*time.Hour, 30*24*time.Hour)

	return &fixture{
		store:   store,
		storage: storage,
		guard: func(h http.HandlerFunc) http.Handler {
			return auth.Guard(handlerCodec, tokens, h)
		},
		cookies: rec.Result().Cookies(),
	}
}

func (f *fixture) handler(t *testing.T) *user.Handler {
	t.Helper()
	return user.NewHandler(f.store, f.storage, observability.NewLogger())
}

func (f *fixture) do(t *testing.T, handler http.Handler, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	for _, cookie := range f.cookies {
		req.AddCookie(cookie)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func multipartImage(t *testing.T, payload []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("image", "photo.png")
	require.NoError(t, err)
	_, err = part.Write(payload)
	require.NoError(t, err)
	require.NoError(t, writer.Close())
	return &buf, writer.FormDataContentType()
}

func TestUploadListDeleteImage(t *testing.T) {
	f := newFixture(t)
	h := f.handler(t)

	body, contentType := multipartImage(t, append(append([]byte(nil), pngHeader...), make([]byte, 64)...))
	req := httptest.NewRequest(http.MethodPost, "/api/v1/upload-image", body)
	req.Header.Set("Content-Type", contentType)
	rec := f.do(t, f.guard(h.UploadImage), req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"imageUrl":"/uploads/`)

	urls, err := f.store.ListImages(context.Background(), "user-1")
	require.NoError(t, err)
	require.Len(t, urls, 1)

	listRec := f.do(t, f.guard(h.ListImages), httptest.NewRequest(http.MethodGet, "/api/v1/images", nil))
	require.Equal(t, http.StatusOK, listRec.Code)
	assert.Contains(t, listRec.Body.String(), urls[0])

	name := urls[0][len("/uploads/"):]
	deleteReq := httptest.NewRequest(http.MethodDelete, "/api/v1/delete-image/"+name, nil)
	deleteReq.SetPathValue("imageName", name)
	deleteRec := f.do(t, f.guard(h.DeleteImage), deleteReq)
	require.Equal(t, http.StatusOK, deleteRec.Code, deleteRec.Body.String())

	urls, err = f.store.ListImages(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Empty(t, urls)

	_, err = os.Stat(f.storage.Dir() + "/" + name)
	assert.True(t, errors.Is(err, os.ErrNotExist), "the stored file should be removed with the row")
}

func TestUploadRejectsNonImagePayload(t *testing.T) {
	f := newFixture(t)
	h := f.handler(t)

	body, contentType := multipartImage(t, []byte("just some text, not an image"))
	req := httptest.NewRequest(http.MethodPost, "/api/v1/upload-image", body)
	req.Header.Set("Content-Type", contentType)
	rec := f.do(t, f.guard(h.UploadImage), req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDeleteImageNotOwned(t *testing.T) {
	f := newFixture(t)
	h := f.handler(t)

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/delete-image/ghost.png", nil)
	req.SetPathValue("imageName", "ghost.png")
	rec := f.do(t, f.guard(h.DeleteImage), req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestImageRoutesRequireAuth(t *testing.T) {
	f := newFixture(t)
	h := f.handler(t)

	rec := httptest.NewRecorder()
	f.guard(h.ListImages).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/images", nil))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
