package guard

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dmitrijs2005/videohub/internal/common"
	"github.com/dmitrijs2005/videohub/internal/logging"
	"github.com/dmitrijs2005/videohub/internal/server/auth"
	"github.com/dmitrijs2005/videohub/internal/server/models"
	"github.com/dmitrijs2005/videohub/internal/server/repositories/users"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	codec *auth.Codec
	repo  *users.InMemoryRepository
	alice *models.User
	bob   *models.User
	guard *Guard
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	codec, err := auth.NewCodec(auth.TokenConfig{
		AccessSecret:  []byte("access"),
		RefreshSecret: []byte("refresh"),
		AccessTTL:     time.Minute,
		RefreshTTL:    time.Hour,
	})
	require.NoError(t, err)

	repo := users.NewInMemoryRepository()
	mk := func(name string) *models.User {
		u, err := repo.Create(context.Background(), &models.User{
			Username: name, Email: name + "@x.com", FullName: name, Avatar: "a", PasswordHash: "h",
		})
		require.NoError(t, err)
		return u
	}

	return &fixture{
		codec: codec,
		repo:  repo,
		alice: mk("alice"),
		bob:   mk("bob"),
		guard: New(codec, repo, logging.Discard()),
	}
}

func (f *fixture) access(t *testing.T, id string) string {
	t.Helper()
	tok, err := f.codec.Issue(auth.KindAccess, id)
	require.NoError(t, err)
	return tok
}

func TestAuthenticate_Header(t *testing.T) {
	f := newFixture(t)

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", common.BearerPrefix+f.access(t, f.alice.ID))

	u, err := f.guard.Authenticate(r)
	require.NoError(t, err)
	assert.Equal(t, f.alice.ID, u.ID)
}

func TestAuthenticate_CookieWithAndWithoutPrefix(t *testing.T) {
	f := newFixture(t)
	tok := f.access(t, f.alice.ID)

	for _, v := range []string{common.BearerPrefix + tok, tok} {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.AddCookie(&http.Cookie{Name: common.AccessTokenCookieName, Value: v})

		u, err := f.guard.Authenticate(r)
		require.NoError(t, err)
		assert.Equal(t, f.alice.ID, u.ID)
	}
}

func TestAuthenticate_CookieTakesPrecedence(t *testing.T) {
	f := newFixture(t)

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.AddCookie(&http.Cookie{Name: common.AccessTokenCookieName, Value: common.BearerPrefix + f.access(t, f.alice.ID)})
	r.Header.Set("Authorization", common.BearerPrefix+f.access(t, f.bob.ID))

	u, err := f.guard.Authenticate(r)
	require.NoError(t, err)
	assert.Equal(t, f.alice.ID, u.ID)
}

func TestAuthenticate_Rejections(t *testing.T) {
	f := newFixture(t)

	expired, err := f.codec.WithClock(func() time.Time { return time.Now().Add(-time.Hour) }).Issue(auth.KindAccess, f.alice.ID)
	require.NoError(t, err)
	forged, err := f.codec.IssueWith(auth.KindAccess, f.alice.ID, []byte("attacker"), time.Minute)
	require.NoError(t, err)
	refresh, err := f.codec.Issue(auth.KindRefresh, f.alice.ID)
	require.NoError(t, err)
	ghost := f.access(t, "ghost")

	tests := map[string]func(r *http.Request){
		"missing":       func(r *http.Request) {},
		"empty header":  func(r *http.Request) { r.Header.Set("Authorization", common.BearerPrefix) },
		"expired":       func(r *http.Request) { r.Header.Set("Authorization", common.BearerPrefix+expired) },
		"forged":        func(r *http.Request) { r.Header.Set("Authorization", common.BearerPrefix+forged) },
		"refresh token": func(r *http.Request) { r.Header.Set("Authorization", common.BearerPrefix+refresh) },
		"unknown user":  func(r *http.Request) { r.Header.Set("Authorization", common.BearerPrefix+ghost) },
		"garbage":       func(r *http.Request) { r.Header.Set("Authorization", "Basic dXNlcjpwYXNz") },
	}
	for name, prepare := range tests {
		t.Run(name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			prepare(r)
			_, err := f.guard.Authenticate(r)
			assert.Equal(t, common.ErrorUnauthorized, err)
		})
	}
}

type failingRepo struct{ users.Repository }

func (failingRepo) FindByID(context.Context, string) (*models.User, error) {
	return nil, errors.New("db down")
}

func TestAuthenticate_StoreFaultIsInternal(t *testing.T) {
	f := newFixture(t)
	g := New(f.codec, failingRepo{}, logging.Discard())

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", common.BearerPrefix+f.access(t, f.alice.ID))

	_, err := g.Authenticate(r)
	assert.Equal(t, common.ErrorInternal, err)
}

func TestMiddleware(t *testing.T) {
	f := newFixture(t)

	var seen *models.PublicUser
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, ok := UserFromContext(r.Context())
		require.True(t, ok)
		seen = u
		w.WriteHeader(http.StatusNoContent)
	})
	h := f.guard.Middleware(next)

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", common.BearerPrefix+f.access(t, f.bob.ID))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)

	assert.Equal(t, http.StatusNoContent, w.Code)
	require.NotNil(t, seen)
	assert.Equal(t, f.bob.ID, seen.ID)

	seen = nil
	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Nil(t, seen)
}

func TestMiddleware_CustomReject(t *testing.T) {
	f := newFixture(t)

	var got error
	g := New(f.codec, f.repo, logging.Discard(), WithRejectFunc(func(w http.ResponseWriter, r *http.Request, err error) {
		got = err
		w.WriteHeader(http.StatusTeapot)
	}))

	w := httptest.NewRecorder()
	g.Middleware(http.NotFoundHandler()).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusTeapot, w.Code)
	assert.ErrorIs(t, got, common.ErrorUnauthorized)
}

func TestWithExtractors_HeaderOnly(t *testing.T) {
	f := newFixture(t)
	g := New(f.codec, f.repo, logging.Discard(), WithExtractors(FromAuthorizationHeader()))

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.AddCookie(&http.Cookie{Name: common.AccessTokenCookieName, Value: f.access(t, f.alice.ID)})

	_, err := g.Authenticate(r)
	assert.ErrorIs(t, err, common.ErrorUnauthorized)
}

func TestUserFromContext_Empty(t *testing.T) {
	_, ok := UserFromContext(context.Background())
	assert.False(t, ok)
}
