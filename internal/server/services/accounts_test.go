package services

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/videohub/internal/common"
	"github.com/dmitrijs2005/videohub/internal/dbx"
	"github.com/dmitrijs2005/videohub/internal/logging"
	"github.com/dmitrijs2005/videohub/internal/server/auth"
	"github.com/dmitrijs2005/videohub/internal/server/media"
	"github.com/dmitrijs2005/videohub/internal/server/models"
	"github.com/dmitrijs2005/videohub/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/videohub/internal/server/repositories/users"
	"github.com/dmitrijs2005/videohub/internal/server/sessions"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// fakeUploader "stores" files under a fixed base URL and removes them like the
// real uploader does.
type fakeUploader struct {
	fail     bool
	uploaded []string
}

func (f *fakeUploader) Upload(ctx context.Context, localPath string) *media.Object {
	defer os.Remove(localPath)
	if f.fail || localPath == "" {
		return nil
	}
	if _, err := os.Stat(localPath); err != nil {
		return nil
	}
	f.uploaded = append(f.uploaded, localPath)
	name := filepath.Base(localPath)
	return &media.Object{Key: name, URL: "http://cdn/media/" + name}
}

type env struct {
	svc      *AccountService
	manager  *sessions.Manager
	repo     users.Repository
	uploader *fakeUploader
}

func newEnv(t *testing.T) *env {
	t.Helper()
	codec, err := auth.NewCodec(auth.TokenConfig{
		AccessSecret:  []byte("access"),
		RefreshSecret: []byte("refresh"),
		AccessTTL:     time.Minute,
		RefreshTTL:    time.Hour,
	})
	require.NoError(t, err)

	rm := repomanager.NewInMemoryRepositoryManager()
	repo := rm.Users(nil)
	log := logging.Discard()
	sm := sessions.NewManager(repo, codec, log)
	up := &fakeUploader{}

	return &env{
		svc:      NewAccountService(nil, rm, auth.NewBcryptHasher(bcrypt.MinCost), sm, sessions.NewRotator(sm), up, log),
		manager:  sm,
		repo:     repo,
		uploader: up,
	}
}

func tempFile(t *testing.T, name string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte("img"), 0o600))
	return p
}

func (e *env) register(t *testing.T, username, email, password string) *models.PublicUser {
	t.Helper()
	u, err := e.svc.Register(context.Background(), RegisterInput{
		FullName: "Full " + username, Username: username, Email: email, Password: password,
		AvatarPath: tempFile(t, username+".png"),
	})
	require.NoError(t, err)
	return u
}

func TestRegister_Success(t *testing.T) {
	e := newEnv(t)
	avatar, cover := tempFile(t, "a.png"), tempFile(t, "c.png")

	u, err := e.svc.Register(context.Background(), RegisterInput{
		FullName: " Alice ", Username: "Alice", Email: "Alice@X.com", Password: "secret123",
		AvatarPath: avatar, CoverImagePath: cover,
	})
	require.NoError(t, err)
	assert.Equal(t, "alice", u.Username)
	assert.Equal(t, "alice@x.com", u.Email)
	assert.Equal(t, "Alice", u.FullName)
	assert.Equal(t, "http://cdn/media/a.png", u.Avatar)
	assert.Equal(t, "http://cdn/media/c.png", u.CoverImage)

	stored, err := e.repo.FindByID(context.Background(), u.ID)
	require.NoError(t, err)
	assert.NotEqual(t, "secret123", stored.PasswordHash)
	assert.Nil(t, stored.RefreshToken)
}

func TestRegister_Validation(t *testing.T) {
	e := newEnv(t)

	tests := []RegisterInput{
		{Username: "a", Email: "a@x.com", Password: "p"},
		{FullName: "A", Email: "a@x.com", Password: "p"},
		{FullName: "A", Username: "a", Password: "p"},
		{FullName: "A", Username: "a", Email: "a@x.com", Password: "  "},
		{FullName: "A", Username: "a", Email: "a@x.com", Password: "p"},
		{FullName: "Carol", Username: "carol smith", Email: "carol@x.com", Password: "p", AvatarPath: tempFile(t, "c1.png")},
		{FullName: "Carol", Username: "carol", Email: "not-an-email", Password: "p", AvatarPath: tempFile(t, "c2.png")},
	}
	for _, in := range tests {
		_, err := e.svc.Register(context.Background(), in)
		assert.ErrorIs(t, err, common.ErrorValidation, "%+v", in)
	}

	e.uploader.fail = true
	_, err := e.svc.Register(context.Background(), RegisterInput{
		FullName: "A", Username: "a", Email: "a@x.com", Password: "p", AvatarPath: tempFile(t, "a.png"),
	})
	assert.ErrorIs(t, err, common.ErrorValidation)
	assert.Contains(t, err.Error(), "avatar file is required")

	_, err = e.repo.FindByUsernameOrEmail(context.Background(), "carol", "carol@x.com")
	assert.ErrorIs(t, err, common.ErrorNotFound, "invalid registrations must not be stored")
}

func TestRegister_Conflict(t *testing.T) {
	e := newEnv(t)
	e.register(t, "alice", "alice@x.com", "secret123")

	for _, in := range []RegisterInput{
		{FullName: "B", Username: "ALICE", Email: "b@x.com", Password: "p", AvatarPath: tempFile(t, "1.png")},
		{FullName: "B", Username: "bob", Email: "alice@x.com", Password: "p", AvatarPath: tempFile(t, "2.png")},
	} {
		_, err := e.svc.Register(context.Background(), in)
		assert.ErrorIs(t, err, common.ErrorConflict)

		_, statErr := os.Stat(in.AvatarPath)
		assert.True(t, os.IsNotExist(statErr), "temp file must be discarded")
	}
}

func TestLogin(t *testing.T) {
	e := newEnv(t)
	u := e.register(t, "alice", "alice@x.com", "secret123")

	for _, id := range []string{"alice", "ALICE", "alice@x.com"} {
		res, err := e.svc.Login(context.Background(), id, "secret123")
		require.NoError(t, err, id)
		assert.Equal(t, u.ID, res.User.ID)
		assert.NotEmpty(t, res.Tokens.AccessToken)

		stored, err := e.repo.FindByID(context.Background(), u.ID)
		require.NoError(t, err)
		assert.Equal(t, res.Tokens.RefreshToken, *stored.RefreshToken)
	}

	_, err := e.svc.Login(context.Background(), "", "secret123")
	assert.ErrorIs(t, err, common.ErrorValidation)
	_, err = e.svc.Login(context.Background(), "alice", "")
	assert.ErrorIs(t, err, common.ErrorValidation)
	_, err = e.svc.Login(context.Background(), "alice", "   ")
	assert.ErrorIs(t, err, common.ErrorValidation)
	_, err = e.svc.Login(context.Background(), "bob", "secret123")
	assert.ErrorIs(t, err, common.ErrorNotFound)
	_, err = e.svc.Login(context.Background(), "alice", "wrong")
	assert.ErrorIs(t, err, common.ErrorUnauthorized)
}

func TestLogoutAndRefresh(t *testing.T) {
	e := newEnv(t)
	e.register(t, "alice", "alice@x.com", "secret123")

	res, err := e.svc.Login(context.Background(), "alice", "secret123")
	require.NoError(t, err)

	next, err := e.svc.Refresh(context.Background(), res.Tokens.RefreshToken)
	require.NoError(t, err)

	require.NoError(t, e.svc.Logout(context.Background(), res.User.ID))

	_, err = e.svc.Refresh(context.Background(), next.RefreshToken)
	assert.ErrorIs(t, err, common.ErrorUnauthorized)
}

func TestChangePassword(t *testing.T) {
	e := newEnv(t)
	u := e.register(t, "alice", "alice@x.com", "secret123")
	ctx := context.Background()

	assert.ErrorIs(t, e.svc.ChangePassword(ctx, u.ID, "", "x"), common.ErrorValidation)
	assert.ErrorIs(t, e.svc.ChangePassword(ctx, u.ID, "secret123", "   "), common.ErrorValidation)
	assert.ErrorIs(t, e.svc.ChangePassword(ctx, u.ID, "wrong", "newpass"), common.ErrorUnauthorized)
	assert.ErrorIs(t, e.svc.ChangePassword(ctx, u.ID, "secret123", "secret123"), common.ErrorValidation)

	require.NoError(t, e.svc.ChangePassword(ctx, u.ID, "secret123", "newpass"))

	_, err := e.svc.Login(ctx, "alice", "secret123")
	assert.ErrorIs(t, err, common.ErrorUnauthorized)
	_, err = e.svc.Login(ctx, "alice", "newpass")
	assert.NoError(t, err)
}

func TestUpdateAccount(t *testing.T) {
	e := newEnv(t)
	alice := e.register(t, "alice", "alice@x.com", "secret123")
	e.register(t, "bob", "bob@x.com", "secret123")
	ctx := context.Background()

	got, err := e.svc.UpdateAccount(ctx, alice.ID, "Alice A.", "Alice", "alice2@x.com")
	require.NoError(t, err)
	assert.Equal(t, "Alice A.", got.FullName)
	assert.Equal(t, "alice", got.Username)
	assert.Equal(t, "alice2@x.com", got.Email)

	_, err = e.svc.UpdateAccount(ctx, alice.ID, "A", "bob", "alice2@x.com")
	assert.ErrorIs(t, err, common.ErrorConflict)

	_, err = e.svc.UpdateAccount(ctx, alice.ID, "", "alice", "alice@x.com")
	assert.ErrorIs(t, err, common.ErrorValidation)

	_, err = e.svc.UpdateAccount(ctx, alice.ID, "A", "alice", "not-an-email")
	assert.ErrorIs(t, err, common.ErrorValidation)
}

func TestUpdateImages(t *testing.T) {
	e := newEnv(t)
	u := e.register(t, "alice", "alice@x.com", "secret123")
	ctx := context.Background()

	got, err := e.svc.UpdateAvatar(ctx, u.ID, tempFile(t, "new.png"))
	require.NoError(t, err)
	assert.Equal(t, "http://cdn/media/new.png", got.Avatar)

	got, err = e.svc.UpdateCoverImage(ctx, u.ID, tempFile(t, "cover.jpg"))
	require.NoError(t, err)
	assert.Equal(t, "http://cdn/media/cover.jpg", got.CoverImage)

	_, err = e.svc.UpdateAvatar(ctx, u.ID, "")
	assert.ErrorIs(t, err, common.ErrorValidation)

	e.uploader.fail = true
	_, err = e.svc.UpdateCoverImage(ctx, u.ID, tempFile(t, "x.png"))
	assert.ErrorIs(t, err, common.ErrorValidation)
	assert.Contains(t, err.Error(), "error while uploading cover image")
}

func TestCurrentUser(t *testing.T) {
	e := newEnv(t)
	u := e.register(t, "alice", "alice@x.com", "secret123")

	got, err := e.svc.CurrentUser(context.Background(), u.ID)
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)
}

type failingUsers struct{ users.Repository }

func (failingUsers) FindByUsernameOrEmail(context.Context, string, string) (*models.User, error) {
	return nil, errors.New("db down")
}

type failingManager struct{ repomanager.RepositoryManager }

func (failingManager) Users(dbx.DBTX) users.Repository { return failingUsers{} }

func TestLogin_StoreFaultIsInternal(t *testing.T) {
	e := newEnv(t)
	e.svc.repomanager = failingManager{}

	_, err := e.svc.Login(context.Background(), "alice", "secret123")
	assert.Equal(t, common.ErrorInternal, err)
}

func TestUpdateAccount_PostgresRunsInTransaction(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	e := newEnv(t)
	e.svc.db = db
	e.svc.repomanager = repomanager.NewPostgresRepositoryManager()

	ts := time.Now()
	cols := []string{"id", "username", "email", "full_name", "avatar", "cover_image",
		"password_hash", "refresh_token", "created_at", "updated_at"}

	mock.ExpectBegin()
	mock.ExpectQuery(`(?s)^SELECT\s+id,.*WHERE\s+username\s*=\s*lower\(\$1\)`).
		WithArgs("alice", "alice@x.com").
		WillReturnRows(sqlmock.NewRows(cols).AddRow("u-1", "alice", "alice@x.com", "Alice", "a", "", "h", nil, ts, ts))
	mock.ExpectQuery(`(?s)^UPDATE\s+users\s+SET\s+full_name`).
		WithArgs("u-1", "Alice B.", "alice", "alice@x.com").
		WillReturnRows(sqlmock.NewRows(cols).AddRow("u-1", "alice", "alice@x.com", "Alice B.", "a", "", "h", nil, ts, ts))
	mock.ExpectCommit()

	got, err := e.svc.UpdateAccount(context.Background(), "u-1", "Alice B.", "alice", "alice@x.com")
	require.NoError(t, err)
	assert.Equal(t, "Alice B.", got.FullName)
	require.NoError(t, mock.ExpectationsWereMet())

	mock.ExpectBegin()
	mock.ExpectQuery(`(?s)^SELECT\s+id,`).WillReturnError(errors.New("boom"))
	mock.ExpectRollback()

	_, err = e.svc.UpdateAccount(context.Background(), "u-1", "Alice B.", "alice", "alice@x.com")
	assert.Equal(t, common.ErrorInternal, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
