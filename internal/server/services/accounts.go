// Package services contains server-side business logic. This file implements
// AccountService: registration, login, session endpoints and the profile
// mutations available to an authenticated user.
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/dmitrijs2005/videohub/internal/common"
	"github.com/dmitrijs2005/videohub/internal/dbx"
	"github.com/dmitrijs2005/videohub/internal/logging"
	"github.com/dmitrijs2005/videohub/internal/server/auth"
	"github.com/dmitrijs2005/videohub/internal/server/media"
	"github.com/dmitrijs2005/videohub/internal/server/models"
	"github.com/dmitrijs2005/videohub/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/videohub/internal/server/repositories/users"
	"github.com/dmitrijs2005/videohub/internal/server/sessions"
)

type RegisterInput struct {
	FullName       string
	Username       string
	Email          string
	Password       string
	AvatarPath     string
	CoverImagePath string
}

type LoginResult struct {
	User   *models.PublicUser
	Tokens *auth.TokenPair
}

type AccountService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	hasher      auth.PasswordHasher
	sessions    *sessions.Manager
	rotator     *sessions.Rotator
	media       media.Uploader
	logger      logging.Logger
}

// NewAccountService wires the service. db may be nil for the in-memory store;
// repositories are then used without a transaction.
func NewAccountService(db *sql.DB, m repomanager.RepositoryManager, h auth.PasswordHasher,
	sm *sessions.Manager, r *sessions.Rotator, up media.Uploader, l logging.Logger) *AccountService {
	return &AccountService{
		db:          db,
		repomanager: m,
		hasher:      h,
		sessions:    sm,
		rotator:     r,
		media:       up,
		logger:      l.With("module", "accounts"),
	}
}

func (s *AccountService) users() users.Repository {
	return s.repomanager.Users(s.db)
}

func (s *AccountService) inTx(ctx context.Context, fn func(ctx context.Context, repo users.Repository) error) error {
	if s.db == nil {
		return fn(ctx, s.users())
	}
	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		return fn(ctx, s.repomanager.Users(tx))
	})
}

// fail passes classified errors through and hides everything else behind
// common.ErrorInternal.
func (s *AccountService) fail(ctx context.Context, op string, err error) error {
	for _, known := range []error{
		common.ErrorValidation, common.ErrorConflict, common.ErrorNotFound,
		common.ErrorUnauthorized, common.ErrorInternal,
	} {
		if errors.Is(err, known) {
			return err
		}
	}
	s.logger.Error(ctx, op, "error", err)
	return common.ErrorInternal
}

func validation(msg string) error {
	return fmt.Errorf("%w: %s", common.ErrorValidation, msg)
}

func blank(values ...string) bool {
	for _, v := range values {
		if strings.TrimSpace(v) == "" {
			return true
		}
	}
	return false
}

// discard drops upload temp files that were never handed to media storage.
func discard(paths ...string) {
	for _, p := range paths {
		if p != "" {
			_ = os.Remove(p)
		}
	}
}

func (s *AccountService) Register(ctx context.Context, in RegisterInput) (*models.PublicUser, error) {
	defer discard(in.AvatarPath, in.CoverImagePath)

	if blank(in.FullName, in.Username, in.Email, in.Password) {
		return nil, validation("all fields are required")
	}
	username := strings.ToLower(strings.TrimSpace(in.Username))
	email := strings.ToLower(strings.TrimSpace(in.Email))
	fullName := strings.TrimSpace(in.FullName)

	fields := users.Patch{FullName: &fullName, Username: &username, Email: &email}
	if err := fields.Validate(); err != nil {
		return nil, err
	}

	_, err := s.users().FindByUsernameOrEmail(ctx, username, email)
	switch {
	case err == nil:
		return nil, fmt.Errorf("%w: user with email or username already exists", common.ErrorConflict)
	case !errors.Is(err, common.ErrorNotFound):
		return nil, s.fail(ctx, "lookup user", err)
	}

	if in.AvatarPath == "" {
		return nil, validation("avatar file is required")
	}
	avatar := s.media.Upload(ctx, in.AvatarPath)
	if avatar == nil {
		return nil, validation("avatar file is required")
	}

	var coverURL string
	if in.CoverImagePath != "" {
		if cover := s.media.Upload(ctx, in.CoverImagePath); cover != nil {
			coverURL = cover.URL
		}
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, s.fail(ctx, "hash password", err)
	}

	created, err := s.users().Create(ctx, &models.User{
		Username:     username,
		Email:        email,
		FullName:     fullName,
		Avatar:       avatar.URL,
		CoverImage:   coverURL,
		PasswordHash: hash,
	})
	if err != nil {
		return nil, s.fail(ctx, "create user", err)
	}

	s.logger.Info(ctx, "user registered", "user_id", created.ID)
	return created.Public(), nil
}

// Login accepts either the username or the email as identifier.
func (s *AccountService) Login(ctx context.Context, identifier, password string) (*LoginResult, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return nil, validation("username or email is required")
	}
	if blank(password) {
		return nil, validation("password is required")
	}

	u, err := s.users().FindByUsernameOrEmail(ctx, identifier, identifier)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, fmt.Errorf("%w: user does not exist", common.ErrorNotFound)
		}
		return nil, s.fail(ctx, "lookup user", err)
	}

	if !s.hasher.Verify(password, u.PasswordHash) {
		return nil, fmt.Errorf("%w: invalid user credentials", common.ErrorUnauthorized)
	}

	pair, err := s.sessions.CreateSession(ctx, u.ID)
	if err != nil {
		return nil, s.fail(ctx, "create session", err)
	}

	return &LoginResult{User: u.Public(), Tokens: pair}, nil
}

func (s *AccountService) Logout(ctx context.Context, userID string) error {
	return s.sessions.EndSession(ctx, userID)
}

func (s *AccountService) Refresh(ctx context.Context, refreshToken string) (*auth.TokenPair, error) {
	return s.rotator.Refresh(ctx, refreshToken)
}

func (s *AccountService) CurrentUser(ctx context.Context, userID string) (*models.PublicUser, error) {
	return s.sessions.CurrentUser(ctx, userID)
}

func (s *AccountService) ChangePassword(ctx context.Context, userID, oldPassword, newPassword string) error {
	if blank(oldPassword, newPassword) {
		return validation("old and new password are required")
	}

	u, err := s.users().FindByID(ctx, userID)
	if err != nil {
		return s.fail(ctx, "load user", err)
	}

	if !s.hasher.Verify(oldPassword, u.PasswordHash) {
		return fmt.Errorf("%w: invalid old password", common.ErrorUnauthorized)
	}
	if oldPassword == newPassword {
		return validation("new password must differ from the old one")
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return s.fail(ctx, "hash password", err)
	}

	if _, err := s.users().UpdateByID(ctx, userID, users.Patch{PasswordHash: &hash}, users.UpdateOptions{}); err != nil {
		return s.fail(ctx, "store password", err)
	}

	s.logger.Info(ctx, "password changed", "user_id", userID)
	return nil
}

func (s *AccountService) UpdateAccount(ctx context.Context, userID, fullName, username, email string) (*models.PublicUser, error) {
	if blank(fullName, username, email) {
		return nil, validation("all fields are required")
	}
	fullName = strings.TrimSpace(fullName)
	username = strings.ToLower(strings.TrimSpace(username))
	email = strings.ToLower(strings.TrimSpace(email))

	var updated *models.User
	err := s.inTx(ctx, func(ctx context.Context, repo users.Repository) error {
		other, err := repo.FindByUsernameOrEmail(ctx, username, email)
		switch {
		case err == nil && other.ID != userID:
			return fmt.Errorf("%w: username or email is taken", common.ErrorConflict)
		case err != nil && !errors.Is(err, common.ErrorNotFound):
			return err
		}

		updated, err = repo.UpdateByID(ctx, userID, users.Patch{
			FullName: &fullName,
			Username: &username,
			Email:    &email,
		}, users.UpdateOptions{})
		return err
	})
	if err != nil {
		return nil, s.fail(ctx, "update account", err)
	}

	return updated.Public(), nil
}

func (s *AccountService) UpdateAvatar(ctx context.Context, userID, localPath string) (*models.PublicUser, error) {
	if localPath == "" {
		return nil, validation("avatar file is missing")
	}
	obj := s.media.Upload(ctx, localPath)
	if obj == nil {
		return nil, validation("error while uploading avatar")
	}
	return s.setImage(ctx, userID, users.Patch{Avatar: &obj.URL})
}

func (s *AccountService) UpdateCoverImage(ctx context.Context, userID, localPath string) (*models.PublicUser, error) {
	if localPath == "" {
		return nil, validation("cover image file is missing")
	}
	obj := s.media.Upload(ctx, localPath)
	if obj == nil {
		return nil, validation("error while uploading cover image")
	}
	return s.setImage(ctx, userID, users.Patch{CoverImage: &obj.URL})
}

func (s *AccountService) setImage(ctx context.Context, userID string, p users.Patch) (*models.PublicUser, error) {
	u, err := s.users().UpdateByID(ctx, userID, p, users.UpdateOptions{})
	if err != nil {
		return nil, s.fail(ctx, "update image", err)
	}
	return u.Public(), nil
}
