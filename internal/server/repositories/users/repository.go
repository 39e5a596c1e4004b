// Package users is the User Store: persistence of account records and of the
// single refresh token each account may hold.
package users

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/dmitrijs2005/videohub/internal/common"
	"github.com/dmitrijs2005/videohub/internal/server/models"
)

// ErrRefreshTokenMismatch is returned by SwapRefreshToken when the stored
// token is no longer the expected one.
var ErrRefreshTokenMismatch = errors.New("refresh token mismatch")

type Repository interface {
	Create(ctx context.Context, user *models.User) (*models.User, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	// FindByUsernameOrEmail matches case-insensitively on either field.
	FindByUsernameOrEmail(ctx context.Context, username, email string) (*models.User, error)
	UpdateByID(ctx context.Context, id string, patch Patch, opts UpdateOptions) (*models.User, error)
	// SwapRefreshToken sets the stored token to next only if it currently
	// equals expected (nil meaning no token).
	SwapRefreshToken(ctx context.Context, id string, expected, next *string) error
}

// Patch lists the fields to change. Nil pointers are left untouched.
// RefreshToken is applied only when SetRefreshToken is true, so it can be
// cleared by passing nil.
type Patch struct {
	FullName        *string
	Username        *string
	Email           *string
	Avatar          *string
	CoverImage      *string
	PasswordHash    *string
	SetRefreshToken bool
	RefreshToken    *string
}

type UpdateOptions struct {
	SkipValidation bool
}

func (p Patch) Empty() bool {
	return p.FullName == nil && p.Username == nil && p.Email == nil &&
		p.Avatar == nil && p.CoverImage == nil && p.PasswordHash == nil &&
		!p.SetRefreshToken
}

// Validate applies the record's mutation rules to the fields being set.
func (p Patch) Validate() error {
	required := []struct {
		name  string
		value *string
	}{
		{"fullName", p.FullName},
		{"username", p.Username},
		{"email", p.Email},
		{"avatar", p.Avatar},
		{"password", p.PasswordHash},
	}
	for _, f := range required {
		if f.value != nil && strings.TrimSpace(*f.value) == "" {
			return fmt.Errorf("%w: %s must not be empty", common.ErrorValidation, f.name)
		}
	}

	if p.Username != nil && strings.ContainsAny(*p.Username, " \t\r\n") {
		return fmt.Errorf("%w: username must not contain whitespace", common.ErrorValidation)
	}
	if p.Email != nil {
		if _, err := mail.ParseAddress(*p.Email); err != nil {
			return fmt.Errorf("%w: invalid email", common.ErrorValidation)
		}
	}
	return nil
}

func apply(u *models.User, p Patch) {
	if p.FullName != nil {
		u.FullName = *p.FullName
	}
	if p.Username != nil {
		u.Username = strings.ToLower(*p.Username)
	}
	if p.Email != nil {
		u.Email = strings.ToLower(*p.Email)
	}
	if p.Avatar != nil {
		u.Avatar = *p.Avatar
	}
	if p.CoverImage != nil {
		u.CoverImage = *p.CoverImage
	}
	if p.PasswordHash != nil {
		u.PasswordHash = *p.PasswordHash
	}
	if p.SetRefreshToken {
		u.RefreshToken = cloneString(p.RefreshToken)
	}
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func clone(u *models.User) *models.User {
	cp := *u
	cp.RefreshToken = cloneString(u.RefreshToken)
	return &cp
}
