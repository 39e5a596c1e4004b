// Package sessions issues, persists, rotates and revokes token pairs.
//
// A user holds at most one live refresh token, stored on the user record.
// Logging out clears it, which revokes every refresh token issued before.
package sessions

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/videohub/internal/common"
	"github.com/dmitrijs2005/videohub/internal/logging"
	"github.com/dmitrijs2005/videohub/internal/server/auth"
	"github.com/dmitrijs2005/videohub/internal/server/models"
	"github.com/dmitrijs2005/videohub/internal/server/repositories/users"
)

type Manager struct {
	users  users.Repository
	codec  *auth.Codec
	logger logging.Logger
}

func NewManager(repo users.Repository, codec *auth.Codec, l logging.Logger) *Manager {
	return &Manager{users: repo, codec: codec, logger: l.With("module", "sessions")}
}

// internal logs err and returns the bare ErrorInternal sentinel so the cause
// never reaches the caller.
func (m *Manager) internal(ctx context.Context, msg string, err error, args ...any) error {
	m.logger.Error(ctx, msg, append(args, "error", err)...)
	return common.ErrorInternal
}

// CreateSession issues a new pair and makes its refresh token the only valid
// one for subjectID.
func (m *Manager) CreateSession(ctx context.Context, subjectID string) (*auth.TokenPair, error) {
	pair, err := m.codec.IssuePair(subjectID)
	if err != nil {
		return nil, m.internal(ctx, "issue token pair", err, "user_id", subjectID)
	}

	patch := users.Patch{SetRefreshToken: true, RefreshToken: &pair.RefreshToken}
	if _, err := m.users.UpdateByID(ctx, subjectID, patch, users.UpdateOptions{SkipValidation: true}); err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, fmt.Errorf("%w: user does not exist", common.ErrorNotFound)
		}
		return nil, m.internal(ctx, "store refresh token", err, "user_id", subjectID)
	}

	m.logger.Debug(ctx, "session created", "user_id", subjectID)
	return pair, nil
}

// EndSession clears the stored refresh token. Ending an ended session, or
// one of a user that no longer exists, is a no-op.
func (m *Manager) EndSession(ctx context.Context, subjectID string) error {
	_, err := m.users.UpdateByID(ctx, subjectID, users.Patch{SetRefreshToken: true}, users.UpdateOptions{SkipValidation: true})
	if err != nil && !errors.Is(err, common.ErrorNotFound) {
		return m.internal(ctx, "clear refresh token", err, "user_id", subjectID)
	}

	m.logger.Debug(ctx, "session ended", "user_id", subjectID)
	return nil
}

func (m *Manager) CurrentUser(ctx context.Context, subjectID string) (*models.PublicUser, error) {
	u, err := m.users.FindByID(ctx, subjectID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, fmt.Errorf("%w: user does not exist", common.ErrorNotFound)
		}
		return nil, m.internal(ctx, "load user", err, "user_id", subjectID)
	}
	return u.Public(), nil
}

// rotateSession is CreateSession with a compare-and-swap write: the new
// refresh token is stored only if expected is still the stored one.
func (m *Manager) rotateSession(ctx context.Context, subjectID, expected string) (*auth.TokenPair, error) {
	pair, err := m.codec.IssuePair(subjectID)
	if err != nil {
		return nil, m.internal(ctx, "issue token pair", err, "user_id", subjectID)
	}

	err = m.users.SwapRefreshToken(ctx, subjectID, &expected, &pair.RefreshToken)
	switch {
	case err == nil:
		m.logger.Debug(ctx, "session rotated", "user_id", subjectID)
		return pair, nil
	case errors.Is(err, users.ErrRefreshTokenMismatch), errors.Is(err, common.ErrorNotFound):
		m.logger.Warn(ctx, "refresh token lost rotation race", "user_id", subjectID)
		return nil, common.ErrorUnauthorized
	default:
		return nil, m.internal(ctx, "swap refresh token", err, "user_id", subjectID)
	}
}
