package sessions

import (
	"context"
	"crypto/subtle"
	"errors"

	"github.com/dmitrijs2005/videohub/internal/common"
	"github.com/dmitrijs2005/videohub/internal/server/auth"
)

// Rotator exchanges a refresh token for a new pair. A refresh token is single
// use: once rotated, or once the session is ended, it never succeeds again.
type Rotator struct {
	sessions *Manager
}

func NewRotator(m *Manager) *Rotator {
	return &Rotator{sessions: m}
}

// Refresh returns common.ErrorUnauthorized for every rejected token without
// telling expired, forged and revoked apart. Store faults are ErrorInternal.
func (r *Rotator) Refresh(ctx context.Context, presented string) (*auth.TokenPair, error) {
	if presented == "" {
		return nil, common.ErrorUnauthorized
	}

	payload, err := r.sessions.codec.Verify(auth.KindRefresh, presented)
	if err != nil {
		r.sessions.logger.Debug(ctx, "refresh token rejected", "reason", err)
		return nil, common.ErrorUnauthorized
	}

	u, err := r.sessions.users.FindByID(ctx, payload.SubjectID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrorUnauthorized
		}
		return nil, r.sessions.internal(ctx, "load user", err, "user_id", payload.SubjectID)
	}

	if u.RefreshToken == nil || subtle.ConstantTimeCompare([]byte(*u.RefreshToken), []byte(presented)) != 1 {
		r.sessions.logger.Info(ctx, "revoked refresh token presented", "user_id", u.ID)
		return nil, common.ErrorUnauthorized
	}

	return r.sessions.rotateSession(ctx, u.ID, presented)
}
