// Package guard authenticates requests by their access token and attaches the
// resolved user to the request context.
//
// The acting identity always comes from the verified token. Handlers behind
// the guard must read it with UserFromContext and never from request input.
package guard

import (
	"context"
	"errors"
	"net/http"

	"github.com/dmitrijs2005/videohub/internal/common"
	"github.com/dmitrijs2005/videohub/internal/logging"
	"github.com/dmitrijs2005/videohub/internal/server/auth"
	"github.com/dmitrijs2005/videohub/internal/server/models"
	"github.com/dmitrijs2005/videohub/internal/server/repositories/users"
)

type ctxKey struct{}

// WithUser returns a copy of ctx carrying u.
func WithUser(ctx context.Context, u *models.PublicUser) context.Context {
	return context.WithValue(ctx, ctxKey{}, u)
}

// UserFromContext returns the user attached by the guard, if any.
func UserFromContext(ctx context.Context) (*models.PublicUser, bool) {
	u, ok := ctx.Value(ctxKey{}).(*models.PublicUser)
	return u, ok && u != nil
}

// RejectFunc writes the response for a request the guard turned away.
type RejectFunc func(w http.ResponseWriter, r *http.Request, err error)

type Guard struct {
	codec      *auth.Codec
	users      users.Repository
	extractors []Extractor
	reject     RejectFunc
	logger     logging.Logger
}

type Option func(*Guard)

func WithExtractors(e ...Extractor) Option {
	return func(g *Guard) { g.extractors = e }
}

func WithRejectFunc(f RejectFunc) Option {
	return func(g *Guard) { g.reject = f }
}

func New(codec *auth.Codec, repo users.Repository, l logging.Logger, opts ...Option) *Guard {
	g := &Guard{
		codec:      codec,
		users:      repo,
		extractors: DefaultExtractors(),
		reject: func(w http.ResponseWriter, r *http.Request, err error) {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		},
		logger: l.With("module", "guard"),
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

func (g *Guard) token(r *http.Request) (string, bool) {
	for _, extract := range g.extractors {
		if tok, ok := extract(r); ok {
			return tok, true
		}
	}
	return "", false
}

// Authenticate resolves the user behind the request's access token. Every
// token or identity failure is common.ErrorUnauthorized; store faults are
// common.ErrorInternal.
func (g *Guard) Authenticate(r *http.Request) (*models.PublicUser, error) {
	ctx := r.Context()

	tok, ok := g.token(r)
	if !ok {
		return nil, common.ErrorUnauthorized
	}

	payload, err := g.codec.Verify(auth.KindAccess, tok)
	if err != nil {
		g.logger.Debug(ctx, "access token rejected", "reason", err)
		return nil, common.ErrorUnauthorized
	}

	u, err := g.users.FindByID(ctx, payload.SubjectID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrorUnauthorized
		}
		g.logger.Error(ctx, "load user", "user_id", payload.SubjectID, "error", err)
		return nil, common.ErrorInternal
	}

	return u.Public(), nil
}

// Middleware lets authenticated requests through with the user in their
// context. Rejected requests stop here.
func (g *Guard) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, err := g.Authenticate(r)
		if err != nil {
			g.reject(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), u)))
	})
}
