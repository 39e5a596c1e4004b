// Package httpapi exposes the account and session endpoints over HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/dmitrijs2005/videohub/internal/common"
	"github.com/dmitrijs2005/videohub/internal/logging"
	"github.com/dmitrijs2005/videohub/internal/server/guard"
	"github.com/dmitrijs2005/videohub/internal/server/models"
	"github.com/dmitrijs2005/videohub/internal/server/services"
)

// maxJSONBody caps JSON request bodies.
const maxJSONBody = 16 << 10

type Options struct {
	CookieSecure   bool
	AccessTTL      time.Duration
	RefreshTTL     time.Duration
	UploadDir      string
	MaxUploadBytes int64
	RequestTimeout time.Duration
}

type Handler struct {
	accounts *services.AccountService
	opts     Options
	logger   logging.Logger
}

func NewHandler(accounts *services.AccountService, opts Options, l logging.Logger) *Handler {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 5 * time.Second
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 10 << 20
	}
	return &Handler{accounts: accounts, opts: opts, logger: l.With("module", "httpapi")}
}

func (h *Handler) requestContext(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), h.opts.RequestTimeout)
}

// decodeJSON reads a bounded JSON body into dst. An empty body is allowed
// when optional is set.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any, optional bool) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	err := json.NewDecoder(r.Body).Decode(dst)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, io.EOF) && optional:
		return nil
	}
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return fmt.Errorf("%w: request body too large", common.ErrorValidation)
	}
	return fmt.Errorf("%w: invalid json", common.ErrorValidation)
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if statusFor(err) == http.StatusInternalServerError {
		h.logger.Error(r.Context(), "request failed", "path", r.URL.Path, "error", err)
	}
	writeError(w, err)
}

// actingUser is the identity the guard attached. Handlers never take it from
// the request.
func actingUser(r *http.Request) (*models.PublicUser, error) {
	u, ok := guard.UserFromContext(r.Context())
	if !ok {
		return nil, common.ErrorUnauthorized
	}
	return u, nil
}

type loginRequest struct {
	Identifier string `json:"identifier"`
	Username   string `json:"username"`
	Email      string `json:"email"`
	Password   string `json:"password"`
}

type sessionResponse struct {
	User         *models.PublicUser `json:"user,omitempty"`
	AccessToken  string             `json:"accessToken"`
	RefreshToken string             `json:"refreshToken"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type changePasswordRequest struct {
	OldPassword string `json:"oldPassword"`
	NewPassword string `json:"newPassword"`
}

type updateAccountRequest struct {
	FullName string `json:"fullName"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	if err := h.parseMultipart(w, r); err != nil {
		h.fail(w, r, err)
		return
	}
	defer r.MultipartForm.RemoveAll()

	in := services.RegisterInput{
		FullName: r.FormValue("fullName"),
		Username: r.FormValue("username"),
		Email:    r.FormValue("email"),
		Password: r.FormValue("password"),
	}

	var err error
	if in.AvatarPath, err = h.saveUpload(r, "avatar"); err != nil {
		h.fail(w, r, err)
		return
	}
	if in.CoverImagePath, err = h.saveUpload(r, "coverImage"); err != nil {
		h.fail(w, r, err)
		return
	}

	ctx, cancel := h.requestContext(r)
	defer cancel()

	u, err := h.accounts.Register(ctx, in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, u, "User registered successfully")
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		h.fail(w, r, err)
		return
	}

	identifier := req.Identifier
	for _, alt := range []string{req.Username, req.Email} {
		if identifier == "" {
			identifier = alt
		}
	}

	ctx, cancel := h.requestContext(r)
	defer cancel()

	res, err := h.accounts.Login(ctx, identifier, req.Password)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	h.setSessionCookies(w, res.Tokens)
	writeData(w, http.StatusOK, sessionResponse{
		User:         res.User,
		AccessToken:  common.BearerPrefix + res.Tokens.AccessToken,
		RefreshToken: res.Tokens.RefreshToken,
	}, "User logged in successfully")
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	u, err := actingUser(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	ctx, cancel := h.requestContext(r)
	defer cancel()

	if err := h.accounts.Logout(ctx, u.ID); err != nil {
		h.fail(w, r, err)
		return
	}

	h.clearSessionCookies(w)
	writeData(w, http.StatusOK, nil, "User logged out successfully")
}

// Refresh takes the refresh token from its cookie, else from the JSON body.
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	var presented string
	if c, err := r.Cookie(common.RefreshTokenCookieName); err == nil {
		presented = c.Value
	}
	if presented == "" {
		var req refreshRequest
		if err := decodeJSON(w, r, &req, true); err != nil {
			h.fail(w, r, common.ErrorUnauthorized)
			return
		}
		presented = req.RefreshToken
	}

	ctx, cancel := h.requestContext(r)
	defer cancel()

	pair, err := h.accounts.Refresh(ctx, presented)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	h.setSessionCookies(w, pair)
	writeData(w, http.StatusOK, sessionResponse{
		AccessToken:  common.BearerPrefix + pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	}, "Access token refreshed")
}

func (h *Handler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	u, err := actingUser(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	var req changePasswordRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		h.fail(w, r, err)
		return
	}

	ctx, cancel := h.requestContext(r)
	defer cancel()

	if err := h.accounts.ChangePassword(ctx, u.ID, req.OldPassword, req.NewPassword); err != nil {
		h.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, nil, "Password changed successfully")
}

func (h *Handler) CurrentUser(w http.ResponseWriter, r *http.Request) {
	u, err := actingUser(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	ctx, cancel := h.requestContext(r)
	defer cancel()

	current, err := h.accounts.CurrentUser(ctx, u.ID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, current, "User fetched successfully")
}

func (h *Handler) UpdateAccount(w http.ResponseWriter, r *http.Request) {
	u, err := actingUser(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	var req updateAccountRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		h.fail(w, r, err)
		return
	}

	ctx, cancel := h.requestContext(r)
	defer cancel()

	updated, err := h.accounts.UpdateAccount(ctx, u.ID, req.FullName, req.Username, req.Email)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, updated, "User updated successfully")
}

func (h *Handler) UpdateAvatar(w http.ResponseWriter, r *http.Request) {
	h.updateImage(w, r, "avatar", h.accounts.UpdateAvatar, "User avatar updated successfully")
}

func (h *Handler) UpdateCoverImage(w http.ResponseWriter, r *http.Request) {
	h.updateImage(w, r, "coverImage", h.accounts.UpdateCoverImage, "User cover image updated successfully")
}

type imageUpdater func(ctx context.Context, userID, localPath string) (*models.PublicUser, error)

func (h *Handler) updateImage(w http.ResponseWriter, r *http.Request, field string, update imageUpdater, message string) {
	u, err := actingUser(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	if err := h.parseMultipart(w, r); err != nil {
		h.fail(w, r, err)
		return
	}
	defer r.MultipartForm.RemoveAll()

	path, err := h.saveUpload(r, field)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	ctx, cancel := h.requestContext(r)
	defer cancel()

	updated, err := update(ctx, u.ID, path)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, updated, message)
}
