// Package httpapi exposes the session service over HTTP: a chi router,
// the response envelope, token cookies and the access-token middleware.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/dmitrijs2005/erpkeeper/internal/common"
	"github.com/dmitrijs2005/erpkeeper/internal/logging"
	"github.com/dmitrijs2005/erpkeeper/internal/server/auth"
	"github.com/dmitrijs2005/erpkeeper/internal/server/models"
	"github.com/dmitrijs2005/erpkeeper/internal/server/services"
)

// maxAvatarSize caps multipart uploads.
const maxAvatarSize = 5 << 20

// SessionService is the subset of services.SessionService the handlers use.
type SessionService interface {
	Register(ctx context.Context, in services.Registration) (*services.Result, error)
	VerifyEmail(ctx context.Context, code, client string) (*services.Result, error)
	ResendVerification(ctx context.Context, email string) (*services.Result, error)
	Login(ctx context.Context, email, password string) (*services.LoginResult, error)
	Logout(ctx context.Context, accountID string) error
	RefreshAccessToken(ctx context.Context, refreshToken string) (auth.Pair, error)
	Authenticate(accessToken string) (string, error)
	ChangePassword(ctx context.Context, accountID, oldPassword, newPassword, confirmPassword string) error
	RequestPasswordReset(ctx context.Context, email string) (*services.Result, error)
	ResetPassword(ctx context.Context, code, newPassword, confirmPassword, client string) (*services.Result, error)
	RequestEmailChange(ctx context.Context, accountID, newEmail string) (*services.Result, error)
	ConfirmEmailChange(ctx context.Context, code, client string) (*services.Result, error)
	CurrentAccount(ctx context.Context, accountID string) (*models.Account, error)
	UpdateProfile(ctx context.Context, accountID string, in services.ProfileUpdate) (*models.Account, error)
	UpdateAvatar(ctx context.Context, accountID string, avatar *models.Avatar) (*models.Account, error)
	ListOtherAccounts(ctx context.Context, accountID string) ([]models.Account, error)
}

var _ SessionService = (*services.SessionService)(nil)

// Handler maps HTTP requests onto the session service.
type Handler struct {
	svc     SessionService
	cookies CookiePolicy
	log     logging.Logger
}

// NewHandler returns a Handler that sets auth cookies per cookies.
func NewHandler(svc SessionService, cookies CookiePolicy, log logging.Logger) *Handler {
	return &Handler{svc: svc, cookies: cookies, log: log.With("module", "httpapi")}
}

type codeRequest struct {
	Code string `json:"code"`
}

type emailRequest struct {
	Email string `json:"email"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type changePasswordRequest struct {
	OldPassword     string `json:"oldPassword"`
	NewPassword     string `json:"newPassword"`
	ConfirmPassword string `json:"confirmPassword"`
}

type resetPasswordRequest struct {
	Code            string `json:"code"`
	NewPassword     string `json:"newPassword"`
	ConfirmPassword string `json:"confirmPassword"`
}

type changeEmailRequest struct {
	NewEmail string `json:"newEmail"`
}

type loginResponse struct {
	User         models.Account `json:"user"`
	AccessToken  string         `json:"accessToken"`
	RefreshToken string         `json:"refreshToken"`
}

// avatarFromForm parses a multipart body and returns the uploaded avatar,
// or nil when the form carries none. The caller closes the returned file.
func avatarFromForm(w http.ResponseWriter, r *http.Request) (*models.Avatar, func(), error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxAvatarSize+1<<20)
	if err := r.ParseMultipartForm(maxAvatarSize); err != nil {
		return nil, func() {}, fmt.Errorf("%w: expected a multipart form: %v", common.ErrValidation, err)
	}

	file, header, err := r.FormFile("avatar")
	if errors.Is(err, http.ErrMissingFile) {
		return nil, func() {}, nil
	}
	if err != nil {
		return nil, func() {}, fmt.Errorf("%w: avatar: %v", common.ErrValidation, err)
	}
	if header.Size > maxAvatarSize {
		file.Close()
		return nil, func() {}, fmt.Errorf("%w: avatar exceeds %d bytes", common.ErrValidation, maxAvatarSize)
	}

	return &models.Avatar{
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Size:        header.Size,
		Body:        file,
	}, func() { file.Close() }, nil
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	avatar, closeFile, err := avatarFromForm(w, r)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	defer closeFile()

	res, err := h.svc.Register(r.Context(), services.Registration{
		FullName:        r.FormValue("fullName"),
		Username:        r.FormValue("username"),
		Email:           r.FormValue("email"),
		Phone:           r.FormValue("phone"),
		CompanyName:     r.FormValue("companyName"),
		Password:        r.FormValue("password"),
		ConfirmPassword: r.FormValue("confirmPassword"),
		Avatar:          avatar,
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondOK(w, http.StatusCreated, "user registered, verification code sent", res.Account, res.Warning)
}

func (h *Handler) verifyEmail(w http.ResponseWriter, r *http.Request) {
	var req codeRequest
	if err := decodeJSON(r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}
	res, err := h.svc.VerifyEmail(r.Context(), req.Code, clientIP(r))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondOK(w, http.StatusOK, "email verified", res.Account, res.Warning)
}

func (h *Handler) resendVerification(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if err := decodeJSON(r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}
	res, err := h.svc.ResendVerification(r.Context(), req.Email)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondOK(w, http.StatusOK, "verification code sent", nil, res.Warning)
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}
	res, err := h.svc.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.cookies.SetTokens(w, res.Tokens)
	respondOK(w, http.StatusOK, "logged in", loginResponse{
		User:         res.Account,
		AccessToken:  res.Tokens.AccessToken,
		RefreshToken: res.Tokens.RefreshToken,
	}, "")
}

func (h *Handler) refreshToken(w http.ResponseWriter, r *http.Request) {
	var token string
	if c, err := r.Cookie(common.RefreshTokenCookieName); err == nil {
		token = c.Value
	}
	if token == "" && r.ContentLength != 0 {
		var req refreshRequest
		if err := decodeJSON(r, &req); err != nil {
			h.respondError(w, r, err)
			return
		}
		token = req.RefreshToken
	}

	pair, err := h.svc.RefreshAccessToken(r.Context(), token)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.cookies.SetTokens(w, pair)
	respondOK(w, http.StatusOK, "access token refreshed", pair, "")
}

func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Logout(r.Context(), accountID(r)); err != nil {
		h.respondError(w, r, err)
		return
	}
	h.cookies.Clear(w)
	respondOK(w, http.StatusOK, "logged out", nil, "")
}

func (h *Handler) forgotPassword(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if err := decodeJSON(r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}
	res, err := h.svc.RequestPasswordReset(r.Context(), req.Email)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondOK(w, http.StatusOK, "if the account exists, a reset code was sent", nil, res.Warning)
}

func (h *Handler) resetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}
	res, err := h.svc.ResetPassword(r.Context(), req.Code, req.NewPassword, req.ConfirmPassword, clientIP(r))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondOK(w, http.StatusOK, "password reset", nil, res.Warning)
}

func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	a, err := h.svc.CurrentAccount(r.Context(), accountID(r))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondOK(w, http.StatusOK, "current user", a, "")
}

func (h *Handler) updateProfile(w http.ResponseWriter, r *http.Request) {
	var req services.ProfileUpdate
	if err := decodeJSON(r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}
	a, err := h.svc.UpdateProfile(r.Context(), accountID(r), req)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondOK(w, http.StatusOK, "profile updated", a, "")
}

func (h *Handler) updateAvatar(w http.ResponseWriter, r *http.Request) {
	avatar, closeFile, err := avatarFromForm(w, r)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	defer closeFile()

	a, err := h.svc.UpdateAvatar(r.Context(), accountID(r), avatar)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondOK(w, http.StatusOK, "avatar updated", a, "")
}

func (h *Handler) changePassword(w http.ResponseWriter, r *http.Request) {
	var req changePasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}
	if err := h.svc.ChangePassword(r.Context(), accountID(r), req.OldPassword, req.NewPassword, req.ConfirmPassword); err != nil {
		h.respondError(w, r, err)
		return
	}
	respondOK(w, http.StatusOK, "password changed", nil, "")
}

func (h *Handler) changeEmail(w http.ResponseWriter, r *http.Request) {
	var req changeEmailRequest
	if err := decodeJSON(r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}
	res, err := h.svc.RequestEmailChange(r.Context(), accountID(r), req.NewEmail)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondOK(w, http.StatusOK, "confirmation code sent to the new email", res.Account, res.Warning)
}

func (h *Handler) confirmEmailChange(w http.ResponseWriter, r *http.Request) {
	var req codeRequest
	if err := decodeJSON(r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}
	res, err := h.svc.ConfirmEmailChange(r.Context(), req.Code, clientIP(r))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondOK(w, http.StatusOK, "email changed", res.Account, res.Warning)
}

func (h *Handler) others(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.ListOtherAccounts(r.Context(), accountID(r))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondOK(w, http.StatusOK, "users", list, "")
}
