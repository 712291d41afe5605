package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"path/filepath"

	"github.com/dmitrijs2005/erpkeeper/internal/client/models"
	"github.com/dmitrijs2005/erpkeeper/internal/client/session"
	"github.com/dmitrijs2005/erpkeeper/internal/common"
)

type loginData struct {
	User         models.Account `json:"user"`
	AccessToken  string         `json:"accessToken"`
	RefreshToken string         `json:"refreshToken"`
}

type pairData struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

func avatarForm(reg models.Registration) body {
	return func() (io.Reader, string, error) {
		var buf bytes.Buffer
		w := multipart.NewWriter(&buf)

		for name, value := range map[string]string{
			"fullName":        reg.FullName,
			"username":        reg.Username,
			"email":           reg.Email,
			"phone":           reg.Phone,
			"companyName":     reg.CompanyName,
			"password":        reg.Password,
			"confirmPassword": reg.ConfirmPassword,
		} {
			if err := w.WriteField(name, value); err != nil {
				return nil, "", err
			}
		}

		if reg.AvatarPath != "" {
			if err := writeFile(w, reg.AvatarPath); err != nil {
				return nil, "", err
			}
		}
		if err := w.Close(); err != nil {
			return nil, "", err
		}
		return &buf, w.FormDataContentType(), nil
	}
}

func writeFile(w *multipart.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("avatar: %w", err)
	}
	defer f.Close()

	contentType := mime.TypeByExtension(filepath.Ext(path))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="avatar"; filename=%q`, filepath.Base(path)))
	h.Set("Content-Type", contentType)

	part, err := w.CreatePart(h)
	if err != nil {
		return err
	}
	_, err = io.Copy(part, f)
	return err
}

// Register creates an account. The verification code is mailed by the server.
func (c *Client) Register(ctx context.Context, reg models.Registration) (*AccountResult, error) {
	return accountResult(c.send(ctx, http.MethodPost, "/register", avatarForm(reg), ""))
}

func (c *Client) VerifyEmail(ctx context.Context, code string) (*AccountResult, error) {
	return accountResult(c.send(ctx, http.MethodPost, "/verify-email", jsonBody(map[string]string{"code": code}), ""))
}

func (c *Client) ResendVerification(ctx context.Context, email string) (*AccountResult, error) {
	return accountResult(c.send(ctx, http.MethodPost, "/resend-verification", jsonBody(map[string]string{"email": email}), ""))
}

// Login stores the issued pair, replacing any previous session.
func (c *Client) Login(ctx context.Context, email, password string) (*models.Account, error) {
	resp, err := c.send(ctx, http.MethodPost, "/login", jsonBody(map[string]string{"email": email, "password": password}), "")
	if err != nil {
		return nil, err
	}
	data, err := decode[loginData](resp)
	if err != nil {
		return nil, err
	}
	err = c.store.SaveTokens(ctx, session.Tokens{
		AccessToken:  data.AccessToken,
		RefreshToken: data.RefreshToken,
		Email:        data.User.Email,
	})
	if err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}
	return &data.User, nil
}

// Refresh rotates the cached pair. A rejected refresh token drops the local
// session, since the server no longer honours it.
func (c *Client) Refresh(ctx context.Context) (string, error) {
	t, err := c.store.Tokens(ctx)
	if err != nil {
		return "", err
	}
	if t.Empty() {
		return "", ErrNotLoggedIn
	}

	resp, err := c.send(ctx, http.MethodPost, "/refresh-token", jsonBody(map[string]string{"refreshToken": t.RefreshToken}), "")
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Status == http.StatusUnauthorized {
			_ = c.store.ClearTokens(ctx)
		}
		return "", err
	}

	pair, err := decode[pairData](resp)
	if err != nil {
		return "", err
	}
	if err := c.store.SaveTokens(ctx, session.Tokens{AccessToken: pair.AccessToken, RefreshToken: pair.RefreshToken}); err != nil {
		return "", fmt.Errorf("save session: %w", err)
	}
	return pair.AccessToken, nil
}

// Logout ends the server session and forgets the local one. The local pair
// is dropped even when the server call fails.
func (c *Client) Logout(ctx context.Context) error {
	_, err := c.authed(ctx, http.MethodPost, "/logout", nil)
	if clearErr := c.store.ClearTokens(ctx); clearErr != nil && err == nil {
		err = clearErr
	}
	if errors.Is(err, common.ErrTokenReuse) {
		return nil
	}
	return err
}

func (c *Client) Me(ctx context.Context) (*models.Account, error) {
	resp, err := c.authed(ctx, http.MethodGet, "/me", nil)
	if err != nil {
		return nil, err
	}
	return decode[models.Account](resp)
}

func (c *Client) ChangePassword(ctx context.Context, oldPassword, newPassword, confirmPassword string) error {
	_, err := c.authed(ctx, http.MethodPost, "/me/change-password", jsonBody(map[string]string{
		"oldPassword":     oldPassword,
		"newPassword":     newPassword,
		"confirmPassword": confirmPassword,
	}))
	return err
}

func (c *Client) ForgotPassword(ctx context.Context, email string) (*AccountResult, error) {
	return accountResult(c.send(ctx, http.MethodPost, "/forgot-password", jsonBody(map[string]string{"email": email}), ""))
}

func (c *Client) ResetPassword(ctx context.Context, code, newPassword, confirmPassword string) (*AccountResult, error) {
	return accountResult(c.send(ctx, http.MethodPost, "/reset-password", jsonBody(map[string]string{
		"code":            code,
		"newPassword":     newPassword,
		"confirmPassword": confirmPassword,
	}), ""))
}

// ChangeEmail asks for a confirmation code at newEmail.
func (c *Client) ChangeEmail(ctx context.Context, newEmail string) (*AccountResult, error) {
	return accountResult(c.authed(ctx, http.MethodPost, "/me/change-email", jsonBody(map[string]string{"newEmail": newEmail})))
}

func (c *Client) ConfirmEmail(ctx context.Context, code string) (*AccountResult, error) {
	return accountResult(c.send(ctx, http.MethodPost, "/confirm-email-change", jsonBody(map[string]string{"code": code}), ""))
}
