package upstream

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/haulstack/console-gateway/internal/session"
)

type LoginResult struct {
	User         session.User `json:"user"`
	Token        string       `json:"token"`
	RefreshToken string       `json:"refreshToken"`
}

type TokenPair struct {
	Token        string `json:"token"`
	RefreshToken string `json:"refreshToken"`
}

type RegisterProfile struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Phone    string `json:"phone,omitempty"`
}

// LoginRecord is one entry of the remote service's login history.
type LoginRecord struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
	UserAgent string    `json:"user_agent"`
	IP        string    `json:"ip"`
	IsCurrent bool      `json:"is_current"`
}

func (c *Client) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	result := &LoginResult{}
	err := c.do(ctx, outboundRequest{
		method:      http.MethodPost,
		path:        "/auth/login",
		body:        map[string]string{"email": email, "password": password},
		successCode: http.StatusOK,
		out:         result,
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (c *Client) Register(ctx context.Context, profile RegisterProfile) (*session.User, error) {
	var result struct {
		User session.User `json:"user"`
	}
	err := c.do(ctx, outboundRequest{
		method:      http.MethodPost,
		path:        "/auth/register",
		body:        profile,
		successCode: http.StatusCreated,
		out:         &result,
	})
	if err != nil {
		return nil, err
	}
	return &result.User, nil
}

func (c *Client) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	pair := &TokenPair{}
	err := c.do(ctx, outboundRequest{
		method:      http.MethodPost,
		path:        "/auth/refresh-token",
		body:        map[string]string{"refreshToken": refreshToken},
		successCode: http.StatusOK,
		out:         pair,
	})
	if err != nil {
		return nil, err
	}
	return pair, nil
}

func (c *Client) Logout(ctx context.Context) error {
	return c.do(ctx, outboundRequest{
		method:      http.MethodPost,
		path:        "/auth/logout",
		successCode: http.StatusOK,
	})
}

func (c *Client) ForgotPassword(ctx context.Context, email string) error {
	return c.do(ctx, outboundRequest{
		method:      http.MethodPost,
		path:        "/auth/forgot-password",
		body:        map[string]string{"email": email},
		successCode: http.StatusOK,
	})
}

func (c *Client) ResetPassword(ctx context.Context, token, newPassword string) error {
	return c.do(ctx, outboundRequest{
		method:      http.MethodPost,
		path:        "/auth/reset-password",
		body:        map[string]string{"token": token, "password": newPassword},
		successCode: http.StatusOK,
	})
}

func (c *Client) LoginHistory(ctx context.Context) ([]LoginRecord, error) {
	var result struct {
		Sessions []LoginRecord `json:"sessions"`
	}
	err := c.do(ctx, outboundRequest{
		method:      http.MethodGet,
		path:        "/auth/login-history",
		successCode: http.StatusOK,
		out:         &result,
	})
	if err != nil {
		return nil, err
	}
	return result.Sessions, nil
}

func (c *Client) RevokeSession(ctx context.Context, sessionID string) error {
	return c.do(ctx, outboundRequest{
		method:      http.MethodDelete,
		path:        "/auth/sessions/" + url.PathEscape(sessionID),
		successCode: http.StatusOK,
	})
}
