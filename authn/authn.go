/*
Package authn is a typed client for the managed authentication service.

The service speaks a GoTrue-style protocol: password and refresh-token
grants on /auth/v1/token, sign-up on /auth/v1/signup, and user-info on
/auth/v1/user. Every request carries the project api key; user-scoped
calls additionally carry the bearer token.
*/
package authn

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/KripanshSrivastava/CivicVoice-report/civic"
)

// Client provides access to the auth service.
type Client struct {
	url        string
	apiKey     string
	httpClient *http.Client
}

// New creates a client for the auth service at the given base URL.
func New(url, apiKey string) Client {
	return Client{
		url:        strings.TrimSuffix(url, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 20 * time.Second},
	}
}

// WithHTTPClient returns a new client using the given http client.
func (c Client) WithHTTPClient(httpClient *http.Client) Client {
	c.httpClient = httpClient
	return c
}

// wireSession is the wire shape of a session; the user rides inside it.
type wireSession struct {
	AccessToken  string      `json:"access_token"`
	TokenType    string      `json:"token_type"`
	ExpiresIn    int64       `json:"expires_in"`
	ExpiresAt    int64       `json:"expires_at"`
	RefreshToken string      `json:"refresh_token"`
	User         *civic.User `json:"user"`
}

func (s *wireSession) toResult() *civic.AuthResult {
	return &civic.AuthResult{
		User: s.User,
		Session: &civic.Session{
			AccessToken:  s.AccessToken,
			TokenType:    s.TokenType,
			ExpiresIn:    s.ExpiresIn,
			ExpiresAt:    s.ExpiresAt,
			RefreshToken: s.RefreshToken,
			User:         s.User,
		},
	}
}

type wireError struct {
	Error       string `json:"error"`
	Description string `json:"error_description"`
	Message     string `json:"msg"`
}

func (c Client) do(ctx context.Context, method, path, token string, body, result interface{}) error {
	var buf *bytes.Buffer
	if body != nil {
		j, err := json.Marshal(body)
		if err != nil {
			return &civic.Error{Kind: civic.KindValidation, Status: http.StatusBadRequest, Message: err.Error()}
		}
		buf = bytes.NewBuffer(j)
	} else {
		buf = bytes.NewBuffer(nil)
	}
	r, err := http.NewRequestWithContext(ctx, method, c.url+path, buf)
	if err != nil {
		return civic.NewNetworkError(err)
	}
	r.Header.Set("Content-Type", "application/json")
	r.Header.Set("apikey", c.apiKey)
	if token == "" {
		token = c.apiKey
	}
	r.Header.Set("Authorization", "Bearer "+token)

	res, err := c.httpClient.Do(r)
	if err != nil {
		return civic.NewNetworkError(err)
	}
	defer res.Body.Close()
	resBody, _ := io.ReadAll(res.Body)

	if res.StatusCode < 200 || res.StatusCode > 299 {
		var we wireError
		json.Unmarshal(resBody, &we)
		message := we.Message
		if message == "" {
			message = we.Description
		}
		if message == "" {
			message = we.Error
		}
		if message == "" {
			message = strings.TrimSpace(string(resBody))
		}
		return civic.ErrorFromStatus(res.StatusCode, message)
	}
	if result != nil && len(resBody) > 0 {
		if err := json.Unmarshal(resBody, result); err != nil {
			return &civic.Error{Kind: civic.KindUpstream, Status: res.StatusCode, Message: err.Error()}
		}
	}
	return nil
}

// SignUp registers a new account. Depending on the service's confirmation
// settings the result may or may not contain a session.
func (c Client) SignUp(ctx context.Context, email, password, displayName string) (*civic.AuthResult, error) {
	body := map[string]interface{}{
		"email":    email,
		"password": password,
		"data": map[string]string{
			"display_name": displayName,
		},
	}
	var session wireSession
	if err := c.do(ctx, http.MethodPost, "/auth/v1/signup", "", body, &session); err != nil {
		return nil, err
	}
	if session.AccessToken == "" {
		// confirmation pending, the service returned a bare user
		return &civic.AuthResult{User: session.User}, nil
	}
	return session.toResult(), nil
}

// SignInWithPassword performs a password grant.
func (c Client) SignInWithPassword(ctx context.Context, email, password string) (*civic.AuthResult, error) {
	body := map[string]string{"email": email, "password": password}
	var session wireSession
	if err := c.do(ctx, http.MethodPost, "/auth/v1/token?grant_type=password", "", body, &session); err != nil {
		return nil, err
	}
	return session.toResult(), nil
}

// RefreshSession exchanges a refresh token for a fresh session.
func (c Client) RefreshSession(ctx context.Context, refreshToken string) (*civic.AuthResult, error) {
	body := map[string]string{"refresh_token": refreshToken}
	var session wireSession
	if err := c.do(ctx, http.MethodPost, "/auth/v1/token?grant_type=refresh_token", "", body, &session); err != nil {
		return nil, err
	}
	return session.toResult(), nil
}

// SignOut revokes the bearer token.
func (c Client) SignOut(ctx context.Context, token string) error {
	return c.do(ctx, http.MethodPost, "/auth/v1/logout", token, nil, nil)
}

// GetUser verifies the bearer token and returns its identity.
func (c Client) GetUser(ctx context.Context, token string) (*civic.User, error) {
	var user civic.User
	if err := c.do(ctx, http.MethodGet, "/auth/v1/user", token, nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// ResendConfirmation re-sends the sign-up confirmation mail.
func (c Client) ResendConfirmation(ctx context.Context, email string) error {
	body := map[string]string{"type": "signup", "email": email}
	return c.do(ctx, http.MethodPost, "/auth/v1/resend", "", body, nil)
}

// RequestPasswordReset sends a password recovery mail.
func (c Client) RequestPasswordReset(ctx context.Context, email string) error {
	body := map[string]string{"email": email}
	return c.do(ctx, http.MethodPost, "/auth/v1/recover", "", body, nil)
}
