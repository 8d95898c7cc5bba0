package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	defaultBaseURL  = "https://identitytoolkit.googleapis.com"
	defaultTokenURL = "https://securetoken.googleapis.com"
)

var (
	ErrEmailExists        = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrWeakPassword       = errors.New("password is too weak")
)

// APIError is an error response from the identity service that does not map
// to one of the sentinel errors.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("identity API error (status %d): %s", e.Status, e.Message)
}

// Client is a minimal identity toolkit REST client for email/password
// accounts.
type Client struct {
	baseURL    string
	tokenURL   string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a new identity client. Empty URLs default to the public
// identity toolkit endpoints.
func NewClient(baseURL, tokenURL, apiKey string) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if tokenURL == "" {
		tokenURL = defaultTokenURL
	}
	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		tokenURL: strings.TrimRight(tokenURL, "/"),
		apiKey:   apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Tokens is the result of a successful sign-up, sign-in or refresh.
type Tokens struct {
	UserID       string
	Email        string
	IDToken      string
	RefreshToken string
	ExpiresAt    time.Time
}

// SignUp creates an email/password account.
func (c *Client) SignUp(ctx context.Context, email, password string) (Tokens, error) {
	return c.passwordAuth(ctx, "/v1/accounts:signUp", email, password)
}

// SignIn authenticates an existing email/password account.
func (c *Client) SignIn(ctx context.Context, email, password string) (Tokens, error) {
	return c.passwordAuth(ctx, "/v1/accounts:signInWithPassword", email, password)
}

func (c *Client) passwordAuth(ctx context.Context, path, email, password string) (Tokens, error) {
	body := passwordRequest{
		Email:             email,
		Password:          password,
		ReturnSecureToken: true,
	}

	var resp passwordResponse
	if err := c.postJSON(ctx, c.baseURL+path, body, &resp); err != nil {
		return Tokens{}, err
	}

	return c.tokens(resp.LocalID, resp.Email, resp.IDToken, resp.RefreshToken, resp.ExpiresIn), nil
}

// Refresh exchanges a refresh token for a new id token.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (Tokens, error) {
	form := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
	}

	var resp refreshResponse
	if err := c.postForm(ctx, c.tokenURL+"/v1/token", form, &resp); err != nil {
		return Tokens{}, err
	}

	return c.tokens(resp.UserID, "", resp.IDToken, resp.RefreshToken, resp.ExpiresIn), nil
}

// tokens builds Tokens, preferring the id token's own claims for expiry and
// email over the response fields.
func (c *Client) tokens(userID, email, idToken, refreshToken, expiresIn string) Tokens {
	t := Tokens{
		UserID:       userID,
		Email:        email,
		IDToken:      idToken,
		RefreshToken: refreshToken,
	}

	if secs, err := strconv.Atoi(expiresIn); err == nil {
		t.ExpiresAt = time.Now().Add(time.Duration(secs) * time.Second)
	}

	if claims, err := ParseClaims(idToken); err == nil {
		if claims.ExpiresAt != nil {
			t.ExpiresAt = claims.ExpiresAt.Time
		}
		if t.UserID == "" {
			t.UserID = claims.Subject
		}
		if t.Email == "" {
			t.Email = claims.Email
		}
	}
	return t
}

func (c *Client) postJSON(ctx context.Context, endpoint string, body any, result any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.withKey(endpoint), bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return c.do(req, result)
}

func (c *Client) postForm(ctx context.Context, endpoint string, form url.Values, result any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.withKey(endpoint), strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	return c.do(req, result)
}

func (c *Client) withKey(endpoint string) string {
	return endpoint + "?key=" + url.QueryEscape(c.apiKey)
}

func (c *Client) do(req *http.Request, result any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return apiError(resp.StatusCode, respBody)
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}

	return nil
}

// apiError maps an error body to a sentinel error where one applies. Messages
// look like "WEAK_PASSWORD : Password should be at least 6 characters".
func apiError(status int, body []byte) error {
	var e errorResponse
	if err := json.Unmarshal(body, &e); err != nil || e.Error.Message == "" {
		return &APIError{Status: status, Message: string(body)}
	}

	code, _, _ := strings.Cut(e.Error.Message, " ")
	switch code {
	case "EMAIL_EXISTS":
		return ErrEmailExists
	case "EMAIL_NOT_FOUND", "INVALID_PASSWORD", "INVALID_LOGIN_CREDENTIALS":
		return ErrInvalidCredentials
	case "WEAK_PASSWORD":
		return ErrWeakPassword
	}
	return &APIError{Status: status, Message: e.Error.Message}
}

type passwordRequest struct {
	Email             string `json:"email"`
	Password          string `json:"password"`
	ReturnSecureToken bool   `json:"returnSecureToken"`
}

type passwordResponse struct {
	IDToken      string `json:"idToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    string `json:"expiresIn"`
	LocalID      string `json:"localId"`
	Email        string `json:"email"`
}

type refreshResponse struct {
	IDToken      string `json:"id_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    string `json:"expires_in"`
	UserID       string `json:"user_id"`
}

type errorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}
