// Package api is a client for the remote project service: authentication,
// project CRUD and image upload.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	apperrors "invitely/pkg/errors"
	"invitely/pkg/models"
	"invitely/pkg/utils"
)

// HealthTimeout bounds the health check
const HealthTimeout = 5 * time.Second

// User is the account returned by the auth endpoints
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

// RemoteProject is the envelope the service stores projects in
type RemoteProject struct {
	ID        string         `json:"id,omitempty"`
	Title     string         `json:"title,omitempty"`
	Data      models.Project `json:"data"`
	UpdatedAt time.Time      `json:"updatedAt,omitempty"`
}

type authResponse struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// Client talks to the remote project service
type Client struct {
	baseURL string
	http    *http.Client
	tokens  TokenStore
	log     *log.Logger
	now     func() time.Time
}

// NewClient creates a client for baseURL. httpClient may be nil.
func NewClient(baseURL string, tokens TokenStore, httpClient *http.Client, logger *log.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
		tokens:  tokens,
		log:     logger,
		now:     time.Now,
	}
}

// Configured reports whether a base URL is set
func (c *Client) Configured() bool {
	return c != nil && c.baseURL != ""
}

// Authenticated reports whether a usable bearer token is stored
func (c *Client) Authenticated() bool {
	if !c.Configured() || c.tokens == nil {
		return false
	}
	token := c.tokens.Token()
	if token == "" {
		return false
	}
	if tokenExpired(token, c.now()) {
		c.tokens.Clear()
		return false
	}
	return true
}

// Login authenticates and stores the returned token
func (c *Client) Login(ctx context.Context, email, password string) (*User, error) {
	var resp authResponse
	body := map[string]string{"email": email, "password": password}
	if err := c.doJSON(ctx, http.MethodPost, "/auth/login", body, &resp); err != nil {
		return nil, err
	}
	c.tokens.SetToken(resp.Token)
	return &resp.User, nil
}

// Register creates an account and stores the returned token
func (c *Client) Register(ctx context.Context, email, password, name string) (*User, error) {
	var resp authResponse
	body := map[string]string{"email": email, "password": password, "name": name}
	if err := c.doJSON(ctx, http.MethodPost, "/auth/register", body, &resp); err != nil {
		return nil, err
	}
	c.tokens.SetToken(resp.Token)
	return &resp.User, nil
}

// Me returns the authenticated user
func (c *Client) Me(ctx context.Context) (*User, error) {
	var user User
	if err := c.doJSON(ctx, http.MethodGet, "/auth/me", nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// Logout forgets the stored token
func (c *Client) Logout() {
	if c.tokens != nil {
		c.tokens.Clear()
	}
}

// GetProject fetches a project by id
func (c *Client) GetProject(ctx context.Context, id string) (models.Project, error) {
	var rp RemoteProject
	if err := c.doJSON(ctx, http.MethodGet, "/projects/"+id, nil, &rp); err != nil {
		return models.Project{}, err
	}
	return rp.Data, nil
}

// CreateProject stores a new project and returns its id
func (c *Client) CreateProject(ctx context.Context, p models.Project) (string, error) {
	var rp RemoteProject
	if err := c.doJSON(ctx, http.MethodPost, "/projects", RemoteProject{Data: p}, &rp); err != nil {
		return "", err
	}
	if rp.ID == "" {
		return "", apperrors.ErrServer.WithContext("reason", "response carried no project id")
	}
	return rp.ID, nil
}

// UpdateProject replaces the project stored under id
func (c *Client) UpdateProject(ctx context.Context, id string, p models.Project) error {
	return c.doJSON(ctx, http.MethodPut, "/projects/"+id, RemoteProject{ID: id, Data: p}, nil)
}

// DeleteProject removes the project stored under id
func (c *Client) DeleteProject(ctx context.Context, id string) error {
	return c.doJSON(ctx, http.MethodDelete, "/projects/"+id, nil, nil)
}

// UploadImage validates and uploads an image, returning its public URL
func (c *Client) UploadImage(ctx context.Context, filename, contentType string, data []byte) (string, error) {
	if result := apperrors.NewValidator().ValidateImageUpload(contentType, int64(len(data))); !result.IsValid {
		return "", result.GetFirstError()
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="image"; filename=%q`, filename))
	header.Set("Content-Type", contentType)
	part, err := mw.CreatePart(header)
	if err != nil {
		return "", err
	}
	if _, err := part.Write(data); err != nil {
		return "", err
	}
	if err := mw.Close(); err != nil {
		return "", err
	}

	var resp struct {
		URL string `json:"url"`
	}
	if err := c.do(ctx, http.MethodPost, "/images/upload", &buf, mw.FormDataContentType(), &resp); err != nil {
		return "", err
	}
	return resp.URL, nil
}

// Health checks that the service answers within HealthTimeout
func (c *Client) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, HealthTimeout)
	defer cancel()
	return c.do(ctx, http.MethodGet, "/health", nil, "", nil)
}

func (c *Client) doJSON(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	contentType := ""
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
		contentType = "application/json"
	}
	return c.do(ctx, method, path, body, contentType, out)
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, contentType string, out interface{}) error {
	if !c.Configured() {
		return apperrors.ErrNetwork.WithContext("reason", "remote service not configured")
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return apperrors.ErrNetwork.WithCause(err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", utils.GenerateRequestID())
	if c.tokens != nil {
		if token := c.tokens.Token(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Printf("%s %s: %v", method, path, err)
		return apperrors.ErrNetwork.WithCause(err).WithContext("path", path)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if out == nil || resp.StatusCode == http.StatusNoContent {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
			return apperrors.ErrServer.WithCause(err).WithContext("path", path)
		}
		return nil
	}

	return c.statusError(resp, path)
}

// statusError maps a failed response onto the error kinds callers handle
func (c *Client) statusError(resp *http.Response, path string) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	msg := serverMessage(raw)

	var err *apperrors.AppError
	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		if c.tokens != nil {
			c.tokens.Clear()
		}
		err = apperrors.ErrAuthRequired
	case resp.StatusCode == http.StatusNotFound:
		err = apperrors.ErrProjectNotFound
	case resp.StatusCode == http.StatusTooManyRequests:
		err = apperrors.ErrRateLimited
		if msg != "" {
			err = err.WithUserMessage(msg)
		}
		if ra := resp.Header.Get("Retry-After"); ra != "" {
			err = err.WithContext("retryAfter", ra)
		}
	case resp.StatusCode >= 500:
		err = apperrors.ErrServer
		if msg != "" {
			err = err.WithUserMessage(msg)
		}
	default:
		err = apperrors.New(apperrors.ErrTypeNetwork, "REQUEST_FAILED", "request failed")
		if msg != "" {
			err = err.WithUserMessage(msg)
		}
	}

	c.log.Printf("%s: HTTP %d %s", path, resp.StatusCode, msg)
	return err.WithContext("status", resp.StatusCode).WithContext("path", path)
}

func serverMessage(raw []byte) string {
	var body errorBody
	if err := json.Unmarshal(raw, &body); err == nil {
		if body.Message != "" {
			return body.Message
		}
		if body.Error != "" {
			return body.Error
		}
	}
	return strings.TrimSpace(string(raw))
}
