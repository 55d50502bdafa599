// Package rest provides the HTTP client for the coordination backend's
// credential endpoint and room/show resource.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sethvargo/go-retry"
)

// Show is the room resource as the backend reports it.
type Show struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	HostID      string `json:"host_id"`
	HostName    string `json:"host_name"`
	Started     bool   `json:"started"`
	Ended       bool   `json:"ended"`
	ViewerCount int    `json:"viewer_count"`
	AudioMuted  bool   `json:"audio_muted"`
}

// Live reports whether the show can currently accept viewers.
func (s Show) Live() bool {
	return s.Started && !s.Ended
}

// Credential is the response of the token endpoint. Role is authoritative:
// clients never infer host status from data they hold locally.
type Credential struct {
	Token    string `json:"token"`
	URL      string `json:"url"`
	Role     string `json:"role"`
	PipToken string `json:"piptoken,omitempty"`
}

const (
	RoleHost   = "host"
	RoleViewer = "viewer"
)

// Client defines the backend operations the client core needs.
type Client interface {
	// FetchCredential requests a scoped room credential.
	FetchCredential(ctx context.Context, room, userID, userName string) (*Credential, error)
	// GetShow fetches one show; used for raid target re-validation.
	GetShow(ctx context.Context, showID string) (*Show, error)
	// ListLiveShows fetches the currently live shows.
	ListLiveShows(ctx context.Context) ([]Show, error)
	// SetAudioMuted propagates the room-level audio-muted flag.
	SetAudioMuted(ctx context.Context, showID string, muted bool) error
}

// HTTPClient talks to the coordination backend over HTTP. GETs retry with
// bounded backoff on transient failures; writes never retry.
type HTTPClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

func NewHTTPClient(baseURL string) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// SetToken sets the bearer token attached to subsequent requests.
func (c *HTTPClient) SetToken(token string) {
	c.token = token
}

func (c *HTTPClient) FetchCredential(ctx context.Context, room, userID, userName string) (*Credential, error) {
	body, err := json.Marshal(map[string]string{
		"show_id":   room,
		"user_id":   userID,
		"user_name": userName,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal token request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/token", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	var cred Credential
	if err := c.do(req, &cred); err != nil {
		return nil, fmt.Errorf("fetch credential: %w", err)
	}

	return &cred, nil
}

func (c *HTTPClient) GetShow(ctx context.Context, showID string) (*Show, error) {
	var show Show

	err := c.getWithRetry(ctx, "/api/rooms/"+showID, &show)
	if err != nil {
		return nil, fmt.Errorf("get show %s: %w", showID, err)
	}

	return &show, nil
}

func (c *HTTPClient) ListLiveShows(ctx context.Context) ([]Show, error) {
	var shows []Show

	err := c.getWithRetry(ctx, "/api/rooms?live=true", &shows)
	if err != nil {
		return nil, fmt.Errorf("list live shows: %w", err)
	}

	return shows, nil
}

func (c *HTTPClient) SetAudioMuted(ctx context.Context, showID string, muted bool) error {
	body, err := json.Marshal(map[string]bool{"audio_muted": muted})
	if err != nil {
		return fmt.Errorf("marshal mute request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, c.baseURL+"/api/rooms/"+showID, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build mute request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	if err := c.do(req, nil); err != nil {
		return fmt.Errorf("patch show %s: %w", showID, err)
	}

	return nil
}

func (c *HTTPClient) getWithRetry(ctx context.Context, path string, out any) error {
	backoff := retry.WithMaxRetries(3, retry.NewExponential(200*time.Millisecond))

	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
		if err != nil {
			return err
		}

		err = c.do(req, out)
		if isTransient(err) {
			return retry.RetryableError(err)
		}

		return err
	})
}

// StatusError is returned for non-2xx backend responses.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("backend returned %d: %s", e.Code, e.Body)
}

func isTransient(err error) bool {
	if err == nil {
		return false
	}

	var se *StatusError
	if errors.As(err, &se) {
		return se.Code >= http.StatusInternalServerError
	}

	// Network-level failures are worth one more try.
	return true
}

func (c *HTTPClient) do(req *http.Request, out any) error {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return &StatusError{Code: resp.StatusCode, Body: string(body)}
	}

	if out == nil {
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	return nil
}
