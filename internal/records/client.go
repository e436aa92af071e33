// Package records is the HTTP client of the interview API. Callers get the
// same sentinel errors the server classified, so errors.Is works across the
// wire.
package records

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/intervue/internal/api/response"
	"github.com/kiranshivaraju/intervue/internal/failure"
	"github.com/kiranshivaraju/intervue/internal/interview"
	"github.com/kiranshivaraju/intervue/pkg/models"
	"github.com/pion/webrtc/v3"
)

// ErrUnreachable covers transport failures and unreadable responses.
var ErrUnreachable = errors.New("interview API unreachable")

// APIError is an error envelope returned by the server. It unwraps to the
// sentinel behind Code when the code is known.
type APIError struct {
	Status  int
	Code    string
	Message string
	target  error
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s (%d): %s", e.Code, e.Status, e.Message)
}

func (e *APIError) Unwrap() error { return e.target }

// Client talks to the interview API as one authenticated user.
type Client struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewClient creates a client for the API at baseURL.
func NewClient(baseURL, token string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  &http.Client{Timeout: timeout},
	}
}

func (c *Client) Schedule(ctx context.Context, req interview.ScheduleRequest) (*models.Interview, error) {
	var iv models.Interview
	if err := c.do(ctx, http.MethodPost, "/api/v1/interviews", req, &iv); err != nil {
		return nil, err
	}
	return &iv, nil
}

// List returns the caller's interviews, filtered by status unless it is empty.
func (c *Client) List(ctx context.Context, status models.InterviewStatus) ([]*models.Interview, error) {
	path := "/api/v1/interviews"
	if status != "" {
		path += "?" + url.Values{"status": {string(status)}}.Encode()
	}
	var list []*models.Interview
	if err := c.do(ctx, http.MethodGet, path, nil, &list); err != nil {
		return nil, err
	}
	return list, nil
}

func (c *Client) Get(ctx context.Context, id uuid.UUID) (*models.Interview, error) {
	var iv models.Interview
	if err := c.do(ctx, http.MethodGet, "/api/v1/interviews/"+id.String(), nil, &iv); err != nil {
		return nil, err
	}
	return &iv, nil
}

func (c *Client) SetStatus(ctx context.Context, id uuid.UUID, status models.InterviewStatus) (*models.Interview, error) {
	body := map[string]models.InterviewStatus{"status": status}
	var iv models.Interview
	if err := c.do(ctx, http.MethodPatch, "/api/v1/interviews/"+id.String()+"/status", body, &iv); err != nil {
		return nil, err
	}
	return &iv, nil
}

func (c *Client) SubmitFeedback(ctx context.Context, id uuid.UUID, in interview.FeedbackInput) (*models.Feedback, error) {
	var fb models.Feedback
	if err := c.do(ctx, http.MethodPost, "/api/v1/interviews/"+id.String()+"/feedback", in, &fb); err != nil {
		return nil, err
	}
	return &fb, nil
}

func (c *Client) MyFeedback(ctx context.Context) (*models.MyFeedback, error) {
	var mine models.MyFeedback
	if err := c.do(ctx, http.MethodGet, "/api/v1/feedback/me", nil, &mine); err != nil {
		return nil, err
	}
	return &mine, nil
}

// ICEServers fetches the STUN and TURN servers the API hands out.
func (c *Client) ICEServers(ctx context.Context) ([]webrtc.ICEServer, error) {
	var cfg struct {
		ICEServers []struct {
			URLs       []string `json:"urls"`
			Username   string   `json:"username"`
			Credential string   `json:"credential"`
		} `json:"ice_servers"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v1/webrtc/config", nil, &cfg); err != nil {
		return nil, err
	}

	servers := make([]webrtc.ICEServer, 0, len(cfg.ICEServers))
	for _, s := range cfg.ICEServers {
		srv := webrtc.ICEServer{URLs: s.URLs, Username: s.Username}
		if s.Credential != "" {
			srv.Credential = s.Credential
			srv.CredentialType = webrtc.ICECredentialTypePassword
		}
		servers = append(servers, srv)
	}
	return servers, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return classifyError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return decodeError(resp)
	}

	env := struct {
		Data any `json:"data"`
	}{Data: out}
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("%w: decoding response: %v", ErrUnreachable, err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	var env response.ErrorEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil || env.Error.Code == "" {
		return fmt.Errorf("%w: status %d", ErrUnreachable, resp.StatusCode)
	}
	return &APIError{
		Status:  resp.StatusCode,
		Code:    env.Error.Code,
		Message: env.Error.Message,
		target:  failure.ErrorFor(env.Error.Code),
	}
}

// classifyError maps transport-level errors to ErrUnreachable. A cancelled
// context is returned as is so callers can tell it apart.
func classifyError(err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: timeout: %v", ErrUnreachable, err)
	}
	return fmt.Errorf("%w: %v", ErrUnreachable, err)
}
