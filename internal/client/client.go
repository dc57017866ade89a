package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"studytrack/internal/models"
)

// Client talks to the session store's REST API. It satisfies
// tracker.SessionStore and tracker.MilestoneStore.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

func New(baseURL, token string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (c *Client) GetActiveSession(ctx context.Context) (*models.StudySession, error) {
	var resp struct {
		Session *models.StudySession `json:"session"`
	}
	if err := c.do(ctx, "get active study session", http.MethodGet, "/study-sessions/active", nil, &resp); err != nil {
		return nil, err
	}
	if resp.Session == nil {
		return nil, &models.NotFoundError{Message: "No active study session"}
	}
	return resp.Session, nil
}

func (c *Client) StartSession(ctx context.Context, studyPlanID *uuid.UUID, subject string) (*models.StudySession, error) {
	req := models.StartSessionRequest{StudyPlanID: studyPlanID, Subject: subject}
	var resp struct {
		Session *models.StudySession `json:"session"`
	}
	if err := c.do(ctx, "start study session", http.MethodPost, "/study-sessions/start", req, &resp); err != nil {
		return nil, err
	}
	if resp.Session == nil {
		return nil, &models.TransportError{Op: "start study session", Message: "response did not contain a session"}
	}
	return resp.Session, nil
}

func (c *Client) PauseSession(ctx context.Context) error {
	return c.do(ctx, "pause study session", http.MethodPost, "/study-sessions/pause", nil, nil)
}

func (c *Client) ResumeSession(ctx context.Context) error {
	return c.do(ctx, "resume study session", http.MethodPost, "/study-sessions/resume", nil, nil)
}

func (c *Client) StopSession(ctx context.Context, notes string, focusScore int) (*models.ActivityRecord, error) {
	req := models.StopSessionRequest{Notes: notes, FocusScore: focusScore}
	var resp struct {
		Activity *models.ActivityRecord `json:"activity"`
	}
	if err := c.do(ctx, "stop study session", http.MethodPost, "/study-sessions/stop", req, &resp); err != nil {
		return nil, err
	}
	if resp.Activity == nil {
		return nil, &models.TransportError{Op: "stop study session", Message: "response did not contain an activity record"}
	}
	return resp.Activity, nil
}

func (c *Client) SetMilestoneProgress(ctx context.Context, milestoneID uuid.UUID, progress float64) error {
	req := models.MilestoneProgressRequest{Progress: progress}
	path := fmt.Sprintf("/milestones/%s/progress", milestoneID)
	return c.do(ctx, "set milestone progress", http.MethodPut, path, req, nil)
}

func (c *Client) do(ctx context.Context, op, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: failed to encode request: %w", op, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("%s: failed to build request: %w", op, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &models.TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return decodeError(op, resp)
	}

	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &models.TransportError{Op: op, Status: resp.StatusCode, Message: "invalid response body", Err: err}
	}
	return nil
}

const notFoundCode = "NOT_FOUND"

// decodeError maps the store's error body onto the error taxonomy.
func decodeError(op string, resp *http.Response) error {
	var body models.ErrorResponse
	json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&body)

	msg := body.Error.Message
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}

	switch resp.StatusCode {
	case http.StatusBadRequest:
		if len(body.Error.Fields) > 0 {
			return &models.ValidationError{Fields: body.Error.Fields}
		}
		return &models.ValidationError{Fields: map[string]string{"request": msg}}
	case http.StatusNotFound:
		// a 404 without the store's error body is a missing route, not a missing session
		if body.Error.Code == notFoundCode {
			return &models.NotFoundError{Message: msg}
		}
		return &models.TransportError{Op: op, Status: resp.StatusCode, Message: msg}
	case http.StatusConflict:
		return &models.ConflictError{Message: msg}
	default:
		return &models.TransportError{Op: op, Status: resp.StatusCode, Message: msg}
	}
}
