package missionlinesdk

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/felixgeelhaar/fortify/retry"
)

// Client is a minimal Missionline HTTP API client. Requests that fail with
// 409 Conflict are retried a bounded number of times; every other failure is
// returned on the first attempt.
type Client struct {
	BaseURL     string
	BearerToken string
	ActorID     string
	HTTPClient  *http.Client
	Timeout     time.Duration
	MaxAttempts int
	RetryDelay  time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL:     baseURL,
		Timeout:     10 * time.Second,
		MaxAttempts: 3,
		RetryDelay:  50 * time.Millisecond,
	}
}

type MissionType struct {
	ID                int64  `json:"id"`
	Name              string `json:"name"`
	EstimatedDuration int    `json:"estimated_duration"`
}

type Template struct {
	ID                string `json:"id"`
	MissionTypeID     int64  `json:"mission_type_id"`
	Ord               int    `json:"ord"`
	Description       string `json:"description"`
	EstimatedDuration int    `json:"estimated_duration"`
}

type Task struct {
	ID                string     `json:"id"`
	MissionID         string     `json:"mission_id"`
	Ord               int        `json:"ord"`
	Description       string     `json:"description"`
	EstimatedDuration int        `json:"estimated_duration"`
	StatusID          int        `json:"status_id"`
	Status            string     `json:"status"`
	StartStamp        *time.Time `json:"start_stamp,omitempty"`
	PauseStamp        *time.Time `json:"pause_stamp,omitempty"`
	UnpauseStamp      *time.Time `json:"unpause_stamp,omitempty"`
	StopStamp         *time.Time `json:"stop_stamp,omitempty"`
}

type TeamMember struct {
	ID           string `json:"id"`
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name"`
	IsTeamLeader bool   `json:"is_team_leader"`
}

type Mission struct {
	ID                string       `json:"id"`
	Date              string       `json:"date"`
	MissionTypeID     int64        `json:"mission_type_id"`
	MissionTypeName   string       `json:"mission_type_name"`
	ProjectID         int64        `json:"project_id"`
	ProjectName       string       `json:"project_name"`
	Description       string       `json:"description,omitempty"`
	EstimatedDuration int          `json:"estimated_duration"`
	Status            string       `json:"status"`
	Tasks             []Task       `json:"tasks"`
	Team              []TeamMember `json:"team"`
}

// MissionInput is the payload for CreateMission.
type MissionInput struct {
	ID            string   `json:"id,omitempty"`
	Date          string   `json:"date"`
	MissionTypeID int64    `json:"mission_type_id"`
	ProjectID     int64    `json:"project_id"`
	Description   string   `json:"description,omitempty"`
	EmployeeIDs   []string `json:"employee_ids"`
	TeamLeaderID  string   `json:"team_leader_id"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Code       string
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// IsConflict reports whether err is a 409 from the API.
func IsConflict(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusConflict
}

func (c *Client) ListMissionTypes(ctx context.Context) ([]MissionType, error) {
	var resp struct {
		Items []MissionType `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, "v0/mission-types", nil, &resp)
	return resp.Items, err
}

func (c *Client) CreateMissionType(ctx context.Context, name string, estimatedDuration int) (MissionType, error) {
	var resp MissionType
	err := c.do(ctx, http.MethodPost, "v0/mission-types", map[string]any{
		"name": name, "estimated_duration": estimatedDuration,
	}, &resp)
	return resp, err
}

func (c *Client) ListTemplates(ctx context.Context, missionTypeID int64) ([]Template, error) {
	var resp struct {
		Items []Template `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("v0/mission-types/%d/templates", missionTypeID), nil, &resp)
	return resp.Items, err
}

func (c *Client) AddTemplate(ctx context.Context, missionTypeID int64, description string, estimatedDuration int) (Template, error) {
	var resp Template
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("v0/mission-types/%d/templates", missionTypeID), map[string]any{
		"description": description, "estimated_duration": estimatedDuration,
	}, &resp)
	return resp, err
}

// MoveTemplate swaps a template with its neighbour; direction is "up" or "down".
func (c *Client) MoveTemplate(ctx context.Context, templateID, direction string) (Template, error) {
	var resp Template
	err := c.do(ctx, http.MethodPost, "v0/templates/"+url.PathEscape(templateID)+"/move", map[string]any{"direction": direction}, &resp)
	return resp, err
}

func (c *Client) DeleteTemplate(ctx context.Context, templateID string) error {
	return c.do(ctx, http.MethodDelete, "v0/templates/"+url.PathEscape(templateID), nil, nil)
}

func (c *Client) CreateMission(ctx context.Context, in MissionInput) (Mission, error) {
	var resp Mission
	err := c.do(ctx, http.MethodPost, "v0/missions", in, &resp)
	return resp, err
}

func (c *Client) GetMission(ctx context.Context, id string) (Mission, error) {
	var resp Mission
	err := c.do(ctx, http.MethodGet, "v0/missions/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

// TransitionTask moves a task to status. When expected is non-empty the
// server only applies the change if the task is still in that status.
func (c *Client) TransitionTask(ctx context.Context, taskID, status, expected string) (Task, error) {
	body := map[string]any{"status": status}
	if expected != "" {
		body["expected_status"] = expected
	}
	var resp Task
	err := c.do(ctx, http.MethodPost, "v0/tasks/"+url.PathEscape(taskID)+"/transition", body, &resp)
	return resp, err
}

// Events returns recent events, newest first.
func (c *Client) Events(ctx context.Context, entityKind string, limit int) ([]Event, error) {
	q := url.Values{}
	if entityKind != "" {
		q.Set("entity_kind", entityKind)
	}
	if limit > 0 {
		q.Set("limit", fmt.Sprint(limit))
	}
	endpoint := "v0/events"
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp struct {
		Items []Event `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp.Items, err
}

// do sends one request, retrying only on 409.
func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	attempts := c.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	r := retry.New[[]byte](retry.Config{
		MaxAttempts:   attempts,
		InitialDelay:  c.RetryDelay,
		BackoffPolicy: retry.BackoffExponential,
	})
	var final error
	data, err := r.Do(ctx, func(ctx context.Context) ([]byte, error) {
		data, err := c.send(ctx, method, endpoint, body)
		final = err
		if err != nil && IsConflict(err) {
			return nil, err
		}
		// anything else ends the retry loop; final carries it out
		return data, nil
	})
	if final != nil {
		return final
	}
	if err != nil {
		return err
	}
	if out != nil && len(data) > 0 {
		return json.Unmarshal(data, out)
	}
	return nil
}

func (c *Client) send(ctx context.Context, method, endpoint string, body any) ([]byte, error) {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	target := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return nil, err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, target, &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.ActorID != "":
		req.Header.Set("X-Actor-Id", c.ActorID)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		var env struct {
			Error struct {
				Code string `json:"code"`
			} `json:"error"`
		}
		if json.Unmarshal(b, &env) == nil {
			apiErr.Code = env.Error.Code
		}
		return nil, apiErr
	}
	return b, nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
