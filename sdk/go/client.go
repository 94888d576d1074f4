package reqlinesdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Reqline HTTP API client.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// Requirement mirrors the API requirement model.
type Requirement struct {
	ID        string `json:"id"`
	Variant   string `json:"variant"`
	UseCaseID string `json:"use_case_id"`
	Depth     int    `json:"depth"`

	Operation             string `json:"operation,omitempty"`
	Condition             string `json:"condition,omitempty"`
	ConditionalValue      string `json:"conditional_value,omitempty"`
	Exception             string `json:"exception,omitempty"`
	CommunicationInfo     string `json:"communication_info,omitempty"`
	CommunicationFacility string `json:"communication_facility,omitempty"`

	ActorIDs                []string `json:"actor_ids,omitempty"`
	RequirementID           *string  `json:"requirement_id,omitempty"`
	ReferencedUseCaseID     *string  `json:"referenced_use_case_id,omitempty"`
	MainRequirementID       *string  `json:"main_requirement_id,omitempty"`
	DetailRequirementIDs    []string `json:"detail_requirement_ids,omitempty"`
	PrimaryConditionID      *string  `json:"primary_condition_id,omitempty"`
	AlternativeConditionIDs []string `json:"alternative_condition_ids,omitempty"`
	FallbackConditionID     *string  `json:"fallback_condition_id,omitempty"`
	SimpleRequirementIDs    []string `json:"simple_requirement_ids,omitempty"`
	HandledRequirementIDs   []string `json:"handled_requirement_ids,omitempty"`

	NestedRequirementIDs []string `json:"nested_requirement_ids,omitempty"`
	ExceptionIDs         []string `json:"exception_ids,omitempty"`

	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at,omitempty"`
}

// Project mirrors the API project model.
type Project struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	CreatedAt string `json:"created_at"`
}

// Actor mirrors the API actor model.
type Actor struct {
	ID        string `json:"id"`
	ProjectID string `json:"project_id"`
	Name      string `json:"name"`
	Type      string `json:"type"`
	Subtype   string `json:"subtype"`
	CreatedAt string `json:"created_at"`
}

// UseCase mirrors the API use case model.
type UseCase struct {
	ID        string `json:"id"`
	ProjectID string `json:"project_id"`
	Name      string `json:"name"`
	Kind      string `json:"kind"`
	CreatedAt string `json:"created_at"`
}

// Event represents a log entry.
type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts"`
	Type       string `json:"type"`
	ProjectID  string `json:"project_id"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id"`
	Payload    string `json:"payload_json"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// CreateRequirement creates a requirement of the given variant. The body maps
// directly to the variant's create payload.
func (c *Client) CreateRequirement(ctx context.Context, variant string, body map[string]any) (Requirement, error) {
	var resp Requirement
	segment := strings.ReplaceAll(variant, "_", "-")
	err := c.do(ctx, http.MethodPost, "v0/requirements/"+url.PathEscape(segment), body, &resp)
	return resp, err
}

// GetRequirement fetches a requirement by id.
func (c *Client) GetRequirement(ctx context.Context, id string) (Requirement, error) {
	var resp Requirement
	err := c.do(ctx, http.MethodGet, "v0/requirements/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

// DeleteRequirement removes a requirement and its owned subtree.
func (c *Client) DeleteRequirement(ctx context.Context, id string) (bool, error) {
	var resp struct {
		Removed bool `json:"removed"`
	}
	err := c.do(ctx, http.MethodDelete, "v0/requirements/"+url.PathEscape(id), nil, &resp)
	return resp.Removed, err
}

// RequirementsByUseCase lists a use case's requirements.
func (c *Client) RequirementsByUseCase(ctx context.Context, useCaseID string) ([]Requirement, error) {
	var resp []Requirement
	endpoint := fmt.Sprintf("v0/usecases/%s/requirements", url.PathEscape(useCaseID))
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// CreateProject initializes a project.
func (c *Client) CreateProject(ctx context.Context, name, description string) (Project, error) {
	var resp Project
	err := c.do(ctx, http.MethodPost, "v0/projects", map[string]any{"name": name, "description": description}, &resp)
	return resp, err
}

// CreateActor creates an actor in a project.
func (c *Client) CreateActor(ctx context.Context, projectID, name, subtype string) (Actor, error) {
	var resp Actor
	body := map[string]any{"project_id": projectID, "name": name, "subtype": subtype}
	err := c.do(ctx, http.MethodPost, "v0/actors", body, &resp)
	return resp, err
}

// CreateUseCase creates a use case in a project.
func (c *Client) CreateUseCase(ctx context.Context, projectID, name, kind string) (UseCase, error) {
	var resp UseCase
	body := map[string]any{"project_id": projectID, "name": name, "kind": kind}
	err := c.do(ctx, http.MethodPost, "v0/usecases", body, &resp)
	return resp, err
}

// Events returns recent events.
func (c *Client) Events(ctx context.Context, limit int) ([]Event, error) {
	endpoint := "v0/events"
	if limit > 0 {
		endpoint = fmt.Sprintf("%s?limit=%d", endpoint, limit)
	}
	var resp []Event
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
