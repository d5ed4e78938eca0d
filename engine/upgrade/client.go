package upgrade

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/CarnegieLearningWeb/upgrade-agent/engine/core"
	"github.com/CarnegieLearningWeb/upgrade-agent/pkg/config"
	"github.com/CarnegieLearningWeb/upgrade-agent/pkg/logger"
	"github.com/go-resty/resty/v2"
)

// API endpoint paths, relative to the configured base URL.
const (
	healthPath          = "/"
	contextMetadataPath = "/experiments/contextMetaData"
	experimentNamesPath = "/experiments/names"
	experimentsPath     = "/experiments"
	experimentStatePath = "/experiments/state"
	initPath            = "/v6/init"
	assignPath          = "/v6/assign"
	markPath            = "/v6/mark"
)

// TokenProvider supplies bearer tokens for the admin endpoints. An empty
// token means the request goes out unauthenticated.
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a TokenProvider that always returns the same token.
type StaticToken string

func (s StaticToken) Token(_ context.Context) (string, error) {
	return string(s), nil
}

// authMode selects how a request authenticates against the API.
type authMode int

const (
	authNone authMode = iota
	authBearer
	authUser
)

// Client is a typed HTTP client for the UpGrade experimentation platform.
// Deletes go through a separate transport with retries disabled: the one
// destructive verb must never be replayed on an ambiguous failure.
type Client struct {
	http     *resty.Client
	httpOnce *resty.Client
	tokens   TokenProvider
}

// NewClient builds a client from the UpGrade section of the configuration.
// A nil tokens falls back to the configured static auth token.
func NewClient(cfg *config.Config, tokens TokenProvider) *Client {
	if tokens == nil {
		tokens = StaticToken(cfg.UpGrade.AuthToken.Value())
	}
	httpClient := resty.New().
		SetBaseURL(cfg.UpGrade.BaseURL).
		SetTimeout(cfg.UpGrade.Timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		SetRetryCount(cfg.UpGrade.RetryCount).
		SetRetryWaitTime(cfg.UpGrade.RetryWaitMin).
		SetRetryMaxWaitTime(cfg.UpGrade.RetryWaitMax)

	httpClient.AddRetryCondition(retryCondition)

	onceClient := resty.New().
		SetBaseURL(cfg.UpGrade.BaseURL).
		SetTimeout(cfg.UpGrade.Timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	if cfg.Runtime.LogLevel == "debug" {
		httpClient.SetDebug(true)
		onceClient.SetDebug(true)
	}

	return &Client{http: httpClient, httpOnce: onceClient, tokens: tokens}
}

// BaseURL returns the configured API base URL.
func (c *Client) BaseURL() string {
	return c.http.BaseURL
}

// retryCondition retries network failures and transient server statuses.
// Client errors other than 408/429 are never retried.
func retryCondition(r *resty.Response, err error) bool {
	if err != nil {
		return true
	}
	if r == nil {
		return false
	}
	code := r.StatusCode()
	return code >= 500 || code == http.StatusTooManyRequests || code == http.StatusRequestTimeout
}

// apiError is the error body shape returned by the API.
type apiError struct {
	Message string `json:"message"`
	Type    string `json:"type,omitempty"`
}

// -----------------------------------------------------------------------------
// Request plumbing
// -----------------------------------------------------------------------------

func (c *Client) newRequest(ctx context.Context, method string, auth authMode, userID string) (*resty.Request, error) {
	transport := c.http
	if method == http.MethodDelete {
		transport = c.httpOnce
	}
	req := transport.R().SetContext(ctx).SetError(&apiError{})
	switch auth {
	case authBearer:
		token, err := c.tokens.Token(ctx)
		if err != nil {
			return nil, core.NewError(err, core.CodeUnauthorized, map[string]any{
				"reason": "token provider failed",
			})
		}
		if token != "" {
			req.SetHeader("Authorization", "Bearer "+token)
		}
	case authUser:
		req.SetHeader("User-Id", userID)
	}
	return req, nil
}

func (c *Client) call(
	ctx context.Context,
	method, path string,
	auth authMode,
	userID string,
	body, result any,
) error {
	log := logger.FromContext(ctx)

	req, err := c.newRequest(ctx, method, auth, userID)
	if err != nil {
		return err
	}
	if body != nil {
		req.SetBody(body)
	}
	if result != nil {
		req.SetResult(result)
	}

	resp, err := executeRequest(req, method, path)
	if err != nil {
		return core.NewError(err, core.CodeUnavailable, map[string]any{
			"method": method,
			"path":   path,
		})
	}
	if resp.IsError() {
		return statusError(resp, method, path)
	}

	log.Debug("upgrade API request completed",
		"method", method, "path", path, "status", resp.StatusCode())
	return nil
}

func executeRequest(req *resty.Request, method, path string) (*resty.Response, error) {
	switch method {
	case http.MethodGet:
		return req.Get(path)
	case http.MethodPost:
		return req.Post(path)
	case http.MethodPut:
		return req.Put(path)
	case http.MethodDelete:
		return req.Delete(path)
	default:
		return nil, fmt.Errorf("unsupported HTTP method: %s", method)
	}
}

// statusError maps an HTTP error response to a coded error. The message
// prefers the API's own error body over the raw response text.
func statusError(resp *resty.Response, method, path string) error {
	message := resp.String()
	if apiErr, ok := resp.Error().(*apiError); ok && apiErr != nil && apiErr.Message != "" {
		message = apiErr.Message
	}
	details := map[string]any{
		"method": method,
		"path":   path,
		"status": resp.StatusCode(),
	}

	var code string
	switch status := resp.StatusCode(); {
	case status == http.StatusUnauthorized:
		code = core.CodeUnauthorized
	case status == http.StatusForbidden:
		code = core.CodeForbidden
	case status == http.StatusNotFound:
		code = core.CodeNotFound
	case status == http.StatusRequestTimeout:
		code = core.CodeTimeout
	case status >= 500:
		code = core.CodeUnavailable
	default:
		code = core.CodeAPIError
	}
	return core.NewError(fmt.Errorf("%s", message), code, details)
}

// -----------------------------------------------------------------------------
// System endpoints
// -----------------------------------------------------------------------------

// Health calls the unauthenticated root endpoint and reports the backend
// name and version.
func (c *Client) Health(ctx context.Context) (*HealthInfo, error) {
	out := &HealthInfo{}
	if err := c.call(ctx, http.MethodGet, healthPath, authNone, "", nil, out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetContextMetadata fetches the app contexts and their supported
// conditions, group types, sites and targets.
func (c *Client) GetContextMetadata(ctx context.Context) (*ContextMetadata, error) {
	out := &ContextMetadata{}
	if err := c.call(ctx, http.MethodGet, contextMetadataPath, authBearer, "", nil, out); err != nil {
		return nil, err
	}
	return out, nil
}

// -----------------------------------------------------------------------------
// Experiment management endpoints
// -----------------------------------------------------------------------------

// ListExperimentNames returns the id/name pairs of all experiments.
func (c *Client) ListExperimentNames(ctx context.Context) ([]ExperimentName, error) {
	out := []ExperimentName{}
	if err := c.call(ctx, http.MethodGet, experimentNamesPath, authBearer, "", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ListExperiments returns all experiments with their full definitions.
func (c *Client) ListExperiments(ctx context.Context) ([]Experiment, error) {
	out := []Experiment{}
	if err := c.call(ctx, http.MethodGet, experimentsPath, authBearer, "", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetExperiment fetches a single experiment by id.
func (c *Client) GetExperiment(ctx context.Context, id string) (*Experiment, error) {
	out := &Experiment{}
	path := experimentsPath + "/single/" + url.PathEscape(id)
	if err := c.call(ctx, http.MethodGet, path, authBearer, "", nil, out); err != nil {
		return nil, err
	}
	return out, nil
}

// CreateExperiment creates a new experiment.
func (c *Client) CreateExperiment(ctx context.Context, req *ExperimentRequest) (*Experiment, error) {
	out := &Experiment{}
	if err := c.call(ctx, http.MethodPost, experimentsPath, authBearer, "", req, out); err != nil {
		return nil, err
	}
	return out, nil
}

// UpdateExperiment replaces an experiment definition by id.
func (c *Client) UpdateExperiment(
	ctx context.Context,
	id string,
	req *ExperimentRequest,
) (*Experiment, error) {
	out := &Experiment{}
	path := experimentsPath + "/" + url.PathEscape(id)
	if err := c.call(ctx, http.MethodPut, path, authBearer, "", req, out); err != nil {
		return nil, err
	}
	return out, nil
}

// UpdateExperimentState moves an experiment through its lifecycle.
func (c *Client) UpdateExperimentState(
	ctx context.Context,
	req *StateUpdateRequest,
) (*Experiment, error) {
	out := &Experiment{}
	if err := c.call(ctx, http.MethodPost, experimentStatePath, authBearer, "", req, out); err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteExperiment permanently removes an experiment and its data.
func (c *Client) DeleteExperiment(ctx context.Context, id string) error {
	path := experimentsPath + "/" + url.PathEscape(id)
	return c.call(ctx, http.MethodDelete, path, authBearer, "", nil, nil)
}

// -----------------------------------------------------------------------------
// User simulation endpoints
// -----------------------------------------------------------------------------

// InitUser registers a user with optional group memberships. The user id
// travels in the User-Id header.
func (c *Client) InitUser(
	ctx context.Context,
	userID string,
	req *InitRequest,
) (*InitResponse, error) {
	out := &InitResponse{}
	if req == nil {
		req = &InitRequest{}
	}
	if err := c.call(ctx, http.MethodPost, initPath, authUser, userID, req, out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetAssignments returns the user's condition assignments for every active
// experiment in the given app context. The endpoint replies with a bare
// array.
func (c *Client) GetAssignments(
	ctx context.Context,
	userID, appContext string,
) ([]AssignmentResult, error) {
	out := []AssignmentResult{}
	body := &AssignRequest{Context: appContext}
	if err := c.call(ctx, http.MethodPost, assignPath, authUser, userID, body, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// MarkDecisionPoint records that the user visited a decision point.
func (c *Client) MarkDecisionPoint(
	ctx context.Context,
	userID string,
	req *MarkRequest,
) (*MarkResponse, error) {
	out := &MarkResponse{}
	if err := c.call(ctx, http.MethodPost, markPath, authUser, userID, req, out); err != nil {
		return nil, err
	}
	return out, nil
}
