// Package client talks to the leadboard REST API on behalf of the terminal client.
// Reads are memoized in a short-lived result cache; mutations invalidate what they touch.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/leadboard/internal/cache"
	"github.com/leadboard/internal/models"
	"github.com/leadboard/internal/session"
	"github.com/rs/zerolog"
)

// DefaultTimeout aborts a hung request; it surfaces as a failure, never a retry
const DefaultTimeout = 30 * time.Second

// Options configures a Client
type Options struct {
	BaseURL  string
	Timeout  time.Duration
	CacheTTL time.Duration
	// HTTPClient overrides the transport; its Timeout is replaced by Timeout
	HTTPClient *http.Client
	// Cache overrides the result cache, which defaults to an in-memory one
	Cache cache.Cache
}

// Client is the remote data service as seen by the board
type Client struct {
	httpClient *http.Client
	baseURL    string
	session    *session.Manager
	cache      cache.Cache
	cacheTTL   time.Duration
	log        zerolog.Logger
}

// New creates a client bound to sess
func New(opts Options, sess *session.Manager, log zerolog.Logger) (*Client, error) {
	if opts.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	if _, err := url.Parse(opts.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = time.Minute
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	httpClient.Timeout = opts.Timeout

	store := opts.Cache
	if store == nil {
		store = cache.NewMemory()
	}

	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		session:    sess,
		cache:      store,
		cacheTTL:   opts.CacheTTL,
		log:        log.With().Str("component", "client").Logger(),
	}, nil
}

// Session returns the session manager the client authenticates with
func (c *Client) Session() *session.Manager {
	return c.session
}

type errorBody struct {
	Error string `json:"error"`
}

// do sends one request and decodes a 2xx body into out.
// A 401 tears the session down; other non-2xx answers become *APIError.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out interface{}) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, bodyReader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.session.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Warn().Err(err).Str("method", method).Str("path", path).Msg("Request failed")
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	c.log.Debug().
		Str("method", method).
		Str("path", path).
		Int("status", resp.StatusCode).
		Dur("duration", time.Since(start)).
		Msg("Request completed")

	if resp.StatusCode == http.StatusUnauthorized && path != loginPath {
		c.forceLogout(ctx)
		return ErrUnauthorized
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var eb errorBody
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		if json.Unmarshal(raw, &eb) != nil || eb.Error == "" {
			eb.Error = strings.TrimSpace(string(raw))
			if eb.Error == "" {
				eb.Error = http.StatusText(resp.StatusCode)
			}
		}
		return &APIError{Status: resp.StatusCode, Message: eb.Error}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s %s: %w", method, path, err)
	}
	return nil
}

// cachedGet serves a read from the result cache, falling back to the server
func (c *Client) cachedGet(ctx context.Context, key, path string, query url.Values, out interface{}) error {
	if ok, _ := cache.GetJSON(ctx, c.cache, key, out); ok {
		return nil
	}
	if err := c.do(ctx, http.MethodGet, path, query, nil, out); err != nil {
		return err
	}
	if err := cache.SetJSON(ctx, c.cache, key, out, c.cacheTTL); err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("cache write failed")
	}
	return nil
}

func (c *Client) invalidate(ctx context.Context, pattern string) {
	if err := c.cache.Invalidate(ctx, pattern); err != nil {
		c.log.Warn().Err(err).Str("pattern", pattern).Msg("cache invalidation failed")
	}
}

func (c *Client) clearCache(ctx context.Context) {
	if err := c.cache.Clear(ctx); err != nil {
		c.log.Warn().Err(err).Msg("cache clear failed")
	}
}

func (c *Client) forceLogout(ctx context.Context) {
	c.log.Warn().Msg("Server rejected the session, logging out")
	c.clearCache(ctx)
	if err := c.session.Teardown(ctx); err != nil {
		c.log.Error().Err(err).Msg("failed to clear session")
	}
}

const loginPath = "/v1/auth/login"

// Login authenticates and starts a new session
func (c *Client) Login(ctx context.Context, username, password string) (*models.LoginResponse, error) {
	var resp models.LoginResponse
	req := models.LoginRequest{Username: username, Password: password}
	if err := c.do(ctx, http.MethodPost, loginPath, nil, req, &resp); err != nil {
		return nil, err
	}
	c.clearCache(ctx)
	if err := c.session.Begin(ctx, resp.User, resp.Token); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Logout clears the session and every memoized read
func (c *Client) Logout(ctx context.Context) error {
	c.clearCache(ctx)
	return c.session.Teardown(ctx)
}

// ListStatuses returns the board columns
func (c *Client) ListStatuses(ctx context.Context) ([]models.Status, error) {
	var body struct {
		Statuses []models.Status `json:"statuses"`
	}
	if err := c.cachedGet(ctx, cache.KeyStatuses, "/v1/statuses", nil, &body); err != nil {
		return nil, err
	}
	return body.Statuses, nil
}

// ListUsers returns users, optionally of one role
func (c *Client) ListUsers(ctx context.Context, role string) ([]models.User, error) {
	var body struct {
		Users []models.User `json:"users"`
	}
	q := url.Values{}
	if role != "" {
		q.Set("role", role)
	}
	if err := c.cachedGet(ctx, cache.KeyUsers+"?role="+role, "/v1/users", q, &body); err != nil {
		return nil, err
	}
	return body.Users, nil
}

func leadsQuery(filter models.LeadFilter) url.Values {
	q := url.Values{}
	q.Set("page", strconv.Itoa(filter.Page))
	q.Set("page_size", strconv.Itoa(filter.PageSize))
	if filter.StatusID != "" {
		q.Set("status_id", filter.StatusID)
	}
	if filter.AssignedTo != "" {
		q.Set("assigned_to", filter.AssignedTo)
	}
	if filter.AdName != "" {
		q.Set("ad_name", filter.AdName)
	}
	return q
}

// ListLeads returns one page of leads
func (c *Client) ListLeads(ctx context.Context, filter models.LeadFilter) (*models.LeadPage, error) {
	q := leadsQuery(filter)
	var page models.LeadPage
	if err := c.cachedGet(ctx, cache.KeyLeads+"?"+q.Encode(), "/v1/leads", q, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// GetLead returns a single lead
func (c *Client) GetLead(ctx context.Context, leadID string) (*models.Lead, error) {
	var lead models.Lead
	if err := c.do(ctx, http.MethodGet, "/v1/leads/"+url.PathEscape(leadID), nil, nil, &lead); err != nil {
		return nil, err
	}
	return &lead, nil
}

// ListComments returns a lead's comments, oldest first
func (c *Client) ListComments(ctx context.Context, leadID string) ([]models.Comment, error) {
	var body struct {
		Comments []models.Comment `json:"comments"`
	}
	path := "/v1/leads/" + url.PathEscape(leadID) + "/comments"
	if err := c.cachedGet(ctx, cache.CommentsKey(leadID), path, nil, &body); err != nil {
		return nil, err
	}
	return body.Comments, nil
}

// UpdateLeadStatus moves a lead to statusID
func (c *Client) UpdateLeadStatus(ctx context.Context, leadID, statusID string) (*models.StatusChange, error) {
	var change models.StatusChange
	path := "/v1/leads/" + url.PathEscape(leadID) + "/status"
	err := c.do(ctx, http.MethodPatch, path, nil, map[string]string{"status_id": statusID}, &change)
	// A failed move is followed by a compensating reload, which must see server truth
	c.invalidate(ctx, cache.KeyLeads)
	if err != nil {
		return nil, err
	}
	return &change, nil
}

// AssignLead hands a lead to userID
func (c *Client) AssignLead(ctx context.Context, leadID, userID string) (*models.Assignment, error) {
	var a models.Assignment
	path := "/v1/leads/" + url.PathEscape(leadID) + "/assignee"
	if err := c.do(ctx, http.MethodPatch, path, nil, map[string]string{"user_id": userID}, &a); err != nil {
		return nil, err
	}
	c.invalidate(ctx, cache.KeyLeads)
	return &a, nil
}

// AddComment appends a comment to a lead
func (c *Client) AddComment(ctx context.Context, leadID, text string) (*models.Comment, error) {
	var comment models.Comment
	path := "/v1/leads/" + url.PathEscape(leadID) + "/comments"
	if err := c.do(ctx, http.MethodPost, path, nil, map[string]string{"text": text}, &comment); err != nil {
		return nil, err
	}
	c.invalidate(ctx, cache.CommentsKey(leadID))
	return &comment, nil
}

// ExistingIDs returns which of ids the server already stores
func (c *Client) ExistingIDs(ctx context.Context, ids []string) ([]string, error) {
	var body struct {
		IDs []string `json:"ids"`
	}
	if err := c.do(ctx, http.MethodPost, "/v1/leads/existing", nil, models.ExistingRequest{IDs: ids}, &body); err != nil {
		return nil, err
	}
	return body.IDs, nil
}

// ImportLeads sends one batch of rows
func (c *Client) ImportLeads(ctx context.Context, batch []models.LeadInput) (*models.ImportResult, error) {
	var result models.ImportResult
	if err := c.do(ctx, http.MethodPost, "/v1/leads/import", nil, models.ImportRequest{Leads: batch}, &result); err != nil {
		return nil, err
	}
	if result.Added > 0 {
		c.invalidate(ctx, cache.KeyLeads)
	}
	return &result, nil
}
