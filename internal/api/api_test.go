package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/leadboard/internal/api"
	"github.com/leadboard/internal/config"
	"github.com/leadboard/internal/events"
	"github.com/leadboard/internal/mocks"
	"github.com/leadboard/internal/models"
	"github.com/leadboard/internal/service"
	"github.com/rs/zerolog"
)

const (
	adminToken = "admin-token"
	salesToken = "sales-token"
)

type testDeps struct {
	router   *gin.Engine
	auth     *mocks.MockAuthService
	leads    *mocks.MockLeadService
	comments *mocks.MockCommentService
	imports  *mocks.MockImportService
	exports  *mocks.MockExportService
}

func setupTestRouter(hub *events.Hub) *testDeps {
	gin.SetMode(gin.TestMode)

	d := &testDeps{
		auth:     mocks.NewMockAuthService(),
		leads:    mocks.NewMockLeadService(),
		comments: mocks.NewMockCommentService(),
		imports:  mocks.NewMockImportService(),
		exports:  mocks.NewMockExportService(),
	}
	d.auth.Tokens[adminToken] = &models.User{ID: "admin-1", Username: "admin", Name: "Admin", Role: models.RoleAdmin}
	d.auth.Tokens[salesToken] = &models.User{ID: "sales-1", Username: "asha", Name: "Asha", Role: models.RoleSalesTeam}

	services := &service.Services{
		Auth:    d.auth,
		Lead:    d.leads,
		Comment: d.comments,
		Import:  d.imports,
		Export:  d.exports,
	}

	cfg := &config.Config{
		Server: config.ServerConfig{Port: "8080", AllowedOrigins: []string{"*"}},
	}

	d.router = api.NewRouter(services, hub, cfg, zerolog.Nop())
	return d
}

func (d *testDeps) do(method, path, token string, body interface{}) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	d.router.ServeHTTP(w, req)
	return w
}

func errorMessage(w *httptest.ResponseRecorder) string {
	var body map[string]string
	json.Unmarshal(w.Body.Bytes(), &body)
	return body["error"]
}

func TestHealthEndpoint(t *testing.T) {
	d := setupTestRouter(nil)

	w := d.do("GET", "/health", "", nil)
	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}

	var response map[string]interface{}
	json.Unmarshal(w.Body.Bytes(), &response)

	if response["status"] != "healthy" {
		t.Errorf("Expected status 'healthy', got %v", response["status"])
	}
	if response["service"] != "leadboard" {
		t.Errorf("Expected service name, got %v", response["service"])
	}
}

func TestMetricsEndpoint(t *testing.T) {
	d := setupTestRouter(nil)
	d.leads.Leads["L1"] = &models.Lead{ID: "L1", StatusID: "new"}
	d.leads.Leads["L2"] = &models.Lead{ID: "L2", StatusID: "new"}
	d.leads.Leads["L3"] = &models.Lead{ID: "L3", StatusID: "won"}

	w := d.do("GET", "/metrics", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	var response struct {
		Leads struct {
			Total    int            `json:"total"`
			ByStatus map[string]int `json:"by_status"`
		} `json:"leads"`
	}
	json.Unmarshal(w.Body.Bytes(), &response)

	if response.Leads.Total != 3 {
		t.Errorf("Expected 3 leads, got %d", response.Leads.Total)
	}
	if response.Leads.ByStatus["new"] != 2 {
		t.Errorf("Expected 2 new leads, got %d", response.Leads.ByStatus["new"])
	}
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	d := setupTestRouter(nil)

	paths := []string{"/v1/statuses", "/v1/users", "/v1/leads", "/v1/leads/L1", "/v1/leads/L1/comments"}
	for _, path := range paths {
		w := d.do("GET", path, "", nil)
		if w.Code != http.StatusUnauthorized {
			t.Errorf("%s without token: expected 401, got %d", path, w.Code)
		}

		w = d.do("GET", path, "bogus", nil)
		if w.Code != http.StatusUnauthorized {
			t.Errorf("%s with bad token: expected 401, got %d", path, w.Code)
		}
	}
}

func TestLogin(t *testing.T) {
	d := setupTestRouter(nil)

	w := d.do("POST", "/v1/auth/login", "", models.LoginRequest{Username: "asha", Password: "secret"})
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp models.LoginResponse
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Token != salesToken || resp.User.Role != models.RoleSalesTeam {
		t.Errorf("Unexpected login response: %+v", resp)
	}

	w = d.do("POST", "/v1/auth/login", "", models.LoginRequest{Username: "asha", Password: "nope"})
	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 for bad password, got %d", w.Code)
	}

	w = d.do("POST", "/v1/auth/login", "", map[string]string{"username": "asha"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for missing password, got %d", w.Code)
	}
}

func TestListLeads_PassesFilter(t *testing.T) {
	d := setupTestRouter(nil)
	d.leads.ListLeadsFunc = func(ctx context.Context, actor *models.User, filter models.LeadFilter) (*models.LeadPage, error) {
		return &models.LeadPage{
			Leads:    []models.Lead{{ID: "L9", StatusID: filter.StatusID}},
			Total:    41,
			Page:     filter.Page,
			PageSize: filter.PageSize,
		}, nil
	}

	w := d.do("GET", "/v1/leads?page=3&page_size=10&status_id=new&assigned_user_id=sales-1&ad_name=Diwali", adminToken, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	want := models.LeadFilter{StatusID: "new", AssignedTo: "sales-1", AdName: "Diwali", Page: 3, PageSize: 10}
	if d.leads.LastFilter != want {
		t.Errorf("Expected filter %+v, got %+v", want, d.leads.LastFilter)
	}

	var page models.LeadPage
	json.Unmarshal(w.Body.Bytes(), &page)
	if page.Total != 41 || len(page.Leads) != 1 || page.Leads[0].ID != "L9" {
		t.Errorf("Unexpected page: %+v", page)
	}
}

func TestListLeads_InvalidPaging(t *testing.T) {
	d := setupTestRouter(nil)

	tests := []string{
		"/v1/leads?page=0",
		"/v1/leads?page=abc",
		"/v1/leads?page_size=0",
		"/v1/leads?page_size=201",
	}
	for _, path := range tests {
		w := d.do("GET", path, adminToken, nil)
		if w.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", path, w.Code)
		}
	}
}

func TestUpdateStatus_ErrorMapping(t *testing.T) {
	d := setupTestRouter(nil)

	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"success", nil, http.StatusOK},
		{"unknown lead", service.ErrNotFound, http.StatusNotFound},
		{"not your lead", service.ErrForbidden, http.StatusForbidden},
		{"unknown status", service.ErrInvalidInput, http.StatusBadRequest},
		{"database down", context.DeadlineExceeded, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d.leads.UpdateStatusFunc = func(ctx context.Context, actor *models.User, leadID, statusID string) (*models.StatusChange, error) {
				if tt.err != nil {
					return nil, tt.err
				}
				return &models.StatusChange{LeadID: leadID, StatusID: statusID}, nil
			}

			w := d.do("PATCH", "/v1/leads/L1/status", salesToken, map[string]string{"status_id": "won"})
			if w.Code != tt.wantStatus {
				t.Errorf("Expected %d, got %d", tt.wantStatus, w.Code)
			}
			if tt.wantStatus == http.StatusInternalServerError && errorMessage(w) != "Internal server error" {
				t.Errorf("Internal errors should not leak, got %q", errorMessage(w))
			}
		})
	}

	w := d.do("PATCH", "/v1/leads/L1/status", salesToken, map[string]string{})
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for missing status_id, got %d", w.Code)
	}
}

func TestAssign(t *testing.T) {
	d := setupTestRouter(nil)
	d.leads.AssignFunc = func(ctx context.Context, actor *models.User, leadID, userID string) (*models.Assignment, error) {
		if !actor.IsAdmin() {
			return nil, service.ErrForbidden
		}
		return &models.Assignment{LeadID: leadID, UserID: userID}, nil
	}

	w := d.do("PATCH", "/v1/leads/L1/assignee", salesToken, map[string]string{"user_id": "sales-2"})
	if w.Code != http.StatusForbidden {
		t.Errorf("Expected 403 for SalesTeam, got %d", w.Code)
	}

	w = d.do("PATCH", "/v1/leads/L1/assignee", adminToken, map[string]string{"user_id": "sales-2"})
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200 for Admin, got %d", w.Code)
	}
	var got models.Assignment
	json.Unmarshal(w.Body.Bytes(), &got)
	if got.LeadID != "L1" || got.UserID != "sales-2" {
		t.Errorf("Unexpected assignment: %+v", got)
	}
}

func TestComments(t *testing.T) {
	d := setupTestRouter(nil)

	w := d.do("POST", "/v1/leads/L1/comments", salesToken, map[string]string{"text": "called twice"})
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d", w.Code)
	}

	w = d.do("GET", "/v1/leads/L1/comments", salesToken, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	var body struct {
		Comments []models.Comment `json:"comments"`
	}
	json.Unmarshal(w.Body.Bytes(), &body)
	if len(body.Comments) != 1 || body.Comments[0].UserName != "Asha" {
		t.Errorf("Unexpected comments: %+v", body.Comments)
	}
}

func TestImportEndpoints(t *testing.T) {
	d := setupTestRouter(nil)
	d.imports.Existing = []string{"L1"}

	w := d.do("POST", "/v1/leads/existing", salesToken, models.ExistingRequest{IDs: []string{"L1"}})
	if w.Code != http.StatusForbidden {
		t.Errorf("Expected 403 for SalesTeam precheck, got %d", w.Code)
	}

	w = d.do("POST", "/v1/leads/existing", adminToken, models.ExistingRequest{IDs: []string{"L1", "L2"}})
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	var existing struct {
		IDs []string `json:"ids"`
	}
	json.Unmarshal(w.Body.Bytes(), &existing)
	if len(existing.IDs) != 1 || existing.IDs[0] != "L1" {
		t.Errorf("Unexpected ids: %v", existing.IDs)
	}

	w = d.do("POST", "/v1/leads/import", adminToken, models.ImportRequest{Leads: []models.LeadInput{
		{ID: "N1", Name: "One"}, {ID: "N2", Name: "Two"},
	}})
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	var result models.ImportResult
	json.Unmarshal(w.Body.Bytes(), &result)
	if result.Added != 2 {
		t.Errorf("Expected 2 added, got %d", result.Added)
	}

	w = d.do("POST", "/v1/leads/import", adminToken, "not an object")
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for malformed body, got %d", w.Code)
	}
}

func TestExportStream(t *testing.T) {
	d := setupTestRouter(nil)
	var gotFormat string
	d.exports.StreamLeadsFunc = func(ctx context.Context, w http.ResponseWriter, format string) error {
		gotFormat = format
		w.Header().Set("Content-Type", "text/csv")
		w.Write([]byte("id\nL1\n"))
		return nil
	}

	w := d.do("GET", "/v1/leads/export?format=csv", salesToken, nil)
	if w.Code != http.StatusForbidden {
		t.Errorf("Expected 403 for SalesTeam export, got %d", w.Code)
	}

	w = d.do("GET", "/v1/leads/export?format=xml", adminToken, nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for unknown format, got %d", w.Code)
	}

	w = d.do("GET", "/v1/leads/export?format=csv", adminToken, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	if gotFormat != "csv" || w.Body.String() != "id\nL1\n" {
		t.Errorf("Unexpected export: format=%q body=%q", gotFormat, w.Body.String())
	}
}

func TestCORSPreflight(t *testing.T) {
	d := setupTestRouter(nil)

	req := httptest.NewRequest("OPTIONS", "/v1/leads", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", "PATCH")
	req.Header.Set("Access-Control-Request-Headers", "Authorization")
	w := httptest.NewRecorder()
	d.router.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("Expected 204 for preflight, got %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Expected Access-Control-Allow-Origin *, got %q", got)
	}
}

func TestEvents_DisabledWithoutHub(t *testing.T) {
	d := setupTestRouter(nil)

	w := d.do("GET", "/v1/events", adminToken, nil)
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected 503, got %d", w.Code)
	}
}

func TestEvents_StreamDeliversLeadUpdates(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := events.NewHub(zerolog.Nop())
	go hub.Run(ctx)

	d := setupTestRouter(hub)
	srv := httptest.NewServer(d.router)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/events"

	if _, resp, err := websocket.DefaultDialer.Dial(wsURL, nil); err == nil || resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("Expected 401 without token, got err=%v resp=%v", err, resp)
	}

	conn, _, err := websocket.DefaultDialer.Dial(wsURL+"?token="+adminToken, nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer conn.Close()

	// registration happens in the handler goroutine; publish until the event arrives
	e, _ := events.LeadUpdated(&models.Lead{ID: "L1", StatusID: "won"})
	received := make(chan events.Event, 1)
	go func() {
		var got events.Event
		if err := conn.ReadJSON(&got); err == nil {
			received <- got
		}
	}()

	deadline := time.After(2 * time.Second)
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case got := <-received:
			if got.Type != events.TypeLeadUpdated {
				t.Errorf("Expected %s, got %s", events.TypeLeadUpdated, got.Type)
			}
			return
		case <-ticker.C:
			hub.Publish(e)
		case <-deadline:
			t.Fatal("No event received")
		}
	}
}
