package client

import (
	"bytes"
	"context"
	"errors"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/leadboard/internal/cache"
	"github.com/leadboard/internal/events"
	"github.com/leadboard/internal/models"
	"github.com/leadboard/internal/session"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memStore keeps the session in memory
type memStore struct {
	mu sync.Mutex
	s  *session.Session
}

func (m *memStore) Load(ctx context.Context) (*session.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.s, nil
}

func (m *memStore) Save(ctx context.Context, s *session.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.s = s
	return nil
}

func (m *memStore) Delete(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.s = nil
	return nil
}

// fakeAPI records hits per route and checks the bearer token
type fakeAPI struct {
	mu    sync.Mutex
	hits  map[string]int
	token string
	delay time.Duration
}

func (f *fakeAPI) hit(route string) {
	f.mu.Lock()
	f.hits[route]++
	f.mu.Unlock()
}

func (f *fakeAPI) set(token string, delay time.Duration) {
	f.mu.Lock()
	f.token, f.delay = token, delay
	f.mu.Unlock()
}

func (f *fakeAPI) current() (string, time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.token, f.delay
}

func (f *fakeAPI) count(route string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hits[route]
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func newFakeAPI(t *testing.T) (*fakeAPI, *httptest.Server) {
	t.Helper()
	f := &fakeAPI{hits: make(map[string]int), token: "tok-1"}

	authed := func(route string, h http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			f.hit(route)
			token, delay := f.current()
			if delay > 0 {
				time.Sleep(delay)
			}
			if r.Header.Get("Authorization") != "Bearer "+token {
				writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid token"})
				return
			}
			h(w, r)
		}
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/auth/login", func(w http.ResponseWriter, r *http.Request) {
		f.hit("login")
		var req models.LoginRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.Password != "secret" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid username or password"})
			return
		}
		token, _ := f.current()
		writeJSON(w, http.StatusOK, models.LoginResponse{
			Token: token,
			User:  models.User{ID: "u1", Username: req.Username, Name: "Asha", Role: models.RoleAdmin},
		})
	})
	mux.HandleFunc("/v1/statuses", authed("statuses", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{"statuses": []models.Status{
			{ID: "new", Name: "New", Order: 1}, {ID: "won", Name: "Won", Order: 2},
		}})
	}))
	mux.HandleFunc("/v1/users", authed("users", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{"users": []models.User{{ID: "u2", Role: r.URL.Query().Get("role")}}})
	}))
	mux.HandleFunc("/v1/leads", authed("leads", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		writeJSON(w, http.StatusOK, models.LeadPage{
			Leads:    []models.Lead{{ID: "L1", StatusID: q.Get("status_id")}},
			Total:    1,
			Page:     1,
			PageSize: 20,
		})
	}))
	mux.HandleFunc("/v1/leads/existing", authed("existing", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{"ids": []string{"L1"}})
	}))
	mux.HandleFunc("/v1/leads/import", authed("import", func(w http.ResponseWriter, r *http.Request) {
		var req models.ImportRequest
		json.NewDecoder(r.Body).Decode(&req)
		writeJSON(w, http.StatusOK, models.ImportResult{Added: len(req.Leads)})
	}))
	mux.HandleFunc("/v1/leads/L1/status", authed("status", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		if body["status_id"] == "bogus" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": `unknown status "bogus"`})
			return
		}
		writeJSON(w, http.StatusOK, models.StatusChange{LeadID: "L1", StatusID: body["status_id"]})
	}))
	mux.HandleFunc("/v1/leads/L1/assignee", authed("assignee", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		writeJSON(w, http.StatusOK, models.Assignment{LeadID: "L1", UserID: body["user_id"]})
	}))
	mux.HandleFunc("/v1/leads/L1/comments", authed("comments", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			writeJSON(w, http.StatusCreated, models.Comment{ID: "c1", LeadID: "L1", Text: "hi"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"comments": []models.Comment{{ID: "c0", LeadID: "L1"}}})
	}))

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return f, srv
}

func newTestClient(t *testing.T, baseURL string, timeout time.Duration) *Client {
	t.Helper()
	sess := session.NewManager(&memStore{}, zerolog.Nop())
	require.NoError(t, sess.Init(context.Background()))
	c, err := New(Options{BaseURL: baseURL, Timeout: timeout}, sess, zerolog.Nop())
	require.NoError(t, err)
	return c
}

func loggedIn(t *testing.T, c *Client) {
	t.Helper()
	_, err := c.Login(context.Background(), "asha", "secret")
	require.NoError(t, err)
}

func TestNew_RequiresBaseURL(t *testing.T) {
	_, err := New(Options{}, session.NewManager(&memStore{}, zerolog.Nop()), zerolog.Nop())
	assert.Error(t, err)
}

func TestLogin_StartsSession(t *testing.T) {
	_, srv := newFakeAPI(t)
	c := newTestClient(t, srv.URL, 0)

	resp, err := c.Login(context.Background(), "asha", "secret")
	require.NoError(t, err)
	assert.Equal(t, "tok-1", resp.Token)
	assert.Equal(t, "tok-1", c.Session().Token())
	assert.Equal(t, models.RoleAdmin, c.Session().User().Role)
}

func TestLogin_BadCredentialsIsRejection(t *testing.T) {
	_, srv := newFakeAPI(t)
	c := newTestClient(t, srv.URL, 0)

	_, err := c.Login(context.Background(), "asha", "wrong")
	require.Error(t, err)
	assert.Equal(t, KindRejected, Classify(err))

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
	assert.Equal(t, "invalid username or password", apiErr.Message)
	assert.Nil(t, c.Session().Current())
}

// unclearable is a cache whose Clear always fails
type unclearable struct {
	cache.Cache
}

func (unclearable) Clear(ctx context.Context) error {
	return errors.New("store offline")
}

func TestCacheClearFailuresAreLogged(t *testing.T) {
	_, srv := newFakeAPI(t)
	var logs bytes.Buffer
	sess := session.NewManager(&memStore{}, zerolog.Nop())
	require.NoError(t, sess.Init(context.Background()))
	c, err := New(Options{BaseURL: srv.URL, Cache: unclearable{cache.NewMemory()}}, sess, zerolog.New(&logs))
	require.NoError(t, err)

	_, err = c.Login(context.Background(), "asha", "secret")
	require.NoError(t, err)
	require.NoError(t, c.Logout(context.Background()))

	assert.Nil(t, c.Session().User(), "the session still ends")
	assert.Equal(t, 2, strings.Count(logs.String(), "cache clear failed"))
	assert.Contains(t, logs.String(), "store offline")
}

func TestReadsAreMemoized(t *testing.T) {
	f, srv := newFakeAPI(t)
	c := newTestClient(t, srv.URL, 0)
	loggedIn(t, c)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		statuses, err := c.ListStatuses(ctx)
		require.NoError(t, err)
		assert.Len(t, statuses, 2)
	}
	assert.Equal(t, 1, f.count("statuses"))

	filter := models.LeadFilter{StatusID: "new", Page: 1, PageSize: 20}
	_, err := c.ListLeads(ctx, filter)
	require.NoError(t, err)
	_, err = c.ListLeads(ctx, filter)
	require.NoError(t, err)
	assert.Equal(t, 1, f.count("leads"))

	// A different filter is a different key
	page, err := c.ListLeads(ctx, models.LeadFilter{StatusID: "won", Page: 1, PageSize: 20})
	require.NoError(t, err)
	assert.Equal(t, "won", page.Leads[0].StatusID)
	assert.Equal(t, 2, f.count("leads"))

	users, err := c.ListUsers(ctx, models.RoleSalesTeam)
	require.NoError(t, err)
	assert.Equal(t, models.RoleSalesTeam, users[0].Role)
}

func TestMutationsInvalidateRelatedReads(t *testing.T) {
	f, srv := newFakeAPI(t)
	c := newTestClient(t, srv.URL, 0)
	loggedIn(t, c)
	ctx := context.Background()
	filter := models.LeadFilter{StatusID: "new", Page: 1, PageSize: 20}

	_, err := c.ListLeads(ctx, filter)
	require.NoError(t, err)
	_, err = c.ListComments(ctx, "L1")
	require.NoError(t, err)

	change, err := c.UpdateLeadStatus(ctx, "L1", "won")
	require.NoError(t, err)
	assert.Equal(t, "won", change.StatusID)

	_, err = c.ListLeads(ctx, filter)
	require.NoError(t, err)
	assert.Equal(t, 2, f.count("leads"), "status change drops lead pages")

	_, err = c.ListComments(ctx, "L1")
	require.NoError(t, err)
	assert.Equal(t, 1, f.count("comments"), "status change keeps comments")

	_, err = c.AddComment(ctx, "L1", "hi")
	require.NoError(t, err)
	_, err = c.ListComments(ctx, "L1")
	require.NoError(t, err)
	assert.Equal(t, 3, f.count("comments"), "one POST plus a fresh GET")

	_, err = c.AssignLead(ctx, "L1", "u2")
	require.NoError(t, err)
	_, err = c.ListLeads(ctx, filter)
	require.NoError(t, err)
	assert.Equal(t, 3, f.count("leads"))

	result, err := c.ImportLeads(ctx, []models.LeadInput{{ID: "N1", Name: "n"}})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Added)
	_, err = c.ListLeads(ctx, filter)
	require.NoError(t, err)
	assert.Equal(t, 4, f.count("leads"))
}

func TestRejectionIsSurfaced(t *testing.T) {
	_, srv := newFakeAPI(t)
	c := newTestClient(t, srv.URL, 0)
	loggedIn(t, c)

	_, err := c.UpdateLeadStatus(context.Background(), "L1", "bogus")
	require.Error(t, err)
	assert.Equal(t, KindRejected, Classify(err))
	assert.Contains(t, err.Error(), `unknown status "bogus"`)
	assert.NotNil(t, c.Session().Current(), "a rejection keeps the session")
}

func TestUnauthorizedTearsSessionDown(t *testing.T) {
	f, srv := newFakeAPI(t)
	c := newTestClient(t, srv.URL, 0)
	loggedIn(t, c)
	ctx := context.Background()

	_, err := c.ListStatuses(ctx)
	require.NoError(t, err)

	f.set("rotated", 0)
	_, err = c.ListLeads(ctx, models.LeadFilter{Page: 1, PageSize: 20})
	require.ErrorIs(t, err, ErrUnauthorized)
	assert.Equal(t, KindUnauthorized, Classify(err))
	assert.Nil(t, c.Session().Current())
	assert.Empty(t, c.Session().Token())

	// Memoized reads went with the session
	_, err = c.ListStatuses(ctx)
	require.ErrorIs(t, err, ErrUnauthorized)
	assert.Equal(t, 2, f.count("statuses"))
}

func TestTimeoutIsNetworkFailure(t *testing.T) {
	f, srv := newFakeAPI(t)
	c := newTestClient(t, srv.URL, 50*time.Millisecond)
	loggedIn(t, c)
	f.set("tok-1", 200*time.Millisecond)

	_, err := c.ListStatuses(context.Background())
	require.Error(t, err)
	assert.Equal(t, KindNetwork, Classify(err))
	assert.Equal(t, 1, f.count("statuses"), "no automatic retry")
}

func TestUnreachableServerIsNetworkFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := newTestClient(t, url, time.Second)
	_, err := c.ListStatuses(context.Background())
	require.Error(t, err)
	assert.Equal(t, KindNetwork, Classify(err))
}

func TestClassify(t *testing.T) {
	assert.Equal(t, KindNone, Classify(nil))
	assert.Equal(t, "rejected", Classify(&APIError{Status: 404}).String())
	assert.Equal(t, "unauthorized", KindUnauthorized.String())
}

func TestExistingIDs(t *testing.T) {
	_, srv := newFakeAPI(t)
	c := newTestClient(t, srv.URL, 0)
	loggedIn(t, c)

	ids, err := c.ExistingIDs(context.Background(), []string{"L1", "L2"})
	require.NoError(t, err)
	assert.Equal(t, []string{"L1"}, ids)
}

func TestSubscribe(t *testing.T) {
	upgrader := websocket.Upgrader{}
	gotAuth := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/events" {
			http.NotFound(w, r)
			return
		}
		gotAuth <- r.Header.Get("Authorization")
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		e, _ := events.LeadUpdated(&models.Lead{ID: "L1", StatusID: "won"})
		conn.WriteJSON(e)
		conn.WriteJSON(events.LeadsImported(4))
		// Hold the connection until the client goes away
		conn.ReadMessage()
	}))
	defer srv.Close()

	sess := session.NewManager(&memStore{}, zerolog.Nop())
	require.NoError(t, sess.Begin(context.Background(), models.User{ID: "u1"}, "tok-1"))
	c, err := New(Options{BaseURL: srv.URL}, sess, zerolog.Nop())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var received []events.Event
	err = c.Subscribe(ctx, func(e events.Event) {
		received = append(received, e)
		if len(received) == 2 {
			cancel()
		}
	})
	require.NoError(t, err)
	require.Len(t, received, 2)
	assert.Equal(t, "Bearer tok-1", <-gotAuth)

	lead, err := received[0].Lead()
	require.NoError(t, err)
	assert.Equal(t, "won", lead.StatusID)
	assert.Equal(t, events.TypeLeadsImported, received[1].Type)
}

func TestSubscribe_Unauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid token"})
	}))
	defer srv.Close()

	sess := session.NewManager(&memStore{}, zerolog.Nop())
	require.NoError(t, sess.Begin(context.Background(), models.User{ID: "u1"}, "stale"))
	c, err := New(Options{BaseURL: srv.URL}, sess, zerolog.Nop())
	require.NoError(t, err)

	err = c.Subscribe(context.Background(), func(events.Event) {})
	require.ErrorIs(t, err, ErrUnauthorized)
	assert.Nil(t, sess.Current())
}

func TestEventsURL(t *testing.T) {
	c := &Client{baseURL: "https://api.example.com"}
	assert.Equal(t, "wss://api.example.com/v1/events", c.eventsURL())
	c.baseURL = "http://localhost:8080"
	assert.True(t, strings.HasPrefix(c.eventsURL(), "ws://localhost:8080"))
}
