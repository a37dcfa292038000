package app_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pkordes/transit-dispatch/internal/app"
	"github.com/pkordes/transit-dispatch/internal/config"
	"github.com/pkordes/transit-dispatch/internal/domain"
	"github.com/pkordes/transit-dispatch/testutil"
)

// ---- helpers ---------------------------------------------------------------

type env struct {
	app   *app.App
	srv   *httptest.Server
	store *testutil.MemStore
}

func newEnv(t *testing.T) *env {
	t.Helper()
	store := testutil.NewMemStore()
	cfg := config.Config{
		JWTSecret: "e2e-secret",
		Notifications: config.Notifications{
			QueueSize:           64,
			Workers:             1,
			SessionQueue:        16,
			WriteTimeoutSeconds: 5,
		},
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	a := app.New(cfg, app.Stores{
		Trips:       store.Trips(),
		Series:      store.Series(),
		Tags:        store.Tags(),
		Preferences: store.Preferences(),
		Programs:    store.Programs(),
		Users:       store.Users(),
	}, nil, logger)

	srv := httptest.NewServer(a.Handler)
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Error("app did not stop")
		}
	})

	return &env{app: a, srv: srv, store: store}
}

func (e *env) token(t *testing.T, id domain.Identity) string {
	t.Helper()
	tok, err := e.app.Tokens.Issue(id)
	require.NoError(t, err)
	return tok
}

func (e *env) call(t *testing.T, id domain.Identity, method, path string, body any) (int, []byte) {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, e.srv.URL+path, r)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.token(t, id))

	resp, err := e.srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	out, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, out
}

func (e *env) connect(t *testing.T, id domain.Identity) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(e.srv.URL, "http") + "/ws?access_token=" + e.token(t, id)
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	_ = resp.Body.Close()
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readEvents(t *testing.T, conn *websocket.Conn, n int) []domain.EventType {
	t.Helper()
	var got []domain.EventType
	for range n {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		var msg domain.Notification
		require.NoError(t, conn.ReadJSON(&msg))
		got = append(got, msg.Type)
	}
	return got
}

func assertSilent(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(300*time.Millisecond)))
	var msg domain.Notification
	err := conn.ReadJSON(&msg)
	require.Error(t, err, "unexpected notification %+v", msg)
}

// ---- tests -----------------------------------------------------------------

// TestDispatch_EndToEnd books a trip in P1/C1, lets an unassigned driver
// claim it, and runs it to completion while sessions in and out of scope
// listen.
func TestDispatch_EndToEnd(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	p1, err := e.store.Programs().Create(ctx, domain.Program{ID: uuid.New(), CorporateClientID: uuid.New(), Name: "P1"})
	require.NoError(t, err)
	p2, err := e.store.Programs().Create(ctx, domain.Program{ID: uuid.New(), CorporateClientID: uuid.New(), Name: "P2"})
	require.NoError(t, err)

	inP1 := func(role domain.Role) domain.Identity {
		return domain.Identity{UserID: uuid.New(), Role: role, ProgramID: p1.ID, CorporateClientID: p1.CorporateClientID}
	}
	admin := inP1(domain.RoleProgramAdmin)
	colleague := inP1(domain.RoleProgramUser)
	driver := inP1(domain.RoleDriver)
	outsider := domain.Identity{UserID: uuid.New(), Role: domain.RoleProgramAdmin, ProgramID: p2.ID, CorporateClientID: p2.CorporateClientID}

	adminWS := e.connect(t, admin)
	colleagueWS := e.connect(t, colleague)
	outsiderWS := e.connect(t, outsider)
	require.Eventually(t, func() bool { return e.app.Hub.Count() == 3 }, time.Second, 5*time.Millisecond)

	// Book an unassigned trip in P1.
	status, body := e.call(t, admin, http.MethodPost, "/trips", map[string]any{
		"program_id":      p1.ID,
		"client_id":       uuid.New(),
		"kind":            "one_way",
		"pickup_at":       time.Now().Add(24 * time.Hour).UTC(),
		"pickup_address":  "12 Elm St",
		"dropoff_address": "Clinic",
	})
	require.Equal(t, http.StatusCreated, status, string(body))
	var trip domain.Trip
	require.NoError(t, json.Unmarshal(body, &trip))
	assert.Equal(t, domain.StatusOrder, trip.Status)
	assert.Nil(t, trip.DriverID)
	path := "/trips/" + trip.ID.String()

	// Tag a colleague and a user of another tenant.
	for _, u := range []domain.Identity{colleague, outsider} {
		status, body = e.call(t, admin, http.MethodPost, path+"/tags", map[string]any{"user_id": u.UserID})
		require.Equal(t, http.StatusNoContent, status, string(body))
	}

	// The outsider cannot see the trip at all.
	status, _ = e.call(t, outsider, http.MethodGet, path, nil)
	assert.Equal(t, http.StatusNotFound, status)

	// Driver D claims the open order by confirming it.
	status, body = e.call(t, driver, http.MethodPost, path+"/transitions", map[string]any{"action": "confirm"})
	require.Equal(t, http.StatusOK, status, string(body))
	var result domain.TransitionResult
	require.NoError(t, json.Unmarshal(body, &result))
	assert.Equal(t, domain.StatusScheduled, result.NewStatus)
	assert.Equal(t, []uuid.UUID{trip.ID}, result.AppliedTripIDs)

	assert.Equal(t, []domain.EventType{domain.EventOrderConfirmed}, readEvents(t, adminWS, 1))
	assert.Equal(t, []domain.EventType{domain.EventOrderConfirmed}, readEvents(t, colleagueWS, 1))

	// Start with the client aboard, then complete.
	status, body = e.call(t, driver, http.MethodPost, path+"/transitions", map[string]any{
		"action": "start_trip",
		"params": map[string]any{"client_aboard": true},
	})
	require.Equal(t, http.StatusOK, status, string(body))
	status, body = e.call(t, driver, http.MethodPost, path+"/transitions", map[string]any{"action": "complete_trip"})
	require.Equal(t, http.StatusOK, status, string(body))
	require.NoError(t, json.Unmarshal(body, &result))
	assert.Equal(t, domain.StatusCompleted, result.NewStatus)

	assert.Equal(t,
		[]domain.EventType{domain.EventTripStarted, domain.EventTripCompleted},
		readEvents(t, adminWS, 2))
	assert.Equal(t,
		[]domain.EventType{domain.EventTripStarted, domain.EventClientOnboard, domain.EventTripCompleted},
		readEvents(t, colleagueWS, 3))

	// Nothing about a P1 trip ever reached the P2 session.
	assertSilent(t, outsiderWS)

	// A completed trip cannot be started again.
	status, body = e.call(t, driver, http.MethodPost, path+"/transitions", map[string]any{
		"action": "start_trip",
		"params": map[string]any{"client_aboard": true},
	})
	assert.Equal(t, http.StatusConflict, status)
	assert.Contains(t, string(body), "invalid_transition")

	status, body = e.call(t, admin, http.MethodGet, path, nil)
	require.Equal(t, http.StatusOK, status)
	require.NoError(t, json.Unmarshal(body, &trip))
	assert.Equal(t, domain.StatusCompleted, trip.Status)
	require.NotNil(t, trip.ClientOnboardAt)
	require.NotNil(t, trip.CompletedAt)
}

func TestDispatch_RejectsMissingToken(t *testing.T) {
	e := newEnv(t)

	resp, err := e.srv.Client().Get(e.srv.URL + "/trips")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	_, _, err = websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(e.srv.URL, "http")+"/ws", nil)
	assert.Error(t, err)
}

func TestDispatch_SessionsClosedOnShutdown(t *testing.T) {
	e := newEnv(t)
	id := domain.Identity{UserID: uuid.New(), Role: domain.RoleSuperAdmin}
	conn := e.connect(t, id)
	require.Eventually(t, func() bool { return e.app.Hub.Count() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, e.app.Hub.Shutdown(context.Background()))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
}
