package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/mossy-p/call-signaling/internal/logging"
	"github.com/mossy-p/call-signaling/internal/middleware"
	"github.com/mossy-p/call-signaling/internal/models"
	"github.com/mossy-p/call-signaling/internal/rooms"
	"github.com/mossy-p/call-signaling/internal/transport"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakePresence struct {
	n   int64
	err error
}

func (f fakePresence) Count(context.Context, string) (int64, error) {
	return f.n, f.err
}

type fixedConns int

func (f fixedConns) Len() int { return int(f) }

func do(r *gin.Engine, method, path, body string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestGetRoom(t *testing.T) {
	registry := rooms.NewRegistry()
	registry.Join("lobby", "a")
	registry.Join("lobby", "b")

	cases := []struct {
		name     string
		presence PresenceCounter
		room     string
		members  int
		cluster  *int64
	}{
		{name: "local only", room: "lobby", members: 2},
		{name: "unknown room", room: "nowhere", members: 0},
		{name: "with presence", presence: fakePresence{n: 5}, room: "lobby", members: 2, cluster: ptr(int64(5))},
		{name: "presence down", presence: fakePresence{err: errors.New("down")}, room: "lobby", members: 2},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := gin.New()
			r.GET("/api/rooms/:roomId", GetRoom(registry, tc.presence))

			w := do(r, http.MethodGet, "/api/rooms/"+tc.room, "", nil)
			if w.Code != http.StatusOK {
				t.Fatalf("status=%d", w.Code)
			}
			var info models.RoomInfo
			if err := json.Unmarshal(w.Body.Bytes(), &info); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if info.ID != tc.room || info.Members != tc.members {
				t.Fatalf("info=%+v", info)
			}
			switch {
			case tc.cluster == nil && info.ClusterMembers != nil:
				t.Fatalf("clusterMembers=%d, want absent", *info.ClusterMembers)
			case tc.cluster != nil && (info.ClusterMembers == nil || *info.ClusterMembers != *tc.cluster):
				t.Fatalf("clusterMembers=%v, want %d", info.ClusterMembers, *tc.cluster)
			}
		})
	}
}

func ptr[T any](v T) *T { return &v }

func TestLoginAndListRooms(t *testing.T) {
	const secret = "s3cret"
	registry := rooms.NewRegistry()
	registry.Join("r1", "a")

	r := gin.New()
	r.POST("/api/auth/login", Login(secret, "hunter2"))
	admin := r.Group("/api/admin", middleware.JWTAuth(secret))
	admin.GET("/rooms", ListRooms(registry, fixedConns(3)))

	if w := do(r, http.MethodGet, "/api/admin/rooms", "", nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous list status=%d, want 401", w.Code)
	}
	if w := do(r, http.MethodPost, "/api/auth/login", `{"username":"ops","password":"wrong"}`, nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("bad password status=%d, want 401", w.Code)
	}
	if w := do(r, http.MethodPost, "/api/auth/login", `{"username":"ops"}`, nil); w.Code != http.StatusBadRequest {
		t.Fatalf("missing password status=%d, want 400", w.Code)
	}

	w := do(r, http.MethodPost, "/api/auth/login", `{"username":"ops","password":"hunter2"}`, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("login status=%d body=%s", w.Code, w.Body.String())
	}
	var login LoginResponse
	if err := json.Unmarshal(w.Body.Bytes(), &login); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if login.Operator != "ops" || login.Token == "" {
		t.Fatalf("login=%+v", login)
	}

	w = do(r, http.MethodGet, "/api/admin/rooms", "", map[string]string{"Authorization": "Bearer " + login.Token})
	if w.Code != http.StatusOK {
		t.Fatalf("list status=%d", w.Code)
	}
	var stats models.RoomStats
	if err := json.Unmarshal(w.Body.Bytes(), &stats); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if stats.Connections != 3 || len(stats.Rooms) != 1 || stats.Rooms[0].ID != "r1" || stats.Rooms[0].Members != 1 {
		t.Fatalf("stats=%+v", stats)
	}
}

func TestLoginDisabledWithoutPassword(t *testing.T) {
	r := gin.New()
	r.POST("/api/auth/login", Login("secret", ""))

	w := do(r, http.MethodPost, "/api/auth/login", `{"username":"ops","password":""}`, nil)
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status=%d, want 503", w.Code)
	}
}

func TestOriginFilter(t *testing.T) {
	r := gin.New()
	r.Use(OriginFilter([]string{"http://app.example"}))
	r.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })

	if w := do(r, http.MethodGet, "/health", "", nil); w.Code != http.StatusOK {
		t.Fatalf("no origin status=%d", w.Code)
	}

	w := do(r, http.MethodGet, "/health", "", map[string]string{"Origin": "http://app.example"})
	if w.Code != http.StatusOK || w.Header().Get("Access-Control-Allow-Origin") != "http://app.example" {
		t.Fatalf("allowed origin status=%d headers=%v", w.Code, w.Header())
	}

	if w := do(r, http.MethodGet, "/health", "", map[string]string{"Origin": "http://evil.example"}); w.Code != http.StatusForbidden {
		t.Fatalf("foreign origin status=%d, want 403", w.Code)
	}

	if w := do(r, http.MethodOptions, "/health", "", map[string]string{"Origin": "http://app.example"}); w.Code != http.StatusNoContent {
		t.Fatalf("preflight status=%d, want 204", w.Code)
	}
}

func TestOriginFilterWildcard(t *testing.T) {
	r := gin.New()
	r.Use(OriginFilter([]string{"*"}))
	r.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })

	if w := do(r, http.MethodGet, "/health", "", map[string]string{"Origin": "http://anything.example"}); w.Code != http.StatusOK {
		t.Fatalf("status=%d, want 200", w.Code)
	}
}

func TestHandleSignalingUpgrades(t *testing.T) {
	srv := transport.NewServer(transport.WithLogger(logging.Discard()))
	defer srv.Close()

	r := gin.New()
	r.GET("/ws/signal", HandleSignaling(srv))
	ts := httptest.NewServer(r)
	defer ts.Close()

	ws, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws/signal", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer ws.Close()

	var frame models.Frame
	if err := ws.ReadJSON(&frame); err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	if frame.Event != models.EventConnected {
		t.Fatalf("first event=%q, want %q", frame.Event, models.EventConnected)
	}
}
