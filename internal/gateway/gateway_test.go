package gateway

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/campuswatch/campuswatch/internal/intra"
	"github.com/campuswatch/campuswatch/internal/store"
)

// mockAuthorizer scripts the OAuth exchange.
type mockAuthorizer struct {
	token    string
	authErr  error
	me       *intra.Peer
	meErr    error
	gotCodes []string
}

func (m *mockAuthorizer) Authorize(_ context.Context, code string) (string, error) {
	m.gotCodes = append(m.gotCodes, code)
	return m.token, m.authErr
}

func (m *mockAuthorizer) GetMe(_ context.Context, _ string) (*intra.Peer, error) {
	return m.me, m.meErr
}

// mockUsers is an in-memory UserStore.
type mockUsers struct {
	mu    sync.Mutex
	users map[int64]store.User
}

func (m *mockUsers) GetUser(_ context.Context, id int64) (*store.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[id]; ok {
		return &u, nil
	}
	return nil, nil
}

func (m *mockUsers) UpsertUser(_ context.Context, u store.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.users == nil {
		m.users = make(map[int64]store.User)
	}
	m.users[u.ID] = u
	return nil
}

func newTestGateway(auth *mockAuthorizer, users *mockUsers) http.Handler {
	g := New(":0", auth, users, nil)
	return g.buildRouter()
}

func TestGateway_Health(t *testing.T) {
	t.Parallel()

	h := newTestGateway(&mockAuthorizer{}, &mockUsers{})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"ok"`) {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestGateway_Metrics(t *testing.T) {
	t.Parallel()

	h := newTestGateway(&mockAuthorizer{}, &mockUsers{})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestGateway_Callback_LinksUser(t *testing.T) {
	t.Parallel()

	auth := &mockAuthorizer{token: "personal-tok", me: &intra.Peer{Login: "alice"}}
	users := &mockUsers{}
	h := newTestGateway(auth, users)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/oauth/callback?code=abc&state=42", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if len(auth.gotCodes) != 1 || auth.gotCodes[0] != "abc" {
		t.Errorf("codes = %v", auth.gotCodes)
	}
	u, _ := users.GetUser(context.Background(), 42)
	if u == nil || u.Login != "alice" {
		t.Errorf("linked user = %+v", u)
	}
}

func TestGateway_Callback_KeepsExistingSettings(t *testing.T) {
	t.Parallel()

	auth := &mockAuthorizer{token: "personal-tok", me: &intra.Peer{Login: "alice-new"}}
	users := &mockUsers{users: map[int64]store.User{
		42: {ID: 42, Login: "alice-old", Language: "fr", Notify: true, LeftNotice: true},
	}}
	h := newTestGateway(auth, users)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/oauth/callback?code=abc&state=42", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	u, _ := users.GetUser(context.Background(), 42)
	if u.Login != "alice-new" {
		t.Errorf("login = %q, want relinked", u.Login)
	}
	if u.Language != "fr" || !u.Notify || !u.LeftNotice {
		t.Errorf("settings lost on relink: %+v", u)
	}
}

func TestGateway_Callback_MissingCode(t *testing.T) {
	t.Parallel()

	h := newTestGateway(&mockAuthorizer{}, &mockUsers{})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/oauth/callback?state=42", nil))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestGateway_Callback_BadState(t *testing.T) {
	t.Parallel()

	h := newTestGateway(&mockAuthorizer{}, &mockUsers{})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/oauth/callback?code=abc&state=notanumber", nil))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestGateway_Callback_ExchangeFailure(t *testing.T) {
	t.Parallel()

	auth := &mockAuthorizer{authErr: errors.New("invalid code")}
	h := newTestGateway(auth, &mockUsers{})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/oauth/callback?code=bad&state=42", nil))

	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", rec.Code)
	}
}
