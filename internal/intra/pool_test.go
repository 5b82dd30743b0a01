package intra

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

// tokenServer is a minimal client-credentials token endpoint. It hands
// out tokens derived from the client ID so tests can tell credentials
// apart, and counts grants per client.
func tokenServer(t *testing.T) (*httptest.Server, map[string]int) {
	t.Helper()

	grants := make(map[string]int)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		clientID, _, ok := r.BasicAuth()
		if !ok {
			_ = r.ParseForm()
			clientID = r.PostFormValue("client_id")
		}
		grants[clientID]++
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": fmt.Sprintf("tok-%s-%d", clientID, grants[clientID]),
			"token_type":   "bearer",
			"expires_in":   7200,
		})
	}))
	t.Cleanup(srv.Close)
	return srv, grants
}

func TestPool_Load(t *testing.T) {
	t.Parallel()

	srv, grants := tokenServer(t)
	p := NewPool([]Application{{UID: "a", Secret: "s1"}, {UID: "b", Secret: "s2"}}, srv.URL, slog.Default())

	if err := p.Load(context.Background()); err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if p.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", p.Len())
	}
	if grants["a"] != 1 || grants["b"] != 1 {
		t.Errorf("grants = %v, want one per credential", grants)
	}
}

func TestPool_Acquire_LeastRecentlyUsed(t *testing.T) {
	t.Parallel()

	p := NewPool([]Application{
		{UID: "a", Secret: "s"},
		{UID: "b", Secret: "s"},
		{UID: "c", Secret: "s"},
	}, "http://unused", slog.Default())

	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	p.creds[0].lastCall = base.Add(2 * time.Minute)
	p.creds[1].lastCall = base // oldest
	p.creds[2].lastCall = base.Add(time.Minute)

	clock := base.Add(10 * time.Minute)
	p.now = func() time.Time { return clock }

	got := p.Acquire()
	if got.UID() != "b" {
		t.Fatalf("Acquire() = %s, want b (oldest last call)", got.UID())
	}
	if !got.LastCall().Equal(clock) {
		t.Errorf("LastCall() = %v, want stamped to %v at acquire", got.LastCall(), clock)
	}

	// b is now the newest; the next acquire must pick c.
	if got := p.Acquire(); got.UID() != "c" {
		t.Errorf("second Acquire() = %s, want c", got.UID())
	}
}

func TestPool_Acquire_SpreadsLoad(t *testing.T) {
	t.Parallel()

	p := NewPool([]Application{
		{UID: "a", Secret: "s"},
		{UID: "b", Secret: "s"},
	}, "http://unused", slog.Default())

	clock := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	p.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}

	counts := make(map[string]int)
	for i := 0; i < 10; i++ {
		counts[p.Acquire().UID()]++
	}
	if counts["a"] != 5 || counts["b"] != 5 {
		t.Errorf("acquires = %v, want perfect alternation between two idle credentials", counts)
	}
}

func TestPool_Acquire_Empty(t *testing.T) {
	t.Parallel()

	p := NewPool(nil, "http://unused", slog.Default())
	if got := p.Acquire(); got != nil {
		t.Fatalf("Acquire() on empty pool = %v, want nil", got)
	}
}

func TestCredential_Refresh(t *testing.T) {
	t.Parallel()

	srv, _ := tokenServer(t)
	p := NewPool([]Application{{UID: "a", Secret: "s"}}, srv.URL, slog.Default())
	cred := p.creds[0]

	if err := cred.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh failed: %v", err)
	}
	first := cred.Token()
	if first == "" {
		t.Fatal("token empty after refresh")
	}

	if err := cred.Refresh(context.Background()); err != nil {
		t.Fatalf("second refresh failed: %v", err)
	}
	if cred.Token() == first {
		t.Errorf("token unchanged after refresh: %s", first)
	}
}
