package store

import (
	"context"
	"path/filepath"
	"testing"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore_UpsertGetUser(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	ctx := context.Background()

	if u, err := s.GetUser(ctx, 42); err != nil || u != nil {
		t.Fatalf("GetUser on empty store = %v, %v, want nil, nil", u, err)
	}

	want := User{ID: 42, Login: "alice", Language: "en", Notify: true, LeftNotice: true}
	if err := s.UpsertUser(ctx, want); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetUser(ctx, 42)
	if err != nil {
		t.Fatal(err)
	}
	if *got != want {
		t.Errorf("GetUser = %+v, want %+v", *got, want)
	}

	// Upsert replaces in place.
	want.Language = "fr"
	want.Notify = false
	if err := s.UpsertUser(ctx, want); err != nil {
		t.Fatal(err)
	}
	got, _ = s.GetUser(ctx, 42)
	if got.Language != "fr" || got.Notify {
		t.Errorf("after upsert = %+v", *got)
	}
}

func TestStore_SubscribeListObserved(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	ctx := context.Background()

	_ = s.UpsertUser(ctx, User{ID: 1, LeftNotice: true})
	_ = s.UpsertUser(ctx, User{ID: 2})
	_ = s.UpsertPeer(ctx, "alice", 1, 21)
	_ = s.UpsertPeer(ctx, "bob", 1, 21)

	_ = s.Subscribe(ctx, 1, "alice")
	_ = s.Subscribe(ctx, 1, "alice") // idempotent
	_ = s.Subscribe(ctx, 2, "alice")
	_ = s.Subscribe(ctx, 2, "bob")

	page, err := s.ListObserved(ctx, 10, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(page) != 2 {
		t.Fatalf("subjects = %d, want 2", len(page))
	}
	if page[0].Login != "alice" || len(page[0].Watchers) != 2 {
		t.Errorf("alice = %+v", page[0])
	}
	if !page[0].Watchers[0].LeftNotice {
		t.Errorf("watcher 1 = %+v, want left notice flag carried through", page[0].Watchers[0])
	}
	if page[1].Login != "bob" || len(page[1].Watchers) != 1 {
		t.Errorf("bob = %+v", page[1])
	}

	// Past the working set, pages are empty.
	page, err = s.ListObserved(ctx, 10, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(page) != 0 {
		t.Errorf("page past end = %+v, want empty", page)
	}
}

func TestStore_ListObserved_Paging(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	ctx := context.Background()

	_ = s.UpsertUser(ctx, User{ID: 1})
	for _, login := range []string{"alice", "bob", "carol"} {
		_ = s.UpsertPeer(ctx, login, 1, 21)
		_ = s.Subscribe(ctx, 1, login)
	}

	first, err := s.ListObserved(ctx, 2, 0)
	if err != nil {
		t.Fatal(err)
	}
	second, err := s.ListObserved(ctx, 2, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(first) != 2 || len(second) != 1 {
		t.Fatalf("pages = %d, %d, want 2 then 1", len(first), len(second))
	}
	if second[0].Login != "carol" {
		t.Errorf("second page = %+v", second)
	}
}

func TestStore_Unsubscribe(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	ctx := context.Background()

	_ = s.UpsertUser(ctx, User{ID: 1})
	_ = s.UpsertPeer(ctx, "alice", 1, 21)
	_ = s.Subscribe(ctx, 1, "alice")

	if err := s.Unsubscribe(ctx, 1, "alice"); err != nil {
		t.Fatal(err)
	}
	page, _ := s.ListObserved(ctx, 10, 0)
	if len(page) != 0 {
		t.Errorf("observed after unsubscribe = %+v", page)
	}
}

func TestStore_DeleteWatcher(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	ctx := context.Background()

	_ = s.UpsertUser(ctx, User{ID: 1, Login: "alice", Notify: true})
	_ = s.UpsertUser(ctx, User{ID: 2, Login: "bob", Notify: true})
	_ = s.UpsertPeer(ctx, "carol", 1, 21)
	_ = s.Subscribe(ctx, 1, "carol")
	_ = s.Subscribe(ctx, 2, "carol")

	if err := s.DeleteWatcher(ctx, 1); err != nil {
		t.Fatal(err)
	}

	page, _ := s.ListObserved(ctx, 10, 0)
	if len(page) != 1 || len(page[0].Watchers) != 1 || page[0].Watchers[0].ID != 2 {
		t.Errorf("observed after delete = %+v, want only watcher 2", page)
	}

	u, _ := s.GetUser(ctx, 1)
	if u.Notify {
		t.Error("deleted watcher still opted into event announcements")
	}
}

func TestStore_ListNotifiable(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	ctx := context.Background()

	_ = s.UpsertCampus(ctx, Campus{ID: 1, Name: "Paris", TimeZone: "Europe/Paris"})
	_ = s.UpsertCampus(ctx, Campus{ID: 2, Name: "Lisboa", TimeZone: "Europe/Lisbon"})

	// Two users in (1, 21), one in (2, 21), one opted out.
	_ = s.UpsertUser(ctx, User{ID: 1, Login: "alice", Notify: true})
	_ = s.UpsertUser(ctx, User{ID: 2, Login: "bob", Notify: true})
	_ = s.UpsertUser(ctx, User{ID: 3, Login: "carol", Notify: true})
	_ = s.UpsertUser(ctx, User{ID: 4, Login: "dave", Notify: false})
	_ = s.UpsertPeer(ctx, "alice", 1, 21)
	_ = s.UpsertPeer(ctx, "bob", 1, 21)
	_ = s.UpsertPeer(ctx, "carol", 2, 21)
	_ = s.UpsertPeer(ctx, "dave", 1, 21)

	groups, err := s.ListNotifiable(ctx, 10, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(groups) != 2 {
		t.Fatalf("groups = %+v, want 2", groups)
	}
	if groups[0].CampusID != 1 || len(groups[0].WatcherIDs) != 2 {
		t.Errorf("group 0 = %+v", groups[0])
	}
	if groups[0].TimeZone != "Europe/Paris" {
		t.Errorf("group 0 time zone = %q", groups[0].TimeZone)
	}
	if groups[1].CampusID != 2 || len(groups[1].WatcherIDs) != 1 {
		t.Errorf("group 1 = %+v", groups[1])
	}
}

func TestStore_CampusCatalog(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	ctx := context.Background()

	ids, err := s.CampusIDs(ctx)
	if err != nil || len(ids) != 0 {
		t.Fatalf("CampusIDs on empty store = %v, %v", ids, err)
	}

	_ = s.UpsertCampus(ctx, Campus{ID: 21, Name: "Lisboa", TimeZone: "Europe/Lisbon"})
	_ = s.UpsertCampus(ctx, Campus{ID: 1, Name: "Paris", TimeZone: "Europe/Paris"})
	_ = s.UpsertCampus(ctx, Campus{ID: 1, Name: "Paris", TimeZone: "Europe/Paris"})

	ids, err = s.CampusIDs(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 2 || ids[0] != 1 || ids[1] != 21 {
		t.Errorf("CampusIDs = %v, want [1 21]", ids)
	}
}

func TestOpen_CreatesParentDirectory(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nested", "dir", "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	_ = s.Close()
}
