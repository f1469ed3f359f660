package prefs

import (
	"context"
	"path/filepath"
	"testing"

	"jellyfin-integration/internal/db"
	"jellyfin-integration/internal/logging"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	sqlDB, err := db.Open(filepath.Join(t.TempDir(), "prefs.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })
	if err := db.MigrateUp(sqlDB, logging.Discard()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return New(sqlDB, "integration_jellyfin")
}

func TestUserAndAppScopesAreSeparate(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	if err := s.SetAppValue(ctx, KeyServerURL, "http://global"); err != nil {
		t.Fatal(err)
	}
	if err := s.SetUserValue(ctx, "alice", KeyServerURL, "http://alice"); err != nil {
		t.Fatal(err)
	}

	if v, _ := s.AppValue(ctx, KeyServerURL, ""); v != "http://global" {
		t.Errorf("Expected app value http://global, got %q", v)
	}
	if v, _ := s.UserValue(ctx, "alice", KeyServerURL, ""); v != "http://alice" {
		t.Errorf("Expected user value http://alice, got %q", v)
	}
	if v, _ := s.UserValue(ctx, "bob", KeyServerURL, "none"); v != "none" {
		t.Errorf("Expected default for bob, got %q", v)
	}
}

func TestCredentialsFallBackToAppScope(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	_ = s.SetAppValue(ctx, KeyServerURL, "http://app")
	_ = s.SetAppValue(ctx, KeyToken, "app-token")
	_ = s.SetAppValue(ctx, KeyUserID, "app-user")
	_ = s.SetUserValue(ctx, "alice", KeyServerURL, "http://alice")
	_ = s.SetUserValue(ctx, "alice", KeyToken, "alice-token")
	_ = s.SetUserValue(ctx, "alice", KeyUserID, "alice-user")

	want := Credentials{ServerURL: "http://alice", Token: "alice-token", UserID: "alice-user"}
	if got, _ := s.Credentials(ctx, "alice"); got != want {
		t.Errorf("alice: got %+v, want %+v", got, want)
	}
	app := Credentials{ServerURL: "http://app", Token: "app-token", UserID: "app-user"}
	if got, _ := s.Credentials(ctx, "bob"); got != app {
		t.Errorf("bob: got %+v, want %+v", got, app)
	}
	if got, _ := s.Credentials(ctx, ""); got != app {
		t.Errorf("app scope: got %+v, want %+v", got, app)
	}
}

func TestCredentialsNeverMixScopes(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	_ = s.SetAppValue(ctx, KeyServerURL, "https://admin-jf.example")
	_ = s.SetAppValue(ctx, KeyToken, "ADMIN_SECRET")
	_ = s.SetAppValue(ctx, KeyUserID, "admin-user")

	// A disconnected user keeps only their server URL.
	_ = s.SetUserValue(ctx, "bob", KeyServerURL, "https://bob.example")
	got, err := s.Credentials(ctx, "bob")
	if err != nil {
		t.Fatal(err)
	}
	if got != (Credentials{ServerURL: "https://bob.example"}) {
		t.Errorf("Expected bob's URL alone, got %+v", got)
	}

	// Any identity value claims the scope too.
	_ = s.SetUserValue(ctx, "carol", KeyServerName, "Den")
	if got, _ := s.Credentials(ctx, "carol"); got.Token != "" || got.ServerURL != "" {
		t.Errorf("Expected no app credentials for carol, got %+v", got)
	}

	// Flags alone do not.
	_ = s.SetUserValue(ctx, "dave", KeyNavigationEnabled, "1")
	if got, _ := s.Credentials(ctx, "dave"); got.Token != "ADMIN_SECRET" {
		t.Errorf("Expected app fallback for dave, got %+v", got)
	}

	// Empty values left behind do not claim the scope.
	_ = s.SetUserValue(ctx, "erin", KeyToken, "")
	if got, _ := s.Credentials(ctx, "erin"); got.ServerURL != "https://admin-jf.example" {
		t.Errorf("Expected app fallback for erin, got %+v", got)
	}
}

func TestSetOverwrites(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	_ = s.SetUserValue(ctx, "alice", KeyUserName, "first")
	_ = s.SetUserValue(ctx, "alice", KeyUserName, "second")
	if v, _ := s.UserValue(ctx, "alice", KeyUserName, ""); v != "second" {
		t.Errorf("Expected overwrite, got %q", v)
	}
}

func TestDeleteUserValuesRemovesGroup(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	for _, k := range IdentityKeys {
		_ = s.SetUserValue(ctx, "alice", k, "v-"+k)
	}
	_ = s.SetUserValue(ctx, "alice", KeySearchItemsEnabled, "0")
	_ = s.SetUserValue(ctx, "bob", KeyToken, "bob-token")

	if err := s.DeleteUserValues(ctx, "alice", IdentityKeys...); err != nil {
		t.Fatalf("DeleteUserValues: %v", err)
	}
	for _, k := range IdentityKeys {
		if v, _ := s.UserValue(ctx, "alice", k, ""); v != "" {
			t.Errorf("Expected %s to be cleared, got %q", k, v)
		}
	}
	if v, _ := s.UserValue(ctx, "alice", KeySearchItemsEnabled, ""); v != "0" {
		t.Errorf("Expected unrelated key to survive, got %q", v)
	}
	if v, _ := s.UserValue(ctx, "bob", KeyToken, ""); v != "bob-token" {
		t.Errorf("Expected other user untouched, got %q", v)
	}
}

func TestEnabledDefaults(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	if !s.Enabled(ctx, "alice", KeySearchItemsEnabled, true) {
		t.Error("Expected default true")
	}
	if s.Enabled(ctx, "alice", KeyNavigationEnabled, false) {
		t.Error("Expected default false")
	}
	_ = s.SetUserValue(ctx, "alice", KeyNavigationEnabled, "1")
	if !s.Enabled(ctx, "alice", KeyNavigationEnabled, false) {
		t.Error("Expected stored 1 to enable")
	}
	_ = s.SetAppValue(ctx, KeyLinkPreviewEnabled, "0")
	if s.AppEnabled(ctx, KeyLinkPreviewEnabled, true) {
		t.Error("Expected app flag 0 to disable")
	}
}

func TestSetUserValueRequiresUser(t *testing.T) {
	s := newTestStore(t)
	if err := s.SetUserValue(context.Background(), "", KeyToken, "x"); err == nil {
		t.Error("Expected error for empty user id")
	}
}

func TestStoresAreNamespacedByApp(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	other := New(s.db, "integration_other")
	_ = s.SetAppValue(ctx, KeyServerURL, "http://jf")
	if v, _ := other.AppValue(ctx, KeyServerURL, ""); v != "" {
		t.Errorf("Expected other app to see nothing, got %q", v)
	}
}

func TestDeleteUserKeepsOtherScopes(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	_ = s.SetUserValue(ctx, "alice", KeyToken, "a")
	_ = s.SetUserValue(ctx, "alice", KeyNavigationEnabled, "1")
	_ = s.SetUserValue(ctx, "bob", KeyToken, "b")
	_ = s.SetAppValue(ctx, KeyToken, "app")

	if err := s.DeleteUser(ctx, "alice"); err != nil {
		t.Fatal(err)
	}
	if v, _ := s.UserValue(ctx, "alice", KeyToken, ""); v != "" {
		t.Errorf("Expected alice token gone, got %q", v)
	}
	if v, _ := s.UserValue(ctx, "bob", KeyToken, ""); v != "b" {
		t.Errorf("Expected bob untouched, got %q", v)
	}
	if v, _ := s.AppValue(ctx, KeyToken, ""); v != "app" {
		t.Errorf("Expected app value untouched, got %q", v)
	}
	if err := s.DeleteUser(ctx, ""); err == nil {
		t.Error("Expected error for empty user id")
	}
}

func TestConnectionsListsLinkedScopes(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	must := func(err error) {
		t.Helper()
		if err != nil {
			t.Fatal(err)
		}
	}
	must(s.SetAppValue(ctx, KeyServerURL, "http://global"))
	must(s.SetUserValue(ctx, "alice", KeyServerURL, "http://alice"))
	must(s.SetUserValue(ctx, "alice", KeyToken, "tok"))
	must(s.SetUserValue(ctx, "alice", KeyUserName, "Alice"))
	must(s.SetUserValue(ctx, "alice", KeyServerName, "Den"))
	must(s.SetUserValue(ctx, "bob", KeyNavigationEnabled, "1"))
	must(New(s.db, "other_app").SetUserValue(ctx, "carol", KeyToken, "x"))

	conns, err := s.Connections(ctx)
	if err != nil {
		t.Fatalf("Connections() error = %v", err)
	}
	if len(conns) != 2 {
		t.Fatalf("Expected app and alice only, got %+v", conns)
	}
	if conns[0].UserID != "" || conns[0].ServerURL != "http://global" || conns[0].HasToken {
		t.Errorf("unexpected app connection %+v", conns[0])
	}
	alice := conns[1]
	if alice.UserID != "alice" || alice.ServerName != "Den" || alice.JellyfinUser != "Alice" || !alice.HasToken {
		t.Errorf("unexpected user connection %+v", alice)
	}
}
