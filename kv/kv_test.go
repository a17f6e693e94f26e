package kv

import (
	"context"
	"testing"
	"time"
)

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	if _, ok, err := m.Get(ctx, KeyUsername); ok || err != nil {
		t.Fatalf("Get(missing) = ok=%v err=%v", ok, err)
	}
	if err := m.Set(ctx, KeyUsername, "alice"); err != nil {
		t.Fatal(err)
	}
	if v, ok, _ := m.Get(ctx, KeyUsername); !ok || v != "alice" {
		t.Errorf("Get = %q, %v", v, ok)
	}
	_ = m.Set(ctx, KeyUsername, "bob")
	if v := GetString(ctx, m, KeyUsername, ""); v != "bob" {
		t.Errorf("overwrite: got %q", v)
	}
	_ = m.Delete(ctx, KeyUsername)
	if v := GetString(ctx, m, KeyUsername, "none"); v != "none" {
		t.Errorf("after delete: got %q", v)
	}
}

func TestTypedGetters(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	_ = m.Set(ctx, KeyFontSize, "18")
	_ = m.Set(ctx, KeyBoxSize, "wide")
	_ = m.Set(ctx, KeyShowTimestamps, "false")

	if got := GetInt(ctx, m, KeyFontSize, 14); got != 18 {
		t.Errorf("GetInt = %d, want 18", got)
	}
	if got := GetInt(ctx, m, KeyBoxSize, 300); got != 300 {
		t.Errorf("GetInt(unparsable) = %d, want default", got)
	}
	if got := GetBool(ctx, m, KeyShowTimestamps, true); got {
		t.Error("GetBool = true, want false")
	}
	if got := GetBool(ctx, m, "missing", true); !got {
		t.Error("GetBool(missing) should return default")
	}
}

func TestMemoryTokens(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	if _, ok, _ := m.LoadToken(ctx); ok {
		t.Fatal("token present in fresh store")
	}
	want := Token{AccessToken: "abc", Scope: "chat:read chat:edit", ExpiresAt: time.Now().Add(time.Hour).Truncate(time.Second)}
	_ = m.SaveToken(ctx, want)
	got, ok, err := m.LoadToken(ctx)
	if err != nil || !ok || got != want {
		t.Errorf("LoadToken = %+v, %v, %v", got, ok, err)
	}
	_ = m.ClearToken(ctx)
	if _, ok, _ := m.LoadToken(ctx); ok {
		t.Error("token survived ClearToken")
	}
}
