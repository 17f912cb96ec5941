package config

import "testing"

func TestLoadDoesNotInjectWeakAuthDefaults(t *testing.T) {
	t.Setenv("AUTH_SECRET", "")

	cfg := Load()
	if cfg.AuthSecret != "" {
		t.Fatalf("expected empty AUTH_SECRET when unset, got %q", cfg.AuthSecret)
	}
}

func TestLoadFallsBackOnBadDurations(t *testing.T) {
	t.Setenv("DRAFT_TTL_SECONDS", "not-a-number")
	t.Setenv("ACCESS_TOKEN_TTL_MINUTES", "-5")

	cfg := Load()
	if cfg.DraftTTLSeconds != 60 {
		t.Fatalf("expected draft TTL fallback 60, got %d", cfg.DraftTTLSeconds)
	}
	if cfg.AccessTokenTTLMinutes != 480 {
		t.Fatalf("expected token TTL fallback 480, got %d", cfg.AccessTokenTTLMinutes)
	}
}

func TestLoadDefaultShop(t *testing.T) {
	t.Setenv("DEFAULT_SHOP_ID", "")

	cfg := Load()
	if cfg.ShopID != "main-shop" {
		t.Fatalf("expected default shop id main-shop, got %q", cfg.ShopID)
	}
}
