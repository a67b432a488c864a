package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PLATFORM_ACCOUNT_ID", "pf00000001")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Port != DefaultPort {
		t.Errorf("Port = %s, want %s", cfg.Port, DefaultPort)
	}
	if cfg.PaymentProvider != "cashfree" {
		t.Errorf("PaymentProvider = %s, want cashfree", cfg.PaymentProvider)
	}
	if cfg.PaymentExpiryOffset != DefaultExpiryOffset {
		t.Errorf("PaymentExpiryOffset = %s, want %s", cfg.PaymentExpiryOffset, DefaultExpiryOffset)
	}
	if !cfg.IsDevelopment() {
		t.Error("expected development mode by default")
	}
}

func TestValidateRequiresPlatformAccount(t *testing.T) {
	cfg := &Config{PaymentProvider: "cashfree", PaymentExpiryOffset: DefaultExpiryOffset}
	if err := cfg.Validate(); err == nil {
		t.Error("expected error when PLATFORM_ACCOUNT_ID missing")
	}
}

func TestValidateStripeNeedsKey(t *testing.T) {
	cfg := &Config{
		PlatformAccountID:   "pf00000001",
		PaymentProvider:     "stripe",
		PaymentExpiryOffset: DefaultExpiryOffset,
	}
	if err := cfg.Validate(); err == nil {
		t.Error("expected error when STRIPE_API_KEY missing for stripe provider")
	}

	cfg.StripeAPIKey = "sk_test_123"
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestValidateRejectsUnknownProvider(t *testing.T) {
	cfg := &Config{
		PlatformAccountID:   "pf00000001",
		PaymentProvider:     "paypal",
		PaymentExpiryOffset: DefaultExpiryOffset,
	}
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for unknown provider")
	}
}

func TestParseUTCOffset(t *testing.T) {
	loc, err := ParseUTCOffset("+05:30")
	if err != nil {
		t.Fatalf("ParseUTCOffset error = %v", err)
	}
	_, offset := time.Date(2025, 1, 1, 0, 0, 0, 0, loc).Zone()
	if offset != 5*3600+30*60 {
		t.Errorf("offset = %d, want %d", offset, 5*3600+30*60)
	}

	if _, err := ParseUTCOffset("0530"); err == nil {
		t.Error("expected error for malformed offset")
	}
	if _, err := ParseUTCOffset("+5:30"); err == nil {
		t.Error("expected error for short offset")
	}
}
