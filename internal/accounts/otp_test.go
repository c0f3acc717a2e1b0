package accounts

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Old6Man6/Qtime/internal/accounts/sms"
)

type fakeCache struct {
	entries map[string]string
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: make(map[string]string)}
}

func (c *fakeCache) Set(_ context.Context, key, value string, _ time.Duration) error {
	c.entries[key] = value
	return nil
}

func (c *fakeCache) Get(_ context.Context, key string) (string, bool, error) {
	v, ok := c.entries[key]
	return v, ok, nil
}

func (c *fakeCache) Delete(_ context.Context, key string) error {
	delete(c.entries, key)
	return nil
}

type recordingSender struct {
	to   string
	body string
}

func (s *recordingSender) Send(_ context.Context, to string, body string) error {
	s.to = to
	s.body = body
	return nil
}

func (s *recordingSender) ProviderID() string { return "sms-test" }

func TestOTP_RequestThenVerify(t *testing.T) {
	cache := newFakeCache()
	sender := &recordingSender{}
	otp := NewOTP(cache, sender, 2*time.Minute, 30*time.Second)

	if err := otp.Request(context.Background(), "09123456789"); err != nil {
		t.Fatalf("request: %v", err)
	}
	if sender.to != "09123456789" {
		t.Fatalf("sms sent to %q", sender.to)
	}

	code, ok := cache.entries["otp:09123456789"]
	if !ok {
		t.Fatal("code not stored")
	}
	if len(code) != 4 {
		t.Fatalf("expected 4-digit code, got %q", code)
	}

	if err := otp.Verify(context.Background(), "09123456789", code); err != nil {
		t.Fatalf("verify: %v", err)
	}
	if _, ok := cache.entries["otp:09123456789"]; ok {
		t.Fatal("code must be single-use")
	}
}

func TestOTP_ResendWithinCooldownRejected(t *testing.T) {
	cache := newFakeCache()
	otp := NewOTP(cache, sms.NewNoopSender(), 2*time.Minute, 30*time.Second)

	if err := otp.Request(context.Background(), "09123456789"); err != nil {
		t.Fatalf("first request: %v", err)
	}
	err := otp.Request(context.Background(), "09123456789")
	if !errors.Is(err, ErrTooManyRequests) {
		t.Fatalf("expected ErrTooManyRequests, got %v", err)
	}
}

func TestOTP_WrongCodeGenericRejection(t *testing.T) {
	cache := newFakeCache()
	otp := NewOTP(cache, sms.NewNoopSender(), 2*time.Minute, 30*time.Second)

	if err := otp.Request(context.Background(), "09123456789"); err != nil {
		t.Fatalf("request: %v", err)
	}

	err := otp.Verify(context.Background(), "09123456789", "0000")
	if !errors.Is(err, ErrInvalidCode) {
		t.Fatalf("expected ErrInvalidCode for wrong code, got %v", err)
	}

	// A truncated code must not pass even when it prefixes the stored one.
	stored := cache.entries["otp:09123456789"]
	err = otp.Verify(context.Background(), "09123456789", stored[:3])
	if !errors.Is(err, ErrInvalidCode) {
		t.Fatalf("expected ErrInvalidCode for truncated code, got %v", err)
	}

	// A phone that never requested a code gets the same rejection.
	err = otp.Verify(context.Background(), "09999999999", "1234")
	if !errors.Is(err, ErrInvalidCode) {
		t.Fatalf("expected ErrInvalidCode for unknown phone, got %v", err)
	}
}

func TestValidPhone(t *testing.T) {
	valid := []string{"09123456789", "09000000000"}
	invalid := []string{"", "0912345678", "091234567890", "19123456789", "0912345678a"}

	for _, p := range valid {
		if !ValidPhone(p) {
			t.Fatalf("expected %q valid", p)
		}
	}
	for _, p := range invalid {
		if ValidPhone(p) {
			t.Fatalf("expected %q invalid", p)
		}
	}
}
