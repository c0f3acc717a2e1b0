package accounts

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"math/big"
	"regexp"
	"time"

	"github.com/Old6Man6/Qtime/internal/accounts/sms"
)

var (
	// ErrInvalidCode covers wrong, expired, and never-requested codes alike;
	// callers get no hint which one it was.
	ErrInvalidCode = errors.New("invalid or expired code")
	// ErrTooManyRequests means the resend cooldown has not elapsed yet.
	ErrTooManyRequests = errors.New("code already sent, retry later")
)

var phonePattern = regexp.MustCompile(`^09\d{9}$`)

func ValidPhone(phone string) bool {
	return phonePattern.MatchString(phone)
}

// Cache is the short-lived keyed store backing one-time codes.
type Cache interface {
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, bool, error)
	Delete(ctx context.Context, key string) error
}

// OTP issues and verifies 4-digit one-time login codes.
type OTP struct {
	cache    Cache
	sender   sms.Sender
	ttl      time.Duration
	cooldown time.Duration
}

func NewOTP(cache Cache, sender sms.Sender, ttl, cooldown time.Duration) *OTP {
	return &OTP{cache: cache, sender: sender, ttl: ttl, cooldown: cooldown}
}

// Request generates a fresh code for the phone number and sends it via SMS.
// A second request within the cooldown window is rejected.
func (o *OTP) Request(ctx context.Context, phone string) error {
	_, limited, err := o.cache.Get(ctx, rateLimitKey(phone))
	if err != nil {
		return err
	}
	if limited {
		return ErrTooManyRequests
	}

	code, err := generateCode()
	if err != nil {
		return err
	}
	if err := o.cache.Set(ctx, codeKey(phone), code, o.ttl); err != nil {
		return err
	}
	if err := o.cache.Set(ctx, rateLimitKey(phone), "1", o.cooldown); err != nil {
		return err
	}
	return o.sender.Send(ctx, phone, "Your login code is "+code)
}

// Verify consumes the stored code. The code is single-use: it is deleted on
// success, and a mismatch leaves it in place until the TTL expires.
func (o *OTP) Verify(ctx context.Context, phone, code string) error {
	stored, ok, err := o.cache.Get(ctx, codeKey(phone))
	if err != nil {
		return err
	}
	if !ok || subtle.ConstantTimeCompare([]byte(stored), []byte(code)) != 1 {
		return ErrInvalidCode
	}
	return o.cache.Delete(ctx, codeKey(phone))
}

func codeKey(phone string) string      { return "otp:" + phone }
func rateLimitKey(phone string) string { return "otp_rate_limit:" + phone }

func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(9000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%04d", n.Int64()+1000), nil
}
