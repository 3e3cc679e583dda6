// Package ledger tracks consumable document credits: the one lifetime free
// document per verified email and prepaid packs of N documents. All durable
// facts live in the external key-value store; process memory never holds
// ledger state because instances are neither singular nor long-lived.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Key prefixes in the KV store.
const (
	usedEmailPrefix       = "used-email:"
	verifyCodePrefix      = "verify-code:"
	pendingVerifyPrefix   = "pending-verify:"
	packPrefix            = "pack:"
	userPacksPrefix       = "user-packs:"
	stripeSessionPrefix   = "stripe-session:"
	packLockPrefix        = "pack-lock:"
	userPacksLockPrefix   = "user-packs-lock:"
	freeDocumentsStatsKey = "stats:free-docs-count"
)

const (
	// VerificationTTL bounds both the 6-digit code and the pending form
	// payload of a free-trial challenge.
	VerificationTTL = 600 * time.Second

	// PackValidity is the fixed lifetime of a purchased pack.
	PackValidity = 365 * 24 * time.Hour

	lockTTL        = 5 * time.Second
	lockRetryDelay = 25 * time.Millisecond
	lockRetries    = 40
)

var (
	ErrCodeInvalidOrExpired = errors.New("verification code invalid or expired")
	ErrSessionExpired       = errors.New("pending verification expired")
	ErrPackInvalidOrExpired = errors.New("pack invalid or expired")
	ErrPackExhausted        = errors.New("pack has no documents remaining")
	ErrStoreUnavailable     = errors.New("key-value store unavailable")
)

// Service is the credit ledger over an injected KV store.
type Service struct {
	kv  KV
	now func() time.Time
}

// NewService creates a ledger over the given KV store.
func NewService(kv KV) *Service {
	return &Service{kv: kv, now: time.Now}
}

// NormalizeEmail canonicalizes an email address the way every ledger key
// derives from it.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// FreeDocumentStats returns the global count of consumed free documents.
func (s *Service) FreeDocumentStats(ctx context.Context) (int64, error) {
	val, found, err := s.kv.Get(ctx, freeDocumentsStatsKey)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if !found {
		return 0, nil
	}
	var n int64
	if _, err := fmt.Sscanf(val, "%d", &n); err != nil {
		return 0, err
	}
	return n, nil
}

// withLock serializes a read-modify-write on a single key family. The lock
// is a SetNX key with a short TTL so a crashed holder cannot wedge the
// ledger.
func (s *Service) withLock(ctx context.Context, lockKey string, fn func() error) error {
	acquired := false
	for i := 0; i < lockRetries; i++ {
		ok, err := s.kv.SetNX(ctx, lockKey, "1", lockTTL)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		if ok {
			acquired = true
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(lockRetryDelay):
		}
	}
	if !acquired {
		return fmt.Errorf("%w: could not acquire %s", ErrStoreUnavailable, lockKey)
	}
	defer func() {
		_ = s.kv.Delete(ctx, lockKey)
	}()

	return fn()
}
