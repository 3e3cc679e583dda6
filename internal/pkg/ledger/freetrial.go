package ledger

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"github.com/gofiber/fiber/v2/log"
)

// FreeTrialRecord is the write-once fact that an email consumed its one
// lifetime free document.
type FreeTrialRecord struct {
	UsedAt       time.Time `json:"usedAt"`
	DocumentSlug string    `json:"documentSlug"`
}

// PendingVerification carries the form payload of a free-trial challenge
// between code delivery and redemption.
type PendingVerification struct {
	DocumentSlug string            `json:"documentSlug"`
	FormData     map[string]string `json:"formData"`
}

// IsEligibleForFreeTrial reports whether the email has not yet consumed its
// free document. When the store is unreachable this read deliberately fails
// open: the user experience wins over strict enforcement, while every
// mutating operation stays fail-closed.
func (s *Service) IsEligibleForFreeTrial(ctx context.Context, email string) bool {
	_, found, err := s.kv.Get(ctx, usedEmailPrefix+NormalizeEmail(email))
	if err != nil {
		log.Errorf("[Ledger] free-trial eligibility read failed, assuming eligible: %v", err)
		return true
	}
	return !found
}

// BeginFreeTrialChallenge stores a fresh 6-digit verification code and the
// submitted form data, both bounded by VerificationTTL, and returns the code
// for delivery by email. Any prior challenge for the email is overwritten;
// only the most recent code is valid.
func (s *Service) BeginFreeTrialChallenge(ctx context.Context, email, documentSlug string, formData map[string]string) (string, error) {
	normalized := NormalizeEmail(email)

	code, err := generateVerificationCode()
	if err != nil {
		return "", err
	}

	if err := s.kv.Set(ctx, verifyCodePrefix+normalized, code, VerificationTTL); err != nil {
		return "", fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	pending, err := json.Marshal(PendingVerification{DocumentSlug: documentSlug, FormData: formData})
	if err != nil {
		return "", err
	}
	if err := s.kv.Set(ctx, pendingVerifyPrefix+normalized, string(pending), VerificationTTL); err != nil {
		return "", fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	return code, nil
}

// RedeemFreeTrialChallenge checks the submitted code against the stored one
// (exact match only), deletes it on success and returns the pending form
// payload. Redeeming does not yet burn the trial; callers must invoke
// MarkFreeTrialUsed once the document was actually produced.
func (s *Service) RedeemFreeTrialChallenge(ctx context.Context, email, submittedCode string) (*PendingVerification, error) {
	normalized := NormalizeEmail(email)

	stored, found, err := s.kv.Get(ctx, verifyCodePrefix+normalized)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if !found || stored != submittedCode {
		return nil, ErrCodeInvalidOrExpired
	}

	// The code is single-use.
	if err := s.kv.Delete(ctx, verifyCodePrefix+normalized); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	raw, found, err := s.kv.Get(ctx, pendingVerifyPrefix+normalized)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if !found {
		// Code and payload expire independently; the payload can be gone
		// even though the code still matched.
		return nil, ErrSessionExpired
	}

	var pending PendingVerification
	if err := json.Unmarshal([]byte(raw), &pending); err != nil {
		return nil, err
	}
	return &pending, nil
}

// MarkFreeTrialUsed writes the lifetime used-marker for the email and drops
// the pending payload. It is idempotent: marking an already-used email is a
// no-op. Mutations fail closed, never granting a credit the store could not
// record.
func (s *Service) MarkFreeTrialUsed(ctx context.Context, email, documentSlug string) error {
	normalized := NormalizeEmail(email)

	record, err := json.Marshal(FreeTrialRecord{UsedAt: s.now(), DocumentSlug: documentSlug})
	if err != nil {
		return err
	}

	// SetNX keeps the first record; a repeat call leaves it untouched.
	won, err := s.kv.SetNX(ctx, usedEmailPrefix+normalized, string(record), 0)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if !won {
		// Already marked: the cleanup and the counter ran with the first
		// call; repeating them would inflate the stats.
		return nil
	}

	if err := s.kv.Delete(ctx, pendingVerifyPrefix+normalized); err != nil {
		log.Warnf("[Ledger] could not delete pending verification for %s: %v", normalized, err)
	}

	if _, err := s.IncrementFreeDocumentCount(ctx); err != nil {
		log.Warnf("[Ledger] could not increment free-document counter: %v", err)
	}

	return nil
}

// IncrementFreeDocumentCount bumps the global free-document counter.
func (s *Service) IncrementFreeDocumentCount(ctx context.Context) (int64, error) {
	return s.kv.Incr(ctx, freeDocumentsStatsKey)
}

// generateVerificationCode draws a uniform 6-digit code, zero-padded.
func generateVerificationCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
