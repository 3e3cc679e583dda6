package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
)

// PackSize is the number of documents a purchased pack grants.
const PackSize = 3

// Pack is a prepaid bundle of document credits bound to an email address.
type Pack struct {
	ID                 string    `json:"id"`
	Email              string    `json:"email"`
	DocumentsRemaining int       `json:"documentsRemaining"`
	DocumentsTotal     int       `json:"documentsTotal"`
	PurchasedAt        time.Time `json:"purchasedAt"`
	ExpiresAt          time.Time `json:"expiresAt"`
	StripeSessionID    string    `json:"stripeSessionId"`
	DocumentsUsed      []string  `json:"documentsUsed"`
}

// IsActive reports whether the pack still has credits and has not expired.
func (p *Pack) IsActive(at time.Time) bool {
	return p.DocumentsRemaining > 0 && at.Before(p.ExpiresAt)
}

// CreatePack records a purchased pack for the email, keyed by the payment
// session so that replayed webhooks and double-submitted success pages all
// collapse onto one pack. The pack record is written first, then a SetNX on
// the session key decides the winner; a loser removes its own record and
// returns the pack the winner created.
func (s *Service) CreatePack(ctx context.Context, email, stripeSessionID string, total int) (*Pack, error) {
	normalized := NormalizeEmail(email)
	now := s.now()
	if total <= 0 {
		total = PackSize
	}

	pack := &Pack{
		ID:                 "pack_" + uuid.New().String(),
		Email:              normalized,
		DocumentsRemaining: total,
		DocumentsTotal:     total,
		PurchasedAt:        now,
		ExpiresAt:          now.Add(PackValidity),
		StripeSessionID:    stripeSessionID,
		DocumentsUsed:      []string{},
	}

	if err := s.writePack(ctx, pack); err != nil {
		return nil, err
	}

	won, err := s.kv.SetNX(ctx, stripeSessionPrefix+stripeSessionID, pack.ID, 0)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if !won {
		// Another caller already registered this session. Drop our record
		// and hand back theirs.
		if err := s.kv.Delete(ctx, packPrefix+pack.ID); err != nil {
			log.Warnf("[Ledger] could not remove duplicate pack %s: %v", pack.ID, err)
		}
		existingID, found, err := s.kv.Get(ctx, stripeSessionPrefix+stripeSessionID)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		if !found {
			return nil, fmt.Errorf("%w: session %s claimed but pack missing", ErrStoreUnavailable, stripeSessionID)
		}
		existing, err := s.GetPack(ctx, existingID)
		if err != nil {
			return nil, err
		}
		// The winner may have crashed between claiming the session and
		// writing the index; repair it so the pack stays reachable.
		if err := s.appendUserPack(ctx, existing.Email, existing.ID); err != nil {
			return nil, err
		}
		return existing, nil
	}

	if err := s.appendUserPack(ctx, normalized, pack.ID); err != nil {
		return nil, err
	}

	log.Infof("[Ledger] pack %s created for %s (session %s)", pack.ID, normalized, stripeSessionID)
	return pack, nil
}

// GetPack loads a pack by id.
func (s *Service) GetPack(ctx context.Context, packID string) (*Pack, error) {
	raw, found, err := s.kv.Get(ctx, packPrefix+packID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if !found {
		return nil, ErrPackInvalidOrExpired
	}
	var pack Pack
	if err := json.Unmarshal([]byte(raw), &pack); err != nil {
		return nil, err
	}
	return &pack, nil
}

// GetActivePack returns the first pack of the email that still has credits
// and has not expired, or nil when none qualifies. Expired and exhausted
// packs are invisible here; they are never pruned, only skipped.
func (s *Service) GetActivePack(ctx context.Context, email string) (*Pack, error) {
	ids, err := s.userPackIDs(ctx, NormalizeEmail(email))
	if err != nil {
		return nil, err
	}
	now := s.now()
	for _, id := range ids {
		pack, err := s.GetPack(ctx, id)
		if err != nil {
			if err == ErrPackInvalidOrExpired {
				continue
			}
			return nil, err
		}
		if pack.IsActive(now) {
			return pack, nil
		}
	}
	return nil, nil
}

// ConsumePackCredit decrements the pack's balance by one and records the
// produced document slug. The read-modify-write runs under a short lock so
// that concurrent requests racing for the last credit yield exactly one
// winner; losers get ErrPackExhausted. Returns the remaining balance.
func (s *Service) ConsumePackCredit(ctx context.Context, packID, documentSlug string) (int, error) {
	var remaining int
	err := s.withLock(ctx, packLockPrefix+packID, func() error {
		pack, err := s.GetPack(ctx, packID)
		if err != nil {
			return err
		}
		if !s.now().Before(pack.ExpiresAt) {
			return ErrPackInvalidOrExpired
		}
		if pack.DocumentsRemaining <= 0 {
			return ErrPackExhausted
		}
		pack.DocumentsRemaining--
		pack.DocumentsUsed = append(pack.DocumentsUsed, documentSlug)
		if err := s.writePack(ctx, pack); err != nil {
			return err
		}
		remaining = pack.DocumentsRemaining
		return nil
	})
	if err != nil {
		return 0, err
	}
	log.Infof("[Ledger] pack %s consumed one credit for %s, %d remaining", packID, documentSlug, remaining)
	return remaining, nil
}

func (s *Service) writePack(ctx context.Context, pack *Pack) error {
	raw, err := json.Marshal(pack)
	if err != nil {
		return err
	}
	if err := s.kv.Set(ctx, packPrefix+pack.ID, string(raw), 0); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

func (s *Service) userPackIDs(ctx context.Context, normalizedEmail string) ([]string, error) {
	raw, found, err := s.kv.Get(ctx, userPacksPrefix+normalizedEmail)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if !found {
		return nil, nil
	}
	var ids []string
	if err := json.Unmarshal([]byte(raw), &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

// appendUserPack adds the pack id to the email's index. Idempotent: an id
// already present is not added again, so retries after a partial failure
// cannot duplicate entries.
func (s *Service) appendUserPack(ctx context.Context, normalizedEmail, packID string) error {
	return s.withLock(ctx, userPacksLockPrefix+normalizedEmail, func() error {
		ids, err := s.userPackIDs(ctx, normalizedEmail)
		if err != nil {
			return err
		}
		for _, id := range ids {
			if id == packID {
				return nil
			}
		}
		ids = append(ids, packID)
		raw, err := json.Marshal(ids)
		if err != nil {
			return err
		}
		if err := s.kv.Set(ctx, userPacksPrefix+normalizedEmail, string(raw), 0); err != nil {
			return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		return nil
	})
}
