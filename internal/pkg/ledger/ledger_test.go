package ledger

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T) (*Service, *MemoryKV, *time.Time) {
	t.Helper()
	kv := NewMemoryKV()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	current := base
	kv.Now = func() time.Time { return current }
	svc := NewService(kv)
	svc.now = func() time.Time { return current }
	return svc, kv, &current
}

func TestNormalizeEmail(t *testing.T) {
	assert.Equal(t, "jean.dupont@example.fr", NormalizeEmail("  Jean.Dupont@Example.FR "))
}

func TestFreeTrialLifecycle(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	assert.True(t, svc.IsEligibleForFreeTrial(ctx, "marie@example.fr"))

	form := map[string]string{"prenom": "Marie", "nom": "Curie"}
	code, err := svc.BeginFreeTrialChallenge(ctx, "Marie@Example.fr", "attestation-hebergement", form)
	require.NoError(t, err)
	assert.Regexp(t, regexp.MustCompile(`^\d{6}$`), code)

	pending, err := svc.RedeemFreeTrialChallenge(ctx, "marie@example.fr", code)
	require.NoError(t, err)
	assert.Equal(t, "attestation-hebergement", pending.DocumentSlug)
	assert.Equal(t, "Marie", pending.FormData["prenom"])

	// The code is single-use.
	_, err = svc.RedeemFreeTrialChallenge(ctx, "marie@example.fr", code)
	assert.ErrorIs(t, err, ErrCodeInvalidOrExpired)

	require.NoError(t, svc.MarkFreeTrialUsed(ctx, "marie@example.fr", "attestation-hebergement"))
	assert.False(t, svc.IsEligibleForFreeTrial(ctx, "marie@example.fr"))
	assert.False(t, svc.IsEligibleForFreeTrial(ctx, "MARIE@example.fr"))

	count, err := svc.FreeDocumentStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestFreeTrialWrongCode(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	code, err := svc.BeginFreeTrialChallenge(ctx, "paul@example.fr", "procuration", nil)
	require.NoError(t, err)

	wrong := "000000"
	if wrong == code {
		wrong = "999999"
	}
	_, err = svc.RedeemFreeTrialChallenge(ctx, "paul@example.fr", wrong)
	assert.ErrorIs(t, err, ErrCodeInvalidOrExpired)

	// A wrong attempt does not consume the real code.
	pending, err := svc.RedeemFreeTrialChallenge(ctx, "paul@example.fr", code)
	require.NoError(t, err)
	assert.Equal(t, "procuration", pending.DocumentSlug)
}

func TestFreeTrialCodeExpires(t *testing.T) {
	svc, _, now := newTestService(t)
	ctx := context.Background()

	code, err := svc.BeginFreeTrialChallenge(ctx, "lea@example.fr", "procuration", nil)
	require.NoError(t, err)

	*now = now.Add(601 * time.Second)

	_, err = svc.RedeemFreeTrialChallenge(ctx, "lea@example.fr", code)
	assert.ErrorIs(t, err, ErrCodeInvalidOrExpired)
}

func TestFreeTrialNewCodeInvalidatesOld(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	first, err := svc.BeginFreeTrialChallenge(ctx, "tom@example.fr", "procuration", nil)
	require.NoError(t, err)
	second, err := svc.BeginFreeTrialChallenge(ctx, "tom@example.fr", "procuration", nil)
	require.NoError(t, err)

	if first != second {
		_, err = svc.RedeemFreeTrialChallenge(ctx, "tom@example.fr", first)
		assert.ErrorIs(t, err, ErrCodeInvalidOrExpired)
	}
	pending, err := svc.RedeemFreeTrialChallenge(ctx, "tom@example.fr", second)
	require.NoError(t, err)
	assert.NotNil(t, pending)
}

func TestMarkFreeTrialUsedIdempotent(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.MarkFreeTrialUsed(ctx, "eva@example.fr", "procuration"))
	require.NoError(t, svc.MarkFreeTrialUsed(ctx, "eva@example.fr", "facture"))
	assert.False(t, svc.IsEligibleForFreeTrial(ctx, "eva@example.fr"))

	// First record wins; the repeat did not overwrite it.
	raw, found, err := svc.kv.Get(ctx, usedEmailPrefix+"eva@example.fr")
	require.NoError(t, err)
	require.True(t, found)
	assert.Contains(t, raw, "procuration")

	// Only one document was consumed, so the stats counter stands at one
	// no matter how often the marker is rewritten.
	count, err := svc.FreeDocumentStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestEligibilityFailsOpenOnStoreError(t *testing.T) {
	kv := &failingKV{KV: NewMemoryKV(), failGet: true}
	svc := NewService(kv)

	assert.True(t, svc.IsEligibleForFreeTrial(context.Background(), "any@example.fr"))
}

func TestMutationsFailClosedOnStoreError(t *testing.T) {
	kv := &failingKV{KV: NewMemoryKV(), failSet: true}
	svc := NewService(kv)
	ctx := context.Background()

	_, err := svc.BeginFreeTrialChallenge(ctx, "any@example.fr", "procuration", nil)
	assert.ErrorIs(t, err, ErrStoreUnavailable)

	kv2 := &failingKV{KV: NewMemoryKV(), failSetNX: true}
	svc2 := NewService(kv2)
	err = svc2.MarkFreeTrialUsed(ctx, "any@example.fr", "procuration")
	assert.ErrorIs(t, err, ErrStoreUnavailable)
}

func TestCreatePackIdempotentBySession(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	first, err := svc.CreatePack(ctx, "Nina@Example.fr", "cs_test_abc123", PackSize)
	require.NoError(t, err)
	assert.Equal(t, PackSize, first.DocumentsRemaining)
	assert.Equal(t, "nina@example.fr", first.Email)

	second, err := svc.CreatePack(ctx, "nina@example.fr", "cs_test_abc123", PackSize)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	// The replay did not grant a second pack.
	active, err := svc.GetActivePack(ctx, "nina@example.fr")
	require.NoError(t, err)
	require.NotNil(t, active)
	ids, err := svc.userPackIDs(ctx, "nina@example.fr")
	require.NoError(t, err)
	assert.Len(t, ids, 1)
}

func TestCreatePackRetryRepairsUserIndex(t *testing.T) {
	// The session key can be claimed and then the index write fail; a
	// retried activation must leave the pack reachable, not orphaned.
	kv := &indexFailingKV{KV: NewMemoryKV(), failures: 1}
	svc := NewService(kv)
	ctx := context.Background()

	_, err := svc.CreatePack(ctx, "omar@example.fr", "cs_test_retry", PackSize)
	require.Error(t, err)

	pack, err := svc.CreatePack(ctx, "omar@example.fr", "cs_test_retry", PackSize)
	require.NoError(t, err)

	active, err := svc.GetActivePack(ctx, "omar@example.fr")
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, pack.ID, active.ID)

	// The repair did not duplicate the index entry either.
	ids, err := svc.userPackIDs(ctx, "omar@example.fr")
	require.NoError(t, err)
	assert.Len(t, ids, 1)
}

func TestConsumePackCreditSequence(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	pack, err := svc.CreatePack(ctx, "hugo@example.fr", "cs_test_seq", PackSize)
	require.NoError(t, err)

	for want := PackSize - 1; want >= 0; want-- {
		remaining, err := svc.ConsumePackCredit(ctx, pack.ID, "procuration")
		require.NoError(t, err)
		assert.Equal(t, want, remaining)
	}

	_, err = svc.ConsumePackCredit(ctx, pack.ID, "procuration")
	assert.ErrorIs(t, err, ErrPackExhausted)

	stored, err := svc.GetPack(ctx, pack.ID)
	require.NoError(t, err)
	assert.Len(t, stored.DocumentsUsed, PackSize)
}

func TestConsumeLastCreditSingleWinner(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	pack, err := svc.CreatePack(ctx, "zoe@example.fr", "cs_test_race", PackSize)
	require.NoError(t, err)
	for i := 0; i < PackSize-1; i++ {
		_, err = svc.ConsumePackCredit(ctx, pack.ID, "procuration")
		require.NoError(t, err)
	}

	const contenders = 8
	var wg sync.WaitGroup
	var mu sync.Mutex
	winners := 0
	for i := 0; i < contenders; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.ConsumePackCredit(ctx, pack.ID, "procuration"); err == nil {
				mu.Lock()
				winners++
				mu.Unlock()
			} else {
				assert.ErrorIs(t, err, ErrPackExhausted)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, winners)
}

func TestGetActivePackSkipsExpiredAndExhausted(t *testing.T) {
	svc, _, now := newTestService(t)
	ctx := context.Background()

	exhausted, err := svc.CreatePack(ctx, "sam@example.fr", "cs_test_old", PackSize)
	require.NoError(t, err)
	for i := 0; i < PackSize; i++ {
		_, err = svc.ConsumePackCredit(ctx, exhausted.ID, "procuration")
		require.NoError(t, err)
	}

	fresh, err := svc.CreatePack(ctx, "sam@example.fr", "cs_test_new", PackSize)
	require.NoError(t, err)

	active, err := svc.GetActivePack(ctx, "sam@example.fr")
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, fresh.ID, active.ID)

	*now = now.Add(PackValidity + time.Hour)

	active, err = svc.GetActivePack(ctx, "sam@example.fr")
	require.NoError(t, err)
	assert.Nil(t, active)

	_, err = svc.ConsumePackCredit(ctx, fresh.ID, "procuration")
	assert.ErrorIs(t, err, ErrPackInvalidOrExpired)
}

func TestConsumeUnknownPack(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.ConsumePackCredit(context.Background(), "pack_missing", "procuration")
	assert.ErrorIs(t, err, ErrPackInvalidOrExpired)
}

// indexFailingKV fails the first N writes to user-pack index keys.
type indexFailingKV struct {
	KV
	failures int
}

func (f *indexFailingKV) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if f.failures > 0 && strings.HasPrefix(key, userPacksPrefix) {
		f.failures--
		return errStoreDown
	}
	return f.KV.Set(ctx, key, value, ttl)
}

// failingKV injects store failures per operation.
type failingKV struct {
	KV
	failGet   bool
	failSet   bool
	failSetNX bool
}

var errStoreDown = errors.New("connection refused")

func (f *failingKV) Get(ctx context.Context, key string) (string, bool, error) {
	if f.failGet {
		return "", false, errStoreDown
	}
	return f.KV.Get(ctx, key)
}

func (f *failingKV) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if f.failSet {
		return errStoreDown
	}
	return f.KV.Set(ctx, key, value, ttl)
}

func (f *failingKV) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	if f.failSetNX {
		return false, errStoreDown
	}
	return f.KV.SetNX(ctx, key, value, ttl)
}
