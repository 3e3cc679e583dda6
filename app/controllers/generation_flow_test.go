package controllers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docexpress/docexpress/app/models"
	"github.com/docexpress/docexpress/internal/pkg/constants"
	"github.com/docexpress/docexpress/internal/pkg/entitlements"
	"github.com/docexpress/docexpress/internal/pkg/ledger"
	"github.com/docexpress/docexpress/internal/pkg/pdf"
	"github.com/docexpress/docexpress/internal/pkg/usercontext"
)

var errRenderBroken = errors.New("renderer backend down")

type fakeRenderer struct {
	err   error
	calls int
}

func (f *fakeRenderer) Render(ctx context.Context, req pdf.RenderRequest) ([]byte, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return []byte("%PDF-1.4 fake"), nil
}

// flowRepo is a minimal entitlement repository for a single free-plan user.
type flowRepo struct {
	usage int
}

func (r *flowRepo) GetUserByID(id uint) (*models.User, error) {
	return &models.User{ID: id, Email: "user@test.fr"}, nil
}

func (r *flowRepo) GetSubscriptionByUserID(userID uint) (*models.Subscription, error) {
	return nil, nil
}

func (r *flowRepo) GetMonthlyUsageCount(userID uint, month, year int) (int, error) {
	return r.usage, nil
}

func (r *flowRepo) IncrementMonthlyUsage(userID uint, month, year int) error {
	r.usage++
	return nil
}

// swapDependencies replaces the handler capability seams with in-process
// fakes for the duration of the test.
func swapDependencies(t *testing.T, kv ledger.KV, repo entitlements.Repository, renderer pdf.Renderer) {
	t.Helper()

	origLedger := ledgerService
	origEntitlements := entitlementsService
	origRenderer := newRenderer
	origCounter := recordGeneration
	origCode := sendVerificationCode
	origReady := sendDocumentReady

	ledgerSvc := ledger.NewService(kv)
	entitlementSvc := entitlements.NewService(repo)
	ledgerService = func() *ledger.Service { return ledgerSvc }
	entitlementsService = func() *entitlements.Service { return entitlementSvc }
	newRenderer = func() pdf.Renderer { return renderer }
	recordGeneration = func(string) error { return nil }
	sendVerificationCode = func(to, code string) error { return nil }
	sendDocumentReady = func(to, title string) error { return nil }

	t.Cleanup(func() {
		ledgerService = origLedger
		entitlementsService = origEntitlements
		newRenderer = origRenderer
		recordGeneration = origCounter
		sendVerificationCode = origCode
		sendDocumentReady = origReady
	})
}

func newFlowApp(loggedIn bool) *fiber.App {
	app := fiber.New()
	if loggedIn {
		app.Use(func(c *fiber.Ctx) error {
			c.Locals("USER_CONTEXT", usercontext.UserContext{
				UserID:     1,
				Email:      "user@test.fr",
				IsLoggedIn: true,
			})
			return c.Next()
		})
	}
	app.Post("/documents/:slug/generate", HandleGenerateDocument)
	app.Post("/pack", HandlePackConsume)
	app.Post("/free-document/redeem", HandleFreeTrialRedeem)
	app.Post("/checkout", HandleCreateCheckout)
	app.Get("/checkout/download", HandleSingleDownload)
	return app
}

func postJSON(t *testing.T, app *fiber.App, path string, body interface{}) *http.Response {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func attestationForm() map[string]string {
	return map[string]string{
		"prenom":        "Marie",
		"nom":           "Durand",
		"adresse":       "1 rue de la Paix",
		"codePostal":    "75002",
		"ville":         "Paris",
		"dateNaissance": "1990-05-12",
		"lieuNaissance": "Lyon",
		"objet":         "domiciliation",
	}
}

func TestGenerateFailedRenderDoesNotCountUsage(t *testing.T) {
	repo := &flowRepo{}
	renderer := &fakeRenderer{err: errRenderBroken}
	swapDependencies(t, ledger.NewMemoryKV(), repo, renderer)
	app := newFlowApp(true)

	resp := postJSON(t, app, "/documents/attestation-honneur/generate",
		fiber.Map{"form": attestationForm()})
	assert.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, 1, renderer.calls)
	assert.Equal(t, 0, repo.usage, "a failed render must not consume quota")
}

func TestGenerateFreeTierCountsUsageAfterRender(t *testing.T) {
	repo := &flowRepo{}
	swapDependencies(t, ledger.NewMemoryKV(), repo, &fakeRenderer{})
	app := newFlowApp(true)

	resp := postJSON(t, app, "/documents/attestation-honneur/generate",
		fiber.Map{"form": attestationForm()})
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/pdf", resp.Header.Get(fiber.HeaderContentType))
	assert.Equal(t, 1, repo.usage)

	// The free plan allows one document per month, so the very next call
	// must be denied by the usage just recorded.
	resp = postJSON(t, app, "/documents/attestation-honneur/generate",
		fiber.Map{"form": attestationForm()})
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)
	assert.Equal(t, 1, repo.usage)
}

func TestPackCreditSpentBeforeRender(t *testing.T) {
	kv := ledger.NewMemoryKV()
	renderer := &fakeRenderer{err: errRenderBroken}
	swapDependencies(t, kv, &flowRepo{}, renderer)
	app := newFlowApp(false)

	svc := ledgerService()
	pack, err := svc.CreatePack(context.Background(), "buyer@test.fr", "cs_test_flow", ledger.PackSize)
	require.NoError(t, err)

	resp := postJSON(t, app, "/pack", fiber.Map{
		"email":         "buyer@test.fr",
		"pack_id":       pack.ID,
		"document_slug": "attestation-honneur",
		"form":          attestationForm(),
	})
	assert.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, 1, renderer.calls)

	// The credit is gone even though no document was delivered: a crash
	// after the decrement must never leave a spendable credit behind.
	active, err := svc.GetActivePack(context.Background(), "buyer@test.fr")
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, ledger.PackSize-1, active.DocumentsRemaining)
}

func TestPackConsumeReportsRemainingCredits(t *testing.T) {
	kv := ledger.NewMemoryKV()
	swapDependencies(t, kv, &flowRepo{}, &fakeRenderer{})
	app := newFlowApp(false)

	svc := ledgerService()
	pack, err := svc.CreatePack(context.Background(), "buyer@test.fr", "cs_test_flow2", ledger.PackSize)
	require.NoError(t, err)

	resp := postJSON(t, app, "/pack", fiber.Map{
		"email":         "buyer@test.fr",
		"pack_id":       pack.ID,
		"document_slug": "attestation-honneur",
		"form":          attestationForm(),
	})
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/pdf", resp.Header.Get(fiber.HeaderContentType))
	assert.Equal(t, "2", resp.Header.Get(constants.HeaderDocumentsRemaining))
}

func TestFreeTrialStaysEligibleWhenRenderFails(t *testing.T) {
	kv := ledger.NewMemoryKV()
	renderer := &fakeRenderer{err: errRenderBroken}
	swapDependencies(t, kv, &flowRepo{}, renderer)
	app := newFlowApp(false)

	svc := ledgerService()
	code, err := svc.BeginFreeTrialChallenge(context.Background(),
		"first@test.fr", "attestation-honneur", attestationForm())
	require.NoError(t, err)

	resp := postJSON(t, app, "/free-document/redeem",
		fiber.Map{"email": "first@test.fr", "code": code})
	assert.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, 1, renderer.calls)
	assert.True(t, svc.IsEligibleForFreeTrial(context.Background(), "first@test.fr"),
		"the lifetime credit burns only after a delivered document")
}

func TestFreeTrialBurnedAfterSuccessfulRender(t *testing.T) {
	kv := ledger.NewMemoryKV()
	swapDependencies(t, kv, &flowRepo{}, &fakeRenderer{})
	app := newFlowApp(false)

	svc := ledgerService()
	code, err := svc.BeginFreeTrialChallenge(context.Background(),
		"first@test.fr", "attestation-honneur", attestationForm())
	require.NoError(t, err)

	resp := postJSON(t, app, "/free-document/redeem",
		fiber.Map{"email": "first@test.fr", "code": code})
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/pdf", resp.Header.Get(fiber.HeaderContentType))
	assert.False(t, svc.IsEligibleForFreeTrial(context.Background(), "first@test.fr"))
}

func TestCreateCheckoutSingleValidation(t *testing.T) {
	t.Setenv("STRIPE_SECRET_KEY", "")
	swapDependencies(t, ledger.NewMemoryKV(), &flowRepo{}, &fakeRenderer{})
	app := newFlowApp(false)

	// Unknown document.
	resp := postJSON(t, app, "/checkout", fiber.Map{
		"type":          "single",
		"email":         "buyer@test.fr",
		"document_slug": "document-inconnu",
		"form":          attestationForm(),
	})
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)

	// Incomplete form.
	form := attestationForm()
	delete(form, "objet")
	resp = postJSON(t, app, "/checkout", fiber.Map{
		"type":          "single",
		"email":         "buyer@test.fr",
		"document_slug": "attestation-honneur",
		"form":          form,
	})
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	// Valid request without Stripe configured reports payment_unavailable.
	resp = postJSON(t, app, "/checkout", fiber.Map{
		"type":          "single",
		"email":         "buyer@test.fr",
		"document_slug": "attestation-honneur",
		"form":          attestationForm(),
	})
	assert.Equal(t, fiber.StatusServiceUnavailable, resp.StatusCode)
}

func TestSingleDownloadRequiresSession(t *testing.T) {
	t.Setenv("STRIPE_SECRET_KEY", "")
	swapDependencies(t, ledger.NewMemoryKV(), &flowRepo{}, &fakeRenderer{})
	app := newFlowApp(false)

	req := httptest.NewRequest(http.MethodGet, "/checkout/download", nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	req = httptest.NewRequest(http.MethodGet, "/checkout/download?session_id=cs_test_x", nil)
	resp, err = app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusServiceUnavailable, resp.StatusCode)
}
