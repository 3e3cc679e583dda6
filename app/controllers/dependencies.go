package controllers

import (
	"github.com/docexpress/docexpress/internal/pkg/chat"
	"github.com/docexpress/docexpress/internal/pkg/database"
	"github.com/docexpress/docexpress/internal/pkg/entitlements"
	"github.com/docexpress/docexpress/internal/pkg/ledger"
	"github.com/docexpress/docexpress/internal/pkg/mail"
	"github.com/docexpress/docexpress/internal/pkg/metrics/counter"
	"github.com/docexpress/docexpress/internal/pkg/pdf"
)

// Capability constructors used by the handlers. Declared as variables so
// tests can swap in fakes without a live store, renderer or model backend.
var (
	ledgerService = func() *ledger.Service {
		return ledger.NewService(ledger.NewRedisKVFromCache())
	}
	entitlementsService = func() *entitlements.Service {
		return entitlements.NewServiceFromDB(database.GetDB())
	}
	newRenderer          = pdf.NewRendererFromEnv
	newAssistant         = chat.NewAssistantFromEnv
	recordGeneration     = counter.AddDocumentGenerated
	sendVerificationCode = mail.SendVerificationCode
	sendDocumentReady    = mail.SendDocumentReady
)
