package controllers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/docexpress/docexpress/app/models"
	"github.com/docexpress/docexpress/internal/pkg/database"
	"github.com/docexpress/docexpress/internal/pkg/metrics/counter"
	"github.com/docexpress/docexpress/internal/pkg/statistics"
)

// HandleAdminStats returns operational counters for the admin dashboard.
func HandleAdminStats(c *fiber.Ctx) error {
	db := database.GetDB()

	stats := statistics.GetStatisticsData()

	planCounts := map[string]int64{}
	rows := []struct {
		Plan  string
		Count int64
	}{}
	if err := db.Model(&models.Subscription{}).
		Select("plan, COUNT(*) as count").
		Where("status = ?", models.SubscriptionStatusActive).
		Group("plan").
		Scan(&rows).Error; err != nil {
		return internalError(c, "Impossible de charger les statistiques")
	}
	for _, row := range rows {
		planCounts[row.Plan] = row.Count
	}

	freeDocs, err := ledgerService().FreeDocumentStats(c.Context())
	if err != nil {
		log.Warnf("free document stats unavailable: %v", err)
		freeDocs = 0
	}

	docCounts, err := counter.DocumentCounts()
	if err != nil {
		log.Warnf("document counters unavailable: %v", err)
		docCounts = map[string]int64{}
	}

	return c.JSON(fiber.Map{
		"users":                stats.TotalUsers,
		"subscribers":          stats.TotalSubscribers,
		"documents_total":      stats.TotalDocuments,
		"documents_today":      stats.TodayDocuments,
		"documents_by_slug":    docCounts,
		"active_plans":         planCounts,
		"free_documents_total": freeDocs,
	})
}
