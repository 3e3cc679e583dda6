package statistics

import (
	"strconv"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/docexpress/docexpress/app/models"
	"github.com/docexpress/docexpress/internal/pkg/cache"
	"github.com/docexpress/docexpress/internal/pkg/database"
	"github.com/docexpress/docexpress/internal/pkg/metrics/counter"
)

const (
	CacheKeyUsers       = "statistics:users:total"
	CacheKeySubscribers = "statistics:subscribers:total"
	CacheExpiration     = 30 * time.Minute
)

// StatisticsData holds the aggregate numbers shown on the admin dashboard.
type StatisticsData struct {
	TotalUsers       int
	TotalSubscribers int
	TotalDocuments   int64
	TodayDocuments   int64
}

var (
	lastCacheUpdate     time.Time
	cacheUpdateMutex    sync.Mutex
	cacheUpdateInterval = 5 * time.Minute
)

// ShouldUpdateCache reports whether the DB-derived statistics are stale.
func ShouldUpdateCache() bool {
	cacheUpdateMutex.Lock()
	defer cacheUpdateMutex.Unlock()

	return time.Since(lastCacheUpdate) > cacheUpdateInterval
}

// UpdateCacheIfNeeded refreshes the cached statistics when the update
// interval has elapsed.
func UpdateCacheIfNeeded() {
	if ShouldUpdateCache() {
		cacheUpdateMutex.Lock()
		defer cacheUpdateMutex.Unlock()

		if err := UpdateStatisticsCache(); err != nil {
			log.Errorf("statistics cache update failed: %v", err)
		} else {
			lastCacheUpdate = time.Now()
		}
	}
}

// ResetCacheUpdateTimer forces the next UpdateCacheIfNeeded call to refresh.
func ResetCacheUpdateTimer() {
	cacheUpdateMutex.Lock()
	defer cacheUpdateMutex.Unlock()

	lastCacheUpdate = time.Time{}
}

// UpdateStatisticsCache recomputes the DB-derived statistics and stores them
// in the cache. Document counters live in Redis already and need no refresh.
func UpdateStatisticsCache() error {
	db := database.GetDB()

	var totalUsers int64
	if err := db.Model(&models.User{}).Count(&totalUsers).Error; err != nil {
		return err
	}

	var totalSubscribers int64
	if err := db.Model(&models.Subscription{}).
		Where("plan <> ? AND status = ?", "free", "active").
		Count(&totalSubscribers).Error; err != nil {
		return err
	}

	if err := cache.Set(CacheKeyUsers, strconv.FormatInt(totalUsers, 10), CacheExpiration); err != nil {
		return err
	}
	if err := cache.Set(CacheKeySubscribers, strconv.FormatInt(totalSubscribers, 10), CacheExpiration); err != nil {
		return err
	}

	return nil
}

// GetTotalUsers returns the user count from cache, falling back to the
// database on a miss.
func GetTotalUsers() int {
	return cachedCount(CacheKeyUsers, func(count *int64) error {
		return database.GetDB().Model(&models.User{}).Count(count).Error
	})
}

// GetTotalSubscribers returns the number of active paid subscriptions.
func GetTotalSubscribers() int {
	return cachedCount(CacheKeySubscribers, func(count *int64) error {
		return database.GetDB().Model(&models.Subscription{}).
			Where("plan <> ? AND status = ?", "free", "active").
			Count(count).Error
	})
}

func cachedCount(key string, query func(*int64) error) int {
	val, err := cache.Get(key)
	if err != nil {
		var count int64
		if err := query(&count); err != nil {
			log.Errorf("statistics query for %s failed: %v", key, err)
			return 0
		}
		if err := cache.Set(key, strconv.FormatInt(count, 10), CacheExpiration); err != nil {
			log.Errorf("statistics cache write for %s failed: %v", key, err)
		}
		return int(count)
	}

	count, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0
	}
	return int(count)
}

// GetStatisticsData returns the dashboard statistics, refreshing the cache
// when needed. Document counters are read live from Redis and degrade to
// zero when unavailable.
func GetStatisticsData() StatisticsData {
	UpdateCacheIfNeeded()

	totalDocs, err := counter.TotalGenerated()
	if err != nil {
		log.Errorf("reading document counters failed: %v", err)
	}
	todayDocs, err := counter.GeneratedToday()
	if err != nil {
		log.Errorf("reading daily document counter failed: %v", err)
	}

	return StatisticsData{
		TotalUsers:       GetTotalUsers(),
		TotalSubscribers: GetTotalSubscribers(),
		TotalDocuments:   totalDocs,
		TodayDocuments:   todayDocs,
	}
}
