package counter

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/docexpress/docexpress/internal/pkg/cache"
)

const (
	generatedKey   = "document:counters:generated"
	dailyKeyFormat = "document:counters:daily:%s"

	// Daily counters live long enough to survive a day rollover plus slack.
	dailyTTL = 48 * time.Hour
)

// AddDocumentGenerated increments the generation counter for a document slug
// and the rolling daily total. Counters are best-effort: callers should log
// and continue on error rather than fail a delivery.
func AddDocumentGenerated(slug string) error {
	ctx := context.Background()
	rdb := cache.GetClient()

	if err := rdb.HIncrBy(ctx, generatedKey, slug, 1).Err(); err != nil {
		return err
	}

	dailyKey := fmt.Sprintf(dailyKeyFormat, time.Now().Format("2006-01-02"))
	if err := rdb.Incr(ctx, dailyKey).Err(); err != nil {
		return err
	}
	return rdb.Expire(ctx, dailyKey, dailyTTL).Err()
}

// DocumentCounts returns the per-slug generation counters.
func DocumentCounts() (map[string]int64, error) {
	ctx := context.Background()
	data, err := cache.GetClient().HGetAll(ctx, generatedKey).Result()
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int64, len(data))
	for slug, v := range data {
		n, perr := strconv.ParseInt(v, 10, 64)
		if perr != nil {
			continue
		}
		counts[slug] = n
	}
	return counts, nil
}

// TotalGenerated returns the all-time number of generated documents.
func TotalGenerated() (int64, error) {
	counts, err := DocumentCounts()
	if err != nil {
		return 0, err
	}
	var total int64
	for _, n := range counts {
		total += n
	}
	return total, nil
}

// GeneratedToday returns the number of documents generated since midnight.
func GeneratedToday() (int64, error) {
	ctx := context.Background()
	dailyKey := fmt.Sprintf(dailyKeyFormat, time.Now().Format("2006-01-02"))
	val, err := cache.GetClient().Get(ctx, dailyKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, err
	}
	return strconv.ParseInt(val, 10, 64)
}
