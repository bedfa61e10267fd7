package constants

import "time"

// Redis cache keys and TTLs for the queue engine.
// Pattern: medqueue:{module}:{operation}:{identifier}

// Queue counters change on every committed transition, so their TTL is a
// backstop; event-driven invalidation is the primary freshness mechanism.
const (
	TTL_QUEUE_STATUS  = 30 * time.Second
	TTL_QUEUE_LIST    = 1 * time.Minute
	TTL_QUEUE_STATS   = 5 * time.Minute
	TTL_ITEM_HISTORY  = 1 * time.Minute
	TTL_USER_IDENTITY = 6 * time.Hour
)

const CACHE_PREFIX = "medqueue"

const (
	CACHE_KEY_QUEUE_STATUS = CACHE_PREFIX + ":queues:status:uuid:" // + queue-id
	CACHE_KEY_QUEUE_LIST   = CACHE_PREFIX + ":queues:list:dept:"   // + department-id or "all"
	CACHE_KEY_QUEUE_STATS  = CACHE_PREFIX + ":queues:stats:dept:"  // + department-id or "all"
)

// Invalidation patterns (used with DeletePattern after a committed mutation)
const (
	PATTERN_INVALIDATE_QUEUE_LISTS = CACHE_PREFIX + ":queues:list:*"
	PATTERN_INVALIDATE_QUEUE_STATS = CACHE_PREFIX + ":queues:stats:*"
)

func BuildQueueStatusKey(queueID string) string {
	return CACHE_KEY_QUEUE_STATUS + queueID
}

func BuildQueueListKey(departmentID string) string {
	if departmentID == "" {
		departmentID = "all"
	}
	return CACHE_KEY_QUEUE_LIST + departmentID
}

func BuildQueueStatsKey(departmentID string) string {
	if departmentID == "" {
		departmentID = "all"
	}
	return CACHE_KEY_QUEUE_STATS + departmentID
}
