package cache

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// InterviewTTL bounds how stale a cached interview may be if an
// invalidation is lost.
const InterviewTTL = 30 * time.Second

func InterviewKey(id uuid.UUID) string {
	return fmt.Sprintf("interview:%s", id)
}

// RateLimitKey buckets requests per subject and minute window.
func RateLimitKey(subject string, window time.Time) string {
	return fmt.Sprintf("ratelimit:%s:%d", subject, window.Unix()/60)
}
