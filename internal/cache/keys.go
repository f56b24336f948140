package cache

import (
	"fmt"

	"github.com/google/uuid"
)

func JobResultKey(jobID uuid.UUID) string {
	return fmt.Sprintf("job:result:%s", jobID)
}

// RateLimitKey namespaces a limiter counter by scope ("token", "ip") so a
// token prefix can never collide with an address.
func RateLimitKey(scope, id string) string {
	return fmt.Sprintf("ratelimit:%s:%s", scope, id)
}
