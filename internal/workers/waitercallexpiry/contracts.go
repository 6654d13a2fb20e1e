package waitercallexpiry

import (
	"context"
	"time"
)

type (
	// CallService completes waiter calls nobody attended to
	CallService interface {
		ExpireStale(ctx context.Context, ttl time.Duration) (int, error)
	}
)
