package services

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/rizonesoft/isotone-sub002/internal/models"
)

var tracer = otel.Tracer("github.com/rizonesoft/isotone-sub002/internal/services")

// Locker serializes a check-then-act sequence on a key. The database
// implementation holds a transaction-scoped advisory lock and carries the
// transaction in the context handed to fn.
type Locker interface {
	WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error
}

// withStoreTimeout bounds a single store call. A non-positive timeout only adds cancellation.
func withStoreTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// storeError tags a repository failure as ErrStoreUnavailable
func storeError(op string, err error) error {
	return fmt.Errorf("%s: %w: %v", op, models.ErrStoreUnavailable, err)
}
