// internal/patron/service.go
package patron

import (
	"context"
)

// Service defines the interface for the patron service.
type Service interface {
	// Status never fails for a malformed id; the report carries
	// StatusInvalidID instead. Only storage failures are returned as errors.
	Status(ctx context.Context, patronID string) (*StatusReport, error)
}
