package api

import (
	"context"

	"github.com/vytor/lingoflash/internal/services"
)

// HealthChecker reports whether a dependency can serve traffic.
type HealthChecker interface {
	Check(ctx context.Context) error
}

type Server struct {
	SessionService    services.SessionService
	SchedulingService services.SchedulingService
	ContentService    services.ContentService
	DB                HealthChecker
}
