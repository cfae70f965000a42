package app

import (
	"os"
	"strings"

	"github.com/mirrorpanel/mirrorpanel-backend/internal/audit"
	"github.com/mirrorpanel/mirrorpanel-backend/internal/platform/gcp"
	"github.com/mirrorpanel/mirrorpanel-backend/internal/platform/logger"
)

type Clients struct {
	AuditBus audit.Bus
	Bucket   gcp.BucketService
}

// wireClients resolves optional external collaborators from the environment.
// Each one degrades to nil (or a noop) when unconfigured so the core API
// keeps working in minimal deployments.
func wireClients(log *logger.Logger) Clients {
	var bus audit.Bus
	if strings.TrimSpace(os.Getenv("REDIS_ADDR")) != "" {
		redisBus, err := audit.NewRedisBus(log)
		if err != nil {
			log.Warn("redis audit bus unavailable, falling back to noop", "error", err)
		} else {
			bus = redisBus
		}
	}
	if bus == nil {
		bus = audit.NewNoopBus()
	}

	var bucket gcp.BucketService
	if strings.TrimSpace(os.Getenv("GCS_BUCKET_NAME")) != "" {
		bs, err := gcp.NewBucketService(log)
		if err != nil {
			log.Warn("export bucket mirror unavailable", "error", err)
		} else {
			bucket = bs
		}
	}

	return Clients{AuditBus: bus, Bucket: bucket}
}
