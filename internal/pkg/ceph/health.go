package ceph

import (
	"cmon/internal/pkg/store"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Health states reported by ceph_health_status.
const (
	HealthOK      = "OK"
	HealthWarning = "WARNING"
	HealthError   = "ERROR"
)

var healthMap = map[float64]string{
	0: HealthOK,
	1: HealthWarning,
	2: HealthError,
}

// Health maps ceph_health_status to OK, WARNING or ERROR. Any other value
// is an error, never a default.
func Health(s *store.Snapshot) (string, error) {
	f, err := family(s, "ceph_health_status")
	if err != nil {
		return "", err
	}
	v, ok := f.Singleton()
	if !ok {
		return "", errors.Wrap(ErrMetricMissing, "ceph_health_status has no singleton value")
	}

	status, ok := healthMap[v]
	if !ok {
		return "", errors.Wrapf(ErrUnknownHealth, "value %v", v)
	}
	zap.S().Debugw("health status", "status", status)

	return status, nil
}
