package xipology

import (
	"time"

	cache "github.com/patrickmn/go-cache"
)

// calibrationTTL and calibrationCleanup give each calibration a
// 5 minute expiration refreshed on access, swept every 10 minutes.
const (
	calibrationTTL     = 5 * time.Minute
	calibrationCleanup = 10 * time.Minute
)

// CalibrationCache is component F: a process-local, TTL-bounded cache
// of a resolver's measured (miss_avg, hit_avg) baseline, keyed by
// server address. Repeated Xipology instances built against the same
// resolver within the TTL window skip the 20-trial calibration probe.
type CalibrationCache struct {
	store *cache.Cache
}

// NewCalibrationCache builds an empty cache with the default TTL.
func NewCalibrationCache() *CalibrationCache {
	return &CalibrationCache{
		store: cache.New(calibrationTTL, calibrationCleanup),
	}
}

// Get returns the cached calibration for server, refreshing its TTL
// on access, or (nil, false) if absent or expired.
func (c *CalibrationCache) Get(server string) (*Calibration, bool) {
	val, found := c.store.Get(server)
	if !found {
		return nil, false
	}
	calib := val.(*Calibration)
	c.store.Set(server, calib, cache.DefaultExpiration)
	return calib, true
}

// Set stores calib for server with the default TTL.
func (c *CalibrationCache) Set(server string, calib *Calibration) {
	c.store.Set(server, calib, cache.DefaultExpiration)
}
