package models

import (
	"time"

	"github.com/google/uuid"
)

// LimitCleanupInterval is how often an Organization's quota usage counters
// are swept back to zero.
type LimitCleanupInterval string

const (
	LimitCleanupIntervalHour      LimitCleanupInterval = "1h"
	LimitCleanupInterval12Hours   LimitCleanupInterval = "12h"
	LimitCleanupInterval24Hours   LimitCleanupInterval = "24h"
	LimitCleanupIntervalWeek      LimitCleanupInterval = "1w"
	LimitCleanupIntervalMonth     LimitCleanupInterval = "1m"

	DefaultLimitCleanupInterval = LimitCleanupIntervalHour
)

// Duration returns the time.Duration a LimitCleanupInterval represents.
// Month is treated as 30 days.
func (i LimitCleanupInterval) Duration() (time.Duration, bool) {
	switch i {
	case LimitCleanupIntervalHour:
		return time.Hour, true
	case LimitCleanupInterval12Hours:
		return 12 * time.Hour, true
	case LimitCleanupInterval24Hours:
		return 24 * time.Hour, true
	case LimitCleanupIntervalWeek:
		return 7 * 24 * time.Hour, true
	case LimitCleanupIntervalMonth:
		return 30 * 24 * time.Hour, true
	default:
		return 0, false
	}
}

// Organization is the top-level tenant that owns teams and agents.
type Organization struct {
	ID                   uuid.UUID            `json:"id"`
	Name                 string               `json:"name"`
	LimitCleanupInterval LimitCleanupInterval `json:"limitCleanupInterval"`
}
