package core

import (
	"errors"
	"fmt"
	"sync/atomic"
)

// ErrModelCallLimit is returned once a turn has used up its model call budget.
var ErrModelCallLimit = errors.New("model call limit reached")

// ModelLimiter counts the model calls of one turn, sub-agent calls included,
// against an optional cap. Safe for concurrent use by sibling delegations.
type ModelLimiter struct {
	max   int64
	count atomic.Int64
}

// NewModelLimiter creates a limiter allowing max calls; 0 means unlimited.
func NewModelLimiter(max int) *ModelLimiter {
	return &ModelLimiter{max: int64(max)}
}

// Acquire reserves one call. Refused calls are not counted and wrap
// ErrModelCallLimit.
func (l *ModelLimiter) Acquire() error {
	n := l.count.Add(1)
	if l.max > 0 && n > l.max {
		l.count.Add(-1)
		return fmt.Errorf("%w (%d per turn)", ErrModelCallLimit, l.max)
	}
	return nil
}

// Count returns the calls made so far.
func (l *ModelLimiter) Count() int { return int(l.count.Load()) }
