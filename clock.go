package corelock

import "time"

// Clock provides time operations for components that need to reason
// about deadlines or last-access timestamps. The default implementation
// uses time.Now; tests inject a fake clock to make TTL- and
// deadline-dependent behavior deterministic.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }
