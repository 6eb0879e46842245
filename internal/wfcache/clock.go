package wfcache

import "time"

// Clock is the collaborator interface the cache uses for timestamps,
// injected so eviction scoring and entry creation/access times are
// deterministic under test.
type Clock interface{ NowNanos() int64 }

type systemClock struct{}

func (systemClock) NowNanos() int64 { return time.Now().UnixNano() }

var defaultClock Clock = systemClock{}

func wallClock() int64 { return defaultClock.NowNanos() }
