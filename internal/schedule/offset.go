package schedule

import (
	"math/rand"
	"sync"
	"time"
)

const (
	DefaultOffsetMin = 3 * time.Minute
	DefaultOffsetMax = 8 * time.Minute
)

// OffsetPolicy picks the trigger moment for an event: uniformly random in
// [Start+Min, Start+Max). Randomness is math/rand on purpose — the offset
// only needs to look human, not be unpredictable — and a fixed seed makes
// schedules reproducible in tests.
type OffsetPolicy struct {
	Min time.Duration
	Max time.Duration

	mu  sync.Mutex
	rnd *rand.Rand
}

// NewOffsetPolicy builds a policy with the given bounds. Non-positive or
// inverted bounds fall back to the defaults. seed == 0 seeds from the
// clock.
func NewOffsetPolicy(min, max time.Duration, seed int64) *OffsetPolicy {
	if min <= 0 || max <= min {
		min, max = DefaultOffsetMin, DefaultOffsetMax
	}
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &OffsetPolicy{Min: min, Max: max, rnd: rand.New(rand.NewSource(seed))}
}

// TriggerAt returns start plus a uniform offset in [Min, Max).
func (p *OffsetPolicy) TriggerAt(start time.Time) time.Time {
	p.mu.Lock()
	off := p.Min + time.Duration(p.rnd.Int63n(int64(p.Max-p.Min)))
	p.mu.Unlock()
	return start.Add(off)
}
