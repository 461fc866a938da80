// Package pacing computes per-message send times for a campaign fan-out.
package pacing

import (
	"math/rand/v2"
	"sync"
	"time"

	"github.com/sungwon/campaign-dispatch/internal/storage"
)

// Resolver advances the scheduling cursor for one campaign. Implementations
// must never return a time before cursor.
type Resolver interface {
	Next(cursor time.Time, campaign *storage.Campaign) time.Time
}

// Immediate schedules every message at the cursor.
type Immediate struct{}

func (Immediate) Next(cursor time.Time, _ *storage.Campaign) time.Time {
	return cursor
}

// Fixed advances the cursor by a constant step.
type Fixed struct {
	Step time.Duration
}

func (f Fixed) Next(cursor time.Time, _ *storage.Campaign) time.Time {
	if f.Step <= 0 {
		return cursor
	}
	return cursor.Add(f.Step)
}

// Random advances the cursor by a uniformly chosen whole number of seconds in
// [Min, Max]. It is safe for concurrent use; Source must not be used
// elsewhere.
type Random struct {
	Min    int
	Max    int
	Source *rand.Rand

	mu sync.Mutex
}

// NewRandom returns a Random resolver. Bounds are normalised so that
// 0 <= min <= max. A nil source is replaced by a time-seeded PCG.
func NewRandom(min, max int, source *rand.Rand) *Random {
	if min < 0 {
		min = 0
	}
	if max < min {
		min, max = max, min
		if min < 0 {
			min = 0
		}
	}
	if source == nil {
		seed := uint64(time.Now().UnixNano())
		source = rand.New(rand.NewPCG(seed, seed>>1|1))
	}
	return &Random{Min: min, Max: max, Source: source}
}

func (r *Random) Next(cursor time.Time, _ *storage.Campaign) time.Time {
	delay := r.Min
	if r.Max > r.Min {
		r.mu.Lock()
		delay += r.Source.IntN(r.Max - r.Min + 1)
		r.mu.Unlock()
	}
	return cursor.Add(time.Duration(delay) * time.Second)
}

// FromConfig builds the resolver described by the random delay bounds in
// seconds. Pacing applies only when both bounds are non-zero; otherwise every
// message is scheduled immediately.
func FromConfig(min, max int, source *rand.Rand) Resolver {
	if min == 0 || max == 0 {
		return Immediate{}
	}
	if min == max {
		return Fixed{Step: time.Duration(min) * time.Second}
	}
	return NewRandom(min, max, source)
}
