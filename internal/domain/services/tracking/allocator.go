package tracking

import (
	"context"
	"fmt"
	"math/rand"

	"go.uber.org/zap"
)

// Code pool bounds. Three-digit codes excluding anything under 100, so a code
// never starts with a zero that would vanish from the amount's last digits.
const (
	codeMin = 100
	codeMax = 999
)

// poolSaturationThreshold is the number of outstanding codes at which fresh
// allocation stops and the oldest outstanding code is reused. With 900
// possible codes, a saturated pool would make random probing spin forever.
const poolSaturationThreshold = 900

// CodeStore lists the tracking codes of unsettled payments, oldest first.
type CodeStore interface {
	UnsettledCodes(ctx context.Context) ([]int, error)
}

// Allocator hands out tracking codes that are unique among open payments.
type Allocator struct {
	store  CodeStore
	rand   *rand.Rand
	logger *zap.Logger
}

// NewAllocator creates an allocator. A nil rng falls back to the global
// source; tests inject a seeded one.
func NewAllocator(store CodeStore, rng *rand.Rand, logger *zap.Logger) *Allocator {
	return &Allocator{store: store, rand: rng, logger: logger}
}

// Allocate returns a code not held by any open payment. When the pool is
// saturated it reuses the oldest outstanding code: that payment has waited
// the longest and is the most likely to be abandoned.
func (a *Allocator) Allocate(ctx context.Context) (int, error) {
	taken, err := a.store.UnsettledCodes(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to load outstanding codes: %w", err)
	}

	if len(taken) >= poolSaturationThreshold {
		a.logger.Warn("tracking code pool saturated, reusing oldest code",
			zap.Int("outstanding", len(taken)),
			zap.Int("code", taken[0]))
		return taken[0], nil
	}

	inUse := make(map[int]struct{}, len(taken))
	for _, code := range taken {
		inUse[code] = struct{}{}
	}

	for {
		code := codeMin + a.intn(codeMax-codeMin+1)
		if _, used := inUse[code]; !used {
			return code, nil
		}
	}
}

func (a *Allocator) intn(n int) int {
	if a.rand != nil {
		return a.rand.Intn(n)
	}
	return rand.Intn(n)
}
