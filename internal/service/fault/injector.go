package fault

import (
	"context"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/ShannaChang/serverless-demo-for-aiops/internal/domain"
)

const (
	wrongIDPrefix   = "wrong-"
	wrongIDLength   = 8
	wrongIDAttempts = 4
	base36          = "0123456789abcdefghijklmnopqrstuvwxyz"
)

// RandomSource supplies the random draws behind probabilistic faults.
type RandomSource interface {
	Intn(n int) int
}

type lockedSource struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

// NewRandomSource returns a goroutine-safe source seeded with seed.
func NewRandomSource(seed int64) RandomSource {
	return &lockedSource{rnd: rand.New(rand.NewSource(seed))}
}

func (s *lockedSource) Intn(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rnd.Intn(n)
}

// Decision lists the faults to apply to one request.
type Decision struct {
	Delay        time.Duration
	SubstituteID string
	ForceDeny    bool
}

// Substituted reports whether the lookup id was replaced.
func (d Decision) Substituted() bool { return d.SubstituteID != "" }

// Injector turns a Policy into per-request decisions.
type Injector struct {
	policy Policy
	rnd    RandomSource
	logger *slog.Logger
}

// NewInjector builds an injector. A nil rnd is seeded from the clock.
func NewInjector(policy Policy, rnd RandomSource, logger *slog.Logger) *Injector {
	if rnd == nil {
		rnd = NewRandomSource(time.Now().UnixNano())
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Injector{policy: policy, rnd: rnd, logger: logger}
}

// Policy returns the policy the injector was built with.
func (i *Injector) Policy() Policy { return i.policy }

// Decide evaluates the policy for a request to endpoint. id is the requested item id and is
// only consulted on the GetById path.
func (i *Injector) Decide(endpoint domain.Endpoint, id string) Decision {
	var d Decision
	if i.policy.injectLatency {
		d.Delay = i.policy.latencyAmount
	}
	switch endpoint {
	case domain.EndpointGetByID:
		if i.policy.injectWrongIDs && i.policy.wrongIDProbabilityPct > 0 {
			if i.rnd.Intn(100) < i.policy.wrongIDProbabilityPct {
				d.SubstituteID = i.wrongID(id)
			}
		}
		d.ForceDeny = i.policy.simulateStoreAccessDenied
	case domain.EndpointPut:
		d.ForceDeny = i.policy.simulateStoreAccessDenied
	}
	return d
}

// Wait suspends the caller for the decided delay. It returns early only when ctx ends.
func (i *Injector) Wait(ctx context.Context, endpoint domain.Endpoint, d Decision) error {
	if d.Delay <= 0 {
		return nil
	}
	i.logger.Info("injecting latency", "endpoint", endpoint, "delay_ms", d.Delay.Milliseconds())
	timer := time.NewTimer(d.Delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (i *Injector) wrongID(original string) string {
	for attempt := 0; attempt < wrongIDAttempts; attempt++ {
		buf := make([]byte, wrongIDLength)
		for n := range buf {
			buf[n] = base36[i.rnd.Intn(len(base36))]
		}
		candidate := wrongIDPrefix + string(buf)
		if candidate != original {
			i.logger.Info("injecting wrong id", "original_id", original, "substitute_id", candidate)
			return candidate
		}
	}
	// The original already looks like a generated id and every draw matched it.
	candidate := wrongIDPrefix + original
	i.logger.Info("injecting wrong id", "original_id", original, "substitute_id", candidate)
	return candidate
}
