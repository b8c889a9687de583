package fault

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ShannaChang/serverless-demo-for-aiops/internal/domain"
)

type fixedSource struct{ v int }

func (f fixedSource) Intn(n int) int { return f.v % n }

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestPolicyFromSettingsClamps(t *testing.T) {
	p := PolicyFromSettings(Settings{WrongIDProbabilityPct: 140, LatencyAmountMS: -5})
	require.Equal(t, 100, p.WrongIDProbabilityPct())
	require.Zero(t, p.LatencyAmount())

	p = PolicyFromSettings(Settings{WrongIDProbabilityPct: -3, LatencyAmountMS: 800, InjectLatency: true})
	require.Equal(t, 0, p.WrongIDProbabilityPct())
	require.Equal(t, 800*time.Millisecond, p.LatencyAmount())
	require.Equal(t, 800, p.Settings().LatencyAmountMS)
}

func TestDecideNoFaults(t *testing.T) {
	inj := NewInjector(PolicyFromSettings(Settings{}), NewRandomSource(1), quietLogger())
	for _, ep := range domain.Endpoints {
		d := inj.Decide(ep, "abc")
		require.Zero(t, d.Delay)
		require.False(t, d.Substituted())
		require.False(t, d.ForceDeny)
	}
}

func TestDecideLatencyIsDeterministic(t *testing.T) {
	inj := NewInjector(PolicyFromSettings(Settings{InjectLatency: true, LatencyAmountMS: 120}), NewRandomSource(7), quietLogger())
	for _, ep := range domain.Endpoints {
		require.Equal(t, 120*time.Millisecond, inj.Decide(ep, "x").Delay)
	}
}

func TestWrongIDAlwaysAtFullProbability(t *testing.T) {
	inj := NewInjector(PolicyFromSettings(Settings{InjectWrongIDs: true, WrongIDProbabilityPct: 100}), NewRandomSource(42), quietLogger())
	for i := 0; i < 500; i++ {
		d := inj.Decide(domain.EndpointGetByID, "item-1")
		require.True(t, d.Substituted())
		require.NotEqual(t, "item-1", d.SubstituteID)
		require.True(t, strings.HasPrefix(d.SubstituteID, wrongIDPrefix))
		require.Len(t, d.SubstituteID, len(wrongIDPrefix)+wrongIDLength)
	}
}

func TestWrongIDNeverAtZeroProbability(t *testing.T) {
	inj := NewInjector(PolicyFromSettings(Settings{InjectWrongIDs: true, WrongIDProbabilityPct: 0}), NewRandomSource(42), quietLogger())
	for i := 0; i < 500; i++ {
		require.False(t, inj.Decide(domain.EndpointGetByID, "item-1").Substituted())
	}
}

func TestWrongIDOnlyOnGetByID(t *testing.T) {
	inj := NewInjector(PolicyFromSettings(Settings{InjectWrongIDs: true, WrongIDProbabilityPct: 100}), NewRandomSource(1), quietLogger())
	require.False(t, inj.Decide(domain.EndpointList, "").Substituted())
	require.False(t, inj.Decide(domain.EndpointPut, "a").Substituted())
}

func TestWrongIDFallbackWhenDrawsCollide(t *testing.T) {
	// A source returning 0 always produces "wrong-00000000".
	inj := NewInjector(PolicyFromSettings(Settings{InjectWrongIDs: true, WrongIDProbabilityPct: 100}), fixedSource{}, quietLogger())
	d := inj.Decide(domain.EndpointGetByID, "wrong-00000000")
	require.Equal(t, "wrong-wrong-00000000", d.SubstituteID)
}

func TestWrongIDProbabilityRoughlyHonoured(t *testing.T) {
	inj := NewInjector(PolicyFromSettings(Settings{InjectWrongIDs: true, WrongIDProbabilityPct: 50}), NewRandomSource(99), quietLogger())
	hits := 0
	for i := 0; i < 2000; i++ {
		if inj.Decide(domain.EndpointGetByID, "id").Substituted() {
			hits++
		}
	}
	require.InDelta(t, 1000, hits, 150)
}

func TestForceDenyScopedToBlobPaths(t *testing.T) {
	inj := NewInjector(PolicyFromSettings(Settings{SimulateStoreAccessDenied: true}), NewRandomSource(1), quietLogger())
	require.True(t, inj.Decide(domain.EndpointGetByID, "a").ForceDeny)
	require.True(t, inj.Decide(domain.EndpointPut, "a").ForceDeny)
	require.False(t, inj.Decide(domain.EndpointList, "").ForceDeny)
}

func TestWaitBlocksForDelay(t *testing.T) {
	inj := NewInjector(PolicyFromSettings(Settings{InjectLatency: true, LatencyAmountMS: 30}), nil, quietLogger())
	d := inj.Decide(domain.EndpointList, "")
	start := time.Now()
	require.NoError(t, inj.Wait(context.Background(), domain.EndpointList, d))
	require.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}

func TestWaitHonoursCancellation(t *testing.T) {
	inj := NewInjector(PolicyFromSettings(Settings{InjectLatency: true, LatencyAmountMS: 5000}), nil, quietLogger())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := inj.Wait(ctx, domain.EndpointPut, inj.Decide(domain.EndpointPut, ""))
	require.ErrorIs(t, err, context.Canceled)
}
