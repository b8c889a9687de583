// Package loadgen drives a weighted mix of item requests against the API.
package loadgen

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/ShannaChang/serverless-demo-for-aiops/internal/domain"
	"github.com/ShannaChang/serverless-demo-for-aiops/pkg/api/client"
)

// API is the subset of the item client used by the generator.
type API interface {
	ListItems(ctx context.Context) (client.ListItemsResponse, error)
	GetItem(ctx context.Context, id string) (client.ItemWithContent, error)
	PutItem(ctx context.Context, input client.PutItemInput) (client.PutItemResponse, error)
}

// Weights sets the relative frequency of each endpoint.
type Weights struct {
	List int
	Get  int
	Put  int
}

// Config tunes a run. Rate is requests per second across all workers; zero is unpaced.
// Requests caps the total number of requests; zero runs until Duration or cancellation.
type Config struct {
	Workers  int
	Rate     float64
	Duration time.Duration
	Requests int
	Weights  Weights
	MaxID    int
	Seed     int64
}

// DefaultConfig mirrors the reference traffic mix: list, get and put at 3:2:1 with ids 1..100.
func DefaultConfig() Config {
	return Config{
		Workers:  4,
		Rate:     5,
		Duration: time.Minute,
		Weights:  Weights{List: 3, Get: 2, Put: 1},
		MaxID:    100,
	}
}

// EndpointStats aggregates outcomes for one endpoint.
type EndpointStats struct {
	Total     int            `json:"total"`
	Succeeded int            `json:"succeeded"`
	Failed    int            `json:"failed"`
	ByStatus  map[int]int    `json:"byStatus"`
	ByType    map[string]int `json:"byErrorType,omitempty"`
	latency   time.Duration
}

// MeanLatency is the average request latency.
func (s *EndpointStats) MeanLatency() time.Duration {
	if s.Total == 0 {
		return 0
	}
	return s.latency / time.Duration(s.Total)
}

// Summary is the result of a run keyed by endpoint.
type Summary struct {
	Endpoints map[domain.Endpoint]*EndpointStats `json:"endpoints"`
	Elapsed   time.Duration                      `json:"elapsed"`
}

// Total counts every request issued.
func (s Summary) Total() int {
	n := 0
	for _, st := range s.Endpoints {
		n += st.Total
	}
	return n
}

// Sorted returns the endpoints present in the summary in a stable order.
func (s Summary) Sorted() []domain.Endpoint {
	keys := make([]domain.Endpoint, 0, len(s.Endpoints))
	for k := range s.Endpoints {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// Generator issues requests against an API.
type Generator struct {
	api    API
	cfg    Config
	logger *slog.Logger

	mu      sync.Mutex
	rnd     *rand.Rand
	summary Summary
}

// New validates cfg and returns a generator.
func New(api API, cfg Config, logger *slog.Logger) (*Generator, error) {
	if api == nil {
		return nil, errors.New("api client is required")
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.MaxID <= 0 {
		cfg.MaxID = 100
	}
	w := cfg.Weights
	if w.List < 0 || w.Get < 0 || w.Put < 0 || w.List+w.Get+w.Put == 0 {
		return nil, errors.New("weights must be non-negative with a positive sum")
	}
	if cfg.Seed == 0 {
		cfg.Seed = time.Now().UnixNano()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{
		api:     api,
		cfg:     cfg,
		logger:  logger.With("component", "loadgen"),
		rnd:     rand.New(rand.NewSource(cfg.Seed)),
		summary: Summary{Endpoints: make(map[domain.Endpoint]*EndpointStats)},
	}, nil
}

// Run issues requests until the request budget, the duration or ctx runs out.
func (g *Generator) Run(ctx context.Context) (Summary, error) {
	if g.cfg.Duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.cfg.Duration)
		defer cancel()
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if g.cfg.Rate > 0 {
		limiter = rate.NewLimiter(rate.Limit(g.cfg.Rate), 1)
	}

	var issued atomic.Int64
	start := time.Now()
	group, ctx := errgroup.WithContext(ctx)
	for i := 0; i < g.cfg.Workers; i++ {
		group.Go(func() error {
			for {
				if g.cfg.Requests > 0 && issued.Add(1) > int64(g.cfg.Requests) {
					return nil
				}
				if err := limiter.Wait(ctx); err != nil {
					return nil
				}
				g.once(ctx)
			}
		})
	}
	err := group.Wait()

	g.mu.Lock()
	defer g.mu.Unlock()
	g.summary.Elapsed = time.Since(start)
	return g.summary, err
}

func (g *Generator) once(ctx context.Context) {
	endpoint, id, input := g.pick()
	start := time.Now()
	var err error
	switch endpoint {
	case domain.EndpointList:
		_, err = g.api.ListItems(ctx)
	case domain.EndpointGetByID:
		_, err = g.api.GetItem(ctx, id)
	case domain.EndpointPut:
		_, err = g.api.PutItem(ctx, input)
	}
	if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		return
	}
	g.record(endpoint, time.Since(start), err)
}

func (g *Generator) pick() (domain.Endpoint, string, client.PutItemInput) {
	g.mu.Lock()
	defer g.mu.Unlock()
	w := g.cfg.Weights
	n := g.rnd.Intn(w.List + w.Get + w.Put)
	switch {
	case n < w.List:
		return domain.EndpointList, "", client.PutItemInput{}
	case n < w.List+w.Get:
		return domain.EndpointGetByID, strconv.Itoa(g.rnd.Intn(g.cfg.MaxID) + 1), client.PutItemInput{}
	default:
		name := make([]byte, 8)
		for i := range name {
			name[i] = byte('a' + g.rnd.Intn(26))
		}
		return domain.EndpointPut, "", client.PutItemInput{ID: uuid.NewString(), Name: string(name)}
	}
}

func (g *Generator) record(endpoint domain.Endpoint, latency time.Duration, err error) {
	status, errType := 200, ""
	if err != nil {
		var apiErr client.APIError
		if errors.As(err, &apiErr) {
			status, errType = apiErr.Status, apiErr.ErrorType
		} else {
			status, errType = 0, "TransportError"
			g.logger.Debug("request failed", "endpoint", endpoint, "error", err)
		}
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	st, ok := g.summary.Endpoints[endpoint]
	if !ok {
		st = &EndpointStats{ByStatus: make(map[int]int), ByType: make(map[string]int)}
		g.summary.Endpoints[endpoint] = st
	}
	st.Total++
	st.latency += latency
	st.ByStatus[status]++
	if err != nil {
		st.Failed++
		if errType != "" {
			st.ByType[errType]++
		}
		return
	}
	st.Succeeded++
}
