package loadgen

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ShannaChang/serverless-demo-for-aiops/internal/domain"
	"github.com/ShannaChang/serverless-demo-for-aiops/pkg/api/client"
)

type fakeAPI struct {
	mu    sync.Mutex
	calls map[string]int
	puts  []client.PutItemInput
	ids   []string
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{calls: make(map[string]int)}
}

func (f *fakeAPI) ListItems(ctx context.Context) (client.ListItemsResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["list"]++
	return client.ListItemsResponse{}, nil
}

func (f *fakeAPI) GetItem(ctx context.Context, id string) (client.ItemWithContent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["get"]++
	f.ids = append(f.ids, id)
	return client.ItemWithContent{}, client.APIError{Status: http.StatusInternalServerError, ErrorType: "NotFoundError"}
}

func (f *fakeAPI) PutItem(ctx context.Context, input client.PutItemInput) (client.PutItemResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["put"]++
	f.puts = append(f.puts, input)
	return client.PutItemResponse{Success: true}, nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRunHonoursRequestBudgetAndMix(t *testing.T) {
	api := newFakeAPI()
	cfg := DefaultConfig()
	cfg.Rate = 0
	cfg.Requests = 600
	cfg.Seed = 42
	gen, err := New(api, cfg, quietLogger())
	require.NoError(t, err)

	summary, err := gen.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 600, summary.Total())

	list := summary.Endpoints[domain.EndpointList]
	get := summary.Endpoints[domain.EndpointGetByID]
	put := summary.Endpoints[domain.EndpointPut]
	require.NotNil(t, list)
	require.NotNil(t, get)
	require.NotNil(t, put)
	require.Greater(t, list.Total, get.Total)
	require.Greater(t, get.Total, put.Total)

	require.Equal(t, get.Total, get.Failed)
	require.Equal(t, get.Total, get.ByStatus[http.StatusInternalServerError])
	require.Equal(t, get.Total, get.ByType["NotFoundError"])
	require.Equal(t, put.Total, put.Succeeded)

	for _, in := range api.puts {
		require.Len(t, in.Name, 8)
		require.NotEmpty(t, in.ID)
	}
	for _, id := range api.ids {
		require.NotEmpty(t, id)
	}
}

func TestRunStopsAtDuration(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Rate = 50
	cfg.Duration = 100 * time.Millisecond
	gen, err := New(newFakeAPI(), cfg, quietLogger())
	require.NoError(t, err)

	start := time.Now()
	summary, err := gen.Run(context.Background())
	require.NoError(t, err)
	require.Less(t, time.Since(start), 2*time.Second)
	require.LessOrEqual(t, summary.Total(), 10)
}

func TestNewRejectsEmptyWeights(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Weights = Weights{}
	_, err := New(newFakeAPI(), cfg, nil)
	require.Error(t, err)
}

func TestTransportErrorsCounted(t *testing.T) {
	gen, err := New(newFakeAPI(), Config{Weights: Weights{List: 1}}, quietLogger())
	require.NoError(t, err)
	gen.record(domain.EndpointList, time.Millisecond, errors.New("connection refused"))
	st := gen.summary.Endpoints[domain.EndpointList]
	require.Equal(t, 1, st.Failed)
	require.Equal(t, 1, st.ByStatus[0])
	require.Equal(t, time.Millisecond, st.MeanLatency())
}
