package adminhttp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type stubSource struct{}

func (stubSource) Datastores() []DatastoreStat {
	return []DatastoreStat{{ID: 0, Name: "hxhim", Path: "/tmp/hxhim/db-0", Engine: "in_memory"}}
}

func (stubSource) Pools() []PoolStat {
	return []PoolStat{{Name: "keys", InUse: 1, Regions: 4, AllocSize: 64}}
}

func (stubSource) Histograms() []HistogramSnapshot {
	return []HistogramSnapshot{{DatastoreID: 0, Name: "p", Buckets: []float64{0}, Counts: []uint64{10}, Size: 1}}
}

func TestServerDebugEndpoints(t *testing.T) {
	s, err := New("127.0.0.1:0", stubSource{}, false)
	require.NoError(t, err)

	s.ObserveOp("PUT", "SUCCESS", 2*time.Millisecond)
	s.SetPoolInUse("keys", 3)

	req := httptest.NewRequest(http.MethodGet, "/debug/datastores", nil)
	recorder := httptest.NewRecorder()
	s.router.ServeHTTP(recorder, req)
	require.Equal(t, http.StatusOK, recorder.Code)

	var ds []DatastoreStat
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &ds))
	require.Len(t, ds, 1)
	require.Equal(t, "hxhim", ds[0].Name)
}

func TestServerMetricsEndpoint(t *testing.T) {
	s, err := New("127.0.0.1:0", stubSource{}, false)
	require.NoError(t, err)
	s.ObserveOp("GET", "SUCCESS", time.Millisecond)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	recorder := httptest.NewRecorder()
	s.router.ServeHTTP(recorder, req)
	require.Equal(t, http.StatusOK, recorder.Code)
	require.Contains(t, recorder.Body.String(), "hxhim_ops_total")
}

func TestServeRespectsContextCancellation(t *testing.T) {
	s, err := New("127.0.0.1:0", stubSource{}, false)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Serve did not return after context cancellation")
	}
}
