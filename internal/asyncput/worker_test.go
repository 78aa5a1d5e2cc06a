package asyncput

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hpc-hxhim/hxhim-go/internal/cache"
	"github.com/hpc-hxhim/hxhim-go/internal/datastore"
	"github.com/hpc-hxhim/hxhim-go/internal/hash"
	"github.com/hpc-hxhim/hxhim-go/internal/rangeserver"
	"github.com/hpc-hxhim/hxhim-go/internal/rangeserverloop"
	"github.com/hpc-hxhim/hxhim-go/pkg/opcode"
)

func newTestWorker(t *testing.T, watermark int, idleAfter time.Duration) (*Worker, *cache.Queue[cache.PendingPut]) {
	t.Helper()
	srv := &rangeserverloop.Server{
		Rank:       0,
		Datastores: []datastore.Datastore{datastore.NewMemory()},
		Hash:       hash.Identity,
		Total:      1,
		PerServer:  1,
		MaxOps:     1024,
	}
	puts := &cache.Queue[cache.PendingPut]{}
	w, err := New(Config{
		Rank:                0,
		Hash:                hash.Identity,
		Ratio:               rangeserver.Ratio{Client: 1, Server: 1},
		TotalDatastores:     1,
		DatastoresPerServer: 1,
		MaxOpsPerSend:       1024,
		Watermark:           watermark,
		FlushIdleAfter:      idleAfter,
		Send: func(ctx context.Context, dstRank int, packed []byte) ([]byte, error) {
			return srv.Handle(ctx, packed)
		},
	}, puts)
	require.NoError(t, err)
	return w, puts
}

func waitForResults(t *testing.T, w *Worker, want int, timeout time.Duration) []*opcode.Status {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		res := w.TakeResults()
		if res.Len() >= want {
			all := res.All()
			out := make([]*opcode.Status, len(all))
			for i, r := range all {
				out[i] = &r.Status
			}
			return out
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d async put results", want)
	return nil
}

func TestWatermarkTriggeredFlush(t *testing.T) {
	w, puts := newTestWorker(t, 3, 0)
	require.NoError(t, w.Start(context.Background()))
	defer w.Stop()

	for i := 0; i < 3; i++ {
		puts.Enqueue(cache.PendingPut{Subject: []byte("s"), Predicate: []byte{byte(i)}, Object: []byte{1}})
	}
	w.MaybeSignal()

	statuses := waitForResults(t, w, 3, time.Second)
	require.Len(t, statuses, 3)
	for _, s := range statuses {
		require.Equal(t, opcode.StatusSuccess, *s)
	}
}

func TestIdleFlushBelowWatermark(t *testing.T) {
	w, puts := newTestWorker(t, 100, 20*time.Millisecond)
	require.NoError(t, w.Start(context.Background()))
	defer w.Stop()

	puts.Enqueue(cache.PendingPut{Subject: []byte("s"), Predicate: []byte("p"), Object: []byte{1}})

	statuses := waitForResults(t, w, 1, time.Second)
	require.Len(t, statuses, 1)
	require.Equal(t, opcode.StatusSuccess, *statuses[0])
}

func TestStopDrainsCleanly(t *testing.T) {
	w, _ := newTestWorker(t, 5, 0)
	require.NoError(t, w.Start(context.Background()))
	w.Stop()
}
