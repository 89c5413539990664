package device

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ssrltools/beamcore/internal/asset"
	"github.com/ssrltools/beamcore/internal/status"
	"github.com/ssrltools/beamcore/internal/worker"
)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

var testNow = time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)

// counterCapture returns a 2x2 frame whose values start at the call count.
func counterCapture() (CaptureFunc, *atomic.Int32) {
	var calls atomic.Int32
	return func(context.Context) (asset.Array, error) {
		n := float64(calls.Add(1))
		return asset.Array{Shape: []int{2, 2}, Data: []float64{n, n + 1, n + 2, n + 3}}, nil
	}, &calls
}

func newTestChannel(t *testing.T, capture CaptureFunc) (*ArrayChannel, string) {
	t.Helper()
	root := t.TempDir()
	ch := NewArrayChannel(ArrayChannelConfig{
		Name:    "pilatus_image",
		Capture: capture,
		Writer:  asset.NewNPYWriter(root),
		Pool:    worker.NewPool(2),
		Clock:   fixedClock{testNow},
	})
	return ch, root
}

func trigger(t *testing.T, ch Triggerable) error {
	t.Helper()
	f, err := ch.Trigger(context.Background())
	require.NoError(t, err)
	return f.WaitTimeout(5 * time.Second)
}

type captureCall struct {
	device, resource string
	frame            int
}

type recordingRecorder struct {
	mu    sync.Mutex
	calls []captureCall
}

func (r *recordingRecorder) WriteCapture(device, resourceID string, frame int, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, captureCall{device, resourceID, frame})
}

func TestArrayChannel_ReadBeforeTrigger(t *testing.T) {
	capture, _ := counterCapture()
	ch, _ := newTestChannel(t, capture)

	_, err := ch.Read()
	assert.ErrorIs(t, err, ErrNotTriggered)

	require.NoError(t, ch.Stage(context.Background()))
	_, err = ch.Read()
	assert.ErrorIs(t, err, ErrNotTriggered, "staging alone must not produce a value")
}

func TestArrayChannel_TriggerRequiresStage(t *testing.T) {
	capture, calls := counterCapture()
	ch, _ := newTestChannel(t, capture)

	f, err := ch.Trigger(context.Background())
	assert.Nil(t, f)
	assert.ErrorIs(t, err, ErrNotStagedForTrigger)
	assert.Zero(t, calls.Load())
}

func TestArrayChannel_TriggerPersistsAndReads(t *testing.T) {
	capture, _ := counterCapture()
	ch, _ := newTestChannel(t, capture)
	ctx := context.Background()

	require.NoError(t, ch.Stage(ctx))
	require.NoError(t, trigger(t, ch))

	first, err := ch.Read()
	require.NoError(t, err)
	again, err := ch.Read()
	require.NoError(t, err)
	assert.Equal(t, first, again, "read must not re-trigger")
	assert.Equal(t, testNow, first.Timestamp)

	docs := ch.CollectAssetDocs()
	require.Len(t, docs, 2)
	require.NotNil(t, docs[0].Resource)
	require.NotNil(t, docs[1].Datum)
	res, d := *docs[0].Resource, *docs[1].Datum

	assert.Equal(t, asset.SpecNPY, res.Spec)
	assert.Equal(t, "2026/03/14"+string(filepath.Separator), res.ResourcePath)
	assert.Equal(t, DatumRef(d.ID), first.Value)
	assert.Equal(t, res.ID+"/0", d.ID)
	assert.EqualValues(t, 1, d.Kwargs[asset.KwargPointNumber])

	path, err := asset.ResolvePath(res, d)
	require.NoError(t, err)
	got, err := asset.ReadNPY(path)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 2}, got.Shape)
	assert.Equal(t, []float64{1, 2, 3, 4}, got.Data)

	require.NoError(t, trigger(t, ch))
	second, err := ch.Read()
	require.NoError(t, err)
	assert.NotEqual(t, first.Value, second.Value)
}

func TestArrayChannel_Describe(t *testing.T) {
	capture, _ := counterCapture()
	ch, _ := newTestChannel(t, capture)

	desc := ch.Describe()
	assert.Nil(t, desc.Shape)
	assert.True(t, desc.External)
	assert.Equal(t, DTypeArray, desc.DType)
	assert.Equal(t, "pilatus_image", desc.Source)

	require.NoError(t, ch.Stage(context.Background()))
	require.NoError(t, trigger(t, ch))
	assert.Equal(t, []int{2, 2}, ch.Describe().Shape)
}

func TestArrayChannel_CaptureError(t *testing.T) {
	boom := errors.New("detector offline")
	ch, _ := newTestChannel(t, func(context.Context) (asset.Array, error) {
		return asset.Array{}, boom
	})
	require.NoError(t, ch.Stage(context.Background()))

	err := trigger(t, ch)
	assert.ErrorIs(t, err, ErrCapture)
	assert.ErrorIs(t, err, boom)

	_, err = ch.Read()
	assert.ErrorIs(t, err, ErrNotTriggered)
	assert.Empty(t, ch.CollectAssetDocs(), "no documents for a failed capture")
}

func TestArrayChannel_InvalidArrayIsCaptureError(t *testing.T) {
	ch, _ := newTestChannel(t, func(context.Context) (asset.Array, error) {
		return asset.Array{Shape: []int{3}, Data: []float64{1}}, nil
	})
	require.NoError(t, ch.Stage(context.Background()))

	err := trigger(t, ch)
	assert.ErrorIs(t, err, ErrCapture)
	assert.ErrorIs(t, err, asset.ErrInvalidArray)
}

func TestArrayChannel_CapturePanicFailsFuture(t *testing.T) {
	ch, _ := newTestChannel(t, func(context.Context) (asset.Array, error) {
		panic("driver bug")
	})
	ctx := context.Background()
	require.NoError(t, ch.Stage(ctx))

	err := trigger(t, ch)
	assert.ErrorIs(t, err, ErrCapture)

	// The panicked capture must not block Unstage.
	require.NoError(t, ch.Unstage(ctx))
}

func TestArrayChannel_StorageWriteError(t *testing.T) {
	capture, _ := counterCapture()
	blocker := filepath.Join(t.TempDir(), "not-a-dir")
	require.NoError(t, os.WriteFile(blocker, nil, 0o600))

	ch := NewArrayChannel(ArrayChannelConfig{
		Name:    "img",
		Capture: capture,
		Writer:  asset.NewNPYWriter(blocker),
		Clock:   fixedClock{testNow},
	})
	require.NoError(t, ch.Stage(context.Background()))

	err := trigger(t, ch)
	assert.ErrorIs(t, err, asset.ErrStorageWrite)

	_, err = ch.Read()
	assert.ErrorIs(t, err, ErrNotTriggered, "last value is only set after a successful write")
}

func TestArrayChannel_EndToEnd(t *testing.T) {
	capture, _ := counterCapture()
	ch, _ := newTestChannel(t, capture)
	ctx := context.Background()

	require.NoError(t, ch.Stage(ctx))
	require.NoError(t, trigger(t, ch))
	require.NoError(t, trigger(t, ch))

	f, err := ch.Complete(ctx)
	require.NoError(t, err)
	assert.True(t, f.Done())
	assert.True(t, f.Success())

	var recs []Record
	for r := range ch.Collect() {
		recs = append(recs, r)
	}
	require.Len(t, recs, 2)

	resourceIDs := map[string]bool{}
	datumIDs := map[DatumRef]bool{}
	for _, r := range recs {
		assert.Equal(t, map[string]bool{"pilatus_image": false}, r.Filled)
		ref := r.Data["pilatus_image"]
		datumIDs[ref] = true
		resourceIDs[string(ref)[:strings.LastIndex(string(ref), "/")]] = true
		assert.InDelta(t, unixSeconds(testNow), r.Time, 1e-6)
	}
	assert.Len(t, datumIDs, 2, "distinct datum ids")
	assert.Len(t, resourceIDs, 1, "one resource per staging")

	count := 0
	for range ch.Collect() {
		count++
	}
	assert.Zero(t, count, "second collect before complete is empty")

	docs := ch.CollectAssetDocs()
	require.Len(t, docs, 3)
	assert.Equal(t, asset.KindResource, docs[0].Kind)

	require.NoError(t, ch.Unstage(ctx))
	assert.Equal(t, StateIdle, ch.State())
}

func TestArrayChannel_CollectSequenceIsNotRestartable(t *testing.T) {
	capture, _ := counterCapture()
	ch, _ := newTestChannel(t, capture)
	ctx := context.Background()

	require.NoError(t, ch.Stage(ctx))
	for i := 0; i < 3; i++ {
		require.NoError(t, trigger(t, ch))
	}
	_, err := ch.Complete(ctx)
	require.NoError(t, err)

	seq := ch.Collect()
	n := 0
	for range seq {
		n++
		break
	}
	for range seq {
		n++
	}
	for range seq {
		n++
	}
	assert.Equal(t, 3, n, "each record is yielded once across iterations")
}

func TestArrayChannel_CollectYieldsOnlyLatestComplete(t *testing.T) {
	capture, _ := counterCapture()
	ch, _ := newTestChannel(t, capture)
	ctx := context.Background()

	require.NoError(t, ch.Stage(ctx))
	require.NoError(t, trigger(t, ch))
	require.NoError(t, trigger(t, ch))
	_, err := ch.Complete(ctx)
	require.NoError(t, err)

	require.NoError(t, trigger(t, ch))
	_, err = ch.Complete(ctx)
	require.NoError(t, err)

	var recs []Record
	for r := range ch.Collect() {
		recs = append(recs, r)
	}
	require.Len(t, recs, 1, "frames from the earlier complete are replaced")
	last, err := ch.Read()
	require.NoError(t, err)
	assert.Equal(t, last.Value, recs[0].Data["pilatus_image"], "only the third frame is collected")
}

func TestArrayChannel_CompleteBeforeTrigger(t *testing.T) {
	capture, _ := counterCapture()
	ch, _ := newTestChannel(t, capture)

	_, err := ch.Complete(context.Background())
	assert.ErrorIs(t, err, ErrNoFramesCaptured)

	require.NoError(t, ch.Stage(context.Background()))
	_, err = ch.Complete(context.Background())
	assert.ErrorIs(t, err, ErrNoFramesCaptured)
	assert.ErrorIs(t, err, ErrLifecycle)
}

func TestArrayChannel_NewResourcePerStaging(t *testing.T) {
	capture, _ := counterCapture()
	ch, _ := newTestChannel(t, capture)
	ctx := context.Background()

	var resources []string
	for i := 0; i < 2; i++ {
		require.NoError(t, ch.Stage(ctx))
		require.NoError(t, trigger(t, ch))
		require.NoError(t, ch.Unstage(ctx))

		for _, d := range ch.CollectAssetDocs() {
			if d.Resource != nil {
				resources = append(resources, d.Resource.ID)
			}
		}
	}
	require.Len(t, resources, 2)
	assert.NotEqual(t, resources[0], resources[1])

	// The point counter keeps counting across stagings.
	r, err := ch.Read()
	require.NoError(t, err)
	assert.Equal(t, DatumRef(resources[1]+"/0"), r.Value)
}

func TestArrayChannel_ConcurrentTriggers(t *testing.T) {
	capture, calls := counterCapture()
	ch, root := newTestChannel(t, capture)
	ctx := context.Background()
	require.NoError(t, ch.Stage(ctx))

	rec := &recordingRecorder{}
	ch.SetRecorder(rec)

	const n = 8
	futures := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		f, err := ch.Trigger(ctx)
		require.NoError(t, err)
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			futures[i] = f.WaitTimeout(5 * time.Second)
		}(i)
	}
	wg.Wait()
	for i, err := range futures {
		require.NoError(t, err, "trigger %d", i)
	}
	assert.EqualValues(t, n, calls.Load())

	_, err := ch.Complete(ctx)
	require.NoError(t, err)

	seen := map[DatumRef]bool{}
	for r := range ch.Collect() {
		seen[r.Data["pilatus_image"]] = true
	}
	assert.Len(t, seen, n)

	docs := ch.CollectAssetDocs()
	require.Len(t, docs, n+1)
	assert.Equal(t, asset.KindResource, docs[0].Kind, "resource precedes its datums")

	files, err := filepath.Glob(filepath.Join(root, "2026", "03", "14", "*.npy"))
	require.NoError(t, err)
	assert.Len(t, files, n)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.Len(t, rec.calls, n)
	frames := map[int]bool{}
	for _, c := range rec.calls {
		assert.Equal(t, "pilatus_image", c.device)
		assert.Equal(t, docs[0].Resource.ID, c.resource)
		frames[c.frame] = true
	}
	for i := 1; i <= n; i++ {
		assert.True(t, frames[i], fmt.Sprintf("frame %d recorded", i))
	}
}

func TestArrayChannel_TIFFWriter(t *testing.T) {
	capture, _ := counterCapture()
	root := t.TempDir()
	ch := NewArrayChannel(ArrayChannelConfig{
		Name:    "xrd",
		Capture: capture,
		Writer:  asset.NewTIFFWriter(root),
		Clock:   fixedClock{testNow},
	})
	ctx := context.Background()

	require.NoError(t, ch.Stage(ctx))
	require.NoError(t, trigger(t, ch))
	require.NoError(t, trigger(t, ch))

	assert.Equal(t, asset.SpecTIFF, ch.Spec())
	files, err := filepath.Glob(filepath.Join(root, "2026", "03", "14", "*.tiff"))
	require.NoError(t, err)
	assert.Len(t, files, 2)
}

func TestArrayChannel_UnstageBoundedByContext(t *testing.T) {
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })
	ch, _ := newTestChannel(t, func(context.Context) (asset.Array, error) {
		<-release
		return asset.Array{Shape: []int{1}, Data: []float64{1}}, nil
	})

	require.NoError(t, ch.Stage(context.Background()))
	_, err := ch.Trigger(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err = ch.Unstage(ctx)
	assert.ErrorIs(t, err, status.ErrTimeout)
	assert.Equal(t, StateIdle, ch.State())
}
