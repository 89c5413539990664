package device

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ssrltools/beamcore/internal/asset"
	"github.com/ssrltools/beamcore/internal/channel"
)

const xspPrefix = "XF:XSP3:"

func newTestDetector(io channel.IO) *FrameDetector {
	return NewFrameDetector(FrameDetectorConfig{
		Name:     "xsp3",
		Prefix:   xspPrefix,
		Channels: []int{1, 2},
		Root:     "/data/xspress3",
		IO:       io,
		Clock:    fixedClock{testNow},
	})
}

func TestFrameDetector_StageRegistersResource(t *testing.T) {
	mem := channel.NewMemory(nil, nil)
	det := newTestDetector(mem)

	require.NoError(t, det.Stage(context.Background()))
	assert.Equal(t, 1, mem.WriteCount(xspPrefix+SuffixCapture))

	docs := det.CollectAssetDocs()
	require.Len(t, docs, 1)
	res := docs[0].Resource
	require.NotNil(t, res)
	assert.Equal(t, asset.SpecXSP3, res.Spec)
	assert.Equal(t, "/data/xspress3", res.Root)
	assert.True(t, strings.HasPrefix(res.ResourcePath, "2026/03/14/"), res.ResourcePath)
	assert.True(t, strings.HasSuffix(res.ResourcePath, ".h5"), res.ResourcePath)
}

func TestFrameDetector_StageFailureLeavesIdle(t *testing.T) {
	mem := channel.NewMemory(nil, nil)
	mem.Fail(xspPrefix+SuffixCapture, channel.ErrUnavailable)
	det := newTestDetector(mem)

	err := det.Stage(context.Background())
	assert.ErrorIs(t, err, channel.ErrUnavailable)
	assert.Equal(t, StateIdle, det.State())
	assert.Empty(t, det.CollectAssetDocs())
}

func TestFrameDetector_CompleteEmitsFrameChannelDatums(t *testing.T) {
	mem := channel.NewMemory(nil, nil)
	det := newTestDetector(mem)
	ctx := context.Background()

	require.NoError(t, det.Stage(ctx))
	for i := 0; i < 3; i++ {
		require.NoError(t, trigger(t, det))
	}
	assert.Equal(t, 3, mem.WriteCount(xspPrefix+SuffixAcquire))

	mem.Set(xspPrefix+SuffixNumCaptured, 3)
	f, err := det.Complete(ctx)
	require.NoError(t, err)
	assert.True(t, f.Success())

	docs := det.CollectAssetDocs()
	require.Len(t, docs, 1+3*2)
	resID := docs[0].Resource.ID

	type pair struct{ frame, channel int }
	var got []pair
	for _, d := range docs[1:] {
		require.NotNil(t, d.Datum)
		assert.Equal(t, resID, d.Datum.ResourceID)
		got = append(got, pair{d.Datum.Kwargs[KwargFrame].(int), d.Datum.Kwargs[KwargChannel].(int)})
	}
	assert.Equal(t, []pair{{0, 1}, {0, 2}, {1, 1}, {1, 2}, {2, 1}, {2, 2}}, got)

	var keys []string
	for r := range det.Collect() {
		for k, filled := range r.Filled {
			assert.False(t, filled)
			keys = append(keys, k)
		}
	}
	assert.Equal(t, []string{
		"xsp3_channel1", "xsp3_channel2",
		"xsp3_channel1", "xsp3_channel2",
		"xsp3_channel1", "xsp3_channel2",
	}, keys)

	for range det.Collect() {
		t.Fatal("second collect must be empty")
	}
}

func TestFrameDetector_CompleteOnlyEmitsNewFrames(t *testing.T) {
	mem := channel.NewMemory(nil, nil)
	det := newTestDetector(mem)
	ctx := context.Background()

	require.NoError(t, det.Stage(ctx))
	require.NoError(t, trigger(t, det))
	mem.Set(xspPrefix+SuffixNumCaptured, 1)
	_, err := det.Complete(ctx)
	require.NoError(t, err)
	det.CollectAssetDocs()

	require.NoError(t, trigger(t, det))
	mem.Set(xspPrefix+SuffixNumCaptured, 2)
	_, err = det.Complete(ctx)
	require.NoError(t, err)

	docs := det.CollectAssetDocs()
	require.Len(t, docs, 2)
	for _, d := range docs {
		assert.Equal(t, 1, d.Datum.Kwargs[KwargFrame])
	}
}

func TestFrameDetector_CollectYieldsOnlyLatestComplete(t *testing.T) {
	mem := channel.NewMemory(nil, nil)
	det := newTestDetector(mem)
	ctx := context.Background()

	require.NoError(t, det.Stage(ctx))
	require.NoError(t, trigger(t, det))
	require.NoError(t, trigger(t, det))
	mem.Set(xspPrefix+SuffixNumCaptured, 2)
	_, err := det.Complete(ctx)
	require.NoError(t, err)

	require.NoError(t, trigger(t, det))
	mem.Set(xspPrefix+SuffixNumCaptured, 3)
	_, err = det.Complete(ctx)
	require.NoError(t, err)

	var refs []DatumRef
	for r := range det.Collect() {
		for _, ref := range r.Data {
			refs = append(refs, ref)
		}
	}
	require.Len(t, refs, 2, "one frame across two channels")
	for _, ref := range refs {
		assert.True(t, strings.HasSuffix(string(ref), "/4") || strings.HasSuffix(string(ref), "/5"), ref)
	}
}

func TestFrameDetector_CompleteReadFailure(t *testing.T) {
	mem := channel.NewMemory(nil, nil)
	det := newTestDetector(mem)
	ctx := context.Background()

	require.NoError(t, det.Stage(ctx))
	require.NoError(t, trigger(t, det))

	_, err := det.Complete(ctx)
	assert.ErrorIs(t, err, ErrCapture)
	assert.ErrorIs(t, err, channel.ErrUnavailable)
}

func TestFrameDetector_AcquireFailureFailsFuture(t *testing.T) {
	mem := channel.NewMemory(nil, nil)
	boom := errors.New("acquire rejected")
	mem.Fail(xspPrefix+SuffixAcquire, boom)
	det := newTestDetector(mem)

	require.NoError(t, det.Stage(context.Background()))
	err := trigger(t, det)
	assert.ErrorIs(t, err, ErrCapture)
	assert.ErrorIs(t, err, boom)
}

func TestFrameDetector_Unstage(t *testing.T) {
	mem := channel.NewMemory(nil, nil)
	det := newTestDetector(mem)
	ctx := context.Background()

	assert.ErrorIs(t, det.Unstage(ctx), ErrNotStaged)

	require.NoError(t, det.Stage(ctx))
	require.NoError(t, det.Unstage(ctx))

	v, err := mem.Read(ctx, xspPrefix+SuffixCapture)
	require.NoError(t, err)
	assert.Zero(t, v)
	assert.Equal(t, StateIdle, det.State())
}
