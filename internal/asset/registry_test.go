package asset

import (
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_RegisterAndDrain(t *testing.T) {
	r := NewRegistry()

	res := r.RegisterResource(SpecNPY, "/data", "2026/03/01/", map[string]string{"filename": "f"})
	_, err := uuid.Parse(res.ID)
	require.NoError(t, err, "resource id must be a UUID")

	d0, err := r.RegisterDatum(res, map[string]any{"point_number": 0})
	require.NoError(t, err)
	d1, err := r.RegisterDatum(res, nil)
	require.NoError(t, err)

	assert.Equal(t, res.ID+"/0", d0.ID)
	assert.Equal(t, res.ID+"/1", d1.ID)
	assert.NotNil(t, d1.Kwargs)

	docs := r.Drain()
	require.Len(t, docs, 3)
	assert.Equal(t, KindResource, docs[0].Kind)
	assert.Equal(t, res.ID, docs[0].ID())
	assert.Equal(t, d0.ID, docs[1].ID())
	assert.Equal(t, d1.ID, docs[2].ID())

	assert.Empty(t, r.Drain(), "second drain must not re-deliver")
}

func TestRegistry_UnknownResource(t *testing.T) {
	r := NewRegistry()
	other := NewRegistry().RegisterResource(SpecTIFF, "/data", "x", nil)

	_, err := r.RegisterDatum(other, nil)
	assert.ErrorIs(t, err, ErrUnknownResource)
	assert.Empty(t, r.Drain())
}

func TestRegistry_SequenceSurvivesDrain(t *testing.T) {
	r := NewRegistry()
	res := r.RegisterResource(SpecNPY, "/data", "x", nil)

	_, err := r.RegisterDatum(res, nil)
	require.NoError(t, err)
	r.Drain()

	d, err := r.RegisterDatum(res, nil)
	require.NoError(t, err)
	assert.Equal(t, res.ID+"/1", d.ID)
}

func TestRegistry_DocumentsAreCopies(t *testing.T) {
	r := NewRegistry()
	kwargs := map[string]string{"filename": "a"}
	res := r.RegisterResource(SpecNPY, "/data", "x", kwargs)
	kwargs["filename"] = "mutated"
	res.Kwargs["filename"] = "mutated too"

	docs := r.Drain()
	assert.Equal(t, "a", docs[0].Resource.Kwargs["filename"])
}

// Every datum's resource appears earlier in the drained order, however
// registrations interleave across goroutines.
func TestRegistry_DatumNeverBeforeResource(t *testing.T) {
	r := NewRegistry()

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 20; i++ {
				res := r.RegisterResource(SpecNPY, "/data", "x", nil)
				for k := 0; k < 3; k++ {
					_, err := r.RegisterDatum(res, nil)
					assert.NoError(t, err)
				}
			}
		}()
	}

	var drained []Document
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	for {
		drained = append(drained, r.Drain()...)
		select {
		case <-done:
			drained = append(drained, r.Drain()...)
			assertResourceOrder(t, drained)
			assert.Len(t, drained, 8*20*4)
			return
		default:
		}
	}
}

func assertResourceOrder(t *testing.T, docs []Document) {
	t.Helper()
	seen := make(map[string]bool)
	for _, d := range docs {
		switch d.Kind {
		case KindResource:
			seen[d.Resource.ID] = true
		case KindDatum:
			require.True(t, seen[d.Datum.ResourceID], "datum %s before its resource", d.Datum.ID)
			require.True(t, strings.HasPrefix(d.Datum.ID, d.Datum.ResourceID+"/"))
		}
	}
}
