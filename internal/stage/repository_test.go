package stage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ssrltools/beamcore/internal/infrastructure/config"
	"github.com/ssrltools/beamcore/internal/infrastructure/database"
	"github.com/ssrltools/beamcore/internal/scan"
	_ "github.com/ssrltools/beamcore/migrations"
)

func setupTestDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.Open(config.DatabaseConfig{Path: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.Migrate(context.Background()))
	return db
}

func TestSQLiteRepository_Samples(t *testing.T) {
	ctx := context.Background()
	repo := NewSQLiteRepository(setupTestDB(t).DB)

	got, err := repo.ListSamples(ctx)
	require.NoError(t, err)
	assert.Empty(t, got)

	require.NoError(t, repo.SaveSample(ctx, 2, Position{AxisStageX: 1, AxisTheta: 0.5}))
	require.NoError(t, repo.SaveSample(ctx, 2, Position{AxisStageX: 3}))
	require.NoError(t, repo.SaveSamples(ctx, map[int]Position{
		0: {AxisStageY: -1},
		7: {AxisPlateX: 0.25},
	}))

	got, err = repo.ListSamples(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[int]Position{
		0: {AxisStageY: -1},
		2: {AxisStageX: 3},
		7: {AxisPlateX: 0.25},
	}, got)
}

func TestSQLiteRepository_Center(t *testing.T) {
	ctx := context.Background()
	repo := NewSQLiteRepository(setupTestDB(t).DB)

	_, ok, err := repo.GetCenter(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, repo.SaveCenter(ctx, Position{AxisStageX: 1}))
	require.NoError(t, repo.SaveCenter(ctx, Position{AxisStageX: 2}))

	pos, ok, err := repo.GetCenter(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, Position{AxisStageX: 2}, pos)
}

func TestRegistry_PersistsThroughRepository(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)

	axes, mem := newStageAxes()
	reg := NewRegistry(axes, scan.LayoutHiTp, 0)
	reg.SetRepository(NewSQLiteRepository(db.DB))

	mem.Set("IMS:MOTOR3.RBV", 9)
	require.NoError(t, reg.SaveSample(ctx, 4))
	mem.Set("IMS:MOTOR1.RBV", 1.25)
	require.NoError(t, reg.SetAllVertTheta(ctx))
	require.NoError(t, reg.SaveCenter(ctx))

	// A fresh registry over the same database sees the saved state.
	reloaded := NewRegistry(axes, scan.LayoutHiTp, 0)
	reloaded.SetRepository(NewSQLiteRepository(db.DB))
	require.NoError(t, reloaded.Load(ctx))

	pos, err := reloaded.Sample(4)
	require.NoError(t, err)
	assert.Equal(t, 9.0, pos[AxisStageX])
	assert.Equal(t, 1.25, pos[AxisTheta])

	other, err := reloaded.Sample(10)
	require.NoError(t, err)
	assert.Equal(t, 1.25, other[AxisTheta], "alignment persisted for every sample")

	assert.Equal(t, 9.0, reloaded.CenterPosition()[AxisStageX])
	assert.Equal(t, scan.HiTpSamples, reloaded.Len())
}

func TestRegistry_LoadWithoutRepository(t *testing.T) {
	axes, _ := newStageAxes()
	reg := NewRegistry(axes, scan.LayoutHiTp, 0)
	assert.NoError(t, reg.Load(context.Background()))
}
