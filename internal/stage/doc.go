// Package stage keeps the sample positions of the high-throughput (HiTp)
// sample stage.
//
// A Registry maps sample indices to motor positions for the five stage axes
// (stage_x, stage_y, plate_x, plate_y, theta) plus one distinguished center
// position. It starts from a wafer layout (see scan.WaferLocations), is
// changed only by explicit saves, and can be persisted through a Repository.
//
// # Usage
//
//	reg := stage.NewRegistry(axes, scan.LayoutHiTp, 0)
//	reg.SetRepository(stage.NewSQLiteRepository(db.DB))
//	if err := reg.Load(ctx); err != nil {
//	    return err
//	}
//	if err := reg.SaveSample(ctx, 12); err != nil { // current motor positions
//	    return err
//	}
//	cols, err := reg.LocList(stage.Center)
package stage
