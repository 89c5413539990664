// Package shutter implements a binary beam shutter driven through status
// futures.
//
// Set validates the requested target against the shutter's synonym lists,
// returns an already-settled future when the shutter is in position, and
// otherwise runs exactly one detached motion on a worker.Pool. A second Set
// while a motion is in flight fails synchronously with ErrAlreadyMoving.
//
// State is always derived from the live readback:
//
//	sh := shutter.New("shutter", shutter.NewChannelActuator(io, shutter.ChannelConfig{
//	    Command:  "BL15:SHUTTER",
//	    Readback: "BL15:SHUTTER.RBV",
//	    OpenValue: 1,
//	}), pool)
//	f, err := sh.Set(ctx, "Open")
//	if err != nil {
//	    return err
//	}
//	err = f.WaitTimeout(5 * time.Second)
package shutter
