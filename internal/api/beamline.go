package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ssrltools/beamcore/internal/device"
	"github.com/ssrltools/beamcore/internal/leveling"
	"github.com/ssrltools/beamcore/internal/scan"
	"github.com/ssrltools/beamcore/internal/shutter"
	"github.com/ssrltools/beamcore/internal/stage"
)

// shutterWaitTimeout bounds how long PUT /shutter waits for the motion.
const shutterWaitTimeout = 30 * time.Second

// ShutterResponse describes the shutter.
type ShutterResponse struct {
	Name    string        `json:"name"`
	State   shutter.State `json:"state"`
	Choices []string      `json:"choices,omitempty"`
}

// ShutterRequest is the body of PUT /shutter.
type ShutterRequest struct {
	Target string `json:"target"`
}

// SamplesResponse is the body of GET /samples.
type SamplesResponse struct {
	Selector  string               `json:"selector"`
	Positions map[string][]float64 `json:"positions"`
}

// MoveRequest is the body of POST /stage/move.
type MoveRequest struct {
	Selector string `json:"selector"`
}

// ScanRequest is the body of POST /scans. Either Samples or a mesh (Radius
// and Step) picks the points.
type ScanRequest struct {
	Radius float64    `json:"radius,omitempty"`
	Step   float64    `json:"step,omitempty"`
	Pin    *float64   `json:"pin,omitempty"`
	Center [2]float64 `json:"center,omitempty"`

	// Samples selects saved positions: "all", "center" or indices.
	Samples string `json:"samples,omitempty"`

	Detector  string   `json:"detector,omitempty"`
	XSP3      string   `json:"xsp3,omitempty"`
	Monitor   string   `json:"monitor,omitempty"`
	Threshold *float64 `json:"threshold,omitempty"`
}

// ScanResponse summarises a finished sweep.
type ScanResponse struct {
	Visited   int             `json:"visited"`
	Skipped   int             `json:"skipped"`
	Documents int             `json:"documents"`
	Points    []scan.Point    `json:"points"`
	Records   []device.Record `json:"records"`
}

// handleGetShutter returns the shutter's current state.
func (s *Server) handleGetShutter(w http.ResponseWriter, r *http.Request) {
	state, err := s.shutter.State(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ShutterResponse{
		Name:    s.shutter.Name(),
		State:   state,
		Choices: s.shutter.Choices(),
	})
}

// handleSetShutter moves the shutter and waits for the motion to settle.
func (s *Server) handleSetShutter(w http.ResponseWriter, r *http.Request) {
	var req ShutterRequest
	if err := decodeBody(r, &req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}
	if req.Target == "" {
		writeBadRequest(w, "target is required")
		return
	}

	f, err := s.shutter.Set(r.Context(), req.Target)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), shutterWaitTimeout)
	defer cancel()
	if err := f.Wait(ctx); err != nil {
		writeDomainError(w, err)
		return
	}

	state, err := s.shutter.State(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	resp := ShutterResponse{Name: s.shutter.Name(), State: state}
	s.hub.Broadcast(EventShutterState, resp)
	writeJSON(w, http.StatusOK, resp)
}

// handleListSamples returns saved positions column-wise per axis.
func (s *Server) handleListSamples(w http.ResponseWriter, r *http.Request) {
	text := r.URL.Query().Get("select")
	sel, err := stage.ParseSelector(text)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	cols, err := s.samples.LocList(sel)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, SamplesResponse{Selector: sel.String(), Positions: cols})
}

// handleSaveSample stores the current motor positions under {index}.
func (s *Server) handleSaveSample(w http.ResponseWriter, r *http.Request) {
	idx, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil || idx < 0 {
		writeDomainError(w, fmt.Errorf("%w: %q", stage.ErrInvalidSelector, chi.URLParam(r, "index")))
		return
	}
	if err := s.samples.SaveSample(r.Context(), idx); err != nil {
		writeDomainError(w, err)
		return
	}
	s.writeSamples(w, stage.Indices(idx))
}

// handleSaveCenter stores the current motor positions as the center.
func (s *Server) handleSaveCenter(w http.ResponseWriter, r *http.Request) {
	if err := s.samples.SaveCenter(r.Context()); err != nil {
		writeDomainError(w, err)
		return
	}
	s.writeSamples(w, stage.Center)
}

// handleAlignSamples copies the current plate tilt and theta into every sample.
func (s *Server) handleAlignSamples(w http.ResponseWriter, r *http.Request) {
	if err := s.samples.SetAllVertTheta(r.Context()); err != nil {
		writeDomainError(w, err)
		return
	}
	s.writeSamples(w, stage.All)
}

func (s *Server) writeSamples(w http.ResponseWriter, sel stage.Selector) {
	cols, err := s.samples.LocList(sel)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, SamplesResponse{Selector: sel.String(), Positions: cols})
}

// handleMoveStage drives the stage to one saved sample or the center.
func (s *Server) handleMoveStage(w http.ResponseWriter, r *http.Request) {
	var req MoveRequest
	if err := decodeBody(r, &req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}
	sel, err := stage.ParseSelector(req.Selector)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	err = s.withMotion(func() error {
		return s.samples.MoveTo(r.Context(), sel)
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	s.writeSamples(w, sel)
}

// handleLevel runs the leveling loop along {axis}.
func (s *Server) handleLevel(w http.ResponseWriter, r *http.Request) {
	if s.level == nil {
		writeUnavailable(w, "leveling is not configured")
		return
	}
	axis := chi.URLParam(r, "axis")
	if axis != "x" && axis != "y" {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, fmt.Sprintf("unknown leveling axis %q", axis))
		return
	}

	var report leveling.Report
	err := s.withMotion(func() error {
		var err error
		report, err = s.level(r.Context(), axis)
		return err
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	s.hub.Broadcast(EventLevelingDone, report)
	writeJSON(w, http.StatusOK, report)
}

// handleScan runs a stage sweep and returns its summary.
func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	if s.scan == nil {
		writeUnavailable(w, "scanning is not configured")
		return
	}
	var req ScanRequest
	if err := decodeBody(r, &req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}
	if req.Samples == "" && (req.Radius <= 0 || req.Step <= 0) {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, "either samples or a positive radius and step are required")
		return
	}

	var sum scan.Summary
	err := s.withMotion(func() error {
		var err error
		sum, err = s.scan(r.Context(), req)
		return err
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	resp := ScanResponse{
		Visited:   sum.Visited,
		Skipped:   sum.Skipped,
		Documents: sum.Documents,
		Points:    make([]scan.Point, 0, len(sum.Events)),
		Records:   sum.Records,
	}
	for _, ev := range sum.Events {
		resp.Points = append(resp.Points, ev.Point)
	}
	s.hub.Broadcast(EventScanDone, resp)
	writeJSON(w, http.StatusOK, resp)
}

// withMotion runs fn while holding the stage, failing fast with errBusy when
// another motion operation is in flight.
func (s *Server) withMotion(fn func() error) error {
	if !s.motion.TryLock() {
		return errBusy
	}
	defer s.motion.Unlock()
	return fn()
}
