// Package authoring implements the draft-polygon state machine used by
// admins to outline a bug's region one click at a time.
package authoring

import (
	"errors"

	"github.com/onnwee/bughunt/internal/geo"
	"github.com/onnwee/bughunt/internal/scene"
)

// ErrNotDrawing is returned when a point is added outside a drawing session.
var ErrNotDrawing = errors.New("not drawing a region")

// State is the phase of an authoring session.
type State int

const (
	// Idle means no region is being drawn.
	Idle State = iota
	// Drawing means clicks are appended to the draft.
	Drawing
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Drawing:
		return "drawing"
	default:
		return "unknown"
	}
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Region is a finished polygon. Target is set when the region replaces the
// coordinates of an existing bug.
type Region struct {
	Polygon geo.Polygon
	Target  scene.OptionalID
}

// Draft is an observer's copy of the session.
type Draft struct {
	State  State            `json:"state"`
	Points geo.Polygon      `json:"points"`
	Target scene.OptionalID `json:"target_bug_id"`
}

// Session is a single author's draft. It is not safe for concurrent use;
// the owning container serializes access.
type Session struct {
	state  State
	points geo.Polygon
	target scene.OptionalID
}

// New returns an idle session.
func New() *Session {
	return &Session{}
}

// State returns the current phase.
func (s *Session) State() State { return s.state }

// Start begins a new region with an empty buffer. Restarting while drawing
// discards the previous points.
func (s *Session) Start() {
	s.state = Drawing
	s.points = geo.Polygon{}
	s.target = scene.NoID
}

// Edit begins drawing seeded with an existing bug's polygon.
func (s *Session) Edit(bugID string, poly geo.Polygon) {
	s.state = Drawing
	s.points = poly.Clone()
	if s.points == nil {
		s.points = geo.Polygon{}
	}
	s.target = scene.SomeID(bugID)
}

// AddPoint appends c to the draft.
func (s *Session) AddPoint(c geo.Coordinate) error {
	if s.state != Drawing {
		return ErrNotDrawing
	}
	if err := c.Validate(); err != nil {
		return &scene.ValidationError{Field: "point", Err: err}
	}
	s.points = append(s.points, c)
	return nil
}

// UndoPoint removes the most recent point. It does nothing on an empty
// buffer or outside a drawing session.
func (s *Session) UndoPoint() {
	if s.state != Drawing || len(s.points) == 0 {
		return
	}
	s.points = s.points[:len(s.points)-1]
}

// Finish closes the draft and returns to Idle. With fewer than three
// points the session is left untouched.
func (s *Session) Finish() (Region, error) {
	if s.state != Drawing {
		return Region{}, ErrNotDrawing
	}
	if len(s.points) < geo.MinVertices {
		return Region{}, &scene.ValidationError{Field: "coordinates", Err: geo.ErrTooFewVertices}
	}
	r := Region{Polygon: s.points.Clone(), Target: s.target}
	s.reset()
	return r, nil
}

// Cancel discards the draft and returns to Idle.
func (s *Session) Cancel() {
	s.reset()
}

// Restore puts a finished region back into the drawing buffer so a failed
// save can be retried.
func (s *Session) Restore(r Region) {
	s.state = Drawing
	s.points = r.Polygon.Clone()
	s.target = r.Target
}

// Draft returns a copy of the session.
func (s *Session) Draft() Draft {
	pts := s.points.Clone()
	if pts == nil {
		pts = geo.Polygon{}
	}
	return Draft{State: s.state, Points: pts, Target: s.target}
}

func (s *Session) reset() {
	s.state = Idle
	s.points = nil
	s.target = scene.NoID
}
