package api

import (
	"errors"
	"net/http"

	"github.com/onnwee/bughunt/internal/game"
	"github.com/onnwee/bughunt/internal/geo"
	"github.com/onnwee/bughunt/internal/scene"
)

var errPointRequired = errors.New("x and y, or px, py, width and height, are required")

// SelectSceneRequest is the body of POST /api/play/scene.
type SelectSceneRequest struct {
	SceneID string `json:"scene_id"`
}

// SelectBugRequest is the body of POST /api/play/bug.
type SelectBugRequest struct {
	BugID string `json:"bug_id"`
}

// PointRequest is a click or region vertex. Either X and Y are given as
// percentages of the image, or PX and PY are given in pixels together
// with the rendered Width and Height of the image.
type PointRequest struct {
	X      *float64 `json:"x,omitempty"`
	Y      *float64 `json:"y,omitempty"`
	PX     *float64 `json:"px,omitempty"`
	PY     *float64 `json:"py,omitempty"`
	Width  *float64 `json:"width,omitempty"`
	Height *float64 `json:"height,omitempty"`
}

// Coordinate converts the request to image percentages.
func (p PointRequest) Coordinate() (geo.Coordinate, error) {
	switch {
	case p.X != nil && p.Y != nil:
		c := geo.Coordinate{X: *p.X, Y: *p.Y}
		if err := c.Validate(); err != nil {
			return geo.Coordinate{}, &scene.ValidationError{Field: "point", Err: err}
		}
		return c, nil
	case p.PX != nil && p.PY != nil && p.Width != nil && p.Height != nil:
		c, err := geo.FromPixels(*p.PX, *p.PY, *p.Width, *p.Height)
		if err == nil {
			err = c.Validate()
		}
		if err != nil {
			return geo.Coordinate{}, &scene.ValidationError{Field: "point", Err: err}
		}
		return c, nil
	default:
		return geo.Coordinate{}, &scene.ValidationError{Field: "point", Err: errPointRequired}
	}
}

// AdvanceResponse reports the bug the player should look for next.
type AdvanceResponse struct {
	BugID scene.OptionalID `json:"bug_id"`
}

// AdminModeResponse reports the admin flag after a toggle.
type AdminModeResponse struct {
	AdminMode bool `json:"admin_mode"`
}

// GameHandlers serves the player-facing endpoints.
type GameHandlers struct {
	game *game.Game
}

// NewGameHandlers creates a new GameHandlers instance.
func NewGameHandlers(g *game.Game) *GameHandlers {
	return &GameHandlers{game: g}
}

// State handles GET /api/state.
func (h *GameHandlers) State(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, h.game.State())
}

// ListScenes handles GET /api/scenes.
func (h *GameHandlers) ListScenes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, h.game.Scenes())
}

// ListBugs handles GET /api/bugs, optionally filtered by ?scene_id=.
func (h *GameHandlers) ListBugs(w http.ResponseWriter, r *http.Request) {
	bugs := h.game.Bugs(r.URL.Query().Get("scene_id"))
	if bugs == nil {
		bugs = []scene.Bug{}
	}
	writeJSON(w, r, http.StatusOK, bugs)
}

// SelectScene handles POST /api/play/scene.
func (h *GameHandlers) SelectScene(w http.ResponseWriter, r *http.Request) {
	var req SelectSceneRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.game.SelectScene(req.SceneID); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, h.game.State().Cursor)
}

// SelectBug handles POST /api/play/bug.
func (h *GameHandlers) SelectBug(w http.ResponseWriter, r *http.Request) {
	var req SelectBugRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.game.SelectBug(req.BugID); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, h.game.State().Cursor)
}

// Click handles POST /api/play/click. A miss is a 200 with hit=false.
func (h *GameHandlers) Click(w http.ResponseWriter, r *http.Request) {
	var req PointRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	p, err := req.Coordinate()
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	res, err := h.game.Click(p)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, res)
}

// Advance handles POST /api/play/advance.
func (h *GameHandlers) Advance(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, AdvanceResponse{BugID: h.game.Advance()})
}

// DismissIntro handles POST /api/play/intro/dismiss.
func (h *GameHandlers) DismissIntro(w http.ResponseWriter, r *http.Request) {
	h.game.DismissIntro()
	w.WriteHeader(http.StatusNoContent)
}

// ToggleAdmin handles POST /api/admin/mode.
func (h *GameHandlers) ToggleAdmin(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, AdminModeResponse{AdminMode: h.game.ToggleAdmin()})
}
