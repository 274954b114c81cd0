package api

import (
	"net/http"

	"github.com/onnwee/bughunt/internal/game"
)

// RegionHandlers drive the admin's polygon drawing session.
type RegionHandlers struct {
	game *game.Game
}

// NewRegionHandlers creates a new RegionHandlers instance.
func NewRegionHandlers(g *game.Game) *RegionHandlers {
	return &RegionHandlers{game: g}
}

// Start handles POST /api/admin/region/start.
func (h *RegionHandlers) Start(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, h.game.StartRegion())
}

// Edit handles POST /api/admin/region/edit/{bugID}.
func (h *RegionHandlers) Edit(w http.ResponseWriter, r *http.Request) {
	draft, err := h.game.EditRegion(r.PathValue("bugID"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, draft)
}

// AddPoint handles POST /api/admin/region/points.
func (h *RegionHandlers) AddPoint(w http.ResponseWriter, r *http.Request) {
	var req PointRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	p, err := req.Coordinate()
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	draft, err := h.game.AddRegionPoint(p)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, draft)
}

// Undo handles POST /api/admin/region/undo.
func (h *RegionHandlers) Undo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, h.game.UndoRegionPoint())
}

// Cancel handles POST /api/admin/region/cancel.
func (h *RegionHandlers) Cancel(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, h.game.CancelRegion())
}

// Commit handles POST /api/admin/region/commit. A new region becomes a bug
// in scene_id; an edited region replaces the bug's coordinates.
func (h *RegionHandlers) Commit(w http.ResponseWriter, r *http.Request) {
	var req game.RegionCommit
	if !decodeJSON(w, r, &req) {
		return
	}
	b, err := h.game.CommitRegion(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, b)
}
