package api

import (
	"net/http"

	"github.com/onnwee/bughunt/internal/game"
	"github.com/onnwee/bughunt/internal/geo"
	"github.com/onnwee/bughunt/internal/scene"
)

// CreateSceneRequest represents the request body for creating a scene.
type CreateSceneRequest struct {
	Name  string `json:"name"`
	Image string `json:"image"`
}

// CreateBugRequest represents the request body for creating a bug with
// explicit coordinates.
type CreateBugRequest struct {
	scene.BugFields
	Coordinates geo.Polygon `json:"coordinates"`
}

// SceneHandlers holds dependencies for scene and bug authoring handlers.
type SceneHandlers struct {
	game *game.Game
}

// NewSceneHandlers creates a new SceneHandlers instance.
func NewSceneHandlers(g *game.Game) *SceneHandlers {
	return &SceneHandlers{game: g}
}

// CreateScene handles POST /api/scenes.
func (h *SceneHandlers) CreateScene(w http.ResponseWriter, r *http.Request) {
	var req CreateSceneRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	sc, err := h.game.CreateScene(r.Context(), req.Name, req.Image)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, sc)
}

// UpdateScene handles PATCH /api/scenes/{id}. Absent fields are left
// unchanged; an id in the body is rejected.
func (h *SceneHandlers) UpdateScene(w http.ResponseWriter, r *http.Request) {
	var patch scene.ScenePatch
	if !decodeJSON(w, r, &patch) {
		return
	}
	sc, err := h.game.UpdateScene(r.Context(), r.PathValue("id"), patch)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, sc)
}

// DeleteScene handles DELETE /api/scenes/{id}. The scene's bugs go with it.
func (h *SceneHandlers) DeleteScene(w http.ResponseWriter, r *http.Request) {
	if err := h.game.DeleteScene(r.Context(), r.PathValue("id")); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CreateBug handles POST /api/scenes/{id}/bugs.
func (h *SceneHandlers) CreateBug(w http.ResponseWriter, r *http.Request) {
	var req CreateBugRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	b, err := h.game.CreateBug(r.Context(), r.PathValue("id"), req.BugFields, req.Coordinates)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, b)
}

// UpdateBug handles PATCH /api/bugs/{id}. An empty image string removes
// the bug image.
func (h *SceneHandlers) UpdateBug(w http.ResponseWriter, r *http.Request) {
	var patch scene.BugPatch
	if !decodeJSON(w, r, &patch) {
		return
	}
	b, err := h.game.UpdateBug(r.Context(), r.PathValue("id"), patch)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, b)
}

// DeleteBug handles DELETE /api/bugs/{id}.
func (h *SceneHandlers) DeleteBug(w http.ResponseWriter, r *http.Request) {
	if err := h.game.DeleteBug(r.Context(), r.PathValue("id")); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
