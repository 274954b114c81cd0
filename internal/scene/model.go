// Package scene provides the scene and bug models, the persistence gateway
// contract, the authoritative entity store and the session cursor that
// tracks which scene and bug a player is currently hunting.
package scene

import (
	"github.com/onnwee/bughunt/internal/geo"
)

// Scene is a background image that contains hidden bugs.
type Scene struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Image string `json:"image"`
}

// Bug is a polygon-bounded region inside a scene. Prompt is shown while the
// player searches; FunFact and Image are revealed when it is found.
type Bug struct {
	ID          string      `json:"id"`
	SceneID     string      `json:"scene_id"`
	Name        string      `json:"name"`
	FunFact     string      `json:"fun_fact"`
	Prompt      string      `json:"prompt"`
	Coordinates geo.Polygon `json:"coordinates"`
	Image       *string     `json:"image,omitempty"`
}

// Clone returns a deep copy of the bug.
func (b Bug) Clone() Bug {
	out := b
	out.Coordinates = b.Coordinates.Clone()
	if b.Image != nil {
		img := *b.Image
		out.Image = &img
	}
	return out
}

// BugFields holds the author-supplied text of a bug.
type BugFields struct {
	Name    string  `json:"name"`
	FunFact string  `json:"fun_fact"`
	Prompt  string  `json:"prompt"`
	Image   *string `json:"image,omitempty"`
}

// ScenePatch is a partial scene update. Nil fields are left unchanged.
// ID exists only so that attempts to change it can be detected and rejected.
type ScenePatch struct {
	ID    *string `json:"id,omitempty"`
	Name  *string `json:"name,omitempty"`
	Image *string `json:"image,omitempty"`
}

// IsEmpty reports whether the patch changes nothing.
func (p ScenePatch) IsEmpty() bool {
	return p.Name == nil && p.Image == nil
}

// BugPatch is a partial bug update. Nil fields are left unchanged.
// A non-nil Image pointing at "" removes the bug image.
type BugPatch struct {
	ID          *string     `json:"id,omitempty"`
	SceneID     *string     `json:"scene_id,omitempty"`
	Name        *string     `json:"name,omitempty"`
	FunFact     *string     `json:"fun_fact,omitempty"`
	Prompt      *string     `json:"prompt,omitempty"`
	Coordinates geo.Polygon `json:"coordinates,omitempty"`
	Image       *string     `json:"image,omitempty"`
}

// IsEmpty reports whether the patch changes nothing.
func (p BugPatch) IsEmpty() bool {
	return p.SceneID == nil && p.Name == nil && p.FunFact == nil &&
		p.Prompt == nil && p.Coordinates == nil && p.Image == nil
}

// Apply merges the patch into b and returns the result.
func (p BugPatch) Apply(b Bug) Bug {
	out := b.Clone()
	if p.SceneID != nil {
		out.SceneID = *p.SceneID
	}
	if p.Name != nil {
		out.Name = *p.Name
	}
	if p.FunFact != nil {
		out.FunFact = *p.FunFact
	}
	if p.Prompt != nil {
		out.Prompt = *p.Prompt
	}
	if p.Coordinates != nil {
		out.Coordinates = p.Coordinates.Clone()
	}
	if p.Image != nil {
		if *p.Image == "" {
			out.Image = nil
		} else {
			img := *p.Image
			out.Image = &img
		}
	}
	return out
}

// Apply merges the patch into s and returns the result.
func (p ScenePatch) Apply(s Scene) Scene {
	if p.Name != nil {
		s.Name = *p.Name
	}
	if p.Image != nil {
		s.Image = *p.Image
	}
	return s
}

// FilterByScene returns the bugs belonging to sceneID, keeping their order.
func FilterByScene(bugs []Bug, sceneID string) []Bug {
	var out []Bug
	for _, b := range bugs {
		if b.SceneID == sceneID {
			out = append(out, b)
		}
	}
	return out
}

func cloneScenes(scenes []Scene) []Scene {
	if scenes == nil {
		return []Scene{}
	}
	out := make([]Scene, len(scenes))
	copy(out, scenes)
	return out
}

func cloneBugs(bugs []Bug) []Bug {
	out := make([]Bug, len(bugs))
	for i, b := range bugs {
		out[i] = b.Clone()
	}
	return out
}
