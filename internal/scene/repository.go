package scene

import (
	"context"
	"sync"
)

// Gateway is the durable CRUD contract the store persists through.
//
// ListScenes returns scenes in creation order. ListBugs returns bugs most
// recently created first. RemoveScene must delete the scene's bugs in the
// same atomic step. Patch and Remove return ErrSceneNotFound or
// ErrBugNotFound when the id does not exist.
type Gateway interface {
	ListScenes(ctx context.Context) ([]Scene, error)
	InsertScene(ctx context.Context, scene Scene) error
	PatchScene(ctx context.Context, id string, patch ScenePatch) error
	RemoveScene(ctx context.Context, id string) error

	ListBugs(ctx context.Context) ([]Bug, error)
	InsertBug(ctx context.Context, bug Bug) error
	PatchBug(ctx context.Context, id string, patch BugPatch) error
	RemoveBug(ctx context.Context, id string) error
}

// InMemoryGateway is an in-memory implementation of Gateway.
// Used for testing and development.
type InMemoryGateway struct {
	mu     sync.RWMutex
	scenes []Scene
	bugs   []Bug // creation order; listed in reverse
}

// NewInMemoryGateway creates an empty in-memory gateway.
func NewInMemoryGateway() *InMemoryGateway {
	return &InMemoryGateway{}
}

// ListScenes returns copies of all scenes in creation order.
func (g *InMemoryGateway) ListScenes(ctx context.Context) ([]Scene, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	return cloneScenes(g.scenes), nil
}

// InsertScene stores a copy of scene.
func (g *InMemoryGateway) InsertScene(ctx context.Context, scene Scene) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.scenes = append(g.scenes, scene)
	return nil
}

// PatchScene merges patch into the stored scene.
func (g *InMemoryGateway) PatchScene(ctx context.Context, id string, patch ScenePatch) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	for i := range g.scenes {
		if g.scenes[i].ID == id {
			g.scenes[i] = patch.Apply(g.scenes[i])
			return nil
		}
	}
	return ErrSceneNotFound
}

// RemoveScene deletes the scene and every bug that belongs to it.
func (g *InMemoryGateway) RemoveScene(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	idx := -1
	for i := range g.scenes {
		if g.scenes[i].ID == id {
			idx = i
			break
		}
	}
	if idx == -1 {
		return ErrSceneNotFound
	}

	g.scenes = append(g.scenes[:idx:idx], g.scenes[idx+1:]...)
	kept := g.bugs[:0:0]
	for _, b := range g.bugs {
		if b.SceneID != id {
			kept = append(kept, b)
		}
	}
	g.bugs = kept
	return nil
}

// ListBugs returns copies of all bugs, newest first.
func (g *InMemoryGateway) ListBugs(ctx context.Context) ([]Bug, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]Bug, 0, len(g.bugs))
	for i := len(g.bugs) - 1; i >= 0; i-- {
		out = append(out, g.bugs[i].Clone())
	}
	return out, nil
}

// InsertBug stores a copy of bug.
func (g *InMemoryGateway) InsertBug(ctx context.Context, bug Bug) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.bugs = append(g.bugs, bug.Clone())
	return nil
}

// PatchBug merges patch into the stored bug.
func (g *InMemoryGateway) PatchBug(ctx context.Context, id string, patch BugPatch) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	for i := range g.bugs {
		if g.bugs[i].ID == id {
			g.bugs[i] = patch.Apply(g.bugs[i])
			return nil
		}
	}
	return ErrBugNotFound
}

// RemoveBug deletes a single bug.
func (g *InMemoryGateway) RemoveBug(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	for i := range g.bugs {
		if g.bugs[i].ID == id {
			g.bugs = append(g.bugs[:i:i], g.bugs[i+1:]...)
			return nil
		}
	}
	return ErrBugNotFound
}
