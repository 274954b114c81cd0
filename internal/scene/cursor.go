package scene

// Cursor tracks the scene being played and the bug being searched for.
// It holds ids only; callers pass the current collections in so the
// pointers can be re-validated after every mutation.
//
// "First" always means first in canonical order: scenes in creation order,
// bugs most recently created first.
type Cursor struct {
	scene OptionalID
	bug   OptionalID
}

// CursorState is the serializable form of a Cursor.
type CursorState struct {
	CurrentSceneID OptionalID `json:"current_scene_id"`
	CurrentBugID   OptionalID `json:"current_bug_id"`
}

// SceneID returns the current scene pointer.
func (c *Cursor) SceneID() OptionalID { return c.scene }

// BugID returns the current bug pointer.
func (c *Cursor) BugID() OptionalID { return c.bug }

// State returns both pointers.
func (c *Cursor) State() CursorState {
	return CursorState{CurrentSceneID: c.scene, CurrentBugID: c.bug}
}

// Reconcile re-validates both pointers against the given collections.
// A dangling scene pointer falls back to the first scene, or none when
// there are no scenes. The bug pointer is then re-validated against the
// current scene's bugs.
func (c *Cursor) Reconcile(scenes []Scene, bugs []Bug) {
	if id, ok := c.scene.Get(); !ok || !containsScene(scenes, id) {
		if len(scenes) > 0 {
			c.scene = SomeID(scenes[0].ID)
		} else {
			c.scene = NoID
		}
	}
	c.reconcileBug(bugs)
}

// SelectScene makes id the current scene and points at its first bug.
func (c *Cursor) SelectScene(id string, scenes []Scene, bugs []Bug) error {
	if !containsScene(scenes, id) {
		return ErrSceneNotFound
	}
	c.scene = SomeID(id)
	c.bug = firstBug(bugs, id)
	return nil
}

// SelectBug points at a bug of the current scene.
func (c *Cursor) SelectBug(id string, bugs []Bug) error {
	sceneID, ok := c.scene.Get()
	if !ok {
		return ErrBugNotFound
	}
	for _, b := range bugs {
		if b.ID == id && b.SceneID == sceneID {
			c.bug = SomeID(id)
			return nil
		}
	}
	return ErrBugNotFound
}

// Advance moves to the next bug of the current scene, wrapping around.
// It returns the new pointer.
func (c *Cursor) Advance(bugs []Bug) OptionalID {
	sceneID, ok := c.scene.Get()
	if !ok {
		c.bug = NoID
		return c.bug
	}
	inScene := FilterByScene(bugs, sceneID)
	if len(inScene) == 0 {
		c.bug = NoID
		return c.bug
	}
	next := 0
	for i, b := range inScene {
		if c.bug.Is(b.ID) {
			next = (i + 1) % len(inScene)
			break
		}
	}
	c.bug = SomeID(inScene[next].ID)
	return c.bug
}

func (c *Cursor) reconcileBug(bugs []Bug) {
	sceneID, ok := c.scene.Get()
	if !ok {
		c.bug = NoID
		return
	}
	if id, ok := c.bug.Get(); ok {
		for _, b := range bugs {
			if b.ID == id && b.SceneID == sceneID {
				return
			}
		}
	}
	c.bug = firstBug(bugs, sceneID)
}

func firstBug(bugs []Bug, sceneID string) OptionalID {
	for _, b := range bugs {
		if b.SceneID == sceneID {
			return SomeID(b.ID)
		}
	}
	return NoID
}

func containsScene(scenes []Scene, id string) bool {
	for _, s := range scenes {
		if s.ID == id {
			return true
		}
	}
	return false
}
