// Package game owns the single mutable state of a bug hunt: the entity
// store, the session cursor, the region authoring draft and the UI flags.
// Every change goes through a named operation on Game, which serializes
// callers and publishes the resulting state.
package game

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/onnwee/bughunt/internal/authoring"
	"github.com/onnwee/bughunt/internal/geo"
	"github.com/onnwee/bughunt/internal/scene"
)

// MissMessage is shown when a click lands outside the current bug.
const MissMessage = "Not quite! Try again!"

// ErrNoActiveBug is returned by Click when there is nothing to find.
var ErrNoActiveBug = errors.New("no bug is being searched for")

// State is a read-only snapshot of the game.
type State struct {
	Scenes         []scene.Scene     `json:"scenes"`
	Bugs           []scene.Bug       `json:"bugs"`
	Cursor         scene.CursorState `json:"cursor"`
	Region         authoring.Draft   `json:"region"`
	AdminMode      bool              `json:"admin_mode"`
	IntroDismissed bool              `json:"intro_dismissed"`
}

// Event is published after every successful operation.
type Event struct {
	Type   string `json:"type"`
	Reason string `json:"reason"`
	State  State  `json:"state"`
}

// EventStateChanged is the type of every published Event.
const EventStateChanged = "state_changed"

// Publisher receives state changes. Implementations must not call back
// into Game.
type Publisher interface {
	Publish(Event)
}

// ClickResult reports the outcome of a player click.
type ClickResult struct {
	Hit     bool       `json:"hit"`
	Bug     *scene.Bug `json:"bug,omitempty"`
	Message string     `json:"message"`
}

// RegionCommit carries the bug details saved with a finished region.
// SceneID is required for new regions and ignored when editing. When
// editing, empty fields keep the bug's current values.
type RegionCommit struct {
	SceneID string          `json:"scene_id"`
	Fields  scene.BugFields `json:"fields"`
}

// Option configures a Game.
type Option func(*Game)

// WithPublisher sets the destination of state change events.
func WithPublisher(p Publisher) Option {
	return func(g *Game) { g.pub = p }
}

// WithMetrics enables Prometheus instrumentation.
func WithMetrics(m *Metrics) Option {
	return func(g *Game) { g.metrics = m }
}

// Game is the state container. It is safe for concurrent use.
type Game struct {
	mu             sync.Mutex
	store          *scene.Store
	cursor         scene.Cursor
	region         *authoring.Session
	adminMode      bool
	introDismissed bool

	pub     Publisher
	metrics *Metrics
	logger  *slog.Logger
}

// New creates a game on top of store. Call Load before serving players.
func New(store *scene.Store, logger *slog.Logger, opts ...Option) *Game {
	if logger == nil {
		logger = slog.Default()
	}
	g := &Game{
		store:  store,
		region: authoring.New(),
		logger: logger,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Load reads all scenes and bugs from persistence and positions the cursor.
func (g *Game) Load(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.store.Load(ctx); err != nil {
		return err
	}
	g.reconcile()
	g.publish("load")
	return nil
}

// State returns a snapshot.
func (g *Game) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.snapshot()
}

// Scenes returns all scenes in creation order.
func (g *Game) Scenes() []scene.Scene {
	return g.store.Scenes()
}

// Bugs returns bugs newest first, optionally restricted to one scene.
func (g *Game) Bugs(sceneID string) []scene.Bug {
	if sceneID == "" {
		return g.store.Bugs()
	}
	return g.store.BugsForScene(sceneID)
}

// CreateScene adds a scene.
func (g *Game) CreateScene(ctx context.Context, name, image string) (scene.Scene, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	sc, err := g.store.CreateScene(ctx, name, image)
	return sc, g.afterMutation("create_scene", err)
}

// UpdateScene patches a scene.
func (g *Game) UpdateScene(ctx context.Context, id string, patch scene.ScenePatch) (scene.Scene, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	sc, err := g.store.UpdateScene(ctx, id, patch)
	return sc, g.afterMutation("update_scene", err)
}

// DeleteScene removes a scene and its bugs.
func (g *Game) DeleteScene(ctx context.Context, id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	return g.afterMutation("delete_scene", g.store.DeleteScene(ctx, id))
}

// CreateBug adds a bug with explicit coordinates.
func (g *Game) CreateBug(ctx context.Context, sceneID string, fields scene.BugFields, poly geo.Polygon) (scene.Bug, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	b, err := g.store.CreateBug(ctx, sceneID, fields, poly)
	return b, g.afterMutation("create_bug", err)
}

// UpdateBug patches a bug.
func (g *Game) UpdateBug(ctx context.Context, id string, patch scene.BugPatch) (scene.Bug, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	b, err := g.store.UpdateBug(ctx, id, patch)
	return b, g.afterMutation("update_bug", err)
}

// DeleteBug removes a bug. If it was the one being searched for, the
// cursor moves to the first remaining bug of the scene.
func (g *Game) DeleteBug(ctx context.Context, id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	return g.afterMutation("delete_bug", g.store.DeleteBug(ctx, id))
}

// SelectScene switches the player to another scene.
func (g *Game) SelectScene(id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	scenes, bugs := g.store.Snapshot()
	if err := g.cursor.SelectScene(id, scenes, bugs); err != nil {
		return err
	}
	g.publish("select_scene")
	return nil
}

// SelectBug chooses which bug of the current scene to search for.
func (g *Game) SelectBug(id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.cursor.SelectBug(id, g.store.Bugs()); err != nil {
		return err
	}
	g.publish("select_bug")
	return nil
}

// Click tests p against the polygon of the bug being searched for.
// A miss is not an error.
func (g *Game) Click(p geo.Coordinate) (ClickResult, error) {
	if err := p.Validate(); err != nil {
		return ClickResult{}, &scene.ValidationError{Field: "point", Err: err}
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	id, ok := g.cursor.BugID().Get()
	if !ok {
		g.metrics.observeClick(OutcomeNoTarget)
		return ClickResult{}, ErrNoActiveBug
	}
	bug, ok := g.store.Bug(id)
	if !ok {
		g.metrics.observeClick(OutcomeNoTarget)
		return ClickResult{}, ErrNoActiveBug
	}

	if !bug.Coordinates.Contains(p) {
		g.metrics.observeClick(OutcomeMiss)
		return ClickResult{Hit: false, Message: MissMessage}, nil
	}

	g.metrics.observeClick(OutcomeHit)
	g.logger.Debug("bug found", slog.String("bug_id", bug.ID), slog.String("scene_id", bug.SceneID))
	return ClickResult{Hit: true, Bug: &bug, Message: bug.FunFact}, nil
}

// Advance moves to the next bug of the current scene once the player has
// read the fun fact, wrapping to the first.
func (g *Game) Advance() scene.OptionalID {
	g.mu.Lock()
	defer g.mu.Unlock()

	next := g.cursor.Advance(g.store.Bugs())
	g.publish("advance")
	return next
}

// ToggleAdmin flips admin mode. Leaving admin mode discards any draft.
func (g *Game) ToggleAdmin() bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.adminMode = !g.adminMode
	if !g.adminMode {
		g.region.Cancel()
	}
	g.publish("toggle_admin")
	return g.adminMode
}

// DismissIntro records that the player closed the introduction.
func (g *Game) DismissIntro() {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.introDismissed = true
	g.publish("dismiss_intro")
}

// StartRegion begins drawing a new region.
func (g *Game) StartRegion() authoring.Draft {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.region.Start()
	g.publish("region_start")
	return g.region.Draft()
}

// EditRegion begins redrawing the region of an existing bug.
func (g *Game) EditRegion(bugID string) (authoring.Draft, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	bug, ok := g.store.Bug(bugID)
	if !ok {
		return authoring.Draft{}, scene.ErrBugNotFound
	}
	g.region.Edit(bug.ID, bug.Coordinates)
	g.publish("region_edit")
	return g.region.Draft(), nil
}

// AddRegionPoint appends a vertex to the draft.
func (g *Game) AddRegionPoint(p geo.Coordinate) (authoring.Draft, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.region.AddPoint(p); err != nil {
		return authoring.Draft{}, err
	}
	g.publish("region_point")
	return g.region.Draft(), nil
}

// UndoRegionPoint removes the last vertex of the draft.
func (g *Game) UndoRegionPoint() authoring.Draft {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.region.UndoPoint()
	g.publish("region_undo")
	return g.region.Draft()
}

// CancelRegion discards the draft.
func (g *Game) CancelRegion() authoring.Draft {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.region.Cancel()
	g.publish("region_cancel")
	return g.region.Draft()
}

// CommitRegion finishes the draft and saves it, either as a new bug in
// c.SceneID or as the new coordinates of the bug being edited. If saving
// fails the draft is restored so the author can fix the input and retry,
// unless the bug was saved and only the reload failed.
func (g *Game) CommitRegion(ctx context.Context, c RegionCommit) (scene.Bug, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	region, err := g.region.Finish()
	if err != nil {
		return scene.Bug{}, err
	}

	var (
		bug scene.Bug
		op  string
	)
	if id, editing := region.Target.Get(); editing {
		op = "update_bug"
		bug, err = g.store.UpdateBug(ctx, id, commitPatch(c.Fields, region.Polygon))
	} else {
		op = "create_bug"
		bug, err = g.store.CreateBug(ctx, c.SceneID, c.Fields, region.Polygon)
	}
	if err != nil && !scene.IsCommitted(err) {
		g.region.Restore(region)
	}
	return bug, g.afterMutation(op, err)
}

func commitPatch(f scene.BugFields, poly geo.Polygon) scene.BugPatch {
	p := scene.BugPatch{Coordinates: poly}
	if f.Name != "" {
		p.Name = &f.Name
	}
	if f.FunFact != "" {
		p.FunFact = &f.FunFact
	}
	if f.Prompt != "" {
		p.Prompt = &f.Prompt
	}
	if f.Image != nil {
		p.Image = f.Image
	}
	return p
}

// afterMutation records the outcome and, when the write landed, re-validates
// the cursor and publishes the new state. Callers hold g.mu.
func (g *Game) afterMutation(op string, err error) error {
	g.metrics.observeMutation(op, err)
	if err != nil && !scene.IsCommitted(err) {
		return err
	}
	g.reconcile()
	g.publish(op)
	return err
}

func (g *Game) reconcile() {
	scenes, bugs := g.store.Snapshot()
	g.cursor.Reconcile(scenes, bugs)
	g.metrics.setCounts(len(scenes), len(bugs))
}

func (g *Game) snapshot() State {
	scenes, bugs := g.store.Snapshot()
	return State{
		Scenes:         scenes,
		Bugs:           bugs,
		Cursor:         g.cursor.State(),
		Region:         g.region.Draft(),
		AdminMode:      g.adminMode,
		IntroDismissed: g.introDismissed,
	}
}

func (g *Game) publish(reason string) {
	if g.pub == nil {
		return
	}
	g.pub.Publish(Event{Type: EventStateChanged, Reason: reason, State: g.snapshot()})
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case scene.IsValidation(err):
		return "invalid"
	case errors.Is(err, scene.ErrSceneNotFound), errors.Is(err, scene.ErrBugNotFound):
		return "not_found"
	case scene.IsPersistence(err):
		return "persistence_error"
	default:
		return "error"
	}
}
