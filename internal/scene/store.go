package scene

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/onnwee/bughunt/internal/geo"
	"github.com/onnwee/bughunt/internal/tracing"
	"github.com/onnwee/bughunt/internal/validate"
)

// Store is the authoritative in-memory view of scenes and bugs. Every
// mutation is validated, written through the Gateway and followed by a
// full re-list so the view always mirrors what was persisted.
type Store struct {
	gw     Gateway
	logger *slog.Logger
	newID  func() string

	mu     sync.RWMutex
	scenes []Scene
	bugs   []Bug
}

// NewStore creates a store backed by gw. The view is empty until Load.
func NewStore(gw Gateway, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		gw:     gw,
		logger: logger,
		newID:  func() string { return uuid.New().String() },
		scenes: []Scene{},
		bugs:   []Bug{},
	}
}

// Load replaces the view with the gateway's current contents.
func (s *Store) Load(ctx context.Context) error {
	return s.refresh(ctx, "load")
}

// Scenes returns the scenes in creation order.
func (s *Store) Scenes() []Scene {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneScenes(s.scenes)
}

// Bugs returns every bug, most recently created first.
func (s *Store) Bugs() []Bug {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneBugs(s.bugs)
}

// BugsForScene returns the bugs of one scene in canonical order.
func (s *Store) BugsForScene(sceneID string) []Bug {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneBugs(FilterByScene(s.bugs, sceneID))
}

// Snapshot returns scenes and bugs taken under the same lock.
func (s *Store) Snapshot() ([]Scene, []Bug) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneScenes(s.scenes), cloneBugs(s.bugs)
}

// Scene looks up a scene by id.
func (s *Store) Scene(id string) (Scene, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, sc := range s.scenes {
		if sc.ID == id {
			return sc, true
		}
	}
	return Scene{}, false
}

// Bug looks up a bug by id.
func (s *Store) Bug(id string) (Bug, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, b := range s.bugs {
		if b.ID == id {
			return b.Clone(), true
		}
	}
	return Bug{}, false
}

// CreateScene validates and persists a new scene with a freshly minted id.
func (s *Store) CreateScene(ctx context.Context, name, image string) (Scene, error) {
	name, err := validate.Name(name)
	if err != nil {
		return Scene{}, &ValidationError{Field: "name", Err: err}
	}
	image, err = validate.ImageRef(image)
	if err != nil {
		return Scene{}, &ValidationError{Field: "image", Err: err}
	}

	sc := Scene{ID: s.newID(), Name: name, Image: image}
	if err := s.gw.InsertScene(ctx, sc); err != nil {
		return Scene{}, s.persistenceFailure("create scene", err, slog.String("scene_id", sc.ID))
	}
	if err := s.refreshAfterWrite(ctx, "create scene"); err != nil {
		return Scene{}, err
	}
	return sc, nil
}

// UpdateScene merges patch into the scene. An empty patch changes nothing
// and does not touch the gateway.
func (s *Store) UpdateScene(ctx context.Context, id string, patch ScenePatch) (Scene, error) {
	if patch.ID != nil {
		return Scene{}, &ValidationError{Field: "id", Err: ErrImmutableID}
	}
	if patch.Name != nil {
		name, err := validate.Name(*patch.Name)
		if err != nil {
			return Scene{}, &ValidationError{Field: "name", Err: err}
		}
		patch.Name = &name
	}
	if patch.Image != nil {
		image, err := validate.ImageRef(*patch.Image)
		if err != nil {
			return Scene{}, &ValidationError{Field: "image", Err: err}
		}
		patch.Image = &image
	}

	current, ok := s.Scene(id)
	if !ok {
		return Scene{}, ErrSceneNotFound
	}
	if patch.IsEmpty() {
		return current, nil
	}

	if err := s.gw.PatchScene(ctx, id, patch); err != nil {
		if errors.Is(err, ErrSceneNotFound) {
			return Scene{}, err
		}
		return Scene{}, s.persistenceFailure("update scene", err, slog.String("scene_id", id))
	}
	if err := s.refreshAfterWrite(ctx, "update scene"); err != nil {
		return Scene{}, err
	}
	updated, _ := s.Scene(id)
	return updated, nil
}

// DeleteScene removes a scene together with all of its bugs.
func (s *Store) DeleteScene(ctx context.Context, id string) error {
	if _, ok := s.Scene(id); !ok {
		return ErrSceneNotFound
	}
	if err := s.gw.RemoveScene(ctx, id); err != nil {
		if errors.Is(err, ErrSceneNotFound) {
			return err
		}
		return s.persistenceFailure("delete scene", err, slog.String("scene_id", id))
	}
	return s.refreshAfterWrite(ctx, "delete scene")
}

// CreateBug validates and persists a new bug inside an existing scene.
func (s *Store) CreateBug(ctx context.Context, sceneID string, fields BugFields, poly geo.Polygon) (Bug, error) {
	fields, err := validateBugFields(fields)
	if err != nil {
		return Bug{}, err
	}
	if err := poly.Validate(); err != nil {
		return Bug{}, &ValidationError{Field: "coordinates", Err: err}
	}
	if _, ok := s.Scene(sceneID); !ok {
		return Bug{}, ErrSceneNotFound
	}

	b := Bug{
		ID:          s.newID(),
		SceneID:     sceneID,
		Name:        fields.Name,
		FunFact:     fields.FunFact,
		Prompt:      fields.Prompt,
		Coordinates: poly.Clone(),
		Image:       fields.Image,
	}
	if err := s.gw.InsertBug(ctx, b); err != nil {
		return Bug{}, s.persistenceFailure("create bug", err,
			slog.String("bug_id", b.ID), slog.String("scene_id", sceneID))
	}
	if err := s.refreshAfterWrite(ctx, "create bug"); err != nil {
		return Bug{}, err
	}
	return b, nil
}

// UpdateBug merges patch into the bug. A patch may move the bug to another
// existing scene.
func (s *Store) UpdateBug(ctx context.Context, id string, patch BugPatch) (Bug, error) {
	if patch.ID != nil {
		return Bug{}, &ValidationError{Field: "id", Err: ErrImmutableID}
	}

	validated, err := validateBugPatch(patch)
	if err != nil {
		return Bug{}, err
	}
	patch = validated

	current, ok := s.Bug(id)
	if !ok {
		return Bug{}, ErrBugNotFound
	}
	if patch.SceneID != nil {
		if _, ok := s.Scene(*patch.SceneID); !ok {
			return Bug{}, ErrSceneNotFound
		}
	}
	if patch.IsEmpty() {
		return current, nil
	}

	if err := s.gw.PatchBug(ctx, id, patch); err != nil {
		if errors.Is(err, ErrBugNotFound) {
			return Bug{}, err
		}
		return Bug{}, s.persistenceFailure("update bug", err, slog.String("bug_id", id))
	}
	if err := s.refreshAfterWrite(ctx, "update bug"); err != nil {
		return Bug{}, err
	}
	updated, _ := s.Bug(id)
	return updated, nil
}

// DeleteBug removes a single bug.
func (s *Store) DeleteBug(ctx context.Context, id string) error {
	if _, ok := s.Bug(id); !ok {
		return ErrBugNotFound
	}
	if err := s.gw.RemoveBug(ctx, id); err != nil {
		if errors.Is(err, ErrBugNotFound) {
			return err
		}
		return s.persistenceFailure("delete bug", err, slog.String("bug_id", id))
	}
	return s.refreshAfterWrite(ctx, "delete bug")
}

// refreshAfterWrite is refresh for a write the gateway already accepted. A
// failure is marked Committed so callers do not retry the write.
func (s *Store) refreshAfterWrite(ctx context.Context, op string) error {
	err := s.refresh(ctx, op)
	var pe *PersistenceError
	if errors.As(err, &pe) {
		pe.Committed = true
	}
	return err
}

// refresh re-lists both collections and swaps them in only when both reads
// succeed.
func (s *Store) refresh(ctx context.Context, op string) (err error) {
	ctx, end := tracing.StartSpan(ctx, "scene.refresh", attribute.String("scene.op", op))
	defer func() { end(err) }()

	scenes, err := s.gw.ListScenes(ctx)
	if err != nil {
		return s.persistenceFailure(op, err, slog.String("stage", "list scenes"))
	}
	bugs, err := s.gw.ListBugs(ctx)
	if err != nil {
		return s.persistenceFailure(op, err, slog.String("stage", "list bugs"))
	}

	s.mu.Lock()
	s.scenes = cloneScenes(scenes)
	s.bugs = cloneBugs(bugs)
	s.mu.Unlock()
	return nil
}

func (s *Store) persistenceFailure(op string, err error, attrs ...any) error {
	args := append([]any{slog.String("op", op), slog.String("error", err.Error())}, attrs...)
	s.logger.Error("persistence gateway failure", args...)
	return &PersistenceError{Op: op, Err: err}
}

func validateBugFields(f BugFields) (BugFields, error) {
	var err error
	if f.Name, err = validate.Name(f.Name); err != nil {
		return f, &ValidationError{Field: "name", Err: err}
	}
	if f.FunFact, err = validate.FunFact(f.FunFact); err != nil {
		return f, &ValidationError{Field: "fun_fact", Err: err}
	}
	if f.Prompt, err = validate.Prompt(f.Prompt); err != nil {
		return f, &ValidationError{Field: "prompt", Err: err}
	}
	if f.Image != nil {
		if *f.Image == "" {
			f.Image = nil
		} else {
			img, err := validate.ImageRef(*f.Image)
			if err != nil {
				return f, &ValidationError{Field: "image", Err: err}
			}
			f.Image = &img
		}
	}
	return f, nil
}

func validateBugPatch(p BugPatch) (BugPatch, error) {
	check := func(field string, v *string, fn func(string) (string, error)) (*string, error) {
		if v == nil {
			return nil, nil
		}
		out, err := fn(*v)
		if err != nil {
			return nil, &ValidationError{Field: field, Err: err}
		}
		return &out, nil
	}

	var err error
	if p.Name, err = check("name", p.Name, validate.Name); err != nil {
		return p, err
	}
	if p.FunFact, err = check("fun_fact", p.FunFact, validate.FunFact); err != nil {
		return p, err
	}
	if p.Prompt, err = check("prompt", p.Prompt, validate.Prompt); err != nil {
		return p, err
	}
	if p.Image != nil && *p.Image != "" {
		if p.Image, err = check("image", p.Image, validate.ImageRef); err != nil {
			return p, err
		}
	}
	if p.Coordinates != nil {
		if err := p.Coordinates.Validate(); err != nil {
			return p, &ValidationError{Field: "coordinates", Err: err}
		}
	}
	return p, nil
}
