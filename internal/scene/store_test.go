package scene

import (
	"context"
	"errors"
	"testing"

	"github.com/onnwee/bughunt/internal/geo"
	"github.com/onnwee/bughunt/internal/validate"
)

func TestStore_CreateSceneMintsID(t *testing.T) {
	s := NewStore(NewInMemoryGateway(), quietLogger())

	a := mustCreateScene(t, s, "kitchen")
	b := mustCreateScene(t, s, "garage")

	if a.ID == "" || b.ID == "" || a.ID == b.ID {
		t.Errorf("minted ids = %q, %q; want distinct non-empty", a.ID, b.ID)
	}
	scenes := s.Scenes()
	if len(scenes) != 2 || scenes[0].ID != a.ID || scenes[1].ID != b.ID {
		t.Errorf("Scenes() = %v, want creation order", scenes)
	}
}

func TestStore_CreateSceneValidation(t *testing.T) {
	tests := []struct {
		name      string
		sceneName string
		image     string
		wantField string
	}{
		{name: "empty name", sceneName: "", image: "/a.png", wantField: "name"},
		{name: "blank name", sceneName: "   ", image: "/a.png", wantField: "name"},
		{name: "empty image", sceneName: "kitchen", image: "", wantField: "image"},
		{name: "bad image", sceneName: "kitchen", image: "not an image", wantField: "image"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gw := NewInMemoryGateway()
			s := NewStore(gw, quietLogger())

			_, err := s.CreateScene(context.Background(), tt.sceneName, tt.image)
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("CreateScene() error = %v, want *ValidationError", err)
			}
			if ve.Field != tt.wantField {
				t.Errorf("ValidationError.Field = %q, want %q", ve.Field, tt.wantField)
			}
			if stored, _ := gw.ListScenes(context.Background()); len(stored) != 0 {
				t.Errorf("gateway holds %d scenes after rejected create", len(stored))
			}
		})
	}
}

func TestStore_CreateBug(t *testing.T) {
	s := NewStore(NewInMemoryGateway(), quietLogger())
	sc := mustCreateScene(t, s, "kitchen")

	img := "/images/faucet.png"
	fields := bugFields("faucet")
	fields.Image = &img
	b, err := s.CreateBug(context.Background(), sc.ID, fields, square)
	if err != nil {
		t.Fatalf("CreateBug() error: %v", err)
	}

	got, ok := s.Bug(b.ID)
	if !ok {
		t.Fatalf("Bug(%s) not found after create", b.ID)
	}
	if got.SceneID != sc.ID || got.Name != "faucet" || got.Image == nil || *got.Image != img {
		t.Errorf("stored bug = %+v", got)
	}
	if !got.Coordinates.Equal(square) {
		t.Errorf("Coordinates = %v, want %v", got.Coordinates, square)
	}
}

func TestStore_CreateBugValidation(t *testing.T) {
	twoPoints := geo.Polygon{{X: 1, Y: 1}, {X: 2, Y: 2}}
	outside := geo.Polygon{{X: 1, Y: 1}, {X: 101, Y: 1}, {X: 50, Y: 50}}

	tests := []struct {
		name      string
		fields    BugFields
		poly      geo.Polygon
		wantField string
		wantErr   error
	}{
		{name: "two points", fields: bugFields("a"), poly: twoPoints, wantField: "coordinates", wantErr: geo.ErrTooFewVertices},
		{name: "no points", fields: bugFields("a"), poly: nil, wantField: "coordinates", wantErr: geo.ErrTooFewVertices},
		{name: "out of range", fields: bugFields("a"), poly: outside, wantField: "coordinates", wantErr: geo.ErrOutOfBounds},
		{name: "empty name", fields: BugFields{FunFact: "f", Prompt: "p"}, poly: square, wantField: "name", wantErr: validate.ErrEmpty},
		{name: "empty fun fact", fields: BugFields{Name: "n", Prompt: "p"}, poly: square, wantField: "fun_fact", wantErr: validate.ErrEmpty},
		{name: "empty prompt", fields: BugFields{Name: "n", FunFact: "f"}, poly: square, wantField: "prompt", wantErr: validate.ErrEmpty},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gw := NewInMemoryGateway()
			s := NewStore(gw, quietLogger())
			sc := mustCreateScene(t, s, "kitchen")

			_, err := s.CreateBug(context.Background(), sc.ID, tt.fields, tt.poly)
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("CreateBug() error = %v, want *ValidationError", err)
			}
			if ve.Field != tt.wantField {
				t.Errorf("Field = %q, want %q", ve.Field, tt.wantField)
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want wrapping %v", err, tt.wantErr)
			}
			if len(s.Bugs()) != 0 {
				t.Errorf("store holds bugs after rejected create")
			}
		})
	}
}

func TestStore_CreateBugUnknownScene(t *testing.T) {
	s := NewStore(NewInMemoryGateway(), quietLogger())
	_, err := s.CreateBug(context.Background(), "missing", bugFields("a"), square)
	if !errors.Is(err, ErrSceneNotFound) {
		t.Errorf("CreateBug() error = %v, want ErrSceneNotFound", err)
	}
}

func TestStore_DeleteSceneCascades(t *testing.T) {
	s := NewStore(NewInMemoryGateway(), quietLogger())
	a := mustCreateScene(t, s, "a")
	b := mustCreateScene(t, s, "b")
	mustCreateBug(t, s, a.ID, "a1")
	mustCreateBug(t, s, b.ID, "b1")
	mustCreateBug(t, s, a.ID, "a2")
	mustCreateBug(t, s, b.ID, "b2")
	mustCreateBug(t, s, a.ID, "a3")

	before := len(s.Bugs())
	inA := len(s.BugsForScene(a.ID))

	if err := s.DeleteScene(context.Background(), a.ID); err != nil {
		t.Fatalf("DeleteScene() error: %v", err)
	}

	if got := len(s.Bugs()); got != before-inA {
		t.Errorf("bug count after cascade = %d, want %d", got, before-inA)
	}
	for _, bug := range s.Bugs() {
		if bug.SceneID == a.ID {
			t.Errorf("bug %s still references deleted scene", bug.ID)
		}
	}
	if _, ok := s.Scene(a.ID); ok {
		t.Error("deleted scene still present")
	}
}

func TestStore_BugsNewestFirst(t *testing.T) {
	s := NewStore(NewInMemoryGateway(), quietLogger())
	sc := mustCreateScene(t, s, "kitchen")
	first := mustCreateBug(t, s, sc.ID, "first")
	second := mustCreateBug(t, s, sc.ID, "second")

	bugs := s.BugsForScene(sc.ID)
	if len(bugs) != 2 || bugs[0].ID != second.ID || bugs[1].ID != first.ID {
		t.Errorf("BugsForScene() = %v, want newest first", bugs)
	}
}

func TestStore_UpdateScene(t *testing.T) {
	s := NewStore(NewInMemoryGateway(), quietLogger())
	sc := mustCreateScene(t, s, "kitchen")
	ctx := context.Background()

	name := "Big Kitchen"
	got, err := s.UpdateScene(ctx, sc.ID, ScenePatch{Name: &name})
	if err != nil {
		t.Fatalf("UpdateScene() error: %v", err)
	}
	if got.Name != name || got.Image != sc.Image {
		t.Errorf("UpdateScene() = %+v, want name changed and image kept", got)
	}

	otherID := "other"
	if _, err := s.UpdateScene(ctx, sc.ID, ScenePatch{ID: &otherID}); !errors.Is(err, ErrImmutableID) {
		t.Errorf("UpdateScene(id change) error = %v, want ErrImmutableID", err)
	}
	sameID := sc.ID
	renamed := "renamed"
	if _, err := s.UpdateScene(ctx, sc.ID, ScenePatch{ID: &sameID, Name: &renamed}); !errors.Is(err, ErrImmutableID) {
		t.Errorf("UpdateScene(same id) error = %v, want ErrImmutableID", err)
	}
	if got, _ := s.Scene(sc.ID); got.Name != name {
		t.Errorf("scene name = %q after rejected patch, want %q", got.Name, name)
	}

	empty := ""
	if _, err := s.UpdateScene(ctx, sc.ID, ScenePatch{Name: &empty}); !IsValidation(err) {
		t.Errorf("UpdateScene(empty name) error = %v, want validation error", err)
	}

	if _, err := s.UpdateScene(ctx, "missing", ScenePatch{Name: &name}); !errors.Is(err, ErrSceneNotFound) {
		t.Errorf("UpdateScene(missing) error = %v, want ErrSceneNotFound", err)
	}

	unchanged, err := s.UpdateScene(ctx, sc.ID, ScenePatch{})
	if err != nil || unchanged.Name != name {
		t.Errorf("UpdateScene(empty patch) = %+v, %v", unchanged, err)
	}
}

func TestStore_UpdateBug(t *testing.T) {
	s := NewStore(NewInMemoryGateway(), quietLogger())
	ctx := context.Background()
	a := mustCreateScene(t, s, "a")
	b := mustCreateScene(t, s, "b")
	img := "/images/old.png"
	fields := bugFields("bug")
	fields.Image = &img
	bug, err := s.CreateBug(ctx, a.ID, fields, square)
	if err != nil {
		t.Fatalf("CreateBug() error: %v", err)
	}

	tri := geo.Polygon{{X: 0, Y: 0}, {X: 100, Y: 0}, {X: 50, Y: 100}}
	prompt := "look up"
	got, err := s.UpdateBug(ctx, bug.ID, BugPatch{Prompt: &prompt, Coordinates: tri, SceneID: &b.ID})
	if err != nil {
		t.Fatalf("UpdateBug() error: %v", err)
	}
	if got.Prompt != prompt || got.SceneID != b.ID || !got.Coordinates.Equal(tri) {
		t.Errorf("UpdateBug() = %+v", got)
	}
	if got.Name != "bug" || got.Image == nil || *got.Image != img {
		t.Errorf("UpdateBug() dropped untouched fields: %+v", got)
	}

	none := ""
	got, err = s.UpdateBug(ctx, bug.ID, BugPatch{Image: &none})
	if err != nil {
		t.Fatalf("UpdateBug(clear image) error: %v", err)
	}
	if got.Image != nil {
		t.Errorf("Image = %v, want cleared", *got.Image)
	}

	missing := "missing"
	if _, err := s.UpdateBug(ctx, bug.ID, BugPatch{SceneID: &missing}); !errors.Is(err, ErrSceneNotFound) {
		t.Errorf("UpdateBug(move to missing scene) error = %v, want ErrSceneNotFound", err)
	}
	if _, err := s.UpdateBug(ctx, bug.ID, BugPatch{Coordinates: geo.Polygon{{X: 1, Y: 1}}}); !IsValidation(err) {
		t.Errorf("UpdateBug(short polygon) error = %v, want validation error", err)
	}
	if _, err := s.UpdateBug(ctx, bug.ID, BugPatch{ID: &missing}); !errors.Is(err, ErrImmutableID) {
		t.Errorf("UpdateBug(id change) error = %v, want ErrImmutableID", err)
	}
	sameID := bug.ID
	renamed := "renamed"
	if _, err := s.UpdateBug(ctx, bug.ID, BugPatch{ID: &sameID, Name: &renamed}); !IsValidation(err) || !errors.Is(err, ErrImmutableID) {
		t.Errorf("UpdateBug(same id) error = %v, want ErrImmutableID validation error", err)
	}
	if got, _ := s.Bug(bug.ID); got.Name != "bug" {
		t.Errorf("bug name = %q after rejected patch, want %q", got.Name, "bug")
	}
	if _, err := s.UpdateBug(ctx, "missing", BugPatch{Prompt: &prompt}); !errors.Is(err, ErrBugNotFound) {
		t.Errorf("UpdateBug(missing) error = %v, want ErrBugNotFound", err)
	}
}

func TestStore_DeleteBug(t *testing.T) {
	s := NewStore(NewInMemoryGateway(), quietLogger())
	sc := mustCreateScene(t, s, "kitchen")
	keep := mustCreateBug(t, s, sc.ID, "keep")
	drop := mustCreateBug(t, s, sc.ID, "drop")

	if err := s.DeleteBug(context.Background(), drop.ID); err != nil {
		t.Fatalf("DeleteBug() error: %v", err)
	}
	bugs := s.Bugs()
	if len(bugs) != 1 || bugs[0].ID != keep.ID {
		t.Errorf("Bugs() = %v, want only %s", bugs, keep.ID)
	}
	if err := s.DeleteBug(context.Background(), drop.ID); !errors.Is(err, ErrBugNotFound) {
		t.Errorf("DeleteBug(again) error = %v, want ErrBugNotFound", err)
	}
}

func TestStore_PersistenceFailureKeepsView(t *testing.T) {
	tests := []struct {
		name          string
		failOp        string
		run           func(s *Store, sceneID, bugID string) error
		wantCommitted bool
	}{
		{
			name:   "insert scene",
			failOp: "InsertScene",
			run: func(s *Store, _, _ string) error {
				_, err := s.CreateScene(context.Background(), "new", "/new.png")
				return err
			},
		},
		{
			name:   "insert bug",
			failOp: "InsertBug",
			run: func(s *Store, sceneID, _ string) error {
				_, err := s.CreateBug(context.Background(), sceneID, bugFields("new"), square)
				return err
			},
		},
		{
			name:   "remove scene",
			failOp: "RemoveScene",
			run: func(s *Store, sceneID, _ string) error {
				return s.DeleteScene(context.Background(), sceneID)
			},
		},
		{
			name:   "patch bug",
			failOp: "PatchBug",
			run: func(s *Store, _, bugID string) error {
				name := "renamed"
				_, err := s.UpdateBug(context.Background(), bugID, BugPatch{Name: &name})
				return err
			},
		},
		{
			name:   "refresh after write",
			failOp: "ListBugs",
			run: func(s *Store, sceneID, _ string) error {
				_, err := s.CreateBug(context.Background(), sceneID, bugFields("new"), square)
				return err
			},
			wantCommitted: true,
		},
		{
			name:   "refresh after delete",
			failOp: "ListScenes",
			run: func(s *Store, _, bugID string) error {
				return s.DeleteBug(context.Background(), bugID)
			},
			wantCommitted: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gw := newFlakyGateway()
			s := NewStore(gw, quietLogger())
			sc := mustCreateScene(t, s, "kitchen")
			bug := mustCreateBug(t, s, sc.ID, "faucet")
			scenesBefore, bugsBefore := s.Snapshot()

			gw.fail[tt.failOp] = true
			err := tt.run(s, sc.ID, bug.ID)

			var pe *PersistenceError
			if !errors.As(err, &pe) {
				t.Fatalf("error = %v, want *PersistenceError", err)
			}
			if !errors.Is(err, errGatewayDown) {
				t.Errorf("PersistenceError does not wrap cause: %v", err)
			}
			if pe.Committed != tt.wantCommitted || IsCommitted(err) != tt.wantCommitted {
				t.Errorf("Committed = %v, want %v", pe.Committed, tt.wantCommitted)
			}
			scenesAfter, bugsAfter := s.Snapshot()
			if len(scenesAfter) != len(scenesBefore) || len(bugsAfter) != len(bugsBefore) {
				t.Errorf("view changed after failure: %d/%d scenes, %d/%d bugs",
					len(scenesAfter), len(scenesBefore), len(bugsAfter), len(bugsBefore))
			}
			if bugsAfter[0].Name != bugsBefore[0].Name {
				t.Errorf("bug name = %q, want %q", bugsAfter[0].Name, bugsBefore[0].Name)
			}
		})
	}
}

func TestStore_LoadFailure(t *testing.T) {
	gw := newFlakyGateway()
	gw.fail["ListScenes"] = true
	s := NewStore(gw, quietLogger())

	if err := s.Load(context.Background()); !IsPersistence(err) {
		t.Errorf("Load() error = %v, want persistence error", err)
	}
	if len(s.Scenes()) != 0 {
		t.Error("Scenes() not empty after failed load")
	}
}

func TestStore_LoadReadsExistingData(t *testing.T) {
	ctx := context.Background()
	gw := NewInMemoryGateway()
	_ = gw.InsertScene(ctx, Scene{ID: "s", Name: "seeded", Image: "/s.png"})
	_ = gw.InsertBug(ctx, Bug{ID: "b", SceneID: "s", Coordinates: square})

	s := NewStore(gw, quietLogger())
	if err := s.Load(ctx); err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if _, ok := s.Scene("s"); !ok {
		t.Error("seeded scene missing after Load")
	}
	if len(s.BugsForScene("s")) != 1 {
		t.Error("seeded bug missing after Load")
	}
}

func TestStore_AccessorsReturnCopies(t *testing.T) {
	s := NewStore(NewInMemoryGateway(), quietLogger())
	sc := mustCreateScene(t, s, "kitchen")
	mustCreateBug(t, s, sc.ID, "faucet")

	bugs := s.Bugs()
	bugs[0].Coordinates[0].X = 42
	bugs[0].Name = "mutated"
	scenes := s.Scenes()
	scenes[0].Name = "mutated"

	if s.Bugs()[0].Coordinates[0].X != square[0].X || s.Bugs()[0].Name == "mutated" {
		t.Error("Bugs() exposes internal state")
	}
	if s.Scenes()[0].Name == "mutated" {
		t.Error("Scenes() exposes internal state")
	}
}
