package sqlite

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/onnwee/bughunt/internal/geo"
	"github.com/onnwee/bughunt/internal/scene"
)

var triangle = geo.Polygon{{X: 10, Y: 10}, {X: 20.5, Y: 10}, {X: 33.333333333333336, Y: 66.66666666666667}}

func TestOpenRequiresPath(t *testing.T) {
	t.Parallel()

	if _, err := Open(""); err == nil {
		t.Fatal("expected empty path error")
	}
}

func TestSceneOrderingAndPatch(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	ctx := context.Background()
	for _, id := range []string{"s1", "s2", "s3"} {
		if err := store.InsertScene(ctx, scene.Scene{ID: id, Name: "scene " + id, Image: "/" + id + ".png"}); err != nil {
			t.Fatalf("insert scene %s: %v", id, err)
		}
	}

	name := "renamed"
	if err := store.PatchScene(ctx, "s2", scene.ScenePatch{Name: &name}); err != nil {
		t.Fatalf("patch scene: %v", err)
	}

	scenes, err := store.ListScenes(ctx)
	if err != nil {
		t.Fatalf("list scenes: %v", err)
	}
	if len(scenes) != 3 {
		t.Fatalf("scenes = %d, want 3", len(scenes))
	}
	for i, want := range []string{"s1", "s2", "s3"} {
		if scenes[i].ID != want {
			t.Fatalf("scenes[%d] = %s, want %s", i, scenes[i].ID, want)
		}
	}
	if scenes[1].Name != name || scenes[1].Image != "/s2.png" {
		t.Fatalf("patched scene = %+v", scenes[1])
	}
}

func TestBugRoundTrip(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	ctx := context.Background()
	mustInsertScene(t, store, "s1")

	img := "data:image/png;base64,iVBORw0KGgo="
	input := scene.Bug{
		ID: "b1", SceneID: "s1", Name: "Leaky faucet", FunFact: "Drips waste water",
		Prompt: "Find the drip", Coordinates: triangle, Image: &img,
	}
	if err := store.InsertBug(ctx, input); err != nil {
		t.Fatalf("insert bug: %v", err)
	}
	if err := store.InsertBug(ctx, scene.Bug{ID: "b2", SceneID: "s1", Name: "n", FunFact: "f", Prompt: "p", Coordinates: triangle}); err != nil {
		t.Fatalf("insert bug: %v", err)
	}

	bugs, err := store.ListBugs(ctx)
	if err != nil {
		t.Fatalf("list bugs: %v", err)
	}
	if len(bugs) != 2 || bugs[0].ID != "b2" || bugs[1].ID != "b1" {
		t.Fatalf("bugs = %+v, want newest first", bugs)
	}
	got := bugs[1]
	if !got.Coordinates.Equal(triangle) {
		t.Fatalf("coordinates = %v, want exact %v", got.Coordinates, triangle)
	}
	if got.Image == nil || *got.Image != img {
		t.Fatalf("image = %v, want %q", got.Image, img)
	}
	if bugs[0].Image != nil {
		t.Fatalf("bug without image read back %q", *bugs[0].Image)
	}
}

func TestPatchBug(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	ctx := context.Background()
	mustInsertScene(t, store, "s1")
	mustInsertScene(t, store, "s2")
	img := "/old.png"
	if err := store.InsertBug(ctx, scene.Bug{ID: "b1", SceneID: "s1", Name: "n", FunFact: "f", Prompt: "p", Coordinates: triangle, Image: &img}); err != nil {
		t.Fatalf("insert bug: %v", err)
	}

	square := geo.Polygon{{X: 0, Y: 0}, {X: 100, Y: 0}, {X: 100, Y: 100}, {X: 0, Y: 100}}
	s2 := "s2"
	none := ""
	if err := store.PatchBug(ctx, "b1", scene.BugPatch{SceneID: &s2, Coordinates: square, Image: &none}); err != nil {
		t.Fatalf("patch bug: %v", err)
	}

	bugs, _ := store.ListBugs(ctx)
	if bugs[0].SceneID != "s2" || !bugs[0].Coordinates.Equal(square) || bugs[0].Image != nil {
		t.Fatalf("patched bug = %+v", bugs[0])
	}

	missing := "missing"
	if err := store.PatchBug(ctx, "b1", scene.BugPatch{SceneID: &missing}); !errors.Is(err, scene.ErrSceneNotFound) {
		t.Fatalf("move to missing scene error = %v, want ErrSceneNotFound", err)
	}
}

func TestRemoveSceneCascades(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	ctx := context.Background()
	mustInsertScene(t, store, "a")
	mustInsertScene(t, store, "b")
	for _, b := range []scene.Bug{
		{ID: "a1", SceneID: "a"}, {ID: "b1", SceneID: "b"}, {ID: "a2", SceneID: "a"},
	} {
		b.Name, b.FunFact, b.Prompt, b.Coordinates = "n", "f", "p", triangle
		if err := store.InsertBug(ctx, b); err != nil {
			t.Fatalf("insert bug %s: %v", b.ID, err)
		}
	}

	if err := store.RemoveScene(ctx, "a"); err != nil {
		t.Fatalf("remove scene: %v", err)
	}
	bugs, _ := store.ListBugs(ctx)
	if len(bugs) != 1 || bugs[0].ID != "b1" {
		t.Fatalf("bugs after cascade = %+v, want only b1", bugs)
	}
	scenes, _ := store.ListScenes(ctx)
	if len(scenes) != 1 || scenes[0].ID != "b" {
		t.Fatalf("scenes after delete = %+v", scenes)
	}
}

func TestNotFound(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	ctx := context.Background()
	name := "x"

	if err := store.PatchScene(ctx, "missing", scene.ScenePatch{Name: &name}); !errors.Is(err, scene.ErrSceneNotFound) {
		t.Errorf("PatchScene error = %v", err)
	}
	if err := store.PatchScene(ctx, "missing", scene.ScenePatch{}); !errors.Is(err, scene.ErrSceneNotFound) {
		t.Errorf("empty PatchScene error = %v", err)
	}
	if err := store.RemoveScene(ctx, "missing"); !errors.Is(err, scene.ErrSceneNotFound) {
		t.Errorf("RemoveScene error = %v", err)
	}
	if err := store.PatchBug(ctx, "missing", scene.BugPatch{Name: &name}); !errors.Is(err, scene.ErrBugNotFound) {
		t.Errorf("PatchBug error = %v", err)
	}
	if err := store.RemoveBug(ctx, "missing"); !errors.Is(err, scene.ErrBugNotFound) {
		t.Errorf("RemoveBug error = %v", err)
	}
}

func TestInsertBugForMissingSceneIsRejected(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	err := store.InsertBug(context.Background(), scene.Bug{
		ID: "orphan", SceneID: "nope", Name: "n", FunFact: "f", Prompt: "p", Coordinates: triangle,
	})
	if !errors.Is(err, scene.ErrSceneNotFound) {
		t.Fatalf("insert orphan bug error = %v, want ErrSceneNotFound", err)
	}
}

func TestReopenKeepsData(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "bughunt.db")
	store, err := Open(path)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	mustInsertScene(t, store, "s1")
	if err := store.Close(); err != nil {
		t.Fatalf("close store: %v", err)
	}

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("reopen store: %v", err)
	}
	defer reopened.Close()

	scenes, err := reopened.ListScenes(context.Background())
	if err != nil {
		t.Fatalf("list scenes: %v", err)
	}
	if len(scenes) != 1 || scenes[0].ID != "s1" {
		t.Fatalf("scenes after reopen = %+v", scenes)
	}
}

func TestEntityStoreOnSQLite(t *testing.T) {
	t.Parallel()

	gw := openTempStore(t)
	ctx := context.Background()
	s := scene.NewStore(gw, slog.New(slog.NewTextHandler(io.Discard, nil)))

	sc, err := s.CreateScene(ctx, "Kitchen", "/kitchen.png")
	if err != nil {
		t.Fatalf("create scene: %v", err)
	}
	bug, err := s.CreateBug(ctx, sc.ID, scene.BugFields{Name: "Faucet", FunFact: "Drips", Prompt: "Find it"}, triangle)
	if err != nil {
		t.Fatalf("create bug: %v", err)
	}
	if err := s.DeleteScene(ctx, sc.ID); err != nil {
		t.Fatalf("delete scene: %v", err)
	}
	if _, ok := s.Bug(bug.ID); ok {
		t.Fatal("bug survived scene delete")
	}
}

func TestIsForeignKeyViolation(t *testing.T) {
	if IsForeignKeyViolation(nil) {
		t.Error("nil is not a violation")
	}
	if !IsForeignKeyViolation(errors.New("FOREIGN KEY constraint failed")) {
		t.Error("message fallback not recognized")
	}
	if IsForeignKeyViolation(errors.New("disk I/O error")) {
		t.Error("unrelated error recognized as violation")
	}
}

func mustInsertScene(t *testing.T, store *Store, id string) {
	t.Helper()
	if err := store.InsertScene(context.Background(), scene.Scene{ID: id, Name: "scene " + id, Image: "/" + id + ".png"}); err != nil {
		t.Fatalf("insert scene %s: %v", id, err)
	}
}

func openTempStore(t *testing.T) *Store {
	t.Helper()

	store, err := Open(filepath.Join(t.TempDir(), "bughunt.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Fatalf("close store: %v", err)
		}
	})
	return store
}
