package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/onnwee/bughunt/internal/config"
	"github.com/onnwee/bughunt/internal/scene"
)

const seedYAML = `
scenes:
  - name: Kitchen
    image: /images/kitchen.png
    bugs:
      - name: Leaky faucet
        fun_fact: A dripping tap wastes thousands of litres a year.
        prompt: Find the drip
        coordinates:
          - {x: 10, y: 10}
          - {x: 30, y: 10}
          - {x: 30, y: 30}
      - name: Stuck drawer
        fun_fact: Drawer runners need wax.
        prompt: Find the drawer
        image: /images/drawer.png
        coordinates:
          - {x: 50, y: 50}
          - {x: 70, y: 50}
          - {x: 70, y: 70}
          - {x: 50, y: 70}
  - name: Garage
    image: https://example.com/garage.jpg
`

func writeSeed(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "seed.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write seed: %v", err)
	}
	return path
}

func newStore(t *testing.T) *scene.Store {
	t.Helper()
	store := scene.NewStore(scene.NewInMemoryGateway(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err := store.Load(context.Background()); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	return store
}

func TestLoadDocument(t *testing.T) {
	doc, err := LoadDocument(writeSeed(t, seedYAML))
	if err != nil {
		t.Fatalf("LoadDocument() error = %v", err)
	}
	if len(doc.Scenes) != 2 {
		t.Fatalf("expected 2 scenes, got %d", len(doc.Scenes))
	}
	kitchen := doc.Scenes[0]
	if kitchen.Name != "Kitchen" || len(kitchen.Bugs) != 2 {
		t.Fatalf("kitchen = %+v", kitchen)
	}
	drawer := kitchen.Bugs[1]
	if drawer.Image != "/images/drawer.png" || len(drawer.Coordinates) != 4 {
		t.Errorf("drawer = %+v", drawer)
	}
	if got := drawer.Coordinates[2]; got.X != 70 || got.Y != 70 {
		t.Errorf("third vertex = %+v", got)
	}
}

func TestLoadDocument_MissingFile(t *testing.T) {
	if _, err := LoadDocument(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for a missing file")
	}
}

func TestSeed(t *testing.T) {
	doc, err := LoadDocument(writeSeed(t, seedYAML))
	if err != nil {
		t.Fatalf("LoadDocument() error = %v", err)
	}
	store := newStore(t)

	summary, err := Seed(context.Background(), store, doc)
	if err != nil {
		t.Fatalf("Seed() error = %v", err)
	}
	if summary != (Summary{ScenesCreated: 2, BugsCreated: 2}) {
		t.Errorf("summary = %+v", summary)
	}
	if got := len(store.Bugs()); got != 2 {
		t.Errorf("expected 2 bugs, got %d", got)
	}
	for _, b := range store.Bugs() {
		if b.Name == "Leaky faucet" && b.Image != nil {
			t.Errorf("bug without image should have nil Image, got %q", *b.Image)
		}
	}

	// A second run skips what already exists.
	summary, err = Seed(context.Background(), store, doc)
	if err != nil {
		t.Fatalf("second Seed() error = %v", err)
	}
	if summary != (Summary{ScenesSkipped: 2}) {
		t.Errorf("second summary = %+v", summary)
	}
	if got := len(store.Scenes()); got != 2 {
		t.Errorf("expected 2 scenes after re-run, got %d", got)
	}
}

func TestSeed_InvalidBug(t *testing.T) {
	doc := Document{Scenes: []SceneSeed{{
		Name:  "Attic",
		Image: "/images/attic.png",
		Bugs: []BugSeed{{
			Name:        "Moth",
			FunFact:     "Moths navigate by the moon.",
			Prompt:      "Find the moth",
			Coordinates: []PointSeed{{X: 1, Y: 1}, {X: 2, Y: 2}},
		}},
	}}}

	summary, err := Seed(context.Background(), newStore(t), doc)
	var verr *scene.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if summary.ScenesCreated != 1 || summary.BugsCreated != 0 {
		t.Errorf("summary = %+v", summary)
	}
}

func TestOpenGateway(t *testing.T) {
	cfg := &config.Config{StorageDriver: config.StorageMemory}
	if _, _, err := openGateway(context.Background(), cfg); !errors.Is(err, ErrNoDatabase) {
		t.Errorf("expected ErrNoDatabase, got %v", err)
	}

	cfg = &config.Config{StorageDriver: config.StorageSQLite, SQLitePath: filepath.Join(t.TempDir(), "seed.db")}
	gw, closeFn, err := openGateway(context.Background(), cfg)
	if err != nil {
		t.Fatalf("openGateway() error = %v", err)
	}
	defer closeFn()

	store := scene.NewStore(gw, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err := store.Load(context.Background()); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	doc, err := LoadDocument(writeSeed(t, seedYAML))
	if err != nil {
		t.Fatalf("LoadDocument() error = %v", err)
	}
	if _, err := Seed(context.Background(), store, doc); err != nil {
		t.Fatalf("Seed() error = %v", err)
	}
	scenes, err := gw.ListScenes(context.Background())
	if err != nil || len(scenes) != 2 {
		t.Errorf("ListScenes() = %d scenes, %v", len(scenes), err)
	}
}
