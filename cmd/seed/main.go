// Package main loads scenes and bugs from a YAML seed file into the
// configured database.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/onnwee/bughunt/internal/config"
	"github.com/onnwee/bughunt/internal/geo"
	"github.com/onnwee/bughunt/internal/middleware"
	"github.com/onnwee/bughunt/internal/scene"
	"github.com/onnwee/bughunt/internal/storage/postgres"
	"github.com/onnwee/bughunt/internal/storage/sqlite"
)

// ErrNoDatabase is returned when the configured driver does not persist.
var ErrNoDatabase = errors.New("seeding requires the sqlite or postgres storage driver")

// Document is the seed file layout.
type Document struct {
	Scenes []SceneSeed `koanf:"scenes"`
}

// SceneSeed is one scene with its bugs.
type SceneSeed struct {
	Name  string    `koanf:"name"`
	Image string    `koanf:"image"`
	Bugs  []BugSeed `koanf:"bugs"`
}

// BugSeed is one bug. Coordinates are image percentages.
type BugSeed struct {
	Name        string      `koanf:"name"`
	FunFact     string      `koanf:"fun_fact"`
	Prompt      string      `koanf:"prompt"`
	Image       string      `koanf:"image"`
	Coordinates []PointSeed `koanf:"coordinates"`
}

// PointSeed is a polygon vertex.
type PointSeed struct {
	X float64 `koanf:"x"`
	Y float64 `koanf:"y"`
}

// Summary counts what a seed run did.
type Summary struct {
	ScenesCreated int
	ScenesSkipped int
	BugsCreated   int
}

func main() {
	help := flag.Bool("help", false, "display help message")
	configPath := flag.String("config", "", "path to an optional YAML config file")
	seedPath := flag.String("file", "", "path to the YAML seed file (required)")
	flag.Parse()

	if *help || *seedPath == "" {
		fmt.Println("Bug Hunt Seeder")
		fmt.Println()
		fmt.Println("Usage: seed -file scenes.yaml [options]")
		fmt.Println()
		fmt.Println("Options:")
		flag.PrintDefaults()
		if *help {
			os.Exit(0)
		}
		os.Exit(2)
	}

	cfg, errs := config.Load(*configPath)
	if cfg == nil || len(errs) > 0 {
		for _, err := range errs {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
	logger := middleware.NewLogger(cfg.Env)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	doc, err := LoadDocument(*seedPath)
	if err != nil {
		logger.Error("failed to read seed file", "error", err)
		os.Exit(1)
	}

	gw, closeFn, err := openGateway(ctx, cfg)
	if err != nil {
		logger.Error("failed to open storage", "error", err)
		os.Exit(1)
	}
	defer closeFn()

	store := scene.NewStore(gw, logger)
	if err := store.Load(ctx); err != nil {
		logger.Error("failed to load existing scenes", "error", err)
		os.Exit(1)
	}

	summary, err := Seed(ctx, store, doc)
	if err != nil {
		logger.Error("seed failed", "error", err,
			"scenes_created", summary.ScenesCreated, "bugs_created", summary.BugsCreated)
		os.Exit(1)
	}
	logger.Info("seed complete",
		"scenes_created", summary.ScenesCreated,
		"scenes_skipped", summary.ScenesSkipped,
		"bugs_created", summary.BugsCreated)
}

// LoadDocument parses a YAML seed file.
func LoadDocument(path string) (Document, error) {
	k := koanf.New(".")
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return Document{}, fmt.Errorf("load %s: %w", path, err)
	}
	var doc Document
	if err := k.Unmarshal("", &doc); err != nil {
		return Document{}, fmt.Errorf("decode %s: %w", path, err)
	}
	return doc, nil
}

// Seed creates every scene in doc whose name is not already present,
// together with its bugs. Existing scenes are left untouched so the seed
// can be re-run.
func Seed(ctx context.Context, store *scene.Store, doc Document) (Summary, error) {
	var summary Summary
	existing := make(map[string]bool)
	for _, sc := range store.Scenes() {
		existing[sc.Name] = true
	}

	for i, s := range doc.Scenes {
		if existing[s.Name] {
			summary.ScenesSkipped++
			continue
		}
		created, err := store.CreateScene(ctx, s.Name, s.Image)
		if err != nil {
			return summary, fmt.Errorf("scene %d (%q): %w", i, s.Name, err)
		}
		existing[s.Name] = true
		summary.ScenesCreated++

		for j, b := range s.Bugs {
			if _, err := store.CreateBug(ctx, created.ID, b.fields(), b.polygon()); err != nil {
				return summary, fmt.Errorf("scene %q bug %d (%q): %w", s.Name, j, b.Name, err)
			}
			summary.BugsCreated++
		}
	}
	return summary, nil
}

func (b BugSeed) fields() scene.BugFields {
	f := scene.BugFields{Name: b.Name, FunFact: b.FunFact, Prompt: b.Prompt}
	if b.Image != "" {
		img := b.Image
		f.Image = &img
	}
	return f
}

func (b BugSeed) polygon() geo.Polygon {
	poly := make(geo.Polygon, len(b.Coordinates))
	for i, p := range b.Coordinates {
		poly[i] = geo.Coordinate{X: p.X, Y: p.Y}
	}
	return poly
}

func openGateway(ctx context.Context, cfg *config.Config) (scene.Gateway, func(), error) {
	switch cfg.StorageDriver {
	case config.StorageSQLite:
		store, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return store, func() { _ = store.Close() }, nil
	case config.StoragePostgres:
		store, err := postgres.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		return store, func() { _ = store.Close() }, nil
	default:
		return nil, nil, ErrNoDatabase
	}
}
