package scene

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/onnwee/bughunt/internal/geo"
)

var square = geo.Polygon{{X: 10, Y: 10}, {X: 90, Y: 10}, {X: 90, Y: 90}, {X: 10, Y: 90}}

var errGatewayDown = errors.New("gateway down")

// flakyGateway wraps a gateway and fails the named operations on demand.
type flakyGateway struct {
	Gateway
	fail map[string]bool
}

func newFlakyGateway() *flakyGateway {
	return &flakyGateway{Gateway: NewInMemoryGateway(), fail: map[string]bool{}}
}

func (f *flakyGateway) check(op string) error {
	if f.fail[op] {
		return fmt.Errorf("%s: %w", op, errGatewayDown)
	}
	return nil
}

func (f *flakyGateway) ListScenes(ctx context.Context) ([]Scene, error) {
	if err := f.check("ListScenes"); err != nil {
		return nil, err
	}
	return f.Gateway.ListScenes(ctx)
}

func (f *flakyGateway) ListBugs(ctx context.Context) ([]Bug, error) {
	if err := f.check("ListBugs"); err != nil {
		return nil, err
	}
	return f.Gateway.ListBugs(ctx)
}

func (f *flakyGateway) InsertScene(ctx context.Context, s Scene) error {
	if err := f.check("InsertScene"); err != nil {
		return err
	}
	return f.Gateway.InsertScene(ctx, s)
}

func (f *flakyGateway) InsertBug(ctx context.Context, b Bug) error {
	if err := f.check("InsertBug"); err != nil {
		return err
	}
	return f.Gateway.InsertBug(ctx, b)
}

func (f *flakyGateway) RemoveScene(ctx context.Context, id string) error {
	if err := f.check("RemoveScene"); err != nil {
		return err
	}
	return f.Gateway.RemoveScene(ctx, id)
}

func (f *flakyGateway) PatchBug(ctx context.Context, id string, p BugPatch) error {
	if err := f.check("PatchBug"); err != nil {
		return err
	}
	return f.Gateway.PatchBug(ctx, id, p)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func bugFields(name string) BugFields {
	return BugFields{Name: name, FunFact: "fact about " + name, Prompt: "find " + name}
}

func mustCreateScene(t *testing.T, s *Store, name string) Scene {
	t.Helper()
	sc, err := s.CreateScene(context.Background(), name, "/images/"+name+".png")
	if err != nil {
		t.Fatalf("CreateScene(%q) error: %v", name, err)
	}
	return sc
}

func mustCreateBug(t *testing.T, s *Store, sceneID, name string) Bug {
	t.Helper()
	b, err := s.CreateBug(context.Background(), sceneID, bugFields(name), square)
	if err != nil {
		t.Fatalf("CreateBug(%q) error: %v", name, err)
	}
	return b
}
