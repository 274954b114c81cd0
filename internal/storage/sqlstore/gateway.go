// Package sqlstore implements scene.Gateway on database/sql. Queries are
// written once with ? placeholders and rebound for the target dialect.
//
// Both supported schemas order rows by an auto-incrementing seq column, so
// scenes list in creation order and bugs newest first regardless of clock
// resolution.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/onnwee/bughunt/internal/geo"
	"github.com/onnwee/bughunt/internal/scene"
	"github.com/onnwee/bughunt/internal/storage/migrate"
	"github.com/onnwee/bughunt/internal/tracing"
)

// Gateway is a SQL-backed scene.Gateway.
type Gateway struct {
	db           *sql.DB
	dialect      migrate.Dialect
	system       tracing.DBSystem
	isForeignKey func(error) bool
	now          func() time.Time
}

var _ scene.Gateway = (*Gateway)(nil)

// New wraps an open database whose schema has already been migrated.
// isForeignKey recognizes the driver's foreign key violation so that a bug
// written against a vanished scene reports scene.ErrSceneNotFound.
func New(db *sql.DB, dialect migrate.Dialect, isForeignKey func(error) bool) *Gateway {
	system := tracing.DBSystemSQLite
	if dialect == migrate.Postgres {
		system = tracing.DBSystemPostgres
	}
	if isForeignKey == nil {
		isForeignKey = func(error) bool { return false }
	}
	return &Gateway{db: db, dialect: dialect, system: system, isForeignKey: isForeignKey, now: time.Now}
}

// DB returns the underlying handle, used for health checks.
func (g *Gateway) DB() *sql.DB {
	return g.db
}

// ListScenes returns all scenes in creation order.
func (g *Gateway) ListScenes(ctx context.Context) (scenes []scene.Scene, err error) {
	ctx, end := tracing.StartDBSpan(ctx, g.system, "scenes", tracing.DBOperationQuery)
	defer func() { end(err) }()

	rows, err := g.db.QueryContext(ctx, `SELECT id, name, image FROM scenes ORDER BY seq ASC`)
	if err != nil {
		return nil, fmt.Errorf("query scenes: %w", err)
	}
	defer rows.Close()

	scenes = []scene.Scene{}
	for rows.Next() {
		var s scene.Scene
		if err := rows.Scan(&s.ID, &s.Name, &s.Image); err != nil {
			return nil, fmt.Errorf("scan scene: %w", err)
		}
		scenes = append(scenes, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate scenes: %w", err)
	}
	return scenes, nil
}

// InsertScene stores a new scene.
func (g *Gateway) InsertScene(ctx context.Context, s scene.Scene) (err error) {
	ctx, end := tracing.StartDBSpan(ctx, g.system, "scenes", tracing.DBOperationInsert)
	defer func() { end(err) }()

	_, err = g.db.ExecContext(ctx,
		g.rebind(`INSERT INTO scenes (id, name, image, created_at) VALUES (?, ?, ?, ?)`),
		s.ID, s.Name, s.Image, g.now().UTC().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("insert scene: %w", err)
	}
	return nil
}

// PatchScene updates the fields present in patch.
func (g *Gateway) PatchScene(ctx context.Context, id string, patch scene.ScenePatch) (err error) {
	ctx, end := tracing.StartDBSpan(ctx, g.system, "scenes", tracing.DBOperationUpdate)
	defer func() { end(err) }()

	var sets []string
	var args []any
	if patch.Name != nil {
		sets = append(sets, "name = ?")
		args = append(args, *patch.Name)
	}
	if patch.Image != nil {
		sets = append(sets, "image = ?")
		args = append(args, *patch.Image)
	}
	if len(sets) == 0 {
		return g.requireRow(ctx, "scenes", id, scene.ErrSceneNotFound)
	}
	args = append(args, id)

	res, err := g.db.ExecContext(ctx,
		g.rebind(`UPDATE scenes SET `+strings.Join(sets, ", ")+` WHERE id = ?`), args...)
	if err != nil {
		return fmt.Errorf("update scene: %w", err)
	}
	return affectedOrNotFound(res, scene.ErrSceneNotFound)
}

// RemoveScene deletes a scene and its bugs in one transaction.
func (g *Gateway) RemoveScene(ctx context.Context, id string) (err error) {
	ctx, end := tracing.StartDBSpan(ctx, g.system, "scenes", tracing.DBOperationDelete)
	defer func() { end(err) }()

	tx, err := g.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete scene: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, g.rebind(`DELETE FROM bugs WHERE scene_id = ?`), id); err != nil {
		return fmt.Errorf("delete scene bugs: %w", err)
	}
	res, err := tx.ExecContext(ctx, g.rebind(`DELETE FROM scenes WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("delete scene: %w", err)
	}
	if err = affectedOrNotFound(res, scene.ErrSceneNotFound); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit delete scene: %w", err)
	}
	return nil
}

// ListBugs returns all bugs, most recently created first.
func (g *Gateway) ListBugs(ctx context.Context) (bugs []scene.Bug, err error) {
	ctx, end := tracing.StartDBSpan(ctx, g.system, "bugs", tracing.DBOperationQuery)
	defer func() { end(err) }()

	rows, err := g.db.QueryContext(ctx,
		`SELECT id, scene_id, name, fun_fact, prompt, coordinates, image FROM bugs ORDER BY seq DESC`)
	if err != nil {
		return nil, fmt.Errorf("query bugs: %w", err)
	}
	defer rows.Close()

	bugs = []scene.Bug{}
	for rows.Next() {
		var (
			b      scene.Bug
			coords string
			image  sql.NullString
		)
		if err := rows.Scan(&b.ID, &b.SceneID, &b.Name, &b.FunFact, &b.Prompt, &coords, &image); err != nil {
			return nil, fmt.Errorf("scan bug: %w", err)
		}
		if b.Coordinates, err = geo.DecodePolygon(coords); err != nil {
			return nil, fmt.Errorf("bug %s: %w", b.ID, err)
		}
		if image.Valid {
			img := image.String
			b.Image = &img
		}
		bugs = append(bugs, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate bugs: %w", err)
	}
	return bugs, nil
}

// InsertBug stores a new bug.
func (g *Gateway) InsertBug(ctx context.Context, b scene.Bug) (err error) {
	ctx, end := tracing.StartDBSpan(ctx, g.system, "bugs", tracing.DBOperationInsert)
	defer func() { end(err) }()

	coords, err := geo.EncodePolygon(b.Coordinates)
	if err != nil {
		return err
	}
	_, err = g.db.ExecContext(ctx,
		g.rebind(`INSERT INTO bugs (id, scene_id, name, fun_fact, prompt, coordinates, image, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`),
		b.ID, b.SceneID, b.Name, b.FunFact, b.Prompt, coords, nullString(b.Image), g.now().UTC().UnixMilli(),
	)
	if err != nil {
		if g.isForeignKey(err) {
			return scene.ErrSceneNotFound
		}
		return fmt.Errorf("insert bug: %w", err)
	}
	return nil
}

// PatchBug updates the fields present in patch. An empty image clears it.
func (g *Gateway) PatchBug(ctx context.Context, id string, patch scene.BugPatch) (err error) {
	ctx, end := tracing.StartDBSpan(ctx, g.system, "bugs", tracing.DBOperationUpdate)
	defer func() { end(err) }()

	var sets []string
	var args []any
	add := func(column string, value any) {
		sets = append(sets, column+" = ?")
		args = append(args, value)
	}
	if patch.SceneID != nil {
		add("scene_id", *patch.SceneID)
	}
	if patch.Name != nil {
		add("name", *patch.Name)
	}
	if patch.FunFact != nil {
		add("fun_fact", *patch.FunFact)
	}
	if patch.Prompt != nil {
		add("prompt", *patch.Prompt)
	}
	if patch.Coordinates != nil {
		coords, err := geo.EncodePolygon(patch.Coordinates)
		if err != nil {
			return err
		}
		add("coordinates", coords)
	}
	if patch.Image != nil {
		if *patch.Image == "" {
			add("image", nil)
		} else {
			add("image", *patch.Image)
		}
	}
	if len(sets) == 0 {
		return g.requireRow(ctx, "bugs", id, scene.ErrBugNotFound)
	}
	args = append(args, id)

	res, err := g.db.ExecContext(ctx,
		g.rebind(`UPDATE bugs SET `+strings.Join(sets, ", ")+` WHERE id = ?`), args...)
	if err != nil {
		if g.isForeignKey(err) {
			return scene.ErrSceneNotFound
		}
		return fmt.Errorf("update bug: %w", err)
	}
	return affectedOrNotFound(res, scene.ErrBugNotFound)
}

// RemoveBug deletes a single bug.
func (g *Gateway) RemoveBug(ctx context.Context, id string) (err error) {
	ctx, end := tracing.StartDBSpan(ctx, g.system, "bugs", tracing.DBOperationDelete)
	defer func() { end(err) }()

	res, err := g.db.ExecContext(ctx, g.rebind(`DELETE FROM bugs WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("delete bug: %w", err)
	}
	return affectedOrNotFound(res, scene.ErrBugNotFound)
}

func (g *Gateway) requireRow(ctx context.Context, table, id string, notFound error) error {
	var one int
	err := g.db.QueryRowContext(ctx, g.rebind(`SELECT 1 FROM `+table+` WHERE id = ?`), id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return notFound
	}
	return err
}

// rebind rewrites ? placeholders for the gateway's dialect.
func (g *Gateway) rebind(query string) string {
	if g.dialect != migrate.Postgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString(g.dialect.Placeholder(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func affectedOrNotFound(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return notFound
	}
	return nil
}

func nullString(s *string) sql.NullString {
	if s == nil || *s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}
