package registry_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apiforge/forge"
	"github.com/apiforge/forge/internal/testmodels"
	"github.com/apiforge/forge/model"
	"github.com/apiforge/forge/model/field"
	"github.com/apiforge/forge/model/rel"
	"github.com/apiforge/forge/registry"
	"github.com/apiforge/forge/storage/memstore"
)

func newStore(t *testing.T) *memstore.Store {
	t.Helper()
	descs, err := testmodels.Descriptors()
	require.NoError(t, err)
	return memstore.New(descs)
}

func intp(v int) *int    { return &v }
func boolp(v bool) *bool { return &v }

func TestBuild(t *testing.T) {
	cfg := &registry.Config{
		Schemas: map[string]registry.SchemaUnit{
			"content": {Models: []string{"Post", "Author"}},
		},
	}
	r, err := registry.New(testmodels.All(), newStore(t), registry.WithConfig(cfg))
	require.NoError(t, err)

	schema, err := r.Build(context.Background(), "content")
	require.NoError(t, err)
	assert.Equal(t, []string{"Post", "Author"}, schema.Models)
	assert.Empty(t, schema.Excluded)
	assert.False(t, schema.BuiltAt.IsZero())

	op, ok := schema.Operation("createPost")
	require.True(t, ok)
	assert.Equal(t, forge.OpCreate, op.Kind)
	_, ok = schema.Operation("comment")
	assert.False(t, ok, "models outside the unit are not exposed")

	// The snapshot is installed and retrievable.
	current, ok := r.Schema("content")
	require.True(t, ok)
	assert.Same(t, schema, current)
}

func TestBuildDefaultsToAllModels(t *testing.T) {
	r, err := registry.New(testmodels.All(), newStore(t))
	require.NoError(t, err)
	schema, err := r.Build(context.Background(), "everything")
	require.NoError(t, err)
	assert.Len(t, schema.Models, 4)
}

type orphan struct{ model.Base }

func (orphan) Name() string { return "Orphan" }

func (orphan) Fields() []model.Field {
	return []model.Field{field.Integer("id").PrimaryKey().AutoCreate()}
}

func (orphan) Relationships() []model.Relationship {
	return []model.Relationship{rel.ManyToOne("ghost", "Ghost")}
}

func TestBuildCollectsExclusions(t *testing.T) {
	models := append(testmodels.All(), orphan{})
	r, err := registry.New(models, newStore(t))
	require.NoError(t, err)

	schema, err := r.Build(context.Background(), "everything")
	require.Error(t, err)
	assert.True(t, forge.IsBuildError(err))
	require.NotNil(t, schema, "the schema stays usable without the offender")
	assert.Len(t, schema.Models, 4)
	require.Contains(t, schema.Excluded, "Orphan")
	assert.True(t, forge.IsIntrospectionError(schema.Excluded["Orphan"]))
}

func TestResolveSettings(t *testing.T) {
	cfg := &registry.Config{
		Defaults: registry.Tier{MaxNestedDepth: intp(4), BatchSize: intp(50)},
		Models: map[string]registry.ModelSettings{
			"Post": {
				Tier: registry.Tier{MaxNestedDepth: intp(2)},
				Fields: map[string]registry.Tier{
					"title": {Filterable: boolp(false)},
				},
			},
		},
	}
	r, err := registry.New(testmodels.All(), newStore(t), registry.WithConfig(cfg))
	require.NoError(t, err)

	global := r.ResolveSettings("Author", "")
	assert.Equal(t, 4, global.MaxNestedDepth, "global tier beats the library default")
	assert.Equal(t, 50, global.BatchSize)
	assert.Equal(t, 1000, global.MaxObjects, "library default fills unset tiers")

	post := r.ResolveSettings("Post", "")
	assert.Equal(t, 2, post.MaxNestedDepth, "model tier beats global")
	assert.True(t, post.Filterable)

	title := r.ResolveSettings("Post", "title")
	assert.False(t, title.Filterable, "field tier beats model")
	assert.Equal(t, 2, title.MaxNestedDepth, "unset field settings inherit")
}

func TestResolveClampsDepth(t *testing.T) {
	over := registry.Resolve(registry.Tier{MaxNestedDepth: intp(99)}, nil, "")
	assert.Equal(t, 5, over.MaxNestedDepth)
	under := registry.Resolve(registry.Tier{MaxNestedDepth: intp(0)}, nil, "")
	assert.Equal(t, 1, under.MaxNestedDepth)
}

func TestSettingsShapeFilterTrees(t *testing.T) {
	cfg := &registry.Config{
		Models: map[string]registry.ModelSettings{
			"Post": {
				Tier: registry.Tier{MaxNestedDepth: intp(1)},
				Fields: map[string]registry.Tier{
					"rating": {Filterable: boolp(false)},
				},
			},
		},
	}
	r, err := registry.New(testmodels.All(), newStore(t), registry.WithConfig(cfg))
	require.NoError(t, err)

	// Post quick-search lists author.name, unreachable at depth 1; the
	// model is excluded with its configuration error.
	schema, err := r.Build(context.Background(), "everything")
	require.Error(t, err)
	require.Contains(t, schema.Excluded, "Post")
	assert.True(t, forge.IsFilterConfigurationError(schema.Excluded["Post"]))

	// Field exclusion alone keeps the model but drops the leaf.
	cfg.Models["Post"] = registry.ModelSettings{
		Fields: map[string]registry.Tier{"rating": {Filterable: boolp(false)}},
	}
	r2, err := registry.New(testmodels.All(), newStore(t), registry.WithConfig(cfg))
	require.NoError(t, err)
	schema, err = r2.Build(context.Background(), "everything")
	require.NoError(t, err)
	op, ok := schema.Operation("posts")
	require.True(t, ok)
	for _, leaf := range op.Filter.Leaves() {
		assert.NotEqual(t, "rating", leaf.Path)
	}
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "forge.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
defaults:
  max_nested_depth: 2
schemas:
  content:
    models: [Post]
models:
  Post:
    batch_size: 10
    fields:
      title:
        filterable: false
`), 0o600))

	cfg, err := registry.LoadConfig(path)
	require.NoError(t, err)
	require.NotNil(t, cfg.Defaults.MaxNestedDepth)
	assert.Equal(t, 2, *cfg.Defaults.MaxNestedDepth)
	assert.Equal(t, []string{"Post"}, cfg.Schemas["content"].Models)
	require.Contains(t, cfg.Models, "Post")
	require.NotNil(t, cfg.Models["Post"].BatchSize)
	assert.Equal(t, 10, *cfg.Models["Post"].BatchSize)
	assert.NotNil(t, cfg.Models["Post"].Fields["title"].Filterable)

	_, err = registry.LoadConfig(filepath.Join(dir, "missing.yaml"))
	require.Error(t, err)

	cfg, err = registry.LoadConfig("")
	require.NoError(t, err, "no file keeps library defaults")
	assert.Nil(t, cfg.Defaults.MaxNestedDepth)
}

func TestWatchRebuilds(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "forge.yaml")
	require.NoError(t, os.WriteFile(path, []byte("defaults:\n  max_objects: 500\n"), 0o600))

	r, err := registry.New(testmodels.All(), newStore(t), registry.WithConfigFile(path))
	require.NoError(t, err)
	_, err = r.Build(context.Background(), "everything")
	require.NoError(t, err)
	assert.Equal(t, 500, r.ResolveSettings("Post", "").MaxObjects)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = r.Watch(ctx)
	}()

	time.Sleep(500 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte("defaults:\n  max_objects: 700\n"), 0o600))
	assert.Eventually(t, func() bool {
		return r.ResolveSettings("Post", "").MaxObjects == 700
	}, 5*time.Second, 50*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop on cancellation")
	}
}
