package introspect_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apiforge/forge"
	"github.com/apiforge/forge/internal/testmodels"
	"github.com/apiforge/forge/introspect"
	"github.com/apiforge/forge/model"
	"github.com/apiforge/forge/model/field"
	"github.com/apiforge/forge/model/method"
	"github.com/apiforge/forge/model/rel"
)

func extract(t *testing.T, m model.Model, set ...model.Model) (*introspect.ModelDescriptor, error) {
	t.Helper()
	return introspect.New(append([]model.Model{m}, set...)).Extract(m)
}

func TestExtractFields(t *testing.T) {
	descs, err := testmodels.Descriptors()
	require.NoError(t, err)

	post := descs["Post"]
	require.NotNil(t, post)
	require.NotNil(t, post.PrimaryKey())
	assert.Equal(t, "id", post.PrimaryKey().Name)

	title, ok := post.Field("title")
	require.True(t, ok)
	assert.Equal(t, field.KindText, title.Kind)
	assert.Equal(t, 200, title.MaxLength)
	assert.Equal(t, "Title", title.Label)

	status, ok := post.Field("status")
	require.True(t, ok)
	assert.Equal(t, []string{"draft", "published", "archived"}, status.Choices)
	assert.True(t, status.HasDefault)

	created, ok := post.Field("created_at")
	require.True(t, ok)
	assert.True(t, created.AutoGenerated())

	// Declaration order is preserved.
	names := make([]string, 0, len(post.Fields))
	for _, f := range post.Fields {
		names = append(names, f.Name)
	}
	assert.Equal(t, []string{"id", "title", "body", "status", "rating",
		"price", "published_at", "created_at", "updated_at", "cover"}, names)
}

func TestDisplayLabels(t *testing.T) {
	descs, err := testmodels.Descriptors()
	require.NoError(t, err)

	published, ok := descs["Post"].Field("published_at")
	require.True(t, ok)
	assert.Equal(t, "Published At", published.Label)
}

func TestExtractRelationships(t *testing.T) {
	descs, err := testmodels.Descriptors()
	require.NoError(t, err)

	author, ok := descs["Post"].Relationship("author")
	require.True(t, ok)
	assert.Equal(t, "Author", author.Target)
	assert.False(t, author.Reverse)
	assert.False(t, author.Rel.ToMany())

	posts, ok := descs["Author"].Relationship("posts")
	require.True(t, ok)
	assert.True(t, posts.Reverse)
	assert.True(t, posts.Rel.ToMany())

	// Self-referential targets resolve like any other.
	related, ok := descs["Post"].Relationship("related_posts")
	require.True(t, ok)
	assert.Equal(t, "Post", related.Target)
}

func TestExtractMethods(t *testing.T) {
	descs, err := testmodels.Descriptors()
	require.NoError(t, err)

	eligible := descs["Post"].EligibleMethods()
	require.Len(t, eligible, 2)
	assert.Equal(t, "publish", eligible[0].Name)
	assert.Equal(t, "preview", eligible[1].Name)
	require.Len(t, eligible[1].Params, 1)
	assert.Equal(t, "length", eligible[1].Params[0].Name)
	require.NotNil(t, eligible[0].Func())
}

func TestQuickSearchCapability(t *testing.T) {
	descs, err := testmodels.Descriptors()
	require.NoError(t, err)
	assert.Equal(t, []string{"title", "body", "author.name"}, descs["Post"].QuickSearch)
	assert.Empty(t, descs["Author"].QuickSearch)
}

type noPK struct{ model.Base }

func (noPK) Name() string          { return "NoPK" }
func (noPK) Fields() []model.Field { return []model.Field{field.Text("name")} }

func TestMissingPrimaryKeyFails(t *testing.T) {
	_, err := extract(t, noPK{})
	assert.True(t, forge.IsIntrospectionError(err))
}

type doublePK struct{ model.Base }

func (doublePK) Name() string { return "DoublePK" }
func (doublePK) Fields() []model.Field {
	return []model.Field{
		field.Integer("id").PrimaryKey(),
		field.Text("slug").PrimaryKey(),
	}
}

func TestDuplicatePrimaryKeyFails(t *testing.T) {
	_, err := extract(t, doublePK{})
	require.True(t, forge.IsIntrospectionError(err))
	assert.Contains(t, err.Error(), "primary key")
}

type badField struct{ model.Base }

func (badField) Name() string { return "BadField" }
func (badField) Fields() []model.Field {
	return []model.Field{
		field.Integer("id").PrimaryKey(),
		field.Text("title").MaxLength(-5),
	}
}

func TestBuilderErrorSurfacesAsIntrospectionError(t *testing.T) {
	_, err := extract(t, badField{})
	require.True(t, forge.IsIntrospectionError(err))
	assert.Contains(t, err.Error(), "title")
}

type dangling struct{ model.Base }

func (dangling) Name() string { return "Dangling" }
func (dangling) Fields() []model.Field {
	return []model.Field{field.Integer("id").PrimaryKey()}
}
func (dangling) Relationships() []model.Relationship {
	return []model.Relationship{rel.ManyToOne("ghost", "Ghost")}
}

func TestUnresolvedTargetFailsModelOnly(t *testing.T) {
	x := introspect.New(append(testmodels.All(), dangling{}))
	descs, failed := x.ExtractAll()
	require.Len(t, failed, 1)
	assert.True(t, forge.IsIntrospectionError(failed["Dangling"]))
	assert.Len(t, descs, 4, "siblings still extract")
}

type cascadeReverse struct{ model.Base }

func (cascadeReverse) Name() string { return "CascadeReverse" }
func (cascadeReverse) Fields() []model.Field {
	return []model.Field{field.Integer("id").PrimaryKey()}
}
func (cascadeReverse) Relationships() []model.Relationship {
	return []model.Relationship{
		rel.OneToMany("posts", "Post").OnDelete(rel.Cascade),
	}
}

func TestReverseCascadeRejected(t *testing.T) {
	_, err := extract(t, cascadeReverse{}, testmodels.All()...)
	require.True(t, forge.IsIntrospectionError(err))
	assert.Contains(t, err.Error(), "cascade")
}

type fieldClash struct{ model.Base }

func (fieldClash) Name() string { return "FieldClash" }
func (fieldClash) Fields() []model.Field {
	return []model.Field{
		field.Integer("id").PrimaryKey(),
		field.Text("author"),
	}
}
func (fieldClash) Relationships() []model.Relationship {
	return []model.Relationship{rel.ManyToOne("author", "Author")}
}

func TestRelationshipFieldNameClash(t *testing.T) {
	_, err := extract(t, fieldClash{}, testmodels.All()...)
	require.True(t, forge.IsIntrospectionError(err))
	assert.Contains(t, err.Error(), "collides")
}

type privateMethod struct{ model.Base }

func (privateMethod) Name() string { return "PrivateMethod" }
func (privateMethod) Fields() []model.Field {
	return []model.Field{field.Integer("id").PrimaryKey()}
}
func (privateMethod) Methods() []model.Method {
	return []model.Method{
		method.New("_rebuild").Expose().ReturnsSelf().
			Bind(func(_ context.Context, _ forge.Record, _ map[string]any) (any, error) {
				return nil, nil
			}),
	}
}

func TestPrivateMethodsStayMetadata(t *testing.T) {
	d, err := extract(t, privateMethod{})
	require.NoError(t, err)
	require.Len(t, d.Methods, 1)
	assert.False(t, d.Methods[0].Eligible)
	assert.Empty(t, d.EligibleMethods())
}

func TestExtractByName(t *testing.T) {
	x := introspect.New(testmodels.All())
	d, err := x.ExtractByName("Tag")
	require.NoError(t, err)
	assert.Equal(t, "slug", d.PrimaryKey().Name)

	_, err = x.ExtractByName("Nope")
	assert.ErrorIs(t, err, forge.ErrUnknownModel)

	assert.Equal(t, []string{"Author", "Post", "Comment", "Tag"}, x.Models())
}
