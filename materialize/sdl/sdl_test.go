package sdl_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vektah/gqlparser/v2/ast"

	"github.com/apiforge/forge/assemble"
	"github.com/apiforge/forge/internal/testmodels"
	"github.com/apiforge/forge/materialize/sdl"
	"github.com/apiforge/forge/storage/memstore"
	"github.com/apiforge/forge/synth"
)

func fixtureOperations(t *testing.T) []*assemble.OperationDescriptor {
	t.Helper()
	descs, err := testmodels.Descriptors()
	require.NoError(t, err)
	as := assemble.New(synth.NewSynthesizer(descs), memstore.New(descs))
	var ops []*assemble.OperationDescriptor
	for _, m := range []string{"Author", "Post", "Comment", "Tag"} {
		modelOps, err := as.Operations(m)
		require.NoError(t, err)
		ops = append(ops, modelOps...)
	}
	return ops
}

func fieldNames(def *ast.Definition) []string {
	out := make([]string, 0, len(def.Fields))
	for _, f := range def.Fields {
		out = append(out, f.Name)
	}
	return out
}

func TestSchemaLoads(t *testing.T) {
	schema, err := sdl.New().Schema(fixtureOperations(t))
	require.NoError(t, err)
	require.NotNil(t, schema.Query)
	require.NotNil(t, schema.Mutation)
}

func TestRenderOutputTypes(t *testing.T) {
	schema, err := sdl.New().Schema(fixtureOperations(t))
	require.NoError(t, err)

	post := schema.Types["Post"]
	require.NotNil(t, post)
	names := fieldNames(post)
	assert.Contains(t, names, "title")
	assert.Contains(t, names, "author", "relationship projections are nested objects")
	assert.Contains(t, names, "comments")

	id := post.Fields.ForName("id")
	require.NotNil(t, id)
	assert.Equal(t, "ID", id.Type.Name())
	assert.True(t, id.Type.NonNull)

	rating := post.Fields.ForName("rating")
	require.NotNil(t, rating)
	assert.False(t, rating.Type.NonNull, "nullable fields render nullable")

	comments := post.Fields.ForName("comments")
	require.NotNil(t, comments)
	require.NotNil(t, comments.Type.Elem, "to-many projections are lists")
	assert.Equal(t, "Comment", comments.Type.Elem.Name())
}

func TestRenderEnum(t *testing.T) {
	schema, err := sdl.New().Schema(fixtureOperations(t))
	require.NoError(t, err)

	status := schema.Types["PostStatus"]
	require.NotNil(t, status)
	require.Equal(t, ast.Enum, status.Kind)
	var values []string
	for _, v := range status.EnumValues {
		values = append(values, v.Name)
	}
	assert.Equal(t, []string{"draft", "published", "archived"}, values)
}

func TestRenderInputs(t *testing.T) {
	schema, err := sdl.New().Schema(fixtureOperations(t))
	require.NoError(t, err)

	create := schema.Types["PostCreateInput"]
	require.NotNil(t, create)
	require.Equal(t, ast.InputObject, create.Kind)
	names := fieldNames(create)
	assert.NotContains(t, names, "id", "auto-generated fields are excluded from create inputs")
	assert.NotContains(t, names, "created_at")
	assert.Contains(t, names, "author_id")
	assert.Contains(t, names, "tags_ids")
	assert.NotContains(t, names, "comments", "reverse sides carry no input")

	title := create.Fields.ForName("title")
	require.NotNil(t, title)
	assert.True(t, title.Type.NonNull)
	status := create.Fields.ForName("status")
	require.NotNil(t, status)
	assert.False(t, status.Type.NonNull, "defaulted fields are optional")

	update := schema.Types["PostUpdateInput"]
	require.NotNil(t, update)
	id := update.Fields.ForName("id")
	require.NotNil(t, id)
	assert.True(t, id.Type.NonNull, "update inputs require the primary key")
	utitle := update.Fields.ForName("title")
	require.NotNil(t, utitle)
	assert.False(t, utitle.Type.NonNull)
}

func TestRenderFilterInputs(t *testing.T) {
	schema, err := sdl.New().Schema(fixtureOperations(t))
	require.NoError(t, err)

	filter := schema.Types["PostFilter"]
	require.NotNil(t, filter)
	names := fieldNames(filter)
	assert.Contains(t, names, "title")
	assert.Contains(t, names, "title__icontains")
	assert.Contains(t, names, "published_at__this_week")
	assert.Contains(t, names, "AND")
	assert.Contains(t, names, "OR")
	assert.Contains(t, names, "NOT")
	assert.Contains(t, names, "quick_search")
	assert.Contains(t, names, "author")
	assert.Contains(t, names, "related_posts", "self-reference unrolls one level")

	and := filter.Fields.ForName("AND")
	require.NotNil(t, and)
	require.NotNil(t, and.Type.Elem)
	assert.Equal(t, "PostFilter", and.Type.Elem.Name())
	not := filter.Fields.ForName("NOT")
	require.NotNil(t, not)
	assert.Nil(t, not.Type.Elem)

	isnull := filter.Fields.ForName("rating__isnull")
	require.NotNil(t, isnull)
	assert.Equal(t, "Boolean", isnull.Type.Name())
	rng := filter.Fields.ForName("rating__range")
	require.NotNil(t, rng)
	require.NotNil(t, rng.Type.Elem)

	author := schema.Types["PostAuthorFilter"]
	require.NotNil(t, author)
	authorNames := fieldNames(author)
	assert.Contains(t, authorNames, "name", "child leaves use local names")
	assert.NotContains(t, authorNames, "posts", "cycle guard prunes the way back")
	assert.NotContains(t, authorNames, "quick_search", "quick search is root-only")
}

func TestRenderRoots(t *testing.T) {
	schema, err := sdl.New().Schema(fixtureOperations(t))
	require.NoError(t, err)

	for _, name := range []string{"post", "posts", "postsPaginated", "author", "tag"} {
		assert.NotNil(t, schema.Query.Fields.ForName(name), name)
	}
	for _, name := range []string{"createPost", "updatePost", "deletePost",
		"bulkCreatePosts", "bulkUpdatePosts", "bulkDeletePosts", "postPublish", "postPreview"} {
		assert.NotNil(t, schema.Mutation.Fields.ForName(name), name)
	}

	paginated := schema.Query.Fields.ForName("postsPaginated")
	require.NotNil(t, paginated)
	assert.NotNil(t, paginated.Arguments.ForName("after"))
	assert.Equal(t, "PostPage", paginated.Type.Name())
	assert.Nil(t, paginated.Arguments.ForName("offset"), "cursor shape hides offsets")

	list := schema.Query.Fields.ForName("posts")
	require.NotNil(t, list)
	assert.NotNil(t, list.Arguments.ForName("offset"))
	assert.Equal(t, "PostFilter", list.Arguments.ForName("filter").Type.Name())

	preview := schema.Mutation.Fields.ForName("postPreview")
	require.NotNil(t, preview)
	length := preview.Arguments.ForName("length")
	require.NotNil(t, length)
	require.NotNil(t, length.DefaultValue)
	assert.Equal(t, "80", length.DefaultValue.Raw)
	assert.False(t, length.Type.NonNull, "defaulted params are optional")
}

func TestRenderPayloads(t *testing.T) {
	schema, err := sdl.New().Schema(fixtureOperations(t))
	require.NoError(t, err)

	payload := schema.Types["PostPayload"]
	require.NotNil(t, payload)
	names := fieldNames(payload)
	assert.ElementsMatch(t, []string{"ok", "object", "objects", "errors"}, names)

	errType := schema.Types["MutationError"]
	require.NotNil(t, errType)
	field := errType.Fields.ForName("field")
	require.NotNil(t, field)
	assert.False(t, field.Type.NonNull, "global errors carry no field")

	method := schema.Types["PostMethodPayload"]
	require.NotNil(t, method)
	assert.Contains(t, fieldNames(method), "result")
}

func TestRenderEmpty(t *testing.T) {
	_, err := sdl.New().Render(nil)
	require.Error(t, err)
}
