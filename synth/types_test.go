package synth_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apiforge/forge"
	"github.com/apiforge/forge/model"
	"github.com/apiforge/forge/model/field"
	"github.com/apiforge/forge/synth"
)

func TestTypeOutput(t *testing.T) {
	s := fixtureSynthesizer(t)
	td, err := s.Type("Post", synth.ModeOutput)
	require.NoError(t, err)
	assert.Equal(t, "Post", td.Name)

	id, ok := td.Field("id")
	require.True(t, ok)
	assert.True(t, id.Required, "non-nullable output fields are non-null")
	assert.True(t, id.PrimaryKey)

	rating, ok := td.Field("rating")
	require.True(t, ok)
	assert.False(t, rating.Required, "nullable output fields stay nullable")

	created, ok := td.Field("created_at")
	require.True(t, ok)
	assert.True(t, created.Required, "auto-generated fields appear on output")

	// Relationships project as nested objects, list-valued per cardinality.
	author, ok := td.Field("author")
	require.True(t, ok)
	assert.Equal(t, "Author", author.Ref)
	assert.False(t, author.List)

	tags, ok := td.Field("tags")
	require.True(t, ok)
	assert.Equal(t, "Tag", tags.Ref)
	assert.True(t, tags.List)
}

func TestTypeCreateInput(t *testing.T) {
	s := fixtureSynthesizer(t)
	td, err := s.Type("Post", synth.ModeCreate)
	require.NoError(t, err)
	assert.Equal(t, "PostCreateInput", td.Name)

	for _, name := range []string{"id", "created_at", "updated_at"} {
		_, ok := td.Field(name)
		assert.False(t, ok, "auto-generated field %s must be absent from create input", name)
	}

	title, ok := td.Field("title")
	require.True(t, ok)
	assert.True(t, title.Required)
	assert.Equal(t, 200, title.MaxLength)

	body, ok := td.Field("body")
	require.True(t, ok)
	assert.False(t, body.Required, "blank-allowed text is optional")

	status, ok := td.Field("status")
	require.True(t, ok)
	assert.False(t, status.Required, "defaulted fields are optional")
	assert.Equal(t, []string{"draft", "published", "archived"}, status.Choices)

	rating, ok := td.Field("rating")
	require.True(t, ok)
	assert.False(t, rating.Required, "nullable fields are optional")

	// To-one relationships become <rel>_id carrying the target PK kind;
	// to-many become <rel>_ids lists.
	authorID, ok := td.Field("author_id")
	require.True(t, ok)
	assert.Equal(t, field.KindInteger, authorID.Kind)
	assert.False(t, authorID.List)

	tagIDs, ok := td.Field("tags_ids")
	require.True(t, ok)
	assert.Equal(t, field.KindText, tagIDs.Kind, "Tag keys on a text slug")
	assert.True(t, tagIDs.List)

	// Reverse sides are lookup-only.
	_, ok = td.Field("comments_ids")
	assert.False(t, ok)
	_, ok = td.Field("comments")
	assert.False(t, ok)

	assert.Equal(t, []string{"title"}, td.RequiredFields())
}

func TestTypeUpdateInput(t *testing.T) {
	s := fixtureSynthesizer(t)
	td, err := s.Type("Post", synth.ModeUpdate)
	require.NoError(t, err)
	assert.Equal(t, "PostUpdateInput", td.Name)

	id, ok := td.Field("id")
	require.True(t, ok)
	assert.True(t, id.Required, "update input requires only the primary key")

	title, ok := td.Field("title")
	require.True(t, ok)
	assert.False(t, title.Required)

	assert.Equal(t, []string{"id"}, td.RequiredFields())
}

// A model whose every field is auto-generated or defaulted produces a
// create input with nothing required.
func TestTypeCreateInputNothingRequired(t *testing.T) {
	s := fixtureSynthesizer(t, auditStamp{})
	td, err := s.Type("AuditStamp", synth.ModeCreate)
	require.NoError(t, err)
	assert.Empty(t, td.RequiredFields())
	_, ok := td.Field("id")
	assert.False(t, ok)
}

type auditStamp struct{ model.Base }

func (auditStamp) Name() string { return "AuditStamp" }

func (auditStamp) Fields() []model.Field {
	return []model.Field{
		field.Integer("id").PrimaryKey().AutoCreate(),
		field.DateTime("recorded_at").AutoCreate(),
		field.Text("source").Default("system"),
	}
}

func TestTypeUnknownModel(t *testing.T) {
	s := fixtureSynthesizer(t)
	_, err := s.Type("Ghost", synth.ModeOutput)
	require.ErrorIs(t, err, forge.ErrUnknownModel)
}
