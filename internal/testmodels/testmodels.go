// Package testmodels declares the fixture schema shared by the test
// suites: a small blog graph with a self-referential relationship on Post
// and every storage kind represented somewhere.
package testmodels

import (
	"context"
	"fmt"

	"github.com/apiforge/forge"
	"github.com/apiforge/forge/introspect"
	"github.com/apiforge/forge/model"
	"github.com/apiforge/forge/model/field"
	"github.com/apiforge/forge/model/method"
	"github.com/apiforge/forge/model/rel"
)

type Author struct{ model.Base }

func (Author) Name() string { return "Author" }

func (Author) Fields() []model.Field {
	return []model.Field{
		field.Integer("id").PrimaryKey().AutoCreate(),
		field.Text("name").MaxLength(120),
		field.Text("email").MaxLength(254),
		field.Text("bio").Nullable().Blank(),
		field.Boolean("active").Default(true),
	}
}

func (Author) Relationships() []model.Relationship {
	return []model.Relationship{
		rel.OneToMany("posts", "Post"),
	}
}

type Post struct{ model.Base }

func (Post) Name() string { return "Post" }

func (Post) Fields() []model.Field {
	return []model.Field{
		field.Integer("id").PrimaryKey().AutoCreate(),
		field.Text("title").MaxLength(200),
		field.Text("body").Blank(),
		field.Enum("status", "draft", "published", "archived").Default("draft"),
		field.Float("rating").Nullable(),
		field.Decimal("price").Nullable(),
		field.DateTime("published_at").Nullable(),
		field.DateTime("created_at").AutoCreate(),
		field.DateTime("updated_at").AutoUpdate(),
		field.Binary("cover").Nullable(),
	}
}

func (Post) Relationships() []model.Relationship {
	return []model.Relationship{
		rel.ManyToOne("author", "Author"),
		rel.ManyToMany("tags", "Tag"),
		rel.ManyToMany("related_posts", "Post"),
		rel.OneToMany("comments", "Comment"),
	}
}

func (Post) Methods() []model.Method {
	return []model.Method{
		method.New("publish").
			ReturnsSelf().
			Expose().
			Bind(func(ctx context.Context, instance forge.Record, args map[string]any) (any, error) {
				if instance["status"] == "published" {
					return nil, forge.NewValidationError("status", fmt.Errorf("already published"))
				}
				out := make(forge.Record, len(instance))
				for k, v := range instance {
					out[k] = v
				}
				out["status"] = "published"
				return out, nil
			}),
		method.New("preview").
			DefaultParam("length", field.KindInteger, 80).
			ReturnsScalar(field.KindText).
			Expose().
			Bind(func(ctx context.Context, instance forge.Record, args map[string]any) (any, error) {
				body, _ := instance["body"].(string)
				n, _ := args["length"].(int)
				if n > 0 && n < len(body) {
					body = body[:n]
				}
				return body, nil
			}),
	}
}

func (Post) QuickSearch() []string {
	return []string{"title", "body", "author.name"}
}

type Comment struct{ model.Base }

func (Comment) Name() string { return "Comment" }

func (Comment) Fields() []model.Field {
	return []model.Field{
		field.Integer("id").PrimaryKey().AutoCreate(),
		field.Text("text"),
		field.Date("posted_on"),
	}
}

func (Comment) Relationships() []model.Relationship {
	return []model.Relationship{
		rel.ManyToOne("post", "Post"),
		rel.ManyToOne("author", "Author"),
	}
}

type Tag struct{ model.Base }

func (Tag) Name() string { return "Tag" }

func (Tag) Fields() []model.Field {
	return []model.Field{
		field.Text("slug").PrimaryKey(),
		field.Text("label"),
	}
}

// All returns the full fixture model set.
func All() []model.Model {
	return []model.Model{Author{}, Post{}, Comment{}, Tag{}}
}

// Descriptors extracts the fixture set, failing on any extraction error.
func Descriptors() (map[string]*introspect.ModelDescriptor, error) {
	descs, failed := introspect.New(All()).ExtractAll()
	for name, err := range failed {
		return nil, fmt.Errorf("extract %s: %w", name, err)
	}
	return descs, nil
}
