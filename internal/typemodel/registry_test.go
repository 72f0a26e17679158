package typemodel

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/patchcache/pkg/types"
)

const fixtureModels = "../testutil/models"

func loadFixtures(t *testing.T) *Registry {
	t.Helper()
	r := NewRegistry()
	require.NoError(t, r.LoadDir(fixtureModels))
	return r
}

func TestLoadDirResolvesModels(t *testing.T) {
	r := loadFixtures(t)

	mail, err := r.ResolveServerTypeReference(context.Background(), types.TypeRef{App: "tutanota", TypeID: 97})
	require.NoError(t, err)
	assert.Equal(t, "Mail", mail.Name)
	assert.Equal(t, types.KindListElement, mail.Type)
	assert.True(t, mail.Encrypted)
	assert.Equal(t, "91", mail.Version)

	subject, ok := mail.Attribute(105)
	require.True(t, ok)
	assert.True(t, subject.IsValue())
	assert.True(t, subject.Value.Encrypted)

	bucketKey, ok := mail.Attribute(116)
	require.True(t, ok)
	assert.True(t, bucketKey.IsAggregation())
	assert.Equal(t, types.TypeRef{App: "sys", TypeID: 1}, mail.AggregateRef(*bucketKey.Association))

	conv, ok := mail.Attribute(115)
	require.True(t, ok)
	assert.True(t, conv.IsReference())
}

func TestResolveUnknownType(t *testing.T) {
	r := loadFixtures(t)

	_, err := r.ResolveServerTypeReference(context.Background(), types.TypeRef{App: "tutanota", TypeID: 9999})
	assert.ErrorIs(t, err, types.ErrTypeNotFound)

	_, err = r.ResolveServerTypeReference(context.Background(), types.TypeRef{App: "calendar", TypeID: 97})
	assert.ErrorIs(t, err, types.ErrTypeNotFound)
}

func TestResolveHonoursContext(t *testing.T) {
	r := loadFixtures(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.ResolveServerTypeReference(ctx, types.TypeRef{App: "tutanota", TypeID: 97})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestModelsAreOrdered(t *testing.T) {
	r := loadFixtures(t)
	models := r.Models()
	require.NotEmpty(t, models)
	assert.Equal(t, "sys", models[0].App)
	for i := 1; i < len(models); i++ {
		prev, cur := models[i-1], models[i]
		if prev.App == cur.App {
			assert.Less(t, prev.ID, cur.ID)
		}
	}
}

func TestVerifyRejectsDanglingAggregation(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(&types.TypeModel{
		App:  "app",
		ID:   1,
		Name: "Owner",
		Type: types.KindElement,
		Associations: map[types.AttributeID]types.ModelAssociation{
			2: {ID: 2, Name: "parts", Type: types.Aggregation, Cardinality: types.Any, RefTypeID: 3},
		},
	}))
	assert.ErrorIs(t, r.Verify(), types.ErrInvalidTypeModel)

	require.NoError(t, r.Register(&types.TypeModel{
		App:  "app",
		ID:   3,
		Name: "Part",
		Type: types.KindElement,
		Values: map[types.AttributeID]types.ModelValue{
			4: {ID: 4, Name: "_id", Type: types.ValueCustomID, Cardinality: types.One},
		},
	}))
	err := r.Verify()
	require.ErrorIs(t, err, types.ErrInvalidTypeModel)
	assert.Contains(t, err.Error(), "ELEMENT_TYPE")
}

func TestRegisterValidates(t *testing.T) {
	r := NewRegistry()
	err := r.Register(&types.TypeModel{
		App:  "app",
		ID:   1,
		Name: "Broken",
		Type: types.KindElement,
		Values: map[types.AttributeID]types.ModelValue{
			2: {ID: 2, Name: "x", Type: types.ValueString, Cardinality: types.One},
		},
		Associations: map[types.AttributeID]types.ModelAssociation{
			2: {ID: 2, Name: "y", Type: types.ListAssociation, Cardinality: types.One},
		},
	})
	assert.ErrorIs(t, err, types.ErrInvalidTypeModel)
	assert.Empty(t, r.Models())
}

func TestLoadDirYAML(t *testing.T) {
	dir := t.TempDir()
	yamlModels := `
"1":
  name: Note
  id: 1
  type: ELEMENT_TYPE
  app: notes
  version: "2"
  encrypted: false
  values:
    "2": {id: 2, name: _id, type: GeneratedId, cardinality: One}
    "3": {id: 3, name: text, type: String, cardinality: ZeroOrOne}
  associations: {}
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.yaml"), []byte(yamlModels), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.txt"), []byte("ignored"), 0o644))

	r := NewRegistry()
	require.NoError(t, r.LoadDir(dir))
	m, err := r.ResolveServerTypeReference(context.Background(), types.TypeRef{App: "notes", TypeID: 1})
	require.NoError(t, err)
	assert.Equal(t, "Note", m.Name)
	id, ok := m.AttributeID("text")
	require.True(t, ok)
	assert.Equal(t, types.AttributeID(3), id)
}
