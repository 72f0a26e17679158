package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleModel() *TypeModel {
	return &TypeModel{
		App:  "tutanota",
		ID:   20,
		Name: "Sample",
		Type: KindElement,
		Values: map[AttributeID]ModelValue{
			21: {ID: 21, Name: "_id", Type: ValueGeneratedID, Cardinality: One},
			22: {ID: 22, Name: "title", Type: ValueString, Cardinality: One, Encrypted: true},
		},
		Associations: map[AttributeID]ModelAssociation{
			23: {ID: 23, Name: "parts", Type: Aggregation, Cardinality: Any, RefTypeID: 30},
			24: {ID: 24, Name: "owner", Type: ElementAssociation, Cardinality: ZeroOrOne, RefTypeID: 5, Dependency: "sys"},
		},
	}
}

func TestTypeModelAttribute(t *testing.T) {
	m := sampleModel()

	a, ok := m.Attribute(22)
	require.True(t, ok)
	assert.True(t, a.IsValue())
	assert.Equal(t, "title", a.Name())
	assert.Equal(t, One, a.Cardinality())

	a, ok = m.Attribute(23)
	require.True(t, ok)
	assert.True(t, a.IsAggregation())
	assert.False(t, a.IsReference())

	a, ok = m.Attribute(24)
	require.True(t, ok)
	assert.True(t, a.IsReference())

	_, ok = m.Attribute(99)
	assert.False(t, ok)
}

func TestTypeModelAttributeID(t *testing.T) {
	m := sampleModel()

	id, ok := m.AttributeID("_id")
	require.True(t, ok)
	assert.Equal(t, AttributeID(21), id)

	id, ok = m.AttributeID("owner")
	require.True(t, ok)
	assert.Equal(t, AttributeID(24), id)

	_, ok = m.AttributeID("missing")
	assert.False(t, ok)

	assert.Equal(t, []AttributeID{21, 22, 23, 24}, m.AttributeIDs())
}

func TestTypeModelAggregateRef(t *testing.T) {
	m := sampleModel()
	assert.Equal(t, TypeRef{App: "tutanota", TypeID: 30}, m.AggregateRef(m.Associations[23]))
	assert.Equal(t, TypeRef{App: "sys", TypeID: 5}, m.AggregateRef(m.Associations[24]))
}

func TestTypeModelValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(m *TypeModel)
	}{
		{"shared id", func(m *TypeModel) {
			m.Associations[22] = ModelAssociation{ID: 22, Name: "clash", Type: ElementAssociation, Cardinality: Any}
		}},
		{"mismatched key", func(m *TypeModel) {
			m.Values[25] = ModelValue{ID: 26, Name: "x", Type: ValueString, Cardinality: One}
		}},
		{"unknown value type", func(m *TypeModel) {
			m.Values[25] = ModelValue{ID: 25, Name: "x", Type: "Float", Cardinality: One}
		}},
		{"unknown cardinality", func(m *TypeModel) {
			m.Values[25] = ModelValue{ID: 25, Name: "x", Type: ValueString, Cardinality: "Many"}
		}},
		{"unknown association type", func(m *TypeModel) {
			m.Associations[25] = ModelAssociation{ID: 25, Name: "x", Type: "LINK", Cardinality: Any}
		}},
		{"duplicate name", func(m *TypeModel) {
			m.Associations[25] = ModelAssociation{ID: 25, Name: "title", Type: ElementAssociation, Cardinality: Any}
		}},
		{"unknown kind", func(m *TypeModel) { m.Type = "ROOT" }},
		{"missing app", func(m *TypeModel) { m.App = "" }},
	}

	require.NoError(t, sampleModel().Validate())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := sampleModel()
			tt.mutate(m)
			assert.ErrorIs(t, m.Validate(), ErrInvalidTypeModel)
		})
	}
}

func TestParseTypeRef(t *testing.T) {
	ref, err := ParseTypeRef("tutanota/97")
	require.NoError(t, err)
	assert.Equal(t, TypeRef{App: "tutanota", TypeID: 97}, ref)
	assert.Equal(t, "tutanota/97", ref.String())

	for _, bad := range []string{"", "tutanota", "/97", "tutanota/x"} {
		_, err := ParseTypeRef(bad)
		assert.ErrorIs(t, err, ErrInvalidTypeRef, bad)
	}
}
