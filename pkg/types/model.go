package types

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// TypeRef identifies a type model by application name and numeric type id.
type TypeRef struct {
	App    string
	TypeID int64
}

// String renders the reference as "app/typeId".
func (r TypeRef) String() string {
	return r.App + "/" + strconv.FormatInt(r.TypeID, 10)
}

// ParseTypeRef parses the "app/typeId" form produced by TypeRef.String.
func ParseTypeRef(s string) (TypeRef, error) {
	app, id, ok := strings.Cut(s, "/")
	if !ok || app == "" {
		return TypeRef{}, fmt.Errorf("%w: %q", ErrInvalidTypeRef, s)
	}
	typeID, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return TypeRef{}, fmt.Errorf("%w: %q", ErrInvalidTypeRef, s)
	}
	return TypeRef{App: app, TypeID: typeID}, nil
}

// AttributeID is the numeric id of a value or association within a type.
type AttributeID int64

// String returns the decimal form used as a wire key.
func (id AttributeID) String() string {
	return strconv.FormatInt(int64(id), 10)
}

// ParseAttributeID parses a decimal attribute id.
func ParseAttributeID(s string) (AttributeID, error) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAttributeID, s)
	}
	return AttributeID(n), nil
}

// Type kinds.
type Kind string

const (
	KindElement      Kind = "ELEMENT_TYPE"
	KindListElement  Kind = "LIST_ELEMENT_TYPE"
	KindDataTransfer Kind = "DATA_TRANSFER_TYPE"
	KindAggregated   Kind = "AGGREGATED_TYPE"
	KindBlobElement  Kind = "BLOB_ELEMENT_TYPE"
)

var validKinds = map[Kind]bool{
	KindElement:      true,
	KindListElement:  true,
	KindDataTransfer: true,
	KindAggregated:   true,
	KindBlobElement:  true,
}

// Cardinality constrains how many values an attribute holds.
type Cardinality string

const (
	// ZeroOrOne values are nullable; associations hold at most one element.
	ZeroOrOne Cardinality = "ZeroOrOne"
	// Any associations hold zero or more elements and are never null.
	Any Cardinality = "Any"
	// One values are never null; associations hold exactly one element.
	One Cardinality = "One"
)

var validCardinalities = map[Cardinality]bool{
	ZeroOrOne: true,
	Any:       true,
	One:       true,
}

// ValueType is the scalar kind of a value attribute.
type ValueType string

const (
	ValueString           ValueType = "String"
	ValueNumber           ValueType = "Number"
	ValueBytes            ValueType = "Bytes"
	ValueDate             ValueType = "Date"
	ValueBoolean          ValueType = "Boolean"
	ValueGeneratedID      ValueType = "GeneratedId"
	ValueCustomID         ValueType = "CustomId"
	ValueCompressedString ValueType = "CompressedString"
)

var validValueTypes = map[ValueType]bool{
	ValueString:           true,
	ValueNumber:           true,
	ValueBytes:            true,
	ValueDate:             true,
	ValueBoolean:          true,
	ValueGeneratedID:      true,
	ValueCustomID:         true,
	ValueCompressedString: true,
}

// AssociationType is the kind of reference an association attribute holds.
type AssociationType string

const (
	ElementAssociation              AssociationType = "ELEMENT_ASSOCIATION"
	ListAssociation                 AssociationType = "LIST_ASSOCIATION"
	ListElementAssociationGenerated AssociationType = "LIST_ELEMENT_ASSOCIATION_GENERATED"
	Aggregation                     AssociationType = "AGGREGATION"
	BlobElementAssociation          AssociationType = "BLOB_ELEMENT_ASSOCIATION"
	ListElementAssociationCustom    AssociationType = "LIST_ELEMENT_ASSOCIATION_CUSTOM"
)

var validAssociationTypes = map[AssociationType]bool{
	ElementAssociation:              true,
	ListAssociation:                 true,
	ListElementAssociationGenerated: true,
	Aggregation:                     true,
	BlobElementAssociation:          true,
	ListElementAssociationCustom:    true,
}

// ModelValue describes a scalar attribute.
type ModelValue struct {
	ID          AttributeID
	Name        string
	Type        ValueType
	Cardinality Cardinality
	Encrypted   bool
	Final       bool
}

// ModelAssociation describes a reference or aggregation attribute.
// Dependency names the application of the referenced type when it differs
// from the owning type's application.
type ModelAssociation struct {
	ID          AttributeID
	Name        string
	Type        AssociationType
	Cardinality Cardinality
	RefTypeID   int64
	Dependency  string
	Final       bool
}

// IsAggregation reports whether the association embeds whole instances.
func (a ModelAssociation) IsAggregation() bool {
	return a.Type == Aggregation
}

// Attribute is the tagged variant returned by TypeModel.Attribute. Exactly
// one of Value and Association is set.
type Attribute struct {
	Value       *ModelValue
	Association *ModelAssociation
}

// IsValue reports whether the attribute is a scalar value.
func (a Attribute) IsValue() bool { return a.Value != nil }

// IsAggregation reports whether the attribute is an aggregation.
func (a Attribute) IsAggregation() bool {
	return a.Association != nil && a.Association.IsAggregation()
}

// IsReference reports whether the attribute is a non-aggregate association.
func (a Attribute) IsReference() bool {
	return a.Association != nil && !a.Association.IsAggregation()
}

// Name returns the attribute name.
func (a Attribute) Name() string {
	if a.Value != nil {
		return a.Value.Name
	}
	if a.Association != nil {
		return a.Association.Name
	}
	return ""
}

// Cardinality returns the attribute cardinality.
func (a Attribute) Cardinality() Cardinality {
	if a.Value != nil {
		return a.Value.Cardinality
	}
	if a.Association != nil {
		return a.Association.Cardinality
	}
	return ""
}

// TypeModel describes one entity or aggregate type.
type TypeModel struct {
	App          string
	ID           int64
	Name         string
	Version      string
	Type         Kind
	Encrypted    bool
	Values       map[AttributeID]ModelValue
	Associations map[AttributeID]ModelAssociation
}

// Ref returns the TypeRef addressing this model.
func (m *TypeModel) Ref() TypeRef {
	return TypeRef{App: m.App, TypeID: m.ID}
}

// Attribute looks up an attribute by id.
func (m *TypeModel) Attribute(id AttributeID) (Attribute, bool) {
	if v, ok := m.Values[id]; ok {
		return Attribute{Value: &v}, true
	}
	if a, ok := m.Associations[id]; ok {
		return Attribute{Association: &a}, true
	}
	return Attribute{}, false
}

// AttributeID resolves an attribute name to its id.
func (m *TypeModel) AttributeID(name string) (AttributeID, bool) {
	for id, v := range m.Values {
		if v.Name == name {
			return id, true
		}
	}
	for id, a := range m.Associations {
		if a.Name == name {
			return id, true
		}
	}
	return 0, false
}

// AttributeIDs returns every attribute id of the model in ascending order.
func (m *TypeModel) AttributeIDs() []AttributeID {
	ids := make([]AttributeID, 0, len(m.Values)+len(m.Associations))
	for id := range m.Values {
		ids = append(ids, id)
	}
	for id := range m.Associations {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// AggregateRef returns the TypeRef targeted by an association, applying the
// association's Dependency override.
func (m *TypeModel) AggregateRef(a ModelAssociation) TypeRef {
	app := a.Dependency
	if app == "" {
		app = m.App
	}
	return TypeRef{App: app, TypeID: a.RefTypeID}
}

// Validate checks the model for structural errors: unknown kinds, unknown
// cardinalities, names, and ids shared between values and associations.
func (m *TypeModel) Validate() error {
	if m.App == "" || m.Name == "" {
		return fmt.Errorf("%w: type %d needs an application and a name", ErrInvalidTypeModel, m.ID)
	}
	if !validKinds[m.Type] {
		return fmt.Errorf("%w: %s has unknown kind %q", ErrInvalidTypeModel, m.Name, m.Type)
	}
	names := make(map[string]AttributeID)
	for id, v := range m.Values {
		if v.ID != id {
			return fmt.Errorf("%w: %s value %q keyed %d but declares id %d", ErrInvalidTypeModel, m.Name, v.Name, id, v.ID)
		}
		if !validValueTypes[v.Type] {
			return fmt.Errorf("%w: %s value %q has unknown type %q", ErrInvalidTypeModel, m.Name, v.Name, v.Type)
		}
		if !validCardinalities[v.Cardinality] {
			return fmt.Errorf("%w: %s value %q has unknown cardinality %q", ErrInvalidTypeModel, m.Name, v.Name, v.Cardinality)
		}
		if prev, dup := names[v.Name]; dup {
			return fmt.Errorf("%w: %s name %q used by ids %d and %d", ErrInvalidTypeModel, m.Name, v.Name, prev, id)
		}
		names[v.Name] = id
	}
	for id, a := range m.Associations {
		if a.ID != id {
			return fmt.Errorf("%w: %s association %q keyed %d but declares id %d", ErrInvalidTypeModel, m.Name, a.Name, id, a.ID)
		}
		if _, clash := m.Values[id]; clash {
			return fmt.Errorf("%w: %s id %d is both a value and an association", ErrInvalidTypeModel, m.Name, id)
		}
		if !validAssociationTypes[a.Type] {
			return fmt.Errorf("%w: %s association %q has unknown type %q", ErrInvalidTypeModel, m.Name, a.Name, a.Type)
		}
		if !validCardinalities[a.Cardinality] {
			return fmt.Errorf("%w: %s association %q has unknown cardinality %q", ErrInvalidTypeModel, m.Name, a.Name, a.Cardinality)
		}
		if prev, dup := names[a.Name]; dup {
			return fmt.Errorf("%w: %s name %q used by ids %d and %d", ErrInvalidTypeModel, m.Name, a.Name, prev, id)
		}
		names[a.Name] = id
	}
	return nil
}
