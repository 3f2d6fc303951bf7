package pubcache

import (
	"context"
	"slices"
)

// ValueConverter turns a stored property value into the value handed to readers.
type ValueConverter interface {
	ConvertValue(raw interface{}) (interface{}, error)
}

// PropertyType describes one property of a content type.
type PropertyType struct {
	ID          int
	Alias       string
	EditorAlias string
	Default     interface{}
	Converter   ValueConverter
}

// ContentType is the schema a node's data is interpreted against.
// A ContentType is never modified once built; a definition change produces a new instance.
type ContentType struct {
	id            int
	alias         string
	propertyTypes []*PropertyType
	byAlias       map[string]*PropertyType
}

// NewContentType builds a content type from its property types.
func NewContentType(id int, alias string, propertyTypes []*PropertyType) *ContentType {
	ct := &ContentType{
		id:            id,
		alias:         alias,
		propertyTypes: slices.Clone(propertyTypes),
		byAlias:       make(map[string]*PropertyType, len(propertyTypes)),
	}
	for _, pt := range ct.propertyTypes {
		ct.byAlias[pt.Alias] = pt
	}
	return ct
}

func (ct *ContentType) ID() int       { return ct.id }
func (ct *ContentType) Alias() string { return ct.alias }

// PropertyType looks up a property type by alias.
func (ct *ContentType) PropertyType(alias string) (*PropertyType, bool) {
	pt, ok := ct.byAlias[alias]
	return pt, ok
}

// PropertyTypes returns the property types in declaration order.
func (ct *ContentType) PropertyTypes() []*PropertyType {
	return slices.Clone(ct.propertyTypes)
}

// ContentTypeLookup resolves content type ids. It may fetch on a miss.
type ContentTypeLookup interface {
	ContentType(ctx context.Context, id int) (*ContentType, error)
}

// ContentTypeLookupFunc adapts a function to ContentTypeLookup.
type ContentTypeLookupFunc func(ctx context.Context, id int) (*ContentType, error)

func (f ContentTypeLookupFunc) ContentType(ctx context.Context, id int) (*ContentType, error) {
	return f(ctx, id)
}
