package pubcache

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// PublishedContent is the read-only view of one version of a node.
//
// Property values are resolved lazily against the content type. Parent and
// children are looked up through the store by id on every call, never through
// cached pointers.
type PublishedContent struct {
	node  *ContentNode
	data  *ContentData
	draft bool

	propsOnce sync.Once
	props     []*Property
	byAlias   map[string]*Property
}

func newPublishedContent(node *ContentNode, data *ContentData, draft bool) *PublishedContent {
	if data == nil {
		return nil
	}
	return &PublishedContent{node: node, data: data, draft: draft}
}

// Data returns the underlying content version. It is nil-safe.
func (c *PublishedContent) Data() *ContentData {
	if c == nil {
		return nil
	}
	return c.data
}

func (c *PublishedContent) Node() *ContentNode        { return c.node }
func (c *PublishedContent) ID() int                   { return c.node.info.ID }
func (c *PublishedContent) Key() uuid.UUID            { return c.node.info.UID }
func (c *PublishedContent) Level() int                { return c.node.info.Level }
func (c *PublishedContent) Path() string              { return c.node.info.Path }
func (c *PublishedContent) SortOrder() int            { return c.node.info.SortOrder }
func (c *PublishedContent) ParentID() int             { return c.node.info.ParentID }
func (c *PublishedContent) CreateDate() time.Time     { return c.node.info.CreateDate }
func (c *PublishedContent) CreatorID() int            { return c.node.info.CreatorID }
func (c *PublishedContent) ContentType() *ContentType { return c.node.contentType }
func (c *PublishedContent) Name() string              { return c.data.name }
func (c *PublishedContent) VersionID() int            { return c.data.versionID }
func (c *PublishedContent) UpdateDate() time.Time     { return c.data.versionDate }
func (c *PublishedContent) IsDraft() bool             { return c.draft }
func (c *PublishedContent) TemplateID() (int, bool)   { return c.data.TemplateID() }

// Property returns the named property, or nil if the content type has no such alias.
func (c *PublishedContent) Property(alias string) *Property {
	c.initProperties()
	return c.byAlias[alias]
}

// Properties returns all properties in content type order.
func (c *PublishedContent) Properties() []*Property {
	c.initProperties()
	out := make([]*Property, len(c.props))
	copy(out, c.props)
	return out
}

// Value returns the converted value of the named property, or nil for an unknown alias.
func (c *PublishedContent) Value(alias string) interface{} {
	p := c.Property(alias)
	if p == nil {
		return nil
	}
	return p.Value()
}

func (c *PublishedContent) initProperties() {
	c.propsOnce.Do(func() {
		var types []*PropertyType
		if c.node.contentType != nil {
			types = c.node.contentType.propertyTypes
		}
		c.props = make([]*Property, 0, len(types))
		c.byAlias = make(map[string]*Property, len(types))
		for _, pt := range types {
			raw, ok := c.data.Value(pt.ID)
			p := &Property{propertyType: pt, raw: raw, hasValue: ok}
			c.props = append(c.props, p)
			c.byAlias[pt.Alias] = p
		}
	})
}

// Parent returns the parent as seen by the reader bound to ctx, or nil for a
// top-level node or a parent that is gone.
func (c *PublishedContent) Parent(ctx context.Context) *PublishedContent {
	if c.node.info.ParentID == RootID {
		return nil
	}
	r := c.reader(ctx)
	if r == nil {
		return nil
	}
	parent := r.Get(c.node.info.ParentID)
	if parent == nil {
		return nil
	}
	return parent.Content(c.draft)
}

// Children returns the children visible in this content's mode: drafts fall back
// to published in preview, published content only sees published children.
func (c *PublishedContent) Children(ctx context.Context) []*PublishedContent {
	r := c.reader(ctx)
	if r == nil {
		return nil
	}
	var out []*PublishedContent
	for child := range r.Children(c.node.info.ID) {
		if pc := child.Content(c.draft); pc != nil {
			out = append(out, pc)
		}
	}
	return out
}

// Ancestors returns the parent chain, nearest first.
func (c *PublishedContent) Ancestors(ctx context.Context) []*PublishedContent {
	var out []*PublishedContent
	seen := map[int]bool{c.ID(): true}
	for p := c.Parent(ctx); p != nil && !seen[p.ID()]; p = p.Parent(ctx) {
		seen[p.ID()] = true
		out = append(out, p)
	}
	return out
}

func (c *PublishedContent) reader(ctx context.Context) Reader {
	if c.node.accessor == nil {
		return nil
	}
	return c.node.accessor.Reader(ctx)
}

// Property is one resolved property of a PublishedContent.
type Property struct {
	propertyType *PropertyType
	raw          interface{}
	hasValue     bool

	once  sync.Once
	value interface{}
}

func (p *Property) Alias() string               { return p.propertyType.Alias }
func (p *Property) PropertyType() *PropertyType { return p.propertyType }

// HasValue reports whether the content stores a value for this property.
func (p *Property) HasValue() bool {
	return p.hasValue
}

// RawValue returns the stored value, or the property type default when nothing is stored.
func (p *Property) RawValue() interface{} {
	if !p.hasValue {
		return p.propertyType.Default
	}
	return p.raw
}

// Value returns the converted value. A missing value or a failed conversion yields the default.
func (p *Property) Value() interface{} {
	p.once.Do(func() {
		if !p.hasValue {
			p.value = p.propertyType.Default
			return
		}
		if p.propertyType.Converter == nil {
			p.value = p.raw
			return
		}
		v, err := p.propertyType.Converter.ConvertValue(p.raw)
		if err != nil {
			p.value = p.propertyType.Default
			return
		}
		p.value = v
	})
	return p.value
}
