package pubcache

import (
	"encoding/json"
	"fmt"
	"maps"
	"reflect"
	"slices"
	"time"
)

// ContentData holds one logical version (draft or published) of a node.
// It is immutable: a content change always produces a new ContentData.
type ContentData struct {
	name        string
	versionID   int
	versionDate time.Time
	templateID  int
	published   bool
	properties  map[int]interface{}
	propertyIDs []int
}

// DataOption configures optional parts of a ContentData.
type DataOption func(*ContentData)

// WithTemplate sets the template reference. Zero means no template.
func WithTemplate(templateID int) DataOption {
	return func(d *ContentData) {
		d.templateID = templateID
	}
}

// WithProperty stores a value for the given property type id.
func WithProperty(propertyTypeID int, value interface{}) DataOption {
	return func(d *ContentData) {
		d.properties[propertyTypeID] = value
	}
}

// WithProperties stores a copy of all given values.
func WithProperties(values map[int]interface{}) DataOption {
	return func(d *ContentData) {
		maps.Copy(d.properties, values)
	}
}

// NewContentData builds an immutable content version.
func NewContentData(name string, versionID int, versionDate time.Time, published bool, opts ...DataOption) *ContentData {
	d := &ContentData{
		name:        name,
		versionID:   versionID,
		versionDate: versionDate,
		published:   published,
		properties:  make(map[int]interface{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.propertyIDs = slices.Sorted(maps.Keys(d.properties))
	return d
}

func (d *ContentData) Name() string           { return d.name }
func (d *ContentData) VersionID() int         { return d.versionID }
func (d *ContentData) VersionDate() time.Time { return d.versionDate }
func (d *ContentData) Published() bool        { return d.published }

// TemplateID returns the template reference and whether one is set.
func (d *ContentData) TemplateID() (int, bool) {
	return d.templateID, d.templateID != 0
}

// Value returns the stored value for a property type id.
func (d *ContentData) Value(propertyTypeID int) (interface{}, bool) {
	v, ok := d.properties[propertyTypeID]
	return v, ok
}

// PropertyTypeIDs returns the ids of all stored values in ascending order.
func (d *ContentData) PropertyTypeIDs() []int {
	return slices.Clone(d.propertyIDs)
}

// Equal reports whether two versions carry the same name, version metadata and values.
func (d *ContentData) Equal(other *ContentData) bool {
	if d == nil || other == nil {
		return d == other
	}
	if d.name != other.name || d.versionID != other.versionID || d.templateID != other.templateID ||
		d.published != other.published || !d.versionDate.Equal(other.versionDate) {
		return false
	}
	if !slices.Equal(d.propertyIDs, other.propertyIDs) {
		return false
	}
	for _, id := range d.propertyIDs {
		if !valueEqual(d.properties[id], other.properties[id]) {
			return false
		}
	}
	return true
}

// valueEqual compares stored values; times compare by instant.
func valueEqual(a, b interface{}) bool {
	if ta, ok := a.(time.Time); ok {
		tb, ok := b.(time.Time)
		return ok && ta.Equal(tb)
	}
	return reflect.DeepEqual(a, b)
}

type contentDataJSON struct {
	Name        string              `json:"name"`
	VersionID   int                 `json:"versionId"`
	VersionDate time.Time           `json:"versionDate"`
	TemplateID  int                 `json:"templateId,omitempty"`
	Published   bool                `json:"published"`
	Properties  []propertyValueJSON `json:"properties,omitempty"`
}

// Type tags of encoded property values. Untagged values decode generically.
const (
	valueString = "string"
	valueBool   = "bool"
	valueInt    = "int"
	valueInt64  = "int64"
	valueFloat  = "float"
	valueTime   = "time"
	valueBytes  = "bytes"
)

type propertyValueJSON struct {
	ID    int             `json:"id"`
	Type  string          `json:"t,omitempty"`
	Value json.RawMessage `json:"value"`
}

func encodeValue(id int, v interface{}) (propertyValueJSON, error) {
	p := propertyValueJSON{ID: id}
	switch v.(type) {
	case string:
		p.Type = valueString
	case bool:
		p.Type = valueBool
	case int:
		p.Type = valueInt
	case int64:
		p.Type = valueInt64
	case float64:
		p.Type = valueFloat
	case time.Time:
		p.Type = valueTime
	case []byte:
		p.Type = valueBytes
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return p, fmt.Errorf("property %d: %w", id, err)
	}
	p.Value = raw
	return p, nil
}

func decodeTyped[T any](raw json.RawMessage) (interface{}, error) {
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return v, nil
}

func (p propertyValueJSON) decode() (interface{}, error) {
	var (
		v   interface{}
		err error
	)
	switch p.Type {
	case valueString:
		v, err = decodeTyped[string](p.Value)
	case valueBool:
		v, err = decodeTyped[bool](p.Value)
	case valueInt:
		v, err = decodeTyped[int](p.Value)
	case valueInt64:
		v, err = decodeTyped[int64](p.Value)
	case valueFloat:
		v, err = decodeTyped[float64](p.Value)
	case valueTime:
		v, err = decodeTyped[time.Time](p.Value)
	case valueBytes:
		v, err = decodeTyped[[]byte](p.Value)
	case "":
		if len(p.Value) > 0 {
			err = json.Unmarshal(p.Value, &v)
		}
	default:
		err = fmt.Errorf("unknown value type %q", p.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("property %d: %w", p.ID, err)
	}
	return v, nil
}

// MarshalJSON encodes the version with its properties in property type id order.
// Each value carries its Go type so decoding restores it exactly.
func (d *ContentData) MarshalJSON() ([]byte, error) {
	out := contentDataJSON{
		Name:        d.name,
		VersionID:   d.versionID,
		VersionDate: d.versionDate,
		TemplateID:  d.templateID,
		Published:   d.published,
	}
	for _, id := range d.propertyIDs {
		p, err := encodeValue(id, d.properties[id])
		if err != nil {
			return nil, err
		}
		out.Properties = append(out.Properties, p)
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes a version. Values of other types than the tagged
// ones decode the way encoding/json decodes into interface{}.
func (d *ContentData) UnmarshalJSON(b []byte) error {
	var in contentDataJSON
	if err := json.Unmarshal(b, &in); err != nil {
		return err
	}
	values := make(map[int]interface{}, len(in.Properties))
	for _, p := range in.Properties {
		v, err := p.decode()
		if err != nil {
			return err
		}
		values[p.ID] = v
	}
	*d = *NewContentData(in.Name, in.VersionID, in.VersionDate, in.Published,
		WithTemplate(in.TemplateID), WithProperties(values))
	return nil
}
