// Package convert turns stored property values into the values readers get,
// keyed by the property editor that produced them.
package convert

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"go-content-cache/internal/pubcache"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

// Editor aliases understood by the default registry.
const (
	EditorText     = "text"
	EditorInteger  = "integer"
	EditorDecimal  = "decimal"
	EditorBoolean  = "boolean"
	EditorDateTime = "datetime"
	EditorMarkdown = "markdown"
	EditorRichText = "richtext"
)

// Func adapts a function to pubcache.ValueConverter.
type Func func(raw interface{}) (interface{}, error)

func (f Func) ConvertValue(raw interface{}) (interface{}, error) {
	return f(raw)
}

// Registry maps editor aliases to converters.
type Registry struct {
	mu         sync.RWMutex
	converters map[string]pubcache.ValueConverter
}

// NewRegistry creates a registry with the built-in converters.
func NewRegistry() *Registry {
	sanitizer := bluemonday.UGCPolicy()
	md := goldmark.New(goldmark.WithExtensions(extension.GFM))

	r := &Registry{converters: make(map[string]pubcache.ValueConverter)}
	r.Register(EditorText, Func(toString))
	r.Register(EditorInteger, Func(toInt))
	r.Register(EditorDecimal, Func(toFloat))
	r.Register(EditorBoolean, Func(toBool))
	r.Register(EditorDateTime, Func(toTime))
	r.Register(EditorMarkdown, &markdownConverter{md: md, sanitizer: sanitizer})
	r.Register(EditorRichText, Func(func(raw interface{}) (interface{}, error) {
		s, err := toString(raw)
		if err != nil {
			return nil, err
		}
		return sanitizer.Sanitize(s.(string)), nil
	}))
	return r
}

// Register sets the converter for an editor alias, replacing any previous one.
func (r *Registry) Register(editorAlias string, c pubcache.ValueConverter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.converters[editorAlias] = c
}

// For returns the converter for an editor alias, or nil when values pass through unchanged.
func (r *Registry) For(editorAlias string) pubcache.ValueConverter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.converters[editorAlias]
}

type markdownConverter struct {
	md        goldmark.Markdown
	sanitizer *bluemonday.Policy
}

// ConvertValue renders markdown to sanitized HTML.
func (c *markdownConverter) ConvertValue(raw interface{}) (interface{}, error) {
	s, err := toString(raw)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := c.md.Convert([]byte(s.(string)), &buf); err != nil {
		return nil, fmt.Errorf("failed to render markdown: %w", err)
	}
	return c.sanitizer.Sanitize(buf.String()), nil
}

func toString(raw interface{}) (interface{}, error) {
	switch v := raw.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	default:
		return fmt.Sprint(v), nil
	}
}

func toInt(raw interface{}) (interface{}, error) {
	switch v := raw.(type) {
	case int:
		return int64(v), nil
	case int64:
		return v, nil
	case float64:
		return int64(v), nil
	case json.Number:
		return v.Int64()
	case string:
		return strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	case []byte:
		return strconv.ParseInt(strings.TrimSpace(string(v)), 10, 64)
	default:
		return nil, fmt.Errorf("cannot convert %T to integer", raw)
	}
}

func toFloat(raw interface{}) (interface{}, error) {
	switch v := raw.(type) {
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case json.Number:
		return v.Float64()
	case string:
		return strconv.ParseFloat(strings.TrimSpace(v), 64)
	case []byte:
		return strconv.ParseFloat(strings.TrimSpace(string(v)), 64)
	default:
		return nil, fmt.Errorf("cannot convert %T to decimal", raw)
	}
}

func toBool(raw interface{}) (interface{}, error) {
	switch v := raw.(type) {
	case bool:
		return v, nil
	case int64:
		return v != 0, nil
	case float64:
		return v != 0, nil
	case string:
		return strconv.ParseBool(strings.TrimSpace(v))
	case []byte:
		return strconv.ParseBool(strings.TrimSpace(string(v)))
	default:
		return nil, fmt.Errorf("cannot convert %T to boolean", raw)
	}
}

var timeLayouts = []string{time.RFC3339Nano, "2006-01-02 15:04:05", "2006-01-02"}

func toTime(raw interface{}) (interface{}, error) {
	switch v := raw.(type) {
	case time.Time:
		return v, nil
	case []byte:
		return toTime(string(v))
	case string:
		s := strings.TrimSpace(v)
		for _, layout := range timeLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t, nil
			}
		}
		return nil, fmt.Errorf("cannot parse %q as a date", s)
	default:
		return nil, fmt.Errorf("cannot convert %T to date", raw)
	}
}
