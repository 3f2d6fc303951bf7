package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go-content-cache/internal/pubcache"

	"github.com/jmoiron/sqlx"
)

// ConverterSource picks the value converter for a property editor.
type ConverterSource interface {
	For(editorAlias string) pubcache.ValueConverter
}

// SQLContentTypeRepository builds content types from the content_types and
// property_types tables.
type SQLContentTypeRepository struct {
	db         *sqlx.DB
	converters ConverterSource
}

// NewSQLContentTypeRepository creates a new SQLContentTypeRepository. converters may be nil.
func NewSQLContentTypeRepository(db *sqlx.DB, converters ConverterSource) *SQLContentTypeRepository {
	return &SQLContentTypeRepository{db: db, converters: converters}
}

// GetContentType loads one content type with its property types.
func (r *SQLContentTypeRepository) GetContentType(ctx context.Context, id int) (*pubcache.ContentType, error) {
	var row ContentTypeRow
	if err := r.db.GetContext(ctx, &row, r.db.Rebind(`SELECT id, alias FROM content_types WHERE id = ?`), id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("content type %d: %w", id, ErrContentTypeNotFound)
		}
		return nil, fmt.Errorf("failed to get content type %d: %w", id, err)
	}

	var props []PropertyTypeRow
	query := `SELECT id, content_type_id, alias, editor_alias, sort_order, default_value FROM property_types
		WHERE content_type_id = ? ORDER BY sort_order, id`
	if err := r.db.SelectContext(ctx, &props, r.db.Rebind(query), id); err != nil {
		return nil, fmt.Errorf("failed to get property types of content type %d: %w", id, err)
	}
	return r.build(row, props), nil
}

// GetAllContentTypes loads every content type.
func (r *SQLContentTypeRepository) GetAllContentTypes(ctx context.Context) ([]*pubcache.ContentType, error) {
	var rows []ContentTypeRow
	if err := r.db.SelectContext(ctx, &rows, `SELECT id, alias FROM content_types ORDER BY id`); err != nil {
		return nil, fmt.Errorf("failed to get content types: %w", err)
	}

	var props []PropertyTypeRow
	query := `SELECT id, content_type_id, alias, editor_alias, sort_order, default_value FROM property_types ORDER BY content_type_id, sort_order, id`
	if err := r.db.SelectContext(ctx, &props, query); err != nil {
		return nil, fmt.Errorf("failed to get property types: %w", err)
	}
	byType := make(map[int][]PropertyTypeRow)
	for _, p := range props {
		byType[p.ContentTypeID] = append(byType[p.ContentTypeID], p)
	}

	out := make([]*pubcache.ContentType, 0, len(rows))
	for _, row := range rows {
		out = append(out, r.build(row, byType[row.ID]))
	}
	return out, nil
}

func (r *SQLContentTypeRepository) build(row ContentTypeRow, props []PropertyTypeRow) *pubcache.ContentType {
	pts := make([]*pubcache.PropertyType, 0, len(props))
	for _, p := range props {
		pt := &pubcache.PropertyType{ID: p.ID, Alias: p.Alias, EditorAlias: p.EditorAlias}
		if r.converters != nil {
			pt.Converter = r.converters.For(p.EditorAlias)
		}
		if p.DefaultValue.Valid {
			pt.Default = defaultValue(p.DefaultValue.String, pt.Converter)
		}
		pts = append(pts, pt)
	}
	return pubcache.NewContentType(row.ID, row.Alias, pts)
}

// defaultValue converts a configured default like a stored value. A default the
// converter rejects is kept as text.
func defaultValue(raw string, c pubcache.ValueConverter) interface{} {
	if c == nil {
		return raw
	}
	v, err := c.ConvertValue(raw)
	if err != nil {
		return raw
	}
	return v
}
