package data

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// NodeRow is one row of the nodes table: the tree structure of a content item.
type NodeRow struct {
	ID            int       `db:"id"`
	UID           uuid.UUID `db:"uid"`
	ParentID      int       `db:"parent_id"`
	Level         int       `db:"level"`
	Path          string    `db:"path"`
	SortOrder     int       `db:"sort_order"`
	ContentTypeID int       `db:"content_type_id"`
	CreatorID     int       `db:"creator_id"`
	CreateDate    time.Time `db:"create_date"`
}

// VersionRow is one saved version of a node.
type VersionRow struct {
	ID          int           `db:"id"`
	NodeID      int           `db:"node_id"`
	Name        string        `db:"name"`
	TemplateID  sql.NullInt64 `db:"template_id"`
	VersionDate time.Time     `db:"version_date"`
	Current     bool          `db:"current"`
	Published   bool          `db:"published"`
}

// PropertyDataRow holds the stored value of one property for one version.
// Exactly one of the typed columns is expected to be set.
type PropertyDataRow struct {
	VersionID      int             `db:"version_id"`
	PropertyTypeID int             `db:"property_type_id"`
	IntValue       sql.NullInt64   `db:"int_value"`
	DecimalValue   sql.NullFloat64 `db:"decimal_value"`
	DateValue      sql.NullTime    `db:"date_value"`
	VarcharValue   sql.NullString  `db:"varchar_value"`
	TextValue      sql.NullString  `db:"text_value"`
}

// Value returns the first set column, or nil.
func (r PropertyDataRow) Value() interface{} {
	switch {
	case r.IntValue.Valid:
		return r.IntValue.Int64
	case r.DecimalValue.Valid:
		return r.DecimalValue.Float64
	case r.DateValue.Valid:
		return r.DateValue.Time
	case r.VarcharValue.Valid:
		return r.VarcharValue.String
	case r.TextValue.Valid:
		return r.TextValue.String
	default:
		return nil
	}
}

// ContentTypeRow is one row of the content_types table.
type ContentTypeRow struct {
	ID    int    `db:"id"`
	Alias string `db:"alias"`
}

// PropertyTypeRow is one row of the property_types table.
type PropertyTypeRow struct {
	ID            int    `db:"id"`
	ContentTypeID int    `db:"content_type_id"`
	Alias         string `db:"alias"`
	EditorAlias   string `db:"editor_alias"`
	SortOrder     int    `db:"sort_order"`
	// DefaultValue is the configured default in text form, converted by the
	// property editor's converter when the content type is built.
	DefaultValue sql.NullString `db:"default_value"`
}
