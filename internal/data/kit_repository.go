package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go-content-cache/internal/pubcache"

	"github.com/jmoiron/sqlx"
)

const nodeColumns = `id, uid, parent_id, level, path, sort_order, content_type_id, creator_id, create_date`

// SQLKitRepository loads content node kits from the relational store using sqlx.
type SQLKitRepository struct {
	db *sqlx.DB
}

// NewSQLKitRepository creates a new SQLKitRepository.
func NewSQLKitRepository(db *sqlx.DB) *SQLKitRepository {
	return &SQLKitRepository{db: db}
}

// GetAllKits returns a kit for every node, parents before children.
func (r *SQLKitRepository) GetAllKits(ctx context.Context) ([]pubcache.ContentNodeKit, error) {
	kits, err := r.loadKits(ctx, "1 = 1")
	if err != nil {
		return nil, fmt.Errorf("failed to load all kits: %w", err)
	}
	return kits, nil
}

// GetKit returns the kit of one node. A node with no current or published
// version comes back as a delete kit.
func (r *SQLKitRepository) GetKit(ctx context.Context, id int) (pubcache.ContentNodeKit, error) {
	kits, err := r.loadKits(ctx, "id = ?", id)
	if err != nil {
		return pubcache.ContentNodeKit{}, fmt.Errorf("failed to load kit %d: %w", id, err)
	}
	if len(kits) == 0 {
		return pubcache.ContentNodeKit{}, fmt.Errorf("kit %d: %w", id, ErrNodeNotFound)
	}
	return kits[0], nil
}

// GetBranchKits returns the kits of a node and all its descendants, top-down.
func (r *SQLKitRepository) GetBranchKits(ctx context.Context, id int) ([]pubcache.ContentNodeKit, error) {
	var path string
	if err := r.db.GetContext(ctx, &path, r.db.Rebind(`SELECT path FROM nodes WHERE id = ?`), id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("branch %d: %w", id, ErrNodeNotFound)
		}
		return nil, fmt.Errorf("failed to get path of node %d: %w", id, err)
	}
	kits, err := r.loadKits(ctx, "(path = ? OR path LIKE ?)", path, path+",%")
	if err != nil {
		return nil, fmt.Errorf("failed to load branch %d: %w", id, err)
	}
	return kits, nil
}

// loadKits reads the nodes matching filter, their current and published versions
// and the property data of those versions, then assembles kits in tree order.
func (r *SQLKitRepository) loadKits(ctx context.Context, filter string, args ...interface{}) ([]pubcache.ContentNodeKit, error) {
	var nodes []NodeRow
	query := `SELECT ` + nodeColumns + ` FROM nodes WHERE ` + filter + ` ORDER BY level, parent_id, sort_order, id`
	if err := r.db.SelectContext(ctx, &nodes, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to select nodes: %w", err)
	}
	if len(nodes) == 0 {
		return nil, nil
	}

	var versions []VersionRow
	query = `SELECT id, node_id, name, template_id, version_date, current, published FROM content_versions
		WHERE (current = 1 OR published = 1) AND node_id IN (SELECT id FROM nodes WHERE ` + filter + `)
		ORDER BY node_id, id`
	if err := r.db.SelectContext(ctx, &versions, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to select versions: %w", err)
	}

	var props []PropertyDataRow
	query = `SELECT pd.version_id, pd.property_type_id, pd.int_value, pd.decimal_value, pd.date_value, pd.varchar_value, pd.text_value
		FROM property_data pd
		JOIN content_versions cv ON cv.id = pd.version_id
		WHERE (cv.current = 1 OR cv.published = 1) AND cv.node_id IN (SELECT id FROM nodes WHERE ` + filter + `)`
	if err := r.db.SelectContext(ctx, &props, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to select property data: %w", err)
	}

	values := make(map[int]map[int]interface{})
	for _, p := range props {
		m := values[p.VersionID]
		if m == nil {
			m = make(map[int]interface{})
			values[p.VersionID] = m
		}
		m[p.PropertyTypeID] = p.Value()
	}

	type pair struct{ draft, published *pubcache.ContentData }
	byNode := make(map[int]*pair, len(nodes))
	for _, v := range versions {
		pr := byNode[v.NodeID]
		if pr == nil {
			pr = &pair{}
			byNode[v.NodeID] = pr
		}
		d := contentDataFrom(v, values[v.ID])
		if v.Published {
			pr.published = d
		} else if v.Current {
			pr.draft = d
		}
	}

	kits := make([]pubcache.ContentNodeKit, 0, len(nodes))
	for _, n := range nodes {
		kit := pubcache.ContentNodeKit{
			Node: pubcache.NodeInfo{
				ID:         n.ID,
				UID:        n.UID,
				Level:      n.Level,
				Path:       n.Path,
				SortOrder:  n.SortOrder,
				ParentID:   n.ParentID,
				CreateDate: n.CreateDate,
				CreatorID:  n.CreatorID,
			},
			ContentTypeID: n.ContentTypeID,
		}
		if pr := byNode[n.ID]; pr != nil {
			kit.DraftData = pr.draft
			kit.PublishedData = pr.published
		}
		kits = append(kits, kit)
	}
	return kits, nil
}

func contentDataFrom(v VersionRow, values map[int]interface{}) *pubcache.ContentData {
	opts := []pubcache.DataOption{pubcache.WithProperties(values)}
	if v.TemplateID.Valid {
		opts = append(opts, pubcache.WithTemplate(int(v.TemplateID.Int64)))
	}
	return pubcache.NewContentData(v.Name, v.ID, v.VersionDate, v.Published, opts...)
}
