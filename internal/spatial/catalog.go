package spatial

import (
	"context"
	"fmt"
)

const catalogSummarySQL = `
SELECT (SELECT COUNT(*) FROM districts),
       (SELECT COUNT(*) FROM franchises),
       (SELECT COUNT(*) FROM fiber_nodes),
       (SELECT COUNT(*) FROM road_nodes),
       (SELECT COUNT(*) FROM road_edges)`

// Summary returns row counts for every dataset table.
func (g *Gateway) Summary(ctx context.Context) (*CatalogSummary, error) {
	var summary CatalogSummary

	err := g.db.QueryRow(ctx, catalogSummarySQL).Scan(
		&summary.Districts,
		&summary.Franchises,
		&summary.FiberNodes,
		&summary.RoadNodes,
		&summary.RoadEdges,
	)
	if err != nil {
		return nil, fmt.Errorf("catalog summary: %w", err)
	}

	return &summary, nil
}

const districtsSQL = `
SELECT d.district_id,
       d.name,
       COUNT(f.franchise_id)::int AS franchises
FROM districts d
LEFT JOIN franchises f ON f.district_id = d.district_id
GROUP BY d.district_id, d.name
ORDER BY d.district_id`

// Districts lists every district with its franchise count.
func (g *Gateway) Districts(ctx context.Context) ([]District, error) {
	rows, err := g.db.Query(ctx, districtsSQL)
	if err != nil {
		return nil, fmt.Errorf("list districts: %w", err)
	}
	defer rows.Close()

	var districts []District

	for rows.Next() {
		var district District

		scanErr := rows.Scan(&district.DistrictID, &district.Name, &district.Franchises)
		if scanErr != nil {
			return nil, fmt.Errorf("scan district row: %w", scanErr)
		}

		districts = append(districts, district)
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("iterate district rows: %w", rowsErr)
	}

	return districts, nil
}

const franchisesSQL = `
SELECT f.franchise_id,
       f.district_id,
       ST_Area(f.geom::geography) / 1000000.0 AS area_sq_km,
       COUNT(fn.node_id)::int                 AS fiber_nodes
FROM franchises f
LEFT JOIN fiber_nodes fn ON fn.franchise_id = f.franchise_id
WHERE ($1::text IS NULL OR f.district_id = $1)
GROUP BY f.franchise_id, f.district_id, f.geom
ORDER BY f.franchise_id`

// Franchises lists franchise zones with their area and fiber-node count,
// optionally filtered to a single district.
func (g *Gateway) Franchises(ctx context.Context, districtID string) ([]Franchise, error) {
	var filter *string
	if districtID != "" {
		filter = &districtID
	}

	rows, err := g.db.Query(ctx, franchisesSQL, filter)
	if err != nil {
		return nil, fmt.Errorf("list franchises: %w", err)
	}
	defer rows.Close()

	var franchises []Franchise

	for rows.Next() {
		var franchise Franchise

		scanErr := rows.Scan(
			&franchise.FranchiseID,
			&franchise.DistrictID,
			&franchise.AreaSqKm,
			&franchise.FiberNodes,
		)
		if scanErr != nil {
			return nil, fmt.Errorf("scan franchise row: %w", scanErr)
		}

		franchises = append(franchises, franchise)
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("iterate franchise rows: %w", rowsErr)
	}

	return franchises, nil
}
