// Package spatial queries the PostGIS/pgRouting road-and-fiber model:
// franchise polygon resolution, nearest-node lookups, and constrained
// shortest paths over per-franchise edge subsets.
package spatial

import "encoding/json"

// Coordinates is a WGS84 longitude/latitude pair.
type Coordinates struct {
	Lon float64 `json:"lon"`
	Lat float64 `json:"lat"`
}

// FiberNodeHit is a nearest-fiber-node lookup result.
type FiberNodeHit struct {
	// NodeID identifies the fiber aggregation node.
	NodeID string `json:"node_id"`

	// DistanceMeters is the geodesic distance from the query point.
	DistanceMeters float64 `json:"distance_m"`
}

// PathAggregate summarizes a shortest-path computation over the road graph.
type PathAggregate struct {
	// DistanceMeters is the sum of traversed edge lengths.
	DistanceMeters float64

	// CostSum is the sum of traversed edge costs. Zero when the edge
	// cost column carries no deployment pricing.
	CostSum float64

	// EdgeCount is the number of traversed edges.
	EdgeCount int

	// Geometry is the merged route as a GeoJSON LineString.
	Geometry json.RawMessage
}

// CatalogSummary describes the loaded spatial dataset.
type CatalogSummary struct {
	Districts  int `json:"districts"`
	Franchises int `json:"franchises"`
	FiberNodes int `json:"fiber_nodes"`
	RoadNodes  int `json:"road_nodes"`
	RoadEdges  int `json:"road_edges"`
}

// District is a catalog row for an administrative district.
type District struct {
	DistrictID string `json:"district_id"`
	Name       string `json:"name"`
	Franchises int    `json:"franchises"`
}

// Franchise is a catalog row for a franchise service zone.
type Franchise struct {
	FranchiseID string  `json:"franchise_id"`
	DistrictID  string  `json:"district_id"`
	AreaSqKm    float64 `json:"area_sq_km"`
	FiberNodes  int     `json:"fiber_nodes"`
}

// HealthReport describes database and spatial-extension availability.
type HealthReport struct {
	DatabaseOK  bool `json:"database_ok"`
	PostGISOK   bool `json:"postgis_ok"`
	PgRoutingOK bool `json:"pgrouting_ok"`
}

// Healthy reports whether every dependency check passed.
func (hr HealthReport) Healthy() bool {
	return hr.DatabaseOK && hr.PostGISOK && hr.PgRoutingOK
}
