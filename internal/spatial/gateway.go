package spatial

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Querier is the subset of pgx pool operations the gateway needs.
// *pgxpool.Pool satisfies it.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Gateway executes spatial queries against the road-and-fiber dataset.
type Gateway struct {
	db Querier
}

// NewGateway creates a gateway over the given database handle.
func NewGateway(db Querier) *Gateway {
	return &Gateway{db: db}
}

const resolveFranchiseSQL = `
SELECT f.franchise_id
FROM franchises f
WHERE ST_Contains(f.geom, ST_SetSRID(ST_MakePoint($1, $2), 4326))
LIMIT 1`

// ResolveFranchise returns the franchise whose polygon contains the point,
// or "" when the point lies outside every configured zone.
func (g *Gateway) ResolveFranchise(ctx context.Context, lon, lat float64) (string, error) {
	var franchiseID string

	err := g.db.QueryRow(ctx, resolveFranchiseSQL, lon, lat).Scan(&franchiseID)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}

	if err != nil {
		return "", fmt.Errorf("resolve franchise: %w", err)
	}

	return franchiseID, nil
}

const nearestFiberNodeSQL = `
SELECT fn.node_id,
       ST_Distance(fn.geom::geography, ST_SetSRID(ST_MakePoint($2, $3), 4326)::geography) AS distance_m
FROM fiber_nodes fn
WHERE fn.franchise_id = $1
ORDER BY fn.geom <-> ST_SetSRID(ST_MakePoint($2, $3), 4326)
LIMIT 1`

// NearestFiberNode returns the closest fiber node within the franchise,
// ordered by the KNN index with the reported distance computed on the
// geography type. Returns nil when the franchise has no fiber nodes.
func (g *Gateway) NearestFiberNode(ctx context.Context, franchiseID string, lon, lat float64) (*FiberNodeHit, error) {
	var hit FiberNodeHit

	err := g.db.QueryRow(ctx, nearestFiberNodeSQL, franchiseID, lon, lat).Scan(&hit.NodeID, &hit.DistanceMeters)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("nearest fiber node: %w", err)
	}

	return &hit, nil
}

const nearestRoadNodeSQL = `
SELECT rn.node_id
FROM road_nodes rn
WHERE rn.franchise_id = $1
ORDER BY rn.geom <-> ST_SetSRID(ST_MakePoint($2, $3), 4326)
LIMIT 1`

// NearestRoadNode snaps a point to the closest road-graph vertex inside the
// franchise. The boolean reports whether a vertex was found.
func (g *Gateway) NearestRoadNode(ctx context.Context, franchiseID string, lon, lat float64) (int64, bool, error) {
	var nodeID int64

	err := g.db.QueryRow(ctx, nearestRoadNodeSQL, franchiseID, lon, lat).Scan(&nodeID)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}

	if err != nil {
		return 0, false, fmt.Errorf("nearest road node: %w", err)
	}

	return nodeID, true, nil
}

const fiberNodeCoordsSQL = `
SELECT ST_X(fn.geom), ST_Y(fn.geom)
FROM fiber_nodes fn
WHERE fn.node_id = $1`

// FiberNodeCoordinates returns the location of a fiber node, or nil when the
// node is unknown.
func (g *Gateway) FiberNodeCoordinates(ctx context.Context, nodeID string) (*Coordinates, error) {
	var coords Coordinates

	err := g.db.QueryRow(ctx, fiberNodeCoordsSQL, nodeID).Scan(&coords.Lon, &coords.Lat)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("fiber node coordinates: %w", err)
	}

	return &coords, nil
}

const roadNodeCoordsSQL = `
SELECT ST_X(rn.geom), ST_Y(rn.geom)
FROM road_nodes rn
WHERE rn.franchise_id = $1 AND rn.node_id = $2`

// RoadNodeCoordinates returns the location of a road-graph vertex within the
// franchise, or nil when the vertex is unknown.
func (g *Gateway) RoadNodeCoordinates(ctx context.Context, franchiseID string, nodeID int64) (*Coordinates, error) {
	var coords Coordinates

	err := g.db.QueryRow(ctx, roadNodeCoordsSQL, franchiseID, nodeID).Scan(&coords.Lon, &coords.Lat)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("road node coordinates: %w", err)
	}

	return &coords, nil
}

// shortestPathSQL restricts pgr_dijkstra to the franchise's edge subset via a
// format()-quoted inner query, then aggregates the traversed edges into
// distance, cost, edge count, and a merged GeoJSON LineString.
const shortestPathSQL = `
WITH route AS (
    SELECT *
    FROM pgr_dijkstra(
        format(
            'SELECT edge_id AS id, source, target, cost FROM road_edges WHERE franchise_id = %L',
            $1::text
        ),
        $2::bigint,
        $3::bigint,
        directed := false
    )
)
SELECT COALESCE(SUM(e.length_m), 0)::float8 AS distance_m,
       COALESCE(SUM(e.cost), 0)::float8    AS cost_sum,
       COUNT(e.edge_id)::int               AS edge_count,
       ST_AsGeoJSON(ST_LineMerge(ST_Collect(e.geom))) AS geometry
FROM route r
JOIN road_edges e ON e.edge_id = r.edge
WHERE r.edge <> -1`

// ShortestPath computes the undirected shortest path between two road-graph
// vertices, traversing only edges belonging to the franchise. Returns nil
// when the vertices are disconnected within that subset.
func (g *Gateway) ShortestPath(ctx context.Context, franchiseID string, sourceNode, targetNode int64) (*PathAggregate, error) {
	var (
		agg      PathAggregate
		geometry *string
	)

	err := g.db.QueryRow(ctx, shortestPathSQL, franchiseID, sourceNode, targetNode).
		Scan(&agg.DistanceMeters, &agg.CostSum, &agg.EdgeCount, &geometry)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("shortest path: %w", err)
	}

	if agg.EdgeCount == 0 || geometry == nil {
		return nil, nil
	}

	agg.Geometry = json.RawMessage(*geometry)

	return &agg, nil
}
