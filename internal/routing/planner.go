// Package routing computes constrained fiber-drop routes: it resolves the
// consumer's franchise, finds the nearest fiber node, snaps both endpoints to
// the franchise road subgraph, and runs a shortest-path query over it.
package routing

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/Sumatoshi-tech/fiberplan/internal/apperr"
	"github.com/Sumatoshi-tech/fiberplan/internal/spatial"
)

// Classified pipeline failures. Every abort is attributable to a stage.
var (
	// ErrOutsideFranchise reports a consumer point outside all zones.
	ErrOutsideFranchise = apperr.New("outside_franchise",
		"Consumer point is outside configured franchise zones.", http.StatusBadRequest)

	// ErrNoFiberNode reports a franchise without any fiber nodes.
	ErrNoFiberNode = apperr.New("no_fiber_node",
		"No fiber nodes available in resolved franchise.", http.StatusBadRequest)

	// ErrFiberNodeGeometryMissing reports an unresolvable fiber node location.
	ErrFiberNodeGeometryMissing = apperr.New("fiber_node_geometry_missing",
		"Nearest fiber node geometry could not be resolved.", http.StatusInternalServerError)

	// ErrRoadSnapFailed reports a failed snap onto the road subgraph.
	ErrRoadSnapFailed = apperr.New("road_snap_failed",
		"Road-node snapping failed for franchise subgraph.", http.StatusBadRequest)

	// ErrRouteNotFound reports disconnected endpoints within the subgraph.
	ErrRouteNotFound = apperr.New("route_not_found",
		"No route could be computed inside the franchise road subgraph.", http.StatusBadRequest)
)

// Gateway is the spatial query surface the planner depends on.
type Gateway interface {
	ResolveFranchise(ctx context.Context, lon, lat float64) (string, error)
	NearestFiberNode(ctx context.Context, franchiseID string, lon, lat float64) (*spatial.FiberNodeHit, error)
	FiberNodeCoordinates(ctx context.Context, nodeID string) (*spatial.Coordinates, error)
	NearestRoadNode(ctx context.Context, franchiseID string, lon, lat float64) (int64, bool, error)
	RoadNodeCoordinates(ctx context.Context, franchiseID string, nodeID int64) (*spatial.Coordinates, error)
	ShortestPath(ctx context.Context, franchiseID string, sourceNode, targetNode int64) (*spatial.PathAggregate, error)
}

// Result is a computed consumer-to-fiber route.
type Result struct {
	FranchiseID      string          `json:"franchise_id"`
	NearestNodeID    string          `json:"nearest_node_id"`
	SourceRoadNodeID int64           `json:"source_road_node_id"`
	TargetRoadNodeID int64           `json:"target_road_node_id"`
	DistanceMeters   float64         `json:"distance_meters"`
	EstimatedCost    float64         `json:"estimated_cost"`
	EdgeCount        int             `json:"edge_count"`
	RouteGeoJSON     json.RawMessage `json:"route_geojson"`
}

// Planner runs the route pipeline against a spatial gateway.
type Planner struct {
	gw           Gateway
	costPerMeter float64
}

// NewPlanner creates a planner. costPerMeter prices routes whose edges carry
// no deployment cost.
func NewPlanner(gw Gateway, costPerMeter float64) *Planner {
	return &Planner{gw: gw, costPerMeter: costPerMeter}
}

// Route computes the constrained route from a consumer point to its nearest
// fiber node. Pipeline aborts surface as classified [apperr.Error] values;
// database failures are returned wrapped.
func (p *Planner) Route(ctx context.Context, lon, lat float64) (*Result, error) {
	franchiseID, err := p.gw.ResolveFranchise(ctx, lon, lat)
	if err != nil {
		return nil, fmt.Errorf("route pipeline: %w", err)
	}

	if franchiseID == "" {
		return nil, ErrOutsideFranchise
	}

	fiberNode, err := p.gw.NearestFiberNode(ctx, franchiseID, lon, lat)
	if err != nil {
		return nil, fmt.Errorf("route pipeline: %w", err)
	}

	if fiberNode == nil {
		return nil, ErrNoFiberNode
	}

	fiberCoords, err := p.gw.FiberNodeCoordinates(ctx, fiberNode.NodeID)
	if err != nil {
		return nil, fmt.Errorf("route pipeline: %w", err)
	}

	if fiberCoords == nil {
		return nil, ErrFiberNodeGeometryMissing
	}

	sourceNode, sourceOK, err := p.gw.NearestRoadNode(ctx, franchiseID, lon, lat)
	if err != nil {
		return nil, fmt.Errorf("route pipeline: %w", err)
	}

	targetNode, targetOK, err := p.gw.NearestRoadNode(ctx, franchiseID, fiberCoords.Lon, fiberCoords.Lat)
	if err != nil {
		return nil, fmt.Errorf("route pipeline: %w", err)
	}

	if !sourceOK || !targetOK {
		return nil, ErrRoadSnapFailed
	}

	if sourceNode == targetNode {
		return p.degenerateRoute(ctx, franchiseID, fiberNode.NodeID, sourceNode)
	}

	path, err := p.gw.ShortestPath(ctx, franchiseID, sourceNode, targetNode)
	if err != nil {
		return nil, fmt.Errorf("route pipeline: %w", err)
	}

	if path == nil {
		return nil, ErrRouteNotFound
	}

	cost := path.CostSum
	if cost == 0 {
		cost = path.DistanceMeters * p.costPerMeter
	}

	return &Result{
		FranchiseID:      franchiseID,
		NearestNodeID:    fiberNode.NodeID,
		SourceRoadNodeID: sourceNode,
		TargetRoadNodeID: targetNode,
		DistanceMeters:   path.DistanceMeters,
		EstimatedCost:    cost,
		EdgeCount:        path.EdgeCount,
		RouteGeoJSON:     path.Geometry,
	}, nil
}

// degenerateRoute handles both endpoints snapping to the same road vertex:
// a zero-length two-vertex line at that vertex.
func (p *Planner) degenerateRoute(ctx context.Context, franchiseID, fiberNodeID string, roadNode int64) (*Result, error) {
	coords, err := p.gw.RoadNodeCoordinates(ctx, franchiseID, roadNode)
	if err != nil {
		return nil, fmt.Errorf("route pipeline: %w", err)
	}

	if coords == nil {
		return nil, ErrRoadSnapFailed
	}

	line := struct {
		Type        string       `json:"type"`
		Coordinates [][2]float64 `json:"coordinates"`
	}{
		Type: "LineString",
		Coordinates: [][2]float64{
			{coords.Lon, coords.Lat},
			{coords.Lon, coords.Lat},
		},
	}

	geometry, err := json.Marshal(line)
	if err != nil {
		return nil, fmt.Errorf("encode degenerate line: %w", err)
	}

	return &Result{
		FranchiseID:      franchiseID,
		NearestNodeID:    fiberNodeID,
		SourceRoadNodeID: roadNode,
		TargetRoadNodeID: roadNode,
		DistanceMeters:   0,
		EstimatedCost:    0,
		EdgeCount:        0,
		RouteGeoJSON:     geometry,
	}, nil
}
