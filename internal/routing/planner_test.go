package routing_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/fiberplan/internal/routing"
	"github.com/Sumatoshi-tech/fiberplan/internal/spatial"
)

// fakeGateway scripts spatial lookups for pipeline tests.
type fakeGateway struct {
	franchiseID string
	fiberHit    *spatial.FiberNodeHit
	fiberCoords *spatial.Coordinates
	roadNodes   map[spatial.Coordinates]int64
	roadCoords  *spatial.Coordinates
	path        *spatial.PathAggregate

	failResolve error
}

func (fg *fakeGateway) ResolveFranchise(_ context.Context, _, _ float64) (string, error) {
	return fg.franchiseID, fg.failResolve
}

func (fg *fakeGateway) NearestFiberNode(_ context.Context, _ string, _, _ float64) (*spatial.FiberNodeHit, error) {
	return fg.fiberHit, nil
}

func (fg *fakeGateway) FiberNodeCoordinates(_ context.Context, _ string) (*spatial.Coordinates, error) {
	return fg.fiberCoords, nil
}

func (fg *fakeGateway) NearestRoadNode(_ context.Context, _ string, lon, lat float64) (int64, bool, error) {
	node, ok := fg.roadNodes[spatial.Coordinates{Lon: lon, Lat: lat}]

	return node, ok, nil
}

func (fg *fakeGateway) RoadNodeCoordinates(_ context.Context, _ string, _ int64) (*spatial.Coordinates, error) {
	return fg.roadCoords, nil
}

func (fg *fakeGateway) ShortestPath(_ context.Context, _ string, _, _ int64) (*spatial.PathAggregate, error) {
	return fg.path, nil
}

func connectedGateway() *fakeGateway {
	return &fakeGateway{
		franchiseID: "fr-001",
		fiberHit:    &spatial.FiberNodeHit{NodeID: "fn-010", DistanceMeters: 812.5},
		fiberCoords: &spatial.Coordinates{Lon: 32.86, Lat: 39.94},
		roadNodes: map[spatial.Coordinates]int64{
			{Lon: 32.85, Lat: 39.93}: 101,
			{Lon: 32.86, Lat: 39.94}: 205,
		},
		path: &spatial.PathAggregate{
			DistanceMeters: 1350.0,
			CostSum:        0,
			EdgeCount:      7,
			Geometry:       json.RawMessage(`{"type":"LineString","coordinates":[[32.85,39.93],[32.86,39.94]]}`),
		},
	}
}

func TestPlannerRouteSuccess(t *testing.T) {
	t.Parallel()

	gw := connectedGateway()
	planner := routing.NewPlanner(gw, 700.0)

	result, err := planner.Route(context.Background(), 32.85, 39.93)
	require.NoError(t, err)

	assert.Equal(t, "fr-001", result.FranchiseID)
	assert.Equal(t, "fn-010", result.NearestNodeID)
	assert.Equal(t, int64(101), result.SourceRoadNodeID)
	assert.Equal(t, int64(205), result.TargetRoadNodeID)
	assert.InDelta(t, 1350.0, result.DistanceMeters, 1e-9)
	assert.Equal(t, 7, result.EdgeCount)
	assert.NotEmpty(t, result.RouteGeoJSON)
}

func TestPlannerRouteCostFallback(t *testing.T) {
	t.Parallel()

	gw := connectedGateway()
	planner := routing.NewPlanner(gw, 700.0)

	result, err := planner.Route(context.Background(), 32.85, 39.93)
	require.NoError(t, err)

	// Edge costs absent: priced from distance at the configured rate.
	assert.InDelta(t, 1350.0*700.0, result.EstimatedCost, 1e-6)
}

func TestPlannerRouteEdgeCostPreferred(t *testing.T) {
	t.Parallel()

	gw := connectedGateway()
	gw.path.CostSum = 98765.0
	planner := routing.NewPlanner(gw, 700.0)

	result, err := planner.Route(context.Background(), 32.85, 39.93)
	require.NoError(t, err)

	assert.InDelta(t, 98765.0, result.EstimatedCost, 1e-9)
}

func TestPlannerRouteOutsideFranchise(t *testing.T) {
	t.Parallel()

	gw := connectedGateway()
	gw.franchiseID = ""
	planner := routing.NewPlanner(gw, 700.0)

	_, err := planner.Route(context.Background(), 0, 0)
	require.ErrorIs(t, err, routing.ErrOutsideFranchise)
}

func TestPlannerRouteNoFiberNode(t *testing.T) {
	t.Parallel()

	gw := connectedGateway()
	gw.fiberHit = nil
	planner := routing.NewPlanner(gw, 700.0)

	_, err := planner.Route(context.Background(), 32.85, 39.93)
	require.ErrorIs(t, err, routing.ErrNoFiberNode)
}

func TestPlannerRouteFiberGeometryMissing(t *testing.T) {
	t.Parallel()

	gw := connectedGateway()
	gw.fiberCoords = nil
	planner := routing.NewPlanner(gw, 700.0)

	_, err := planner.Route(context.Background(), 32.85, 39.93)
	require.ErrorIs(t, err, routing.ErrFiberNodeGeometryMissing)
}

func TestPlannerRouteSnapFailed(t *testing.T) {
	t.Parallel()

	gw := connectedGateway()
	gw.roadNodes = map[spatial.Coordinates]int64{}
	planner := routing.NewPlanner(gw, 700.0)

	_, err := planner.Route(context.Background(), 32.85, 39.93)
	require.ErrorIs(t, err, routing.ErrRoadSnapFailed)
}

func TestPlannerRouteNotFound(t *testing.T) {
	t.Parallel()

	gw := connectedGateway()
	gw.path = nil
	planner := routing.NewPlanner(gw, 700.0)

	_, err := planner.Route(context.Background(), 32.85, 39.93)
	require.ErrorIs(t, err, routing.ErrRouteNotFound)
}

func TestPlannerRouteDegenerate(t *testing.T) {
	t.Parallel()

	gw := connectedGateway()
	// Both endpoints snap to the same vertex.
	gw.roadNodes = map[spatial.Coordinates]int64{
		{Lon: 32.85, Lat: 39.93}: 101,
		{Lon: 32.86, Lat: 39.94}: 101,
	}
	gw.roadCoords = &spatial.Coordinates{Lon: 32.851, Lat: 39.931}
	planner := routing.NewPlanner(gw, 700.0)

	result, err := planner.Route(context.Background(), 32.85, 39.93)
	require.NoError(t, err)

	assert.Equal(t, int64(101), result.SourceRoadNodeID)
	assert.Equal(t, int64(101), result.TargetRoadNodeID)
	assert.Zero(t, result.DistanceMeters)
	assert.Zero(t, result.EstimatedCost)
	assert.Zero(t, result.EdgeCount)

	var line struct {
		Type        string       `json:"type"`
		Coordinates [][2]float64 `json:"coordinates"`
	}
	require.NoError(t, json.Unmarshal(result.RouteGeoJSON, &line))
	assert.Equal(t, "LineString", line.Type)
	require.Len(t, line.Coordinates, 2)
	assert.Equal(t, line.Coordinates[0], line.Coordinates[1])
}

func TestPlannerRouteGatewayFailure(t *testing.T) {
	t.Parallel()

	gw := connectedGateway()
	gw.failResolve = errors.New("connection refused")
	planner := routing.NewPlanner(gw, 700.0)

	_, err := planner.Route(context.Background(), 32.85, 39.93)
	require.Error(t, err)
	assert.NotErrorIs(t, err, routing.ErrOutsideFranchise)
}
