package batch

import (
	"context"
	"fmt"
	"time"
)

// SecureMaxPoints is the hard cap on points per upload, enforced after
// schema validation.
const SecureMaxPoints = 100_000

// ChunkSizes splits totalPoints into runs of chunkSize, the last run holding
// the remainder. Returns nil for a non-positive total.
func ChunkSizes(totalPoints, chunkSize int) []int {
	if totalPoints <= 0 || chunkSize <= 0 {
		return nil
	}

	full := totalPoints / chunkSize
	remainder := totalPoints % chunkSize

	sizes := make([]int, 0, full+1)
	for range full {
		sizes = append(sizes, chunkSize)
	}

	if remainder > 0 {
		sizes = append(sizes, remainder)
	}

	return sizes
}

// SplitPoints slices points into consecutive chunks of at most chunkSize.
// The chunks share the backing array of points.
func SplitPoints(points []Point, chunkSize int) [][]Point {
	if len(points) == 0 || chunkSize <= 0 {
		return nil
	}

	chunks := make([][]Point, 0, (len(points)+chunkSize-1)/chunkSize)
	for start := 0; start < len(points); start += chunkSize {
		end := min(start+chunkSize, len(points))
		chunks = append(chunks, points[start:end])
	}

	return chunks
}

// Processor computes one chunk of a batch job. Implementations must honor
// ctx cancellation: the driver imposes the per-chunk timeout through it.
type Processor interface {
	ProcessChunk(ctx context.Context, chunk []Point, chunkIndex int) (ChunkResult, error)
}

// MockProcessor simulates chunk work with a fixed delay. It stands in for
// the routing engine in load tests and default deployments.
type MockProcessor struct {
	delay time.Duration
}

// NewMockProcessor creates a mock processor with the given simulated delay.
func NewMockProcessor(delay time.Duration) *MockProcessor {
	return &MockProcessor{delay: delay}
}

// ProcessChunk sleeps for the configured delay and reports success.
func (mp *MockProcessor) ProcessChunk(ctx context.Context, chunk []Point, chunkIndex int) (ChunkResult, error) {
	if mp.delay > 0 {
		timer := time.NewTimer(mp.delay)
		defer timer.Stop()

		select {
		case <-timer.C:
		case <-ctx.Done():
			return ChunkResult{}, fmt.Errorf("mock processing: %w", ctx.Err())
		}
	}

	return ChunkResult{
		ChunkIndex:      chunkIndex,
		ProcessedPoints: len(chunk),
		Status:          ChunkOK,
	}, nil
}

// RouteProcessor runs the route pipeline for every point in a chunk. Points
// that cannot be routed (outside franchise, no fiber coverage, disconnected
// subgraph) do not fail the chunk; only infrastructure errors do.
type RouteProcessor struct {
	route      func(ctx context.Context, lon, lat float64) error
	isPipeline func(err error) bool
}

// NewRouteProcessor creates a processor backed by the given route function.
// isPipeline classifies errors as per-point pipeline aborts rather than
// infrastructure failures.
func NewRouteProcessor(route func(ctx context.Context, lon, lat float64) error, isPipeline func(err error) bool) *RouteProcessor {
	return &RouteProcessor{route: route, isPipeline: isPipeline}
}

// ProcessChunk routes every point in the chunk. The result counts points
// evaluated; an infrastructure error aborts the chunk.
func (rp *RouteProcessor) ProcessChunk(ctx context.Context, chunk []Point, chunkIndex int) (ChunkResult, error) {
	for _, point := range chunk {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ChunkResult{}, fmt.Errorf("route chunk %d: %w", chunkIndex, ctxErr)
		}

		err := rp.route(ctx, point.Lon, point.Lat)
		if err != nil && !rp.isPipeline(err) {
			return ChunkResult{}, fmt.Errorf("route chunk %d point %d: %w", chunkIndex, point.ID, err)
		}
	}

	return ChunkResult{
		ChunkIndex:      chunkIndex,
		ProcessedPoints: len(chunk),
		Status:          ChunkOK,
	}, nil
}
