package batch_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/fiberplan/internal/batch"
)

func TestChunkSizes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		totalPoints int
		chunkSize   int
		want        []int
	}{
		{name: "exact multiple", totalPoints: 3000, chunkSize: 1000, want: []int{1000, 1000, 1000}},
		{name: "remainder", totalPoints: 2500, chunkSize: 1000, want: []int{1000, 1000, 500}},
		{name: "single partial chunk", totalPoints: 42, chunkSize: 1000, want: []int{42}},
		{name: "zero points", totalPoints: 0, chunkSize: 1000, want: nil},
		{name: "invalid chunk size", totalPoints: 10, chunkSize: 0, want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.want, batch.ChunkSizes(tt.totalPoints, tt.chunkSize))
		})
	}
}

func TestSplitPoints(t *testing.T) {
	t.Parallel()

	points := make([]batch.Point, 25)
	for i := range points {
		points[i] = batch.Point{ID: int64(i)}
	}

	chunks := batch.SplitPoints(points, 10)
	require.Len(t, chunks, 3)
	assert.Len(t, chunks[0], 10)
	assert.Len(t, chunks[1], 10)
	assert.Len(t, chunks[2], 5)
	assert.Equal(t, int64(0), chunks[0][0].ID)
	assert.Equal(t, int64(24), chunks[2][4].ID)
}

func TestMockProcessorReportsOK(t *testing.T) {
	t.Parallel()

	proc := batch.NewMockProcessor(0)

	result, err := proc.ProcessChunk(context.Background(), make([]batch.Point, 7), 3)
	require.NoError(t, err)

	assert.Equal(t, 3, result.ChunkIndex)
	assert.Equal(t, 7, result.ProcessedPoints)
	assert.Equal(t, batch.ChunkOK, result.Status)
}

func TestMockProcessorHonorsCancellation(t *testing.T) {
	t.Parallel()

	proc := batch.NewMockProcessor(time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := proc.ProcessChunk(ctx, make([]batch.Point, 1), 0)
	require.ErrorIs(t, err, context.Canceled)
}

func TestRouteProcessorCountsUnroutablePointsAsProcessed(t *testing.T) {
	t.Parallel()

	pipelineErr := errors.New("outside franchise")
	calls := 0

	proc := batch.NewRouteProcessor(
		func(_ context.Context, _, _ float64) error {
			calls++
			if calls%2 == 0 {
				return pipelineErr
			}

			return nil
		},
		func(err error) bool { return errors.Is(err, pipelineErr) },
	)

	result, err := proc.ProcessChunk(context.Background(), make([]batch.Point, 6), 0)
	require.NoError(t, err)

	assert.Equal(t, 6, result.ProcessedPoints)
	assert.Equal(t, batch.ChunkOK, result.Status)
	assert.Equal(t, 6, calls)
}

func TestRouteProcessorFailsOnInfrastructureError(t *testing.T) {
	t.Parallel()

	infraErr := errors.New("connection refused")

	proc := batch.NewRouteProcessor(
		func(_ context.Context, _, _ float64) error { return infraErr },
		func(_ error) bool { return false },
	)

	_, err := proc.ProcessChunk(context.Background(), make([]batch.Point, 3), 1)
	require.ErrorIs(t, err, infraErr)
}
