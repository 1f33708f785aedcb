// Package predictor defines the prediction contract served over HTTP and the
// built-in predictors.
//
// A Predictor is loaded once and then shared by every request goroutine, so
// implementations must treat the loaded model as read-only and must not
// mutate the inputs they are given.
package predictor

import (
	"context"
	"fmt"

	"modelserve/pkg/types"
)

// Predictor maps JSON inputs to JSON-compatible outputs.
type Predictor interface {
	PredictJSON(ctx context.Context, input types.JSONDict) (any, error)
	PredictBatchJSON(ctx context.Context, inputs []types.JSONDict) ([]any, error)
}

// single is the subset of Predictor PredictEach needs.
type single interface {
	PredictJSON(ctx context.Context, input types.JSONDict) (any, error)
}

// PredictEach runs PredictJSON for every input in order. The first failure
// fails the whole batch.
func PredictEach(ctx context.Context, p single, inputs []types.JSONDict) ([]any, error) {
	out := make([]any, 0, len(inputs))
	for i, in := range inputs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		res, err := p.PredictJSON(ctx, in)
		if err != nil {
			return nil, fmt.Errorf("instance %d: %w", i, err)
		}
		out = append(out, res)
	}
	return out, nil
}
