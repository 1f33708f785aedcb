package predictor

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"modelserve/pkg/types"
)

// LinearWeights is the on-disk format of a linear classifier: one weight row
// and one bias per label.
type LinearWeights struct {
	Labels  []string    `json:"labels"`
	Weights [][]float64 `json:"weights"`
	Bias    []float64   `json:"bias"`
}

// LoadLinearWeights reads LinearWeights from a JSON file.
func LoadLinearWeights(path string) (LinearWeights, error) {
	var w LinearWeights
	b, err := os.ReadFile(path)
	if err != nil {
		return w, err
	}
	if err := json.Unmarshal(b, &w); err != nil {
		return w, fmt.Errorf("parse linear weights: %w", err)
	}
	return w, nil
}

// Linear is a softmax linear classifier over a numeric feature vector.
type Linear struct {
	field  string
	labels []string
	w      *mat.Dense // labels x features
	bias   []float64
}

// NewLinear validates weights and builds the classifier. inputField names the
// request field holding the feature vector.
func NewLinear(w LinearWeights, inputField string) (*Linear, error) {
	k := len(w.Weights)
	if k == 0 {
		return nil, fmt.Errorf("linear classifier needs at least one weight row")
	}
	if len(w.Labels) != k {
		return nil, fmt.Errorf("labels (%d) and weight rows (%d) differ", len(w.Labels), k)
	}
	d := len(w.Weights[0])
	if d == 0 {
		return nil, fmt.Errorf("weight rows are empty")
	}
	data := make([]float64, 0, k*d)
	for i, row := range w.Weights {
		if len(row) != d {
			return nil, fmt.Errorf("weight row %d has %d columns, want %d", i, len(row), d)
		}
		data = append(data, row...)
	}
	bias := w.Bias
	if bias == nil {
		bias = make([]float64, k)
	}
	if len(bias) != k {
		return nil, fmt.Errorf("bias has %d entries, want %d", len(bias), k)
	}
	return &Linear{
		field:  inputField,
		labels: append([]string(nil), w.Labels...),
		w:      mat.NewDense(k, d, data),
		bias:   append([]float64(nil), bias...),
	}, nil
}

// Features returns the expected feature vector length.
func (l *Linear) Features() int {
	_, d := l.w.Dims()
	return d
}

func (l *Linear) PredictJSON(ctx context.Context, input types.JSONDict) (any, error) {
	out, err := l.PredictBatchJSON(ctx, []types.JSONDict{input})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

// PredictBatchJSON scores the whole batch with a single matrix product.
func (l *Linear) PredictBatchJSON(ctx context.Context, inputs []types.JSONDict) ([]any, error) {
	if len(inputs) == 0 {
		return []any{}, nil
	}
	d := l.Features()
	x := mat.NewDense(len(inputs), d, nil)
	for i, in := range inputs {
		v, err := Float64s(in, l.field)
		if err != nil {
			return nil, fmt.Errorf("instance %d: %w", i, err)
		}
		if len(v) != d {
			return nil, fmt.Errorf("instance %d: %w", i, inputErrorf(l.field, "expected %d features, got %d", d, len(v)))
		}
		x.SetRow(i, v)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var z mat.Dense
	z.Mul(x, l.w.T())
	out := make([]any, len(inputs))
	for i := range inputs {
		logits := append([]float64(nil), z.RawRowView(i)...)
		floats.Add(logits, l.bias)
		probs := softmax(logits)
		out[i] = map[string]any{
			"logits":              logits,
			"class_probabilities": probs,
			"label":               l.labels[floats.MaxIdx(probs)],
		}
	}
	return out, nil
}

func softmax(logits []float64) []float64 {
	probs := make([]float64, len(logits))
	top := floats.Max(logits)
	for i, v := range logits {
		probs[i] = math.Exp(v - top)
	}
	floats.Scale(1/floats.Sum(probs), probs)
	return probs
}
