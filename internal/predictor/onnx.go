package predictor

import (
	"context"
	"fmt"
	"sync"

	onnx "github.com/owulveryck/onnx-go"
	"github.com/owulveryck/onnx-go/backend/x/gorgonnx"
	"gorgonia.org/tensor"

	"modelserve/pkg/types"
)

// ONNX runs an ONNX graph on the CPU. The graph holds its tensors in place, so
// executions are serialized.
type ONNX struct {
	field string
	shape []int

	mu      sync.Mutex
	backend *gorgonnx.Graph
	model   *onnx.Model
}

// NewONNX decodes an ONNX model. inputField names the request field holding
// the flattened input, shape is the tensor shape it is reshaped to.
func NewONNX(model []byte, inputField string, shape []int) (*ONNX, error) {
	if len(shape) == 0 {
		return nil, fmt.Errorf("onnx predictor needs an input_shape")
	}
	for _, d := range shape {
		if d <= 0 {
			return nil, fmt.Errorf("invalid input_shape %v", shape)
		}
	}
	backend := gorgonnx.NewGraph()
	m := onnx.NewModel(backend)
	if err := m.UnmarshalBinary(model); err != nil {
		return nil, fmt.Errorf("decode onnx model: %w", err)
	}
	return &ONNX{field: inputField, shape: append([]int(nil), shape...), backend: backend, model: m}, nil
}

func (o *ONNX) PredictJSON(ctx context.Context, input types.JSONDict) (any, error) {
	t, err := inputTensor(input, o.field, o.shape)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if err := o.model.SetInput(0, t); err != nil {
		return nil, fmt.Errorf("set input: %w", err)
	}
	if err := o.backend.Run(); err != nil {
		return nil, fmt.Errorf("run graph: %w", err)
	}
	outs, err := o.model.GetOutputTensors()
	if err != nil {
		return nil, fmt.Errorf("read outputs: %w", err)
	}
	values := make([][]float64, 0, len(outs))
	shapes := make([][]int, 0, len(outs))
	for _, out := range outs {
		v, err := tensorValues(out)
		if err != nil {
			return nil, err
		}
		values = append(values, v)
		shapes = append(shapes, append([]int(nil), out.Shape()...))
	}
	return map[string]any{"outputs": values, "shapes": shapes}, nil
}

func (o *ONNX) PredictBatchJSON(ctx context.Context, inputs []types.JSONDict) ([]any, error) {
	return PredictEach(ctx, o, inputs)
}

// inputTensor builds a float32 tensor of the given shape from input[field].
func inputTensor(input types.JSONDict, field string, shape []int) (tensor.Tensor, error) {
	xs, err := Float64s(input, field)
	if err != nil {
		return nil, err
	}
	size := 1
	for _, d := range shape {
		size *= d
	}
	if len(xs) != size {
		return nil, inputErrorf(field, "expected %d values for shape %v, got %d", size, shape, len(xs))
	}
	backing := make([]float32, size)
	for i, x := range xs {
		backing[i] = float32(x)
	}
	return tensor.New(tensor.WithShape(shape...), tensor.WithBacking(backing)), nil
}

func tensorValues(t tensor.Tensor) ([]float64, error) {
	switch data := t.Data().(type) {
	case []float32:
		out := make([]float64, len(data))
		for i, v := range data {
			out[i] = float64(v)
		}
		return out, nil
	case []float64:
		return append([]float64(nil), data...), nil
	case float32:
		return []float64{float64(data)}, nil
	case float64:
		return []float64{data}, nil
	default:
		return nil, fmt.Errorf("unsupported output tensor type %T", data)
	}
}
