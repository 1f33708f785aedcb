// Package registry maps predictor names to factories that build a Predictor
// from a loaded archive.
package registry

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"modelserve/internal/archive"
	"modelserve/internal/device"
	"modelserve/internal/predictor"
)

// Factory builds a predictor from an archive for the selected device.
type Factory func(a *archive.Archive, cudaDevice int) (predictor.Predictor, error)

// Registry holds named predictor factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds a factory. Names are unique.
func (r *Registry) Register(name string, f Factory) error {
	if name == "" || f == nil {
		return fmt.Errorf("register: empty name or nil factory")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.factories[name]; dup {
		return fmt.Errorf("predictor %q already registered", name)
	}
	r.factories[name] = f
	return nil
}

// Names returns the registered names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for n := range r.factories {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// FromArchive builds the named predictor over a.
func (r *Registry) FromArchive(a *archive.Archive, name string, cudaDevice int) (predictor.Predictor, error) {
	r.mu.RLock()
	f, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, unknownPredictorError{name: name, known: r.Names()}
	}
	p, err := f(a, cudaDevice)
	if err != nil {
		return nil, fmt.Errorf("predictor %s: %w", name, err)
	}
	return p, nil
}

type unknownPredictorError struct {
	name  string
	known []string
}

func (e unknownPredictorError) Error() string {
	return fmt.Sprintf("unknown predictor %q (known: %s)", e.name, strings.Join(e.known, ", "))
}

// IsUnknownPredictor reports whether err names an unregistered predictor.
func IsUnknownPredictor(err error) bool {
	_, ok := err.(unknownPredictorError)
	return ok
}

// Builtin predictor names.
const (
	LinearClassifier = "linear_classifier"
	ONNX             = "onnx"
)

// Default returns a registry with the built-in predictors.
func Default() *Registry {
	r := New()
	_ = r.Register(LinearClassifier, newLinear)
	_ = r.Register(ONNX, newONNX)
	return r
}

// newLinear runs on the CPU regardless of the selected device.
func newLinear(a *archive.Archive, _ int) (predictor.Predictor, error) {
	w, err := predictor.LoadLinearWeights(a.WeightsPath)
	if err != nil {
		return nil, err
	}
	return predictor.NewLinear(w, predictor.String(a.Section("model"), "input_field", "features"))
}

func newONNX(a *archive.Archive, cudaDevice int) (predictor.Predictor, error) {
	if cudaDevice != device.CPU {
		return nil, fmt.Errorf("onnx predictor runs on CPU only, got cuda device %d", cudaDevice)
	}
	model := a.Section("model")
	shape, ok := predictor.Ints(model, "input_shape")
	if !ok {
		return nil, fmt.Errorf("model.input_shape must be a list of integers")
	}
	b, err := os.ReadFile(a.WeightsPath)
	if err != nil {
		return nil, err
	}
	return predictor.NewONNX(b, predictor.String(model, "input_field", "input"), shape)
}
