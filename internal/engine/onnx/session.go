// Package onnx runs sequence-classification models through ONNX Runtime.
package onnx

import (
	"context"
	"fmt"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/crimson-sun/mailclass/internal/engine/tokenizer"
)

// DefaultLibrary is handed to dlopen when no explicit runtime path is set,
// so the usual LD_LIBRARY_PATH / DYLD_LIBRARY_PATH search applies.
const DefaultLibrary = "libonnxruntime.so"

// ortEnv manages global ONNX Runtime initialization (process-wide singleton).
var ortEnv struct {
	once sync.Once
	err  error
}

// initRuntime initializes the ONNX Runtime environment. Only the first call
// has any effect; later calls return the first result.
func initRuntime(libPath string) error {
	ortEnv.once.Do(func() {
		if libPath == "" {
			libPath = DefaultLibrary
		}
		ort.SetSharedLibraryPath(libPath)
		ortEnv.err = ort.InitializeEnvironment()
	})
	return ortEnv.err
}

// Options configures session creation.
type Options struct {
	// RuntimeLibrary is the path to the ONNX Runtime shared library.
	RuntimeLibrary string
	// IntraOpThreads bounds per-operator parallelism. 0 keeps the ORT default.
	IntraOpThreads int
}

// Session wraps a DynamicAdvancedSession for BERT-style classification
// models. Run on a DynamicAdvancedSession is safe for concurrent use, and
// Session holds no other mutable state.
type Session struct {
	session       *ort.DynamicAdvancedSession
	inputNames    []string
	outputName    string
	numLabels     int64
	useTokenTypes bool
}

// NewSession loads the model and validates its tensor names and shapes.
func NewSession(modelPath string, opts Options) (*Session, error) {
	if err := initRuntime(opts.RuntimeLibrary); err != nil {
		return nil, fmt.Errorf("onnx: failed to initialize runtime: %w", err)
	}

	inputs, outputs, err := ort.GetInputOutputInfo(modelPath)
	if err != nil {
		return nil, fmt.Errorf("onnx: failed to read model info: %w", err)
	}

	inputNames, useTokenTypes, err := validateInputs(inputs)
	if err != nil {
		return nil, err
	}

	outputName, numLabels, err := validateOutputs(outputs)
	if err != nil {
		return nil, err
	}

	sessOpts, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("onnx: failed to create session options: %w", err)
	}
	defer sessOpts.Destroy()
	if opts.IntraOpThreads > 0 {
		if err := sessOpts.SetIntraOpNumThreads(opts.IntraOpThreads); err != nil {
			return nil, fmt.Errorf("onnx: set intra-op threads: %w", err)
		}
	}
	if err := sessOpts.SetInterOpNumThreads(1); err != nil {
		return nil, fmt.Errorf("onnx: set inter-op threads: %w", err)
	}

	session, err := ort.NewDynamicAdvancedSession(
		modelPath,
		inputNames,
		[]string{outputName},
		sessOpts,
	)
	if err != nil {
		return nil, fmt.Errorf("onnx: failed to create session: %w", err)
	}

	return &Session{
		session:       session,
		inputNames:    inputNames,
		outputName:    outputName,
		numLabels:     numLabels,
		useTokenTypes: useTokenTypes,
	}, nil
}

// validateInputs checks for the BERT-style inputs and returns them in the
// order Logits feeds them. DistilBERT-style exports have no token_type_ids.
func validateInputs(inputs []ort.InputOutputInfo) ([]string, bool, error) {
	nameSet := make(map[string]bool, len(inputs))
	for _, inp := range inputs {
		nameSet[inp.Name] = true
	}
	names := []string{"input_ids", "attention_mask"}
	for _, name := range names {
		if !nameSet[name] {
			return nil, false, fmt.Errorf("onnx: model missing required input %q", name)
		}
	}
	if nameSet["token_type_ids"] {
		names = append(names, "token_type_ids")
		return names, true, nil
	}
	return names, false, nil
}

// validateOutputs expects a logits tensor of shape [batch, numLabels].
func validateOutputs(outputs []ort.InputOutputInfo) (string, int64, error) {
	if len(outputs) == 0 {
		return "", 0, fmt.Errorf("onnx: model has no outputs")
	}
	out := outputs[0]
	for _, o := range outputs {
		if o.Name == "logits" {
			out = o
			break
		}
	}
	dims := out.Dimensions
	if len(dims) != 2 {
		return "", 0, fmt.Errorf("onnx: expected 2D logits tensor, got %v", dims)
	}
	if dims[1] <= 0 {
		return "", 0, fmt.Errorf("onnx: logits width is dynamic or zero (%v)", dims)
	}
	return out.Name, dims[1], nil
}

// NumLabels returns the width of the logits vector.
func (s *Session) NumLabels() int {
	return int(s.numLabels)
}

// Logits runs one forward pass and returns row-major [b.Size * NumLabels]
// logits. Tensors are allocated per call and released before returning.
func (s *Session) Logits(ctx context.Context, b tokenizer.Batch) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	shape := ort.NewShape(b.Size, b.SeqLen)

	tIDs, err := ort.NewTensor(shape, b.InputIDs)
	if err != nil {
		return nil, fmt.Errorf("onnx: failed to create input_ids tensor: %w", err)
	}
	defer tIDs.Destroy()

	tMask, err := ort.NewTensor(shape, b.AttentionMask)
	if err != nil {
		return nil, fmt.Errorf("onnx: failed to create attention_mask tensor: %w", err)
	}
	defer tMask.Destroy()

	inputs := []ort.Value{tIDs, tMask}
	if s.useTokenTypes {
		tTypes, err := ort.NewTensor(shape, b.TokenTypeIDs)
		if err != nil {
			return nil, fmt.Errorf("onnx: failed to create token_type_ids tensor: %w", err)
		}
		defer tTypes.Destroy()
		inputs = append(inputs, tTypes)
	}

	tOut, err := ort.NewEmptyTensor[float32](ort.NewShape(b.Size, s.numLabels))
	if err != nil {
		return nil, fmt.Errorf("onnx: failed to create output tensor: %w", err)
	}
	defer tOut.Destroy()

	if err := s.session.Run(inputs, []ort.Value{tOut}); err != nil {
		return nil, fmt.Errorf("onnx: inference failed: %w", err)
	}

	// Copy data out before the tensor is destroyed.
	src := tOut.GetData()
	result := make([]float32, len(src))
	copy(result, src)
	return result, nil
}

// Close releases the ONNX session resources.
func (s *Session) Close() error {
	return s.session.Destroy()
}
