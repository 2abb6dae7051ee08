// Package pose runs single-subject pose estimation on individual frames.
// Each frame is processed statelessly: decode, resize to the model input
// resolution, one forward pass, keypoint extraction, annotation.
package pose

import (
	"errors"
	"fmt"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/aidelabs/aide/ml"
	"github.com/aidelabs/aide/vision"
)

const (
	// InputSize is the fixed square model input resolution.
	InputSize = 640

	// NumKeypoints is the number of anatomical landmarks per detection.
	NumKeypoints = 17

	// BoxConfidenceThreshold rejects frames with no confident subject.
	BoxConfidenceThreshold = 0.25

	// KeypointConfidenceThreshold gates which keypoints are drawn.
	KeypointConfidenceThreshold = 0.5
)

// ErrNotReady is returned while the pose model has not finished loading.
// Callers fail fast rather than block on the load.
var ErrNotReady = errors.New("pose model not ready")

// Model wraps the loaded pose estimation session.
type Model struct {
	path        string
	session     *ort.DynamicAdvancedSession
	inputName   string
	outputNames []string
}

// Load loads the pose model from a local ONNX file.
func Load(path string) (*Model, error) {
	if err := ml.InitRuntime(); err != nil {
		return nil, fmt.Errorf("onnxruntime init: %w", err)
	}

	inputs, outputs, err := ort.GetInputOutputInfo(path)
	if err != nil {
		return nil, fmt.Errorf("read pose model metadata: %w", err)
	}
	if len(inputs) != 1 {
		return nil, fmt.Errorf("pose model has %d inputs, want 1", len(inputs))
	}

	inputNames := []string{inputs[0].Name}
	outputNames := make([]string, len(outputs))
	for i, out := range outputs {
		outputNames[i] = out.Name
	}

	session, err := ort.NewDynamicAdvancedSession(path, inputNames, outputNames, nil)
	if err != nil {
		return nil, fmt.Errorf("create pose session: %w", err)
	}

	return &Model{
		path:        path,
		session:     session,
		inputName:   inputs[0].Name,
		outputNames: outputNames,
	}, nil
}

// Ready reports whether the model can serve frames.
func (m *Model) Ready() bool {
	return m != nil && m.session != nil
}

// Path returns the model file path.
func (m *Model) Path() string {
	if m == nil {
		return ""
	}
	return m.path
}

// Close releases the model session.
func (m *Model) Close() error {
	if m == nil || m.session == nil {
		return nil
	}
	return m.session.Destroy()
}

// Process runs the full frame pipeline: decode, preprocess, infer,
// postprocess, annotate, JPEG encode. The frame tensor and model outputs
// are destroyed before return on every path.
func (m *Model) Process(frame []byte) ([]byte, error) {
	if !m.Ready() {
		return nil, ErrNotReady
	}

	img, err := vision.Decode(frame)
	if err != nil {
		return nil, err
	}

	resized, err := vision.Resize(img, InputSize, InputSize)
	if err != nil {
		return nil, err
	}
	chw := vision.ToCHW(resized, vision.NoNormMean, vision.NoNormStd)

	input, err := ort.NewTensor(ort.NewShape(1, 3, InputSize, InputSize), chw)
	if err != nil {
		return nil, fmt.Errorf("frame tensor: %w", err)
	}
	defer input.Destroy()

	outputs := make([]ort.Value, len(m.outputNames))
	if err := m.session.Run([]ort.Value{input}, outputs); err != nil {
		return nil, fmt.Errorf("pose forward pass: %w", err)
	}
	defer func() {
		for _, o := range outputs {
			if o != nil {
				o.Destroy()
			}
		}
	}()

	raw, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, errors.New("pose output is not float32")
	}

	shape := raw.GetShape()
	if len(shape) != 3 {
		return nil, fmt.Errorf("unexpected pose output shape %v", shape)
	}

	det, found := BestDetection(raw.GetData(), int(shape[1]), int(shape[2]), img.Width, img.Height)
	if found {
		Annotate(img, det)
	}

	return vision.EncodeJPEG(img)
}
