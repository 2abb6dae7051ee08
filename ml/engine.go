package ml

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/sugarme/tokenizer"
	"github.com/sugarme/tokenizer/pretrained"
	ort "github.com/yalue/onnxruntime_go"

	"github.com/aidelabs/aide/api"
	"github.com/aidelabs/aide/envconfig"
	"github.com/aidelabs/aide/vision"
)

// Model input names the engine knows how to build tensors for.
const (
	inputIDs    = "input_ids"
	pixelValues = "pixel_values"
	audioValues = "audio_values"
)

// Runner is the generation capability the server depends on. Engine is the
// production implementation; tests substitute fakes.
type Runner interface {
	// BuildInputs constructs the model input tensors for one session. The
	// caller owns the returned set and must Release it on every exit path.
	BuildInputs(prompt string, img *vision.Image, samples []float32) (*InputSet, error)

	// Generate runs greedy decoding over the input set, invoking fn once
	// per produced text fragment in token order. It checks ctx between
	// steps; cancellation is cooperative.
	Generate(ctx context.Context, inputs *InputSet, fn func(fragment string)) error

	// Info describes the loaded model.
	Info() Info
}

// Info describes a loaded engine for the introspection endpoints.
type Info struct {
	ModelPath    string
	VocabSize    int
	ImageSize    int
	MaxNewTokens int
}

// Engine runs the vision-language model over ONNX Runtime.
type Engine struct {
	modelPath   string
	tk          *tokenizer.Tokenizer
	session     *ort.DynamicAdvancedSession
	inputNames  []string
	outputNames []string

	vocabSize    int
	imageSize    int
	eos          map[int64]bool
	maxNewTokens int
}

var (
	runtimeInitOnce sync.Once
	runtimeInitErr  error
)

// InitRuntime initializes the ONNX Runtime environment once per process.
// Both model hosts share the same environment.
func InitRuntime() error {
	runtimeInitOnce.Do(func() {
		if p := envconfig.Var("AIDE_ORT_LIB"); p != "" {
			ort.SetSharedLibraryPath(p)
		}
		runtimeInitErr = ort.InitializeEnvironment()
	})
	return runtimeInitErr
}

type modelConfig struct {
	VocabSize  int             `json:"vocab_size"`
	ImageSize  int             `json:"image_size"`
	EosTokenID json.RawMessage `json:"eos_token_id"`
}

// eosTokenIDs accepts both a single id and a list, matching what model
// exporters emit.
func (c modelConfig) eosTokenIDs() map[int64]bool {
	ids := make(map[int64]bool)
	if len(c.EosTokenID) == 0 {
		return ids
	}

	var single int64
	if err := json.Unmarshal(c.EosTokenID, &single); err == nil {
		ids[single] = true
		return ids
	}

	var many []int64
	if err := json.Unmarshal(c.EosTokenID, &many); err == nil {
		for _, id := range many {
			ids[id] = true
		}
	}
	return ids
}

// LoadEngine loads the tokenizer and model from dir (tokenizer.json,
// config.json, model.onnx). progress is informational only; it may be nil.
func LoadEngine(dir string, maxNewTokens int, progress func(api.ProgressResponse)) (*Engine, error) {
	report := func(status string, completed, total int64) {
		if progress != nil {
			progress(api.ProgressResponse{Status: status, Completed: completed, Total: total})
		}
	}

	configData, err := os.ReadFile(filepath.Join(dir, "config.json"))
	if err != nil {
		return nil, fmt.Errorf("read model config: %w", err)
	}
	var config modelConfig
	if err := json.Unmarshal(configData, &config); err != nil {
		return nil, fmt.Errorf("parse model config: %w", err)
	}
	if config.ImageSize == 0 {
		config.ImageSize = 448
	}

	tokenizerPath := filepath.Join(dir, "tokenizer.json")
	report("loading tokenizer", 0, fileSize(tokenizerPath))
	f, err := os.Open(tokenizerPath)
	if err != nil {
		return nil, fmt.Errorf("open tokenizer: %w", err)
	}
	defer f.Close()

	tk, err := pretrained.FromReader(f)
	if err != nil {
		return nil, fmt.Errorf("load tokenizer: %w", err)
	}
	report("loading tokenizer", fileSize(tokenizerPath), fileSize(tokenizerPath))

	if err := InitRuntime(); err != nil {
		return nil, fmt.Errorf("onnxruntime init: %w", err)
	}

	modelPath := filepath.Join(dir, "model.onnx")
	report("loading model", 0, fileSize(modelPath))

	inputs, outputs, err := ort.GetInputOutputInfo(modelPath)
	if err != nil {
		return nil, fmt.Errorf("read model metadata: %w", err)
	}

	inputNames := make([]string, len(inputs))
	for i, in := range inputs {
		inputNames[i] = in.Name
	}
	outputNames := make([]string, len(outputs))
	for i, out := range outputs {
		outputNames[i] = out.Name
	}

	session, err := ort.NewDynamicAdvancedSession(modelPath, inputNames, outputNames, nil)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	report("loading model", fileSize(modelPath), fileSize(modelPath))

	return &Engine{
		modelPath:    modelPath,
		tk:           tk,
		session:      session,
		inputNames:   inputNames,
		outputNames:  outputNames,
		vocabSize:    config.VocabSize,
		imageSize:    config.ImageSize,
		eos:          config.eosTokenIDs(),
		maxNewTokens: maxNewTokens,
	}, nil
}

func fileSize(path string) int64 {
	fi, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return fi.Size()
}

// Close releases the model session.
func (e *Engine) Close() error {
	if e.session == nil {
		return nil
	}
	return e.session.Destroy()
}

func (e *Engine) Info() Info {
	return Info{
		ModelPath:    e.modelPath,
		VocabSize:    e.vocabSize,
		ImageSize:    e.imageSize,
		MaxNewTokens: e.maxNewTokens,
	}
}

// BuildInputs tokenizes the prompt and constructs one tensor per model
// input. Absent media becomes a minimal zero tensor so the input layout
// stays fixed across requests.
func (e *Engine) BuildInputs(prompt string, img *vision.Image, samples []float32) (*InputSet, error) {
	en, err := e.tk.EncodeSingle(prompt, true)
	if err != nil {
		return nil, fmt.Errorf("tokenize prompt: %w", err)
	}
	ids := make([]int64, len(en.Ids))
	for i, id := range en.Ids {
		ids[i] = int64(id)
	}

	values := make([]Tensor, len(e.inputNames))
	fail := func(err error) (*InputSet, error) {
		for _, t := range values {
			if t != nil {
				t.Destroy()
			}
		}
		return nil, err
	}

	for i, name := range e.inputNames {
		switch name {
		case inputIDs:
			t, err := ort.NewTensor(ort.NewShape(1, int64(len(ids))), slices.Clone(ids))
			if err != nil {
				return fail(fmt.Errorf("input_ids tensor: %w", err))
			}
			values[i] = t

		case pixelValues:
			backing, err := e.pixelBacking(img)
			if err != nil {
				return fail(err)
			}
			t, err := ort.NewTensor(ort.NewShape(1, 3, int64(e.imageSize), int64(e.imageSize)), backing)
			if err != nil {
				return fail(fmt.Errorf("pixel_values tensor: %w", err))
			}
			values[i] = t

		case audioValues:
			backing := samples
			if len(backing) == 0 {
				backing = []float32{0}
			}
			t, err := ort.NewTensor(ort.NewShape(1, int64(len(backing))), backing)
			if err != nil {
				return fail(fmt.Errorf("audio_values tensor: %w", err))
			}
			values[i] = t

		default:
			return fail(fmt.Errorf("unrecognized model input %q", name))
		}
	}

	return NewInputSet(e.inputNames, values, ids), nil
}

// pixelBacking converts an image to the model's CHW layout, or zeros when
// the request carried no image.
func (e *Engine) pixelBacking(img *vision.Image) ([]float32, error) {
	if img == nil {
		return make([]float32, 3*e.imageSize*e.imageSize), nil
	}

	resized, err := vision.Resize(img, e.imageSize, e.imageSize)
	if err != nil {
		return nil, fmt.Errorf("resize image: %w", err)
	}
	return vision.ToCHW(resized, vision.ClipMean, vision.ClipStd), nil
}

// Generate runs the greedy decode loop. Per-step tensors are destroyed
// every iteration; the base input set remains owned by the caller.
func (e *Engine) Generate(ctx context.Context, inputs *InputSet, fn func(string)) error {
	ids := slices.Clone(inputs.TokenIDs())
	if len(ids) == 0 {
		return errors.New("empty prompt")
	}

	for range e.maxNewTokens {
		if err := ctx.Err(); err != nil {
			return err
		}

		next, err := e.step(inputs, ids)
		if err != nil {
			return err
		}
		if e.eos[next] {
			break
		}

		ids = append(ids, next)
		if fragment := e.tk.Decode([]int{int(next)}, true); fragment != "" {
			fn(fragment)
		}
	}

	return nil
}

// step runs one forward pass over the current token sequence and returns
// the argmax token of the final position.
func (e *Engine) step(inputs *InputSet, ids []int64) (int64, error) {
	stepIDs, err := ort.NewTensor(ort.NewShape(1, int64(len(ids))), ids)
	if err != nil {
		return 0, fmt.Errorf("input_ids tensor: %w", err)
	}
	defer stepIDs.Destroy()

	values := make([]ort.Value, len(e.inputNames))
	for i, name := range e.inputNames {
		if name == inputIDs {
			values[i] = stepIDs
			continue
		}
		v, ok := inputs.value(name).(ort.Value)
		if !ok {
			return 0, fmt.Errorf("missing model input %q", name)
		}
		values[i] = v
	}

	outputs := make([]ort.Value, len(e.outputNames))
	if err := e.session.Run(values, outputs); err != nil {
		return 0, fmt.Errorf("forward pass: %w", err)
	}
	defer func() {
		for _, o := range outputs {
			if o != nil {
				o.Destroy()
			}
		}
	}()

	logits, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return 0, errors.New("model logits are not float32")
	}

	shape := logits.GetShape()
	vocab := int(shape[len(shape)-1])
	data := logits.GetData()
	if vocab <= 0 || len(data) < vocab {
		return 0, fmt.Errorf("unexpected logits shape %v", shape)
	}

	return argmax(data[len(data)-vocab:]), nil
}

func argmax(logits []float32) int64 {
	best := 0
	for i, v := range logits {
		if v > logits[best] {
			best = i
		}
	}
	return int64(best)
}
