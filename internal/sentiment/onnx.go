package sentiment

import (
	"context"
	"fmt"

	ort "github.com/yalue/onnxruntime_go"
)

// ONNXClassifier runs a FinBERT-style sequence classifier exported to ONNX.
// The model takes input_ids, attention_mask and token_type_ids and returns
// logits ordered neutral, positive, negative.
type ONNXClassifier struct {
	session *ort.DynamicAdvancedSession
	tok     *WordPiece
}

// NewONNXClassifier loads the runtime library, the model and its vocab.
func NewONNXClassifier(modelPath, vocabPath, libraryPath string) (*ONNXClassifier, error) {
	tok, err := LoadVocabFile(vocabPath, 512)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrClassifierUnavailable, err)
	}
	if libraryPath != "" {
		ort.SetSharedLibraryPath(libraryPath)
	}
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("%w: init onnx runtime: %v", ErrClassifierUnavailable, err)
		}
	}
	opts, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("%w: session options: %v", ErrClassifierUnavailable, err)
	}
	defer opts.Destroy()

	session, err := ort.NewDynamicAdvancedSession(modelPath,
		[]string{"input_ids", "attention_mask", "token_type_ids"}, []string{"logits"}, opts)
	if err != nil {
		return nil, fmt.Errorf("%w: load model: %v", ErrClassifierUnavailable, err)
	}
	return &ONNXClassifier{session: session, tok: tok}, nil
}

func (c *ONNXClassifier) Classify(ctx context.Context, text string) (Probabilities, error) {
	if err := ctx.Err(); err != nil {
		return Probabilities{}, err
	}
	ids, mask, types := c.tok.Encode(text)
	shape := ort.NewShape(1, int64(len(ids)))

	var inputs []ort.Value
	for _, data := range [][]int64{ids, mask, types} {
		t, err := ort.NewTensor(shape, data)
		if err != nil {
			destroyAll(inputs)
			return Probabilities{}, fmt.Errorf("%w: input tensor: %v", ErrClassification, err)
		}
		inputs = append(inputs, t)
	}
	defer destroyAll(inputs)

	logits := make([]float32, 3)
	out, err := ort.NewTensor(ort.NewShape(1, 3), logits)
	if err != nil {
		return Probabilities{}, fmt.Errorf("%w: output tensor: %v", ErrClassification, err)
	}
	defer out.Destroy()

	if err := c.session.Run(inputs, []ort.Value{out}); err != nil {
		return Probabilities{}, fmt.Errorf("%w: inference: %v", ErrClassification, err)
	}
	return Softmax([]float64{float64(logits[0]), float64(logits[1]), float64(logits[2])})
}

func destroyAll(vals []ort.Value) {
	for _, v := range vals {
		v.Destroy()
	}
}

// Close releases the session. The runtime environment stays initialised for
// the life of the process.
func (c *ONNXClassifier) Close() error {
	if c.session == nil {
		return nil
	}
	err := c.session.Destroy()
	c.session = nil
	return err
}
