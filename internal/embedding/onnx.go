//go:build cgo

package embedding

import (
	"context"
	"fmt"
	"sync"

	"github.com/hyperjump/somnia/pkg/utils"
	ort "github.com/yalue/onnxruntime_go"
)

// ONNXEmbedder runs a sentence-transformer model (all-MiniLM-L6-v2 by default) through
// ONNX Runtime and mean-pools the token states into one vector. Requires CGO.
type ONNXEmbedder struct {
	session    *ort.AdvancedSession
	tokenizer  Tokenizer
	dimensions int
	maxTokens  int

	inputIDs      *ort.Tensor[int64]
	attentionMask *ort.Tensor[int64]
	tokenTypeIDs  *ort.Tensor[int64]
	hiddenState   *ort.Tensor[float32]
	mu            sync.Mutex
}

// NewONNXEmbedder loads the model at opts.ModelPath.
func NewONNXEmbedder(opts Options) (*ONNXEmbedder, error) {
	if opts.Dimensions <= 0 || opts.MaxTokens <= 2 {
		return nil, fmt.Errorf("invalid embedding shape: dimensions=%d max_tokens=%d", opts.Dimensions, opts.MaxTokens)
	}
	if !ort.IsInitialized() {
		if opts.RuntimeLibrary != "" {
			ort.SetSharedLibraryPath(opts.RuntimeLibrary)
		}
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("failed to initialize ONNX runtime: %w", err)
		}
	}

	e := &ONNXEmbedder{
		tokenizer:  &HashTokenizer{},
		dimensions: opts.Dimensions,
		maxTokens:  opts.MaxTokens,
	}
	seq := ort.NewShape(1, int64(opts.MaxTokens))
	var err error
	if e.inputIDs, err = ort.NewEmptyTensor[int64](seq); err != nil {
		return nil, fmt.Errorf("failed to create input_ids tensor: %w", err)
	}
	if e.attentionMask, err = ort.NewEmptyTensor[int64](seq); err != nil {
		e.Close()
		return nil, fmt.Errorf("failed to create attention_mask tensor: %w", err)
	}
	if e.tokenTypeIDs, err = ort.NewEmptyTensor[int64](seq); err != nil {
		e.Close()
		return nil, fmt.Errorf("failed to create token_type_ids tensor: %w", err)
	}
	if e.hiddenState, err = ort.NewEmptyTensor[float32](ort.NewShape(1, int64(opts.MaxTokens), int64(opts.Dimensions))); err != nil {
		e.Close()
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}

	e.session, err = ort.NewAdvancedSession(
		opts.ModelPath,
		[]string{"input_ids", "attention_mask", "token_type_ids"},
		[]string{"last_hidden_state"},
		[]ort.ArbitraryTensor{e.inputIDs, e.attentionMask, e.tokenTypeIDs},
		[]ort.ArbitraryTensor{e.hiddenState},
		nil,
	)
	if err != nil {
		e.Close()
		return nil, fmt.Errorf("failed to create ONNX session for %s: %w", opts.ModelPath, err)
	}
	return e, nil
}

// Embed returns the L2-normalized mean of the token states covered by the attention mask.
func (e *ONNXEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	ids, mask, types := e.tokenizer.Tokenize(text, e.maxTokens)
	copy(e.inputIDs.GetData(), ids)
	copy(e.attentionMask.GetData(), mask)
	copy(e.tokenTypeIDs.GetData(), types)

	if err := e.session.Run(); err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}

	states := e.hiddenState.GetData()
	vec := make([]float32, e.dimensions)
	var tokens float32
	for pos, m := range mask {
		if m == 0 {
			continue
		}
		tokens++
		row := states[pos*e.dimensions : (pos+1)*e.dimensions]
		for i, v := range row {
			vec[i] += v
		}
	}
	if tokens > 0 {
		for i := range vec {
			vec[i] /= tokens
		}
	}
	utils.NormalizeL2(vec)
	return vec, nil
}

// Dimensions returns the embedding dimension.
func (e *ONNXEmbedder) Dimensions() int {
	return e.dimensions
}

// Close destroys the session and tensors.
func (e *ONNXEmbedder) Close() error {
	var err error
	if e.session != nil {
		err = e.session.Destroy()
		e.session = nil
	}
	if e.inputIDs != nil {
		_ = e.inputIDs.Destroy()
		e.inputIDs = nil
	}
	if e.attentionMask != nil {
		_ = e.attentionMask.Destroy()
		e.attentionMask = nil
	}
	if e.tokenTypeIDs != nil {
		_ = e.tokenTypeIDs.Destroy()
		e.tokenTypeIDs = nil
	}
	if e.hiddenState != nil {
		_ = e.hiddenState.Destroy()
		e.hiddenState = nil
	}
	return err
}
