package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/hyperjump/somnia/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

// TestHelperProcess isn't a real test. It stands in for the worker binary when
// GO_WANT_HELPER_PROCESS is set; HELPER_MODE selects its behavior.
func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}
	weekly := false
	for i, arg := range os.Args {
		if arg == "--" {
			for _, a := range os.Args[i+1:] {
				weekly = weekly || a == ModeWeekly
			}
			break
		}
	}
	input, _ := io.ReadAll(os.Stdin)

	switch os.Getenv("HELPER_MODE") {
	case "fail":
		fmt.Fprint(os.Stderr, "model file not found")
		os.Exit(3)
	case "garbage":
		fmt.Fprint(os.Stdout, "Traceback (most recent call last):")
	case "empty":
	case "hang":
		time.Sleep(30 * time.Second)
	default:
		if weekly {
			var req WeeklyRequest
			_ = json.Unmarshal(input, &req)
			withEmbedding := strings.Contains(string(input), "embedding")
			fmt.Fprintf(os.Stdout, `{"synthesis":"%d dreams, embedding=%t","archetypes":["Shadow","shadow"," Anima "],"emotional_climate":"restless","patterns":["water",""]}`,
				len(req.Dreams), withEmbedding)
		} else {
			var req SingleRequest
			_ = json.Unmarshal(input, &req)
			fmt.Fprintf(os.Stdout, `{"embedding":[0.5,0.25],"analysis":{"interpretation":%q,"symbols":["glass"],"archetypes":["hero"]}}`, "echo: "+req.Content)
		}
	}
	os.Exit(0)
}

func helperClient(mode string, opts ...Option) *Client {
	opts = append([]Option{WithEnv("GO_WANT_HELPER_PROCESS=1", "HELPER_MODE="+mode)}, opts...)
	return New(os.Args[0], []string{"-test.run=TestHelperProcess", "--"}, opts...)
}

func TestAnalyzeStructure(t *testing.T) {
	res, err := helperClient("ok").AnalyzeStructure(context.Background(), "I was flying")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.5, 0.25}, res.Embedding)
	assert.Equal(t, "echo: I was flying", res.Analysis.Interpretation)
	assert.Equal(t, []string{"glass"}, res.Analysis.Symbols)
	assert.Equal(t, []string{"hero"}, res.Analysis.Archetypes)
}

func TestAnalyzeStructure_Failures(t *testing.T) {
	for _, mode := range []string{"fail", "garbage", "empty"} {
		t.Run(mode, func(t *testing.T) {
			res, err := helperClient(mode).AnalyzeStructure(context.Background(), "x")
			require.ErrorIs(t, err, ErrWorker)
			assert.Empty(t, res.Embedding)
			assert.Equal(t, Analysis{}, res.Analysis)
		})
	}
}

func TestAnalyzeStructure_StderrLogged(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	_, err := helperClient("fail", WithLogger(zap.New(core))).AnalyzeStructure(context.Background(), "x")
	require.ErrorIs(t, err, ErrWorker)

	entries := logs.FilterMessage("Worker process failed").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "model file not found", entries[0].ContextMap()["stderr"])
}

func TestAnalyzeStructure_Timeout(t *testing.T) {
	start := time.Now()
	_, err := helperClient("hang", WithTimeout(200*time.Millisecond)).AnalyzeStructure(context.Background(), "x")
	require.ErrorIs(t, err, ErrWorker)
	assert.True(t, errors.Is(err, context.DeadlineExceeded), "error should carry the deadline: %v", err)
	assert.Less(t, time.Since(start), 10*time.Second)
}

func TestAnalyzeStructure_MissingBinary(t *testing.T) {
	_, err := New("/nonexistent/somnia-worker", nil).AnalyzeStructure(context.Background(), "x")
	require.ErrorIs(t, err, ErrWorker)
}

func TestSummarizeWeek(t *testing.T) {
	emotion := "fear"
	entries := []*models.Entry{
		{ID: "a", Title: "One", Content: "water", Emotion: &emotion, Embedding: []float32{1, 2}},
		{ID: "b", Title: "Two", Content: "stairs"},
	}
	syn, err := helperClient("ok").SummarizeWeek(context.Background(), entries)
	require.NoError(t, err)
	assert.Equal(t, "2 dreams, embedding=false", syn.Synthesis)
	assert.Equal(t, []string{"Shadow", "Anima"}, syn.Archetypes)
	assert.Equal(t, "restless", syn.EmotionalClimate)
	assert.Equal(t, []string{"water"}, syn.Patterns)
}

func TestSummarizeWeek_Failure(t *testing.T) {
	syn, err := helperClient("fail").SummarizeWeek(context.Background(), []*models.Entry{{ID: "a"}})
	require.ErrorIs(t, err, ErrWorker)
	assert.Nil(t, syn)
}
