package activities

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/testsuite"
	"go.uber.org/zap/zaptest"

	"github.com/autoshop-ai/orchestrator/internal/models"
	"github.com/autoshop-ai/orchestrator/internal/store"
)

// stubReasoner scripts reasoning responses for activity tests.
type stubReasoner struct {
	fn    func(template string, vars map[string]string) (string, error)
	calls int
}

func (s *stubReasoner) Invoke(_ context.Context, template string, vars map[string]string) (string, error) {
	s.calls++
	return s.fn(template, vars)
}

func newActivityEnv(t *testing.T, reasoner *stubReasoner) (*testsuite.TestActivityEnvironment, *Activities) {
	testSuite := &testsuite.WorkflowTestSuite{}
	env := testSuite.NewTestActivityEnvironment()
	a := NewActivities(reasoner, store.NewMemoryStore(), nil, nil, zaptest.NewLogger(t))
	env.RegisterActivity(a.DecomposeQuestion)
	env.RegisterActivity(a.ResearchSubQuestion)
	env.RegisterActivity(a.SynthesizeReport)
	return env, a
}

func TestDecomposeQuestion_StrictJSON(t *testing.T) {
	reasoner := &stubReasoner{fn: func(template string, vars map[string]string) (string, error) {
		assert.Contains(t, template, "{question}")
		assert.Equal(t, "why does my Jetta stall at idle", vars["question"])
		return `[
			{"question": "How does the idle air control valve work?", "category": "vehicle_systems"},
			{"question": "What do owners report fixing for TDI stalling?", "category": "community_forums"}
		]`, nil
	}}
	env, a := newActivityEnv(t, reasoner)

	val, err := env.ExecuteActivity(a.DecomposeQuestion, DecompositionInput{
		RequestID: "req-1",
		Question:  "why does my Jetta stall at idle",
	})
	require.NoError(t, err)

	var result DecompositionResult
	require.NoError(t, val.Get(&result))
	require.Len(t, result.SubQuestions, 2)
	assert.Equal(t, models.CategoryVehicleSystems, result.SubQuestions[0].Category)
	assert.Equal(t, models.CategoryCommunityForums, result.SubQuestions[1].Category)
	for _, sq := range result.SubQuestions {
		assert.NotEmpty(t, sq.ID)
		assert.False(t, sq.Completed)
	}
}

func TestDecomposeQuestion_RepairsFencedJSON(t *testing.T) {
	reasoner := &stubReasoner{fn: func(string, map[string]string) (string, error) {
		return "```json\n[{\"question\": \"What is the spec torque?\", \"category\": \"oem_data\"}]\n```", nil
	}}
	env, a := newActivityEnv(t, reasoner)

	val, err := env.ExecuteActivity(a.DecomposeQuestion, DecompositionInput{RequestID: "req-1", Question: "q"})
	require.NoError(t, err)

	var result DecompositionResult
	require.NoError(t, val.Get(&result))
	require.Len(t, result.SubQuestions, 1)
	assert.Equal(t, models.CategoryOEMData, result.SubQuestions[0].Category)
}

func TestDecomposeQuestion_ReasoningErrorIsFatal(t *testing.T) {
	reasoner := &stubReasoner{fn: func(string, map[string]string) (string, error) {
		return "", errors.New("connection refused")
	}}
	env, a := newActivityEnv(t, reasoner)

	_, err := env.ExecuteActivity(a.DecomposeQuestion, DecompositionInput{RequestID: "req-1", Question: "q"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decomposition failed")
}

func TestParseSubQuestions(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    int
		wantErr string
	}{
		{
			name: "plain array",
			raw:  `[{"question": "a", "category": "compliance"}]`,
			want: 1,
		},
		{
			name: "array embedded in prose",
			raw:  "Here are the sub-questions:\n[{\"question\": \"a\", \"category\": \"oem_data\"}]\nLet me know if you need more.",
			want: 1,
		},
		{
			name: "fenced without language tag",
			raw:  "```\n[{\"question\": \"a\", \"category\": \"community_forums\"}]\n```",
			want: 1,
		},
		{
			name:    "no array at all",
			raw:     "I could not decompose this question.",
			wantErr: "no JSON array",
		},
		{
			name:    "broken JSON inside array",
			raw:     `[{"question": "a", "category": }]`,
			wantErr: "undecodable",
		},
		{
			name:    "empty array",
			raw:     `[]`,
			wantErr: "no sub-questions",
		},
		{
			name:    "unknown category",
			raw:     `[{"question": "a", "category": "astrology"}]`,
			wantErr: `unknown category "astrology"`,
		},
		{
			name:    "blank question text",
			raw:     `[{"question": "  ", "category": "compliance"}]`,
			wantErr: "empty question",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			subs, err := parseSubQuestions(tt.raw)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Len(t, subs, tt.want)
		})
	}
}

func TestStripCodeFences(t *testing.T) {
	assert.Equal(t, `[1]`, stripCodeFences("```json\n[1]\n```"))
	assert.Equal(t, `[1]`, stripCodeFences("```\n[1]\n```"))
	assert.Equal(t, `[1]`, stripCodeFences("[1]"))
}

func TestExtractJSONArray(t *testing.T) {
	assert.Equal(t, `[1,2]`, extractJSONArray("noise [1,2] trailing"))
	assert.Equal(t, "", extractJSONArray("no array here"))
	assert.Equal(t, "", extractJSONArray("] backwards ["))
}
