package workflows

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/testsuite"

	"github.com/autoshop-ai/orchestrator/internal/activities"
	"github.com/autoshop-ai/orchestrator/internal/models"
	"github.com/autoshop-ai/orchestrator/internal/store"
	"github.com/autoshop-ai/orchestrator/internal/streaming"
)

// testActivities wires stub implementations of every activity into the test
// environment and records what ran. Persistence goes to a real MemoryStore so
// tests can assert on stored terminal state.
type testActivities struct {
	mu sync.Mutex

	store  *store.MemoryStore
	events []streaming.Event

	decompose  func(q string) ([]models.SubQuestion, error)
	research   func(in activities.SpecialistInput) (string, error)
	synthesize func(in activities.SynthesisInput) (string, error)

	researchCalls  []activities.SpecialistInput
	synthesisCalls int
}

func newTestActivities(t *testing.T, requestID, question string) *testActivities {
	st := store.NewMemoryStore()
	require.NoError(t, st.Create(context.Background(), &models.ResearchRequest{
		ID:               requestID,
		OriginalQuestion: question,
		Status:           models.StatusPending,
		CreatedAt:        time.Now(),
	}))
	return &testActivities{
		store: st,
		research: func(in activities.SpecialistInput) (string, error) {
			return "findings for " + in.SubQuestion.Question, nil
		},
		synthesize: func(in activities.SynthesisInput) (string, error) {
			return "# Final Report", nil
		},
	}
}

func (ta *testActivities) register(env *testsuite.TestWorkflowEnvironment) {
	env.RegisterActivityWithOptions(
		func(ctx context.Context, in activities.DecompositionInput) (activities.DecompositionResult, error) {
			subs, err := ta.decompose(in.Question)
			return activities.DecompositionResult{SubQuestions: subs}, err
		},
		activity.RegisterOptions{Name: "DecomposeQuestion"},
	)
	env.RegisterActivityWithOptions(
		func(ctx context.Context, in activities.SpecialistInput) (activities.SpecialistResult, error) {
			ta.mu.Lock()
			ta.researchCalls = append(ta.researchCalls, in)
			ta.mu.Unlock()
			findings, err := ta.research(in)
			return activities.SpecialistResult{Findings: findings}, err
		},
		activity.RegisterOptions{Name: "ResearchSubQuestion"},
	)
	env.RegisterActivityWithOptions(
		func(ctx context.Context, in activities.SynthesisInput) (activities.SynthesisResult, error) {
			ta.mu.Lock()
			ta.synthesisCalls++
			ta.mu.Unlock()
			report, err := ta.synthesize(in)
			return activities.SynthesisResult{Report: report}, err
		},
		activity.RegisterOptions{Name: "SynthesizeReport"},
	)
	env.RegisterActivityWithOptions(
		func(ctx context.Context, in activities.EmitProgressInput) error {
			evt := streaming.Event{
				Status:       in.Status,
				AgentID:      in.AgentID,
				Message:      in.Message,
				SubQuestions: in.SubQuestions,
				SessionID:    in.RequestID,
			}
			if in.Total > 0 {
				evt.Progress = &streaming.Progress{
					Current:    in.Current,
					Total:      in.Total,
					Percentage: float64(in.Current) / float64(in.Total) * 100,
				}
			}
			ta.mu.Lock()
			ta.events = append(ta.events, evt)
			ta.mu.Unlock()
			return nil
		},
		activity.RegisterOptions{Name: "EmitProgress"},
	)
	env.RegisterActivityWithOptions(
		func(ctx context.Context, in activities.MarkStartedInput) error {
			return ta.store.MarkStarted(ctx, in.RequestID, in.At)
		},
		activity.RegisterOptions{Name: "MarkRequestStarted"},
	)
	env.RegisterActivityWithOptions(
		func(ctx context.Context, in activities.SaveSubQuestionsInput) error {
			return ta.store.SetSubQuestions(ctx, in.RequestID, in.SubQuestions)
		},
		activity.RegisterOptions{Name: "SaveSubQuestions"},
	)
	env.RegisterActivityWithOptions(
		func(ctx context.Context, in activities.SaveSubQuestionFindingsInput) error {
			return ta.store.SaveSubQuestionFindings(ctx, in.RequestID, in.SubQuestionID, in.Findings)
		},
		activity.RegisterOptions{Name: "SaveSubQuestionFindings"},
	)
	env.RegisterActivityWithOptions(
		func(ctx context.Context, in activities.SaveCategoryFindingsInput) error {
			return ta.store.SaveCategoryFindings(ctx, in.RequestID, in.Category, in.Findings)
		},
		activity.RegisterOptions{Name: "SaveCategoryFindings"},
	)
	env.RegisterActivityWithOptions(
		func(ctx context.Context, in activities.CompleteRequestInput) error {
			return ta.store.Complete(ctx, in.RequestID, in.FinalReport, in.At)
		},
		activity.RegisterOptions{Name: "CompleteRequest"},
	)
	env.RegisterActivityWithOptions(
		func(ctx context.Context, in activities.FailRequestInput) error {
			return ta.store.Fail(ctx, in.RequestID, in.Error, in.At)
		},
		activity.RegisterOptions{Name: "FailRequest"},
	)
}

func subQuestion(id, question string, category models.Category) models.SubQuestion {
	return models.SubQuestion{ID: id, Question: question, Category: category}
}

func TestResearchWorkflow_Completes(t *testing.T) {
	testSuite := &testsuite.WorkflowTestSuite{}
	env := testSuite.NewTestWorkflowEnvironment()

	const requestID = "req-p0420"
	const question = "Why is my 2015 Honda Civic throwing a P0420 code and what should I check first?"

	ta := newTestActivities(t, requestID, question)
	ta.decompose = func(string) ([]models.SubQuestion, error) {
		return []models.SubQuestion{
			subQuestion("sq-1", "How does a catalytic converter efficiency monitor work?", models.CategoryVehicleSystems),
			subQuestion("sq-2", "What are common causes of P0420 on the 2015 Civic?", models.CategoryVehicleSystems),
			subQuestion("sq-3", "Does a P0420 fail state emissions inspection?", models.CategoryCompliance),
			subQuestion("sq-4", "What does Honda's TSB coverage say about catalyst replacement?", models.CategoryOEMData),
			subQuestion("sq-5", "What fixes do Civic owners report for P0420?", models.CategoryCommunityForums),
		}, nil
	}
	ta.register(env)

	env.ExecuteWorkflow(ResearchWorkflow, ResearchInput{RequestID: requestID, Question: question})

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var result ResearchResult
	require.NoError(t, env.GetWorkflowResult(&result))
	assert.Equal(t, requestID, result.RequestID)
	assert.Equal(t, "# Final Report", result.FinalReport)
	assert.Equal(t, 5, result.SubQuestionCount)

	// Stored terminal state.
	req, err := ta.store.GetByID(context.Background(), requestID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, req.Status)
	assert.Equal(t, "# Final Report", req.FinalReport)
	assert.NotNil(t, req.StartedAt)
	assert.NotNil(t, req.CompletedAt)
	require.Len(t, req.SubQuestions, 5)
	for _, sq := range req.SubQuestions {
		assert.True(t, sq.Completed, "sub-question %s should be completed", sq.ID)
		assert.NotEmpty(t, sq.Findings)
	}
	// Every category has findings stored, including categories with just one
	// sub-question.
	for _, c := range []models.Category{
		models.CategoryVehicleSystems,
		models.CategoryCompliance,
		models.CategoryOEMData,
		models.CategoryCommunityForums,
	} {
		assert.NotEmpty(t, req.CategoryFindings[c], "category %s", c)
	}

	// One reasoning call per sub-question, exactly one synthesis.
	assert.Len(t, ta.researchCalls, 5)
	assert.Equal(t, 1, ta.synthesisCalls)

	// The decomposer's completion event carries the produced sub-questions so
	// stream observers see the research plan.
	var planned []string
	for _, evt := range ta.events {
		if evt.AgentID == streaming.AgentDecomposer && len(evt.SubQuestions) > 0 {
			planned = evt.SubQuestions
		}
	}
	require.Len(t, planned, 5)
	assert.Equal(t, "How does a catalytic converter efficiency monitor work?", planned[0])
	assert.Equal(t, "What fixes do Civic owners report for P0420?", planned[4])
}

func TestResearchWorkflow_ReportCarriesAllCategoryFindings(t *testing.T) {
	testSuite := &testsuite.WorkflowTestSuite{}
	env := testSuite.NewTestWorkflowEnvironment()

	const requestID = "req-civic"
	const question = "2015 Honda Civic, DTC P0420, catalytic converter efficiency below threshold"

	ta := newTestActivities(t, requestID, question)
	ta.decompose = func(string) ([]models.SubQuestion, error) {
		return []models.SubQuestion{
			subQuestion("sq-1", "how the catalyst monitor works", models.CategoryVehicleSystems),
			subQuestion("sq-2", "emissions test impact of P0420", models.CategoryCompliance),
			subQuestion("sq-3", "Honda catalyst warranty coverage", models.CategoryOEMData),
			subQuestion("sq-4", "owner-reported P0420 fixes", models.CategoryCommunityForums),
		}, nil
	}
	ta.research = func(in activities.SpecialistInput) (string, error) {
		return string(in.Category) + ":finding", nil
	}
	ta.synthesize = func(in activities.SynthesisInput) (string, error) {
		report := in.Question
		for _, c := range models.Categories() {
			report += "\n" + in.CategoryFindings[c]
		}
		return report, nil
	}
	ta.register(env)

	env.ExecuteWorkflow(ResearchWorkflow, ResearchInput{RequestID: requestID, Question: question})
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	req, err := ta.store.GetByID(context.Background(), requestID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, req.Status)
	assert.Contains(t, req.FinalReport, question)
	for _, c := range models.Categories() {
		assert.Contains(t, req.FinalReport, string(c)+":finding")
	}
}

func TestResearchWorkflow_SequentialWithinCategory(t *testing.T) {
	testSuite := &testsuite.WorkflowTestSuite{}
	env := testSuite.NewTestWorkflowEnvironment()

	const requestID = "req-seq"
	ta := newTestActivities(t, requestID, "brake judder on F-150")
	ta.decompose = func(string) ([]models.SubQuestion, error) {
		return []models.SubQuestion{
			subQuestion("vs-1", "first", models.CategoryVehicleSystems),
			subQuestion("vs-2", "second", models.CategoryVehicleSystems),
			subQuestion("vs-3", "third", models.CategoryVehicleSystems),
		}, nil
	}
	ta.register(env)

	env.ExecuteWorkflow(ResearchWorkflow, ResearchInput{RequestID: requestID, Question: "brake judder on F-150"})
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	// The specialist must walk its sub-questions strictly in decomposition order.
	require.Len(t, ta.researchCalls, 3)
	assert.Equal(t, "vs-1", ta.researchCalls[0].SubQuestion.ID)
	assert.Equal(t, "vs-2", ta.researchCalls[1].SubQuestion.ID)
	assert.Equal(t, "vs-3", ta.researchCalls[2].SubQuestion.ID)

	// Category findings concatenate per-sub-question sections in the same order.
	req, err := ta.store.GetByID(context.Background(), requestID)
	require.NoError(t, err)
	assert.Equal(t,
		"### first\n\nfindings for first\n\n### second\n\nfindings for second\n\n### third\n\nfindings for third\n\n",
		req.CategoryFindings[models.CategoryVehicleSystems])
}

func TestResearchWorkflow_EmptyCategoryUsesSentinel(t *testing.T) {
	testSuite := &testsuite.WorkflowTestSuite{}
	env := testSuite.NewTestWorkflowEnvironment()

	const requestID = "req-sentinel"
	ta := newTestActivities(t, requestID, "coolant smell after short trips")
	ta.decompose = func(string) ([]models.SubQuestion, error) {
		return []models.SubQuestion{
			subQuestion("vs-1", "where do Subaru head gaskets leak", models.CategoryVehicleSystems),
		}, nil
	}
	var synthesisInput activities.SynthesisInput
	ta.synthesize = func(in activities.SynthesisInput) (string, error) {
		synthesisInput = in
		return "report", nil
	}
	ta.register(env)

	env.ExecuteWorkflow(ResearchWorkflow, ResearchInput{RequestID: requestID, Question: "coolant smell after short trips"})
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	// Only the populated category invoked the reasoning service.
	assert.Len(t, ta.researchCalls, 1)

	// Empty categories reach synthesis as the sentinel, not empty strings.
	assert.Equal(t, models.NoResearchSentinel, synthesisInput.CategoryFindings[models.CategoryCompliance])
	assert.Equal(t, models.NoResearchSentinel, synthesisInput.CategoryFindings[models.CategoryOEMData])
	assert.Equal(t, models.NoResearchSentinel, synthesisInput.CategoryFindings[models.CategoryCommunityForums])
	assert.NotEqual(t, models.NoResearchSentinel, synthesisInput.CategoryFindings[models.CategoryVehicleSystems])

	// The stored record names every category; empty ones hold the sentinel.
	req, err := ta.store.GetByID(context.Background(), requestID)
	require.NoError(t, err)
	for _, c := range models.Categories() {
		require.Contains(t, req.CategoryFindings, c)
	}
	assert.Equal(t, models.NoResearchSentinel, req.CategoryFindings[models.CategoryCompliance])
	assert.Equal(t, models.NoResearchSentinel, req.CategoryFindings[models.CategoryOEMData])
	assert.Equal(t, models.NoResearchSentinel, req.CategoryFindings[models.CategoryCommunityForums])
}

func TestResearchWorkflow_SpecialistFailureFailsEverything(t *testing.T) {
	testSuite := &testsuite.WorkflowTestSuite{}
	env := testSuite.NewTestWorkflowEnvironment()

	const requestID = "req-allornothing"
	ta := newTestActivities(t, requestID, "misfire under load")
	ta.decompose = func(string) ([]models.SubQuestion, error) {
		return []models.SubQuestion{
			subQuestion("vs-1", "ok one", models.CategoryVehicleSystems),
			subQuestion("vs-2", "boom", models.CategoryVehicleSystems),
			subQuestion("vs-3", "never reached", models.CategoryVehicleSystems),
			subQuestion("oe-1", "oem fine", models.CategoryOEMData),
		}, nil
	}
	ta.research = func(in activities.SpecialistInput) (string, error) {
		if in.SubQuestion.ID == "vs-2" {
			return "", errors.New("reasoning service unavailable")
		}
		return "findings", nil
	}
	ta.register(env)

	env.ExecuteWorkflow(ResearchWorkflow, ResearchInput{RequestID: requestID, Question: "misfire under load"})
	require.True(t, env.IsWorkflowCompleted())
	require.Error(t, env.GetWorkflowError())

	// Synthesis never ran; partial findings are discarded from the outcome.
	assert.Equal(t, 0, ta.synthesisCalls)

	// The later sub-question in the failed category was never attempted.
	for _, call := range ta.researchCalls {
		assert.NotEqual(t, "vs-3", call.SubQuestion.ID)
	}

	req, err := ta.store.GetByID(context.Background(), requestID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, req.Status)
	assert.Contains(t, req.Error, "reasoning service unavailable")
	assert.Empty(t, req.FinalReport)

	// The terminal error event was emitted by the main agent.
	last := ta.events[len(ta.events)-1]
	assert.Equal(t, streaming.StatusError, last.Status)
	assert.Equal(t, streaming.AgentMain, last.AgentID)
}

func TestResearchWorkflow_DecompositionFailureFailsRun(t *testing.T) {
	testSuite := &testsuite.WorkflowTestSuite{}
	env := testSuite.NewTestWorkflowEnvironment()

	const requestID = "req-decompfail"
	ta := newTestActivities(t, requestID, "question")
	ta.decompose = func(string) ([]models.SubQuestion, error) {
		return nil, errors.New("model returned prose instead of JSON")
	}
	ta.register(env)

	env.ExecuteWorkflow(ResearchWorkflow, ResearchInput{RequestID: requestID, Question: "question"})
	require.True(t, env.IsWorkflowCompleted())
	require.Error(t, env.GetWorkflowError())

	assert.Empty(t, ta.researchCalls)
	assert.Equal(t, 0, ta.synthesisCalls)

	req, err := ta.store.GetByID(context.Background(), requestID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, req.Status)
}

func TestResearchWorkflow_SynthesisFailureFailsRun(t *testing.T) {
	testSuite := &testsuite.WorkflowTestSuite{}
	env := testSuite.NewTestWorkflowEnvironment()

	const requestID = "req-synthfail"
	ta := newTestActivities(t, requestID, "question")
	ta.decompose = func(string) ([]models.SubQuestion, error) {
		return []models.SubQuestion{
			subQuestion("vs-1", "one", models.CategoryVehicleSystems),
		}, nil
	}
	ta.synthesize = func(activities.SynthesisInput) (string, error) {
		return "", errors.New("context window exceeded")
	}
	ta.register(env)

	env.ExecuteWorkflow(ResearchWorkflow, ResearchInput{RequestID: requestID, Question: "question"})
	require.True(t, env.IsWorkflowCompleted())
	require.Error(t, env.GetWorkflowError())

	req, err := ta.store.GetByID(context.Background(), requestID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, req.Status)
	assert.Contains(t, req.Error, "synthesis failed")
}

func TestResearchWorkflow_SynthesisWaitsForAllBranches(t *testing.T) {
	testSuite := &testsuite.WorkflowTestSuite{}
	env := testSuite.NewTestWorkflowEnvironment()

	const requestID = "req-barrier"
	ta := newTestActivities(t, requestID, "question")
	ta.decompose = func(string) ([]models.SubQuestion, error) {
		return []models.SubQuestion{
			subQuestion("vs-1", "vs", models.CategoryVehicleSystems),
			subQuestion("cp-1", "cp", models.CategoryCompliance),
			subQuestion("oe-1", "oe", models.CategoryOEMData),
			subQuestion("cf-1", "cf", models.CategoryCommunityForums),
		}, nil
	}

	var order []string
	var mu sync.Mutex
	ta.research = func(in activities.SpecialistInput) (string, error) {
		mu.Lock()
		order = append(order, "research:"+string(in.Category))
		mu.Unlock()
		return "f", nil
	}
	ta.synthesize = func(in activities.SynthesisInput) (string, error) {
		mu.Lock()
		order = append(order, "synthesis")
		mu.Unlock()
		return "report", nil
	}
	ta.register(env)

	env.ExecuteWorkflow(ResearchWorkflow, ResearchInput{RequestID: requestID, Question: "question"})
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	// Synthesis is last, after all four specialist calls.
	require.Len(t, order, 5)
	assert.Equal(t, "synthesis", order[4])
}

func TestResearchWorkflow_ProgressPercentagesMonotonic(t *testing.T) {
	testSuite := &testsuite.WorkflowTestSuite{}
	env := testSuite.NewTestWorkflowEnvironment()

	const requestID = "req-progress"
	ta := newTestActivities(t, requestID, "question")
	ta.decompose = func(string) ([]models.SubQuestion, error) {
		return []models.SubQuestion{
			subQuestion("vs-1", "a", models.CategoryVehicleSystems),
			subQuestion("vs-2", "b", models.CategoryVehicleSystems),
			subQuestion("vs-3", "c", models.CategoryVehicleSystems),
		}, nil
	}
	ta.register(env)

	env.ExecuteWorkflow(ResearchWorkflow, ResearchInput{RequestID: requestID, Question: "question"})
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	agentID := streaming.SpecialistAgentID(models.CategoryVehicleSystems)
	last := -1.0
	final := -1.0
	for _, evt := range ta.events {
		if evt.AgentID != agentID || evt.Progress == nil {
			continue
		}
		pct := evt.Progress.Percentage
		assert.GreaterOrEqual(t, pct, last,
			fmt.Sprintf("percentage regressed: %v -> %v", last, pct))
		last = pct
		final = pct
	}
	assert.Equal(t, 100.0, final)
}
