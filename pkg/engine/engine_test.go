package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/msg43/knowledge-chipper-engine/pkg/batch"
	"github.com/msg43/knowledge-chipper-engine/pkg/events"
	"github.com/msg43/knowledge-chipper-engine/pkg/models"
	"github.com/msg43/knowledge-chipper-engine/pkg/questions"
)

type fakeJobs struct {
	created []models.Job
	nextNum int
}

func (j *fakeJobs) CreateJob(ctx context.Context, jobType models.JobType, inputID string, config map[string]interface{}, autoProcess bool) (*models.Job, error) {
	j.nextNum++
	job := models.Job{JobID: "job-" + string(rune('0'+j.nextNum)), JobType: jobType, InputID: inputID, Config: config, AutoProcess: autoProcess}
	j.created = append(j.created, job)
	return &job, nil
}

type fakeRuns struct {
	started     []string
	checkpoints []string
	completed   []string
	failed      []string
	nextNum     int
}

func (r *fakeRuns) StartRun(ctx context.Context, jobID string) (*models.JobRun, error) {
	r.nextNum++
	runID := "run-" + string(rune('0'+r.nextNum))
	r.started = append(r.started, jobID)
	return &models.JobRun{RunID: runID, JobID: jobID, Status: models.RunRunning}, nil
}

func (r *fakeRuns) Checkpoint(ctx context.Context, runID string, cursor map[string]interface{}) error {
	r.checkpoints = append(r.checkpoints, cursor["stage"].(string))
	return nil
}

func (r *fakeRuns) CompleteRun(ctx context.Context, runID string, metrics models.RunMetrics) error {
	r.completed = append(r.completed, runID)
	return nil
}

func (r *fakeRuns) FailRun(ctx context.Context, runID string, reason error) error {
	r.failed = append(r.failed, runID)
	return nil
}

type fakeEpisodes struct {
	ingested []string
	outputs  []models.MinerOutput
}

func (e *fakeEpisodes) IngestEpisode(ctx context.Context, ep models.Episode) error {
	e.ingested = append(e.ingested, ep.SourceID)
	return nil
}

func (e *fakeEpisodes) SaveMinerOutput(ctx context.Context, out models.MinerOutput) error {
	e.outputs = append(e.outputs, out)
	return nil
}

type fakeClaims struct {
	saved map[string][]models.EvaluatedClaim
}

func (c *fakeClaims) SaveAll(ctx context.Context, episodeSourceID string, claims []models.EvaluatedClaim) error {
	if c.saved == nil {
		c.saved = map[string][]models.EvaluatedClaim{}
	}
	c.saved[episodeSourceID] = claims
	return nil
}

type fakePipeline struct {
	result *batch.Result
	err    error
}

func (p *fakePipeline) ProcessEpisodes(ctx context.Context, episodes []models.Episode, progress batch.ProgressFunc) (*batch.Result, error) {
	if progress != nil {
		progress("Mining", 40, "done")
		progress("Flagship", 65, "done")
		progress("Re-mining", 90, "done")
		progress("Complete", 100, "done")
	}
	return p.result, p.err
}

type fakeMapper struct {
	calledWith []questions.ClaimInput
	result     questions.Result
	err        error
}

func (m *fakeMapper) ProcessClaims(ctx context.Context, claims []questions.ClaimInput) (questions.Result, error) {
	m.calledWith = claims
	return m.result, m.err
}

func makeEngine(pipeline Pipeline, mapper QuestionMapper) (*Engine, *fakeJobs, *fakeRuns, *fakeEpisodes, *fakeClaims) {
	jobs := &fakeJobs{}
	runs := &fakeRuns{}
	episodes := &fakeEpisodes{}
	claims := &fakeClaims{}
	return New(jobs, runs, episodes, claims, pipeline, mapper), jobs, runs, episodes, claims
}

func TestRunEpisode_ChecksPointsEachPipelineStage(t *testing.T) {
	result := &batch.Result{
		MinerOutputs:    map[string]map[string]models.MinerOutput{"ep1": {"seg1": {EpisodeSourceID: "ep1", SegmentID: "seg1"}}},
		EvaluatedClaims: map[string][]models.EvaluatedClaim{"ep1": {{ClaimID: "c1", Decision: models.DecisionAccept, ClaimText: "x"}}},
		Summaries:       map[string]models.SummaryAssessment{"ep1": {EpisodeSourceID: "ep1"}},
	}
	pipeline := &fakePipeline{result: result}
	e, _, runs, episodes, claims := makeEngine(pipeline, nil)

	ep := models.Episode{SourceID: "ep1", Segments: []models.Segment{{EpisodeSourceID: "ep1", SegmentID: "seg1", T1: 1}}}
	out, err := e.RunEpisode(context.Background(), ep, nil, false)
	if err != nil {
		t.Fatalf("RunEpisode: %v", err)
	}
	wantCheckpoints := []string{"mine_complete", "evaluate_complete", "remine_complete", "persisted"}
	if len(runs.checkpoints) != len(wantCheckpoints) {
		t.Fatalf("expected checkpoints %v, got %v", wantCheckpoints, runs.checkpoints)
	}
	for i, c := range wantCheckpoints {
		if runs.checkpoints[i] != c {
			t.Errorf("checkpoint[%d] = %q, want %q", i, runs.checkpoints[i], c)
		}
	}
	if len(runs.completed) != 1 {
		t.Fatalf("expected run completed once, got %d", len(runs.completed))
	}
	if len(episodes.outputs) != 1 {
		t.Fatalf("expected 1 miner output persisted, got %d", len(episodes.outputs))
	}
	if len(claims.saved["ep1"]) != 1 {
		t.Fatalf("expected claims saved for ep1, got %+v", claims.saved)
	}
	if out.QuestionsRun != nil {
		t.Error("expected nil QuestionsRun when auto_process is false")
	}
}

func TestRunEpisode_AutoProcessRunsQuestionMapperOnAcceptedClaims(t *testing.T) {
	result := &batch.Result{
		MinerOutputs: map[string]map[string]models.MinerOutput{"ep1": {}},
		EvaluatedClaims: map[string][]models.EvaluatedClaim{"ep1": {
			{ClaimID: "c1", Decision: models.DecisionAccept, ClaimText: "accepted"},
			{ClaimID: "c2", Decision: models.DecisionReject, ClaimText: "rejected"},
		}},
		Summaries: map[string]models.SummaryAssessment{},
	}
	pipeline := &fakePipeline{result: result}
	mapper := &fakeMapper{result: questions.Result{LLMCallsMade: 2}}
	e, _, _, _, _ := makeEngine(pipeline, mapper)

	ep := models.Episode{SourceID: "ep1"}
	out, err := e.RunEpisode(context.Background(), ep, nil, true)
	if err != nil {
		t.Fatalf("RunEpisode: %v", err)
	}
	if len(mapper.calledWith) != 1 || mapper.calledWith[0].ClaimID != "c1" {
		t.Fatalf("expected mapper called with only the accepted claim, got %+v", mapper.calledWith)
	}
	if out.QuestionsRun == nil || out.QuestionsRun.LLMCallsMade != 2 {
		t.Fatalf("expected QuestionsRun populated from mapper result, got %+v", out.QuestionsRun)
	}
}

func TestRunEpisode_NoAcceptedClaimsSkipsMapperCall(t *testing.T) {
	result := &batch.Result{
		MinerOutputs:    map[string]map[string]models.MinerOutput{"ep1": {}},
		EvaluatedClaims: map[string][]models.EvaluatedClaim{"ep1": {{ClaimID: "c1", Decision: models.DecisionReject}}},
		Summaries:       map[string]models.SummaryAssessment{},
	}
	pipeline := &fakePipeline{result: result}
	mapper := &fakeMapper{}
	e, _, _, _, _ := makeEngine(pipeline, mapper)

	out, err := e.RunEpisode(context.Background(), models.Episode{SourceID: "ep1"}, nil, true)
	if err != nil {
		t.Fatalf("RunEpisode: %v", err)
	}
	if mapper.calledWith != nil {
		t.Error("expected ProcessClaims never called when no claim is accepted")
	}
	if out.QuestionsRun == nil {
		t.Fatal("expected a short-circuit QuestionsRun result, got nil")
	}
}

func TestRunEpisode_PipelineErrorFailsRun(t *testing.T) {
	pipeline := &fakePipeline{err: errors.New("provider exploded")}
	e, _, runs, _, _ := makeEngine(pipeline, nil)

	_, err := e.RunEpisode(context.Background(), models.Episode{SourceID: "ep1"}, nil, false)
	if err == nil {
		t.Fatal("expected error when pipeline fails")
	}
	if len(runs.failed) != 1 {
		t.Fatalf("expected fail_run called once, got %d", len(runs.failed))
	}
	if len(runs.completed) != 0 {
		t.Fatal("expected complete_run never called on pipeline failure")
	}
}

func TestRunEpisode_QuestionMapperErrorDoesNotFailPrimaryRun(t *testing.T) {
	result := &batch.Result{
		MinerOutputs:    map[string]map[string]models.MinerOutput{"ep1": {}},
		EvaluatedClaims: map[string][]models.EvaluatedClaim{"ep1": {{ClaimID: "c1", Decision: models.DecisionAccept, ClaimText: "x"}}},
		Summaries:       map[string]models.SummaryAssessment{},
	}
	pipeline := &fakePipeline{result: result}
	mapper := &fakeMapper{err: errors.New("mapper exploded")}
	e, _, runs, _, _ := makeEngine(pipeline, mapper)

	out, err := e.RunEpisode(context.Background(), models.Episode{SourceID: "ep1"}, nil, true)
	if err != nil {
		t.Fatalf("expected primary run to succeed despite mapper failure, got %v", err)
	}
	if out.QuestionsRun != nil {
		t.Error("expected nil QuestionsRun when mapper stage failed")
	}
	if len(runs.completed) != 1 {
		t.Fatalf("expected the primary run still marked complete, got %d completions", len(runs.completed))
	}
}

func TestRunEpisode_PublishesProgressAndCompletionEvents(t *testing.T) {
	result := &batch.Result{
		MinerOutputs:    map[string]map[string]models.MinerOutput{"ep1": {}},
		EvaluatedClaims: map[string][]models.EvaluatedClaim{"ep1": {{ClaimID: "c1", Decision: models.DecisionAccept, ClaimText: "x"}}},
		Summaries:       map[string]models.SummaryAssessment{},
	}
	pipeline := &fakePipeline{result: result}
	e, _, _, _, _ := makeEngine(pipeline, nil)

	hub := events.NewHub()
	globalCh, cancel := hub.Subscribe(events.GlobalRunsChannel)
	defer cancel()
	e.SetPublisher(events.NewPublisher(hub))

	_, err := e.RunEpisode(context.Background(), models.Episode{SourceID: "ep1"}, nil, false)
	if err != nil {
		t.Fatalf("RunEpisode: %v", err)
	}

	var types []events.EventType
	for {
		select {
		case evt := <-globalCh:
			types = append(types, evt.Type)
		case <-time.After(50 * time.Millisecond):
			goto done
		}
	}
done:
	var sawStarted, sawProgress, sawCompleted bool
	for _, et := range types {
		switch et {
		case events.EventTypeRunStarted:
			sawStarted = true
		case events.EventTypeRunProgress:
			sawProgress = true
		case events.EventTypeRunCompleted:
			sawCompleted = true
		}
	}
	if !sawStarted || !sawProgress || !sawCompleted {
		t.Fatalf("expected started/progress/completed events, got %v", types)
	}
}
