// Package pipeline runs the three-stage plan generation: triage -> plan ->
// critic, each stage blocking on the previous, with one LLM run row
// persisted per stage and quality evaluations fired after the fact.
package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"golang.org/x/sync/errgroup"

	"github.com/ValenteCreativo/carepilot/internal/llm"
	"github.com/ValenteCreativo/carepilot/internal/prompt"
	"github.com/ValenteCreativo/carepilot/internal/storage"
	"github.com/ValenteCreativo/carepilot/internal/trace"
)

const evalTimeout = 60 * time.Second

// Orchestrator drives the plan-generation pipeline.
type Orchestrator struct {
	store   *storage.Store
	gateway *llm.Gateway
	tracer  *trace.Tracer
	logger  *slog.Logger

	evals sync.WaitGroup
}

func NewOrchestrator(store *storage.Store, gateway *llm.Gateway, tracer *trace.Tracer) *Orchestrator {
	return &Orchestrator{
		store:   store,
		gateway: gateway,
		tracer:  tracer,
		logger:  slog.Default(),
	}
}

type GenerateInput struct {
	CaseID string
	Ctx    prompt.CaseContext
}

type GenerateResult struct {
	Plan    PlanDoc
	Triage  TriageResult
	PlanID  string
	TraceID string
}

// Generate runs triage -> plan -> critic for a case and persists the
// critic's plan as the canonical plan row. Every call performs three fresh
// model invocations; there is no caching by input hash. A stage parse
// failure aborts the whole call.
func (o *Orchestrator) Generate(ctx context.Context, in GenerateInput) (GenerateResult, error) {
	traceID := o.tracer.NewTraceID()

	triageRaw, _, err := o.runStage(ctx, in.CaseID, traceID, storage.StageTriage, prompt.Triage(in.Ctx))
	if err != nil {
		return GenerateResult{}, err
	}
	var triage TriageResult
	if err := parseStageJSON("triage", triageRaw, &triage); err != nil {
		return GenerateResult{}, err
	}

	planRaw, _, err := o.runStage(ctx, in.CaseID, traceID, storage.StagePlan, prompt.Plan(in.Ctx, stripFences(triageRaw)))
	if err != nil {
		return GenerateResult{}, err
	}
	var draft PlanDoc
	if err := parseStageJSON("plan", planRaw, &draft); err != nil {
		return GenerateResult{}, err
	}

	criticRaw, criticRunID, err := o.runStage(ctx, in.CaseID, traceID, storage.StageCritic, prompt.Critic(in.Ctx, stripFences(planRaw)))
	if err != nil {
		return GenerateResult{}, err
	}
	var final PlanDoc
	if err := parseStageJSON("critic", criticRaw, &final); err != nil {
		return GenerateResult{}, err
	}

	doc, err := json.Marshal(final)
	if err != nil {
		return GenerateResult{}, err
	}
	planRow := storage.Plan{
		ID:        uuid.NewString(),
		CaseID:    in.CaseID,
		Doc:       string(doc),
		CreatedAt: time.Now().UTC(),
	}
	if err := o.store.SavePlan(planRow); err != nil {
		return GenerateResult{}, err
	}

	// Quality evals are fire-and-forget: at-most-once, best-effort, never
	// surfaced to the caller.
	o.evals.Add(1)
	go o.runEvals(criticRunID, string(doc))

	if err := o.tracer.Flush(ctx); err != nil {
		o.logger.Warn("trace flush failed", "error", err)
	}

	return GenerateResult{
		Plan:    final,
		Triage:  triage,
		PlanID:  planRow.ID,
		TraceID: traceID,
	}, nil
}

// Wait blocks until all in-flight evaluation goroutines finish. Used for
// graceful shutdown and by tests.
func (o *Orchestrator) Wait() {
	o.evals.Wait()
}

// runStage builds no prompts itself; it calls the model, records a span,
// and persists the run row with the raw output, parsed or not. Returns the
// raw content and the persisted run id.
func (o *Orchestrator) runStage(ctx context.Context, caseID, traceID string, stage storage.Stage, p string) (string, string, error) {
	started := time.Now()
	res, err := o.gateway.Generate(ctx, p)
	if err != nil {
		return "", "", err
	}

	o.tracer.Record(trace.Span{
		TraceID:    traceID,
		Name:       string(stage),
		StartedAt:  started,
		DurationMs: res.LatencyMs,
		Attrs:      map[string]string{"model": res.Model, "case_id": caseID},
	})

	run := storage.LLMRun{
		ID:            ulid.Make().String(),
		CaseID:        caseID,
		Stage:         stage,
		PromptVersion: prompt.Version,
		Model:         res.Model,
		InputHash:     inputHash(res.Model, p),
		Output:        res.Content,
		LatencyMs:     res.LatencyMs,
		TraceID:       traceID,
		CreatedAt:     time.Now().UTC(),
	}
	if err := o.store.SaveRun(run); err != nil {
		return "", "", err
	}
	return res.Content, run.ID, nil
}

// runEvals scores the final plan on each metric in parallel. A failing
// metric is recorded as a verdict="error" row, never returned.
func (o *Orchestrator) runEvals(runID, planJSON string) {
	defer o.evals.Done()

	ctx, cancel := context.WithTimeout(context.Background(), evalTimeout)
	defer cancel()

	g, gCtx := errgroup.WithContext(ctx)
	for _, metric := range prompt.EvalMetrics {
		metric := metric
		g.Go(func() error {
			eval := o.evalMetric(gCtx, runID, metric, planJSON)
			if err := o.store.SaveEval(eval); err != nil {
				o.logger.Error("saving eval failed", "metric", metric, "error", err)
			}
			return nil
		})
	}
	g.Wait()
}

func (o *Orchestrator) evalMetric(ctx context.Context, runID, metric, planJSON string) storage.LLMEval {
	eval := storage.LLMEval{
		ID:        uuid.NewString(),
		RunID:     runID,
		Metric:    metric,
		CreatedAt: time.Now().UTC(),
	}

	res, err := o.gateway.Generate(ctx, prompt.Eval(metric, planJSON))
	if err != nil {
		o.logger.Warn("eval call failed", "metric", metric, "error", err)
		eval.Verdict = "error"
		return eval
	}

	if metric == "safety" {
		var parsed struct {
			Verdict string `json:"verdict"`
		}
		if err := parseStageJSON("eval", res.Content, &parsed); err != nil || (parsed.Verdict != "pass" && parsed.Verdict != "fail") {
			eval.Verdict = "error"
			return eval
		}
		eval.Verdict = parsed.Verdict
		return eval
	}

	var parsed struct {
		Score float64 `json:"score"`
	}
	if err := parseStageJSON("eval", res.Content, &parsed); err != nil {
		eval.Verdict = "error"
		return eval
	}
	eval.Score = parsed.Score
	return eval
}

func inputHash(model, p string) string {
	h := sha256.Sum256([]byte(model + "\n" + p))
	return hex.EncodeToString(h[:])
}
