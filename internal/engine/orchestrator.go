package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/arbiterlabs/arbiter/internal/assessments"
	"github.com/arbiterlabs/arbiter/internal/evaluator"
	"github.com/arbiterlabs/arbiter/internal/events"
	"github.com/arbiterlabs/arbiter/internal/evidence"
	"github.com/arbiterlabs/arbiter/internal/inference"
	"github.com/arbiterlabs/arbiter/internal/parser"
	"github.com/arbiterlabs/arbiter/internal/workflows"
	"github.com/arbiterlabs/arbiter/pkg/ratelimit"
	"github.com/arbiterlabs/arbiter/pkg/storage"
)

const cancelPollInterval = 2 * time.Second

// fatalError marks a failure that no retry can recover from. The code
// becomes the assessment's error_code.
type fatalError struct {
	code string
	err  error
}

func (e *fatalError) Error() string { return fmt.Sprintf("%s: %s", e.code, e.err) }
func (e *fatalError) Unwrap() error { return e.err }

func fatal(code string, err error) error {
	return &fatalError{code: code, err: err}
}

// Orchestrator drives one claimed assessment through the full pipeline:
// download and parse documents, evaluate criteria in batches, locate
// evidence, and persist the outcome.
type Orchestrator struct {
	store      Store
	flows      workflows.System
	blobs      storage.System
	eval       *evaluator.Evaluator
	locator    *evidence.Locator
	limiter    *ratelimit.Limiter
	publisher  events.Publisher
	cache      *parser.Cache
	config     Config
	logger     *slog.Logger
	cancelPoll time.Duration
}

// NewOrchestrator wires the orchestrator's collaborators.
func NewOrchestrator(
	store Store,
	flows workflows.System,
	blobs storage.System,
	eval *evaluator.Evaluator,
	locator *evidence.Locator,
	limiter *ratelimit.Limiter,
	publisher events.Publisher,
	config Config,
	logger *slog.Logger,
) *Orchestrator {
	return &Orchestrator{
		store:      store,
		flows:      flows,
		blobs:      blobs,
		eval:       eval,
		locator:    locator,
		limiter:    limiter,
		publisher:  publisher,
		cache:      parser.NewCache(),
		config:     config,
		logger:     logger.With("system", "orchestrator"),
		cancelPoll: cancelPollInterval,
	}
}

// Run processes a claimed assessment to a terminal or retryable state.
// Every path out of here either persists a terminal status, releases the
// assessment for retry, or abandons it because the lease was lost.
func (o *Orchestrator) Run(ctx context.Context, workerID string, a *assessments.Assessment) {
	runCtx, cancel := context.WithTimeout(ctx, o.config.TimeoutBudgetDuration())
	defer cancel()

	var cancelled atomic.Bool
	stopWatch := o.watchCancellation(runCtx, a.ID, &cancelled, cancel)
	defer stopWatch()

	outcome, err := o.process(runCtx, workerID, a)

	terminal := false
	switch {
	case err == nil:
		o.finalize(ctx, a, o.store.Complete(ctx, a.ID, workerID, outcome), events.Event{
			Type:         events.TypeCompleted,
			AssessmentID: a.ID,
			TenantID:     a.TenantID,
			Status:       string(assessments.StatusCompleted),
		})
		terminal = true

	case cancelled.Load():
		o.failEvent(ctx, workerID, a, assessments.ErrCodeCancelled, "cancelled by request",
			events.TypeCancelled)
		terminal = true

	case isFatal(err):
		var f *fatalError
		errors.As(err, &f)
		o.fail(ctx, workerID, a, f.code, f.err.Error())
		terminal = true

	case errors.Is(err, ErrLeaseLost):
		o.logger.Warn("abandoning assessment after lease loss", "assessment", a.ID)

	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		// budget exhaustion is fatal, never retried
		o.fail(ctx, workerID, a, assessments.ErrCodeTimeout,
			fmt.Sprintf("exceeded processing budget of %s", o.config.TimeoutBudget))
		terminal = true

	case ctx.Err() != nil:
		// Shutdown: leave the lease to expire so another worker resumes.
		o.logger.Info("abandoning assessment on shutdown", "assessment", a.ID)

	default:
		terminal = o.retryOrFail(ctx, workerID, a, assessments.ErrCodeRetryExhausted, err.Error())
	}

	if terminal {
		o.evictParses(a)
	}
}

// evictParses drops the assessment's documents from the parse cache once no
// further attempt can reuse them.
func (o *Orchestrator) evictParses(a *assessments.Assessment) {
	ids := make([]uuid.UUID, len(a.Documents))
	for i, doc := range a.Documents {
		ids[i] = doc.ID
	}
	o.cache.Drop(ids...)
}

func (o *Orchestrator) process(ctx context.Context, workerID string, a *assessments.Assessment) (Outcome, error) {
	flow, err := o.flows.Fetch(ctx, a.WorkflowID)
	if err != nil {
		if errors.Is(err, workflows.ErrNotFound) {
			return Outcome{}, fatal(assessments.ErrCodeInvalidWorkflow, err)
		}
		return Outcome{}, fmt.Errorf("fetch workflow: %w", err)
	}

	parsed, err := o.parseDocuments(ctx, workerID, a)
	if err != nil {
		return Outcome{}, err
	}

	if err := o.checkRequiredBuckets(flow, a, parsed); err != nil {
		return Outcome{}, err
	}

	applicable, evaluable, unusable := partitionCriteria(flow, a, parsed)

	if err := o.store.SetProgress(ctx, a.ID, workerID, 0, len(applicable)); err != nil {
		return Outcome{}, fmt.Errorf("set progress: %w", err)
	}

	results := make([]assessments.Result, 0, len(applicable))
	now := time.Now().UTC()

	for _, c := range unusable {
		results = append(results, degradedResult(a.ID, c.ID, now,
			"referenced documents could not be parsed"))
	}

	evaluated, err := o.evaluateAll(ctx, workerID, a, evaluable, parsed, len(unusable), len(applicable), now)
	if err != nil {
		return Outcome{}, err
	}
	results = append(results, evaluated...)

	if len(results) != len(applicable) {
		return Outcome{}, fatal(assessments.ErrCodeEvaluationFailed,
			fmt.Errorf("produced %d results for %d applicable criteria", len(results), len(applicable)))
	}

	outcome := Outcome{Results: results}
	for _, res := range results {
		if res.Pass {
			outcome.Passed++
		} else {
			outcome.Failed++
		}
	}

	return outcome, nil
}

// evaluateAll runs the evaluable criteria through the inference service in
// batches, fanning out up to EvalConcurrency batches at once. Results come
// back in deterministic batch order; progress writes are serialized.
func (o *Orchestrator) evaluateAll(
	ctx context.Context,
	workerID string,
	a *assessments.Assessment,
	evaluable []workflows.Criterion,
	parsed map[uuid.UUID]*parser.Document,
	done, applicable int,
	now time.Time,
) ([]assessments.Result, error) {
	type unit struct {
		criteria []workflows.Criterion
		docs     []*parser.Document
	}

	var units []unit
	for _, group := range groupByDocuments(evaluable, a, parsed) {
		for batch := range chunk(group.criteria, o.config.BatchSize) {
			units = append(units, unit{criteria: batch, docs: group.docs})
		}
	}

	var progressMu sync.Mutex
	out := make([][]assessments.Result, len(units))

	eg, gctx := errgroup.WithContext(ctx)
	eg.SetLimit(o.config.EvalConcurrency)

	for i, u := range units {
		eg.Go(func() error {
			batchResults, err := o.evaluateBatch(gctx, workerID, a, u.criteria, u.docs, now)
			if err != nil {
				return err
			}
			out[i] = batchResults

			progressMu.Lock()
			defer progressMu.Unlock()
			done += len(u.criteria)
			if err := o.store.SetProgress(gctx, a.ID, workerID, done, applicable); err != nil {
				return fmt.Errorf("set progress: %w", err)
			}
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return nil, err
	}

	results := make([]assessments.Result, 0, len(evaluable))
	for _, batchResults := range out {
		results = append(results, batchResults...)
	}
	return results, nil
}

func (o *Orchestrator) evaluateBatch(
	ctx context.Context,
	workerID string,
	a *assessments.Assessment,
	batch []workflows.Criterion,
	docs []*parser.Document,
	now time.Time,
) ([]assessments.Result, error) {
	if err := o.limiter.Wait(ctx, a.TenantID); err != nil {
		return nil, err
	}

	verdicts, usage, err := o.eval.EvaluateBatch(ctx, batch, docs)

	if usage.TotalTokens > 0 {
		if costErr := o.store.AddCost(ctx, a.ID, workerID, int64(usage.TotalTokens)); costErr != nil {
			o.logger.Warn("cost update failed", "assessment", a.ID, "error", costErr)
		}
	}

	if err != nil {
		if errors.Is(err, evaluator.ErrMalformed) || errors.Is(err, inference.ErrRejected) {
			if o.config.StrictEvaluation {
				return nil, fatal(assessments.ErrCodeEvaluationFailed, err)
			}
			o.logger.Warn("degrading batch after unusable evaluation",
				"assessment", a.ID,
				"criteria", len(batch),
				"error", err,
			)
			results := make([]assessments.Result, len(batch))
			for i, c := range batch {
				results[i] = degradedResult(a.ID, c.ID, now, "evaluation produced unusable output")
			}
			return results, nil
		}
		return nil, fmt.Errorf("evaluate batch: %w", err)
	}

	results := make([]assessments.Result, len(batch))
	for i, c := range batch {
		v := verdicts[i]
		results[i] = assessments.Result{
			ID:           uuid.New(),
			AssessmentID: a.ID,
			CriterionID:  c.ID,
			Pass:         v.Pass,
			Confidence:   string(v.Confidence),
			Reasoning:    v.Reasoning,
			CreatedAt:    now,
		}

		if match := o.locator.Locate(v.EvidenceHint, docs); match != nil {
			results[i].Evidence = &assessments.Evidence{
				DocumentID: match.DocumentID,
				Page:       match.Page,
				Section:    match.Section,
				Quote:      match.Quote,
			}
		}
	}

	return results, nil
}

// parseDocuments downloads and parses the assessment's documents, up to
// ParseConcurrency at a time, recording per-document outcomes. Parse
// failures degrade gracefully unless strict evaluation is enabled; download
// failures other than a missing blob are transient.
func (o *Orchestrator) parseDocuments(
	ctx context.Context,
	workerID string,
	a *assessments.Assessment,
) (map[uuid.UUID]*parser.Document, error) {
	var mu sync.Mutex
	parsed := make(map[uuid.UUID]*parser.Document, len(a.Documents))

	eg, gctx := errgroup.WithContext(ctx)
	eg.SetLimit(o.config.ParseConcurrency)

	for _, doc := range a.Documents {
		eg.Go(func() error {
			result, err := o.parseDocument(gctx, workerID, a, doc)
			if err != nil || result == nil {
				return err
			}

			mu.Lock()
			parsed[doc.ID] = result
			mu.Unlock()
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return parsed, nil
}

// parseDocument resolves one document to its parsed form, consulting the
// cache first. A nil result with nil error means the document was recorded
// as unusable and evaluation should proceed without it.
func (o *Orchestrator) parseDocument(
	ctx context.Context,
	workerID string,
	a *assessments.Assessment,
	doc assessments.Document,
) (*parser.Document, error) {
	if cached, ok := o.cache.Get(doc.ID); ok {
		return cached, nil
	}

	data, err := o.download(ctx, doc.StorageKey)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, o.recordParseFailure(ctx, workerID, a, doc, "document missing from storage")
		}
		return nil, fmt.Errorf("download %s: %w", doc.StorageKey, err)
	}

	result, err := parser.Parse(ctx, doc.ID, data, doc.ContentType)
	if err != nil {
		if parser.IsParseFailure(err) {
			return nil, o.recordParseFailure(ctx, workerID, a, doc, err.Error())
		}
		return nil, fmt.Errorf("parse %s: %w", doc.Filename, err)
	}

	if err := o.store.SetDocumentParse(ctx, doc.ID, workerID, assessments.ParseOK, nil); err != nil {
		return nil, fmt.Errorf("record parse status: %w", err)
	}

	o.cache.Put(result)
	return result, nil
}

func (o *Orchestrator) recordParseFailure(
	ctx context.Context,
	workerID string,
	a *assessments.Assessment,
	doc assessments.Document,
	reason string,
) error {
	o.logger.Warn("document parse failed",
		"assessment", a.ID,
		"document", doc.Filename,
		"reason", reason,
	)

	if err := o.store.SetDocumentParse(ctx, doc.ID, workerID, assessments.ParseFailed, &reason); err != nil {
		return fmt.Errorf("record parse failure: %w", err)
	}

	if o.config.StrictEvaluation {
		return fatal(assessments.ErrCodeRequiredUnusable,
			fmt.Errorf("document %s unusable under strict evaluation: %s", doc.Filename, reason))
	}

	return nil
}

func (o *Orchestrator) download(ctx context.Context, key string) ([]byte, error) {
	reader, err := o.blobs.Download(ctx, key)
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	return io.ReadAll(reader)
}

// checkRequiredBuckets fails the assessment when a required bucket has
// documents but none of them parsed.
func (o *Orchestrator) checkRequiredBuckets(
	flow *workflows.Workflow,
	a *assessments.Assessment,
	parsed map[uuid.UUID]*parser.Document,
) error {
	for _, bucket := range flow.Buckets {
		if !bucket.Required {
			continue
		}

		total, usable := 0, 0
		for _, doc := range a.Documents {
			if doc.BucketID != bucket.ID {
				continue
			}
			total++
			if _, ok := parsed[doc.ID]; ok {
				usable++
			}
		}

		if total > 0 && usable == 0 {
			return fatal(assessments.ErrCodeRequiredUnusable,
				fmt.Errorf("no usable documents in required bucket %s", bucket.Name))
		}
	}

	return nil
}

func (o *Orchestrator) watchCancellation(
	ctx context.Context,
	id uuid.UUID,
	cancelled *atomic.Bool,
	cancel context.CancelFunc,
) func() {
	done := make(chan struct{})

	go func() {
		ticker := time.NewTicker(o.cancelPoll)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-done:
				return
			case <-ticker.C:
				requested, err := o.store.CancelRequested(ctx, id)
				if err != nil {
					continue
				}
				if requested {
					cancelled.Store(true)
					cancel()
					return
				}
			}
		}
	}()

	return func() { close(done) }
}

func (o *Orchestrator) fail(
	ctx context.Context,
	workerID string,
	a *assessments.Assessment,
	code, message string,
) {
	o.failEvent(ctx, workerID, a, code, message, events.TypeFailed)
}

// failEvent persists the failed status and publishes evtType, which is
// TypeCancelled when the failure came from a cancellation request.
func (o *Orchestrator) failEvent(
	ctx context.Context,
	workerID string,
	a *assessments.Assessment,
	code, message, evtType string,
) {
	err := o.store.Fail(context.WithoutCancel(ctx), a.ID, workerID, code, message)
	o.finalize(ctx, a, err, events.Event{
		Type:         evtType,
		AssessmentID: a.ID,
		TenantID:     a.TenantID,
		Status:       string(assessments.StatusFailed),
		ErrorCode:    code,
	})
}

// retryOrFail releases the assessment for another attempt with exponential
// backoff, or fails it once the attempt budget is spent. Returns true when
// the assessment reached a terminal state.
func (o *Orchestrator) retryOrFail(
	ctx context.Context,
	workerID string,
	a *assessments.Assessment,
	code, message string,
) bool {
	ctx = context.WithoutCancel(ctx)

	if a.Attempts >= o.config.MaxAttempts {
		o.fail(ctx, workerID, a, code, fmt.Sprintf("%s (after %d attempts)", message, a.Attempts))
		return true
	}

	next := time.Now().UTC().Add(o.backoff(a.Attempts))
	if err := o.store.Release(ctx, a.ID, workerID, next); err != nil {
		if errors.Is(err, ErrLeaseLost) {
			o.logger.Warn("lease lost before release", "assessment", a.ID)
			return false
		}
		o.logger.Error("release failed", "assessment", a.ID, "error", err)
		return false
	}

	o.logger.Info("assessment released for retry",
		"assessment", a.ID,
		"attempt", a.Attempts,
		"next_attempt", next,
		"reason", message,
	)
	return false
}

func (o *Orchestrator) backoff(attempt int) time.Duration {
	return backoffDelay(attempt,
		o.config.InitialBackoffDuration(),
		o.config.MaxBackoffDuration(),
		o.config.BackoffMultiplier,
	)
}

func (o *Orchestrator) finalize(
	ctx context.Context,
	a *assessments.Assessment,
	persistErr error,
	evt events.Event,
) {
	if persistErr != nil {
		if errors.Is(persistErr, ErrLeaseLost) {
			o.logger.Warn("lease lost before persisting outcome", "assessment", a.ID)
			return
		}
		o.logger.Error("outcome persistence failed", "assessment", a.ID, "error", persistErr)
		return
	}

	o.logger.Info("assessment finished",
		"assessment", a.ID,
		"status", evt.Status,
		"error_code", evt.ErrorCode,
	)

	if err := o.publisher.Publish(context.WithoutCancel(ctx), evt); err != nil {
		o.logger.Warn("event publish failed", "assessment", a.ID, "error", err)
	}
}

func isFatal(err error) bool {
	var f *fatalError
	return errors.As(err, &f)
}

func degradedResult(assessmentID, criterionID uuid.UUID, now time.Time, reason string) assessments.Result {
	return assessments.Result{
		ID:           uuid.New(),
		AssessmentID: assessmentID,
		CriterionID:  criterionID,
		Pass:         false,
		Confidence:   string(evaluator.ConfidenceLow),
		Reasoning:    reason,
		CreatedAt:    now,
	}
}

// partitionCriteria splits workflow criteria into the applicable set
// (scoped to at least one uploaded document), the evaluable subset (at
// least one scoped document parsed), and the unusable remainder.
func partitionCriteria(
	flow *workflows.Workflow,
	a *assessments.Assessment,
	parsed map[uuid.UUID]*parser.Document,
) (applicable, evaluable, unusable []workflows.Criterion) {
	for _, c := range flow.Criteria {
		referenced, usable := false, false
		for _, doc := range a.Documents {
			if !c.AppliesToBucket(doc.BucketID) {
				continue
			}
			referenced = true
			if _, ok := parsed[doc.ID]; ok {
				usable = true
			}
		}

		if !referenced {
			continue
		}

		applicable = append(applicable, c)
		if usable {
			evaluable = append(evaluable, c)
		} else {
			unusable = append(unusable, c)
		}
	}

	return applicable, evaluable, unusable
}

type criterionGroup struct {
	criteria []workflows.Criterion
	docs     []*parser.Document
}

// groupByDocuments batches criteria that share the same usable document
// set so one inference call covers them all. Groups and their documents
// are ordered deterministically.
func groupByDocuments(
	criteria []workflows.Criterion,
	a *assessments.Assessment,
	parsed map[uuid.UUID]*parser.Document,
) []criterionGroup {
	type entry struct {
		docs []*parser.Document
		crit []workflows.Criterion
	}

	order := make([]string, 0)
	groups := make(map[string]*entry)

	for _, c := range criteria {
		docs := scopedDocuments(c, a, parsed)
		key := documentsKey(docs)

		g, ok := groups[key]
		if !ok {
			g = &entry{docs: docs}
			groups[key] = g
			order = append(order, key)
		}
		g.crit = append(g.crit, c)
	}

	result := make([]criterionGroup, 0, len(order))
	for _, key := range order {
		g := groups[key]
		result = append(result, criterionGroup{criteria: g.crit, docs: g.docs})
	}
	return result
}

func scopedDocuments(
	c workflows.Criterion,
	a *assessments.Assessment,
	parsed map[uuid.UUID]*parser.Document,
) []*parser.Document {
	docs := make([]*parser.Document, 0)
	for _, doc := range a.Documents {
		if !c.AppliesToBucket(doc.BucketID) {
			continue
		}
		if p, ok := parsed[doc.ID]; ok {
			docs = append(docs, p)
		}
	}

	sort.Slice(docs, func(i, j int) bool {
		return docs[i].DocumentID.String() < docs[j].DocumentID.String()
	})
	return docs
}

func documentsKey(docs []*parser.Document) string {
	ids := make([]string, len(docs))
	for i, d := range docs {
		ids[i] = d.DocumentID.String()
	}
	return strings.Join(ids, ",")
}

// chunk yields successive sub-slices of at most size elements.
func chunk(criteria []workflows.Criterion, size int) func(func([]workflows.Criterion) bool) {
	if size < 1 {
		size = 1
	}
	return func(yield func([]workflows.Criterion) bool) {
		for start := 0; start < len(criteria); start += size {
			end := min(start+size, len(criteria))
			if !yield(criteria[start:end]) {
				return
			}
		}
	}
}
