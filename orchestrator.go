package enrich

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/vitalyst/enrich/internal/metrics"
	"github.com/vitalyst/enrich/internal/prompt"
	"github.com/vitalyst/enrich/internal/registry"
	"github.com/vitalyst/enrich/pkg/errors"
	"github.com/vitalyst/enrich/pkg/provider"
	"github.com/vitalyst/enrich/pkg/types"
)

// opState enumerates the orchestration phases. Within one operation,
// phases execute strictly in this machine's order.
type opState int

const (
	stateIdle opState = iota
	stateSelecting
	stateRendering
	stateCalling
	stateRetryWait
	stateFailingOver
	stateValidating
	stateSettling
	stateDone
	stateFailed
)

func (s opState) String() string {
	switch s {
	case stateIdle:
		return "idle"
	case stateSelecting:
		return "selecting"
	case stateRendering:
		return "rendering"
	case stateCalling:
		return "calling"
	case stateRetryWait:
		return "retry_wait"
	case stateFailingOver:
		return "failing_over"
	case stateValidating:
		return "validating"
	case stateSettling:
		return "settling"
	case stateDone:
		return "done"
	case stateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// operation is one in-flight Generate call driven through the state
// machine. Not shared across goroutines.
type operation struct {
	svc   *Service
	id    string
	ectx  types.EntityContext
	opts  *types.GenerateOptions
	state opState
	start time.Time

	entry    *registry.Entry
	acquired bool

	prompt string
	tmpl   *prompt.Template
	model  provider.ModelConfig

	attempted     []string
	attempts      int // on the current provider
	totalAttempts int
	delay         time.Duration

	estimate   float64
	estTracked bool

	raw        *types.RawResponse
	content    map[string]any
	validation *types.ValidationResult

	lastErr error
}

func newOperation(svc *Service, ectx types.EntityContext, opts *types.GenerateOptions) *operation {
	return &operation{
		svc:   svc,
		id:    uuid.NewString(),
		ectx:  ectx,
		opts:  opts,
		state: stateIdle,
		start: time.Now(),
	}
}

func (o *operation) run(ctx context.Context) (*types.GenerationResult, error) {
	o.state = stateSelecting
	for {
		select {
		case <-ctx.Done():
			o.cleanup()
			return nil, ctx.Err()
		default:
		}

		switch o.state {
		case stateSelecting:
			o.selectProvider(ctx)
		case stateRendering:
			o.render()
		case stateCalling:
			o.call(ctx)
		case stateRetryWait:
			o.wait(ctx)
		case stateFailingOver:
			o.failover()
		case stateValidating:
			o.validate(ctx)
		case stateSettling:
			o.settle(ctx)
		case stateDone:
			return o.result(), nil
		case stateFailed:
			return nil, o.terminalError()
		default:
			return nil, fmt.Errorf("orchestrator: invalid state %s", o.state)
		}
	}
}

// selectProvider scores every not-yet-attempted provider and acquires
// the best one whose rate limiter admits the call. Providers currently
// denied by tryAcquire are excluded this round, not penalized.
func (o *operation) selectProvider(ctx context.Context) {
	entity := o.ectx.EntityType()

	estTokens := 0
	if tmpl, err := o.svc.engine.Resolve(entity, o.opts.Version); err == nil {
		estTokens = tmpl.Config.MaxTokens
	}

	type candidate struct {
		entry *registry.Entry
		score float64
	}
	var candidates []candidate
	for _, entry := range o.svc.registry.List() {
		if o.wasAttempted(entry.Config.Name) {
			continue
		}
		candidates = append(candidates, candidate{
			entry: entry,
			score: o.score(entry.Config.Name),
		})
	}
	// registry.List is priority-ordered; a stable sort keeps that as
	// the tie-breaker.
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})

	for _, c := range candidates {
		name := c.entry.Config.Name
		if !o.svc.limiter.TryAcquire(name, estTokens) {
			metrics.RateLimitDenials.WithLabelValues(name).Inc()
			continue
		}

		o.entry = c.entry
		o.acquired = true
		o.attempted = append(o.attempted, name)
		o.attempts = 0
		o.delay = c.entry.Config.Retry.InitialDelay

		o.svc.logger.Debug("provider selected",
			"operation_id", o.id, "provider", name, "score", c.score)
		_ = o.svc.audit.Selection(ctx, o.id, name, map[string]any{
			"entity_type": string(entity),
			"score":       c.score,
			"attempted":   len(o.attempted),
		})
		o.state = stateRendering
		return
	}

	o.lastErr = errors.NewNoAvailableProviderError(
		"no provider available for "+string(entity), o.attempted)
	o.state = stateFailed
}

// score combines health, running cost, and latency, weighted by the
// caller's priority. Rate-limit availability is handled by exclusion,
// not by the score.
func (o *operation) score(name string) float64 {
	health := o.svc.monitor.SuccessRatio(name)

	costScore := 1.0 / (1.0 + o.svc.costs.Total(name))

	latencyScore := 1.0
	if snap, ok := o.svc.monitor.Snapshot(name); ok && snap.AvgLatencyMs > 0 {
		latencyScore = 1.0 / (1.0 + snap.AvgLatencyMs/1000.0)
	}

	switch o.opts.Priority {
	case types.PrioritySpeed:
		return 0.6*latencyScore + 0.3*health + 0.1*costScore
	case types.PriorityCost:
		return 0.6*costScore + 0.3*health + 0.1*latencyScore
	default: // quality
		return 0.6*health + 0.2*costScore + 0.2*latencyScore
	}
}

func (o *operation) wasAttempted(name string) bool {
	for _, n := range o.attempted {
		if n == name {
			return true
		}
	}
	return false
}

func (o *operation) render() {
	lang := o.opts.Language
	if lang == "" {
		lang = o.svc.cfg.DefaultLanguage
	}
	variant := o.opts.Variant
	if variant == "" {
		variant = types.VariantInitial
	}

	rendered, tmpl, err := o.svc.engine.Render(o.ectx.EntityType(), variant, o.ectx, o.opts.Version, lang)
	if err != nil {
		o.fail(err)
		return
	}
	o.prompt = rendered
	o.tmpl = tmpl
	o.model = o.entry.Config.DefaultModel()
	o.state = stateCalling
}

func (o *operation) maxRetries() int {
	if o.opts.MaxRetries > 0 {
		return o.opts.MaxRetries
	}
	return o.entry.Config.Retry.MaxRetries
}

func (o *operation) callTimeout() time.Duration {
	if o.opts.Timeout > 0 {
		return o.opts.Timeout
	}
	if o.entry.Config.Timeout > 0 {
		return o.entry.Config.Timeout
	}
	return o.svc.cfg.DefaultTimeout
}

// call executes one provider attempt: track the cost estimate, run the
// HTTP exchange under the per-call timeout, and parse the body into the
// unified response shape plus a content map.
func (o *operation) call(ctx context.Context) {
	name := o.entry.Config.Name
	o.attempts++
	o.totalAttempts++

	o.estimate = o.svc.costs.Estimate(name, o.prompt)
	o.svc.costs.Track(name, o.estimate)
	o.estTracked = true

	o.svc.monitor.AttemptStart(o.id, name)
	metrics.InFlight.WithLabelValues(name).Inc()
	callStart := time.Now()

	raw, content, err := o.exchange(ctx)

	latency := time.Since(callStart)
	metrics.InFlight.WithLabelValues(name).Dec()
	metrics.AttemptLatency.WithLabelValues(name).Observe(latency.Seconds())

	if err != nil {
		o.svc.monitor.AttemptEnd(o.id, name, err)
		metrics.ProviderAttempts.WithLabelValues(name, "error").Inc()

		// A failed call bills nothing upstream; the tracked estimate
		// becomes a void credit.
		o.svc.costs.Void(name, o.estimate)
		o.estTracked = false

		o.routeError(ctx, err)
		return
	}

	o.svc.monitor.AttemptEnd(o.id, name, nil)
	metrics.ProviderAttempts.WithLabelValues(name, "success").Inc()
	o.raw = raw
	o.content = content
	o.state = stateValidating
}

// exchange runs build/do/parse against the current provider and maps
// every failure mode onto the error taxonomy.
func (o *operation) exchange(ctx context.Context) (*types.RawResponse, map[string]any, error) {
	name := o.entry.Config.Name
	prov := o.entry.Provider

	callCtx, cancel := context.WithTimeout(ctx, o.callTimeout())
	defer cancel()

	req, err := prov.BuildRequest(callCtx, &provider.Request{
		Model:       o.model.Name,
		System:      o.tmpl.System,
		Prompt:      o.prompt,
		Temperature: o.tmpl.Config.Temperature,
		MaxTokens:   o.tmpl.Config.MaxTokens,
	})
	if err != nil {
		return nil, nil, errors.NewConfigError(fmt.Sprintf("build request for %s: %v", name, err))
	}

	resp, err := o.svc.clientFor(name).Do(req)
	if err != nil {
		if ctx.Err() != nil {
			// Caller-level cancellation, not a provider failure.
			return nil, nil, ctx.Err()
		}
		var urlErr *url.Error
		if stderrors.Is(callCtx.Err(), context.DeadlineExceeded) ||
			(stderrors.As(err, &urlErr) && urlErr.Timeout()) {
			return nil, nil, errors.NewTimeoutError(name, o.model.Name, "provider call timed out")
		}
		return nil, nil, errors.NewServerError(name, o.model.Name, http.StatusServiceUnavailable, err.Error())
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		return nil, nil, prov.MapError(resp.StatusCode, body)
	}

	raw, err := prov.ParseResponse(resp)
	if err != nil {
		return nil, nil, err
	}

	var content map[string]any
	if err := json.Unmarshal([]byte(raw.Content), &content); err != nil {
		return nil, nil, errors.NewInvalidResponseError(name, o.model.Name,
			"response content is not a JSON object")
	}
	return raw, content, nil
}

// routeError decides the next state after a failed attempt: fatal
// errors surface immediately, retryable ones back off on the same
// provider until its attempt budget is spent, then fail over.
func (o *operation) routeError(ctx context.Context, err error) {
	o.lastErr = err

	if ctx.Err() != nil {
		o.cleanup()
		o.state = stateFailed
		return
	}
	if errors.IsFatal(err) {
		o.fail(err)
		return
	}
	if errors.IsRetryable(err) && o.attempts < o.maxRetries() {
		o.state = stateRetryWait
		return
	}
	if errors.TriggersFailover(err) {
		o.state = stateFailingOver
		return
	}
	o.fail(err)
}

func (o *operation) wait(ctx context.Context) {
	timer := time.NewTimer(o.delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		o.cleanup()
		o.state = stateFailed
		o.lastErr = ctx.Err()
	case <-timer.C:
		factor := o.entry.Config.Retry.BackoffFactor
		o.delay = time.Duration(float64(o.delay) * factor)
		o.state = stateCalling
	}
}

func (o *operation) failover() {
	if o.acquired {
		o.svc.limiter.Release(o.entry.Config.Name)
		o.acquired = false
	}
	o.svc.logger.Debug("failing over",
		"operation_id", o.id, "provider", o.entry.Config.Name, "error", o.lastErr)
	o.state = stateSelecting
}

func (o *operation) validate(ctx context.Context) {
	name := o.entry.Config.Name
	entity := o.ectx.EntityType()

	schemaVersion := o.tmpl.Config.SchemaVersion
	if schemaVersion == "" {
		schemaVersion = o.opts.Version
	}

	validation, err := o.svc.validator.Validate(entity, o.content, schemaVersion)
	if err != nil {
		o.fail(err)
		return
	}
	o.validation = validation

	_ = o.svc.audit.Validation(ctx, o.id, map[string]any{
		"entity_type":  string(entity),
		"provider":     name,
		"is_valid":     validation.IsValid,
		"completeness": validation.Metrics.Completeness,
		"confidence":   validation.Metrics.Confidence,
		"errors":       len(validation.Errors),
	})

	if !validation.IsValid {
		metrics.ValidationFailures.WithLabelValues(string(entity)).Inc()

		// The call consumed real tokens; settle before moving on.
		actual := o.svc.costs.ActualCost(name, o.raw.Usage.TotalTokens)
		o.svc.costs.Settle(name, o.estimate, actual)
		metrics.CostTracked.WithLabelValues(name).Add(actual)
		o.estTracked = false

		// Regenerating against the same provider would replay the same
		// prompt; TriggersFailover sends this to a different provider.
		o.routeError(ctx, errors.NewValidationFailedError(name, o.model.Name,
			fmt.Sprintf("response failed validation with %d errors", len(validation.Errors))))
		return
	}

	o.state = stateSettling
}

func (o *operation) settle(ctx context.Context) {
	name := o.entry.Config.Name

	actual := o.svc.costs.ActualCost(name, o.raw.Usage.TotalTokens)
	o.svc.costs.Settle(name, o.estimate, actual)
	metrics.CostTracked.WithLabelValues(name).Add(actual)
	metrics.TokensUsed.WithLabelValues(name, "prompt").Add(float64(o.raw.Usage.PromptTokens))
	metrics.TokensUsed.WithLabelValues(name, "completion").Add(float64(o.raw.Usage.CompletionTokens))
	o.estTracked = false

	o.svc.limiter.Release(name)
	o.acquired = false

	_ = o.svc.audit.Generation(ctx, o.id, name, map[string]any{
		"entity_type": string(o.ectx.EntityType()),
		"model":       o.raw.Model,
		"attempts":    o.totalAttempts,
		"tokens":      o.raw.Usage.TotalTokens,
		"cost":        actual,
	})
	o.state = stateDone
}

func (o *operation) result() *types.GenerationResult {
	return &types.GenerationResult{
		EntityType: o.ectx.EntityType(),
		Content:    o.content,
		Provider:   o.entry.Config.Name,
		Confidence: o.validation.Metrics.Confidence,
		Validation: o.validation,
		Metadata: types.ResultMetadata{
			OperationID:    o.id,
			Model:          o.raw.Model,
			Timestamp:      o.start.UTC(),
			ProcessingTime: time.Since(o.start),
			TokenCount:     o.raw.Usage.TotalTokens,
			Attempts:       o.totalAttempts,
		},
	}
}

// fail ends the operation with err after releasing any held resources.
func (o *operation) fail(err error) {
	o.cleanup()
	o.lastErr = err
	o.state = stateFailed
}

// cleanup releases the limiter slot and voids an unsettled estimate.
// Idempotent; called on cancellation and terminal failure paths.
func (o *operation) cleanup() {
	if o.entry == nil {
		return
	}
	name := o.entry.Config.Name
	if o.estTracked {
		o.svc.costs.Void(name, o.estimate)
		o.estTracked = false
	}
	if o.acquired {
		o.svc.limiter.Release(name)
		o.acquired = false
	}
}

// terminalError is the single error surfaced to the caller, carrying
// the chain of providers attempted.
func (o *operation) terminalError() error {
	err := o.lastErr
	if err == nil {
		err = errors.NewNoAvailableProviderError("generation failed", o.attempted)
	}
	var enrichErr *errors.EnrichError
	if stderrors.As(err, &enrichErr) && len(enrichErr.Attempted) == 0 {
		enrichErr.Attempted = o.attempted
	}

	_ = o.svc.audit.Generation(context.Background(), o.id, o.lastProvider(), map[string]any{
		"entity_type": string(o.ectx.EntityType()),
		"error":       err.Error(),
		"attempts":    o.totalAttempts,
		"attempted":   o.attempted,
	})
	return err
}

func (o *operation) lastProvider() string {
	if len(o.attempted) == 0 {
		return "none"
	}
	return o.attempted[len(o.attempted)-1]
}
