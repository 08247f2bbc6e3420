// Package scope turns project text into a requirements catalogue and draft WBS through a
// confidence-gated extraction loop with a rule-based fallback.
package scope

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/evanschultz/pmforge/internal/agent"
	"github.com/evanschultz/pmforge/internal/agent/quality"
	"github.com/evanschultz/pmforge/internal/artifact"
	"github.com/evanschultz/pmforge/internal/domain"
	"github.com/evanschultz/pmforge/internal/llm"
	"github.com/evanschultz/pmforge/internal/prompt"
	"github.com/evanschultz/pmforge/internal/rag"
)

// Extraction loop states.
const (
	StateDrafting   = "drafting"
	StateCritiquing = "critiquing"
	StateRefining   = "refining"
	StateAccepted   = "accepted"
	StateExhausted  = "exhausted"
)

const rawExcerptRunes = 500

var errNotAccepted = errors.New("reply not accepted")

// ExtractionError reports that neither the model nor the fallback produced a requirement.
type ExtractionError struct {
	ProjectID string
	Attempts  int
	Err       error
}

func (e *ExtractionError) Error() string {
	msg := fmt.Sprintf("scope extraction failed for %s after %d attempt(s)", e.ProjectID, e.Attempts)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

// Config holds agent defaults. Per-run payload options override them.
type Config struct {
	ConfidenceThreshold  float64
	MaxAttempts          int
	WBSDepth             int
	RunQualityCheck      bool
	Hierarchical         bool
	SelfRefine           bool
	SelfRefineIterations int
	SelfRefineTarget     float64
	TreeOfThoughts       bool
	Constraints          Constraints
	RetrievalTopK        int
}

// DefaultConfig returns threshold 0.75, 3 attempts, depth 3, and a 2-round Self-Refine toward 0.9.
func DefaultConfig() Config {
	return Config{
		ConfidenceThreshold:  0.75,
		MaxAttempts:          3,
		WBSDepth:             3,
		SelfRefineIterations: 2,
		SelfRefineTarget:     0.9,
		RetrievalTopK:        3,
	}
}

// Agent is the Scope Agent.
type Agent struct {
	cfg      Config
	caller   *llm.Caller
	layout   artifact.Layout
	quality  *quality.Agent
	store    rag.Store
	recorder *llm.Recorder
	logger   *log.Logger
	now      func() time.Time
}

// Option configures an Agent.
type Option func(*Agent)

// WithConfig replaces the defaults.
func WithConfig(cfg Config) Option {
	return func(a *Agent) {
		a.cfg = cfg
	}
}

// WithQuality enables the quality gate when run_quality_check is set.
func WithQuality(q *quality.Agent) Option {
	return func(a *Agent) {
		a.quality = q
	}
}

// WithRetrieval prepends snippets from store to extraction prompts.
func WithRetrieval(store rag.Store) Option {
	return func(a *Agent) {
		a.store = store
	}
}

// WithRecorder dumps every raw extraction reply.
func WithRecorder(r *llm.Recorder) Option {
	return func(a *Agent) {
		a.recorder = r
	}
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(a *Agent) {
		if l != nil {
			a.logger = l
		}
	}
}

// WithClock sets the time source used for generated ids and artifact stamps.
func WithClock(now func() time.Time) Option {
	return func(a *Agent) {
		if now != nil {
			a.now = now
		}
	}
}

// New constructs a Scope Agent writing artifacts under layout. caller may be nil.
func New(caller *llm.Caller, layout artifact.Layout, opts ...Option) *Agent {
	a := &Agent{
		cfg:    DefaultConfig(),
		caller: caller,
		layout: layout,
		logger: agent.DiscardLogger(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	def := DefaultConfig()
	if a.cfg.ConfidenceThreshold <= 0 || a.cfg.ConfidenceThreshold > 1 {
		a.cfg.ConfidenceThreshold = def.ConfidenceThreshold
	}
	if a.cfg.MaxAttempts < 1 {
		a.cfg.MaxAttempts = def.MaxAttempts
	}
	if a.cfg.WBSDepth < 1 {
		a.cfg.WBSDepth = def.WBSDepth
	}
	if a.cfg.SelfRefineIterations < 1 {
		a.cfg.SelfRefineIterations = def.SelfRefineIterations
	}
	if a.cfg.SelfRefineTarget <= 0 || a.cfg.SelfRefineTarget > 1 {
		a.cfg.SelfRefineTarget = def.SelfRefineTarget
	}
	if a.cfg.RetrievalTopK < 1 {
		a.cfg.RetrievalTopK = def.RetrievalTopK
	}
	return a
}

// Name returns the step name.
func (a *Agent) Name() string {
	return agent.StepScope
}

// runSettings are the effective options for one run.
type runSettings struct {
	threshold    float64
	maxAttempts  int
	depth        int
	quality      bool
	hierarchical bool
	selfRefine   bool
	tot          bool
}

func (a *Agent) settings(o agent.Options) runSettings {
	s := runSettings{
		threshold:    a.cfg.ConfidenceThreshold,
		maxAttempts:  a.cfg.MaxAttempts,
		depth:        a.cfg.WBSDepth,
		quality:      agent.Bool(o.RunQualityCheck, a.cfg.RunQualityCheck),
		hierarchical: agent.Bool(o.Hierarchical, a.cfg.Hierarchical),
		selfRefine:   agent.Bool(o.SelfRefine, a.cfg.SelfRefine),
		tot:          agent.Bool(o.TreeOfThoughts, a.cfg.TreeOfThoughts),
	}
	if o.ConfidenceThreshold > 0 && o.ConfidenceThreshold <= 1 {
		s.threshold = o.ConfidenceThreshold
	}
	if o.MaxAttempts > 0 {
		s.maxAttempts = o.MaxAttempts
	}
	if o.WBSDepth > 0 {
		s.depth = o.WBSDepth
	}
	return s
}

// extraction is the outcome of the confidence-gated loop.
type extraction struct {
	catalogue   Catalogue
	confidence  float64
	attempts    int
	accepted    bool
	parsed      bool
	lastRaw     string
	transitions []string
	err         error
}

// Run extracts requirements, writes the SRS, RTM, and WBS draft, and returns the scope result.
func (a *Agent) Run(ctx context.Context, in agent.Payload) (agent.Result, error) {
	if err := artifact.ValidateSegment(in.ProjectID); err != nil {
		return agent.Result{}, fmt.Errorf("scope: %w", err)
	}
	set := a.settings(in.Options)
	text := in.CorpusText()
	logger := a.logger.With("project_id", in.ProjectID, "step", agent.StepScope)
	out := &agent.ScopeOutput{}
	var warnings []string

	detail := prompt.DetailBalanced
	if set.tot {
		s := SelectStrategy(Analyze(text), a.cfg.Constraints)
		detail = s.Name
		out.Strategy = s.Name
		logger.Info("strategy selected", "strategy", s.Name, "score", s.Score)
	}
	snippets := a.retrieve(ctx, text, logger)

	ex := a.extract(ctx, in.ProjectID, text, set, detail, snippets, logger)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return agent.Result{}, ctxErr
	}
	out.Attempts = ex.attempts
	out.Transitions = ex.transitions

	var reqs []domain.Requirement
	switch {
	case ex.accepted:
		reqs = ex.catalogue.Requirements
		out.Source = agent.SourceLLM
		out.Confidence = ex.confidence
	case ex.parsed && ex.catalogue.Usable():
		reqs = ex.catalogue.Requirements
		out.Source = agent.SourceLastParsed
		out.Confidence = ex.confidence
		warnings = append(warnings, fmt.Sprintf("scope confidence %.2f below threshold %.2f; using last parsed reply", ex.confidence, set.threshold))
		logger.Warn("confidence below threshold; using last parsed reply", "confidence", ex.confidence)
	default:
		reqs = Fallback(text)
		out.Source = agent.SourceFallback
		if len(reqs) == 0 {
			return agent.Result{}, &ExtractionError{ProjectID: in.ProjectID, Attempts: ex.attempts, Err: ex.err}
		}
		warnings = append(warnings, fmt.Sprintf("scope used rule-based fallback (%d requirements)", len(reqs)))
		logger.Warn("model extraction failed; using rule-based fallback", "requirements", len(reqs), "err", ex.err)
	}

	if set.selfRefine && a.caller.Available() && out.Source != agent.SourceFallback {
		reqs, out.Refinements = a.selfRefine(ctx, text, reqs, set.hierarchical)
	}

	now := a.now()
	reqs = finalize(reqs, now)

	if set.quality && a.quality != nil {
		q := a.quality.Evaluate(ctx, text, reqs)
		if q.Action == agent.ActionRefinementRequired && a.caller.Available() {
			if refined, ok := a.qualityRefine(ctx, in.ProjectID, text, reqs, q, set, snippets, logger); ok {
				reqs = finalize(refined, now)
				q = a.quality.Evaluate(ctx, text, reqs)
				out.Transitions = append(out.Transitions, StateRefining, StateAccepted)
			}
		}
		out.Quality = &q
		if !q.Pass {
			warnings = append(warnings, fmt.Sprintf("quality %s (%.1f): %s", q.Grade, q.Score, q.Action))
		}
	}

	out.Requirements = reqs
	out.Functions = functions(reqs)
	out.WBS = DraftWBS(in.ProjectID, in.Methodology, reqs, set.depth)
	out.RawExcerpt = prompt.Truncate(firstNonEmpty(ex.lastRaw, text), rawExcerptRunes)

	paths, err := WriteOutputs(a.layout, in.ProjectID, reqs, out.WBS, now)
	if err != nil {
		return agent.Result{}, fmt.Errorf("scope: %w", err)
	}
	out.WBSPath, out.RTMPath, out.SRSPath = paths.WBS, paths.RTM, paths.SRS
	logger.Info("scope complete", "requirements", len(reqs), "source", out.Source, "attempts", out.Attempts, "confidence", out.Confidence)
	return agent.Result{Scope: out, Warnings: warnings}, nil
}

// extract runs the Drafting -> Critiquing -> Refining loop until a reply is accepted or attempts run out.
func (a *Agent) extract(ctx context.Context, projectID, text string, set runSettings, detail string, snippets []string, logger *log.Logger) extraction {
	ex := extraction{transitions: []string{StateDrafting}}
	if !a.caller.Available() {
		ex.err = llm.ErrUnavailable
		ex.transitions = append(ex.transitions, StateExhausted)
		return ex
	}
	var (
		defects  []string
		prevJSON string
	)
	cfg := a.caller.RetryConfig()
	cfg.MaxAttempts = set.maxAttempts

	err := llm.Retry(ctx, cfg, func(ctx context.Context, attempt int) error {
		ex.attempts = attempt
		if attempt > 1 {
			ex.transitions = append(ex.transitions, StateRefining)
		}
		var msgs []llm.Message
		if attempt == 1 {
			msgs = prompt.Extraction(prompt.ExtractionParams{
				Text: text, Hierarchical: set.hierarchical, WBSDepth: set.depth, Detail: detail, Context: snippets,
			})
		} else {
			msgs = prompt.Refinement(prompt.RefinementParams{
				Text: text, PreviousJSON: prevJSON, Defects: defects, Hierarchical: set.hierarchical, Context: snippets,
			})
		}

		raw, err := a.caller.Text(ctx, msgs)
		if err != nil {
			if errors.Is(err, llm.ErrUnavailable) || llm.IsFatal(err) {
				return llm.NewFatalError(err)
			}
			ex.transitions = append(ex.transitions, StateCritiquing)
			defects = []string{fmt.Sprintf("The previous call failed (%v). Return only the JSON catalogue.", err)}
			return err
		}
		ex.lastRaw = raw
		a.dump(projectID, attempt, raw, logger)

		cat, perr := ParseCatalogue(raw)
		parsed := perr == nil
		conf := Confidence(raw, cat)
		if parsed {
			prevJSON = cat.JSON
		}
		if parsed && cat.Usable() {
			ex.catalogue, ex.confidence, ex.parsed = cat, conf, true
		}
		if parsed && cat.Usable() && conf >= set.threshold {
			ex.accepted = true
			return nil
		}
		ex.transitions = append(ex.transitions, StateCritiquing)
		defects = Defects(cat, parsed, conf, set.threshold)
		logger.Warn("extraction attempt rejected", "attempt", attempt, "parsed", parsed, "confidence", conf)
		if perr != nil {
			return llm.NewTransientError(perr)
		}
		return llm.NewTransientError(errNotAccepted)
	}, nil)

	if ex.accepted {
		ex.transitions = append(ex.transitions, StateAccepted)
		return ex
	}
	ex.err = err
	ex.transitions = append(ex.transitions, StateExhausted)
	return ex
}

// qualityRefine runs one refinement attempt that embeds the quality issues.
func (a *Agent) qualityRefine(ctx context.Context, projectID, text string, reqs []domain.Requirement, q agent.QualityOutput, set runSettings, snippets []string, logger *log.Logger) ([]domain.Requirement, bool) {
	defects := append([]string{}, q.Issues...)
	for _, m := range q.MissingRequirements {
		defects = append(defects, "Missing requirement: "+m)
	}
	defects = append(defects, q.Recommendations...)
	raw, err := a.caller.Text(ctx, prompt.Refinement(prompt.RefinementParams{
		Text: text, PreviousJSON: marshalCatalogue(reqs), Defects: defects, Hierarchical: set.hierarchical, Context: snippets,
	}))
	if err != nil {
		logger.Warn("quality refinement call failed", "err", err)
		return nil, false
	}
	a.dump(projectID, 0, raw, logger)
	cat, err := ParseCatalogue(raw)
	if err != nil || !cat.Usable() {
		logger.Warn("quality refinement reply unusable", "err", err)
		return nil, false
	}
	return keepIDs(reqs, cat.Requirements), true
}

func (a *Agent) retrieve(ctx context.Context, text string, logger *log.Logger) []string {
	if a.store == nil {
		return nil
	}
	hits, err := a.store.Search(ctx, prompt.Truncate(text, 2000), a.cfg.RetrievalTopK)
	if err != nil {
		logger.Warn("template retrieval failed", "err", err)
		return nil
	}
	out := make([]string, 0, len(hits))
	for _, h := range hits {
		body := h.Text
		if h.Title != "" {
			body = h.Title + "\n" + body
		}
		out = append(out, body)
	}
	return out
}

func (a *Agent) dump(projectID string, attempt int, raw string, logger *log.Logger) {
	if !a.recorder.Enabled() {
		return
	}
	if _, err := a.recorder.Dump(projectID, attempt, raw); err != nil {
		logger.Warn("debug dump failed", "err", err)
	}
}

func finalize(reqs []domain.Requirement, now time.Time) []domain.Requirement {
	out := make([]domain.Requirement, 0, len(reqs))
	for _, r := range reqs {
		r = r.Normalize()
		if r.Title == "" {
			continue
		}
		if r.AcceptanceCriteria == nil {
			r.AcceptanceCriteria = []string{}
		}
		out = append(out, r)
	}
	domain.AssignRequirementIDs(out, now)
	return out
}

func functions(reqs []domain.Requirement) []string {
	out := []string{}
	for _, r := range reqs {
		if r.Type == domain.RequirementFunctional {
			out = append(out, strings.TrimSpace(r.Title))
		}
	}
	return out
}
