// Package rag answers questions by grounding a language model in retrieved
// knowledge and conversation history.
package rag

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/capitalize-ai/shop-assistant/internal/model"
	"github.com/capitalize-ai/shop-assistant/internal/retrieval"
	"github.com/capitalize-ai/shop-assistant/internal/textutil"
	"github.com/capitalize-ai/shop-assistant/pkg/apperr"
	"github.com/capitalize-ai/shop-assistant/pkg/logger"
	"github.com/capitalize-ai/shop-assistant/pkg/metrics"
	"github.com/capitalize-ai/shop-assistant/pkg/tracing"
)

const (
	// DegradedAnswer is returned when the generator fails or times out.
	DegradedAnswer = "I apologize, but I'm having trouble processing your request right now. Please try again or contact support if the issue persists."

	// CitationExcerptChars bounds citation excerpts.
	CitationExcerptChars = 200

	// DefaultSourceTitle names sources without a title.
	DefaultSourceTitle = "Shop Documentation"

	// DefaultSourceType is used when a document has no source type.
	DefaultSourceType = "documentation"

	// DefaultGenerateTimeout bounds a single generator call.
	DefaultGenerateTimeout = 30 * time.Second
)

// ErrEmptyQuery is returned by Answer for blank queries.
var ErrEmptyQuery = apperr.New(apperr.KindValidation, "query cannot be empty")

// SessionMemory is the part of conversation memory the orchestrator uses.
type SessionMemory interface {
	Context(ctx context.Context, sessionID string, maxTokens int) string
	AddMessage(ctx context.Context, sessionID string, role model.Role, content string, metadata map[string]string) bool
}

// Recorder receives an audit event for every answer.
type Recorder interface {
	Record(ctx context.Context, event *model.AnswerEvent) error
}

// NopRecorder discards events.
type NopRecorder struct{}

// Record implements Recorder.
func (NopRecorder) Record(context.Context, *model.AnswerEvent) error { return nil }

// Config tunes the orchestrator.
type Config struct {
	TopK            int
	ContextBudget   int
	HistoryBudget   int
	GenerateTimeout time.Duration
}

// DefaultConfig returns the default orchestrator settings.
func DefaultConfig() Config {
	return Config{
		TopK:            retrieval.DefaultK,
		ContextBudget:   DefaultContextBudget,
		HistoryBudget:   DefaultContextBudget,
		GenerateTimeout: DefaultGenerateTimeout,
	}
}

// Orchestrator sequences retrieval, assembly, generation, confidence
// estimation and the memory update for one question.
type Orchestrator struct {
	retriever retrieval.Retriever
	memory    SessionMemory
	generator Generator
	recorder  Recorder
	cfg       Config
	logger    *logger.Logger
	tracer    trace.Tracer
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithRecorder sets the audit recorder.
func WithRecorder(r Recorder) Option {
	return func(o *Orchestrator) {
		o.recorder = r
	}
}

// WithConfig overrides the default settings. Zero fields keep their defaults.
func WithConfig(cfg Config) Option {
	return func(o *Orchestrator) {
		if cfg.TopK > 0 {
			o.cfg.TopK = cfg.TopK
		}
		if cfg.ContextBudget > 0 {
			o.cfg.ContextBudget = cfg.ContextBudget
		}
		if cfg.HistoryBudget > 0 {
			o.cfg.HistoryBudget = cfg.HistoryBudget
		}
		if cfg.GenerateTimeout > 0 {
			o.cfg.GenerateTimeout = cfg.GenerateTimeout
		}
	}
}

// NewOrchestrator creates an orchestrator.
func NewOrchestrator(retriever retrieval.Retriever, memory SessionMemory, generator Generator, log *logger.Logger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		retriever: retriever,
		memory:    memory,
		generator: generator,
		recorder:  NopRecorder{},
		cfg:       DefaultConfig(),
		logger:    log,
		tracer:    tracing.Tracer("github.com/capitalize-ai/shop-assistant/internal/rag"),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Answer answers query, folding in the conversation of sessionID when given.
// The only error is ErrEmptyQuery; provider failures yield a degraded
// response with zero confidence.
func (o *Orchestrator) Answer(ctx context.Context, query, sessionID string) (*model.AnswerResponse, error) {
	start := time.Now()

	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}

	ctx, span := o.tracer.Start(ctx, "rag.Answer", trace.WithAttributes(
		attribute.Int("query_len", len(query)),
		attribute.Bool("has_session", sessionID != ""),
	))
	defer span.End()

	log := logger.FromContext(ctx, o.logger).With(zap.String("session_id", sessionID))

	results := o.retrieve(ctx, log, query)

	var prior string
	if sessionID != "" {
		prior = o.memory.Context(ctx, sessionID, o.cfg.HistoryBudget)
	}
	_, assembleSpan := o.tracer.Start(ctx, "rag.assemble")
	assembled := Assemble(results, prior, o.cfg.ContextBudget)
	assembleSpan.SetAttributes(attribute.Int("context_tokens", textutil.EstimateTokens(assembled)))
	assembleSpan.End()

	suggestions := TopSuggestions(query+"\n"+prior, AnswerSuggestions)

	answer, err := o.generate(ctx, assembled, query)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "generation failed")
		log.Warn("answer generation failed, returning degraded response",
			zap.Int("query_len", len(query)),
			zap.Error(err),
		)
		return o.degraded(ctx, query, sessionID, suggestions, start, err), nil
	}

	confidence := EstimateConfidence(results)

	if sessionID != "" {
		o.memory.AddMessage(ctx, sessionID, model.RoleUser, query, nil)
		o.memory.AddMessage(ctx, sessionID, model.RoleAssistant, answer, map[string]string{
			"documents_retrieved": strconv.Itoa(len(results)),
		})
	}

	resp := &model.AnswerResponse{
		Answer:             answer,
		Sources:            sourceRefs(results),
		Citations:          citations(results),
		Confidence:         confidence,
		ProcessingTime:     time.Since(start),
		DocumentsRetrieved: len(results),
		SessionID:          sessionID,
		Suggestions:        suggestions,
	}

	span.SetAttributes(
		attribute.Int("documents_retrieved", resp.DocumentsRetrieved),
		attribute.Float64("confidence", confidence),
	)
	metrics.RecordAnswer("ok", resp.ProcessingTime.Seconds(), resp.DocumentsRetrieved, confidence)
	o.record(ctx, log, &model.AnswerEvent{
		SessionID:          sessionID,
		Type:               model.EventTypeAnswer,
		Query:              query,
		Answer:             answer,
		Confidence:         confidence,
		DocumentsRetrieved: resp.DocumentsRetrieved,
		SourceTitles:       titles(resp.Sources),
		LatencyMs:          resp.ProcessingTime.Milliseconds(),
	})

	return resp, nil
}

func (o *Orchestrator) retrieve(ctx context.Context, log *logger.Logger, query string) []model.RetrievalResult {
	ctx, span := o.tracer.Start(ctx, "rag.retrieve")
	defer span.End()

	results, err := o.retriever.Retrieve(ctx, query, o.cfg.TopK)
	if err != nil {
		span.RecordError(err)
		log.Warn("retrieval failed, continuing without knowledge", zap.Error(err))
		return nil
	}
	span.SetAttributes(attribute.Int("results", len(results)))
	return results
}

func (o *Orchestrator) generate(ctx context.Context, assembled, query string) (string, error) {
	ctx, span := o.tracer.Start(ctx, "rag.generate")
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, o.cfg.GenerateTimeout)
	defer cancel()

	answer, err := o.generator.Generate(ctx, SystemPrompt, assembled, query)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	if ctx.Err() != nil {
		return "", ctx.Err()
	}
	return answer, nil
}

func (o *Orchestrator) degraded(ctx context.Context, query, sessionID string, suggestions []string, start time.Time, cause error) *model.AnswerResponse {
	resp := &model.AnswerResponse{
		Answer:         DegradedAnswer,
		Sources:        []model.SourceRef{},
		Citations:      []model.Citation{},
		Confidence:     0,
		ProcessingTime: time.Since(start),
		SessionID:      sessionID,
		Suggestions:    suggestions,
	}

	metrics.RecordAnswer("degraded", resp.ProcessingTime.Seconds(), 0, 0)
	o.record(ctx, logger.FromContext(ctx, o.logger), &model.AnswerEvent{
		SessionID: sessionID,
		Type:      model.EventTypeDegraded,
		Query:     query,
		Answer:    resp.Answer,
		Reason:    cause.Error(),
		LatencyMs: resp.ProcessingTime.Milliseconds(),
	})
	return resp
}

func (o *Orchestrator) record(ctx context.Context, log *logger.Logger, event *model.AnswerEvent) {
	event.ID = uuid.Must(uuid.NewV7()).String()
	event.CreatedAt = time.Now().UTC()

	// The request deadline may already have passed on the degraded path.
	ctx = context.WithoutCancel(ctx)
	ctx, span := o.tracer.Start(ctx, "rag.record")
	defer span.End()

	if err := o.recorder.Record(ctx, event); err != nil {
		span.RecordError(err)
		log.Warn("failed to record answer event", zap.String("event_type", string(event.Type)), zap.Error(err))
	}
}

func sourceRefs(results []model.RetrievalResult) []model.SourceRef {
	refs := make([]model.SourceRef, len(results))
	for i, r := range results {
		refs[i] = model.SourceRef{
			Title:     orDefault(r.Document.Title(), DefaultSourceTitle),
			URL:       r.Document.URL(),
			Type:      orDefault(r.Document.SourceType(), DefaultSourceType),
			Relevance: r.RelevanceScore,
			Timestamp: r.Document.Metadata[model.MetaTimestamp],
		}
	}
	return refs
}

func citations(results []model.RetrievalResult) []model.Citation {
	out := make([]model.Citation, len(results))
	for i, r := range results {
		out[i] = model.Citation{
			SourceTitle: orDefault(r.Document.Title(), DefaultSourceTitle),
			Excerpt:     textutil.Excerpt(r.Document.Text, CitationExcerptChars),
			Confidence:  r.RelevanceScore,
		}
	}
	return out
}

func titles(refs []model.SourceRef) []string {
	out := make([]string, len(refs))
	for i, r := range refs {
		out[i] = r.Title
	}
	return out
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
