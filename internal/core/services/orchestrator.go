package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/ramble-labs/lectern/internal/cache"
	"github.com/ramble-labs/lectern/internal/chunker"
	"github.com/ramble-labs/lectern/internal/core/domain"
	"github.com/ramble-labs/lectern/internal/core/ports/driven"
	"github.com/ramble-labs/lectern/internal/core/ports/driving"
	"github.com/ramble-labs/lectern/internal/logger"
)

// Ensure Orchestrator implements the interface.
var _ driving.Assistant = (*Orchestrator)(nil)

// noInformationMessage is returned when a query retrieves nothing useful.
const noInformationMessage = "No relevant information found in the document for this question."

const answerSystemPrompt = "You are an assistant answering questions about a document. " +
	"Answer using only the provided document excerpts. " +
	"If the excerpts do not contain the answer, say so plainly."

// OrchestratorOptions carries the tunables of the orchestrator.
// Zero values select sensible defaults.
type OrchestratorOptions struct {
	// TopK is the default number of snippets retrieved per query when the
	// caller does not specify one.
	TopK int

	// RequestTimeout bounds each model provider call (embedding builds and
	// answer synthesis). Zero disables the bound.
	RequestTimeout time.Duration

	// RequestsPerSecond throttles model provider calls. Zero disables
	// throttling.
	RequestsPerSecond float64

	// Burst is the limiter burst size; used only when RequestsPerSecond is
	// set.
	Burst int

	// Chat options forwarded to the language model.
	MaxTokens   int
	Temperature float64
}

// Orchestrator coordinates document ingestion, retrieval and answer
// synthesis. It is the single driving surface the transport layer uses.
type Orchestrator struct {
	chunker  *chunker.Chunker
	registry driven.MetadataRegistry
	engine   driven.IndexEngine
	indexes  *cache.IndexCache
	sessions driving.SessionManager
	loader   driven.DocumentLoader
	llm      driven.LLMService

	limiter *rate.Limiter
	opts    OrchestratorOptions
}

// NewOrchestrator creates an orchestrator.
// The loader and llm parameters are optional (can be nil): without a
// loader only IngestText works, without a language model queries return
// ranked snippets with no synthesised answer.
func NewOrchestrator(
	chk *chunker.Chunker,
	registry driven.MetadataRegistry,
	engine driven.IndexEngine,
	indexes *cache.IndexCache,
	sessions driving.SessionManager,
	loader driven.DocumentLoader,
	llm driven.LLMService,
	opts OrchestratorOptions,
) *Orchestrator {
	if opts.TopK <= 0 {
		opts.TopK = 3
	}
	var limiter *rate.Limiter
	if opts.RequestsPerSecond > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst)
	}
	return &Orchestrator{
		chunker:  chk,
		registry: registry,
		engine:   engine,
		indexes:  indexes,
		sessions: sessions,
		loader:   loader,
		llm:      llm,
		limiter:  limiter,
		opts:     opts,
	}
}

// Ingest loads a document from source, chunks it and indexes it.
func (o *Orchestrator) Ingest(ctx context.Context, source, docID string, forceRecreate bool) (*driving.IngestResult, error) {
	if o.loader == nil {
		return nil, fmt.Errorf("no document loader configured: %w", domain.ErrInvalidInput)
	}
	if docID == "" {
		docID = domain.DocIDFromSource(source)
	}
	if err := domain.ValidateDocID(docID); err != nil {
		return nil, err
	}

	loaded, err := o.loader.Load(ctx, source)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", source, err)
	}
	return o.IngestText(ctx, docID, loaded.Text, forceRecreate)
}

// IngestText ingests already-extracted text under docID.
//
// Chunk identifiers are deterministic, so re-ingesting identical content
// under the same identifier is detected and skips the rebuild unless
// forceRecreate is set.
func (o *Orchestrator) IngestText(ctx context.Context, docID, text string, forceRecreate bool) (*driving.IngestResult, error) {
	if err := domain.ValidateDocID(docID); err != nil {
		return nil, err
	}

	chunks := o.chunker.Chunk(text, docID)
	if len(chunks) == 0 {
		return nil, fmt.Errorf("document %s: %w", docID, domain.ErrEmptyContent)
	}

	if !forceRecreate {
		if existing, err := o.registry.Load(ctx, docID); err == nil && sameChunkIDs(existing.Chunks, chunks) {
			logger.Debug("Ingest %s: content unchanged, reusing existing index", docID)
			if _, err := o.ensureIndex(ctx, docID, false); err != nil {
				return nil, err
			}
			return &driving.IngestResult{DocID: docID, NumChunks: len(chunks)}, nil
		}
	}

	if err := o.registry.Save(ctx, docID, chunks); err != nil {
		return nil, fmt.Errorf("save metadata for %s: %w", docID, err)
	}

	if _, err := o.ensureIndex(ctx, docID, forceRecreate); err != nil {
		return nil, err
	}
	if err := o.indexes.Persist(ctx, docID); err != nil {
		return nil, fmt.Errorf("persist index for %s: %w", docID, err)
	}

	logger.Info("Ingested %s (%d chunks)", docID, len(chunks))
	return &driving.IngestResult{DocID: docID, NumChunks: len(chunks)}, nil
}

// Query retrieves the top-k chunks of docID relevant to question and
// synthesises an answer, attributing the turn to a conversation session.
func (o *Orchestrator) Query(ctx context.Context, sessionID, docID, question string, k int) (*driving.QueryResult, error) {
	if err := domain.ValidateDocID(docID); err != nil {
		return nil, err
	}
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, fmt.Errorf("empty question: %w", domain.ErrInvalidInput)
	}
	if k <= 0 {
		k = o.opts.TopK
	}

	sess := o.sessions.GetOrCreate(sessionID)
	result := &driving.QueryResult{SessionID: sess.ID, DocID: docID}

	if err := o.sessions.AddDocID(sess.ID, docID); err != nil {
		return nil, err
	}
	if err := o.sessions.AppendMessage(sess.ID, domain.RoleUser, question); err != nil {
		return nil, err
	}

	handle, err := o.ensureIndex(ctx, docID, false)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrEmptyContent) {
			return o.finishEmpty(sess.ID, result)
		}
		return nil, err
	}

	snippets, err := o.engine.Search(ctx, handle, question, k)
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", docID, err)
	}
	if len(snippets) == 0 {
		return o.finishEmpty(sess.ID, result)
	}

	result.Found = true
	result.Snippets = snippets
	result.Answer, result.Warning = o.synthesise(ctx, sess, question, snippets)

	reply := result.Answer
	if reply == "" {
		reply = noInformationMessage
	}
	if err := o.sessions.AppendMessage(sess.ID, domain.RoleAssistant, reply); err != nil {
		return nil, err
	}
	return result, nil
}

// Delete removes docID's cached index, persisted artifact and metadata.
// Unknown documents are a no-op.
func (o *Orchestrator) Delete(ctx context.Context, docID string) (bool, error) {
	if err := domain.ValidateDocID(docID); err != nil {
		return false, err
	}

	hadIndex, err := o.indexes.Invalidate(ctx, docID)
	if err != nil {
		return false, fmt.Errorf("invalidate index for %s: %w", docID, err)
	}

	switch err := o.registry.Delete(ctx, docID); {
	case err == nil:
		logger.Info("Deleted document %s", docID)
		return true, nil
	case errors.Is(err, domain.ErrNotFound):
		return hadIndex, nil
	default:
		return false, fmt.Errorf("delete metadata for %s: %w", docID, err)
	}
}

// ListDocuments returns the identifiers of all ingested documents.
func (o *Orchestrator) ListDocuments(ctx context.Context) ([]string, error) {
	return o.registry.ListDocuments(ctx)
}

// ensureIndex resolves docID's index through the cache, building from
// registry metadata when needed. Provider calls run under the request
// timeout and rate limit.
func (o *Orchestrator) ensureIndex(ctx context.Context, docID string, force bool) (driven.IndexHandle, error) {
	provider := func(ctx context.Context) ([]domain.Chunk, error) {
		meta, err := o.registry.Load(ctx, docID)
		if err != nil {
			return nil, err
		}
		return meta.Chunks, nil
	}

	ctx, cancel := o.boundCtx(ctx)
	defer cancel()
	if err := o.await(ctx); err != nil {
		return nil, err
	}

	if force {
		return o.indexes.Rebuild(ctx, docID, provider)
	}
	return o.indexes.GetOrBuild(ctx, docID, provider)
}

// finishEmpty records a no-information turn and returns the degraded
// result. This is a normal outcome, not an error.
func (o *Orchestrator) finishEmpty(sessionID string, result *driving.QueryResult) (*driving.QueryResult, error) {
	result.Found = false
	result.Warning = noInformationMessage
	if err := o.sessions.AppendMessage(sessionID, domain.RoleAssistant, noInformationMessage); err != nil {
		return nil, err
	}
	return result, nil
}

// synthesise asks the language model for an answer grounded in the
// snippets. A failed or missing model degrades to a warning; the ranked
// snippets still stand on their own.
func (o *Orchestrator) synthesise(ctx context.Context, sess *domain.Session, question string, snippets []domain.Snippet) (answer, warning string) {
	if o.llm == nil {
		return "", "no language model configured; returning snippets only"
	}

	ctx, cancel := o.boundCtx(ctx)
	defer cancel()
	if err := o.await(ctx); err != nil {
		return "", fmt.Sprintf("answer synthesis unavailable: %v", err)
	}

	messages := make([]driven.ChatMessage, 0, len(sess.Messages)+3)
	messages = append(messages, driven.ChatMessage{Role: "system", Content: answerSystemPrompt})
	// The session snapshot predates this turn's user message, so it holds
	// exactly the prior exchanges.
	for _, m := range sess.Messages {
		messages = append(messages, driven.ChatMessage{Role: m.Role, Content: m.Content})
	}
	messages = append(messages, driven.ChatMessage{
		Role:    domain.RoleUser,
		Content: buildQuestionPrompt(question, snippets),
	})

	reply, err := o.llm.Chat(ctx, messages, driven.ChatOptions{
		MaxTokens:   o.opts.MaxTokens,
		Temperature: o.opts.Temperature,
	})
	if err != nil {
		logger.Warn("Answer synthesis failed for session %s: %v", sess.ID, err)
		return "", fmt.Sprintf("answer synthesis unavailable: %v", err)
	}
	return strings.TrimSpace(reply), ""
}

// boundCtx applies the request timeout when one is configured.
func (o *Orchestrator) boundCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if o.opts.RequestTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, o.opts.RequestTimeout)
}

// await blocks until the rate limiter admits another provider call.
func (o *Orchestrator) await(ctx context.Context) error {
	if o.limiter == nil {
		return nil
	}
	return o.limiter.Wait(ctx)
}

// buildQuestionPrompt formats the retrieved excerpts and question into a
// single user turn.
func buildQuestionPrompt(question string, snippets []domain.Snippet) string {
	var b strings.Builder
	b.WriteString("Document excerpts:\n\n")
	for i, s := range snippets {
		fmt.Fprintf(&b, "[%d] %s\n\n", i+1, s.Chunk.Text)
	}
	b.WriteString("Question: ")
	b.WriteString(question)
	return b.String()
}

// sameChunkIDs reports whether two chunk sequences carry identical
// identifiers in identical order.
func sameChunkIDs(a, b []domain.Chunk) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].ID != b[i].ID {
			return false
		}
	}
	return true
}
