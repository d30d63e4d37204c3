// Package orchestrator coordinates the memory tiers. It fans retrieval out
// across the recency buffer, concept graph, episodic store and durable store,
// composes the retrieved context into a prompt, and routes each finished turn
// back into the tiers it belongs in.
package orchestrator

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/mnemolabs/mnemo/internal/concepts"
	"github.com/mnemolabs/mnemo/internal/episodic"
	"github.com/mnemolabs/mnemo/internal/llm"
	"github.com/mnemolabs/mnemo/internal/longterm"
	"github.com/mnemolabs/mnemo/internal/stm"
	"github.com/mnemolabs/mnemo/pkg/types"
)

// fallbackResponse is returned when no responder is configured or the model
// call fails. The turn is still recorded.
const fallbackResponse = "I'm sorry, I'm having trouble generating a response right now. Your message has been saved."

// RecencyTier is the short-term buffer surface the orchestrator needs.
type RecencyTier interface {
	Append(input, output string, context map[string]interface{}) types.Interaction
	Recent(count int) []types.Interaction
	Search(substring string) []types.Interaction
	Stats() stm.Stats
}

// ConceptTier is the concept graph surface the orchestrator needs.
type ConceptTier interface {
	AddConcept(ctx context.Context, name, description, parentID string) (types.Concept, error)
	FindSimilar(ctx context.Context, query string, topK int, minSimilarity float64) ([]concepts.ScoredConcept, error)
	UpdateStrengths()
	PruneWeakConcepts(minStrength float64) int
	TreeStats() concepts.TreeStats
}

// EpisodicTier is the event store surface the orchestrator needs.
type EpisodicTier interface {
	StoreEvent(ctx context.Context, title, description string, evCtx map[string]interface{}, tags []string, importance float64) (types.EpisodicEvent, error)
	SearchBySimilarity(ctx context.Context, query string, topK int, minSimilarity float64) ([]episodic.ScoredEvent, error)
	CleanupOld(ctx context.Context, retention time.Duration) (int, error)
	Stats(ctx context.Context) (episodic.Stats, error)
}

// DurableTier is the long-term store surface the orchestrator needs.
type DurableTier interface {
	StoreInteraction(ctx context.Context, interaction types.Interaction) error
	RetrieveSimilar(ctx context.Context, query string, limit int) ([]longterm.Retrieved, error)
	CleanupOld(ctx context.Context, retention time.Duration) (int, error)
	Stats(ctx context.Context) (longterm.Stats, error)
}

// Config tunes retrieval sizes, thresholds and retention.
type Config struct {
	RetrievalTimeout     time.Duration // per-tier budget during fan-out
	RecentCount          int           // recency buffer slice in retrieved context
	ConceptTopK           int
	ConceptMinSimilarity  float64
	EpisodicTopK          int
	EpisodicMinSimilarity float64
	DurableLimit          int

	// PromotionThreshold and EventThreshold gate writes to the durable and
	// episodic tiers. Zero means "use the default"; a negative value disables
	// the gate so every scored turn passes.
	PromotionThreshold float64
	EventThreshold     float64

	ConceptPruneThreshold float64
	EpisodicRetention     time.Duration
	DurableRetention      time.Duration
}

// DefaultConfig returns the standard tuning.
func DefaultConfig() Config {
	return Config{
		RetrievalTimeout:      5 * time.Second,
		RecentCount:           5,
		ConceptTopK:           3,
		ConceptMinSimilarity:  0.3,
		EpisodicTopK:          2,
		EpisodicMinSimilarity: 0.3,
		DurableLimit:          3,
		PromotionThreshold:    0.6,
		EventThreshold:        0.7,
		ConceptPruneThreshold: 0.3,
		EpisodicRetention:     episodic.DefaultRetention,
		DurableRetention:      longterm.DefaultRetention,
	}
}

func (c *Config) normalize() {
	d := DefaultConfig()
	if c.RetrievalTimeout <= 0 {
		c.RetrievalTimeout = d.RetrievalTimeout
	}
	if c.RecentCount <= 0 {
		c.RecentCount = d.RecentCount
	}
	if c.ConceptTopK <= 0 {
		c.ConceptTopK = d.ConceptTopK
	}
	if c.EpisodicTopK <= 0 {
		c.EpisodicTopK = d.EpisodicTopK
	}
	if c.DurableLimit <= 0 {
		c.DurableLimit = d.DurableLimit
	}
	if c.PromotionThreshold == 0 {
		c.PromotionThreshold = d.PromotionThreshold
	} else if c.PromotionThreshold < 0 {
		c.PromotionThreshold = -1
	}
	if c.EventThreshold == 0 {
		c.EventThreshold = d.EventThreshold
	} else if c.EventThreshold < 0 {
		c.EventThreshold = -1
	}
	if c.ConceptPruneThreshold <= 0 {
		c.ConceptPruneThreshold = d.ConceptPruneThreshold
	}
	if c.EpisodicRetention <= 0 {
		c.EpisodicRetention = d.EpisodicRetention
	}
	if c.DurableRetention <= 0 {
		c.DurableRetention = d.DurableRetention
	}
}

// Deps carries the tier implementations. Responder and Extractor are
// optional: without a responder ProcessTurn answers with a fallback, and the
// extractor defaults to frequency-based extraction.
type Deps struct {
	Recent    RecencyTier
	Concepts  ConceptTier
	Episodes  EpisodicTier
	Durable   DurableTier
	Responder llm.TextGenerator
	Extractor Extractor
}

// Orchestrator is the coordination layer over the four memory tiers.
type Orchestrator struct {
	cfg       Config
	recent    RecencyTier
	concepts  ConceptTier
	episodes  EpisodicTier
	durable   DurableTier
	responder llm.TextGenerator
	extractor Extractor
}

// New validates the dependencies and builds an orchestrator.
func New(cfg Config, deps Deps) (*Orchestrator, error) {
	if deps.Recent == nil {
		return nil, fmt.Errorf("orchestrator: recency tier is required")
	}
	if deps.Concepts == nil {
		return nil, fmt.Errorf("orchestrator: concept tier is required")
	}
	if deps.Episodes == nil {
		return nil, fmt.Errorf("orchestrator: episodic tier is required")
	}
	if deps.Durable == nil {
		return nil, fmt.Errorf("orchestrator: durable tier is required")
	}
	cfg.normalize()

	extractor := deps.Extractor
	if extractor == nil {
		extractor = NewFrequencyExtractor()
	}
	return &Orchestrator{
		cfg:       cfg,
		recent:    deps.Recent,
		concepts:  deps.Concepts,
		episodes:  deps.Episodes,
		durable:   deps.Durable,
		responder: deps.Responder,
		extractor: extractor,
	}, nil
}

// RetrievedContext is everything the tiers produced for a query. A tier that
// failed or timed out contributes an empty slice.
type RetrievedContext struct {
	Recent   []types.Interaction      `json:"recent"`
	Concepts []concepts.ScoredConcept `json:"concepts"`
	Episodes []episodic.ScoredEvent   `json:"episodes"`
	Durable  []longterm.Retrieved     `json:"durable"`
}

// TurnResult reports what happened to a recorded turn.
type TurnResult struct {
	Interaction types.Interaction `json:"interaction"`
	Response    string            `json:"response"`
	Importance  float64           `json:"importance"`
	Promoted    bool              `json:"promoted"`
	EventStored bool              `json:"event_stored"`
	Concepts    []string          `json:"concepts"`
}

// MaintenanceReport summarizes one maintenance sweep.
type MaintenanceReport struct {
	PrunedConcepts      int `json:"pruned_concepts"`
	ExpiredEvents       int `json:"expired_events"`
	ExpiredInteractions int `json:"expired_interactions"`
}

// StatsReport aggregates statistics from every tier.
type StatsReport struct {
	ShortTerm stm.Stats          `json:"short_term"`
	Concepts  concepts.TreeStats `json:"concepts"`
	Episodic  episodic.Stats     `json:"episodic"`
	LongTerm  longterm.Stats     `json:"long_term"`
}

// RetrieveContext queries all four tiers concurrently. Each remote tier gets
// its own timeout so one slow backend cannot stall the turn; failures are
// logged and surface as empty results.
func (o *Orchestrator) RetrieveContext(ctx context.Context, query string) RetrievedContext {
	var (
		wg  sync.WaitGroup
		res RetrievedContext
	)
	wg.Add(4)

	go func() {
		defer wg.Done()
		res.Recent = o.recent.Recent(o.cfg.RecentCount)
	}()
	go func() {
		defer wg.Done()
		tctx, cancel := context.WithTimeout(ctx, o.cfg.RetrievalTimeout)
		defer cancel()
		found, err := o.concepts.FindSimilar(tctx, query, o.cfg.ConceptTopK, o.cfg.ConceptMinSimilarity)
		if err != nil {
			log.Printf("orchestrator: concept retrieval failed: %v", err)
			return
		}
		res.Concepts = found
	}()
	go func() {
		defer wg.Done()
		tctx, cancel := context.WithTimeout(ctx, o.cfg.RetrievalTimeout)
		defer cancel()
		found, err := o.episodes.SearchBySimilarity(tctx, query, o.cfg.EpisodicTopK, o.cfg.EpisodicMinSimilarity)
		if err != nil {
			log.Printf("orchestrator: episodic retrieval failed: %v", err)
			return
		}
		res.Episodes = found
	}()
	go func() {
		defer wg.Done()
		tctx, cancel := context.WithTimeout(ctx, o.cfg.RetrievalTimeout)
		defer cancel()
		found, err := o.durable.RetrieveSimilar(tctx, query, o.cfg.DurableLimit)
		if err != nil {
			log.Printf("orchestrator: durable retrieval failed: %v", err)
			return
		}
		res.Durable = found
	}()

	wg.Wait()
	return res
}

// ProcessTurn runs one full conversation turn: retrieve context, generate a
// response, then record the turn. ProcessTurn never fails outright; if the
// responder errors the turn is recorded with a fallback response.
func (o *Orchestrator) ProcessTurn(ctx context.Context, input string, turnCtx map[string]interface{}) TurnResult {
	retrieved := o.RetrieveContext(ctx, input)
	prompt := ComposePrompt(retrieved, input)

	response := fallbackResponse
	if o.responder != nil {
		out, err := o.responder.Complete(ctx, prompt)
		if err != nil {
			log.Printf("orchestrator: response generation failed: %v", err)
		} else {
			response = out
		}
	}
	return o.StoreConversation(ctx, input, response, turnCtx)
}

// StoreConversation records a finished turn across the tiers: always into
// the recency buffer, concepts extracted and reinforced, and conditionally
// promoted to the episodic and durable stores.
func (o *Orchestrator) StoreConversation(ctx context.Context, input, output string, turnCtx map[string]interface{}) TurnResult {
	interaction := o.recent.Append(input, output, turnCtx)

	names := o.extractor.Extract(input+"\n"+output, 5)
	for _, name := range names {
		if _, err := o.concepts.AddConcept(ctx, name, "", ""); err != nil {
			log.Printf("orchestrator: add concept %q failed: %v", name, err)
		}
	}
	o.concepts.UpdateStrengths()

	result := TurnResult{
		Interaction: interaction,
		Response:    output,
		Importance:  InteractionImportance(input, output, turnCtx),
		Concepts:    names,
	}
	result.Interaction.Importance = result.Importance

	if result.Importance > o.cfg.PromotionThreshold {
		if err := o.durable.StoreInteraction(ctx, result.Interaction); err != nil {
			log.Printf("orchestrator: durable promotion failed: %v", err)
		} else {
			result.Promoted = true
		}
	}

	if score, significant := EventImportance(input, output, turnCtx); significant && score > o.cfg.EventThreshold {
		if _, err := o.episodes.StoreEvent(ctx, eventTitle(input), input, turnCtx, names, score); err != nil {
			log.Printf("orchestrator: event store failed: %v", err)
		} else {
			result.EventStored = true
		}
	}
	return result
}

// SearchMemories queries each tier with the same text and returns whatever
// each produced. Tier failures degrade to empty results.
func (o *Orchestrator) SearchMemories(ctx context.Context, query string) RetrievedContext {
	res := RetrievedContext{Recent: o.recent.Search(query)}

	found, err := o.concepts.FindSimilar(ctx, query, o.cfg.ConceptTopK, o.cfg.ConceptMinSimilarity)
	if err != nil {
		log.Printf("orchestrator: concept search failed: %v", err)
	} else {
		res.Concepts = found
	}

	episodes, err := o.episodes.SearchBySimilarity(ctx, query, o.cfg.EpisodicTopK, o.cfg.EpisodicMinSimilarity)
	if err != nil {
		log.Printf("orchestrator: episodic search failed: %v", err)
	} else {
		res.Episodes = episodes
	}

	durable, err := o.durable.RetrieveSimilar(ctx, query, o.cfg.DurableLimit)
	if err != nil {
		log.Printf("orchestrator: durable search failed: %v", err)
	} else {
		res.Durable = durable
	}
	return res
}

// MemoryStats aggregates per-tier statistics. Tier failures leave that
// section zeroed.
func (o *Orchestrator) MemoryStats(ctx context.Context) StatsReport {
	report := StatsReport{
		ShortTerm: o.recent.Stats(),
		Concepts:  o.concepts.TreeStats(),
	}

	ep, err := o.episodes.Stats(ctx)
	if err != nil {
		log.Printf("orchestrator: episodic stats failed: %v", err)
	} else {
		report.Episodic = ep
	}

	lt, err := o.durable.Stats(ctx)
	if err != nil {
		log.Printf("orchestrator: durable stats failed: %v", err)
	} else {
		report.LongTerm = lt
	}
	return report
}

// RunMaintenance prunes weak concepts and expires old events and
// interactions. Failures are logged so one tier's trouble does not stop the
// others.
func (o *Orchestrator) RunMaintenance(ctx context.Context) MaintenanceReport {
	report := MaintenanceReport{
		PrunedConcepts: o.concepts.PruneWeakConcepts(o.cfg.ConceptPruneThreshold),
	}

	n, err := o.episodes.CleanupOld(ctx, o.cfg.EpisodicRetention)
	if err != nil {
		log.Printf("orchestrator: episodic cleanup failed: %v", err)
	} else {
		report.ExpiredEvents = n
	}

	n, err = o.durable.CleanupOld(ctx, o.cfg.DurableRetention)
	if err != nil {
		log.Printf("orchestrator: durable cleanup failed: %v", err)
	} else {
		report.ExpiredInteractions = n
	}
	return report
}

// ComposePrompt renders the retrieved context and the user input into a
// single prompt: the recent conversation first, then concepts, episodes and
// durable matches, with the new input closing the prompt.
func ComposePrompt(rc RetrievedContext, input string) string {
	var b strings.Builder

	if len(rc.Recent) > 0 {
		b.WriteString("Recent conversation:\n")
		for _, it := range rc.Recent {
			b.WriteString("User: ")
			b.WriteString(it.Input)
			b.WriteString("\nAssistant: ")
			b.WriteString(it.Output)
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	if len(rc.Concepts) > 0 {
		b.WriteString("Relevant concepts:\n")
		for _, sc := range rc.Concepts {
			b.WriteString("- ")
			b.WriteString(sc.Concept.Name)
			if sc.Concept.Description != "" {
				b.WriteString(": ")
				b.WriteString(sc.Concept.Description)
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	if len(rc.Episodes) > 0 {
		b.WriteString("Significant past events:\n")
		for _, se := range rc.Episodes {
			b.WriteString("- ")
			b.WriteString(se.Event.Title)
			if se.Event.Summary != "" {
				b.WriteString(" (")
				b.WriteString(se.Event.Summary)
				b.WriteString(")")
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	if len(rc.Durable) > 0 {
		b.WriteString("Related past interactions:\n")
		for _, r := range rc.Durable {
			b.WriteString("- ")
			b.WriteString(truncate(r.Content, 200))
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	b.WriteString("User: ")
	b.WriteString(input)
	b.WriteString("\nAssistant:")
	return b.String()
}

// eventTitle derives a short event title from the turn input.
func eventTitle(input string) string {
	title := strings.TrimSpace(input)
	if i := strings.IndexAny(title, "\n"); i >= 0 {
		title = title[:i]
	}
	return truncate(title, 80)
}

// truncate shortens s to at most max bytes, cutting on a rune boundary so a
// multi-byte character is never split.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max - 3
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
