package existence

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"ai-memory-agent-be/internal/pkg/logger"
	"ai-memory-agent-be/pkg/agent"
	"ai-memory-agent-be/pkg/embedding"
	"ai-memory-agent-be/pkg/llm"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Tier numbers, in priority order
const (
	TierVector   = 1
	TierPhrase   = 2
	TierKeywords = 3
	TierTokens   = 4
	TierVerbatim = 5
)

type Config struct {
	VectorThreshold float64
	VectorLimit     int
	TextLimit       int
	TokenLimit      int
	MinTokenLength  int

	// ParallelTiers runs the text tiers concurrently. The first non-empty tier still wins.
	ParallelTiers bool
}

func DefaultConfig() Config {
	return Config{
		VectorThreshold: 0.75,
		VectorLimit:     5,
		TextLimit:       3,
		TokenLimit:      5,
		MinTokenLength:  4,
	}
}

type searchPhraseOutput struct {
	SearchQuery string `json:"searchQuery" validate:"required"`
}

type judgmentOutput struct {
	SimilarQuestionExists *bool    `json:"similarQuestionExists" validate:"required"`
	MatchingRunIDs        []string `json:"matchingRunIds"`
	Explanation           string   `json:"explanation"`
}

type candidate struct {
	memory     agent.RetrievedMemory
	similarity *float64
}

type tierResult struct {
	tier       int
	query      string
	candidates []candidate
}

// Checker decides whether the user asked a similar question before.
type Checker struct {
	llmProvider llm.LLMProvider
	embedder    embedding.EmbeddingProvider
	store       agent.HistoryStore
	cfg         Config
	logger      logger.ILogger
}

func NewChecker(
	llmProvider llm.LLMProvider,
	embedder embedding.EmbeddingProvider,
	store agent.HistoryStore,
	cfg Config,
	log logger.ILogger,
) *Checker {
	return &Checker{
		llmProvider: llmProvider,
		embedder:    embedder,
		store:       store,
		cfg:         cfg,
		logger:      log,
	}
}

func (c *Checker) Check(ctx context.Context, userID uuid.UUID, question string) (agent.ExistenceCheck, error) {
	phrase, err := c.searchPhrase(ctx, question)
	if err != nil {
		return agent.ExistenceCheck{}, err
	}

	found, err := c.search(ctx, userID, question, phrase)
	if err != nil {
		return agent.ExistenceCheck{}, err
	}

	check := agent.ExistenceCheck{
		SearchQuery:    phrase,
		SearchMethod:   agent.SearchMethodText,
		Tier:           found.tier,
		CandidateCount: len(found.candidates),
	}
	if found.tier == TierVector {
		check.SearchMethod = agent.SearchMethodVector
	}

	if len(found.candidates) == 0 {
		check.Explanation = "No prior question matched any search strategy."
		c.logger.Debug("EXISTENCE", "No candidates", map[string]interface{}{"user_id": userID.String(), "phrase": phrase})
		return check, nil
	}

	judgment, err := c.judge(ctx, question, found.candidates)
	if err != nil {
		return agent.ExistenceCheck{}, err
	}

	check.SimilarQuestionExists = *judgment.SimilarQuestionExists
	check.Explanation = strings.TrimSpace(judgment.Explanation)
	if check.SimilarQuestionExists {
		if best := mostRecentMatch(found.candidates, judgment.MatchingRunIDs); best != nil {
			check.Match = &agent.MatchedRun{
				RunID:    best.memory.RunID,
				Question: best.memory.Question,
				Answer:   best.memory.Answer,
			}
			check.SimilarityScore = best.similarity
		} else {
			c.logger.Warn("EXISTENCE", "Judgment named no known candidate", map[string]interface{}{
				"matching_run_ids": judgment.MatchingRunIDs,
			})
		}
	}

	c.logger.Info("EXISTENCE", "Existence check completed", map[string]interface{}{
		"user_id":    userID.String(),
		"tier":       check.Tier,
		"candidates": check.CandidateCount,
		"exists":     check.SimilarQuestionExists,
	})
	return check, nil
}

func (c *Checker) searchPhrase(ctx context.Context, question string) (string, error) {
	var b strings.Builder
	b.WriteString(agent.TaskHeader(agent.TaskSearchPhrase))
	b.WriteString("Produce a concise search phrase (2-8 words) that would find earlier questions on the same topic.\n\n")
	agent.WriteQuestion(&b, question)
	b.WriteString("\nRespond with JSON only: {\"searchQuery\": \"...\"}\n")

	var out searchPhraseOutput
	if err := llm.GenerateStructured(ctx, c.llmProvider, b.String(), &out); err != nil {
		return "", agent.NewOracleError(agent.TaskSearchPhrase, err)
	}
	return strings.TrimSpace(out.SearchQuery), nil
}

// search walks the fallback tiers and returns the first non-empty one.
func (c *Checker) search(ctx context.Context, userID uuid.UUID, question, phrase string) (tierResult, error) {
	vector, err := c.vectorTier(ctx, userID, question)
	if err != nil {
		return tierResult{}, err
	}
	if len(vector.candidates) > 0 {
		return vector, nil
	}

	tiers := c.textTiers(question, phrase)
	if c.cfg.ParallelTiers {
		return c.runTiersConcurrently(ctx, userID, tiers)
	}

	for _, t := range tiers {
		res, err := t.run(ctx, c, userID)
		if err != nil {
			return tierResult{}, err
		}
		if len(res.candidates) > 0 {
			return res, nil
		}
	}
	return tierResult{}, nil
}

func (c *Checker) runTiersConcurrently(ctx context.Context, userID uuid.UUID, tiers []textTier) (tierResult, error) {
	results := make([]tierResult, len(tiers))
	g, gctx := errgroup.WithContext(ctx)
	for i, t := range tiers {
		g.Go(func() error {
			res, err := t.run(gctx, c, userID)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return tierResult{}, err
	}

	for _, res := range results {
		if len(res.candidates) > 0 {
			return res, nil
		}
	}
	return tierResult{}, nil
}

func (c *Checker) vectorTier(ctx context.Context, userID uuid.UUID, question string) (tierResult, error) {
	emb, err := c.embedder.Generate(ctx, question)
	if err != nil {
		return tierResult{}, agent.NewOracleError("embedding", err)
	}

	hits, err := c.store.SearchVector(ctx, userID, emb.Embedding.Values, c.cfg.VectorThreshold, c.cfg.VectorLimit)
	if err != nil {
		return tierResult{}, fmt.Errorf("vector search: %w", err)
	}

	res := tierResult{tier: TierVector, query: question}
	for _, h := range hits {
		score := clamp01(h.Similarity)
		res.candidates = append(res.candidates, candidate{memory: h.RetrievedMemory, similarity: &score})
	}
	return res, nil
}

// textTier is one text-search fallback. queries are searched individually and merged.
type textTier struct {
	tier    int
	queries []string
	limit   int
	cap     int
}

func (t textTier) run(ctx context.Context, c *Checker, userID uuid.UUID) (tierResult, error) {
	res := tierResult{tier: t.tier, query: strings.Join(t.queries, " | ")}
	seen := make(map[uuid.UUID]struct{})
	for _, q := range t.queries {
		hits, err := c.store.SearchText(ctx, userID, q, t.limit)
		if err != nil {
			return tierResult{}, fmt.Errorf("text search tier %d: %w", t.tier, err)
		}
		for _, h := range hits {
			if _, dup := seen[h.RunID]; dup {
				continue
			}
			seen[h.RunID] = struct{}{}
			res.candidates = append(res.candidates, candidate{memory: h})
		}
	}

	if len(t.queries) > 1 {
		sort.SliceStable(res.candidates, func(i, j int) bool {
			return res.candidates[i].memory.CreatedAt.After(res.candidates[j].memory.CreatedAt)
		})
	}
	if t.cap > 0 && len(res.candidates) > t.cap {
		res.candidates = res.candidates[:t.cap]
	}
	return res, nil
}

func (c *Checker) textTiers(question, phrase string) []textTier {
	keywords := Keywords(question)

	var tokens []string
	seen := make(map[string]struct{})
	for _, k := range keywords {
		if utf8.RuneCountInString(k) < c.cfg.MinTokenLength {
			continue
		}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		tokens = append(tokens, k)
	}

	tiers := []textTier{
		{tier: TierPhrase, queries: nonEmpty(phrase), limit: c.cfg.TextLimit},
		{tier: TierKeywords, queries: nonEmpty(strings.Join(keywords, " ")), limit: c.cfg.TextLimit},
		{tier: TierTokens, queries: tokens, limit: c.cfg.TextLimit, cap: c.cfg.TokenLimit},
		{tier: TierVerbatim, queries: nonEmpty(strings.TrimSpace(question)), limit: c.cfg.TextLimit},
	}
	return tiers
}

func (c *Checker) judge(ctx context.Context, question string, candidates []candidate) (judgmentOutput, error) {
	var b strings.Builder
	b.WriteString(agent.TaskHeader(agent.TaskExistenceJudgment))
	b.WriteString("Decide whether the user already asked a question similar to the current one.\n")
	b.WriteString("Synonyms and paraphrases count as similar. A question about a different attribute of the same\n")
	b.WriteString("subject is NOT similar. List every qualifying candidate id; when several qualify the most\n")
	b.WriteString("recently created one is used.\n\n")
	agent.WriteQuestion(&b, question)
	b.WriteString("\n<candidates>\n")
	for _, cand := range candidates {
		attrs := ""
		if cand.similarity != nil {
			attrs = fmt.Sprintf(" similarity=\"%.3f\"", *cand.similarity)
		}
		agent.WriteMemory(&b, "candidate", attrs, cand.memory, 300)
	}
	b.WriteString("</candidates>\n\n")
	b.WriteString("Respond with JSON only:\n")
	b.WriteString(`{"similarQuestionExists": true, "matchingRunIds": ["<candidate id>"], "explanation": "..."}`)
	b.WriteString("\n")

	var out judgmentOutput
	if err := llm.GenerateStructured(ctx, c.llmProvider, b.String(), &out); err != nil {
		return judgmentOutput{}, agent.NewOracleError(agent.TaskExistenceJudgment, err)
	}
	return out, nil
}

// mostRecentMatch picks the most recently created candidate among the qualifying ids.
func mostRecentMatch(candidates []candidate, ids []string) *candidate {
	qualifying := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		qualifying[strings.ToLower(strings.TrimSpace(id))] = struct{}{}
	}

	var best *candidate
	for i := range candidates {
		cand := &candidates[i]
		if _, ok := qualifying[cand.memory.RunID.String()]; !ok {
			continue
		}
		if best == nil || cand.memory.CreatedAt.After(best.memory.CreatedAt) {
			best = cand
		}
	}
	return best
}

func nonEmpty(q string) []string {
	if strings.TrimSpace(q) == "" {
		return nil
	}
	return []string{q}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
