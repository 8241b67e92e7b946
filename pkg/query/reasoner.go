package query

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/psaikeshav/PersonalKnowledgeGraph/pkg/ai"
	"github.com/psaikeshav/PersonalKnowledgeGraph/pkg/common"
)

const (
	maxPromptEntities      = 50
	maxPromptRelationships = 50
	maxStepEntities        = 10
)

// Reasoner builds the reasoning path for a bundle and asks the LLM for the
// answer text. The path never depends on the LLM output.
type Reasoner struct {
	llm  ai.Completer
	opts options
}

func newReasoner(llm ai.Completer, opts options) *Reasoner {
	return &Reasoner{llm: llm, opts: opts}
}

// RenderChain renders a path of relationships starting at the entity with
// ID startID, for example "GraphRAG —uses→ Knowledge Graph". Edges walked
// against their direction render as "A ←label— B".
func RenderChain(startID string, edges []common.Relationship, names map[string]string) string {
	var b strings.Builder
	cur := startID
	b.WriteString(names[cur])
	for _, e := range edges {
		if e.SourceID == cur {
			fmt.Fprintf(&b, " —%s→ %s", e.Label, names[e.TargetID])
			cur = e.TargetID
		} else {
			fmt.Fprintf(&b, " ←%s— %s", e.Label, names[e.SourceID])
			cur = e.SourceID
		}
	}
	return b.String()
}

// chain is one root-to-leaf path of the traversal tree.
type chain struct {
	start string
	edges []common.Relationship
}

// chains returns the deepest root-to-leaf paths of the traversal, deepest
// first and in discovery order among equals.
func chains(t *Traversal, limit int) []chain {
	if t == nil {
		return nil
	}
	isParent := map[string]bool{}
	for child, e := range t.Parent {
		other := e.SourceID
		if other == child {
			other = e.TargetID
		}
		isParent[other] = true
	}

	var leaves []string
	for _, id := range t.Order {
		if t.Depth[id] > 0 && !isParent[id] {
			leaves = append(leaves, id)
		}
	}
	slices.SortStableFunc(leaves, func(a, b string) int {
		return cmp.Compare(t.Depth[b], t.Depth[a])
	})
	if len(leaves) > limit {
		leaves = leaves[:limit]
	}

	out := make([]chain, 0, len(leaves))
	for _, leaf := range leaves {
		var edges []common.Relationship
		cur := leaf
		for {
			e, ok := t.Parent[cur]
			if !ok {
				break
			}
			edges = append(edges, e)
			if e.SourceID == cur {
				cur = e.TargetID
			} else {
				cur = e.SourceID
			}
		}
		slices.Reverse(edges)
		out = append(out, chain{start: cur, edges: edges})
	}
	return out
}

func evidenceRange(from, to int) string {
	switch {
	case to < from:
		return ""
	case to == from:
		return fmt.Sprintf("[%d]", from)
	}
	return fmt.Sprintf("[%d]-[%d]", from, to)
}

func namesOf(ids []string, names map[string]string, limit int) []string {
	out := make([]string, 0, min(len(ids), limit))
	for _, id := range ids {
		if len(out) >= limit {
			break
		}
		if n := names[id]; n != "" {
			out = append(out, n)
		}
	}
	return out
}

// Path builds the reasoning path for a bundle. Steps are numbered 1..N.
func (r *Reasoner) Path(p params, b *Bundle) []ReasoningStep {
	names := map[string]string{}
	for _, e := range b.Entities {
		names[e.ID] = e.Name
	}
	var seeds []string
	if b.Traversal != nil {
		seeds = b.Traversal.Seeds
	}

	var steps []ReasoningStep
	add := func(s ReasoningStep) {
		s.StepNumber = len(steps) + 1
		if s.EntitiesInvolved == nil {
			s.EntitiesInvolved = []string{}
		}
		if s.RelationshipsUsed == nil {
			s.RelationshipsUsed = []string{}
		}
		steps = append(steps, s)
	}

	analysis := "Analyzed the question; no key terms found"
	if len(b.Terms) > 0 {
		analysis = "Analyzed the question and identified key terms: " + strings.Join(b.Terms, ", ")
	}
	add(ReasoningStep{
		Description:      analysis,
		EntitiesInvolved: namesOf(seeds, names, maxStepEntities),
		EvidenceRef:      p.question,
	})

	var parts []string
	var involved []string
	if p.mode.usesVectors() && !slices.Contains(b.DegradedStores, StoreVector) {
		if b.VectorHits > 0 {
			parts = append(parts, fmt.Sprintf("Retrieved %d text chunks via semantic search (top similarity %.2f)", b.VectorHits, b.TopScore))
		} else {
			parts = append(parts, "Semantic search returned no matching chunks")
		}
	}
	if p.mode.usesGraph() && !slices.Contains(b.DegradedStores, StoreGraph) {
		parts = append(parts, fmt.Sprintf("Matched %d seed entities and collected %d entities and %d relationships",
			len(seeds), len(b.Entities), len(b.Relationships)))
		ids := make([]string, 0, len(b.Entities))
		for _, e := range b.Entities {
			ids = append(ids, e.ID)
		}
		involved = namesOf(ids, names, maxStepEntities)
	} else {
		for _, ev := range b.Evidence {
			for _, n := range ev.EntityNames {
				if len(involved) < maxStepEntities && !slices.Contains(involved, n) {
					involved = append(involved, n)
				}
			}
		}
	}
	retrieval := strings.Join(parts, "; ")
	if b.Degraded {
		retrieval += fmt.Sprintf(" (degraded: %s store unavailable)", strings.Join(b.DegradedStores, ", "))
	}
	add(ReasoningStep{
		Description:      strings.TrimSpace(retrieval),
		EntitiesInvolved: involved,
		EvidenceRef:      evidenceRange(1, len(b.Evidence)),
	})

	if p.mode.usesGraph() {
		add(r.traversalStep(p, b, names))
	}

	add(ReasoningStep{
		Description: fmt.Sprintf("Synthesized the answer from %d evidence items and %d graph entities",
			len(b.Evidence), len(b.Entities)),
		EvidenceRef: evidenceRange(1, len(b.Evidence)),
	})
	return steps
}

func (r *Reasoner) traversalStep(p params, b *Bundle, names map[string]string) ReasoningStep {
	step := ReasoningStep{EvidenceRef: "graph_context"}
	cs := chains(b.Traversal, r.opts.MaxChains)
	if len(cs) == 0 {
		// Every endpoint was a seed, so the traversal tree is flat.
		for _, rel := range b.Relationships {
			if len(cs) >= r.opts.MaxChains {
				break
			}
			cs = append(cs, chain{start: rel.SourceID, edges: []common.Relationship{rel}})
		}
	}

	switch {
	case slices.Contains(b.DegradedStores, StoreGraph):
		step.Description = "Skipped graph traversal because the graph store was unavailable"
	case p.maxHops == 0:
		step.Description = "Skipped traversal (max_hops = 0); using the seed entities only"
	case len(cs) == 0:
		step.Description = fmt.Sprintf("Found no relationships within %d hops of the seed entities", p.maxHops)
	default:
		rendered := make([]string, 0, len(cs))
		for _, c := range cs {
			rendered = append(rendered, RenderChain(c.start, c.edges, names))
		}
		step.Description = fmt.Sprintf("Traversed up to %d hops: %s", p.maxHops, strings.Join(rendered, "; "))
	}
	if b.Traversal != nil && b.Traversal.Truncated {
		step.Description += fmt.Sprintf(" (stopped after %d entities)", len(b.Traversal.Order))
	}

	for _, c := range cs {
		ids := []string{c.start}
		for _, e := range c.edges {
			ids = append(ids, e.SourceID, e.TargetID)
			rel := RenderChain(e.SourceID, []common.Relationship{e}, names)
			if !slices.Contains(step.RelationshipsUsed, rel) {
				step.RelationshipsUsed = append(step.RelationshipsUsed, rel)
			}
		}
		for _, n := range namesOf(ids, names, len(ids)) {
			if !slices.Contains(step.EntitiesInvolved, n) {
				step.EntitiesInvolved = append(step.EntitiesInvolved, n)
			}
		}
	}
	return step
}

// Prompt builds the grounded answer prompt, or the no-data prompt when the
// bundle holds nothing.
func (r *Reasoner) Prompt(p params, b *Bundle) string {
	if len(b.Evidence) == 0 && len(b.Entities) == 0 {
		return fmt.Sprintf(ai.NoDataPrompt, p.question)
	}

	var docs strings.Builder
	for i, ev := range b.Evidence {
		fmt.Fprintf(&docs, "[%d] (source: %s, relevance %.2f) %s\n", i+1, ev.SourceDoc, ev.RelevanceScore, ev.ChunkText)
	}
	if docs.Len() == 0 {
		docs.WriteString("No relevant documents found.")
	}

	names := map[string]string{}
	var graph strings.Builder
	for i, e := range b.Entities {
		names[e.ID] = e.Name
		if i < maxPromptEntities {
			if e.Type != "" {
				fmt.Fprintf(&graph, "- Entity: %s (Type: %s)\n", e.Name, e.Type)
			} else {
				fmt.Fprintf(&graph, "- Entity: %s\n", e.Name)
			}
		}
	}
	for i, rel := range b.Relationships {
		if i >= maxPromptRelationships {
			break
		}
		fmt.Fprintf(&graph, "- %s\n", RenderChain(rel.SourceID, []common.Relationship{rel}, names))
	}
	if graph.Len() == 0 {
		graph.WriteString("No relevant graph entities found.")
	}

	return fmt.Sprintf(ai.QueryPrompt, p.question, p.mode, docs.String(), graph.String())
}

// Answer asks the LLM for the answer text under the synthesis deadline.
func (r *Reasoner) Answer(ctx context.Context, p params, b *Bundle) (string, error) {
	lctx, cancel := context.WithTimeout(ctx, r.opts.LLMTimeout)
	defer cancel()

	systemPrompts := append([]string{ai.AnswerSystemPrompt}, r.opts.SystemPrompts...)
	generateOpts := []ai.GenerateOption{
		ai.WithSystemPrompts(systemPrompts...),
		ai.WithTemperature(0.3),
		ai.WithModel(r.opts.Model),
	}
	if r.opts.Thinking != "" {
		generateOpts = append(generateOpts, ai.WithThinking(r.opts.Thinking))
	}

	answer, err := r.llm.GenerateCompletion(lctx, r.Prompt(p, b), generateOpts...)
	if err != nil {
		if cerr := lctx.Err(); cerr != nil && !errors.Is(err, cerr) {
			err = fmt.Errorf("%w: %w", cerr, err)
		}
		return "", synthesisError(r.opts.Provider, err)
	}
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return "", synthesisError(r.opts.Provider, errors.New("empty answer"))
	}
	return answer, nil
}

// Reason returns the answer and the reasoning path for a bundle.
func (r *Reasoner) Reason(ctx context.Context, p params, b *Bundle) (string, []ReasoningStep, error) {
	path := r.Path(p, b)
	answer, err := r.Answer(ctx, p, b)
	if err != nil {
		return "", nil, err
	}
	return answer, path, nil
}
