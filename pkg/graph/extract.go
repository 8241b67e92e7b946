package graph

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/psaikeshav/PersonalKnowledgeGraph/internal/util"
	"github.com/psaikeshav/PersonalKnowledgeGraph/pkg/ai"
	"github.com/psaikeshav/PersonalKnowledgeGraph/pkg/common"
)

// DefaultLabel is used when the model returns a relationship without a
// usable label.
const DefaultLabel = "related_to"

type extractEntity struct {
	Name string `json:"name" jsonschema_description:"Name of the entity as written in the text, consistently capitalized"`
	Type string `json:"type" jsonschema_description:"One of the provided entity types"`
}

type extractRelationship struct {
	Source string `json:"source" jsonschema_description:"Exact name of the source entity from the entities list"`
	Target string `json:"target" jsonschema_description:"Exact name of the target entity from the entities list"`
	Label  string `json:"label" jsonschema_description:"Short snake_case verb phrase that reads source label target"`
}

type extractResponse struct {
	Entities      []extractEntity       `json:"entities" jsonschema_description:"Entities mentioned in the text"`
	Relationships []extractRelationship `json:"relationships" jsonschema_description:"Relationships between the extracted entities"`
}

// extraction is what one chunk contributed. Relationship endpoints refer to
// the IDs in entities.
type extraction struct {
	entities      []common.Entity
	relationships []common.Relationship
}

func entityTypeList() string {
	names := make([]string, len(common.EntityTypes))
	for i, t := range common.EntityTypes {
		names[i] = string(t)
	}
	return strings.Join(names, ", ")
}

// NormalizeLabel turns free-form relationship text into snake_case.
func NormalizeLabel(label string) string {
	var b strings.Builder
	underscore := false
	for _, r := range strings.ToLower(strings.TrimSpace(label)) {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r):
			b.WriteRune(r)
			underscore = false
		default:
			if !underscore && b.Len() > 0 {
				b.WriteByte('_')
				underscore = true
			}
		}
	}
	out := strings.TrimRight(b.String(), "_")
	if out == "" {
		return DefaultLabel
	}
	return out
}

// toExtraction converts the model reply into entities with fresh IDs.
// Entities repeated inside the reply collapse onto the first one and
// relationships whose endpoints are unknown or identical are dropped.
func toExtraction(res extractResponse, sourceDoc string) (extraction, error) {
	var out extraction
	byName := map[string]string{}

	for _, e := range res.Entities {
		name := strings.Join(strings.Fields(e.Name), " ")
		if name == "" {
			continue
		}
		entity := common.Entity{
			Name:      name,
			Type:      common.ParseEntityType(e.Type),
			SourceDoc: sourceDoc,
		}
		norm := common.NormalizeName(name)
		if _, ok := byName[norm]; ok {
			continue
		}
		id, err := util.NewID()
		if err != nil {
			return extraction{}, fmt.Errorf("failed to generate entity ID: %w", err)
		}
		entity.ID = id
		byName[norm] = id
		out.entities = append(out.entities, entity)
	}

	for _, r := range res.Relationships {
		src, ok1 := byName[common.NormalizeName(r.Source)]
		tgt, ok2 := byName[common.NormalizeName(r.Target)]
		if !ok1 || !ok2 || src == tgt {
			continue
		}
		id, err := util.NewID()
		if err != nil {
			return extraction{}, fmt.Errorf("failed to generate relationship ID: %w", err)
		}
		out.relationships = append(out.relationships, common.Relationship{
			ID:        id,
			SourceID:  src,
			TargetID:  tgt,
			Label:     NormalizeLabel(r.Label),
			SourceDoc: sourceDoc,
		})
	}

	return out, nil
}

func (p *Pipeline) extractUnit(ctx context.Context, unit textUnit, sourceDoc string) (extraction, error) {
	prompt := fmt.Sprintf(ai.ExtractPrompt, entityTypeList(), sourceDoc, unit.text)

	res, err := util.RetryWithBackoff(ctx, p.maxRetries, p.backoff, func(ctx context.Context) (extractResponse, error) {
		if err := p.sem.Acquire(ctx, 1); err != nil {
			return extractResponse{}, err
		}
		defer p.sem.Release(1)

		var res extractResponse
		err := p.ai.GenerateCompletionWithFormat(
			ctx,
			"extract_entities_and_relationships",
			"Extract entities and relationships from a chunk of a document.",
			prompt,
			&res,
			ai.WithSystemPrompts(ai.ExtractSystemPrompt),
		)
		return res, err
	})
	if err != nil {
		return extraction{}, err
	}

	return toExtraction(res, sourceDoc)
}
