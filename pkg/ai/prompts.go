package ai

// ExtractPrompt asks for entities and relationships in one chunk of text.
// Format args: entity type list, document name, chunk text.
const ExtractPrompt = `
# Task Context
You are a knowledge extraction engine. Extract the significant entities and the relationships between them from the text below.

# Background Data
- **Entity_types:** [%s]
- **Document_name:** [%s]

# Rules
## Entities
1. Only extract entities of the listed types. If nothing fits, use Concept.
2. Skip common words, pronouns and generic nouns.
3. Normalize names: consistent capitalization, no surrounding quotes, the full name the text uses (e.g. "Ada Lovelace", not "Lovelace").
4. Every entity must be mentioned in the text.

## Relationships
1. Each relationship connects two entities from your entity list, by exact name.
2. The label is a short verb phrase in snake_case that reads left to right: source label target (e.g. "works_at", "uses", "implemented_with", "located_in").
3. Only add relationships the text states or directly implies.
4. If the text has only one entity, return an empty relationships array.

# Example
**Text:** GraphRAG uses a knowledge graph. The knowledge graph is implemented with Neo4j.

**Output:**
{
  "entities": [
    {"name": "GraphRAG", "type": "Concept"},
    {"name": "Knowledge Graph", "type": "Concept"},
    {"name": "Neo4j", "type": "Technology"}
  ],
  "relationships": [
    {"source": "GraphRAG", "target": "Knowledge Graph", "label": "uses"},
    {"source": "Knowledge Graph", "target": "Neo4j", "label": "implemented_with"}
  ]
}

# Text
%s

# Output Formatting
Return a single valid JSON object with "entities" and "relationships" arrays. Use empty arrays when nothing is found. No commentary outside the JSON.
`

// QueryPrompt grounds the answer in retrieved evidence and graph facts.
// Format args: question, retrieval mode, document context, graph context.
const QueryPrompt = `
# Task Context
You are a knowledge assistant answering questions over the user's personal documents. The context below was retrieved from a vector index and a knowledge graph.

# Question
%s

# Retrieval Mode
%s

# Document Context (semantic search)
%s

# Knowledge Graph Context (entities and relationships)
%s

# Rules
- Answer only from the context above. Do not add outside knowledge.
- Combine both contexts when they are available. Prefer the document text for facts and the graph for how things connect.
- Cite document sources by their number in brackets, e.g. [1] or [2][3].
- Refer to entities by name. Never mention internal IDs.
- If the context is not sufficient to answer, say so plainly and name what is missing.
- If the context contains contradictory statements, present both and say that they conflict.

# Output Formatting
- Return only the answer, formatted in Markdown.
- Respond in the same language as the question.
`

// NoDataPrompt is used when retrieval found nothing relevant.
// Format args: question.
const NoDataPrompt = `
# Task Context
You are a helpful assistant. The user asked a question, but no relevant information was found in their knowledge base.

# Background Data
User's question: %s

# Rules
- Briefly explain that the knowledge base has no relevant information.
- Do not invent or hallucinate any information.
- Suggest uploading documents that cover the topic.

# Output Formatting
- Respond in the same language as the question.
- Keep the response to 1-2 sentences without markdown.
`

// ExtractSystemPrompt is sent as the system message for extraction calls.
const ExtractSystemPrompt = "You are a knowledge extraction engine. Output JSON only."

// AnswerSystemPrompt is sent as the system message for answer synthesis.
const AnswerSystemPrompt = "You are a helpful knowledge assistant."
