package ai

import (
	"encoding/json"
	"testing"
)

type testEntity struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

type testExtraction struct {
	Entities      []testEntity `json:"entities"`
	Relationships []struct {
		Source string `json:"source"`
		Target string `json:"target"`
		Label  string `json:"label"`
	} `json:"relationships"`
}

func TestUnmarshalFlexible_ObjectVariants(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  testEntity
	}{
		{
			name:  "valid json object",
			input: `{"name":"GraphRAG","type":"Concept"}`,
			want:  testEntity{Name: "GraphRAG", Type: "Concept"},
		},
		{
			name:  "unquoted key and single quotes",
			input: `{name: 'Neo4j', type: 'Technology'}`,
			want:  testEntity{Name: "Neo4j", Type: "Technology"},
		},
		{
			name:  "trailing comma",
			input: `{"name":"Berlin","type":"Location",}`,
			want:  testEntity{Name: "Berlin", Type: "Location"},
		},
		{
			name:  "missing end bracket",
			input: `{"name":"Ada Lovelace","type":"Person"`,
			want:  testEntity{Name: "Ada Lovelace", Type: "Person"},
		},
		{
			name:  "stringified json object",
			input: `"{\"name\": \"OpenAI\", \"type\": \"Organization\"}"`,
			want:  testEntity{Name: "OpenAI", Type: "Organization"},
		},
		{
			name:  "duplicate leading brace",
			input: "{\n{\n  \"name\": \"Postgres\", \"type\": \"Technology\"\n}\n",
			want:  testEntity{Name: "Postgres", Type: "Technology"},
		},
		{
			name:  "markdown code fence",
			input: "```json\n{\"name\": \"pgvector\", \"type\": \"Product\"}\n```",
			want:  testEntity{Name: "pgvector", Type: "Product"},
		},
		{
			name:  "bare code fence",
			input: "```\n{\"name\": \"Q3 Review\", \"type\": \"Event\"}\n```",
			want:  testEntity{Name: "Q3 Review", Type: "Event"},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var got testEntity
			if err := UnmarshalFlexible(tc.input, &got); err != nil {
				t.Fatalf("UnmarshalFlexible() error = %v", err)
			}
			if got != tc.want {
				t.Fatalf("UnmarshalFlexible() got = %+v, want %+v", got, tc.want)
			}
		})
	}
}

func TestUnmarshalFlexible_Extraction(t *testing.T) {
	input := "```json\n{\n" +
		`"entities": [{"name": "GraphRAG", "type": "Concept"}, {"name": "Knowledge Graph", "type": "Concept"},],` +
		`"relationships": [{"source": "GraphRAG", "target": "Knowledge Graph", "label": "uses"}]` +
		"\n}\n```"

	var got testExtraction
	if err := UnmarshalFlexible(input, &got); err != nil {
		t.Fatalf("UnmarshalFlexible() error = %v", err)
	}
	if len(got.Entities) != 2 || got.Entities[1].Name != "Knowledge Graph" {
		t.Fatalf("unexpected entities: %+v", got.Entities)
	}
	if len(got.Relationships) != 1 || got.Relationships[0].Label != "uses" {
		t.Fatalf("unexpected relationships: %+v", got.Relationships)
	}
}

func TestUnmarshalFlexible_ArrayVariants(t *testing.T) {
	input := `[{name:'A'},{name:'B',}]`
	var got []testEntity
	if err := UnmarshalFlexible(input, &got); err != nil {
		t.Fatalf("UnmarshalFlexible() error = %v", err)
	}
	if len(got) != 2 || got[0].Name != "A" || got[1].Name != "B" {
		t.Fatalf("UnmarshalFlexible() got = %+v, want two entities A,B", got)
	}
}

func TestUnmarshalFlexible_Unrecoverable(t *testing.T) {
	var got testEntity
	if err := UnmarshalFlexible("hello", &got); err == nil {
		t.Fatalf("UnmarshalFlexible() expected error for unrecoverable input")
	}
}

func TestGenerateSchema(t *testing.T) {
	schema := GenerateSchema(&testExtraction{})
	raw, err := json.Marshal(schema)
	if err != nil {
		t.Fatalf("marshal schema: %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal schema: %v", err)
	}
	props, ok := decoded["properties"].(map[string]any)
	if !ok {
		t.Fatalf("schema has no properties: %s", raw)
	}
	for _, key := range []string{"entities", "relationships"} {
		if _, ok := props[key]; !ok {
			t.Fatalf("schema missing %q: %s", key, raw)
		}
	}
	if decoded["additionalProperties"] != false {
		t.Fatalf("expected additionalProperties=false: %s", raw)
	}
}
