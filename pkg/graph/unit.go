package graph

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/pkoukk/tiktoken-go"
)

const (
	DefaultEncoding         = "o200k_base"
	DefaultChunkMaxTokens   = 400
	DefaultOverlapSentences = 1
)

// textUnit is one chunk of a document before it is embedded. Start and End
// index the sentence range [Start, End) it was built from.
type textUnit struct {
	index int
	start int
	end   int
	text  string
}

// chunker packs sentences into token bounded units. The last overlap
// sentences of a unit are repeated at the start of the next one.
type chunker struct {
	enc       *tiktoken.Tiktoken
	maxTokens int
	overlap   int
}

func newChunker(encoding string, maxTokens, overlap int) (*chunker, error) {
	if encoding == "" {
		encoding = DefaultEncoding
	}
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("failed to load token encoding %q: %w", encoding, err)
	}
	if maxTokens <= 0 {
		maxTokens = DefaultChunkMaxTokens
	}
	if overlap < 0 {
		overlap = 0
	}
	return &chunker{enc: enc, maxTokens: maxTokens, overlap: overlap}, nil
}

func (c *chunker) tokens(sentences []string) int {
	return len(c.enc.Encode(strings.Join(sentences, " "), nil, nil))
}

// split turns text into units of at most maxTokens tokens, or the chunker's
// own limit when maxTokens <= 0. A single sentence over the limit becomes a
// unit of its own.
func (c *chunker) split(text string, maxTokens int) []textUnit {
	if maxTokens <= 0 {
		maxTokens = c.maxTokens
	}
	sentences := splitIntoSentences(text)
	if len(sentences) == 0 {
		return nil
	}

	var units []textUnit
	start := 0
	for start < len(sentences) {
		end := start + 1
		for end < len(sentences) && c.tokens(sentences[start:end+1]) <= maxTokens {
			end++
		}
		units = append(units, textUnit{
			index: len(units),
			start: start,
			end:   end,
			text:  strings.TrimSpace(strings.Join(sentences[start:end], " ")),
		})
		if end >= len(sentences) {
			break
		}

		next := end - c.overlap
		if next <= start {
			next = end
		}
		if next < end && c.tokens(sentences[next:end+1]) > maxTokens {
			next = end
		}
		start = next
	}
	return units
}

var tableDelimiter = regexp.MustCompile(`^\s*\|?\s*:?-{3,}:?\s*(\|\s*:?-{3,}:?\s*)+\|?\s*$`)

func isTableRow(line string) bool {
	trimmed := strings.TrimSpace(line)
	return trimmed != "" && strings.Contains(trimmed, "|")
}

func endsSentence(s string) bool {
	s = strings.TrimSpace(s)
	return strings.HasSuffix(s, ".") || strings.HasSuffix(s, "!") || strings.HasSuffix(s, "?")
}

// sentenceBuffer collects sentence fragments that may span several lines.
type sentenceBuffer struct {
	out     []string
	current strings.Builder
}

func (b *sentenceBuffer) flush() {
	if b.current.Len() == 0 {
		return
	}
	if s := strings.TrimSpace(b.current.String()); s != "" {
		b.out = append(b.out, s)
	}
	b.current.Reset()
}

func (b *sentenceBuffer) addLine(line string) {
	for _, part := range splitLineIntoSentences(line) {
		if b.current.Len() > 0 {
			b.current.WriteString(" ")
		}
		b.current.WriteString(part)
		if endsSentence(part) {
			b.flush()
		}
	}
}

// splitIntoSentences breaks text into sentences. Blank lines end a
// sentence. A markdown table (header row followed by a delimiter row) is
// returned whole as one sentence. Pipe rows outside a table stand alone.
func splitIntoSentences(text string) []string {
	lines := strings.Split(text, "\n")
	buf := &sentenceBuffer{}
	inTable := false

	for i, line := range lines {
		trimmed := strings.TrimSpace(line)

		if inTable {
			if isTableRow(line) {
				buf.current.WriteString("\n")
				buf.current.WriteString(line)
				continue
			}
			inTable = false
			buf.flush()
			if trimmed != "" {
				buf.addLine(trimmed)
			}
			continue
		}

		if isTableRow(line) {
			buf.flush()
			if i+1 < len(lines) && tableDelimiter.MatchString(strings.TrimSpace(lines[i+1])) {
				inTable = true
				buf.current.WriteString(line)
				continue
			}
			buf.out = append(buf.out, trimmed)
			continue
		}

		if trimmed == "" {
			buf.flush()
			continue
		}
		buf.addLine(trimmed)
	}
	buf.flush()

	return buf.out
}

// splitLineIntoSentences cuts a single line at sentence punctuation. A digit
// followed by ". " is read as a list marker, not a sentence end. Trailing
// closing quotes and brackets stay with their sentence.
func splitLineIntoSentences(line string) []string {
	var sentences []string
	var current strings.Builder

	for i := 0; i < len(line); i++ {
		current.WriteByte(line[i])
		if !strings.ContainsRune(".!?", rune(line[i])) {
			continue
		}
		if i > 0 && unicode.IsDigit(rune(line[i-1])) && i+1 < len(line) && line[i+1] == ' ' {
			continue
		}

		j := i + 1
		for j < len(line) && strings.ContainsRune(".!?", rune(line[j])) {
			current.WriteByte(line[j])
			j++
		}
		for j < len(line) && strings.ContainsRune("\"')]}", rune(line[j])) {
			current.WriteByte(line[j])
			j++
		}

		if s := strings.TrimSpace(current.String()); s != "" {
			sentences = append(sentences, s)
		}
		current.Reset()
		i = j - 1
	}

	if s := strings.TrimSpace(current.String()); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}
