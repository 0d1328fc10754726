package collector

import (
	"fmt"
	"strings"

	"github.com/mettice/nodeai/pkg/types"
)

// FieldRule is one entry in the field-mapping table: it names the input field
// to assign on the target and the candidate source output fields to read, in
// fixed priority order. The first candidate present in the source output
// wins.
type FieldRule struct {
	// Target is the input field written on the target node.
	Target string

	// Sources lists candidate source output fields in priority order.
	Sources []string

	// Render optionally transforms the chosen value before assignment,
	// with access to the full source output.
	Render RenderFunc

	// List marks the target field as list-typed: contributions from
	// multiple direct sources concatenate in edge order instead of
	// replacing each other.
	List bool
}

// RenderFunc transforms a matched source value into the target input value.
type RenderFunc func(value interface{}, output map[string]interface{}) interface{}

// DefaultMappings returns the built-in field-mapping table for the
// retrieval-pattern node types. The candidate ordering per target type is
// fixed; callers may replace the whole table via WithMappings.
func DefaultMappings() map[types.NodeType][]FieldRule {
	queryRule := FieldRule{Target: "query", Sources: []string{"query", "text", "question"}}

	return map[types.NodeType][]FieldRule{
		types.NodeTypeEmbed: {
			{Target: "text", Sources: []string{"text", "query", "question"}},
			{Target: "documents", Sources: []string{"documents", "chunks"}, List: true},
		},
		types.NodeTypeChunk: {
			{Target: "documents", Sources: []string{"documents", "chunks", "text"}, Render: WrapInList, List: true},
		},
		types.NodeTypeRetrieve: {
			queryRule,
			// Embeddings pass through verbatim; the collector never re-derives them.
			{Target: "embedding", Sources: []string{"embedding"}},
			{Target: "embeddings", Sources: []string{"embeddings"}},
		},
		types.NodeTypeRerank: {
			queryRule,
			{Target: "results", Sources: []string{"results"}, List: true},
		},
		types.NodeTypeGenerate: {
			queryRule,
			{Target: "context", Sources: []string{"results"}, Render: RenderChunks},
			{Target: "results", Sources: []string{"results"}, List: true},
		},
		types.NodeTypeAgent: {
			queryRule,
			{Target: "context", Sources: []string{"results"}, Render: RenderChunks},
			{Target: "tools", Sources: []string{"tools"}, List: true},
		},
		types.NodeTypeToolCall: {
			{Target: "arguments", Sources: []string{"arguments", "args"}},
			queryRule,
		},
		types.NodeTypeOutput: {
			{Target: "response", Sources: []string{"response", "text", "result"}},
			{Target: "results", Sources: []string{"results"}, List: true},
		},
	}
}

// RenderChunks renders a retrieved chunk list into the newline-separated
// context string generation nodes consume: each chunk's text prefixed with
// its 1-based index, chunks separated by a blank line.
//
//	[1] first chunk text
//
//	[2] second chunk text
func RenderChunks(value interface{}, _ map[string]interface{}) interface{} {
	chunks, ok := value.([]interface{})
	if !ok {
		return value
	}
	parts := make([]string, 0, len(chunks))
	for i, chunk := range chunks {
		parts = append(parts, fmt.Sprintf("[%d] %s", i+1, chunkText(chunk)))
	}
	return strings.Join(parts, "\n\n")
}

// chunkText extracts the text of one retrieved chunk. Chunks are usually
// {text, score} mappings; bare strings are accepted as-is.
func chunkText(chunk interface{}) string {
	switch c := chunk.(type) {
	case map[string]interface{}:
		if text, ok := c["text"].(string); ok {
			return text
		}
		return fmt.Sprintf("%v", c)
	case string:
		return c
	default:
		return fmt.Sprintf("%v", c)
	}
}

// WrapInList derives a document list from scalar text: strings wrap into a
// single-element list, existing lists pass through.
func WrapInList(value interface{}, _ map[string]interface{}) interface{} {
	if list, ok := value.([]interface{}); ok {
		return list
	}
	return []interface{}{value}
}
