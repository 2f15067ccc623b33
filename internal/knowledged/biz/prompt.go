package biz

import (
	"fmt"
	"strings"

	"github.com/synaptiq/knowledged/internal/model"
)

// emptyContextMarker is what the model sees when retrieval found nothing.
// It must be explicit so the precedence rule can fall back cleanly instead
// of the model guessing at an absent context block.
const emptyContextMarker = "No relevant documents found."

// systemPromptTemplate fixes the grounding behavior: context wins over
// general knowledge, facts are never invented in the context's name, and
// every context-derived claim carries a bracketed citation the display
// layer can peel out of the surrounding text.
const systemPromptTemplate = `You are a knowledgeable, friendly assistant answering questions on behalf of an organization.

Follow these rules strictly:
1. Answer from the provided context first. Only fall back to general knowledge when the context does not contain the answer, and never present general knowledge as if it came from the documents.
2. Never invent facts and attribute them to the context. If the context does not support a claim, say so.
3. Every claim derived from the context must be followed by a citation in exactly this format: [Source: <filename>, Page <page>]. Cite each source separately with its own bracket. Do not merge multiple sources into one bracket.
4. Keep paragraph and list structure intact; place citations at the end of the sentence they support.
5. Answer in the same language the question is asked in.`

// PromptBuilder assembles the system and user prompts from retrieved
// chunks, the organization profile, and the question.
type PromptBuilder struct{}

// NewPromptBuilder creates a prompt builder.
func NewPromptBuilder() *PromptBuilder {
	return &PromptBuilder{}
}

// Build returns the (system, user) prompt pair. chunks may be empty and
// org may be nil; both degrade to explicit markers rather than silently
// vanishing from the prompt.
func (b *PromptBuilder) Build(chunks []*model.RetrievedChunk, org *model.Org, question string) (string, string) {
	var user strings.Builder

	user.WriteString("Context from the organization's documents:\n\n")
	if len(chunks) == 0 {
		user.WriteString(emptyContextMarker)
		user.WriteString("\n")
	} else {
		for i, chunk := range chunks {
			page := chunk.Page
			if page == "" {
				page = model.PageUnknown
			}
			fmt.Fprintf(&user, "Chunk %d (Source: %s, Page: %s):\n%s\n\n", i+1, chunk.Source, page, chunk.Content)
		}
	}

	if block := orgContextBlock(org); block != "" {
		user.WriteString("\nAbout the organization:\n")
		user.WriteString(block)
	}

	user.WriteString("\nQuestion: ")
	user.WriteString(question)

	return systemPromptTemplate, user.String()
}

// orgContextBlock renders the organization profile. Empty fields are
// skipped entirely, never rendered as blank labels.
func orgContextBlock(org *model.Org) string {
	if org == nil {
		return ""
	}

	var b strings.Builder
	if org.DisplayName != "" {
		fmt.Fprintf(&b, "Name: %s\n", org.DisplayName)
	}
	if org.Industry != "" {
		fmt.Fprintf(&b, "Industry: %s\n", org.Industry)
	}
	if org.CustomerSegments != "" {
		fmt.Fprintf(&b, "Customer segments: %s\n", org.CustomerSegments)
	}
	if org.LLMCompanyContext != "" {
		fmt.Fprintf(&b, "Additional context: %s\n", org.LLMCompanyContext)
	}
	return b.String()
}
