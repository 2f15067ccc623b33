package biz

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/synaptiq/knowledged/internal/knowledged/store"
	"github.com/synaptiq/knowledged/internal/model"
	kerrors "github.com/synaptiq/knowledged/pkg/errors"
	"github.com/synaptiq/knowledged/pkg/llm"
)

func newTestChatService(t *testing.T, vectors *fakeVectorStore, chat *fakeChat) (ChatService, store.Factory) {
	t.Helper()
	factory := setupFactory(t)
	embedder := &fakeEmbedder{}
	retriever := NewRetriever(vectors, embedder, &RetrieverConfig{Collection: "chunks", TopK: 4})
	generator := NewGenerator(chat)

	svc := NewChatService(retriever, generator, nil, factory, vectors, "chunks", embedder, chat)
	return svc, factory
}

func collectStream(t *testing.T, stream <-chan llm.StreamChunk) (string, error) {
	t.Helper()
	var answer string
	for {
		select {
		case chunk, ok := <-stream:
			if !ok {
				return answer, nil
			}
			if chunk.Err != nil {
				return answer, chunk.Err
			}
			answer += chunk.Delta
			if chunk.Done {
				return answer, nil
			}
		case <-time.After(5 * time.Second):
			t.Fatal("stream did not terminate")
		}
	}
}

func TestChatStreamForwardsTokens(t *testing.T) {
	vectors := &fakeVectorStore{
		searchResults: []*model.RetrievedChunk{
			{Content: "Acme ships widgets.", Source: "guide.pdf", Page: "2", OrgURL: "acme", Score: 0.92},
		},
	}
	chat := &fakeChat{tokens: []string{"Widgets ", "ship ", "in boxes."}}
	svc, factory := newTestChatService(t, vectors, chat)
	seedOrg(t, factory, "acme")

	messages := []llm.Message{
		{Role: llm.RoleUser, Content: "hi"},
		{Role: llm.RoleAssistant, Content: "hello"},
		{Role: llm.RoleUser, Content: "How do widgets ship?"},
	}

	stream, sources, err := svc.ChatStream(context.Background(), "acme", messages)
	require.NoError(t, err)

	require.Len(t, sources, 1)
	assert.Equal(t, "guide.pdf", sources[0].Filename)
	assert.Equal(t, "2", sources[0].Page)

	answer, serr := collectStream(t, stream)
	require.NoError(t, serr)
	assert.Equal(t, "Widgets ship in boxes.", answer)

	// The last message's content is the question.
	assert.Contains(t, chat.lastPrompt, "Question: How do widgets ship?")
	assert.Contains(t, chat.lastPrompt, "Acme ships widgets.")
}

func TestChatStreamEmptyQuestion(t *testing.T) {
	chat := &fakeChat{}
	svc, factory := newTestChatService(t, &fakeVectorStore{}, chat)
	seedOrg(t, factory, "acme")

	for _, messages := range [][]llm.Message{
		nil,
		{{Role: llm.RoleUser, Content: "   "}},
	} {
		_, _, err := svc.ChatStream(context.Background(), "acme", messages)
		require.Error(t, err)
		assert.True(t, kerrors.IsCode(err, kerrors.ErrMissingParam.Code))
	}

	// No model call is made when the question is missing.
	assert.Zero(t, chat.streamCalls)
}

func TestChatStreamDegradesOnRetrievalFailure(t *testing.T) {
	vectors := &fakeVectorStore{searchErr: errors.New("milvus unavailable")}
	chat := &fakeChat{tokens: []string{"General knowledge answer."}}
	svc, factory := newTestChatService(t, vectors, chat)
	seedOrg(t, factory, "acme")

	messages := []llm.Message{{Role: llm.RoleUser, Content: "What is a widget?"}}
	stream, sources, err := svc.ChatStream(context.Background(), "acme", messages)
	require.NoError(t, err)
	assert.Empty(t, sources)

	answer, serr := collectStream(t, stream)
	require.NoError(t, serr)
	assert.NotEmpty(t, answer)

	// The model sees an explicit empty-context marker, not a missing block.
	assert.Contains(t, chat.lastPrompt, "No relevant documents found.")
}

func TestChatStreamUnknownOrgStillAnswers(t *testing.T) {
	chat := &fakeChat{tokens: []string{"hi"}}
	svc, _ := newTestChatService(t, &fakeVectorStore{}, chat)

	messages := []llm.Message{{Role: llm.RoleUser, Content: "hello?"}}
	stream, _, err := svc.ChatStream(context.Background(), "ghost", messages)
	require.NoError(t, err)

	_, serr := collectStream(t, stream)
	require.NoError(t, serr)
	assert.NotContains(t, chat.lastPrompt, "About the organization:")
}

func TestChatStreamCancellation(t *testing.T) {
	chat := &fakeChat{tokens: []string{"a", "b", "c", "d"}}
	svc, factory := newTestChatService(t, &fakeVectorStore{}, chat)
	seedOrg(t, factory, "acme")

	ctx, cancel := context.WithCancel(context.Background())
	messages := []llm.Message{{Role: llm.RoleUser, Content: "question"}}
	stream, _, err := svc.ChatStream(ctx, "acme", messages)
	require.NoError(t, err)

	// Take one token, then disconnect.
	<-stream
	cancel()

	deadline := time.After(5 * time.Second)
	for {
		select {
		case _, ok := <-stream:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("stream did not close after cancellation")
		}
	}
}

func TestQueryReturnsAnswerWithSources(t *testing.T) {
	vectors := &fakeVectorStore{
		searchResults: []*model.RetrievedChunk{
			{Content: "Returns within 30 days.", Source: "faq.pdf", Page: "1", OrgURL: "acme", Score: 0.88},
		},
	}
	chat := &fakeChat{answer: "Returns are accepted within 30 days. [Source: faq.pdf, Page 1]"}
	svc, factory := newTestChatService(t, vectors, chat)
	seedOrg(t, factory, "acme")

	result, err := svc.Query(context.Background(), "acme", "What is the refund policy?")
	require.NoError(t, err)

	assert.Equal(t, "acme", result.OrgURL)
	assert.Contains(t, result.Answer, "[Source: faq.pdf, Page 1]")
	require.Len(t, result.Sources, 1)
	assert.Equal(t, "faq.pdf", result.Sources[0].Filename)
	assert.False(t, result.Cached)
}

func TestQueryEmptyQuestion(t *testing.T) {
	chat := &fakeChat{}
	svc, factory := newTestChatService(t, &fakeVectorStore{}, chat)
	seedOrg(t, factory, "acme")

	_, err := svc.Query(context.Background(), "acme", "  ")
	require.Error(t, err)
	assert.True(t, kerrors.IsCode(err, kerrors.ErrMissingParam.Code))
	assert.Zero(t, chat.generateCalls)
}

func TestStats(t *testing.T) {
	vectors := &fakeVectorStore{rows: 42}
	chat := &fakeChat{}
	svc, _ := newTestChatService(t, vectors, chat)

	stats, err := svc.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(42), stats["chunk_count"])
	assert.Equal(t, "fake-embed", stats["embed_provider"])
	assert.Equal(t, "fake-chat", stats["chat_provider"])
}
