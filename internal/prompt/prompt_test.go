package prompt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragchat/internal/domain"
)

func TestProfiles(t *testing.T) {
	assert.Empty(t, General.Profile().SystemPrompt)
	assert.Equal(t, 0.4, General.Profile().Temperature)
	assert.Equal(t, factualPrompt, Factual.Profile().SystemPrompt)
	assert.Equal(t, 0.0, Factual.Profile().Temperature)
	assert.Equal(t, creativePrompt, Creative.Profile().SystemPrompt)
	assert.Equal(t, 0.3, Creative.Profile().Temperature)
	assert.Equal(t, "general", Mode(42).String())
}

func TestParseMode(t *testing.T) {
	for _, m := range Modes() {
		got, err := ParseMode(m.String())
		require.NoError(t, err)
		assert.Equal(t, m, got)
	}
	got, err := ParseMode(" Factual ")
	require.NoError(t, err)
	assert.Equal(t, Factual, got)

	_, err = ParseMode("poetic")
	assert.ErrorIs(t, err, domain.ErrInvalidConfiguration)
}

func TestBuild_FactualWithOneChunk(t *testing.T) {
	msgs := Build(nil, Factual, "what color is the sky", []domain.Chunk{{Text: "The sky is blue."}})
	require.Len(t, msgs, 2)
	assert.Equal(t, domain.Turn{Role: domain.RoleSystem, Content: factualPrompt}, msgs[0])
	assert.Equal(t, domain.RoleUser, msgs[1].Role)
	assert.Equal(t, "TASK: what color is the sky\nCONTEXT: \"\"\"The sky is blue.\n\n---\n\n\"\"\"", msgs[1].Content)
}

func TestBuild_ChunkOrderFollowsRanking(t *testing.T) {
	msgs := Build(nil, General, "q", []domain.Chunk{{Text: "first"}, {Text: "second"}})
	require.Len(t, msgs, 1)
	assert.Equal(t, "TASK: q\nCONTEXT: \"\"\"first\n\n---\n\nsecond\n\n---\n\n\"\"\"", msgs[0].Content)
}

func TestBuild_NoRetrievalSendsRawQuery(t *testing.T) {
	msgs := Build(nil, General, "hello there", nil)
	require.Len(t, msgs, 1)
	assert.Equal(t, domain.Turn{Role: domain.RoleUser, Content: "hello there"}, msgs[0])
}

func TestBuild_SystemPromptFirstAndHistoryPreserved(t *testing.T) {
	history := []domain.Turn{
		{Role: domain.RoleSystem, Content: "stale system turn"},
		{Role: domain.RoleUser, Content: "one"},
		{Role: domain.RoleAssistant, Content: "two"},
	}
	msgs := Build(history, Creative, "three", nil)
	require.Len(t, msgs, 5)
	assert.Equal(t, creativePrompt, msgs[0].Content)
	assert.Equal(t, history, msgs[1:4])
	assert.Equal(t, "three", msgs[4].Content)
	assert.Equal(t, "stale system turn", history[0].Content, "input history untouched")
}

func TestContextualize_EmptyRetrieval(t *testing.T) {
	assert.Equal(t, "TASK: q\nCONTEXT: \"\"\"\"\"\"", Contextualize("q", []domain.Chunk{}))
	assert.Equal(t, "TASK: q\nCONTEXT: \"\"\"\"\"\"", UserTurn("q", []domain.Chunk{}).Content)
}
