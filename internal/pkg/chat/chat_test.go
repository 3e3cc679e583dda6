package chat

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docexpress/docexpress/internal/pkg/documents"
)

func TestNewAssistantFromEnvWithoutKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")

	assistant := NewAssistantFromEnv()
	tpl, ok := documents.GetBySlug("lettre-demission-cdi")
	require.True(t, ok)

	_, err := assistant.Converse(context.Background(), tpl, nil, nil)
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestSystemPromptListsFields(t *testing.T) {
	tpl, ok := documents.GetBySlug("lettre-demission-cdi")
	require.True(t, ok)

	prompt := systemPrompt(tpl, map[string]string{"prenom": "Marie"})

	assert.Contains(t, prompt, tpl.Title)
	for _, field := range tpl.RequiredFields {
		assert.Contains(t, prompt, "- "+field+" [obligatoire]")
	}
	assert.Contains(t, prompt, `"prenom": "Marie"`)
}

func TestParseReply(t *testing.T) {
	reply, err := parseReply([]byte(`{"message":"Quel est votre nom ?","collectedData":{"prenom":"Marie"},"isComplete":false}`))
	require.NoError(t, err)
	assert.Equal(t, "Quel est votre nom ?", reply.Message)
	assert.Equal(t, "Marie", reply.CollectedData["prenom"])
	assert.False(t, reply.IsComplete)

	done, err := parseReply([]byte(`{"message":"Parfait !","isComplete":true,"finalData":{"prenom":"Marie","nom":"Curie"}}`))
	require.NoError(t, err)
	assert.True(t, done.IsComplete)
	assert.Equal(t, "Curie", done.FinalData["nom"])
	assert.NotNil(t, done.CollectedData)

	_, err = parseReply([]byte(`pas du json`))
	assert.Error(t, err)
}
