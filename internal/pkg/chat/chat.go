// Package chat drives the conversational form-filling assistant. A language
// model collects the template's required fields one question at a time and
// reports when the form data is complete; the actual generation still goes
// through the normal entitlement and rendering path.
package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/docexpress/docexpress/internal/pkg/documents"
	"github.com/docexpress/docexpress/internal/pkg/env"
)

// ErrUnavailable is returned when no language-model backend is configured.
var ErrUnavailable = errors.New("chat assistant unavailable")

// Message is one turn of the conversation, role "user" or "assistant".
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Reply is the assistant's structured answer. Field names follow the JSON
// contract the model is instructed to emit.
type Reply struct {
	Message       string            `json:"message"`
	CollectedData map[string]string `json:"collectedData"`
	IsComplete    bool              `json:"isComplete"`
	FinalData     map[string]string `json:"finalData,omitempty"`
}

// Assistant runs one conversation turn for a document template.
type Assistant interface {
	Converse(ctx context.Context, tpl documents.Template, messages []Message, collected map[string]string) (*Reply, error)
}

// NewAssistantFromEnv returns an OpenAI-backed assistant when OPENAI_API_KEY
// is set, otherwise an assistant that always reports ErrUnavailable.
func NewAssistantFromEnv() Assistant {
	apiKey := env.GetEnv("OPENAI_API_KEY", "")
	if apiKey == "" {
		return unavailableAssistant{}
	}
	return &openaiAssistant{
		client: openai.NewClient(apiKey),
		model:  env.GetEnv("CHAT_MODEL", "gpt-4o-mini"),
	}
}

type openaiAssistant struct {
	client *openai.Client
	model  string
}

func (a *openaiAssistant) Converse(ctx context.Context, tpl documents.Template, messages []Message, collected map[string]string) (*Reply, error) {
	req := openai.ChatCompletionRequest{
		Model:       a.model,
		Temperature: 0.7,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt(tpl, collected)},
		},
	}
	for _, m := range messages {
		req.Messages = append(req.Messages, openai.ChatCompletionMessage{
			Role:    m.Role,
			Content: m.Content,
		})
	}

	resp, err := a.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: empty completion", ErrUnavailable)
	}
	return parseReply([]byte(resp.Choices[0].Message.Content))
}

// systemPrompt instructs the model in French to collect the template's
// fields conversationally and answer in the structured JSON contract.
func systemPrompt(tpl documents.Template, collected map[string]string) string {
	var fields strings.Builder
	for _, f := range tpl.RequiredFields {
		fmt.Fprintf(&fields, "- %s [obligatoire]\n", f)
	}
	collectedJSON, _ := json.MarshalIndent(collected, "", "  ")

	return fmt.Sprintf(`Tu es l'assistant DocExpress, un assistant français sympathique et professionnel qui aide les utilisateurs à remplir leurs documents administratifs.

Document à créer : %s

Champs à collecter :
%s
Données déjà collectées :
%s

Instructions :
1. Pose les questions une par une de manière naturelle et conversationnelle
2. Quand l'utilisateur répond, extrait l'information et passe à la question suivante
3. Si une réponse n'est pas claire, demande poliment de préciser
4. Sois encourageant et aide l'utilisateur si il hésite
5. Quand tu as collecté TOUTES les informations obligatoires, indique que c'est terminé

Format de réponse JSON :
{"message": "Ton message à l'utilisateur", "collectedData": {"nomDuChamp": "valeur"}, "isComplete": false, "finalData": null}

Quand toutes les données sont collectées :
{"message": "Parfait ! J'ai toutes les informations. Cliquez sur le bouton pour générer votre document.", "collectedData": {}, "isComplete": true, "finalData": {...toutes les données collectées}}`,
		tpl.Title, fields.String(), string(collectedJSON))
}

func parseReply(raw []byte) (*Reply, error) {
	var reply Reply
	if err := json.Unmarshal(raw, &reply); err != nil {
		return nil, fmt.Errorf("malformed assistant reply: %w", err)
	}
	if reply.CollectedData == nil {
		reply.CollectedData = map[string]string{}
	}
	return &reply, nil
}

type unavailableAssistant struct{}

func (unavailableAssistant) Converse(context.Context, documents.Template, []Message, map[string]string) (*Reply, error) {
	return nil, ErrUnavailable
}
