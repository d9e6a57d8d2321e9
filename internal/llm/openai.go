package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/fdezr/frontdesk/internal/conversation"
)

// OpenAIClient drafts replies and extracts contact fields with chat
// completions.
type OpenAIClient struct {
	client          *openai.Client
	chatModel       string
	extractionModel string
}

func NewOpenAIClient(apiKey, chatModel, extractionModel string) *OpenAIClient {
	return &OpenAIClient{
		client:          openai.NewClient(apiKey),
		chatModel:       chatModel,
		extractionModel: extractionModel,
	}
}

func (c *OpenAIClient) DraftReply(ctx context.Context, rc ReplyContext) (string, error) {
	msgs := make([]openai.ChatCompletionMessage, 0, len(rc.Transcript)+1)
	msgs = append(msgs, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: buildSystemPrompt(rc),
	})
	for _, turn := range rc.Transcript {
		role := openai.ChatMessageRoleUser
		if turn.Role == "assistant" {
			role = openai.ChatMessageRoleAssistant
		}
		msgs = append(msgs, openai.ChatCompletionMessage{Role: role, Content: turn.Content})
	}

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.chatModel,
		Messages:    msgs,
		Temperature: 0.4,
	})
	if err != nil {
		return "", fmt.Errorf("draft reply: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("draft reply: empty completion")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func buildSystemPrompt(rc ReplyContext) string {
	var b strings.Builder
	if rc.SystemPrompt != "" {
		b.WriteString(rc.SystemPrompt)
	} else {
		b.WriteString("You are a friendly front-desk assistant that books appointments.")
	}
	b.WriteString("\n\nRespond in ")
	if rc.Language == "es" {
		b.WriteString("Spanish.")
	} else {
		b.WriteString("English.")
	}

	switch rc.BookingState {
	case conversation.StateNone:
		if len(rc.MissingFields) > 0 {
			b.WriteString("\nAsk the caller for their ")
			b.WriteString(strings.Join(rc.MissingFields, ", "))
			b.WriteString(". Ask only for what is still missing.")
		}
	case conversation.StateAwaitingDay:
		b.WriteString("\nOffer these days and ask the caller to pick one by number:\n")
		for i, d := range rc.OfferedDays {
			label := d.DisplayEN
			if rc.Language == "es" {
				label = d.DisplayES
			}
			fmt.Fprintf(&b, "%d. %s\n", i+1, label)
		}
	case conversation.StateAwaitingSlot:
		b.WriteString("\nOffer these times and ask the caller to pick one by number:\n")
		for i, s := range rc.OfferedSlots {
			fmt.Fprintf(&b, "%d. %s\n", i+1, s.Display)
		}
	case conversation.StateConfirmed:
		b.WriteString("\nThe appointment is confirmed. Thank the caller and close the conversation.")
	}
	return b.String()
}

func (c *OpenAIClient) ExtractFields(ctx context.Context, transcript []conversation.Turn, wanted []string) (map[string]string, error) {
	if len(transcript) == 0 || len(wanted) == 0 {
		return nil, nil
	}

	var convo strings.Builder
	for _, turn := range transcript {
		fmt.Fprintf(&convo, "%s: %s\n", turn.Role, turn.Content)
	}

	prompt := fmt.Sprintf(
		"Extract the following contact fields from the conversation: %s.\n"+
			"Return a JSON object with exactly those keys. Use an empty string for any field the user has not provided. Never guess.\n\nConversation:\n%s",
		strings.Join(wanted, ", "), convo.String())

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.extractionModel,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: "You extract structured contact data. Output only JSON."},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: 0,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("extract fields: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("extract fields: empty completion")
	}

	var raw map[string]string
	if err := json.Unmarshal([]byte(resp.Choices[0].Message.Content), &raw); err != nil {
		return nil, fmt.Errorf("extract fields: decode %q: %w", resp.Choices[0].Message.Content, err)
	}

	out := make(map[string]string, len(wanted))
	for _, f := range wanted {
		if v := CleanField(f, raw[f]); v != "" {
			out[f] = v
		}
	}
	return out, nil
}
