package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/capitalize-ai/ai-twin/internal/model"
	"github.com/capitalize-ai/ai-twin/pkg/clock"
	"github.com/capitalize-ai/ai-twin/pkg/logger"
	"github.com/capitalize-ai/ai-twin/pkg/metrics"
)

const defaultAnthropicModel = "claude-3-5-sonnet-20241022"

// AnthropicEngine streams text replies from the Anthropic Messages API.
// It does not use tools.
type AnthropicEngine struct {
	client    *anthropic.Client
	model     string
	maxTokens int
	clock     clock.Clock
	logger    *logger.Logger
}

// NewAnthropicEngine creates an Anthropic engine.
func NewAnthropicEngine(cfg Config, c clock.Clock, log *logger.Logger) (*AnthropicEngine, error) {
	if cfg.APIKey == "" {
		return nil, ErrNoAPIKey
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	modelName := cfg.Model
	if modelName == "" {
		modelName = defaultAnthropicModel
	}

	maxTokens := cfg.MaxTokens
	if maxTokens == 0 {
		maxTokens = defaultMaxTokens
	}

	return &AnthropicEngine{
		client:    anthropic.NewClient(opts...),
		model:     modelName,
		maxTokens: maxTokens,
		clock:     c,
		logger:    log,
	}, nil
}

// Stream starts a turn. Connection failures surface from Next.
func (e *AnthropicEngine) Stream(ctx context.Context, req Request) (Stream, error) {
	ctx, cancel := context.WithCancel(ctx)

	system, turns := anthropicConversation(req)
	params := anthropic.MessageNewParams{
		Model:     anthropic.F(e.model),
		MaxTokens: anthropic.F(int64(e.maxTokens)),
		Messages:  anthropic.F(anthropicMessages(turns)),
	}
	if system != "" {
		params.System = anthropic.F([]anthropic.TextBlockParam{
			{
				Type: anthropic.F(anthropic.TextBlockParamTypeText),
				Text: anthropic.F(system),
			},
		})
	}

	return newPipe(ctx, cancel, func(ctx context.Context, emit emitFunc) error {
		return e.run(ctx, req.Thread.ID, params, emit)
	}), nil
}

func (e *AnthropicEngine) run(ctx context.Context, threadID string, params anthropic.MessageNewParams, emit emitFunc) error {
	start := time.Now()
	status := "ok"
	var content strings.Builder
	var tokensOut int
	defer func() {
		metrics.RecordLLMStream(e.model, status, time.Since(start).Seconds(), 0, tokensOut)
	}()

	stream := e.client.Messages.NewStreaming(ctx, params)
	defer stream.Close()

	var item *model.Item
	for stream.Next() {
		event := stream.Current()

		switch event.Type {
		case anthropic.MessageStreamEventTypeContentBlockDelta:
			if event.Delta.Type != "text_delta" || event.Delta.Text == "" {
				continue
			}
			if item == nil {
				item = &model.Item{
					ID:        NewItemID("msg"),
					ThreadID:  threadID,
					Kind:      model.KindAssistantMessage,
					CreatedAt: e.clock.Now(),
				}
				created := item.Clone()
				if !emit(Event{Kind: EventItemCreated, Item: &created}) {
					status = "cancelled"
					return ctx.Err()
				}
			}
			content.WriteString(event.Delta.Text)
			if !emit(Event{Kind: EventContentDelta, ItemID: item.ID, Delta: event.Delta.Text}) {
				status = "cancelled"
				return ctx.Err()
			}
		case anthropic.MessageStreamEventTypeMessageDelta:
			tokensOut = int(event.Usage.OutputTokens)
		}
	}

	if err := stream.Err(); err != nil {
		status = "error"
		return fmt.Errorf("message stream: %w", err)
	}

	if item != nil {
		item.Content.Text = content.String()
		if !emit(Event{Kind: EventItemUpdated, Item: item}) {
			status = "cancelled"
			return ctx.Err()
		}
	}
	return nil
}

type anthropicTurn struct {
	role anthropic.MessageParamRole
	text string
}

// anthropicConversation splits a request into system text and alternating
// user/assistant turns. The Messages API requires the first turn to be the
// user's and roles to alternate, so consecutive same-role items merge.
func anthropicConversation(req Request) (string, []anthropicTurn) {
	system := []string{}
	if req.Instructions != "" {
		system = append(system, req.Instructions)
	}

	var turns []anthropicTurn
	for _, item := range turnItems(req) {
		if item.Content.Text == "" {
			continue
		}

		var role anthropic.MessageParamRole
		switch item.Kind {
		case model.KindSystemMessage:
			system = append(system, item.Content.Text)
			continue
		case model.KindUserMessage:
			role = anthropic.MessageParamRoleUser
		case model.KindAssistantMessage:
			role = anthropic.MessageParamRoleAssistant
		default:
			continue
		}

		if len(turns) == 0 && role != anthropic.MessageParamRoleUser {
			continue
		}
		if n := len(turns); n > 0 && turns[n-1].role == role {
			turns[n-1].text += "\n\n" + item.Content.Text
			continue
		}
		turns = append(turns, anthropicTurn{role: role, text: item.Content.Text})
	}

	return strings.Join(system, "\n\n"), turns
}

func anthropicMessages(turns []anthropicTurn) []anthropic.MessageParam {
	messages := make([]anthropic.MessageParam, len(turns))
	for i, turn := range turns {
		messages[i] = anthropic.MessageParam{
			Role: anthropic.F(turn.role),
			Content: anthropic.F([]anthropic.ContentBlockParamUnion{
				anthropic.TextBlockParam{
					Type: anthropic.F(anthropic.TextBlockParamTypeText),
					Text: anthropic.F(turn.text),
				},
			}),
		}
	}
	return messages
}
