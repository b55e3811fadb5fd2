package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/capitalize-ai/ai-twin/internal/model"
	"github.com/capitalize-ai/ai-twin/pkg/clock"
	"github.com/capitalize-ai/ai-twin/pkg/logger"
	"github.com/capitalize-ai/ai-twin/pkg/metrics"
)

const (
	// GeminiBaseURL is Gemini's OpenAI-compatible endpoint.
	GeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta/openai"

	defaultOpenAIModel = "gpt-4o"
	defaultGeminiModel = "gemini-2.5-flash"
	defaultMaxTokens   = 4096

	// MaxToolRounds bounds how many times one turn may call back into the
	// model with tool results.
	MaxToolRounds = 8
)

// ErrToolRoundsExceeded ends a turn whose model keeps requesting tools.
var ErrToolRoundsExceeded = errors.New("engine: tool rounds exceeded")

// OpenAIEngine streams chat completions from OpenAI or any
// OpenAI-compatible endpoint and runs tool calls in a loop.
type OpenAIEngine struct {
	client    *openai.Client
	model     string
	maxTokens int
	tools     []openai.Tool
	toolIndex map[string]Tool
	clock     clock.Clock
	logger    *logger.Logger
}

// NewOpenAIEngine creates an OpenAI-compatible engine. The Gemini provider
// defaults to GeminiBaseURL.
func NewOpenAIEngine(cfg Config, tools []Tool, c clock.Clock, log *logger.Logger) (*OpenAIEngine, error) {
	if cfg.APIKey == "" {
		return nil, ErrNoAPIKey
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	baseURL := cfg.BaseURL
	if baseURL == "" && cfg.Provider == ProviderGemini {
		baseURL = GeminiBaseURL
	}
	if baseURL != "" {
		clientConfig.BaseURL = strings.TrimRight(baseURL, "/")
	}

	modelName := cfg.Model
	if modelName == "" {
		modelName = defaultOpenAIModel
		if cfg.Provider == ProviderGemini {
			modelName = defaultGeminiModel
		}
	}

	maxTokens := cfg.MaxTokens
	if maxTokens == 0 {
		maxTokens = defaultMaxTokens
	}

	defs := make([]openai.Tool, 0, len(tools))
	for _, t := range tools {
		defs = append(defs, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}

	return &OpenAIEngine{
		client:    openai.NewClientWithConfig(clientConfig),
		model:     modelName,
		maxTokens: maxTokens,
		tools:     defs,
		toolIndex: toolIndex(tools),
		clock:     c,
		logger:    log,
	}, nil
}

// Stream opens the first completion stream synchronously so dispatch
// failures surface to the caller; everything after runs on the pipe.
func (e *OpenAIEngine) Stream(ctx context.Context, req Request) (Stream, error) {
	ctx, cancel := context.WithCancel(ctx)

	messages := openAIMessages(req)
	first, err := e.open(ctx, messages)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to start completion: %w", err)
	}

	return newPipe(ctx, cancel, func(ctx context.Context, emit emitFunc) error {
		return e.run(ctx, req.Thread.ID, messages, first, emit)
	}), nil
}

func (e *OpenAIEngine) open(ctx context.Context, messages []openai.ChatCompletionMessage) (*openai.ChatCompletionStream, error) {
	request := openai.ChatCompletionRequest{
		Model:     e.model,
		Messages:  messages,
		MaxTokens: e.maxTokens,
		Stream:    true,
	}
	if len(e.tools) > 0 {
		request.Tools = e.tools
	}
	return e.client.CreateChatCompletionStream(ctx, request)
}

func (e *OpenAIEngine) run(ctx context.Context, threadID string, messages []openai.ChatCompletionMessage, stream *openai.ChatCompletionStream, emit emitFunc) error {
	for round := 0; ; round++ {
		result, err := e.relayRound(threadID, stream, emit)
		stream.Close()
		if err != nil {
			return err
		}
		if len(result.calls) == 0 {
			return nil
		}
		if round+1 >= MaxToolRounds {
			return ErrToolRoundsExceeded
		}

		messages = append(messages, openai.ChatCompletionMessage{
			Role:      openai.ChatMessageRoleAssistant,
			Content:   result.text,
			ToolCalls: result.calls,
		})
		for _, call := range result.calls {
			output, ok := e.callTool(ctx, threadID, call, emit)
			if !ok {
				return ctx.Err()
			}
			messages = append(messages, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				Content:    output,
				ToolCallID: call.ID,
			})
		}

		stream, err = e.open(ctx, messages)
		if err != nil {
			return fmt.Errorf("failed to continue completion: %w", err)
		}
	}
}

type roundResult struct {
	text  string
	calls []openai.ToolCall
}

// relayRound forwards one completion stream as item and delta events and
// collects any tool calls the model requested.
func (e *OpenAIEngine) relayRound(threadID string, stream *openai.ChatCompletionStream, emit emitFunc) (roundResult, error) {
	start := time.Now()
	status := "ok"
	var content strings.Builder
	defer func() {
		tokens := content.Len() / 4 // streamed responses carry no usage
		metrics.RecordLLMStream(e.model, status, time.Since(start).Seconds(), 0, tokens)
	}()

	var item *model.Item
	calls := map[int]*openai.ToolCall{}

	for {
		response, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			status = "error"
			return roundResult{}, fmt.Errorf("completion stream: %w", err)
		}
		if len(response.Choices) == 0 {
			continue
		}
		delta := response.Choices[0].Delta

		if delta.Content != "" {
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
					return roundResult{}, context.Canceled
				}
			}
			content.WriteString(delta.Content)
			if !emit(Event{Kind: EventContentDelta, ItemID: item.ID, Delta: delta.Content}) {
				status = "cancelled"
				return roundResult{}, context.Canceled
			}
		}

		for i, tc := range delta.ToolCalls {
			index := i
			if tc.Index != nil {
				index = *tc.Index
			}
			acc, ok := calls[index]
			if !ok {
				acc = &openai.ToolCall{Type: openai.ToolTypeFunction}
				calls[index] = acc
			}
			if tc.ID != "" {
				acc.ID = tc.ID
			}
			acc.Function.Name += tc.Function.Name
			acc.Function.Arguments += tc.Function.Arguments
		}
	}

	if item != nil {
		item.Content.Text = content.String()
		if !emit(Event{Kind: EventItemUpdated, Item: item}) {
			status = "cancelled"
			return roundResult{}, context.Canceled
		}
	}

	indexes := make([]int, 0, len(calls))
	for index := range calls {
		indexes = append(indexes, index)
	}
	sort.Ints(indexes)

	result := roundResult{text: content.String()}
	for _, index := range indexes {
		call := *calls[index]
		if call.ID == "" {
			call.ID = fmt.Sprintf("call_%d", index)
		}
		result.calls = append(result.calls, call)
	}
	return result, nil
}

// callTool runs one requested tool, reports it, and records the call as a
// tool_call item. Failures become an error event and a textual result the
// model can read. ok is false once the consumer has gone away.
func (e *OpenAIEngine) callTool(ctx context.Context, threadID string, call openai.ToolCall, emit emitFunc) (output string, ok bool) {
	name, args := call.Function.Name, call.Function.Arguments
	if !emit(Event{Kind: EventToolCall, ToolName: name, Arguments: args}) {
		return "", false
	}

	var err error
	if tool, found := e.toolIndex[name]; found {
		raw := json.RawMessage(args)
		if strings.TrimSpace(args) == "" {
			raw = json.RawMessage("{}")
		}
		output, err = tool.Call(ctx, raw)
	} else {
		err = fmt.Errorf("unknown tool %q", name)
	}
	if err != nil {
		e.logger.Warn("tool call failed",
			zap.String("thread_id", threadID),
			zap.String("tool", name),
			zap.Error(err),
		)
		output = fmt.Sprintf("Tool %s failed: %v", name, err)
		if !emit(Event{Kind: EventError, Message: output}) {
			return "", false
		}
	}

	item := model.Item{
		ID:        NewItemID("tool"),
		ThreadID:  threadID,
		Kind:      model.KindToolCall,
		CreatedAt: e.clock.Now(),
		Content: model.ItemContent{Tool: &model.ToolCall{
			Name:      name,
			Arguments: args,
			Output:    output,
		}},
	}
	if !emit(Event{Kind: EventItemCreated, Item: &item}) {
		return "", false
	}
	return output, true
}

// openAIMessages converts a turn request into chat messages. Tool call
// items are not replayed; their results already shaped the replies that
// follow them.
func openAIMessages(req Request) []openai.ChatCompletionMessage {
	messages := make([]openai.ChatCompletionMessage, 0, len(req.History)+2)
	if req.Instructions != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.Instructions,
		})
	}
	for _, item := range turnItems(req) {
		role, ok := openAIRole(item.Kind)
		if !ok || item.Content.Text == "" {
			continue
		}
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    role,
			Content: item.Content.Text,
		})
	}
	return messages
}

func openAIRole(kind model.ItemKind) (string, bool) {
	switch kind {
	case model.KindUserMessage:
		return openai.ChatMessageRoleUser, true
	case model.KindAssistantMessage:
		return openai.ChatMessageRoleAssistant, true
	case model.KindSystemMessage:
		return openai.ChatMessageRoleSystem, true
	default:
		return "", false
	}
}
