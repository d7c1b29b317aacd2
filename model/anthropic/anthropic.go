// Package anthropic provides a model wrapper for the Anthropic Claude
// Messages API, covering non-streaming and streaming generation including
// tool use blocks.
package anthropic

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"
	"github.com/anthropics/anthropic-sdk-go/shared/constant"

	"github.com/hupe1980/agentloop/core"
	"github.com/hupe1980/agentloop/model"
)

// Options configures the Anthropic model adapter (temperature, model id,
// max tokens, API key). Extend via functional options to preserve stability.
type Options struct {
	Model       anthropic.Model
	Temperature float64
	MaxTokens   int64
	APIKey      string
}

// messagesAPI is the slice of the Anthropic SDK the adapter calls. It is
// satisfied by *anthropic.MessageService, so tests can substitute a stub.
type messagesAPI interface {
	New(ctx context.Context, params anthropic.MessageNewParams, opts ...option.RequestOption) (*anthropic.Message, error)
	NewStreaming(ctx context.Context, params anthropic.MessageNewParams, opts ...option.RequestOption) *ssestream.Stream[anthropic.MessageStreamEventUnion]
}

// Model wraps the Anthropic Messages API behind the generic model.Model interface.
type Model struct {
	messages messagesAPI
	opts     Options
}

// NewModel creates a new Anthropic model using the official client
func NewModel(optFns ...func(o *Options)) *Model {
	opts := Options{
		Model:       anthropic.ModelClaude3_5Sonnet20241022,
		Temperature: 0.7,
		MaxTokens:   4096,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	var clientOpts []option.RequestOption
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}

	client := anthropic.NewClient(clientOpts...)

	return &Model{
		messages: &client.Messages,
		opts:     opts,
	}
}

// NewModelFromClient creates a new Anthropic model from an existing client
func NewModelFromClient(client *anthropic.Client, optFns ...func(o *Options)) *Model {
	opts := Options{
		Model:       anthropic.ModelClaude3_5Sonnet20241022,
		Temperature: 0.7,
		MaxTokens:   4096,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	return &Model{
		messages: &client.Messages,
		opts:     opts,
	}
}

// Generate implements unified streaming / non-streaming generation.
// It adapts Anthropic Messages API (with function/tool calling) into model.Response events.
func (m *Model) Generate(ctx context.Context, req model.Request) (<-chan model.Response, <-chan error) {
	out := make(chan model.Response, 32)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		params := anthropic.MessageNewParams{
			Model:       m.opts.Model,
			Messages:    m.buildMessages(req.Contents),
			MaxTokens:   m.opts.MaxTokens,
			Temperature: anthropic.Float(m.opts.Temperature),
		}

		if systemBlocks := m.buildSystemBlocks(req); len(systemBlocks) > 0 {
			params.System = systemBlocks
		}

		if len(req.Tools) > 0 {
			params.Tools = m.buildTools(req.Tools)
		}

		if req.Stream {
			m.handleStreaming(ctx, params, out, errCh)
			return
		}
		m.handleNonStreaming(ctx, params, out, errCh)
	}()

	return out, errCh
}

// handleNonStreaming issues a single Messages.New call and emits the final response.
func (m *Model) handleNonStreaming(
	ctx context.Context,
	params anthropic.MessageNewParams,
	out chan<- model.Response,
	errCh chan<- error,
) {
	resp, err := m.messages.New(ctx, params)
	if err != nil {
		errCh <- fmt.Errorf("anthropic api error: %w", err)
		return
	}

	var parts []core.Part
	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			if block.Text != "" {
				parts = append(parts, core.TextPart{Text: block.Text})
			}
		case "tool_use":
			parts = append(parts, core.FunctionCallPart{
				FunctionCall: core.FunctionCall{
					ID:   block.ID,
					Name: block.Name,
					Args: decodeToolInput(block.Input),
				},
			})
		}
	}

	finishReason := "stop"
	if resp.StopReason != "" {
		finishReason = string(resp.StopReason)
	}

	var usage *model.TokenUsage
	if resp.Usage.InputTokens != 0 || resp.Usage.OutputTokens != 0 {
		usage = &model.TokenUsage{
			PromptTokens:     int(resp.Usage.InputTokens),
			CompletionTokens: int(resp.Usage.OutputTokens),
			TotalTokens:      int(resp.Usage.InputTokens + resp.Usage.OutputTokens),
		}
	}

	out <- model.Response{
		ID:           resp.ID,
		Content:      &core.Content{Role: "assistant", Parts: parts},
		TurnComplete: true,
		FinishReason: finishReason,
		Usage:        usage,
	}
}

// toolAgg buffers a streamed tool_use block until its input JSON is complete.
type toolAgg struct {
	id        string
	name      string
	fragments []string
}

func (a *toolAgg) input() map[string]any {
	joined := strings.TrimSpace(strings.Join(a.fragments, ""))
	if joined == "" {
		return nil
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(joined), &args); err != nil {
		return nil
	}
	return args
}

// handleStreaming consumes the Messages streaming event sequence, forwarding
// text deltas as partial responses and assembling the final response (text +
// complete tool calls) at message stop.
func (m *Model) handleStreaming(
	ctx context.Context,
	params anthropic.MessageNewParams,
	out chan<- model.Response,
	errCh chan<- error,
) {
	stream := m.messages.NewStreaming(ctx, params)
	defer func() { _ = stream.Close() }()

	var (
		respID      string
		stopReason  string
		textBuilder strings.Builder
		promptTok   int64
		outputTok   int64
		tools       = map[int]*toolAgg{}
	)

	emit := func(resp model.Response) bool {
		select {
		case <-ctx.Done():
			return false
		case out <- resp:
			return true
		}
	}

	for stream.Next() {
		event := stream.Current()
		switch ev := event.AsAny().(type) {
		case anthropic.MessageStartEvent:
			respID = ev.Message.ID
			promptTok = ev.Message.Usage.InputTokens

		case anthropic.ContentBlockStartEvent:
			if tu, ok := ev.ContentBlock.AsAny().(anthropic.ToolUseBlock); ok {
				tools[int(ev.Index)] = &toolAgg{id: tu.ID, name: tu.Name}
				if !emit(model.Response{
					ID:      respID,
					Partial: true,
					Content: &core.Content{
						Role: "assistant",
						Parts: []core.Part{core.FunctionCallPart{
							FunctionCall: core.FunctionCall{ID: tu.ID, Name: tu.Name},
						}},
					},
				}) {
					errCh <- ctx.Err()
					return
				}
			}

		case anthropic.ContentBlockDeltaEvent:
			switch delta := ev.Delta.AsAny().(type) {
			case anthropic.TextDelta:
				if delta.Text == "" {
					continue
				}
				textBuilder.WriteString(delta.Text)
				if !emit(model.Response{
					ID:      respID,
					Partial: true,
					Content: core.NewTextContent("assistant", delta.Text),
				}) {
					errCh <- ctx.Err()
					return
				}
			case anthropic.InputJSONDelta:
				if ta := tools[int(ev.Index)]; ta != nil && delta.PartialJSON != "" {
					ta.fragments = append(ta.fragments, delta.PartialJSON)
				}
			}

		case anthropic.MessageDeltaEvent:
			stopReason = string(ev.Delta.StopReason)
			outputTok = ev.Usage.OutputTokens

		case anthropic.MessageStopEvent:
			finalParts := make([]core.Part, 0, len(tools)+1)
			if textBuilder.Len() > 0 {
				finalParts = append(finalParts, core.TextPart{Text: textBuilder.String()})
			}
			indexes := make([]int, 0, len(tools))
			for idx := range tools {
				indexes = append(indexes, idx)
			}
			sort.Ints(indexes)
			for _, idx := range indexes {
				ta := tools[idx]
				finalParts = append(finalParts, core.FunctionCallPart{
					FunctionCall: core.FunctionCall{ID: ta.id, Name: ta.name, Args: ta.input()},
				})
			}
			if stopReason == "" {
				stopReason = "stop"
			}
			var usage *model.TokenUsage
			if promptTok != 0 || outputTok != 0 {
				usage = &model.TokenUsage{
					PromptTokens:     int(promptTok),
					CompletionTokens: int(outputTok),
					TotalTokens:      int(promptTok + outputTok),
				}
			}
			if !emit(model.Response{
				ID:           respID,
				Content:      &core.Content{Role: "assistant", Parts: finalParts},
				TurnComplete: true,
				FinishReason: stopReason,
				Usage:        usage,
			}) {
				errCh <- ctx.Err()
				return
			}
		}
	}
	if err := stream.Err(); err != nil {
		errCh <- fmt.Errorf("anthropic streaming error: %w", err)
	}
}

// decodeToolInput converts a tool_use input payload into an argument map.
func decodeToolInput(input json.RawMessage) map[string]any {
	if len(input) == 0 {
		return nil
	}
	var args map[string]any
	if err := json.Unmarshal(input, &args); err != nil {
		return nil
	}
	return args
}

// encodeToolResult renders a function response as tool_result text content.
func encodeToolResult(fr core.FunctionResponse) (string, bool) {
	if fr.Error != "" {
		return fr.Error, true
	}
	if s, ok := fr.Response.(string); ok {
		return s, false
	}
	b, err := json.Marshal(fr.Response)
	if err != nil {
		return fmt.Sprintf("%v", fr.Response), false
	}
	return string(b), false
}

// buildMessages converts normalized contents to Anthropic message format.
func (m *Model) buildMessages(contents []core.Content) []anthropic.MessageParam {
	var messages []anthropic.MessageParam

	// Track tool responses so they can be attached right after the assistant
	// turn that requested them.
	toolResults := make(map[string]core.FunctionResponse)
	for _, c := range contents {
		if c.Role != "tool" {
			continue
		}
		for _, p := range c.Parts {
			if fr, ok := p.(core.FunctionResponsePart); ok && fr.FunctionResponse.ID != "" {
				toolResults[fr.FunctionResponse.ID] = fr.FunctionResponse
			}
		}
	}

	for _, c := range contents {
		if c.Role == "system" || c.Role == "tool" {
			continue // System messages handled separately, tool responses embedded
		}

		switch c.Role {
		case "assistant":
			content := m.buildAssistantContent(c.Parts, toolResults)
			if len(content) > 0 {
				messages = append(messages, anthropic.NewAssistantMessage(content...))
			}
		default:
			// User plus unknown roles map to user turns.
			content := m.buildUserContent(c.Parts)
			if len(content) > 0 {
				messages = append(messages, anthropic.NewUserMessage(content...))
			}
		}
	}

	return messages
}

// buildSystemBlocks merges request instructions with any system role contents.
func (m *Model) buildSystemBlocks(req model.Request) []anthropic.TextBlockParam {
	var systemBlocks []anthropic.TextBlockParam

	if req.Instructions != "" {
		systemBlocks = append(systemBlocks, anthropic.TextBlockParam{Text: req.Instructions})
	}
	for _, c := range req.Contents {
		if c.Role != "system" {
			continue
		}
		for _, p := range c.Parts {
			if tp, ok := p.(core.TextPart); ok && tp.Text != "" {
				systemBlocks = append(systemBlocks, anthropic.TextBlockParam{Text: tp.Text})
			}
		}
	}

	return systemBlocks
}

// buildUserContent builds content for user messages
func (m *Model) buildUserContent(parts []core.Part) []anthropic.ContentBlockParamUnion {
	var content []anthropic.ContentBlockParamUnion

	for _, p := range parts {
		if tp, ok := p.(core.TextPart); ok && tp.Text != "" {
			content = append(content, anthropic.NewTextBlock(tp.Text))
		}
	}

	return content
}

// buildAssistantContent builds content for assistant messages, embedding tool
// results directly after the tool_use blocks that produced them.
func (m *Model) buildAssistantContent(
	parts []core.Part,
	toolResults map[string]core.FunctionResponse,
) []anthropic.ContentBlockParamUnion {
	var content []anthropic.ContentBlockParamUnion
	var toolCallIDs []string

	for _, p := range parts {
		switch part := p.(type) {
		case core.TextPart:
			if part.Text != "" {
				content = append(content, anthropic.NewTextBlock(part.Text))
			}
		case core.FunctionCallPart:
			var input any
			if part.FunctionCall.Args != nil {
				input = part.FunctionCall.Args
			} else {
				input = map[string]any{}
			}
			content = append(content, anthropic.NewToolUseBlock(
				part.FunctionCall.ID,
				input,
				part.FunctionCall.Name,
			))
			toolCallIDs = append(toolCallIDs, part.FunctionCall.ID)
		}
	}

	for _, id := range toolCallIDs {
		if fr, ok := toolResults[id]; ok {
			text, isErr := encodeToolResult(fr)
			content = append(content, anthropic.NewToolResultBlock(id, text, isErr))
			delete(toolResults, id)
		}
	}

	return content
}

// buildTools converts tool declarations to Anthropic tool format.
func (m *Model) buildTools(tools []model.ToolDeclaration) []anthropic.ToolUnionParam {
	anthropicTools := make([]anthropic.ToolUnionParam, len(tools))

	for i, td := range tools {
		inputSchema := anthropic.ToolInputSchemaParam{
			Type: constant.Object("object"),
		}

		if td.Parameters != nil {
			if properties, exists := td.Parameters["properties"]; exists {
				inputSchema.Properties = properties
			}
			if required, exists := td.Parameters["required"]; exists {
				if reqSlice, ok := required.([]string); ok {
					inputSchema.Required = reqSlice
				} else if reqAny, ok := required.([]interface{}); ok {
					var reqStrings []string
					for _, r := range reqAny {
						if s, ok := r.(string); ok {
							reqStrings = append(reqStrings, s)
						}
					}
					inputSchema.Required = reqStrings
				}
			}
		}

		u := anthropic.ToolUnionParamOfTool(inputSchema, td.Name)
		if u.OfTool != nil && td.Description != "" {
			u.OfTool.Description = anthropic.String(td.Description)
		}
		anthropicTools[i] = u
	}

	return anthropicTools
}

// Info returns metadata describing this Anthropic model implementation.
func (m *Model) Info() model.Info {
	return model.Info{
		Name:          string(m.opts.Model),
		Provider:      "anthropic",
		SupportsTools: true,
	}
}
