package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/spigell/hr-intake/internal/ai"
	"github.com/spigell/hr-intake/internal/logger"
	"github.com/spigell/hr-intake/internal/utils"
	"go.uber.org/zap"
	"google.golang.org/genai"
)

const (
	providerName = "gemini"

	defaultModel         = "gemini-2.5-flash"
	defaultMaxRetries    = 3
	defaultMaxToolRounds = 8
	defaultMaxLogLength  = 200

	baseRetryDelay = 2 * time.Second
	maxRetryDelay  = 30 * time.Second
)

var waitFor = utils.WaitFor

var retryAfterPattern = regexp.MustCompile(`(?i)retry (?:after|in) ([0-9]+(?:\.[0-9]+)?)\s*(?:s\b|sec|second)`)

type chatSession interface {
	SendMessage(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error)
}

type chatCreator interface {
	Create(ctx context.Context, model string, config *genai.GenerateContentConfig, history []*genai.Content) (chatSession, error)
}

type tokenCounter interface {
	CountTokens(ctx context.Context, model string, contents []*genai.Content, config *genai.CountTokensConfig) (*genai.CountTokensResponse, error)
}

type genaiChats struct {
	chats *genai.Chats
}

func (c genaiChats) Create(ctx context.Context, model string, config *genai.GenerateContentConfig, history []*genai.Content) (chatSession, error) {
	chat, err := c.chats.Create(ctx, model, config, history)
	if err != nil {
		return nil, err
	}
	return chat, nil
}

// Config holds the Gemini runtime settings.
type Config struct {
	APIKey        string
	Model         string
	MaxRetries    int
	MaxToolRounds int
	MaxLogLength  int
}

// Runtime drives a Gemini chat with function calling on behalf of the intake service.
type Runtime struct {
	chats         chatCreator
	counter       tokenCounter
	model         string
	maxRetries    int
	maxToolRounds int
	maxLogLen     int
	logger        *zap.Logger
}

// New creates a Runtime configured for the Gemini API backend.
func New(ctx context.Context, cfg Config, log *zap.Logger) (*Runtime, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errors.New("gemini api key is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	r := &Runtime{
		chats:         genaiChats{chats: client.Chats},
		counter:       client.Models,
		model:         strings.TrimSpace(cfg.Model),
		maxRetries:    cfg.MaxRetries,
		maxToolRounds: cfg.MaxToolRounds,
		maxLogLen:     cfg.MaxLogLength,
	}
	r.applyDefaults()
	r.logger = logger.WithCommonFields(log, providerName, r.model)

	return r, nil
}

func (r *Runtime) applyDefaults() {
	if r.model == "" {
		r.model = defaultModel
	}
	if r.maxRetries <= 0 {
		r.maxRetries = defaultMaxRetries
	}
	if r.maxToolRounds <= 0 {
		r.maxToolRounds = defaultMaxToolRounds
	}
	if r.maxLogLen <= 0 {
		r.maxLogLen = defaultMaxLogLength
	}
	if r.logger == nil {
		r.logger = zap.NewNop()
	}
}

// Run sends the prompt, executes the tool calls the model asks for and returns its final text.
func (r *Runtime) Run(ctx context.Context, req ai.Request) (string, error) {
	if r == nil || r.chats == nil {
		return "", errors.New("gemini runtime is not initialized")
	}

	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return "", errors.New("prompt must not be empty")
	}

	config := &genai.GenerateContentConfig{}
	if system := strings.TrimSpace(req.SystemInstruction); system != "" {
		config.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: system}}}
	}
	if len(req.Tools) > 0 {
		config.Tools = []*genai.Tool{{FunctionDeclarations: declarations(req.Tools)}}
	}

	chat, err := r.chats.Create(ctx, r.model, config, nil)
	if err != nil {
		return "", fmt.Errorf("create chat: %w", err)
	}

	r.logger.Debug("gemini chat request",
		zap.Int("prompt_length", utf8.RuneCountInString(prompt)),
		zap.String("prompt_preview", utils.TruncateForLog(prompt, r.maxLogLen)),
		zap.Int("tools", len(req.Tools)),
	)

	resp, err := r.send(ctx, chat, genai.Part{Text: prompt})
	if err != nil {
		return "", err
	}

	for round := 0; ; round++ {
		calls := functionCalls(resp)
		if len(calls) == 0 {
			break
		}
		if round >= r.maxToolRounds {
			return "", fmt.Errorf("model kept calling tools after %d rounds", r.maxToolRounds)
		}

		parts := r.callTools(ctx, req.Tools, calls)
		if resp, err = r.send(ctx, chat, parts...); err != nil {
			return "", err
		}
	}

	output := responseText(resp)
	if output == "" {
		return "", errors.New("gemini api returned empty response")
	}

	r.logger.Debug("gemini chat response",
		zap.Int("response_length", utf8.RuneCountInString(output)),
		zap.String("response_preview", utils.TruncateForLog(output, r.maxLogLen)),
	)

	return output, nil
}

// CountTokens asks the model how many tokens the text takes.
func (r *Runtime) CountTokens(ctx context.Context, text string) (int, error) {
	if r == nil || r.counter == nil {
		return 0, errors.New("gemini runtime is not initialized")
	}

	resp, err := r.counter.CountTokens(ctx, r.Model(), genai.Text(text), nil)
	if err != nil {
		return 0, fmt.Errorf("count tokens: %w", err)
	}

	return int(resp.TotalTokens), nil
}

func (r *Runtime) Model() string {
	if r == nil {
		return ""
	}
	if r.model == "" {
		return defaultModel
	}
	return r.model
}

func (r *Runtime) send(ctx context.Context, chat chatSession, parts ...genai.Part) (*genai.GenerateContentResponse, error) {
	for attempt := 1; ; attempt++ {
		resp, err := chat.SendMessage(ctx, parts...)
		if err == nil {
			return resp, nil
		}

		delay, retry := retryDelay(err, attempt)
		if !retry || attempt >= r.maxRetries {
			return nil, fmt.Errorf("send message: %w", err)
		}

		r.logger.Warn("gemini request failed, retrying",
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err),
		)

		if err := waitFor(ctx, delay); err != nil {
			return nil, err
		}
	}
}

func (r *Runtime) callTools(ctx context.Context, tools []ai.Tool, calls []*genai.FunctionCall) []genai.Part {
	parts := make([]genai.Part, 0, len(calls))

	for _, call := range calls {
		response := map[string]any{}

		tool, ok := ai.FindTool(tools, call.Name)
		switch {
		case !ok:
			response["error"] = fmt.Sprintf("unknown tool %q", call.Name)
		default:
			output, err := tool.Handler(ctx, call.Args)
			if err != nil {
				response["error"] = err.Error()
			} else {
				response["output"] = output
			}
		}

		args, _ := json.Marshal(call.Args)
		r.logger.Debug("gemini tool call",
			zap.String("tool", call.Name),
			zap.String("args_preview", utils.TruncateForLog(string(args), r.maxLogLen)),
			zap.Bool("success", response["error"] == nil),
		)

		parts = append(parts, genai.Part{FunctionResponse: &genai.FunctionResponse{
			ID:       call.ID,
			Name:     call.Name,
			Response: response,
		}})
	}

	return parts
}

func declarations(tools []ai.Tool) []*genai.FunctionDeclaration {
	decls := make([]*genai.FunctionDeclaration, 0, len(tools))
	for _, tool := range tools {
		decl := &genai.FunctionDeclaration{
			Name:        tool.Name,
			Description: tool.Description,
		}

		if len(tool.Params) > 0 {
			schema := &genai.Schema{
				Type:       genai.TypeObject,
				Properties: make(map[string]*genai.Schema, len(tool.Params)),
			}
			for _, param := range tool.Params {
				schema.Properties[param.Name] = paramSchema(param)
				schema.PropertyOrdering = append(schema.PropertyOrdering, param.Name)
				if param.Required {
					schema.Required = append(schema.Required, param.Name)
				}
			}
			decl.Parameters = schema
		}

		decls = append(decls, decl)
	}
	return decls
}

func paramSchema(param ai.Param) *genai.Schema {
	schema := &genai.Schema{Description: param.Description}

	switch param.Type {
	case ai.ParamInteger:
		schema.Type = genai.TypeInteger
	case ai.ParamBoolean:
		schema.Type = genai.TypeBoolean
	case ai.ParamStringList:
		schema.Type = genai.TypeArray
		schema.Items = &genai.Schema{Type: genai.TypeString}
	default:
		schema.Type = genai.TypeString
		schema.Enum = param.Enum
	}

	return schema
}

func functionCalls(resp *genai.GenerateContentResponse) []*genai.FunctionCall {
	if resp == nil {
		return nil
	}
	return resp.FunctionCalls()
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 {
		return ""
	}

	candidate := resp.Candidates[0]
	if candidate == nil || candidate.Content == nil {
		return ""
	}

	var builder strings.Builder
	for _, part := range candidate.Content.Parts {
		if part == nil || part.Thought {
			continue
		}
		text := strings.TrimSpace(part.Text)
		if text == "" {
			continue
		}
		if builder.Len() > 0 {
			builder.WriteString("\n")
		}
		builder.WriteString(text)
	}

	return strings.TrimSpace(builder.String())
}

// retryDelay reports whether err is temporary and how long to wait before the next attempt.
// Quota errors asking for a longer pause than maxRetryDelay are not retried.
func retryDelay(err error, attempt int) (time.Duration, bool) {
	apiErr, ok := asAPIError(err)
	if !ok {
		return 0, false
	}

	switch apiErr.Code {
	case http.StatusTooManyRequests:
		if d, found := quotaDelay(apiErr); found {
			if d > maxRetryDelay {
				return 0, false
			}
			return d, true
		}
		return backoff(attempt), true
	case http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return backoff(attempt), true
	default:
		return 0, false
	}
}

func asAPIError(err error) (genai.APIError, bool) {
	var value genai.APIError
	if errors.As(err, &value) {
		return value, true
	}

	var ptr *genai.APIError
	if errors.As(err, &ptr) && ptr != nil {
		return *ptr, true
	}

	return genai.APIError{}, false
}

func quotaDelay(apiErr genai.APIError) (time.Duration, bool) {
	for _, detail := range apiErr.Details {
		raw, ok := detail["retryDelay"].(string)
		if !ok {
			continue
		}
		if d, err := time.ParseDuration(raw); err == nil {
			return d, true
		}
	}

	match := retryAfterPattern.FindStringSubmatch(apiErr.Message)
	if len(match) < 2 {
		return 0, false
	}

	seconds, err := strconv.ParseFloat(match[1], 64)
	if err != nil {
		return 0, false
	}

	return time.Duration(seconds * float64(time.Second)), true
}

func backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := baseRetryDelay << (attempt - 1)
	if d > maxRetryDelay || d <= 0 {
		return maxRetryDelay
	}
	return d
}
