package gemini

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/spigell/hr-intake/internal/ai"
	"go.uber.org/zap"
	"google.golang.org/genai"
)

type fakeChatResponse struct {
	resp *genai.GenerateContentResponse
	err  error
}

type fakeChat struct {
	mu        sync.Mutex
	responses []fakeChatResponse
	sent      [][]genai.Part
}

func (f *fakeChat) SendMessage(_ context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, parts)
	if len(f.responses) == 0 {
		return nil, errors.New("unexpected call")
	}
	res := f.responses[0]
	f.responses = f.responses[1:]
	return res.resp, res.err
}

type fakeChatCreator struct {
	mu      sync.Mutex
	chat    *fakeChat
	configs []*genai.GenerateContentConfig
}

func (f *fakeChatCreator) Create(_ context.Context, _ string, config *genai.GenerateContentConfig, _ []*genai.Content) (chatSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.configs = append(f.configs, config)
	return f.chat, nil
}

type fakeCounter struct {
	total int32
	text  string
}

func (f *fakeCounter) CountTokens(_ context.Context, _ string, contents []*genai.Content, _ *genai.CountTokensConfig) (*genai.CountTokensResponse, error) {
	f.text = contents[0].Parts[0].Text
	return &genai.CountTokensResponse{TotalTokens: f.total}, nil
}

func textResponse(text string) fakeChatResponse {
	return fakeChatResponse{resp: &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []*genai.Part{{Text: text}}},
		}},
	}}
}

func callResponse(calls ...*genai.FunctionCall) fakeChatResponse {
	parts := make([]*genai.Part, 0, len(calls))
	for _, call := range calls {
		parts = append(parts, &genai.Part{FunctionCall: call})
	}
	return fakeChatResponse{resp: &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{Content: &genai.Content{Parts: parts}}},
	}}
}

func newTestRuntime(chat *fakeChat) (*Runtime, *fakeChatCreator) {
	creator := &fakeChatCreator{chat: chat}
	return &Runtime{
		chats:         creator,
		model:         "gemini-pro",
		maxRetries:    2,
		maxToolRounds: 3,
		maxLogLen:     50,
		logger:        zap.NewNop(),
	}, creator
}

func stubWait(t *testing.T) {
	t.Helper()
	original := waitFor
	waitFor = func(context.Context, time.Duration) error { return nil }
	t.Cleanup(func() { waitFor = original })
}

func TestRuntimeRetriesOnTemporaryError(t *testing.T) {
	stubWait(t)

	chat := &fakeChat{responses: []fakeChatResponse{
		{err: genai.APIError{Code: http.StatusInternalServerError, Status: "INTERNAL"}},
		textResponse("retry ok"),
	}}
	r, creator := newTestRuntime(chat)

	output, err := r.Run(context.Background(), ai.Request{SystemInstruction: "system", Prompt: "message"})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if output != "retry ok" {
		t.Fatalf("unexpected output: %q", output)
	}

	if len(chat.sent) != 2 {
		t.Fatalf("expected 2 sends, got %d", len(chat.sent))
	}

	config := creator.configs[0]
	if config == nil || config.SystemInstruction == nil {
		t.Fatalf("expected system instruction to be set")
	}
	if got := config.SystemInstruction.Parts[0].Text; got != "system" {
		t.Fatalf("unexpected system instruction: %q", got)
	}
	if got := chat.sent[0][0].Text; got != "message" {
		t.Fatalf("unexpected chat message: %q", got)
	}
}

func TestRuntimeStopsAfterRetriesExhausted(t *testing.T) {
	stubWait(t)

	tempErr := genai.APIError{Code: http.StatusServiceUnavailable, Status: "UNAVAILABLE"}
	chat := &fakeChat{responses: []fakeChatResponse{{err: tempErr}, {err: tempErr}}}
	r, _ := newTestRuntime(chat)

	_, err := r.Run(context.Background(), ai.Request{Prompt: "msg"})
	if err == nil {
		t.Fatal("expected error after retries exhausted")
	}

	if len(chat.sent) != 2 {
		t.Fatalf("expected 2 sends, got %d", len(chat.sent))
	}
}

func TestRuntimeDoesNotRetryOnLongQuotaDelay(t *testing.T) {
	chat := &fakeChat{responses: []fakeChatResponse{{err: genai.APIError{
		Code:    http.StatusTooManyRequests,
		Status:  "RESOURCE_EXHAUSTED",
		Message: "quota exhausted, retry after 60 seconds",
	}}}}
	r, _ := newTestRuntime(chat)
	r.maxRetries = 3

	_, err := r.Run(context.Background(), ai.Request{Prompt: "msg"})
	if err == nil {
		t.Fatal("expected error when quota delay too long")
	}

	if len(chat.sent) != 1 {
		t.Fatalf("expected single send, got %d", len(chat.sent))
	}
}

func TestRuntimeDoesNotRetryOnClientError(t *testing.T) {
	chat := &fakeChat{responses: []fakeChatResponse{{err: genai.APIError{Code: http.StatusBadRequest}}}}
	r, _ := newTestRuntime(chat)

	if _, err := r.Run(context.Background(), ai.Request{Prompt: "msg"}); err == nil {
		t.Fatal("expected error for bad request")
	}
	if len(chat.sent) != 1 {
		t.Fatalf("expected single send, got %d", len(chat.sent))
	}
}

func TestRuntimeExecutesToolCalls(t *testing.T) {
	chat := &fakeChat{responses: []fakeChatResponse{
		callResponse(
			&genai.FunctionCall{ID: "1", Name: "update_position_info", Args: map[string]any{"title": "QA"}},
			&genai.FunctionCall{ID: "2", Name: "missing_tool"},
		),
		callResponse(&genai.FunctionCall{ID: "3", Name: "failing"}),
		textResponse("Position saved."),
	}}
	r, creator := newTestRuntime(chat)

	var received map[string]any
	tools := []ai.Tool{
		{
			Name:        "update_position_info",
			Description: "update position",
			Params: []ai.Param{
				{Name: "title", Type: ai.ParamString},
				{Name: "experience_years", Type: ai.ParamInteger, Required: true},
				{Name: "skills", Type: ai.ParamStringList},
			},
			Handler: func(_ context.Context, args map[string]any) (string, error) {
				received = args
				return "updated", nil
			},
		},
		{
			Name: "failing",
			Handler: func(context.Context, map[string]any) (string, error) {
				return "", errors.New("bad format")
			},
		},
	}

	output, err := r.Run(context.Background(), ai.Request{Prompt: "I hire QA", Tools: tools})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if output != "Position saved." {
		t.Fatalf("unexpected output: %q", output)
	}
	if received["title"] != "QA" {
		t.Fatalf("expected tool to receive args, got %v", received)
	}

	if len(chat.sent) != 3 {
		t.Fatalf("expected 3 sends, got %d", len(chat.sent))
	}

	first := chat.sent[1]
	if len(first) != 2 {
		t.Fatalf("expected 2 function responses, got %d", len(first))
	}
	if first[0].FunctionResponse.Response["output"] != "updated" || first[0].FunctionResponse.ID != "1" {
		t.Fatalf("unexpected tool response: %+v", first[0].FunctionResponse)
	}
	if msg, _ := first[1].FunctionResponse.Response["error"].(string); !strings.Contains(msg, "unknown tool") {
		t.Fatalf("expected unknown tool error, got %+v", first[1].FunctionResponse.Response)
	}
	if chat.sent[2][0].FunctionResponse.Response["error"] != "bad format" {
		t.Fatalf("expected handler error to be relayed, got %+v", chat.sent[2][0].FunctionResponse.Response)
	}

	decls := creator.configs[0].Tools[0].FunctionDeclarations
	if len(decls) != 2 {
		t.Fatalf("expected 2 declarations, got %d", len(decls))
	}
	params := decls[0].Parameters
	if params.Properties["skills"].Type != genai.TypeArray || params.Properties["skills"].Items.Type != genai.TypeString {
		t.Fatalf("expected string list schema, got %+v", params.Properties["skills"])
	}
	if len(params.Required) != 1 || params.Required[0] != "experience_years" {
		t.Fatalf("unexpected required params: %v", params.Required)
	}
	if decls[1].Parameters != nil {
		t.Fatalf("expected no parameters for tool without params")
	}
}

func TestRuntimeLimitsToolRounds(t *testing.T) {
	call := callResponse(&genai.FunctionCall{Name: "noop"})
	chat := &fakeChat{responses: []fakeChatResponse{call, call, call}}
	r, _ := newTestRuntime(chat)
	r.maxToolRounds = 2

	tools := []ai.Tool{{Name: "noop", Handler: func(context.Context, map[string]any) (string, error) { return "ok", nil }}}

	if _, err := r.Run(context.Background(), ai.Request{Prompt: "loop", Tools: tools}); err == nil {
		t.Fatal("expected error when tool rounds exceeded")
	}
}

func TestRuntimeRejectsEmptyPrompt(t *testing.T) {
	r, _ := newTestRuntime(&fakeChat{})

	if _, err := r.Run(context.Background(), ai.Request{Prompt: "  "}); err == nil {
		t.Fatal("expected error for empty prompt")
	}
}

func TestCountTokens(t *testing.T) {
	counter := &fakeCounter{total: 42}
	r := &Runtime{counter: counter, model: "gemini-pro", logger: zap.NewNop()}

	got, err := r.CountTokens(context.Background(), "some document")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 42 {
		t.Fatalf("expected 42 tokens, got %d", got)
	}
	if counter.text != "some document" {
		t.Fatalf("unexpected counted text: %q", counter.text)
	}
}

func TestRetryDelay(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		err    error
		retry  bool
		expect time.Duration
	}{
		{
			name:  "plain error",
			err:   errors.New("boom"),
			retry: false,
		},
		{
			name:   "server error backs off",
			err:    genai.APIError{Code: http.StatusBadGateway},
			retry:  true,
			expect: baseRetryDelay,
		},
		{
			name:   "quota with short delay in message",
			err:    genai.APIError{Code: http.StatusTooManyRequests, Message: "Please retry in 1.5s"},
			retry:  true,
			expect: 1500 * time.Millisecond,
		},
		{
			name: "quota with delay in details",
			err: &genai.APIError{
				Code:    http.StatusTooManyRequests,
				Details: []map[string]any{{"retryDelay": "4s"}},
			},
			retry:  true,
			expect: 4 * time.Second,
		},
		{
			name:  "quota with long delay",
			err:   genai.APIError{Code: http.StatusTooManyRequests, Message: "retry after 120 seconds"},
			retry: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			delay, retry := retryDelay(tt.err, 1)
			if retry != tt.retry {
				t.Fatalf("expected retry %v, got %v", tt.retry, retry)
			}
			if retry && delay != tt.expect {
				t.Fatalf("expected delay %s, got %s", tt.expect, delay)
			}
		})
	}
}

func TestBackoffIsCapped(t *testing.T) {
	t.Parallel()

	if got := backoff(2); got != 2*baseRetryDelay {
		t.Fatalf("expected doubled delay, got %s", got)
	}
	if got := backoff(20); got != maxRetryDelay {
		t.Fatalf("expected capped delay, got %s", got)
	}
}
