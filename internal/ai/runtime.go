package ai

import (
	"context"
)

// ParamType is the declared type of a tool parameter.
type ParamType string

const (
	ParamString     ParamType = "string"
	ParamInteger    ParamType = "integer"
	ParamBoolean    ParamType = "boolean"
	ParamStringList ParamType = "string_list"
)

// Param declares one named tool argument.
type Param struct {
	Name        string
	Description string
	Type        ParamType
	Required    bool
	Enum        []string
}

// Handler executes a tool call. Args hold JSON-decoded values keyed by parameter name.
type Handler func(ctx context.Context, args map[string]any) (string, error)

// Tool is an operation the runtime may invoke while composing a reply.
type Tool struct {
	Name        string
	Description string
	Params      []Param
	Handler     Handler
}

// Request is one turn sent to the runtime.
type Request struct {
	SystemInstruction string
	Prompt            string
	Tools             []Tool
}

// Runtime decides what to answer and which tools to call.
type Runtime interface {
	Run(ctx context.Context, req Request) (string, error)
	Model() string
}

// TokenCounter reports how many model tokens a text takes.
type TokenCounter interface {
	CountTokens(ctx context.Context, text string) (int, error)
}

// FindTool returns the tool registered under name.
func FindTool(tools []Tool, name string) (Tool, bool) {
	for _, tool := range tools {
		if tool.Name == name {
			return tool, true
		}
	}
	return Tool{}, false
}
