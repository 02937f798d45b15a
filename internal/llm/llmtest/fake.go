// Package llmtest provides a scripted Generator for tests.
package llmtest

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	"github.com/MimeLyc/content-orchestrator/internal/llm"
)

// Rule answers requests whose prompt or system text contains Match.
type Rule struct {
	Match  string
	Result llm.Result
}

// Generator returns the first matching rule's result, or Fallback. It records every request.
type Generator struct {
	mu       sync.Mutex
	rules    []Rule
	Fallback llm.Result
	requests []llm.Request
	// Respond overrides the rules when set.
	Respond func(req llm.Request) llm.Result
}

func New(rules ...Rule) *Generator {
	return &Generator{rules: rules, Fallback: Failure("no scripted response")}
}

func (g *Generator) On(match string, result llm.Result) *Generator {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rules = append(g.rules, Rule{Match: match, Result: result})
	return g
}

func (g *Generator) Generate(_ context.Context, req llm.Request) llm.Result {
	g.mu.Lock()
	g.requests = append(g.requests, req)
	respond := g.Respond
	rules := append([]Rule(nil), g.rules...)
	fallback := g.Fallback
	g.mu.Unlock()

	if respond != nil {
		return respond(req)
	}
	text := req.System + "\n" + req.Prompt
	for _, m := range req.Messages {
		text += "\n" + m.Content
	}
	for _, r := range rules {
		if strings.Contains(text, r.Match) {
			return r.Result
		}
	}
	return fallback
}

func (g *Generator) Requests() []llm.Request {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]llm.Request(nil), g.requests...)
}

func (g *Generator) Calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.requests)
}

// JSON is a successful JSON-mode result carrying v.
func JSON(v any) llm.Result {
	data, err := json.Marshal(v)
	if err != nil {
		return Failure(err.Error())
	}
	return llm.Result{Success: true, Text: string(data), Data: data}
}

func Text(s string) llm.Result {
	return llm.Result{Success: true, Text: s}
}

func Failure(msg string) llm.Result {
	return llm.Result{Success: false, Error: msg}
}
