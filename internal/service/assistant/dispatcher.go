package assistant

import (
	"fmt"
	"strings"
)

// Path names the branch the dispatcher took for a request.
type Path int

const (
	PathError Path = iota
	PathQuestion
	PathCode
	PathFallback
)

// PathOrder is the precedence of the paths; the first one whose input is
// present handles the request.
var PathOrder = [...]Path{PathError, PathQuestion, PathCode, PathFallback}

func (p Path) String() string {
	switch p {
	case PathError:
		return "error"
	case PathQuestion:
		return "question"
	case PathCode:
		return "code"
	case PathFallback:
		return "fallback"
	}
	return fmt.Sprintf("path(%d)", int(p))
}

// BaseCost is charged for every response on top of the path's own cost.
const BaseCost = 50

// Cost is the flat token charge for a response taken along p.
func (p Path) Cost() int {
	switch p {
	case PathError:
		return BaseCost + 30
	case PathQuestion:
		return BaseCost + 40
	case PathCode:
		return BaseCost + 35
	default:
		return BaseCost + 25
	}
}

// SnippetNotFound is returned by Snippet when the language or name is unknown.
const SnippetNotFound = "Snippet not found"

// Request is the context of a single chat call.
type Request struct {
	Language Language
	Code     string
	Error    string
	Question string
}

// Response is the canned answer selected for a Request.
type Response struct {
	Path        Path     `json:"-"`
	Text        string   `json:"response"`
	Suggestions []string `json:"suggestions"`
	CodeExample string   `json:"codeExample,omitempty"`
	TokensUsed  int      `json:"tokensUsed"`
}

// Dispatcher selects a rule-based response for a request. It holds no mutable
// state and is safe for concurrent use.
type Dispatcher struct{}

// NewDispatcher returns the shared dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{}
}

func (d *Dispatcher) selectPath(req Request) Path {
	for _, p := range PathOrder {
		switch p {
		case PathError:
			if req.Error != "" {
				return p
			}
		case PathQuestion:
			if req.Question != "" {
				return p
			}
		case PathCode:
			if req.Code != "" {
				return p
			}
		case PathFallback:
			return p
		}
	}
	return PathFallback
}

// Generate answers req. It never fails.
func (d *Dispatcher) Generate(req Request) Response {
	if req.Language == "" {
		req.Language = DefaultLanguage
	}
	path := d.selectPath(req)

	var resp Response
	switch path {
	case PathError:
		resp = d.handleError(req.Error, req.Language)
	case PathQuestion:
		resp = d.handleQuestion(req.Question, req.Language)
	case PathCode:
		resp = analyzeCode(req.Code, req.Language)
	default:
		resp = Response{
			Text:        fmt.Sprintf(fallbackFmt, req.Language),
			Suggestions: cloneStrings(fallbackSuggestions),
		}
	}
	resp.Path = path
	resp.TokensUsed = path.Cost()
	if resp.Suggestions == nil {
		resp.Suggestions = []string{}
	}
	return resp
}

func (d *Dispatcher) handleError(errText string, lang Language) Response {
	text := errorHeader + fmt.Sprintf(genericErrorFmt, lang)
	for _, rule := range tableFor(lang).errors {
		if rule.pattern.MatchString(errText) {
			text = errorHeader + rule.solution + errorCauses
			break
		}
	}
	return Response{Text: text, Suggestions: cloneStrings(errorSuggestions)}
}

func (d *Dispatcher) handleQuestion(question string, lang Language) Response {
	lower := strings.ToLower(question)
	b := clarifyBundle
	for _, t := range triggers {
		if strings.Contains(lower, t.keyword) {
			b = t.bundle
			break
		}
	}
	resp := Response{Suggestions: cloneStrings(b.suggestions)}
	if strings.Contains(b.response, "%s") {
		resp.Text = fmt.Sprintf(b.response, lang)
	} else {
		resp.Text = b.response
	}
	if b.withExample {
		resp.CodeExample = functionExample(lang)
	}
	return resp
}

func functionExample(lang Language) string {
	t := tableFor(lang)
	if code, ok := t.snippet("function"); ok {
		return code
	}
	if code, ok := t.snippet("async function"); ok {
		return code
	}
	return functionExampleMissing
}

// Snippet returns the named example for lang, or SnippetNotFound and false.
func (d *Dispatcher) Snippet(lang Language, name string) (string, bool) {
	if code, ok := tableFor(lang).snippet(name); ok {
		return code, true
	}
	return SnippetNotFound, false
}

// SnippetNames lists the example names registered for lang, in registration
// order. The result is never nil.
func (d *Dispatcher) SnippetNames(lang Language) []string {
	t := tableFor(lang)
	names := make([]string, 0, len(t.snippets))
	for _, s := range t.snippets {
		names = append(names, s.name)
	}
	return names
}

func cloneStrings(in []string) []string {
	out := make([]string, len(in))
	copy(out, in)
	return out
}
