package assistant

import "strings"

// Language identifies the programming language a request is about. Only the
// constants below carry rule tables; any other value is an unregistered
// language that matches nothing and has no snippets.
type Language string

const (
	JavaScript Language = "javascript"
	Python     Language = "python"
	HTML       Language = "html"
	CSS        Language = "css"
)

// DefaultLanguage is used when a request names no language.
const DefaultLanguage = JavaScript

// Languages lists the registered languages in a stable order.
var Languages = []Language{JavaScript, Python, HTML, CSS}

// ParseLanguage normalizes a free-form tag. It never fails: unknown tags come
// back as unregistered languages.
func ParseLanguage(tag string) Language {
	tag = strings.ToLower(strings.TrimSpace(tag))
	if tag == "" {
		return DefaultLanguage
	}
	return Language(tag)
}

// Registered reports whether l has rule tables.
func (l Language) Registered() bool {
	_, ok := registry[l]
	return ok
}

func (l Language) String() string {
	return string(l)
}
