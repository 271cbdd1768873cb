package assistant

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	shortCodeRunes   = 50
	longCodeRunes    = 1000
	maxPythonLineLen = 79
)

func analyzeCode(code string, lang Language) Response {
	suggestions := make([]string, 0, 4)
	var b strings.Builder
	fmt.Fprintf(&b, "📊 **Code Analysis for %s:**\n\n", lang)

	switch n := utf8.RuneCountInString(code); {
	case n < shortCodeRunes:
		b.WriteString("This is a short code snippet. ")
		suggestions = append(suggestions, "Consider adding more context or functionality")
	case n > longCodeRunes:
		b.WriteString("This is a substantial piece of code. ")
		suggestions = append(suggestions, "Consider breaking it into smaller functions")
	}

	switch lang {
	case JavaScript:
		if strings.Contains(code, "var ") {
			suggestions = append(suggestions, "Consider using 'let' or 'const' instead of 'var'")
		}
		if strings.Contains(code, "== ") {
			suggestions = append(suggestions, "Consider using '===' for strict equality")
		}
		if !strings.Contains(code, "try") && strings.Contains(code, "await") {
			suggestions = append(suggestions, "Add try-catch blocks for async operations")
		}
	case Python:
		if strings.Contains(code, "except:") {
			suggestions = append(suggestions, "Use specific exception types instead of bare except")
		}
		if hasLongLine(code) {
			suggestions = append(suggestions, "Consider breaking long lines (PEP 8 recommends < 79 characters)")
		}
	}

	if !strings.Contains(code, "//") && !strings.Contains(code, "#") {
		suggestions = append(suggestions, "Add comments to explain complex logic")
	}

	if len(suggestions) > 0 {
		b.WriteString("I found some areas for improvement.")
	} else {
		b.WriteString("The code looks good overall!")
	}
	return Response{Text: b.String(), Suggestions: suggestions}
}

func hasLongLine(code string) bool {
	for _, line := range strings.Split(code, "\n") {
		if utf8.RuneCountInString(strings.TrimSpace(line)) > maxPythonLineLen {
			return true
		}
	}
	return false
}
