package assistant

import "regexp"

type errorRule struct {
	pattern  *regexp.Regexp
	solution string
}

type snippet struct {
	name string
	code string
}

// languageTable holds everything the dispatcher knows about one language.
type languageTable struct {
	errors   []errorRule
	snippets []snippet
}

func (t *languageTable) snippet(name string) (string, bool) {
	for _, s := range t.snippets {
		if s.name == name {
			return s.code, true
		}
	}
	return "", false
}

var unregistered = &languageTable{}

var registry = map[Language]*languageTable{
	JavaScript: {
		errors: []errorRule{
			{regexp.MustCompile(`Cannot read property.*of undefined`), "Check if the object exists before accessing its properties. Use optional chaining (?.) or conditional checks."},
			{regexp.MustCompile(`ReferenceError.*is not defined`), "Make sure the variable is declared and imported properly."},
			{regexp.MustCompile(`SyntaxError.*Unexpected token`), "Check for missing brackets, semicolons, or incorrect syntax."},
			{regexp.MustCompile(`TypeError.*is not a function`), "Verify that the variable is actually a function before calling it."},
		},
		snippets: []snippet{
			{"react component", reactComponentSnippet},
			{"async function", asyncFunctionSnippet},
			{"express route", expressRouteSnippet},
		},
	},
	Python: {
		errors: []errorRule{
			{regexp.MustCompile(`NameError.*is not defined`), "Check if the variable is defined and spelled correctly."},
			{regexp.MustCompile(`IndentationError`), "Fix the indentation - Python uses consistent spaces or tabs."},
			{regexp.MustCompile(`TypeError.*takes.*positional argument`), "Check the function signature and pass the correct number of arguments."},
			{regexp.MustCompile(`AttributeError.*has no attribute`), "Verify the object has the attribute or method you're trying to access."},
		},
		snippets: []snippet{
			{"function", pythonFunctionSnippet},
			{"class", pythonClassSnippet},
			{"flask route", flaskRouteSnippet},
		},
	},
	HTML: {
		snippets: []snippet{
			{"basic structure", htmlBasicStructureSnippet},
			{"form", htmlFormSnippet},
		},
	},
	CSS: {
		snippets: []snippet{
			{"flexbox", cssFlexboxSnippet},
			{"grid", cssGridSnippet},
		},
	},
}

func tableFor(l Language) *languageTable {
	if t, ok := registry[l]; ok {
		return t
	}
	return unregistered
}

// bundle is a canned answer to a question trigger. %s in response is the language.
type bundle struct {
	response    string
	suggestions []string
	withExample bool
}

type trigger struct {
	keyword string
	bundle  bundle
}

// Triggers are matched in this order; the first one found in the question wins.
var triggers = []trigger{
	{"create function", bundle{
		response:    "Here's how to create a function in %s:",
		suggestions: []string{"Add parameters", "Include error handling", "Add documentation", "Consider async/await if needed"},
		withExample: true,
	}},
	{"fix error", bundle{
		response:    "Let me help you debug this error. Please share the specific error message.",
		suggestions: []string{"Share the error message", "Show the problematic code", "Check console for more details"},
	}},
	{"best practices", bundle{
		response: "Here are some %s best practices:",
		suggestions: []string{
			"Use meaningful variable names",
			"Keep functions small and focused",
			"Add proper error handling",
			"Write comments for complex logic",
			"Use consistent formatting",
			"Follow language-specific conventions",
		},
	}},
	{"optimize", topicBundle("optimize")},
	{"deploy", topicBundle("deploy")},
	{"database", topicBundle("database")},
	{"api", topicBundle("api")},
	{"authentication", topicBundle("authentication")},
	{"responsive", topicBundle("responsive")},
	{"testing", topicBundle("testing")},
}

func topicBundle(keyword string) bundle {
	return bundle{
		response:    "I can help you with " + keyword + " in %s. What specifically would you like to know?",
		suggestions: []string{"Be more specific about your needs", "Show me your current code", "Ask about implementation details"},
	}
}

var clarifyBundle = bundle{
	response:    "I'd be happy to help with your %s question! Could you be more specific about what you're trying to achieve?",
	suggestions: []string{"Ask about specific functions or features", "Show me the code you're working with", "Describe the problem you're trying to solve"},
}

const functionExampleMissing = "// Function example not available for this language"

const (
	errorHeader     = "🔧 **Error Analysis:**\n\n"
	errorCauses     = "\n\n**Common causes:**\n- Check your variable declarations\n- Verify imports and dependencies\n- Review the syntax around the error location"
	genericErrorFmt = "I can help you debug this %s error. Here are some general debugging steps:\n\n" +
		"1. Check the error location carefully\n" +
		"2. Verify variable names and spelling\n" +
		"3. Check for missing imports or dependencies\n" +
		"4. Review the syntax around the error\n" +
		"5. Look for missing brackets, semicolons, or quotes"
)

var errorSuggestions = []string{
	"Check variable declarations",
	"Verify imports and dependencies",
	"Review syntax around error location",
	"Add proper error handling",
	"Use debugging tools or console.log",
	"Check documentation for correct usage",
}

const fallbackFmt = "I'm here to help with your %s code! You can ask me about:\n" +
	"- Debugging errors\n" +
	"- Code optimization\n" +
	"- Best practices\n" +
	"- Creating functions and components\n" +
	"- Database operations\n" +
	"- API development"

var fallbackSuggestions = []string{"Ask me about specific errors", "Show me code to review", "Ask for coding examples"}
