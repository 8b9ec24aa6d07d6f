package domain

import (
	"regexp"
	"sort"
	"strings"
)

const (
	PromptGeneratePosts   = "generate-posts"
	PromptGenerateTopics  = "generate-topics"
	PromptGeneratePersona = "generate-persona"
)

// TemplateVars declares the placeholders a named template may use.
type TemplateVars struct {
	Required []string
	Optional []string
}

// DeclaredTemplates lists the template names that take variables. Any other
// name is accepted as plain text with no placeholders.
var DeclaredTemplates = map[string]TemplateVars{
	PromptGeneratePosts: {
		Required: []string{"topic", "industry", "tone", "platform"},
		Optional: []string{"style", "noOfPosts"},
	},
	PromptGenerateTopics: {
		Required: []string{"count"},
	},
	PromptGeneratePersona: {
		Required: []string{"answers"},
	},
}

var placeholderRe = regexp.MustCompile(`\$\{\s*([A-Za-z_][A-Za-z0-9_]*)\s*\}`)

// Placeholders returns the distinct ${var} names used in text, sorted.
func Placeholders(text string) []string {
	seen := make(map[string]struct{})
	for _, m := range placeholderRe.FindAllStringSubmatch(text, -1) {
		seen[m[1]] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// ValidatePromptTemplate checks a template body against the variables
// declared for its name.
func ValidatePromptTemplate(name, text string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return Validationf("prompt name required")
	}
	if strings.TrimSpace(text) == "" {
		return Validationf("prompt text required")
	}
	used := Placeholders(text)
	vars, declared := DeclaredTemplates[name]
	if !declared {
		if len(used) > 0 {
			return Validationf("prompt %q takes no variables, found ${%s}", name, used[0])
		}
		return nil
	}
	usedSet := make(map[string]struct{}, len(used))
	for _, v := range used {
		usedSet[v] = struct{}{}
	}
	var missing []string
	for _, v := range vars.Required {
		if _, ok := usedSet[v]; !ok {
			missing = append(missing, "${"+v+"}")
		}
	}
	if len(missing) > 0 {
		return Validationf("prompt %q is missing required variables: %s", name, strings.Join(missing, ", "))
	}
	allowed := make(map[string]struct{}, len(vars.Required)+len(vars.Optional))
	for _, v := range vars.Required {
		allowed[v] = struct{}{}
	}
	for _, v := range vars.Optional {
		allowed[v] = struct{}{}
	}
	for _, v := range used {
		if _, ok := allowed[v]; !ok {
			return Validationf("prompt %q uses undeclared variable ${%s}", name, v)
		}
	}
	return nil
}

// RenderTemplate substitutes ${var} placeholders. A placeholder without a
// value is a validation error.
func RenderTemplate(text string, vars map[string]string) (string, error) {
	var missing string
	out := placeholderRe.ReplaceAllStringFunc(text, func(m string) string {
		name := placeholderRe.FindStringSubmatch(m)[1]
		v, ok := vars[name]
		if !ok {
			if missing == "" {
				missing = name
			}
			return m
		}
		return v
	})
	if missing != "" {
		return "", Validationf("no value for ${%s}", missing)
	}
	return out, nil
}
