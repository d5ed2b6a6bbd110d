package scoring

import (
	"github.com/pkg/errors"
	"github.com/tmc/langchaingo/prompts"
)

// RenderRubric renders a rubric template with the given variables
// (e.g. persona, product). Templates use Go template syntax: {{.persona}}.
func RenderRubric(template string, vars map[string]any) (string, error) {
	if vars == nil {
		vars = map[string]any{}
	}
	names := make([]string, 0, len(vars))
	for name := range vars {
		names = append(names, name)
	}
	tmpl := prompts.PromptTemplate{
		Template:       template,
		InputVariables: names,
		TemplateFormat: prompts.TemplateFormatGoTemplate,
	}
	out, err := tmpl.Format(vars)
	if err != nil {
		return "", errors.Wrap(err, "render rubric")
	}
	return out, nil
}
