// Package prompts loads prompt template seed files.
package prompts

import (
	_ "embed"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/axia-cli/internal/model"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// seedFile is the on-disk layout of a seed file.
type seedFile struct {
	Templates []seedTemplate `yaml:"templates" validate:"required,min=1,dive"`
}

type seedTemplate struct {
	Type               string  `yaml:"type" validate:"required,oneof=todo_analysis company_extraction goals_extraction chat"`
	Version            string  `yaml:"version" validate:"required"`
	IsActive           bool    `yaml:"is_active"`
	Temperature        float64 `yaml:"temperature" validate:"gte=0,lte=2"`
	MaxTokens          int     `yaml:"max_tokens" validate:"gte=0"`
	SystemMessage      string  `yaml:"system_message" validate:"required"`
	UserPromptTemplate string  `yaml:"user_prompt_template" validate:"required"`
}

var validate = validator.New()

// Load reads templates from a YAML seed file.
func Load(path string) ([]model.PromptTemplate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "prompts: read %s", path)
	}
	tmpls, err := Parse(data)
	return tmpls, eris.Wrapf(err, "prompts: load %s", path)
}

// Defaults returns the built-in templates for the structured tasks.
func Defaults() []model.PromptTemplate {
	tmpls, err := Parse(defaultsYAML)
	if err != nil {
		panic(err)
	}
	return tmpls
}

// Parse decodes and validates a seed document. At most one template per type
// may be active.
func Parse(data []byte) ([]model.PromptTemplate, error) {
	var f seedFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, eris.Wrap(err, "prompts: decode yaml")
	}
	if err := validate.Struct(f); err != nil {
		return nil, eris.Wrap(err, "prompts: invalid seed file")
	}

	active := map[string]string{}
	out := make([]model.PromptTemplate, 0, len(f.Templates))
	for _, t := range f.Templates {
		if t.IsActive {
			if prev, ok := active[t.Type]; ok {
				return nil, eris.Errorf("prompts: %s has two active versions (%s, %s)", t.Type, prev, t.Version)
			}
			active[t.Type] = t.Version
		}
		out = append(out, model.PromptTemplate{
			Type:               t.Type,
			Version:            t.Version,
			IsActive:           t.IsActive,
			Temperature:        t.Temperature,
			MaxTokens:          t.MaxTokens,
			SystemMessage:      t.SystemMessage,
			UserPromptTemplate: t.UserPromptTemplate,
		})
	}
	return out, nil
}
