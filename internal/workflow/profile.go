// Package workflow turns the on-disk workflow profile into job specs. Template
// ids, model ids and node overrides live in the profile, never in code.
package workflow

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
	"golang.org/x/text/cases"

	"tensorjobs/internal/providers/tensorart"
)

// Placeholders recognised in template field values.
const (
	PlaceholderImage          = "{{image}}"
	PlaceholderStyle          = "{{style}}"
	PlaceholderPrompt         = "{{prompt}}"
	PlaceholderNegativePrompt = "{{negative_prompt}}"
)

var ErrInvalidProfile = errors.New("workflow: invalid profile")

type Profile struct {
	Template       TemplateConfig `mapstructure:"template"`
	Staged         StagedConfig   `mapstructure:"staged"`
	Styles         []string       `mapstructure:"styles"`
	DefaultStyle   string         `mapstructure:"default_style"`
	NegativePrompt string         `mapstructure:"negative_prompt"`
}

type TemplateConfig struct {
	ID     string        `mapstructure:"id"`
	Params *ParamsConfig `mapstructure:"params"`
	Fields []FieldConfig `mapstructure:"fields"`
}

type ParamsConfig struct {
	Async    bool   `mapstructure:"async"`
	Priority string `mapstructure:"priority"`
}

type FieldConfig struct {
	NodeID     string `mapstructure:"node_id"`
	FieldName  string `mapstructure:"field_name"`
	FieldValue string `mapstructure:"field_value"`
}

type StagedConfig struct {
	Seed     int64   `mapstructure:"seed"`
	Count    int     `mapstructure:"count"`
	Width    int     `mapstructure:"width"`
	Height   int     `mapstructure:"height"`
	Sampler  string  `mapstructure:"sampler"`
	SDVae    string  `mapstructure:"sd_vae"`
	Steps    int     `mapstructure:"steps"`
	SDModel  string  `mapstructure:"sd_model"`
	ClipSkip int     `mapstructure:"clip_skip"`
	CFGScale float64 `mapstructure:"cfg_scale"`
}

// LoadProfile reads a YAML profile. Any key can be overridden from the
// environment with the WORKFLOW_ prefix, e.g. WORKFLOW_TEMPLATE_ID.
func LoadProfile(path string) (*Profile, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("WORKFLOW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("workflow: read %s: %w", path, err)
	}
	var p Profile
	if err := v.Unmarshal(&p); err != nil {
		return nil, fmt.Errorf("workflow: decode %s: %w", path, err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Validate checks the template section; the staged section is checked when a
// staged job is built.
func (p *Profile) Validate() error {
	if strings.TrimSpace(p.Template.ID) == "" {
		return fmt.Errorf("%w: template.id is required", ErrInvalidProfile)
	}
	for i, f := range p.Template.Fields {
		if strings.TrimSpace(f.NodeID) == "" || strings.TrimSpace(f.FieldName) == "" {
			return fmt.Errorf("%w: template.fields[%d] needs node_id and field_name", ErrInvalidProfile, i)
		}
	}
	return nil
}

// TemplateInput carries the per-run values substituted into field overrides.
type TemplateInput struct {
	ResourceID     string
	Style          string
	Prompt         string
	NegativePrompt string
}

// TemplateJob builds the submission for one image/style pair. Field order is
// kept as written in the profile.
func (p *Profile) TemplateJob(in TemplateInput) (tensorart.TemplateJob, error) {
	style := strings.TrimSpace(in.Style)
	if style == "" {
		style = p.DefaultStyle
	}
	negative := strings.TrimSpace(in.NegativePrompt)
	if negative == "" {
		negative = strings.TrimSpace(p.NegativePrompt)
	}
	replacer := strings.NewReplacer(
		PlaceholderImage, in.ResourceID,
		PlaceholderStyle, style,
		PlaceholderPrompt, strings.TrimSpace(in.Prompt),
		PlaceholderNegativePrompt, negative,
	)

	fields := make([]tensorart.FieldAttr, 0, len(p.Template.Fields))
	for _, f := range p.Template.Fields {
		if strings.Contains(f.FieldValue, PlaceholderImage) && strings.TrimSpace(in.ResourceID) == "" {
			return tensorart.TemplateJob{}, fmt.Errorf("workflow: node %s.%s needs an uploaded image", f.NodeID, f.FieldName)
		}
		fields = append(fields, tensorart.FieldAttr{
			NodeID:     strings.TrimSpace(f.NodeID),
			FieldName:  strings.TrimSpace(f.FieldName),
			FieldValue: replacer.Replace(f.FieldValue),
		})
	}

	job := tensorart.TemplateJob{TemplateID: strings.TrimSpace(p.Template.ID), Fields: fields}
	if p.Template.Params != nil {
		job.Params = &tensorart.TemplateParams{
			Async:       p.Template.Params.Async,
			Priority:    p.Template.Params.Priority,
			ExtraParams: map[string]any{},
		}
	}
	return job, nil
}

// StagedJob builds the inline text-to-image pipeline for prompt.
func (p *Profile) StagedJob(prompt string) (tensorart.StagedJob, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return tensorart.StagedJob{}, errors.New("workflow: prompt is required")
	}
	s := p.Staged
	if strings.TrimSpace(s.SDModel) == "" {
		return tensorart.StagedJob{}, fmt.Errorf("%w: staged.sd_model is required", ErrInvalidProfile)
	}
	count := s.Count
	if count <= 0 {
		count = 1
	}
	width, height := s.Width, s.Height
	if width <= 0 {
		width = 512
	}
	if height <= 0 {
		height = 512
	}
	return tensorart.StagedJob{Stages: []tensorart.Stage{
		{
			Type:            tensorart.StageInputInitialize,
			InputInitialize: &tensorart.InputInitialize{Seed: s.Seed, Count: count},
		},
		{
			Type: tensorart.StageDiffusion,
			Diffusion: &tensorart.Diffusion{
				Width:    width,
				Height:   height,
				Prompts:  []tensorart.Prompt{{Text: prompt}},
				Sampler:  s.Sampler,
				SDVae:    s.SDVae,
				Steps:    s.Steps,
				SDModel:  s.SDModel,
				ClipSkip: s.ClipSkip,
				CFGScale: s.CFGScale,
			},
		},
	}}, nil
}

var folder = cases.Fold()

// NormalizeStyle folds case and collapses whitespace so that user input can be
// matched against the profile's style names.
func NormalizeStyle(style string) string {
	return folder.String(strings.Join(strings.Fields(style), " "))
}

// ResolveStyles returns the styles to run. An empty request selects the
// profile's list. Requested names are matched case-insensitively against the
// profile and take its spelling; unknown names pass through unchanged.
// Duplicates are dropped.
func (p *Profile) ResolveStyles(requested []string) []string {
	if len(requested) == 0 {
		requested = p.Styles
	}
	known := make(map[string]string, len(p.Styles))
	for _, s := range p.Styles {
		known[NormalizeStyle(s)] = strings.TrimSpace(s)
	}
	seen := make(map[string]struct{}, len(requested))
	out := make([]string, 0, len(requested))
	for _, s := range requested {
		norm := NormalizeStyle(s)
		if norm == "" {
			continue
		}
		if _, dup := seen[norm]; dup {
			continue
		}
		seen[norm] = struct{}{}
		if canonical, ok := known[norm]; ok {
			out = append(out, canonical)
			continue
		}
		out = append(out, strings.Join(strings.Fields(s), " "))
	}
	return out
}
