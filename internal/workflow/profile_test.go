package workflow

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tensorjobs/internal/providers/tensorart"
)

const sampleProfile = `
template:
  id: "688362427502551075"
  params:
    async: false
    priority: NORMAL
  fields:
    - { node_id: "12", field_name: image, field_value: "{{image}}" }
    - { node_id: "25", field_name: style, field_value: "{{style}}" }
    - { node_id: "25", field_name: text_negative, field_value: "{{negative_prompt}}" }
    - { node_id: "5", field_name: width, field_value: 1024 }
staged:
  seed: -1
  count: 1
  width: 512
  height: 512
  sampler: DPM++ 2M Karras
  sd_vae: Automatic
  steps: 15
  sd_model: "600423083519508503"
  clip_skip: 2
  cfg_scale: 7
styles: ["sai-comic book", "artstyle-watercolor"]
default_style: sai-line art
negative_prompt: lowres
`

func writeProfile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "workflow.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadProfileDecodesYAML(t *testing.T) {
	p, err := LoadProfile(writeProfile(t, sampleProfile))
	require.NoError(t, err)

	assert.Equal(t, "688362427502551075", p.Template.ID)
	require.Len(t, p.Template.Fields, 4)
	assert.Equal(t, "1024", p.Template.Fields[3].FieldValue)
	assert.Equal(t, int64(-1), p.Staged.Seed)
	assert.Equal(t, "DPM++ 2M Karras", p.Staged.Sampler)
	assert.InDelta(t, 7.0, p.Staged.CFGScale, 1e-9)
	assert.Equal(t, []string{"sai-comic book", "artstyle-watercolor"}, p.Styles)
	assert.Equal(t, "sai-line art", p.DefaultStyle)
}

func TestLoadProfileEnvOverride(t *testing.T) {
	t.Setenv("WORKFLOW_TEMPLATE_ID", "999")
	p, err := LoadProfile(writeProfile(t, sampleProfile))
	require.NoError(t, err)
	assert.Equal(t, "999", p.Template.ID)
}

func TestLoadProfileRejectsMissingTemplateID(t *testing.T) {
	_, err := LoadProfile(writeProfile(t, "styles: [a]\n"))
	assert.ErrorIs(t, err, ErrInvalidProfile)
}

func TestLoadProfileMissingFile(t *testing.T) {
	_, err := LoadProfile(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestShippedProfileLoads(t *testing.T) {
	p, err := LoadProfile(filepath.Join("..", "..", "config", "workflow.yaml"))
	require.NoError(t, err)
	job, err := p.TemplateJob(TemplateInput{ResourceID: "R1", Style: "sai-comic book"})
	require.NoError(t, err)
	assert.Equal(t, tensorart.FieldAttr{NodeID: "12", FieldName: "image", FieldValue: "R1"}, job.Fields[0])
	_, err = p.StagedJob("a cat")
	assert.NoError(t, err)
}

func TestShippedImg2ImgProfile(t *testing.T) {
	p, err := LoadProfile(filepath.Join("..", "..", "config", "img2img.yaml"))
	require.NoError(t, err)
	job, err := p.TemplateJob(TemplateInput{ResourceID: "R1", Prompt: "portrait"})
	require.NoError(t, err)

	assert.Nil(t, job.Params)
	assert.Contains(t, job.Fields, tensorart.FieldAttr{NodeID: "25", FieldName: "style", FieldValue: "sai-line art"})
	assert.Contains(t, job.Fields, tensorart.FieldAttr{NodeID: "18", FieldName: "weight", FieldValue: "0.8"})
	assert.Contains(t, job.Fields, tensorart.FieldAttr{NodeID: "3", FieldName: "sampler_name", FieldValue: "dpmpp_sde"})
	assert.Contains(t, job.Fields, tensorart.FieldAttr{NodeID: "3", FieldName: "scheduler", FieldValue: "karras"})
	assert.Contains(t, job.Fields, tensorart.FieldAttr{NodeID: "38", FieldName: "strength_model", FieldValue: "0.6"})
	assert.NotContains(t, job.Fields, tensorart.FieldAttr{NodeID: "18", FieldName: "weight_faceidv2", FieldValue: "1.5"})
}

func TestTemplateJobSubstitutesPlaceholders(t *testing.T) {
	p, err := LoadProfile(writeProfile(t, sampleProfile))
	require.NoError(t, err)

	job, err := p.TemplateJob(TemplateInput{ResourceID: "R1", Style: "artstyle-watercolor"})
	require.NoError(t, err)
	assert.Equal(t, "688362427502551075", job.TemplateID)
	assert.Equal(t, []tensorart.FieldAttr{
		{NodeID: "12", FieldName: "image", FieldValue: "R1"},
		{NodeID: "25", FieldName: "style", FieldValue: "artstyle-watercolor"},
		{NodeID: "25", FieldName: "text_negative", FieldValue: "lowres"},
		{NodeID: "5", FieldName: "width", FieldValue: "1024"},
	}, job.Fields)
	require.NotNil(t, job.Params)
	assert.Equal(t, "NORMAL", job.Params.Priority)
	assert.NotNil(t, job.Params.ExtraParams)
}

func TestTemplateJobFallsBackToDefaultStyle(t *testing.T) {
	p, err := LoadProfile(writeProfile(t, sampleProfile))
	require.NoError(t, err)

	job, err := p.TemplateJob(TemplateInput{ResourceID: "R1"})
	require.NoError(t, err)
	assert.Equal(t, "sai-line art", job.Fields[1].FieldValue)
}

func TestTemplateJobRequiresResourceForImageNode(t *testing.T) {
	p, err := LoadProfile(writeProfile(t, sampleProfile))
	require.NoError(t, err)
	_, err = p.TemplateJob(TemplateInput{Style: "x"})
	assert.Error(t, err)
}

func TestStagedJobBuildsTwoStages(t *testing.T) {
	p, err := LoadProfile(writeProfile(t, sampleProfile))
	require.NoError(t, err)

	job, err := p.StagedJob("  a red fox  ")
	require.NoError(t, err)
	require.Len(t, job.Stages, 2)
	assert.Equal(t, tensorart.StageInputInitialize, job.Stages[0].Type)
	assert.Equal(t, &tensorart.InputInitialize{Seed: -1, Count: 1}, job.Stages[0].InputInitialize)

	d := job.Stages[1].Diffusion
	require.NotNil(t, d)
	assert.Equal(t, 512, d.Width)
	assert.Equal(t, []tensorart.Prompt{{Text: "a red fox"}}, d.Prompts)
	assert.Equal(t, "600423083519508503", d.SDModel)
	assert.Equal(t, 2, d.ClipSkip)

	_, err = p.StagedJob("   ")
	assert.Error(t, err)
}

func TestStagedJobRequiresModel(t *testing.T) {
	p := &Profile{Template: TemplateConfig{ID: "1"}}
	_, err := p.StagedJob("cat")
	assert.ErrorIs(t, err, ErrInvalidProfile)
}

func TestNormalizeStyle(t *testing.T) {
	assert.Equal(t, "sai-comic book", NormalizeStyle("  SAI-Comic   Book "))
	assert.Equal(t, "", NormalizeStyle("   "))
}

func TestResolveStyles(t *testing.T) {
	p := &Profile{Styles: []string{"sai-comic book", "artstyle-watercolor"}}

	assert.Equal(t, []string{"sai-comic book", "artstyle-watercolor"}, p.ResolveStyles(nil))
	assert.Equal(t,
		[]string{"artstyle-watercolor", "neon punk"},
		p.ResolveStyles([]string{"ARTSTYLE-Watercolor", "artstyle-watercolor", "neon   punk", " "}),
	)
}
