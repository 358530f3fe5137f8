package bootstrap

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tensorjobs/internal/infra"
	"tensorjobs/internal/providers/tensorart"
	"tensorjobs/internal/workflow"
)

func TestPrompterReadsSuccessiveLines(t *testing.T) {
	var out bytes.Buffer
	p := NewPrompter(strings.NewReader("  first \nsecond"), &out)

	v, err := p.Ask("Image: ")
	require.NoError(t, err)
	assert.Equal(t, "first", v)

	v, err = p.AskIfEmpty("", "Prompt: ")
	require.NoError(t, err)
	assert.Equal(t, "second", v)
	assert.Equal(t, "Image: Prompt: ", out.String())

	_, err = p.Ask("More: ")
	assert.True(t, errors.Is(err, io.EOF))
}

func TestAskIfEmptyKeepsValue(t *testing.T) {
	var out bytes.Buffer
	p := NewPrompter(strings.NewReader(""), &out)
	v, err := p.AskIfEmpty(" given ", "Prompt: ")
	require.NoError(t, err)
	assert.Equal(t, "given", v)
	assert.Empty(t, out.String())
}

func TestAskStyleOffersProfileDefault(t *testing.T) {
	profile := &workflow.Profile{DefaultStyle: "sai-line art"}

	var out bytes.Buffer
	p := NewPrompter(strings.NewReader("\nartstyle-watercolor\n"), &out)
	v, err := p.AskStyle("", profile)
	require.NoError(t, err)
	assert.Equal(t, "sai-line art", v)
	assert.Equal(t, "Enter the style for the image (default: sai-line art): ", out.String())

	v, err = p.AskStyle("", profile)
	require.NoError(t, err)
	assert.Equal(t, "artstyle-watercolor", v)
}

func TestAskStyleKeepsFlagValue(t *testing.T) {
	var out bytes.Buffer
	p := NewPrompter(strings.NewReader(""), &out)
	v, err := p.AskStyle(" sai-comic book ", &workflow.Profile{DefaultStyle: "sai-line art"})
	require.NoError(t, err)
	assert.Equal(t, "sai-comic book", v)
	assert.Empty(t, out.String())
}

func TestNewRequiresAPIKeyWithoutDatabase(t *testing.T) {
	profile := filepath.Join(t.TempDir(), "workflow.yaml")
	require.NoError(t, os.WriteFile(profile, []byte("template:\n  id: \"1\"\n"), 0o644))

	cfg := &infra.Config{WorkflowFile: profile, OutputDir: t.TempDir()}
	_, err := New(context.Background(), cfg, *infra.NopLogger())
	assert.ErrorIs(t, err, tensorart.ErrMissingAPIKey)
}

func TestNewBuildsOrchestrator(t *testing.T) {
	profile := filepath.Join(t.TempDir(), "workflow.yaml")
	require.NoError(t, os.WriteFile(profile, []byte("template:\n  id: \"1\"\n"), 0o644))

	cfg := &infra.Config{
		WorkflowFile: profile,
		OutputDir:    t.TempDir(),
		APIKey:       "key",
		BaseURL:      "https://api.example.com",
	}
	rt, err := New(context.Background(), cfg, *infra.NopLogger())
	require.NoError(t, err)
	defer rt.Close()

	assert.Nil(t, rt.Ledger)
	assert.True(t, rt.Client.HasCredentials())
	assert.Equal(t, "https://api.example.com", rt.Client.BaseURL())
	assert.NotEmpty(t, rt.Orchestrator.RunID())
}

func TestNewFailsOnMissingProfile(t *testing.T) {
	cfg := &infra.Config{WorkflowFile: filepath.Join(t.TempDir(), "none.yaml"), APIKey: "key"}
	_, err := New(context.Background(), cfg, *infra.NopLogger())
	assert.Error(t, err)
}
