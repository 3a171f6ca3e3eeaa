package engine

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crimson-sun/mailclass/internal/engine/onnx"
	"github.com/crimson-sun/mailclass/internal/hub"
	"github.com/crimson-sun/mailclass/internal/model"
)

// localResolver serves snapshots straight from directories.
type localResolver struct{}

func (localResolver) Resolve(_ context.Context, dir string) (hub.Snapshot, error) {
	return hub.LocalSnapshot(dir)
}

// writeSnapshot lays out a model directory with the given optional files.
func writeSnapshot(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	all := map[string]string{
		"model.onnx": "graph",
		"vocab.txt":  strings.Join(testVocab, "\n") + "\n",
	}
	for name, body := range files {
		all[name] = body
	}
	for name, body := range all {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
	}
	return dir
}

func newFakeLoader(cfg LoaderConfig, m *fakeModel) *Loader {
	l := NewLoader(localResolver{}, cfg)
	l.openModel = func(string, onnx.Options) (Model, error) { return m, nil }
	return l
}

func TestLoaderAssemblesHandle(t *testing.T) {
	dir := writeSnapshot(t, map[string]string{
		"config.json": `{"id2label": {"0": "Promotions", "1": "Spam", "2": "Social Media Updates",
			"3": "Forum Updates", "4": "Code Verification", "5": "Work Updates"}}`,
		"tokenizer_config.json": `{"do_lower_case": true, "model_max_length": 512}`,
	})

	var gotPath string
	var gotOpts onnx.Options
	l := NewLoader(localResolver{}, LoaderConfig{IntraOpThreads: 2, RuntimeLibrary: "/opt/ort.so"})
	l.openModel = func(path string, opts onnx.Options) (Model, error) {
		gotPath, gotOpts = path, opts
		return newFakeModel(), nil
	}

	h, err := l.Load(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, dir, h.ID())
	assert.Equal(t, 256, h.MaxTokens(), "model_max_length above the budget keeps the default")
	assert.Equal(t, filepath.Join(dir, "model.onnx"), gotPath)
	assert.Equal(t, onnx.Options{RuntimeLibrary: "/opt/ort.so", IntraOpThreads: 2}, gotOpts)

	res, err := h.Classify(context.Background(), "Your verification code is 482915")
	require.NoError(t, err)
	assert.Equal(t, model.CodeVerification, res.Label())
}

func TestLoaderGenericLabelNames(t *testing.T) {
	dir := writeSnapshot(t, map[string]string{
		"config.json": `{"id2label": {"0": "LABEL_0", "1": "LABEL_1", "2": "LABEL_2",
			"3": "LABEL_3", "4": "LABEL_4", "5": "LABEL_5"}}`,
	})
	_, err := newFakeLoader(LoaderConfig{}, newFakeModel()).Load(context.Background(), dir)
	assert.NoError(t, err)
}

func TestLoaderMaxTokens(t *testing.T) {
	dir := writeSnapshot(t, map[string]string{
		"tokenizer_config.json": `{"model_max_length": 128}`,
	})
	h, err := newFakeLoader(LoaderConfig{}, newFakeModel()).Load(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, 128, h.MaxTokens())

	h, err = newFakeLoader(LoaderConfig{MaxTokens: 64}, newFakeModel()).Load(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, 64, h.MaxTokens())
}

func TestLoaderHugeModelMaxLengthIgnored(t *testing.T) {
	dir := writeSnapshot(t, map[string]string{
		"tokenizer_config.json": `{"model_max_length": 1000000000000000019884624838656}`,
	})
	h, err := newFakeLoader(LoaderConfig{}, newFakeModel()).Load(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, 256, h.MaxTokens())
}

func TestLoaderRejectsIncompatibleArtifacts(t *testing.T) {
	tests := []struct {
		name  string
		files map[string]string
	}{
		{"wrong label count", map[string]string{
			"config.json": `{"id2label": {"0": "ham", "1": "spam"}}`,
		}},
		{"labels out of order", map[string]string{
			"config.json": `{"id2label": {"0": "Spam", "1": "Promotions", "2": "Social Media Updates",
				"3": "Forum Updates", "4": "Code Verification", "5": "Work Updates"}}`,
		}},
		{"missing index", map[string]string{
			"config.json": `{"id2label": {"0": "a", "1": "b", "2": "c", "3": "d", "4": "e", "6": "f"}}`,
		}},
		{"malformed config", map[string]string{"config.json": `{`}},
		{"malformed tokenizer config", map[string]string{"tokenizer_config.json": `[]`}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			dir := writeSnapshot(t, tc.files)
			_, err := newFakeLoader(LoaderConfig{}, newFakeModel()).Load(context.Background(), dir)
			var le *ModelLoadError
			require.ErrorAs(t, err, &le)
			assert.Equal(t, dir, le.Identifier)
		})
	}
}

func TestLoaderModelWidthMismatch(t *testing.T) {
	dir := writeSnapshot(t, nil)
	m := newFakeModel()
	m.numLabels = 2

	_, err := newFakeLoader(LoaderConfig{}, m).Load(context.Background(), dir)
	require.ErrorIs(t, err, ErrModelLoad)
	assert.True(t, m.closed.Load(), "rejected model must be released")
}

func TestLoaderOpenFailure(t *testing.T) {
	dir := writeSnapshot(t, nil)
	l := NewLoader(localResolver{}, LoaderConfig{})
	openErr := errors.New("onnx: failed to create session")
	l.openModel = func(string, onnx.Options) (Model, error) { return nil, openErr }

	_, err := l.Load(context.Background(), dir)
	assert.ErrorIs(t, err, ErrModelLoad)
	assert.ErrorIs(t, err, openErr)
}

func TestLoaderMissingDirectory(t *testing.T) {
	dir := t.TempDir()
	_, err := newFakeLoader(LoaderConfig{}, newFakeModel()).Load(context.Background(), dir)
	assert.ErrorIs(t, err, ErrModelLoad)
	assert.ErrorIs(t, err, hub.ErrNotFound)
}
