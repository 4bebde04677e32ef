package cmd

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

const testPage = `<!DOCTYPE html>
<html><head><title>Lesson</title></head><body>
<div class="editor-container">
  <div class="control-panel">
    <button data-action="run" data-editor="demo-editor">Run</button>
    <span class="status-indicator"></span><span class="status-text"></span>
  </div>
  <div id="demo-editor" class="code-editor"></div>
  <div id="demo-editor-preview-content"></div>
</div>
<div id="js-notes-editor" class="code-editor"></div>
</body></html>`

func writeLesson(t *testing.T, root, name, manifest string) {
	t.Helper()
	dir := filepath.Join(root, name)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.html"), []byte(testPage), 0o644))
	if manifest != "" {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "lesson.yml"), []byte(manifest), 0o644))
	}
}

// setupLessons points the global configuration at a fresh lessons root.
func setupLessons(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	writeLesson(t, root, "intro", `title: Intro
snippets:
  demo:
    language: markup
    source: <button>Click</button>
`)
	writeLesson(t, root, "broken", `snippets:
  demo:
    language: markup
    source: <butt
`)
	writeLesson(t, root, "invalid", "snippets: [not, a, map]\n")

	viper.Set("lessons.dir", root)
	t.Cleanup(func() { viper.Set("lessons.dir", "./lessons") })
	return root
}

func runWithOutput(t *testing.T, run func(*cobra.Command, []string) error, args ...string) (string, error) {
	t.Helper()
	var buf bytes.Buffer
	c := &cobra.Command{}
	c.SetOut(&buf)
	err := run(c, args)
	return buf.String(), err
}

func TestListTable(t *testing.T) {
	setupLessons(t)
	require.NoError(t, listFormat.Set("table"))

	out, err := runWithOutput(t, runList)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	assert.True(t, strings.HasPrefix(lines[0], "LESSON"))
	assert.Contains(t, out, "intro")
	assert.Regexp(t, `intro\s+demo-editor\s+markup\s+demo\s+yes`, out)
	assert.Regexp(t, `intro\s+js-notes-editor\s+script\s+js-notes\s+placeholder`, out)
	assert.Regexp(t, `invalid\s+-\s+-\s+-\s+error:`, out)
}

func TestListYAML(t *testing.T) {
	setupLessons(t)
	require.NoError(t, listFormat.Set("yaml"))
	t.Cleanup(func() { _ = listFormat.Set("table") })

	out, err := runWithOutput(t, runList)
	require.NoError(t, err)

	var entries []listEntry
	require.NoError(t, yaml.Unmarshal([]byte(out), &entries))
	require.Len(t, entries, 3)

	byName := map[string]listEntry{}
	for _, e := range entries {
		byName[e.Name] = e
	}
	assert.Equal(t, "Intro", byName["intro"].Title)
	assert.Equal(t, []string{"demo"}, byName["intro"].Sections)
	require.Len(t, byName["intro"].Editors, 2)
	assert.Equal(t, "demo-editor", byName["intro"].Editors[0].ID)
	assert.NotEmpty(t, byName["invalid"].Error)
}

func TestListJSON(t *testing.T) {
	setupLessons(t)
	require.NoError(t, listFormat.Set("json"))
	t.Cleanup(func() { _ = listFormat.Set("table") })

	out, err := runWithOutput(t, runList)
	require.NoError(t, err)

	var entries []listEntry
	require.NoError(t, json.Unmarshal([]byte(out), &entries))
	assert.Len(t, entries, 3)
}

func TestCheck(t *testing.T) {
	setupLessons(t)

	out, err := runWithOutput(t, runCheck)
	require.Error(t, err)
	assert.Equal(t, "2 problem(s) found", err.Error())

	assert.Contains(t, out, "ok   intro/demo-editor")
	assert.Contains(t, out, "SKIP intro/js-notes-editor: no preview")
	assert.Regexp(t, `FAIL broken/demo-editor: .*unexpected end of input inside tag "<butt"`, out)
	assert.Contains(t, out, "FAIL invalid:")
}

func TestCheck_Selected(t *testing.T) {
	setupLessons(t)

	out, err := runWithOutput(t, runCheck, "intro")
	require.NoError(t, err)
	assert.Contains(t, out, "ok   intro/demo-editor")
	assert.NotContains(t, out, "broken")

	out, err = runWithOutput(t, runCheck, "missing")
	require.Error(t, err)
	assert.Contains(t, out, "FAIL missing: lesson not found: missing")
}

func TestCheck_Patterns(t *testing.T) {
	setupLessons(t)

	out, err := runWithOutput(t, runCheck, "intr?", "br*")
	require.Error(t, err)
	assert.Contains(t, out, "ok   intro/demo-editor")
	assert.Contains(t, out, "FAIL broken/demo-editor")
	assert.NotContains(t, out, "invalid")

	_, err = runWithOutput(t, runCheck, "[intro")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid lesson pattern")
}

func TestListPatterns(t *testing.T) {
	setupLessons(t)
	require.NoError(t, listFormat.Set("json"))
	t.Cleanup(func() { _ = listFormat.Set("table") })

	out, err := runWithOutput(t, runList, "in*")
	require.NoError(t, err)

	var entries []listEntry
	require.NoError(t, json.Unmarshal([]byte(out), &entries))
	require.Len(t, entries, 2)
	assert.Equal(t, "intro", entries[0].Name)
	assert.Equal(t, "invalid", entries[1].Name)
	assert.NotEmpty(t, entries[1].Error)
}

func TestVersion(t *testing.T) {
	versionShort = true
	out, err := runWithOutput(t, runVersion)
	versionShort = false
	require.NoError(t, err)
	assert.NotEmpty(t, strings.TrimSpace(out))

	require.NoError(t, versionFormat.Set("json"))
	t.Cleanup(func() { _ = versionFormat.Set("text") })
	out, err = runWithOutput(t, runVersion)
	require.NoError(t, err)
	var info map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.Contains(t, info, "go_version")
}

func TestExecute_Version(t *testing.T) {
	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetArgs([]string{"version", "--format", "yaml"})
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
		_ = versionFormat.Set("text")
	})

	require.NoError(t, Execute())
	assert.Contains(t, buf.String(), "go_version:")
}

func TestExecute_RejectsUnknownFormat(t *testing.T) {
	rootCmd.SetArgs([]string{"list", "--format", "csv"})
	rootCmd.SetOut(&bytes.Buffer{})
	rootCmd.SetErr(&bytes.Buffer{})
	t.Cleanup(func() {
		rootCmd.SetArgs(nil)
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
	})

	err := Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must be one of table, yaml, json")
}

func TestServeFlagsBound(t *testing.T) {
	require.NoError(t, serveCmd.Flags().Set("isolation", "open"))
	t.Cleanup(func() { _ = serveCmd.Flags().Set("isolation", "strict") })
	assert.Equal(t, "open", viper.GetString("sandbox.isolation"))

	assert.Error(t, serveCmd.Flags().Set("isolation", "none"))
}
