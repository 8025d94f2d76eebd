package commands

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() { rootCmd.SetArgs(nil) })
	err := rootCmd.Execute()
	return out.String(), err
}

func TestChat_MissingCredentialIsFatal(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("ST2U_ASSISTANT_API_KEY", "")
	t.Setenv("ASSISTANT_ID", "asst_1")

	out, err := execute(t, "chat", "--env", filepath.Join(t.TempDir(), "missing.env"))
	require.Error(t, err)
	assert.Contains(t, out, "OPENAI_API_KEY")
}

func TestChat_MissingAssistantIsFatal(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("ASSISTANT_ID", "")
	t.Setenv("ST2U_ASSISTANT_ASSISTANT_ID", "")

	out, err := execute(t, "chat", "--env", filepath.Join(t.TempDir(), "missing.env"))
	require.Error(t, err)
	assert.Contains(t, out, "ASSISTANT_ID")
}

func TestChat_RejectsArgs(t *testing.T) {
	_, err := execute(t, "chat", "extra")
	assert.Error(t, err)
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "--version")
	require.NoError(t, err)
	assert.Equal(t, "st2u version "+version+"\n", out)
}
