package version_test

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/nyxmedia/grobber/internal/version"
)

func withArgs(t *testing.T, args ...string) {
	t.Helper()
	orig := os.Args
	os.Args = append([]string{orig[0]}, args...)
	t.Cleanup(func() { os.Args = orig })
}

func TestHasVersionArgRecognizesAllForms(t *testing.T) {
	for _, arg := range []string{"--version", "-version", "-v", "--v"} {
		withArgs(t, arg)
		assert.True(t, version.HasVersionArg(), "expected %q to be recognized", arg)
	}
}

func TestHasVersionArgFalseForOtherInput(t *testing.T) {
	withArgs(t, "-config", "path.yaml")
	assert.False(t, version.HasVersionArg())
}

func TestHasVersionArgFalseWithNoArgs(t *testing.T) {
	withArgs(t)
	assert.False(t, version.HasVersionArg())
}
