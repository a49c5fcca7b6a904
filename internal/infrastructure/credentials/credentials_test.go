package credentials

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatic(t *testing.T) {
	tok, ok := Static("abc").Token()
	assert.True(t, ok)
	assert.Equal(t, "abc", tok)

	_, ok = Static("").Token()
	assert.False(t, ok)
}

func TestFile_RereadsOnEveryCall(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token")
	src := File{Path: path}

	_, ok := src.Token()
	assert.False(t, ok, "missing file")

	require.NoError(t, os.WriteFile(path, []byte("first\n"), 0o600))
	tok, ok := src.Token()
	assert.True(t, ok)
	assert.Equal(t, "first", tok)

	require.NoError(t, os.WriteFile(path, []byte("second"), 0o600))
	tok, _ = src.Token()
	assert.Equal(t, "second", tok)

	require.NoError(t, os.WriteFile(path, []byte("  \n"), 0o600))
	_, ok = src.Token()
	assert.False(t, ok, "blank file")
}

func TestEnv(t *testing.T) {
	t.Setenv("POSQUEUE_TEST_TOKEN", "from-env")

	tok, ok := Env{Name: "POSQUEUE_TEST_TOKEN"}.Token()
	assert.True(t, ok)
	assert.Equal(t, "from-env", tok)

	_, ok = Env{Name: "POSQUEUE_TEST_TOKEN_UNSET"}.Token()
	assert.False(t, ok)
}

func TestFromConfig_Precedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token")
	t.Setenv("POSQUEUE_TEST_TOKEN", "env")

	src := FromConfig("inline", path, "POSQUEUE_TEST_TOKEN")
	tok, _ := src.Token()
	assert.Equal(t, "inline", tok, "file missing falls through")

	require.NoError(t, os.WriteFile(path, []byte("file"), 0o600))
	tok, _ = src.Token()
	assert.Equal(t, "file", tok)

	tok, _ = FromConfig("", "", "POSQUEUE_TEST_TOKEN").Token()
	assert.Equal(t, "env", tok)

	_, ok := FromConfig("", "", "").Token()
	assert.False(t, ok)
}
