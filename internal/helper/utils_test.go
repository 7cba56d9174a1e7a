package helper

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateUUID(t *testing.T) {
	a, err := GenerateUUID()
	require.NoError(t, err)
	b, err := GenerateUUID()
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
	_, err = uuid.Parse(a)
	assert.NoError(t, err)
}

func TestFprettyPrint(t *testing.T) {
	var buf bytes.Buffer
	FprettyPrint(&buf, map[string]int{"files": 2})
	assert.Equal(t, "{\n  \"files\": 2\n}\n", buf.String())
}

func TestCreateFolder(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "b")
	require.NoError(t, CreateFolder(dir))
	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "héllo", Truncate("héllo world", 5))
	assert.Equal(t, "short", Truncate("short", 500))
	assert.Equal(t, "", Truncate("x", 0))
}

func TestSafeFilename(t *testing.T) {
	assert.Equal(t, "a_b_c", SafeFilename(" a/b:c "))
}
