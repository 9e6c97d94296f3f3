package tree

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAddAndExists(t *testing.T) {
	tr := New()
	tr.AddFile("src/main.go")
	tr.AddFile("src/util/io.go")
	tr.AddFile("README.md")
	assert.True(t, tr.Exists("src/main.go"))
	assert.True(t, tr.Exists("src/util/io.go"))
	assert.True(t, tr.Exists("README.md"))
	assert.False(t, tr.Exists("src/util"))
	assert.False(t, tr.Exists("src/other.go"))
}

func TestDelete(t *testing.T) {
	tr := New()
	tr.AddFile("src/main.go")
	tr.DeleteFile("src/main.go")
	assert.False(t, tr.Exists("src/main.go"))
	// Deleting unknown paths is harmless.
	tr.DeleteFile("src/missing.go")
	tr.DeleteFile("no/such/dir/file.go")
}

func TestFilesUnder(t *testing.T) {
	tr := New()
	tr.AddFile("src/a.go")
	tr.AddFile("src/sub/b.go")
	tr.AddFile("docs/c.md")
	assert.Equal(t, []string{"src/a.go", "src/sub/b.go"}, tr.FilesUnder("src"))
	assert.Equal(t, []string{"src/sub/b.go"}, tr.FilesUnder("src/sub"))
	assert.Equal(t, []string{"docs/c.md", "src/a.go", "src/sub/b.go"}, tr.FilesUnder(""))
	assert.Empty(t, tr.FilesUnder("missing"))
}

func TestAddDuplicate(t *testing.T) {
	tr := New()
	tr.AddFile("a.txt")
	tr.AddFile("a.txt")
	assert.Equal(t, []string{"a.txt"}, tr.FilesUnder(""))
}
