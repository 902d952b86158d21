package loader

import (
	"archive/zip"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragchat/internal/domain"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func mkdir(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.Mkdir(path, 0o755))
	return path
}

func writeDOCX(t *testing.T, documentXML string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "report.docx")
	f, err := os.Create(path)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	w, err := zw.Create("word/document.xml")
	require.NoError(t, err)
	_, err = w.Write([]byte(documentXML))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())
	return path
}

func TestLoad_PlainText(t *testing.T) {
	l := New()
	for _, name := range []string{"notes.txt", "README.md", "guide.MARKDOWN"} {
		path := writeFile(t, name, "The sky is blue.\n")
		doc, err := l.Load(context.Background(), path)
		require.NoError(t, err, name)
		assert.Equal(t, "The sky is blue.\n", doc.Content)
		assert.Equal(t, name, doc.Name)
		assert.Equal(t, path, doc.Path)
		assert.Len(t, doc.ID, 16)
	}
}

func TestLoad_IDIsStablePerPath(t *testing.T) {
	path := writeFile(t, "a.txt", "alpha")
	l := New()
	first, err := l.Load(context.Background(), path)
	require.NoError(t, err)
	second, err := l.Load(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	other, err := l.Load(context.Background(), writeFile(t, "a.txt", "alpha"))
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, other.ID)
}

func TestLoad_DOCX(t *testing.T) {
	path := writeDOCX(t, `<?xml version="1.0" encoding="UTF-8"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
  <w:body>
    <w:p><w:r><w:t>The sky</w:t></w:r><w:r><w:t xml:space="preserve"> is blue.</w:t></w:r></w:p>
    <w:p><w:r><w:t>Grass</w:t><w:tab/><w:t>is green.</w:t></w:r></w:p>
  </w:body>
</w:document>`)
	doc, err := New().Load(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "The sky is blue.\nGrass\tis green.", doc.Content)
}

func TestLoad_Failures(t *testing.T) {
	l := &FileLoader{MaxSize: 16}
	tests := []struct {
		name string
		path string
	}{
		{"missing", filepath.Join(t.TempDir(), "gone.txt")},
		{"unsupported", writeFile(t, "image.png", "not text")},
		{"empty", writeFile(t, "blank.txt", " \n\t ")},
		{"oversize", writeFile(t, "big.txt", strings.Repeat("x", 17))},
		{"bad pdf", writeFile(t, "broken.pdf", "%PDF-nonsense")},
		{"bad docx", writeFile(t, "broken.docx", "not a zip")},
		{"directory", mkdir(t, "folder.txt")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := l.Load(context.Background(), tt.path)
			assert.ErrorIs(t, err, domain.ErrLoadFailure)
		})
	}
}

func TestLoad_DOCXWithoutBody(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.docx")
	f, err := os.Create(path)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	_, err = zw.Create("docProps/app.xml")
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())

	_, err = New().Load(context.Background(), path)
	assert.ErrorIs(t, err, domain.ErrLoadFailure)
}

func TestSupports(t *testing.T) {
	l := New()
	assert.True(t, l.Supports("a.txt"))
	assert.True(t, l.Supports("/x/B.PDF"))
	assert.True(t, l.Supports("c.docx"))
	assert.False(t, l.Supports("d.doc"))
	assert.False(t, l.Supports("noext"))
	assert.Len(t, Extensions(), len(kinds))
}
