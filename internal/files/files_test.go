package files

import (
	"archive/zip"
	"bytes"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"mangasync/internal/mirror"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pngOfWidth(t *testing.T, width int) []byte {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, width, 40))
	img.Set(0, 0, color.RGBA{B: 255, A: 255})

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func setup(t *testing.T) (*Exporter, string, string) {
	t.Helper()

	root := t.TempDir()
	m := mirror.New(afero.NewOsFs(), root, mirror.Options{}, zerolog.Nop())
	dir := filepath.Join(root, "Title", "Vol.1", "Ch.1")

	for i, width := range []int{100, 300, 102} {
		_, err := m.WritePage(dir, i+1, "png", pngOfWidth(t, width))
		require.NoError(t, err)
	}

	require.NoError(t, os.WriteFile(filepath.Join(dir, "004.jpg"), []byte("not an image"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".005.png.part"), []byte("partial"), 0o644))

	return New(m, zerolog.Nop()), root, dir
}

func zipNames(t *testing.T, path string) []string {
	t.Helper()

	r, err := zip.OpenReader(path)
	require.NoError(t, err)
	defer r.Close()

	var names []string
	for _, f := range r.File {
		names = append(names, f.Name)
	}
	return names
}

func TestCreateCbzArchive(t *testing.T) {
	e, root, dir := setup(t)

	cbzPath := filepath.Join(root, "out", "Title Ch. 001.cbz")
	require.NoError(t, e.CreateCbzArchive(dir, cbzPath, false))
	assert.Equal(t, []string{"001.png", "002.png", "003.png"}, zipNames(t, cbzPath))

	stripPath := filepath.Join(root, "out", "strip.cbz")
	require.NoError(t, e.CreateCbzArchive(dir, stripPath, true))
	assert.Equal(t, []string{"001.png", "003.png"}, zipNames(t, stripPath))
}

func TestCreateCbzArchive_EmptyFolder(t *testing.T) {
	e, root, _ := setup(t)

	err := e.CreateCbzArchive(filepath.Join(root, "Title", "Ch.9"), filepath.Join(root, "out", "empty.cbz"), false)
	assert.Error(t, err)
	assert.NoFileExists(t, filepath.Join(root, "out", "empty.cbz"))
}

func TestCreatePDF(t *testing.T) {
	e, root, dir := setup(t)

	pdfPath := filepath.Join(root, "out", "chapter.pdf")
	require.NoError(t, e.CreatePDF(dir, pdfPath))

	data, err := os.ReadFile(pdfPath)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("%PDF-")))
}

func TestCreateEPUB(t *testing.T) {
	e, root, dir := setup(t)

	epubPath := filepath.Join(root, "out", "Title.epub")
	err := e.CreateEPUB(EpubMeta{Title: "Title", Author: "Author", Language: "en"}, []EpubChapter{
		{Title: "Vol. 1 Ch. 1", Dir: dir},
	}, epubPath)
	require.NoError(t, err)

	names := zipNames(t, epubPath)
	assert.Contains(t, names, "mimetype")

	images := 0
	for _, name := range names {
		if filepath.Ext(name) == ".png" {
			images++
		}
	}
	assert.Equal(t, 3, images)

	assert.Error(t, e.CreateEPUB(EpubMeta{Title: "Title"}, nil, epubPath))
}

func TestCommonWidth(t *testing.T) {
	pages := []pageImage{{width: 800}, {width: 805}, {width: 1600}, {width: 801}}
	assert.Equal(t, 800, commonWidth(pages))
}
