package files

import (
	"archive/zip"
	"bufio"
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"mangasync/internal/mirror"

	"github.com/go-pdf/fpdf"
	"github.com/go-shiori/go-epub"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	_ "golang.org/x/image/webp" // needed to decode webp
)

const binSize = 10

func IsValidLocation(location string) error {
	if _, err := os.Stat(location); err != nil {
		return err
	}

	return nil
}

// Exporter packs downloaded chapter folders into CBZ, PDF and EPUB files.
type Exporter struct {
	fs     afero.Fs
	mirror *mirror.Mirror
	log    zerolog.Logger
}

func New(m *mirror.Mirror, log zerolog.Logger) *Exporter {
	return &Exporter{
		fs:     m.Fs(),
		mirror: m,
		log:    log.With().Str("module", "export").Logger(),
	}
}

type pageImage struct {
	path   string
	name   string
	format string
	width  int
	height int
}

// chapterPages returns the decodable pages of a chapter folder in reading order.
func (e *Exporter) chapterPages(dir string) ([]pageImage, error) {
	pages, err := e.mirror.Pages(dir)
	if err != nil {
		return nil, err
	}

	indices := make([]int, 0, len(pages))
	for i := range pages {
		indices = append(indices, i)
	}
	slices.Sort(indices)

	out := make([]pageImage, 0, len(indices))
	for _, i := range indices {
		path := filepath.Join(dir, pages[i])

		cfg, format, err := e.decodeConfig(path)
		if err != nil {
			e.log.Warn().Err(err).Msgf("skipping unreadable page %s", path)
			continue
		}

		out = append(out, pageImage{path: path, name: pages[i], format: format, width: cfg.Width, height: cfg.Height})
	}

	if len(out) == 0 {
		return nil, fmt.Errorf("no pages found in %s", dir)
	}

	return out, nil
}

func (e *Exporter) decodeConfig(path string) (image.Config, string, error) {
	f, err := e.fs.Open(path)
	if err != nil {
		return image.Config{}, "", err
	}
	defer f.Close()

	return image.DecodeConfig(bufio.NewReader(f))
}

// CreateCbzArchive creates a zip archive named cbzPath from the pages in sourceDir.
// With dropOddWidths pages whose width differs from the common width are left
// out, which removes banners from long strip chapters.
func (e *Exporter) CreateCbzArchive(sourceDir, cbzPath string, dropOddWidths bool) error {
	pages, err := e.chapterPages(sourceDir)
	if err != nil {
		return err
	}

	if err := e.fs.MkdirAll(filepath.Dir(cbzPath), 0o755); err != nil {
		return err
	}

	cbzFile, err := e.fs.Create(cbzPath)
	if err != nil {
		return err
	}
	defer cbzFile.Close()

	writeBuf := bufio.NewWriter(cbzFile)
	zipWriter := zip.NewWriter(writeBuf)

	mostCommonWidth := commonWidth(pages)

	for _, page := range pages {
		if dropOddWidths && (page.width < mostCommonWidth-binSize || page.width > mostCommonWidth+binSize) {
			e.log.Debug().Msgf("leaving out %s with width %d", page.path, page.width)
			continue
		}

		if err := e.addFileToZip(zipWriter, page.path, page.name); err != nil {
			return err
		}
	}

	if err := zipWriter.Close(); err != nil {
		return err
	}

	return writeBuf.Flush()
}

func commonWidth(pages []pageImage) int {
	widthCount := make(map[int]int)
	for _, p := range pages {
		widthCount[(p.width/binSize)*binSize]++
	}

	mostCommonWidth, maxCount := 0, 0
	for bin, count := range widthCount {
		if count > maxCount || (count == maxCount && bin > mostCommonWidth) {
			maxCount = count
			mostCommonWidth = bin
		}
	}
	return mostCommonWidth
}

// addFileToZip adds a single file to the zip archive
func (e *Exporter) addFileToZip(zipWriter *zip.Writer, filePath, fileName string) error {
	fileToZip, err := e.fs.Open(filePath)
	if err != nil {
		return err
	}
	defer fileToZip.Close()

	writer, err := zipWriter.Create(fileName)
	if err != nil {
		return err
	}

	_, err = io.Copy(writer, bufio.NewReader(fileToZip))
	return err
}

// CreatePDF creates a pdf file named pdfPath with one page per image in sourceDir.
func (e *Exporter) CreatePDF(sourceDir, pdfPath string) error {
	pages, err := e.chapterPages(sourceDir)
	if err != nil {
		return err
	}

	if err := e.fs.MkdirAll(filepath.Dir(pdfPath), 0o755); err != nil {
		return err
	}

	pdf := fpdf.New(fpdf.OrientationPortrait, fpdf.UnitPoint, "", "")

	for _, page := range pages {
		data, imageType, err := e.pdfImage(page)
		if err != nil {
			return errors.Wrapf(err, "could not read page %s", page.path)
		}

		opts := fpdf.ImageOptions{ImageType: imageType}
		info := pdf.RegisterImageOptionsReader(page.path, opts, bytes.NewReader(data))
		if pdf.Err() {
			return errors.Wrapf(pdf.Error(), "could not add page %s", page.path)
		}

		imgWidth, imgHeight := info.Extent()
		pdf.AddPageFormat(fpdf.OrientationPortrait, fpdf.SizeType{Wd: imgWidth, Ht: imgHeight})
		pdf.ImageOptions(page.path, 0, 0, imgWidth, imgHeight, false, opts, 0, "")
	}

	out, err := e.fs.Create(pdfPath)
	if err != nil {
		return err
	}

	return pdf.OutputAndClose(out)
}

// pdfImage returns the page in a format fpdf can embed. webp pages are re-encoded as png.
func (e *Exporter) pdfImage(page pageImage) ([]byte, string, error) {
	data, err := afero.ReadFile(e.fs, page.path)
	if err != nil {
		return nil, "", err
	}

	switch page.format {
	case "jpeg":
		return data, "JPG", nil
	case "png":
		return data, "PNG", nil
	case "gif":
		return data, "GIF", nil
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", err
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), "PNG", nil
}

// EpubChapter is one section of an EPUB volume.
type EpubChapter struct {
	Title string
	Dir   string
}

type EpubMeta struct {
	Title       string
	Author      string
	Description string
	Language    string
}

// CreateEPUB compiles chapters into one EPUB file, one section per chapter.
func (e *Exporter) CreateEPUB(meta EpubMeta, chapters []EpubChapter, epubPath string) error {
	if len(chapters) == 0 {
		return fmt.Errorf("no chapters to compile")
	}

	book, err := epub.NewEpub(meta.Title)
	if err != nil {
		return errors.Wrap(err, "failed to create epub")
	}

	if meta.Author != "" {
		book.SetAuthor(meta.Author)
	}
	if meta.Description != "" {
		book.SetDescription(meta.Description)
	}
	if meta.Language != "" {
		book.SetLang(meta.Language)
	}

	for _, ch := range chapters {
		if err := e.addChapterToEpub(book, ch); err != nil {
			return errors.Wrapf(err, "failed to add %s", ch.Title)
		}
	}

	if err := e.fs.MkdirAll(filepath.Dir(epubPath), 0o755); err != nil {
		return err
	}

	out, err := e.fs.Create(epubPath)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := book.WriteTo(out); err != nil {
		return errors.Wrap(err, "failed to write epub")
	}

	return nil
}

func (e *Exporter) addChapterToEpub(book *epub.Epub, ch EpubChapter) error {
	pages, err := e.chapterPages(ch.Dir)
	if err != nil {
		return err
	}

	var body strings.Builder
	fmt.Fprintf(&body, "<h1>%s</h1>\n", ch.Title)

	for i, page := range pages {
		data, err := afero.ReadFile(e.fs, page.path)
		if err != nil {
			return err
		}

		source := fmt.Sprintf("data:image/%s;base64,%s", page.format, base64.StdEncoding.EncodeToString(data))
		internalPath, err := book.AddImage(source, fmt.Sprintf("%s-%s", sectionID(ch.Title), page.name))
		if err != nil {
			return errors.Wrapf(err, "failed to add image %s", page.path)
		}

		fmt.Fprintf(&body, `<div class="page"><img src="%s" alt="Page %d" style="width:100%%;height:auto;"/></div>`+"\n", internalPath, i+1)
	}

	_, err = book.AddSection(body.String(), ch.Title, "", "")
	return err
}

func sectionID(title string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		}
		return '_'
	}, title)
}
