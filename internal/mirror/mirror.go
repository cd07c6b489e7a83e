package mirror

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"mangasync/internal/domain"
	"mangasync/internal/sanitize"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
)

const (
	VolumePrefix  = "Vol."
	ChapterPrefix = "Ch."

	partSuffix = ".part"
)

type Options struct {
	// LegacyRootNames are folder names older runs used instead of the manga title.
	LegacyRootNames []string
	// PlaceholderMaxLength treats language codes up to this many runes as placeholders too.
	PlaceholderMaxLength int
}

// Mirror owns the download tree: <root>/<Title>/[Vol.<v>/]Ch.<c>/NNN.<ext>.
type Mirror struct {
	fs   afero.Fs
	root string
	opts Options
	log  zerolog.Logger
}

func New(fs afero.Fs, root string, opts Options, log zerolog.Logger) *Mirror {
	return &Mirror{
		fs:   fs,
		root: filepath.Clean(root),
		opts: opts,
		log:  log.With().Str("module", "mirror").Logger(),
	}
}

func (m *Mirror) Fs() afero.Fs {
	return m.fs
}

func (m *Mirror) Root() string {
	return m.root
}

// ResolveTitle picks the folder title of a manga: en, ja, ja-ro, the first other
// title, and Manga_<id prefix> when there is none.
func ResolveTitle(manga domain.Manga) string {
	for _, lang := range []string{"en", "ja", "ja-ro"} {
		if t := strings.TrimSpace(manga.Title[lang]); t != "" {
			return t
		}
	}

	langs := make([]string, 0, len(manga.Title))
	for lang := range manga.Title {
		langs = append(langs, lang)
	}
	slices.Sort(langs)

	for _, lang := range langs {
		if t := strings.TrimSpace(manga.Title[lang]); t != "" {
			return t
		}
	}

	return fallbackTitle(manga.ID)
}

func fallbackTitle(id string) string {
	if len(id) > 8 {
		id = id[:8]
	}
	return "Manga_" + id
}

// FolderTitle is the sanitized folder name of a manga.
func FolderTitle(manga domain.Manga) string {
	return sanitize.FilenameOr(ResolveTitle(manga), fallbackTitle(manga.ID))
}

func (m *Mirror) MangaDir(folderTitle string) string {
	return filepath.Join(m.root, folderTitle)
}

// ChapterFolder returns the chapter path relative to the manga folder.
// Chapters without a volume live directly in the manga folder.
func ChapterFolder(ch domain.Chapter) string {
	chapterDir := ChapterPrefix + sanitize.FilenameOr(ch.Number, domain.VolumeNone)
	if !ch.HasVolume() {
		return chapterDir
	}
	return filepath.Join(VolumePrefix+sanitize.FilenameOr(ch.Volume, domain.VolumeNone), chapterDir)
}

func (m *Mirror) ChapterDir(folderTitle string, ch domain.Chapter) string {
	return filepath.Join(m.MangaDir(folderTitle), ChapterFolder(ch))
}

// PageName is the file name of a page, 1-based and zero padded to three digits.
func PageName(index int, ext string) string {
	ext = strings.TrimPrefix(ext, ".")
	if ext == "" {
		return fmt.Sprintf("%03d", index)
	}
	return fmt.Sprintf("%03d.%s", index, ext)
}

// pageIndex parses "007.png" into 7. Temporary and hidden files are not pages.
func pageIndex(name string) (int, bool) {
	if strings.HasPrefix(name, ".") || strings.HasSuffix(name, partSuffix) {
		return 0, false
	}

	base := strings.TrimSuffix(name, filepath.Ext(name))
	if base == "" || strings.TrimLeft(base, "0123456789") != "" {
		return 0, false
	}

	i, err := strconv.Atoi(base)
	if err != nil || i < 1 {
		return 0, false
	}
	return i, true
}

// Pages maps page index to file name for the pages present in dir.
func (m *Mirror) Pages(dir string) (map[int]string, error) {
	entries, err := afero.ReadDir(m.fs, dir)
	if err != nil {
		if os.IsNotExist(err) {
			return map[int]string{}, nil
		}
		return nil, errors.Wrapf(err, "could not read chapter folder %s", dir)
	}

	pages := make(map[int]string, len(entries))
	for _, e := range entries {
		if e.IsDir() || e.Size() == 0 {
			continue
		}
		if i, ok := pageIndex(e.Name()); ok {
			pages[i] = e.Name()
		}
	}
	return pages, nil
}

// MissingPages returns the 1-based indices in [1, pageCount] that have no page file yet.
func (m *Mirror) MissingPages(dir string, pageCount int) ([]int, error) {
	pages, err := m.Pages(dir)
	if err != nil {
		return nil, err
	}

	var missing []int
	for i := 1; i <= pageCount; i++ {
		if _, ok := pages[i]; !ok {
			missing = append(missing, i)
		}
	}
	return missing, nil
}

// IsComplete reports whether all pageCount pages are present. A chapter with an unknown page count is never complete.
func (m *Mirror) IsComplete(dir string, pageCount int) (bool, error) {
	if pageCount <= 0 {
		return false, nil
	}

	missing, err := m.MissingPages(dir, pageCount)
	if err != nil {
		return false, err
	}
	return len(missing) == 0, nil
}

// WritePage stores one page. The data is written to a temporary file first, so a
// page file is either complete or absent.
func (m *Mirror) WritePage(dir string, index int, ext string, data []byte) (string, error) {
	if err := m.fs.MkdirAll(dir, 0o755); err != nil {
		return "", errors.Wrapf(err, "could not create chapter folder %s", dir)
	}

	name := PageName(index, ext)
	final := filepath.Join(dir, name)
	tmp := filepath.Join(dir, "."+name+partSuffix)

	if err := afero.WriteFile(m.fs, tmp, data, 0o644); err != nil {
		_ = m.fs.Remove(tmp)
		return "", errors.Wrapf(err, "could not write page %s", tmp)
	}

	if err := m.fs.Rename(tmp, final); err != nil {
		_ = m.fs.Remove(tmp)
		return "", errors.Wrapf(err, "could not move page into place %s", final)
	}

	return final, nil
}

// Scan lists the chapter folders below a manga folder, at its root and inside Vol.* folders.
func (m *Mirror) Scan(mangaDir string) ([]domain.LocalChapterFolder, error) {
	entries, err := afero.ReadDir(m.fs, mangaDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "could not read manga folder %s", mangaDir)
	}

	var folders []domain.LocalChapterFolder

	addChapter := func(dir, volume, name string) error {
		pages, err := m.Pages(dir)
		if err != nil {
			return err
		}
		folders = append(folders, domain.LocalChapterFolder{
			Path:   dir,
			Volume: volume,
			Number: strings.TrimPrefix(name, ChapterPrefix),
			Pages:  pages,
		})
		return nil
	}

	for _, e := range entries {
		if !e.IsDir() {
			continue
		}

		path := filepath.Join(mangaDir, e.Name())
		switch {
		case strings.HasPrefix(e.Name(), ChapterPrefix):
			if err := addChapter(path, domain.VolumeNone, e.Name()); err != nil {
				return nil, err
			}

		case strings.HasPrefix(e.Name(), VolumePrefix):
			volume := strings.TrimPrefix(e.Name(), VolumePrefix)
			chapters, err := afero.ReadDir(m.fs, path)
			if err != nil {
				return nil, errors.Wrapf(err, "could not read volume folder %s", path)
			}
			for _, c := range chapters {
				if c.IsDir() && strings.HasPrefix(c.Name(), ChapterPrefix) {
					if err := addChapter(filepath.Join(path, c.Name()), volume, c.Name()); err != nil {
						return nil, err
					}
				}
			}
		}
	}

	return folders, nil
}
