package mirror

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"

	"mangasync/internal/domain"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
)

// languageCode matches folder names such as "ja" or "pt-br" that older runs used as manga roots.
var languageCode = regexp.MustCompile(`(?i)^[a-z]{2}(-[a-z]{2})?$`)

// Report describes what a reconciliation changed on disk.
type Report struct {
	MergedRoots   []string
	FlattenedNone bool
	Moved         int
	Collisions    int
	RemovedDirs   int
	Failed        int
}

func (r Report) Changed() bool {
	return len(r.MergedRoots) > 0 || r.FlattenedNone || r.Moved > 0 || r.RemovedDirs > 0
}

// Reconcile brings the folder of a manga in line with the current chapter metadata.
// Folders left behind by older runs under a placeholder name are merged into the
// title folder, Vol.none is flattened and chapters are moved to the volume the API
// now reports. Existing files are never overwritten and a failed move is logged and
// skipped. Running it twice changes nothing.
func (m *Mirror) Reconcile(ctx context.Context, folderTitle string, chapters []domain.Chapter, legacyRoots []string) (Report, error) {
	var report Report
	target := m.MangaDir(folderTitle)

	if err := m.mergeLegacyRoots(ctx, folderTitle, legacyRoots, &report); err != nil {
		return report, err
	}

	if err := ctx.Err(); err != nil {
		return report, err
	}

	if err := m.flattenVolumeNone(target, &report); err != nil {
		return report, err
	}

	if err := ctx.Err(); err != nil {
		return report, err
	}

	if err := m.relocateChapters(ctx, target, chapters, &report); err != nil {
		return report, err
	}

	if err := m.removeEmptyVolumes(target, &report); err != nil {
		return report, err
	}

	if report.Changed() || report.Failed > 0 {
		m.log.Info().Msgf("reconciled %s: %d chapter folders moved, %d roots merged, %d collisions left in place, %d failed",
			folderTitle, report.Moved, len(report.MergedRoots), report.Collisions, report.Failed)
	}

	return report, nil
}

// LegacyRootCandidates lists sibling folders that look like placeholder roots of older runs.
func (m *Mirror) LegacyRootCandidates(folderTitle string) ([]string, error) {
	entries, err := afero.ReadDir(m.fs, m.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "could not read download folder %s", m.root)
	}

	var candidates []string
	for _, e := range entries {
		if !e.IsDir() || e.Name() == folderTitle || !m.isPlaceholder(e.Name()) {
			continue
		}

		ok, err := m.hasChapterLayout(filepath.Join(m.root, e.Name()))
		if err != nil {
			return nil, err
		}
		if ok {
			candidates = append(candidates, e.Name())
		}
	}

	return candidates, nil
}

func (m *Mirror) isPlaceholder(name string) bool {
	for _, legacy := range m.opts.LegacyRootNames {
		if strings.EqualFold(name, legacy) {
			return true
		}
	}
	return m.opts.PlaceholderMaxLength > 0 &&
		utf8.RuneCountInString(name) <= m.opts.PlaceholderMaxLength &&
		languageCode.MatchString(name)
}

func (m *Mirror) hasChapterLayout(dir string) (bool, error) {
	entries, err := afero.ReadDir(m.fs, dir)
	if err != nil {
		return false, errors.Wrapf(err, "could not read folder %s", dir)
	}

	for _, e := range entries {
		if e.IsDir() && (strings.HasPrefix(e.Name(), ChapterPrefix) || strings.HasPrefix(e.Name(), VolumePrefix)) {
			return true, nil
		}
	}
	return false, nil
}

func (m *Mirror) mergeLegacyRoots(ctx context.Context, folderTitle string, explicit []string, report *Report) error {
	var roots []string

	for _, name := range explicit {
		if name == "" || name == folderTitle {
			continue
		}
		ok, err := afero.DirExists(m.fs, filepath.Join(m.root, name))
		if err != nil {
			return errors.Wrapf(err, "could not check legacy root %s", name)
		}
		if ok {
			roots = append(roots, name)
		}
	}

	if len(explicit) == 0 {
		candidates, err := m.LegacyRootCandidates(folderTitle)
		if err != nil {
			return err
		}

		switch len(candidates) {
		case 0:
		case 1:
			roots = candidates
		default:
			m.log.Warn().Msgf("found several placeholder folders %v, pass the one belonging to %s explicitly", candidates, folderTitle)
		}
	}

	target := m.MangaDir(folderTitle)
	for _, name := range roots {
		if err := ctx.Err(); err != nil {
			return err
		}

		m.log.Info().Msgf("merging legacy folder %s into %s", name, folderTitle)

		collisions, err := m.moveDir(filepath.Join(m.root, name), target)
		if err != nil {
			m.log.Error().Err(err).Msgf("could not merge legacy folder %s", name)
			report.Failed++
			continue
		}
		report.Collisions += collisions
		report.MergedRoots = append(report.MergedRoots, name)
	}

	return nil
}

func (m *Mirror) flattenVolumeNone(target string, report *Report) error {
	noneDir := filepath.Join(target, VolumePrefix+domain.VolumeNone)

	ok, err := afero.DirExists(m.fs, noneDir)
	if err != nil {
		return errors.Wrapf(err, "could not check %s", noneDir)
	}
	if !ok {
		return nil
	}

	collisions, err := m.moveDir(noneDir, target)
	if err != nil {
		m.log.Error().Err(err).Msgf("could not flatten %s", noneDir)
		report.Failed++
		return nil
	}

	report.Collisions += collisions
	report.FlattenedNone = true
	return nil
}

// relocateChapters moves every local chapter folder to the path its chapter maps to now.
// Numbers that map to more than one path are left alone.
func (m *Mirror) relocateChapters(ctx context.Context, target string, chapters []domain.Chapter, report *Report) error {
	desired := make(map[string]string, len(chapters))
	ambiguous := make(map[string]bool)

	for _, ch := range chapters {
		key := folderKey(strings.TrimPrefix(filepath.Base(ChapterFolder(ch)), ChapterPrefix))
		path := filepath.Join(target, ChapterFolder(ch))

		if prev, ok := desired[key]; ok && prev != path {
			ambiguous[key] = true
		}
		desired[key] = path
	}

	local, err := m.Scan(target)
	if err != nil {
		return err
	}

	for _, folder := range local {
		if err := ctx.Err(); err != nil {
			return err
		}

		key := folderKey(folder.Number)
		dst, ok := desired[key]
		if !ok || ambiguous[key] || filepath.Clean(folder.Path) == filepath.Clean(dst) {
			continue
		}

		m.log.Debug().Msgf("moving %s to %s", folder.Path, dst)

		collisions, err := m.moveDir(folder.Path, dst)
		if err != nil {
			m.log.Error().Err(err).Msgf("could not move chapter folder %s", folder.Path)
			report.Failed++
			continue
		}
		report.Collisions += collisions
		report.Moved++
	}

	return nil
}

func (m *Mirror) removeEmptyVolumes(target string, report *Report) error {
	entries, err := afero.ReadDir(m.fs, target)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.Wrapf(err, "could not read manga folder %s", target)
	}

	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), VolumePrefix) {
			continue
		}

		removed, err := m.removeIfEmpty(filepath.Join(target, e.Name()))
		if err != nil {
			m.log.Warn().Err(err).Msgf("could not remove empty folder %s", e.Name())
			continue
		}
		if removed {
			report.RemovedDirs++
		}
	}

	return nil
}

// folderKey compares chapter labels the way they are written in folder names.
func folderKey(label string) string {
	if f, ok := domain.ParseLabel(label); ok {
		return domain.FormatNumber(f)
	}
	return strings.ToLower(strings.TrimSpace(label))
}

// moveDir moves src to dst. When dst already exists the two trees are merged and
// files already present in dst stay untouched; the colliding source files are left
// where they are and counted.
func (m *Mirror) moveDir(src, dst string) (int, error) {
	exists, err := afero.Exists(m.fs, dst)
	if err != nil {
		return 0, errors.Wrapf(err, "could not check %s", dst)
	}

	if !exists {
		if err := m.fs.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
			return 0, errors.Wrapf(err, "could not create %s", filepath.Dir(dst))
		}
		if err := m.fs.Rename(src, dst); err != nil {
			return 0, errors.Wrapf(err, "could not move %s to %s", src, dst)
		}
		m.removeEmptyParent(src)
		return 0, nil
	}

	isDir, err := afero.IsDir(m.fs, dst)
	if err != nil {
		return 0, errors.Wrapf(err, "could not check %s", dst)
	}
	if !isDir {
		m.log.Warn().Msgf("not merging %s: %s exists and is a file", src, dst)
		return 1, nil
	}

	entries, err := afero.ReadDir(m.fs, src)
	if err != nil {
		return 0, errors.Wrapf(err, "could not read %s", src)
	}

	collisions := 0
	for _, e := range entries {
		from := filepath.Join(src, e.Name())
		to := filepath.Join(dst, e.Name())

		if e.IsDir() {
			n, err := m.moveDir(from, to)
			if err != nil {
				return collisions, err
			}
			collisions += n
			continue
		}

		taken, err := afero.Exists(m.fs, to)
		if err != nil {
			return collisions, errors.Wrapf(err, "could not check %s", to)
		}
		if taken {
			m.log.Warn().Msgf("keeping %s: %s already exists", from, to)
			collisions++
			continue
		}

		if err := m.fs.Rename(from, to); err != nil {
			return collisions, errors.Wrapf(err, "could not move %s to %s", from, to)
		}
	}

	if _, err := m.removeIfEmpty(src); err != nil {
		return collisions, err
	}
	m.removeEmptyParent(src)

	return collisions, nil
}

// removeEmptyParent drops a Vol.* folder that a move left empty.
func (m *Mirror) removeEmptyParent(path string) {
	parent := filepath.Dir(path)
	if !strings.HasPrefix(filepath.Base(parent), VolumePrefix) {
		return
	}
	if _, err := m.removeIfEmpty(parent); err != nil {
		m.log.Warn().Err(err).Msgf("could not remove %s", parent)
	}
}

func (m *Mirror) removeIfEmpty(dir string) (bool, error) {
	exists, err := afero.DirExists(m.fs, dir)
	if err != nil {
		return false, errors.Wrapf(err, "could not check %s", dir)
	}
	if !exists {
		return false, nil
	}

	empty, err := afero.IsEmpty(m.fs, dir)
	if err != nil {
		return false, errors.Wrapf(err, "could not check %s", dir)
	}
	if !empty {
		return false, nil
	}

	if err := m.fs.Remove(dir); err != nil {
		return false, errors.Wrapf(err, "could not remove %s", dir)
	}
	return true, nil
}
