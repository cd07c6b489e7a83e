package cmd

import (
	"cmp"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"mangasync/internal/catalog"
	"mangasync/internal/domain"
	"mangasync/internal/files"
	"mangasync/internal/sanitize"
	"mangasync/internal/templater"

	"github.com/spf13/cobra"
)

var exportCmd = &cobra.Command{
	Use:   "export <manga-folder>",
	Short: "Pack downloaded chapters into cbz, pdf or epub files",
	Long: `Pack the downloaded chapters of a manga into one cbz or pdf file per chapter,
or into a single epub file for the whole manga.

<manga-folder> is either a path or the name of a folder inside the download location.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		a, err := newApp(appOptions{})
		if err != nil {
			fmt.Println("Failed to load config:", err)
			os.Exit(1)
		}
		defer a.Close()

		mangaDir := args[0]
		if err := files.IsValidLocation(mangaDir); err != nil {
			mangaDir = a.mirror.MangaDir(args[0])
			if err := files.IsValidLocation(mangaDir); err != nil {
				fmt.Println("Invalid manga folder:", err)
				os.Exit(1)
			}
		}

		title := filepath.Base(filepath.Clean(mangaDir))

		outDir := exportOutput
		if outDir == "" {
			outDir = mangaDir
		}

		template := naming
		if template == "" {
			template = a.cfg.Config.NamingTemplate
		}

		local, err := a.mirror.Scan(mangaDir)
		if err != nil {
			fmt.Println("Failed to read manga folder:", err)
			os.Exit(1)
		}
		if len(local) == 0 {
			fmt.Println("No chapters found in", mangaDir)
			os.Exit(1)
		}

		slices.SortFunc(local, func(x, y domain.LocalChapterFolder) int {
			return cmp.Or(
				catalog.CompareLabels(x.Number, y.Number),
				catalog.CompareLabels(x.Volume, y.Volume),
			)
		})

		if exportFormat == "epub" {
			chapters := make([]files.EpubChapter, 0, len(local))
			for _, ch := range local {
				chapters = append(chapters, files.EpubChapter{Title: chapterName(title, ch, template), Dir: ch.Path})
			}

			epubPath := filepath.Join(outDir, sanitize.FilenameOr(title, "manga")+".epub")
			if err := a.exporter.CreateEPUB(files.EpubMeta{Title: title}, chapters, epubPath); err != nil {
				fmt.Println("Failed to create epub:", err)
				os.Exit(1)
			}

			fmt.Println("Created", epubPath)
			return
		}

		failed := 0
		for _, ch := range local {
			name := chapterName(title, ch, template)
			contentPath := filepath.Join(outDir, sanitize.FilenameOr(name, "chapter")+"."+exportFormat)

			if _, err := os.Stat(contentPath); err == nil {
				a.log.Debug().Msgf("%s already exists, skipping", contentPath)
				continue
			}

			switch exportFormat {
			case "cbz":
				err = a.exporter.CreateCbzArchive(ch.Path, contentPath, longStrip)
			case "pdf":
				err = a.exporter.CreatePDF(ch.Path, contentPath)
			default:
				fmt.Println("Invalid format:", exportFormat)
				os.Exit(1)
			}

			if err != nil {
				a.log.Error().Err(err).Msgf("failed to export %q", name)
				failed++
				continue
			}

			fmt.Println("Created", contentPath)
		}

		if failed > 0 {
			os.Exit(1)
		}
	},
}

func chapterName(title string, ch domain.LocalChapterFolder, template string) string {
	t := templater.New(title, domain.Chapter{Volume: ch.Volume, Number: ch.Number})
	return t.ExecTemplate(template)
}
