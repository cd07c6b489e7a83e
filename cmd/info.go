package cmd

import (
	"context"
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"

	"mangasync/internal/catalog"
	"mangasync/internal/domain"
	"mangasync/internal/mangadex"
	"mangasync/internal/mirror"
	"mangasync/internal/utils"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"
)

type mangaInfo struct {
	Manga         domain.Manga             `json:"manga"`
	Title         string                   `json:"title"`
	Authors       []domain.Author          `json:"authors"`
	CoverURL      string                   `json:"coverUrl,omitempty"`
	Covers        []coverInfo              `json:"covers"`
	Groups        []domain.ScanlationGroup `json:"groups"`
	Aggregate     domain.Aggregate         `json:"aggregate"`
	LocalFolder   string                   `json:"localFolder"`
	LocalChapters int                      `json:"localChapters"`
}

type coverInfo struct {
	Volume string `json:"volume"`
	URL    string `json:"url"`
}

var infoCmd = &cobra.Command{
	Use:   "info <manga-id>",
	Short: "Show details and the volume structure of a manga",
	Args: func(cmd *cobra.Command, args []string) error {
		if err := cobra.ExactArgs(1)(cmd, args); err != nil {
			return err
		}
		return mangadex.ValidateID("manga", args[0])
	},
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()

		a, err := newApp(appOptions{})
		if err != nil {
			fmt.Println("Failed to load config:", err)
			os.Exit(1)
		}
		defer a.Close()

		m, err := a.api.GetManga(ctx, args[0])
		if err != nil {
			fmt.Println("Failed to get manga:", err)
			os.Exit(1)
		}

		info := mangaInfo{Manga: m, Title: mirror.ResolveTitle(m)}

		ids := slices.Concat(m.AuthorIDs, m.ArtistIDs)
		slices.Sort(ids)
		ids = slices.Compact(ids)
		if len(ids) > 0 {
			if info.Authors, err = a.api.ListAuthors(ctx, ids, ""); err != nil {
				a.log.Warn().Err(err).Msg("could not get authors")
			}
		}

		covers, err := a.api.ListCovers(ctx, m.ID)
		if err != nil {
			a.log.Warn().Err(err).Msg("could not get covers")
		}
		for _, cover := range covers {
			url := a.api.CoverURL(cover, 0)
			info.Covers = append(info.Covers, coverInfo{Volume: cover.Volume, URL: url})
			if cover.ID == m.CoverID {
				info.CoverURL = url
			}
		}

		if info.Groups, err = chapterGroups(ctx, a, m.ID); err != nil {
			a.log.Warn().Err(err).Msg("could not get scanlation groups")
		}

		if info.Aggregate, err = a.api.Aggregate(ctx, m.ID, infoLanguages, nil); err != nil {
			fmt.Println("Failed to get volume structure:", err)
			os.Exit(1)
		}

		info.LocalFolder = a.mirror.MangaDir(mirror.FolderTitle(m))
		local, err := a.mirror.Scan(info.LocalFolder)
		if err != nil {
			a.log.Debug().Err(err).Msg("could not scan local folder")
		}
		info.LocalChapters = len(local)

		if jsonOutput {
			printJSON(info)
			return
		}

		printInfo(info)
	},
}

func printInfo(info mangaInfo) {
	m := info.Manga

	label := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("99"))
	row := func(name, value string) {
		if value != "" {
			fmt.Printf("%s %s\n", label.Render(name+":"), value)
		}
	}

	names := make([]string, 0, len(info.Authors))
	for _, author := range info.Authors {
		names = append(names, author.Name)
	}

	year := ""
	if m.Year != nil {
		year = strconv.Itoa(*m.Year)
	}

	row("Title", info.Title)
	row("ID", m.ID)
	row("Authors", strings.Join(names, ", "))
	row("Status", string(m.Status))
	row("Year", year)
	row("Demographic", m.Demographic)
	row("Rating", string(m.ContentRating))
	row("Languages", strings.Join(m.AvailableLanguages, ", "))
	row("Cover", info.CoverURL)
	row("Covers", strconv.Itoa(len(info.Covers)))
	row("Local folder", fmt.Sprintf("%s (%d chapters)", info.LocalFolder, info.LocalChapters))

	groupNames := make([]string, 0, len(info.Groups))
	for _, g := range info.Groups {
		name := g.Name
		if g.Official {
			name += " (official)"
		}
		groupNames = append(groupNames, name)
	}
	row("Groups", strings.Join(groupNames, ", "))

	if desc := m.Description["en"]; desc != "" {
		fmt.Println()
		fmt.Println(utils.Truncate(desc, 400))
	}

	fmt.Println()
	fmt.Println(volumeTable(info.Aggregate))
}

// chapterGroups returns the scanlation groups that uploaded chapters in the requested languages.
func chapterGroups(ctx context.Context, a *app, mangaID string) ([]domain.ScanlationGroup, error) {
	chapters, err := a.catalog.ListChapters(ctx, mangaID, infoLanguages, nil, nil)
	if err != nil {
		return nil, err
	}

	var ids []string
	for _, ch := range chapters {
		ids = append(ids, ch.GroupIDs...)
	}
	slices.Sort(ids)
	ids = slices.Compact(ids)

	var groups []domain.ScanlationGroup
	for chunk := range slices.Chunk(ids, mangadex.MaxSearchLimit) {
		page, err := a.api.ListGroups(ctx, chunk, "")
		if err != nil {
			return groups, err
		}
		groups = append(groups, page...)
	}

	slices.SortFunc(groups, func(x, y domain.ScanlationGroup) int {
		return strings.Compare(strings.ToLower(x.Name), strings.ToLower(y.Name))
	})
	return groups, nil
}

func volumeTable(agg domain.Aggregate) *table.Table {
	headerStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("99")).Bold(true).Align(lipgloss.Center)
	cellStyle := lipgloss.NewStyle().Padding(0, 1)

	t := table.New().
		Border(lipgloss.HiddenBorder()).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		}).
		Headers("Volume", "Chapters", "First", "Last")

	volumes := make([]string, 0, len(agg.Volumes))
	for v := range agg.Volumes {
		volumes = append(volumes, v)
	}
	slices.SortFunc(volumes, catalog.CompareLabels)

	for _, v := range volumes {
		vol := agg.Volumes[v]

		chapters := make([]string, 0, len(vol.Chapters))
		for c := range vol.Chapters {
			chapters = append(chapters, c)
		}
		slices.SortFunc(chapters, catalog.CompareLabels)

		first, last := "", ""
		if len(chapters) > 0 {
			first, last = chapters[0], chapters[len(chapters)-1]
		}

		t.Row(v, strconv.Itoa(len(chapters)), first, last)
	}

	return t
}
