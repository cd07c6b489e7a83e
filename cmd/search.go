package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"mangasync/internal/domain"
	"mangasync/internal/mangadex"
	"mangasync/internal/mirror"
	"mangasync/internal/utils"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"
)

var searchCmd = &cobra.Command{
	Use:   "search [title]",
	Short: "Search for manga on MangaDex",
	Long:  "Search for manga on MangaDex and display the results in a table. Use the id column with the info and download commands.",
	Args: func(cmd *cobra.Command, args []string) error {
		if searchRandom {
			return cobra.NoArgs(cmd, args)
		}
		return cobra.MinimumNArgs(1)(cmd, args)
	},
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()

		a, err := newApp(appOptions{})
		if err != nil {
			fmt.Println("Failed to load config:", err)
			os.Exit(1)
		}
		defer a.Close()

		ratings := searchRating
		if len(ratings) == 0 {
			ratings = a.cfg.Config.DefaultContentRating
		}

		var results []domain.Manga

		if searchRandom {
			m, err := a.api.RandomManga(ctx, ratings)
			if err != nil {
				fmt.Println("Failed to get a random manga:", err)
				os.Exit(1)
			}
			results = append(results, m)
		} else {
			tagIDs, err := a.api.ResolveTags(ctx, searchTags)
			if err != nil {
				fmt.Println("Invalid tag:", err)
				os.Exit(1)
			}

			res, err := a.api.Search(ctx, mangadex.SearchParams{
				Title:          strings.Join(args, " "),
				Limit:          searchLimit,
				ContentRatings: ratings,
				Status:         searchStatus,
				Demographics:   searchDemographic,
				IncludedTags:   tagIDs,
				Year:           searchYear,
			})
			if err != nil {
				fmt.Println("Search failed:", err)
				os.Exit(1)
			}
			results = res.Manga
		}

		if jsonOutput {
			printJSON(results)
			return
		}

		if len(results) == 0 {
			fmt.Println("No results found.")
			return
		}

		fmt.Println(mangaTable(results))
	},
}

func mangaTable(results []domain.Manga) *table.Table {
	var (
		purple = lipgloss.Color("99")

		headerStyle = lipgloss.NewStyle().Foreground(purple).Bold(true).Align(lipgloss.Center)
		cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	)

	t := table.New().
		Border(lipgloss.HiddenBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(purple)).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		}).
		Headers("#", "Title", "Status", "Year", "Last Ch.", "ID")

	for i, m := range results {
		year := ""
		if m.Year != nil {
			year = strconv.Itoa(*m.Year)
		}

		t.Row(
			strconv.Itoa(i+1),
			utils.Truncate(mirror.ResolveTitle(m), 50),
			string(m.Status),
			year,
			m.LastChapter,
			m.ID,
		)
	}

	return t
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Println("Failed to encode json:", err)
		os.Exit(1)
	}
}
