package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "mangasync",
	Short: "Search, download and keep local mirrors of MangaDex manga up to date.",
	Long: `Search, download and keep local mirrors of MangaDex manga up to date.

Chapters are stored as <download location>/<Title>/Vol.<volume>/Ch.<chapter>/NNN.<ext>.
Running a download again only fetches missing pages and moves existing folders
when the volume of a chapter changed upstream.

Provide a configuration file using one of the following methods:
1. Use the --config <path> or -c <path> flag.
2. Place a config.yaml file in the default user configuration directory (e.g., ~/.config/mangasync/).
3. Place a config.yaml file a folder inside your home directory (e.g., ~/.mangasync/).
4. Place a config.yaml file in the directory of the binary.

Every config value can be overridden with a MANGASYNC__<KEY> environment variable or a .env file.`,
	SilenceUsage: true,
}

func init() {
	initRootFlags()
	initSearchFlags()
	initInfoFlags()
	initDownloadFlags()
	initSyncFlags()
	initExportFlags()

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(infoCmd)
	rootCmd.AddCommand(downloadCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(exportCmd)
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}
