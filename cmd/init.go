package cmd

var (
	configPath string

	// search
	searchLimit       int
	searchStatus      []string
	searchRating      []string
	searchDemographic []string
	searchYear        int
	searchTags        []string
	searchRandom      bool
	jsonOutput        bool

	// info
	infoLanguages []string

	// download
	languages         []string
	volumeSelection   string
	chapterSelection  string
	chapterRange      string
	chapterID         string
	groups            []string
	dataSaver         bool
	downloadDirectory string
	legacyRoots       []string
	noReconcile       bool
	quiet             bool

	// export
	exportFormat string
	naming       string
	exportOutput string
	longStrip    bool
)

func initRootFlags() {
	rootCmd.PersistentFlags().StringVarP(
		&configPath,
		"config",
		"c",
		"",
		"specifies the path to your config file",
	)
}

func initSearchFlags() {
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", 10, "maximum number of results (1-100)")
	searchCmd.Flags().StringSliceVar(&searchStatus, "status", nil, "publication status: ongoing, completed, hiatus, cancelled")
	searchCmd.Flags().StringSliceVar(&searchRating, "rating", nil, "content ratings, defaults to defaultContentRating from the config")
	searchCmd.Flags().StringSliceVar(&searchDemographic, "demographic", nil, "publication demographic: shounen, shoujo, josei, seinen")
	searchCmd.Flags().IntVar(&searchYear, "year", 0, "year of release")
	searchCmd.Flags().StringSliceVarP(&searchTags, "tag", "t", nil, "tag names every result must have")
	searchCmd.Flags().BoolVar(&searchRandom, "random", false, "show a random manga instead of searching")
	searchCmd.Flags().BoolVar(&jsonOutput, "json", false, "print results as json")
}

func initInfoFlags() {
	infoCmd.Flags().StringSliceVarP(&infoLanguages, "language", "l", nil, "only show the volume structure for these languages")
	infoCmd.Flags().BoolVar(&jsonOutput, "json", false, "print details as json")
}

func initDownloadFlags() {
	downloadCmd.Flags().StringSliceVarP(
		&languages,
		"language",
		"l",
		nil,
		"languages to download, the first one wins when a chapter exists in several. default: defaultLanguage from the config",
	)
	downloadCmd.Flags().StringVarP(
		&volumeSelection,
		"volumes",
		"v",
		"",
		"comma separated volume numbers to download, use none for chapters without a volume",
	)
	downloadCmd.Flags().StringVarP(
		&chapterSelection,
		"chapters",
		"C",
		"",
		"chapter numbers and ranges to download, e.g. 1,2.5,4-7",
	)
	downloadCmd.Flags().StringVarP(
		&chapterRange,
		"range",
		"r",
		"",
		"download the chapters numbered start to end, e.g. 10-20",
	)
	downloadCmd.Flags().StringVar(
		&chapterID,
		"chapter-id",
		"",
		"download a single chapter by its id",
	)
	downloadCmd.Flags().StringSliceVarP(
		&groups,
		"group",
		"g",
		nil,
		"preferred scanlation group ids when a chapter has several uploads",
	)
	downloadCmd.Flags().BoolVar(
		&dataSaver,
		"data-saver",
		false,
		"download compressed images",
	)
	downloadCmd.Flags().StringVarP(
		&downloadDirectory,
		"output",
		"o",
		"",
		"specifies the directory where you want to save your downloads to",
	)
	downloadCmd.Flags().StringSliceVar(
		&legacyRoots,
		"legacy-root",
		nil,
		"folder names older runs used for this manga, merged into the title folder",
	)
	downloadCmd.Flags().BoolVar(
		&noReconcile,
		"no-reconcile",
		false,
		"leave the existing folder layout alone",
	)
	downloadCmd.Flags().BoolVarP(
		&quiet,
		"quiet",
		"q",
		false,
		"only print the summary",
	)

	downloadCmd.MarkFlagsMutuallyExclusive("range", "chapters")
	downloadCmd.MarkFlagsMutuallyExclusive("range", "volumes")
	downloadCmd.MarkFlagsMutuallyExclusive("chapter-id", "range")
	downloadCmd.MarkFlagsMutuallyExclusive("chapter-id", "chapters")
	downloadCmd.MarkFlagsMutuallyExclusive("chapter-id", "volumes")
}

func initSyncFlags() {
	syncCmd.Flags().BoolVar(&dataSaver, "data-saver", false, "download compressed images for every monitored manga")
}

func initExportFlags() {
	exportCmd.Flags().StringVarP(&exportFormat, "format", "f", "cbz", "output format: cbz, pdf or epub")
	exportCmd.Flags().StringVarP(
		&naming,
		"naming",
		"n",
		"",
		"specifies the naming template you want to use for naming chapters. default: namingTemplate from the config",
	)
	exportCmd.Flags().StringVarP(&exportOutput, "out", "o", "", "output directory, defaults to the manga folder")
	exportCmd.Flags().BoolVar(&longStrip, "long-strip", false, "leave out pages whose width differs from the rest (cbz only)")
}
