package domain

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// VolumeNone is the label of chapters that belong to no volume.
// It is also used for chapters that carry no number.
const VolumeNone = "none"

type Status string

const (
	StatusOngoing   Status = "ongoing"
	StatusCompleted Status = "completed"
	StatusHiatus    Status = "hiatus"
	StatusCancelled Status = "cancelled"
)

type ContentRating string

const (
	ContentRatingSafe         ContentRating = "safe"
	ContentRatingSuggestive   ContentRating = "suggestive"
	ContentRatingErotica      ContentRating = "erotica"
	ContentRatingPornographic ContentRating = "pornographic"
)

// AllContentRatings is sent on feed requests so that no chapter is hidden by the
// API's default rating filter.
var AllContentRatings = []ContentRating{
	ContentRatingSafe,
	ContentRatingSuggestive,
	ContentRatingErotica,
	ContentRatingPornographic,
}

type Tag struct {
	ID    string
	Name  map[string]string
	Group string
}

type Manga struct {
	ID                 string
	Title              map[string]string
	AltTitles          []map[string]string
	Description        map[string]string
	Status             Status
	ContentRating      ContentRating
	Demographic        string
	OriginalLanguage   string
	Year               *int
	LastVolume         string
	LastChapter        string
	AvailableLanguages []string
	Tags               []Tag
	AuthorIDs          []string
	ArtistIDs          []string
	CoverID            string
}

type Chapter struct {
	ID          string
	MangaID     string
	Volume      string
	Number      string
	Title       *string
	Language    string
	Pages       int
	GroupIDs    []string
	ExternalURL string
	PublishAt   time.Time
}

// HasVolume reports whether the chapter is placed inside a volume folder.
func (c Chapter) HasVolume() bool {
	return c.Volume != "" && !strings.EqualFold(c.Volume, VolumeNone)
}

// NumericNumber returns the chapter number as a float when the label is numeric.
func (c Chapter) NumericNumber() (float64, bool) {
	return ParseLabel(c.Number)
}

// ParseLabel parses a volume or chapter label. NaN and infinities are not numbers here.
func ParseLabel(label string) (float64, bool) {
	f, err := strconv.ParseFloat(strings.TrimSpace(label), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// NormalizeLabel maps missing volume and chapter labels to VolumeNone.
func NormalizeLabel(label *string) string {
	if label == nil {
		return VolumeNone
	}
	l := strings.TrimSpace(*label)
	switch strings.ToLower(l) {
	case "", "none", "null":
		return VolumeNone
	}
	return l
}

type ImageManifest struct {
	ChapterID string
	BaseURL   string
	Hash      string
	Data      []string
	DataSaver []string
}

// Files returns the page file names for the requested quality.
func (m ImageManifest) Files(dataSaver bool) []string {
	if dataSaver {
		return m.DataSaver
	}
	return m.Data
}

type LocalChapterFolder struct {
	Path   string
	Volume string
	Number string
	Pages  map[int]string
}

type Author struct {
	ID        string
	Name      string
	Biography map[string]string
	Twitter   string
	Website   string
}

type Cover struct {
	ID          string
	MangaID     string
	FileName    string
	Volume      string
	Locale      string
	Description string
}

type ScanlationGroup struct {
	ID          string
	Name        string
	Website     string
	Description string
	Official    bool
}

// Aggregate maps volume labels to the chapters the API knows for them.
type Aggregate struct {
	Volumes map[string]AggregateVolume
}

type AggregateVolume struct {
	Volume   string
	Count    int
	Chapters map[string]AggregateChapter
}

type AggregateChapter struct {
	Chapter string
	ID      string
	Others  []string
	Count   int
}

// FormatNumber prints a numeric label without trailing zeros.
func FormatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
