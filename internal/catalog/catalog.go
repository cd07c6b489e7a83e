package catalog

import (
	"cmp"
	"context"
	"slices"
	"strings"

	"mangasync/internal/domain"
	"mangasync/internal/mangadex"

	"github.com/rs/zerolog"
)

// FeedSource returns one page of a manga's chapter feed.
type FeedSource interface {
	Feed(ctx context.Context, mangaID string, p mangadex.FeedParams) (mangadex.ChapterPage, error)
}

// Filter selects volume or chapter labels. A nil Filter selects everything.
type Filter func(label string) bool

// Labels returns a Filter that matches the given labels. "01" matches "1".
func Labels(labels ...string) Filter {
	if len(labels) == 0 {
		return nil
	}

	set := make(map[string]struct{}, len(labels))
	for _, l := range labels {
		set[normalize(l)] = struct{}{}
	}

	return func(label string) bool {
		_, ok := set[normalize(label)]
		return ok
	}
}

func normalize(label string) string {
	if f, ok := domain.ParseLabel(label); ok {
		return domain.FormatNumber(f)
	}
	return strings.ToLower(strings.TrimSpace(label))
}

type Resolver struct {
	api      FeedSource
	pageSize int
	log      zerolog.Logger
}

func New(api FeedSource, pageSize int, log zerolog.Logger) *Resolver {
	if pageSize <= 0 {
		pageSize = mangadex.DefaultFeedLimit
	}

	return &Resolver{
		api:      api,
		pageSize: min(pageSize, mangadex.MaxFeedLimit),
		log:      log.With().Str("module", "catalog").Logger(),
	}
}

// ListChapters pages through the whole feed of a manga and returns the matching chapters in reading order.
// Duplicates from different scanlation groups are kept.
func (r *Resolver) ListChapters(ctx context.Context, mangaID string, languages []string, volumes, chapters Filter) ([]domain.Chapter, error) {
	var all []domain.Chapter

	offset := 0
	for {
		page, err := r.api.Feed(ctx, mangaID, mangadex.FeedParams{
			Languages: languages,
			Limit:     r.pageSize,
			Offset:    offset,
		})
		if err != nil {
			return nil, err
		}

		all = append(all, page.Chapters...)
		offset += len(page.Chapters)

		r.log.Trace().Str("manga", mangaID).Msgf("fetched feed page: %d/%d chapters", offset, page.Total)

		if len(page.Chapters) < r.pageSize || (page.Total > 0 && offset >= page.Total) {
			break
		}
	}

	out := make([]domain.Chapter, 0, len(all))
	for _, ch := range all {
		if volumes != nil && !volumes(ch.Volume) {
			continue
		}
		if chapters != nil && !chapters(ch.Number) {
			continue
		}
		out = append(out, ch)
	}

	Sort(out)

	r.log.Debug().Str("manga", mangaID).Msgf("found %d chapters (%d before filters)", len(out), len(all))

	return out, nil
}

// ChapterRange lists the chapters with a numeric label in [start, end].
func (r *Resolver) ChapterRange(ctx context.Context, mangaID string, start, end float64, language string) ([]domain.Chapter, error) {
	if start > end {
		return nil, domain.NewError(domain.KindValidation, "chapter range", "start %g is greater than end %g", start, end)
	}

	var languages []string
	if language != "" {
		languages = []string{language}
	}

	return r.ListChapters(ctx, mangaID, languages, nil, func(label string) bool {
		f, ok := domain.ParseLabel(label)
		return ok && f >= start && f <= end
	})
}

// Sort orders chapters by numeric chapter label, non-numeric labels last,
// then by volume label and chapter id.
func Sort(chapters []domain.Chapter) {
	slices.SortStableFunc(chapters, func(a, b domain.Chapter) int {
		if c := CompareLabels(a.Number, b.Number); c != 0 {
			return c
		}
		if c := CompareLabels(a.Volume, b.Volume); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
}

// CompareLabels compares numeric labels by value and puts non-numeric labels after them.
func CompareLabels(a, b string) int {
	fa, okA := domain.ParseLabel(a)
	fb, okB := domain.ParseLabel(b)

	switch {
	case okA && okB:
		return cmp.Compare(fa, fb)
	case okA:
		return -1
	case okB:
		return 1
	}
	return cmp.Compare(a, b)
}

// SelectVariants keeps one chapter per volume and chapter number. Preference goes
// to the preferred groups in order, then to the language order, then to the
// variant with the most pages. An upload without a volume joins the uploads of the
// same number when exactly one volume holds that number, and takes that volume.
// The result is sorted.
func SelectVariants(chapters []domain.Chapter, languages []string, preferredGroups []string) []domain.Chapter {
	rank := func(values []string, v string) int {
		if i := slices.Index(values, v); i >= 0 {
			return i
		}
		return len(values)
	}

	groupRank := func(ch domain.Chapter) int {
		best := len(preferredGroups)
		for _, g := range ch.GroupIDs {
			best = min(best, rank(preferredGroups, g))
		}
		return best
	}

	better := func(a, b domain.Chapter) bool {
		if ga, gb := groupRank(a), groupRank(b); ga != gb {
			return ga < gb
		}
		if la, lb := rank(languages, a.Language), rank(languages, b.Language); la != lb {
			return la < lb
		}
		if a.Pages != b.Pages {
			return a.Pages > b.Pages
		}
		return a.ID < b.ID
	}

	// volumes holding each numeric chapter number
	volumes := make(map[string]map[string]string)
	for _, ch := range chapters {
		if _, ok := ch.NumericNumber(); !ok || !ch.HasVolume() {
			continue
		}
		num := normalize(ch.Number)
		if volumes[num] == nil {
			volumes[num] = make(map[string]string)
		}
		volumes[num][normalize(ch.Volume)] = ch.Volume
	}

	picked := make(map[string]domain.Chapter)
	for _, ch := range chapters {
		if _, ok := ch.NumericNumber(); ok && !ch.HasVolume() {
			if vols := volumes[normalize(ch.Number)]; len(vols) == 1 {
				for _, v := range vols {
					ch.Volume = v
				}
			}
		}

		key := variantKey(ch)
		current, ok := picked[key]
		if !ok || better(ch, current) {
			picked[key] = ch
		}
	}

	out := make([]domain.Chapter, 0, len(picked))
	for _, ch := range picked {
		out = append(out, ch)
	}
	Sort(out)

	return out
}

// variantKey identifies the folder a chapter is written to.
func variantKey(ch domain.Chapter) string {
	volume := domain.VolumeNone
	if ch.HasVolume() {
		volume = normalize(ch.Volume)
	}
	return volume + "/" + normalize(ch.Number)
}
