package domain

type ChapterFailure struct {
	ChapterID string
	Volume    string
	Number    string
	Err       error
}

type DownloadStats struct {
	MangaID          string
	MangaTitle       string
	TotalChapters    int
	Downloaded       int
	Skipped          int
	Failed           int
	ImagesDownloaded int
	ImagesSkipped    int
	Failures         []ChapterFailure
}

// Add merges other into s. Used when a run covers more than one manga.
func (s *DownloadStats) Add(other DownloadStats) {
	s.TotalChapters += other.TotalChapters
	s.Downloaded += other.Downloaded
	s.Skipped += other.Skipped
	s.Failed += other.Failed
	s.ImagesDownloaded += other.ImagesDownloaded
	s.ImagesSkipped += other.ImagesSkipped
	s.Failures = append(s.Failures, other.Failures...)
}
