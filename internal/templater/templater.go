package templater

import (
	"regexp"
	"strconv"
	"strings"

	"mangasync/internal/domain"
	"mangasync/internal/utils"
)

var templatePattern = regexp.MustCompile(`{((\w+?)(:.*?)?)}`)

// Templater renders names such as "{manga:<.>} Ch. {num:3}{title: - <.>}" for a chapter.
type Templater struct {
	MangaTitle string
	Chapter    domain.Chapter
}

func New(mangaTitle string, chapter domain.Chapter) *Templater {
	return &Templater{
		MangaTitle: mangaTitle,
		Chapter:    chapter,
	}
}

func (t *Templater) handleNum(options string) string {
	if options == "" {
		return t.Chapter.Number
	}

	length, _ := strconv.ParseInt(strings.ReplaceAll(options, ":", ""), 10, 32)
	return utils.PadNumber(t.Chapter.Number, int(length))
}

func (t *Templater) handleVolume(options string) string {
	if !t.Chapter.HasVolume() {
		return ""
	}

	if options == "" {
		return t.Chapter.Volume
	}

	cleanString := strings.TrimPrefix(options, ":")
	return strings.ReplaceAll(cleanString, "<.>", t.Chapter.Volume)
}

func (t *Templater) handleMangaTitle(options string) string {
	if t.MangaTitle == "" {
		return ""
	}

	if options == "" {
		return t.MangaTitle
	}

	cleanString := strings.ReplaceAll(options, ":", "")
	return strings.ReplaceAll(cleanString, "<.>", t.MangaTitle)
}

func (t *Templater) handleChapterTitle(options string) string {
	if t.Chapter.Title == nil || *t.Chapter.Title == "" {
		return ""
	}

	if options == "" {
		return *t.Chapter.Title
	}

	cleanString := strings.ReplaceAll(options, ":", "")
	return strings.ReplaceAll(cleanString, "<.>", *t.Chapter.Title)
}

func (t *Templater) ExecTemplate(template string) string {
	newString := template
	for _, match := range templatePattern.FindAllStringSubmatch(template, -1) {
		replace := match[0]

		varName := match[2]
		options := match[3]
		switch varName {
		case "num":
			replace = t.handleNum(options)
		case "vol":
			replace = t.handleVolume(options)
		case "lang":
			replace = t.Chapter.Language
		case "manga":
			replace = t.handleMangaTitle(options)
		case "title":
			replace = t.handleChapterTitle(options)
		}

		newString = strings.Replace(newString, match[0], replace, 1)
	}

	return newString
}
