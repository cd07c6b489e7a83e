package cmd

import (
	"testing"
	"time"

	"mangasync/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDownloadRequest(t *testing.T) {
	volumeSelection, chapterSelection = "1, none", "1,2.5,4-7"
	groups, legacyRoots = []string{"g1"}, []string{"ja"}
	t.Cleanup(func() {
		volumeSelection, chapterSelection = "", ""
		groups, legacyRoots = nil, nil
	})

	req, err := downloadRequest("manga-id", []string{"en"}, true)
	require.NoError(t, err)

	assert.Equal(t, "manga-id", req.MangaID)
	assert.Equal(t, []string{"en"}, req.Languages)
	assert.True(t, req.DataSaver)
	assert.Equal(t, []string{"g1"}, req.Groups)
	assert.Equal(t, []string{"ja"}, req.LegacyRoots)

	require.NotNil(t, req.Volumes)
	assert.True(t, req.Volumes("01"))
	assert.True(t, req.Volumes("none"))
	assert.False(t, req.Volumes("2"))

	require.NotNil(t, req.Chapters)
	assert.True(t, req.Chapters("2.5"))
	assert.True(t, req.Chapters("5"))
	assert.False(t, req.Chapters("3"))
	assert.False(t, req.Chapters("none"))
}

func TestDownloadRequest_EmptySelectionSelectsEverything(t *testing.T) {
	req, err := downloadRequest("manga-id", nil, false)
	require.NoError(t, err)

	assert.Nil(t, req.Volumes)
	assert.Nil(t, req.Chapters)
}

func TestDownloadRequest_InvalidChapters(t *testing.T) {
	chapterSelection = "7-3"
	t.Cleanup(func() { chapterSelection = "" })

	_, err := downloadRequest("manga-id", nil, false)
	assert.Error(t, err)
}

func TestChapterName(t *testing.T) {
	ch := domain.LocalChapterFolder{Volume: "2", Number: "7.5"}
	assert.Equal(t, "Silent Witch Vol. 2 Ch. 007.5", chapterName("Silent Witch", ch, "{manga} {vol:Vol. <.> }Ch. {num:3}"))

	ch = domain.LocalChapterFolder{Volume: domain.VolumeNone, Number: "12"}
	assert.Equal(t, "Silent Witch Ch. 012", chapterName("Silent Witch", ch, "{manga} {vol:Vol. <.> }Ch. {num:3}"))
}

func TestCheckInterval(t *testing.T) {
	assert.Equal(t, 15*time.Minute, checkInterval(15))
	assert.Equal(t, time.Hour, checkInterval(0))
}
