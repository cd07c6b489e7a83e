package mangadex

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"mangasync/internal/domain"
)

// GetAuthor fetches one author or artist.
func (c *Client) GetAuthor(ctx context.Context, id string) (domain.Author, error) {
	if err := ValidateID("author", id); err != nil {
		return domain.Author{}, err
	}

	resp, err := c.getCached(ctx, "author/"+id, nil)
	if err != nil {
		return domain.Author{}, err
	}

	env, err := decode[authorEntity](resp, "author "+id)
	if err != nil {
		return domain.Author{}, err
	}

	return env.Data.toDomain()
}

// ListAuthors fetches authors by id or name.
func (c *Client) ListAuthors(ctx context.Context, ids []string, name string) ([]domain.Author, error) {
	q := url.Values{}
	setStrings(q, "ids[]", ids)
	if name != "" {
		q.Set("name", name)
	}
	q.Set("limit", strconv.Itoa(MaxSearchLimit))

	resp, err := c.getCached(ctx, "author", q)
	if err != nil {
		return nil, err
	}

	env, err := decode[[]authorEntity](resp, "author list")
	if err != nil {
		return nil, err
	}

	authors := make([]domain.Author, 0, len(env.Data))
	for _, e := range env.Data {
		a, err := e.toDomain()
		if err != nil {
			return nil, err
		}
		authors = append(authors, a)
	}
	return authors, nil
}

// GetCover fetches one cover.
func (c *Client) GetCover(ctx context.Context, id string) (domain.Cover, error) {
	if err := ValidateID("cover", id); err != nil {
		return domain.Cover{}, err
	}

	resp, err := c.getCached(ctx, "cover/"+id, nil)
	if err != nil {
		return domain.Cover{}, err
	}

	env, err := decode[coverEntity](resp, "cover "+id)
	if err != nil {
		return domain.Cover{}, err
	}

	return env.Data.toDomain()
}

// ListCovers fetches the covers of a manga ordered by volume.
func (c *Client) ListCovers(ctx context.Context, mangaID string) ([]domain.Cover, error) {
	if err := ValidateID("manga", mangaID); err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("manga[]", mangaID)
	q.Set("order[volume]", "asc")
	q.Set("limit", strconv.Itoa(MaxSearchLimit))

	resp, err := c.getCached(ctx, "cover", q)
	if err != nil {
		return nil, err
	}

	env, err := decode[[]coverEntity](resp, "cover list "+mangaID)
	if err != nil {
		return nil, err
	}

	covers := make([]domain.Cover, 0, len(env.Data))
	for _, e := range env.Data {
		cv, err := e.toDomain()
		if err != nil {
			return nil, err
		}
		if cv.MangaID == "" {
			cv.MangaID = mangaID
		}
		covers = append(covers, cv)
	}
	return covers, nil
}

// CoverURL returns the image URL of a cover. size is 0 for the original, or 256 / 512 for thumbnails.
func (c *Client) CoverURL(cover domain.Cover, size int) string {
	u := fmt.Sprintf("%s/covers/%s/%s", c.uploadsURL, cover.MangaID, cover.FileName)
	if size == 256 || size == 512 {
		u += fmt.Sprintf(".%d.jpg", size)
	}
	return u
}

// GetGroup fetches one scanlation group.
func (c *Client) GetGroup(ctx context.Context, id string) (domain.ScanlationGroup, error) {
	if err := ValidateID("scanlation group", id); err != nil {
		return domain.ScanlationGroup{}, err
	}

	resp, err := c.getCached(ctx, "group/"+id, nil)
	if err != nil {
		return domain.ScanlationGroup{}, err
	}

	env, err := decode[groupEntity](resp, "group "+id)
	if err != nil {
		return domain.ScanlationGroup{}, err
	}

	return env.Data.toDomain()
}

// ListGroups fetches scanlation groups by id or name.
func (c *Client) ListGroups(ctx context.Context, ids []string, name string) ([]domain.ScanlationGroup, error) {
	q := url.Values{}
	setStrings(q, "ids[]", ids)
	if name != "" {
		q.Set("name", name)
	}
	q.Set("limit", strconv.Itoa(MaxSearchLimit))

	resp, err := c.getCached(ctx, "group", q)
	if err != nil {
		return nil, err
	}

	env, err := decode[[]groupEntity](resp, "group list")
	if err != nil {
		return nil, err
	}

	groups := make([]domain.ScanlationGroup, 0, len(env.Data))
	for _, e := range env.Data {
		g, err := e.toDomain()
		if err != nil {
			return nil, err
		}
		groups = append(groups, g)
	}
	return groups, nil
}
