package sources

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/goccy/go-json"

	"github.com/nyxmedia/grobber/internal/grerr"
	"github.com/nyxmedia/grobber/internal/media"
	"github.com/nyxmedia/grobber/internal/textsim"
	"github.com/nyxmedia/grobber/internal/uid"
)

func init() {
	Default.Register(&MasterAnime{httpClient: &http.Client{}})
}

const masterAnimeBase = "https://www.masterani.me"

// MasterAnime talks to a JSON API (search/filter, detailed) rather
// than scraping HTML, with episode mirror metadata embedding an
// embed-url template per host.
type MasterAnime struct {
	httpClient *http.Client
}

func (m *MasterAnime) ID() string { return "masteranime" }

type masterSearchEntry struct {
	ID    int    `json:"id"`
	Slug  string `json:"slug"`
	Title string `json:"title"`
}

type masterSearchResponse struct {
	Data []masterSearchEntry `json:"data"`
}

func (m *MasterAnime) Search(ctx context.Context, query, language string, dubbed bool) (<-chan media.SearchHit, error) {
	out := make(chan media.SearchHit)
	if language != "en" {
		close(out)
		return out, nil
	}

	go func() {
		defer close(out)
		searchURL := masterAnimeBase + "/api/anime/filter?" + url.Values{"q": {query}}.Encode()
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL, nil)
		if err != nil {
			return
		}
		resp, err := m.httpClient.Do(req)
		if err != nil {
			return
		}
		defer resp.Body.Close()

		var parsed masterSearchResponse
		if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
			return
		}
		for _, entry := range parsed.Data {
			med := media.Medium{
				MediumType: uid.Anime,
				MediumID:   uid.Normalize(entry.Title),
				Source:     m.ID(),
				Language:   "en",
				Dubbed:     false,
				Title:      entry.Title,
				Href:       fmt.Sprintf("%s/api/anime/%d/detailed", masterAnimeBase, entry.ID),
			}
			med.UID = uid.Create(med.MediumType, med.MediumID, med.Source, med.Language, med.Dubbed)
			select {
			case out <- media.SearchHit{Medium: med, Certainty: textsim.Ratio(query, entry.Title)}:
			case <-ctx.Done():
			}
		}
	}()
	return out, nil
}

type masterMirrorHost struct {
	EmbedPrefix string `json:"embed_prefix"`
	EmbedSuffix string `json:"embed_suffix"`
}

type masterMirror struct {
	Host    masterMirrorHost `json:"host"`
	EmbedID string           `json:"embed_id"`
}

type masterEpisodeEntry struct {
	Episode int            `json:"episode"`
	Mirrors []masterMirror `json:"mirrors"`
}

type masterDetailedResponse struct {
	Episodes []masterEpisodeEntry `json:"episodes"`
}

func (m *MasterAnime) GetEpisodes(ctx context.Context, med media.Medium) (map[int]media.Episode, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, med.Href, nil)
	if err != nil {
		return nil, grerr.Wrap(grerr.ExtractError, err, "masteranime: build request")
	}
	resp, err := m.httpClient.Do(req)
	if err != nil {
		return nil, grerr.Wrap(grerr.ExtractError, err, "masteranime: fetch detailed")
	}
	defer resp.Body.Close()

	var parsed masterDetailedResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, grerr.Wrap(grerr.ExtractError, err, "masteranime: parse detailed")
	}

	episodes := map[int]media.Episode{}
	for _, entry := range parsed.Episodes {
		var links []string
		for _, mirror := range entry.Mirrors {
			links = append(links, mirror.Host.EmbedPrefix+mirror.EmbedID+mirror.Host.EmbedSuffix)
		}
		idx := entry.Episode - 1
		episodes[idx] = media.Episode{Index: idx, RawStreams: links}
	}
	return episodes, nil
}

func (m *MasterAnime) GetEpisode(ctx context.Context, med media.Medium, index int) (media.Episode, error) {
	episodes, err := m.GetEpisodes(ctx, med)
	if err != nil {
		return media.Episode{}, err
	}
	ep, ok := episodes[index]
	if !ok {
		return media.Episode{}, grerr.New(grerr.EpisodeNotFound, fmt.Sprintf("episode %d not found", index))
	}
	return ep, nil
}
