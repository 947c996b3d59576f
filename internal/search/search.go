package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"time"

	"go.uber.org/zap"

	"github.com/duetlabs/duet/pkg/types"
)

var ErrNoResults = errors.New("no results parsed")

const maxResults = 5

// sp=EgIQAQ%3D%3D filters results to videos only.
const resultsURL = "https://www.youtube.com/results?search_query=%s&sp=EgIQAQ%%253D%%253D"

var initialDataPattern = regexp.MustCompile(`(?s)var ytInitialData = (\{.*?\});`)

// Client resolves a free-text query to a ranked list of playable media
// descriptors by scraping the public results page. There is no official
// API involved, so parsing is defensive: any missing branch in the blob
// yields fewer results, never an error.
type Client struct {
	http *http.Client
	log  *zap.Logger
}

func NewClient(timeout time.Duration, log *zap.Logger) *Client {
	return &Client{
		http: &http.Client{Timeout: timeout},
		log:  log.Named("search"),
	}
}

func (c *Client) Search(ctx context.Context, query string) ([]types.Track, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf(resultsURL, url.QueryEscape(query)), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch results: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("results page returned %s", resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("read results: %w", err)
	}

	tracks, err := parseResults(body)
	if err != nil {
		return nil, err
	}
	c.log.Debug("search resolved", zap.String("query", query), zap.Int("results", len(tracks)))
	return tracks, nil
}

// The blob is a deeply nested rendering tree; these structs name only the
// branches we walk.
type initialData struct {
	Contents struct {
		TwoColumnSearchResultsRenderer struct {
			PrimaryContents struct {
				SectionListRenderer struct {
					Contents []struct {
						ItemSectionRenderer *struct {
							Contents []struct {
								VideoRenderer *videoRenderer `json:"videoRenderer"`
							} `json:"contents"`
						} `json:"itemSectionRenderer"`
					} `json:"contents"`
				} `json:"sectionListRenderer"`
			} `json:"primaryContents"`
		} `json:"twoColumnSearchResultsRenderer"`
	} `json:"contents"`
}

type videoRenderer struct {
	VideoID string `json:"videoId"`
	Title   struct {
		Runs []struct {
			Text string `json:"text"`
		} `json:"runs"`
	} `json:"title"`
	Thumbnail struct {
		Thumbnails []struct {
			URL string `json:"url"`
		} `json:"thumbnails"`
	} `json:"thumbnail"`
	OwnerText struct {
		Runs []struct {
			Text string `json:"text"`
		} `json:"runs"`
	} `json:"ownerText"`
	LengthText struct {
		SimpleText string `json:"simpleText"`
	} `json:"lengthText"`
}

func parseResults(page []byte) ([]types.Track, error) {
	match := initialDataPattern.FindSubmatch(page)
	if match == nil {
		return nil, ErrNoResults
	}

	var data initialData
	if err := json.Unmarshal(match[1], &data); err != nil {
		return nil, fmt.Errorf("decode initial data: %w", err)
	}

	var tracks []types.Track
	for _, section := range data.Contents.TwoColumnSearchResultsRenderer.PrimaryContents.SectionListRenderer.Contents {
		if section.ItemSectionRenderer == nil {
			continue
		}
		for _, item := range section.ItemSectionRenderer.Contents {
			v := item.VideoRenderer
			if v == nil || v.VideoID == "" {
				continue
			}
			track := types.Track{
				ID:       v.VideoID,
				Duration: v.LengthText.SimpleText,
			}
			if len(v.Title.Runs) > 0 {
				track.Title = v.Title.Runs[0].Text
			}
			if len(v.OwnerText.Runs) > 0 {
				track.Author = v.OwnerText.Runs[0].Text
			}
			if len(v.Thumbnail.Thumbnails) > 0 {
				track.Thumbnail = v.Thumbnail.Thumbnails[0].URL
			}
			tracks = append(tracks, track)
			if len(tracks) >= maxResults {
				return tracks, nil
			}
		}
	}

	if len(tracks) == 0 {
		return nil, ErrNoResults
	}
	return tracks, nil
}
