package jellyfin

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"
)

// Item kinds as reported in the Type field.
const (
	KindMovie   = "Movie"
	KindSeries  = "Series"
	KindSeason  = "Season"
	KindEpisode = "Episode"
)

// Item is the subset of a Jellyfin BaseItemDto the engine uses.
type Item struct {
	ID                string            `json:"Id"`
	ServerID          string            `json:"ServerId"`
	Name              string            `json:"Name"`
	Type              string            `json:"Type"`
	ProductionYear    int               `json:"ProductionYear"`
	SeriesName        string            `json:"SeriesName"`
	SeriesID          string            `json:"SeriesId"`
	SeasonID          string            `json:"SeasonId"`
	ParentID          string            `json:"ParentId"`
	IndexNumber       *int              `json:"IndexNumber"`
	ParentIndexNumber *int              `json:"ParentIndexNumber"`
	Etag              string            `json:"Etag"`
	ImageTags         map[string]string `json:"ImageTags"`
	BackdropImageTags []string          `json:"BackdropImageTags"`
	MediaSources      []MediaSource     `json:"MediaSources"`
}

// MediaSource describes one playable file of an item.
type MediaSource struct {
	ID           string        `json:"Id"`
	Container    string        `json:"Container"`
	Size         int64         `json:"Size"`
	Path         string        `json:"Path"`
	MediaStreams []MediaStream `json:"MediaStreams"`
}

// MediaStream describes one stream within a media source.
type MediaStream struct {
	Type                 string `json:"Type"`
	Index                int    `json:"Index"`
	Codec                string `json:"Codec"`
	Language             string `json:"Language"`
	Title                string `json:"Title"`
	IsExternal           bool   `json:"IsExternal"`
	IsTextSubtitleStream bool   `json:"IsTextSubtitleStream"`
	IsForced             bool   `json:"IsForced"`
}

type itemsResponse struct {
	Items            []Item `json:"Items"`
	TotalRecordCount int    `json:"TotalRecordCount"`
}

// GetItem fetches one item as seen by the configured user.
func (c *Client) GetItem(ctx context.Context, id string) (*Item, error) {
	raw, err := c.GetItemRaw(ctx, id)
	if err != nil {
		return nil, err
	}
	var item Item
	if err := json.Unmarshal(raw, &item); err != nil {
		return nil, classifyDecode("get item", err)
	}
	return &item, nil
}

// GetItemRaw returns the item document exactly as the server sent it.
func (c *Client) GetItemRaw(ctx context.Context, id string) (json.RawMessage, error) {
	return c.getRaw(ctx, "get item", c.itemPath(id), nil)
}

// Search runs a recursive text search limited to the given item types. An
// empty term lists the library.
func (c *Client) Search(ctx context.Context, term string, types []string) ([]Item, error) {
	query := url.Values{}
	query.Set("userId", c.userID)
	query.Set("recursive", "true")
	if len(types) > 0 {
		query.Set("includeItemTypes", strings.Join(types, ","))
	}
	if term = strings.TrimSpace(term); term != "" {
		query.Set("searchTerm", term)
	} else {
		query.Set("sortBy", "SortName")
	}
	var resp itemsResponse
	if err := c.getJSON(ctx, "search", "/Items", query, &resp); err != nil {
		return nil, err
	}
	return resp.Items, nil
}

// Seasons lists the seasons of a series.
func (c *Client) Seasons(ctx context.Context, seriesID string) ([]Item, error) {
	query := url.Values{}
	query.Set("userId", c.userID)
	var resp itemsResponse
	if err := c.getJSON(ctx, "list seasons", "/Shows/"+url.PathEscape(seriesID)+"/Seasons", query, &resp); err != nil {
		return nil, err
	}
	return resp.Items, nil
}

// Episodes lists the episodes of one season of a series.
func (c *Client) Episodes(ctx context.Context, seriesID, seasonID string) ([]Item, error) {
	query := url.Values{}
	query.Set("userId", c.userID)
	query.Set("seasonId", seasonID)
	var resp itemsResponse
	if err := c.getJSON(ctx, "list episodes", "/Shows/"+url.PathEscape(seriesID)+"/Episodes", query, &resp); err != nil {
		return nil, err
	}
	return resp.Items, nil
}

// SystemInfo identifies the server.
type SystemInfo struct {
	ID         string `json:"Id"`
	ServerName string `json:"ServerName"`
	Version    string `json:"Version"`
}

// Ping checks reachability and credentials in one authenticated call.
func (c *Client) Ping(ctx context.Context) (*SystemInfo, error) {
	var info SystemInfo
	if err := c.getJSON(ctx, "system info", "/System/Info", nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

func (c *Client) itemPath(id string) string {
	return "/Users/" + url.PathEscape(c.userID) + "/Items/" + url.PathEscape(id)
}
