package jellyfin

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// Stream is an open content response.
type Stream struct {
	Body io.ReadCloser
	// Offset is the byte position of the first body byte. It is zero when the
	// server ignored the requested range.
	Offset int64
	// Length is the number of body bytes, or -1 when unknown.
	Length int64
	// Total is the full resource size, or -1 when unknown.
	Total int64
}

// Open starts a GET for rawURL. A positive offset requests the remaining
// bytes with a Range header; servers without range support answer with the
// whole resource, which callers detect through Stream.Offset. A 416 answer, or
// a 206 whose Content-Range does not start at offset, is retried once without
// the range.
func (c *Client) Open(ctx context.Context, rawURL string, offset int64) (*Stream, error) {
	const op = "open stream"
	if offset < 0 {
		offset = 0
	}
	req, err := c.newRequest(ctx, op, rawURL)
	if err != nil {
		return nil, err
	}
	if offset > 0 {
		req.Header.Set("Range", "bytes="+strconv.FormatInt(offset, 10)+"-")
	}

	resp, err := c.stream.Do(req)
	if err != nil {
		return nil, classifyTransportError(op, err)
	}

	switch {
	case resp.StatusCode == http.StatusPartialContent && offset > 0:
		start, total, ok := parseContentRange(resp.Header.Get("Content-Range"))
		if !ok || start != offset {
			_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
			resp.Body.Close()
			return c.Open(ctx, rawURL, 0)
		}
		return &Stream{Body: resp.Body, Offset: start, Length: resp.ContentLength, Total: total}, nil
	case resp.StatusCode == http.StatusRequestedRangeNotSatisfiable && offset > 0:
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
		resp.Body.Close()
		return c.Open(ctx, rawURL, 0)
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return &Stream{Body: resp.Body, Offset: 0, Length: resp.ContentLength, Total: resp.ContentLength}, nil
	default:
		defer resp.Body.Close()
		return nil, checkStatus(op, resp)
	}
}

// DownloadURL is the original file of an item.
func (c *Client) DownloadURL(itemID string) string {
	return c.endpoint("/Items/"+url.PathEscape(itemID)+"/Download", nil)
}

// SubtitleURL is an external subtitle stream rendered in format.
func (c *Client) SubtitleURL(itemID, sourceID string, index int, format string) string {
	return c.endpoint(fmt.Sprintf("/Videos/%s/%s/Subtitles/%d/Stream.%s",
		url.PathEscape(itemID), url.PathEscape(sourceID), index, url.PathEscape(format)), nil)
}

// ImageURL is an item image. Backdrops are addressed by index.
func (c *Client) ImageURL(itemID, imageType string, index int, tag string) string {
	path := "/Items/" + url.PathEscape(itemID) + "/Images/" + url.PathEscape(imageType)
	if imageType == "Backdrop" {
		path += "/" + strconv.Itoa(index)
	}
	var query url.Values
	if tag != "" {
		query = url.Values{"tag": {tag}}
	}
	return c.endpoint(path, query)
}

// ItemURL is the user-scoped item document.
func (c *Client) ItemURL(itemID string) string {
	return c.endpoint(c.itemPath(itemID), nil)
}

// parseContentRange reads "bytes start-end/total". Total is -1 when the server
// sends "*".
func parseContentRange(value string) (start, total int64, ok bool) {
	value = strings.TrimSpace(value)
	rest, found := strings.CutPrefix(value, "bytes ")
	if !found {
		return 0, 0, false
	}
	span, size, found := strings.Cut(rest, "/")
	if !found {
		return 0, 0, false
	}
	first, _, found := strings.Cut(span, "-")
	if !found {
		return 0, 0, false
	}
	start, err := strconv.ParseInt(first, 10, 64)
	if err != nil || start < 0 {
		return 0, 0, false
	}
	total = -1
	if size != "*" {
		if total, err = strconv.ParseInt(size, 10, 64); err != nil {
			return 0, 0, false
		}
	}
	return start, total, true
}
