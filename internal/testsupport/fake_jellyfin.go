package testsupport

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"jellysync/internal/config"
	"jellysync/internal/services/jellyfin"
)

const (
	FakeUserID = "fakeuser"
	FakeToken  = "fake-token"
)

type fakeItem struct {
	item      jellyfin.Item
	content   []byte
	subtitles map[int][]byte
	images    map[string][]byte
	revision  int
}

type fakeFault struct {
	status       int
	interruptAt  int64
	remaining    int
	isInterrupts bool
}

// FakeJellyfin is an in-process Jellyfin server covering the endpoints the
// client uses. Content endpoints honour Range requests through
// http.ServeContent unless range support is switched off.
type FakeJellyfin struct {
	t      testing.TB
	server *httptest.Server

	mu       sync.Mutex
	items    map[string]*fakeItem
	token    string
	noRange  bool
	faults   map[string]*fakeFault
	requests map[string]int
	ranges   map[string][]string
}

// NewFakeJellyfin starts a fake server that is closed at test cleanup.
func NewFakeJellyfin(t testing.TB) *FakeJellyfin {
	t.Helper()

	f := &FakeJellyfin{
		t:        t,
		items:    map[string]*fakeItem{},
		token:    FakeToken,
		faults:   map[string]*fakeFault{},
		requests: map[string]int{},
		ranges:   map[string][]string{},
	}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /System/Info", f.handleSystemInfo)
	mux.HandleFunc("GET /Users/{user}/Items/{id}", f.handleItem)
	mux.HandleFunc("GET /Items", f.handleSearch)
	mux.HandleFunc("GET /Shows/{id}/Seasons", f.handleSeasons)
	mux.HandleFunc("GET /Shows/{id}/Episodes", f.handleEpisodes)
	mux.HandleFunc("GET /Items/{id}/Download", f.handleDownload)
	mux.HandleFunc("GET /Videos/{id}/{source}/Subtitles/{index}/{file}", f.handleSubtitle)
	mux.HandleFunc("GET /Items/{id}/Images/{kind}", f.handleImage)
	mux.HandleFunc("GET /Items/{id}/Images/{kind}/{index}", f.handleImage)

	f.server = httptest.NewServer(f.wrap(mux))
	t.Cleanup(f.server.Close)
	return f
}

// URL returns the base URL of the fake server.
func (f *FakeJellyfin) URL() string { return f.server.URL }

// Server returns a resolved server profile pointing at the fake.
func (f *FakeJellyfin) Server() config.Server {
	return config.Server{Name: "fake", URL: f.server.URL, UserID: FakeUserID, Token: FakeToken}
}

// Client returns a jellyfin client bound to the fake.
func (f *FakeJellyfin) Client() *jellyfin.Client {
	f.t.Helper()
	client, err := jellyfin.New(f.Server(), 5*time.Second)
	if err != nil {
		f.t.Fatalf("jellyfin.New: %v", err)
	}
	return client
}

// AddMovie registers a movie whose downloadable file is content.
func (f *FakeJellyfin) AddMovie(id, name string, year int, content []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items[id] = &fakeItem{
		item: jellyfin.Item{
			ID: id, Name: name, Type: jellyfin.KindMovie, ProductionYear: year,
			MediaSources: []jellyfin.MediaSource{{ID: id, Container: "mkv", Size: int64(len(content))}},
		},
		content: content,
	}
	f.bumpLocked(id)
}

// AddPlaceholder registers a movie without any media source.
func (f *FakeJellyfin) AddPlaceholder(id, name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items[id] = &fakeItem{item: jellyfin.Item{ID: id, Name: name, Type: jellyfin.KindMovie}}
	f.bumpLocked(id)
}

// AddSeries registers a series container.
func (f *FakeJellyfin) AddSeries(id, name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items[id] = &fakeItem{item: jellyfin.Item{ID: id, Name: name, Type: jellyfin.KindSeries}}
	f.bumpLocked(id)
}

// AddSeason registers a season of seriesID.
func (f *FakeJellyfin) AddSeason(id, seriesID string, number int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	series := f.items[seriesID]
	seriesName := ""
	if series != nil {
		seriesName = series.item.Name
	}
	n := number
	f.items[id] = &fakeItem{item: jellyfin.Item{
		ID: id, Name: fmt.Sprintf("Season %d", number), Type: jellyfin.KindSeason,
		SeriesID: seriesID, SeriesName: seriesName, IndexNumber: &n,
	}}
	f.bumpLocked(id)
}

// AddEpisode registers an episode of a season.
func (f *FakeJellyfin) AddEpisode(id, seriesID, seasonID string, season, episode int, name string, content []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	seriesName := ""
	if series := f.items[seriesID]; series != nil {
		seriesName = series.item.Name
	}
	s, e := season, episode
	f.items[id] = &fakeItem{
		item: jellyfin.Item{
			ID: id, Name: name, Type: jellyfin.KindEpisode,
			SeriesID: seriesID, SeriesName: seriesName, SeasonID: seasonID,
			ParentIndexNumber: &s, IndexNumber: &e,
			MediaSources: []jellyfin.MediaSource{{ID: id, Container: "mkv", Size: int64(len(content))}},
		},
		content: content,
	}
	f.bumpLocked(id)
}

// AddSubtitle attaches an external text subtitle stream to an item.
func (f *FakeJellyfin) AddSubtitle(itemID string, index int, language, codec string, content []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	it := f.mustItemLocked(itemID)
	if len(it.item.MediaSources) == 0 {
		f.t.Fatalf("fake jellyfin: item %s has no media source", itemID)
	}
	src := &it.item.MediaSources[0]
	src.MediaStreams = append(src.MediaStreams, jellyfin.MediaStream{
		Type: "Subtitle", Index: index, Codec: codec, Language: language,
		IsExternal: true, IsTextSubtitleStream: true,
	})
	if it.subtitles == nil {
		it.subtitles = map[int][]byte{}
	}
	it.subtitles[index] = content
	f.bumpLocked(itemID)
}

// AddImage attaches a Primary or Backdrop image to an item.
func (f *FakeJellyfin) AddImage(itemID, kind, tag string, content []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	it := f.mustItemLocked(itemID)
	switch kind {
	case "Backdrop":
		it.item.BackdropImageTags = append(it.item.BackdropImageTags, tag)
	default:
		if it.item.ImageTags == nil {
			it.item.ImageTags = map[string]string{}
		}
		it.item.ImageTags[kind] = tag
	}
	if it.images == nil {
		it.images = map[string][]byte{}
	}
	it.images[kind] = content
}

// SetContent replaces an item's media file, as if it was re-encoded remotely.
func (f *FakeJellyfin) SetContent(itemID string, content []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	it := f.mustItemLocked(itemID)
	it.content = content
	it.item.MediaSources[0].Size = int64(len(content))
	f.bumpLocked(itemID)
}

// Rename changes an item's title, as if it was edited in the server UI.
func (f *FakeJellyfin) Rename(itemID, name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mustItemLocked(itemID).item.Name = name
	f.bumpLocked(itemID)
}

// Remove deletes an item from the fake library.
func (f *FakeJellyfin) Remove(itemID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.items, itemID)
}

// SetRangeSupport toggles Range handling on content endpoints.
func (f *FakeJellyfin) SetRangeSupport(enabled bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.noRange = !enabled
}

// SetToken changes the token the fake accepts.
func (f *FakeJellyfin) SetToken(token string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.token = token
}

// InterruptAfter makes the next times requests for path drop the connection
// after n body bytes were sent.
func (f *FakeJellyfin) InterruptAfter(path string, n int64, times int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.faults[path] = &fakeFault{interruptAt: n, remaining: times, isInterrupts: true}
}

// FailNext makes the next times requests for path answer with status.
func (f *FakeJellyfin) FailNext(path string, status, times int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.faults[path] = &fakeFault{status: status, remaining: times}
}

// Requests reports how many requests reached path.
func (f *FakeJellyfin) Requests(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[path]
}

// Ranges returns the Range headers seen for path, "" for requests without one.
func (f *FakeJellyfin) Ranges(path string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.ranges[path]...)
}

func (f *FakeJellyfin) mustItemLocked(id string) *fakeItem {
	it, ok := f.items[id]
	if !ok {
		f.t.Fatalf("fake jellyfin: unknown item %s", id)
	}
	return it
}

func (f *FakeJellyfin) bumpLocked(id string) {
	it := f.items[id]
	it.revision++
	it.item.Etag = "etag-" + strconv.Itoa(it.revision)
}

func (f *FakeJellyfin) wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.requests[r.URL.Path]++
		f.ranges[r.URL.Path] = append(f.ranges[r.URL.Path], r.Header.Get("Range"))
		token := f.token
		fault := f.faults[r.URL.Path]
		var active *fakeFault
		if fault != nil && fault.remaining > 0 {
			fault.remaining--
			copied := *fault
			active = &copied
		}
		f.mu.Unlock()

		if r.Header.Get("X-Emby-Token") != token {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		if active != nil && !active.isInterrupts {
			http.Error(w, "injected failure", active.status)
			return
		}
		if active != nil {
			w = &interruptingWriter{ResponseWriter: w, remaining: active.interruptAt}
		}
		next.ServeHTTP(w, r)
	})
}

func (f *FakeJellyfin) lookup(id string) (*fakeItem, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	it, ok := f.items[id]
	return it, ok
}

func (f *FakeJellyfin) snapshotItems() []jellyfin.Item {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]jellyfin.Item, 0, len(f.items))
	for _, it := range f.items {
		out = append(out, it.item)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (f *FakeJellyfin) handleSystemInfo(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, jellyfin.SystemInfo{ID: "fake-server", ServerName: "Fake", Version: "10.10.0"})
}

func (f *FakeJellyfin) handleItem(w http.ResponseWriter, r *http.Request) {
	if r.PathValue("user") != FakeUserID {
		http.Error(w, "unknown user", http.StatusNotFound)
		return
	}
	it, ok := f.lookup(r.PathValue("id"))
	if !ok {
		http.NotFound(w, r)
		return
	}
	f.mu.Lock()
	item := it.item
	f.mu.Unlock()
	writeJSON(w, item)
}

func (f *FakeJellyfin) handleSearch(w http.ResponseWriter, r *http.Request) {
	term := strings.ToLower(r.URL.Query().Get("searchTerm"))
	types := map[string]bool{}
	for _, kind := range strings.Split(r.URL.Query().Get("includeItemTypes"), ",") {
		if kind != "" {
			types[kind] = true
		}
	}
	var matches []jellyfin.Item
	for _, item := range f.snapshotItems() {
		if len(types) > 0 && !types[item.Type] {
			continue
		}
		if term != "" && !strings.Contains(strings.ToLower(item.Name), term) {
			continue
		}
		matches = append(matches, item)
	}
	writeJSON(w, map[string]any{"Items": matches, "TotalRecordCount": len(matches)})
}

func (f *FakeJellyfin) handleSeasons(w http.ResponseWriter, r *http.Request) {
	seriesID := r.PathValue("id")
	var seasons []jellyfin.Item
	for _, item := range f.snapshotItems() {
		if item.Type == jellyfin.KindSeason && item.SeriesID == seriesID {
			seasons = append(seasons, item)
		}
	}
	writeJSON(w, map[string]any{"Items": seasons, "TotalRecordCount": len(seasons)})
}

func (f *FakeJellyfin) handleEpisodes(w http.ResponseWriter, r *http.Request) {
	seriesID := r.PathValue("id")
	seasonID := r.URL.Query().Get("seasonId")
	var episodes []jellyfin.Item
	for _, item := range f.snapshotItems() {
		if item.Type != jellyfin.KindEpisode || item.SeriesID != seriesID {
			continue
		}
		if seasonID != "" && item.SeasonID != seasonID {
			continue
		}
		episodes = append(episodes, item)
	}
	writeJSON(w, map[string]any{"Items": episodes, "TotalRecordCount": len(episodes)})
}

func (f *FakeJellyfin) handleDownload(w http.ResponseWriter, r *http.Request) {
	it, ok := f.lookup(r.PathValue("id"))
	if !ok || it.content == nil {
		http.NotFound(w, r)
		return
	}
	f.serveContent(w, r, it.content)
}

func (f *FakeJellyfin) handleSubtitle(w http.ResponseWriter, r *http.Request) {
	it, ok := f.lookup(r.PathValue("id"))
	if !ok {
		http.NotFound(w, r)
		return
	}
	index, err := strconv.Atoi(r.PathValue("index"))
	if err != nil {
		http.Error(w, "bad index", http.StatusBadRequest)
		return
	}
	f.mu.Lock()
	content, found := it.subtitles[index]
	f.mu.Unlock()
	if !found {
		http.NotFound(w, r)
		return
	}
	f.serveContent(w, r, content)
}

func (f *FakeJellyfin) handleImage(w http.ResponseWriter, r *http.Request) {
	it, ok := f.lookup(r.PathValue("id"))
	if !ok {
		http.NotFound(w, r)
		return
	}
	f.mu.Lock()
	content, found := it.images[r.PathValue("kind")]
	f.mu.Unlock()
	if !found {
		http.NotFound(w, r)
		return
	}
	f.serveContent(w, r, content)
}

func (f *FakeJellyfin) serveContent(w http.ResponseWriter, r *http.Request, content []byte) {
	f.mu.Lock()
	noRange := f.noRange
	f.mu.Unlock()
	if noRange {
		w.Header().Set("Content-Length", strconv.Itoa(len(content)))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(content)
		return
	}
	http.ServeContent(w, r, "", time.Time{}, bytes.NewReader(content))
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// interruptingWriter sends at most remaining body bytes and then aborts the
// connection, simulating a network drop mid-transfer.
type interruptingWriter struct {
	http.ResponseWriter
	remaining int64
}

func (w *interruptingWriter) Write(p []byte) (int, error) {
	if int64(len(p)) <= w.remaining {
		w.remaining -= int64(len(p))
		return w.ResponseWriter.Write(p)
	}
	_, _ = w.ResponseWriter.Write(p[:w.remaining])
	w.remaining = 0
	if flusher, ok := w.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
	panic(http.ErrAbortHandler)
}
