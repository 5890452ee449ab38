package resolver_test

import (
	"context"
	"errors"
	"testing"

	"jellysync/internal/hashid"
	"jellysync/internal/resolver"
	"jellysync/internal/services"
	"jellysync/internal/services/jellyfin"
	"jellysync/internal/testsupport"
)

const (
	heatID     = "0123456789abcdef0123456789abcdef"
	heatWaveID = "11111111111111111111111111111111"
	heistID    = "22222222222222222222222222222222"
	seriesID   = "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	season1ID  = "bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb1"
	season2ID  = "bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb2"
)

func newResolver(t *testing.T) (*resolver.Resolver, *testsupport.FakeJellyfin) {
	t.Helper()
	fake := testsupport.NewFakeJellyfin(t)
	fake.AddMovie(heatWaveID, "Heat Wave", 2004, testsupport.Pattern(8, 1))
	fake.AddMovie(heatID, "Heat", 1995, testsupport.Pattern(8, 2))
	fake.AddMovie(heistID, "The Heat", 2013, testsupport.Pattern(8, 3))
	return resolver.New(fake.Client(), "fake", nil), fake
}

func TestResolveIdentifier(t *testing.T) {
	r, _ := newResolver(t)
	res, err := r.Resolve(context.Background(), hashid.MustEncode(heatID))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.Item == nil || res.Item.ID != heatID || res.Item.Title != "Heat" || res.Item.Server != "fake" {
		t.Fatalf("unexpected resolution: %+v", res)
	}
	if res.Item.HashID != hashid.MustEncode(heatID) {
		t.Fatalf("hash id not preserved: %s", res.Item.HashID)
	}
}

func TestResolveMalformedIdentifierDoesNotSearch(t *testing.T) {
	r, fake := newResolver(t)
	// 22 characters shaped like an identifier but containing '0', which is
	// outside the alphabet.
	_, err := r.Resolve(context.Background(), "0000000000000000000000")
	if !errors.Is(err, services.ErrInvalidIdentifier) {
		t.Fatalf("expected invalid identifier, got %v", err)
	}
	if fake.Requests("/Items") != 0 {
		t.Fatal("malformed identifier must not fall through to search")
	}
}

func TestResolveDeletedItemIsNotFound(t *testing.T) {
	r, fake := newResolver(t)
	fake.Remove(heatID)
	_, err := r.Lookup(context.Background(), hashid.MustEncode(heatID))
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestLookupAcceptsRawGUID(t *testing.T) {
	r, _ := newResolver(t)
	ref, err := r.Lookup(context.Background(), "01234567-89AB-CDEF-0123-456789ABCDEF")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if ref.ID != heatID {
		t.Fatalf("unexpected id %s", ref.ID)
	}
}

func TestSearchRanksExactThenPrefix(t *testing.T) {
	r, _ := newResolver(t)
	res, err := r.Resolve(context.Background(), "heat")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.Item != nil {
		t.Fatal("free text must not resolve to a single item")
	}
	var titles []string
	for _, c := range res.Candidates {
		titles = append(titles, c.Title)
	}
	want := []string{"Heat", "Heat Wave", "The Heat"}
	if len(titles) != len(want) {
		t.Fatalf("unexpected candidates %v", titles)
	}
	for i := range want {
		if titles[i] != want[i] {
			t.Fatalf("ranking = %v, want %v", titles, want)
		}
	}
}

func TestSearchWithoutMatchesIsEmpty(t *testing.T) {
	r, _ := newResolver(t)
	res, err := r.Resolve(context.Background(), "heist movie")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.Item != nil || len(res.Candidates) != 0 {
		t.Fatalf("expected empty candidate list, got %+v", res)
	}
}

func TestSearchPropagatesRemoteErrors(t *testing.T) {
	r, fake := newResolver(t)
	fake.FailNext("/Items", 503, 1)
	if _, err := r.Search(context.Background(), "heat", nil); !errors.Is(err, services.ErrRemoteUnavailable) {
		t.Fatalf("expected remote unavailable, got %v", err)
	}
}

func TestExpandSeriesOrdersEpisodes(t *testing.T) {
	r, fake := newResolver(t)
	fake.AddSeries(seriesID, "The Wire")
	fake.AddSeason(season2ID, seriesID, 2)
	fake.AddSeason(season1ID, seriesID, 1)
	fake.AddEpisode("e0000000000000000000000000000002", seriesID, season1ID, 1, 2, "The Detail", testsupport.Pattern(4, 1))
	fake.AddEpisode("e0000000000000000000000000000001", seriesID, season1ID, 1, 1, "The Target", testsupport.Pattern(4, 1))
	fake.AddEpisode("e0000000000000000000000000000003", seriesID, season2ID, 2, 1, "Ebb Tide", testsupport.Pattern(4, 1))

	series, err := r.Lookup(context.Background(), hashid.MustEncode(seriesID))
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	refs, err := r.Expand(context.Background(), series)
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}
	want := []string{"The Target", "The Detail", "Ebb Tide"}
	if len(refs) != len(want) {
		t.Fatalf("expected %d episodes, got %+v", len(want), refs)
	}
	for i, ref := range refs {
		if ref.Title != want[i] || ref.Kind != jellyfin.KindEpisode {
			t.Fatalf("episode %d = %s (%s), want %s", i, ref.Title, ref.Kind, want[i])
		}
	}

	season, err := r.Lookup(context.Background(), hashid.MustEncode(season2ID))
	if err != nil {
		t.Fatalf("Lookup season: %v", err)
	}
	seasonRefs, err := r.Expand(context.Background(), season)
	if err != nil {
		t.Fatalf("Expand season: %v", err)
	}
	if len(seasonRefs) != 1 || seasonRefs[0].Title != "Ebb Tide" {
		t.Fatalf("unexpected season expansion: %+v", seasonRefs)
	}
}

func TestExpandLeafAndEmptyContainers(t *testing.T) {
	r, fake := newResolver(t)
	movie, err := r.Lookup(context.Background(), hashid.MustEncode(heatID))
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	refs, err := r.Expand(context.Background(), movie)
	if err != nil || len(refs) != 1 || refs[0].ID != heatID {
		t.Fatalf("movie should expand to itself: %+v %v", refs, err)
	}

	fake.AddSeries(seriesID, "Empty Show")
	series, err := r.Lookup(context.Background(), hashid.MustEncode(seriesID))
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if _, err := r.Expand(context.Background(), series); !errors.Is(err, services.ErrEmptyManifest) {
		t.Fatalf("expected empty manifest for a series without episodes, got %v", err)
	}

	series.Kind = "BoxSet"
	if _, err := r.Expand(context.Background(), series); !errors.Is(err, services.ErrEmptyManifest) {
		t.Fatalf("expected empty manifest for unsupported kinds, got %v", err)
	}
}
