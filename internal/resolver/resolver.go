package resolver

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"jellysync/internal/hashid"
	"jellysync/internal/logging"
	"jellysync/internal/manifest"
	"jellysync/internal/services"
	"jellysync/internal/services/jellyfin"
)

const stage = "resolve"

// DefaultSearchKinds are searched when the caller names none.
var DefaultSearchKinds = []string{jellyfin.KindMovie, jellyfin.KindSeries, jellyfin.KindEpisode}

// Source is the remote API surface the resolver needs.
type Source interface {
	GetItem(ctx context.Context, id string) (*jellyfin.Item, error)
	Search(ctx context.Context, term string, types []string) ([]jellyfin.Item, error)
	Seasons(ctx context.Context, seriesID string) ([]jellyfin.Item, error)
	Episodes(ctx context.Context, seriesID, seasonID string) ([]jellyfin.Item, error)
}

// Resolution is either a single looked-up item or a candidate list.
type Resolution struct {
	Item       *manifest.RemoteItemRef
	Candidates []manifest.RemoteItemRef
}

// Resolver resolves identifiers and queries against one server.
type Resolver struct {
	source Source
	server string
	logger *slog.Logger
}

// New returns a resolver; server names the profile refs are tagged with.
func New(source Source, server string, logger *slog.Logger) *Resolver {
	return &Resolver{
		source: source,
		server: server,
		logger: logging.NewComponentLogger(logger, "resolver"),
	}
}

// Resolve looks up identifier-shaped input and searches everything else.
func (r *Resolver) Resolve(ctx context.Context, input string) (Resolution, error) {
	input = strings.TrimSpace(input)
	if hashid.LooksLikeIdentifier(input) {
		ref, err := r.Lookup(ctx, input)
		if err != nil {
			return Resolution{}, err
		}
		return Resolution{Item: &ref}, nil
	}
	candidates, err := r.Search(ctx, input, nil)
	if err != nil {
		return Resolution{}, err
	}
	return Resolution{Candidates: candidates}, nil
}

// Lookup resolves a hash identifier, or a raw Jellyfin GUID, to its item.
func (r *Resolver) Lookup(ctx context.Context, identifier string) (manifest.RemoteItemRef, error) {
	identifier = strings.TrimSpace(identifier)
	var (
		id  string
		err error
	)
	if hashid.IsRawGUID(identifier) {
		id, err = hashid.Canonical(identifier)
	} else {
		id, err = hashid.Decode(identifier)
	}
	if err != nil {
		return manifest.RemoteItemRef{}, err
	}

	item, err := r.source.GetItem(ctx, id)
	if err != nil {
		return manifest.RemoteItemRef{}, err
	}
	ref, err := manifest.FromItem(r.server, *item)
	if err != nil {
		return manifest.RemoteItemRef{}, err
	}
	r.logger.Debug("identifier resolved",
		logging.String(logging.FieldItem, ref.HashID),
		logging.String("title", ref.Label()),
		logging.String("kind", ref.Kind),
	)
	return ref, nil
}

// Search returns ranked candidates for query. An empty result is not an error.
func (r *Resolver) Search(ctx context.Context, query string, kinds []string) ([]manifest.RemoteItemRef, error) {
	if len(kinds) == 0 {
		kinds = DefaultSearchKinds
	}
	items, err := r.source.Search(ctx, query, kinds)
	if err != nil {
		return nil, err
	}

	type ranked struct {
		ref  manifest.RemoteItemRef
		rank int
		pos  int
	}
	needle := strings.ToLower(strings.TrimSpace(query))
	results := make([]ranked, 0, len(items))
	for pos, item := range items {
		ref, err := manifest.FromItem(r.server, item)
		if err != nil {
			r.logger.Debug("skipping search result without a usable id",
				logging.String("id", item.ID),
				logging.Error(err),
			)
			continue
		}
		results = append(results, ranked{ref: ref, rank: matchRank(needle, item.Name), pos: pos})
	}
	slices.SortStableFunc(results, func(a, b ranked) int {
		if c := cmp.Compare(a.rank, b.rank); c != 0 {
			return c
		}
		return cmp.Compare(a.pos, b.pos)
	})

	refs := make([]manifest.RemoteItemRef, 0, len(results))
	for _, res := range results {
		refs = append(refs, res.ref)
	}
	return refs, nil
}

func matchRank(needle, name string) int {
	if needle == "" {
		return 0
	}
	name = strings.ToLower(strings.TrimSpace(name))
	switch {
	case name == needle:
		return 0
	case strings.HasPrefix(name, needle):
		return 1
	default:
		return 2
	}
}

// Expand returns the syncable leaf items of ref: movies and episodes are
// returned as is, seasons and series expand to their episodes ordered by
// season and episode number.
func (r *Resolver) Expand(ctx context.Context, ref manifest.RemoteItemRef) ([]manifest.RemoteItemRef, error) {
	switch ref.Kind {
	case jellyfin.KindMovie, jellyfin.KindEpisode:
		return []manifest.RemoteItemRef{ref}, nil
	case jellyfin.KindSeason:
		episodes, err := r.source.Episodes(ctx, ref.SeriesID, ref.ID)
		if err != nil {
			return nil, err
		}
		return r.episodeRefs(ref, episodes)
	case jellyfin.KindSeries:
		seasons, err := r.source.Seasons(ctx, ref.ID)
		if err != nil {
			return nil, err
		}
		var all []jellyfin.Item
		for _, season := range seasons {
			episodes, err := r.source.Episodes(ctx, ref.ID, season.ID)
			if err != nil {
				return nil, err
			}
			all = append(all, episodes...)
		}
		return r.episodeRefs(ref, all)
	}
	return nil, services.Wrap(services.ErrEmptyManifest, stage, "expand",
		fmt.Sprintf("%s items cannot be synced", ref.Kind), nil)
}

func (r *Resolver) episodeRefs(parent manifest.RemoteItemRef, episodes []jellyfin.Item) ([]manifest.RemoteItemRef, error) {
	refs := make([]manifest.RemoteItemRef, 0, len(episodes))
	seen := make(map[string]struct{}, len(episodes))
	for _, item := range episodes {
		if item.Type != jellyfin.KindEpisode {
			continue
		}
		ref, err := manifest.FromItem(r.server, item)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[ref.ID]; dup {
			continue
		}
		seen[ref.ID] = struct{}{}
		refs = append(refs, ref)
	}
	if len(refs) == 0 {
		return nil, services.Wrap(services.ErrEmptyManifest, stage, "expand",
			fmt.Sprintf("%s has no episodes", parent.Label()), nil)
	}
	slices.SortStableFunc(refs, func(a, b manifest.RemoteItemRef) int {
		if c := cmp.Compare(a.SeasonNumber, b.SeasonNumber); c != 0 {
			return c
		}
		return cmp.Compare(a.EpisodeNumber, b.EpisodeNumber)
	})
	r.logger.Info("expanded container",
		logging.String(logging.FieldItem, parent.HashID),
		logging.String("title", parent.Label()),
		logging.Int("episodes", len(refs)),
	)
	return refs, nil
}
