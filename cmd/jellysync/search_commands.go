package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"jellysync/internal/manifest"
	"jellysync/internal/resolver"
	"jellysync/internal/services/jellyfin"
	"jellysync/internal/syncer"
)

type kindFlags struct {
	movie   bool
	series  bool
	episode bool
}

func (k kindFlags) kinds(fallback []string) []string {
	var kinds []string
	if k.movie {
		kinds = append(kinds, jellyfin.KindMovie)
	}
	if k.series {
		kinds = append(kinds, jellyfin.KindSeries)
	}
	if k.episode {
		kinds = append(kinds, jellyfin.KindEpisode)
	}
	if len(kinds) == 0 {
		return fallback
	}
	return kinds
}

func (k *kindFlags) register(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&k.movie, "movie", false, "Only movies")
	cmd.Flags().BoolVar(&k.series, "series", false, "Only series")
	cmd.Flags().BoolVar(&k.episode, "episode", false, "Only episodes")
}

func newSearchCommand(ctx *commandContext) *cobra.Command {
	var kinds kindFlags
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the server library by title",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd, ctx, strings.Join(args, " "), kinds.kinds(nil))
		},
	}
	kinds.register(cmd)
	return cmd
}

func newListCommand(ctx *commandContext) *cobra.Command {
	var kinds kindFlags
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the server library",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd, ctx, "", kinds.kinds([]string{jellyfin.KindMovie, jellyfin.KindSeries}))
		},
	}
	kinds.register(cmd)
	return cmd
}

func runSearch(cmd *cobra.Command, ctx *commandContext, query string, kinds []string) error {
	client, err := ctx.client()
	if err != nil {
		return err
	}
	runCtx, stop := commandRunContext(cmd)
	defer stop()

	res := resolver.New(client, client.Name(), ctx.log())
	refs, err := res.Search(runCtx, query, kinds)
	if err != nil {
		return describeFailure(query, err)
	}

	if ctx.flags.json {
		return writeJSON(cmd, newItemViews(refs))
	}

	out := cmd.OutOrStdout()
	if len(refs) == 0 {
		if query == "" {
			fmt.Fprintln(out, "Library is empty")
		} else {
			fmt.Fprintf(out, "No results for %q\n", query)
		}
		return nil
	}
	fmt.Fprintln(out, renderTable(
		[]string{"ID", "Kind", "Title", "Year"},
		searchRows(refs),
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight},
	))
	return nil
}

// printCandidates lists the items that free-text input to download or plan
// matched, so the user can rerun with one of their identifiers.
func printCandidates(cmd *cobra.Command, ctx *commandContext, err error) {
	var unresolved *syncer.UnresolvedError
	if !errors.As(err, &unresolved) || len(unresolved.Candidates) == 0 {
		return
	}
	if ctx.flags.json {
		_ = writeJSON(cmd, newItemViews(unresolved.Candidates))
		return
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%q matches %d item(s); rerun with one of these ids:\n", unresolved.Input, len(unresolved.Candidates))
	fmt.Fprintln(out, renderTable(
		[]string{"ID", "Kind", "Title", "Year"},
		searchRows(unresolved.Candidates),
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight},
	))
}

func newItemViews(refs []manifest.RemoteItemRef) []itemView {
	views := make([]itemView, 0, len(refs))
	for _, ref := range refs {
		views = append(views, newItemView(ref))
	}
	return views
}

func searchRows(refs []manifest.RemoteItemRef) [][]string {
	rows := make([][]string, 0, len(refs))
	for _, ref := range refs {
		year := ""
		if ref.Year > 0 {
			year = strconv.Itoa(ref.Year)
		}
		rows = append(rows, []string{ref.HashID, ref.Kind, ref.Label(), year})
	}
	return rows
}

func newInfoCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "info <hashid>",
		Short: "Print the server's item document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			runCtx, stop := commandRunContext(cmd)
			defer stop()

			res := resolver.New(client, client.Name(), ctx.log())
			ref, err := res.Lookup(runCtx, args[0])
			if err != nil {
				return describeFailure(args[0], err)
			}
			raw, err := client.GetItemRaw(runCtx, ref.ID)
			if err != nil {
				return describeFailure(args[0], err)
			}
			var pretty bytes.Buffer
			if err := json.Indent(&pretty, raw, "", "  "); err != nil {
				return fmt.Errorf("format item document: %w", err)
			}
			pretty.WriteByte('\n')
			_, err = cmd.OutOrStdout().Write(pretty.Bytes())
			return err
		},
	}
}
