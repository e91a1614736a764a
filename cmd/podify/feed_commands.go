package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/jo-hoe/podify/internal/feed"
)

func newRebuildFeedCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "rebuild-feed",
		Short: "Rescan the output directory and add unregistered episodes to the manifest",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := ctx.buildApp()
			if err != nil {
				return err
			}
			added, err := a.registry.RebuildFromDisk(cmd.Context(), a.cfg.Feed.OutputDir)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Added %d episode(s) from %s\n", added, a.cfg.Feed.OutputDir)
			return nil
		},
	}
}

func newEpisodesCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "episodes",
		Short: "List registered episodes, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := ctx.buildApp()
			if err != nil {
				return err
			}
			m, err := a.registry.List(cmd.Context(), a.cfg.Feed.OutputDir)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(m.Episodes) == 0 {
				fmt.Fprintln(out, "No episodes")
				return nil
			}
			fmt.Fprintln(out, renderEpisodes(m.Episodes, time.Now()))
			return nil
		},
	}
}

func renderEpisodes(episodes []feed.EpisodeMeta, now time.Time) string {
	rows := make([][]string, 0, len(episodes))
	for _, ep := range episodes {
		location := "local"
		if ep.BlobURL != "" {
			location = "remote"
		}
		rows = append(rows, []string{
			ep.Slug,
			ep.Title,
			humanize.RelTime(ep.PubDate, now, "ago", "from now"),
			feed.FormatDuration(ep.DurationSeconds),
			humanize.IBytes(uint64(max(ep.FileSizeBytes, 0))), // #nosec G115 - clamped to non-negative
			humanize.Comma(int64(ep.WordCount)),
			location,
		})
	}
	return renderTable(
		[]string{"Slug", "Title", "Published", "Duration", "Size", "Words", "Audio"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignRight, alignLeft},
	)
}

func renderBatchSummary(outcomes []batchOutcome) string {
	rows := make([][]string, 0, len(outcomes)+1)
	var ok int
	var cost float64
	for _, o := range outcomes {
		status, detail := "ok", ""
		if o.err != nil {
			status, detail = "failed", o.err.Error()
		} else if o.result != nil {
			ok++
			cost += o.result.CostUSD
			detail = o.result.Slug
		}
		rows = append(rows, []string{o.source, status, detail})
	}
	rows = append(rows, []string{
		"total",
		strconv.Itoa(ok) + "/" + strconv.Itoa(len(outcomes)),
		fmt.Sprintf("$%.4f", cost),
	})
	return renderTable([]string{"Source", "Status", "Episode"}, rows, nil)
}
