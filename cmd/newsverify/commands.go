package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"news_verifier/internal/app"
	"news_verifier/internal/domain"
	"news_verifier/internal/service"
)

var (
	submitNewsItem int64
	submitRating   float64
	submitComment  string

	feedCategory int64
	feedOffset   int
	feedWatch    bool

	ratingsNewsItem int64
)

func registerCommands() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config.yaml", "path to config file")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the client: connectivity monitor, queue sync, cache maintenance",
		RunE:  runClient,
	}

	submitCmd := &cobra.Command{
		Use:   "submit",
		Short: "Rate a news item; queued when the backend is unreachable",
		RunE:  submitRatingCmd,
	}
	submitCmd.Flags().Int64Var(&submitNewsItem, "news-item", 0, "news item id")
	submitCmd.Flags().Float64Var(&submitRating, "rating", 0, "reliability in [0,1]")
	submitCmd.Flags().StringVar(&submitComment, "comment", "", "optional comment")
	_ = submitCmd.MarkFlagRequired("news-item")
	_ = submitCmd.MarkFlagRequired("rating")

	syncCmd := &cobra.Command{
		Use:   "sync",
		Short: "Send queued ratings now",
		RunE:  syncPending,
	}

	refreshCmd := &cobra.Command{
		Use:   "refresh",
		Short: "Reload the feed from the backend",
		RunE:  refreshFeed,
	}
	refreshCmd.Flags().Int64Var(&feedCategory, "category", 0, "category id filter")

	feedCmd := &cobra.Command{
		Use:   "feed",
		Short: "Show the news feed, fetching only when the cache is stale",
		RunE:  showFeed,
	}
	feedCmd.Flags().Int64Var(&feedCategory, "category", 0, "category id filter")
	feedCmd.Flags().IntVar(&feedOffset, "offset", 0, "page offset")
	feedCmd.Flags().BoolVar(&feedWatch, "watch", false, "keep printing the feed as the cache changes")

	clearCacheCmd := &cobra.Command{
		Use:   "clear-cache",
		Short: "Delete all cached news items",
		RunE:  clearCache,
	}

	pendingCmd := &cobra.Command{
		Use:   "pending",
		Short: "List ratings waiting to be sent",
		RunE:  listPending,
	}

	categoriesCmd := &cobra.Command{
		Use:   "categories",
		Short: "List news categories",
		RunE:  listCategories,
	}

	ratingsCmd := &cobra.Command{
		Use:   "ratings",
		Short: "List ratings of a news item",
		RunE:  listRatings,
	}
	ratingsCmd.Flags().Int64Var(&ratingsNewsItem, "news-item", 0, "news item id")
	_ = ratingsCmd.MarkFlagRequired("news-item")

	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Show rating distribution by category",
		RunE:  showStats,
	}

	rootCmd.AddCommand(runCmd, submitCmd, syncCmd, refreshCmd, feedCmd,
		clearCacheCmd, pendingCmd, categoriesCmd, ratingsCmd, statsCmd)
}

func runClient(cmd *cobra.Command, _ []string) error {
	return withApp(cmd, func(ctx context.Context, a *app.App) error {
		return a.Run(ctx)
	})
}

func submitRatingCmd(cmd *cobra.Command, _ []string) error {
	return withApp(cmd, func(ctx context.Context, a *app.App) error {
		a.Monitor.Probe(ctx)

		outcome, err := a.Ratings.Submit(ctx, domain.RatingSubmission{
			NewsItemID: submitNewsItem,
			Value:      submitRating,
			Comment:    submitComment,
			Completed:  true,
		})
		fmt.Fprintln(cmd.OutOrStdout(), outcome.Message())
		return err
	})
}

func syncPending(cmd *cobra.Command, _ []string) error {
	return withApp(cmd, func(ctx context.Context, a *app.App) error {
		if !a.Monitor.Probe(ctx) {
			return errors.New("backend unreachable, ratings stay queued")
		}

		report, err := a.Driver.Drain(ctx)
		if report != nil {
			printReport(cmd.OutOrStdout(), report)
		}
		return err
	})
}

func refreshFeed(cmd *cobra.Command, _ []string) error {
	return withApp(cmd, func(ctx context.Context, a *app.App) error {
		if err := a.Feed.Refresh(ctx, categoryFlag(cmd)); err != nil {
			return err
		}
		items, err := a.Cache.List(ctx)
		if err != nil {
			return err
		}
		printFeed(cmd.OutOrStdout(), items)
		return nil
	})
}

func showFeed(cmd *cobra.Command, _ []string) error {
	return withApp(cmd, func(ctx context.Context, a *app.App) error {
		err := a.Feed.Load(ctx, service.FeedRequest{
			CategoryID: categoryFlag(cmd),
			Offset:     feedOffset,
		})
		if err != nil {
			// The cached feed is still worth showing.
			fmt.Fprintln(cmd.ErrOrStderr(), "could not refresh feed:", err)
		}

		if !feedWatch {
			items, err := a.Cache.List(ctx)
			if err != nil {
				return err
			}
			printFeed(cmd.OutOrStdout(), items)
			return nil
		}

		stream, err := a.Cache.ReadAll(ctx)
		if err != nil {
			return err
		}
		go func() { _ = a.Run(ctx) }()

		for items := range stream {
			printFeed(cmd.OutOrStdout(), items)
		}
		return nil
	})
}

func clearCache(cmd *cobra.Command, _ []string) error {
	return withApp(cmd, func(ctx context.Context, a *app.App) error {
		return a.Feed.ClearCache(ctx)
	})
}

func listPending(cmd *cobra.Command, _ []string) error {
	return withApp(cmd, func(ctx context.Context, a *app.App) error {
		pending, err := a.Queue.ListAll(ctx)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNEWS ITEM\tRATING\tQUEUED AT\tSTATE\tCOMMENT")
		for _, p := range pending {
			state := "waiting"
			if p.RatingID != 0 {
				state = "aggregate pending"
			}
			fmt.Fprintf(w, "%d\t%d\t%.2f\t%s\t%s\t%s\n",
				p.ID, p.NewsItemID, p.Value, p.QueuedAt.Format("2006-01-02 15:04:05"), state, p.Comment)
		}
		return w.Flush()
	})
}

func listCategories(cmd *cobra.Command, _ []string) error {
	return withApp(cmd, func(ctx context.Context, a *app.App) error {
		categories, err := a.Feed.Categories(ctx)
		if err != nil {
			return err
		}
		for _, c := range categories {
			fmt.Fprintf(cmd.OutOrStdout(), "%d\t%s\n", c.ID, c.Name)
		}
		return nil
	})
}

func listRatings(cmd *cobra.Command, _ []string) error {
	return withApp(cmd, func(ctx context.Context, a *app.App) error {
		ratings, err := a.Feed.Ratings(ctx, ratingsNewsItem)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tRATING\tDATE\tCOMMENT")
		for _, r := range ratings {
			fmt.Fprintf(w, "%d\t%.2f\t%s\t%s\n",
				r.ID, r.AssignedReliabilityScore, r.RatedAt.Format("2006-01-02"), r.CommentText)
		}
		return w.Flush()
	})
}

func showStats(cmd *cobra.Command, _ []string) error {
	return withApp(cmd, func(ctx context.Context, a *app.App) error {
		stats, err := a.Feed.Stats(ctx)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "CATEGORY\tRATINGS\tAVERAGE")
		for _, st := range stats {
			fmt.Fprintf(w, "%s\t%d\t%.2f\n", st.CategoryName, st.RatingCount, st.AverageScore)
		}
		return w.Flush()
	})
}

// categoryFlag returns the --category filter, nil when unset.
func categoryFlag(cmd *cobra.Command) *int64 {
	if !cmd.Flags().Changed("category") {
		return nil
	}
	id := feedCategory
	return &id
}

func printFeed(w io.Writer, items []domain.CachedNewsItem) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tRELIABILITY\tRATINGS\tAGE\tTITLE")
	now := time.Now()
	for _, it := range items {
		fmt.Fprintf(tw, "%d\t%.2f\t%d\t%dd\t%s\n",
			it.ID, it.AverageReliabilityScore, it.TotalRatings, it.DaysSince(now), it.Title)
	}
	_ = tw.Flush()
}

func printReport(w io.Writer, r *domain.DrainReport) {
	fmt.Fprintf(w, "delivered: %d, still queued: %d", len(r.Delivered), len(r.Pending))
	if r.AggregateErrors > 0 {
		fmt.Fprintf(w, ", aggregate errors: %d", r.AggregateErrors)
	}
	if r.StopReason != "" {
		fmt.Fprintf(w, " (stopped: %s)", r.StopReason)
	}
	fmt.Fprintln(w)
}
