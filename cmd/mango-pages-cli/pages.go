package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"sync/atomic"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"github.com/vrsandeep/mango-pages/internal/models"
	"golang.org/x/sync/errgroup"
)

var prefetchCmd = &cobra.Command{
	Use:   "prefetch <item-id>",
	Short: "Download the pages of an item",
	Long: `Download every page of an item that is not cached yet.

Failed pages are reported and can be retried by running the command again.

Examples:
  mango-pages prefetch 6f1c2a9b3d4e5f60
  mango-pages prefetch 6f1c2a9b3d4e5f60 --from 10 --to 20 -j 4`,
	Args: cobra.ExactArgs(1),
	RunE: runPrefetch,
}

var deletePageCmd = &cobra.Command{
	Use:   "delete-page <item-id> <page>",
	Short: "Remove a cached page",
	Args:  cobra.ExactArgs(2),
	RunE:  runDeletePage,
}

func init() {
	prefetchCmd.Flags().Int("from", 0, "first page (zero-based)")
	prefetchCmd.Flags().Int("to", -1, "last page, inclusive (default: last page of the item)")
	prefetchCmd.Flags().IntP("jobs", "j", 2, "concurrent downloads")
}

func runPrefetch(cmd *cobra.Command, args []string) error {
	itemID := args[0]
	from, _ := cmd.Flags().GetInt("from")
	to, _ := cmd.Flags().GetInt("to")
	jobs, _ := cmd.Flags().GetInt("jobs")

	count, err := app.Store().GetPageCount(itemID)
	if err != nil {
		return err
	}
	if to < 0 || to >= count {
		to = count - 1
	}
	if from < 0 || from > to {
		return fmt.Errorf("empty page range %d..%d", from, to)
	}

	f, err := app.Fetchers().Open(itemID)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	bar := progressbar.NewOptions(
		to-from+1,
		progressbar.OptionSetDescription("Prefetching"),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "=",
			SaucerHead:    ">",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)

	var failed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(jobs, 1))
	for page := from; page <= to; page++ {
		page := page
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			defer bar.Add(1)
			if err := gctx.Err(); err != nil {
				return err
			}
			_, err := f.SavePicture(gctx, page, nil)
			skipped, stop := pageOutcome(gctx, err)
			if skipped {
				failed.Add(1)
				fmt.Fprintf(os.Stderr, "\npage %d: %v\n", page, err)
			}
			return stop
		})
	}
	err = g.Wait()
	if err == nil {
		// Pages skipped after an interrupt returned nothing.
		err = ctx.Err()
	}
	bar.Finish()
	fmt.Println()

	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("interrupted")
	}
	if err != nil {
		return err
	}
	if n := failed.Load(); n > 0 {
		return fmt.Errorf("%d pages failed, run prefetch again to retry", n)
	}
	fmt.Printf("Pages %d..%d of %s are cached in %s\n", from, to, itemID, f.BookFolder())
	return nil
}

// pageOutcome sorts the result of one page download. A recoverable failure is
// skipped and counted; anything else, cancellation included, stops the run.
func pageOutcome(ctx context.Context, err error) (skipped bool, stop error) {
	switch {
	case err == nil:
		return false, nil
	case ctx.Err() != nil:
		return false, ctx.Err()
	case errors.Is(err, context.Canceled):
		return false, err
	case models.Recoverable(err):
		return true, nil
	}
	return false, err
}

func runDeletePage(cmd *cobra.Command, args []string) error {
	page, err := strconv.Atoi(args[1])
	if err != nil {
		return fmt.Errorf("invalid page number %q", args[1])
	}
	f, err := app.Fetchers().Open(args[0])
	if err != nil {
		return err
	}
	if err := f.DeletePicture(context.Background(), page); err != nil {
		return err
	}
	fmt.Printf("Deleted page %d of %s\n", page, args[0])
	return nil
}
