package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/nalbam/lambda-s3-resize/internal/blobstore"
	"github.com/nalbam/lambda-s3-resize/internal/keymap"
	"github.com/nalbam/lambda-s3-resize/internal/logging"
	"github.com/nalbam/lambda-s3-resize/internal/pipeline"
	"github.com/nalbam/lambda-s3-resize/internal/profile"
	"github.com/nalbam/lambda-s3-resize/internal/transform"
	"github.com/nalbam/lambda-s3-resize/internal/watermark"
)

// CLI flags
var (
	rootFlag            string
	bucketFlag          string
	sourceRootFlag      string
	destRootFlag        string
	watermarkBucketFlag string
	maxParallelFlag     int
	timeoutFlag         time.Duration
	privateFlag         bool
	dryRunFlag          bool
)

// rootCmd is the main Cobra command for the resize CLI.
var rootCmd = &cobra.Command{
	Use:   "resize-cli [flags] KEY...",
	Short: "Generate image derivatives from a local directory",
	Long: `resize-cli runs the derivative pipeline against a local directory laid out
like the S3 bucket: <root>/<bucket>/<key>. Derivatives are written next to the
source under the destination prefix.

Examples:
  resize-cli --root ./testdata incoming/article/123.jpg
  resize-cli -r ./data -b media --watermark-bucket stamps incoming/profile/u1.png
  resize-cli -r ./data --dest-root thumbs/ --timeout 5s incoming/message/a.gif
  resize-cli -r ./data --dry-run incoming/article/123.jpg`,
	Args:         cobra.MinimumNArgs(1),
	SilenceUsage: true,
	RunE:         runMain,
}

func init() {
	rootCmd.Flags().StringVarP(&rootFlag, "root", "r", ".", "Directory holding one sub-directory per bucket")
	rootCmd.Flags().StringVarP(&bucketFlag, "bucket", "b", "local", "Bucket (sub-directory of --root) holding the sources")
	rootCmd.Flags().StringVar(&sourceRootFlag, "source-root", profile.DefaultSourceRoot, "Required source key prefix")
	rootCmd.Flags().StringVar(&destRootFlag, "dest-root", keymap.DefaultDestRoot, "Destination key prefix")
	rootCmd.Flags().StringVar(&watermarkBucketFlag, "watermark-bucket", "", "Bucket holding watermark stamps (empty disables watermarking)")
	rootCmd.Flags().IntVar(&maxParallelFlag, "max-parallel", pipeline.DefaultMaxParallel, "Maximum concurrent derivative tasks")
	rootCmd.Flags().DurationVar(&timeoutFlag, "timeout", pipeline.DefaultBudget, "Time budget per image")
	rootCmd.Flags().BoolVar(&privateFlag, "private", false, "Store derivatives without public-read")
	rootCmd.Flags().BoolVar(&dryRunFlag, "dry-run", false, "Generate derivatives in memory without writing them")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// runMain is the main execution logic called by Cobra.
func runMain(cmd *cobra.Command, args []string) error {
	if os.Getenv("LOG_FORMAT") == "" {
		os.Setenv("LOG_FORMAT", "console")
	}
	logging.Init()

	var store blobstore.Store = blobstore.DirStore{Root: rootFlag}
	var dryRun *blobstore.MemStore
	if dryRunFlag {
		dryRun = blobstore.NewMemStore()
		store = blobstore.Overlay{Base: store, Writes: dryRun}
	}

	o, err := newOrchestrator(store)
	if err != nil {
		return err
	}

	failed := 0
	for _, key := range args {
		ctx, cancel := context.WithTimeout(cmd.Context(), timeoutFlag)
		res, err := o.Run(ctx, bucketFlag, key)
		cancel()
		if err != nil {
			failed++
			fmt.Fprintf(cmd.ErrOrStderr(), "%v\n", err)
			continue
		}
		fmt.Fprintln(cmd.OutOrStdout(), res.String())
		for _, k := range res.Keys {
			fmt.Fprintf(cmd.OutOrStdout(), "  %s\n", k)
		}
	}
	if dryRun != nil {
		fmt.Fprintf(cmd.OutOrStdout(), "dry run: %d derivatives generated, nothing written\n", len(dryRun.Keys()))
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d images failed", failed, len(args))
	}
	return nil
}

func newOrchestrator(store blobstore.Store) (*pipeline.Orchestrator, error) {
	var topts transform.Options
	if watermarkBucketFlag != "" {
		topts.Selector = watermark.NewSelector(watermark.DefaultTiers)
		topts.Stamps = watermark.NewCache(watermark.BlobAssets{Store: store, Bucket: watermarkBucketFlag}, watermark.DefaultCacheEntries)
	}
	visibility := blobstore.VisibilityPublic
	if privateFlag {
		visibility = blobstore.VisibilityPrivate
	}

	log.Debug().
		Str("root", rootFlag).
		Str("bucket", bucketFlag).
		Str("watermarkBucket", watermarkBucketFlag).
		Int("maxParallel", maxParallelFlag).
		Dur("timeout", timeoutFlag).
		Msg("Starting resize")

	return pipeline.New(pipeline.Options{
		Store:       store,
		Resolver:    profile.NewResolver(sourceRootFlag, profile.DefaultTable()),
		Transformer: transform.New(topts),
		Mapper:      keymap.New(sourceRootFlag, destRootFlag),
		Config: pipeline.Config{
			MaxParallel: maxParallelFlag,
			Visibility:  visibility,
		},
	})
}
