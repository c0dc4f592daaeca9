// curate runs the listing curation stages against dataset files.
//
// Usage:
//
//	curate ingest    -in=<raw.json|raw.jsonl> -out=<dataset> [-download] [-catalog=<db>]
//	curate filter    -in=<dataset> [-out=<dataset>] [-min-images=2] [-banned=thicc] [-no-backfill] [-keep-assets]
//	curate merge     -out=<dataset> [-no-dedup] <dataset> <dataset> ...
//	curate convert   -in=<dataset> -out=<dataset>
//	curate summarize -in=<dataset> [-top=10] [-json]
//
// Datasets are .csv or .json by extension. Exit status: 0 success,
// 2 input not found, 3 schema mismatch or malformed input, 4 partial failure,
// 1 any other error.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"go.uber.org/zap"

	"github.com/noah-andersen/ebay-card-scraper/internal/config"
	"github.com/noah-andersen/ebay-card-scraper/internal/database"
	"github.com/noah-andersen/ebay-card-scraper/internal/logging"
	"github.com/noah-andersen/ebay-card-scraper/internal/models"
	"github.com/noah-andersen/ebay-card-scraper/internal/services"
	"github.com/noah-andersen/ebay-card-scraper/internal/storage"
)

func main() {
	cfg, err := config.Load(os.Getenv("CURATE_CONFIG"))
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logger := logging.Must(cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], cfg, logger, os.Stdout)
	stop()
	_ = logger.Sync()
	os.Exit(code)
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "usage: curate <ingest|filter|merge|convert|summarize> [flags]")
}

// run dispatches one subcommand and returns the process exit code.
func run(ctx context.Context, args []string, cfg *config.Config, logger *zap.Logger, stdout io.Writer) int {
	if len(args) == 0 {
		usage(os.Stderr)
		return 1
	}

	curator := services.NewCurator(cfg.AssetsDir, services.NewGradeExtractor(cfg.ExtractionCache, logger), logger)

	var err error
	switch args[0] {
	case "ingest":
		err = runIngest(ctx, args[1:], cfg, curator, logger, stdout)
	case "filter":
		err = runFilter(args[1:], cfg, curator, stdout)
	case "merge":
		err = runMerge(args[1:], curator, stdout)
	case "convert":
		err = runConvert(args[1:], curator, stdout)
	case "summarize":
		err = runSummarize(args[1:], cfg, curator, stdout)
	case "-h", "-help", "--help", "help":
		usage(stdout)
		return 0
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", args[0])
		usage(os.Stderr)
		return 1
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	return models.ResultCodeFor(err).ExitCode()
}

func runIngest(ctx context.Context, args []string, cfg *config.Config, curator *services.Curator, logger *zap.Logger, stdout io.Writer) error {
	fs := flag.NewFlagSet("ingest", flag.ContinueOnError)
	in := fs.String("in", "", "Raw listings (.json array or .jsonl) (required)")
	out := fs.String("out", "", "Dataset to append to (required)")
	download := fs.Bool("download", cfg.Fetch.DownloadImages, "Download canonical images into the assets directory")
	catalog := fs.String("catalog", "", "Also store accepted listings in this SQLite catalog")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *in == "" || *out == "" {
		fs.Usage()
		return fmt.Errorf("-in and -out are required")
	}

	if *download {
		curator.WithImageDownloads(
			services.NewHTTPImageFetcher(cfg.Fetch.Timeout, cfg.Fetch.RatePerSecond, cfg.Fetch.Burst),
			services.NewImageStorageService(cfg.AssetsDir, logger),
		)
	}

	summary, err := curator.IngestFile(ctx, *in, *out)
	printIngestSummary(stdout, summary)
	if err != nil {
		if summary.Accepted > 0 {
			return fmt.Errorf("%w: %v", models.ErrPartialFailure, err)
		}
		return err
	}

	if *catalog != "" {
		db, err := database.Open(*catalog, logger)
		if err != nil {
			return fmt.Errorf("failed to open catalog: %w", err)
		}
		ds, err := storage.Load(*out)
		if err != nil {
			return err
		}
		stored, err := services.NewDatasetStore(db, logger).Append(ds)
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "Catalog: %d new listing(s) stored in %s\n", stored, *catalog)
	}
	return nil
}

func runFilter(args []string, cfg *config.Config, curator *services.Curator, stdout io.Writer) error {
	fs := flag.NewFlagSet("filter", flag.ContinueOnError)
	in := fs.String("in", "", "Dataset to filter (required)")
	out := fs.String("out", "", "Output dataset (default <input>_filtered.<ext>)")
	minImages := fs.Int("min-images", cfg.Filter.MinImages, "Minimum image count")
	banned := fs.String("banned", strings.Join(cfg.Filter.BannedTerms, ","), "Comma-separated banned terms")
	noBackfill := fs.Bool("no-backfill", !cfg.Filter.UseBackfill, "Disable the context rule during grade backfill")
	keepAssets := fs.Bool("keep-assets", !cfg.Filter.DeleteAssets, "Do not delete images of rejected listings")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *in == "" {
		fs.Usage()
		return fmt.Errorf("-in is required")
	}

	opts := services.FilterOptions{
		BannedTerms:  splitTerms(*banned),
		MinImages:    *minImages,
		UseBackfill:  !*noBackfill,
		DeleteAssets: !*keepAssets,
	}
	summary, err := curator.FilterFile(*in, *out, opts)
	if summary != nil {
		printFilterSummary(stdout, summary)
	}
	if err != nil {
		return err
	}
	if summary.Result == models.ResultPartialFailure {
		return fmt.Errorf("%w: %d asset deletion(s) failed", models.ErrPartialFailure, summary.Cleanup.Failures)
	}
	return nil
}

func runMerge(args []string, curator *services.Curator, stdout io.Writer) error {
	fs := flag.NewFlagSet("merge", flag.ContinueOnError)
	out := fs.String("out", "", "Merged dataset (required)")
	noDedup := fs.Bool("no-dedup", false, "Keep duplicate listings")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *out == "" || fs.NArg() == 0 {
		fs.Usage()
		return fmt.Errorf("-out and at least one input dataset are required")
	}

	stats, err := curator.MergeFiles(fs.Args(), *out, !*noDedup)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Merged %d dataset(s): %d listing(s) in, %d duplicate(s) dropped, %d written to %s\n",
		stats.Inputs, stats.TotalIn, stats.DuplicatesDropped, stats.TotalOut, *out)
	return nil
}

func runConvert(args []string, curator *services.Curator, stdout io.Writer) error {
	fs := flag.NewFlagSet("convert", flag.ContinueOnError)
	in := fs.String("in", "", "Source dataset (required)")
	out := fs.String("out", "", "Destination dataset (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *in == "" || *out == "" {
		fs.Usage()
		return fmt.Errorf("-in and -out are required")
	}

	n, err := curator.ConvertFile(*in, *out)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Converted %d listing(s) to %s\n", n, *out)
	return nil
}

func runSummarize(args []string, cfg *config.Config, curator *services.Curator, stdout io.Writer) error {
	fs := flag.NewFlagSet("summarize", flag.ContinueOnError)
	in := fs.String("in", "", "Dataset to summarize (required)")
	top := fs.Int("top", cfg.ReportTopN, "Number of most expensive listings to show")
	asJSON := fs.Bool("json", false, "Print the report as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *in == "" {
		fs.Usage()
		return fmt.Errorf("-in is required")
	}

	report, err := curator.SummarizeFile(*in, *top)
	if err != nil {
		return err
	}
	if *asJSON {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}
	return services.WriteReport(stdout, report)
}

func printIngestSummary(w io.Writer, s models.IngestSummary) {
	fmt.Fprintf(w, "Received: %d\n", s.Received)
	fmt.Fprintf(w, "Accepted: %d\n", s.Accepted)
	fmt.Fprintf(w, "Duplicates skipped: %d\n", s.Duplicates)
	fmt.Fprintf(w, "Invalid: %d\n", s.Invalid)
	fmt.Fprintf(w, "Image URLs rejected: %d\n", s.URLsRejected)
	if s.ImagesSaved > 0 || s.ImagesFailed > 0 {
		fmt.Fprintf(w, "Images saved: %d (failed: %d)\n", s.ImagesSaved, s.ImagesFailed)
	}
}

func printFilterSummary(w io.Writer, s *models.FilterSummary) {
	fmt.Fprintf(w, "Total listings: %d\n", s.Total)
	fmt.Fprintf(w, "Kept: %d\n", s.Kept)
	fmt.Fprintf(w, "Filtered out: %d\n", s.Filtered)
	fmt.Fprintf(w, "Grades backfilled: %d\n", s.GradesBackfilled)
	for _, reason := range []models.FilterReason{
		models.ReasonTooFewImages,
		models.ReasonBannedTerm,
		models.ReasonMultipleCards,
		models.ReasonMissingGrade,
		models.ReasonGradeExtracted,
		models.ReasonPassed,
	} {
		if n := s.Reasons[reason]; n > 0 {
			fmt.Fprintf(w, "  %s: %d\n", reason, n)
		}
	}
	if s.Cleanup.FilesDeleted > 0 || s.Cleanup.DirectoriesDeleted > 0 || s.Cleanup.Failures > 0 {
		fmt.Fprintf(w, "Assets: %d file(s) and %d directory(ies) deleted, %d failure(s)\n",
			s.Cleanup.FilesDeleted, s.Cleanup.DirectoriesDeleted, s.Cleanup.Failures)
	}
}

func splitTerms(s string) []string {
	var out []string
	for _, t := range strings.Split(s, ",") {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}
