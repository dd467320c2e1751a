// Command quarry is a local CLI over the ingestion and retrieval pipeline.
// It works directly against the configured store, no server required.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fatih/color"
	"github.com/joho/godotenv"

	quarry "github.com/quarrydocs/quarry"
	"github.com/quarrydocs/quarry/chunk"
	"github.com/quarrydocs/quarry/internal/config"
	"github.com/quarrydocs/quarry/normalize"
	"github.com/quarrydocs/quarry/provider/openai"
	"github.com/quarrydocs/quarry/store/sqlite"
)

const usage = `usage: quarry <command> [arguments]

commands:
  ingest <file> [file...]   chunk, score and store documents
  search <query>            hybrid search over stored fragments
  list                      list stored documents
  show <document-id>        show a document's fragments and quality report
  delete <document-id>      delete a document and its fragments
`

var (
	heading = color.New(color.FgCyan, color.Bold).SprintFunc()
	good    = color.New(color.FgGreen).SprintFunc()
	warn    = color.New(color.FgYellow).SprintFunc()
	bad     = color.New(color.FgRed).SprintFunc()
	faint   = color.New(color.Faint).SprintFunc()
)

func main() {
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	cfg := config.Load(os.Getenv("QUARRY_CONFIG"))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	store := sqlite.New(cfg.Store.Path)
	defer store.Close()
	if err := store.Init(ctx); err != nil {
		fatal("store init: %v", err)
	}

	var err error
	switch os.Args[1] {
	case "ingest":
		err = runIngest(ctx, cfg, store, os.Args[2:])
	case "search":
		err = runSearch(ctx, cfg, store, os.Args[2:])
	case "list":
		err = runList(ctx, store)
	case "show":
		err = runShow(ctx, store, os.Args[2:])
	case "delete":
		err = runDelete(ctx, store, os.Args[2:])
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	if err != nil {
		fatal("%v", err)
	}
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "%s %s\n", bad("error:"), fmt.Sprintf(format, args...))
	os.Exit(1)
}

func embedder(cfg config.Config) quarry.EmbeddingProvider {
	return openai.NewEmbedding(cfg.Embedding.APIKey, cfg.Embedding.Model, cfg.Embedding.Dimensions,
		openai.WithEndpoint(cfg.Embedding.Endpoint))
}

func runIngest(ctx context.Context, cfg config.Config, store quarry.Store, paths []string) error {
	if len(paths) == 0 {
		return fmt.Errorf("ingest: at least one file required")
	}

	docs := make([]quarry.Document, 0, len(paths))
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		doc, err := normalize.Document(filepath.Base(path), data)
		if err != nil {
			return fmt.Errorf("normalize %s: %w", path, err)
		}
		doc.Source = path
		docs = append(docs, doc)
	}

	ing := chunk.NewIngestor(store, embedder(cfg),
		chunk.WithIngestLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))))
	results, err := ing.IngestAll(ctx, docs)

	for i, res := range results {
		if res.DocumentID == "" {
			fmt.Printf("%s %s\n", bad("✗"), paths[i])
			continue
		}
		fmt.Printf("%s %s %s %s\n", good("✓"), paths[i],
			faint(res.DocumentID), fmt.Sprintf("(%d fragments)", res.FragmentCount))
	}
	return err
}

func runSearch(ctx context.Context, cfg config.Config, store quarry.Store, args []string) error {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	topK := fs.Int("k", cfg.Search.TopK, "number of results")
	mode := fs.String("mode", string(quarry.ModeHybrid), "search mode: semantic or hybrid")
	alpha := fs.Float64("alpha", cfg.Search.Alpha, "vector weight in [0,1]")
	fs.Parse(args)

	if fs.NArg() == 0 {
		return fmt.Errorf("search: query required")
	}
	query := fs.Arg(0)

	searcher := quarry.NewHybridSearcher(store, embedder(cfg))
	results, err := searcher.Search(ctx, query, *topK, quarry.SearchMode(*mode), *alpha)
	if err != nil {
		return err
	}
	if len(results) == 0 {
		fmt.Println(faint("no results"))
		return nil
	}

	for _, r := range results {
		fmt.Printf("%s %s %s\n", heading(fmt.Sprintf("%2d.", r.Rank)),
			scoreColor(r.FusedScore)(fmt.Sprintf("%.4f", r.FusedScore)),
			faint(r.FragmentID))
		fmt.Printf("    %s\n", snippet(r.Content, 160))
	}
	return nil
}

func runList(ctx context.Context, store quarry.Store) error {
	docs, err := store.ListDocuments(ctx, 0)
	if err != nil {
		return err
	}
	if len(docs) == 0 {
		fmt.Println(faint("no documents"))
		return nil
	}
	for _, d := range docs {
		fmt.Printf("%s  %-12s %s\n", faint(d.ID), d.Category, heading(d.Title))
	}
	return nil
}

func runShow(ctx context.Context, store quarry.Store, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("show: document id required")
	}
	doc, err := store.GetDocument(ctx, args[0])
	if err != nil {
		return err
	}
	frags, err := store.GetFragmentsByDocument(ctx, doc.ID)
	if err != nil {
		return err
	}

	fmt.Printf("%s %s\n", heading(doc.Title), faint(fmt.Sprintf("[%s] %s", doc.Category, doc.ID)))
	for _, f := range frags {
		flags := ""
		if len(f.QualityFlags) > 0 {
			parts := make([]string, len(f.QualityFlags))
			for i, fl := range f.QualityFlags {
				parts[i] = string(fl)
			}
			flags = warn(fmt.Sprintf(" %v", parts))
		}
		fmt.Printf("  %3d %s %-20s %s%s\n", f.Index,
			scoreColor(f.QualityScore)(fmt.Sprintf("%.2f", f.QualityScore)),
			f.Completeness, snippet(f.Content, 80), flags)
	}
	return nil
}

func runDelete(ctx context.Context, store quarry.Store, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("delete: document id required")
	}
	if err := store.DeleteDocument(ctx, args[0]); err != nil {
		return err
	}
	fmt.Printf("%s deleted %s\n", good("✓"), args[0])
	return nil
}

func scoreColor(score float64) func(...any) string {
	switch {
	case score >= 0.7:
		return good
	case score >= 0.4:
		return warn
	default:
		return bad
	}
}

func snippet(s string, n int) string {
	for i, r := range s {
		if r == '\n' {
			s = s[:i]
			break
		}
	}
	if len(s) > n {
		return s[:n] + "…"
	}
	return s
}
