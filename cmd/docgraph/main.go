package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"

	"github.com/agenthands/docgraph/internal/app"
	"github.com/agenthands/docgraph/internal/cache"
	"github.com/agenthands/docgraph/internal/config"
	"github.com/agenthands/docgraph/internal/core/model"
	"github.com/agenthands/docgraph/internal/logger"
	"github.com/agenthands/docgraph/internal/parser"
	"github.com/agenthands/docgraph/internal/usage"
)

func main() {
	_ = godotenv.Load()
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "docgraph",
		Usage: "Turn documents into a knowledge graph",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to a TOML or YAML config file",
				Value:   "config/config.toml",
				EnvVars: []string{"CONFIG_PATH"},
			},
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "Enable debug logging",
			},
		},
		Commands: []*cli.Command{
			{
				Name:      "ingest",
				Usage:     "Process one document through the whole pipeline",
				ArgsUsage: "<file>",
				Action:    ingestCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "id",
						Usage: "Document id; reuse an id to resume from its cache",
					},
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Print the resolved graph as JSON",
					},
				},
			},
			{
				Name:      "usage",
				Usage:     "Show token usage recorded for a document",
				ArgsUsage: "<document-id>",
				Action:    usageCommand,
			},
			{
				Name:  "cache",
				Usage: "Manage pipeline checkpoints",
				Subcommands: []*cli.Command{
					{
						Name:      "clear",
						Usage:     "Delete the cached chunks and extractions of a document",
						ArgsUsage: "<document-id>",
						Action:    cacheClearCommand,
					},
				},
			},
		},
	}
}

func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.LoadOrDefault(c.String("config"))
	if err != nil {
		return nil, err
	}
	cfg.ApplyEnv()
	if c.Bool("debug") {
		cfg.Log.Debug = true
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func requireArg(c *cli.Context, name string) (string, error) {
	if c.NArg() != 1 {
		return "", cli.Exit(fmt.Sprintf("expected exactly one %s argument", name), 2)
	}
	return c.Args().First(), nil
}

func ingestCommand(c *cli.Context) error {
	path, err := requireArg(c, "file")
	if err != nil {
		return err
	}
	id := c.String("id")
	if id != "" && !cache.ValidID(id) {
		return cli.Exit(fmt.Sprintf("invalid document id %q: use letters, digits, '.', '_' or '-'", id), 2)
	}
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	flush, err := app.SetupLogging(cfg.Log, "docgraph")
	if err != nil {
		return err
	}
	defer flush()

	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if id == "" {
		id = model.NewDocumentID()
	}
	doc := model.Document{
		ID:         id,
		Filename:   filepath.Base(path),
		FileType:   parser.TypeOf(path),
		FileSize:   int64(len(raw)),
		Status:     model.StatusPending,
		UploadedAt: time.Now().UTC(),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close(context.Background())

	res, err := a.Service.Run(ctx, doc, raw)
	if err != nil {
		return err
	}

	out := c.App.Writer
	if c.Bool("json") {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(res.Graph)
	}
	fmt.Fprintf(out, "document %s: %d chunks, %d nodes, %d edges (from cache: %t, dropped relations: %d)\n",
		res.Document.ID, len(res.Chunks), len(res.Graph.Nodes), len(res.Graph.Edges), res.FromCache, res.Graph.DroppedRelations)
	return nil
}

func usageCommand(c *cli.Context) error {
	id, err := requireArg(c, "document-id")
	if err != nil {
		return err
	}
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	logger.Init()

	ledger, err := usage.OpenLedger(cfg.Usage.DBPath)
	if err != nil {
		return err
	}
	defer ledger.Close()

	records, err := ledger.ListByDocument(id)
	if err != nil {
		return err
	}
	return printUsage(c.App.Writer, records)
}

func printUsage(w io.Writer, records []model.TokenUsageRecord) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tPHASE\tMODEL\tPROMPT\tCOMPLETION\tTOTAL\tCOST")
	for _, r := range records {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\t%.6f\n",
			r.Timestamp.Format(time.RFC3339), r.Phase, r.Model, r.PromptTokens, r.CompletionTokens, r.TotalTokens, r.EstimatedCost)
	}
	s := usage.Summarize(records)
	fmt.Fprintf(tw, "TOTAL\t%d calls\t\t%d\t%d\t%d\t%.6f\n", s.Calls, s.PromptTokens, s.CompletionTokens, s.TotalTokens, s.EstimatedCost)
	return tw.Flush()
}

func cacheClearCommand(c *cli.Context) error {
	id, err := requireArg(c, "document-id")
	if err != nil {
		return err
	}
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	logger.Init()

	fc, err := cache.NewFileCache(cfg.Pipeline.CacheDir)
	if err != nil {
		return err
	}
	if err := fc.Invalidate(id); err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "cleared cache for %s\n", id)
	return nil
}
