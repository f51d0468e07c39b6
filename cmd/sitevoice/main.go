package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/sitevoice/sitevoice/internal/config"
	"github.com/sitevoice/sitevoice/internal/db"
	"github.com/sitevoice/sitevoice/internal/email"
	"github.com/sitevoice/sitevoice/internal/embed"
	"github.com/sitevoice/sitevoice/internal/extract"
	"github.com/sitevoice/sitevoice/internal/pipeline"
	"github.com/sitevoice/sitevoice/internal/report"
	"github.com/sitevoice/sitevoice/internal/search"
	"github.com/sitevoice/sitevoice/internal/server"
	"github.com/sitevoice/sitevoice/internal/together"
	"github.com/sitevoice/sitevoice/internal/watch"
)

var (
	version    = "dev"
	commit     = "none"
	buildDate  = "unknown"
	jsonOutput bool
)

// services bundles everything a command needs, wired from config.
type services struct {
	cfg         *config.Config
	db          *sql.DB
	store       *report.Store
	indexer     *embed.Indexer
	pipeline    *pipeline.Pipeline
	searcher    *search.Searcher
	synthesizer *email.Synthesizer
}

func buildServices() (*services, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	database, err := db.Open()
	if err != nil {
		return nil, err
	}

	store := report.NewStore(database)

	completionClient := together.NewClient(cfg.Completion.BaseURL, cfg.Completion.APIKey(), cfg.Completion.Timeout())
	embeddingBase := cfg.Embedding.BaseURL
	if embeddingBase == "" {
		embeddingBase = cfg.Completion.BaseURL
	}
	embeddingClient := together.NewClient(embeddingBase, cfg.Embedding.APIKey(), cfg.Embedding.Timeout())

	models := append([]string{cfg.Completion.Model}, cfg.Completion.FallbackModels...)
	extractor := extract.New(completionClient, models)
	indexer := embed.NewIndexer(store, embeddingClient, cfg.Embedding.Model, cfg.Embedding.Dimension)

	return &services{
		cfg:         cfg,
		db:          database,
		store:       store,
		indexer:     indexer,
		pipeline:    pipeline.New(database, store, extractor, indexer),
		searcher:    search.NewSearcher(database, embeddingClient, cfg.Embedding.Model),
		synthesizer: email.NewSynthesizer(completionClient, models),
	}, nil
}

func (s *services) Close() {
	if s.db != nil {
		s.db.Close()
	}
}

func main() {
	// Local installs keep the API key in a .env next to the binary.
	// Missing file is fine; real environment variables win regardless.
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:   "sitevoice",
		Short: "Voice-note construction report pipeline",
		Long: `Sitevoice turns field voice-note transcripts into classified,
structured construction reports with action items, embeddings for
similarity search, and on-demand email drafts.`,
	}

	rootCmd.PersistentFlags().BoolVarP(&jsonOutput, "json", "j", false, "Output as JSON")

	rootCmd.AddCommand(versionCmd())
	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(processCmd())
	rootCmd.AddCommand(watchCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(searchCmd())
	rootCmd.AddCommand(emailCmd())
	rootCmd.AddCommand(reembedCmd())
	rootCmd.AddCommand(statusCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version info",
		Run: func(cmd *cobra.Command, args []string) {
			if jsonOutput {
				printJSON(map[string]string{"version": version, "commit": commit, "date": buildDate})
			} else {
				fmt.Printf("sitevoice %s (%s, %s)\n", version, commit, buildDate)
			}
		},
	}
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize sitevoice config and database",
		RunE: func(cmd *cobra.Command, args []string) error {
			configDir, err := config.GetConfigDir()
			if err != nil {
				return err
			}
			dataDir, err := config.GetDataDir()
			if err != nil {
				return err
			}
			if err := os.MkdirAll(configDir, 0755); err != nil {
				return fmt.Errorf("failed to create config directory: %w", err)
			}
			if err := os.MkdirAll(dataDir, 0755); err != nil {
				return fmt.Errorf("failed to create data directory: %w", err)
			}
			if err := db.Init(); err != nil {
				return fmt.Errorf("failed to initialize database: %w", err)
			}
			dbPath, err := db.GetPath()
			if err != nil {
				return err
			}

			if jsonOutput {
				printJSON(map[string]any{"ok": true, "config_dir": configDir, "data_dir": dataDir, "db_path": dbPath})
			} else {
				fmt.Printf("✓ Config directory: %s\n", configDir)
				fmt.Printf("✓ Data directory: %s\n", dataDir)
				fmt.Printf("✓ Database: %s\n", dbPath)
			}
			return nil
		},
	}
}

func processCmd() *cobra.Command {
	var userID, transcriptFile, transcript string
	var imageRefs []string

	cmd := &cobra.Command{
		Use:   "process [report-id]",
		Short: "Run the extraction pipeline for a transcript",
		Long: `Process creates (or re-processes) a report and runs the full
pipeline synchronously: classify, extract fields, reconcile action
items, then embed the transcript.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := buildServices()
			if err != nil {
				return err
			}
			defer svc.Close()

			ctx := cmd.Context()
			var reportID string

			if len(args) == 1 && transcript == "" && transcriptFile == "" {
				// Re-process an existing report.
				reportID = args[0]
			} else {
				if transcriptFile != "" {
					data, err := os.ReadFile(transcriptFile)
					if err != nil {
						return fmt.Errorf("read transcript file: %w", err)
					}
					transcript = string(data)
				}
				if transcript == "" {
					return fmt.Errorf("provide a report id, --transcript, or --file")
				}
				if userID == "" {
					return fmt.Errorf("--user is required when creating a report")
				}
				id := ""
				if len(args) == 1 {
					id = args[0]
				}
				r, err := svc.store.Create(ctx, report.CreateParams{
					ID:         id,
					UserID:     userID,
					Transcript: transcript,
					ImageRefs:  imageRefs,
				})
				if err != nil {
					return err
				}
				reportID = r.ID
			}

			if err := svc.pipeline.Run(ctx, reportID); err != nil {
				return err
			}

			r, err := svc.store.Get(ctx, reportID)
			if err != nil {
				return err
			}
			items, err := svc.store.ActionItems(ctx, reportID)
			if err != nil {
				return err
			}

			if jsonOutput {
				printJSON(map[string]any{"report": r, "action_items": items})
			} else {
				printReport(r, items)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&userID, "user", "u", "", "Owner user id (required for new reports)")
	cmd.Flags().StringVarP(&transcriptFile, "file", "f", "", "Read transcript from file")
	cmd.Flags().StringVarP(&transcript, "transcript", "t", "", "Transcript text")
	cmd.Flags().StringSliceVar(&imageRefs, "image", nil, "Image storage ref (repeatable)")
	return cmd
}

func watchCmd() *cobra.Command {
	var inboxDir, userID string

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Watch an inbox directory for transcript files",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := buildServices()
			if err != nil {
				return err
			}
			defer svc.Close()

			if inboxDir == "" {
				inboxDir = svc.cfg.Watch.InboxDir
			}
			if inboxDir == "" {
				return fmt.Errorf("--inbox or watch.inbox_dir config is required")
			}
			if userID == "" {
				userID = svc.cfg.Watch.UserID
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			w := watch.New(svc.store, svc.pipeline, inboxDir, userID)
			if err := w.Run(ctx); err != nil && err != context.Canceled {
				return err
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&inboxDir, "inbox", "", "Inbox directory to watch")
	cmd.Flags().StringVarP(&userID, "user", "u", "", "Owner user id for ingested notes")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := buildServices()
			if err != nil {
				return err
			}
			defer svc.Close()

			if addr == "" {
				addr = svc.cfg.Serve.Addr
			}

			srv := server.New(svc.db, svc.store, svc.pipeline, svc.searcher, svc.synthesizer)
			fmt.Printf("Listening on %s\n", addr)
			return srv.Router().Run(addr)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default from config)")
	return cmd
}

func searchCmd() *cobra.Command {
	var userID string
	var limit int
	var minScore float64

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Similarity-search your reports",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := buildServices()
			if err != nil {
				return err
			}
			defer svc.Close()

			results, err := svc.searcher.Search(cmd.Context(), userID, args[0], limit)
			if err != nil {
				return err
			}

			// The searcher does not filter by relevance; that cutoff
			// belongs to callers.
			filtered := results[:0]
			for _, r := range results {
				if r.Score > minScore {
					filtered = append(filtered, r)
				}
			}

			if jsonOutput {
				printJSON(filtered)
			} else {
				for _, r := range filtered {
					fmt.Printf("%.3f  %s\n", r.Score, r.ReportID)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&userID, "user", "u", "", "Owner user id")
	cmd.Flags().IntVarP(&limit, "limit", "n", 16, "Max results")
	cmd.Flags().Float64Var(&minScore, "min-score", 0.6, "Discard results at or below this score")
	cmd.MarkFlagRequired("user")
	return cmd
}

func emailCmd() *cobra.Command {
	var userID, recipientName, recipientEmail, senderName string
	var includeAttachments bool

	cmd := &cobra.Command{
		Use:   "email <report-id>",
		Short: "Draft an email from a report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := buildServices()
			if err != nil {
				return err
			}
			defer svc.Close()

			ctx := cmd.Context()
			r, err := svc.store.GetOwned(ctx, args[0], userID)
			if err != nil {
				return fmt.Errorf("report not found")
			}
			items, err := svc.store.ActionItems(ctx, args[0])
			if err != nil {
				return err
			}

			text, err := svc.synthesizer.Compose(ctx, email.ComposeParams{
				Report:             r,
				ActionItems:        items,
				RecipientName:      recipientName,
				RecipientEmail:     recipientEmail,
				SenderName:         senderName,
				IncludeAttachments: includeAttachments,
			})
			if err != nil {
				return err
			}

			if jsonOutput {
				subject, body := email.SplitSubject(text)
				printJSON(map[string]string{"subject": subject, "body": body, "raw": text})
			} else {
				fmt.Println(text)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&userID, "user", "u", "", "Owner user id")
	cmd.Flags().StringVar(&recipientName, "to-name", "", "Recipient name")
	cmd.Flags().StringVar(&recipientEmail, "to-email", "", "Recipient email")
	cmd.Flags().StringVar(&senderName, "from-name", "", "Sender name")
	cmd.Flags().BoolVar(&includeAttachments, "attachments", false, "Mention attached photos")
	cmd.MarkFlagRequired("user")
	return cmd
}

func reembedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reembed <report-id>",
		Short: "Recompute the embedding for a report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := buildServices()
			if err != nil {
				return err
			}
			defer svc.Close()

			ctx := cmd.Context()
			r, err := svc.store.Get(ctx, args[0])
			if err != nil {
				return fmt.Errorf("report not found")
			}
			if err := svc.indexer.Reembed(ctx, r.ID, r.Transcript); err != nil {
				return err
			}
			fmt.Printf("✓ Re-embedded %s\n", r.ID)
			return nil
		},
	}
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show pipeline run statuses",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := buildServices()
			if err != nil {
				return err
			}
			defer svc.Close()

			runs, err := pipeline.ListRuns(svc.db)
			if err != nil {
				return err
			}

			if jsonOutput {
				printJSON(runs)
				return nil
			}
			for _, run := range runs {
				line := fmt.Sprintf("%-10s %-8s %s", run.Status, run.Phase, run.ReportID)
				if run.LastError != nil {
					line += "  (" + *run.LastError + ")"
				}
				fmt.Println(line)
			}
			return nil
		},
	}
}

func printReport(r report.Report, items []report.ActionItem) {
	reportType := "(unclassified)"
	if r.ReportType != nil {
		reportType = *r.ReportType
	}
	title := ""
	if r.Title != nil {
		title = *r.Title
	}
	summary := ""
	if r.Summary != nil {
		summary = *r.Summary
	}

	fmt.Printf("Report:   %s\n", r.ID)
	fmt.Printf("Type:     %s\n", reportType)
	fmt.Printf("Title:    %s\n", title)
	fmt.Printf("Summary:  %s\n", summary)
	if len(r.Details) > 0 {
		fmt.Println("Details:")
		b, _ := json.MarshalIndent(r.Details, "  ", "  ")
		fmt.Printf("  %s\n", string(b))
	}
	if len(items) > 0 {
		fmt.Println("Action items:")
		for _, item := range items {
			fmt.Printf("  - %s\n", item.Task)
		}
	}
}

func printJSON(v any) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(string(b))
}
