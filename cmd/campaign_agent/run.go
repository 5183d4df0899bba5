package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jjglab/campaign-agent/internal/config"
	"github.com/jjglab/campaign-agent/internal/db"
	"github.com/jjglab/campaign-agent/internal/llm"
	"github.com/jjglab/campaign-agent/internal/pipeline"
	"github.com/jjglab/campaign-agent/internal/recommend"
)

var runCommand = &cobra.Command{
	Use:   "run",
	Short: "Execute a campaign run end-to-end",
	Long: `Orchestrates one campaign run: context loading -> audience loading -> product recommendation -> rendering, validation, and send log persistence.

Configuration can be loaded from a JSON file using --config. Command-line arguments override config file values.`,
	RunE: runPipelineCmd,
}

var (
	runConfigPath      string
	runRunID           string
	runStrategy        string
	runTopK            int
	runMaxPreview      int
	runDefaultChannel  string
	runRequireAllSlots bool
	runAPIKey          string
	runDatabaseURL     string
	runEmbeddingModel  string
	runVerbose         bool
)

func init() {
	// Config file flag (processed first)
	runCommand.Flags().StringVar(&runConfigPath, "config", "", "Path to config.json file (values can be overridden by other flags)")

	runCommand.Flags().StringVarP(&runRunID, "run-id", "r", "", "Campaign run id to execute")
	runCommand.Flags().StringVarP(&runStrategy, "strategy", "s", "", "Recommendation strategy: similarity, cart, repurchase, or fallback")
	runCommand.Flags().IntVar(&runTopK, "top-k", 0, "Fallback candidate slice size")
	runCommand.Flags().IntVar(&runMaxPreview, "max-preview", 0, "Maximum sample messages carried in the result summary")
	runCommand.Flags().StringVar(&runDefaultChannel, "channel", "", "Channel to use when the run names none")
	runCommand.Flags().BoolVar(&runRequireAllSlots, "require-all-slots", false, "Fail users whose message leaves any slot unfilled")
	runCommand.Flags().StringVar(&runEmbeddingModel, "embedding-model", "", "Gemini embedding model (similarity strategy)")
	runCommand.Flags().BoolVarP(&runVerbose, "verbose", "v", false, "Print detailed progress information")

	// API key can be passed as a flag, or read from env var GEMINI_API_KEY
	runCommand.Flags().StringVar(&runAPIKey, "api-key", "", "Gemini API Key (optional, defaults to GEMINI_API_KEY env var)")

	// Database URL for run, handoff, and send log persistence
	runCommand.Flags().StringVar(&runDatabaseURL, "db-url", "", "PostgreSQL connection URL (optional, defaults to DATABASE_URL env var)")

	rootCmd.AddCommand(runCommand)
}

func runPipelineCmd(cmd *cobra.Command, _ []string) error {
	ctx := context.Background()

	// Step 1: Load config file if provided
	var cfg config.Config
	if runConfigPath != "" {
		loadedCfg, err := config.LoadConfig(runConfigPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		// Validate loaded config
		if err := loadedCfg.Validate(); err != nil {
			return err
		}

		cfg = *loadedCfg
		if runVerbose {
			_, _ = fmt.Fprintf(os.Stdout, "Loaded config from: %s\n", runConfigPath)
		}
	}

	// Step 2: Apply CLI overrides (command-line args take priority)
	// Only override if the flag was explicitly set
	if cmd.Flags().Changed("run-id") {
		cfg.RunID = runRunID
	}
	if cmd.Flags().Changed("strategy") {
		cfg.Strategy = runStrategy
	}
	if cmd.Flags().Changed("top-k") {
		cfg.TopK = runTopK
	}
	if cmd.Flags().Changed("max-preview") {
		cfg.MaxPreview = runMaxPreview
	}
	if cmd.Flags().Changed("channel") {
		cfg.DefaultChannel = runDefaultChannel
	}
	if cmd.Flags().Changed("require-all-slots") {
		cfg.RequireAllSlots = runRequireAllSlots
	}
	if cmd.Flags().Changed("embedding-model") {
		cfg.EmbeddingModel = runEmbeddingModel
	}
	if cmd.Flags().Changed("api-key") {
		cfg.APIKey = runAPIKey
	}
	if cmd.Flags().Changed("db-url") {
		cfg.DatabaseURL = runDatabaseURL
	}
	if cmd.Flags().Changed("verbose") {
		cfg.Verbose = runVerbose
	}

	// Step 3: Apply defaults for unset values
	defaults := config.Config{
		Strategy:       string(recommend.StrategyFallback),
		TopK:           recommend.DefaultTopK,
		MaxPreview:     5,
		DefaultChannel: "SMS",
		EmbeddingModel: llm.DefaultEmbeddingModel,
	}
	cfg = cfg.MergeWithDefaults(defaults)

	if err := cfg.Validate(); err != nil {
		return err
	}

	// Step 4: Validate required fields
	if cfg.RunID == "" {
		return fmt.Errorf("--run-id is required (via flag or config)")
	}

	// Step 5: Database URL handling
	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	if cfg.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL environment variable or --db-url flag is required")
	}

	// Step 6: API key handling; only the similarity strategy calls Gemini
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("GEMINI_API_KEY")
	}
	if cfg.Strategy == string(recommend.StrategySimilarity) && cfg.APIKey == "" {
		return fmt.Errorf("GEMINI_API_KEY environment variable or --api-key flag is required for the similarity strategy")
	}

	database, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	var embedder llm.Embedder
	if cfg.Strategy == string(recommend.StrategySimilarity) {
		embedder, err = llm.NewGeminiEmbedder(ctx, cfg.APIKey, cfg.EmbeddingModel)
		if err != nil {
			return fmt.Errorf("failed to create embedding client: %w", err)
		}
		defer func() { _ = embedder.Close() }()
	}

	engine := recommend.NewEngine(database, embedder)
	p := pipeline.New(database, engine, pipeline.Options{
		Strategy:        cfg.Strategy,
		TopK:            cfg.TopK,
		MaxPreview:      cfg.MaxPreview,
		DefaultChannel:  cfg.DefaultChannel,
		RequireAllSlots: cfg.RequireAllSlots,
		Verbose:         cfg.Verbose,
	})

	summary, err := p.Execute(ctx, cfg.RunID)
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal summary: %w", err)
	}
	fmt.Println(string(out))
	return nil
}
