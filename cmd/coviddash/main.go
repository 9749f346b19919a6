package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/matthewjhunter/coviddash"
	"github.com/matthewjhunter/coviddash/internal/output"
	"github.com/matthewjhunter/coviddash/internal/storage"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	configPath   string
	cfg          *storage.Config
	outputFormat string
	verbose      bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "coviddash",
		Short: "Offline-first UK coronavirus dashboard: sync, cache and summarize case data",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "init-config" {
				return nil
			}
			if _, err := output.ParseFormat(outputFormat); err != nil {
				return err
			}
			return loadConfig()
		},
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file path, .yaml or .toml (default: ./config/config.yaml)")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "format", "f", "json", "output format: json, text, human")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log sync progress to stderr")

	rootCmd.AddCommand(initConfigCmd())
	rootCmd.AddCommand(bootstrapCmd())
	rootCmd.AddCommand(syncCmd())
	rootCmd.AddCommand(daemonCmd())
	rootCmd.AddCommand(areaCmd())
	rootCmd.AddCommand(searchCmd())
	rootCmd.AddCommand(summariesCmd())
	rootCmd.AddCommand(saveCmd())
	rootCmd.AddCommand(unsaveCmd())
	rootCmd.AddCommand(savedCmd())
	rootCmd.AddCommand(lookupCmd())
	rootCmd.AddCommand(pruneCmd())

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig() error {
	if configPath == "" {
		configPath = "./config/config.yaml"
	}
	loaded, err := storage.LoadConfig(configPath)
	if err != nil {
		return err
	}
	cfg = loaded
	return nil
}

func newLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	logger.SetLevel(logrus.WarnLevel)
	if verbose {
		logger.SetLevel(logrus.DebugLevel)
	}
	return logger
}

func newEngine() (*coviddash.Engine, error) {
	engine, err := coviddash.NewEngine(coviddash.EngineConfig{
		DBPath:      cfg.Database.Path,
		APIBaseURL:  cfg.API.BaseURL,
		HTTPTimeout: cfg.API.Timeout.Std(),
		UserAgent:   cfg.API.UserAgent,
		Workers:     cfg.Sync.Workers,
		Debounce:    cfg.Sync.Debounce.Std(),
		Bootstrap:   cfg.Bootstrap.Enabled,
		Logger:      newLogger(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open engine: %w", err)
	}
	return engine, nil
}

// startEngine opens the engine and runs the startup prune and bootstrap.
// An empty cache is only a warning here; commands that need data say so.
func startEngine(ctx context.Context, formatter *output.Formatter) (*coviddash.Engine, error) {
	engine, err := newEngine()
	if err != nil {
		return nil, err
	}
	result, err := engine.Start(ctx)
	switch {
	case errors.Is(err, coviddash.ErrNoData):
		formatter.Warning("no cached data yet; run sync")
	case err != nil:
		engine.Close()
		return nil, err
	}
	if result != nil {
		for _, w := range result.Warnings {
			formatter.Warning("bootstrap: %s", w)
		}
	}
	return engine, nil
}

func formatter() *output.Formatter {
	return output.NewFormatter(output.Format(outputFormat))
}

func initConfigCmd() *cobra.Command {
	var asTOML bool
	cmd := &cobra.Command{
		Use:   "init-config",
		Short: "Create a default config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if configPath == "" {
				configPath = "./config/config.yaml"
				if asTOML {
					configPath = "./config/config.toml"
				}
			}

			dir := filepath.Dir(configPath)
			if err := os.MkdirAll(dir, 0755); err != nil {
				return fmt.Errorf("failed to create config directory: %w", err)
			}

			if _, err := os.Stat(configPath); err == nil {
				return fmt.Errorf("config file already exists: %s", configPath)
			}

			data, err := storage.MarshalConfig(storage.DefaultConfig(), asTOML)
			if err != nil {
				return fmt.Errorf("failed to marshal config: %w", err)
			}

			if err := os.WriteFile(configPath, data, 0644); err != nil {
				return fmt.Errorf("failed to write config: %w", err)
			}

			fmt.Printf("Created default config at %s\n", configPath)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asTOML, "toml", false, "write TOML instead of YAML")
	return cmd
}

func bootstrapCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "bootstrap",
		Short: "Prune unsaved areas and seed empty tables from the bundled snapshot",
		RunE: func(cmd *cobra.Command, args []string) error {
			f := formatter()
			engine, err := newEngine()
			if err != nil {
				return err
			}
			defer engine.Close()

			result, err := engine.Start(cmd.Context())
			if result != nil {
				if outErr := f.OutputStartResult(result); outErr != nil {
					return outErr
				}
			}
			return err
		},
	}
}

func syncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Fetch every category that changed upstream since the last sync",
		RunE: func(cmd *cobra.Command, args []string) error {
			f := formatter()
			engine, err := startEngine(cmd.Context(), f)
			if err != nil {
				return err
			}
			defer engine.Close()

			result, err := engine.Sync(cmd.Context())
			if result != nil {
				if outErr := f.OutputSyncResult(result); outErr != nil {
					return outErr
				}
				if result.Status == coviddash.StatusWarning {
					f.Warning("%d categories failed; showing cached data", result.Failed)
				}
			}
			return err
		},
	}
}

func areaCmd() *cobra.Command {
	var areaType string
	cmd := &cobra.Command{
		Use:   "area <code>",
		Short: "Show the weekly summary and daily series for an area",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f := formatter()
			engine, err := startEngine(cmd.Context(), f)
			if err != nil {
				return err
			}
			defer engine.Close()

			detail, err := engine.AreaDetail(cmd.Context(), args[0], areaType)
			if err != nil {
				return err
			}
			return f.OutputAreaDetail(detail)
		},
	}
	cmd.Flags().StringVarP(&areaType, "type", "t", "", "area type (overview, nation, region, nhsRegion, utla, ltla, nhsTrust, msoa, lsoa); inferred when empty")
	return cmd
}

func searchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "search <text>",
		Short: "Find areas whose name starts with text",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f := formatter()
			engine, err := startEngine(cmd.Context(), f)
			if err != nil {
				return err
			}
			defer engine.Close()

			areas, err := engine.Search(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return f.OutputAreas(areas)
		},
	}
}

func summariesCmd() *cobra.Command {
	var sortBy string
	var limit int
	cmd := &cobra.Command{
		Use:   "summaries",
		Short: "Rank local authorities by week-over-week change",
		RunE: func(cmd *cobra.Command, args []string) error {
			f := formatter()
			engine, err := startEngine(cmd.Context(), f)
			if err != nil {
				return err
			}
			defer engine.Close()

			summaries, err := engine.AreaSummaries(cmd.Context(), sortBy, limit)
			if err != nil {
				return err
			}
			return f.OutputSummaries(summaries)
		},
	}
	cmd.Flags().StringVarP(&sortBy, "sort", "s", "rising-cases", "sort by rising-cases, rising-infection-rate, infection-rate or new-cases")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum number of areas to show (0 for all)")
	return cmd
}

func saveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "save <code>",
		Short: "Pin an area so its series is kept and synced",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := newEngine()
			if err != nil {
				return err
			}
			defer engine.Close()

			if err := engine.SaveArea(cmd.Context(), args[0]); err != nil {
				return fmt.Errorf("failed to save area: %w", err)
			}
			fmt.Printf("Saved %s; its series is fetched on the next sync\n", args[0])
			return nil
		},
	}
}

func unsaveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unsave <code>",
		Short: "Unpin an area",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := newEngine()
			if err != nil {
				return err
			}
			defer engine.Close()

			if err := engine.UnsaveArea(cmd.Context(), args[0]); err != nil {
				return fmt.Errorf("failed to unsave area: %w", err)
			}
			fmt.Printf("Unsaved %s\n", args[0])
			return nil
		},
	}
}

func savedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "saved",
		Short: "List saved areas",
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := newEngine()
			if err != nil {
				return err
			}
			defer engine.Close()

			areas, err := engine.SavedAreas(cmd.Context())
			if err != nil {
				return err
			}
			return formatter().OutputAreas(areas)
		},
	}
}

func lookupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "lookup <postcode>",
		Short: "Show the areas that contain a postcode",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := newEngine()
			if err != nil {
				return err
			}
			defer engine.Close()

			// Postcodes are usually typed with a space: "lookup SW1A 1AA".
			postcode := args[0]
			for _, a := range args[1:] {
				postcode += " " + a
			}
			l, err := engine.LookupPostcode(cmd.Context(), postcode)
			if errors.Is(err, coviddash.ErrNotFound) {
				return fmt.Errorf("no areas found for postcode %q", postcode)
			}
			if err != nil {
				return err
			}
			return formatter().OutputLookup(l)
		},
	}
}

func pruneCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "prune",
		Short: "Evict cached series for areas that are not saved",
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := newEngine()
			if err != nil {
				return err
			}
			defer engine.Close()

			result, err := engine.Prune(cmd.Context())
			if err != nil {
				return err
			}
			return formatter().OutputPrune(result)
		},
	}
}
