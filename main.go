package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"camera-tracker/config"
	"camera-tracker/models"
	"camera-tracker/scraper/avito"
	"camera-tracker/services"
	"camera-tracker/storage"
	"camera-tracker/utils"
)

var rootCmd = &cobra.Command{
	Use:   "camera-tracker",
	Short: "camera-tracker scrapes Avito camera listings and tracks their prices.",
}

var (
	fetchModelID   int64
	fetchRegion    string
	fetchLimit     int
	fetchSearchURL string
	fetchPolicy    string

	cleanupModelID int64
	cleanupDryRun  bool

	addBrand      string
	addName       string
	addSearchURL  string
	addYear       int
	addMount      string
	addSensorType string

	statsModelID int64
)

func init() {
	fetchCmd.Flags().Int64Var(&fetchModelID, "model-id", 0, "camera model id to fetch listings for")
	fetchCmd.Flags().StringVar(&fetchRegion, "region", "", "region fallback for listings that state none")
	fetchCmd.Flags().IntVar(&fetchLimit, "limit", 0, "maximum unique listings to fetch")
	fetchCmd.Flags().StringVar(&fetchSearchURL, "search-url", "", "override the model's stored search URL")
	fetchCmd.Flags().StringVar(&fetchPolicy, "stale-policy", "", "what to do with unseen listings: delete or deactivate")
	_ = fetchCmd.MarkFlagRequired("model-id")

	fetchAllCmd.Flags().StringVar(&fetchRegion, "region", "", "region fallback for listings that state none")
	fetchAllCmd.Flags().IntVar(&fetchLimit, "limit", 0, "maximum unique listings per model")
	fetchAllCmd.Flags().StringVar(&fetchPolicy, "stale-policy", "", "what to do with unseen listings: delete or deactivate")

	cleanupCmd.Flags().Int64Var(&cleanupModelID, "model-id", 0, "camera model id (all models when omitted)")
	cleanupCmd.Flags().BoolVar(&cleanupDryRun, "dry-run", false, "report what would be removed without removing")

	addModelCmd.Flags().StringVar(&addBrand, "brand", "", "brand name")
	addModelCmd.Flags().StringVar(&addName, "name", "", "model name")
	addModelCmd.Flags().StringVar(&addSearchURL, "search-url", "", "Avito search URL for this model")
	addModelCmd.Flags().IntVar(&addYear, "release-year", 0, "release year")
	addModelCmd.Flags().StringVar(&addMount, "mount", "", "lens mount")
	addModelCmd.Flags().StringVar(&addSensorType, "sensor-type", "", "sensor type")
	_ = addModelCmd.MarkFlagRequired("brand")
	_ = addModelCmd.MarkFlagRequired("name")

	statsCmd.Flags().Int64Var(&statsModelID, "model-id", 0, "camera model id to report on")
	_ = statsCmd.MarkFlagRequired("model-id")

	rootCmd.AddCommand(fetchCmd, fetchAllCmd, cleanupCmd, addModelCmd, statsCmd)
}

// openStore loads config and connects to Postgres. The caller owns Close.
func openStore(logger *utils.Logger) (*config.Config, *storage.Postgres, error) {
	cfg := config.Load()
	store, err := storage.NewPostgres(cfg.DSN())
	if err != nil {
		logger.Error("Failed to connect to PostgreSQL: %v", err)
		logger.Error("Make sure the database is running: docker compose up -d")
		return nil, nil, err
	}
	return cfg, store, nil
}

func stalePolicy(cfg *config.Config) (services.StalePolicy, error) {
	name := fetchPolicy
	if name == "" {
		name = cfg.StalePolicy
	}
	return services.ParseStalePolicy(name)
}

// fetchModel runs the whole pipeline for one model: scrape every page
// of its search, dump the raw items to CSV, then reconcile the store.
// Reconciliation is skipped when the scrape failed part-way, so a
// partial result can never mark the unseen remainder stale.
func fetchModel(cfg *config.Config, logger *utils.Logger, store *storage.Postgres,
	model *models.CameraModel, searchURL string, policy services.StalePolicy) error {

	region := fetchRegion
	if region == "" {
		region = cfg.DefaultRegion
	}
	limit := fetchLimit
	if limit <= 0 {
		limit = cfg.DefaultLimit
	}

	logger.Info("=== %s (model %d) ===", model, model.ID)

	session := avito.NewSession(cfg, logger, avito.StdinGate(logger))
	defer session.Close()

	scraper := avito.New(cfg, logger, session)
	items, err := scraper.Search(searchURL, region, limit)
	if err != nil {
		return fmt.Errorf("scrape failed, store left untouched: %w", err)
	}
	logger.Info("Parsed %d items for %s", len(items), model)

	if csvWriter, err := storage.NewCSVWriter(cfg.CSVOutputPath); err != nil {
		logger.Warn("CSV dump unavailable: %v", err)
	} else {
		if err := csvWriter.WriteItems(items); err != nil {
			logger.Warn("CSV write failed: %v", err)
		}
		_ = csvWriter.Close()
	}

	reconciler := services.NewReconciler(store, logger, policy)
	result, err := reconciler.Reconcile(model, models.SourceAvito, items)
	if err != nil {
		return err
	}

	logger.Info("created=%d updated=%d snapshots=%d stale=%d deleted=%d deactivated=%d",
		result.Created, result.Updated, result.Snapshots,
		result.Stale, result.Deleted, result.Deactivated)
	return nil
}

var fetchCmd = &cobra.Command{
	Use:   "fetch --model-id <id> [--region <name>] [--limit <n>]",
	Short: "Scrapes Avito listings for one camera model and reconciles the store.",
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := utils.NewLogger()
		cfg, store, err := openStore(logger)
		if err != nil {
			return err
		}
		defer store.Close()

		policy, err := stalePolicy(cfg)
		if err != nil {
			return err
		}

		model, err := store.CameraModelByID(fetchModelID)
		if err != nil {
			return err
		}

		searchURL := fetchSearchURL
		if searchURL == "" {
			searchURL = model.SearchURL
		}
		if searchURL == "" {
			return fmt.Errorf("camera model %d has no search URL; pass --search-url or set it with add-model", model.ID)
		}

		return fetchModel(cfg, logger, store, model, searchURL, policy)
	},
}

var fetchAllCmd = &cobra.Command{
	Use:   "fetch-all [--region <name>] [--limit <n>]",
	Short: "Scrapes and reconciles every tracked camera model in turn.",
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := utils.NewLogger()
		cfg, store, err := openStore(logger)
		if err != nil {
			return err
		}
		defer store.Close()

		policy, err := stalePolicy(cfg)
		if err != nil {
			return err
		}

		cameraModels, err := store.CameraModels()
		if err != nil {
			return err
		}

		failures := 0
		for _, model := range cameraModels {
			if model.SearchURL == "" {
				logger.Warn("skip %s (model %d): no search URL", model, model.ID)
				continue
			}
			if err := fetchModel(cfg, logger, store, model, model.SearchURL, policy); err != nil {
				logger.Error("model %d: %v", model.ID, err)
				failures++
			}
		}

		if failures > 0 {
			return fmt.Errorf("%d model(s) failed", failures)
		}
		return nil
	},
}

var cleanupCmd = &cobra.Command{
	Use:   "cleanup [--model-id <id>] [--dry-run]",
	Short: "Removes inactive listings that no active listing matches anymore.",
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := utils.NewLogger()
		_, store, err := openStore(logger)
		if err != nil {
			return err
		}
		defer store.Close()

		var cameraModels []*models.CameraModel
		if cleanupModelID != 0 {
			model, err := store.CameraModelByID(cleanupModelID)
			if err != nil {
				return err
			}
			cameraModels = []*models.CameraModel{model}
		} else {
			cameraModels, err = store.CameraModels()
			if err != nil {
				return err
			}
		}

		cleaner := services.NewCleaner(store, logger)
		var totalDeleted int64
		for _, model := range cameraModels {
			result, err := cleaner.Cleanup(model, models.SourceAvito, cleanupDryRun)
			if err != nil {
				return err
			}
			totalDeleted += result.Deleted
			if cleanupDryRun {
				for i, l := range result.Candidates {
					if i == 5 {
						logger.Info("  ... and %d more", len(result.Candidates)-5)
						break
					}
					logger.Info("  would remove %s: %s", l.ExternalID, truncateTitle(l.Title))
				}
			}
		}

		if !cleanupDryRun {
			logger.Info("Removed %d listings total", totalDeleted)
		}
		return nil
	},
}

var addModelCmd = &cobra.Command{
	Use:   "add-model --brand <brand> --name <name> [--search-url <url>]",
	Short: "Registers a camera model to track.",
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := utils.NewLogger()
		_, store, err := openStore(logger)
		if err != nil {
			return err
		}
		defer store.Close()

		id, err := store.AddCameraModel(&models.CameraModel{
			Brand:       addBrand,
			Name:        addName,
			ReleaseYear: addYear,
			Mount:       addMount,
			SensorType:  addSensorType,
			SearchURL:   addSearchURL,
		})
		if err != nil {
			return err
		}

		logger.Info("Added camera model %d: %s %s", id, addBrand, addName)
		return nil
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats --model-id <id>",
	Short: "Prints price statistics and the trend forecast for one model.",
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := utils.NewLogger()
		_, store, err := openStore(logger)
		if err != nil {
			return err
		}
		defer store.Close()

		model, err := store.CameraModelByID(statsModelID)
		if err != nil {
			return err
		}

		listings, err := store.ListingsByModelSource(model.ID, models.SourceAvito)
		if err != nil {
			return err
		}
		points, err := store.PricePoints(model.ID, models.SourceAvito)
		if err != nil {
			return err
		}

		analytics := services.NewAnalytics(logger)
		analytics.Print(model, analytics.Report(listings, points))
		return nil
	},
}

func truncateTitle(s string) string {
	r := []rune(s)
	if len(r) <= 50 {
		return s
	}
	return string(r[:50]) + "…"
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
