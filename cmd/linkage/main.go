package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/reclink/internal/analyze"
	"github.com/reclink/internal/audit"
	"github.com/reclink/internal/block"
	"github.com/reclink/internal/compare"
	"github.com/reclink/internal/config"
	"github.com/reclink/internal/em"
	"github.com/reclink/internal/export"
	"github.com/reclink/internal/pipeline"
	"github.com/reclink/internal/record"
	"github.com/reclink/internal/store"
	"github.com/reclink/internal/web"
)

var (
	cfgFile string
	verbose bool

	// Loaded configuration, available to every subcommand
	cfg *config.Config
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "linkage",
		Short: "Probabilistic record linkage toolkit",
		Long:  `Generates paired synthetic datasets and links them with deterministic matching, blocking, similarity features, and an unsupervised Fellegi-Sunter mixture model`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cfg, err = config.Load(cfgFile)
			return err
		},
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to YAML config file")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "enable verbose stage tracing")

	rootCmd.AddCommand(createGenerateCmd())
	rootCmd.AddCommand(createExactCmd())
	rootCmd.AddCommand(createLinkCmd())
	rootCmd.AddCommand(createSweepCmd())
	rootCmd.AddCommand(createRunCmd())
	rootCmd.AddCommand(createExportCmd())
	rootCmd.AddCommand(createServeCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

// createGenerateCmd creates the dataset generation subcommand
func createGenerateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "generate",
		Short: "Generate a clean dataset A and a noised copy B",
		Run: func(cmd *cobra.Command, args []string) {
			if err := os.MkdirAll(cfg.Output.Dir, 0755); err != nil {
				log.Fatalf("Failed to create output directory: %v", err)
			}

			p := pipeline.New(cfg, verbose)
			a, b := p.GenerateDatasets()

			if err := record.WriteDataset(filepath.Join(cfg.Output.Dir, export.DatasetAFile), a); err != nil {
				log.Fatalf("Failed to write dataset A: %v", err)
			}
			if err := record.WriteDataset(filepath.Join(cfg.Output.Dir, export.DatasetBFile), b); err != nil {
				log.Fatalf("Failed to write dataset B: %v", err)
			}

			fmt.Printf("Generated %d records (seed %d, noise probability %.2f)\n",
				a.Len(), cfg.Population.Seed, cfg.Population.NoiseProbability)
			fmt.Printf("Wrote %s and %s to %s\n", export.DatasetAFile, export.DatasetBFile, cfg.Output.Dir)
		},
	}
}

// createExactCmd creates the deterministic matching subcommand
func createExactCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "exact",
		Short: "Run deterministic (exact) matching on all fields",
		Run: func(cmd *cobra.Command, args []string) {
			a, b := loadDatasets()

			fields := []string{record.FieldFirstName, record.FieldLastName, record.FieldBirthYear, record.FieldZipCode}
			pairs, err := block.ExactMatches(a, b, fields)
			if err != nil {
				log.Fatalf("Exact matching failed: %v", err)
			}

			if err := export.WriteExactMatches(cfg.Output.Dir, pairs, a); err != nil {
				log.Fatalf("Failed to write exact matches: %v", err)
			}

			fmt.Printf("Number of deterministic matches: %d\n", len(pairs))
		},
	}
}

// createLinkCmd creates the probabilistic linkage subcommand
func createLinkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "link",
		Short: "Block, compare, and fit the unsupervised match model",
		Run: func(cmd *cobra.Command, args []string) {
			a, b := loadDatasets()

			blocker := block.NewBlocker(cfg.Linkage.BlockingKey)
			candidates, err := blocker.Pairs(a, b)
			if err != nil {
				log.Fatalf("Blocking failed: %v", err)
			}
			fmt.Printf("Number of candidate pairs after blocking: %d\n", len(candidates))

			comparer := compare.NewComparer(cfg.Linkage.YearScale)
			vectors, err := comparer.ComputeAll(candidates, a, b)
			if err != nil {
				log.Fatalf("Feature computation failed: %v", err)
			}

			classifier := em.NewClassifier(em.Config{
				AgreeThreshold: cfg.Linkage.AgreeThreshold,
				MaxIterations:  cfg.EM.MaxIterations,
				Tolerance:      cfg.EM.Tolerance,
			})
			fit, err := classifier.Fit(vectors)
			if err != nil {
				log.Fatalf("EM fit failed: %v", err)
			}
			if !fit.Converged {
				fmt.Printf("WARNING: EM did not converge within %d iterations; using best estimate\n", fit.Iterations)
			}

			scored := make([]analyze.ScoredPair, len(vectors))
			for i, v := range vectors {
				scored[i] = analyze.ScoredPair{Pair: v.Pair, Posterior: fit.Posteriors[i]}
			}

			if err := export.WriteFeatures(cfg.Output.Dir, vectors); err != nil {
				log.Fatalf("Failed to write features: %v", err)
			}
			if err := export.WritePosteriors(cfg.Output.Dir, scored); err != nil {
				log.Fatalf("Failed to write posteriors: %v", err)
			}

			fmt.Printf("Scored %d candidate pairs (EM iterations: %d, match proportion: %.4f)\n",
				len(scored), fit.Iterations, fit.MatchProportion)
		},
	}
}

// createSweepCmd creates the threshold analysis subcommand
func createSweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Analyze match counts and quality across posterior thresholds",
		Run: func(cmd *cobra.Command, args []string) {
			a, b := loadDatasets()

			scored, err := export.ReadPosteriors(filepath.Join(cfg.Output.Dir, export.PosteriorsFile))
			if err != nil {
				log.Fatalf("Failed to load posteriors: %v", err)
			}

			counts, err := analyze.ThresholdSweep(scored, cfg.Analysis.GridStep)
			if err != nil {
				log.Fatalf("Threshold sweep failed: %v", err)
			}

			bins, err := analyze.BinByPosterior(scored, a, b, analyze.BinConfig{
				Bins:         cfg.Analysis.BinCount,
				MinPosterior: cfg.Analysis.MinPosterior,
			})
			if err != nil {
				log.Fatalf("Posterior binning failed: %v", err)
			}

			if err := export.WriteThresholdCounts(cfg.Output.Dir, counts); err != nil {
				log.Fatalf("Failed to write threshold counts: %v", err)
			}
			if err := export.WritePosteriorBins(cfg.Output.Dir, bins); err != nil {
				log.Fatalf("Failed to write posterior bins: %v", err)
			}

			printBins(bins)
		},
	}
}

// createRunCmd creates the end-to-end subcommand
func createRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the full pipeline: generate, match, link, analyze",
		Run: func(cmd *cobra.Command, args []string) {
			if err := os.MkdirAll(cfg.Output.Dir, 0755); err != nil {
				log.Fatalf("Failed to create output directory: %v", err)
			}

			startedAt := time.Now()
			p := pipeline.New(cfg, verbose)
			a, b := p.GenerateDatasets()

			result, err := p.Run(a, b)
			if err != nil {
				log.Fatalf("Pipeline failed: %v", err)
			}

			if err := writeAllOutputs(result); err != nil {
				log.Fatalf("Failed to write outputs: %v", err)
			}
			fmt.Printf("Result tables written to %s\n", cfg.Output.Dir)

			if cfg.Output.StorePath != "" {
				if err := persistRun(startedAt, result); err != nil {
					log.Fatalf("Failed to persist run: %v", err)
				}
				fmt.Printf("Run persisted to %s\n", cfg.Output.StorePath)
			}

			printBins(result.Bins)
		},
	}
}

// createExportCmd creates the export subcommand group
func createExportCmd() *cobra.Command {
	exportCmd := &cobra.Command{
		Use:   "export",
		Short: "Export result tables to external storage",
	}

	exportCmd.AddCommand(&cobra.Command{
		Use:   "pg",
		Short: "Load datasets and result tables into Postgres",
		Run: func(cmd *cobra.Command, args []string) {
			a, b := loadDatasets()

			vectors, err := export.ReadFeatures(filepath.Join(cfg.Output.Dir, export.FeaturesFile))
			if err != nil {
				log.Fatalf("Failed to load features: %v", err)
			}
			scored, err := export.ReadPosteriors(filepath.Join(cfg.Output.Dir, export.PosteriorsFile))
			if err != nil {
				log.Fatalf("Failed to load posteriors: %v", err)
			}

			exporter, err := export.NewPostgresExporter()
			if err != nil {
				log.Fatalf("Failed to connect to Postgres: %v", err)
			}
			defer exporter.Close()

			if err := exporter.ExportRun(a, b, vectors, scored); err != nil {
				log.Fatalf("Export failed: %v", err)
			}

			fmt.Printf("Exported %d records, %d feature rows, %d posterior rows\n",
				a.Len()+b.Len(), len(vectors), len(scored))
		},
	})

	return exportCmd
}

// createServeCmd creates the results API subcommand
func createServeCmd() *cobra.Command {
	var addr string

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve stored linkage results over a JSON API",
		Run: func(cmd *cobra.Command, args []string) {
			path := cfg.Output.StorePath
			if path == "" {
				log.Fatalf("No store configured: set output.store_path or RL_STORE_PATH")
			}

			st, err := store.Open(path)
			if err != nil {
				log.Fatalf("Failed to open store: %v", err)
			}
			defer st.Close()

			server := web.NewServer(st, addr)
			if err := server.Start(); err != nil {
				log.Fatalf("Server failed: %v", err)
			}
		},
	}

	serveCmd.Flags().StringVar(&addr, "addr", ":8080", "listen address")
	return serveCmd
}

// loadDatasets reads both dataset files from the output directory.
func loadDatasets() (*record.Dataset, *record.Dataset) {
	a, err := record.ReadDataset(filepath.Join(cfg.Output.Dir, export.DatasetAFile), "a")
	if err != nil {
		log.Fatalf("Failed to load dataset A: %v", err)
	}
	b, err := record.ReadDataset(filepath.Join(cfg.Output.Dir, export.DatasetBFile), "b")
	if err != nil {
		log.Fatalf("Failed to load dataset B: %v", err)
	}
	return a, b
}

// writeAllOutputs writes every result table for an end-to-end run.
func writeAllOutputs(result *pipeline.Result) error {
	dir := cfg.Output.Dir

	if err := record.WriteDataset(filepath.Join(dir, export.DatasetAFile), result.DatasetA); err != nil {
		return err
	}
	if err := record.WriteDataset(filepath.Join(dir, export.DatasetBFile), result.DatasetB); err != nil {
		return err
	}
	if err := export.WriteExactMatches(dir, result.ExactPairs, result.DatasetA); err != nil {
		return err
	}
	if err := export.WriteFeatures(dir, result.Vectors); err != nil {
		return err
	}
	if err := export.WritePosteriors(dir, result.Scored); err != nil {
		return err
	}
	if err := export.WriteThresholdCounts(dir, result.Thresholds); err != nil {
		return err
	}
	return export.WritePosteriorBins(dir, result.Bins)
}

// persistRun saves a run's artifacts and audit record to the store.
func persistRun(startedAt time.Time, result *pipeline.Result) error {
	st, err := store.Open(cfg.Output.StorePath)
	if err != nil {
		return err
	}
	defer st.Close()

	runID := audit.NewRunID()

	if err := st.SaveDataset(runID, result.DatasetA); err != nil {
		return err
	}
	if err := st.SaveDataset(runID, result.DatasetB); err != nil {
		return err
	}
	if err := st.SaveFeatures(runID, result.Vectors); err != nil {
		return err
	}
	if err := st.SavePosteriors(runID, result.Scored); err != nil {
		return err
	}
	if err := st.SaveThresholdCounts(runID, result.Thresholds); err != nil {
		return err
	}
	if err := st.SavePosteriorBins(runID, result.Bins); err != nil {
		return err
	}

	tracker := audit.NewTracker(st.DB)
	return tracker.RecordRun(audit.Run{
		RunID:        runID,
		StartedAt:    startedAt,
		FinishedAt:   time.Now(),
		Params:       cfg,
		RecordsA:     result.Stats.RecordsA,
		RecordsB:     result.Stats.RecordsB,
		ExactMatches: result.Stats.ExactMatches,
		Candidates:   result.Stats.Candidates,
		EMIterations: result.Stats.EMIterations,
		EMConverged:  result.Stats.EMConverged,
		Duration:     result.Stats.Duration,
	})
}

// printBins prints the posterior-bin diagnostic table.
func printBins(bins []analyze.BinDiagnostic) {
	fmt.Println("\nPosterior bin | Pairs | First name | Last name | Birth year")
	fmt.Println("--------------|-------|------------|-----------|-----------")
	for _, b := range bins {
		fmt.Printf("%-13s | %5d | %10s | %9s | %10s\n",
			b.Label, b.Pairs,
			formatMean(b.MeanFirstNameDist),
			formatMean(b.MeanLastNameDist),
			formatMean(b.MeanBirthYearDist))
	}
}

// formatMean renders a bin mean for console output.
func formatMean(v float64) string {
	if v != v {
		return "NA"
	}
	return fmt.Sprintf("%.3f", v)
}
