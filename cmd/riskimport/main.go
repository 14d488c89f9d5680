// Package main provides the riskimport CLI, which loads the curated risk
// dataset CSVs into the foodscan database.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/foodscan/foodscan/internal/domain"
	"github.com/foodscan/foodscan/internal/importer"
	"github.com/foodscan/foodscan/internal/repository"
	"github.com/foodscan/foodscan/internal/rules"
)

var version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:   "riskimport",
		Short: "Import the curated food-additive risk dataset",
		Long: `Riskimport loads the additive authorisation list, curated evidence
records, evidence sources, and interaction rule combinations from CSV
files into the foodscan database.`,
		Version: version,
	}

	rootCmd.AddCommand(newImportCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newImportCmd() *cobra.Command {
	var (
		dataDir    string
		configPath string
		skipRules  bool
	)

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import the CSV dataset from a directory",
		Long: `Imports additives_info.csv, risk_sources.csv, and risk_combinations.csv
from the given directory. Sources load before combinations so rule
references resolve in a single pass.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(cmd, dataDir, configPath, skipRules)
		},
	}

	cmd.Flags().StringVar(&dataDir, "data-dir", "./data", "Directory holding the dataset CSV files")
	cmd.Flags().StringVar(&configPath, "config", "", "Path to foodscan YAML config (default: tier defaults)")
	cmd.Flags().BoolVar(&skipRules, "skip-rule-validation", false, "Import combination rows without compiling them")

	return cmd
}

func runImport(cmd *cobra.Command, dataDir, configPath string, skipRules bool) error {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	cfg, err := domain.LoadConfig(configPath, domain.DefaultConfig())
	if err != nil {
		return err
	}

	repo, err := repository.New(cfg.Repository)
	if err != nil {
		return fmt.Errorf("open repository: %w", err)
	}
	defer repo.Close()

	var validator importer.RuleValidator
	if !skipRules {
		engine, err := rules.NewEngine(logger)
		if err != nil {
			return fmt.Errorf("create rule engine: %w", err)
		}
		defer engine.Close()
		validator = engine
	}

	im := importer.New(repo, validator, logger)
	summary, err := im.ImportDir(cmd.Context(), dataDir)
	if err != nil {
		return err
	}

	fmt.Printf("Imported from %s\n", dataDir)
	fmt.Printf("  additives: %d\n", summary.Additives)
	fmt.Printf("  curated:   %d\n", summary.Curated)
	fmt.Printf("  sources:   %d\n", summary.Sources)
	fmt.Printf("  rules:     %d\n", summary.Rules)
	if summary.Skipped > 0 {
		fmt.Printf("  skipped:   %d\n", summary.Skipped)
	}
	return nil
}
