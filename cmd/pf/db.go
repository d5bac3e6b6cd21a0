package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/zulandar/perfumery/internal/db"
)

func newDBCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Database management commands",
	}

	cmd.AddCommand(newDBMigrateCmd())
	cmd.AddCommand(newDBSeedCmd())
	return cmd
}

func newDBMigrateCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the catalog tables",
		Long:  "Connects to the configured database and auto-migrates brands, densities, genders, perfumes and perfume images.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDBMigrate(cmd, configPath)
		},
	}

	addConfigFlag(cmd, &configPath)
	return cmd
}

func runDBMigrate(cmd *cobra.Command, configPath string) error {
	out := cmd.OutOrStdout()

	cfg, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}
	defer db.Close(gormDB)
	fmt.Fprintf(out, "Connected to %s database\n", cfg.Database.Driver)

	if err := db.AutoMigrate(gormDB); err != nil {
		return err
	}
	fmt.Fprintf(out, "Migrated %d tables\n", len(db.AllModels()))
	return nil
}

func newDBSeedCmd() *cobra.Command {
	var (
		configPath string
		refPath    string
	)

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Insert reference data (brands, densities, genders)",
		Long: "Inserts brands, densities and genders. Names that already exist are left alone. " +
			"Without --file the default densities and genders are seeded.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDBSeed(cmd, configPath, refPath)
		},
	}

	addConfigFlag(cmd, &configPath)
	cmd.Flags().StringVarP(&refPath, "file", "f", "", "YAML file with brands, densities and genders lists")
	return cmd
}

func loadReference(path string) (db.Reference, error) {
	if path == "" {
		return db.DefaultReference, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return db.Reference{}, fmt.Errorf("read reference file: %w", err)
	}
	var ref db.Reference
	if err := yaml.Unmarshal(data, &ref); err != nil {
		return db.Reference{}, fmt.Errorf("parse reference file: %w", err)
	}
	return ref, nil
}

func runDBSeed(cmd *cobra.Command, configPath, refPath string) error {
	out := cmd.OutOrStdout()

	ref, err := loadReference(refPath)
	if err != nil {
		return err
	}
	_, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}
	defer db.Close(gormDB)

	if err := db.SeedReference(gormDB, ref); err != nil {
		return err
	}
	fmt.Fprintf(out, "Seeded %d brands, %d densities, %d genders\n", len(ref.Brands), len(ref.Densities), len(ref.Genders))
	return nil
}
