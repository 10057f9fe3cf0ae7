package cli

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/roach88/histsess/internal/store"
)

// SeedOptions holds flags for the seed command.
type SeedOptions struct {
	*RootOptions
	Database string
}

// SeedSummary reports what a fixture loaded.
type SeedSummary struct {
	Database    string `json:"database"`
	Branches    int    `json:"branches"`
	Items       int    `json:"items"`
	Samples     int    `json:"samples"`
	Annotations int    `json:"annotations"`
}

// NewSeedCommand creates the seed command.
func NewSeedCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SeedOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "seed <fixture.yaml>",
		Short: "Load a fixture into a history database",
		Long: `Create the database if needed and load branches, items, attributes,
samples and annotations from a YAML fixture. Samples are written with
insert-replace semantics, so seeding the same fixture twice is harmless.

Example:
  histsess seed --db ./plant.db ./fixtures/plant.yaml`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSeed(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (defaults to the config database)")

	return cmd
}

func runSeed(opts *SeedOptions, path string, cmd *cobra.Command) error {
	cfg, err := opts.Config()
	if err != nil {
		return err
	}
	dbPath := opts.Database
	if dbPath == "" {
		dbPath = cfg.Database
	}
	if dbPath == "" {
		return NewExitError(ExitCommandError, "no database: pass --db or set database in the config file")
	}

	fixture, err := loadFixture(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load fixture", err)
	}

	st, err := store.Open(dbPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	if err := st.Seed(cmd.Context(), fixture); err != nil {
		return WrapExitError(ExitFailure, "failed to seed database", err)
	}

	summary := SeedSummary{
		Database:    dbPath,
		Branches:    len(fixture.Branches),
		Items:       len(fixture.Items),
		Samples:     len(fixture.Samples),
		Annotations: len(fixture.Annotations),
	}
	return opts.formatter(cmd).Render(summary, func(w io.Writer) {
		fmt.Fprintf(w, "Seeded %s: %d items, %d samples, %d annotations\n",
			summary.Database, summary.Items, summary.Samples, summary.Annotations)
	})
}

// loadFixture decodes a fixture file, rejecting unknown fields.
func loadFixture(path string) (store.Fixture, error) {
	var f store.Fixture
	data, err := os.ReadFile(path)
	if err != nil {
		return f, err
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return f, fmt.Errorf("parse %s: %w", path, err)
	}
	return f, nil
}
