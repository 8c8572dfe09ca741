// Command pedigree answers inbreeding coefficient queries against the
// configured record store and imports pedigree records into it. Results are
// printed as JSON on stdout.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"pedigreecore/internal/config"
	"pedigreecore/internal/core"
	"pedigreecore/internal/logging"
	"pedigreecore/internal/pedigree"
	"pedigreecore/internal/recordsource"
	"pedigreecore/pkg/domain"
)

var exitFunc = os.Exit

func main() {
	code := cli(os.Args[1:], os.Stdout, os.Stderr)
	exitFunc(code)
}

// app holds what every subcommand needs once the configuration is loaded.
type app struct {
	configPath string
	stdout     io.Writer
	stderr     io.Writer

	log   *logrus.Logger
	store core.PersistentStore
	svc   *core.Service
}

func cli(args []string, stdout, stderr io.Writer) int {
	a := &app{stdout: stdout, stderr: stderr}
	root := &cobra.Command{
		Use:           "pedigree",
		Short:         "Inbreeding coefficient queries over the colony pedigree",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.open()
		},
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			return a.close()
		},
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "YAML configuration file")
	root.AddCommand(a.coiCmd(), a.pairingCmd(), a.breedingCmd(), a.importCmd())

	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	if err := root.ExecuteContext(context.Background()); err != nil {
		_ = a.close()
		_, _ = fmt.Fprintf(stderr, "pedigree: %v\n", err)
		return 1
	}
	return 0
}

func (a *app) open() error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.log, err = logging.New(cfg.Log.Level, cfg.Log.Format, a.stderr); err != nil {
		return err
	}
	a.store, err = core.OpenPersistentStore(cfg.StorageSettings(), core.NewPolicyRulesEngine(cfg.PairingPolicy()))
	if err != nil {
		return fmt.Errorf("open record store: %w", err)
	}
	fetcher, err := recordsource.Layered(recordsource.Store(a.store), cfg.Engine.CacheSize, cfg.Batch.FetchRate)
	if err != nil {
		return err
	}
	a.svc = core.NewService(a.store,
		core.WithFetcher(fetcher),
		core.WithLogger(a.log),
		core.WithDepths(cfg.Engine.IndividualDepth, cfg.Engine.PairingDepth),
	)
	return nil
}

func (a *app) close() error {
	if a.store == nil {
		return nil
	}
	store := a.store
	a.store = nil
	return core.ClosePersistentStore(store)
}

func (a *app) print(v any) error {
	enc := json.NewEncoder(a.stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (a *app) coiCmd() *cobra.Command {
	var depth int
	cmd := &cobra.Command{
		Use:   "coi <id>",
		Short: "Coefficient of inbreeding of a recorded individual",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := a.svc.Inbreeding(cmd.Context(), args[0], depth)
			if err != nil {
				return err
			}
			return a.print(res)
		},
	}
	cmd.Flags().IntVar(&depth, "depth", 0, "pedigree depth bound (default from config)")
	return cmd
}

// explainedPairing is the pairing response with its per-ancestor breakdown.
type explainedPairing struct {
	core.PairingResult
	Breakdown pedigree.Breakdown `json:"breakdown"`
}

func (a *app) pairingCmd() *cobra.Command {
	var (
		depth   int
		explain bool
	)
	cmd := &cobra.Command{
		Use:   "pairing <sire> <dam>",
		Short: "Coefficient an offspring of a prospective mating would have",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := a.svc.Pairing(cmd.Context(), args[0], args[1], depth)
			if err != nil {
				return err
			}
			if !explain {
				return a.print(res)
			}
			b, err := a.svc.Explain(cmd.Context(), args[0], args[1], depth)
			if err != nil {
				return err
			}
			return a.print(explainedPairing{PairingResult: res, Breakdown: b})
		},
	}
	cmd.Flags().IntVar(&depth, "depth", 0, "pedigree depth bound per parent (default from config)")
	cmd.Flags().BoolVar(&explain, "explain", false, "include the contribution of each common ancestor")
	return cmd
}

func (a *app) breedingCmd() *cobra.Command {
	var depth int
	cmd := &cobra.Command{
		Use:   "breeding <unit-id>",
		Short: "Pairing coefficients for every male x female of a breeding unit",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eval, err := a.svc.EvaluateBreedingUnit(cmd.Context(), args[0], depth)
			if err != nil {
				return err
			}
			return a.print(eval)
		},
	}
	cmd.Flags().IntVar(&depth, "depth", 0, "pedigree depth bound per parent (default from config)")
	return cmd
}

// importOutput reports what an import created and any rule findings.
type importOutput struct {
	Created    core.ImportSummary `json:"created"`
	Violations []domain.Violation `json:"violations,omitempty"`
}

func (a *app) importCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file.json>",
		Short: "Import organisms and breeding units from a JSON file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			var ds core.Dataset
			if err := json.Unmarshal(raw, &ds); err != nil {
				return fmt.Errorf("decode %s: %w", args[0], err)
			}
			summary, res, err := a.svc.Import(cmd.Context(), ds)
			var blocked domain.RuleViolationError
			if errors.As(err, &blocked) {
				_ = a.print(importOutput{Violations: blocked.Result.Violations})
				return err
			}
			if err != nil {
				return err
			}
			return a.print(importOutput{Created: summary, Violations: res.Violations})
		},
	}
}
