// Command ropforge drives gadget-chain synthesis from a TOML config
// file: scaffolding a new one, running synthesis against it, or
// benchmarking a range of runs — the CLI entry point for the engine
// assembled in internal/engine and internal/config.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/fatih/color"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ropforge/ropforge/internal/arch/elflift"
	"github.com/ropforge/ropforge/internal/arch/toyarch"
	"github.com/ropforge/ropforge/internal/bench"
	"github.com/ropforge/ropforge/internal/config"
	"github.com/ropforge/ropforge/internal/refprogram"
	"github.com/ropforge/ropforge/internal/smt/z3solver"
	"github.com/ropforge/ropforge/internal/synthesis"
)

func main() {
	root := &cobra.Command{
		Use:   "ropforge",
		Short: "Synthesize gadget chains that refine a reference computation",
	}
	root.AddCommand(newCmd(), synthCmd(), benchCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "new [config]",
		Short: "Write a template ropforge.toml to the given path",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "./ropforge.toml"
			if len(args) == 1 {
				path = args[0]
			}
			return writeTemplate(path)
		},
	}
}

func synthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "synth <config>",
		Short: "Run gadget-chain synthesis against a config file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSynth(args[0])
		},
	}
}

func benchCmd() *cobra.Command {
	var runs int
	var out string
	c := &cobra.Command{
		Use:   "bench <config>",
		Short: "Run synthesis repeatedly against a config, reporting timing statistics",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBench(args[0], runs, out)
		},
	}
	c.Flags().IntVar(&runs, "runs", 10, "number of synthesis runs to time")
	c.Flags().StringVar(&out, "out", "", "write a CSV of per-run timings to this path (stdout if empty)")
	return c
}

// writeTemplate mirrors the original binary's `new` subcommand: a
// config with every table populated with representative placeholder
// values, ready for the user to edit in place.
func writeTemplate(path string) error {
	c := config.Default()
	c.Specification = config.SpecificationConfig{Path: "spec.o", MaxInstructions: 8}
	c.Library = config.ImageConfig{Path: "library.o", MaxInstructions: 1}
	c.Constraint = &config.ConstraintConfig{
		Precondition: &config.StateEqualityConstraint{
			Register: map[string]int64{"ABC": 123},
			Pointer:  map[string]string{"DEF": "hello"},
			Memory:   &config.MemoryEqualityConstraint{Space: "ram", Address: 0x800000, Size: 4},
		},
		Postcondition: &config.StateEqualityConstraint{
			Register: map[string]int64{"ABC": 456},
			Pointer:  map[string]string{"DEF": "goodbye"},
			Memory:   &config.MemoryEqualityConstraint{Space: "ram", Address: 0x800000, Size: 4},
		},
		Pointer: &config.PointerRangeConstraints{
			Read:  []config.PointerRange{{Min: 0xc0000000, Max: 0xf0000000}},
			Write: []config.PointerRange{{Min: 0xc0000000, Max: 0xf0000000}},
		},
	}

	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "ropforge new")
	}
	defer f.Close()
	if err := toml.NewEncoder(f).Encode(c); err != nil {
		return errors.Wrap(err, "ropforge new: encoding template")
	}
	return nil
}

func runSynth(path string) error {
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	params, err := resolve(cfg)
	if err != nil {
		return err
	}

	ctx := context.Background()
	result, err := decide(ctx, params)
	if err != nil {
		return errors.Wrap(err, "ropforge synth")
	}

	switch result.Kind {
	case synthesis.DecisionFound:
		logrus.Info(color.GreenString("synthesis successful"))
		fmt.Println(result.Model.String())
	case synthesis.DecisionUnsat:
		logrus.Error(color.RedString("synthesis unsuccessful: no assignment exists"))
		fmt.Printf("infeasible steps: %v\n", result.UnsatSlots)
		os.Exit(1)
	}
	return nil
}

func runBench(path string, runs int, out string) error {
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	w := os.Stdout
	if out != "" {
		f, err := os.Create(out)
		if err != nil {
			return errors.Wrap(err, "ropforge bench")
		}
		defer f.Close()
		w = f
	}
	report, err := bench.Run(context.Background(), runs, func(ctx context.Context) (synthesis.DecisionResult, error) {
		params, err := resolve(cfg)
		if err != nil {
			return synthesis.DecisionResult{}, err
		}
		return decide(ctx, params)
	})
	if err != nil {
		return errors.Wrap(err, "ropforge bench")
	}
	return report.WriteCSV(w)
}

// resolve loads the gadget library image and reference program named
// by cfg and wires them into a ready-to-run engine.Config.
func resolve(cfg config.Config) (*config.Params, error) {
	archInfo := toyarch.New()
	img, err := elflift.Load(cfg.Library.Path)
	if err != nil {
		return nil, errors.Wrap(err, "loading gadget library image")
	}
	factory := z3solver.NewFactory("")

	loadProgram := func(path string) (*refprogram.Program, error) {
		return loadReferenceProgram(path, cfg.Specification, archInfo)
	}

	return cfg.Resolve(archInfo, img, img, factory, loadProgram)
}

// decide runs single or combined synthesis per params.Combine.
func decide(ctx context.Context, params *config.Params) (synthesis.DecisionResult, error) {
	if params.Combine {
		return params.Engine.RunCombined(ctx, params.Program)
	}
	return params.Engine.RunSingle(ctx, params.Program)
}

// loadReferenceProgram disassembles the binary at path up to
// MaxInstructions starting at its entry symbol, turning each decoded
// instruction into its own reference step.
func loadReferenceProgram(path string, spec config.SpecificationConfig, archInfo *toyarch.Arch) (*refprogram.Program, error) {
	img, err := elflift.Load(path)
	if err != nil {
		return nil, errors.Wrap(err, "loading reference program image")
	}
	addr, ok := img.SymbolAddress("_start")
	if !ok {
		return nil, errors.New("reference program image has no _start symbol")
	}
	max := spec.MaxInstructions
	if max <= 0 {
		max = 1
	}
	instrs := img.ReadUntilBranch(addr, max)
	steps := make([]refprogram.Step, len(instrs))
	for i, in := range instrs {
		steps[i] = refprogram.NewStep(in)
	}
	return refprogram.New(steps, refprogram.NewValuation(nil)), nil
}
