// Package config parses a ropforge.toml file into a Params tree the
// engine can run directly — the Go analogue of CrackersConfig and its
// Resolve method, with github.com/BurntSushi/toml in place of serde.
package config

import (
	"math/rand"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/ropforge/ropforge/internal/arch"
	"github.com/ropforge/ropforge/internal/engine"
	"github.com/ropforge/ropforge/internal/gadget"
	"github.com/ropforge/ropforge/internal/refprogram"
	"github.com/ropforge/ropforge/internal/smt"
	"github.com/ropforge/ropforge/internal/synthesis"
)

// LogLevel mirrors CrackersLogLevel's TOML vocabulary, mapped onto
// logrus's level set.
type LogLevel string

const (
	LogTrace LogLevel = "TRACE"
	LogDebug LogLevel = "DEBUG"
	LogWarn  LogLevel = "WARN"
	LogInfo  LogLevel = "INFO"
	LogError LogLevel = "ERROR"
)

// Logrus maps a config log level onto its logrus.Level, defaulting to
// Info for an unrecognized or empty value.
func (l LogLevel) Logrus() logrus.Level {
	switch l {
	case LogTrace:
		return logrus.TraceLevel
	case LogDebug:
		return logrus.DebugLevel
	case LogWarn:
		return logrus.WarnLevel
	case LogError:
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}

// MetaConfig is the [meta] table: run seed and log verbosity.
type MetaConfig struct {
	Seed     int64    `toml:"seed"`
	LogLevel LogLevel `toml:"log_level"`
}

// Strategy names the outer selection strategy a [synthesis] table picks.
type Strategy string

const (
	StrategySat      Strategy = "sat"
	StrategyOptimize Strategy = "optimize"
)

// SynthesisConfig is the [synthesis] table: strategy choice and search
// breadth/parallelism knobs.
type SynthesisConfig struct {
	Strategy             Strategy `toml:"strategy"`
	MaxCandidatesPerSlot int      `toml:"max_candidates_per_slot"`
	Parallel             int      `toml:"parallel"`
	CombineInstructions  bool     `toml:"combine_instructions"`
}

// ImageConfig is the [library] table: where to load the candidate
// gadget image from, and how deep to harvest.
type ImageConfig struct {
	Path               string   `toml:"path"`
	MaxInstructions    int      `toml:"max_instructions"`
	OperationBlacklist []string `toml:"operation_blacklist"`
}

// SpecificationConfig is the [specification] table: where the reference
// program's instructions come from and how many of them to read.
type SpecificationConfig struct {
	Path            string `toml:"path"`
	MaxInstructions int    `toml:"max_instructions"`
}

// Config is the top-level shape of a ropforge.toml file.
type Config struct {
	Meta          MetaConfig          `toml:"meta"`
	Specification SpecificationConfig `toml:"specification"`
	Library       ImageConfig         `toml:"library"`
	Synthesis     SynthesisConfig     `toml:"synthesis"`
	Constraint    *ConstraintConfig   `toml:"constraint"`
}

// Default returns a Config with the original's defaults: a random seed,
// Info logging, the Sat strategy, 200 candidates/slot, 6-way
// parallelism, and instruction combination on.
func Default() Config {
	return Config{
		Meta: MetaConfig{Seed: rand.Int63(), LogLevel: LogInfo},
		Synthesis: SynthesisConfig{
			Strategy: StrategySat, MaxCandidatesPerSlot: 200,
			Parallel: 6, CombineInstructions: true,
		},
	}
}

// Load reads and parses a TOML file at path.
func Load(path string) (Config, error) {
	var c Config
	if _, err := toml.DecodeFile(path, &c); err != nil {
		return Config{}, errors.Wrap(err, "config: decode")
	}
	return c, nil
}

// Params is a resolved, ready-to-run configuration: an engine.Config
// plus the reference program and run mode it should drive — the Go
// analogue of SynthesisParams.
type Params struct {
	Engine  *engine.Config
	Program *refprogram.Program
	Combine bool
}

// Resolve turns a parsed Config into a Params: it loads the gadget
// library from img via lifter, loads the reference program via
// loadProgram, and wires constraint generators from the [constraint]
// table into a ready-to-run engine.Config — the Go analogue of
// CrackersConfig::resolve. factory supplies independent solver sessions
// for the worker pool and candidate modeling.
func (c Config) Resolve(archInfo arch.ArchInfoProvider, lifter arch.Lifter, img arch.Image, factory smt.ContextFactory, loadProgram func(path string) (*refprogram.Program, error)) (*Params, error) {
	logrus.SetLevel(c.Meta.LogLevel.Logrus())

	program, err := loadProgram(c.Specification.Path)
	if err != nil {
		return nil, errors.Wrap(err, "config: loading reference program")
	}

	library, err := gadget.BuildFromImage(img, lifter, c.Library.MaxInstructions, logrus.StandardLogger())
	if err != nil {
		return nil, errors.Wrap(err, "config: building gadget library")
	}

	eng := &engine.Config{
		ArchInfo:          archInfo,
		Library:           library,
		Factory:           factory,
		MaxCandidatesSlot: c.Synthesis.MaxCandidatesPerSlot,
		Log:               logrus.StandardLogger(),
	}
	if c.Synthesis.Strategy == StrategyOptimize {
		eng.Mode = engine.ModeOptimize
	}

	if c.Constraint != nil {
		var pre, post []synthesis.StateConstraintGenerator
		var ptr []synthesis.TransitionConstraintGenerator
		if c.Constraint.Precondition != nil {
			pre = c.Constraint.Precondition.Generators(archInfo, c.Constraint.Pointer)
		}
		if c.Constraint.Postcondition != nil {
			post = c.Constraint.Postcondition.Generators(archInfo, c.Constraint.Pointer)
		}
		if c.Constraint.Pointer != nil {
			ptr = append(ptr, c.Constraint.Pointer.TransitionInvariant(archInfo))
		}
		eng.Preconditions = pre
		eng.Postconditions = post
		eng.PointerInvariants = ptr
	}

	return &Params{Engine: eng, Program: program, Combine: c.Synthesis.CombineInstructions}, nil
}
