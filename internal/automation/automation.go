// Package automation runs scripted sequences of scenarios and one
// dimensional parameter sweeps.
package automation

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/san-kum/qptasks/internal/config"
	"github.com/san-kum/qptasks/internal/experiment"
	"github.com/san-kum/qptasks/internal/qp"
	"github.com/san-kum/qptasks/internal/sim"
	"github.com/san-kum/qptasks/internal/storage"
)

// Script is a named list of runs loaded from YAML.
type Script struct {
	Name        string       `yaml:"name"`
	Description string       `yaml:"description"`
	Steps       []ScriptStep `yaml:"steps"`
}

// ScriptStep picks a scenario by preset name or file and overrides a few
// of its settings. Config paths are relative to the script file.
type ScriptStep struct {
	Preset     string             `yaml:"preset,omitempty"`
	Config     string             `yaml:"config,omitempty"`
	Integrator string             `yaml:"integrator,omitempty"`
	Duration   float64            `yaml:"duration,omitempty"`
	Dt         float64            `yaml:"dt,omitempty"`
	Params     map[string]float64 `yaml:"params,omitempty"`
	Save       bool               `yaml:"save,omitempty"`
}

// StepResult is the outcome of one script step.
type StepResult struct {
	Scenario string
	RunID    string
	Result   *sim.Result
}

// LoadScript loads a script from a YAML file
func LoadScript(path string) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var script Script
	if err := yaml.Unmarshal(data, &script); err != nil {
		return nil, errors.Wrapf(err, "script %s", path)
	}
	dir := filepath.Dir(path)
	for i := range script.Steps {
		if c := script.Steps[i].Config; c != "" && !filepath.IsAbs(c) {
			script.Steps[i].Config = filepath.Join(dir, c)
		}
	}
	return &script, nil
}

func (s ScriptStep) scenario() (*config.Config, error) {
	var cfg *config.Config
	switch {
	case s.Config != "":
		c, err := config.Load(s.Config)
		if err != nil {
			return nil, err
		}
		cfg = c
	case s.Preset != "":
		cfg = config.GetPreset(s.Preset)
		if cfg == nil {
			return nil, errors.Wrapf(qp.ErrInvalidArgument, "unknown preset %q", s.Preset)
		}
	default:
		return nil, errors.Wrap(qp.ErrInvalidArgument, "step needs a preset or a config")
	}
	if s.Integrator != "" {
		cfg.Integrator = s.Integrator
	}
	if s.Duration > 0 {
		cfg.Duration = s.Duration
	}
	if s.Dt > 0 {
		cfg.Dt = s.Dt
	}
	return cfg, nil
}

// RunScript executes every step in order. Steps marked Save are written to
// store when it is not nil. It stops at the first failing step and returns
// the results gathered so far.
func RunScript(ctx context.Context, script *Script, store *storage.Store, logger *zap.SugaredLogger) ([]StepResult, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	results := make([]StepResult, 0, len(script.Steps))

	for i, step := range script.Steps {
		cfg, err := step.scenario()
		if err != nil {
			return results, errors.Wrapf(err, "step %d", i+1)
		}
		logger.Infow("script step", "step", i+1, "of", len(script.Steps), "scenario", cfg.Name)

		exp, err := experiment.Build(cfg, logger)
		if err != nil {
			return results, errors.Wrapf(err, "step %d setup", i+1)
		}
		for k, v := range step.Params {
			if err := exp.SetParam(k, v); err != nil {
				return results, errors.Wrapf(err, "step %d", i+1)
			}
		}

		result, err := exp.Run(ctx)
		if err != nil {
			return results, errors.Wrapf(err, "step %d run", i+1)
		}

		out := StepResult{Scenario: cfg.Name, Result: result}
		if step.Save && store != nil {
			if out.RunID, err = store.Save(cfg, result); err != nil {
				return results, errors.Wrapf(err, "step %d save", i+1)
			}
		}
		results = append(results, out)
	}

	return results, nil
}

// ParameterSweep runs one scenario across evenly spaced values of a single
// live parameter.
type ParameterSweep struct {
	Scenario *config.Config
	Param    string
	Min      float64
	Max      float64
	NumSteps int
}

// SweepResult holds the metrics of one sweep point.
type SweepResult struct {
	ParamValue float64
	Metrics    map[string]float64
}

// RunSweep executes a parameter sweep. Each point starts from a freshly
// built experiment so earlier values leave no trace.
func RunSweep(ctx context.Context, sweep *ParameterSweep, logger *zap.SugaredLogger) ([]SweepResult, error) {
	if sweep.NumSteps < 2 {
		return nil, errors.Wrapf(qp.ErrInvalidArgument, "sweep needs at least 2 steps, got %d", sweep.NumSteps)
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	results := make([]SweepResult, 0, sweep.NumSteps)
	paramStep := (sweep.Max - sweep.Min) / float64(sweep.NumSteps-1)

	for i := 0; i < sweep.NumSteps; i++ {
		paramVal := sweep.Min + float64(i)*paramStep

		exp, err := experiment.Build(sweep.Scenario, logger)
		if err != nil {
			return nil, err
		}
		if err := exp.SetParam(sweep.Param, paramVal); err != nil {
			return nil, errors.Wrap(err, fmt.Sprintf("%s=%g", sweep.Param, paramVal))
		}
		result, err := exp.Run(ctx)
		if err != nil {
			return nil, err
		}

		results = append(results, SweepResult{ParamValue: paramVal, Metrics: result.Metrics})
		logger.Debugw("sweep", "point", i+1, "of", sweep.NumSteps, "param", sweep.Param, "value", paramVal)
	}

	return results, nil
}
