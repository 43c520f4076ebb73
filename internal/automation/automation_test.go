package automation

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	. "github.com/onsi/gomega"

	"github.com/san-kum/qptasks/internal/config"
	"github.com/san-kum/qptasks/internal/logging"
	"github.com/san-kum/qptasks/internal/qp"
	"github.com/san-kum/qptasks/internal/storage"
)

const script = `name: smoke
description: reach twice, once stiffer, then a stored posture run
steps:
  - preset: reach
    duration: 0.5
  - preset: reach
    duration: 0.5
    params:
      reach.stiffness: 100
  - config: posture.yaml
    duration: 0.25
    integrator: euler
    save: true
`

func writeScript(t *testing.T) string {
	dir := t.TempDir()
	if err := config.Save(filepath.Join(dir, "posture.yaml"), config.GetPreset("posture")); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, "smoke.yaml")
	if err := os.WriteFile(path, []byte(script), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRunScript(t *testing.T) {
	g := NewWithT(t)

	s, err := LoadScript(writeScript(t))
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(s.Steps).To(HaveLen(3))
	g.Expect(filepath.IsAbs(s.Steps[2].Config)).To(BeTrue())

	store := storage.New(t.TempDir())
	results, err := RunScript(context.Background(), s, store, logging.NewTestLogger(t))
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(results).To(HaveLen(3))

	g.Expect(results[0].RunID).To(BeEmpty())
	g.Expect(results[1].Result.Metrics["final_error.reach"]).To(BeNumerically("<", results[0].Result.Metrics["final_error.reach"]))
	g.Expect(results[2].Scenario).To(Equal("posture"))
	g.Expect(results[2].Result.StepsTaken).To(Equal(50))

	runs, err := store.List()
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(runs).To(HaveLen(1))
	g.Expect(runs[0].ID).To(Equal(results[2].RunID))
	g.Expect(runs[0].Integrator).To(Equal("euler"))
}

func TestRunScriptStopsAtBadStep(t *testing.T) {
	g := NewWithT(t)

	s := &Script{Steps: []ScriptStep{
		{Preset: "reach", Duration: 0.05},
		{Preset: "nope"},
		{Preset: "reach"},
	}}
	results, err := RunScript(context.Background(), s, nil, nil)
	g.Expect(err).To(MatchError(qp.ErrInvalidArgument))
	g.Expect(err.Error()).To(ContainSubstring("step 2"))
	g.Expect(results).To(HaveLen(1))
}

func TestRunSweep(t *testing.T) {
	g := NewWithT(t)

	cfg := config.GetPreset("reach")
	cfg.Duration = 0.5
	res, err := RunSweep(context.Background(), &ParameterSweep{
		Scenario: cfg, Param: "reach.stiffness", Min: 4, Max: 64, NumSteps: 3,
	}, nil)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(res).To(HaveLen(3))
	g.Expect(res[1].ParamValue).To(Equal(34.0))
	g.Expect(res[2].Metrics["final_error"]).To(BeNumerically("<", res[0].Metrics["final_error"]))

	_, err = RunSweep(context.Background(), &ParameterSweep{Scenario: cfg, Param: "reach.stiffness", NumSteps: 1}, nil)
	g.Expect(err).To(MatchError(qp.ErrInvalidArgument))
}
