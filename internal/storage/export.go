package storage

import (
	"encoding/json"
	"io"

	"github.com/san-kum/qptasks/internal/config"
	"github.com/san-kum/qptasks/internal/sim"
)

type ExportData struct {
	Scenario    string             `json:"scenario"`
	Integrator  string             `json:"integrator"`
	Dt          float64            `json:"dt"`
	Duration    float64            `json:"duration"`
	Steps       int                `json:"steps"`
	Times       []float64          `json:"times"`
	Tasks       []string           `json:"tasks"`
	TaskErrors  [][]float64        `json:"task_errors"`
	AlphaDNorms []float64          `json:"alpha_d_norms"`
	Objective   []float64          `json:"objective"`
	Metrics     map[string]float64 `json:"metrics"`
}

// ExportJSON writes a run and its scenario summary as indented JSON.
func ExportJSON(w io.Writer, cfg *config.Config, result *sim.Result) error {
	data := ExportData{
		Scenario:    cfg.Name,
		Integrator:  cfg.Integrator,
		Dt:          cfg.Dt,
		Duration:    cfg.Duration,
		Steps:       result.StepsTaken,
		Times:       result.Times,
		Tasks:       result.TaskNames,
		TaskErrors:  result.TaskErrors,
		AlphaDNorms: result.AlphaDNorms,
		Objective:   result.Objective,
		Metrics:     finite(result.Metrics),
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}
