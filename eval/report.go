package eval

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// Summary is the human-facing performance overview.
type Summary struct {
	TotalTasks            int            `json:"total_tasks"`
	SuccessRate           float64        `json:"success_rate"`
	ReflectionRate        float64        `json:"reflection_rate"`
	AverageReasoningSteps float64        `json:"average_reasoning_steps"`
	AverageScores         Scores         `json:"average_scores"`
	ToolUsageCount        map[string]int `json:"tools_usage_count"`
	MostUsedTool          string         `json:"most_used_tool"`
}

// Summary summarises the current history.
func (e *Evaluator) Summary() Summary {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return summarize(e.history, e.snapshot)
}

func summarize(history []Entry, snap Snapshot) Summary {
	s := Summary{
		TotalTasks:     len(history),
		ToolUsageCount: make(map[string]int),
		MostUsedTool:   "none",
		AverageScores: Scores{
			Success:           snap.SuccessRate,
			Efficiency:        snap.EfficiencyScore,
			ToolUsage:         snap.ToolUsageScore,
			ReflectionQuality: snap.ReflectionQuality,
			Overall:           snap.OverallScore,
		},
	}
	if len(history) == 0 {
		return s
	}

	var steps, reflections, successes int
	for _, en := range history {
		steps += en.Steps
		if en.Reflected {
			reflections++
		}
		if en.Success {
			successes++
		}
		for _, tool := range en.ToolsUsed {
			s.ToolUsageCount[tool]++
		}
	}
	n := float64(len(history))
	s.SuccessRate = float64(successes) / n
	s.ReflectionRate = float64(reflections) / n
	s.AverageReasoningSteps = math.Round(float64(steps)/n*100) / 100

	tools := make([]string, 0, len(s.ToolUsageCount))
	for name := range s.ToolUsageCount {
		tools = append(tools, name)
	}
	sort.Strings(tools)
	best := 0
	for _, name := range tools {
		if c := s.ToolUsageCount[name]; c > best {
			best = c
			s.MostUsedTool = name
		}
	}
	return s
}

// Report is the JSON document written by SaveReport.
type Report struct {
	Timestamp time.Time `json:"timestamp"`
	Summary   Summary   `json:"summary"`
	Snapshot  Snapshot  `json:"snapshot"`
	Weights   Weights   `json:"weights"`
	History   []Entry   `json:"task_history"`
}

// Report builds a report of the current state.
func (e *Evaluator) Report() Report {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return Report{
		Timestamp: time.Now().UTC(),
		Summary:   summarize(e.history, e.snapshot),
		Snapshot:  e.snapshot,
		Weights:   e.weights,
		History:   append([]Entry(nil), e.history...),
	}
}

// DefaultReportPath returns <dir>/evaluation_report_<timestamp>.json.
func DefaultReportPath(dir string, now time.Time) string {
	return filepath.Join(dir, fmt.Sprintf("evaluation_report_%s.json", now.Format("20060102_150405")))
}

// SaveReport writes the report as indented JSON to path, creating parent
// directories. It returns the path written.
func (e *Evaluator) SaveReport(path string) (string, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("failed to create report directory: %w", err)
		}
	}
	data, err := json.MarshalIndent(e.Report(), "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode report: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write report: %w", err)
	}
	return path, nil
}
