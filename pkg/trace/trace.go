// Package trace persists per-task trajectory records for later replay:
// one JSON document per task with the ordered step list, plus the step
// screenshots as separate image files referenced by path.
package trace

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/deskstep/deskstep/pkg/types"
)

// Trajectory is the full record of one episode. It is append-only and
// owned by the evaluation engine for the lifetime of one task.
type Trajectory struct {
	RunID       string               `json:"run_id"`
	TaskID      string               `json:"task_id"`
	Instruction string               `json:"instruction"`
	Provider    string               `json:"provider"`
	Steps       []types.HistoryEntry `json:"steps"`
	Terminal    types.TerminalStatus `json:"terminal"`
	Score       types.Score          `json:"score"`
	Error       string               `json:"error,omitempty"`
	StartedAt   time.Time            `json:"started_at"`
	FinishedAt  time.Time            `json:"finished_at"`

	// FinalMessage is the completion message the agent attached to its
	// done action, if any.
	FinalMessage string `json:"final_message,omitempty"`
}

// Writer stores trajectories and screenshots under <root>/<runID>/.
type Writer struct {
	root  string
	runID string
}

func NewWriter(root, runID string) (*Writer, error) {
	dir := filepath.Join(root, runID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating trace directory %q: %w", dir, err)
	}
	return &Writer{root: root, runID: runID}, nil
}

// SaveScreenshot writes one step's screenshot and returns its path for
// the trajectory record.
func (w *Writer) SaveScreenshot(taskID string, stepIndex int, shot []byte) (string, error) {
	dir := filepath.Join(w.root, w.runID, taskID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("creating screenshot directory %q: %w", dir, err)
	}
	path := filepath.Join(dir, fmt.Sprintf("step_%03d.png", stepIndex))
	if err := os.WriteFile(path, shot, 0644); err != nil {
		return "", fmt.Errorf("writing screenshot %q: %w", path, err)
	}
	return path, nil
}

// Write persists the trajectory document. Called both at normal episode
// end and when flushing a partial trajectory on cancellation.
func (w *Writer) Write(traj *Trajectory) error {
	path := filepath.Join(w.root, w.runID, traj.TaskID+".json")
	data, err := json.MarshalIndent(traj, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling trajectory for task %q: %w", traj.TaskID, err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing trajectory %q: %w", path, err)
	}
	return nil
}

// Dir returns the directory this writer stores the run under.
func (w *Writer) Dir() string {
	return filepath.Join(w.root, w.runID)
}
