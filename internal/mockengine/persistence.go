package mockengine

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const stateVersion = 1

// runSnapshot is the on-disk form of the last bot run
type runSnapshot struct {
	Runs    []timeframeRun `json:"runs"`
	SavedAt time.Time      `json:"saved_at"`
	Version int            `json:"version"`
}

// StatePersistence keeps the last run's trades and profits across restarts,
// the way the engine writes its results file.
type StatePersistence struct {
	filePath string
	logger   *slog.Logger
	mu       sync.Mutex
	lastSave time.Time
}

// NewStatePersistence creates a persistence handler for filePath
func NewStatePersistence(filePath string, logger *slog.Logger) *StatePersistence {
	return &StatePersistence{
		filePath: filePath,
		logger:   logger,
	}
}

// Load reads the stored runs. A missing file or a version mismatch yields no runs.
func (p *StatePersistence) Load() ([]timeframeRun, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	data, err := os.ReadFile(p.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			p.logger.Info("[MOCK] No stored results, starting fresh", "path", p.filePath)
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read state file: %w", err)
	}

	var snapshot runSnapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("failed to parse state file: %w", err)
	}

	if snapshot.Version != stateVersion {
		p.logger.Warn("[MOCK] State version mismatch, starting fresh",
			"file_version", snapshot.Version,
			"expected_version", stateVersion,
		)
		return nil, nil
	}

	p.logger.Info("[MOCK] Stored results loaded",
		"path", p.filePath,
		"timeframes", len(snapshot.Runs),
		"saved_at", snapshot.SavedAt.Format(time.RFC3339),
	)
	return snapshot.Runs, nil
}

// Save writes runs to disk atomically through a temp file and rename
func (p *StatePersistence) Save(runs []timeframeRun) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	data, err := json.MarshalIndent(runSnapshot{
		Runs:    runs,
		SavedAt: time.Now().UTC(),
		Version: stateVersion,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(p.filePath), 0755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	tempFile := p.filePath + ".tmp"
	if err := os.WriteFile(tempFile, data, 0644); err != nil {
		return fmt.Errorf("failed to write temp state file: %w", err)
	}
	if err := os.Rename(tempFile, p.filePath); err != nil {
		os.Remove(tempFile)
		return fmt.Errorf("failed to rename state file: %w", err)
	}

	p.lastSave = time.Now()
	p.logger.Debug("[MOCK] Results saved", "path", p.filePath, "timeframes", len(runs))
	return nil
}

// Delete removes the state file
func (p *StatePersistence) Delete() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := os.Remove(p.filePath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete state file: %w", err)
	}
	return nil
}

// FilePath returns the state file path
func (p *StatePersistence) FilePath() string {
	return p.filePath
}
