package provisioning

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// SaveArtifact writes the run summary as indented JSON. The file is
// replaced atomically so a crashed run never leaves a truncated artifact.
func SaveArtifact(path string, summary Summary) error {
	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return fmt.Errorf("artifact: encode: %w", err)
	}
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".provision-*.json")
	if err != nil {
		return fmt.Errorf("artifact: %w", err)
	}
	defer func() {
		_ = os.Remove(tmp.Name())
	}()
	if _, err := tmp.Write(append(data, '\n')); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("artifact: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("artifact: close: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("artifact: %w", err)
	}
	return nil
}

// LoadArtifact reads a summary written by SaveArtifact.
func LoadArtifact(path string) (Summary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Summary{}, fmt.Errorf("artifact: %w", err)
	}
	var summary Summary
	if err := json.Unmarshal(data, &summary); err != nil {
		return Summary{}, fmt.Errorf("artifact: decode %s: %w", path, err)
	}
	return summary, nil
}
