package transcript

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Save renders t in format and writes it to dir under its canonical file
// name, replacing any earlier save of the same transcript. Returns the path.
func Save(dir, format string, t *Transcript) (string, error) {
	data, err := RendererFor(format).Render(t)
	if err != nil {
		return "", err
	}
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating transcript directory: %w", err)
	}
	path := filepath.Join(dir, Filename(t, format))
	if err := writeAtomic(path, data); err != nil {
		return "", err
	}
	return path, nil
}

// writeAtomic writes data via a temp file + os.Rename so readers such as
// `view --follow` never see a partial file.
func writeAtomic(path string, data []byte) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".parley-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to write transcript: %w", err)
	}
	tmpName := tmp.Name()

	defer func() {
		if err != nil {
			os.Remove(tmpName)
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write transcript: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("failed to write transcript: %w", err)
	}
	if err = os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("failed to write transcript: %w", err)
	}
	if err = os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to write transcript: %w", err)
	}
	return nil
}

func readFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("file not found: %s", path)
		}
		return nil, err
	}
	return data, nil
}
