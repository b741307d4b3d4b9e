// Package profile manages the operator's persistent parley profile.
// The profile is stored at ~/.config/parley/profile.json and is created
// once via the interactive setup flow, then referenced on every command.
package profile

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Profile holds operator-level preferences set during first-run setup.
type Profile struct {
	Name          string `json:"name"`           // shown on human turns and in transcripts
	AssistantName string `json:"assistant_name"` // label for agent turns
	Server        string `json:"server"`         // default agent base URL; config wins when set
}

// Label returns the display name for the operator, "You" when unset.
func (p *Profile) Label() string {
	if p == nil || p.Name == "" {
		return "You"
	}
	return p.Name
}

// AgentLabel returns the display name for the agent, "Agent" when unset.
func (p *Profile) AgentLabel() string {
	if p == nil || p.AssistantName == "" {
		return "Agent"
	}
	return p.AssistantName
}

// profilePath returns the path to the profile file.
func profilePath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "profile.json"), nil
}

// ConfigDir returns the parley config directory.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "parley"), nil
}

// Exists reports whether a profile file is present on disk.
func Exists() bool {
	p, err := profilePath()
	if err != nil {
		return false
	}
	_, err = os.Stat(p)
	return err == nil
}

// Load reads the profile from disk. Returns an error if the file is missing or malformed.
func Load() (*Profile, error) {
	p, err := profilePath()
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, fmt.Errorf("profile not found, run 'parley setup' to configure: %w", err)
	}
	var prof Profile
	if err := json.Unmarshal(data, &prof); err != nil {
		return nil, fmt.Errorf("malformed profile at %s: %w", p, err)
	}
	return &prof, nil
}

// Save writes the profile to disk, creating the config directory if needed.
func Save(prof *Profile) error {
	p, err := profilePath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(prof, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(p, data, 0o644)
}

// RunSetup runs the interactive setup wizard on in/out and returns the
// resulting profile. If existing is non-nil, its values are the defaults for
// each prompt (edit mode).
func RunSetup(in io.Reader, out io.Writer, existing *Profile) (*Profile, error) {
	r := bufio.NewReader(in)

	ask := func(prompt, defaultVal string) (string, error) {
		if defaultVal != "" {
			fmt.Fprintf(out, "%s [%s]: ", prompt, defaultVal)
		} else {
			fmt.Fprintf(out, "%s: ", prompt)
		}
		line, err := r.ReadString('\n')
		if err != nil && !(err == io.EOF && line != "") {
			return "", err
		}
		line = strings.TrimSpace(line)
		if line == "" {
			return defaultVal, nil
		}
		return line, nil
	}

	prof := &Profile{
		Name:          os.Getenv("USER"),
		AssistantName: "Agent",
		Server:        "http://127.0.0.1:8000",
	}
	if existing != nil {
		*prof = *existing
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, "  ┌─────────────────────────────────┐")
	fmt.Fprintln(out, "  │    parley · first-time setup    │")
	fmt.Fprintln(out, "  └─────────────────────────────────┘")
	fmt.Fprintln(out)

	var err error

	prof.Name, err = ask("  Your name (shown on your messages)", prof.Name)
	if err != nil {
		return nil, err
	}

	prof.AssistantName, err = ask("  Agent display name", prof.AssistantName)
	if err != nil {
		return nil, err
	}

	server, err := ask("  Agent server URL", prof.Server)
	if err != nil {
		return nil, err
	}
	prof.Server = strings.TrimRight(server, "/")

	fmt.Fprintln(out)
	return prof, nil
}
