// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

// ErrInvalidConfig is wrapped by every error returned from Config.Validate.
var ErrInvalidConfig = errors.New("invalid configuration")

// SetupHint is appended to configuration errors so the user knows where to look.
const SetupHint = "See docs/SETUP_GUIDE.md for configuration instructions."

// HTTPConfig holds shared HTTP settings used by stages that make network requests.
type HTTPConfig struct {
	// Timeout bounds a single request, including reading the body.
	Timeout time.Duration `mapstructure:"timeout" json:"timeout" yaml:"timeout"`

	// Endpoint overrides the service base URL. Empty means the public endpoint.
	Endpoint string `mapstructure:"endpoint" json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
}

// SyncConfig holds settings for the run as a whole and the on-disk layout.
type SyncConfig struct {
	// MaxNotebooksPerRun truncates the work list (default 1).
	MaxNotebooksPerRun int `mapstructure:"max_notebooks_per_run" json:"max_notebooks_per_run" yaml:"max_notebooks_per_run"`

	// StateDir holds one processed_notebooks_<destination>.json file per destination.
	StateDir string `mapstructure:"state_dir" json:"state_dir" yaml:"state_dir"`

	// CacheDir holds rendered page images named <safeName>.page-<n>.png.
	CacheDir string `mapstructure:"cache_dir" json:"cache_dir" yaml:"cache_dir"`

	// WorkDir holds pre-processed page images, one subdirectory per notebook.
	WorkDir string `mapstructure:"work_dir" json:"work_dir" yaml:"work_dir"`

	// OutputDir holds the <safeName>_raw.txt and <safeName>_clean.txt artifacts.
	OutputDir string `mapstructure:"output_dir" json:"output_dir" yaml:"output_dir"`

	// LogPath is the run log, truncated at the start of every run.
	LogPath string `mapstructure:"log_path" json:"log_path" yaml:"log_path"`

	// HistoryDB is the SQLite publish ledger. Empty disables it.
	HistoryDB string `mapstructure:"history_db" json:"history_db" yaml:"history_db"`
}

// SourceConfig locates the synced reMarkable document tree.
type SourceConfig struct {
	// Dir is the xochitl-style directory with <id>.metadata and <id>.content files.
	Dir string `mapstructure:"dir" json:"dir" yaml:"dir"`

	// RenderCommand writes a PNG of one page to stdout. An argument holding
	// "{page}" receives the path of the page file; otherwise the page is
	// written to stdin.
	RenderCommand []string `mapstructure:"render_command" json:"render_command" yaml:"render_command"`

	// RenderTimeout bounds one page render (default 60s).
	RenderTimeout time.Duration `mapstructure:"render_timeout" json:"render_timeout" yaml:"render_timeout"`
}

// DefaultRenderCommand converts a page to SVG with rmc and rasterizes it onto
// white with rsvg-convert.
var DefaultRenderCommand = []string{"sh", "-c", `rmc -t svg "$1" | rsvg-convert -f png -b white`, "inkbridge-render", "{page}"}

// OCRConfig holds settings for the Vision OCR call.
type OCRConfig struct {
	HTTPConfig `mapstructure:",squash" yaml:",inline"`

	// APIKey is the Google Cloud Vision API key. Ignored when service-account
	// credentials are configured.
	APIKey string `mapstructure:"api_key" json:"api_key,omitempty" yaml:"api_key,omitempty"`

	// CredentialsPath is a service-account JSON key file.
	CredentialsPath string `mapstructure:"credentials_path" json:"credentials_path,omitempty" yaml:"credentials_path,omitempty"`

	// CredentialsJSON is the service-account key inline. CredentialsPath wins
	// when both are set.
	CredentialsJSON string `mapstructure:"credentials_json" json:"credentials_json,omitempty" yaml:"credentials_json,omitempty"`

	// MaxAttempts is the total number of attempts per page (default 3).
	MaxAttempts int `mapstructure:"max_attempts" json:"max_attempts" yaml:"max_attempts"`
}

// ServiceAccount reports whether OCR authenticates with a service-account key.
func (c OCRConfig) ServiceAccount() bool {
	return strings.TrimSpace(c.CredentialsPath) != "" || strings.TrimSpace(c.CredentialsJSON) != ""
}

// Credentials returns the service-account key, read from CredentialsPath when
// set, else CredentialsJSON. It returns nil when neither is configured.
func (c OCRConfig) Credentials() ([]byte, error) {
	if path := strings.TrimSpace(c.CredentialsPath); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading credentials %s: %w", path, err)
		}
		return data, nil
	}
	if js := strings.TrimSpace(c.CredentialsJSON); js != "" {
		return []byte(js), nil
	}
	return nil, nil
}

// RepairConfig holds settings for the optional language-model cleanup pass.
type RepairConfig struct {
	HTTPConfig `mapstructure:",squash" yaml:",inline"`

	// Enabled gates the repair pass entirely.
	Enabled bool `mapstructure:"enabled" json:"enabled" yaml:"enabled"`

	// APIKey authenticates against the chat completions endpoint.
	APIKey string `mapstructure:"api_key" json:"api_key,omitempty" yaml:"api_key,omitempty"`

	// Model is the chat model identifier (default gpt-4o-mini).
	Model string `mapstructure:"model" json:"model" yaml:"model"`

	// PromptFile holds extra instructions prepended to the OCR text.
	PromptFile string `mapstructure:"prompt_file" json:"prompt_file,omitempty" yaml:"prompt_file,omitempty"`
}

// DestinationType selects a Destination implementation.
type DestinationType string

const (
	DestinationAppleNotes DestinationType = "apple_notes"
	DestinationObsidian   DestinationType = "obsidian"
)

// legacyNames are the state-file keys older releases used, one per type.
var legacyNames = map[DestinationType]string{
	DestinationAppleNotes: "AppleNotesDestination",
	DestinationObsidian:   "ObsidianDestination",
}

// DestinationConfig describes one publish target.
type DestinationConfig struct {
	// Name identifies the destination and keys its state file. Must be unique.
	Name string `mapstructure:"name" json:"name" yaml:"name"`

	Type DestinationType `mapstructure:"type" json:"type" yaml:"type"`

	// FolderName is the root Notes folder (apple_notes).
	FolderName string `mapstructure:"folder_name" json:"folder_name,omitempty" yaml:"folder_name,omitempty"`

	// VaultPath is the vault root directory (obsidian).
	VaultPath string `mapstructure:"vault_path" json:"vault_path,omitempty" yaml:"vault_path,omitempty"`

	// AttachmentsFolder is created under each note directory (obsidian, default "attachments").
	AttachmentsFolder string `mapstructure:"attachments_folder" json:"attachments_folder,omitempty" yaml:"attachments_folder,omitempty"`

	// Timeout bounds one host automation call (apple_notes, default 30s).
	Timeout time.Duration `mapstructure:"timeout" json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// Config groups every section of inkbridge.yaml.
type Config struct {
	Sync         SyncConfig          `mapstructure:"sync" json:"sync" yaml:"sync"`
	Source       SourceConfig        `mapstructure:"source" json:"source" yaml:"source"`
	OCR          OCRConfig           `mapstructure:"ocr" json:"ocr" yaml:"ocr"`
	Repair       RepairConfig        `mapstructure:"repair" json:"repair" yaml:"repair"`
	Destinations []DestinationConfig `mapstructure:"destinations" json:"destinations" yaml:"destinations"`
}

// DefaultConfig returns the configuration used when a key is absent.
func DefaultConfig() Config {
	return Config{
		Sync: SyncConfig{
			MaxNotebooksPerRun: 1,
			StateDir:           ".",
			CacheDir:           "remarkable_pngs_white",
			WorkDir:            "remarkable_pngs_for_vision",
			OutputDir:          "output",
			LogPath:            filepath.Join("logs", "pipeline.log"),
			HistoryDB:          filepath.Join("logs", "history.db"),
		},
		Source: SourceConfig{
			RenderCommand: append([]string(nil), DefaultRenderCommand...),
			RenderTimeout: 60 * time.Second,
		},
		OCR: OCRConfig{
			HTTPConfig:  HTTPConfig{Timeout: 60 * time.Second},
			MaxAttempts: 3,
		},
		Repair: RepairConfig{
			HTTPConfig: HTTPConfig{Timeout: 120 * time.Second},
			Enabled:    true,
			Model:      "gpt-4o-mini",
		},
		Destinations: []DestinationConfig{
			{Type: DestinationAppleNotes, FolderName: "reMarkable"},
		},
	}
}

// placeholderMarkers are substrings of the sample config's dummy values.
var placeholderMarkers = []string{"YOUR-", "your-project-id", "REPLACE-ME"}

func isPlaceholder(v string) bool {
	for _, m := range placeholderMarkers {
		if strings.Contains(v, m) {
			return true
		}
	}
	return false
}

var safeName = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)

// Normalize fills defaulted destination fields in place: the legacy state key
// as name, the default Notes folder and attachments folder, and expands ~ in
// paths.
func (c *Config) Normalize() {
	for i := range c.Destinations {
		d := &c.Destinations[i]
		d.Type = DestinationType(strings.ToLower(strings.TrimSpace(string(d.Type))))
		if d.Name == "" {
			d.Name = legacyNames[d.Type]
		}
		switch d.Type {
		case DestinationAppleNotes:
			if d.FolderName == "" {
				d.FolderName = "reMarkable"
			}
			if d.Timeout <= 0 {
				d.Timeout = 30 * time.Second
			}
		case DestinationObsidian:
			if d.AttachmentsFolder == "" {
				d.AttachmentsFolder = "attachments"
			}
			d.VaultPath = ExpandHome(d.VaultPath)
		}
	}
	c.Source.Dir = ExpandHome(c.Source.Dir)
	c.OCR.CredentialsPath = ExpandHome(strings.TrimSpace(c.OCR.CredentialsPath))
	if c.Sync.MaxNotebooksPerRun < 0 {
		c.Sync.MaxNotebooksPerRun = 0
	}
}

// Validate checks the configuration eagerly and reports every problem at once.
// The returned error wraps ErrInvalidConfig.
func (c Config) Validate() error {
	var problems []string

	if c.OCR.ServiceAccount() {
		problems = append(problems, c.OCR.credentialProblems()...)
	} else {
		switch key := strings.TrimSpace(c.OCR.APIKey); {
		case key == "":
			problems = append(problems, "missing Vision credentials (ocr.credentials_path, ocr.credentials_json, ocr.api_key, GOOGLE_VISION_API_KEY, or .secrets/vision-api-key)")
		case isPlaceholder(key):
			problems = append(problems, "Vision API key still has the placeholder value; edit inkbridge.yaml")
		}
	}
	if c.Repair.Enabled && isPlaceholder(c.Repair.APIKey) {
		problems = append(problems, "repair API key still has the placeholder value; edit inkbridge.yaml or set repair.enabled: false")
	}

	if c.Source.Dir == "" {
		problems = append(problems, "missing source.dir (path to the synced reMarkable document tree)")
	} else if info, err := os.Stat(c.Source.Dir); err != nil || !info.IsDir() {
		problems = append(problems, fmt.Sprintf("source.dir %s does not exist or is not a directory", c.Source.Dir))
	}
	if len(c.Source.RenderCommand) == 0 {
		problems = append(problems, "source.render_command is empty")
	}

	if len(c.Destinations) == 0 {
		problems = append(problems, "no destinations configured")
	}
	seen := make(map[string]bool)
	for i, d := range c.Destinations {
		label := fmt.Sprintf("destinations[%d]", i)
		if d.Name == "" {
			problems = append(problems, label+": name is required")
		} else {
			if !safeName.MatchString(d.Name) {
				problems = append(problems, fmt.Sprintf("%s: name %q may only contain letters, digits, '.', '_' and '-'", label, d.Name))
			}
			if seen[d.Name] {
				problems = append(problems, fmt.Sprintf("%s: duplicate destination name %q; give each destination a unique name", label, d.Name))
			}
			seen[d.Name] = true
		}
		switch d.Type {
		case DestinationAppleNotes:
		case DestinationObsidian:
			if d.VaultPath == "" {
				problems = append(problems, label+": vault_path is required for obsidian")
			}
		default:
			problems = append(problems, fmt.Sprintf("%s: unknown type %q (use apple_notes or obsidian)", label, d.Type))
		}
	}

	if len(problems) == 0 {
		return nil
	}
	return fmt.Errorf("%w:\n  - %s\n%s", ErrInvalidConfig, strings.Join(problems, "\n  - "), SetupHint)
}

// credentialProblems checks the service-account key without contacting Google.
func (c OCRConfig) credentialProblems() []string {
	data, err := c.Credentials()
	if err != nil {
		return []string{fmt.Sprintf("ocr.credentials_path: %v", err)}
	}
	var key struct {
		Type        string `json:"type"`
		ClientEmail string `json:"client_email"`
		PrivateKey  string `json:"private_key"`
	}
	if err := json.Unmarshal(data, &key); err != nil {
		return []string{fmt.Sprintf("Google credentials are not valid JSON (%v); check the indentation of credentials_json", err)}
	}
	if isPlaceholder(string(data)) || !strings.Contains(key.PrivateKey, "BEGIN PRIVATE KEY") {
		return []string{"Google credentials JSON still has placeholder values; paste your service-account key"}
	}
	var problems []string
	if key.Type != "service_account" {
		problems = append(problems, fmt.Sprintf("Google credentials have type %q; a service_account key is required", key.Type))
	}
	if key.ClientEmail == "" {
		problems = append(problems, "Google credentials are missing client_email")
	}
	return problems
}

// ExpandHome replaces a leading ~ with the user's home directory.
func ExpandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
