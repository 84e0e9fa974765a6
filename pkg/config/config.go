package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Character is one wallpaper subject preset. The zero value of optional
// fields (Ethnicity, Clothing) means the field is omitted from prompts.
type Character struct {
	Name      string `yaml:"name"`
	Hair      string `yaml:"hair"`
	Eyes      string `yaml:"eyes"`
	Age       string `yaml:"age"`
	Build     string `yaml:"build"`
	Ethnicity string `yaml:"ethnicity,omitempty"`
	Vibe      string `yaml:"vibe"`
	Clothing  string `yaml:"clothing,omitempty"`
	Footwear  string `yaml:"footwear"`
}

type Config struct {
	ServerAddr   string `yaml:"serverAddr"`
	ComfyDir     string `yaml:"comfyDir"`
	PythonPath   string `yaml:"pythonPath"`
	WorkflowPath string `yaml:"workflowPath"`
	WallpaperDir string `yaml:"wallpaperDir"`
	SymlinkPath  string `yaml:"symlinkPath"`
	LogFile      string `yaml:"logFile"`

	// Injection paths into the workflow graph. Both are best-effort: a
	// missing node or input disables that injection, it never fails a run.
	SeedNode    string `yaml:"seedNode"`
	SeedInput   string `yaml:"seedInput"`
	PromptNode  string `yaml:"promptNode"`
	PromptInput string `yaml:"promptInput"`

	ReadyTimeoutSeconds    int    `yaml:"readyTimeoutSeconds"`
	ReadyPollPolicy        string `yaml:"readyPollPolicy"`
	ReadyPollBaseSeconds   int    `yaml:"readyPollBaseSeconds"`
	ReadyPollMaxSeconds    int    `yaml:"readyPollMaxSeconds"`
	GenerateTimeoutSeconds int    `yaml:"generateTimeoutSeconds"`
	StopTimeoutSeconds     int    `yaml:"stopTimeoutSeconds"`

	EnrichEnabled        bool   `yaml:"enrichEnabled"`
	EnrichCLIPath        string `yaml:"enrichCliPath"`
	EnrichTimeoutSeconds int    `yaml:"enrichTimeoutSeconds"`
	EnrichWorkDir        string `yaml:"enrichWorkDir"`

	PromptPrefix string      `yaml:"promptPrefix"`
	ArtistTags   []string    `yaml:"artistTags"`
	Characters   []Character `yaml:"characters"`

	SetWallpaper bool   `yaml:"setWallpaper"`
	SwaybgPath   string `yaml:"swaybgPath"`
}

// LoadConfig reads a YAML config file, then applies environment overrides
// and defaults.
func LoadConfig(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}
	var c Config
	c.EnrichEnabled = true
	c.SetWallpaper = true
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, err
	}
	c.applyEnv()
	c.applyDefaults()
	return &c, nil
}

// LoadConfigOptional behaves like LoadConfig but tolerates an empty or
// missing path, returning a config built from environment and defaults.
func LoadConfigOptional(filePath string) (*Config, error) {
	filePath = strings.TrimSpace(filePath)
	if filePath == "" {
		c := Config{EnrichEnabled: true, SetWallpaper: true}
		c.applyEnv()
		c.applyDefaults()
		return &c, nil
	}
	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		c := Config{EnrichEnabled: true, SetWallpaper: true}
		c.applyEnv()
		c.applyDefaults()
		return &c, nil
	}
	return LoadConfig(filePath)
}

func (c *Config) applyEnv() {
	if v := os.Getenv("COMFY_SERVER_ADDR"); v != "" {
		c.ServerAddr = v
	}
	if v := os.Getenv("COMFY_DIR"); v != "" {
		c.ComfyDir = v
	}
	if v := os.Getenv("COMFY_PYTHON"); v != "" {
		c.PythonPath = v
	}
	if v := os.Getenv("WORKFLOW_PATH"); v != "" {
		c.WorkflowPath = v
	}
	if v := os.Getenv("WALLPAPER_DIR"); v != "" {
		c.WallpaperDir = v
	}
	if v := os.Getenv("WALLPAPER_SYMLINK"); v != "" {
		c.SymlinkPath = v
	}
	if v := os.Getenv("READY_TIMEOUT_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.ReadyTimeoutSeconds = n
		}
	}
	if v := os.Getenv("GENERATE_TIMEOUT_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.GenerateTimeoutSeconds = n
		}
	}
	if v := os.Getenv("ENRICH_ENABLED"); v != "" {
		s := strings.ToLower(strings.TrimSpace(v))
		c.EnrichEnabled = s == "1" || s == "true" || s == "yes"
	}
	if v := os.Getenv("ENRICH_CLI_PATH"); v != "" {
		c.EnrichCLIPath = v
	}
	if v := os.Getenv("SET_WALLPAPER"); v != "" {
		s := strings.ToLower(strings.TrimSpace(v))
		c.SetWallpaper = s == "1" || s == "true" || s == "yes"
	}
	if v := os.Getenv("SWAYBG_PATH"); v != "" {
		c.SwaybgPath = v
	}
}

func (c *Config) applyDefaults() {
	if c.ServerAddr == "" {
		c.ServerAddr = "127.0.0.1:8188"
	}
	if c.ComfyDir == "" {
		c.ComfyDir = "."
	}
	if c.PythonPath == "" {
		c.PythonPath = filepath.Join(c.ComfyDir, "venv", "bin", "python")
	}
	if c.WorkflowPath == "" {
		c.WorkflowPath = filepath.Join(c.ComfyDir, "wallpaper_api.json")
	}
	if c.WallpaperDir == "" {
		c.WallpaperDir = expandHome("~/.config/omarchy/backgrounds/comfyui")
	}
	if c.SymlinkPath == "" {
		c.SymlinkPath = expandHome("~/.config/omarchy/current/background")
	}
	if c.LogFile == "" {
		c.LogFile = filepath.Join(c.ComfyDir, "wallpaper-gen.log")
	}
	if c.SeedNode == "" {
		c.SeedNode = "3"
	}
	if c.SeedInput == "" {
		c.SeedInput = "seed"
	}
	if c.PromptNode == "" {
		c.PromptNode = "6"
	}
	if c.PromptInput == "" {
		c.PromptInput = "text"
	}
	if c.ReadyTimeoutSeconds <= 0 {
		c.ReadyTimeoutSeconds = 60
	}
	if c.ReadyPollPolicy == "" {
		c.ReadyPollPolicy = "fixed"
	}
	if c.ReadyPollBaseSeconds <= 0 {
		c.ReadyPollBaseSeconds = 1
	}
	if c.ReadyPollMaxSeconds <= 0 {
		c.ReadyPollMaxSeconds = 5
	}
	if c.GenerateTimeoutSeconds <= 0 {
		c.GenerateTimeoutSeconds = 600
	}
	if c.StopTimeoutSeconds <= 0 {
		c.StopTimeoutSeconds = 10
	}
	if c.EnrichCLIPath == "" {
		c.EnrichCLIPath = "gemini"
	}
	if c.EnrichTimeoutSeconds <= 0 {
		c.EnrichTimeoutSeconds = 30
	}
	if c.EnrichWorkDir == "" {
		c.EnrichWorkDir = os.TempDir()
	}
	if c.PromptPrefix == "" {
		c.PromptPrefix = defaultPromptPrefix
	}
	if len(c.ArtistTags) == 0 {
		c.ArtistTags = append([]string(nil), defaultArtistTags...)
	}
	if len(c.Characters) == 0 {
		c.Characters = append([]Character(nil), defaultCharacters...)
	}
	if c.SwaybgPath == "" {
		c.SwaybgPath = "swaybg"
	}
}

func (c *Config) Validate() error {
	var errs []string
	if strings.TrimSpace(c.ServerAddr) == "" {
		errs = append(errs, "serverAddr is required")
	}
	if strings.Contains(c.ServerAddr, "://") {
		errs = append(errs, "serverAddr must be host:port, not a URL")
	}
	if strings.TrimSpace(c.WorkflowPath) == "" {
		errs = append(errs, "workflowPath is required")
	}
	if strings.TrimSpace(c.WallpaperDir) == "" {
		errs = append(errs, "wallpaperDir is required")
	}
	if strings.TrimSpace(c.SymlinkPath) == "" {
		errs = append(errs, "symlinkPath is required")
	}
	switch c.ReadyPollPolicy {
	case "fixed", "linear", "exponential", "exp_equal_jitter", "exp_full_jitter":
	default:
		errs = append(errs, "readyPollPolicy must be one of: fixed, linear, exponential, exp_equal_jitter, exp_full_jitter")
	}
	if c.EnrichEnabled && len(c.Characters) == 0 {
		errs = append(errs, "characters must not be empty when enrichment is enabled")
	}
	if len(errs) > 0 {
		return fmt.Errorf("config validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

func expandHome(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[2:])
}
