package config

import (
	"encoding/json"
	"log"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

type Config struct {
	App        AppConfig                 `json:"app"`
	Providers  map[string]ProviderConfig `json:"providers"`
	Memory     MemoryConfig              `json:"memory"`
	Browser    BrowserConfig             `json:"browser"`
	Governance GovernanceConfig          `json:"governance"`
}

type AppConfig struct {
	Name        string  `json:"name"`
	BudgetLimit float64 `json:"budget_limit"`
	PantryFile  string  `json:"pantry_file"`
	PromptsDir  string  `json:"prompts_dir"`
}

type ProviderConfig struct {
	APIKey  string `json:"api_key"`
	Model   string `json:"model"`
	BaseURL string `json:"base_url,omitempty"`
	Enabled bool   `json:"enabled"`
}

type MemoryConfig struct {
	Path string `json:"path"`
}

type BrowserConfig struct {
	Headless      bool   `json:"headless"`
	ProfileDir    string `json:"profile_dir"`
	StorefrontURL string `json:"storefront_url,omitempty"`
}

type GovernanceConfig struct {
	BannedTerms  []string `json:"banned_terms"`
	MaxItemPrice float64  `json:"max_item_price"`
}

func LoadConfig(path string) *Config {
	file, err := os.Open(path)
	if err != nil {
		log.Fatalf("failed to open config file: %v", err)
	}
	defer file.Close()

	var cfg Config
	decoder := json.NewDecoder(file)
	if err := decoder.Decode(&cfg); err != nil {
		log.Fatalf("failed to decode config file: %v", err)
	}

	return &cfg
}

// GetDefaultProvider returns the first enabled provider
func (c *Config) GetDefaultProvider() (string, ProviderConfig) {
	for name, p := range c.Providers {
		if p.Enabled {
			return name, p
		}
	}
	return "", ProviderConfig{}
}

// Pantry is the on-hand inventory the extractor subtracts from shopping
// lists.
type Pantry struct {
	Items []string `yaml:"items"`
}

// LoadPantry reads the pantry YAML file. A missing file is an empty
// pantry, not an error.
func LoadPantry(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", err
	}

	var pantry Pantry
	if err := yaml.Unmarshal(data, &pantry); err != nil {
		return "", err
	}
	return strings.Join(pantry.Items, ", "), nil
}
