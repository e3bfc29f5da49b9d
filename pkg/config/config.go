/*
Package config manages TOML config for the decoder services.
*/
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/Bishoptylaor/mosesdecoder/internal/utils"
	"github.com/Bishoptylaor/mosesdecoder/pkg/scores"
	"github.com/charmbracelet/log"
)

// Config holds the entire config structure
type Config struct {
	Decoder DecoderConfig `toml:"decoder"`
	Weights WeightsConfig `toml:"weights"`
	Rules   RulesConfig   `toml:"rules"`
	Server  ServerConfig  `toml:"server"`
	CLI     CliConfig     `toml:"cli"`
}

// DecoderConfig has search and n-best options.
type DecoderConfig struct {
	NBest       int  `toml:"nbest"`
	Distinct    bool `toml:"distinct"`
	MaxRuleSpan int  `toml:"max_rule_span"`
	TableLimit  int  `toml:"table_limit"`
}

// WeightsConfig holds per-feature weight vectors. Multi-component features
// like the translation model list one weight per component.
type WeightsConfig struct {
	TM   []float64 `toml:"tm"`
	WP   []float64 `toml:"wp"`
	Glue []float64 `toml:"glue"`
	OOV  []float64 `toml:"oov"`
}

// RulesConfig holds grammar source options.
type RulesConfig struct {
	GrammarFile string `toml:"grammar_file"`
	BinaryDir   string `toml:"binary_dir"`
	ChunkSize   int    `toml:"chunk_size"`
}

// ServerConfig has server related options.
type ServerConfig struct {
	MaxNBest     int `toml:"max_nbest"`
	MaxSourceLen int `toml:"max_source_len"`
}

// CliConfig holds cli interface options.
type CliConfig struct {
	DefaultNBest  int  `toml:"default_nbest"`
	ShowBreakdown bool `toml:"show_breakdown"`
}

// ScoreWeights converts the TOML weight vectors into the scorer's weight map.
// Empty vectors are left out so their features fall back to pass-through.
func (w *WeightsConfig) ScoreWeights() scores.Weights {
	weights := scores.Weights{}
	put := func(name string, values []float64) {
		if len(values) == 0 {
			return
		}
		weights[name] = append([]float64(nil), values...)
	}
	put("tm", w.TM)
	put("wp", w.WP)
	put("glue", w.Glue)
	put("oov", w.OOV)
	return weights
}

// Validate checks decoder limits and weight values.
func (c *Config) Validate() error {
	if c.Decoder.NBest < 1 {
		return fmt.Errorf("decoder.nbest must be at least 1, got %d", c.Decoder.NBest)
	}
	if c.Decoder.MaxRuleSpan < 1 {
		return fmt.Errorf("decoder.max_rule_span must be at least 1, got %d", c.Decoder.MaxRuleSpan)
	}
	if c.Decoder.TableLimit < 1 {
		return fmt.Errorf("decoder.table_limit must be at least 1, got %d", c.Decoder.TableLimit)
	}
	if c.Server.MaxNBest < 1 {
		return fmt.Errorf("server.max_nbest must be at least 1, got %d", c.Server.MaxNBest)
	}
	if err := c.Weights.ScoreWeights().Validate(); err != nil {
		return fmt.Errorf("invalid weights: %w", err)
	}
	return nil
}

// GetConfigDir returns the config directory with fallback priority:
// 1. ~/.config/
// 2. ~/Library/Application Support/ (macOS)
// 3. Current executable dir
// 4. builtin defaults
func GetConfigDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		log.Errorf("Failed to get home directory: %v", err)
		execDir, execErr := utils.GetExecutableDir()
		if execErr != nil {
			return "", execErr
		}
		return execDir, nil
	}
	primaryPath := filepath.Join(homeDir, ".config", "mosesdecoder")
	if result := utils.CheckDirStatus(primaryPath); result.Writable {
		return primaryPath, nil
	}
	// Not conventional, fallback from ~/.config if not writable
	macOSPath := filepath.Join(homeDir, "Library", "Application Support", "mosesdecoder")
	if result := utils.CheckDirStatus(macOSPath); result.Writable {
		return macOSPath, nil
	}
	execDir, err := utils.GetExecutableDir()
	if err != nil {
		log.Errorf("Failed to get executable directory: %v", err)
		return "", err
	}
	return execDir, nil
}

// GetDefaultConfigPath returns the default path for config.toml
func GetDefaultConfigPath() (string, error) {
	configDir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "config.toml"), nil
}

// LoadConfigWithPriority loads config with priority:
// 1. Custom path from --config flag
// 2. Default path: [UserConfigDir]/mosesdecoder/config.toml
// 3. Builtin defaults
func LoadConfigWithPriority(customConfigPath string) (*Config, string, error) {
	var config *Config
	var err error

	if customConfigPath != "" {
		if _, statErr := os.Stat(customConfigPath); statErr == nil {
			config, err = LoadConfig(customConfigPath)
			if err != nil {
				log.Warnf("Failed to load custom config from %s: %v. Trying default path...", customConfigPath, err)
			} else {
				log.Debugf("Loaded config from custom path: %s", customConfigPath)
				return config, customConfigPath, nil
			}
		} else {
			log.Warnf("Custom config file not found at %s: %v. Trying default path...", customConfigPath, statErr)
		}
	}
	defaultPath, err := GetDefaultConfigPath()
	if err != nil {
		log.Warnf("Failed to determine default config path: %v. Using built-in defaults...", err)
		return DefaultConfig(), "", nil
	}

	config, err = InitConfig(defaultPath)
	if err != nil {
		log.Warnf("Failed to load/create config at default path %s: %v. Using builtin defaults...", defaultPath, err)
		return DefaultConfig(), "", nil
	}
	log.Debugf("Loaded config from default path: %s", defaultPath)
	return config, defaultPath, nil
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	return &Config{
		Decoder: DecoderConfig{
			NBest:       1,
			Distinct:    false,
			MaxRuleSpan: 10,
			TableLimit:  20,
		},
		Weights: WeightsConfig{
			TM:   []float64{0.25, 0.25, 0.25, 0.25},
			WP:   []float64{-1},
			Glue: []float64{-0.3},
			OOV:  []float64{-100},
		},
		Rules: RulesConfig{
			GrammarFile: "",
			BinaryDir:   "",
			ChunkSize:   50000,
		},
		Server: ServerConfig{
			MaxNBest:     100,
			MaxSourceLen: 200,
		},
		CLI: CliConfig{
			DefaultNBest:  5,
			ShowBreakdown: false,
		},
	}
}

// InitConfig loads config from file or creates default if missing
func InitConfig(configPath string) (*Config, error) {
	configDir := filepath.Dir(configPath)

	if err := utils.EnsureDir(configDir); err != nil {
		log.Warnf("Failed to create config directory %s: %v. Using built-in defaults...", configDir, err)
		return DefaultConfig(), nil
	}

	if !utils.FileExists(configPath) {
		config := DefaultConfig()
		if err := SaveConfig(config, configPath); err != nil {
			log.Warnf("Failed to create default config file at %s: %v. Using built-in defaults...", configPath, err)
			return DefaultConfig(), nil
		}
		log.Debugf("Created default config file at: %s", configPath)
		return config, nil
	}

	config, err := LoadConfig(configPath)
	if err != nil {
		log.Warnf("Failed to load config from %s: %v. Using built-in defaults...", configPath, err)
		return DefaultConfig(), nil
	}
	return config, nil
}

// LoadConfig loads from a TOML file
func LoadConfig(configPath string) (*Config, error) {
	config := DefaultConfig()

	if err := utils.LoadTOMLFile(configPath, config); err != nil {
		return tryPartialParse(configPath)
	}
	return config, nil
}

// tryPartialParse attempts to parse a TOML file
func tryPartialParse(configPath string) (*Config, error) {
	config := DefaultConfig()

	tempConfig, err := utils.ParseTOMLWithRecovery(configPath)
	if err != nil {
		log.Warnf("Could not parse any valid configuration from %s: %v. Using all defaults.", configPath, err)
		return config, nil
	}

	if decoderSection, ok := utils.ExtractSection(tempConfig, "decoder"); ok {
		extractDecoderConfig(decoderSection, &config.Decoder)
	}
	if weightsSection, ok := utils.ExtractSection(tempConfig, "weights"); ok {
		extractWeightsConfig(weightsSection, &config.Weights)
	}
	if rulesSection, ok := utils.ExtractSection(tempConfig, "rules"); ok {
		extractRulesConfig(rulesSection, &config.Rules)
	}
	if serverSection, ok := utils.ExtractSection(tempConfig, "server"); ok {
		extractServerConfig(serverSection, &config.Server)
	}
	if cliSection, ok := utils.ExtractSection(tempConfig, "cli"); ok {
		extractCliConfig(cliSection, &config.CLI)
	}
	return config, nil
}

// extractDecoderConfig extracts decoder configuration from a map
func extractDecoderConfig(data map[string]any, decoder *DecoderConfig) {
	if val, ok := utils.ExtractInt64(data, "nbest"); ok {
		decoder.NBest = val
	}
	if val, ok := utils.ExtractBool(data, "distinct"); ok {
		decoder.Distinct = val
	}
	if val, ok := utils.ExtractInt64(data, "max_rule_span"); ok {
		decoder.MaxRuleSpan = val
	}
	if val, ok := utils.ExtractInt64(data, "table_limit"); ok {
		decoder.TableLimit = val
	}
}

// extractWeightsConfig extracts feature weights from a map
func extractWeightsConfig(data map[string]any, weights *WeightsConfig) {
	if val, ok := utils.ExtractFloats(data, "tm"); ok {
		weights.TM = val
	}
	if val, ok := utils.ExtractFloats(data, "wp"); ok {
		weights.WP = val
	}
	if val, ok := utils.ExtractFloats(data, "glue"); ok {
		weights.Glue = val
	}
	if val, ok := utils.ExtractFloats(data, "oov"); ok {
		weights.OOV = val
	}
}

// extractRulesConfig extracts grammar source configuration from a map
func extractRulesConfig(data map[string]any, rules *RulesConfig) {
	if val, ok := utils.ExtractString(data, "grammar_file"); ok {
		rules.GrammarFile = val
	}
	if val, ok := utils.ExtractString(data, "binary_dir"); ok {
		rules.BinaryDir = val
	}
	if val, ok := utils.ExtractInt64(data, "chunk_size"); ok {
		rules.ChunkSize = val
	}
}

// extractServerConfig extracts server configuration from a map
func extractServerConfig(data map[string]any, server *ServerConfig) {
	if val, ok := utils.ExtractInt64(data, "max_nbest"); ok {
		server.MaxNBest = val
	}
	if val, ok := utils.ExtractInt64(data, "max_source_len"); ok {
		server.MaxSourceLen = val
	}
}

// extractCliConfig extracts CLI config from a map
func extractCliConfig(data map[string]any, cli *CliConfig) {
	if val, ok := utils.ExtractInt64(data, "default_nbest"); ok {
		cli.DefaultNBest = val
	}
	if val, ok := utils.ExtractBool(data, "show_breakdown"); ok {
		cli.ShowBreakdown = val
	}
}

// RebuildConfigFile force creates a new config.toml at default
func RebuildConfigFile() error {
	defaultPath, err := GetDefaultConfigPath()
	if err != nil {
		return err
	}
	configDir := filepath.Dir(defaultPath)
	if err := utils.EnsureDir(configDir); err != nil {
		return err
	}
	config := DefaultConfig()
	return utils.SaveTOMLFile(config, defaultPath)
}

// GetActiveConfigPath returns the absolute path of loaded config file
func GetActiveConfigPath(configPath string) string {
	if configPath == "" {
		if defaultPath, err := GetDefaultConfigPath(); err == nil {
			return defaultPath
		}
		return "unknown"
	}
	return utils.GetAbsolutePath(configPath)
}

// SaveConfig saves into a TOML file
func SaveConfig(config *Config, configPath string) error {
	return utils.SaveTOMLFile(config, configPath)
}

// Update changes the decoder config values and saves to file
func (c *Config) Update(configPath string, nbest, maxRuleSpan, tableLimit *int, distinct *bool) error {
	decoder := &c.Decoder
	if nbest != nil {
		decoder.NBest = *nbest
	}
	if maxRuleSpan != nil {
		decoder.MaxRuleSpan = *maxRuleSpan
	}
	if tableLimit != nil {
		decoder.TableLimit = *tableLimit
	}
	if distinct != nil {
		decoder.Distinct = *distinct
	}
	return SaveConfig(c, configPath)
}
