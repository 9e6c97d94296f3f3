package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	yaml "gopkg.in/yaml.v2"
)

// Config for gitabsorb
type Config struct {
	SkipPaths     []string `yaml:"skip_paths"`     // Files never absorbed
	BinaryPaths   []string `yaml:"binary_paths"`   // Files treated as binary regardless of content sniffing
	MaxStackDepth int      `yaml:"max_stack_depth"` // 0 = unlimited; deeper stacks are truncated oldest-first
	ReSkipPaths   []*regexp.Regexp
	ReBinaryPaths []*regexp.Regexp
}

// Unmarshal the config
func Unmarshal(config []byte) (*Config, error) {
	cfg := &Config{
		ReSkipPaths:   make([]*regexp.Regexp, 0),
		ReBinaryPaths: make([]*regexp.Regexp, 0),
	}
	err := yaml.Unmarshal(config, cfg)
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %v. make sure to use 'single quotes' around strings with special characters (like match patterns)", err.Error())
	}
	err = cfg.validate()
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadConfigFile - loads config file
func LoadConfigFile(filename string) (*Config, error) {
	content, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to load %v: %v", filename, err.Error())
	}
	cfg, err := LoadConfigString(content)
	if err != nil {
		return nil, fmt.Errorf("failed to load %v: %v", filename, err.Error())
	}
	return cfg, nil
}

// LoadConfigString - loads a string
func LoadConfigString(content []byte) (*Config, error) {
	cfg, err := Unmarshal([]byte(content))
	return cfg, err
}

// SkipFile - true if path should never be absorbed
func (c *Config) SkipFile(path string) bool {
	for _, re := range c.ReSkipPaths {
		if re.MatchString(path) {
			return true
		}
	}
	return false
}

// ForceBinary - true if path is configured binary (so never absorbed)
func (c *Config) ForceBinary(path string) bool {
	for _, re := range c.ReBinaryPaths {
		if re.MatchString(path) {
			return true
		}
	}
	return false
}

func compilePatterns(patterns []string) ([]*regexp.Regexp, error) {
	res := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		reStr := strings.ReplaceAll(p, "...", ".*")
		reStr += "$"
		re, err := regexp.Compile(reStr)
		if err != nil {
			return nil, fmt.Errorf("failed to parse '%s' as a regex", reStr)
		}
		res = append(res, re)
	}
	return res, nil
}

func (c *Config) validate() error {
	if c.MaxStackDepth < 0 {
		return fmt.Errorf("max_stack_depth must not be negative: %d", c.MaxStackDepth)
	}
	var err error
	if c.ReSkipPaths, err = compilePatterns(c.SkipPaths); err != nil {
		return err
	}
	if c.ReBinaryPaths, err = compilePatterns(c.BinaryPaths); err != nil {
		return err
	}
	return nil
}
