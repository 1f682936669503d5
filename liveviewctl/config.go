package main

import (
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Url    string `yaml:"url"`
	ApiUrl string `yaml:"api_url"`

	// shared folders to register with the relay client, in addition to the
	// folders derived from the watched file paths
	Folders []string `yaml:"folders"`
}

func DefaultConfig() *Config {
	return &Config{
		Url:    DefaultRelayUrl,
		ApiUrl: DefaultApiUrl,
	}
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, err
	}
	return config, nil
}
