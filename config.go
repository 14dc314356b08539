package main

import (
	"fmt"
	"os"
	"reflect"
	"slices"

	"github.com/utilitywarehouse/index-mirror/mirror"
	"gopkg.in/yaml.v3"
)

const (
	defaultMaxConnections = 8
)

// Config is the top level config of the daemon, loaded once at startup
type Config struct {
	// Repo configures the mirrored repository and its sync schedule
	Repo mirror.Config `yaml:"repo"`
	// Web configures the static file server for the mirror tree
	Web WebConfig `yaml:"web"`
}

// WebConfig is the config of the static file server
type WebConfig struct {
	// Address is the listen address of the file server
	Address string `yaml:"address"`

	// Port is the listen port of the file server
	Port int `yaml:"port"`

	// MaxConnections caps concurrently served connections, default 8
	MaxConnections int `yaml:"max_connections"`

	// MetricsAddress is an optional "host:port" for the prometheus
	// endpoint, metrics are disabled when empty
	MetricsAddress string `yaml:"metrics_address"`
}

func applyWebDefaults(conf *Config) {
	if conf.Web.MaxConnections == 0 {
		conf.Web.MaxConnections = defaultMaxConnections
	}
}

func (c *WebConfig) validate() error {
	var errs []error

	if c.Address == "" {
		errs = append(errs, fmt.Errorf("web address cannot be empty"))
	}

	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("web port %d is out of range 1-65535", c.Port))
	}

	if c.MaxConnections < 1 {
		errs = append(errs, fmt.Errorf("web max_connections must be positive"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", errs)
	}

	return nil
}

func parseConfigFile(path string) (*Config, error) {
	yamlFile, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	return parseConfig(yamlFile)
}

func parseConfig(yamlData []byte) (*Config, error) {
	if err := validateConfigKeys(yamlData); err != nil {
		return nil, err
	}

	conf := &Config{}
	if err := yaml.Unmarshal(yamlData, conf); err != nil {
		return nil, err
	}

	applyWebDefaults(conf)

	if err := conf.Web.validate(); err != nil {
		return nil, err
	}

	return conf, nil
}

// validateConfigKeys checks the raw document for unexpected keys so typos
// fail at startup instead of being silently dropped by the unmarshaller
func validateConfigKeys(yamlData []byte) error {
	var raw map[string]interface{}
	if err := yaml.Unmarshal(yamlData, &raw); err != nil {
		return err
	}

	// repo and web sections are mandatory
	if _, ok := raw["repo"]; !ok {
		return fmt.Errorf("repo config section is missing")
	}

	if _, ok := raw["web"]; !ok {
		return fmt.Errorf("web config section is missing")
	}

	allowedConfig := getAllowedKeys(Config{})
	if key := findUnexpectedKey(raw, allowedConfig); key != "" {
		return fmt.Errorf("unexpected key: .%v", key)
	}

	// check "repo" section
	repoMap, ok := raw["repo"].(map[string]interface{})
	if !ok {
		return fmt.Errorf("repo section is missing or not valid")
	}
	allowedRepoKeys := getAllowedKeys(mirror.Config{})
	if key := findUnexpectedKey(repoMap, allowedRepoKeys); key != "" {
		return fmt.Errorf("unexpected key: .repo.%v", key)
	}

	// check "auth" section in "repo"
	if authMap, ok := repoMap["auth"].(map[string]interface{}); ok {
		allowedAuthKeys := getAllowedKeys(mirror.Auth{})
		if key := findUnexpectedKey(authMap, allowedAuthKeys); key != "" {
			return fmt.Errorf("unexpected key: .repo.auth.%v", key)
		}
	}

	// check "web" section
	webMap, ok := raw["web"].(map[string]interface{})
	if !ok {
		return fmt.Errorf("web section is missing or not valid")
	}
	allowedWebKeys := getAllowedKeys(WebConfig{})
	if key := findUnexpectedKey(webMap, allowedWebKeys); key != "" {
		return fmt.Errorf("unexpected key: .web.%v", key)
	}

	return nil
}

// getAllowedKeys retrieves a list of allowed keys from the specified struct
func getAllowedKeys(config interface{}) []string {
	var allowedKeys []string
	val := reflect.ValueOf(config)
	typ := reflect.TypeOf(config)

	for i := 0; i < val.NumField(); i++ {
		field := typ.Field(i)
		yamlTag := field.Tag.Get("yaml")
		if yamlTag != "" {
			allowedKeys = append(allowedKeys, yamlTag)
		}
	}
	return allowedKeys
}

func findUnexpectedKey(raw map[string]interface{}, allowedKeys []string) string {
	for key := range raw {
		if !slices.Contains(allowedKeys, key) {
			return key
		}
	}

	return ""
}
