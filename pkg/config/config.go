package config

import (
	"fmt"
	"sort"
	"strings"

	"grafana-steward/pkg/log"

	"github.com/samber/lo"
	"github.com/spf13/viper"
)

// FolderUnrestricted is the folder setting that allows operations anywhere.
const FolderUnrestricted = "/"

// ClusterConfig is one Grafana endpoint. Token is optional; empty means the
// cluster is reached unauthenticated.
type ClusterConfig struct {
	URL   string `mapstructure:"url"`
	Token string `mapstructure:"token"`
}

// TagConfig holds the protection tag sets. Write is required on any dashboard
// this system may mutate. Read, when non-empty, gates read exposure and must
// be a subset of Write.
type TagConfig struct {
	Write []string `mapstructure:"write"`
	Read  []string `mapstructure:"read"`
}

type Config struct {
	Clusters map[string]ClusterConfig `mapstructure:"clusters"`
	Tags     TagConfig                `mapstructure:"tags"`
	Folder   string                   `mapstructure:"folder"`
	Log      log.LoggerConfig         `mapstructure:"log"`
}

func InitConfig(cfgFile string) (Config, error) {

	var config Config

	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config") // name of config file (without extension)
		viper.SetConfigType("yaml")
		viper.AddConfigPath("./config") // call multiple times to add many search paths
	}

	viper.SetEnvPrefix("GRAFANA_STEWARD")
	replacer := strings.NewReplacer("-", "_", ".", "_")
	viper.SetEnvKeyReplacer(replacer)
	viper.AutomaticEnv() // read in environment variables that match

	if err := viper.ReadInConfig(); err != nil {
		return config, fmt.Errorf("reading config file: %w", err)
	}

	if err := viper.Unmarshal(&config); err != nil {
		return config, fmt.Errorf("parsing config file: %w", err)
	}

	if err := config.Validate(); err != nil {
		return config, err
	}

	return config, nil
}

// Validate enforces the load-time invariants. A violation here is fatal and
// blocks the process from starting.
func (c *Config) Validate() error {
	if len(c.Clusters) == 0 {
		return fmt.Errorf("config: at least one cluster must be configured")
	}
	for name, cluster := range c.Clusters {
		if cluster.URL == "" {
			return fmt.Errorf("config: cluster %q has no url", name)
		}
	}

	if len(c.Tags.Write) == 0 {
		return fmt.Errorf("config: tags.write must not be empty")
	}
	if extra, _ := lo.Difference(c.Tags.Read, c.Tags.Write); len(extra) > 0 {
		return fmt.Errorf("config: tags.read must be a subset of tags.write, extra: %s",
			strings.Join(extra, ", "))
	}

	if c.Folder == "" {
		c.Folder = FolderUnrestricted
	}

	return nil
}

// Cluster looks up a configured cluster by name.
func (c *Config) Cluster(name string) (ClusterConfig, bool) {
	cluster, ok := c.Clusters[name]
	return cluster, ok
}

// ClusterNames returns all configured cluster names, sorted.
func (c *Config) ClusterNames() []string {
	names := lo.Keys(c.Clusters)
	sort.Strings(names)
	return names
}
