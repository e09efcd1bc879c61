package config

import (
	"io"
	"os"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/kelseyhightower/envconfig"
	"github.com/vkngwrapper/fitsim/arena"
	"github.com/vkngwrapper/fitsim/memutils/metadata"
	"github.com/vkngwrapper/fitsim/report"
	"github.com/vkngwrapper/fitsim/simulator"
	"golang.org/x/exp/slog"
	"gopkg.in/yaml.v2"
)

const (
	envVarPrefix = "FITSIM"
	// ConfigFileEnvVar names a YAML file to load when Load is given no path
	ConfigFileEnvVar = envVarPrefix + "_CONFIG_FILE"
)

// Config holds every setting of a simulation run. Zero values fall back to the arena defaults, except
// FragmentThreshold, which is only defaulted when it is absent.
type Config struct {
	TotalSize         int      `envconfig:"TOTAL_SIZE"         yaml:"totalSize"`
	MaxBlocks         int      `envconfig:"MAX_BLOCKS"         yaml:"maxBlocks"`
	FragmentThreshold *int     `envconfig:"FRAGMENT_THRESHOLD" yaml:"fragmentThreshold"`
	Addressing        string   `envconfig:"ADDRESSING"         yaml:"addressing"`
	Strategies        []string `envconfig:"STRATEGIES"         yaml:"strategies"`
	ReportPath        string   `envconfig:"REPORT_PATH"        yaml:"reportPath"`
	VisualizerCommand string   `envconfig:"VISUALIZER_COMMAND" yaml:"visualizerCommand"`
	VisualizerArgs    []string `envconfig:"VISUALIZER_ARGS"    yaml:"visualizerArgs"`
	Verbose           bool     `envconfig:"VERBOSE"            yaml:"verbose"`
}

// Load reads the YAML file at path, then applies FITSIM_* environment overrides. When path is empty,
// the file named by FITSIM_CONFIG_FILE is used if it exists. A path given explicitly must exist.
func Load(path string) (*Config, error) {
	var c Config

	explicit := path != ""
	if !explicit {
		path = os.Getenv(ConfigFileEnvVar)
	}

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.UnmarshalStrict(data, &c); err != nil {
				return nil, errors.Wrapf(err, "unmarshaling config file %s", path)
			}
		case explicit || !os.IsNotExist(err):
			return nil, errors.Wrap(err, "reading config file")
		}
	}

	if err := envconfig.Process(envVarPrefix, &c); err != nil {
		return nil, errors.Wrap(err, "parsing environment variables")
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}

	return &c, nil
}

// Validate reports the first setting that cannot be used, naming both its YAML key and environment variable
func (c *Config) Validate() error {
	if y, e := func() (string, string) {
		if c.TotalSize < 0 {
			return "totalSize", "TOTAL_SIZE"
		}
		if c.MaxBlocks < 0 {
			return "maxBlocks", "MAX_BLOCKS"
		}
		if c.FragmentThreshold != nil && *c.FragmentThreshold < 0 {
			return "fragmentThreshold", "FRAGMENT_THRESHOLD"
		}
		if _, err := c.AddressingMode(); err != nil {
			return "addressing", "ADDRESSING"
		}
		if _, err := c.AllocationStrategies(); err != nil {
			return "strategies", "STRATEGIES"
		}
		if len(c.VisualizerArgs) > 0 && c.VisualizerCommand == "" {
			return "visualizerCommand", "VISUALIZER_COMMAND"
		}
		return "", ""
	}(); y != "" {
		return errors.Newf("invalid configuration: %s / %s_%s", y, envVarPrefix, e)
	}

	return nil
}

// AddressingMode parses Addressing. An empty value selects address keys.
func (c *Config) AddressingMode() (metadata.AddressingMode, error) {
	switch strings.ToLower(strings.TrimSpace(c.Addressing)) {
	case "", "offset", "address":
		return metadata.AddressByOffset, nil
	case "owner", "process":
		return metadata.AddressByOwner, nil
	default:
		return 0, errors.Newf("unknown addressing mode %q", c.Addressing)
	}
}

// AllocationStrategies parses Strategies. An empty list selects every strategy.
func (c *Config) AllocationStrategies() ([]metadata.AllocationStrategy, error) {
	if len(c.Strategies) == 0 {
		return metadata.AllStrategies, nil
	}

	strategies := make([]metadata.AllocationStrategy, 0, len(c.Strategies))
	for _, label := range c.Strategies {
		strategy, err := metadata.ParseAllocationStrategy(label)
		if err != nil {
			return nil, err
		}
		strategies = append(strategies, strategy)
	}

	return strategies, nil
}

// fragmentThreshold maps an unset threshold to the arena default and an explicit 0 to
// arena.NoFragmentThreshold
func (c *Config) fragmentThreshold() int {
	switch {
	case c.FragmentThreshold == nil:
		return 0
	case *c.FragmentThreshold == 0:
		return arena.NoFragmentThreshold
	default:
		return *c.FragmentThreshold
	}
}

// Report returns the report path, falling back to report.DefaultPath
func (c *Config) Report() string {
	if c.ReportPath == "" {
		return report.DefaultPath
	}
	return c.ReportPath
}

// SimulatorOptions builds the options for simulator.New. Visualizer output goes to stdout and stderr.
func (c *Config) SimulatorOptions(logger *slog.Logger, stdout, stderr io.Writer) (simulator.CreateOptions, error) {
	addressing, err := c.AddressingMode()
	if err != nil {
		return simulator.CreateOptions{}, err
	}

	strategies, err := c.AllocationStrategies()
	if err != nil {
		return simulator.CreateOptions{}, err
	}

	options := simulator.CreateOptions{
		Arena: arena.CreateOptions{
			TotalSize:         c.TotalSize,
			MaxBlocks:         c.MaxBlocks,
			FragmentThreshold: c.fragmentThreshold(),
			Addressing:        addressing,
		},
		Strategies: strategies,
	}

	if c.VisualizerCommand != "" {
		options.Visualizer = &simulator.CommandVisualizer{
			Command: c.VisualizerCommand,
			Args:    c.VisualizerArgs,
			Stdout:  stdout,
			Stderr:  stderr,
			Logger:  logger,
		}
	}

	return options, nil
}
