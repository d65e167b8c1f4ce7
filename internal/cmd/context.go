package cmd

import (
	"github.com/spf13/cobra"
)

// CommandContext holds the global flags of one invocation.
type CommandContext struct {
	ConfigPath  string
	BaseURL     string
	LogLevel    string
	LogFormat   string
	Format      string
	NoColor     bool
	Ephemeral   bool
	MetricsAddr string
}

// NewCommandContext extracts command context from cobra.Command flags.
func NewCommandContext(cmd *cobra.Command) (*CommandContext, error) {
	flags := cmd.Flags()

	configPath, err := flags.GetString("config")
	if err != nil {
		return nil, err
	}
	baseURL, err := flags.GetString("base-url")
	if err != nil {
		return nil, err
	}
	logLevel, err := flags.GetString("log-level")
	if err != nil {
		return nil, err
	}
	logFormat, err := flags.GetString("log-format")
	if err != nil {
		return nil, err
	}
	format, err := flags.GetString("format")
	if err != nil {
		return nil, err
	}
	noColor, err := flags.GetBool("no-color")
	if err != nil {
		return nil, err
	}
	ephemeral, err := flags.GetBool("ephemeral")
	if err != nil {
		return nil, err
	}
	metricsAddr, err := flags.GetString("metrics-addr")
	if err != nil {
		return nil, err
	}

	return &CommandContext{
		ConfigPath:  configPath,
		BaseURL:     baseURL,
		LogLevel:    logLevel,
		LogFormat:   logFormat,
		Format:      format,
		NoColor:     noColor,
		Ephemeral:   ephemeral,
		MetricsAddr: metricsAddr,
	}, nil
}
