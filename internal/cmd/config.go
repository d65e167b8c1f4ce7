package cmd

import (
	"fmt"
	"os"
	"os/exec"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/servicehub/internal/config"
	"github.com/felixgeelhaar/servicehub/internal/errors"
)

func newConfigCmd() *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage servicehub configuration",
		Long: `Manage the servicehub configuration file.

Configuration is read from ~/.servicehub/config.yaml (or --config) and can be
overridden with SERVICEHUB_* environment variables, for example
SERVICEHUB_API_BASE_URL or SERVICEHUB_STORAGE_BACKEND.

Examples:
  # Show the effective configuration
  servicehub config view

  # Write a default configuration file
  servicehub config init

  # Edit configuration in $EDITOR
  servicehub config edit`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default configuration file",
		RunE:  runConfigInit,
	}
	initCmd.Flags().Bool("force", false, "overwrite an existing configuration file")

	configCmd.AddCommand(
		&cobra.Command{
			Use:   "view",
			Short: "Show the effective configuration",
			Long:  "Show the configuration after file and environment overrides. Secrets are redacted.",
			RunE:  runConfigView,
		},
		&cobra.Command{
			Use:   "path",
			Short: "Show the configuration file path",
			RunE:  runConfigPath,
		},
		initCmd,
		&cobra.Command{
			Use:   "edit",
			Short: "Edit configuration in $EDITOR",
			Long:  `Open the configuration file in your default editor (from $EDITOR environment variable).`,
			RunE:  runConfigEdit,
		},
	)
	return configCmd
}

func configPath(cmd *cobra.Command) (string, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return "", err
	}
	if path != "" {
		return path, nil
	}
	return config.Path()
}

func runConfigView(cmd *cobra.Command, args []string) error {
	path, err := configPath(cmd)
	if err != nil {
		return err
	}
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	data, err := cfg.Marshal()
	if err != nil {
		return err
	}
	fmt.Fprint(cmd.OutOrStdout(), string(data))
	return nil
}

func runConfigPath(cmd *cobra.Command, args []string) error {
	path, err := configPath(cmd)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), path)
	return nil
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	path, err := configPath(cmd)
	if err != nil {
		return err
	}
	force, _ := cmd.Flags().GetBool("force")
	if _, err := os.Stat(path); err == nil && !force {
		return errors.New(errors.ErrCodeConfigInvalid, fmt.Sprintf("%s already exists", path)).
			WithSuggestion("Pass --force to overwrite it")
	}
	if err := config.Save(path, config.Default()); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✓ Wrote %s\n", path)
	return nil
}

func runConfigEdit(cmd *cobra.Command, args []string) error {
	path, err := configPath(cmd)
	if err != nil {
		return err
	}

	// Ensure config exists
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := config.Save(path, config.Default()); err != nil {
			return err
		}
	}

	editor := os.Getenv("EDITOR")
	if editor == "" {
		editor = "vi"
	}

	editorCmd := exec.CommandContext(cmd.Context(), editor, path)
	editorCmd.Stdin = os.Stdin
	editorCmd.Stdout = cmd.OutOrStdout()
	editorCmd.Stderr = cmd.ErrOrStderr()

	if err := editorCmd.Run(); err != nil {
		return fmt.Errorf("failed to run editor: %w", err)
	}

	// Validate the edited config
	if _, err := config.Load(path); err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "Warning: Configuration may contain errors: %v\n", err)
		fmt.Fprintf(cmd.ErrOrStderr(), "Please check and fix the configuration file.\n")
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), "✓ Configuration updated successfully")
	return nil
}
