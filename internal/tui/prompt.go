// Package tui holds the interactive terminal pieces of the CLI: prompts,
// a wait spinner and the shared lipgloss styles.
package tui

import (
	"context"
	stderrors "errors"
	"fmt"
	"os"

	"github.com/charmbracelet/huh"

	"github.com/felixgeelhaar/servicehub/internal/errors"
)

// Prompt represents a simple interactive prompt configuration
type Prompt struct {
	Message     string
	Default     string
	Placeholder string
	Required    bool
	// Secret masks the input.
	Secret bool
	// Validate rejects a value before the prompt is submitted.
	Validate func(string) error
}

// PromptForString displays an interactive prompt and returns the user's input.
// Dismissing the prompt returns errors.ErrCanceled.
func PromptForString(ctx context.Context, p Prompt) (string, error) {
	value := p.Default

	input := huh.NewInput().
		Title(p.Message).
		Placeholder(p.Placeholder).
		Value(&value)
	if p.Secret {
		input = input.EchoMode(huh.EchoModePassword)
	}
	if p.Validate != nil {
		input = input.Validate(p.Validate)
	}

	form := huh.NewForm(huh.NewGroup(input))
	if err := form.RunWithContext(ctx); err != nil {
		return "", promptError(err)
	}

	if p.Required && value == "" {
		return "", errors.New(errors.ErrCodeMissingField, fmt.Sprintf("%s is required", p.Message))
	}

	return value, nil
}

// PromptForPassword asks for a masked secret.
func PromptForPassword(ctx context.Context, message string) (string, error) {
	return PromptForString(ctx, Prompt{Message: message, Secret: true, Required: true})
}

// PromptForConfirmation displays a yes/no confirmation prompt
func PromptForConfirmation(ctx context.Context, message string, defaultValue bool) (bool, error) {
	confirmed := defaultValue

	confirm := huh.NewConfirm().
		Title(message).
		Value(&confirmed)

	form := huh.NewForm(huh.NewGroup(confirm))
	if err := form.RunWithContext(ctx); err != nil {
		return false, promptError(err)
	}

	return confirmed, nil
}

// PromptForSelect displays a selection prompt with multiple options
func PromptForSelect(ctx context.Context, message string, options []string) (string, error) {
	if len(options) == 0 {
		return "", fmt.Errorf("no options provided")
	}

	huhOptions := make([]huh.Option[string], len(options))
	for i, opt := range options {
		huhOptions[i] = huh.NewOption(opt, opt)
	}

	var selected string
	selectField := huh.NewSelect[string]().
		Title(message).
		Options(huhOptions...).
		Value(&selected)

	form := huh.NewForm(huh.NewGroup(selectField))
	if err := form.RunWithContext(ctx); err != nil {
		return "", promptError(err)
	}

	return selected, nil
}

// promptError reports an aborted form as a cancellation.
func promptError(err error) error {
	if stderrors.Is(err, huh.ErrUserAborted) || stderrors.Is(err, context.Canceled) {
		return errors.Wrap(errors.ErrCodeCanceled, "prompt dismissed", err)
	}
	return fmt.Errorf("prompt failed: %w", err)
}

// IsInteractive returns true if stdin is a terminal (not piped)
func IsInteractive() bool {
	fileInfo, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (fileInfo.Mode() & os.ModeCharDevice) != 0
}

// ShouldPrompt returns true if prompts should be shown based on environment
// Prompts are disabled in CI environments or when stdin is not a terminal
func ShouldPrompt() bool {
	ciEnvVars := []string{
		"CI",
		"GITHUB_ACTIONS",
		"GITLAB_CI",
		"JENKINS_URL",
		"TRAVIS",
		"CIRCLECI",
		"BUILDKITE",
	}

	for _, envVar := range ciEnvVars {
		if os.Getenv(envVar) != "" {
			return false
		}
	}

	return IsInteractive()
}
