package cmd

import (
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// render writes v as JSON or YAML when requested, or calls text otherwise.
func (a *App) render(v any, text func()) error {
	switch a.Format {
	case "json":
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode output: %w", err)
		}
		fmt.Fprintln(a.Out, string(data))
	case "yaml":
		enc := yaml.NewEncoder(a.Out)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return fmt.Errorf("failed to encode output: %w", err)
		}
		return enc.Close()
	default:
		text()
	}
	return nil
}

func (a *App) success(format string, args ...any) {
	fmt.Fprintln(a.Out, a.Styles.Success.Render("✓ ")+fmt.Sprintf(format, args...))
}

func (a *App) notice(format string, args ...any) {
	fmt.Fprintln(a.Err, a.Styles.Muted.Render(fmt.Sprintf(format, args...)))
}
