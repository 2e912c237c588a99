package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective settings",
	Long: `Print the settings codechat would use, after applying the settings file
and environment overrides. The API key is masked.

Examples:
  codechat config
  codechat config --settings ./team.yaml`,
	Args: cobra.NoArgs,
	RunE: runConfig,
}

func runConfig(cmd *cobra.Command, args []string) error {
	settings, err := loadSettings()
	if err != nil {
		return err
	}

	data, err := yaml.Marshal(settings.Masked())
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "# %s\n", cfg.SettingsFile)
	_, err = out.Write(data)
	return err
}
