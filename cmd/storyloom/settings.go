package main

import (
	"fmt"
	"strings"

	"github.com/azyu/storyloom/internal/app"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Show or change editor settings",
}

var settingsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the current editor settings",
	RunE: withApp(func(cmd *cobra.Command, args []string, a *app.App) error {
		out, err := yaml.Marshal(a.State.Settings())
		if err != nil {
			return fmt.Errorf("failed to encode settings: %w", err)
		}
		fmt.Fprint(cmd.OutOrStdout(), string(out))
		return nil
	}),
}

var settingsSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Change one editor setting",
	Long:  "Change one editor setting. Keys: " + strings.Join(app.SettingKeys, ", "),
	Args:  cobra.ExactArgs(2),
	RunE: withApp(func(cmd *cobra.Command, args []string, a *app.App) error {
		if err := a.SetSetting(args[0], args[1]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ %s = %s\n", args[0], args[1])
		return nil
	}),
}

func init() {
	settingsCmd.AddCommand(settingsShowCmd, settingsSetCmd)
	rootCmd.AddCommand(settingsCmd)
}
