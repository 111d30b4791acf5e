package main

import (
	"fmt"
	"sort"

	"github.com/azyu/storyloom/internal/ai/adapters"
	"github.com/azyu/storyloom/internal/app"
	"github.com/azyu/storyloom/pkg/types"
	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or edit the global configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cm, err := configManager(cmd)
		if err != nil {
			return err
		}
		config, err := cm.LoadGlobalConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		shown := *config
		shown.Providers = make(map[string]*types.ProviderConfig, len(config.Providers))
		for name, pc := range config.Providers {
			masked := *pc
			masked.APIKey = maskAPIKey(pc.APIKey)
			shown.Providers[name] = &masked
		}

		out, err := yaml.Marshal(&shown)
		if err != nil {
			return fmt.Errorf("failed to encode config: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "# %s\n%s", cm.Path(), out)
		return nil
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Interactively configure storage and the image provider",
	RunE: func(cmd *cobra.Command, args []string) error {
		cm, err := configManager(cmd)
		if err != nil {
			return err
		}
		config, err := cm.LoadGlobalConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		if err := setupStorage(config); err != nil {
			return err
		}
		if err := setupImages(config); err != nil {
			return err
		}

		if err := cm.SaveGlobalConfig(config); err != nil {
			return fmt.Errorf("failed to save config: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "\n✓ Configuration saved to %s\n", cm.Path())
		return nil
	},
}

var configProvidersCmd = &cobra.Command{
	Use:   "providers",
	Short: "List configured image providers",
	RunE: func(cmd *cobra.Command, args []string) error {
		cm, err := configManager(cmd)
		if err != nil {
			return err
		}
		config, err := cm.LoadGlobalConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		if len(config.Providers) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No providers configured.")
			fmt.Fprintln(cmd.OutOrStdout(), "Run 'storyloom config init' to configure one.")
			return nil
		}

		names := make([]string, 0, len(config.Providers))
		for name := range config.Providers {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			pc := config.Providers[name]
			mark := ""
			if config.Images.Provider == name {
				mark = " (images)"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "  %s%s\n", name, mark)
			fmt.Fprintf(cmd.OutOrStdout(), "    API Key: %s\n", maskAPIKey(pc.APIKey))
			if pc.DefaultModel != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "    Model: %s\n", pc.DefaultModel)
			}
			if pc.BaseURL != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "    Base URL: %s\n", pc.BaseURL)
			}
		}
		return nil
	},
}

func configManager(cmd *cobra.Command) (*app.ConfigManager, error) {
	if dir, _ := cmd.Flags().GetString("config-dir"); dir != "" {
		return app.NewConfigManagerAt(dir), nil
	}
	cm, err := app.NewConfigManager()
	if err != nil {
		return nil, fmt.Errorf("failed to locate config: %w", err)
	}
	return cm, nil
}

func maskAPIKey(key string) string {
	if key == "" {
		return "(none)"
	}
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "..." + key[len(key)-4:]
}

func setupStorage(config *types.GlobalConfig) error {
	dataDir := config.DataDir
	driver := config.Storage.Driver

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Data directory").
				Description("Where the project database lives").
				Value(&dataDir),
			huh.NewSelect[string]().
				Title("SQLite driver").
				Options(
					huh.NewOption("Pure Go (recommended)", "sqlite"),
					huh.NewOption("cgo (mattn/go-sqlite3)", "sqlite3"),
				).
				Value(&driver),
		),
	)
	if err := form.Run(); err != nil {
		return fmt.Errorf("storage setup failed: %w", err)
	}

	if dataDir != "" {
		config.DataDir = dataDir
	}
	config.Storage.Driver = driver
	return nil
}

func setupImages(config *types.GlobalConfig) error {
	providerName := config.Images.Provider

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Image provider").
				Options(
					huh.NewOption("OpenAI", "openai"),
					huh.NewOption("Google Gemini", "gemini"),
				).
				Value(&providerName),
		),
	)
	if err := form.Run(); err != nil {
		return fmt.Errorf("provider selection failed: %w", err)
	}

	if config.Providers == nil {
		config.Providers = make(map[string]*types.ProviderConfig)
	}
	pc := config.Providers[providerName]
	if pc == nil {
		pc = &types.ProviderConfig{}
	}

	var apiKey, model string
	currentKey := ""
	if pc.APIKey != "" {
		currentKey = " (current: " + maskAPIKey(pc.APIKey) + ")"
	}

	var models []huh.Option[string]
	placeholder := "sk-..."
	switch providerName {
	case "gemini":
		placeholder = "Get from ai.google.dev"
		models = []huh.Option[string]{
			huh.NewOption("Imagen 3 (recommended)", adapters.DefaultGeminiModel),
			huh.NewOption("Imagen 3 Fast", "imagen-3.0-fast-generate-001"),
		}
	default:
		models = []huh.Option[string]{
			huh.NewOption("DALL·E 3 (recommended)", adapters.DefaultOpenAIModel),
			huh.NewOption("GPT Image 1", "gpt-image-1"),
			huh.NewOption("DALL·E 2", "dall-e-2"),
		}
	}

	keyForm := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("API Key"+currentKey).
				Description("Use ${VAR} to read the key from the environment or .env").
				Placeholder(placeholder).
				EchoMode(huh.EchoModePassword).
				Value(&apiKey),
			huh.NewSelect[string]().
				Title("Image model").
				Options(models...).
				Value(&model),
		),
	)
	if err := keyForm.Run(); err != nil {
		return fmt.Errorf("%s setup failed: %w", providerName, err)
	}

	if apiKey != "" {
		pc.APIKey = apiKey
	}
	if model != "" {
		pc.DefaultModel = model
		config.Images.Model = model
	}
	config.Providers[providerName] = pc
	config.Images.Provider = providerName
	return nil
}

func init() {
	configCmd.AddCommand(configShowCmd, configInitCmd, configProvidersCmd)
}
