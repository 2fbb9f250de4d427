package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"transhot/internal/auth"
	"transhot/internal/logger"
	"transhot/internal/pipeline"
	"transhot/internal/store"
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Show or change the settings held in the store",
	Long: `Settings held in the store override the configuration from the
environment. They are read again on every translation.`,
}

var settingsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective settings",
	Args:  cobra.NoArgs,
	RunE:  runSettingsShow,
}

var settingsSetCmd = &cobra.Command{
	Use:   "set [name] [value]",
	Short: "Store a setting",
	Long: `Store a setting. Names:

  chat-api-key      OpenAI API key
  model             chat model used for translation
  context-model     chat model used for context generation
  context-enabled   true or false
  debug-mode        true or false, logs at debug level when true`,
	Example: `  transhot settings set model gpt-4o-mini
  transhot settings set context-enabled true
  transhot settings set debug-mode true`,
	Args: cobra.ExactArgs(2),
	RunE: runSettingsSet,
}

var settingsImportCredentialsCmd = &cobra.Command{
	Use:   "import-credentials [file]",
	Short: "Store a Vision credentials document (API key or service account JSON)",
	Args:  cobra.ExactArgs(1),
	RunE:  runSettingsImportCredentials,
}

// settingKeys maps command-line names to store keys.
var settingKeys = map[string]string{
	"chat-api-key":    store.KeyChatAPIKey,
	"model":           store.KeyChatModel,
	"context-model":   store.KeyContextModel,
	"context-enabled": store.KeyContextEnabled,
	"debug-mode":      store.KeyDebugMode,
}

func init() {
	rootCmd.AddCommand(settingsCmd)
	settingsCmd.AddCommand(settingsShowCmd, settingsSetCmd, settingsImportCredentialsCmd)
}

func runSettingsShow(cmd *cobra.Command, _ []string) error {
	log := logger.WithComponent("settings")

	cfg, err := loadedConfig()
	if err != nil {
		return err
	}

	ctx, cancel := createContextWithTimeout(cmd, log)
	defer cancel()

	st, err := openStore(ctx, cmd, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	s, err := pipeline.LoadSettings(ctx, st, cfg.Settings())
	if err != nil {
		return err
	}

	vision := "not configured"
	switch {
	case len(s.VisionCredentials) > 0:
		creds, err := auth.ParseCredentials(s.VisionCredentials)
		if err != nil {
			vision = color.RedString("invalid credentials document: %v", err)
		} else {
			vision = string(creds.Kind)
		}
	case s.VisionAPIKey != "":
		vision = "apiKey " + mask(s.VisionAPIKey)
	}

	chat := "not configured"
	if s.ChatAPIKey != "" {
		chat = mask(s.ChatAPIKey)
	}

	rows := map[string]string{
		"vision":          vision,
		"chat-api-key":    chat,
		"model":           s.Model,
		"context-model":   s.ContextModel,
		"context-enabled": strconv.FormatBool(s.ContextEnabled),
		"debug-mode":      strconv.FormatBool(s.DebugMode),
		"target-language": s.TargetLanguage,
	}
	names := make([]string, 0, len(rows))
	for name := range rows {
		names = append(names, name)
	}
	sort.Strings(names)

	label := color.New(color.FgCyan).SprintFunc()
	for _, name := range names {
		fmt.Printf("%-16s %s\n", label(name), rows[name])
	}
	return nil
}

func runSettingsSet(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("settings")
	name, raw := args[0], args[1]

	key, ok := settingKeys[name]
	if !ok {
		return fmt.Errorf("unknown setting %q. See 'transhot settings set --help'", name)
	}

	value, err := settingValue(name, key, raw)
	if err != nil {
		return err
	}

	cfg, err := loadedConfig()
	if err != nil {
		return err
	}

	ctx, cancel := createContextWithTimeout(cmd, log)
	defer cancel()

	st, err := openStore(ctx, cmd, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	if err := st.Set(ctx, map[string]any{key: value}); err != nil {
		return fmt.Errorf("failed to store %s: %w", name, err)
	}

	log.Info().Str("setting", name).Msg("Setting stored")
	color.Green("Stored %s", name)
	return nil
}

func runSettingsImportCredentials(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("settings")

	doc, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", args[0], err)
	}

	creds, err := auth.ParseCredentials(doc)
	if err != nil {
		return fmt.Errorf("not a usable credentials document: %w", err)
	}

	cfg, err := loadedConfig()
	if err != nil {
		return err
	}

	ctx, cancel := createContextWithTimeout(cmd, log)
	defer cancel()

	st, err := openStore(ctx, cmd, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	if err := st.Set(ctx, map[string]any{store.KeyVisionCredentials: json.RawMessage(doc)}); err != nil {
		return fmt.Errorf("failed to store credentials: %w", err)
	}

	log.Info().Str("kind", string(creds.Kind)).Msg("Vision credentials stored")
	color.Green("Stored %s credentials", creds.Kind)
	return nil
}

// settingValue converts the command-line value to what the store holds.
func settingValue(name, key, raw string) (any, error) {
	raw = strings.TrimSpace(raw)
	switch key {
	case store.KeyContextEnabled, store.KeyDebugMode:
		enabled, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, fmt.Errorf("%s must be true or false, got %q", name, raw)
		}
		return enabled, nil
	default:
		return raw, nil
	}
}

func mask(secret string) string {
	if len(secret) <= 8 {
		return "****"
	}
	return secret[:4] + "…" + secret[len(secret)-4:]
}
