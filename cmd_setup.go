package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"dictate/config"
	"dictate/whisper"
)

// minKeyLength rejects obviously truncated pastes
const minKeyLength = 20

func newSetupCmd() *cobra.Command {
	var (
		key  string
		file string
	)

	cmd := &cobra.Command{
		Use:   "setup",
		Short: "Store the API key for the transcription service",
		Long: `Ask for the OpenAI API key and save it to a .env file in the
dictate config directory. Other values already in the file are kept.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()

			if key == "" {
				fmt.Fprintln(out, titleStyle.Render("dictate setup"))
				fmt.Fprintln(out, infoStyle.Render(whisper.GetAPIKeyHelp()))

				err := huh.NewForm(huh.NewGroup(
					huh.NewInput().
						Title("OpenAI API key").
						Description("Stored in "+file).
						EchoMode(huh.EchoModePassword).
						Validate(validateAPIKey).
						Value(&key),
				)).WithTheme(huh.ThemeCatppuccin()).Run()
				if errors.Is(err, huh.ErrUserAborted) {
					fmt.Fprintln(out, infoStyle.Render("Setup cancelled."))
					return nil
				}
				if err != nil {
					return err
				}
			} else if err := validateAPIKey(key); err != nil {
				return err
			}

			if err := writeAPIKey(file, key); err != nil {
				return err
			}
			fmt.Fprintln(out, successStyle.Render("Saved API key to "+file))
			return nil
		},
	}

	cmd.Flags().StringVar(&key, "key", "", "API key to store without prompting")
	cmd.Flags().StringVar(&file, "file", config.UserEnvFile(), "The .env file to write")

	return cmd
}

func validateAPIKey(key string) error {
	key = strings.TrimSpace(key)
	switch {
	case key == "":
		return errors.New("API key is required")
	case strings.ContainsAny(key, " \t\n"):
		return errors.New("API key must not contain whitespace")
	case len(key) < minKeyLength:
		return fmt.Errorf("API key looks too short (%d characters)", len(key))
	}
	return nil
}

// writeAPIKey stores the key in a .env file readable only by the user,
// keeping any other entries already present.
func writeAPIKey(path, key string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	values := map[string]string{}
	if _, err := os.Stat(path); err == nil {
		existing, err := godotenv.Read(path)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", path, err)
		}
		values = existing
	}
	values[config.APIKeyEnv] = strings.TrimSpace(key)

	if err := godotenv.Write(values, path); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := os.Chmod(path, 0o600); err != nil {
		return fmt.Errorf("failed to restrict permissions on %s: %w", path, err)
	}
	return nil
}
