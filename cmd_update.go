package main

import (
	"errors"
	"fmt"
	"runtime"

	"github.com/creativeprojects/go-selfupdate"
	"github.com/spf13/cobra"
)

// updateRepository is the GitHub owner/name releases are fetched from.
// Set via ldflags for forks.
var updateRepository = "dictate-cli/dictate"

// errDevBuild is returned when the running binary has no release version
var errDevBuild = errors.New("development build, nothing to compare against")

func newUpdateCmd() *cobra.Command {
	var (
		repo  string
		check bool
	)

	cmd := &cobra.Command{
		Use:   "update",
		Short: "Update dictate to the latest release",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			if version == "dev" {
				return errDevBuild
			}

			latest, found, err := selfupdate.DetectLatest(ctx, selfupdate.ParseSlug(repo))
			if err != nil {
				return fmt.Errorf("failed to look up releases: %w", err)
			}
			if !found {
				return fmt.Errorf("no release found for %s/%s in %s", runtime.GOOS, runtime.GOARCH, repo)
			}

			if latest.LessOrEqual(version) {
				fmt.Fprintln(out, successStyle.Render(fmt.Sprintf("dictate %s is up to date", version)))
				return nil
			}
			if check {
				fmt.Fprintln(out, infoStyle.Render(fmt.Sprintf("dictate %s is available (running %s)", latest.Version(), version)))
				return nil
			}

			exe, err := selfupdate.ExecutablePath()
			if err != nil {
				return fmt.Errorf("could not locate the executable: %w", err)
			}
			if err := selfupdate.UpdateTo(ctx, latest.AssetURL, latest.AssetName, exe); err != nil {
				return fmt.Errorf("failed to update binary: %w", err)
			}

			fmt.Fprintln(out, successStyle.Render(fmt.Sprintf("Updated to dictate %s", latest.Version())))
			if latest.ReleaseNotes != "" {
				fmt.Fprintln(out, boxStyle.Render(latest.ReleaseNotes))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&repo, "repo", updateRepository, "GitHub repository to update from")
	cmd.Flags().BoolVar(&check, "check", false, "Only report whether an update is available")

	return cmd
}
