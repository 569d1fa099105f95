package main

import (
	"fmt"
	"io"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"dictate/clipboard"
	"dictate/config"
	"dictate/recorder"
)

// check is one line of the doctor report
type check struct {
	name     string
	ok       bool
	detail   string
	required bool
}

func newDoctorCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check that the recording, clipboard and refinement tools are installed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, flags)
			if err != nil {
				return err
			}
			checks := diagnose(cfg, clipboard.NewSystem(zerolog.Nop()).Available())
			return report(cmd.OutOrStdout(), checks)
		},
	}
}

func diagnose(cfg *config.Config, clipboardOK bool) []check {
	var checks []check

	capture := captureOptions(cfg)
	captureErr := recorder.Check(capture.Command)
	checks = append(checks, check{
		name:     "capture tool (" + capture.Command + ")",
		ok:       captureErr == nil,
		detail:   okDetail(captureErr == nil, "install alsa-utils or set capture.command"),
		required: true,
	})

	if capture.StopCommand != "" {
		stopErr := recorder.Check(capture.StopCommand)
		checks = append(checks, check{
			name:   "stop tool (" + capture.StopCommand + ")",
			ok:     stopErr == nil,
			detail: okDetail(stopErr == nil, "the recorder will be signalled directly"),
		})
	}

	checks = append(checks, check{
		name:   "clipboard",
		ok:     clipboardOK,
		detail: okDetail(clipboardOK, "install xclip, xsel or wl-clipboard"),
	})

	refiner := newRefiner(cfg, zerolog.Nop())
	checks = append(checks, check{
		name:   "refinement tool (" + refiner.Name() + ")",
		ok:     refiner.Available(),
		detail: okDetail(refiner.Available(), "refine key disabled"),
	})

	checks = append(checks, check{
		name:     "API key",
		ok:       cfg.HasAPIKey(),
		detail:   okDetail(cfg.HasAPIKey(), `run "dictate setup" or set `+config.APIKeyEnv),
		required: true,
	})

	return checks
}

// report prints the checks and fails when a required one did not pass
func report(w io.Writer, checks []check) error {
	failed := 0
	for _, c := range checks {
		switch {
		case c.ok:
			fmt.Fprintln(w, successStyle.Render("✓ ")+c.name)
		case c.required:
			failed++
			fmt.Fprintln(w, errorStyle.Render("✗ ")+c.name+infoStyle.Render("  "+c.detail))
		default:
			fmt.Fprintln(w, warnStyle.Render("! ")+c.name+infoStyle.Render("  "+c.detail))
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d required check(s) failed", failed)
	}
	return nil
}

func okDetail(ok bool, hint string) string {
	if ok {
		return ""
	}
	return hint
}
