package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/charmbracelet/huh/spinner"
	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"dictate/clipboard"
	"dictate/config"
	"dictate/logging"
	"dictate/refine"
	"dictate/session"
	"dictate/whisper"
)

// transcribeOptions holds the flags of the transcribe command
type transcribeOptions struct {
	copy   bool
	refine bool
}

func newTranscribeCmd(flags *rootFlags) *cobra.Command {
	var opts transcribeOptions

	cmd := &cobra.Command{
		Use:   "transcribe <file>",
		Short: "Transcribe an existing recording",
		Long: `Send an audio file to the transcription service and print the transcript.

The file goes through the same size checks as a live recording but is
never deleted.`,
		Example: `  dictate transcribe note.wav
  dictate transcribe note.wav --copy --refine`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTranscribe(cmd, flags, opts, args[0])
		},
	}

	cmd.Flags().BoolVarP(&opts.copy, "copy", "c", false, "Also copy the transcript to the clipboard")
	cmd.Flags().BoolVarP(&opts.refine, "refine", "r", false, "Post-process the transcript with the refinement tool")

	return cmd
}

func runTranscribe(cmd *cobra.Command, flags *rootFlags, opts transcribeOptions, path string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	cfg, err := loadConfig(cmd, flags)
	if err != nil {
		return err
	}
	if !cfg.HasAPIKey() {
		fmt.Fprintln(cmd.ErrOrStderr(), infoStyle.Render(whisper.GetAPIKeyHelp()))
		return session.ErrNoAPIKey
	}

	log := logging.NewConsole(cmd.ErrOrStderr(), cfg.Log.Level)
	interactive := logging.IsTerminal(out)

	client, err := newWhisperClient(cfg, log, whisper.WithRetryNotify(func(ev whisper.RetryEvent) {
		log.Warn().
			Int(logging.FieldAttempt, ev.Attempt).
			Int("max_attempts", ev.MaxAttempts).
			Dur("delay", ev.Delay).
			Err(ev.Err).
			Msg("attempt failed, retrying")
	}))
	if err != nil {
		return err
	}

	// The user's file is input, not a scratch artifact
	worker := newWorker(client, cfg, log, session.WithKeepArtifact())

	size, err := worker.Validate(path)
	if err != nil {
		return err
	}

	fmt.Fprintln(out, infoStyle.Render(fmt.Sprintf("Transcribing %s (%s) with %s...",
		filepath.Base(path), humanize.Bytes(uint64(size)), client.Model())))

	start := time.Now()
	var result session.Result
	withSpinner(ctx, interactive, "Waiting for the transcription service...", func() {
		result = worker.Run(ctx, path)
	})
	if !result.OK() {
		return fmt.Errorf("%s: %w", result.Status, result.Err)
	}
	log.Debug().Dur("latency", time.Since(start)).Int("chars", len(result.Text)).Msg("transcribed")

	text := result.Text
	if opts.refine {
		text, err = refineText(ctx, cfg, log, interactive, text)
		if err != nil {
			return err
		}
	}

	printTranscript(out, interactive, text)

	if opts.copy {
		copyTranscript(out, clipboard.NewSystem(logging.Component(log, logging.Clipboard)), text)
	}
	return nil
}

func refineText(ctx context.Context, cfg *config.Config, log zerolog.Logger, interactive bool, text string) (string, error) {
	refiner := newRefiner(cfg, log)
	if !refiner.Available() {
		return "", fmt.Errorf("%w: %s", refine.ErrUnavailable, refiner.Name())
	}

	var refined string
	var err error
	withSpinner(ctx, interactive, "Refining with "+refiner.Name()+"...", func() {
		refined, err = refiner.Refine(ctx, text)
	})
	if err != nil {
		return "", err
	}
	return refined, nil
}

func printTranscript(w io.Writer, interactive bool, text string) {
	if !interactive {
		// Plain output so the transcript can be piped
		fmt.Fprintln(w, text)
		return
	}
	fmt.Fprintln(w, boxStyle.Render(text))
}

func copyTranscript(w io.Writer, sink clipboard.Sink, text string) {
	err := sink.Publish(text)
	switch {
	case err == nil:
		fmt.Fprintln(w, successStyle.Render("Copied to clipboard"))
	case errors.Is(err, clipboard.ErrUnavailable):
		fmt.Fprintln(w, warnStyle.Render("No clipboard tool found (xclip, xsel or wl-copy); transcript not copied"))
	default:
		fmt.Fprintln(w, warnStyle.Render("Copying failed: "+err.Error()))
	}
}

// withSpinner runs action behind a huh spinner on a terminal and directly
// otherwise. It returns once action has finished.
func withSpinner(ctx context.Context, interactive bool, title string, action func()) {
	if !interactive {
		action()
		return
	}

	spinCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		defer cancel()
		action()
	}()

	// Run returns when spinCtx ends, which is when action returns or ctx is cancelled
	_ = spinner.New().
		Title(title).
		Context(spinCtx).
		Run()
	<-done
}
