package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/charmbracelet/lipgloss"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"dictate/clipboard"
	"dictate/config"
	"dictate/logging"
	"dictate/recorder"
	"dictate/refine"
	"dictate/session"
	"dictate/tui"
	"dictate/whisper"
)

// Build info - set via ldflags
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// Styles for the one-shot commands
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(tui.ColorPrimary).
			MarginBottom(1)

	successStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(tui.ColorSuccess)

	errorStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(tui.ColorError)

	warnStyle = lipgloss.NewStyle().
			Foreground(tui.ColorWarning)

	infoStyle = lipgloss.NewStyle().
			Foreground(tui.ColorSubtle)

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(tui.ColorSecondary).
			Padding(1, 2).
			MarginTop(1).
			MarginBottom(1)
)

type rootFlags struct {
	configFile string
	debug      bool
	version    bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("Error: "+err.Error()))
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var flags rootFlags

	cmd := &cobra.Command{
		Use:   config.AppName,
		Short: "Record speech and copy the transcript to the clipboard",
		Long: `dictate records from the microphone, sends the recording to a
speech-to-text service and places the transcript on the clipboard.

Press space to start recording and space again to stop. The transcript
appears once the service answers.`,
		Example: `  dictate
  dictate transcribe meeting.wav --copy
  dictate setup`,
		Args:          cobra.NoArgs,
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if flags.version {
				printVersion(cmd.OutOrStdout())
				return nil
			}
			return runRecorder(cmd, &flags)
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&flags.configFile, "config", "", "Path to a config file (default: "+config.DefaultConfigFile()+")")
	pf.BoolVar(&flags.debug, "debug", false, "Enable debug logging")
	pf.String("model", config.DefaultModel, "Transcription model")
	pf.String("endpoint", config.DefaultEndpoint, "Transcription endpoint URL")
	pf.Int("max-attempts", config.DefaultMaxAttempts, "Attempts per recording before giving up")

	cmd.Flags().BoolVarP(&flags.version, "version", "v", false, "Print version information")
	cmd.Flags().String("artifact-path", config.DefaultArtifactPath, "Where the recording is written")

	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newTranscribeCmd(&flags))
	cmd.AddCommand(newSetupCmd())
	cmd.AddCommand(newDoctorCmd(&flags))
	cmd.AddCommand(newUpdateCmd())

	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			printVersion(cmd.OutOrStdout())
		},
	}
}

func printVersion(w io.Writer) {
	fmt.Fprintf(w, "%s %s\n", config.AppName, version)
	fmt.Fprintf(w, "  commit:  %s\n", commit)
	fmt.Fprintf(w, "  built:   %s\n", date)
	fmt.Fprintf(w, "  go:      %s\n", runtime.Version())
	fmt.Fprintf(w, "  os/arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
}

// loadConfig resolves and validates the configuration for cmd
func loadConfig(cmd *cobra.Command, flags *rootFlags) (*config.Config, error) {
	cfg, err := config.Load(
		config.WithConfigFile(flags.configFile),
		config.WithFlags(cmd.Flags()),
	)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func newWhisperClient(cfg *config.Config, log zerolog.Logger, extra ...whisper.ClientOption) (*whisper.Client, error) {
	opts := []whisper.ClientOption{
		whisper.WithEndpoint(cfg.Endpoint),
		whisper.WithModel(cfg.Model),
		whisper.WithResponseFormat(cfg.ResponseFormat),
		whisper.WithTimeout(cfg.RequestTimeout),
		whisper.WithMaxAttempts(cfg.MaxAttempts),
		whisper.WithRetryDelay(cfg.RetryDelay),
		whisper.WithLogger(logging.Component(log, logging.Whisper)),
	}
	return whisper.NewClient(cfg.APIKey, append(opts, extra...)...)
}

func newWorker(client *whisper.Client, cfg *config.Config, log zerolog.Logger, extra ...session.WorkerOption) *session.Worker {
	opts := []session.WorkerOption{
		session.WithLimits(cfg.MinArtifactBytes, cfg.MaxArtifactBytes),
		session.WithWorkerLogger(logging.Component(log, logging.Worker)),
	}
	return session.NewWorker(client, append(opts, extra...)...)
}

func newRefiner(cfg *config.Config, log zerolog.Logger) *refine.Exec {
	return refine.New(refine.Options{
		Command: cfg.Refine.Command,
		Args:    cfg.Refine.Args,
		Timeout: cfg.Refine.Timeout,
	}, logging.Component(log, logging.Refine))
}

func captureOptions(cfg *config.Config) recorder.Options {
	return recorder.Options{
		Command:     cfg.Capture.Command,
		Args:        cfg.Capture.Args,
		StopCommand: cfg.Capture.StopCommand,
		StopArgs:    cfg.Capture.StopArgs,
	}
}

// runRecorder wires the interactive recorder and blocks until the UI exits
func runRecorder(cmd *cobra.Command, flags *rootFlags) error {
	cfg, err := loadConfig(cmd, flags)
	if err != nil {
		return err
	}

	log, logFile, err := logging.OpenFile(cfg.Log.File, cfg.Log.Level)
	if err != nil {
		return err
	}
	defer logFile.Close()

	log.Info().
		Str("version", version).
		Str("model", cfg.Model).
		Str("endpoint", cfg.Endpoint).
		Msg("starting recorder")

	capture := captureOptions(cfg)
	for _, err := range recorder.CheckTools(capture) {
		log.Warn().Err(err).Msg("capture tool check failed")
	}
	rec := recorder.New(capture, logging.Component(log, logging.Recorder))

	// Retry notifications are dropped rather than blocking the worker when
	// the UI falls behind.
	retries := make(chan whisper.RetryEvent, 8)
	notify := func(ev whisper.RetryEvent) {
		select {
		case retries <- ev:
		default:
		}
	}

	var worker *session.Worker
	model := cfg.Model
	if cfg.HasAPIKey() {
		client, err := newWhisperClient(cfg, log, whisper.WithRetryNotify(notify))
		if err != nil {
			return err
		}
		worker = newWorker(client, cfg, log)
	} else {
		log.Warn().Msg("no API key configured, recording disabled")
		model = ""
	}

	ctrl := session.NewController(rec, worker,
		session.WithArtifactPath(cfg.ArtifactPath),
		session.WithGracePeriod(cfg.GracePeriod),
		session.WithLogger(logging.Component(log, logging.Controller)),
	)

	clip := clipboard.NewSystem(logging.Component(log, logging.Clipboard))
	if !clip.Available() {
		log.Warn().Msg("no clipboard tool found, transcripts will only be shown")
	}

	refiner := newRefiner(cfg, log)

	err = tui.Run(cmd.Context(), tui.Options{
		Controller: ctrl,
		Clipboard:  clip,
		Refiner:    refiner,
		Retries:    retries,
		Model:      model,
		APIKeyHelp: whisper.GetAPIKeyHelp(),
		Log:        logging.Component(log, logging.UI),
	})
	log.Info().Err(err).Msg("recorder stopped")
	return err
}
