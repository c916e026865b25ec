package main

import (
	"context"
	"embed"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/wailsapp/wails/v2"
	"github.com/wailsapp/wails/v2/pkg/options"
	"github.com/wailsapp/wails/v2/pkg/options/assetserver"

	"voxfill/internal/bootstrap"
	"voxfill/internal/classify"
	"voxfill/internal/config"
	"voxfill/internal/domain"
	"voxfill/internal/eventloop"
	"voxfill/internal/logging"
	"voxfill/internal/sites"
)

//go:embed all:frontend/dist
var assets embed.FS

var (
	flagHost     string
	flagLogLevel string
	flagFocus    string
	flagTimeout  time.Duration
)

var rootCmd = &cobra.Command{
	Use:           "voxfill",
	Short:         "Dictate into web page composers",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var locateCmd = &cobra.Command{
	Use:   "locate <page.html>",
	Short: "Show the input field and ranked send buttons found in a saved page",
	Args:  cobra.ExactArgs(1),
	RunE:  runLocate,
}

var dictateCmd = &cobra.Command{
	Use:   "dictate [page.html]",
	Short: "Dictate one utterance into a page and print the result",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runDictate,
}

var guiCmd = &cobra.Command{
	Use:   "gui [page.html]",
	Short: "Open the desktop window",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runGUI,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagHost, "host", "", "hostname the page was saved from")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "log level (overrides VOXFILL_LOG_LEVEL)")
	dictateCmd.Flags().StringVar(&flagFocus, "focus", "", "CSS selector of the field to focus first")
	dictateCmd.Flags().DurationVar(&flagTimeout, "timeout", 30*time.Second, "give up after this long")

	rootCmd.AddCommand(locateCmd, dictateCmd, guiCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newLogger() (zerolog.Logger, func() error, error) {
	cfg, err := config.Load()
	if err != nil {
		return zerolog.Nop(), nil, err
	}
	level := cfg.Log.Level
	if flagLogLevel != "" {
		level = flagLogLevel
	}
	return logging.New(logging.Options{Level: level, File: cfg.Log.File})
}

func pageArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}

func runLocate(cmd *cobra.Command, args []string) error {
	doc, err := loadPage(args[0], flagHost)
	if err != nil {
		return err
	}
	log, closeLog, err := newLogger()
	if err != nil {
		return err
	}
	defer closeLog()

	registry := sites.NewRegistry(sites.Deps{Scheduler: eventloop.New(0), Logger: log})
	return writeLocateReport(cmd.OutOrStdout(), registry, doc)
}

func runDictate(cmd *cobra.Command, args []string) error {
	doc, err := loadPage(pageArg(args), flagHost)
	if err != nil {
		return err
	}
	log, closeLog, err := newLogger()
	if err != nil {
		return err
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, flagTimeout)
	defer cancel()

	// The loop outlives ctx so a timed-out session can still be stopped.
	loopCtx, stopLoop := context.WithCancel(context.Background())
	defer stopLoop()
	loop := eventloop.New(0)
	go loop.Run(loopCtx)

	sink := newPrintSink(cmd.ErrOrStderr())
	services, err := bootstrap.Build(bootstrap.Options{
		Document:  doc,
		Scheduler: loop,
		Status:    sink,
		Logger:    log,
	})
	if err != nil {
		return err
	}
	// Always-on would never finish a single dictation.
	prefs := services.Voice.Settings()
	prefs.AlwaysOnMode = false

	var startErr error
	if err := loop.Do(ctx, func() {
		services.Voice.UseSettings(prefs)
		services.Monitor.Start()
		if flagFocus != "" {
			if el := doc.QuerySelector(flagFocus); el != nil {
				_ = el.Focus()
			}
		}
		startErr = services.Voice.Start()
	}); err != nil {
		return err
	}
	if startErr != nil {
		return startErr
	}

	select {
	case <-sink.done:
	case <-ctx.Done():
		_ = loop.Do(context.Background(), func() { _ = services.Voice.Stop() })
		return ctx.Err()
	}

	if prefs.AutoCorrect && services.Corrector.Available() {
		select {
		case <-sink.final:
		case <-time.After(services.Config.Session.CorrectionTimeout):
		case <-ctx.Done():
		}
	}
	if prefs.AutoSubmit && prefs.InjectionMode == domain.InjectionOverwrite {
		cfg := services.Config.Session
		wait := cfg.SubmitSettleDelay + cfg.SubmitRetryDelay + cfg.HighlightDelay + 100*time.Millisecond
		select {
		case <-time.After(wait):
		case <-ctx.Done():
		}
	}

	var field, submit string
	_ = loop.Do(context.Background(), func() {
		if el := services.Voice.Target(); el != nil {
			field = classify.FieldText(el)
		}
		if b := services.Sites.FindSubmitButtonForInput(doc, services.Voice.Target()); b != nil {
			submit = fmt.Sprintf("%s clicks=%d", b, b.Clicks())
		}
	})
	fmt.Fprintf(cmd.OutOrStdout(), "field:  %q\n", field)
	if submit != "" {
		fmt.Fprintf(cmd.OutOrStdout(), "submit: %s\n", submit)
	}
	return nil
}

func runGUI(cmd *cobra.Command, args []string) error {
	log, closeLog, err := newLogger()
	if err != nil {
		return err
	}
	defer closeLog()

	app := NewApp(pageArg(args), flagHost, log)
	return wails.Run(&options.App{
		Title:  "voxfill",
		Width:  960,
		Height: 720,
		AssetServer: &assetserver.Options{
			Assets: assets,
		},
		OnStartup: app.startup,
		Bind:      []interface{}{app},
	})
}

// printSink reports progress on stderr. done closes when the session goes
// idle after having started and final closes on the first injected text.
type printSink struct {
	out     io.Writer
	started bool
	done    chan struct{}
	final   chan struct{}
	closed  bool
	gotText bool
}

func newPrintSink(out io.Writer) *printSink {
	return &printSink{out: out, done: make(chan struct{}), final: make(chan struct{})}
}

func (p *printSink) SessionStateChanged(state domain.SessionState, reason domain.SessionStateReason) {
	fmt.Fprintf(p.out, "[%s] %s\n", state, sessionReasonMessage(reason))
	if state == domain.SessionStateListening {
		p.started = true
	}
	if state == domain.SessionStateIdle && (p.started || reason == domain.SessionReasonRecognitionFailed) && !p.closed {
		p.closed = true
		close(p.done)
	}
}

func (p *printSink) PartialTranscript(text string) {
	fmt.Fprintf(p.out, "  ... %s\n", text)
}

func (p *printSink) FinalTranscript(raw, injected string) {
	if !p.gotText {
		p.gotText = true
		close(p.final)
	}
	if raw == injected {
		fmt.Fprintf(p.out, "  >>> %s\n", injected)
		return
	}
	fmt.Fprintf(p.out, "  >>> %s (heard %q)\n", injected, strings.TrimSpace(raw))
}

func (p *printSink) SessionError(code domain.ErrorCode, detail string) {
	fmt.Fprintf(p.out, "  !!! %s: %s\n", errorMessage(code, detail), detail)
}
