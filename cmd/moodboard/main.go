package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/manash/moodboard/internal/config"
	"github.com/manash/moodboard/internal/display"
	"github.com/manash/moodboard/internal/image"
	"github.com/manash/moodboard/internal/logging"
	"github.com/manash/moodboard/internal/moodboard"
	"github.com/manash/moodboard/internal/provider"
	"github.com/manash/moodboard/internal/provider/gradio"
	"github.com/manash/moodboard/internal/reasoning"
	"github.com/manash/moodboard/internal/repl"
	"github.com/manash/moodboard/internal/server"
	"github.com/manash/moodboard/pkg/models"
)

var (
	version = "dev"
	commit  = "none"
)

var (
	flagConfig  string
	flagSave    bool
	flagOutput  string
	flagRegion  string
	flagColumns int
)

type App struct {
	In          io.Reader
	Out         io.Writer
	Err         io.Writer
	NewProvider func(cfg *provider.Config) (provider.Provider, error)
	// CanDisplay reports whether out can show images inline.
	CanDisplay func(out io.Writer) bool
	Now        func() time.Time
}

func DefaultApp() *App {
	return &App{
		In:  os.Stdin,
		Out: os.Stdout,
		Err: os.Stderr,
		NewProvider: func(cfg *provider.Config) (provider.Provider, error) {
			p, err := gradio.New(cfg)
			if err != nil {
				return nil, err
			}
			return p, nil
		},
		CanDisplay: display.Supported,
		Now:        time.Now,
	}
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	app := DefaultApp()
	return newRootCmd(app).Execute()
}

func newRootCmd(app *App) *cobra.Command {
	def := config.Default()

	cmd := &cobra.Command{
		Use:   "moodboard",
		Short: "Generate and iteratively edit fashion moodboards",
		Long: `moodboard drives a Gradio image backend to generate a moodboard from a
subject description, then refine it with edits, optionally limited to a region.

Examples:
  moodboard generate "sustainable luxury dress collection"
  moodboard edit img1.png "make the sleeves red" --region 120,80,340,260
  moodboard interactive
  moodboard serve --addr 127.0.0.1:8080`,
		Version:       fmt.Sprintf("%s (commit: %s)", version, commit),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetOut(app.Out)
	cmd.SetErr(app.Err)

	pf := cmd.PersistentFlags()
	pf.StringVarP(&flagConfig, "config", "c", "", "config file (default $XDG_CONFIG_HOME/moodboard/config.yaml)")
	pf.String("base-url", def.Backend.BaseURL, "Gradio backend base URL")
	pf.String("api-key", "", "backend API key (sent as a bearer token)")
	pf.Duration("timeout", def.Backend.Timeout, "backend request timeout")
	pf.StringP("model", "m", def.Model, "model to use")
	pf.Bool("reasoning", def.Reasoning, "ask the backend for a reasoning trace")
	pf.BoolP("verbose", "v", false, "log backend requests and responses")
	pf.String("log-level", def.Log.Level, "log level (debug, info, warn, error)")
	pf.String("log-format", "", "log format (text, json)")
	pf.Bool("mac-shortcuts", false, "label the submit shortcut with ⌘ instead of Ctrl")

	cmd.AddCommand(
		newGenerateCmd(app),
		newEditCmd(app),
		newInteractiveCmd(app),
		newServeCmd(app),
		newModelsCmd(app),
	)
	return cmd
}

// env is everything a command needs once configuration is resolved.
type env struct {
	cfg      config.Config
	log      *logrus.Logger
	provider provider.Provider
	saver    *image.Saver
}

func (app *App) setup(cmd *cobra.Command, defaultFormat string) (*env, error) {
	cfg, err := config.Load(flagConfig, cmd.Flags())
	if err != nil {
		return nil, err
	}

	format := cfg.Log.Format
	if format == "" {
		format = defaultFormat
	}
	log, err := logging.New(cfg.Log.Level, format, app.Err)
	if err != nil {
		return nil, err
	}
	if cfg.Verbose {
		log.SetLevel(logrus.DebugLevel)
	}

	prov, err := app.NewProvider(&provider.Config{
		BaseURL:          cfg.Backend.BaseURL,
		APIKey:           cfg.Backend.APIKey.Value(),
		Timeout:          cfg.Backend.Timeout,
		GenerateTemplate: cfg.Backend.GenerateTemplate,
		EditTemplate:     cfg.Backend.EditTemplate,
		Verbose:          cfg.Verbose,
		Logger:           log,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create provider: %w", err)
	}

	return &env{
		cfg:      cfg,
		log:      log,
		provider: prov,
		saver:    image.NewSaver(cfg.Backend.BaseURL, log),
	}, nil
}

func (e *env) newBoard() (*moodboard.Board, error) {
	return moodboard.New(e.provider, moodboard.Options{
		Model:            e.cfg.Model,
		IncludeReasoning: e.cfg.Reasoning,
		AutoPlayInterval: e.cfg.AutoPlay.Interval,
		MacShortcuts:     e.cfg.UI.MacShortcuts,
		Logger:           e.log,
	})
}

func newGenerateCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate <prompt>",
		Short: "Generate a moodboard from a subject description",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGenerate(cmd, args, app)
		},
	}
	addSaveFlags(cmd)
	return cmd
}

func newEditCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "edit <image-path> <prompt>",
		Short: "Edit an image the backend already holds",
		Long: `Edit an image by its backend file path, as printed by generate.
Without --region the whole image is edited.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEdit(cmd, args, app)
		},
	}
	cmd.Flags().StringVarP(&flagRegion, "region", "r", "", "edit only this region, in image pixels: x1,y1,x2,y2")
	addSaveFlags(cmd)
	return cmd
}

func addSaveFlags(cmd *cobra.Command) {
	cmd.Flags().BoolVarP(&flagSave, "save", "s", false, "download the result")
	cmd.Flags().StringVarP(&flagOutput, "output", "o", "", "file to save to (implies --save)")
}

func runGenerate(cmd *cobra.Command, args []string, app *App) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	e, err := app.setup(cmd, logging.FormatText)
	if err != nil {
		return err
	}

	req := models.NewGenerateRequest(args[0], e.cfg.Model)
	req.IncludeReasoning = e.cfg.Reasoning
	if err := req.Validate(); err != nil {
		return err
	}

	fmt.Fprintf(app.Out, "Generating with %s...\n", req.Model)
	res, err := e.provider.Generate(ctx, req)
	if err != nil {
		return fmt.Errorf("generation failed: %w", err)
	}
	return app.finish(ctx, e, res)
}

func runEdit(cmd *cobra.Command, args []string, app *App) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	e, err := app.setup(cmd, logging.FormatText)
	if err != nil {
		return err
	}

	req := models.NewEditRequest(args[0], args[1], e.cfg.Model)
	req.IncludeReasoning = e.cfg.Reasoning
	if flagRegion != "" {
		region, err := models.ParseRegion(flagRegion)
		if err != nil {
			return err
		}
		req.Region = region
	}
	if err := req.Validate(); err != nil {
		return err
	}

	target := "entire image"
	if req.Region != nil {
		target = "region " + req.Region.String()
	}
	fmt.Fprintf(app.Out, "Editing %s of %s with %s...\n", target, models.Basename(req.ImagePath), req.Model)
	res, err := e.provider.Edit(ctx, req)
	if err != nil {
		return fmt.Errorf("edit failed: %w", err)
	}
	return app.finish(ctx, e, res)
}

// finish prints a one-shot result and saves it when asked to.
func (app *App) finish(ctx context.Context, e *env, res *models.Result) error {
	if res.Image.URL != "" {
		fmt.Fprintf(app.Out, "Image: %s\n", res.Image.URL)
	}
	if res.Image.Path != "" {
		fmt.Fprintf(app.Out, "Path: %s\n", res.Image.Path)
	}
	for _, s := range reasoning.Sections(res.Reasoning) {
		fmt.Fprintf(app.Out, "\n## %s\n", s.Title)
		if s.Content != "" {
			fmt.Fprintln(app.Out, s.Content)
		}
	}

	if flagSave || flagOutput != "" {
		path := flagOutput
		if path == "" {
			path = image.DefaultPath(res.Image, app.Now())
		}
		if err := e.saver.Save(ctx, res.Image, path); err != nil {
			return err
		}
		fmt.Fprintf(app.Out, "Saved: %s\n", path)
	}

	fmt.Fprintln(app.Out, "Done!")
	return nil
}

func newInteractiveCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "interactive",
		Aliases: []string{"i", "repl"},
		Short:   "Build a moodboard step by step in the terminal",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runInteractive(cmd, app)
		},
	}
	cmd.Flags().IntVar(&flagColumns, "columns", 0, "terminal columns for inline images (0 = native size)")
	cmd.Flags().Duration("interval", config.Default().AutoPlay.Interval, "auto-play step interval")
	return cmd
}

func runInteractive(cmd *cobra.Command, app *App) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	e, err := app.setup(cmd, logging.FormatText)
	if err != nil {
		return err
	}
	board, err := e.newBoard()
	if err != nil {
		return err
	}
	defer board.Close()

	var displayer *display.Displayer
	if app.CanDisplay != nil && app.CanDisplay(app.Out) {
		displayer = display.New(app.Out, e.saver, flagColumns)
	}

	r := repl.New(&repl.Config{
		In:        app.In,
		Out:       app.Out,
		Err:       app.Err,
		Board:     board,
		Displayer: displayer,
		Saver:     e.saver,
		Logger:    e.log,
	})
	return r.Run(ctx)
}

func newServeCmd(app *App) *cobra.Command {
	def := config.Default()
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the moodboard API and state stream for a browser front end",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, app)
		},
	}
	cmd.Flags().String("addr", def.Server.Addr, "listen address")
	cmd.Flags().Duration("interval", def.AutoPlay.Interval, "auto-play step interval")
	return cmd
}

func runServe(cmd *cobra.Command, app *App) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	e, err := app.setup(cmd, logging.FormatJSON)
	if err != nil {
		return err
	}
	board, err := e.newBoard()
	if err != nil {
		return err
	}
	defer board.Close()

	if !e.cfg.Verbose {
		gin.SetMode(gin.ReleaseMode)
	}

	router := server.NewRouter(ctx, &server.Deps{
		Board:       board,
		Saver:       e.saver,
		Log:         e.log,
		CORSOrigins: e.cfg.Server.CORSOrigins,
	})

	e.log.WithFields(logrus.Fields{
		"backend": e.cfg.Backend.BaseURL,
		"model":   e.cfg.Model,
	}).Info("starting moodboard server")

	return server.New(e.cfg.Server.Addr, router, e.log).Run(ctx)
}

func newModelsCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List available models",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(flagConfig, cmd.Flags())
			if err != nil {
				return err
			}

			registry := models.DefaultRegistry()
			for _, name := range registry.List() {
				caps, _ := registry.Get(name)
				marker := "  "
				if name == cfg.Model {
					marker = "* "
				}
				var tags []string
				if caps.SupportsEdit {
					tags = append(tags, "edit")
				}
				if caps.SupportsThought {
					tags = append(tags, "reasoning")
				}
				fmt.Fprintf(app.Out, "%s%-28s %-18s %v\n", marker, name, caps.DisplayName, tags)
			}
			return nil
		},
	}
}
