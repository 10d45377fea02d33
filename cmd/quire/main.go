// Package main is the quire CLI entry point.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/hyperjump/quire/internal/cli"
	"github.com/hyperjump/quire/internal/client"
	"github.com/hyperjump/quire/internal/config"
	"github.com/hyperjump/quire/internal/models"
	"github.com/hyperjump/quire/pkg/utils"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var version = "dev"

// localConfigName is picked up from the working directory when --config is not given.
const localConfigName = "quire.yaml"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

// app holds what every command shares once flags and config are resolved.
type app struct {
	configPath string
	serverURL  string
	library    string
	debug      bool
	output     string

	cfg      *config.Config
	cfgPath  string
	logger   *zap.Logger
	format   cli.OutputFormat
	stdout   io.Writer
	stderr   io.Writer
	getenv   func(string) string
	dotEnvAt string
}

func newRootCmd() *cobra.Command {
	a := &app{stdout: os.Stdout, stderr: os.Stderr, getenv: os.Getenv, dotEnvAt: ".env"}
	root := &cobra.Command{
		Use:   "quire",
		Short: "Hierarchical documents served over a small REST API",
		Long: `quire keeps libraries of nested rich-text documents.

Run "quire server" to serve them, then browse and edit from the terminal
with "quire tui" or the individual commands below.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}
	root.SetOut(a.stdout)
	root.SetErr(a.stderr)

	f := root.PersistentFlags()
	f.StringVar(&a.configPath, "config", "", "config file path (default: ./quire.yaml, then "+config.DefaultPath()+")")
	f.StringVar(&a.serverURL, "server", "", "server URL (overrides client.server_url)")
	f.StringVarP(&a.library, "library", "l", "", "library name or path (overrides client.default_library)")
	f.BoolVar(&a.debug, "debug", false, "enable debug logging")
	f.StringVarP(&a.output, "output", "o", "text", "output format: text or json")

	root.AddCommand(
		a.serverCmd(),
		a.statusCmd(),
		a.librariesCmd(),
		a.treeCmd(),
		a.showCmd(),
		a.newCmd(),
		a.renameCmd(),
		a.moveCmd(),
		a.editCmd(),
		a.uploadCmd(),
		a.shareCmd(),
		a.openCmd(),
		a.searchCmd(),
		a.importCmd(),
		a.tuiCmd(),
		a.initCmd(),
		a.versionCmd(),
	)
	return root
}

func (a *app) setup(cmd *cobra.Command) error {
	a.stdout = cmd.OutOrStdout()
	a.stderr = cmd.ErrOrStderr()
	if err := config.LoadDotEnv(a.dotEnvAt); err != nil {
		return fmt.Errorf("load %s: %w", a.dotEnvAt, err)
	}
	cfg, path, err := loadConfig(a.configPath)
	if err != nil {
		return err
	}
	if a.serverURL != "" {
		old := cfg.Client.ServerURL
		cfg.Client.ServerURL = strings.TrimRight(a.serverURL, "/")
		if cfg.Client.BaseURL == old {
			cfg.Client.BaseURL = cfg.Client.ServerURL
		}
	}
	if a.library != "" {
		cfg.Client.DefaultLibrary = a.library
	}
	a.cfg, a.cfgPath = cfg, path

	logger, err := utils.NewLogger(cfg.Debug || a.debug)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	a.logger = logger

	a.format, err = cli.ParseFormat(a.output)
	return err
}

// loadConfig loads config from path. Without an explicit path, quire.yaml in
// the working directory wins over the per-user config, so running from a
// project directory picks up that project's settings. A missing file yields
// the defaults. Returns the path that was used.
func loadConfig(path string) (*config.Config, string, error) {
	if path == "" {
		path = config.DefaultPath()
		if cwd, err := os.Getwd(); err == nil {
			local := filepath.Join(cwd, localConfigName)
			if _, err := os.Stat(local); err == nil {
				path = local
			}
		}
	}
	cfg, err := config.LoadOrDefault(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func (a *app) client() *client.Client {
	return client.New(a.cfg.Client.ServerURL,
		client.WithTimeout(a.cfg.Client.Timeout),
		client.WithLogger(a.logger),
	)
}

var errNoLibrary = errors.New("no library selected: pass --library or set client.default_library")

// resolveLibrary finds the library named by --library or the config default.
// With neither set, a server holding exactly one library uses that one.
func (a *app) resolveLibrary(ctx context.Context, c *client.Client) (models.Library, error) {
	libs, err := c.ListLibraries(ctx)
	if err != nil {
		return models.Library{}, err
	}
	want := a.cfg.Client.DefaultLibrary
	if want == "" {
		if len(libs) == 1 {
			return libs[0], nil
		}
		return models.Library{}, errNoLibrary
	}
	for _, lib := range libs {
		if lib.ID() == want || lib.Name == want {
			return lib, nil
		}
	}
	return models.Library{}, fmt.Errorf("library %q not found", want)
}

func (a *app) versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the quire version",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			_, err := fmt.Fprintf(a.stdout, "quire version %s\n", version)
			return err
		},
	}
}

func (a *app) initCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a config file with the default settings",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			if _, err := os.Stat(a.cfgPath); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", a.cfgPath)
			}
			if err := config.Save(a.cfgPath, a.cfg); err != nil {
				return err
			}
			_, err := fmt.Fprintf(a.stdout, "wrote %s\n", a.cfgPath)
			return err
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}
