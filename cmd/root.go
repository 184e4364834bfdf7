/*

Copyright © 2025 Benny Powers <web@bennypowers.com>

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with this program. If not, see <http://www.gnu.org/licenses/>.
*/

package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"atomicgo.dev/keyboard"
	"atomicgo.dev/keyboard/keys"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
	"golang.org/x/term"

	"github.com/hotmod-dev/hotmod/internal/devserver"
	"github.com/hotmod-dev/hotmod/internal/envfile"
	"github.com/hotmod-dev/hotmod/internal/logging"
	"github.com/hotmod-dev/hotmod/internal/platform"
	"github.com/hotmod-dev/hotmod/internal/reactivemod"
	"github.com/hotmod-dev/hotmod/internal/refresh"
	"github.com/hotmod-dev/hotmod/internal/reload"
	"github.com/hotmod-dev/hotmod/internal/signalgraph"
	"github.com/hotmod-dev/hotmod/internal/slug"
	"github.com/hotmod-dev/hotmod/internal/supervisor"
	"github.com/hotmod-dev/hotmod/internal/watch"
)

// rootCmd is the single command form spec §6 describes:
// `<cmd> <slug> [flags]`. Unlike the teacher (a manifest generator with a
// "serve" subcommand among several), this binary's entire job is serving
// one reactively-reloaded application, so the serving behavior lives on
// the root command itself.
var rootCmd = &cobra.Command{
	Use:   "hotmod <slug>",
	Short: "Run an application under hot module replacement",
	Long: `Run an application under hot module replacement.

<slug> is module:attr or path:attr; attr names the application object
within the module.`,
	Args: cobra.ExactArgs(1),
	RunE: runServe,
}

// Execute runs the root command and exits with status 1 on error. Called
// once by main.main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		if ce, ok := err.(*configError); ok {
			pterm.Error.Println(ce.Error())
			os.Exit(1)
		}
		os.Exit(1)
	}
}

// configError marks spec §7's "config error": exits 1 before any server
// starts.
type configError struct{ err error }

func (e *configError) Error() string { return e.err.Error() }
func (e *configError) Unwrap() error { return e.err }

func configErrorf(format string, args ...any) error {
	return &configError{err: fmt.Errorf(format, args...)}
}

func init() {
	flags := rootCmd.Flags()
	flags.StringSlice("reload-include", nil, "additional paths to watch for restart-triggering changes")
	flags.StringSlice("reload-exclude", nil, "paths to exclude from watching")
	flags.StringSlice("asset-include", nil, "glob or literal patterns matched against changed files to classify as assets")
	flags.StringSlice("asset-exclude", nil, "glob or literal patterns excluded from the asset predicate")
	flags.Int("watch-debounce-ms", 150, "milliseconds to coalesce rapid filesystem events into one batch")
	flags.Int("watch-step-ms", 1000, "heartbeat interval in milliseconds for the browser refresh stream")
	flags.Int("restart-cooldown-ms", 0, "minimum milliseconds between successive server generation starts")
	flags.String("host", "127.0.0.1", "address the bundled default server binds to")
	flags.Int("port", 8000, "port the bundled default server binds to")
	flags.String("env-file", "", "dotenv file to load and keep in sync across reloads")
	flags.Bool("refresh", true, "enable the browser-refresh protocol and HTML injection")
	flags.Bool("clear", false, "clear the terminal before each reload")
	flags.String("log-level", "info", "log level: debug, info, warning, error")

	viper.BindPFlags(flags)
}

// runServe wires C1-C5 together: it parses the slug, starts the watcher,
// builds the reload coordinator and supervisor, and runs until interrupted.
func runServe(cmd *cobra.Command, args []string) error {
	level := logging.ParseLogLevel(viper.GetString("log-level"))
	logging.SetDebugEnabled(level == logging.LogLevelDebug)
	logging.SetQuietEnabled(level >= logging.LogLevelWarning)

	s, err := slug.Parse(args[0])
	if err != nil {
		return configErrorf("%w", err)
	}

	root, err := filepath.Abs(s.Path)
	if err != nil {
		return configErrorf("invalid module/path %q: %w", s.Path, err)
	}
	if s.Attr != "app" {
		return configErrorf("unknown application factory %q (the bundled CLI only registers \"app\")", s.Attr)
	}

	cwd, err := os.Getwd()
	if err != nil {
		return configErrorf("unable to determine working directory: %w", err)
	}

	debounceMs := viper.GetInt("watch-debounce-ms")
	restartCooldownMs := viper.GetInt("restart-cooldown-ms")
	watchStepMs := viper.GetInt("watch-step-ms")
	if debounceMs < 0 || restartCooldownMs < 0 || watchStepMs < 0 {
		return configErrorf("negative millisecond option")
	}

	fsys := platform.NewOSFileSystem()
	hub := refresh.NewHub()

	owner := signalgraph.NewOwner(nil)
	reg := reactivemod.NewRegistry(owner, fsys, func(path string) (any, error) {
		if _, err := fsys.Stat(path); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		// Only the root module produces the application object; every
		// other path registered via registerCodeFiles exists purely so
		// Registry.IsCodePath/Load recognize it as an individually
		// invalidatable code module.
		if path != root {
			return nil, nil
		}
		return devserver.Config{
			Root:         root,
			FS:           fsys,
			Hub:          hub,
			InjectHTML:   viper.GetBool("refresh"),
			PollInterval: msDuration(watchStepMs),
		}, nil
	})
	if _, err := reg.Load(root); err != nil {
		return configErrorf("module not found: %w", err)
	}

	assetSpec := watch.CompileAssetSpec(
		viper.GetStringSlice("asset-include"),
		viper.GetStringSlice("asset-exclude"),
		nil,
	)

	var envManager *envfile.Manager
	var envFilePath string
	if path := viper.GetString("env-file"); path != "" {
		var err error
		envFilePath, err = filepath.Abs(path)
		if err != nil {
			return configErrorf("invalid env file %q: %w", path, err)
		}
		envManager = envfile.NewManager(envFilePath)
		envManager.LoadAndApply("initial")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	loadApp := func(ctx context.Context) (any, error) {
		if envManager != nil {
			envManager.LoadAndApply("reload")
		}
		if err := registerCodeFiles(fsys, reg, root); err != nil {
			return nil, err
		}
		cfg, err := reg.Load(root)
		if err != nil {
			return nil, err
		}
		return cfg, nil
	}

	makeServer := func(ctx context.Context, app supervisor.App) (supervisor.Server, error) {
		cfg := app.(devserver.Config)
		cfg.Addr = fmt.Sprintf("%s:%d", viper.GetString("host"), viper.GetInt("port"))
		return devserver.New(cfg), nil
	}

	hooks := reload.Hooks{
		OnChangeDetected: func(info reload.ReloadInfo) error {
			if viper.GetBool("clear") {
				fmt.Print("\033[2J\033[H")
			}
			logging.Info("change detected: %v", info.FileList())
			return nil
		},
		OnServerCreated: func(server any) error {
			logging.Success("serving on http://%s:%d", viper.GetString("host"), viper.GetInt("port"))
			return nil
		},
	}
	refreshCb := func(info reload.ReloadInfo) error {
		hub.Broadcast(refresh.SignalReload)
		return nil
	}

	extraWatchSet := toSet(viper.GetStringSlice("reload-include"))
	forceRestartSet := map[string]struct{}{}
	if envFilePath != "" {
		// The env file must land in both sets: ForceRestartHits only fires
		// for a path that is also an ExtraHit (reload.Classification.decide).
		extraWatchSet[envFilePath] = struct{}{}
		forceRestartSet[envFilePath] = struct{}{}
	}

	classifier := &reload.Classifier{
		Registry:        reg,
		ExtraWatchSet:   extraWatchSet,
		ForceRestartSet: forceRestartSet,
		AssetSpec:       assetSpec,
		Cwd:             cwd,
		RefreshEnabled:  viper.GetBool("refresh"),
	}

	drainer := &lazyDrainer{}
	coordinator := reload.New(ctx, owner, classifier, loadApp, refreshCb, hooks, drainer)
	sup := supervisor.New(coordinator, makeServer, hooks, msDuration(restartCooldownMs), platform.NewRealTimeProvider())
	drainer.sup = sup

	fw, err := platform.NewFSNotifyFileWatcher()
	if err != nil {
		return fmt.Errorf("starting filesystem watcher: %w", err)
	}
	includeRoots := append([]string{root}, viper.GetStringSlice("reload-include")...)
	if envFilePath != "" {
		includeRoots = append(includeRoots, envFilePath)
	}
	watcher := watch.New(fw, fsys, watch.Config{
		DebounceWindow: msDuration(debounceMs),
		IncludeRoots:   includeRoots,
		ExcludeRoots:   viper.GetStringSlice("reload-exclude"),
	})
	if err := watcher.Start(); err != nil {
		return fmt.Errorf("starting filesystem watcher: %w", err)
	}
	defer watcher.Stop()

	go func() {
		for batch := range watcher.Batches() {
			paths := make([]string, 0, len(batch.Events))
			for p := range batch.Events {
				paths = append(paths, p)
			}
			coordinator.OnBatch(paths)
		}
	}()

	return runUntilInterrupted(ctx, cancel, sup)
}

// runUntilInterrupted runs the supervisor and honors SIGINT/SIGTERM and the
// 'q'/Ctrl+C keyboard shortcut: a first interrupt cancels ctx so the
// supervisor can drain the current generation and exit cleanly; a second
// interrupt during that drain escalates to an immediate process exit (spec
// §4.5 double-interrupt escalation, grounded on cmd/serve.go's
// signal.Notify + atomicgo.dev/keyboard pattern).
func runUntilInterrupted(ctx context.Context, cancel context.CancelFunc, sup *supervisor.Supervisor) error {
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	quitCh := make(chan struct{})
	if term.IsTerminal(int(os.Stdin.Fd())) {
		go listenKeyboard(quitCh)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return sup.Run(gctx) })

	select {
	case <-sigCh:
		logging.Info("shutting down...")
		cancel()
	case <-quitCh:
		logging.Info("shutting down...")
		cancel()
	case <-gctx.Done():
	}

	runDone := make(chan error, 1)
	go func() { runDone <- g.Wait() }()

	select {
	case err := <-runDone:
		if err != nil && err != context.Canceled {
			return err
		}
		return nil
	case <-sigCh:
		logging.Warning("second interrupt received, exiting immediately")
		os.Exit(130)
		return nil
	}
}

// listenKeyboard watches for 'q'/Ctrl+C on stdin and closes quitCh, letting
// an interactive terminal session quit without reaching for SIGINT (ported
// from cmd/serve.go's handleKeyboardInput, trimmed to this CLI's single
// shortcut instead of the manifest-generator's multi-key menu). Only
// started when stdin is a real terminal, since keyboard.Listen otherwise
// blocks forever reading from a pipe.
func listenKeyboard(quitCh chan struct{}) {
	_ = keyboard.Listen(func(key keys.Key) (stop bool, err error) {
		if key.Code == keys.CtrlC {
			close(quitCh)
			return true, nil
		}
		if key.Code == keys.RuneKey && len(key.Runes) > 0 && (key.Runes[0] == 'q' || key.Runes[0] == 'Q') {
			close(quitCh)
			return true, nil
		}
		return false, nil
	})
}

// lazyDrainer breaks the construction cycle between the reload coordinator
// (which needs a Drainer) and the supervisor (which needs the coordinator
// as its Reloader): the coordinator only calls Drain/CurrentServer once the
// supervisor is already running, by which point sup is set.
type lazyDrainer struct {
	sup *supervisor.Supervisor
}

func (d *lazyDrainer) CurrentServer() (any, bool)       { return d.sup.CurrentServer() }
func (d *lazyDrainer) Drain(ctx context.Context) error { return d.sup.Drain(ctx) }

// registerCodeFiles walks dir and registers every regular file it finds as
// a reactive module, so Registry.IsCodePath matches the individual file
// paths the watcher reports (spec §4.4 code_hits) instead of only the
// top-level root directory, and so a changed file's invalidation actually
// dirties the reload effect that reads it here.
func registerCodeFiles(fsys platform.FileSystem, reg *reactivemod.Registry, dir string) error {
	info, err := fsys.Stat(dir)
	if err != nil {
		return fmt.Errorf("%s: %w", dir, err)
	}
	if !info.IsDir() {
		// root names a single file; it is already registered as the app
		// module itself, so there is nothing further to walk.
		return nil
	}
	entries, err := fsys.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("%s: %w", dir, err)
	}
	for _, entry := range entries {
		path := filepath.Join(dir, entry.Name())
		if entry.IsDir() {
			if err := registerCodeFiles(fsys, reg, path); err != nil {
				return err
			}
			continue
		}
		if _, err := reg.Load(path); err != nil {
			return err
		}
	}
	return nil
}

func toSet(items []string) map[string]struct{} {
	out := make(map[string]struct{}, len(items))
	for _, it := range items {
		out[it] = struct{}{}
	}
	return out
}

func msDuration(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
