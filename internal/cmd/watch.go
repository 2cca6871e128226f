package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Iron-Ham/replan/internal/config"
	"github.com/Iron-Ham/replan/internal/errors"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Re-run a scenario whenever it or the config file changes",
	Long: `Watch replays the scenario like simulate --dry-run, then waits. When the
scenario file changes it is reloaded and replayed. When the config file
changes, the new thresholds are applied to the running monitor and the
scenario is replayed. Press Ctrl+C to stop.`,
	RunE: runWatch,
}

var watchFile string // Scenario path

func init() {
	addScenarioFlag(watchCmd, &watchFile)
	rootCmd.AddCommand(watchCmd)
}

// reloadKind says what changed on disk.
type reloadKind int

const (
	reloadScenario reloadKind = iota
	reloadConfig
)

func runWatch(cmd *cobra.Command, args []string) error {
	s, err := openSession(watchFile)
	if err != nil {
		return err
	}
	defer s.close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// The global viper is reread on its watcher goroutine, so reloads are
	// decoded from a private instance.
	reloads := make(chan reloadKind, 1)
	cfgFile := viper.ConfigFileUsed()
	if cfgFile != "" {
		viper.OnConfigChange(func(e fsnotify.Event) {
			notify(reloads, reloadConfig)
		})
		viper.WatchConfig()
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "failed to create file watcher")
	}
	defer watcher.Close()

	// Watch the directory so editors that replace the file are still seen
	path, err := filepath.Abs(s.path)
	if err != nil {
		return err
	}
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return errors.Wrapf(err, "failed to watch %s", filepath.Dir(path))
	}

	go forwardScenarioEvents(ctx, watcher, path, reloads, s)

	return s.watchLoop(ctx, cmd.OutOrStdout(), reloads, func() (*config.Config, error) {
		return loadConfigFile(cfgFile)
	})
}

// loadConfigFile reads path into a fresh viper instance with the same
// defaults and environment overrides as the global one.
func loadConfigFile(path string) (*config.Config, error) {
	v := viper.New()
	config.SetDefaultsOn(v)
	configureEnv(v)
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrapf(err, "failed to read %s", path)
	}
	return config.LoadFrom(v)
}

// forwardScenarioEvents turns writes to path into reload requests.
func forwardScenarioEvents(ctx context.Context, w *fsnotify.Watcher, path string, reloads chan<- reloadKind, s *session) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != path {
				continue
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) {
				notify(reloads, reloadScenario)
			}
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			s.logger.Warn("scenario watcher error", "error", err)
		}
	}
}

// notify queues a reload without blocking. A pending request of either
// kind is enough to trigger a replay.
func notify(reloads chan<- reloadKind, k reloadKind) {
	select {
	case reloads <- k:
	default:
	}
}

// watchLoop replays the scenario once and then again after each reload
// until ctx is done.
func (s *session) watchLoop(ctx context.Context, out io.Writer, reloads <-chan reloadKind, loadConfig func() (*config.Config, error)) error {
	s.replayOnce(ctx, out)
	for {
		select {
		case <-ctx.Done():
			s.engine.StopMonitoring(s.task.ID)
			return nil
		case k := <-reloads:
			var err error
			switch k {
			case reloadScenario:
				err = s.reloadScenario()
				if err == nil {
					fmt.Fprintln(out, mutedStyle.Render("scenario changed, replaying"))
				}
			case reloadConfig:
				var cfg *config.Config
				cfg, err = loadConfig()
				if err == nil {
					err = s.reloadConfig(cfg)
				}
				if err == nil {
					fmt.Fprintln(out, mutedStyle.Render("config changed, replaying"))
				}
			}
			if err != nil {
				fmt.Fprintln(out, errStyle.Render("reload failed: ")+err.Error())
				s.logger.Warn("reload failed", "error", err)
				continue
			}
			s.replayOnce(ctx, out)
		}
	}
}

func (s *session) replayOnce(ctx context.Context, out io.Writer) {
	heading(out, "WATCH "+s.sc.Title())
	t := s.replay(ctx, out, false)
	fmt.Fprintln(out)
	t.render(out)
}
