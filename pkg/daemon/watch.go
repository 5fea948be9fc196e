package daemon

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/fsnotify/fsnotify"
	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// watchConfig reloads the config when its file changes or SIGHUP arrives.
// The directory is watched because editors replace files on save.
func (s *Server) watchConfig(ctx context.Context, configPath string) error {
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGHUP)
	defer signal.Stop(sigc)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return pkgerrors.Wrap(err, "failed to create config watcher")
	}
	defer watcher.Close()

	target := filepath.Clean(configPath)
	if configPath != "" {
		if err := watcher.Add(filepath.Dir(target)); err != nil {
			// Reload by SIGHUP still works.
			logrus.WithError(err).Warnf("failed to watch %s", filepath.Dir(target))
		}
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-sigc:
			logrus.Info("caught SIGHUP")
			if err := s.reload(); err != nil {
				logrus.Error(err)
			}
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target || !(ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create)) {
				continue
			}
			logrus.WithField("op", ev.Op.String()).Debug("config file changed")
			if err := s.reload(); err != nil {
				logrus.Error(err)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logrus.WithError(err).Warn("config watcher error")
		}
	}
}
