package session

import (
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Service is an external process that must not drive the servos while a
// session is running.
type Service interface {
	Stop() error
	Start() error
}

// PowerSwitch powers the servo rails.
type PowerSwitch interface {
	Assert() error
}

// Release undoes Acquire. It is safe to call more than once.
type Release func()

// Acquire stops services and powers the servo rails. Services that fail to
// stop are logged and skipped. If the rails cannot be powered, everything is
// released again and the error is returned.
func Acquire(services []Service, lines PowerSwitch) (Release, error) {
	for _, s := range services {
		if err := s.Stop(); err != nil {
			logrus.WithError(err).Warn("failed to stop service")
		}
	}

	var once sync.Once
	release := func() {
		once.Do(func() {
			for _, s := range services {
				if err := s.Start(); err != nil {
					logrus.WithError(err).Warn("failed to start service")
				}
			}
			if err := lines.Assert(); err != nil {
				logrus.WithError(err).Error("failed to power servo rails")
			}
			logrus.Debug("session resources released")
		})
	}

	if err := lines.Assert(); err != nil {
		release()
		return nil, pkgerrors.Wrap(err, "failed to power servo rails")
	}

	return release, nil
}

var exit = os.Exit

// unwindTimeout bounds how long ReleaseOnSignal waits for the frontend to end
// the session after interrupt before releasing and exiting on its own.
var unwindTimeout = 3 * time.Second

// ReleaseOnSignal handles SIGINT and SIGTERM during a session. With an
// interrupt func it asks the frontend to end the session, so the terminal is
// restored and the caller's deferred release runs; if the session has not
// ended (stop not called) within a few seconds, or interrupt is nil, it runs
// release and exits. The returned stop function unregisters the handler.
func ReleaseOnSignal(release Release, interrupt func()) (stop func()) {
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)

	quit := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)

		var sig os.Signal
		select {
		case sig = <-sigc:
		case <-quit:
			return
		}

		if interrupt != nil {
			logrus.Infof("caught signal \"%s\": ending session", sig)
			interrupt()

			timer := time.NewTimer(unwindTimeout)
			defer timer.Stop()
			select {
			case <-quit:
				return
			case <-timer.C:
				logrus.Warn("session did not end in time")
			}
		}

		logrus.Infof("caught signal \"%s\": releasing session", sig)
		release()
		exit(130)
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			signal.Stop(sigc)
			close(quit)
			<-done
		})
	}
}
