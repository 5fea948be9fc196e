// Package daemon runs the overload guard outside a calibration session and
// serves its state over a unix socket.
package daemon

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/minipupper/mpct/pkg/config"
	"github.com/minipupper/mpct/pkg/events"
	"github.com/minipupper/mpct/pkg/guard"
	"github.com/minipupper/mpct/pkg/hardware"
)

// Server holds the state shared by the guard loop and the HTTP handlers.
type Server struct {
	conf     config.Config
	runner   *guard.Runner
	hub      *events.Hub
	instance string
}

// NewServer wires g to publish its transitions on a new event hub.
func NewServer(conf config.Config, g *guard.Guard) *Server {
	s := &Server{
		conf:     conf,
		runner:   guard.NewRunner(g, conf.GuardInterval()),
		hub:      events.NewHub(),
		instance: uuid.NewString(),
	}
	g.OnTransition(s.publishTransition)
	return s
}

func (s *Server) guard() *guard.Guard {
	return s.runner.Guard()
}

func (s *Server) publishTransition(st guard.Status, reason string) {
	name := events.GuardRestored
	if st.Tripped {
		name = events.GuardTripped
	}
	s.hub.Publish(name, events.GuardEvent{
		Tripped:     st.Tripped,
		Current:     st.Current,
		HoldCounter: st.HoldCounter,
		Reason:      reason,
		Instance:    s.instance,
		Ts:          time.Now().Unix(),
	})
}

// Router returns the HTTP API.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(s.requestLogger())
	router.GET("/status", s.getStatus)
	router.GET("/config", s.getConfig)
	router.GET("/version", getVersion)
	router.GET("/events", s.streamEvents)
	router.POST("/reset", s.resetGuard)
	router.PUT("/limits", s.setLimits)

	return router
}

// reload re-reads the config file and applies the guard limits.
func (s *Server) reload() error {
	if err := s.conf.Load(); err != nil {
		return pkgerrors.Wrap(err, "failed to reload config")
	}
	l := guard.Limits{CurrentMax: s.conf.CurrentMax(), CounterMax: s.conf.CounterMax()}
	if err := s.guard().SetLimits(l); err != nil {
		return err
	}
	logrus.WithFields(s.conf.LogrusFields()).Info("config reloaded")
	return nil
}

// Run starts the guard daemon and blocks until SIGINT or SIGTERM.
func Run(configPath string, unixSocketPath string, allowNonRoot bool) error {
	conf, err := config.NewFile(configPath)
	if err != nil {
		return pkgerrors.Wrap(err, "failed to parse config during startup")
	}
	logrus.WithFields(conf.LogrusFields()).Infof("config loaded")

	profile := hardware.DetectProfile(conf)

	lines, err := hardware.NewEnableLines(conf.GPIOBackend(), profile.EnablePins)
	if err != nil {
		return err
	}
	defer func() {
		// Leave the robot powered when the guard goes away.
		if err := lines.Assert(); err != nil {
			logrus.Errorf("failed to power servo rails before exiting: %v", err)
		}
		if err := lines.Close(); err != nil {
			logrus.Errorf("failed to close enable lines: %v", err)
		}
	}()

	sensor, err := hardware.NewCurrentSensor(conf)
	if err != nil {
		return err
	}

	g, err := guard.New(sensor, lines, guard.Limits{CurrentMax: conf.CurrentMax(), CounterMax: conf.CounterMax()})
	if err != nil {
		return err
	}

	s := NewServer(conf, g)

	_ = os.Remove(unixSocketPath)
	l, err := net.Listen("unix", unixSocketPath)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to listen on %s", unixSocketPath)
	}

	if conf.AllowNonRootAccess() || allowNonRoot {
		logrus.Infof("non-root access is allowed, changing permissions of %s to 0777", unixSocketPath)
		if err := os.Chmod(unixSocketPath, 0777); err != nil {
			_ = l.Close()
			return err
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return s.Serve(ctx, l, configPath)
}

// Serve runs the HTTP API on l, the guard loop and the config watcher until
// ctx is done or one of them fails.
func (s *Server) Serve(ctx context.Context, l net.Listener, configPath string) error {
	srv := &http.Server{
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	eg, egCtx := errgroup.WithContext(ctx)
	// Request contexts end with the daemon so event streams let Shutdown finish.
	srv.BaseContext = func(net.Listener) context.Context { return egCtx }

	eg.Go(func() error {
		logrus.Infof("http server listening on %s", l.Addr().String())
		if err := srv.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	eg.Go(func() error {
		return s.runner.Run(egCtx)
	})

	eg.Go(func() error {
		return s.watchConfig(egCtx, configPath)
	})

	eg.Go(func() error {
		<-egCtx.Done()
		logrus.Info("shutting down http server")
		s.hub.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logrus.Errorf("failed to shutdown http server: %v", err)
			_ = srv.Close()
		}
		return nil
	})

	err := eg.Wait()
	logrus.Info("exiting")
	return err
}
