package daemon

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/minipupper/mpct/pkg/config"
	"github.com/minipupper/mpct/pkg/events"
	"github.com/minipupper/mpct/pkg/guard"
	"github.com/minipupper/mpct/pkg/version"
)

// StatusResponse is returned by GET /status.
type StatusResponse struct {
	guard.Status
	// LastSample is the time of the latest periodic sample, RFC3339.
	LastSample string `json:"lastSample,omitempty"`
	Instance   string `json:"instance"`
}

func (s *Server) getStatus(c *gin.Context) {
	resp := StatusResponse{
		Status:   s.guard().Status(),
		Instance: s.instance,
	}
	if last := s.runner.History().GetLastRecord(); !last.IsZero() {
		resp.LastSample = last.Format(time.RFC3339)
	}
	c.IndentedJSON(http.StatusOK, resp)
}

func (s *Server) getConfig(c *gin.Context) {
	fc, err := config.NewRawFileConfigFromConfig(s.conf)
	if err != nil {
		_ = c.AbortWithError(http.StatusInternalServerError, err)
		return
	}
	c.IndentedJSON(http.StatusOK, fc)
}

func (s *Server) resetGuard(c *gin.Context) {
	st, err := s.guard().Reset()
	if err != nil {
		logrus.Errorf("resetGuard failed: %v", err)
		c.IndentedJSON(http.StatusInternalServerError, err.Error())
		_ = c.AbortWithError(http.StatusInternalServerError, err)
		return
	}

	// A reset that restored power was already published by the guard.
	c.IndentedJSON(http.StatusCreated, st)
}

func (s *Server) setLimits(c *gin.Context) {
	var l guard.Limits
	if err := c.BindJSON(&l); err != nil {
		c.IndentedJSON(http.StatusBadRequest, err.Error())
		_ = c.AbortWithError(http.StatusBadRequest, err)
		return
	}

	if err := s.guard().SetLimits(l); err != nil {
		c.IndentedJSON(http.StatusBadRequest, err.Error())
		_ = c.AbortWithError(http.StatusBadRequest, err)
		return
	}

	s.conf.SetCurrentMax(l.CurrentMax)
	s.conf.SetCounterMax(l.CounterMax)
	if err := s.conf.Save(); err != nil {
		logrus.Errorf("saveConfig failed: %v", err)
		c.IndentedJSON(http.StatusInternalServerError, err.Error())
		_ = c.AbortWithError(http.StatusInternalServerError, err)
		return
	}

	s.hub.Publish(events.GuardLimits, events.LimitsEvent{
		CurrentMax: l.CurrentMax,
		CounterMax: l.CounterMax,
		Instance:   s.instance,
		Ts:         time.Now().Unix(),
	})

	msg := fmt.Sprintf("set guard limits to current %d, counter %d", l.CurrentMax, l.CounterMax)
	logrus.Info(msg)

	c.IndentedJSON(http.StatusCreated, msg)
}

// streamEvents sends hub events as server-sent events until the client goes
// away or the daemon shuts down.
func (s *Server) streamEvents(c *gin.Context) {
	ch := s.hub.Subscribe()
	defer s.hub.Unsubscribe(ch)

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	// Current state first, so watchers do not wait for the next transition.
	st := s.guard().Status()
	c.SSEvent(transitionName(st), events.GuardEvent{
		Tripped:     st.Tripped,
		Current:     st.Current,
		HoldCounter: st.HoldCounter,
		Reason:      "snapshot",
		Instance:    s.instance,
		Ts:          time.Now().Unix(),
	})
	c.Writer.Flush()

	ctx := c.Request.Context()
	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case ev, ok := <-ch:
			if !ok {
				return false
			}
			c.SSEvent(ev.Name, ev.Data)
			return true
		}
	})
}

func transitionName(st guard.Status) string {
	if st.Tripped {
		return events.GuardTripped
	}
	return events.GuardRestored
}

func getVersion(c *gin.Context) {
	c.IndentedJSON(http.StatusOK, version.Version)
}
