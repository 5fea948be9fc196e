package daemon

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/minipupper/mpct/pkg/config"
	"github.com/minipupper/mpct/pkg/events"
	"github.com/minipupper/mpct/pkg/guard"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeSensor struct {
	mu      sync.Mutex
	current int
}

func (s *fakeSensor) ReadCurrent() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current, nil
}

type fakeLines struct{}

func (fakeLines) Assert() error   { return nil }
func (fakeLines) Deassert() error { return nil }

func newTestServer(t *testing.T) (*Server, *guard.Guard, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mpct.json")
	conf, err := config.NewFile(path)
	require.NoError(t, err)

	g, err := guard.New(&fakeSensor{}, fakeLines{}, guard.Limits{CurrentMax: conf.CurrentMax(), CounterMax: conf.CounterMax()})
	require.NoError(t, err)
	return NewServer(conf, g), g, path
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestGetStatus(t *testing.T) {
	s, g, _ := newTestServer(t)
	for i := 0; i < 5; i++ {
		_, _ = g.Sample(guard.DefaultCurrentMax + 1)
	}

	w := do(t, s.Router(), http.MethodGet, "/status", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp StatusResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 5, resp.HoldCounter)
	assert.False(t, resp.Tripped)
	assert.Equal(t, guard.DefaultLimits(), resp.Limits)
	assert.Equal(t, s.instance, resp.Instance)
}

func TestGetConfigAndVersion(t *testing.T) {
	s, _, _ := newTestServer(t)

	w := do(t, s.Router(), http.MethodGet, "/config", "")
	require.Equal(t, http.StatusOK, w.Code)
	var raw config.RawFileConfig
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &raw))
	require.NotNil(t, raw.CounterMax)
	assert.Equal(t, guard.DefaultCounterMax, *raw.CounterMax)

	w = do(t, s.Router(), http.MethodGet, "/version", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "v")
}

func TestResetGuard(t *testing.T) {
	s, g, _ := newTestServer(t)
	for i := 0; i < guard.DefaultCounterMax; i++ {
		_, _ = g.Sample(guard.DefaultCurrentMax + 1)
	}
	require.True(t, g.Status().Tripped)

	ch := s.hub.Subscribe()
	defer s.hub.Unsubscribe(ch)

	w := do(t, s.Router(), http.MethodPost, "/reset", "")
	require.Equal(t, http.StatusCreated, w.Code)
	assert.False(t, g.Status().Tripped)

	ev := <-ch
	assert.Equal(t, events.GuardRestored, ev.Name)
	p, err := events.DecodeAs[events.GuardEvent](ev)
	require.NoError(t, err)
	assert.Equal(t, guard.ReasonReset, p.Reason)
	assert.False(t, p.Tripped)

	// One reset, one event.
	select {
	case ev := <-ch:
		t.Fatalf("unexpected second event %s: %s", ev.Name, ev.Data)
	default:
	}

	// Resetting a guard in Normal publishes nothing.
	w = do(t, s.Router(), http.MethodPost, "/reset", "")
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Len(t, ch, 0)
}

func TestSetLimits(t *testing.T) {
	s, g, path := newTestServer(t)

	w := do(t, s.Router(), http.MethodPut, "/limits", `{"currentMax": 1000000, "counterMax": 50}`)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, guard.Limits{CurrentMax: 1000000, CounterMax: 50}, g.Status().Limits)

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"counterMax": 50`)

	w = do(t, s.Router(), http.MethodPut, "/limits", `{"currentMax": 0, "counterMax": 50}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, s.Router(), http.MethodPut, "/limits", `not json`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	assert.Equal(t, guard.Limits{CurrentMax: 1000000, CounterMax: 50}, g.Status().Limits)
}

func TestReload(t *testing.T) {
	s, g, path := newTestServer(t)

	require.NoError(t, os.WriteFile(path, []byte(`{"counterMax": 7}`), 0644))
	require.NoError(t, s.reload())
	assert.Equal(t, 7, g.Status().Limits.CounterMax)

	require.NoError(t, os.WriteFile(path, []byte(`{"counterMax": -1}`), 0644))
	assert.Error(t, s.reload())
	assert.Equal(t, 7, g.Status().Limits.CounterMax)
}

func TestServe(t *testing.T) {
	s, g, path := newTestServer(t)
	sock := filepath.Join(t.TempDir(), "mpct.sock")
	l, err := net.Listen("unix", sock)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, l, path) }()

	client := &http.Client{
		Transport: &http.Transport{
			DisableKeepAlives: true,
			DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
				var d net.Dialer
				return d.DialContext(ctx, "unix", sock)
			},
		},
	}

	resp, err := client.Get("http://unix/events")
	require.NoError(t, err)
	r := bufio.NewReader(resp.Body)
	line, err := r.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "event:"+events.GuardRestored+"\n", line)

	// Config edits are picked up without a restart.
	require.NoError(t, os.WriteFile(path, []byte(`{"counterMax": 3}`), 0644))
	require.Eventually(t, func() bool {
		return g.Status().Limits.CounterMax == 3
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("Serve did not return")
	}
	_ = resp.Body.Close()
}
