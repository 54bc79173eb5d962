package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/shaunagostinho/globe-radio/internal/calibration"
	"github.com/shaunagostinho/globe-radio/internal/catalog"
	"github.com/shaunagostinho/globe-radio/internal/encoder"
	"github.com/shaunagostinho/globe-radio/internal/grid"
	"github.com/shaunagostinho/globe-radio/internal/index"
	"github.com/shaunagostinho/globe-radio/internal/player"
	"github.com/shaunagostinho/globe-radio/internal/tuner"
)

const stationsJSON = `{
  "Akron,US-OH": {"coords": {"n": 41.0798, "e": -81.5219}, "urls": [{"name": "WAPS", "url": "http://a/waps"}]}
}`

func newTestServer(t *testing.T) (*Server, *Config) {
	t.Helper()
	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.path = filepath.Join(dir, "config.yaml")
	cfg.Data.Dir = dir

	cat, err := catalog.Parse([]byte(stationsJSON))
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	idx, err := index.Build(cat, cfg.Resolution())
	if err != nil {
		t.Fatalf("index: %v", err)
	}
	tu, err := tuner.New(idx, cat, player.NewLogPlayer(), cfg.TunerConfig())
	if err != nil {
		t.Fatalf("tuner: %v", err)
	}
	cond, err := encoder.NewConditioner(cfg.Resolution())
	if err != nil {
		t.Fatalf("conditioner: %v", err)
	}
	demo := encoder.NewDemoProvider([][2]uint16{{300, 700}})
	demo.Connect()
	sampler := tuner.NewSampler(demo, cond, encoder.Offsets{}, tuner.SamplerConfig{Poll: 5 * time.Millisecond})

	s := New(cfg, Deps{
		Tuner:       tu,
		Sampler:     sampler,
		Catalog:     cat,
		Index:       idx,
		EncoderName: demo.Name(),
		PlayerName:  "log",
	}, nil)
	return s, cfg
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, target, strings.NewReader(body)))
	return rec
}

func TestStatus(t *testing.T) {
	s, _ := newTestServer(t)
	rec := do(t, s.Handler(), http.MethodGet, "/api/status", "")
	if rec.Code != 200 {
		t.Fatalf("status code=%d body=%s", rec.Code, rec.Body)
	}
	var st Status
	if err := json.Unmarshal(rec.Body.Bytes(), &st); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if st.Cities != 1 || st.Cells != 1 || st.Resolution != 1024 || st.Tuner == nil || st.Tuner.State != "tuning" {
		t.Fatalf("status=%+v", st)
	}
}

func TestConfigPostValidatesAndApplies(t *testing.T) {
	s, cfg := newTestServer(t)
	h := s.Handler()

	rec := do(t, h, http.MethodPost, "/api/config", `{"tuning":{"fuzziness":0}}`)
	if rec.Code != 400 {
		t.Fatalf("invalid fuzziness accepted: code=%d", rec.Code)
	}
	if cfg.Tuning.Fuzziness != 2 {
		t.Fatalf("rejected update leaked: fuzziness=%d", cfg.Tuning.Fuzziness)
	}

	rec = do(t, h, http.MethodPost, "/api/config", `{"tuning":{"fuzziness":4,"stickiness":6}}`)
	if rec.Code != 200 {
		t.Fatalf("code=%d body=%s", rec.Code, rec.Body)
	}
	if cfg.Tuning.Fuzziness != 4 || cfg.Tuning.Stickiness != 6 || cfg.Encoder.Type != "demo" {
		t.Fatalf("config after merge: tuning=%+v encoder=%s", cfg.Tuning, cfg.Encoder.Type)
	}
	if _, err := os.Stat(cfg.path); err != nil {
		t.Fatalf("config not saved: %v", err)
	}

	s.deps.Tuner.Step(tuner.Reading{Coord: grid.Coord{X: 1, Y: 1}})
	if snap := s.deps.Tuner.Snapshot(); snap.Fuzziness != 4 || snap.Stickiness != 6 {
		t.Fatalf("tuner not updated: fuzziness=%d stickiness=%d", snap.Fuzziness, snap.Stickiness)
	}

	rec = do(t, h, http.MethodGet, "/api/config", "")
	if !strings.Contains(rec.Body.String(), `"fuzziness":4`) {
		t.Fatalf("GET config=%s", rec.Body)
	}
}

func TestZeroCalibratesAndPersists(t *testing.T) {
	s, cfg := newTestServer(t)
	h := s.Handler()

	if rec := do(t, h, http.MethodPost, "/api/zero", ""); rec.Code != http.StatusConflict {
		t.Fatalf("zero without reading: code=%d", rec.Code)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.deps.Sampler.Run(ctx)
	select {
	case <-s.deps.Sampler.Readings():
	case <-time.After(2 * time.Second):
		t.Fatalf("no reading from demo provider")
	}

	rec := do(t, h, http.MethodPost, "/api/zero", "")
	if rec.Code != 200 {
		t.Fatalf("zero: code=%d body=%s", rec.Code, rec.Body)
	}
	var off encoder.Offsets
	if err := json.Unmarshal(rec.Body.Bytes(), &off); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got := calibration.Load(cfg.CalibrationPath()); got != off {
		t.Fatalf("persisted=%+v want %+v", got, off)
	}

	if rec := do(t, h, http.MethodGet, "/api/zero", ""); rec.Code != 405 {
		t.Fatalf("GET zero: code=%d", rec.Code)
	}
}

func TestJogValidatesDelta(t *testing.T) {
	s, _ := newTestServer(t)
	h := s.Handler()
	tests := []struct {
		method, target string
		want           int
	}{
		{http.MethodPost, "/api/jog", 200},
		{http.MethodPost, "/api/jog?delta=-1", 200},
		{http.MethodPost, "/api/jog?delta=0", 400},
		{http.MethodPost, "/api/jog?delta=next", 400},
		{http.MethodGet, "/api/jog", 405},
	}
	for _, tt := range tests {
		if rec := do(t, h, tt.method, tt.target, ""); rec.Code != tt.want {
			t.Fatalf("%s %s: code=%d want %d", tt.method, tt.target, rec.Code, tt.want)
		}
	}
}

func TestMetricsEndpoint(t *testing.T) {
	s, _ := newTestServer(t)
	h := s.Handler()
	do(t, h, http.MethodGet, "/api/status", "")
	rec := do(t, h, http.MethodGet, "/metrics", "")
	if !strings.Contains(rec.Body.String(), "globeradio_http_requests_total") {
		t.Fatalf("metrics missing http counter")
	}
}

func TestWebSocketSendsStatusThenSnapshots(t *testing.T) {
	s, cfg := newTestServer(t)
	cfg.Server.BroadcastHz = 50

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.broadcastLoop(ctx)

	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	readFrame := func() Frame {
		t.Helper()
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		var f Frame
		if err := json.Unmarshal(data, &f); err != nil {
			t.Fatalf("decode %s: %v", data, err)
		}
		return f
	}

	first := readFrame()
	if first.Status == nil {
		t.Fatalf("first frame has no status: %+v", first)
	}
	if first.Status.Encoder != "Demo (Simulated)" || first.Status.Cities != 1 {
		t.Fatalf("status=%+v", first.Status)
	}

	next := readFrame()
	if next.Tuner == nil || next.Status != nil {
		t.Fatalf("broadcast frame=%+v want a tuner snapshot", next)
	}
	if next.Tuner.State != tuner.Tuning.String() || next.Stamp == 0 {
		t.Fatalf("snapshot state=%q stamp=%d", next.Tuner.State, next.Stamp)
	}
}
