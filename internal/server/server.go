package server

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"log"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/shaunagostinho/globe-radio/internal/calibration"
	"github.com/shaunagostinho/globe-radio/internal/catalog"
	"github.com/shaunagostinho/globe-radio/internal/encoder"
	"github.com/shaunagostinho/globe-radio/internal/grid"
	"github.com/shaunagostinho/globe-radio/internal/index"
	"github.com/shaunagostinho/globe-radio/internal/logger"
	"github.com/shaunagostinho/globe-radio/internal/metrics"
	"github.com/shaunagostinho/globe-radio/internal/tuner"
)

// Deps are the running pieces the server exposes.
type Deps struct {
	Tuner       *tuner.Tuner
	Sampler     *tuner.Sampler
	Catalog     *catalog.Catalog
	Index       *index.Index
	EncoderName string
	PlayerName  string
	Demo        bool // calibration is not persisted in demo mode
}

// Server broadcasts tuner snapshots to WebSocket clients and serves the
// control API.
type Server struct {
	cfg    *Config
	deps   Deps
	webFS  fs.FS
	logger *logger.Logger

	clients   map[*wsClient]struct{}
	clientsMu sync.RWMutex

	upgrader websocket.Upgrader
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

// Frame is the JSON structure sent to all WebSocket clients.
type Frame struct {
	Tuner  *tuner.Snapshot `json:"tuner,omitempty"`
	Status *Status         `json:"status,omitempty"`
	Stamp  int64           `json:"stamp"` // Unix ms
}

// Status describes the static side of the globe: what it reads from and
// what it knows about.
type Status struct {
	Encoder    string          `json:"encoder"`
	Player     string          `json:"player"`
	Demo       bool            `json:"demo"`
	Resolution int             `json:"resolution"`
	Cities     int             `json:"cities"`
	Cells      int             `json:"cells"`
	Collisions int             `json:"collisions"`
	Offsets    encoder.Offsets `json:"offsets"`
	Tuner      *tuner.Snapshot `json:"tuner,omitempty"`
}

// New creates a new Server.
func New(cfg *Config, deps Deps, webFS fs.FS) *Server {
	return &Server{
		cfg:     cfg,
		deps:    deps,
		webFS:   webFS,
		logger:  logger.New(cfg.Logging),
		clients: make(map[*wsClient]struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Handler builds the HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Serve embedded web files
	if s.webFS != nil {
		mux.Handle("/", http.FileServer(http.FS(s.webFS)))
	}

	// WebSocket endpoint
	mux.HandleFunc("/ws", s.handleWS)

	route := func(path string, h http.HandlerFunc) {
		mux.Handle(path, metrics.Middleware(path, h))
	}
	route("/api/status", s.handleStatus)
	route("/api/config", s.handleConfig)
	route("/api/zero", s.handleZero)
	route("/api/jog", s.handleJog)

	mux.Handle("/metrics", metrics.Handler())
	return mux
}

// Run starts the HTTP server and the broadcast loop.
func (s *Server) Run(ctx context.Context) error {
	go s.broadcastLoop(ctx)

	srv := &http.Server{
		Addr:    s.cfg.Server.ListenAddr,
		Handler: s.Handler(),
	}

	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutCtx)
	}()

	log.Printf("[server] listening on %s", s.cfg.Server.ListenAddr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) status() *Status {
	st := &Status{
		Encoder:    s.deps.EncoderName,
		Player:     s.deps.PlayerName,
		Demo:       s.deps.Demo,
		Resolution: int(s.cfg.Resolution()),
		Tuner:      s.deps.Tuner.Snapshot(),
	}
	if s.deps.Catalog != nil {
		st.Cities = s.deps.Catalog.Len()
	}
	if s.deps.Index != nil {
		st.Cells = s.deps.Index.Len()
		st.Collisions = len(s.deps.Index.Collisions())
	}
	if s.deps.Sampler != nil {
		st.Offsets = s.deps.Sampler.Offsets()
	}
	return st
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[ws] upgrade error: %v", err)
		return
	}

	client := &wsClient{
		conn: conn,
		send: make(chan []byte, 64),
	}

	// Initial status goes out before any broadcast can be queued.
	if data, err := json.Marshal(Frame{Status: s.status(), Stamp: time.Now().UnixMilli()}); err == nil {
		client.send <- data
	}

	s.clientsMu.Lock()
	s.clients[client] = struct{}{}
	n := len(s.clients)
	s.clientsMu.Unlock()
	metrics.ActiveWebSockets.Inc()

	log.Printf("[ws] client connected (%d total)", n)

	// Writer goroutine
	go func() {
		defer conn.Close()
		for msg := range client.send {
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				break
			}
		}
	}()

	// Reader goroutine (handle incoming messages / keep-alive)
	go func() {
		defer func() {
			s.clientsMu.Lock()
			delete(s.clients, client)
			n := len(s.clients)
			close(client.send)
			s.clientsMu.Unlock()
			metrics.ActiveWebSockets.Dec()
			log.Printf("[ws] client disconnected (%d total)", n)
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
	}()
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", 405)
		return
	}
	writeJSON(w, s.status())
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		data, err := s.cfg.ToJSON()
		if err != nil {
			http.Error(w, err.Error(), 500)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(data)

	case http.MethodPost:
		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "bad request", 400)
			return
		}
		before := s.cfg.Resolution()
		if err := s.cfg.UpdateFromJSON(body); err != nil {
			http.Error(w, err.Error(), 400)
			return
		}
		if err := s.cfg.Save(); err != nil {
			log.Printf("[config] save failed: %v", err)
		}
		s.applyConfig(before)

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))

	default:
		http.Error(w, "method not allowed", 405)
	}
}

// applyConfig pushes the hot-updatable settings into the running tuner.
func (s *Server) applyConfig(prevRes grid.Resolution) {
	tc := s.cfg.TunerConfig()
	if err := s.deps.Tuner.SetFuzziness(tc.Fuzziness); err != nil {
		log.Printf("[config] fuzziness: %v", err)
	}
	if err := s.deps.Tuner.SetStickiness(tc.Stickiness); err != nil {
		log.Printf("[config] stickiness: %v", err)
	}
	s.cfg.mu.RLock()
	logging := s.cfg.Logging.Enabled
	s.cfg.mu.RUnlock()
	s.logger.SetEnabled(logging)

	if prevRes != s.cfg.Resolution() {
		log.Printf("[config] resolution changed to %d, takes effect on restart", s.cfg.Resolution())
	}
	s.broadcast(Frame{Status: s.status(), Stamp: time.Now().UnixMilli()})
}

func (s *Server) handleZero(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", 405)
		return
	}
	off, err := s.deps.Sampler.Zero()
	if errors.Is(err, tuner.ErrNoReading) {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), 500)
		return
	}
	if !s.deps.Demo {
		if err := calibration.Save(s.cfg.CalibrationPath(), off); err != nil {
			log.Printf("[calibration] save failed: %v", err)
		}
	}
	log.Printf("[calibration] calibrated: lat=%d lon=%d", off.Lat, off.Lon)
	writeJSON(w, off)
}

func (s *Server) handleJog(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", 405)
		return
	}
	delta := 1
	if v := r.URL.Query().Get("delta"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n == 0 {
			http.Error(w, "delta must be a non-zero integer", 400)
			return
		}
		delta = n
	}
	s.deps.Tuner.Jog(delta)
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

// broadcastLoop pushes the latest tuner snapshot to every client and the
// CSV log at a fixed rate.
func (s *Server) broadcastLoop(ctx context.Context) {
	hz := s.cfg.Server.BroadcastHz
	if hz <= 0 {
		hz = 5
	}
	ticker := time.NewTicker(time.Second / time.Duration(hz))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Close()
			return
		case <-ticker.C:
			snap := s.deps.Tuner.Snapshot()
			if snap == nil {
				continue
			}
			s.broadcast(Frame{Tuner: snap, Stamp: time.Now().UnixMilli()})

			// Record to CSV log
			s.logger.Record(snap)
		}
	}
}

func (s *Server) broadcast(frame Frame) {
	data, err := json.Marshal(frame)
	if err != nil {
		return
	}

	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()

	for client := range s.clients {
		select {
		case client.send <- data:
		default:
			// Client too slow, skip
		}
	}
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, err.Error(), 500)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}
