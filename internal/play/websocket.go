package play

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/coder/websocket"
	"github.com/mgoretti/cogniplay/internal/config"
	"github.com/mgoretti/cogniplay/internal/domain"
	"github.com/mgoretti/cogniplay/internal/engine"
	"github.com/mgoretti/cogniplay/internal/games"
	"github.com/mgoretti/cogniplay/internal/identity"
	"github.com/mgoretti/cogniplay/internal/session"
	"github.com/mgoretti/cogniplay/internal/store"
)

// clientFrame is one message from the presentation layer.
type clientFrame struct {
	Type      string `json:"type"` // "start", "input", "exit", "ping"
	GameID    string `json:"game_id,omitempty"`
	SessionID string `json:"session_id,omitempty"`
	Level     int    `json:"level,omitempty"`
	Value     string `json:"value,omitempty"`
}

// WebSocketHandler upgrades gameplay connections and runs the engine
// loop for them.
type WebSocketHandler struct {
	repo     store.Repository
	locator  *session.Locator
	registry *Registry
	cfg      *config.Config
}

// NewWebSocketHandler creates a gameplay websocket handler.
func NewWebSocketHandler(repo store.Repository, locator *session.Locator, registry *Registry, cfg *config.Config) *WebSocketHandler {
	return &WebSocketHandler{repo: repo, locator: locator, registry: registry, cfg: cfg}
}

// metricSink adapts the repository's append-only metric table to the
// engine's sink interface.
type metricSink struct {
	repo store.Repository
}

func (s *metricSink) Emit(ctx context.Context, m *domain.BehavioralMetric) error {
	return s.repo.AppendMetric(ctx, m)
}

// sender serializes outbound frames through one writer goroutine so
// engine timer goroutines never block on socket writes.
type sender struct {
	conn *websocket.Conn
	ch   chan engine.Event
	done chan struct{}
}

func newSender(ctx context.Context, conn *websocket.Conn) *sender {
	s := &sender{conn: conn, ch: make(chan engine.Event, 256), done: make(chan struct{})}
	go s.run(ctx)
	return s
}

func (s *sender) run(ctx context.Context) {
	defer close(s.done)
	for ev := range s.ch {
		data, err := json.Marshal(ev)
		if err != nil {
			slog.Error("Failed to marshal play event", "error", err, "type", ev.Type)
			continue
		}
		if err := s.conn.Write(ctx, websocket.MessageText, data); err != nil {
			if ctx.Err() == nil {
				slog.Debug("Play event write failed", "error", err)
			}
			return
		}
	}
}

func (s *sender) send(ev engine.Event) {
	select {
	case s.ch <- ev:
	default:
		slog.Warn("Play event buffer full, dropping event", "type", ev.Type)
	}
}

func (s *sender) close() {
	close(s.ch)
	<-s.done
}

// ServeHTTP implements http.Handler for the gameplay websocket.
func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	actorID := identity.ActorIDFromContext(r.Context())
	tabID := identity.TabIDFromContext(r.Context())
	slog.Info("Play connection request", "actor_id", actorID, "tab_id", tabID, "ip", r.RemoteAddr)

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("Failed to accept websocket", "error", err, "actor_id", actorID)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "session ended"); closeErr != nil {
			slog.Debug("Failed to close websocket", "error", closeErr, "actor_id", actorID)
		}
	}()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	out := newSender(ctx, ws)
	defer out.close()

	live := &Live{Conn: ws}
	h.registry.Register(registryKey(actorID), tabID, live)
	defer h.registry.Unregister(registryKey(actorID), tabID, live)

	// A dropped connection or closed tab suspends the run with a final
	// durable checkpoint so the session stays resumable; only an
	// explicit exit frame abandons it. A completed run already finished
	// its session and Suspend is a no-op.
	exited := false
	defer func() {
		if eng := live.Engine(); eng != nil && !exited {
			eng.Suspend(context.Background())
		}
	}()

	exited = h.readLoop(ctx, ws, out, live, actorID)
	slog.Info("Play connection ended", "actor_id", actorID, "tab_id", tabID)
}

// readLoop reports whether the client ended the run with an explicit
// exit frame.
func (h *WebSocketHandler) readLoop(ctx context.Context, ws *websocket.Conn, out *sender, live *Live, actorID string) bool {
	for {
		_, message, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 || errors.Is(err, context.Canceled) {
				slog.Debug("Websocket closed by client", "actor_id", actorID)
			} else {
				slog.Warn("Websocket read error", "error", err, "actor_id", actorID)
			}
			return false
		}

		var frame clientFrame
		if err := json.Unmarshal(message, &frame); err != nil {
			sendError(out, "bad_frame")
			continue
		}

		switch frame.Type {
		case "start":
			h.handleStart(ctx, out, live, actorID, frame)
		case "input":
			if eng := live.Engine(); eng != nil {
				eng.HandleInput(ctx, frame.Value)
			}
		case "exit":
			if eng := live.Engine(); eng != nil {
				eng.Exit(ctx)
			}
			return true
		case "ping":
			out.send(engine.Event{Type: "pong"})
		}
	}
}

// handleStart starts fresh, resumes, or runs trial play depending on
// the frame and identity.
func (h *WebSocketHandler) handleStart(ctx context.Context, out *sender, live *Live, actorID string, frame clientFrame) {
	if live.Engine() != nil {
		sendError(out, "already_started")
		return
	}

	if frame.SessionID != "" {
		h.resumeGame(ctx, out, live, actorID, frame.SessionID)
		return
	}

	profile, ok := games.Lookup(frame.GameID)
	if !ok {
		sendError(out, "unknown_game")
		return
	}

	mgr, err := session.Start(ctx, h.repo, domain.NewSessionInput{
		GameID:       frame.GameID,
		ActorID:      actorID,
		InitialLevel: frame.Level,
	}, session.WithCheckpointInterval(h.cfg.CheckpointInterval))
	if err != nil {
		if errors.Is(err, session.ErrSessionConflict) {
			sendError(out, "session_conflict")
			return
		}
		slog.Error("Failed to start session over websocket", "error", err, "actor_id", actorID, "game_id", frame.GameID)
		sendError(out, "start_failed")
		return
	}

	eng := h.buildEngine(profile, mgr, out)
	live.SetEngine(eng)
	eng.Begin(ctx, frame.Level)
}

func (h *WebSocketHandler) resumeGame(ctx context.Context, out *sender, live *Live, actorID, sessionID string) {
	mgr, state, err := h.locator.Resume(ctx, sessionID, session.WithCheckpointInterval(h.cfg.CheckpointInterval))
	if err != nil {
		if errors.Is(err, session.ErrNotResumable) {
			sendError(out, "not_resumable")
			return
		}
		slog.Error("Failed to resume session", "error", err, "session_id", sessionID)
		sendError(out, "resume_failed")
		return
	}

	record := mgr.Session()
	if record.ActorID != actorID {
		sendError(out, "forbidden")
		return
	}
	profile, ok := games.Lookup(record.GameID)
	if !ok {
		sendError(out, "unknown_game")
		return
	}

	eng := h.buildEngine(profile, mgr, out)
	live.SetEngine(eng)
	eng.Resume(ctx, engine.State{
		Level:              state.Level,
		Score:              state.Score,
		Lives:              state.Lives,
		Round:              state.Round,
		ConsecutiveCorrect: state.ConsecutiveCorrect,
		ConsecutiveErrors:  state.ConsecutiveErrors,
		Moves:              state.Moves,
		CorrectMoves:       state.CorrectMoves,
		ReactionSumMs:      state.ReactionSumMs,
		Span:               state.Span,
	})
}

func (h *WebSocketHandler) buildEngine(profile *domain.GameProfile, mgr *session.Manager, out *sender) *engine.Engine {
	record := mgr.Session()
	var sink engine.MetricSink
	if !record.Ephemeral() {
		sink = &metricSink{repo: h.repo}
	}
	return engine.New(profile, engine.Deps{
		Lifecycle: mgr,
		Metrics:   engine.NewAggregator(record.ID, profile, sink, nil),
		Emit:      out.send,
	})
}

func sendError(out *sender, code string) {
	out.send(engine.Event{Type: "error", Error: code})
}

func registryKey(actorID string) string {
	if actorID == "" {
		return "trial"
	}
	return actorID
}
