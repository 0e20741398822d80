package play

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/mgoretti/cogniplay/internal/domain"
	"github.com/mgoretti/cogniplay/internal/engine"
	"github.com/mgoretti/cogniplay/internal/games"
	"github.com/mgoretti/cogniplay/internal/session"
)

func TestRegistry_RegisterAndGet(t *testing.T) {
	r := NewRegistry()

	if got := r.Get("actor-1", "tab-1"); got != nil {
		t.Errorf("empty registry returned %v", got)
	}

	live := &Live{}
	r.Register("actor-1", "tab-1", live)
	if got := r.Get("actor-1", "tab-1"); got != live {
		t.Errorf("Get returned %v, want the registered connection", got)
	}
	if got := r.Get("actor-1", "tab-2"); got != nil {
		t.Errorf("other tab returned %v, want nil", got)
	}
	if got := r.Get("actor-2", "tab-1"); got != nil {
		t.Errorf("other actor returned %v, want nil", got)
	}
}

func TestRegistry_UnregisterOnlyRemovesOwn(t *testing.T) {
	r := NewRegistry()
	live := &Live{}
	r.Register("actor-1", "tab-1", live)

	// A stale connection's deferred unregister must not evict its
	// replacement.
	other := &Live{}
	r.Unregister("actor-1", "tab-1", other)
	if got := r.Get("actor-1", "tab-1"); got != live {
		t.Error("unregister with a different connection removed the registered one")
	}

	r.Unregister("actor-1", "tab-1", live)
	if got := r.Get("actor-1", "tab-1"); got != nil {
		t.Errorf("Get after unregister = %v, want nil", got)
	}
}

// wsPair dials a throwaway websocket server and returns both ends.
func wsPair(t *testing.T) (server, client *websocket.Conn) {
	t.Helper()
	accepted := make(chan *websocket.Conn, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := websocket.Accept(w, r, nil)
		if err != nil {
			t.Errorf("accept: %v", err)
			return
		}
		accepted <- c
		// Hold the handler open until the connection dies.
		ctx := context.Background()
		for {
			if _, _, err := c.Read(ctx); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c, _, err := websocket.Dial(ctx, strings.Replace(srv.URL, "http", "ws", 1), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = c.CloseNow() })

	select {
	case s := <-accepted:
		return s, c
	case <-ctx.Done():
		t.Fatal("server never accepted the connection")
		return nil, nil
	}
}

func TestRegistry_ReplaceClosesPrevious(t *testing.T) {
	r := NewRegistry()

	firstServer, firstClient := wsPair(t)
	secondServer, _ := wsPair(t)

	first := &Live{Conn: firstServer}
	second := &Live{Conn: secondServer}

	r.Register("actor-1", "tab-1", first)
	r.Register("actor-1", "tab-1", second)

	if got := r.Get("actor-1", "tab-1"); got != second {
		t.Error("replacement did not take over the registry slot")
	}

	// The replaced server socket was closed; its peer sees the close.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, _, err := firstClient.Read(ctx); err == nil {
		t.Error("replaced connection still readable")
	}
}

// trialEngine builds an engine over an ephemeral session manager, the
// way trial play runs without a store.
func trialEngine(t *testing.T) (*engine.Engine, *session.Manager) {
	t.Helper()
	profile, ok := games.Lookup("sequence-recall")
	if !ok {
		t.Fatal("sequence-recall missing from the catalog")
	}
	mgr, err := session.Start(context.Background(), nil, domain.NewSessionInput{GameID: "sequence-recall"})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	eng := engine.New(profile, engine.Deps{
		Lifecycle: mgr,
		Metrics:   engine.NewAggregator(mgr.ID(), profile, nil, nil),
	})
	return eng, mgr
}

func TestRegistry_ReplaceSuspendsSession(t *testing.T) {
	r := NewRegistry()
	firstServer, _ := wsPair(t)
	secondServer, _ := wsPair(t)

	eng, mgr := trialEngine(t)
	first := &Live{Conn: firstServer}
	first.SetEngine(eng)

	r.Register("actor-1", "tab-1", first)
	r.Register("actor-1", "tab-1", &Live{Conn: secondServer})

	// The replaced connection's session survives for a later resume.
	if got := mgr.Session().Status; got != domain.StatusActive {
		t.Errorf("replaced connection's session status = %q, want active", got)
	}
}

func TestRegistry_ReplaceDoesNotRaceEngineInstall(t *testing.T) {
	r := NewRegistry()
	firstServer, _ := wsPair(t)
	secondServer, _ := wsPair(t)

	first := &Live{Conn: firstServer}
	r.Register("actor-1", "tab-1", first)

	// A start frame installs the engine on the handler goroutine while
	// the replacing connection registers; run under -race.
	eng, _ := trialEngine(t)
	done := make(chan struct{})
	go func() {
		defer close(done)
		first.SetEngine(eng)
	}()
	r.Register("actor-1", "tab-1", &Live{Conn: secondServer})
	<-done

	if got := r.Get("actor-1", "tab-1"); got == first {
		t.Error("replacement did not take over the registry slot")
	}
}

func TestRegistryKey(t *testing.T) {
	if got := registryKey("actor-1"); got != "actor-1" {
		t.Errorf("registryKey(actor-1) = %q", got)
	}
	if got := registryKey(""); got != "trial" {
		t.Errorf("registryKey(\"\") = %q, want trial", got)
	}
}
