package identity

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func runMiddleware(r *http.Request) (actorID, tabID string, w *httptest.ResponseRecorder) {
	w = httptest.NewRecorder()
	handler := Middleware(true)(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		actorID = ActorIDFromContext(r.Context())
		tabID = TabIDFromContext(r.Context())
	}))
	handler.ServeHTTP(w, r)
	return actorID, tabID, w
}

func TestMiddleware_CreatesAnonIdentity(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	actorID, _, w := runMiddleware(req)

	if !isValidAnonID(actorID) {
		t.Fatalf("actor id %q is not a valid anonymous id", actorID)
	}

	var cookie *http.Cookie
	for _, c := range w.Result().Cookies() {
		if c.Name == AnonCookieName {
			cookie = c
		}
	}
	if cookie == nil {
		t.Fatal("anonymous cookie not set")
	}
	if cookie.Value != actorID {
		t.Errorf("cookie value %q != actor id %q", cookie.Value, actorID)
	}
	if !cookie.HttpOnly {
		t.Error("anonymous cookie is not HttpOnly")
	}
}

func TestMiddleware_ReusesExistingIdentity(t *testing.T) {
	existing := "anon_" + strings.Repeat("a", 32)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: AnonCookieName, Value: existing})

	actorID, _, _ := runMiddleware(req)
	if actorID != existing {
		t.Errorf("actor id = %q, want existing %q", actorID, existing)
	}
}

func TestMiddleware_RejectsForgedCookie(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: AnonCookieName, Value: "anon_<script>"})

	actorID, _, _ := runMiddleware(req)
	if actorID == "anon_<script>" {
		t.Error("forged cookie value accepted as identity")
	}
	if !isValidAnonID(actorID) {
		t.Errorf("replacement id %q invalid", actorID)
	}
}

func TestMiddleware_TrialModeHasNoActor(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(TrialHeaderName, "1")

	actorID, _, w := runMiddleware(req)
	if actorID != "" {
		t.Errorf("trial actor id = %q, want empty", actorID)
	}
	for _, c := range w.Result().Cookies() {
		if c.Name == AnonCookieName {
			t.Error("trial request received an identity cookie")
		}
	}
}

func TestMiddleware_TrialQueryParam(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?trial=1", nil)
	actorID, _, _ := runMiddleware(req)
	if actorID != "" {
		t.Errorf("trial actor id = %q, want empty", actorID)
	}
}

func TestMiddleware_TabID(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(TabHeaderName, "tab-42")
	_, tabID, _ := runMiddleware(req)
	if tabID != "tab-42" {
		t.Errorf("tab id = %q, want tab-42", tabID)
	}

	req = httptest.NewRequest(http.MethodGet, "/?tab_id=tab-7", nil)
	_, tabID, _ = runMiddleware(req)
	if tabID != "tab-7" {
		t.Errorf("tab id from query = %q, want tab-7", tabID)
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(TabHeaderName, "bad tab id!!")
	_, tabID, _ = runMiddleware(req)
	if tabID != DefaultTabID {
		t.Errorf("invalid tab id sanitized to %q, want %q", tabID, DefaultTabID)
	}
}
