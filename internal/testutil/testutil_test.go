package testutil

import (
	"io"
	"net/http"
	"testing"
)

func TestAssertStatusCode(t *testing.T) {
	t.Parallel()
	AssertStatusCode(t, http.StatusOK, http.StatusOK)

	ok := t.Run("status mismatch", func(t *testing.T) {
		AssertStatusCode(t, http.StatusOK, http.StatusBadRequest)
	})
	if ok {
		t.Fatal("expected subtest to fail on mismatched status code")
	}
}

func TestLocalFormRequest(t *testing.T) {
	t.Parallel()
	req := LocalFormRequest(http.MethodPost, "/debug/x", "command=V%3F")
	if req.RemoteAddr != "127.0.0.1:12345" {
		t.Errorf("RemoteAddr = %q", req.RemoteAddr)
	}
	if err := req.ParseForm(); err != nil {
		t.Fatal(err)
	}
	if got := req.FormValue("command"); got != "V?" {
		t.Errorf("command = %q, want V?", got)
	}
}

func TestServe(t *testing.T) {
	t.Parallel()
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		_, _ = io.WriteString(w, r.RemoteAddr)
	})
	rec := Serve(h, LocalRequest(http.MethodGet, "/", nil))
	AssertStatusCode(t, rec.Code, http.StatusTeapot)
	if rec.Body.String() != "127.0.0.1:12345" {
		t.Errorf("body = %q", rec.Body.String())
	}
}
