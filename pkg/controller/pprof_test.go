package controller_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"ticketwatch/pkg/controller"
)

func TestRegisterPprof(t *testing.T) {
	mux := http.NewServeMux()
	controller.RegisterPprof(mux)

	for _, path := range []string{"/debug/pprof/", "/debug/pprof/cmdline", "/debug/pprof/goroutine?debug=1"} {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: expected status 200, got %d", path, rec.Code)
		}
	}
}
