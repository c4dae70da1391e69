package db

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/tailscale/tailsql/server/tailsql"
	"tailscale.com/tsweb"

	"github.com/banshee-data/pigun/internal/httputil"
)

// AttachAdminRoutes mounts tailsql and JSON views of the stored state
// under /debug/.
func (db *DB) AttachAdminRoutes(mux *http.ServeMux, label string) error {
	debug := tsweb.Debugger(mux)
	tsql, err := tailsql.NewServer(tailsql.Options{
		RoutePrefix: "/debug/tailsql/",
	})
	if err != nil {
		return fmt.Errorf("failed to create tailsql server: %w", err)
	}
	tsql.SetDB(label, db.DB, &tailsql.DBOptions{
		Label: "pigun DB",
	})
	debug.Handle("tailsql/", "SQL live debugging", tsql.NewMux())

	debug.HandleFunc("calibration", "stored calibration (JSON)", func(w http.ResponseWriter, r *http.Request) {
		a, err := db.LoadAnchor()
		if errors.Is(err, ErrNoCalibration) {
			httputil.NotFound(w, err.Error())
			return
		}
		if err != nil {
			httputil.InternalServerError(w, err.Error())
			return
		}
		httputil.WriteJSONOK(w, a)
	})

	debug.HandleFunc("peers", "known hosts (JSON)", func(w http.ResponseWriter, r *http.Request) {
		peers, err := db.Peers()
		if err != nil {
			httputil.InternalServerError(w, err.Error())
			return
		}
		httputil.WriteJSONOK(w, map[string]interface{}{"peers": peers})
	})

	debug.HandleFunc("sessions", "recent sessions (JSON)", func(w http.ResponseWriter, r *http.Request) {
		sessions, err := db.Sessions(20)
		if err != nil {
			httputil.InternalServerError(w, err.Error())
			return
		}
		httputil.WriteJSONOK(w, sessions)
	})
	return nil
}
