package httpapi

import (
	"net/http"
	"time"
)

func NewMux(d Deps) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeData(w, map[string]any{"ok": true, "time": time.Now().Format(time.RFC3339)})
	})

	// Jobs
	jh := JobsHandler{DB: d.DB, Hub: d.Hub}
	mux.HandleFunc("/jobs", methodMux(map[string]http.HandlerFunc{
		http.MethodGet: jh.List,
	}))
	mux.HandleFunc("/jobs/", methodMux(map[string]http.HandlerFunc{
		http.MethodGet:    jh.GetByPath,
		http.MethodDelete: jh.DeleteByPath,
	}))

	// Stages
	sh := StagesHandler{DB: d.DB, Hub: d.Hub}
	mux.HandleFunc("/stages", methodMux(map[string]http.HandlerFunc{
		http.MethodGet:  sh.List,
		http.MethodPost: sh.Create,
	}))
	mux.HandleFunc("/stages/reorder", methodMux(map[string]http.HandlerFunc{
		http.MethodPut: sh.Reorder,
	}))
	mux.HandleFunc("/stages/", methodMux(map[string]http.HandlerFunc{
		http.MethodDelete: sh.DeleteByPath,
	}))

	// Users
	uh := UsersHandler{DB: d.DB}
	mux.HandleFunc("/users", methodMux(map[string]http.HandlerFunc{
		http.MethodGet:  uh.List,
		http.MethodPost: uh.Create,
	}))
	mux.HandleFunc("/users/", methodMux(map[string]http.HandlerFunc{
		http.MethodDelete: uh.DeleteByPath,
	}))

	// Tracking board
	th := TrackingHandler{DB: d.DB, Hub: d.Hub}
	mux.HandleFunc("/tracking", methodMux(map[string]http.HandlerFunc{
		http.MethodGet: th.List,
	}))
	mux.HandleFunc("/tracking/", th.Route)

	// Pipeline
	ph := PipelineHandler{Runner: d.Runner}
	mux.HandleFunc("/pipeline/status", methodMux(map[string]http.HandlerFunc{
		http.MethodGet: ph.Status,
	}))
	mux.HandleFunc("/pipeline/run", methodMux(map[string]http.HandlerFunc{
		http.MethodPost: ph.Run,
	}))

	// Config
	ch := ConfigHandler{
		CfgVal:      d.CfgVal,
		UserCfgPath: d.UserCfgPath,
		LoadCfg:     d.LoadCfg,
	}
	mux.HandleFunc("/config", methodMux(map[string]http.HandlerFunc{
		http.MethodGet: ch.Get,
		http.MethodPut: ch.Put,
	}))
	mux.HandleFunc("/config/path", methodMux(map[string]http.HandlerFunc{
		http.MethodGet: ch.Path,
	}))

	sech := SecretsHandler{CfgVal: d.CfgVal}
	mux.HandleFunc("/api/secrets/imap", methodMux(map[string]http.HandlerFunc{
		http.MethodPost: sech.SetIMAPPassword,
	}))

	// SSE events
	eh := EventsHandler{Hub: d.Hub}
	mux.HandleFunc("/events", methodMux(map[string]http.HandlerFunc{
		http.MethodGet: eh.ServeSSE,
	}))

	return mux
}
