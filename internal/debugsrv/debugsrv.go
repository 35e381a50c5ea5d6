//go:build !tinygo

// Package debugsrv serves the host emulator's state over HTTP.
package debugsrv

import (
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/png"
	"net/http"
	"strconv"
	"time"

	"hourmeter/internal/metrics"

	"github.com/gorilla/mux"
)

// Board is the emulated hardware the endpoints read and drive.
type Board interface {
	PressButton(i int, pressed bool) error
	SetSignal(active bool) error
	Snapshot() *image.RGBA
}

// Router returns the debug routes:
//
//	GET  /metrics
//	GET  /state
//	GET  /display.png
//	POST /buttons/{n}/{down|up}
//	POST /signal/{on|off}
//
// state is marshalled as JSON for /state.
func Router(b Board, state func() any) *mux.Router {
	h := &handler{board: b, state: state}
	r := mux.NewRouter()
	r.Handle("/metrics", metrics.Handler()).Methods("GET")
	r.HandleFunc("/state", h.getState).Methods("GET")
	r.HandleFunc("/display.png", h.getDisplay).Methods("GET")
	r.HandleFunc("/buttons/{n:[12]}/{action:down|up}", h.postButton).Methods("POST")
	r.HandleFunc("/signal/{action:on|off}", h.postSignal).Methods("POST")
	return r
}

type handler struct {
	board Board
	state func() any
}

func (h *handler) getState(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(h.state()); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (h *handler) getDisplay(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "image/png")
	if err := png.Encode(w, h.board.Snapshot()); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (h *handler) postButton(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	n, _ := strconv.Atoi(vars["n"])
	if err := h.board.PressButton(n-1, vars["action"] == "down"); err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) postSignal(w http.ResponseWriter, r *http.Request) {
	if err := h.board.SetSignal(mux.Vars(r)["action"] == "on"); err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Serve runs the router on addr until ctx is done.
func Serve(ctx context.Context, addr string, r http.Handler) error {
	srv := &http.Server{Addr: addr, Handler: r, ReadHeaderTimeout: 5 * time.Second}
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		sctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil {
			return err
		}
		if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return ctx.Err()
	}
}
