package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/ohsori/sori/internal/adapter/driven/gateway/ws"
	"github.com/ohsori/sori/internal/core/service"
)

type Handler struct {
	Registrar *service.Registrar
	Calls     *service.CallService
	Relay     *service.Relay
	Hub       *ws.Hub
}

func NewHandler(registrar *service.Registrar, calls *service.CallService, relay *service.Relay, hub *ws.Hub) *Handler {
	return &Handler{
		Registrar: registrar,
		Calls:     calls,
		Relay:     relay,
		Hub:       hub,
	}
}

func (h *Handler) NewRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	fs := http.FileServer(http.Dir("./static"))
	r.Handle("/*", fs)

	r.Get("/ws", h.ServeWS)

	return r
}
