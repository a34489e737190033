package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"postergen/internal/domain"
	"postergen/internal/infra"
	"postergen/internal/session"
)

const defaultMaxUploadBytes = 20 << 20

// Options configures the App.
type Options struct {
	MaxUploadBytes int64
	AllowedOrigins []string
	// PingInterval is the keepalive period for event streams.
	PingInterval time.Duration
	Logger       *infra.Logger
}

type App struct {
	Sessions *session.Manager
	Logger   *infra.Logger

	maxUploadBytes int64
	pingInterval   time.Duration
	upgrader       websocket.Upgrader
}

func NewApp(sessions *session.Manager, opts Options) *App {
	logger := opts.Logger
	if logger == nil {
		logger = infra.DiscardLogger()
	}
	maxUpload := opts.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = defaultMaxUploadBytes
	}
	ping := opts.PingInterval
	if ping <= 0 {
		ping = 30 * time.Second
	}
	allowed := make(map[string]struct{}, len(opts.AllowedOrigins))
	wildcard := false
	for _, origin := range opts.AllowedOrigins {
		if origin == "*" {
			wildcard = true
		}
		allowed[origin] = struct{}{}
	}
	return &App{
		Sessions:       sessions,
		Logger:         logger,
		maxUploadBytes: maxUpload,
		pingInterval:   ping,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin == "" || wildcard {
					return true
				}
				if _, ok := allowed[origin]; ok {
					return true
				}
				u, err := url.Parse(origin)
				return err == nil && strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (a *App) error(w http.ResponseWriter, status int, code, message string) {
	a.json(w, status, errorBody{Error: errorDetail{Code: code, Message: message}})
}

// session resolves the {id} route parameter, writing a 404 when it is unknown.
func (a *App) session(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	id := chi.URLParam(r, "id")
	s, err := a.Sessions.Get(id)
	if err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			a.error(w, http.StatusNotFound, "not_found", "session not found")
			return nil, false
		}
		a.error(w, http.StatusInternalServerError, "internal", "failed to load session")
		return nil, false
	}
	return s, true
}
