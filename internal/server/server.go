package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/threadsearch/threadsearch/internal/search"
	"github.com/threadsearch/threadsearch/internal/store"
)

// Server is the thin HTTP collaborator in front of the store and the search
// core: routing, CORS, parameter parsing, and error mapping live here and
// nowhere else.
type Server struct {
	log *slog.Logger

	store  *store.Store
	engine *search.Engine

	listenAddr     string
	allowedOrigins []string

	srv *http.Server
}

type Options struct {
	Logger *slog.Logger

	Store  *store.Store
	Engine *search.Engine

	ListenAddr string
	// AllowedOrigins lists CORS origins; "*" allows any.
	AllowedOrigins []string
}

func New(opts Options) (*Server, error) {
	if opts.Store == nil {
		return nil, errors.New("missing Store")
	}
	if opts.Engine == nil {
		return nil, errors.New("missing Engine")
	}
	if strings.TrimSpace(opts.ListenAddr) == "" {
		return nil, errors.New("missing ListenAddr")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Server{
		log:            logger,
		store:          opts.Store,
		engine:         opts.Engine,
		listenAddr:     strings.TrimSpace(opts.ListenAddr),
		allowedOrigins: opts.AllowedOrigins,
	}, nil
}

// Handler builds the full route table. Exposed for tests.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	api := r.PathPrefix("/api").Subrouter()

	api.HandleFunc("/setup", s.handleSetup).Methods(http.MethodPost)
	api.HandleFunc("/rebuild", s.handleRebuild).Methods(http.MethodPost)
	api.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	api.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)
	api.HandleFunc("/search", s.handleSearch).Methods(http.MethodGet)
	api.HandleFunc("/seed", s.handleSeed).Methods(http.MethodPost)

	api.HandleFunc("/threads", s.handleCreateThread).Methods(http.MethodPost)
	api.HandleFunc("/threads", s.handleListThreads).Methods(http.MethodGet)
	api.HandleFunc("/threads/{id}", s.handleGetThread).Methods(http.MethodGet)
	api.HandleFunc("/threads/{id}", s.handlePatchThread).Methods(http.MethodPatch)
	api.HandleFunc("/threads/{id}", s.handleSoftDeleteThread).Methods(http.MethodDelete)
	api.HandleFunc("/threads/{id}/restore", s.handleRestoreThread).Methods(http.MethodPost)
	api.HandleFunc("/threads/{id}/purge", s.handlePurgeThread).Methods(http.MethodDelete)
	api.HandleFunc("/threads/{id}/pin", s.handlePinThread).Methods(http.MethodPost)
	api.HandleFunc("/threads/{id}/pin", s.handleUnpinThread).Methods(http.MethodDelete)

	api.HandleFunc("/threads/{id}/messages", s.handleAppendMessage).Methods(http.MethodPost)
	api.HandleFunc("/threads/{id}/messages", s.handleListMessages).Methods(http.MethodGet)
	api.HandleFunc("/messages/{id}", s.handlePatchMessage).Methods(http.MethodPatch)
	api.HandleFunc("/messages/{id}", s.handleDeleteMessage).Methods(http.MethodDelete)
	api.HandleFunc("/messages/{id}/feedback", s.handleMessageFeedback).Methods(http.MethodPost)

	return s.withCORS(r)
}

func (s *Server) Start() error {
	if s.srv != nil {
		return nil
	}
	s.srv = &http.Server{
		Addr:              s.listenAddr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.log.Info("http server listening", "addr", s.listenAddr)
	err := s.srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s == nil || s.srv == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	return s.srv.Shutdown(ctx)
}
