// Package control serves a read-only HTTP view of the cache plus runtime tuning.
package control

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/VictoriaMetrics/metrics"

	"github.com/small-frappuccino/discordstate/pkg/discord/cache"
	"github.com/small-frappuccino/discordstate/pkg/discord/gateway"
	"github.com/small-frappuccino/discordstate/pkg/discord/model"
	"github.com/small-frappuccino/discordstate/pkg/log"
	"github.com/small-frappuccino/discordstate/pkg/service"
	"github.com/small-frappuccino/discordstate/pkg/storage"
	"github.com/small-frappuccino/discordstate/pkg/task"
)

const (
	defaultMaxBodyBytes = 64 * 1024
	defaultArchiveLimit = 100
)

// Archive is the subset of the message archive the server reads.
type Archive interface {
	ListChannelMessages(channelID string, limit int) ([]*storage.MessageRecord, error)
	CountMessages() (int64, error)
}

// Deps are the optional collaborators whose state the server also reports.
type Deps struct {
	Dispatcher *gateway.Dispatcher
	Router     *task.TaskRouter
	Archive    Archive
	Services   *service.Manager
}

// Server exposes the cache of a running instance over HTTP.
type Server struct {
	addr       string
	cache      *cache.Cache
	deps       Deps
	handler    http.Handler
	httpServer *http.Server
	listener   net.Listener
}

// NewServer returns nil if addr is empty or c is nil.
func NewServer(addr string, c *cache.Cache, deps Deps) *Server {
	addr = strings.TrimSpace(addr)
	if addr == "" || c == nil {
		return nil
	}

	mux := http.NewServeMux()
	s := &Server{addr: addr, cache: c, deps: deps, handler: mux}
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	mux.HandleFunc("GET /v1/stats", s.handleStats)
	mux.HandleFunc("GET /v1/shards", s.handleShards)
	mux.HandleFunc("GET /v1/guilds", s.handleGuilds)
	mux.HandleFunc("GET /v1/guilds/{id}", s.handleGuild)
	mux.HandleFunc("GET /v1/guilds/{id}/members/{user}", s.handleMember)
	mux.HandleFunc("GET /v1/channels/{id}", s.handleChannel)
	mux.HandleFunc("GET /v1/channels/{id}/messages", s.handleMessages)
	mux.HandleFunc("GET /v1/users/{id}", s.handleUser)
	mux.HandleFunc("GET /v1/services", s.handleServices)
	mux.HandleFunc("POST /v1/runtime", s.handleRuntime)
	mux.HandleFunc("GET /metrics", s.handleMetrics)

	return s
}

// Handler returns the server's routes, for mounting or testing.
func (s *Server) Handler() http.Handler { return s.handler }

// Start opens the control server listening socket.
func (s *Server) Start() error {
	if s == nil {
		return nil
	}

	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("bind control server: %w", err)
	}
	s.listener = ln

	log.ApplicationLogger().Info("Control server listening", "addr", ln.Addr().String())

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.ApplicationLogger().Error("Control server stopped unexpectedly", "err", err)
		}
	}()

	return nil
}

// Addr returns the bound address once started, or the configured one.
func (s *Server) Addr() string {
	if s == nil {
		return ""
	}
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// Stop shuts down the control server.
func (s *Server) Stop(ctx context.Context) error {
	if s == nil || s.httpServer == nil {
		return nil
	}

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("shutdown control server: %w", err)
	}

	log.ApplicationLogger().Info("Control server stopped", "addr", s.addr)
	return nil
}

type statsResponse struct {
	Cache           cache.Stats              `json:"cache"`
	Gateway         *gateway.DispatcherStats `json:"gateway,omitempty"`
	Router          *task.Stats              `json:"router,omitempty"`
	ArchivedMessage *int64                   `json:"archived_messages,omitempty"`
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	resp := statsResponse{Cache: s.cache.Stats()}
	if s.deps.Dispatcher != nil {
		st := s.deps.Dispatcher.Stats()
		resp.Gateway = &st
	}
	if s.deps.Router != nil {
		st := s.deps.Router.Stats()
		resp.Router = &st
	}
	if s.deps.Archive != nil {
		if n, err := s.deps.Archive.CountMessages(); err == nil {
			resp.ArchivedMessage = &n
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleShards(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.cache.ShardData())
}

func (s *Server) handleGuilds(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"guilds":      s.cache.GuildIDs(),
		"unavailable": s.cache.UnavailableGuildIDs(),
	})
}

func (s *Server) handleGuild(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	g, ok := s.cache.Guild(id)
	if !ok {
		status := http.StatusNotFound
		if s.cache.IsUnavailable(id) {
			status = http.StatusServiceUnavailable
		}
		http.Error(w, "guild not cached", status)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

func (s *Server) handleMember(w http.ResponseWriter, r *http.Request) {
	m, ok := s.cache.Member(r.PathValue("id"), r.PathValue("user"))
	if !ok {
		http.Error(w, "member not cached", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (s *Server) handleChannel(w http.ResponseWriter, r *http.Request) {
	ch, ok := s.cache.Channel(r.PathValue("id"))
	if !ok {
		http.Error(w, "channel not cached", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, ch)
}

type messagesResponse struct {
	Cached   []*model.Message         `json:"cached"`
	Archived []*storage.MessageRecord `json:"archived,omitempty"`
}

// handleMessages returns the cached window of a channel. With archived=true it also
// returns messages that already left the window.
func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	resp := messagesResponse{Cached: s.cache.Messages(id)}
	if resp.Cached == nil {
		resp.Cached = []*model.Message{}
	}

	if archived, _ := strconv.ParseBool(r.URL.Query().Get("archived")); archived {
		if s.deps.Archive == nil {
			http.Error(w, "archive disabled", http.StatusNotImplemented)
			return
		}
		limit := defaultArchiveLimit
		if raw := r.URL.Query().Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 0 {
				http.Error(w, "invalid limit", http.StatusBadRequest)
				return
			}
			limit = n
		}
		recs, err := s.deps.Archive.ListChannelMessages(id, limit)
		if err != nil {
			log.DatabaseLogger().Error("Archive read failed", "channel_id", id, "err", err)
			http.Error(w, "archive read failed", http.StatusInternalServerError)
			return
		}
		resp.Archived = recs
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleUser(w http.ResponseWriter, r *http.Request) {
	u, ok := s.cache.User(r.PathValue("id"))
	if !ok {
		http.Error(w, "user not cached", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (s *Server) handleServices(w http.ResponseWriter, r *http.Request) {
	if s.deps.Services == nil {
		writeJSON(w, http.StatusOK, []service.Info{})
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Services.Services())
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	s.cache.WritePrometheus(w)
	if s.deps.Dispatcher != nil {
		s.deps.Dispatcher.WritePrometheus(w)
	}
	metrics.WriteProcessMetrics(w)
}

// runtimeSettings is the mutable configuration of a running instance.
type runtimeSettings struct {
	MaxMessages int    `json:"max_messages"`
	LogLevel    string `json:"log_level,omitempty"`
}

type setterFunc func(*Server, *runtimeSettings, json.RawMessage) error

var runtimeFieldSetters = map[string]setterFunc{
	"max_messages": func(s *Server, rs *runtimeSettings, raw json.RawMessage) error {
		v, err := decodeInt(raw)
		if err != nil {
			return err
		}
		if v < 0 {
			return fmt.Errorf("must not be negative")
		}
		rs.MaxMessages = v
		return nil
	},
	"log_level": func(s *Server, rs *runtimeSettings, raw json.RawMessage) error {
		v, err := decodeString(raw)
		if err != nil {
			return err
		}
		var lvl slog.Level
		if err := lvl.UnmarshalText([]byte(v)); err != nil {
			return err
		}
		rs.LogLevel = lvl.String()
		return nil
	},
}

// handleRuntime applies a JSON patch of runtime settings. Either every field applies or none.
func (s *Server) handleRuntime(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, defaultMaxBodyBytes)
	defer r.Body.Close()

	var patch map[string]json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		http.Error(w, fmt.Sprintf("invalid payload: %v", err), http.StatusBadRequest)
		return
	}
	if len(patch) == 0 {
		http.Error(w, "payload must contain at least one field", http.StatusBadRequest)
		return
	}

	next := runtimeSettings{MaxMessages: s.cache.MaxMessages()}
	for name, raw := range patch {
		setter, ok := runtimeFieldSetters[name]
		if !ok {
			http.Error(w, fmt.Sprintf("unknown field %q", name), http.StatusBadRequest)
			return
		}
		if err := setter(s, &next, raw); err != nil {
			http.Error(w, fmt.Sprintf("field %s: %v", name, err), http.StatusBadRequest)
			return
		}
	}

	s.cache.SetMaxMessages(next.MaxMessages)
	if next.LogLevel != "" {
		var lvl slog.Level
		_ = lvl.UnmarshalText([]byte(next.LogLevel))
		log.SetLevel(lvl)
	}
	log.ApplicationLogger().Info("Runtime settings updated", "max_messages", next.MaxMessages, "log_level", next.LogLevel)

	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"runtime": next,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.ApplicationLogger().Error("Failed to encode control response", "err", err)
	}
}

func decodeString(raw json.RawMessage) (string, error) {
	if len(raw) == 0 {
		return "", fmt.Errorf("empty string value")
	}
	if bytes.Equal(raw, []byte("null")) {
		return "", nil
	}
	var v string
	if err := json.Unmarshal(raw, &v); err != nil {
		return "", err
	}
	return v, nil
}

func decodeInt(raw json.RawMessage) (int, error) {
	if len(raw) == 0 {
		return 0, fmt.Errorf("empty int value")
	}
	if bytes.Equal(raw, []byte("null")) {
		return 0, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return 0, err
	}
	i, err := n.Int64()
	if err != nil {
		return 0, fmt.Errorf("not an integer: %s", n)
	}
	return int(i), nil
}
