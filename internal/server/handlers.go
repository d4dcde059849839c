package server

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/shirou/gopsutil/v4/process"

	"github.com/threadsearch/threadsearch/internal/search"
	"github.com/threadsearch/threadsearch/internal/store"
)

func isNotFound(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// intQuery parses a query parameter, falling back to def on absent or
// non-numeric values. Negative values are clamped downstream.
func intQuery(r *http.Request, name string, def int) int {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

func (s *Server) handleSetup(w http.ResponseWriter, r *http.Request) {
	res, err := s.engine.Setup(r.Context())
	if err != nil {
		s.writeError(w, r, "setup", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleRebuild(w http.ResponseWriter, r *http.Request) {
	res, err := s.engine.Rebuild(r.Context())
	if err != nil {
		s.writeError(w, r, "rebuild", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.engine.CheckStatus(r.Context())
	if err != nil {
		s.writeError(w, r, "status", err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

type healthResponse struct {
	Status        string  `json:"status"`
	PID           int     `json:"pid"`
	Goroutines    int     `json:"goroutines"`
	RSSBytes      uint64  `json:"rss_bytes,omitempty"`
	CPUPercent    float64 `json:"cpu_percent,omitempty"`
	UptimeSeconds int64   `json:"uptime_seconds,omitempty"`
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:     "ok",
		PID:        os.Getpid(),
		Goroutines: runtime.NumGoroutine(),
	}
	// Process stats are best-effort; health does not fail on their absence.
	if p, err := process.NewProcess(int32(os.Getpid())); err == nil {
		if mi, err := p.MemoryInfo(); err == nil && mi != nil {
			resp.RSSBytes = mi.RSS
		}
		if cpu, err := p.CPUPercent(); err == nil {
			resp.CPUPercent = cpu
		}
		if created, err := p.CreateTime(); err == nil && created > 0 {
			resp.UptimeSeconds = (time.Now().UnixMilli() - created) / 1000
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	req := search.Request{
		Query:  r.URL.Query().Get("q"),
		Scope:  search.Scope(strings.TrimSpace(r.URL.Query().Get("scope"))),
		Limit:  intQuery(r, "limit", 0),
		Offset: intQuery(r, "offset", 0),
	}
	resp, err := s.engine.Search(r.Context(), req)
	if err != nil {
		s.writeError(w, r, "search", err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSeed(w http.ResponseWriter, r *http.Request) {
	ownerID := strings.TrimSpace(r.URL.Query().Get("owner_id"))
	threads, messages, err := s.store.Seed(r.Context(), ownerID)
	if err != nil {
		s.writeError(w, r, "seed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{
		"threads_seeded":  threads,
		"messages_seeded": messages,
	})
}

type createThreadRequest struct {
	Title   string `json:"title"`
	ModelID string `json:"model_id"`
	OwnerID string `json:"owner_id"`
}

func (s *Server) handleCreateThread(w http.ResponseWriter, r *http.Request) {
	var req createThreadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid JSON body"})
		return
	}
	t := store.Thread{
		ThreadID: "th_" + uuid.NewString(),
		Title:    req.Title,
		ModelID:  req.ModelID,
		OwnerID:  req.OwnerID,
	}
	if err := s.store.CreateThread(r.Context(), t); err != nil {
		s.writeError(w, r, "create thread", err)
		return
	}
	created, err := s.store.GetThread(r.Context(), t.ThreadID)
	if err != nil || created == nil {
		s.writeError(w, r, "create thread", err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleListThreads(w http.ResponseWriter, r *http.Request) {
	limit := intQuery(r, "limit", 0)
	includeDeleted := r.URL.Query().Get("include_deleted") == "true"
	threads, err := s.store.ListThreads(r.Context(), limit, includeDeleted)
	if err != nil {
		s.writeError(w, r, "list threads", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": threads, "count": len(threads)})
}

func (s *Server) handleGetThread(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	t, err := s.store.GetThread(r.Context(), id)
	if err != nil {
		s.writeError(w, r, "get thread", err)
		return
	}
	if t == nil {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "not found"})
		return
	}
	writeJSON(w, http.StatusOK, t)
}

type patchThreadRequest struct {
	Title   *string `json:"title,omitempty"`
	ModelID *string `json:"model_id,omitempty"`
}

func (s *Server) handlePatchThread(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var req patchThreadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid JSON body"})
		return
	}
	if req.Title == nil && req.ModelID == nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "nothing to update"})
		return
	}
	if req.Title != nil {
		if err := s.store.RenameThread(r.Context(), id, *req.Title); err != nil {
			s.writeError(w, r, "rename thread", err)
			return
		}
	}
	if req.ModelID != nil {
		if err := s.store.UpdateThreadModelID(r.Context(), id, *req.ModelID); err != nil {
			s.writeError(w, r, "update thread model", err)
			return
		}
	}
	t, err := s.store.GetThread(r.Context(), id)
	if err != nil || t == nil {
		s.writeError(w, r, "patch thread", err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleSoftDeleteThread(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.store.SoftDeleteThread(r.Context(), id); err != nil {
		s.writeError(w, r, "soft delete thread", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"deleted": id})
}

func (s *Server) handleRestoreThread(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.store.RestoreThread(r.Context(), id); err != nil {
		s.writeError(w, r, "restore thread", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"restored": id})
}

func (s *Server) handlePurgeThread(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.store.PurgeThread(r.Context(), id); err != nil {
		s.writeError(w, r, "purge thread", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"purged": id})
}

func (s *Server) handlePinThread(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.store.PinThread(r.Context(), id, true); err != nil {
		s.writeError(w, r, "pin thread", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"pinned": id})
}

func (s *Server) handleUnpinThread(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.store.PinThread(r.Context(), id, false); err != nil {
		s.writeError(w, r, "unpin thread", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"unpinned": id})
}

type appendMessageRequest struct {
	Role              string `json:"role"`
	OwnerID           string `json:"owner_id"`
	Content           string `json:"content"`
	PromptTokens      int64  `json:"prompt_tokens"`
	CompletionTokens  int64  `json:"completion_tokens"`
	TotalTokens       int64  `json:"total_tokens"`
	ProviderMessageID string `json:"provider_message_id"`
}

func (s *Server) handleAppendMessage(w http.ResponseWriter, r *http.Request) {
	threadID := mux.Vars(r)["id"]
	var req appendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid JSON body"})
		return
	}
	m := store.Message{
		MessageID:         "msg_" + uuid.NewString(),
		ThreadID:          threadID,
		Role:              req.Role,
		OwnerID:           req.OwnerID,
		Content:           req.Content,
		PromptTokens:      req.PromptTokens,
		CompletionTokens:  req.CompletionTokens,
		TotalTokens:       req.TotalTokens,
		ProviderMessageID: req.ProviderMessageID,
	}
	if err := s.store.AppendMessage(r.Context(), m); err != nil {
		s.writeError(w, r, "append message", err)
		return
	}
	created, err := s.store.GetMessage(r.Context(), m.MessageID)
	if err != nil || created == nil {
		s.writeError(w, r, "append message", err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	threadID := mux.Vars(r)["id"]
	limit := intQuery(r, "limit", 0)
	messages, err := s.store.ListMessages(r.Context(), threadID, limit)
	if err != nil {
		s.writeError(w, r, "list messages", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": messages, "count": len(messages)})
}

type patchMessageRequest struct {
	Content *string `json:"content,omitempty"`
}

func (s *Server) handlePatchMessage(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var req patchMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid JSON body"})
		return
	}
	if req.Content == nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "nothing to update"})
		return
	}
	if err := s.store.UpdateMessageContent(r.Context(), id, *req.Content); err != nil {
		s.writeError(w, r, "update message", err)
		return
	}
	m, err := s.store.GetMessage(r.Context(), id)
	if err != nil || m == nil {
		s.writeError(w, r, "update message", err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

type feedbackRequest struct {
	Feedback string `json:"feedback"`
}

func (s *Server) handleMessageFeedback(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var req feedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid JSON body"})
		return
	}
	if err := s.store.SetMessageFeedback(r.Context(), id, req.Feedback); err != nil {
		s.writeError(w, r, "message feedback", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message_id": id, "feedback": req.Feedback})
}

func (s *Server) handleDeleteMessage(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.store.DeleteMessage(r.Context(), id); err != nil {
		s.writeError(w, r, "delete message", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"deleted": id})
}
