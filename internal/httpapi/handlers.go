package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/duetlabs/duet/internal/auth"
	"github.com/duetlabs/duet/internal/hub"
	"github.com/duetlabs/duet/internal/store"
	"github.com/duetlabs/duet/pkg/types"
)

// UserStore is the slice of durable storage the handlers need.
type UserStore interface {
	CreateUser(ctx context.Context, email, username, passwordHash string) (store.User, error)
	UserByEmail(ctx context.Context, email string) (store.User, error)
	UserByID(ctx context.Context, id string) (store.User, error)
	AppendActivity(ctx context.Context, userID, zone, activity string) (store.ActivityLog, error)
	ActivitiesByUser(ctx context.Context, userID string) ([]store.ActivityLog, error)
}

// Searcher resolves a text query to playable media descriptors.
type Searcher interface {
	Search(ctx context.Context, query string) ([]types.Track, error)
}

type API struct {
	Hub    *hub.Hub
	Auth   *auth.Manager
	Store  UserStore
	Search Searcher
	Log    *zap.Logger
}

type userPayload struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	Username string `json:"username"`
}

func toUserPayload(u store.User) userPayload {
	return userPayload{ID: u.ID, Email: u.Email, Username: u.Username}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"success": false, "error": msg})
}

func (a *API) Signup(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
		Username string `json:"username"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if req.Email == "" || req.Password == "" || req.Username == "" {
		writeError(w, http.StatusBadRequest, "email, password and username are required")
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "signup failed")
		return
	}

	u, err := a.Store.CreateUser(r.Context(), req.Email, req.Username, hash)
	if errors.Is(err, store.ErrEmailTaken) {
		writeError(w, http.StatusBadRequest, "email already exists")
		return
	}
	if err != nil {
		a.Log.Error("create user", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "signup failed")
		return
	}

	token, err := a.Auth.Issue(u.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "signup failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "token": token, "user": toUserPayload(u)})
}

func (a *API) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}

	u, err := a.Store.UserByEmail(r.Context(), req.Email)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	if err := auth.CheckPassword(u.PasswordHash, req.Password); err != nil {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	token, err := a.Auth.Issue(u.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "login failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "token": token, "user": toUserPayload(u)})
}

func (a *API) Verify(w http.ResponseWriter, r *http.Request) {
	u, err := a.Store.UserByID(r.Context(), participantID(r.Context()))
	if err != nil {
		writeError(w, http.StatusUnauthorized, "user not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "user": toUserPayload(u)})
}

func (a *API) CreateSession(w http.ResponseWriter, r *http.Request) {
	reply := make(chan hub.SessionResult, 1)
	a.Hub.Inbox() <- hub.CreateSession{HostID: participantID(r.Context()), Reply: reply}
	res := <-reply
	if res.Err != nil {
		a.Log.Error("create session", zap.Error(res.Err))
		writeError(w, http.StatusInternalServerError, "failed to create session")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"success":     true,
		"session_id":  res.Session.ID,
		"invite_code": res.Session.InviteCode,
	})
}

func (a *API) JoinSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		InviteCode string `json:"invite_code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.InviteCode == "" {
		writeError(w, http.StatusBadRequest, "invite_code is required")
		return
	}

	pid := participantID(r.Context())
	username := pid
	if u, err := a.Store.UserByID(r.Context(), pid); err == nil {
		username = u.Username
	}

	reply := make(chan hub.SessionResult, 1)
	a.Hub.Inbox() <- hub.RedeemCode{
		Code:      strings.ToUpper(strings.TrimSpace(req.InviteCode)),
		GuestID:   pid,
		GuestName: username,
		Reply:     reply,
	}
	res := <-reply
	switch {
	case errors.Is(res.Err, hub.ErrNotFound):
		writeError(w, http.StatusNotFound, "invalid code")
		return
	case errors.Is(res.Err, hub.ErrAlreadyFull):
		writeError(w, http.StatusConflict, "session is full")
		return
	case res.Err != nil:
		writeError(w, http.StatusInternalServerError, "join failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "session_id": res.Session.ID})
}

func (a *API) GetSession(w http.ResponseWriter, r *http.Request) {
	reply := make(chan hub.SessionResult, 1)
	a.Hub.Inbox() <- hub.GetSession{ID: chi.URLParam(r, "id"), Reply: reply}
	res := <-reply
	if res.Err != nil {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}

	pid := participantID(r.Context())
	s := res.Session
	if pid != s.HostID && pid != s.GuestID {
		writeError(w, http.StatusForbidden, "access denied")
		return
	}

	session := map[string]any{
		"id":          s.ID,
		"invite_code": s.InviteCode,
		"active":      s.Active,
		"host":        a.participantPayload(r.Context(), s.HostID),
	}
	if s.GuestID != "" {
		session["guest"] = a.participantPayload(r.Context(), s.GuestID)
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "session": session})
}

func (a *API) participantPayload(ctx context.Context, id string) map[string]string {
	p := map[string]string{"id": id}
	if u, err := a.Store.UserByID(ctx, id); err == nil {
		p["username"] = u.Username
	}
	return p
}

func (a *API) SearchMedia(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeError(w, http.StatusBadRequest, "query required")
		return
	}
	results, err := a.Search.Search(r.Context(), q)
	if err != nil {
		a.Log.Warn("search failed", zap.String("query", q), zap.Error(err))
		writeError(w, http.StatusBadGateway, "search failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "results": results})
}

func (a *API) LogActivity(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Zone     string `json:"zone"`
		Activity string `json:"activity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Zone == "" {
		writeError(w, http.StatusBadRequest, "zone is required")
		return
	}

	entry, err := a.Store.AppendActivity(r.Context(), participantID(r.Context()), req.Zone, req.Activity)
	if err != nil {
		a.Log.Error("append activity", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to log activity")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "log": entry})
}

func (a *API) History(w http.ResponseWriter, r *http.Request) {
	logs, err := a.Store.ActivitiesByUser(r.Context(), participantID(r.Context()))
	if err != nil {
		a.Log.Error("load history", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load history")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "logs": logs})
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}
