package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/marmos91/homefs/pkg/fserr"
	"github.com/marmos91/homefs/pkg/vfs"
)

type credentialsRequest struct {
	UserID   string   `json:"user_id"`
	Password string   `json:"password"`
	QuotaMB  *float64 `json:"quota_mb,omitempty"`
}

type fileRequest struct {
	FilePath string   `json:"file_path"`
	SizeMB   *float64 `json:"size_mb,omitempty"`
	Content  *string  `json:"content,omitempty"`
}

type quotaRequest struct {
	UserID  string   `json:"user_id"`
	QuotaMB *float64 `json:"quota_mb"`
}

type fileView struct {
	Path      string    `json:"path"`
	Name      string    `json:"name"`
	SizeMB    float64   `json:"size_mb"`
	CreatedAt time.Time `json:"created_at"`
}

func viewOf(fi vfs.FileInfo) fileView {
	return fileView{Path: fi.Path, Name: fi.Name, SizeMB: fi.SizeMB(), CreatedAt: fi.CreatedAt}
}

// bearer extracts the session token from the Authorization header.
func bearer(r *http.Request) string {
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(h) > len(prefix) && strings.EqualFold(h[:len(prefix)], prefix) {
		return strings.TrimSpace(h[len(prefix):])
	}
	return ""
}

func badBody(w http.ResponseWriter, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		writeStatus(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit))
		return
	}
	writeStatus(w, http.StatusBadRequest, fmt.Sprintf("malformed request body: %v", err))
}

func (a *Adapter) handleRegister(w http.ResponseWriter, r *http.Request) {
	req, err := decode[credentialsRequest](r)
	if err != nil {
		badBody(w, err)
		return
	}

	limit, err := a.engine.Register(r.Context(), bearer(r), req.UserID, req.Password, req.QuotaMB)
	if err != nil {
		writeError(w, err)
		return
	}

	writeOK(w, fmt.Sprintf("user %s registered with a %s MB quota", req.UserID, formatMB(limit)),
		map[string]any{"user_id": req.UserID, "quota_mb": limit})
}

func (a *Adapter) handleLogin(w http.ResponseWriter, r *http.Request) {
	req, err := decode[credentialsRequest](r)
	if err != nil {
		badBody(w, err)
		return
	}

	s, err := a.engine.Login(r.Context(), req.UserID, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}

	data := map[string]any{"token": s.Token, "user_id": s.UserID}
	if !s.ExpiresAt.IsZero() {
		data["expires_at"] = s.ExpiresAt
	}
	writeOK(w, fmt.Sprintf("logged in as %s", s.UserID), data)
}

func (a *Adapter) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := a.engine.Logout(r.Context(), bearer(r)); err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, "logged out", nil)
}

func (a *Adapter) handleWhoami(w http.ResponseWriter, r *http.Request) {
	user, err := a.engine.Whoami(bearer(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, user, map[string]string{"user_id": user})
}

func (a *Adapter) handleCreate(w http.ResponseWriter, r *http.Request) {
	req, err := decode[fileRequest](r)
	if err != nil {
		badBody(w, err)
		return
	}
	if req.SizeMB == nil {
		writeError(w, fserr.New(fserr.CodeInvalidArgument, "size_mb is required", req.FilePath))
		return
	}

	fi, err := a.engine.Create(r.Context(), bearer(r), req.FilePath, *req.SizeMB)
	if err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, fmt.Sprintf("created %s (%s MB)", fi.Path, formatMB(fi.SizeMB())), viewOf(*fi))
}

// contentOp serves the three text mutations, which share a request shape.
func (a *Adapter) contentOp(verb string, op func(r *http.Request, token, path, text string) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, err := decode[fileRequest](r)
		if err != nil {
			badBody(w, err)
			return
		}
		text := ""
		if req.Content != nil {
			text = *req.Content
		}
		if err := op(r, bearer(r), req.FilePath, text); err != nil {
			writeError(w, err)
			return
		}
		writeOK(w, fmt.Sprintf("%s %s", verb, req.FilePath), nil)
	}
}

func (a *Adapter) handleRead(w http.ResponseWriter, r *http.Request) {
	req, err := decode[fileRequest](r)
	if err != nil {
		badBody(w, err)
		return
	}

	text, err := a.engine.Read(r.Context(), bearer(r), req.FilePath)
	if err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, text, map[string]string{"file_path": req.FilePath, "content": text})
}

func (a *Adapter) handleExecute(w http.ResponseWriter, r *http.Request) {
	req, err := decode[fileRequest](r)
	if err != nil {
		badBody(w, err)
		return
	}
	if err := a.engine.Execute(r.Context(), bearer(r), req.FilePath); err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, fmt.Sprintf("executed %s", req.FilePath), nil)
}

func (a *Adapter) handleDelete(w http.ResponseWriter, r *http.Request) {
	req, err := decode[fileRequest](r)
	if err != nil {
		badBody(w, err)
		return
	}
	if err := a.engine.Delete(r.Context(), bearer(r), req.FilePath); err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, fmt.Sprintf("deleted %s", req.FilePath), nil)
}

func (a *Adapter) handleList(w http.ResponseWriter, r *http.Request) {
	files, err := a.engine.List(r.Context(), bearer(r))
	if err != nil {
		writeError(w, err)
		return
	}

	views := make([]fileView, 0, len(files))
	for _, fi := range files {
		views = append(views, viewOf(fi))
	}
	writeOK(w, fmt.Sprintf("%d file(s)", len(views)), views)
}

func (a *Adapter) handleStatus(w http.ResponseWriter, r *http.Request) {
	u, err := a.engine.Status(r.Context(), bearer(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, fmt.Sprintf("%s: %s / %s MB", u.UserID, formatMB(u.UsageMB), formatMB(u.LimitMB)), u)
}

func (a *Adapter) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := a.engine.ListUsers(r.Context(), bearer(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, fmt.Sprintf("%d user(s)", len(users)), users)
}

func (a *Adapter) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("user_id")
	if err := a.engine.DeleteUser(r.Context(), bearer(r), id); err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, fmt.Sprintf("user %s deleted", id), nil)
}

func (a *Adapter) handleSetQuota(w http.ResponseWriter, r *http.Request) {
	req, err := decode[quotaRequest](r)
	if err != nil {
		badBody(w, err)
		return
	}
	if req.QuotaMB == nil {
		writeError(w, fserr.New(fserr.CodeInvalidArgument, "quota_mb is required", req.UserID))
		return
	}

	if err := a.engine.SetUserQuota(r.Context(), bearer(r), req.UserID, *req.QuotaMB); err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, fmt.Sprintf("quota of %s set to %s MB", req.UserID, formatMB(*req.QuotaMB)),
		map[string]any{"user_id": req.UserID, "quota_mb": *req.QuotaMB})
}

func formatMB(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
