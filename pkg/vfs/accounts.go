package vfs

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/marmos91/homefs/internal/logger"
	"github.com/marmos91/homefs/pkg/fserr"
	"github.com/marmos91/homefs/pkg/quota"
	"github.com/marmos91/homefs/pkg/session"
)

// Register creates a new account and its home directory.
//
// Anonymous callers (empty or unknown token) self-register with the default
// quota and limitMB is ignored. The admin may register users with an explicit
// limit. Any other authenticated caller gets AlreadyAuthenticated.
//
// Returns the assigned limit in MB.
func (e *Engine) Register(ctx context.Context, token, id, password string, limitMB *float64) (assigned float64, err error) {
	defer func(start time.Time) { e.observe("register", start, err) }(time.Now())

	actor := ""
	if s, err := e.sessions.Resolve(token); err == nil {
		actor = s.UserID
	}
	switch {
	case actor == "":
		limitMB = nil
	case !quota.IsAdmin(actor):
		return 0, fserr.New(fserr.CodeAlreadyAuthenticated, "log out before registering a new account", actor)
	}

	unlock := e.lockUser(id)
	defer unlock()

	assigned, err = e.quota.CreateAccount(ctx, id, password, limitMB)
	if err != nil {
		return 0, err
	}

	if err := e.content.EnsureHome(ctx, id); err != nil {
		if delErr := e.quota.DeleteAccount(context.WithoutCancel(ctx), id); delErr != nil {
			logger.Error("Failed to remove account %s after home creation failure: %v", id, delErr)
		}
		return 0, fserr.Wrap(fserr.CodePhysicalIO, err, "cannot create home directory", HomeOf(id))
	}

	// A leftover home from an earlier account with the same id keeps its files
	if _, _, err := e.syncHomeLocked(ctx, id); err != nil {
		logger.Warn("Cannot index existing home of %s: %v", id, err)
	}

	if actor == "" {
		actor = id
	}
	e.publishQuota(ctx, id)
	e.audit(ctx, actor, "register", fmt.Sprintf("%s (%s MB)", id, strconv.FormatFloat(assigned, 'f', -1, 64)))
	logger.Info("Registered %s with %.2f MB quota", id, assigned)
	return assigned, nil
}

// Login verifies credentials and opens a session.
func (e *Engine) Login(ctx context.Context, id, password string) (s *session.Session, err error) {
	defer func(start time.Time) { e.observe("login", start, err) }(time.Now())

	ok, err := e.quota.VerifyCredentials(ctx, id, password)
	if err != nil {
		return nil, err
	}
	if !ok {
		e.audit(ctx, id, "login_failed", "")
		return nil, fserr.New(fserr.CodeInvalidCredentials, "invalid credentials", id)
	}

	s, err = e.sessions.Login(id)
	if errors.Is(err, session.ErrSeatTaken) {
		return nil, fserr.New(fserr.CodeAlreadyAuthenticated, "another session is active", id)
	}
	if err != nil {
		return nil, err
	}

	e.metrics.SetActiveSessions(e.sessions.Count())
	e.audit(ctx, id, "login", "")
	return s, nil
}

// Logout ends the session bound to token.
func (e *Engine) Logout(ctx context.Context, token string) (err error) {
	defer func(start time.Time) { e.observe("logout", start, err) }(time.Now())

	user, err := e.caller(token)
	if err != nil {
		return err
	}
	if err := e.sessions.Revoke(token); err != nil {
		return fserr.ErrNotAuthenticated
	}

	e.metrics.SetActiveSessions(e.sessions.Count())
	e.audit(ctx, user, "logout", "")
	return nil
}

// Whoami returns the user bound to token.
func (e *Engine) Whoami(token string) (string, error) {
	return e.caller(token)
}

// DeleteUser removes a user, their files and their sessions. Admin only.
//
// Physical home removal is best effort: a failure is logged and the account is
// deleted anyway, leaving the orphaned home for the next Sync to prune.
func (e *Engine) DeleteUser(ctx context.Context, token, id string) (err error) {
	defer func(start time.Time) { e.observe("delete_user", start, err) }(time.Now())

	if err := e.adminCaller(token); err != nil {
		return err
	}
	if quota.IsAdmin(id) {
		return fserr.New(fserr.CodeAdminForbidden, "the admin account cannot be deleted", id)
	}

	unlock := e.lockUser(id)
	defer unlock()

	exists, err := e.quota.Exists(ctx, id)
	if err != nil {
		return err
	}
	if !exists {
		return fserr.New(fserr.CodeUnknownUser, "unknown user", id)
	}

	if err := e.content.RemoveHome(ctx, id); err != nil {
		logger.Warn("Failed to remove home of %s: %v", id, err)
	}
	if err := e.quota.DeleteAccount(ctx, id); err != nil {
		return err
	}

	files := e.purge(id)
	revoked := e.sessions.RevokeUser(id)

	e.metrics.DeleteQuota(id)
	e.metrics.SetActiveSessions(e.sessions.Count())
	e.audit(ctx, quota.AdminID, "delete_user", id)
	logger.Info("Deleted user %s (%d files, %d sessions)", id, files, revoked)
	return nil
}

// SetUserQuota changes the limit of a user. Admin only.
func (e *Engine) SetUserQuota(ctx context.Context, token, id string, limitMB float64) (err error) {
	defer func(start time.Time) { e.observe("set_quota", start, err) }(time.Now())

	if err := e.adminCaller(token); err != nil {
		return err
	}
	if quota.IsAdmin(id) {
		return fserr.New(fserr.CodeAdminForbidden, "the admin quota cannot be changed", id)
	}

	if err := e.quota.SetLimit(ctx, id, limitMB); err != nil {
		return err
	}

	e.publishQuota(ctx, id)
	e.audit(ctx, quota.AdminID, "set_quota", fmt.Sprintf("%s %s MB", id, strconv.FormatFloat(limitMB, 'f', -1, 64)))
	return nil
}

// ListUsers returns usage and limit of every account, admin included. Admin only.
func (e *Engine) ListUsers(ctx context.Context, token string) (users []quota.Usage, err error) {
	defer func(start time.Time) { e.observe("list_users", start, err) }(time.Now())

	if err := e.adminCaller(token); err != nil {
		return nil, err
	}
	return e.quota.ListAccounts(ctx)
}
