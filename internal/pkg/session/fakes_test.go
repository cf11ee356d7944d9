package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"ses-portal/internal/domain/auth"
	xerrors "ses-portal/internal/pkg/errors"
)

type memUsers struct {
	mu    sync.Mutex
	users map[int64]*auth.User
	err   error
}

func (u *memUsers) FindUser(_ context.Context, id int64) (*auth.User, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.err != nil {
		return nil, u.err
	}
	usr, ok := u.users[id]
	if !ok {
		return nil, xerrors.ErrNotFound
	}
	cp := *usr
	return &cp, nil
}

type memRegistry struct {
	mu       sync.Mutex
	rows     map[string]*auth.SessionRecord
	writeErr error
	readErr  error
}

func newMemRegistry() *memRegistry {
	return &memRegistry{rows: map[string]*auth.SessionRecord{}}
}

func (r *memRegistry) Upsert(_ context.Context, rec *auth.SessionRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.writeErr != nil {
		return r.writeErr
	}
	cp := *rec
	if old, ok := r.rows[rec.SessionID]; ok {
		cp.Active = old.Active
	}
	r.rows[rec.SessionID] = &cp
	return nil
}

func (r *memRegistry) Find(_ context.Context, sid string) (*auth.SessionRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.readErr != nil {
		return nil, r.readErr
	}
	rec, ok := r.rows[sid]
	if !ok {
		return nil, xerrors.ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (r *memRegistry) Rekey(_ context.Context, oldID, newID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.writeErr != nil {
		return false, r.writeErr
	}
	rec, ok := r.rows[oldID]
	if !ok || !rec.Active {
		return false, nil
	}
	delete(r.rows, oldID)
	rec.SessionID = newID
	r.rows[newID] = rec
	return true, nil
}

func (r *memRegistry) Touch(_ context.Context, sid string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.writeErr != nil {
		return r.writeErr
	}
	if rec, ok := r.rows[sid]; ok && rec.Active {
		rec.LastActivityAt = at
	}
	return nil
}

func (r *memRegistry) SetRole(_ context.Context, sid string, roleID auth.RoleID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.writeErr != nil {
		return r.writeErr
	}
	if rec, ok := r.rows[sid]; ok && rec.Active {
		rec.ActiveRoleID = &roleID
	}
	return nil
}

func (r *memRegistry) Deactivate(_ context.Context, sid string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.writeErr != nil {
		return r.writeErr
	}
	if rec, ok := r.rows[sid]; ok {
		rec.Active = false
	}
	return nil
}

func (r *memRegistry) DeactivateAllForUser(_ context.Context, uid int64) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.writeErr != nil {
		return 0, r.writeErr
	}
	var n int64
	for _, rec := range r.rows {
		if rec.UserID == uid && rec.Active {
			rec.Active = false
			n++
		}
	}
	return n, nil
}

func (r *memRegistry) DeleteStale(_ context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, rec := range r.rows {
		if !rec.Active || rec.ExpiresAt.Before(now) {
			delete(r.rows, id)
			n++
		}
	}
	return n, nil
}

func (r *memRegistry) row(sid string) *auth.SessionRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec, ok := r.rows[sid]; ok {
		cp := *rec
		return &cp
	}
	return nil
}

func (r *memRegistry) activeFor(uid int64) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, rec := range r.rows {
		if rec.UserID == uid && rec.Active {
			n++
		}
	}
	return n
}

type memGrants struct {
	grants []auth.RoleGrant
}

func (g *memGrants) RoleGrants(_ context.Context, uid int64) ([]auth.RoleGrant, error) {
	var out []auth.RoleGrant
	for _, gr := range g.grants {
		if gr.UserID == uid && gr.Active {
			out = append(out, gr)
		}
	}
	return out, nil
}

func (g *memGrants) RoleGrant(_ context.Context, uid int64, roleID auth.RoleID) (*auth.RoleGrant, error) {
	for _, gr := range g.grants {
		if gr.UserID == uid && gr.RoleID == roleID {
			cp := gr
			return &cp, nil
		}
	}
	return nil, xerrors.ErrNotFound
}

type memAudit struct {
	mu     sync.Mutex
	events []auth.AuditEvent
	err    error
}

func (a *memAudit) Record(_ context.Context, ev *auth.AuditEvent) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return a.err
	}
	a.events = append(a.events, *ev)
	return nil
}

func (a *memAudit) actions() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, 0, len(a.events))
	for _, ev := range a.events {
		out = append(out, ev.Action)
	}
	return out
}

type recordingNotifier struct {
	mu     sync.Mutex
	forced []int64
	ended  []string
}

func (n *recordingNotifier) ForceLogout(uid int64, _ string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.forced = append(n.forced, uid)
}

func (n *recordingNotifier) SessionEnded(_ int64, _ string, reason string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.ended = append(n.ended, reason)
}

var errStoreDown = errors.New("store unavailable")
