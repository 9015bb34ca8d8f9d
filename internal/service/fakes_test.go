package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/sandeepkv93/device-auth-service/internal/domain"
	"github.com/sandeepkv93/device-auth-service/internal/repository"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type inMemorySessionRepo struct {
	mu         sync.Mutex
	nextID     uint
	byHash     map[string]*domain.RefreshSession
	byID       map[uint]*domain.RefreshSession
	findCalls  int
	failWrites error
}

func newInMemorySessionRepo() *inMemorySessionRepo {
	return &inMemorySessionRepo{
		nextID: 1,
		byHash: map[string]*domain.RefreshSession{},
		byID:   map[uint]*domain.RefreshSession{},
	}
}

func (r *inMemorySessionRepo) Create(_ context.Context, s *domain.RefreshSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failWrites != nil {
		return r.failWrites
	}
	return r.insertLocked(s)
}

func (r *inMemorySessionRepo) insertLocked(s *domain.RefreshSession) error {
	if _, ok := r.byHash[s.TokenHash]; ok {
		return repository.ErrDuplicate
	}
	s.ID = r.nextID
	r.nextID++
	cp := *s
	r.byHash[cp.TokenHash] = &cp
	r.byID[cp.ID] = &cp
	return nil
}

func (r *inMemorySessionRepo) FindByHash(_ context.Context, hash string) (*domain.RefreshSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.findCalls++
	s, ok := r.byHash[hash]
	if !ok {
		return nil, repository.ErrSessionNotFound
	}
	cp := *s
	return &cp, nil
}

func (r *inMemorySessionRepo) ListActiveByUserID(_ context.Context, userID uint, now time.Time) ([]domain.RefreshSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.RefreshSession
	for _, s := range r.byID {
		if s.UserID == userID && s.Usable(now) {
			out = append(out, *s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (r *inMemorySessionRepo) ListByUserID(_ context.Context, userID uint, page repository.PageRequest) (repository.PageResult[domain.RefreshSession], error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var all []domain.RefreshSession
	for _, s := range r.byID {
		if s.UserID == userID {
			all = append(all, *s)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID > all[j].ID })
	return repository.PageResult[domain.RefreshSession]{Items: all, Page: 1, PageSize: len(all), Total: int64(len(all)), TotalPages: 1}, nil
}

func (r *inMemorySessionRepo) Revoke(_ context.Context, sessionID uint, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failWrites != nil {
		return false, r.failWrites
	}
	s, ok := r.byID[sessionID]
	if !ok || s.RevokedAt != nil {
		return false, nil
	}
	s.RevokedAt = &at
	return true, nil
}

func (r *inMemorySessionRepo) MarkReplaced(_ context.Context, sessionID uint, newHash string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.markReplacedLocked(sessionID, newHash, at)
}

func (r *inMemorySessionRepo) markReplacedLocked(sessionID uint, newHash string, at time.Time) error {
	s, ok := r.byID[sessionID]
	if !ok || !s.Usable(at) {
		return repository.ErrSessionNotActive
	}
	s.RevokedAt = &at
	s.ReplacedByHash = &newHash
	return nil
}

func (r *inMemorySessionRepo) RotateSession(_ context.Context, oldSessionID uint, next *domain.RefreshSession, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failWrites != nil {
		return r.failWrites
	}
	old, ok := r.byID[oldSessionID]
	if !ok || !old.Usable(at) {
		return repository.ErrSessionNotActive
	}
	if _, taken := r.byHash[next.TokenHash]; taken {
		return repository.ErrDuplicate
	}
	if err := r.markReplacedLocked(oldSessionID, next.TokenHash, at); err != nil {
		return err
	}
	return r.insertLocked(next)
}

func (r *inMemorySessionRepo) RevokeAllForUser(_ context.Context, userID uint, at time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failWrites != nil {
		return 0, r.failWrites
	}
	var n int64
	for _, s := range r.byID {
		if s.UserID == userID && s.RevokedAt == nil {
			s.RevokedAt = &at
			n++
		}
	}
	return n, nil
}

func (r *inMemorySessionRepo) RevokeChain(_ context.Context, fromHash string, at time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for hash := fromHash; hash != ""; {
		s, ok := r.byHash[hash]
		if !ok {
			break
		}
		if s.RevokedAt == nil {
			s.RevokedAt = &at
			n++
		}
		if s.ReplacedByHash == nil {
			break
		}
		hash = *s.ReplacedByHash
	}
	return n, nil
}

func (r *inMemorySessionRepo) get(hash string) *domain.RefreshSession {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.byHash[hash]
	if !ok {
		return nil
	}
	cp := *s
	return &cp
}

func (r *inMemorySessionRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byID)
}

func (r *inMemorySessionRepo) finds() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.findCalls
}

type inMemoryUserRepo struct {
	mu     sync.Mutex
	nextID uint
	users  map[uint]*domain.User
}

func newInMemoryUserRepo() *inMemoryUserRepo {
	return &inMemoryUserRepo{nextID: 1, users: map[uint]*domain.User{}}
}

func (r *inMemoryUserRepo) Create(_ context.Context, u *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.users {
		if existing.Username == u.Username || existing.Email == u.Email {
			return repository.ErrDuplicate
		}
	}
	u.ID = r.nextID
	r.nextID++
	cp := *u
	r.users[cp.ID] = &cp
	return nil
}

func (r *inMemoryUserRepo) FindByID(_ context.Context, id uint) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (r *inMemoryUserRepo) FindByLogin(_ context.Context, login string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var byEmail *domain.User
	for _, u := range r.users {
		if u.Username == login {
			cp := *u
			return &cp, nil
		}
		if u.Email == login {
			cp := *u
			byEmail = &cp
		}
	}
	if byEmail == nil {
		return nil, repository.ErrUserNotFound
	}
	return byEmail, nil
}

func (r *inMemoryUserRepo) ExistsByUsername(_ context.Context, username string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Username == username {
			return true, nil
		}
	}
	return false, nil
}

func (r *inMemoryUserRepo) ExistsByEmail(_ context.Context, email string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == email {
			return true, nil
		}
	}
	return false, nil
}

func (r *inMemoryUserRepo) delete(id uint) {
	r.mu.Lock()
	delete(r.users, id)
	r.mu.Unlock()
}

func (r *inMemoryUserRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.users)
}

type recordingReuseHandler struct {
	mu    sync.Mutex
	calls []uint
}

func (h *recordingReuseHandler) OnReuse(_ context.Context, s *domain.RefreshSession, _ time.Time) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls = append(h.calls, s.ID)
	return nil
}

func (h *recordingReuseHandler) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.calls)
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("entropy unavailable") }
