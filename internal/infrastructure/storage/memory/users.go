package memory

import (
	"context"
	"sort"
	"strings"

	"retailstock/internal/core/apperror"
	"retailstock/internal/core/id"
	"retailstock/internal/domain/auth"
)

var _ auth.UserRepository = (*UserRepo)(nil)

// Users returns the user repository.
func (s *Store) Users() *UserRepo { return &UserRepo{s: s} }

// UserRepo implements auth.UserRepository.
type UserRepo struct{ s *Store }

func (r *UserRepo) Create(ctx context.Context, u *auth.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.byEmail(u.Email) != nil {
		return apperror.NewDuplicate("user", "email", u.Email)
	}
	r.s.users[u.ID] = *u
	userID := u.ID
	r.s.onRollback(ctx, func() { delete(r.s.users, userID) })
	return nil
}

func (r *UserRepo) GetByID(_ context.Context, userID id.ID) (*auth.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[userID]
	if !ok {
		return nil, apperror.NewNotFound("user", userID.String())
	}
	return &u, nil
}

func (r *UserRepo) GetByEmail(_ context.Context, email string) (*auth.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u := r.byEmail(email)
	if u == nil {
		return nil, apperror.NewNotFound("user", email)
	}
	cp := *u
	return &cp, nil
}

func (r *UserRepo) UpdateLoginState(ctx context.Context, u *auth.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	prev, ok := r.s.users[u.ID]
	if !ok {
		return apperror.NewNotFound("user", u.ID.String())
	}
	next := prev
	next.FailedLoginAttempts = u.FailedLoginAttempts
	next.LockedUntil = u.LockedUntil
	next.LastLoginAt = u.LastLoginAt
	r.s.users[u.ID] = next
	userID := u.ID
	r.s.onRollback(ctx, func() { r.s.users[userID] = prev })
	return nil
}

func (r *UserRepo) Delete(ctx context.Context, userID id.ID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	prev, ok := r.s.users[userID]
	if !ok {
		return apperror.NewNotFound("user", userID.String())
	}
	delete(r.s.users, userID)
	r.s.onRollback(ctx, func() { r.s.users[userID] = prev })
	return nil
}

// List orders by creation time, newest first.
func (r *UserRepo) List(_ context.Context, f auth.UserFilter) ([]auth.User, int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	search := strings.ToLower(strings.TrimSpace(f.Search))
	out := make([]auth.User, 0)
	for _, u := range r.s.users {
		if f.AccountID != nil && (u.AccountID == nil || *u.AccountID != *f.AccountID) {
			continue
		}
		if f.BranchID != nil && (u.BranchID == nil || *u.BranchID != *f.BranchID) {
			continue
		}
		if f.Role != "" && u.Role != f.Role {
			continue
		}
		if f.IsActive != nil && u.IsActive != *f.IsActive {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(u.Email+" "+u.FirstName+" "+u.LastName), search) {
			continue
		}
		out = append(out, u)
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return id.Compare(out[i].ID, out[j].ID) < 0
	})

	total := len(out)
	start := min(max(f.Offset, 0), total)
	end := total
	if f.Limit > 0 {
		end = min(start+f.Limit, total)
	}
	return out[start:end], total, nil
}

func (r *UserRepo) ExistsByEmail(_ context.Context, email string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.byEmail(email) != nil, nil
}

func (r *UserRepo) CountMovements(_ context.Context, userID id.ID) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for _, m := range r.s.movements {
		if m.CreatedBy == userID.String() {
			n++
		}
	}
	return n, nil
}

// byEmail requires r.s.mu.
func (r *UserRepo) byEmail(email string) *auth.User {
	email = strings.ToLower(strings.TrimSpace(email))
	for _, u := range r.s.users {
		if u.Email == email {
			return &u
		}
	}
	return nil
}

