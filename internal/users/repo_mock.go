package users

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/2beens/fittrack/internal/auth"
)

var _ usersRepo = (*repoMock)(nil)

type repoMock struct {
	Users  map[int]*User
	nextID int
	mutex  sync.Mutex
}

func newRepoMock() *repoMock {
	return &repoMock{
		Users:  make(map[int]*User),
		nextID: 1,
	}
}

func (r *repoMock) Add(_ context.Context, user User) (*User, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	for _, u := range r.Users {
		if u.Email == user.Email {
			return nil, ErrEmailTaken
		}
		if u.Username == user.Username {
			return nil, ErrUsernameTaken
		}
	}

	user.ID = r.nextID
	r.nextID++
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now()
	}

	r.Users[user.ID] = &user
	return &user, nil
}

func (r *repoMock) Get(_ context.Context, id int) (*User, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	user, ok := r.Users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	return user, nil
}

func (r *repoMock) GetByLogin(_ context.Context, login string) (*User, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	for _, u := range r.Users {
		if u.Username == login || u.Email == login {
			return u, nil
		}
	}
	return nil, ErrUserNotFound
}

func (r *repoMock) List(_ context.Context) ([]User, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	all := make([]User, 0, len(r.Users))
	for id := range r.Users {
		all = append(all, *r.Users[id])
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})
	return all, nil
}

func (r *repoMock) Update(_ context.Context, id int, params UpdateParams) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	user, ok := r.Users[id]
	if !ok {
		return ErrUserNotFound
	}

	for otherID, u := range r.Users {
		if otherID == id {
			continue
		}
		if params.Email != nil && u.Email == *params.Email {
			return ErrEmailTaken
		}
		if params.Username != nil && u.Username == *params.Username {
			return ErrUsernameTaken
		}
	}

	if params.Email != nil {
		user.Email = *params.Email
	}
	if params.Username != nil {
		user.Username = *params.Username
	}
	if params.FullName != nil {
		user.FullName = *params.FullName
	}
	if params.PasswordHash != nil {
		user.PasswordHash = *params.PasswordHash
	}
	return nil
}

func (r *repoMock) UpdateRole(_ context.Context, id int, role auth.Role) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	user, ok := r.Users[id]
	if !ok {
		return ErrUserNotFound
	}
	user.Role = role
	return nil
}

func (r *repoMock) Delete(_ context.Context, id int) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if _, ok := r.Users[id]; !ok {
		return ErrUserNotFound
	}
	delete(r.Users, id)
	return nil
}

func (r *repoMock) Count(_ context.Context) (int, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return len(r.Users), nil
}
