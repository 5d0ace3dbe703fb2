package plans

import (
	"context"
	"sort"
	"sync"
	"time"
)

var _ plansRepo = (*repoMock)(nil)

type repoMock struct {
	Plans  map[int]*WorkoutPlan
	nextID int
	mutex  sync.Mutex
}

func newRepoMock() *repoMock {
	return &repoMock{
		Plans:  make(map[int]*WorkoutPlan),
		nextID: 1,
	}
}

func (r *repoMock) Add(_ context.Context, plan WorkoutPlan) (*WorkoutPlan, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	plan.ID = r.nextID
	r.nextID++
	if plan.CreatedAt.IsZero() {
		plan.CreatedAt = time.Now()
	}

	r.Plans[plan.ID] = &plan
	return &plan, nil
}

func (r *repoMock) Get(_ context.Context, id int) (*WorkoutPlan, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	plan, ok := r.Plans[id]
	if !ok {
		return nil, ErrPlanNotFound
	}
	return plan, nil
}

func (r *repoMock) ListForOwner(_ context.Context, ownerID, skip, limit int) ([]WorkoutPlan, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return paginate(r.sorted(func(p *WorkoutPlan) bool {
		return p.OwnerID == ownerID
	}), skip, limit), nil
}

func (r *repoMock) ListAll(_ context.Context, skip, limit int) ([]WorkoutPlan, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return paginate(r.sorted(func(*WorkoutPlan) bool { return true }), skip, limit), nil
}

func (r *repoMock) ListPublic(_ context.Context, skip, limit int) ([]WorkoutPlan, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return paginate(r.sorted(func(p *WorkoutPlan) bool {
		return p.IsPublic
	}), skip, limit), nil
}

func (r *repoMock) Update(_ context.Context, id int, params UpdateParams) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	plan, ok := r.Plans[id]
	if !ok {
		return ErrPlanNotFound
	}

	if params.Title != nil {
		plan.Title = *params.Title
	}
	if params.Description != nil {
		plan.Description = *params.Description
	}
	if params.Difficulty != nil {
		plan.Difficulty = *params.Difficulty
	}
	if params.DurationWeeks != nil {
		plan.DurationWeeks = *params.DurationWeeks
	}
	if params.IsPublic != nil {
		plan.IsPublic = *params.IsPublic
	}
	now := time.Now()
	plan.UpdatedAt = &now
	return nil
}

func (r *repoMock) Delete(_ context.Context, id int) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if _, ok := r.Plans[id]; !ok {
		return ErrPlanNotFound
	}
	delete(r.Plans, id)
	return nil
}

func (r *repoMock) sorted(keep func(*WorkoutPlan) bool) []WorkoutPlan {
	var found []WorkoutPlan
	for id := range r.Plans {
		if keep(r.Plans[id]) {
			found = append(found, *r.Plans[id])
		}
	}
	sort.Slice(found, func(i, j int) bool {
		return found[i].CreatedAt.After(found[j].CreatedAt)
	})
	return found
}

func paginate(all []WorkoutPlan, skip, limit int) []WorkoutPlan {
	if skip >= len(all) {
		return nil
	}
	all = all[skip:]
	if limit < len(all) {
		all = all[:limit]
	}
	return all
}
