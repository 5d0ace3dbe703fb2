package exercises

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/2beens/fittrack/internal/plans"
)

var (
	_ exercisesRepo = (*repoMock)(nil)
	_ plansService  = (*plansServiceMock)(nil)
)

type repoMock struct {
	Exercises map[int]*Exercise
	nextID    int
	mutex     sync.Mutex
}

func newRepoMock() *repoMock {
	return &repoMock{
		Exercises: make(map[int]*Exercise),
		nextID:    1,
	}
}

func (r *repoMock) Add(_ context.Context, exercise Exercise) (*Exercise, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	exercise.ID = r.nextID
	r.nextID++
	if exercise.CreatedAt.IsZero() {
		exercise.CreatedAt = time.Now()
	}

	r.Exercises[exercise.ID] = &exercise
	return &exercise, nil
}

func (r *repoMock) Get(_ context.Context, id int) (*Exercise, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	exercise, ok := r.Exercises[id]
	if !ok {
		return nil, ErrExerciseNotFound
	}
	return exercise, nil
}

func (r *repoMock) ListForPlan(_ context.Context, planID int) ([]Exercise, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	var found []Exercise
	for id := range r.Exercises {
		if r.Exercises[id].WorkoutPlanID == planID {
			found = append(found, *r.Exercises[id])
		}
	}
	sort.Slice(found, func(i, j int) bool {
		if found[i].Order != found[j].Order {
			return found[i].Order < found[j].Order
		}
		return found[i].ID < found[j].ID
	})
	return found, nil
}

func (r *repoMock) Update(_ context.Context, id int, params UpdateParams) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	exercise, ok := r.Exercises[id]
	if !ok {
		return ErrExerciseNotFound
	}

	if params.Name != nil {
		exercise.Name = *params.Name
	}
	if params.Description != nil {
		exercise.Description = *params.Description
	}
	if params.Sets != nil {
		exercise.Sets = *params.Sets
	}
	if params.Reps != nil {
		exercise.Reps = *params.Reps
	}
	if params.RestSeconds != nil {
		exercise.RestSeconds = *params.RestSeconds
	}
	if params.Order != nil {
		exercise.Order = *params.Order
	}
	return nil
}

func (r *repoMock) Delete(_ context.Context, id int) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if _, ok := r.Exercises[id]; !ok {
		return ErrExerciseNotFound
	}
	delete(r.Exercises, id)
	return nil
}

type plansServiceMock struct {
	Plans map[int]*plans.WorkoutPlan
	mutex sync.Mutex
}

func newPlansServiceMock() *plansServiceMock {
	return &plansServiceMock{
		Plans: make(map[int]*plans.WorkoutPlan),
	}
}

func (m *plansServiceMock) Get(_ context.Context, id int) (*plans.WorkoutPlan, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	plan, ok := m.Plans[id]
	if !ok {
		return nil, plans.ErrPlanNotFound
	}
	return plan, nil
}
