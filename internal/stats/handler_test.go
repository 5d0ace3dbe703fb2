package stats

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/2beens/fittrack/internal/auth"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ statsRepo = (*repoMock)(nil)

type repoMock struct {
	PerOwner    map[int]*Stats
	SystemStats *Stats
	AdminStats  *AdminStats
}

func (r *repoMock) ForOwner(_ context.Context, ownerID int) (*Stats, error) {
	if s, ok := r.PerOwner[ownerID]; ok {
		return s, nil
	}
	return &Stats{}, nil
}

func (r *repoMock) System(_ context.Context) (*Stats, error) {
	return r.SystemStats, nil
}

func (r *repoMock) Admin(_ context.Context) (*AdminStats, error) {
	return r.AdminStats, nil
}

func getTestHandler(t *testing.T) *Handler {
	t.Helper()

	handler := NewHandler(&repoMock{
		PerOwner: map[int]*Stats{
			1: {TotalPlans: 3, TotalExercises: 12, PublicPlans: 1},
		},
		SystemStats: &Stats{TotalPlans: 10, TotalExercises: 44, PublicPlans: 4},
		AdminStats: &AdminStats{
			TotalUsers:     5,
			TotalPlans:     10,
			TotalExercises: 44,
			PublicPlans:    4,
			UsersByRole:    map[string]int{"user": 4, "admin": 1},
		},
	})
	require.NotNil(t, handler)
	return handler
}

func TestHandler_HandleStats(t *testing.T) {
	handler := getTestHandler(t)

	req, err := http.NewRequest("GET", "/api/stats", nil)
	require.NoError(t, err)
	req = req.WithContext(auth.ContextWithIdentity(
		req.Context(),
		auth.Identity{ID: 1, Username: "mila", Role: auth.RoleUser},
	))
	rr := httptest.NewRecorder()

	handler.HandleStats(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)

	var gotten Stats
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &gotten))
	assert.Equal(t, 3, gotten.TotalPlans)
	assert.Equal(t, 12, gotten.TotalExercises)
	assert.Equal(t, 1, gotten.PublicPlans)
}

func TestHandler_HandleStats_adminGetsSystemWide(t *testing.T) {
	handler := getTestHandler(t)

	req, err := http.NewRequest("GET", "/api/stats", nil)
	require.NoError(t, err)
	req = req.WithContext(auth.ContextWithIdentity(
		req.Context(),
		auth.Identity{ID: 2, Username: "boss", Role: auth.RoleAdmin},
	))
	rr := httptest.NewRecorder()

	handler.HandleStats(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)

	var gotten Stats
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &gotten))
	assert.Equal(t, 10, gotten.TotalPlans)
}

func TestHandler_HandleStats_noIdentity(t *testing.T) {
	handler := getTestHandler(t)

	req, err := http.NewRequest("GET", "/api/stats", nil)
	require.NoError(t, err)
	rr := httptest.NewRecorder()

	handler.HandleStats(rr, req)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestHandler_HandleAdminStats(t *testing.T) {
	handler := getTestHandler(t)

	req, err := http.NewRequest("GET", "/api/admin/stats", nil)
	require.NoError(t, err)
	rr := httptest.NewRecorder()

	handler.HandleAdminStats(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)

	var gotten AdminStats
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &gotten))
	assert.Equal(t, 5, gotten.TotalUsers)
	assert.Equal(t, map[string]int{"user": 4, "admin": 1}, gotten.UsersByRole)
}
