package stats

// Stats is the workout footprint of one user, or of the whole
// system when gathered for an admin.
type Stats struct {
	TotalPlans     int `json:"total_plans"`
	TotalExercises int `json:"total_exercises"`
	PublicPlans    int `json:"public_plans"`
}

type AdminStats struct {
	TotalUsers     int            `json:"total_users"`
	TotalPlans     int            `json:"total_plans"`
	TotalExercises int            `json:"total_exercises"`
	PublicPlans    int            `json:"public_plans"`
	UsersByRole    map[string]int `json:"users_by_role"`
}
