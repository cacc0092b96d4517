package leaderboard

type LeaderboardEntry struct {
	UserID        string `json:"user_id" db:"user_id"`
	TotalXP       int    `json:"total_xp" db:"total_xp"`
	Level         int    `json:"level" db:"level"`
	CurrentStreak int    `json:"current_streak" db:"current_streak_days"`
	Rank          int    `json:"rank" db:"rank"`
}

type Leaderboard struct {
	Entries      []*LeaderboardEntry `json:"entries"`
	UserPosition *LeaderboardEntry   `json:"user_position"`
	TotalUsers   int                 `json:"total_users"`
}
