package services

import (
	"pubtrivia/models"

	"gorm.io/gorm"
)

type Leaderboard struct {
	Entries         []LeaderboardEntry `json:"leaderboard"`
	CompletedRounds []RoundSummary     `json:"completed_rounds"`
	UpcomingRounds  []RoundSummary     `json:"upcoming_rounds"`
	TotalGamePoints int                `json:"total_game_points"`
	PointsPlayed    int                `json:"points_played"`
	PointsRemaining int                `json:"points_remaining"`
	IsFinalRound    bool               `json:"is_final_round"`
}

type LeaderboardEntry struct {
	Rank        int          `json:"rank"`
	TeamName    string       `json:"team_name"`
	TotalScore  int          `json:"total_score"`
	RoundScores []RoundScore `json:"round_scores"`
}

type RoundSummary struct {
	RoundNumber int    `json:"round_number"`
	RoundName   string `json:"round_name"`
	MaxPoints   int    `json:"max_points"`
}

type RoundScore struct {
	RoundNumber  int `json:"round_number"`
	PointsScored int `json:"points_scored"`
	MaxPoints    int `json:"max_points"`
}

// LeaderboardFor builds team rankings with per-round breakdowns plus the
// points still on the table in upcoming rounds.
func (s *ScoringService) LeaderboardFor(code string) (*Leaderboard, error) {
	var board *Leaderboard
	err := withSession(s.db, code, func(tx *gorm.DB, session *models.GameSession) error {
		var teams []models.SessionTeam
		if err := tx.Where("session_id = ?", session.ID).
			Order("score DESC, joined_at").Find(&teams).Error; err != nil {
			return err
		}

		scoredRounds, err := sessionRoundsByStatus(tx, session.ID, models.RoundScored)
		if err != nil {
			return err
		}
		pendingRounds, err := sessionRoundsByStatus(tx, session.ID, models.RoundPending)
		if err != nil {
			return err
		}

		board = &Leaderboard{}

		roundMax := make(map[uint]int)
		for i := range scoredRounds {
			sr := &scoredRounds[i]
			max, err := roundMaxPoints(tx, sr.RoundID)
			if err != nil {
				return err
			}
			roundMax[sr.ID] = max
			board.PointsPlayed += max
			board.TotalGamePoints += max
			board.CompletedRounds = append(board.CompletedRounds, RoundSummary{
				RoundNumber: sr.Round.RoundNumber,
				RoundName:   sr.Round.Name,
				MaxPoints:   max,
			})
		}
		for i := range pendingRounds {
			sr := &pendingRounds[i]
			max, err := roundMaxPoints(tx, sr.RoundID)
			if err != nil {
				return err
			}
			board.TotalGamePoints += max
			board.UpcomingRounds = append(board.UpcomingRounds, RoundSummary{
				RoundNumber: sr.Round.RoundNumber,
				RoundName:   sr.Round.Name,
				MaxPoints:   max,
			})
		}
		board.PointsRemaining = board.TotalGamePoints - board.PointsPlayed
		board.IsFinalRound = len(board.UpcomingRounds) == 0

		for rank, team := range teams {
			entry := LeaderboardEntry{
				Rank:       rank + 1,
				TeamName:   team.Name,
				TotalScore: team.Score,
			}
			for i := range scoredRounds {
				sr := &scoredRounds[i]
				scored, err := teamRoundScore(tx, team.ID, sr.ID)
				if err != nil {
					return err
				}
				entry.RoundScores = append(entry.RoundScores, RoundScore{
					RoundNumber:  sr.Round.RoundNumber,
					PointsScored: scored,
					MaxPoints:    roundMax[sr.ID],
				})
			}
			board.Entries = append(board.Entries, entry)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return board, nil
}

type TeamResults struct {
	TeamName   string           `json:"team_name"`
	TotalScore int              `json:"total_score"`
	Rank       int              `json:"rank"`
	TotalTeams int              `json:"total_teams"`
	Rounds     []RoundScore     `json:"rounds"`
	Standings  []StandingsEntry `json:"standings"`
}

// ResultsFor returns one team's per-round scores alongside the current
// standings.
func (s *ScoringService) ResultsFor(code string, teamID uint) (*TeamResults, error) {
	var results *TeamResults
	err := withSession(s.db, code, func(tx *gorm.DB, session *models.GameSession) error {
		var team models.SessionTeam
		if err := tx.Where("id = ? AND session_id = ?", teamID, session.ID).First(&team).Error; err != nil {
			return notFound("team %d not found in session", teamID)
		}

		results = &TeamResults{
			TeamName:   team.Name,
			TotalScore: team.Score,
		}

		scoredRounds, err := sessionRoundsByStatus(tx, session.ID, models.RoundScored)
		if err != nil {
			return err
		}
		for i := range scoredRounds {
			sr := &scoredRounds[i]
			scored, err := teamRoundScore(tx, team.ID, sr.ID)
			if err != nil {
				return err
			}
			max, err := roundMaxPoints(tx, sr.RoundID)
			if err != nil {
				return err
			}
			results.Rounds = append(results.Rounds, RoundScore{
				RoundNumber:  sr.Round.RoundNumber,
				PointsScored: scored,
				MaxPoints:    max,
			})
		}

		var teams []models.SessionTeam
		if err := tx.Where("session_id = ?", session.ID).
			Order("score DESC, joined_at").Find(&teams).Error; err != nil {
			return err
		}
		results.TotalTeams = len(teams)
		for i, t := range teams {
			results.Standings = append(results.Standings, StandingsEntry{
				Rank:  i + 1,
				Name:  t.Name,
				Score: t.Score,
			})
			if t.ID == team.ID {
				results.Rank = i + 1
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

func sessionRoundsByStatus(tx *gorm.DB, sessionID uint, status models.RoundStatus) ([]models.SessionRound, error) {
	var rounds []models.SessionRound
	err := tx.Select("session_rounds.*").
		Joins("JOIN rounds ON rounds.id = session_rounds.round_id").
		Where("session_rounds.session_id = ? AND session_rounds.status = ?", sessionID, status).
		Order("rounds.round_number").
		Preload("Round").
		Find(&rounds).Error
	return rounds, err
}

func roundMaxPoints(tx *gorm.DB, roundID uint) (int, error) {
	var max int
	err := tx.Model(&models.Question{}).
		Where("round_id = ?", roundID).
		Select("COALESCE(SUM(total_points), 0)").
		Scan(&max).Error
	return max, err
}

func teamRoundScore(tx *gorm.DB, teamID, sessionRoundID uint) (int, error) {
	var total int
	err := tx.Model(&models.TeamAnswer{}).
		Where("team_id = ? AND session_round_id = ? AND points_awarded IS NOT NULL", teamID, sessionRoundID).
		Select("COALESCE(SUM(points_awarded), 0)").
		Scan(&total).Error
	return total, err
}
