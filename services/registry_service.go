package services

import (
	"crypto/rand"
	"errors"
	"log"
	"math/big"
	"strings"
	"time"

	"pubtrivia/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	codeLength      = 6
	codeCharset     = "abcdefghijklmnopqrstuvwxyz0123456789"
	maxCodeAttempts = 10
)

// RegistryService creates sessions and lets teams join them. Admin and team
// credentials minted here are the sole authentication mechanism for every
// later command.
type RegistryService struct {
	db              *gorm.DB
	defaultMaxTeams int
}

func NewRegistryService(db *gorm.DB, defaultMaxTeams int) *RegistryService {
	return &RegistryService{db: db, defaultMaxTeams: defaultMaxTeams}
}

type CreateSessionRequest struct {
	GameID         uint   `json:"game_id" binding:"required"`
	AdminName      string `json:"admin_name" binding:"required"`
	MaxTeams       int    `json:"max_teams"`
	AllowLateJoins *bool  `json:"allow_late_joins"`
}

type CreateSessionResponse struct {
	Code       string `json:"code"`
	AdminToken string `json:"admin_token"`
	GameID     uint   `json:"game_id"`
	GameName   string `json:"game_name"`
}

type JoinSessionRequest struct {
	TeamName string `json:"team_name" binding:"required"`
}

type JoinSessionResponse struct {
	TeamID       uint   `json:"team_id"`
	TeamToken    string `json:"team_token"`
	TeamName     string `json:"team_name"`
	JoinedLate   bool   `json:"joined_late"`
	CurrentRound *int   `json:"current_round"`
}

// CreateSession allocates a lobby session for a game, mints the admin token
// (returned once; the caller must retain it) and materializes one pending
// SessionRound per catalog round.
func (s *RegistryService) CreateSession(req *CreateSessionRequest) (*CreateSessionResponse, error) {
	var game models.Game
	err := s.db.
		Preload("Rounds", func(db *gorm.DB) *gorm.DB {
			return db.Order("round_number")
		}).
		First(&game, req.GameID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFound("game %d not found", req.GameID)
		}
		return nil, err
	}

	maxTeams := req.MaxTeams
	if maxTeams <= 0 {
		maxTeams = s.defaultMaxTeams
	}
	allowLateJoins := true
	if req.AllowLateJoins != nil {
		allowLateJoins = *req.AllowLateJoins
	}

	code, err := s.generateCode()
	if err != nil {
		return nil, err
	}

	session := models.GameSession{
		Code:           code,
		GameID:         game.ID,
		AdminName:      req.AdminName,
		AdminToken:     uuid.NewString(),
		Status:         models.StatusLobby,
		MaxTeams:       maxTeams,
		AllowLateJoins: allowLateJoins,
		AdminLastSeen:  time.Now().UTC(),
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&session).Error; err != nil {
			return err
		}
		for _, round := range game.Rounds {
			sessionRound := models.SessionRound{
				SessionID: session.ID,
				RoundID:   round.ID,
				Status:    models.RoundPending,
			}
			if err := tx.Create(&sessionRound).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Printf("Created session %s for game %q (admin %s, max %d teams)",
		session.Code, game.Name, session.AdminName, session.MaxTeams)

	return &CreateSessionResponse{
		Code:       session.Code,
		AdminToken: session.AdminToken,
		GameID:     game.ID,
		GameName:   game.Name,
	}, nil
}

// JoinSession adds a team to a session. Late joins (after the game started)
// are flagged and may be disabled per session.
func (s *RegistryService) JoinSession(code string, req *JoinSessionRequest) (*JoinSessionResponse, error) {
	teamName := strings.TrimSpace(req.TeamName)
	if len(teamName) < 2 || len(teamName) > 100 {
		return nil, invalid("team name must be 2-100 characters")
	}

	var resp *JoinSessionResponse
	err := withSession(s.db, code, func(tx *gorm.DB, session *models.GameSession) error {
		switch {
		case session.Status == models.StatusCompleted:
			return closed("game has ended")
		case session.Status == models.StatusScoring:
			return invalidState("cannot join during scoring")
		case !session.AllowLateJoins && session.Status != models.StatusLobby:
			return closed("late joins are not allowed")
		}

		var teamCount int64
		if err := tx.Model(&models.SessionTeam{}).
			Where("session_id = ?", session.ID).Count(&teamCount).Error; err != nil {
			return err
		}
		if teamCount >= int64(session.MaxTeams) {
			return sessionFull("session is full (%d teams)", session.MaxTeams)
		}

		var nameTaken int64
		if err := tx.Model(&models.SessionTeam{}).
			Where("session_id = ? AND LOWER(name) = ?", session.ID, strings.ToLower(teamName)).
			Count(&nameTaken).Error; err != nil {
			return err
		}
		if nameTaken > 0 {
			return conflict("team name %q is taken", teamName)
		}

		now := time.Now().UTC()
		team := models.SessionTeam{
			SessionID:  session.ID,
			Name:       teamName,
			Token:      uuid.NewString(),
			JoinedAt:   now,
			JoinedLate: session.Status != models.StatusLobby,
			LastSeen:   now,
		}
		if err := tx.Create(&team).Error; err != nil {
			return err
		}

		resp = &JoinSessionResponse{
			TeamID:     team.ID,
			TeamToken:  team.Token,
			TeamName:   team.Name,
			JoinedLate: team.JoinedLate,
		}
		if session.CurrentRoundID != nil {
			var round models.Round
			if err := tx.First(&round, *session.CurrentRoundID).Error; err == nil {
				resp.CurrentRound = &round.RoundNumber
			}
		}

		log.Printf("Team %q joined session %s (late=%v)", team.Name, session.Code, team.JoinedLate)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

type RejoinSessionResponse struct {
	TeamID    uint   `json:"team_id"`
	TeamToken string `json:"team_token"`
	TeamName  string `json:"team_name"`
	Score     int    `json:"score"`
	Rejoined  bool   `json:"rejoined"`
}

// RejoinSession returns the existing token for a team name, letting a team
// recover from a lost token without losing answers or score.
func (s *RegistryService) RejoinSession(code, teamName string) (*RejoinSessionResponse, error) {
	teamName = strings.TrimSpace(teamName)
	if len(teamName) < 2 || len(teamName) > 100 {
		return nil, invalid("team name must be 2-100 characters")
	}

	var resp *RejoinSessionResponse
	err := withSession(s.db, code, func(tx *gorm.DB, session *models.GameSession) error {
		if session.Status == models.StatusCompleted {
			return closed("game has ended")
		}

		var team models.SessionTeam
		err := tx.Where("session_id = ? AND LOWER(name) = ?", session.ID, strings.ToLower(teamName)).
			First(&team).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return notFound("no team named %q in this session", teamName)
			}
			return err
		}

		team.LastSeen = time.Now().UTC()
		if err := tx.Model(&team).Update("last_seen", team.LastSeen).Error; err != nil {
			return err
		}

		resp = &RejoinSessionResponse{
			TeamID:    team.ID,
			TeamToken: team.Token,
			TeamName:  team.Name,
			Score:     team.Score,
			Rejoined:  true,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// Lookup resolves a session code.
func (s *RegistryService) Lookup(code string) (*models.GameSession, error) {
	var session models.GameSession
	err := s.db.Where("code = ?", NormalizeCode(code)).
		Preload("Game").
		First(&session).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFound("session %s not found", code)
		}
		return nil, err
	}
	return &session, nil
}

// generateCode draws random codes until one is free. Exhausting the retry
// bound means the code space is effectively full, which is a deployment
// problem, not a caller error.
func (s *RegistryService) generateCode() (string, error) {
	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		code, err := randomCode()
		if err != nil {
			return "", err
		}

		var count int64
		if err := s.db.Model(&models.GameSession{}).
			Where("code = ?", code).Count(&count).Error; err != nil {
			return "", err
		}
		if count == 0 {
			return code, nil
		}
		log.Printf("Session code collision on %s, retrying (%d/%d)", code, attempt+1, maxCodeAttempts)
	}
	return "", internal("could not allocate a unique session code after %d attempts", maxCodeAttempts)
}

func randomCode() (string, error) {
	buf := make([]byte, codeLength)
	max := big.NewInt(int64(len(codeCharset)))
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		buf[i] = codeCharset[n.Int64()]
	}
	return string(buf), nil
}
