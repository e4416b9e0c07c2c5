package services

import (
	"errors"

	"pubtrivia/models"

	"gorm.io/gorm"
)

// CatalogService reads the question catalog. The session engine treats the
// catalog as external and read-only; content management happens elsewhere.
type CatalogService struct {
	db *gorm.DB
}

func NewCatalogService(db *gorm.DB) *CatalogService {
	return &CatalogService{db: db}
}

func (s *CatalogService) ListGames() ([]models.Game, error) {
	var games []models.Game
	err := s.db.Order("game_order, id").
		Preload("Rounds", func(db *gorm.DB) *gorm.DB {
			return db.Order("round_number")
		}).
		Find(&games).Error
	return games, err
}

func (s *CatalogService) GetGame(gameID uint) (*models.Game, error) {
	var game models.Game
	err := s.db.
		Preload("Rounds", func(db *gorm.DB) *gorm.DB {
			return db.Order("round_number")
		}).
		First(&game, gameID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFound("game %d not found", gameID)
		}
		return nil, err
	}
	return &game, nil
}

// loadRoundQuestions fetches the questions of one catalog round, answer
// parts preloaded in display order.
func loadRoundQuestions(tx *gorm.DB, roundID uint) ([]models.Question, error) {
	var questions []models.Question
	err := tx.Where("round_id = ?", roundID).
		Order("question_number").
		Preload("Answers", func(db *gorm.DB) *gorm.DB {
			return db.Order("display_order, id")
		}).
		Preload("Category").
		Find(&questions).Error
	return questions, err
}

// firstQuestionOfRound returns the lowest-numbered question of a round, or
// nil when the round has none.
func firstQuestionOfRound(tx *gorm.DB, roundID uint) (*models.Question, error) {
	var question models.Question
	err := tx.Where("round_id = ?", roundID).
		Order("question_number").
		First(&question).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &question, nil
}

// loadGameQuestion fetches one question and verifies it belongs to the
// session's game, answer parts preloaded.
func loadGameQuestion(tx *gorm.DB, gameID, questionID uint) (*models.Question, error) {
	var question models.Question
	err := tx.Where("id = ? AND game_id = ?", questionID, gameID).
		Preload("Answers", func(db *gorm.DB) *gorm.DB {
			return db.Order("display_order, id")
		}).
		Preload("Category").
		First(&question).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFound("question %d not found in game", questionID)
		}
		return nil, err
	}
	return &question, nil
}
