package services

import (
	"errors"
	"strings"
	"sync"

	"pubtrivia/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// The GameSession aggregate (session + teams + rounds + answers) is the unit
// of mutual exclusion. Every transition runs under a per-code mutex plus a
// row lock on the session record, so concurrent commands against the same
// session serialize while different sessions stay fully independent.
var sessionLocks = &lockTable{locks: make(map[string]*sync.Mutex)}

type lockTable struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (t *lockTable) lock(code string) func() {
	t.mu.Lock()
	m, ok := t.locks[code]
	if !ok {
		m = &sync.Mutex{}
		t.locks[code] = m
	}
	t.mu.Unlock()

	m.Lock()
	return m.Unlock
}

// withSession loads the session for code inside a transaction, holding the
// per-session lock for the duration of fn. fn sees current state, validates
// its preconditions, and applies all effects of one transition; any error
// rolls the whole transition back.
func withSession(db *gorm.DB, code string, fn func(tx *gorm.DB, session *models.GameSession) error) error {
	code = NormalizeCode(code)

	unlock := sessionLocks.lock(code)
	defer unlock()

	return db.Transaction(func(tx *gorm.DB) error {
		query := tx
		// Row-level lock where the database supports it (sqlite, used in
		// tests, does not parse FOR UPDATE).
		if tx.Dialector.Name() == "postgres" {
			query = tx.Clauses(clause.Locking{Strength: "UPDATE"})
		}

		var session models.GameSession
		if err := query.Where("code = ?", code).First(&session).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return notFound("session %s not found", code)
			}
			return err
		}

		return fn(tx, &session)
	})
}

// NormalizeCode lowercases and trims a session code; codes are
// case-insensitive everywhere.
func NormalizeCode(code string) string {
	return strings.ToLower(strings.TrimSpace(code))
}
