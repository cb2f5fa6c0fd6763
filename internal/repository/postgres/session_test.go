package postgres

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewSessionRepository(t *testing.T) {
	db := &Connection{}
	repo := NewSessionRepository(db)

	assert.NotNil(t, repo)
	assert.Equal(t, db, repo.db)
}

func TestNewEmailTokenRepository(t *testing.T) {
	db := &Connection{}
	repo := NewEmailTokenRepository(db)

	assert.NotNil(t, repo)
	assert.Equal(t, db, repo.db)
}
