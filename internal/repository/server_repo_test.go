package repository

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tunnelbot/internal/models"
)

func TestServerFindByID(t *testing.T) {
	r := NewServerRepository(newTestDB(t))

	require.NoError(t, r.Create(&models.Server{Domain: "sg1.example.com", Name: "Singapore 1"}))

	srv, err := r.FindByID(1)
	require.NoError(t, err)
	assert.Equal(t, "Singapore 1", srv.Name)

	_, err = r.FindByID(999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestServerFindByDomain(t *testing.T) {
	r := NewServerRepository(newTestDB(t))

	require.NoError(t, r.Create(&models.Server{Domain: "SG1.Example.com", Name: "Singapore 1"}))

	srv, err := r.FindByDomain("  sg1.example.COM ")
	require.NoError(t, err)
	assert.Equal(t, "Singapore 1", srv.Name)

	_, err = r.FindByDomain("missing.example.com")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestServerDisplayName(t *testing.T) {
	named := models.Server{Domain: "sg1.example.com", Name: "Singapore 1"}
	assert.Equal(t, "Singapore 1", named.DisplayName())

	unnamed := models.Server{Domain: "sg1.example.com"}
	assert.Equal(t, "sg1.example.com", unnamed.DisplayName())
}
