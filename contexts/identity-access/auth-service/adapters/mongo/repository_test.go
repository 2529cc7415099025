package mongoadapter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIndexesEnforceUniqueEmail(t *testing.T) {
	indexes := Indexes()
	require.Len(t, indexes[credentialsCollection], 1)
	assert.True(t, *indexes[credentialsCollection][0].Options.Unique)
	assert.NotEmpty(t, indexes[outboxCollection])
}

func TestNewRepositoryDefaultsLogger(t *testing.T) {
	repo := NewRepository(nil, nil)
	require.NotNil(t, repo.logger)
}
