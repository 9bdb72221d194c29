package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDate(t *testing.T) {
	jakarta := time.FixedZone("WIB", 7*3600)

	day, err := parseDate("2024-05-01", jakarta)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 5, 1, 0, 0, 0, 0, jakarta), day)

	exact, err := parseDate("2024-05-01T10:30:00Z", jakarta)
	require.NoError(t, err)
	assert.True(t, exact.Equal(time.Date(2024, 5, 1, 10, 30, 0, 0, time.UTC)))

	_, err = parseDate("01/05/2024", jakarta)
	assert.Error(t, err)
}

func TestRootCommandsRegistered(t *testing.T) {
	names := map[string]bool{}
	for _, cmd := range []interface{ Name() string }{
		newMigrateCommand(), newSeedCommand(), newUsersCommand(),
		newTokenCommand(), newRecalcBonusesCommand(), newNormalizeLegacyCommand(),
	} {
		names[cmd.Name()] = true
	}
	for _, want := range []string{"migrate", "seed", "users", "token", "recalc-bonuses", "normalize-legacy"} {
		assert.True(t, names[want], want)
	}
}
