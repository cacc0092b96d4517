package migrations

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMigrationsAreOrdered(t *testing.T) {
	all := All()
	for i, m := range all {
		assert.Equal(t, i+1, m.Version)
		assert.NotEmpty(t, m.Name)
		assert.NotEmpty(t, strings.TrimSpace(m.SQL))
	}
}

func TestSchemaCarriesUniquenessGuards(t *testing.T) {
	var sql strings.Builder
	for _, m := range All() {
		sql.WriteString(m.SQL)
	}
	s := sql.String()

	assert.Contains(t, s, "UNIQUE (user_id, achievement_id)")
	assert.Contains(t, s, "PRIMARY KEY (user_id, kind, ref_id)")
	assert.Contains(t, s, "PRIMARY KEY (user_id, plant_id)")
	for _, ch := range []string{ChannelTaskCompleted, ChannelPlantAdded, ChannelMilestone} {
		assert.Contains(t, s, "pg_notify('"+ch+"'")
	}
}
