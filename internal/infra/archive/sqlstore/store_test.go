package sqlstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRebind(t *testing.T) {
	numbered := &Store{dialect: Dialect{Numbered: true}}
	assert.Equal(t, "a = $1 AND b = $2", numbered.rebind("a = ? AND b = ?"))
	plain := &Store{dialect: Dialect{}}
	assert.Equal(t, "a = ?", plain.rebind("a = ?"))
}

func TestSchemaUsesDialectPayloadType(t *testing.T) {
	s := &Store{dialect: Dialect{PayloadType: "BYTEA"}}
	assert.Contains(t, s.schema()[0], "payload BYTEA NOT NULL")
}
