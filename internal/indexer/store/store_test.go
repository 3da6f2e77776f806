package store

import (
	"testing"

	"github.com/Adithya-Monish-Kumar-K/Date-Recurring-Index/internal/indexer/index"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
)

func TestKeysColumn(t *testing.T) {
	keys := index.NewPostingSet(5, 1, 1<<31)
	values := encodeKeys(keys)
	assert.Equal(t, pq.Int64Array{1, 5, 1 << 31}, values)
	assert.Equal(t, keys.Values(), decodeKeys(values).Values())

	assert.Equal(t, []uint32{7}, decodeKeys(pq.Int64Array{-1, 7, 1 << 40}).Values())
	assert.True(t, decodeKeys(nil).IsEmpty())
}
