package middleware

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLocalLimitersAreBounded(t *testing.T) {
	l := newLocalLimiters(1, 1, 2)

	for id := int64(1); id <= 50; id++ {
		l.get(id)
	}
	assert.Equal(t, 2, l.m.Len())
	assert.True(t, l.m.Contains(49))
	assert.True(t, l.m.Contains(50))
	assert.False(t, l.m.Contains(1))
}

func TestLocalLimitersKeepActiveCompanies(t *testing.T) {
	l := newLocalLimiters(1, 1, 2)
	now := time.Now()

	hot := l.get(7)
	assert.True(t, hot.AllowN(now, 1))

	l.get(8)
	assert.Same(t, hot, l.get(7))
	l.get(9) // evicts 8, the least recently used

	assert.Same(t, hot, l.get(7))
	assert.False(t, l.get(7).AllowN(now, 1), "the bucket survives so the limit still applies")
	assert.False(t, l.m.Contains(8))
}
