package pagination

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNew_Clamps(t *testing.T) {
	p := New(0, 1000)
	assert.Equal(t, 1, p.Page)
	assert.Equal(t, MaxPerPage, p.PerPage)
	assert.Equal(t, 0, p.Offset())

	p = New(3, 0)
	assert.Equal(t, DefaultPerPage, p.PerPage)
	assert.Equal(t, 40, p.Offset())
}

func TestNewResult(t *testing.T) {
	r := NewResult[int](nil, 41, New(1, 20))
	assert.NotNil(t, r.Data)
	assert.Equal(t, 3, r.TotalPages)

	mapped := Map(NewResult([]int{1, 2}, 2, New(1, 20)), func(i int) string { return string(rune('a' + i)) })
	assert.Equal(t, []string{"b", "c"}, mapped.Data)
	assert.Equal(t, 1, mapped.TotalPages)
}

func TestParseSort(t *testing.T) {
	allowed := map[string]string{"created_at": "s.created_at", "status": "s.status"}

	sorts := ParseSort("-created_at, status,password", allowed)
	assert.Equal(t, []Sort{{"s.created_at", SortDesc}, {"s.status", SortAsc}}, sorts)
	assert.Equal(t, "s.created_at DESC, s.status ASC", OrderBy(sorts, "x"))
	assert.Equal(t, "s.queued_at DESC", OrderBy(ParseSort("", allowed), "s.queued_at DESC"))
}
