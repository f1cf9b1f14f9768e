// Package inmemdb implements the repositories in memory. Every repository opened on the same DB
// shares one lock, so multi-table operations are atomic like their SQL counterparts.
package inmemdb

import (
	"sort"
	"sync"

	"github.com/trezcool/codedays/core/content"
	"github.com/trezcool/codedays/core/coursework"
	"github.com/trezcool/codedays/core/user"
)

type DB struct {
	mu  sync.RWMutex
	pks map[string]int

	users       map[int]user.User
	days        map[int]content.Day
	lessons     map[int]content.Lesson
	programs    map[int]content.Program
	notes       map[int]content.Note
	assignments map[int]coursework.Assignment
	submissions map[int]coursework.Submission
}

func Open() *DB {
	return &DB{
		pks:         make(map[string]int),
		users:       make(map[int]user.User),
		days:        make(map[int]content.Day),
		lessons:     make(map[int]content.Lesson),
		programs:    make(map[int]content.Program),
		notes:       make(map[int]content.Note),
		assignments: make(map[int]coursework.Assignment),
		submissions: make(map[int]coursework.Submission),
	}
}

// nextPK must be called with the write lock held.
func (db *DB) nextPK(table string) int {
	db.pks[table]++
	return db.pks[table]
}

// sortedKeys returns the primary keys of a table in ascending order.
func sortedKeys[V any](table map[int]V) []int {
	ids := make([]int, 0, len(table))
	for id := range table {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}
