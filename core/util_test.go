package core_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/trezcool/codedays/core"
)

func TestCleanString(t *testing.T) {
	tests := []struct {
		s     string
		lower bool
		want  string
	}{
		{s: "  Alice \n", want: "Alice"},
		{s: "\tAlice@Test.CD ", lower: true, want: "alice@test.cd"},
		{s: "   ", want: ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, core.CleanString(tt.s, tt.lower), "%q", tt.s)
	}
	assert.Equal(t, "MiXed", core.CleanString(" MiXed "))
}

func TestHasExtension(t *testing.T) {
	tests := []struct {
		filename string
		exts     []string
		want     bool
	}{
		{filename: "intro.html", exts: []string{".html"}, want: true},
		{filename: "Intro.HTML", exts: []string{".html"}, want: true},
		{filename: "fizz.py", exts: []string{".html", ".py"}, want: true},
		{filename: "fizz.py.txt", exts: []string{".py"}, want: false},
		{filename: "README", exts: []string{".md"}, want: false},
		{filename: "intro.html", want: false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, core.HasExtension(tt.filename, tt.exts...), tt.filename)
	}
}

func TestDBOrdering_String(t *testing.T) {
	assert.Equal(t, "username ASC", core.DBOrdering{Field: "username", Ascending: true}.String())
	assert.Equal(t, "total_score DESC", core.DBOrdering{Field: "total_score"}.String())
}
