package coursework

import (
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/codedays/core"
)

func TestSubmissionDetail_Percentage(t *testing.T) {
	score := func(n int) *int { return &n }

	tests := []struct {
		name    string
		sd      SubmissionDetail
		wantPct float64
		wantOk  bool
	}{
		{name: "not reviewed", sd: SubmissionDetail{MaxScore: 100}},
		{name: "no max score", sd: SubmissionDetail{Submission: Submission{Score: score(5)}}},
		{name: "full marks", sd: SubmissionDetail{Submission: Submission{Score: score(20)}, MaxScore: 20}, wantPct: 100, wantOk: true},
		{name: "zero", sd: SubmissionDetail{Submission: Submission{Score: score(0)}, MaxScore: 20}, wantPct: 0, wantOk: true},
		{name: "rounded", sd: SubmissionDetail{Submission: Submission{Score: score(2)}, MaxScore: 3}, wantPct: 66.67, wantOk: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pct, ok := tt.sd.Percentage()
			assert.Equal(t, tt.wantOk, ok)
			assert.Equal(t, tt.wantPct, pct)
		})
	}
}

func TestProgress_Chart(t *testing.T) {
	p := Progress{Chart: []ScorePoint{{Date: "2024-03-01", Percentage: 50}, {Date: "2024-03-04", Percentage: 87.5}}}
	assert.Equal(t, []string{"2024-03-01", "2024-03-04"}, p.ChartDates())
	assert.Equal(t, []float64{50, 87.5}, p.ChartPercentages())

	empty := Progress{}
	assert.NotNil(t, empty.ChartDates())
	assert.Empty(t, empty.ChartPercentages())
}

func TestReview_Validate(t *testing.T) {
	validate := validator.New()
	core.InitValidators(validate, core.NewTranslator())

	tests := []struct {
		score   string
		wantErr bool
	}{
		{score: "", wantErr: true},
		{score: "  ", wantErr: true},
		{score: "ten", wantErr: true},
		{score: "1.5", wantErr: true},
		{score: " 10 "},
		{score: "0"},
	}
	for _, tt := range tests {
		t.Run(tt.score, func(t *testing.T) {
			r := Review{Score: tt.score, Feedback: " good "}
			err := r.Validate(validate)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "good", r.Feedback)
		})
	}
}

func TestNewAssignment_Validate(t *testing.T) {
	validate := validator.New()
	core.InitValidators(validate, core.NewTranslator())

	na := NewAssignment{Title: " Sum ", Description: "Add numbers", MaxScore: 10}
	require.NoError(t, na.Validate(validate))
	assert.Equal(t, "Sum", na.Title)

	na.MaxScore = 0
	assert.Error(t, na.Validate(validate))
	na.MaxScore = -5
	assert.Error(t, na.Validate(validate))
}
