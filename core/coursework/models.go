package coursework

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/codedays/core"
)

const ChartDateLayout = "2006-01-02"

type (
	Assignment struct {
		ID          int
		Title       string
		Description string
		MaxScore    int
		CreatedAt   time.Time // UTC
	}

	Submission struct {
		ID           int
		UserID       int
		AssignmentID int
		CodeText     string
		Score        *int // nil until reviewed
		Feedback     string
		SubmittedAt  time.Time // UTC
	}

	// SubmissionDetail is a Submission with what its pages show of its author and assignment.
	SubmissionDetail struct {
		Submission
		Username        string
		AssignmentTitle string
		MaxScore        int
	}

	ScorePoint struct {
		Date       string
		Percentage float64
	}

	// Progress is the score history of a User over a recent window.
	Progress struct {
		Submissions []SubmissionDetail
		Chart       []ScorePoint
	}
)

func (s Submission) IsReviewed() bool { return s.Score != nil }

// Percentage of the max score, rounded to 2 decimals. ok is false when not reviewed.
func (sd SubmissionDetail) Percentage() (pct float64, ok bool) {
	if sd.Score == nil || sd.MaxScore <= 0 {
		return 0, false
	}
	return round2(float64(*sd.Score) / float64(sd.MaxScore) * 100), true
}

func (p Progress) ChartDates() []string {
	dates := make([]string, len(p.Chart))
	for i, pt := range p.Chart {
		dates[i] = pt.Date
	}
	return dates
}

func (p Progress) ChartPercentages() []float64 {
	pcts := make([]float64, len(p.Chart))
	for i, pt := range p.Chart {
		pcts[i] = pt.Percentage
	}
	return pcts
}

type NewAssignment struct {
	Title       string `form:"title" validate:"required,max=140"`
	Description string `form:"description" validate:"required"`
	MaxScore    int    `form:"max_score" validate:"required,gt=0"`
}

func (na *NewAssignment) Validate(validate *validator.Validate) error {
	na.Title = core.CleanString(na.Title)
	return validate.Struct(na)
}

type NewSubmission struct {
	CodeText string `form:"code_text" validate:"required"`
}

func (ns NewSubmission) Validate(validate *validator.Validate) error { return validate.Struct(ns) }

// Review is the grading form. Score is kept as text so that a missing value is not read as 0.
type Review struct {
	Score    string `form:"score" validate:"required,number"`
	Feedback string `form:"feedback"`
}

func (r *Review) Validate(validate *validator.Validate) error {
	r.Score = core.CleanString(r.Score)
	r.Feedback = core.CleanString(r.Feedback)
	return validate.Struct(r)
}
