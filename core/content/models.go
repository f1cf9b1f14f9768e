package content

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/codedays/core"
)

type (
	Day struct {
		ID    int
		Title string
	}

	Lesson struct {
		ID       int
		Title    string
		DayID    int
		HTMLFile string // relative upload path, may be empty
	}

	Program struct {
		ID         int
		Title      string
		DayID      int
		SourceFile string // relative upload path, may be empty
	}

	Note struct {
		ID        int
		Title     string
		Content   string
		LessonID  int
		CreatedAt time.Time // UTC
	}

	DayDetail struct {
		Day      Day
		Lessons  []Lesson
		Programs []Program
	}

	LessonDetail struct {
		Lesson Lesson
		Notes  []Note
		// HTML is the extracted lesson file, empty when the lesson has no file.
		HTML string
	}

	ProgramDetail struct {
		Program Program
		// Code is the highlighted source, empty when the program has no file.
		Code string
	}

	NoteDetail struct {
		Note   Note
		Lesson Lesson
	}
)

type NewDay struct {
	Title string `form:"title" validate:"required,max=140"`
}

func (nd *NewDay) Validate(validate *validator.Validate) error {
	nd.Title = core.CleanString(nd.Title)
	return validate.Struct(nd)
}

type NewLesson struct {
	Title string `form:"title" validate:"required,max=140"`
	DayID int    `form:"day_id" validate:"required"`
}

func (nl *NewLesson) Validate(validate *validator.Validate) error {
	nl.Title = core.CleanString(nl.Title)
	return validate.Struct(nl)
}

type NewProgram struct {
	Title string `form:"title" validate:"required,max=140"`
	DayID int    `form:"day_id" validate:"required"`
}

func (np *NewProgram) Validate(validate *validator.Validate) error {
	np.Title = core.CleanString(np.Title)
	return validate.Struct(np)
}

type NewNote struct {
	Title    string `form:"title" validate:"required,max=140"`
	LessonID int    `form:"lesson_id" validate:"required"`
	Content  string `form:"content" validate:"required"`
}

func (nn *NewNote) Validate(validate *validator.Validate) error {
	nn.Title = core.CleanString(nn.Title)
	return validate.Struct(nn)
}
