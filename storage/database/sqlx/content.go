package sqlxrepos

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/codedays/core/content"
)

type (
	dayRow struct {
		ID    int    `db:"id"`
		Title string `db:"title"`
	}

	lessonRow struct {
		ID       int         `db:"id"`
		Title    string      `db:"title"`
		DayID    int         `db:"day_id"`
		HTMLFile null.String `db:"html_file"`
	}

	programRow struct {
		ID         int         `db:"id"`
		Title      string      `db:"title"`
		DayID      int         `db:"day_id"`
		SourceFile null.String `db:"source_file"`
	}

	noteRow struct {
		ID        int       `db:"id"`
		Title     string    `db:"title"`
		Content   string    `db:"content"`
		LessonID  int       `db:"lesson_id"`
		CreatedAt time.Time `db:"created_at"`
	}
)

func (r lessonRow) toLesson() content.Lesson {
	return content.Lesson{ID: r.ID, Title: r.Title, DayID: r.DayID, HTMLFile: r.HTMLFile.String}
}

func (r programRow) toProgram() content.Program {
	return content.Program{ID: r.ID, Title: r.Title, DayID: r.DayID, SourceFile: r.SourceFile.String}
}

func (r noteRow) toNote() content.Note {
	return content.Note{ID: r.ID, Title: r.Title, Content: r.Content, LessonID: r.LessonID, CreatedAt: r.CreatedAt.UTC()}
}

type contentRepository struct {
	db *sqlx.DB
}

var _ content.Repository = (*contentRepository)(nil) // interface compliance check

func NewContentRepository(db *sqlx.DB) content.Repository {
	return &contentRepository{db: db}
}

func (repo *contentRepository) CreateDay(ctx context.Context, day content.Day) (content.Day, error) {
	var row dayRow
	err := namedGet(ctx, repo.db, &row, `INSERT INTO days (title) VALUES (:title) RETURNING id, title`, dayRow{Title: day.Title})
	if err != nil {
		return content.Day{}, errors.Wrap(err, "inserting day")
	}
	return content.Day{ID: row.ID, Title: row.Title}, nil
}

func (repo *contentRepository) CreateLesson(ctx context.Context, lesson content.Lesson) (content.Lesson, error) {
	var row lessonRow
	err := namedGet(ctx, repo.db, &row, `
		INSERT INTO lessons (title, day_id, html_file) VALUES (:title, :day_id, :html_file)
		RETURNING id, title, day_id, html_file`,
		lessonRow{Title: lesson.Title, DayID: lesson.DayID, HTMLFile: null.NewString(lesson.HTMLFile, lesson.HTMLFile != "")})
	if err != nil {
		return content.Lesson{}, errors.Wrap(err, "inserting lesson")
	}
	return row.toLesson(), nil
}

func (repo *contentRepository) CreateProgram(ctx context.Context, program content.Program) (content.Program, error) {
	var row programRow
	err := namedGet(ctx, repo.db, &row, `
		INSERT INTO programs (title, day_id, source_file) VALUES (:title, :day_id, :source_file)
		RETURNING id, title, day_id, source_file`,
		programRow{Title: program.Title, DayID: program.DayID, SourceFile: null.NewString(program.SourceFile, program.SourceFile != "")})
	if err != nil {
		return content.Program{}, errors.Wrap(err, "inserting program")
	}
	return row.toProgram(), nil
}

func (repo *contentRepository) CreateNote(ctx context.Context, note content.Note) (content.Note, error) {
	if note.CreatedAt.IsZero() {
		note.CreatedAt = time.Now().UTC()
	}
	var row noteRow
	err := namedGet(ctx, repo.db, &row, `
		INSERT INTO notes (title, content, lesson_id, created_at) VALUES (:title, :content, :lesson_id, :created_at)
		RETURNING id, title, content, lesson_id, created_at`,
		noteRow{Title: note.Title, Content: note.Content, LessonID: note.LessonID, CreatedAt: note.CreatedAt.UTC()})
	if err != nil {
		return content.Note{}, errors.Wrap(err, "inserting note")
	}
	return row.toNote(), nil
}

func (repo *contentRepository) QueryDays(ctx context.Context) ([]content.Day, error) {
	var rows []dayRow
	if err := repo.db.SelectContext(ctx, &rows, "SELECT id, title FROM days ORDER BY id"); err != nil {
		return nil, errors.Wrap(err, "querying days")
	}
	days := make([]content.Day, 0, len(rows))
	for _, r := range rows {
		days = append(days, content.Day{ID: r.ID, Title: r.Title})
	}
	return days, nil
}

func (repo *contentRepository) queryLessons(ctx context.Context, where string, args ...interface{}) ([]content.Lesson, error) {
	var rows []lessonRow
	if err := repo.db.SelectContext(ctx, &rows, "SELECT id, title, day_id, html_file FROM lessons"+where+" ORDER BY id", args...); err != nil {
		return nil, errors.Wrap(err, "querying lessons")
	}
	lessons := make([]content.Lesson, 0, len(rows))
	for _, r := range rows {
		lessons = append(lessons, r.toLesson())
	}
	return lessons, nil
}

func (repo *contentRepository) QueryLessons(ctx context.Context) ([]content.Lesson, error) {
	return repo.queryLessons(ctx, "")
}

func (repo *contentRepository) QueryDayLessons(ctx context.Context, dayID int) ([]content.Lesson, error) {
	return repo.queryLessons(ctx, " WHERE day_id = $1", dayID)
}

func (repo *contentRepository) QueryDayPrograms(ctx context.Context, dayID int) ([]content.Program, error) {
	var rows []programRow
	err := repo.db.SelectContext(ctx, &rows, "SELECT id, title, day_id, source_file FROM programs WHERE day_id = $1 ORDER BY id", dayID)
	if err != nil {
		return nil, errors.Wrap(err, "querying programs")
	}
	programs := make([]content.Program, 0, len(rows))
	for _, r := range rows {
		programs = append(programs, r.toProgram())
	}
	return programs, nil
}

func (repo *contentRepository) QueryLessonNotes(ctx context.Context, lessonID int) ([]content.Note, error) {
	var rows []noteRow
	err := repo.db.SelectContext(ctx, &rows, `
		SELECT id, title, content, lesson_id, created_at FROM notes WHERE lesson_id = $1 ORDER BY created_at, id`, lessonID)
	if err != nil {
		return nil, errors.Wrap(err, "querying notes")
	}
	notes := make([]content.Note, 0, len(rows))
	for _, r := range rows {
		notes = append(notes, r.toNote())
	}
	return notes, nil
}

func (repo *contentRepository) GetDay(ctx context.Context, id int) (content.Day, error) {
	var row dayRow
	if err := repo.db.GetContext(ctx, &row, "SELECT id, title FROM days WHERE id = $1", id); err != nil {
		return content.Day{}, trapNoRowsErr(err, content.ErrNotFound, "finding day")
	}
	return content.Day{ID: row.ID, Title: row.Title}, nil
}

func (repo *contentRepository) GetLesson(ctx context.Context, id int) (content.Lesson, error) {
	var row lessonRow
	if err := repo.db.GetContext(ctx, &row, "SELECT id, title, day_id, html_file FROM lessons WHERE id = $1", id); err != nil {
		return content.Lesson{}, trapNoRowsErr(err, content.ErrNotFound, "finding lesson")
	}
	return row.toLesson(), nil
}

func (repo *contentRepository) GetProgram(ctx context.Context, id int) (content.Program, error) {
	var row programRow
	if err := repo.db.GetContext(ctx, &row, "SELECT id, title, day_id, source_file FROM programs WHERE id = $1", id); err != nil {
		return content.Program{}, trapNoRowsErr(err, content.ErrNotFound, "finding program")
	}
	return row.toProgram(), nil
}

func (repo *contentRepository) GetNote(ctx context.Context, id int) (content.Note, error) {
	var row noteRow
	if err := repo.db.GetContext(ctx, &row, "SELECT id, title, content, lesson_id, created_at FROM notes WHERE id = $1", id); err != nil {
		return content.Note{}, trapNoRowsErr(err, content.ErrNotFound, "finding note")
	}
	return row.toNote(), nil
}
