package inmemdb

import (
	"context"
	"sort"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/codedays/core/content"
)

var errForeignKey = errors.New("foreign key violation")

type contentRepository struct {
	db *DB
}

var _ content.Repository = (*contentRepository)(nil)

func NewContentRepository(db *DB) content.Repository {
	return &contentRepository{db: db}
}

func (repo *contentRepository) CreateDay(_ context.Context, day content.Day) (content.Day, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	day.ID = repo.db.nextPK("days")
	repo.db.days[day.ID] = day
	return day, nil
}

func (repo *contentRepository) CreateLesson(_ context.Context, lesson content.Lesson) (content.Lesson, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.days[lesson.DayID]; !ok {
		return content.Lesson{}, errors.Wrap(errForeignKey, "lessons.day_id")
	}
	lesson.ID = repo.db.nextPK("lessons")
	repo.db.lessons[lesson.ID] = lesson
	return lesson, nil
}

func (repo *contentRepository) CreateProgram(_ context.Context, program content.Program) (content.Program, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.days[program.DayID]; !ok {
		return content.Program{}, errors.Wrap(errForeignKey, "programs.day_id")
	}
	program.ID = repo.db.nextPK("programs")
	repo.db.programs[program.ID] = program
	return program, nil
}

func (repo *contentRepository) CreateNote(_ context.Context, note content.Note) (content.Note, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.lessons[note.LessonID]; !ok {
		return content.Note{}, errors.Wrap(errForeignKey, "notes.lesson_id")
	}
	if note.CreatedAt.IsZero() {
		note.CreatedAt = time.Now().UTC()
	}
	note.ID = repo.db.nextPK("notes")
	repo.db.notes[note.ID] = note
	return note, nil
}

func (repo *contentRepository) QueryDays(_ context.Context) ([]content.Day, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	days := make([]content.Day, 0, len(repo.db.days))
	for _, id := range sortedKeys(repo.db.days) {
		days = append(days, repo.db.days[id])
	}
	return days, nil
}

func (repo *contentRepository) queryLessons(match func(l content.Lesson) bool) []content.Lesson {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	lessons := make([]content.Lesson, 0)
	for _, id := range sortedKeys(repo.db.lessons) {
		if l := repo.db.lessons[id]; match(l) {
			lessons = append(lessons, l)
		}
	}
	return lessons
}

func (repo *contentRepository) QueryLessons(_ context.Context) ([]content.Lesson, error) {
	return repo.queryLessons(func(content.Lesson) bool { return true }), nil
}

func (repo *contentRepository) QueryDayLessons(_ context.Context, dayID int) ([]content.Lesson, error) {
	return repo.queryLessons(func(l content.Lesson) bool { return l.DayID == dayID }), nil
}

func (repo *contentRepository) QueryDayPrograms(_ context.Context, dayID int) ([]content.Program, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	programs := make([]content.Program, 0)
	for _, id := range sortedKeys(repo.db.programs) {
		if p := repo.db.programs[id]; p.DayID == dayID {
			programs = append(programs, p)
		}
	}
	return programs, nil
}

func (repo *contentRepository) QueryLessonNotes(_ context.Context, lessonID int) ([]content.Note, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	notes := make([]content.Note, 0)
	for _, id := range sortedKeys(repo.db.notes) {
		if n := repo.db.notes[id]; n.LessonID == lessonID {
			notes = append(notes, n)
		}
	}
	sort.SliceStable(notes, func(i, j int) bool { return notes[i].CreatedAt.Before(notes[j].CreatedAt) })
	return notes, nil
}

func (repo *contentRepository) GetDay(_ context.Context, id int) (content.Day, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if day, ok := repo.db.days[id]; ok {
		return day, nil
	}
	return content.Day{}, content.ErrNotFound
}

func (repo *contentRepository) GetLesson(_ context.Context, id int) (content.Lesson, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if lesson, ok := repo.db.lessons[id]; ok {
		return lesson, nil
	}
	return content.Lesson{}, content.ErrNotFound
}

func (repo *contentRepository) GetProgram(_ context.Context, id int) (content.Program, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if program, ok := repo.db.programs[id]; ok {
		return program, nil
	}
	return content.Program{}, content.ErrNotFound
}

func (repo *contentRepository) GetNote(_ context.Context, id int) (content.Note, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if note, ok := repo.db.notes[id]; ok {
		return note, nil
	}
	return content.Note{}, content.ErrNotFound
}
