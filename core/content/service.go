package content

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/codedays/core"
)

var (
	// errors
	ErrNotFound      = errors.New("not found")
	ErrInvalidChoice = errors.New("not a valid choice")
	ErrInvalidFile   = errors.New("file type not allowed")

	// upload kinds & allowed extensions
	LessonUploadKind  = "lessons"
	ProgramUploadKind = "programs"
	LessonExtensions  = []string{".html", ".htm"}
)

type (
	Repository interface {
		CreateDay(ctx context.Context, day Day) (Day, error)
		CreateLesson(ctx context.Context, lesson Lesson) (Lesson, error)
		CreateProgram(ctx context.Context, program Program) (Program, error)
		CreateNote(ctx context.Context, note Note) (Note, error)
		QueryDays(ctx context.Context) ([]Day, error)
		QueryLessons(ctx context.Context) ([]Lesson, error)
		QueryDayLessons(ctx context.Context, dayID int) ([]Lesson, error)
		QueryDayPrograms(ctx context.Context, dayID int) ([]Program, error)
		QueryLessonNotes(ctx context.Context, lessonID int) ([]Note, error)
		GetDay(ctx context.Context, id int) (Day, error)
		GetLesson(ctx context.Context, id int) (Lesson, error)
		GetProgram(ctx context.Context, id int) (Program, error)
		GetNote(ctx context.Context, id int) (Note, error)
	}

	Service interface {
		CreateDay(ctx context.Context, nd NewDay) (Day, error)
		CreateLesson(ctx context.Context, nl NewLesson, file *core.Upload) (Lesson, error)
		CreateProgram(ctx context.Context, np NewProgram, file *core.Upload) (Program, error)
		CreateNote(ctx context.Context, nn NewNote) (Note, error)
		QueryDays(ctx context.Context) ([]Day, error)
		QueryLessons(ctx context.Context) ([]Lesson, error)
		GetDay(ctx context.Context, id int) (DayDetail, error)
		GetLesson(ctx context.Context, id int) (LessonDetail, error)
		GetProgram(ctx context.Context, id int) (ProgramDetail, error)
		GetNote(ctx context.Context, id int) (NoteDetail, error)
	}

	service struct {
		repo   Repository
		files  core.FileStore
		logger core.Logger
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository, files core.FileStore, logger core.Logger) Service {
	return &service{repo: repo, files: files, logger: logger}
}

func invalidChoice(field string) error {
	return core.NewValidationError(ErrInvalidChoice, core.FieldError{Field: field, Error: ErrInvalidChoice.Error()})
}

func (svc *service) CreateDay(ctx context.Context, nd NewDay) (Day, error) {
	return svc.repo.CreateDay(ctx, Day{Title: nd.Title})
}

func (svc *service) checkDay(ctx context.Context, id int) error {
	if _, err := svc.repo.GetDay(ctx, id); err != nil {
		if errors.Cause(err) == ErrNotFound {
			return invalidChoice("day_id")
		}
		return errors.Wrap(err, "finding day")
	}
	return nil
}

func (svc *service) save(ctx context.Context, kind, field string, file *core.Upload, exts ...string) (string, error) {
	if file == nil || file.Filename == "" {
		return "", nil
	}
	if len(exts) > 0 && !core.HasExtension(file.Filename, exts...) {
		return "", core.NewValidationError(ErrInvalidFile, core.FieldError{Field: field, Error: ErrInvalidFile.Error()})
	}
	path, err := svc.files.Save(ctx, kind, file.Filename, file.Content)
	return path, errors.Wrap(err, "saving "+field)
}

// discard removes an upload whose row was never written.
func (svc *service) discard(path string) {
	if path == "" {
		return
	}
	if err := svc.files.Remove(path); err != nil {
		svc.logger.Error("removing orphan upload", errors.Wrap(err, path))
	}
}

func (svc *service) CreateLesson(ctx context.Context, nl NewLesson, file *core.Upload) (Lesson, error) {
	if err := svc.checkDay(ctx, nl.DayID); err != nil {
		return Lesson{}, err
	}
	path, err := svc.save(ctx, LessonUploadKind, "html_file", file, LessonExtensions...)
	if err != nil {
		return Lesson{}, err
	}
	lesson, err := svc.repo.CreateLesson(ctx, Lesson{Title: nl.Title, DayID: nl.DayID, HTMLFile: path})
	if err != nil {
		svc.discard(path)
		return Lesson{}, err
	}
	return lesson, nil
}

func (svc *service) CreateProgram(ctx context.Context, np NewProgram, file *core.Upload) (Program, error) {
	if err := svc.checkDay(ctx, np.DayID); err != nil {
		return Program{}, err
	}
	path, err := svc.save(ctx, ProgramUploadKind, "source_file", file)
	if err != nil {
		return Program{}, err
	}
	program, err := svc.repo.CreateProgram(ctx, Program{Title: np.Title, DayID: np.DayID, SourceFile: path})
	if err != nil {
		svc.discard(path)
		return Program{}, err
	}
	return program, nil
}

func (svc *service) CreateNote(ctx context.Context, nn NewNote) (Note, error) {
	if _, err := svc.repo.GetLesson(ctx, nn.LessonID); err != nil {
		if errors.Cause(err) == ErrNotFound {
			return Note{}, invalidChoice("lesson_id")
		}
		return Note{}, errors.Wrap(err, "finding lesson")
	}
	return svc.repo.CreateNote(ctx, Note{
		Title:     nn.Title,
		Content:   nn.Content,
		LessonID:  nn.LessonID,
		CreatedAt: time.Now().UTC(),
	})
}

func (svc *service) QueryDays(ctx context.Context) ([]Day, error) {
	return svc.repo.QueryDays(ctx)
}

func (svc *service) QueryLessons(ctx context.Context) ([]Lesson, error) {
	return svc.repo.QueryLessons(ctx)
}

func (svc *service) GetDay(ctx context.Context, id int) (DayDetail, error) {
	day, err := svc.repo.GetDay(ctx, id)
	if err != nil {
		return DayDetail{}, err
	}
	lessons, err := svc.repo.QueryDayLessons(ctx, id)
	if err != nil {
		return DayDetail{}, errors.Wrap(err, "querying lessons")
	}
	programs, err := svc.repo.QueryDayPrograms(ctx, id)
	if err != nil {
		return DayDetail{}, errors.Wrap(err, "querying programs")
	}
	return DayDetail{Day: day, Lessons: lessons, Programs: programs}, nil
}

// readFile returns the content of an uploaded file; ok is false when it does not exist.
func (svc *service) readFile(path string) (content string, ok bool, err error) {
	rc, err := svc.files.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", false, nil
		}
		return "", false, err
	}
	defer rc.Close()

	b, err := io.ReadAll(rc)
	if err != nil {
		return "", false, err
	}
	return string(b), true, nil
}

func (svc *service) GetLesson(ctx context.Context, id int) (LessonDetail, error) {
	lesson, err := svc.repo.GetLesson(ctx, id)
	if err != nil {
		return LessonDetail{}, err
	}
	notes, err := svc.repo.QueryLessonNotes(ctx, id)
	if err != nil {
		return LessonDetail{}, errors.Wrap(err, "querying notes")
	}

	detail := LessonDetail{Lesson: lesson, Notes: notes}
	if lesson.HTMLFile == "" {
		return detail, nil
	}
	src, ok, err := svc.readFile(lesson.HTMLFile)
	switch {
	case err != nil:
		return LessonDetail{}, errors.Wrap(err, "reading lesson file")
	case !ok:
		svc.logger.Warn("lesson file not found: " + lesson.HTMLFile)
		detail.HTML = LessonFileMissing
	default:
		detail.HTML = ExtractLessonHTML(src)
	}
	return detail, nil
}

func (svc *service) GetProgram(ctx context.Context, id int) (ProgramDetail, error) {
	program, err := svc.repo.GetProgram(ctx, id)
	if err != nil {
		return ProgramDetail{}, err
	}

	detail := ProgramDetail{Program: program}
	if program.SourceFile == "" {
		return detail, nil
	}
	src, ok, err := svc.readFile(program.SourceFile)
	if err != nil {
		return ProgramDetail{}, errors.Wrap(err, "reading program file")
	}
	if !ok {
		svc.logger.Warn("program file not found: " + program.SourceFile)
		detail.Code = ProgramFileMissing
		return detail, nil
	}
	if detail.Code, err = HighlightCode(program.SourceFile, src); err != nil {
		return ProgramDetail{}, errors.Wrap(err, "highlighting program")
	}
	return detail, nil
}

func (svc *service) GetNote(ctx context.Context, id int) (NoteDetail, error) {
	note, err := svc.repo.GetNote(ctx, id)
	if err != nil {
		return NoteDetail{}, err
	}
	lesson, err := svc.repo.GetLesson(ctx, note.LessonID)
	if err != nil {
		return NoteDetail{}, errors.Wrap(err, "finding lesson")
	}
	return NoteDetail{Note: note, Lesson: lesson}, nil
}
