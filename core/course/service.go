package course

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/user"
)

var (
	// errors
	ErrNotFound        = core.NewError(core.KindNotFound, "Course not found")
	ErrForbidden       = core.NewError(core.KindForbidden, "Access denied")
	ErrInstructorsOnly = core.NewError(core.KindForbidden, "Only instructors can create courses")
	ErrNotPublished    = core.NewError(core.KindCourseNotPublished, "Course is not published")
)

type (
	Repository interface {
		CreateCourse(ctx context.Context, c Course) (Course, error)
		GetCourse(ctx context.Context, id string) (Course, error)
		// FilterCourses applies AND operation on the non-zero Filter fields.
		// Filter.Search does a case-insensitive substring match on Course.Title or Course.Description.
		// Results are sorted by orderings, then by ID.
		FilterCourses(ctx context.Context, filter Filter, orderings []core.DBOrdering) ([]Course, error)
		UpdateCourse(ctx context.Context, c Course) (Course, error)
		// DeleteCourse deletes the course and every enrollment referencing it, atomically.
		DeleteCourse(ctx context.Context, id string) error
	}

	Service struct {
		repo     Repository
		users    user.Repository
		validate *validator.Validate
	}
)

func NewService(repo Repository, users user.Repository, validate *validator.Validate) *Service {
	return &Service{repo: repo, users: users, validate: validate}
}

// Create persists a new Draft course owned by the caller, who must be an instructor.
func (svc *Service) Create(ctx context.Context, caller user.Principal, nc NewCourse) (Course, error) {
	if !caller.Can(user.CapManageCourses) {
		return Course{}, ErrInstructorsOnly
	}
	nc.Clean()
	if err := svc.validate.Struct(nc); err != nil {
		return Course{}, err
	}

	now := time.Now().UTC()
	c := Course{
		Title:              nc.Title,
		Description:        nc.Description,
		Category:           nc.Category,
		Level:              nc.Level,
		Price:              nc.Price,
		DiscountPrice:      nc.DiscountPrice,
		Thumbnail:          nc.Thumbnail,
		InstructorID:       caller.UserID,
		LearningOutcomes:   nonNil(nc.LearningOutcomes),
		Requirements:       nonNil(nc.Requirements),
		TargetAudience:     nonNil(nc.TargetAudience),
		Modules:            nc.Modules,
		Status:             StatusDraft,
		EnrolledStudentIDs: []string{},
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if c.Modules == nil {
		c.Modules = []Module{}
	}
	c, err := svc.repo.CreateCourse(ctx, c)
	return c, errors.Wrap(err, "creating course")
}

// ListPublished returns the public catalog, newest first unless orderings say otherwise.
func (svc *Service) ListPublished(ctx context.Context, qf QueryFilter, orderings []core.DBOrdering) ([]Course, error) {
	qf.Clean()
	if err := core.CheckOrderings(orderings, OrderingFields...); err != nil {
		return nil, err
	}
	if len(orderings) == 0 {
		orderings = defaultOrdering
	}
	courses, err := svc.repo.FilterCourses(ctx, Filter{QueryFilter: qf, Status: StatusPublished}, orderings)
	return courses, errors.Wrap(err, "filtering published courses")
}

// ListByInstructor returns every course (any status) owned by ownerID, newest first.
func (svc *Service) ListByInstructor(ctx context.Context, ownerID string) ([]Course, error) {
	courses, err := svc.repo.FilterCourses(ctx, Filter{InstructorID: ownerID}, defaultOrdering)
	return courses, errors.Wrap(err, "filtering instructor courses")
}

func (svc *Service) GetByID(ctx context.Context, id string) (Course, error) {
	return svc.repo.GetCourse(ctx, id)
}

// Views attaches the instructor to each course, looking every owner up once.
func (svc *Service) Views(ctx context.Context, courses ...Course) ([]View, error) {
	instructors := make(map[string]*Instructor)
	views := make([]View, 0, len(courses))
	for _, c := range courses {
		inst, seen := instructors[c.InstructorID]
		if !seen {
			usr, err := svc.users.GetUserByID(ctx, c.InstructorID)
			switch {
			case err == nil:
				inst = &Instructor{ID: usr.ID, Name: usr.Name}
			case errors.Cause(err) != user.ErrNotFound:
				return nil, errors.Wrap(err, "finding instructor")
			}
			instructors[c.InstructorID] = inst
		}
		views = append(views, View{Course: c, Instructor: inst})
	}
	return views, nil
}

func (svc *Service) getOwned(ctx context.Context, id, callerID string) (Course, error) {
	c, err := svc.repo.GetCourse(ctx, id)
	if err != nil {
		return Course{}, err
	}
	if !c.IsOwnedBy(callerID) {
		return Course{}, ErrForbidden
	}
	return c, nil
}

// Update merges the patch into the course owned by callerID.
func (svc *Service) Update(ctx context.Context, id, callerID string, uc UpdateCourse) (Course, error) {
	c, err := svc.getOwned(ctx, id, callerID)
	if err != nil {
		return Course{}, err
	}
	if err = svc.validate.Struct(uc); err != nil {
		return Course{}, err
	}

	uc.apply(&c)
	if err = svc.validate.Struct(toNewCourse(c)); err != nil {
		return Course{}, err
	}
	c.UpdatedAt = time.Now().UTC()
	c, err = svc.repo.UpdateCourse(ctx, c)
	return c, errors.Wrap(err, "updating course")
}

// Delete removes the course owned by callerID along with its enrollments.
func (svc *Service) Delete(ctx context.Context, id, callerID string) error {
	if _, err := svc.getOwned(ctx, id, callerID); err != nil {
		return err
	}
	return errors.Wrap(svc.repo.DeleteCourse(ctx, id), "deleting course")
}

func toNewCourse(c Course) NewCourse {
	return NewCourse{
		Title:            c.Title,
		Description:      c.Description,
		Category:         c.Category,
		Level:            c.Level,
		Price:            c.Price,
		DiscountPrice:    c.DiscountPrice,
		Thumbnail:        c.Thumbnail,
		LearningOutcomes: c.LearningOutcomes,
		Requirements:     c.Requirements,
		TargetAudience:   c.TargetAudience,
		Modules:          c.Modules,
	}
}

func nonNil(ss []string) []string {
	if ss == nil {
		return []string{}
	}
	return ss
}
