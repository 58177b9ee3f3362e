// Package stats computes the figures of the admin dashboard.
package stats

import (
	"context"

	"github.com/kat-co/vala"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/cornelabs/lms/core"
	"github.com/cornelabs/lms/core/course"
	"github.com/cornelabs/lms/core/user"
)

const DefaultRecentStudentsLimit = 5

var tracer = otel.Tracer("github.com/cornelabs/lms/core/stats")

type (
	AdminStats struct {
		TotalStudents    int `json:"total_students"`
		TotalCourses     int `json:"total_courses"`
		ActiveCourses    int `json:"active_courses"`
		TotalEnrollments int `json:"total_enrollments"`
	}

	RecentStudent struct {
		user.User
		EnrolledCount int `json:"enrolled_count"`
	}

	Repository interface {
		CountUsers(ctx context.Context, role string, exec ...core.DBExecutor) (int, error)
		// CountCourses counts all courses when status is empty.
		CountCourses(ctx context.Context, status string, exec ...core.DBExecutor) (int, error)
		CountEnrollments(ctx context.Context, exec ...core.DBExecutor) (int, error)
		// QueryRecentStudents returns the newest students with the number of courses they are enrolled in.
		QueryRecentStudents(ctx context.Context, limit int, exec ...core.DBExecutor) ([]RecentStudent, error)
	}

	Service interface {
		AdminStats(ctx context.Context) (AdminStats, error)
		RecentStudents(ctx context.Context, limit int) ([]RecentStudent, error)
	}

	service struct {
		repo Repository
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository) Service {
	vala.BeginValidation().Validate(vala.IsNotNil(repo, "repo")).CheckAndPanic()
	return &service{repo: repo}
}

func (svc *service) AdminStats(ctx context.Context) (AdminStats, error) {
	ctx, span := tracer.Start(ctx, "stats.AdminStats")
	defer span.End()

	var stats AdminStats
	g, gctx := errgroup.WithContext(ctx)
	count := func(name string, dst *int, fn func(ctx context.Context) (int, error)) {
		g.Go(func() error {
			ctx, span := tracer.Start(gctx, "stats.count", trace.WithAttributes(attribute.String("stats.name", name)))
			defer span.End()
			n, err := fn(ctx)
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
				return err
			}
			*dst = n
			return nil
		})
	}
	count("total_students", &stats.TotalStudents, func(ctx context.Context) (int, error) {
		return svc.repo.CountUsers(ctx, user.RoleStudent)
	})
	count("total_courses", &stats.TotalCourses, func(ctx context.Context) (int, error) {
		return svc.repo.CountCourses(ctx, "")
	})
	count("active_courses", &stats.ActiveCourses, func(ctx context.Context) (int, error) {
		return svc.repo.CountCourses(ctx, course.StatusPublished)
	})
	count("total_enrollments", &stats.TotalEnrollments, func(ctx context.Context) (int, error) {
		return svc.repo.CountEnrollments(ctx)
	})

	if err := g.Wait(); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return AdminStats{}, err
	}
	return stats, nil
}

func (svc *service) RecentStudents(ctx context.Context, limit int) ([]RecentStudent, error) {
	if limit <= 0 || limit > 50 {
		limit = DefaultRecentStudentsLimit
	}
	return svc.repo.QueryRecentStudents(ctx, limit)
}
