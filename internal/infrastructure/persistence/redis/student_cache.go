package redis

import (
	"context"
	"errors"
	"time"

	"github.com/scholarmaster/campus-attendance/internal/domain/student"
	"github.com/scholarmaster/campus-attendance/pkg/logger"
)

// StudentCache is a read-through cache in front of a student.Repository.
// Reads of single students hit Redis first; writes invalidate.
// Cache failures are logged and fall through to the repository.
type StudentCache struct {
	cache *Cache
	repo  student.Repository
	ttl   time.Duration
	log   *logger.Logger
}

// NewStudentCache wraps repo.
func NewStudentCache(cache *Cache, repo student.Repository, log *logger.Logger) *StudentCache {
	return &StudentCache{
		cache: cache,
		repo:  repo,
		ttl:   TTLStudentCache,
		log:   log.With(logger.Component("student_cache")),
	}
}

// GetByID returns a student, loading it from the repository on a miss.
func (s *StudentCache) GetByID(ctx context.Context, id string) (student.Student, error) {
	var p student.Params
	err := s.cache.Get(ctx, StudentKey(id), &p)
	if err == nil {
		if st, err := student.New(p); err == nil {
			return st, nil
		}
	} else if !errors.Is(err, ErrCacheMiss) {
		s.log.Warn("student cache read failed", logger.StudentID(id), logger.Err(err))
	}

	st, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return student.Student{}, err
	}

	if err := s.cache.Set(ctx, StudentKey(id), st.Params(), s.ttl); err != nil {
		s.log.Warn("student cache write failed", logger.StudentID(id), logger.Err(err))
	}

	return st, nil
}

// Save writes through and drops the cached copy.
func (s *StudentCache) Save(ctx context.Context, st student.Student) error {
	if err := s.repo.Save(ctx, st); err != nil {
		return err
	}
	s.invalidate(ctx, st.ID())
	return nil
}

// Delete removes the student and its cached copy.
func (s *StudentCache) Delete(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.invalidate(ctx, id)
	return nil
}

// List is not cached.
func (s *StudentCache) List(ctx context.Context, opts student.ListOptions) ([]student.Student, error) {
	return s.repo.List(ctx, opts)
}

// FindByClass is not cached.
func (s *StudentCache) FindByClass(ctx context.Context, class student.ClassFilter) ([]student.Student, error) {
	return s.repo.FindByClass(ctx, class)
}

// Count is not cached.
func (s *StudentCache) Count(ctx context.Context) (int, error) {
	return s.repo.Count(ctx)
}

func (s *StudentCache) invalidate(ctx context.Context, id string) {
	if err := s.cache.Delete(ctx, StudentKey(id)); err != nil {
		s.log.Warn("student cache invalidation failed", logger.StudentID(id), logger.Err(err))
	}
}
