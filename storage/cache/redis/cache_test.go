package rediscache_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/academia/core/course"
	"github.com/trezcool/academia/core/enrollment"
	"github.com/trezcool/academia/storage/cache/redis"
	"github.com/trezcool/academia/storage/database/inmem"
	"github.com/trezcool/academia/tests"
)

const cacheKeyPrefix = "academia:course:"

type cached struct {
	mr          *miniredis.Miniredis
	store       course.Repository // uncached
	courses     course.Repository
	enrollments enrollment.Repository
}

func setup(t *testing.T) cached {
	t.Helper()
	mr := miniredis.RunT(t)

	conf := testutil.NewConfig(t)
	conf.Redis.Address = mr.Addr()
	rdb, err := rediscache.Open(context.Background(), conf)
	require.NoError(t, err)
	t.Cleanup(func() { _ = rdb.Close() })

	logger := testutil.NewLogger(t, conf)
	db := inmemdb.Open()
	store := inmemdb.NewCourseRepository(db)
	return cached{
		mr:          mr,
		store:       store,
		courses:     rediscache.NewCourseRepository(store, rdb, time.Minute, logger),
		enrollments: rediscache.NewEnrollmentRepository(inmemdb.NewEnrollmentRepository(db), rdb, logger),
	}
}

func TestCourseRepository_GetCourse(t *testing.T) {
	env := setup(t)
	ctx := context.Background()
	c := testutil.CreateCourse(t, env.courses, "prof", "Go", "Programming", course.StatusPublished, nil)

	t.Run("unknown course is not cached", func(t *testing.T) {
		_, err := env.courses.GetCourse(ctx, "lol")
		assert.Equal(t, course.ErrNotFound, err)
		assert.False(t, env.mr.Exists(cacheKeyPrefix+"lol"))
	})

	t.Run("read-through", func(t *testing.T) {
		got, err := env.courses.GetCourse(ctx, c.ID)
		require.NoError(t, err)
		assert.Equal(t, c.Title, got.Title)
		assert.True(t, env.mr.Exists(cacheKeyPrefix+c.ID))
		assert.Equal(t, time.Minute, env.mr.TTL(cacheKeyPrefix+c.ID))

		// a write that bypasses the cache is not seen until the key expires
		stale := c
		stale.Title = "Go (2nd edition)"
		_, err = env.store.UpdateCourse(ctx, stale)
		require.NoError(t, err)

		got, err = env.courses.GetCourse(ctx, c.ID)
		require.NoError(t, err)
		assert.Equal(t, "Go", got.Title)

		env.mr.FastForward(2 * time.Minute)
		got, err = env.courses.GetCourse(ctx, c.ID)
		require.NoError(t, err)
		assert.Equal(t, "Go (2nd edition)", got.Title)
	})

	t.Run("corrupted entry falls back to the store", func(t *testing.T) {
		require.NoError(t, env.mr.Set(cacheKeyPrefix+c.ID, "{lol"))
		got, err := env.courses.GetCourse(ctx, c.ID)
		require.NoError(t, err)
		assert.Equal(t, c.ID, got.ID)
	})

	t.Run("redis down falls back to the store", func(t *testing.T) {
		env.mr.SetError("LOADING")
		defer env.mr.SetError("")
		got, err := env.courses.GetCourse(ctx, c.ID)
		require.NoError(t, err)
		assert.Equal(t, c.ID, got.ID)
	})
}

func TestCourseRepository_invalidation(t *testing.T) {
	env := setup(t)
	ctx := context.Background()
	c := testutil.CreateCourse(t, env.courses, "prof", "Go", "Programming", course.StatusPublished, nil)
	key := cacheKeyPrefix + c.ID

	_, err := env.courses.GetCourse(ctx, c.ID)
	require.NoError(t, err)
	require.True(t, env.mr.Exists(key))

	t.Run("update", func(t *testing.T) {
		upd := c
		upd.Title = "Go, updated"
		_, err := env.courses.UpdateCourse(ctx, upd)
		require.NoError(t, err)
		assert.False(t, env.mr.Exists(key))

		got, err := env.courses.GetCourse(ctx, c.ID)
		require.NoError(t, err)
		assert.Equal(t, "Go, updated", got.Title)
	})

	t.Run("enroll", func(t *testing.T) {
		require.True(t, env.mr.Exists(key))
		testutil.Enroll(t, env.enrollments, "pupil", c.ID)
		assert.False(t, env.mr.Exists(key))

		got, err := env.courses.GetCourse(ctx, c.ID)
		require.NoError(t, err)
		assert.Equal(t, []string{"pupil"}, got.EnrolledStudentIDs)
	})

	t.Run("delete", func(t *testing.T) {
		require.True(t, env.mr.Exists(key))
		require.NoError(t, env.courses.DeleteCourse(ctx, c.ID))
		assert.False(t, env.mr.Exists(key))

		_, err := env.courses.GetCourse(ctx, c.ID)
		assert.Equal(t, course.ErrNotFound, err)
	})
}

// interleavedStore runs a write right after the store read of a cache miss.
type interleavedStore struct {
	course.Repository
	between func()
}

func (s *interleavedStore) GetCourse(ctx context.Context, id string) (course.Course, error) {
	c, err := s.Repository.GetCourse(ctx, id)
	if s.between != nil {
		between := s.between
		s.between = nil
		between()
	}
	return c, err
}

func TestCourseRepository_writeDuringMiss(t *testing.T) {
	env := setup(t)
	ctx := context.Background()
	conf := testutil.NewConfig(t)
	rdb := redis.NewClient(&redis.Options{Addr: env.mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	store := &interleavedStore{Repository: env.store}
	courses := rediscache.NewCourseRepository(store, rdb, time.Minute, testutil.NewLogger(t, conf))

	t.Run("update", func(t *testing.T) {
		c := testutil.CreateCourse(t, env.store, "prof", "Go", "Programming", course.StatusPublished, nil)
		store.between = func() {
			upd := c
			upd.Status = course.StatusDraft
			_, err := courses.UpdateCourse(ctx, upd)
			require.NoError(t, err)
		}

		got, err := courses.GetCourse(ctx, c.ID)
		require.NoError(t, err)
		assert.Equal(t, course.StatusPublished, got.Status) // loaded before the write
		assert.False(t, env.mr.Exists(cacheKeyPrefix+c.ID))

		got, err = courses.GetCourse(ctx, c.ID)
		require.NoError(t, err)
		assert.Equal(t, course.StatusDraft, got.Status)
	})

	t.Run("delete", func(t *testing.T) {
		c := testutil.CreateCourse(t, env.store, "prof", "Rust", "Programming", course.StatusPublished, nil)
		store.between = func() {
			require.NoError(t, courses.DeleteCourse(ctx, c.ID))
		}

		_, err := courses.GetCourse(ctx, c.ID)
		require.NoError(t, err)
		assert.False(t, env.mr.Exists(cacheKeyPrefix+c.ID))

		_, err = courses.GetCourse(ctx, c.ID)
		assert.Equal(t, course.ErrNotFound, err)
	})

	t.Run("enroll into a course turned draft", func(t *testing.T) {
		c := testutil.CreateCourse(t, env.store, "prof", "Zig", "Programming", course.StatusPublished, nil)
		_, err := courses.GetCourse(ctx, c.ID) // cached as published
		require.NoError(t, err)

		// the draft switch goes around the cache
		upd := c
		upd.Status = course.StatusDraft
		_, err = env.store.UpdateCourse(ctx, upd)
		require.NoError(t, err)

		_, err = env.enrollments.CreateEnrollment(ctx, enrollment.Enrollment{UserID: "pupil", CourseID: c.ID, EnrolledAt: time.Now(), UpdatedAt: time.Now()})
		assert.Equal(t, course.ErrNotPublished, err)
	})
}
