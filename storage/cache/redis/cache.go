package rediscache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/course"
	"github.com/trezcool/academia/core/enrollment"
)

const coursePrefix = "academia:course:"

// generationTTL outlives any cached entry written against a generation.
const generationTTL = 24 * time.Hour

func courseKey(id string) string { return coursePrefix + id }
func generationKey(id string) string { return coursePrefix + id + ":gen" }

// setIfGeneration caches a course only if it was not invalidated since its generation was read.
// KEYS: course, generation; ARGV: payload, generation read, ttl in ms (0 = no expiry).
var setIfGeneration = redis.NewScript(`
local gen = redis.call("GET", KEYS[2]) or "0"
if gen ~= ARGV[2] then
	return 0
end
if tonumber(ARGV[3]) > 0 then
	redis.call("SET", KEYS[1], ARGV[1], "PX", ARGV[3])
else
	redis.call("SET", KEYS[1], ARGV[1])
end
return 1
`)

// Open connects to redis and checks the connection.
func Open(ctx context.Context, conf *core.Config) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     conf.Redis.Address,
		Password: conf.Redis.Password,
		DB:       conf.Redis.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, errors.Wrap(err, "pinging redis")
	}
	return rdb, nil
}

// courseRepository is a read-through cache in front of a course.Repository.
// Only single courses are cached; filtered lists always hit the store.
type courseRepository struct {
	course.Repository
	rdb    redis.Cmdable
	ttl    time.Duration
	logger core.Logger
}

var _ course.Repository = (*courseRepository)(nil)

func NewCourseRepository(next course.Repository, rdb redis.Cmdable, ttl time.Duration, logger core.Logger) course.Repository {
	return &courseRepository{Repository: next, rdb: rdb, ttl: ttl, logger: logger}
}

func (repo *courseRepository) GetCourse(ctx context.Context, id string) (course.Course, error) {
	key := courseKey(id)

	data, err := repo.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var c course.Course
		if err = json.Unmarshal(data, &c); err == nil {
			return c, nil
		}
		repo.logger.Warn("decoding cached course", err)
	case err != redis.Nil:
		repo.logger.Warn("reading course cache", err)
	}

	gen, err := repo.rdb.Get(ctx, generationKey(id)).Result()
	switch {
	case err == redis.Nil:
		gen = "0"
	case err != nil:
		repo.logger.Warn("reading course cache generation", err)
		return repo.Repository.GetCourse(ctx, id)
	}

	c, err := repo.Repository.GetCourse(ctx, id)
	if err != nil {
		return course.Course{}, err
	}
	if data, err = json.Marshal(c); err == nil {
		keys := []string{key, generationKey(id)}
		if err = setIfGeneration.Run(ctx, repo.rdb, keys, data, gen, repo.ttl.Milliseconds()).Err(); err != nil {
			repo.logger.Warn("writing course cache", err)
		}
	}
	return c, nil
}

func (repo *courseRepository) UpdateCourse(ctx context.Context, c course.Course) (course.Course, error) {
	updated, err := repo.Repository.UpdateCourse(ctx, c)
	if err != nil {
		return course.Course{}, err
	}
	invalidate(ctx, repo.rdb, repo.logger, c.ID)
	return updated, nil
}

func (repo *courseRepository) DeleteCourse(ctx context.Context, id string) error {
	if err := repo.Repository.DeleteCourse(ctx, id); err != nil {
		return err
	}
	invalidate(ctx, repo.rdb, repo.logger, id)
	return nil
}

// enrollmentRepository drops the cached course whenever its enrolled students change.
type enrollmentRepository struct {
	enrollment.Repository
	rdb    redis.Cmdable
	logger core.Logger
}

var _ enrollment.Repository = (*enrollmentRepository)(nil)

func NewEnrollmentRepository(next enrollment.Repository, rdb redis.Cmdable, logger core.Logger) enrollment.Repository {
	return &enrollmentRepository{Repository: next, rdb: rdb, logger: logger}
}

func (repo *enrollmentRepository) CreateEnrollment(ctx context.Context, e enrollment.Enrollment) (enrollment.Enrollment, error) {
	created, err := repo.Repository.CreateEnrollment(ctx, e)
	if err != nil {
		return enrollment.Enrollment{}, err
	}
	invalidate(ctx, repo.rdb, repo.logger, e.CourseID)
	return created, nil
}

// invalidate drops the cached course and bumps its generation,
// so a read that loaded the course before the write cannot cache it afterwards.
func invalidate(ctx context.Context, rdb redis.Cmdable, logger core.Logger, courseID string) {
	_, err := rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, courseKey(courseID))
		pipe.Incr(ctx, generationKey(courseID))
		pipe.Expire(ctx, generationKey(courseID), generationTTL)
		return nil
	})
	if err != nil {
		logger.Error("invalidating course cache", err)
	}
}
