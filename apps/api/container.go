package main

import (
	"context"
	"fmt"
	"log"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/dig"

	"github.com/trezcool/academia/apps/api/echo"
	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/course"
	"github.com/trezcool/academia/core/enrollment"
	"github.com/trezcool/academia/core/user"
	"github.com/trezcool/academia/services/email"
	"github.com/trezcool/academia/services/logger"
	"github.com/trezcool/academia/storage/cache/redis"
	"github.com/trezcool/academia/storage/database"
	"github.com/trezcool/academia/storage/database/inmem"
	"github.com/trezcool/academia/storage/database/sqlx"
)

type DBLoggerParam struct {
	dig.In
	Logger core.Logger `name:"dbLogger"`
}

// storeCloser releases the store connections.
type storeCloser func() error

type repositories struct {
	dig.Out
	Users       user.Repository
	Courses     course.Repository
	Enrollments enrollment.Repository
	Close       storeCloser
}

type serverParams struct {
	dig.In
	Conf          *core.Config
	Logger        core.Logger
	UserSvc       *user.Service
	CourseSvc     *course.Service
	EnrollmentSvc *enrollment.Service
	Translator    ut.Translator
	Registry      *prometheus.Registry
}

func newRollbarLogger(conf *core.Config, name string) (core.Logger, error) {
	zl, err := logsvc.NewZapLogger(conf, name)
	if err != nil {
		return nil, err
	}
	logger := logsvc.NewRollbarLogger(zl, conf)
	logger.Enable(!conf.Debug && conf.RollbarToken != "")
	return logger, nil
}

func newLogger(conf *core.Config) (core.Logger, error) {
	return newRollbarLogger(conf, "API")
}

func newDBLogger(conf *core.Config) (core.Logger, error) {
	return newRollbarLogger(conf, "DB")
}

func newRepositories(conf *core.Config, loggerParam DBLoggerParam) (repositories, error) {
	var repos repositories
	var closers []func() error
	dbLogger := loggerParam.Logger

	switch conf.Database.Engine {
	case core.EngineInmem:
		db := inmemdb.Open()
		repos.Users = inmemdb.NewUserRepository(db)
		repos.Courses = inmemdb.NewCourseRepository(db)
		repos.Enrollments = inmemdb.NewEnrollmentRepository(db)
		dbLogger.Info("using the in-memory store")

	case core.EnginePostgres:
		if err := database.CreateIfNotExist(conf); err != nil {
			return repos, errors.Wrap(err, "creating database")
		}
		db, err := database.Open(conf)
		if err != nil {
			return repos, err
		}
		closers = append(closers, db.Close)
		if err = database.Migrate(db); err != nil {
			_ = db.Close()
			return repos, err
		}
		repos.Users = sqlxrepos.NewUserRepository(db)
		repos.Courses = sqlxrepos.NewCourseRepository(db)
		repos.Enrollments = sqlxrepos.NewEnrollmentRepository(db)
		dbLogger.Info(fmt.Sprintf("connected to postgres at %s", conf.Database.Address()))

	default:
		return repos, errors.Errorf("unknown database engine %q", conf.Database.Engine)
	}

	if conf.Redis.Address != "" {
		rdb, err := rediscache.Open(context.Background(), conf)
		if err != nil {
			for _, closeFn := range closers {
				_ = closeFn()
			}
			return repos, err
		}
		closers = append(closers, rdb.Close)
		repos.Courses = rediscache.NewCourseRepository(repos.Courses, rdb, conf.Redis.CacheTTL, dbLogger)
		repos.Enrollments = rediscache.NewEnrollmentRepository(repos.Enrollments, rdb, dbLogger)
		dbLogger.Info(fmt.Sprintf("caching courses in redis at %s", conf.Redis.Address))
	}

	repos.Close = func() error {
		var firstErr error
		for _, closeFn := range closers {
			if err := closeFn(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		return firstErr
	}
	return repos, nil
}

func newEmailService(conf *core.Config, logger core.Logger) core.EmailService {
	if conf.Debug || conf.SendgridAPIKey == "" {
		return emailsvc.NewConsoleService(conf, logger)
	}
	return emailsvc.NewSendgridService(conf, logger)
}

func newValidator() *validator.Validate {
	return validator.New()
}

func newTranslator() ut.Translator {
	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")
	return translator
}

func newServer(p serverParams) *echoapi.Server {
	return echoapi.NewServer(echoapi.ServerDeps{
		Conf:          p.Conf,
		Logger:        p.Logger,
		UserSvc:       p.UserSvc,
		CourseSvc:     p.CourseSvc,
		EnrollmentSvc: p.EnrollmentSvc,
		Translator:    p.Translator,
		Registry:      p.Registry,
	})
}

// newContainer returns a new dependency injection dig.Container
func newContainer() *dig.Container {
	c := dig.New()

	must(c.Provide(core.NewConfig))
	must(c.Provide(newLogger))
	must(c.Provide(newDBLogger, dig.Name("dbLogger")))
	must(c.Provide(newRepositories))
	must(c.Provide(newEmailService))
	must(c.Provide(newValidator))
	must(c.Provide(newTranslator))
	must(c.Provide(prometheus.NewRegistry))
	must(c.Provide(user.NewService))
	must(c.Provide(course.NewService))
	must(c.Provide(enrollment.NewService))
	must(c.Provide(newServer))

	return c
}

// must exits program if err happened
func must(err error) {
	if err != nil {
		log.Fatal(errors.Wrap(err, "failed to provide dependency").Error())
	}
}
