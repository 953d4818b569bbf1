// Package jobs holds the concrete task types this service runs and
// registers them with a task.Registry.
package jobs

import (
	"errors"
	"log/slog"

	"github.com/go-playground/validator/v10"
	"github.com/phrazzld/scry-queue/internal/task"
)

// Common errors
var (
	ErrNilLogger = errors.New("logger cannot be nil")
	ErrNilCache  = errors.New("cache cannot be nil")
	ErrNilMailer = errors.New("mailer cannot be nil")
)

// Deps are the services task types need at execution time.
type Deps struct {
	Logger *slog.Logger
	Cache  Cache
	Mailer Mailer
}

// Register adds every task type to r. Decoded tasks receive their
// services from deps.
func Register(r *task.Registry, deps Deps) error {
	if deps.Logger == nil {
		return ErrNilLogger
	}
	if deps.Cache == nil {
		return ErrNilCache
	}
	if deps.Mailer == nil {
		return ErrNilMailer
	}

	validate := validator.New()
	cacheLogger := deps.Logger.With("task_type", TypeCacheRebuild)

	return errors.Join(
		r.Register(TypeReverse, func() task.Task {
			return &ReverseTask{}
		}),
		r.Register(TypeCacheRebuild, func() task.Task {
			return &CacheRebuildTask{cache: deps.Cache, logger: cacheLogger}
		}),
		r.Register(TypeSendMail, func() task.Task {
			return &SendMailTask{mailer: deps.Mailer, validate: validate}
		}),
	)
}
