// Package di wires the results engine together with a dig.Container.
package di

import (
	"context"
	"log"
	"os"

	"github.com/pkg/errors"
	"go.uber.org/dig"

	"github.com/trezcool/masomo-results/core"
	"github.com/trezcool/masomo-results/core/compilation"
	"github.com/trezcool/masomo-results/core/fee"
	"github.com/trezcool/masomo-results/core/result"
	emailsvc "github.com/trezcool/masomo-results/services/email"
	logsvc "github.com/trezcool/masomo-results/services/logger"
	"github.com/trezcool/masomo-results/services/notify"
	"github.com/trezcool/masomo-results/services/reports"
	"github.com/trezcool/masomo-results/storage/store"
)

type (
	NewConfigFunc func() (*core.Config, error)

	Options struct {
		NewConfig NewConfigFunc // defaults to core.NewConfig
		LogPrefix string
	}
)

func newLoggerFunc(prefix string) func(conf *core.Config) core.Logger {
	return func(conf *core.Config) core.Logger {
		stdLogger := log.New(os.Stdout, prefix, log.LstdFlags)
		return logsvc.NewRollbarLogger(stdLogger, conf)
	}
}

func newDB(conf *core.Config, logger core.Logger) (*store.DB, error) {
	db, err := store.Open(context.Background(), conf)
	if err != nil {
		return nil, errors.Wrap(err, "setting up storage")
	}
	logger.Info("storage ready : engine " + conf.Storage.Engine)
	return db, nil
}

func newEmailService(conf *core.Config, logger core.Logger) core.EmailService {
	if conf.Debug {
		return emailsvc.NewConsoleService(log.New(os.Stdout, "EMAIL : ", 0), conf, logger)
	}
	return emailsvc.NewSendgridService(conf, logger)
}

func newNotifier(conf *core.Config, mailSvc core.EmailService, logger core.Logger) compilation.Notifier {
	return notify.NewAdminNotifier(mailSvc, conf, logger)
}

func newReportGenerator(conf *core.Config, results result.Repository, logger core.Logger) compilation.ReportGenerator {
	return reports.NewBroadsheetGenerator(results, conf, logger)
}

func newAccessGate(gate *fee.Gate) result.AccessGate { return gate }

func newSubmissionListener(scheduler *compilation.Scheduler) result.SubmissionListener {
	return scheduler
}

// New returns a new dependency injection dig.Container
func New(opts Options) *dig.Container {
	if opts.NewConfig == nil {
		opts.NewConfig = core.NewConfig
	}
	c := dig.New()

	must(c.Provide(opts.NewConfig))
	must(c.Provide(newLoggerFunc(opts.LogPrefix)))
	must(c.Provide(core.NewValidator))
	must(c.Provide(newDB))
	must(c.Provide(store.NewResultRepository, dig.As(new(result.Repository), new(fee.ClassResolver))))
	must(c.Provide(store.NewJobRepository, dig.As(new(compilation.Repository))))
	must(c.Provide(store.NewFeeRepository, dig.As(new(fee.Repository))))
	must(c.Provide(newEmailService))
	must(c.Provide(newNotifier))
	must(c.Provide(newReportGenerator))
	must(c.Provide(fee.NewGate))
	must(c.Provide(newAccessGate))
	must(c.Provide(fee.NewService))
	must(c.Provide(compilation.NewScheduler))
	must(c.Provide(newSubmissionListener))
	must(c.Provide(result.NewService))

	return c
}

// must exits program if err happened
func must(err error) {
	if err != nil {
		log.Fatal(errors.Wrap(err, "failed to provide dependency").Error())
	}
}
