package logsvc

import (
	"log"
	"os"

	"github.com/rollbar/rollbar-go"
	"github.com/rollbar/rollbar-go/errors"

	"github.com/trezcool/masomo-results/core"
	"github.com/trezcool/masomo-results/core/result"
	"github.com/trezcool/masomo-results/core/user"
)

// RollbarLogger reports to Rollbar and mirrors every entry to a std logger.
//
// Recognised args: an error (reported with its stack), a user.User (the Rollbar person) and
// a result.GroupKey (attached as custom data). Anything else is printed as is.
type RollbarLogger struct {
	std *log.Logger
}

var _ core.Logger = (*RollbarLogger)(nil)

func NewRollbarLogger(std *log.Logger, conf *core.Config) *RollbarLogger {
	host, _ := os.Hostname()
	rollbar.SetToken(conf.RollbarToken)
	rollbar.SetEnvironment(conf.Env)
	rollbar.SetServerHost(host)
	rollbar.SetCodeVersion(conf.Build)
	rollbar.SetStackTracer(errors.StackTracer)
	rollbar.SetEnabled(conf.RollbarToken != "" && !conf.Debug && !conf.TestMode)
	return &RollbarLogger{std: std}
}

func (l RollbarLogger) Debug(msg string, args ...interface{}) {
	l.log(rollbar.DEBUG, "DEBUG", msg, args)
}

func (l RollbarLogger) Info(msg string, args ...interface{}) {
	l.log(rollbar.INFO, "INFO", msg, args)
}

func (l RollbarLogger) Warn(msg string, args ...interface{}) {
	l.log(rollbar.WARN, "WARN", msg, args)
}

func (l RollbarLogger) Error(msg string, args ...interface{}) {
	l.log(rollbar.ERR, "ERROR", msg, args)
}

func (l RollbarLogger) Fatal(msg string, args ...interface{}) {
	l.log(rollbar.CRIT, "FATAL", msg, args)
	rollbar.Wait()
	l.std.Fatal(msg)
}

func (l RollbarLogger) log(level, label, msg string, args []interface{}) {
	l.std.Printf("%s: %s", label, msg)

	report := []interface{}{msg}
	custom := map[string]interface{}{}
	var actor *user.User
	for _, arg := range args {
		switch a := arg.(type) {
		case user.User:
			if actor == nil {
				actor = &a
			}
			l.std.Printf("  actor: %s", a.ID)
		case result.GroupKey:
			custom["group"] = a.String()
			l.std.Printf("  group: %s", a)
		default:
			report = append(report, arg)
			l.std.Printf("  %+v", arg)
		}
	}

	if actor != nil {
		rollbar.SetPerson(actor.ID, actor.Name, actor.Email)
	} else {
		rollbar.ClearPerson()
	}
	if len(custom) > 0 {
		report = append(report, custom)
	}
	rollbar.Log(level, report...)
}
