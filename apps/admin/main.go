package main

import (
	"log"
	"os"

	"github.com/trezcool/masomo-results/apps/di"
	"github.com/trezcool/masomo-results/core/compilation"
	"github.com/trezcool/masomo-results/core/fee"
	"github.com/trezcool/masomo-results/core/result"
	"github.com/trezcool/masomo-results/core/user"
	"github.com/trezcool/masomo-results/storage/store"
)

var (
	logger *log.Logger

	// operator is the actor behind every admin command.
	operator = user.User{ID: "admin:cli", Name: "Admin CLI", Roles: user.AdminRoles}
)

func main() {
	logger = log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)

	c := di.New(di.Options{LogPrefix: "ADMIN : "})
	var code int
	err := c.Invoke(func(db *store.DB, resSvc *result.Service, feeSvc *fee.Service, scheduler *compilation.Scheduler) {
		defer func() { _ = db.Close() }()

		cli := commandLine{
			out:       os.Stdout,
			actor:     operator,
			results:   resSvc,
			fees:      feeSvc,
			scheduler: scheduler,
		}
		if err := cli.run(os.Args); err != nil {
			if err != errHelp {
				logger.Printf("\nerror: %s\n", err)
			}
			code = 1
		}
	})
	errAndDie(err)
	os.Exit(code)
}

func errAndDie(err error) {
	if err != nil {
		logger.Fatal(err)
	}
}
