package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/trezcool/masomo-results/apps/di"
	"github.com/trezcool/masomo-results/core"
	"github.com/trezcool/masomo-results/core/compilation"
	"github.com/trezcool/masomo-results/storage/store"
)

func main() {
	c := di.New(di.Options{LogPrefix: "RESULTSD : "})

	err := c.Invoke(func(conf *core.Config, logger core.Logger, db *store.DB, scheduler *compilation.Scheduler) error {
		logger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))
		defer func() {
			if err := db.Close(); err != nil {
				logger.Error(fmt.Sprintf("closing storage: %v", err), err)
			}
		}()
		defer logger.Info("Application stopped")

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if err := scheduler.Start(ctx); err != nil {
			return err
		}
		<-ctx.Done()
		logger.Info("shutdown requested")
		scheduler.Stop()
		return nil
	})
	if err != nil {
		log.Fatal(err)
	}
}
