package main

import (
	"context"
	"flag"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/netopshq/switchyard/config"
	"github.com/netopshq/switchyard/internal/adminapi"
	"github.com/netopshq/switchyard/internal/app"
	"github.com/netopshq/switchyard/internal/webserver"
)

var (
	h        = flag.Bool("h", false, "help usage")
	showVer  = flag.Bool("v", false, "show version")
	conffile = flag.String("c", "/etc/switchyard.yml", "config file")
	initdb   = flag.Bool("initdb", false, "drop and recreate the database schema, then exit")
)

var (
	BuildVersion = "dev"
	BuildTime    = ""
)

func main() {
	flag.Parse()
	if *h {
		flag.Usage()
		return
	}
	if *showVer {
		fmt.Printf("switchyard %s %s\n", BuildVersion, BuildTime)
		return
	}

	cfg := config.LoadConfig(*conffile)
	cfg.InitDirs()

	application := app.NewApplication(cfg)
	application.Init(cfg)
	defer application.Release()

	if *initdb {
		application.InitDb()
		zap.L().Info("database initialized")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	webserver.Init(application, cfg.System.Debug)
	adminapi.InitRouter()

	application.StartSchedulerService(ctx)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		zap.L().Info("admin api listening",
			zap.String("host", cfg.Web.Host), zap.Int("port", cfg.Web.Port))
		return webserver.Start(cfg.Web.Host, cfg.Web.Port)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return webserver.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		zap.L().Fatal("server exited", zap.Error(err))
	}
	zap.L().Info("shutdown complete")
}
