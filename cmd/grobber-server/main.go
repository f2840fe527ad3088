package main

import (
	"flag"
	"net/http"
	"os"
	"time"

	"github.com/nyxmedia/grobber/internal/config"
	"github.com/nyxmedia/grobber/internal/sources"
	"github.com/nyxmedia/grobber/internal/store"
	"github.com/nyxmedia/grobber/internal/streams"
	"github.com/nyxmedia/grobber/internal/util"
	"github.com/nyxmedia/grobber/internal/version"
	"github.com/nyxmedia/grobber/pkg/grobber"
)

func main() {
	if version.HasVersionArg() {
		version.ShowVersion("grobber-server")
		return
	}

	configPath := flag.String("config", "", "path to an optional config file (env vars override it)")
	addr := flag.String("addr", ":8080", "address to listen on")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	util.IsDebug = *debug
	logger := util.InitLogger()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal("load config", "err", err)
	}

	st, err := store.Open(cfg.StoreDSN)
	if err != nil {
		logger.Fatal("open store", "err", err)
	}
	defer st.Close()

	sources.Default.Freeze()
	streams.Default.Freeze()

	client := grobber.NewClient(st)
	router := NewRouter(client, logger)

	server := &http.Server{
		Addr:              *addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("serving", "addr", *addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server exited", "err", err)
		os.Exit(1)
	}
}
