package main

import (
	"bufio"
	"context"
	"flag"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/EgorLis/arcorclient/internal/config"
	"github.com/EgorLis/arcorclient/internal/console"
	"github.com/EgorLis/arcorclient/internal/logging"
	"github.com/EgorLis/arcorclient/internal/session"
)

func must(err error) {
	if err != nil {
		color.New(color.FgRed).Fprintln(os.Stderr, "arcorctl:", err)
		os.Exit(1)
	}
}

func main() {
	cfgPath := flag.String("config", "conf/arcor.toml", "config file (.toml, .yaml, .json)")
	user := flag.String("user", "", "user name to register (overrides config)")
	url := flag.String("url", "", "server url (overrides config)")
	metrics := flag.String("metrics", "", "serve /metrics on this address, e.g. :9109")
	flag.Parse()

	// .env is optional
	_ = godotenv.Load()

	store := config.NewStore(*cfgPath)
	must(store.Load())
	cfg := store.Config()
	must(cfg.ApplyEnv())
	if *url != "" {
		cfg.URL = *url
	}
	if *user != "" {
		cfg.UserName = *user
	}
	if cfg.UserName == "" {
		cfg.UserName, _ = os.Hostname()
	}
	must(cfg.Validate())

	logger, err := logging.Setup(cfg.Log)
	must(err)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := session.Dial(ctx, cfg, session.WithLogger(logger))
	must(err)
	defer s.Close()
	// os.Exit skips deferred calls
	fail := func(err error) {
		if err != nil {
			_ = s.Close()
			must(err)
		}
	}

	if *metrics != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(s.Metrics(), promhttp.HandlerOpts{}))
		srv := &http.Server{Addr: *metrics, Handler: mux}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Str("addr", *metrics).Msg("metrics server")
			}
		}()
		defer srv.Close()
	}

	closed := make(chan struct{})
	s.Closed.Subscribe(func(ci session.CloseInfo) {
		log.Warn().Int("code", ci.Code).Str("reason", ci.Reason).Msg("server connection closed")
		close(closed)
	})
	s.NavigationChanged.Subscribe(func(n session.Navigation) {
		fmt.Println(color.CyanString("[nav]"), n)
	})

	fail(s.Initialize())
	fail(s.RegisterAndSubscribe(cfg.UserName))

	c := console.New(s, store)
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(os.Stdin)
		for sc.Scan() {
			lines <- sc.Text()
		}
	}()

	fmt.Println("connected to", cfg.URL, "as", cfg.UserName, "- type help, Ctrl+C to stop")
	for {
		select {
		case <-ctx.Done():
			return
		case <-closed:
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			out, err := c.Handle(line)
			if err != nil {
				fmt.Println(color.RedString("err:"), err)
				continue
			}
			if out != "" {
				fmt.Println(out)
			}
		}
	}
}
