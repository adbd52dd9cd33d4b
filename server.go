package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

func newRouter(metricsPath string, reg prometheus.Gatherer) http.Handler {
	if metricsPath == "" {
		log.Warnln("web.telemetry-path is empty, correcting to `/metrics`")
		metricsPath = "/metrics"
	} else if metricsPath[0] != '/' {
		metricsPath = "/" + metricsPath
	}

	r := chi.NewRouter()
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, indexHTML, metricsPath)
	})

	l := log.New()
	l.Level = log.ErrorLevel

	r.Handle(metricsPath, promhttp.HandlerFor(reg, promhttp.HandlerOpts{
		ErrorLog:      l,
		ErrorHandling: promhttp.ContinueOnError,
	}))

	return r
}

func startServer(addr, metricsPath string, reg prometheus.Gatherer) *http.Server {
	srv := &http.Server{
		Addr:              addr,
		Handler:           newRouter(metricsPath, reg),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Infof("Listening for %s on %s", metricsPath, addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorf("metrics server: %v", err)
		}
	}()

	return srv
}

func stopServer(srv *http.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Errorf("metrics server shutdown: %v", err)
	}
}

const indexHTML = `<!doctype html>
<html>
<head>
	<meta charset="UTF-8">
	<title>pingwatch (Version ` + version + `)</title>
</head>
<body>
	<h1>pingwatch</h1>
	<p><a href="%s">Metrics</a></p>
	<h2>More information:</h2>
	<p><a href="https://github.com/czerwonk/pingwatch">github.com/czerwonk/pingwatch</a></p>
</body>
</html>
`
