// Command evsd runs a single EVS group-membership peer: it joins the group
// named by its peer list, exposes prometheus metrics, and logs every
// upward view change and delivered payload.
package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jabolina/go-evs/pkg/evs/config"
	"github.com/jabolina/go-evs/pkg/evs/core"
	"github.com/jabolina/go-evs/pkg/evs/definition"
	"github.com/jabolina/go-evs/pkg/evs/types"
)

func main() {
	var (
		listenAddr = flag.String("listen", ":7070", "UDP address to listen on")
		peers      = flag.String("peers", "", "comma-separated UDP addresses of other peers")
		configPath = flag.String("config", "", "optional YAML config file")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "evsd: loading config: %v\n", err)
		os.Exit(1)
	}

	log := definition.NewDefaultLogger(cfg.LogLevel)
	reg := prometheus.NewRegistry()
	metrics := definition.NewMetrics(reg)

	var peerAddrs []string
	if *peers != "" {
		peerAddrs = strings.Split(*peers, ",")
	}
	transport, err := core.NewUDPTransport(*listenAddr, peerAddrs, log)
	if err != nil {
		log.Errorf("evsd: binding transport: %v", err)
		os.Exit(1)
	}

	self := types.NewUUID()
	onUp := func(ev core.UpEvent) {
		switch ev.Kind {
		case core.UpView:
			log.Infof("evsd: view %s id=%v members=%d left=%d partitioned=%d",
				ev.View.Type, ev.View.Id, len(ev.View.Members), len(ev.View.Left), len(ev.View.Partitioned))
			if ev.View.IsEmpty() {
				log.Infof("evsd: empty view delivered, shutting down")
			}
		case core.UpUser:
			log.Debugf("evsd: delivered %d bytes from %s (user_type=%d)", len(ev.Payload), ev.Source, ev.UserType)
		}
	}

	engine := core.NewEngine(self, cfg, transport, log, metrics, onUp)

	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		srv := &http.Server{Addr: cfg.MetricsAddr, Handler: mux}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Warnf("evsd: metrics server stopped: %v", err)
			}
		}()
	}

	go func() {
		defer func() {
			if r := recover(); r != nil {
				if v, ok := r.(*types.ProtocolViolation); ok {
					log.Errorf("evsd: %v, shutting down", v)
					os.Exit(1)
				}
				panic(r)
			}
		}()
		for in := range transport.Listen() {
			engine.HandleUp(in)
		}
	}()

	engine.Start()
	log.Infof("evsd: started as %s listening on %s", self, *listenAddr)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	log.Infof("evsd: signal received, leaving group")
	if err := engine.Leave(); err != nil {
		log.Warnf("evsd: graceful leave failed: %v", err)
	}
	time.Sleep(200 * time.Millisecond)
	engine.Stop()
	_ = transport.Close()
}
