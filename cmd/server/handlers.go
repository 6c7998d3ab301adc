package main

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/pprof"
	"strings"

	"github.com/rs/cors"

	"tappytrade.io/internal/persistence/indexdb"
	"tappytrade.io/internal/sim/farms"
)

type handlerDeps struct {
	farms   *farms.Manager
	ws      http.Handler
	index   *indexdb.SQLiteStore
	mirror  *saveMirror
	origins []string
	admin   bool
	pprof   bool
}

func newHandler(d handlerDeps) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})

	mux.HandleFunc("/metrics", func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")
		fmt.Fprintf(rw, "# HELP tappytrade_loaded_farms Farms with a running engine.\n")
		fmt.Fprintf(rw, "# TYPE tappytrade_loaded_farms gauge\n")
		fmt.Fprintf(rw, "tappytrade_loaded_farms %d\n", len(d.farms.Players()))
		if d.index != nil {
			s := d.index.Stats()
			fmt.Fprintf(rw, "# HELP tappytrade_index_queue_depth Pending index writes.\n")
			fmt.Fprintf(rw, "# TYPE tappytrade_index_queue_depth gauge\n")
			fmt.Fprintf(rw, "tappytrade_index_queue_depth %d\n", s.QueueDepth)
			fmt.Fprintf(rw, "# HELP tappytrade_index_drop_total Index writes dropped on a full queue.\n")
			fmt.Fprintf(rw, "# TYPE tappytrade_index_drop_total counter\n")
			fmt.Fprintf(rw, "tappytrade_index_drop_total{kind=%q} %d\n", "audit", s.DropAuditTotal)
			fmt.Fprintf(rw, "tappytrade_index_drop_total{kind=%q} %d\n", "catch_up", s.DropCatchUpTotal)
		}
		if s, ok := d.mirror.Stats(); ok {
			fmt.Fprintf(rw, "# HELP tappytrade_mirror_queue_depth Saves waiting for the redis mirror.\n")
			fmt.Fprintf(rw, "# TYPE tappytrade_mirror_queue_depth gauge\n")
			fmt.Fprintf(rw, "tappytrade_mirror_queue_depth %d\n", s.QueueDepth)
			fmt.Fprintf(rw, "# HELP tappytrade_mirror_total Mirror outcomes.\n")
			fmt.Fprintf(rw, "# TYPE tappytrade_mirror_total counter\n")
			fmt.Fprintf(rw, "tappytrade_mirror_total{result=%q} %d\n", "enqueued", s.EnqueuedTotal)
			fmt.Fprintf(rw, "tappytrade_mirror_total{result=%q} %d\n", "dropped", s.DroppedTotal)
			fmt.Fprintf(rw, "tappytrade_mirror_total{result=%q} %d\n", "pushed", s.PushSuccessTotal)
			fmt.Fprintf(rw, "tappytrade_mirror_total{result=%q} %d\n", "failed", s.PushFailTotal)
		}
	})

	if d.admin {
		mux.HandleFunc("/admin/v1/farms", func(rw http.ResponseWriter, r *http.Request) {
			if !isLoopbackRemote(r.RemoteAddr) {
				http.Error(rw, "forbidden", http.StatusForbidden)
				return
			}
			type entry struct {
				Player string `json:"player"`
				Conns  int    `json:"conns"`
			}
			out := []entry{}
			for _, p := range d.farms.Players() {
				out = append(out, entry{Player: p, Conns: d.farms.Refs(p)})
			}
			rw.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(rw).Encode(out)
		})
	}
	if d.pprof {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}

	mux.Handle("/v1/ws", d.ws)

	c := cors.New(cors.Options{
		AllowedOrigins: d.origins,
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
	})
	return c.Handler(mux)
}

func splitOrigins(s string) []string {
	var out []string
	for _, o := range strings.Split(s, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
