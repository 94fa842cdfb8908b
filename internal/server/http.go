package server

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/julienschmidt/httprouter"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/funvibe/torrentrpc/internal/config"
	"github.com/funvibe/torrentrpc/internal/rpc"
)

// Server is the HTTP front of the bridge. Request bodies are read on the
// handler goroutine; decoding and dispatch run on the loop.
type Server struct {
	bridge  *rpc.Bridge
	loop    *Loop
	metrics *Metrics
	router  *httprouter.Router
}

// New wires routes for POST /RPC2, POST /jsonrpc and GET /metrics. The
// bridge reports its calls to metrics.
func New(bridge *rpc.Bridge, loop *Loop, metrics *Metrics, gatherer prometheus.Gatherer) *Server {
	s := &Server{
		bridge:  bridge,
		loop:    loop,
		metrics: metrics,
		router:  httprouter.New(),
	}
	bridge.Observer = metrics

	s.router.POST("/RPC2", s.handle("xmlrpc", "text/xml", bridge.Process))
	s.router.POST("/jsonrpc", s.handle("jsonrpc", "application/json", bridge.ProcessJSON))
	s.router.Handler(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	return s
}

func (s *Server) Handler() http.Handler { return s.router }

type processFunc func(buf []byte, write func([]byte) error) bool

func (s *Server) handle(transport, contentType string, process processFunc) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		s.metrics.ObserveRequest(transport)

		// The bridge enforces its own, smaller limit and answers with a
		// fault; this only bounds what the handler buffers.
		body, err := io.ReadAll(io.LimitReader(r.Body, config.MaxSizeLimit+1))
		if err != nil {
			http.Error(w, "read request: "+err.Error(), http.StatusBadRequest)
			return
		}

		var reply []byte
		err = s.loop.Do(r.Context(), func() {
			process(body, func(p []byte) error {
				reply = p
				return nil
			})
		})
		if err != nil {
			status := http.StatusServiceUnavailable
			if err == context.Canceled || err == context.DeadlineExceeded {
				status = http.StatusGatewayTimeout
			}
			http.Error(w, err.Error(), status)
			return
		}
		if reply == nil {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		w.Header().Set("Content-Type", contentType)
		w.Header().Set("Content-Length", fmt.Sprint(len(reply)))
		if _, err := w.Write(reply); err != nil {
			log.Debugf("%s reply write failed: %s", transport, err)
		}
	}
}
