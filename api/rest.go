package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/tarancss/mcw/lib/metrics"
)

const timeout = 15

// Handler returns the router of the API.
func (s *Service) Handler() http.Handler {
	r := mux.NewRouter()
	r.Use(s.instrument)
	r.HandleFunc("/", s.homeHandler)
	r.HandleFunc("/wallets", s.walletsHandler).Methods("GET")                  // list wallets
	r.HandleFunc("/wallets/{id}", s.walletHandler).Methods("GET")              // refresh and get a wallet
	r.HandleFunc("/wallets/{id}/transactions", s.txsHandler).Methods("GET")    // page of history
	r.HandleFunc("/wallets/{id}/available", s.availableHandler).Methods("GET") // spendable balance
	r.HandleFunc("/wallets/{id}/send", s.sendHandler).Methods("POST")          // create and send a tx
	r.HandleFunc("/address", s.hdAddrHandler).Methods("GET")                   // address of the HD wallet
	return r
}

// Init starts the http server and, when sslPort, sslCert and sslKey are given, the https server. It returns once Stop
// has been called.
func (s *Service) Init(endpoint, port, sslPort, sslCert, sslKey string) string {
	var err, errTLS error
	h := s.Handler()

	if port != "" {
		s.s = &http.Server{
			Handler:      h,
			Addr:         endpoint + ":" + port,
			WriteTimeout: timeout * time.Second,
			ReadTimeout:  timeout * time.Second,
		}
		go func() {
			if e := s.s.ListenAndServe(); !errors.Is(e, http.ErrServerClosed) {
				err = e
			}
		}()
		s.log.Infof("Listening to API http requests on %s:%s", endpoint, port)
	}
	if sslPort != "" && sslCert != "" && sslKey != "" {
		s.ss = &http.Server{
			Handler:      h,
			Addr:         endpoint + ":" + sslPort,
			WriteTimeout: timeout * time.Second,
			ReadTimeout:  timeout * time.Second,
		}
		go func() {
			if e := s.ss.ListenAndServeTLS(sslCert, sslKey); !errors.Is(e, http.ErrServerClosed) {
				errTLS = e
			}
		}()
		s.log.Infof("Listening to API https requests on %s:%s", endpoint, sslPort)
	}
	<-s.sc

	return fmt.Sprintf("shutdown http server:%v, https server:%v", err, errTLS)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// instrument counts requests by route template and status.
func (s *Service) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		route := r.URL.Path
		if cur := mux.CurrentRoute(r); cur != nil {
			if tpl, err := cur.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		rec := &statusRecorder{ResponseWriter: rw, status: http.StatusOK}
		defer metrics.Since(route, time.Now())
		next.ServeHTTP(rec, r)
		metrics.APIRequests.WithLabelValues(route, strconv.Itoa(rec.status)).Inc()
	})
}
