// internal/server/server.go
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"libradesk/internal/catalog"
	"libradesk/internal/circulation"
	"libradesk/internal/httpjson"
	"libradesk/internal/patron"
	"libradesk/internal/payments"
)

// Services are the rule engines the router exposes.
type Services struct {
	Catalog     catalog.Service
	Circulation circulation.Service
	Patrons     patron.Service
	Payments    payments.Service
}

// NewRouter mounts every handler on a chi router.
func NewRouter(svc Services, log logrus.FieldLogger) http.Handler {
	books := catalog.NewHandler(svc.Catalog)
	loans := circulation.NewHandler(svc.Circulation)
	patrons := patron.NewHandler(svc.Patrons)
	pay := payments.NewHandler(svc.Payments)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requestLogger(log))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httpjson.Write(w, http.StatusOK, httpjson.Result{Success: true, Message: "ok"})
	})

	r.Route("/books", func(r chi.Router) {
		r.Get("/", books.HandleListBooks)
		r.Post("/", books.HandleAddBook)
		r.Get("/{id}", books.HandleGetBook)
	})
	r.Get("/search", books.HandleSearch)

	r.Post("/borrow", loans.HandleBorrow)
	r.Post("/return", loans.HandleReturn)

	r.Route("/patrons/{id}", func(r chi.Router) {
		r.Get("/status", patrons.HandleStatus)
		r.Get("/fees/{bookID}", loans.HandleLateFee)
	})

	r.Post("/payments", pay.HandlePay)
	r.Post("/refunds", pay.HandleRefund)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httpjson.Write(w, http.StatusNotFound, httpjson.Result{Success: false, Message: "Page not found."})
	})
	return r
}

// requestLogger logs one line per request.
func requestLogger(log logrus.FieldLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				log.WithFields(logrus.Fields{
					"method":     r.Method,
					"path":       r.URL.Path,
					"status":     ww.Status(),
					"duration":   time.Since(start).String(),
					"request_id": middleware.GetReqID(r.Context()),
				}).Info("request handled")
			}()
			next.ServeHTTP(ww, r)
		})
	}
}

// Run serves handler on addr until ctx is cancelled, then drains open
// requests for up to ten seconds.
func Run(ctx context.Context, addr string, handler http.Handler, log logrus.FieldLogger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		log.WithField("addr", addr).Info("libradesk listening")
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
