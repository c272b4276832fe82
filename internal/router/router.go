// internal/router/router.go
package router

import (
	"net/http"
	"time"

	"github.com/Emmanuel-rotich2/Kingsway-sub012/internal/handler"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

func SetupRoutes(
	callbackHandler *handler.CallbackHandler,
	bankHandler *handler.BankHandler,
	auditHandler *handler.AuditHandler,
	logger *zap.Logger,
) http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(LoggerMiddleware(logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-API-Key", "X-Signature", "Signature", "X-KCB-Signature", "X-Bank-Name"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1/payments", func(r chi.Router) {
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("OK"))
		})

		// M-Pesa disbursement results and paybill collections
		r.Route("/mpesa", func(r chi.Router) {
			r.Post("/b2c/result", callbackHandler.HandleB2CResult)
			r.Post("/b2c/timeout", callbackHandler.HandleB2CTimeout)
			r.Post("/c2b/validation", callbackHandler.HandleC2BValidation)
			r.Post("/c2b/confirmation", callbackHandler.HandleC2BConfirmation)
		})

		r.Route("/kcb", func(r chi.Router) {
			r.Post("/validation", bankHandler.HandleKCBValidation)
			r.Post("/transfer", bankHandler.HandleKCBTransfer)
			r.Post("/notification", bankHandler.HandleKCBNotification)
		})

		r.Post("/bank/webhook", bankHandler.HandleBankWebhook)

		// Manual recovery
		r.Get("/audit", auditHandler.ListAudit)
		r.Get("/audit/summary", auditHandler.RecoverySummary)
	})

	return r
}

// LoggerMiddleware logs HTTP requests
func LoggerMiddleware(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			logger.Info("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
				zap.String("remote_addr", r.RemoteAddr))
		})
	}
}
