package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"schoolattend/internal/attendance"
	"schoolattend/internal/auth"
	"schoolattend/internal/config"
	"schoolattend/internal/directory"
	"schoolattend/internal/httpmiddleware"
	"schoolattend/internal/notify"
	"schoolattend/internal/queue"
	"schoolattend/internal/store"
	"schoolattend/internal/whatsapp"
)

func main() {
	cfg := config.Load()

	if cfg.Env == "production" || cfg.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg); err != nil {
		log.Fatalf("http server failed: %v", err)
	}
}

func runHTTP(cfg config.App) error {
	db, err := store.NewDB(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	redisClient := store.NewRedis(cfg.RedisAddr)

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(64)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, "schoolattend:notify")
	}

	dir := directory.NewRepository(db.Client)
	ledgerRepo := attendance.NewRepository(db.Client)
	notifyRepo := notify.NewRepository(db.Client)

	transport := whatsapp.New(cfg.WhatsAppURL, cfg.WhatsAppToken, cfg.WhatsAppSkip, cfg.SendTimeout)
	dispatcher := notify.NewDispatcher(notifyRepo, dir, transport, cfg.SendDelay)
	scans := attendance.NewService(ledgerRepo, dir, dispatcher, cfg.LateHour)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	r.Use(corsMiddleware())
	r.Use(securityHeaders())
	r.Use(httpmiddleware.NewTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin).GinMiddleware())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/healthz", func(c *gin.Context) {
		redisHealthy := redisClient.Healthy(c.Request.Context())
		dbHealthy := db.Client.PingContext(c.Request.Context()) == nil
		status := http.StatusOK
		if !redisHealthy || !dbHealthy {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"status": "ok", "redis": redisHealthy, "db": dbHealthy})
	})

	r.POST("/v1/kiosks/register", func(c *gin.Context) {
		var req struct {
			KioskID string `json:"kiosk_id" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		if err := dir.UpsertKiosk(c.Request.Context(), req.KioskID); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		tokens, err := auth.Issue(req.KioskID, "kiosk", cfg.JWTIssuer, cfg.JWTSigningKey, cfg.AccessTTL, cfg.RefreshTTL)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "token issue failed"})
			return
		}

		_ = dir.SaveRefreshToken(c.Request.Context(), req.KioskID, tokens.RefreshToken, tokens.RefreshExp)

		c.JSON(http.StatusCreated, gin.H{
			"access_token":  tokens.AccessToken,
			"refresh_token": tokens.RefreshToken,
			"expires_at":    tokens.AccessExp.Unix(),
		})
	})

	authGroup := r.Group("/v1", auth.KioskAuth(cfg.JWTSigningKey, cfg.JWTIssuer))

	authGroup.POST("/scans", func(c *gin.Context) {
		var req struct {
			Token    string `json:"token" binding:"required"`
			ScanType string `json:"scan_type" binding:"required,oneof=check_in check_out"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		rec, err := scans.ProcessScan(c.Request.Context(), req.Token, req.ScanType)
		if err != nil {
			writeScanError(c, err)
			return
		}

		if err := q.Publish(c.Request.Context(), queue.Signal{Kind: "notify"}); err != nil {
			log.Printf("queue publish failed: %v", err)
		}

		c.JSON(http.StatusOK, rec)
	})

	authGroup.GET("/attendance", func(c *gin.Context) {
		f := attendance.Filter{
			StudentID: c.Query("student_id"),
			ClassID:   c.Query("class_id"),
		}
		var err error
		if f.StartDate, err = dateQuery(c, "start_date"); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if f.EndDate, err = dateQuery(c, "end_date"); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		records, err := scans.Report(c.Request.Context(), f)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"records": records})
	})

	authGroup.GET("/attendance/summary", func(c *gin.Context) {
		date := time.Now()
		if v := c.Query("date"); v != "" {
			parsed, err := time.Parse("2006-01-02", v)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "date must be YYYY-MM-DD"})
				return
			}
			date = parsed
		}

		sum, err := scans.Summarize(c.Request.Context(), date)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, sum)
	})

	authGroup.GET("/notifications", func(c *gin.Context) {
		history, err := dispatcher.History(c.Request.Context(), c.Query("student_id"))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"notifications": history})
	})

	authGroup.POST("/notifications/drain", func(c *gin.Context) {
		processed, err := dispatcher.Drain(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "processed": processed})
			return
		}
		c.JSON(http.StatusOK, gin.H{"processed": processed})
	})

	authGroup.POST("/notifications/:id/retry", func(c *gin.Context) {
		req, err := dispatcher.Retry(c.Request.Context(), c.Param("id"))
		if errors.Is(err, notify.ErrNotificationNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		if err != nil {
			// Delivery failed; the record is back on failed.
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error(), "notification": req})
			return
		}
		c.JSON(http.StatusOK, req)
	})

	authGroup.POST("/students/:id/qrcode", func(c *gin.Context) {
		token, err := dir.RegenerateToken(c.Request.Context(), c.Param("id"))
		if errors.Is(err, directory.ErrStudentNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"qr_code": token})
	})

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Starting server on :%s", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced shutdown: %v", err)
	}

	log.Println("Server exited")
	return nil
}

// writeScanError maps scan pipeline errors to HTTP statuses: unknown
// tokens are 404, rejected transitions 409 with the state detail.
func writeScanError(c *gin.Context, err error) {
	var ite *attendance.InvalidTransitionError
	switch {
	case errors.Is(err, directory.ErrStudentNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.As(err, &ite):
		c.JSON(http.StatusConflict, gin.H{
			"error":          ite.Error(),
			"current_state":  ite.Current,
			"requested_scan": ite.Requested,
		})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

func dateQuery(c *gin.Context, key string) (*time.Time, error) {
	v := c.Query(key)
	if v == "" {
		return nil, nil
	}
	parsed, err := time.Parse("2006-01-02", v)
	if err != nil {
		return nil, errors.New(key + " must be YYYY-MM-DD")
	}
	return &parsed, nil
}

// CORS middleware for browser requests
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}

		c.Header("Access-Control-Allow-Origin", origin)
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
		c.Header("Access-Control-Allow-Credentials", "true")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// Security headers middleware
func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-XSS-Protection", "1; mode=block")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")

		if gin.Mode() == gin.ReleaseMode {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		c.Next()
	}
}
