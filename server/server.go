// Package server exposes the REST surface used for the Kite OAuth handshake:
// a health check, a login URL builder, and the callback that exchanges a
// request_token for an access_token.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kitetick/engine/internal/config"
	"github.com/kitetick/engine/internal/dao"
	"github.com/kitetick/engine/kite"
)

// Server wires a gin engine against a connection pool and the app config.
type Server struct {
	Pool   *pgxpool.Pool
	Config config.AppConfig

	engine *gin.Engine
}

// New builds the gin engine and registers routes, but does not start
// listening.
func New(pool *pgxpool.Pool, cfg config.AppConfig) *Server {
	s := &Server{Pool: pool, Config: cfg}

	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())

	r.GET("/healthz", s.handleHealthz)
	r.GET("/api/kite/login_url", s.handleLoginURL)
	r.GET("/api/kite/callback", s.handleCallback)

	s.engine = r
	return s
}

// Run starts the HTTP server on Config.ServerAddr and blocks until ctx is
// cancelled, then shuts down gracefully within 10s.
func (s *Server) Run(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:    s.Config.ServerAddr,
		Handler: s.engine,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func (s *Server) handleHealthz(c *gin.Context) {
	dbOK := true
	if err := s.Pool.Ping(c.Request.Context()); err != nil {
		dbOK = false
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "db": dbOK})
}

func userIDFromQuery(c *gin.Context) (string, bool) {
	if v := c.Query("user_id"); v != "" {
		return v, true
	}
	if v := c.Query("userid"); v != "" {
		return v, true
	}
	return "", false
}

func (s *Server) handleLoginURL(c *gin.Context) {
	userID, ok := userIDFromQuery(c)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing user_id/userid"})
		return
	}

	creds, err := dao.GetUserKiteCredsForOS(c.Request.Context(), s.Pool, userID, s.Config.OSType)
	if err == pgx.ErrNoRows {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	callbackURL := kite.CallbackURLForUser(s.Config.KiteCallbackURL, userID)
	c.JSON(http.StatusOK, gin.H{"login_url": kite.LoginURL(creds.APIKey, callbackURL)})
}

func (s *Server) handleCallback(c *gin.Context) {
	if errParam := c.Query("error"); errParam != "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("kite callback error: %s", errParam)})
		return
	}
	if status := c.Query("status"); status != "" && status != "success" {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("kite callback status not success: %s", status)})
		return
	}

	userID, ok := userIDFromQuery(c)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing user_id/userid"})
		return
	}
	requestToken := c.Query("request_token")
	if requestToken == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing request_token"})
		return
	}

	ctx := c.Request.Context()

	creds, err := dao.GetUserKiteCredsForOS(ctx, s.Pool, userID, s.Config.OSType)
	if err == pgx.ErrNoRows {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	session, err := kite.ExchangeRequestToken(ctx, creds.APIKey, creds.APISecret, requestToken)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}

	if err := dao.UpdateSessionTokensForOS(ctx, s.Pool, userID, s.Config.OSType, session.AccessToken, session.PublicToken); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":       "stored",
		"user_id":      userID,
		"kite_user_id": session.UserID,
		"public_token": session.PublicToken,
	})
}
