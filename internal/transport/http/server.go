// Package httpapi exposes the simulator and the live runner over HTTP.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"quantsim/internal/backtest"
	"quantsim/internal/live"
	"quantsim/internal/market"
	"quantsim/internal/report"
	"quantsim/internal/types"

	"github.com/gin-gonic/gin"
)

// Config describes the server's collaborators. Runner and Sessions are
// optional; the routes 404 when they are absent.
type Config struct {
	Addr      string
	Simulator *backtest.Simulator
	Results   *backtest.RunStore
	Candles   *market.Store
	Runner    *live.Runner
	Sessions  SessionReader
}

// SessionReader lists persisted live sessions.
type SessionReader interface {
	Sessions(ctx context.Context, limit int) ([]live.SessionState, error)
	SessionTrades(ctx context.Context, sessionID string) ([]types.Trade, error)
}

type Server struct {
	addr     string
	sim      *backtest.Simulator
	results  *backtest.RunStore
	candles  *market.Store
	runner   *live.Runner
	sessions SessionReader
	router   *gin.Engine
}

func NewServer(cfg Config) (*Server, error) {
	if cfg.Simulator == nil {
		return nil, fmt.Errorf("httpapi: simulator required")
	}
	if cfg.Results == nil {
		return nil, fmt.Errorf("httpapi: run store required")
	}
	if cfg.Addr == "" {
		cfg.Addr = ":9980"
	}
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	s := &Server{
		addr:     cfg.Addr,
		sim:      cfg.Simulator,
		results:  cfg.Results,
		candles:  cfg.Candles,
		runner:   cfg.Runner,
		sessions: cfg.Sessions,
		router:   router,
	}
	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	s.router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	api := s.router.Group("/api/backtest")
	api.POST("/runs", s.handleRunStart)
	api.GET("/runs", s.handleRunList)
	api.GET("/runs/:id", s.handleRunDetail)
	api.GET("/runs/:id/trades", s.handleRunTrades)
	api.GET("/runs/:id/equity", s.handleRunEquity)
	api.GET("/candles", s.handleCandles)

	liveAPI := s.router.Group("/api/live")
	liveAPI.GET("/status", s.handleLiveStatus)
	liveAPI.GET("/sessions", s.handleSessions)
	liveAPI.GET("/sessions/:id/trades", s.handleSessionTrades)
}

func (s *Server) handleRunStart(c *gin.Context) {
	var req backtest.RunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	run, err := s.sim.StartRun(req)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"run": run})
}

func (s *Server) handleRunList(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	runs, err := s.results.ListRuns(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs})
}

func (s *Server) handleRunDetail(c *gin.Context) {
	run, err := s.results.GetRun(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"run": run})
}

func (s *Server) handleRunTrades(c *gin.Context) {
	trades, err := s.results.ListTrades(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"trades": trades})
}

func (s *Server) handleRunEquity(c *gin.Context) {
	snaps, err := s.results.ListSnapshots(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"equity": snaps})
}

func (s *Server) handleCandles(c *gin.Context) {
	if s.candles == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "candle store not enabled"})
		return
	}
	symbol := c.Query("symbol")
	tf := c.Query("timeframe")
	if symbol == "" || tf == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "symbol and timeframe are required"})
		return
	}
	start, _ := strconv.ParseInt(c.Query("start_ts"), 10, 64)
	end, _ := strconv.ParseInt(c.Query("end_ts"), 10, 64)
	candles, err := s.candles.Range(c.Request.Context(), symbol, tf, start, end)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"candles": candles})
}

func (s *Server) handleLiveStatus(c *gin.Context) {
	if s.runner == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no live session"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": s.runner.Status()})
}

func (s *Server) handleSessions(c *gin.Context) {
	if s.sessions == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "session store not enabled"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	states, err := s.sessions.Sessions(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	out := make([]gin.H, 0, len(states))
	for _, st := range states {
		out = append(out, gin.H{
			"session": st,
			"summary": report.Build(st.Portfolio.EquityCurve, st.Trades),
		})
	}
	c.JSON(http.StatusOK, gin.H{"sessions": out})
}

func (s *Server) handleSessionTrades(c *gin.Context) {
	if s.sessions == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "session store not enabled"})
		return
	}
	trades, err := s.sessions.SessionTrades(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"trades": trades})
}

// Start serves until ctx is cancelled or the listener fails.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{Addr: s.addr, Handler: s.router}
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shCtx)
		return nil
	case err := <-errCh:
		return err
	}
}
