// Package api exposes the desk over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rustyeddy/propdesk/desk"
	"github.com/rustyeddy/propdesk/internal/logger"
	"github.com/rustyeddy/propdesk/ledger"
	"github.com/rustyeddy/propdesk/lifecycle"
	"github.com/rustyeddy/propdesk/market"
	"go.uber.org/zap"
)

// Server is the HTTP front of one desk.
type Server struct {
	router *gin.Engine
	desk   *desk.Desk
	addr   string
	log    *zap.Logger
}

func NewServer(d *desk.Desk, addr string, log *zap.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		router: gin.New(),
		desk:   d,
		addr:   addr,
		log:    logger.Module(log, "api"),
	}
	s.router.Use(gin.Recovery(), s.logRequests())
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.Group("/api")
	{
		api.GET("/health", s.handleHealth)

		api.POST("/signals", s.handleSignal)
		api.POST("/ticks", s.handleTick)

		api.GET("/account", s.handleAccount)
		api.POST("/account/funding", s.handleFunding)
		api.POST("/reset", s.handleReset)

		api.GET("/positions", s.handlePositions)
		api.POST("/positions/:id/close", s.handleClose)

		api.GET("/decisions", s.handleDecisions)
		api.GET("/exits", s.handleExits)
		api.GET("/days", s.handleDays)
	}
}

func (s *Server) Handler() http.Handler { return s.router }

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.log.Info("listening", zap.String("addr", s.addr))
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdown); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) logRequests() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Debug("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("took", time.Since(start)))
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   time.Now().UTC(),
	})
}

type signalRequest struct {
	Text      string `json:"text" binding:"required"`
	ChannelID string `json:"channel_id" binding:"required"`
	MessageID string `json:"message_id" binding:"required"`
}

func (s *Server) handleSignal(c *gin.Context) {
	var req signalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	rec, err := s.desk.SubmitSignal(c.Request.Context(), req.Text, req.ChannelID, req.MessageID)
	if err != nil {
		s.log.Error("submit signal", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, rec)
}

type tickRequest struct {
	Symbol string    `json:"symbol" binding:"required"`
	Price  float64   `json:"price" binding:"required,gt=0"`
	Time   time.Time `json:"time"`
}

func (s *Server) handleTick(c *gin.Context) {
	var req tickRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Time.IsZero() {
		req.Time = time.Now().UTC()
	}

	exits, err := s.desk.SubmitPriceTick(c.Request.Context(), req.Symbol, req.Price, req.Time)
	if err != nil {
		s.log.Error("submit tick", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if exits == nil {
		exits = []desk.Exit{}
	}
	c.JSON(http.StatusOK, gin.H{"exits": exits})
}

func (s *Server) handleAccount(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"account": s.desk.Account(),
		"status":  s.desk.Status(),
	})
}

type fundingRequest struct {
	Funded bool `json:"funded"`
	Months int  `json:"months" binding:"gte=0"`
}

func (s *Server) handleFunding(c *gin.Context) {
	var req fundingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	acct, err := s.desk.SetFunding(c.Request.Context(), req.Funded, req.Months)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"account": acct})
}

func (s *Server) handleReset(c *gin.Context) {
	day, ok, err := s.desk.ResetDaily(c.Request.Context(), time.Now().UTC())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	resp := gin.H{"reset": ok, "account": s.desk.Account()}
	if ok {
		resp["day"] = day
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handlePositions(c *gin.Context) {
	ps := s.desk.Positions()
	if sym := c.Query("symbol"); sym != "" {
		sym = market.NormalizeSymbol(sym)
		out := ps[:0]
		for _, p := range ps {
			if p.Symbol == sym {
				out = append(out, p)
			}
		}
		ps = out
	}
	if ps == nil {
		ps = []lifecycle.Position{}
	}
	c.JSON(http.StatusOK, gin.H{"positions": ps})
}

type closeRequest struct {
	Price float64 `json:"price" binding:"gte=0"`
}

func (s *Server) handleClose(c *gin.Context) {
	var req closeRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	x, err := s.desk.ClosePosition(c.Request.Context(), c.Param("id"), req.Price)
	switch {
	case errors.Is(err, lifecycle.ErrUnknownPosition):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, market.ErrNoPrice):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusOK, x)
	}
}

func query(c *gin.Context) (ledger.Query, error) {
	q := ledger.Query{
		Decision:   ledger.Decision(strings.ToLower(c.Query("decision"))),
		PositionID: c.Query("position"),
	}
	if sym := c.Query("symbol"); sym != "" {
		q.Symbol = market.NormalizeSymbol(sym)
	}
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return q, errors.New("limit must be a non-negative integer")
		}
		q.Limit = n
	}
	if v := c.Query("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return q, errors.New("since must be RFC3339")
		}
		q.Since = t
	}
	switch q.Decision {
	case "", ledger.Accepted, ledger.Rejected:
	default:
		return q, errors.New("decision must be accepted or rejected")
	}
	return q, nil
}

func (s *Server) handleDecisions(c *gin.Context) {
	q, err := query(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	recs, err := s.desk.Store().Decisions(c.Request.Context(), q)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if recs == nil {
		recs = []ledger.DecisionRecord{}
	}
	c.JSON(http.StatusOK, gin.H{"decisions": recs})
}

func (s *Server) handleExits(c *gin.Context) {
	q, err := query(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	recs, err := s.desk.Store().Exits(c.Request.Context(), q)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if recs == nil {
		recs = []ledger.ExitRecord{}
	}
	c.JSON(http.StatusOK, gin.H{"exits": recs})
}

func (s *Server) handleDays(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "30"))
	days, err := s.desk.Store().Days(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"days": days})
}
