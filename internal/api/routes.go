package api

import (
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/moodring-exchange/core-engine/internal/apperr"
	"github.com/moodring-exchange/core-engine/internal/comments"
	"github.com/moodring-exchange/core-engine/internal/ledger"
	"github.com/moodring-exchange/core-engine/internal/liquidity"
	"github.com/moodring-exchange/core-engine/internal/lmsr"
	"github.com/moodring-exchange/core-engine/internal/realtime"
	"github.com/moodring-exchange/core-engine/internal/resolution"
	"github.com/moodring-exchange/core-engine/internal/trade"
	"github.com/moodring-exchange/core-engine/pkg/models"
)

// APIHandler holds references to every component the HTTP surface fronts.
// It is the gin-facing adapter; all business logic lives in the component
// packages themselves.
type APIHandler struct {
	pool       *pgxpool.Pool
	ledger     *ledger.Ledger
	trade      *trade.Engine
	liquidity  *liquidity.Engine
	resolution *resolution.Engine
	comments   *comments.Engine
	bus        *realtime.Bus
}

// SetupRouter wires the component engines to the §6/§7 HTTP route table.
// Route grouping and CORS handling follow the teacher's SetupRouter shape.
func SetupRouter(pool *pgxpool.Pool, led *ledger.Ledger, tradeEngine *trade.Engine, liqEngine *liquidity.Engine, resEngine *resolution.Engine, commentEngine *comments.Engine, bus *realtime.Bus) *gin.Engine {
	r := gin.Default()

	allowedOrigins := os.Getenv("ALLOWED_ORIGINS")
	r.Use(func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if allowedOrigins == "" || allowedOrigins == "*" {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		} else {
			for _, allowed := range strings.Split(allowedOrigins, ",") {
				if strings.TrimSpace(allowed) == origin {
					c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
					break
				}
			}
		}
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	})

	h := &APIHandler{
		pool: pool, ledger: led, trade: tradeEngine, liquidity: liqEngine,
		resolution: resEngine, comments: commentEngine, bus: bus,
	}

	pub := r.Group("/api/v1")
	{
		pub.GET("/health", h.handleHealth)
		pub.GET("/options/:optionID/price", h.handlePriceAt)
		pub.GET("/options/:optionID/price-history", h.handlePriceHistory)
		pub.GET("/markets/:marketID/comments", h.handleListComments)
		pub.GET("/stream/markets/:marketID", h.handleStreamMarket)
		pub.GET("/stream/options/:optionID", h.handleStreamOption)
		pub.GET("/stream/users/:userID", h.handleStreamUser)
	}

	protected := r.Group("/api/v1")
	protected.Use(AuthMiddleware())
	protected.Use(NewRateLimiter(60, 10).Middleware())
	{
		protected.POST("/markets/:marketID/options/:optionID/buy", h.handleBuy)
		protected.POST("/markets/:marketID/options/:optionID/sell", h.handleSell)
		protected.POST("/markets/:marketID/options/:optionID/claim", h.handleClaim)
		protected.POST("/markets/:marketID/liquidity", h.handleAddLiquidity)
		protected.DELETE("/markets/:marketID/liquidity", h.handleRemoveLiquidity)

		protected.POST("/markets/:marketID/comments", h.handleCreateComment)
		protected.DELETE("/comments/:commentID", h.handleDeleteComment)
		protected.POST("/comments/:commentID/vote", h.handleVoteComment)

		admin := protected.Group("/admin")
		{
			admin.POST("/markets", h.handleCreateMarket)
			admin.POST("/markets/:marketID/options/:optionID/resolve", h.handleResolve)
			admin.POST("/markets/:marketID/options/:optionID/dispute", h.handleFileDispute)
			admin.POST("/options/:optionID/dispute/decide", h.handleDecideDispute)
		}
	}

	return r
}

// writeError maps an apperr.Error (or any other error) to the §7 status
// table and a JSON body; unrecognized errors are treated as Internal.
func writeError(c *gin.Context, err error) {
	if ae, ok := apperr.As(err); ok {
		body := gin.H{"error": ae.Message, "kind": ae.Kind, "retryable": ae.Retryable()}
		if ae.Details != nil {
			body["details"] = ae.Details
		}
		c.JSON(ae.HTTPStatus(), body)
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}

func parseUUID(c *gin.Context, param string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(param))
	if err != nil {
		writeError(c, apperr.Validationf("invalid %s", param))
		return uuid.Nil, false
	}
	return id, true
}

func (h *APIHandler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "operational", "engine": "moodring-core-engine"})
}

// ── Trade Engine surface ───────────────────────────────────────────

type buyRequest struct {
	UserID       uuid.UUID  `json:"userId" binding:"required"`
	DeltaYes     int64      `json:"deltaYes"`
	DeltaNo      int64      `json:"deltaNo"`
	MaxCost      *int64     `json:"maxCost"`
	SlippageBps  *int64     `json:"slippageBps"`
	ClientOrderID *uuid.UUID `json:"clientOrderId"`
}

func (h *APIHandler) handleBuy(c *gin.Context) {
	marketID, ok := parseUUID(c, "marketID")
	if !ok {
		return
	}
	optionID, ok := parseUUID(c, "optionID")
	if !ok {
		return
	}
	var req buyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apperr.Validationf("invalid request body: %v", err))
		return
	}
	result, err := h.trade.Buy(c.Request.Context(), trade.BuyRequest{
		UserID: req.UserID, MarketID: marketID, OptionID: optionID,
		DeltaYes: req.DeltaYes, DeltaNo: req.DeltaNo, MaxCost: req.MaxCost,
		SlippageBps: req.SlippageBps, ClientOrderID: req.ClientOrderID,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

type sellRequest struct {
	UserID        uuid.UUID  `json:"userId" binding:"required"`
	DeltaYes      int64      `json:"deltaYes"`
	DeltaNo       int64      `json:"deltaNo"`
	MinPayout     *int64     `json:"minPayout"`
	SlippageBps   *int64     `json:"slippageBps"`
	ClientOrderID *uuid.UUID `json:"clientOrderId"`
}

func (h *APIHandler) handleSell(c *gin.Context) {
	marketID, ok := parseUUID(c, "marketID")
	if !ok {
		return
	}
	optionID, ok := parseUUID(c, "optionID")
	if !ok {
		return
	}
	var req sellRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apperr.Validationf("invalid request body: %v", err))
		return
	}
	result, err := h.trade.Sell(c.Request.Context(), trade.SellRequest{
		UserID: req.UserID, MarketID: marketID, OptionID: optionID,
		DeltaYes: req.DeltaYes, DeltaNo: req.DeltaNo, MinPayout: req.MinPayout,
		SlippageBps: req.SlippageBps, ClientOrderID: req.ClientOrderID,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *APIHandler) handleClaim(c *gin.Context) {
	marketID, ok := parseUUID(c, "marketID")
	if !ok {
		return
	}
	optionID, ok := parseUUID(c, "optionID")
	if !ok {
		return
	}
	var req struct {
		UserID uuid.UUID `json:"userId" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apperr.Validationf("invalid request body: %v", err))
		return
	}
	result, err := h.trade.Claim(c.Request.Context(), req.UserID, marketID, optionID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *APIHandler) handleAddLiquidity(c *gin.Context) {
	marketID, ok := parseUUID(c, "marketID")
	if !ok {
		return
	}
	var req struct {
		UserID uuid.UUID `json:"userId" binding:"required"`
		Amount int64     `json:"amount"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apperr.Validationf("invalid request body: %v", err))
		return
	}
	receipt, err := h.liquidity.AddLiquidity(c.Request.Context(), req.UserID, marketID, req.Amount)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, receipt)
}

func (h *APIHandler) handleRemoveLiquidity(c *gin.Context) {
	marketID, ok := parseUUID(c, "marketID")
	if !ok {
		return
	}
	var req struct {
		UserID uuid.UUID `json:"userId" binding:"required"`
		Shares int64     `json:"shares"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apperr.Validationf("invalid request body: %v", err))
		return
	}
	receipt, err := h.liquidity.RemoveLiquidity(c.Request.Context(), req.UserID, marketID, req.Shares)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, receipt)
}

// ── Pricing-read surface ───────────────────────────────────────────

func (h *APIHandler) handlePriceAt(c *gin.Context) {
	optionID, ok := parseUUID(c, "optionID")
	if !ok {
		return
	}
	option, err := h.ledger.GetOption(c.Request.Context(), h.pool, optionID)
	if err != nil {
		writeError(c, err)
		return
	}
	market, err := h.ledger.GetMarket(c.Request.Context(), h.pool, option.MarketID)
	if err != nil {
		writeError(c, err)
		return
	}
	yesPrice, err := lmsr.YesPrice(option.YesQuantity, option.NoQuantity, market.LiquidityParameter)
	if err != nil {
		writeError(c, err)
		return
	}
	noPrice, err := lmsr.NoPrice(option.YesQuantity, option.NoQuantity, market.LiquidityParameter)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"yesPrice": yesPrice, "noPrice": noPrice})
}

func (h *APIHandler) handlePriceHistory(c *gin.Context) {
	optionID, ok := parseUUID(c, "optionID")
	if !ok {
		return
	}
	rng := models.TimeRange(c.DefaultQuery("range", string(models.RangeAll)))
	points, err := h.ledger.PriceHistory(c.Request.Context(), h.pool, optionID, rng)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, points)
}

// ── Event-stream surface ───────────────────────────────────────────

func (h *APIHandler) handleStreamMarket(c *gin.Context) {
	marketID, ok := parseUUID(c, "marketID")
	if !ok {
		return
	}
	serveStream(h.bus.Market, marketID)(c)
}

func (h *APIHandler) handleStreamOption(c *gin.Context) {
	optionID, ok := parseUUID(c, "optionID")
	if !ok {
		return
	}
	serveStream(h.bus.Option, optionID)(c)
}

func (h *APIHandler) handleStreamUser(c *gin.Context) {
	userID, ok := parseUUID(c, "userID")
	if !ok {
		return
	}
	serveStream(h.bus.User, userID)(c)
}

// ── Comment subsystem ──────────────────────────────────────────────

func (h *APIHandler) handleListComments(c *gin.Context) {
	marketID, ok := parseUUID(c, "marketID")
	if !ok {
		return
	}
	list, err := h.comments.ListForMarket(c.Request.Context(), marketID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h *APIHandler) handleCreateComment(c *gin.Context) {
	marketID, ok := parseUUID(c, "marketID")
	if !ok {
		return
	}
	var req struct {
		AuthorID uuid.UUID  `json:"authorId" binding:"required"`
		ParentID *uuid.UUID `json:"parentId"`
		Content  string     `json:"content"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apperr.Validationf("invalid request body: %v", err))
		return
	}
	comment, err := h.comments.CreateComment(c.Request.Context(), marketID, req.AuthorID, req.ParentID, req.Content)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, comment)
}

func (h *APIHandler) handleDeleteComment(c *gin.Context) {
	commentID, ok := parseUUID(c, "commentID")
	if !ok {
		return
	}
	var req struct {
		RequesterID uuid.UUID `json:"requesterId" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apperr.Validationf("invalid request body: %v", err))
		return
	}
	if err := h.comments.DeleteComment(c.Request.Context(), commentID, req.RequesterID); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *APIHandler) handleVoteComment(c *gin.Context) {
	commentID, ok := parseUUID(c, "commentID")
	if !ok {
		return
	}
	var req struct {
		UserID    uuid.UUID `json:"userId" binding:"required"`
		Direction string    `json:"direction"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apperr.Validationf("invalid request body: %v", err))
		return
	}
	var direction models.VoteState
	switch req.Direction {
	case "up":
		direction = models.VoteUp
	case "down":
		direction = models.VoteDown
	case "none":
		direction = models.VoteNone
	default:
		writeError(c, apperr.Validationf("direction must be one of up, down, none"))
		return
	}
	comment, err := h.comments.Vote(c.Request.Context(), commentID, req.UserID, direction)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, comment)
}

// ── Admin: market creation & resolution ────────────────────────────

func (h *APIHandler) handleCreateMarket(c *gin.Context) {
	var req struct {
		CreatorID          uuid.UUID             `json:"creatorId" binding:"required"`
		Question           string                `json:"question" binding:"required"`
		Description        string                `json:"description"`
		Category           string                `json:"category"`
		ImageURL           string                `json:"imageUrl"`
		ExpiresAt          time.Time             `json:"expiresAt" binding:"required"`
		LiquidityParameter int64                 `json:"liquidityParameter" binding:"required"`
		ResolutionMode     models.ResolutionMode `json:"resolutionMode" binding:"required"`
		ResolutionSource   string                `json:"resolutionSource"`
		OptionLabels       []string              `json:"optionLabels" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apperr.Validationf("invalid request body: %v", err))
		return
	}
	if len(req.OptionLabels) == 0 {
		writeError(c, apperr.Validationf("a market needs at least one option"))
		return
	}

	ctx := c.Request.Context()
	tx, err := h.pool.Begin(ctx)
	if err != nil {
		writeError(c, apperr.Internalf("begin transaction: %v", err))
		return
	}
	defer func() { _ = tx.Rollback(ctx) }()

	market := &models.Market{
		ID: uuid.New(), CreatorID: req.CreatorID, Question: req.Question, Description: req.Description,
		Category: req.Category, ImageURL: req.ImageURL, ExpiresAt: req.ExpiresAt, IsBinary: true,
		LiquidityParameter: req.LiquidityParameter, ResolutionMode: req.ResolutionMode,
		ResolutionSource: req.ResolutionSource, CreatedAt: time.Now(),
	}
	if err := h.ledger.CreateMarket(ctx, tx, market); err != nil {
		writeError(c, err)
		return
	}
	options := make([]*models.Option, 0, len(req.OptionLabels))
	for _, label := range req.OptionLabels {
		o := &models.Option{ID: uuid.New(), MarketID: market.ID, Label: label}
		if err := h.ledger.CreateOption(ctx, tx, o); err != nil {
			writeError(c, err)
			return
		}
		options = append(options, o)
	}
	if err := tx.Commit(ctx); err != nil {
		writeError(c, apperr.Internalf("commit: %v", err))
		return
	}
	c.JSON(http.StatusCreated, gin.H{"market": market, "options": options})
}

func (h *APIHandler) handleResolve(c *gin.Context) {
	marketID, ok := parseUUID(c, "marketID")
	if !ok {
		return
	}
	optionID, ok := parseUUID(c, "optionID")
	if !ok {
		return
	}
	var req struct {
		Mode        models.ResolutionMode `json:"mode" binding:"required"`
		WinningSide models.Side           `json:"winningSide"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apperr.Validationf("invalid request body: %v", err))
		return
	}

	var err error
	switch req.Mode {
	case models.ResolutionOracle:
		err = h.resolution.ResolveOracle(c.Request.Context(), marketID, optionID, req.WinningSide)
	case models.ResolutionAuthority:
		err = h.resolution.ResolveAuthority(c.Request.Context(), marketID, optionID, req.WinningSide)
	case models.ResolutionOpinion:
		err = h.resolution.ResolveOpinion(c.Request.Context(), marketID, optionID)
	default:
		err = apperr.Validationf("unknown resolution mode")
	}
	if err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusOK)
}

func (h *APIHandler) handleFileDispute(c *gin.Context) {
	optionID, ok := parseUUID(c, "optionID")
	if !ok {
		return
	}
	var req struct {
		DisputerID uuid.UUID `json:"disputerId" binding:"required"`
		BondAmount int64     `json:"bondAmount"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apperr.Validationf("invalid request body: %v", err))
		return
	}
	dispute, err := h.resolution.FileDispute(c.Request.Context(), optionID, req.DisputerID, req.BondAmount)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, dispute)
}

func (h *APIHandler) handleDecideDispute(c *gin.Context) {
	optionID, ok := parseUUID(c, "optionID")
	if !ok {
		return
	}
	var req struct {
		Uphold bool `json:"uphold"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apperr.Validationf("invalid request body: %v", err))
		return
	}
	if err := h.resolution.DecideDispute(c.Request.Context(), optionID, req.Uphold); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusOK)
}
