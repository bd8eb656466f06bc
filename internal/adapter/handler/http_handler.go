package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mrodas/batchworks/internal/core/domain"
	"github.com/mrodas/batchworks/internal/core/service"
)

// HTTPHandler is a thin wrapper over the production engine: it decodes the
// request, runs Produce synchronously and serializes the outcome. All
// business rules live in the service.
type HTTPHandler struct {
	production *service.ProductionService
	log        *zap.Logger
}

func NewHTTPHandler(production *service.ProductionService, log *zap.Logger) *HTTPHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &HTTPHandler{production: production, log: log}
}

type ProduceRequest struct {
	RecipeID string `json:"recipe_id"`
	OutputKg string `json:"output_kg"`
	Operator string `json:"operator"`
}

type ProduceResponse struct {
	Success    bool               `json:"success"`
	Message    string             `json:"message,omitempty"`
	Record     *recordPayload     `json:"record,omitempty"`
	Shortfalls []shortfallPayload `json:"shortfalls,omitempty"`
}

type recordPayload struct {
	ID         string        `json:"id"`
	RecipeID   string        `json:"recipe_id"`
	ProductID  string        `json:"product_id"`
	LotCode    string        `json:"lot_code"`
	OutputKg   string        `json:"output_kg"`
	TotalCost  string        `json:"total_cost"`
	CostPerKg  string        `json:"cost_per_kg"`
	Operator   string        `json:"operator"`
	ProducedAt string        `json:"produced_at"`
	Lines      []linePayload `json:"lines"`
}

type linePayload struct {
	IngredientID      string `json:"ingredient_id"`
	PercentageApplied string `json:"percentage_applied"`
	QuantityConsumed  string `json:"quantity_consumed"`
	Unit              string `json:"unit"`
	CostContribution  string `json:"cost_contribution"`
}

type shortfallPayload struct {
	IngredientID string `json:"ingredient_id"`
	Required     string `json:"required"`
	Available    string `json:"available"`
	Unit         string `json:"unit"`
}

func (h *HTTPHandler) Produce(c *gin.Context) {
	var req ProduceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ProduceResponse{Success: false, Message: "invalid request body"})
		return
	}

	if req.RecipeID == "" || req.OutputKg == "" {
		c.JSON(http.StatusBadRequest, ProduceResponse{Success: false, Message: "missing required fields"})
		return
	}

	outputKg, err := decimal.NewFromString(req.OutputKg)
	if err != nil {
		c.JSON(http.StatusBadRequest, ProduceResponse{Success: false, Message: "output_kg is not a valid decimal"})
		return
	}

	record, err := h.production.Produce(c.Request.Context(), req.RecipeID, outputKg, req.Operator)
	if err != nil {
		h.writeProduceError(c, err)
		return
	}

	c.JSON(http.StatusOK, ProduceResponse{Success: true, Record: toRecordPayload(record)})
}

func (h *HTTPHandler) writeProduceError(c *gin.Context, err error) {
	var (
		composition  *domain.CompositionError
		conversion   *domain.ConversionError
		insufficient *domain.InsufficientStockError
	)

	switch {
	case errors.Is(err, domain.ErrInvalidBatchSize),
		errors.Is(err, domain.ErrLinePercentage),
		errors.As(err, &conversion):
		c.JSON(http.StatusBadRequest, ProduceResponse{Success: false, Message: err.Error()})

	case errors.As(err, &composition):
		c.JSON(http.StatusUnprocessableEntity, ProduceResponse{Success: false, Message: err.Error()})

	case errors.Is(err, domain.ErrUnknownRecipe), errors.Is(err, domain.ErrUnknownIngredient):
		c.JSON(http.StatusNotFound, ProduceResponse{Success: false, Message: err.Error()})

	case errors.As(err, &insufficient):
		shortfalls := make([]shortfallPayload, 0, len(insufficient.Shortfalls))
		for _, s := range insufficient.Shortfalls {
			shortfalls = append(shortfalls, shortfallPayload{
				IngredientID: s.IngredientID,
				Required:     s.Required.String(),
				Available:    s.Available.String(),
				Unit:         string(s.Unit),
			})
		}
		c.JSON(http.StatusConflict, ProduceResponse{
			Success:    false,
			Message:    "insufficient stock",
			Shortfalls: shortfalls,
		})

	case errors.Is(err, domain.ErrStockConflict):
		c.JSON(http.StatusConflict, ProduceResponse{Success: false, Message: "concurrent stock conflict, retry"})

	default:
		h.log.Error("produce failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, ProduceResponse{Success: false, Message: "internal error"})
	}
}

// History serves the production records of one recipe, newest first.
func (h *HTTPHandler) History(c *gin.Context) {
	recipeID := c.Param("id")
	if recipeID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"message": "missing recipe id"})
		return
	}

	records, err := h.production.History(c.Request.Context(), recipeID)
	if err != nil {
		h.log.Error("history lookup failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"message": "internal error"})
		return
	}

	payload := make([]*recordPayload, 0, len(records))
	for _, rec := range records {
		payload = append(payload, toRecordPayload(rec))
	}
	c.JSON(http.StatusOK, payload)
}

func (h *HTTPHandler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func toRecordPayload(rec *domain.ProductionRecord) *recordPayload {
	lines := make([]linePayload, 0, len(rec.Lines))
	for _, l := range rec.Lines {
		lines = append(lines, linePayload{
			IngredientID:      l.IngredientID,
			PercentageApplied: l.PercentageApplied.String(),
			QuantityConsumed:  l.QuantityConsumed.String(),
			Unit:              string(l.Unit),
			CostContribution:  l.CostContribution.String(),
		})
	}

	return &recordPayload{
		ID:         rec.ID,
		RecipeID:   rec.RecipeID,
		ProductID:  rec.ProductID,
		LotCode:    rec.LotCode,
		OutputKg:   rec.OutputQuantity.String(),
		TotalCost:  rec.TotalCost.String(),
		CostPerKg:  rec.CostPerKg.String(),
		Operator:   rec.Operator,
		ProducedAt: rec.ProducedAt.Format("2006-01-02T15:04:05Z07:00"),
		Lines:      lines,
	}
}
