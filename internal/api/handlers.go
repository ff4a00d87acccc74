package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/paulmach/orb/geojson"
	"github.com/sirupsen/logrus"

	"github.com/bc144/fennec-prediccion/internal/metrics"
	"github.com/bc144/fennec-prediccion/internal/models"
)

// Predictor prices records and exposes the boroughs each model knows
type Predictor interface {
	Predict(ctx context.Context, propertyType models.PropertyType, record models.PropertyRecord) (*models.PredictionResult, error)
	Boroughs(propertyType models.PropertyType) ([]string, error)
	Status() map[models.PropertyType]bool
}

// Statistics computes aggregate market statistics
type Statistics interface {
	Loaded() bool
	PricePerArea(propertyType models.PropertyType) (float64, error)
	Stats(propertyType models.PropertyType) (*models.AggregateStats, error)
	Total(propertyType models.PropertyType) (int, error)
	TotalAll() (int, error)
	AvgPriceByBorough(propertyType models.PropertyType) (models.BoroughValues, error)
	PricePerAreaByBorough(propertyType models.PropertyType) (models.BoroughValues, error)
}

// Quotes answers FIBRA price lookups
type Quotes interface {
	LatestQuote(ctx context.Context, name string) (*models.Quote, error)
	LatestQuotes(ctx context.Context) (*models.QuoteBatch, error)
}

// Locator maps coordinates to boroughs and draws choropleths
type Locator interface {
	Locate(lat, lng float64) (string, error)
	Choropleth(values models.BoroughValues) *geojson.FeatureCollection
}

// Reloader refreshes artifacts and datasets
type Reloader interface {
	RunAll() error
}

// Services groups the components the handlers call
type Services struct {
	Predictions Predictor
	Stats       Statistics
	Quotes      Quotes
	Boroughs    Locator
	Reloader    Reloader
}

type Handler struct {
	predictions Predictor
	stats       Statistics
	quotes      Quotes
	boroughs    Locator
	reloader    Reloader
	logger      *logrus.Logger
	metrics     *metrics.Collector
}

// PredictRequest is the body of a price estimate request
type PredictRequest struct {
	Alcaldia         string  `json:"alcaldia" binding:"required"`
	MetrosCuadrados  float64 `json:"metros_cuadrados" binding:"required,gt=0"`
	Recamaras        *int    `json:"recamaras" binding:"required,gte=0"`
	Banos            *int    `json:"banos" binding:"required,gte=0"`
	Estacionamientos *int    `json:"estacionamientos" binding:"required,gte=0"`
}

// Record converts a bound request into a PropertyRecord
func (r PredictRequest) Record() models.PropertyRecord {
	return models.PropertyRecord{
		Borough:   r.Alcaldia,
		Area:      r.MetrosCuadrados,
		Bedrooms:  *r.Recamaras,
		Bathrooms: *r.Banos,
		Parking:   *r.Estacionamientos,
	}
}

// LocateQuery holds the coordinates of a borough lookup
type LocateQuery struct {
	Lat *float64 `form:"lat" binding:"required,gte=-90,lte=90"`
	Lng *float64 `form:"lng" binding:"required,gte=-180,lte=180"`
}

func NewHandler(svc Services, logger *logrus.Logger, collector *metrics.Collector) *Handler {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
		logger.SetOutput(os.Stdout)
	}

	return &Handler{
		predictions: svc.Predictions,
		stats:       svc.Stats,
		quotes:      svc.Quotes,
		boroughs:    svc.Boroughs,
		reloader:    svc.Reloader,
		logger:      logger,
		metrics:     collector,
	}
}

func (h *Handler) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message": "API de estimación de precios de propiedades en la Ciudad de México",
		"docs":    "/health",
	})
}

func (h *Handler) Health(c *gin.Context) {
	loaded := gin.H{}
	for pt, ok := range h.predictions.Status() {
		loaded[string(pt)] = ok
	}
	c.JSON(http.StatusOK, gin.H{
		"status":          "ok",
		"models":          loaded,
		"datasets_loaded": h.stats.Loaded(),
	})
}

// Predict returns the handler estimating prices for one property type
func (h *Handler) Predict(propertyType models.PropertyType) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req PredictRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			h.respondBadRequest(c, err)
			return
		}

		result, err := h.predictions.Predict(c.Request.Context(), propertyType, req.Record())
		if err != nil {
			h.respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

func (h *Handler) ListBoroughs(c *gin.Context) {
	propertyType, ok := h.predictableType(c)
	if !ok {
		return
	}

	boroughs, err := h.predictions.Boroughs(propertyType)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"property_type": propertyType,
		"alcaldias":     boroughs,
	})
}

func (h *Handler) LocateBorough(c *gin.Context) {
	var q LocateQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		h.respondBadRequest(c, err)
		return
	}

	borough, err := h.boroughs.Locate(*q.Lat, *q.Lng)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"lat":      *q.Lat,
		"lng":      *q.Lng,
		"alcaldia": borough,
	})
}

func (h *Handler) GetPricePerArea(c *gin.Context) {
	propertyType, ok := h.statsType(c)
	if !ok {
		return
	}

	value, err := h.stats.PricePerArea(propertyType)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"property_type": propertyType,
		"precio_m2":     value,
	})
}

func (h *Handler) GetStats(c *gin.Context) {
	propertyType, ok := h.statsType(c)
	if !ok {
		return
	}

	stats, err := h.stats.Stats(propertyType)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *Handler) GetTotal(c *gin.Context) {
	propertyType, ok := h.statsType(c)
	if !ok {
		return
	}

	total, err := h.stats.Total(propertyType)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"property_type": propertyType,
		"total":         total,
	})
}

func (h *Handler) GetTotalAll(c *gin.Context) {
	total, err := h.stats.TotalAll()
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"property_type": models.AllTypes,
		"total":         total,
	})
}

func (h *Handler) GetPricesByBorough(c *gin.Context) {
	propertyType, ok := h.statsType(c)
	if !ok {
		return
	}

	values, err := h.stats.AvgPriceByBorough(propertyType)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"property_type": propertyType,
		"precios":       values,
	})
}

func (h *Handler) GetPricePerAreaByBorough(c *gin.Context) {
	propertyType, ok := h.statsType(c)
	if !ok {
		return
	}

	values, err := h.stats.PricePerAreaByBorough(propertyType)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"property_type": propertyType,
		"precios_m2":    values,
	})
}

// GetBoroughMap returns a GeoJSON choropleth of the mean price
// (metric=precio, default) or mean price per area (metric=precio-m2)
func (h *Handler) GetBoroughMap(c *gin.Context) {
	propertyType, ok := h.statsType(c)
	if !ok {
		return
	}

	var (
		values models.BoroughValues
		err    error
	)
	switch metric := c.DefaultQuery("metric", "precio"); metric {
	case "precio":
		values, err = h.stats.AvgPriceByBorough(propertyType)
	case "precio-m2":
		values, err = h.stats.PricePerAreaByBorough(propertyType)
	default:
		h.respondBadRequest(c, fmt.Errorf("unknown metric %q", metric))
		return
	}
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.boroughs.Choropleth(values))
}

func (h *Handler) GetQuotes(c *gin.Context) {
	batch, err := h.quotes.LatestQuotes(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, batch)
}

func (h *Handler) GetQuote(c *gin.Context) {
	quote, err := h.quotes.LatestQuote(c.Request.Context(), c.Param("name"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, quote)
}

func (h *Handler) Reload(c *gin.Context) {
	if err := h.reloader.RunAll(); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "reloaded"})
}

// statsType parses :type for statistics, which also accept "all". Routes
// without the parameter cover both datasets.
func (h *Handler) statsType(c *gin.Context) (models.PropertyType, bool) {
	param := c.Param("type")
	if param == "" {
		return models.AllTypes, true
	}
	propertyType, err := models.ParsePropertyType(param)
	if err != nil {
		h.respondBadRequest(c, err)
		return "", false
	}
	return propertyType, true
}

// predictableType parses :type for operations backed by a trained model
func (h *Handler) predictableType(c *gin.Context) (models.PropertyType, bool) {
	propertyType, ok := h.statsType(c)
	if !ok {
		return "", false
	}
	if propertyType == models.AllTypes {
		h.respondBadRequest(c, errors.New("no trained model for property type all"))
		return "", false
	}
	return propertyType, true
}
