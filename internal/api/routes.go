package api

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/bc144/fennec-prediccion/internal/metrics"
	"github.com/bc144/fennec-prediccion/internal/models"
)

// predictPaths names the prediction route of each property type
var predictPaths = map[models.PropertyType]string{
	models.House:     "/casas/predict",
	models.Apartment: "/departamentos/predict",
}

// RouterOptions configures the engine built by NewRouter
type RouterOptions struct {
	AllowedOrigins []string
	Gatherer       prometheus.Gatherer
	Logger         *logrus.Logger
	Metrics        *metrics.Collector
}

// NewRouter builds a gin engine with middleware and every route registered
func NewRouter(handler *Handler, opts RouterOptions) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(corsConfig(opts.AllowedOrigins)))
	router.Use(RequestID())
	router.Use(AccessLog(handler.logger, opts.Metrics))

	SetupRoutes(router, handler)

	if opts.Gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{})))
	}
	return router
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", RequestIDHeader},
		ExposeHeaders: []string{RequestIDHeader},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	return cfg
}

func SetupRoutes(router *gin.Engine, handler *Handler) {
	router.GET("/", handler.Root)
	router.GET("/health", handler.Health)

	api := router.Group("/api")
	{
		for _, pt := range models.PredictableTypes {
			api.POST(predictPaths[pt], handler.Predict(pt))
		}

		api.GET("/alcaldias/locate", handler.LocateBorough)
		api.GET("/alcaldias/:type", handler.ListBoroughs)

		api.GET("/stats/total", handler.GetTotalAll)
		api.GET("/stats/precios-por-alcaldia", handler.GetPricesByBorough)
		api.GET("/stats/precio-m2-por-alcaldia", handler.GetPricePerAreaByBorough)
		api.GET("/stats/:type/precio-m2", handler.GetPricePerArea)
		api.GET("/stats/:type/stats", handler.GetStats)
		api.GET("/stats/:type/total", handler.GetTotal)
		api.GET("/stats/:type/precios-por-alcaldia", handler.GetPricesByBorough)
		api.GET("/stats/:type/precio-m2-por-alcaldia", handler.GetPricePerAreaByBorough)
		api.GET("/stats/:type/mapa", handler.GetBoroughMap)

		api.GET("/fibras", handler.GetQuotes)
		api.GET("/fibras/:name", handler.GetQuote)

		api.POST("/admin/reload", handler.Reload)
	}
}
