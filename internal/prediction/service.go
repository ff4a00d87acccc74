// Package prediction prices a property from its trained artifacts: encode,
// scale, run the regressor and invert the target transform.
package prediction

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/bc144/fennec-prediccion/config"
	"github.com/bc144/fennec-prediccion/internal/metrics"
	"github.com/bc144/fennec-prediccion/internal/models"
)

var errNotLoaded = errors.New("artifacts not loaded")

// Service prices one property type. Artifacts live behind an atomic pointer:
// readers always see a complete set and Reload never blocks them.
type Service struct {
	propertyType models.PropertyType
	dir          string
	ranges       *config.FeatureRanges
	current      atomic.Pointer[ArtifactSet]
	logger       *logrus.Logger
	metrics      *metrics.Collector
	now          func() time.Time
}

// NewService creates a service for one property type. Artifacts are not read
// until Reload is called.
func NewService(propertyType models.PropertyType, dir string, ranges *config.FeatureRanges, logger *logrus.Logger, collector *metrics.Collector) *Service {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
		logger.SetOutput(os.Stdout)
		logger.SetLevel(logrus.InfoLevel)
	}
	if ranges == nil {
		ranges = config.DefaultFeatureRanges()
	}

	return &Service{
		propertyType: propertyType,
		dir:          dir,
		ranges:       ranges,
		logger:       logger,
		metrics:      collector,
		now:          time.Now,
	}
}

// PropertyType returns the type this service prices
func (s *Service) PropertyType() models.PropertyType {
	return s.propertyType
}

// Reload reads a complete artifact set from disk and swaps it in. On failure
// the previous set, if any, stays active.
func (s *Service) Reload() error {
	set, err := LoadArtifacts(s.dir, s.propertyType, s.ranges.For(string(s.propertyType)))
	if err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"property_type": s.propertyType,
			"dir":           s.dir,
			"kept_previous": s.current.Load() != nil,
		}).Error("Failed to load model artifacts")
		return models.NewModelUnavailable(s.propertyType, err)
	}

	s.current.Store(set)
	s.logger.WithFields(logrus.Fields{
		"property_type": s.propertyType,
		"columns":       set.Encoder.Schema().Len(),
		"boroughs":      len(set.Encoder.Schema().Boroughs()),
		"transform":     set.Transform,
	}).Info("Loaded model artifacts")
	return nil
}

// Loaded reports whether an artifact set is available
func (s *Service) Loaded() bool {
	return s.current.Load() != nil
}

// Estimate returns the estimated price of a record. Encoder errors are
// returned unchanged; anything else is a ModelUnavailable error.
func (s *Service) Estimate(record models.PropertyRecord) (float64, error) {
	set := s.current.Load()
	if set == nil {
		return 0, models.NewModelUnavailable(s.propertyType, errNotLoaded)
	}

	vec, err := set.Encoder.Encode(record)
	if err != nil {
		if models.KindOf(err) != models.KindUnknown {
			return 0, err
		}
		return 0, models.NewModelUnavailable(s.propertyType, err)
	}

	scaled, err := set.Scaler.Transform(vec)
	if err != nil {
		return 0, models.NewModelUnavailable(s.propertyType, err)
	}

	raw := set.Model.Predict(scaled)
	price, err := set.Transform.Invert(raw)
	if err != nil {
		return 0, models.NewModelUnavailable(s.propertyType, err)
	}
	if math.IsNaN(price) || math.IsInf(price, 0) {
		return 0, models.NewModelUnavailable(s.propertyType, fmt.Errorf("model produced non-finite price from output %g", raw))
	}

	s.logger.WithFields(logrus.Fields{
		"property_type":   s.propertyType,
		"borough":         record.Borough,
		"log_prediction":  raw,
		"estimated_price": price,
	}).Debug("Computed price estimate")

	return price, nil
}

// Predict wraps Estimate into a PredictionResult
func (s *Service) Predict(ctx context.Context, record models.PropertyRecord) (*models.PredictionResult, error) {
	timer := metrics.StartTimer()
	price, err := s.Estimate(record)

	outcome := "ok"
	if err != nil {
		outcome = models.KindOf(err).String()
	}
	s.metrics.RecordPrediction(string(s.propertyType), outcome, timer.Elapsed())

	if err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"property_type": s.propertyType,
			"borough":       record.Borough,
			"request_id":    models.RequestIDFrom(ctx),
		}).Warn("Prediction failed")
		return nil, err
	}

	return &models.PredictionResult{
		PropertyType:   s.propertyType,
		EstimatedPrice: price,
		Borough:        record.Borough,
		Features:       record.Features(),
		ComputedAt:     s.now().UTC(),
		RequestID:      models.RequestIDFrom(ctx),
	}, nil
}

// Boroughs lists the boroughs the loaded schema can encode
func (s *Service) Boroughs() ([]string, error) {
	set := s.current.Load()
	if set == nil {
		return nil, models.NewModelUnavailable(s.propertyType, errNotLoaded)
	}
	return set.Encoder.Schema().Boroughs(), nil
}

// Registry holds one Service per predictable property type
type Registry struct {
	services map[models.PropertyType]*Service
}

// NewRegistry creates services for every predictable type and loads them.
// Types whose artifacts fail to load stay registered and report
// ModelUnavailable until a later Reload succeeds.
func NewRegistry(dir string, ranges *config.FeatureRanges, logger *logrus.Logger, collector *metrics.Collector) (*Registry, error) {
	r := &Registry{
		services: make(map[models.PropertyType]*Service, len(models.PredictableTypes)),
	}
	for _, pt := range models.PredictableTypes {
		r.services[pt] = NewService(pt, dir, ranges, logger, collector)
	}
	return r, r.Reload()
}

// Service returns the service for a property type
func (r *Registry) Service(propertyType models.PropertyType) (*Service, error) {
	svc, ok := r.services[propertyType]
	if !ok {
		return nil, fmt.Errorf("no prediction model for property type %q", propertyType)
	}
	return svc, nil
}

// Reload reloads every type and joins the failures
func (r *Registry) Reload() error {
	var errs []error
	for _, pt := range models.PredictableTypes {
		if err := r.services[pt].Reload(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Predict prices a record with the service of its property type
func (r *Registry) Predict(ctx context.Context, propertyType models.PropertyType, record models.PropertyRecord) (*models.PredictionResult, error) {
	svc, err := r.Service(propertyType)
	if err != nil {
		return nil, err
	}
	return svc.Predict(ctx, record)
}

// Boroughs lists the boroughs known to a property type's schema
func (r *Registry) Boroughs(propertyType models.PropertyType) ([]string, error) {
	svc, err := r.Service(propertyType)
	if err != nil {
		return nil, err
	}
	return svc.Boroughs()
}

// Status reports which property types have artifacts loaded
func (r *Registry) Status() map[models.PropertyType]bool {
	out := make(map[models.PropertyType]bool, len(r.services))
	for pt, svc := range r.services {
		out[pt] = svc.Loaded()
	}
	return out
}
