package models

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrorKind enumerates the domain failures callers can distinguish
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindBoroughNotFound
	KindFeatureOutOfRange
	KindModelUnavailable
	KindStatisticsUnavailable
	KindTickerNotFound
	KindQuoteUnavailable
	KindAllQuotesUnavailable
)

// String returns the string representation of an ErrorKind
func (k ErrorKind) String() string {
	switch k {
	case KindBoroughNotFound:
		return "borough_not_found"
	case KindFeatureOutOfRange:
		return "feature_out_of_range"
	case KindModelUnavailable:
		return "model_unavailable"
	case KindStatisticsUnavailable:
		return "statistics_unavailable"
	case KindTickerNotFound:
		return "ticker_not_found"
	case KindQuoteUnavailable:
		return "quote_unavailable"
	case KindAllQuotesUnavailable:
		return "all_quotes_unavailable"
	default:
		return "unknown"
	}
}

// DomainError carries the kind plus the offending identifier or value
type DomainError struct {
	Kind    ErrorKind
	Subject string // borough, feature, property type or ticker
	Value   float64
	Min     float64
	Max     float64
	Failed  map[string]string // ticker -> reason, for AllQuotesUnavailable
	Err     error
}

func (e *DomainError) Error() string {
	var msg string
	switch e.Kind {
	case KindBoroughNotFound:
		msg = fmt.Sprintf("borough not found: %s", e.Subject)
	case KindFeatureOutOfRange:
		msg = fmt.Sprintf("feature %s=%g outside plausible range [%g, %g]", e.Subject, e.Value, e.Min, e.Max)
	case KindModelUnavailable:
		msg = fmt.Sprintf("model unavailable: %s", e.Subject)
	case KindStatisticsUnavailable:
		msg = fmt.Sprintf("statistics unavailable: %s", e.Subject)
	case KindTickerNotFound:
		msg = fmt.Sprintf("ticker not found: %s", e.Subject)
	case KindQuoteUnavailable:
		msg = fmt.Sprintf("quote unavailable: %s", e.Subject)
	case KindAllQuotesUnavailable:
		tickers := make([]string, 0, len(e.Failed))
		for t := range e.Failed {
			tickers = append(tickers, t)
		}
		sort.Strings(tickers)
		msg = fmt.Sprintf("all quotes unavailable: %s", strings.Join(tickers, ", "))
	default:
		msg = "unknown domain error"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

func NewBoroughNotFound(borough string) error {
	return &DomainError{Kind: KindBoroughNotFound, Subject: borough}
}

func NewFeatureOutOfRange(feature string, value, min, max float64) error {
	return &DomainError{Kind: KindFeatureOutOfRange, Subject: feature, Value: value, Min: min, Max: max}
}

func NewModelUnavailable(propertyType PropertyType, err error) error {
	return &DomainError{Kind: KindModelUnavailable, Subject: string(propertyType), Err: err}
}

func NewStatisticsUnavailable(subject string, err error) error {
	return &DomainError{Kind: KindStatisticsUnavailable, Subject: subject, Err: err}
}

func NewTickerNotFound(ticker string) error {
	return &DomainError{Kind: KindTickerNotFound, Subject: ticker}
}

func NewQuoteUnavailable(ticker string, err error) error {
	return &DomainError{Kind: KindQuoteUnavailable, Subject: ticker, Err: err}
}

func NewAllQuotesUnavailable(failed map[string]string) error {
	return &DomainError{Kind: KindAllQuotesUnavailable, Failed: failed}
}

// KindOf returns the domain kind of err, or KindUnknown
func KindOf(err error) ErrorKind {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindUnknown
}

// IsKind reports whether err is a domain error of the given kind
func IsKind(err error, kind ErrorKind) bool {
	return err != nil && KindOf(err) == kind
}
