package validators

import (
	"math"
	"net/http"
	"strconv"
	"strings"

	pkgerrors "github.com/autocare/autocare-backend/pkg/errors"
)

// ParseQueryInt returns def when key is absent.
func ParseQueryInt(r *http.Request, key string, def, min, max int) (int, error) {
	raw := queryValue(r, key)
	if raw == "" {
		return def, nil
	}
	return parseBounded(key, raw, strconv.Atoi, min, max)
}

// ParseQueryFloat reads a required float query parameter within [min, max].
func ParseQueryFloat(r *http.Request, key string, min, max float64) (float64, error) {
	raw := queryValue(r, key)
	if raw == "" {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "query parameter is required").WithDetails(map[string]any{"field": key})
	}
	return parseBounded(key, raw, parseFiniteFloat, min, max)
}

func queryValue(r *http.Request, key string) string {
	return strings.TrimSpace(r.URL.Query().Get(key))
}

func parseFiniteFloat(raw string) (float64, error) {
	value, err := strconv.ParseFloat(raw, 64)
	if err == nil && (math.IsNaN(value) || math.IsInf(value, 0)) {
		err = strconv.ErrSyntax
	}
	return value, err
}

func parseBounded[T int | float64](key, raw string, parse func(string) (T, error), min, max T) (T, error) {
	value, err := parse(raw)
	if err != nil {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "query parameter must be numeric").WithDetails(map[string]any{"field": key})
	}
	if value < min || value > max {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "query parameter out of range").WithDetails(map[string]any{"field": key, "min": min, "max": max})
	}
	return value, nil
}
