package validator

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/rpattn/impactdash/internal/domain"
)

// ValueValidator checks raw observation values against a metric data type.
// Values are stored as strings; this only decides whether a string reads
// as the declared type.
type ValueValidator struct{}

// NewValueValidator creates a new value validator
func NewValueValidator() *ValueValidator {
	return &ValueValidator{}
}

// ValidationError describes one rejected value.
type ValidationError struct {
	MetricID string `json:"metricId"`
	Message  string `json:"message"`
	Value    string `json:"value,omitempty"`
}

func (e ValidationError) Error() string {
	return e.Message
}

// Validate returns a ValidationError when raw does not read as the metric's data type.
func (v *ValueValidator) Validate(metric domain.MetricDefinition, raw string) error {
	value := strings.TrimSpace(raw)
	if value == "" {
		return ValidationError{MetricID: metric.ID, Message: fmt.Sprintf("metric '%s' requires a value", metric.ID)}
	}

	if err := v.validateType(metric.DataType, value); err != nil {
		return ValidationError{
			MetricID: metric.ID,
			Message:  fmt.Sprintf("metric '%s' %s", metric.ID, err.Error()),
			Value:    value,
		}
	}
	return nil
}

func (v *ValueValidator) validateType(dataType domain.MetricDataType, value string) error {
	switch domain.MetricDataType(strings.ToLower(string(dataType))) {
	case domain.MetricDataTypeInteger:
		if !v.isInteger(value) {
			return fmt.Errorf("must be an integer, got %q", value)
		}
	case domain.MetricDataTypeNumber:
		if !v.isFloat(value) {
			return fmt.Errorf("must be a number, got %q", value)
		}
	case domain.MetricDataTypeCurrency:
		if !v.isFloat(v.stripCurrency(value)) {
			return fmt.Errorf("must be a currency amount, got %q", value)
		}
	case domain.MetricDataTypePercentage:
		f, ok := v.percentage(value)
		if !ok {
			return fmt.Errorf("must be a percentage, got %q", value)
		}
		if f < 0 || f > 100 {
			return fmt.Errorf("percentage %v is outside 0-100", f)
		}
	case domain.MetricDataTypeBoolean:
		if _, err := strconv.ParseBool(strings.ToLower(value)); err != nil {
			switch strings.ToLower(value) {
			case "yes", "no", "y", "n":
			default:
				return fmt.Errorf("must be a boolean, got %q", value)
			}
		}
	case domain.MetricDataTypeText, "":
		// any non-empty string
	default:
		return fmt.Errorf("has unknown data type %s", dataType)
	}
	return nil
}

// Helper methods for type checking
func (v *ValueValidator) isInteger(value string) bool {
	_, err := strconv.ParseInt(strings.ReplaceAll(value, ",", ""), 10, 64)
	return err == nil
}

func (v *ValueValidator) isFloat(value string) bool {
	_, err := strconv.ParseFloat(strings.ReplaceAll(value, ",", ""), 64)
	return err == nil
}

func (v *ValueValidator) stripCurrency(value string) string {
	return strings.TrimLeft(value, "£$€ ")
}

func (v *ValueValidator) percentage(value string) (float64, bool) {
	f, err := strconv.ParseFloat(strings.TrimSpace(strings.TrimSuffix(value, "%")), 64)
	if err != nil {
		return 0, false
	}
	return f, true
}
