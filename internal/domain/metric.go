package domain

// MetricCategory groups catalog entries by program area.
type MetricCategory string

const (
	MetricCategoryEducation        MetricCategory = "education"
	MetricCategoryFoodDistribution MetricCategory = "food_distribution"
	MetricCategoryWellbeing        MetricCategory = "wellbeing"
	MetricCategoryESG              MetricCategory = "esg"
)

// MetricDataType declares how an observation value should be interpreted.
type MetricDataType string

const (
	MetricDataTypeNumber     MetricDataType = "number"
	MetricDataTypeInteger    MetricDataType = "integer"
	MetricDataTypePercentage MetricDataType = "percentage"
	MetricDataTypeCurrency   MetricDataType = "currency"
	MetricDataTypeText       MetricDataType = "text"
	MetricDataTypeBoolean    MetricDataType = "boolean"
)

// MetricDefinition is an entry in the metric catalog.
type MetricDefinition struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Category    MetricCategory `json:"category"`
	DataType    MetricDataType `json:"data_type"`
	Unit        string         `json:"unit,omitempty"`
	Description string         `json:"description,omitempty"`
}
