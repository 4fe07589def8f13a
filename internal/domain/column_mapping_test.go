package domain

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseColumnMappingKeepsOrder(t *testing.T) {
	mapping, err := ParseColumnMapping(`{"meals":"meals_served","students":"students_enrolled","lunches":"meals_served"}`)
	require.NoError(t, err)

	assert.Equal(t, []string{"meals", "students", "lunches"}, mapping.Columns())
	assert.Equal(t, []string{"meals_served", "students_enrolled"}, mapping.MetricIDs())

	encoded, err := json.Marshal(mapping)
	require.NoError(t, err)
	assert.JSONEq(t, `{"meals":"meals_served","students":"students_enrolled","lunches":"meals_served"}`, string(encoded))
	assert.Equal(t, `{"meals":"meals_served","students":"students_enrolled","lunches":"meals_served"}`, string(encoded))
}

func TestParseColumnMappingBlankAndNull(t *testing.T) {
	for _, raw := range []string{"", "   ", "null", "{}"} {
		mapping, err := ParseColumnMapping(raw)
		require.NoError(t, err, raw)
		assert.Empty(t, mapping, raw)
		assert.NotNil(t, mapping, raw)
	}
}

func TestParseColumnMappingRejectsNonObjects(t *testing.T) {
	for _, raw := range []string{`[]`, `"meals"`, `{"meals":1}`, `{"meals":"x"`} {
		_, err := ParseColumnMapping(raw)
		assert.Error(t, err, raw)
	}
}

func TestUploadCompletedCopiesErrors(t *testing.T) {
	mapping := ColumnMapping{{Column: "meals", MetricID: "meals_served"}}
	upload := NewUpload(uuid.New(), "abc", "a.csv", 3, mapping)
	mapping[0].MetricID = "changed"

	assert.Equal(t, UploadStatusProcessing, upload.Status)
	assert.Equal(t, "meals_served", upload.ColumnMapping[0].MetricID)

	errs := []string{"Row 2: Date column not found"}
	done := upload.Completed(0, 1, errs)
	errs[0] = "mutated"

	assert.Equal(t, UploadStatusCompleted, done.Status)
	assert.Equal(t, []string{"Row 2: Date column not found"}, done.Errors)
	assert.Equal(t, UploadStatusProcessing, upload.Status)

	raw, err := Upload{}.ErrorsToJSON()
	require.NoError(t, err)
	assert.Equal(t, "[]", string(raw))
}
