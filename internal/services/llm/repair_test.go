package llm

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRepairJSONStripsCodeFences(t *testing.T) {
	raw := "```json\n{\"score\": 85, \"reasoning\": \"good fit\"}\n```"
	assert.Equal(t, `{"score": 85, "reasoning": "good fit"}`, RepairJSON(raw))
}

func TestRepairJSONRemovesTrailingCommas(t *testing.T) {
	raw := `{"skills": ["go", "sql",], "score": 70,}`
	assert.Equal(t, `{"skills": ["go", "sql"], "score": 70}`, RepairJSON(raw))
}

func TestRepairJSONCutsSurroundingProse(t *testing.T) {
	raw := "Here is the analysis you asked for:\n{\"score\": 60}\nLet me know if you need more."
	assert.Equal(t, `{"score": 60}`, RepairJSON(raw))
}

func TestParseJSONRepairsOnce(t *testing.T) {
	var out struct {
		Score  int      `json:"score"`
		Skills []string `json:"skills"`
	}
	raw := "```json\n{\"score\": 72, \"skills\": [\"go\",],}\n```"
	require.NoError(t, ParseJSON(raw, &out))
	assert.Equal(t, 72, out.Score)
	assert.Equal(t, []string{"go"}, out.Skills)
}

func TestParseJSONFailsOnGarbage(t *testing.T) {
	var out map[string]interface{}
	err := ParseJSON("the model refused to answer", &out)
	require.Error(t, err)
}

func TestIsRateLimitError(t *testing.T) {
	assert.True(t, IsRateLimitError(errors.New("Error 429, Status: RESOURCE_EXHAUSTED")))
	assert.True(t, IsRateLimitError(errors.New("rate_limit_error: too many requests")))
	assert.False(t, IsRateLimitError(errors.New("connection refused")))
	assert.False(t, IsRateLimitError(nil))
}

func TestExtractRetryDelay(t *testing.T) {
	err := errors.New("Error 429, Message: quota exceeded. Please retry in 45.387061394s., Status: RESOURCE_EXHAUSTED")
	delay := ExtractRetryDelay(err)
	assert.InDelta(t, 45.387, delay.Seconds(), 0.01)

	assert.Equal(t, time.Duration(0), ExtractRetryDelay(errors.New("no delay here")))
}

func TestCalculateBackoffCapped(t *testing.T) {
	config := NewDefaultRetryConfig()
	assert.Equal(t, config.InitialBackoff, config.CalculateBackoff(0, 0))
	assert.Equal(t, config.MaxBackoff, config.CalculateBackoff(10, 0))

	// API-provided delay wins over the default base.
	withAPI := config.CalculateBackoff(0, 30*time.Second)
	assert.Equal(t, 35*time.Second, withAPI)
}
