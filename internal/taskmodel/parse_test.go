package taskmodel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleJSON = `{
  "name": "procedure",
  "subtasks": [
    {
      "name": "download_assets",
      "description": "Download the assets."
    },
    {
      "name": "broadcast",
      "prerequisites": ["download_assets"],
      "subtasks": [
        {
          "name": "start_broadcast",
          "description": "Start the broadcast.",
          "only_auto": true
        }
      ]
    }
  ]
}`

func TestParseJSON_Valid(t *testing.T) {
	m, err := ParseJSON([]byte(sampleJSON))
	require.NoError(t, err)
	assert.Equal(t, "procedure", m.Name)
	require.Len(t, m.Subtasks, 2)
	assert.Equal(t, "download_assets", m.Subtasks[0].Name)
	assert.True(t, m.Subtasks[1].Subtasks[0].OnlyAuto)
}

func TestParseJSON_UnknownField(t *testing.T) {
	_, err := ParseJSON([]byte(`{"name": "x", "subtasks": [{"name": "a", "description": "A", "bogus": 1}]}`))
	require.Error(t, err)
}

func TestParseJSON_PropagatesValidationErrors(t *testing.T) {
	_, err := ParseJSON([]byte(`{"subtasks": [{"name": "a"}]}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must have a description")
}

const sampleYAML = `
name: procedure
subtasks:
  - name: download_assets
    description: Download the assets.
  - name: broadcast
    prerequisites: [download_assets]
    subtasks:
      - name: start_broadcast
        description: Start the broadcast.
        only_auto: true
`

func TestParseYAML_Valid(t *testing.T) {
	m, err := ParseYAML([]byte(sampleYAML))
	require.NoError(t, err)
	assert.Equal(t, "procedure", m.Name)
	require.Len(t, m.Subtasks, 2)
	assert.True(t, m.Subtasks[1].Subtasks[0].OnlyAuto)
}

func TestParseYAML_UnknownField(t *testing.T) {
	_, err := ParseYAML([]byte("name: x\nsubtasks:\n  - name: a\n    description: A\n    bogus: 1\n"))
	require.Error(t, err)
}
