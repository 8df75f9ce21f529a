package recognizer_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docscan/internal/recognizer"
)

func TestParseTokenJSON(t *testing.T) {
	res, err := recognizer.ParseTokenJSON("```json\n" + `{"tokens":[
		{"text":"Data","page":0,"bbox":[0.1,0.2,0.05,0.02],"confidence":0.9},
		{"text":"wystawienia:","bbox":[0.16,0.2,0.1,0.02]},
		{"text":"","bbox":[0.3,0.2,0.1,0.02],"confidence":1},
		{"text":"broken","bbox":[0.3,0.2]},
		{"text":"2024-03-15","bbox":[0.27,0.2,1.5,-0.1],"confidence":7}
	]}` + "\n```")

	require.NoError(t, err)
	require.Len(t, res.Tokens, 3)
	assert.Equal(t, 0.5, res.Tokens[1].Confidence)
	assert.Equal(t, 1.0, res.Tokens[2].Confidence)
	assert.Equal(t, 1.0, res.Tokens[2].Box.W)
	assert.Equal(t, 0.0, res.Tokens[2].Box.H)
}

func TestParseTokenJSON_Invalid(t *testing.T) {
	_, err := recognizer.ParseTokenJSON("no json here")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing token JSON")
}
