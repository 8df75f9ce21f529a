package tesseractcli_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docscan/internal/config"
	"docscan/internal/domain"
	"docscan/internal/recognizer/tesseractcli"
)

const sampleTSV = "level\tpage_num\tblock_num\tpar_num\tline_num\tword_num\tleft\ttop\twidth\theight\tconf\ttext\n" +
	"1\t1\t0\t0\t0\t0\t0\t0\t2000\t1000\t-1\t\n" +
	"2\t1\t1\t0\t0\t0\t100\t100\t800\t40\t-1\t\n" +
	"4\t1\t1\t1\t1\t0\t100\t100\t800\t40\t-1\t\n" +
	"5\t1\t1\t1\t1\t1\t100\t100\t200\t40\t95.5\tFaktura\n" +
	"5\t1\t1\t1\t1\t2\t320\t100\t100\t40\t91\tnr\n" +
	"5\t1\t1\t1\t1\t3\t440\t100\t300\t40\t12\t \n" +
	"5\t1\t1\t1\t1\t4\t760\t100\t200\t40\t87\tFV/2024/03/15\n"

func TestParseTSV(t *testing.T) {
	tokens, err := tesseractcli.ParseTSV([]byte(sampleTSV), 0, 0)

	require.NoError(t, err)
	require.Len(t, tokens, 3)
	assert.Equal(t, "Faktura", tokens[0].Text)
	assert.InDelta(t, 0.955, tokens[0].Confidence, 1e-9)
	assert.InDelta(t, 0.05, tokens[0].Box.X, 1e-9)
	assert.InDelta(t, 0.1, tokens[0].Box.Y, 1e-9)
	assert.InDelta(t, 0.1, tokens[0].Box.W, 1e-9)
	assert.InDelta(t, 0.04, tokens[0].Box.H, 1e-9)
	assert.Equal(t, 0, tokens[0].Box.Page)
	assert.Equal(t, "FV/2024/03/15", tokens[2].Text)
}

func TestParseTSV_FallbackDimensions(t *testing.T) {
	data := "5\t1\t1\t1\t1\t1\t50\t50\t100\t20\t90\tRazem\n"

	tokens, err := tesseractcli.ParseTSV([]byte(data), 500, 1000)
	require.NoError(t, err)
	require.Len(t, tokens, 1)
	assert.InDelta(t, 0.1, tokens[0].Box.X, 1e-9)
	assert.InDelta(t, 0.05, tokens[0].Box.Y, 1e-9)

	_, err = tesseractcli.ParseTSV([]byte(data), 0, 0)
	assert.Error(t, err)
}

func TestParseTSV_SkipsGarbage(t *testing.T) {
	tokens, err := tesseractcli.ParseTSV([]byte("not\ta\ttsv\nline\n"), 100, 100)
	require.NoError(t, err)
	assert.Empty(t, tokens)
}

func TestNew_MissingBinary(t *testing.T) {
	_, err := tesseractcli.New(config.TesseractConfig{BinaryPath: "/nonexistent/tesseract-xyz"}, nil)
	assert.Error(t, err)
}

func TestBackend_Supports(t *testing.T) {
	var b tesseractcli.Backend
	assert.True(t, b.Supports(domain.MediaTypePNG))
	assert.False(t, b.Supports(domain.MediaTypePDF))
}
