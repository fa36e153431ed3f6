package custom_workflow

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pngWithText encodes a 1x1 PNG and inserts one tEXt chunk per pair right
// after IHDR.
func pngWithText(t *testing.T, pairs ...[2]string) []byte {
	t.Helper()

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 1, 1))))

	encoded := buf.Bytes()

	// signature (8) + IHDR length/type (8) + data (13) + crc (4)
	split := len(pngSignature) + 8 + 13 + 4

	var out bytes.Buffer
	out.Write(encoded[:split])

	for _, pair := range pairs {
		data := append([]byte(pair[0]+"\x00"), pair[1]...)

		var length [4]byte
		binary.BigEndian.PutUint32(length[:], uint32(len(data)))
		out.Write(length[:])

		typed := append([]byte(chunkTEXT), data...)
		out.Write(typed)

		var crc [4]byte
		binary.BigEndian.PutUint32(crc[:], crc32.ChecksumIEEE(typed))
		out.Write(crc[:])
	}

	out.Write(encoded[split:])

	return out.Bytes()
}

func TestLoadJSONFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flow.JSON")
	require.NoError(t, os.WriteFile(path, []byte(` {"3":{"class_type":"KSampler"}} `), 0o600))

	result, err := New().LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, "json", result.Source)
	assert.JSONEq(t, `{"3":{"class_type":"KSampler"}}`, string(result.Workflow))
}

func TestLoadJSONRejectsNonObjects(t *testing.T) {
	for _, body := range []string{`[1,2]`, `"flow"`, `null`, `{`} {
		_, err := New().Load("flow.json", []byte(body))
		assert.Error(t, err, body)
	}

	_, err := New().Load("flow.json", []byte(`{}`))
	assert.ErrorIs(t, err, ErrNoWorkflow)
}

func TestLoadUnsupportedExtension(t *testing.T) {
	_, err := New().Load("flow.yaml", []byte(`{}`))
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestLoadPNGPrefersWorkflow(t *testing.T) {
	data := pngWithText(t,
		[2]string{"prompt", `{"1":{"class_type":"CheckpointLoaderSimple"}}`},
		[2]string{"workflow", `{"nodes":[]}`},
	)

	result, err := New().Load("out.png", data)
	require.NoError(t, err)

	assert.Equal(t, "workflow", result.Source)
	assert.JSONEq(t, `{"nodes":[]}`, string(result.Workflow))
}

func TestLoadPNGFallsBackToPrompt(t *testing.T) {
	data := pngWithText(t,
		[2]string{"workflow", `not json`},
		[2]string{"prompt", `{"1":{"class_type":"CheckpointLoaderSimple"}}`},
	)

	result, err := New().Load("out.png", data)
	require.NoError(t, err)

	assert.Equal(t, "prompt", result.Source)
}

func TestLoadPNGParameters(t *testing.T) {
	data := pngWithText(t,
		[2]string{"parameters", "a cat in a hat\nNegative prompt: blurry\nSteps: 20"},
	)

	result, err := New().Load("out.png", data)
	require.NoError(t, err)

	assert.Equal(t, "parameters", result.Source)
	assert.Equal(t, "a cat in a hat", result.Prompt)
	assert.True(t, result.Workflow.Empty())
}

func TestLoadPNGWithoutMetadata(t *testing.T) {
	_, err := New().Load("out.png", pngWithText(t))
	assert.ErrorIs(t, err, ErrNoWorkflow)
}

func TestLoadPNGBadSignature(t *testing.T) {
	_, err := New().Load("out.png", []byte("GIF89a"))
	assert.ErrorIs(t, err, ErrNotPNG)
}
