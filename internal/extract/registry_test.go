package extract

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_PlainText(t *testing.T) {
	r := NewDefaultRegistry()

	text, err := r.Extract(context.Background(), "text/plain", []byte("hello world"))
	require.NoError(t, err)
	assert.Equal(t, "hello world", text)
}

func TestRegistry_CSV(t *testing.T) {
	r := NewDefaultRegistry()

	text, err := r.Extract(context.Background(), "text/csv", []byte("a,b,c\n1,2,3\n"))
	require.NoError(t, err)
	assert.Equal(t, "a,b,c\n1,2,3\n", text)
}

func TestRegistry_StripsBOM(t *testing.T) {
	r := NewDefaultRegistry()

	data := append([]byte{0xEF, 0xBB, 0xBF}, []byte("content")...)
	text, err := r.Extract(context.Background(), "text/plain", data)
	require.NoError(t, err)
	assert.Equal(t, "content", text)
}

func TestRegistry_NormalizesMimeType(t *testing.T) {
	r := NewDefaultRegistry()

	text, err := r.Extract(context.Background(), "text/CSV; charset=utf-8", []byte("x,y"))
	require.NoError(t, err)
	assert.Equal(t, "x,y", text)
}

func TestRegistry_UnsupportedTypeRejected(t *testing.T) {
	r := NewDefaultRegistry()

	// 二进制格式必须拒绝，而不是按文本误解码
	_, err := r.Extract(context.Background(), "application/octet-stream", []byte{0x00, 0x01})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnsupportedType)
}

func TestRegistry_RegisterOverrides(t *testing.T) {
	r := NewDefaultRegistry()
	r.Register("text/plain", ExtractorFunc(func(_ context.Context, _ []byte) (string, error) {
		return "overridden", nil
	}))

	text, err := r.Extract(context.Background(), "text/plain", []byte("ignored"))
	require.NoError(t, err)
	assert.Equal(t, "overridden", text)
}

func TestRegistry_Supports(t *testing.T) {
	r := NewDefaultRegistry()

	assert.True(t, r.Supports("application/pdf"))
	assert.True(t, r.Supports("text/plain"))
	assert.False(t, r.Supports("application/zip"))
	assert.NotEmpty(t, r.SupportedTypes())
}

func TestRegistry_PDFRejectsGarbage(t *testing.T) {
	r := NewDefaultRegistry()

	_, err := r.Extract(context.Background(), "application/pdf", []byte("not a pdf at all"))
	assert.Error(t, err)
}
