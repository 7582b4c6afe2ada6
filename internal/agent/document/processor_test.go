package document

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feichai0017/sheetscan/pkg/logger"
)

type stubProcessor struct {
	types  map[string]bool
	text   string
	err    error
	calls  int
	closed bool
}

func (s *stubProcessor) CanProcess(mimeType string) bool { return s.types[mimeType] }

func (s *stubProcessor) Recognize(context.Context, Input) (string, error) {
	s.calls++
	return s.text, s.err
}

func (s *stubProcessor) Close() error {
	s.closed = true
	return nil
}

func TestFallbackUsesPrimaryText(t *testing.T) {
	primary := &stubProcessor{types: map[string]bool{"application/pdf": true}, text: "page text"}
	secondary := &stubProcessor{types: map[string]bool{"application/pdf": true}, text: "vision text"}
	f := &Fallback{Primary: primary, Secondary: secondary}

	text, err := f.Recognize(context.Background(), Input{MimeType: "application/pdf"})

	require.NoError(t, err)
	assert.Equal(t, "page text", text)
	assert.Equal(t, 0, secondary.calls)
}

func TestFallbackOnBlankPrimary(t *testing.T) {
	primary := &stubProcessor{types: map[string]bool{"application/pdf": true}, text: "  \n "}
	secondary := &stubProcessor{types: map[string]bool{"application/pdf": true}, text: "vision text"}
	log := logger.NewTestLogger()
	f := &Fallback{Primary: primary, Secondary: secondary, Logger: log}

	text, err := f.Recognize(context.Background(), Input{MimeType: "application/pdf"})

	require.NoError(t, err)
	assert.Equal(t, "vision text", text)
	assert.True(t, log.Has("INFO", "Primary recognizer produced no text, trying fallback"))
}

func TestFallbackSkipsPrimaryForOtherTypes(t *testing.T) {
	primary := &stubProcessor{types: map[string]bool{"application/pdf": true}}
	secondary := &stubProcessor{types: map[string]bool{"image/png": true}, text: "png text"}
	f := &Fallback{Primary: primary, Secondary: secondary}

	assert.True(t, f.CanProcess("image/png"))
	text, err := f.Recognize(context.Background(), Input{MimeType: "image/png"})

	require.NoError(t, err)
	assert.Equal(t, "png text", text)
	assert.Equal(t, 0, primary.calls)
}

func TestFallbackKeepsPrimaryErrorWhenSecondaryCannotHelp(t *testing.T) {
	boom := errors.New("corrupt pdf")
	primary := &stubProcessor{types: map[string]bool{"application/pdf": true}, err: boom}
	secondary := &stubProcessor{types: map[string]bool{"image/png": true}}
	f := &Fallback{Primary: primary, Secondary: secondary}

	_, err := f.Recognize(context.Background(), Input{MimeType: "application/pdf"})
	assert.ErrorIs(t, err, boom)

	primary.err = nil
	_, err = f.Recognize(context.Background(), Input{MimeType: "application/pdf"})
	assert.ErrorIs(t, err, ErrNoText)

	require.NoError(t, f.Close())
	assert.True(t, primary.closed)
	assert.True(t, secondary.closed)
}
