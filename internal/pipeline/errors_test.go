package pipeline

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewTranscodeErrorTruncatesStderr(t *testing.T) {
	stderr := strings.Repeat("x", maxStderrTail+100)
	err := NewTranscodeError([]string{"ffmpeg", "-i", "in.mp4"}, 1, stderr)

	assert.Len(t, err.StderrTail, maxStderrTail)
	assert.Equal(t, 1, err.ExitCode)
	assert.Contains(t, err.Error(), "exit 1")
}

func TestTranscodeErrorMatchesSentinelViaErrorsIs(t *testing.T) {
	err := NewTranscodeError([]string{"ffmpeg"}, 2, "boom")
	assert.ErrorIs(t, err, ErrTranscodeFailed)

	var other error = errors.New("unrelated")
	assert.NotErrorIs(t, other, ErrTranscodeFailed)
}

func TestOkWrapsValueSuccessfully(t *testing.T) {
	r := Ok(42)
	assert.True(t, r.OK)
	assert.Empty(t, r.Error)
	assert.Equal(t, 42, r.Value)
}

func TestFailTruncatesErrorMessage(t *testing.T) {
	long := strings.Repeat("y", maxStderrTail+50)
	r := Fail[int](errors.New(long))

	assert.False(t, r.OK)
	assert.Len(t, r.Error, maxStderrTail)
	assert.Equal(t, 0, r.Value)
}
