package lol

import (
	"bytes"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLevelFilter(t *testing.T) {
	defer SetLoggers(Info)
	NoTimeStomp.Store(true)
	var buf bytes.Buffer
	lg := New(&buf)
	SetLoggers(Warn)
	lg.Log.D.Ln("hidden")
	lg.Log.W.F("shown %d", 1)
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown 1")
	assert.Contains(t, buf.String(), "log_test.go:")

	buf.Reset()
	assert.True(t, lg.Check.D(errors.New("quiet")), "a non-nil error is reported even when not printed")
	assert.Zero(t, buf.Len())
	assert.False(t, lg.Check.E(nil))

	inner := errors.New("inner")
	err := lg.Errorf.E("failed %s: %w", "here", inner)
	assert.EqualError(t, err, "failed here: inner")
	assert.ErrorIs(t, err, inner)
	assert.Contains(t, buf.String(), "failed here")
}

func TestSetOutputAndWholeLines(t *testing.T) {
	defer SetLoggers(Info)
	NoTimeStomp.Store(true)
	var first, second bytes.Buffer
	lg := New(&first)
	SetLoggers(Info)
	lg.Log.I.Ln("one", 2)
	lg.SetOutput(&second)
	lg.Log.I.S(map[string]int{"k": 1})
	assert.Contains(t, first.String(), "one 2")
	assert.Contains(t, second.String(), `"k"`)

	var buf syncBuffer
	lg.SetOutput(&buf)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			lg.Log.I.F("line %02d", i)
		}()
	}
	wg.Wait()
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Len(t, lines, 50)
	for _, l := range lines {
		assert.True(t, strings.HasPrefix(l, levelTags[Info]+" line "), l)
	}
}

type syncBuffer struct {
	mx sync.Mutex
	b  bytes.Buffer
}

func (s *syncBuffer) Write(p []byte) (int, error) {
	s.mx.Lock()
	defer s.mx.Unlock()
	return s.b.Write(p)
}

func (s *syncBuffer) String() string { return s.b.String() }

func TestGetLogLevel(t *testing.T) {
	for i, name := range LevelNames {
		assert.Equal(t, i, GetLogLevel(name), name)
	}
	assert.Equal(t, Debug, GetLogLevel(" DEBUG "))
	assert.Equal(t, Info, GetLogLevel("bogus"))
}
