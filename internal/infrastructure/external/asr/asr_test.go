package asr

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scholarmaster/campus-attendance/pkg/logger"
)

func TestClient_Transcribe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/transcribe", r.URL.Path)
		if _, hdr, err := r.FormFile("file"); assert.NoError(t, err) {
			assert.Equal(t, "lec.wav", hdr.Filename)
		}
		_, _ = w.Write([]byte(`{"language":"en","segments":[{"start":0,"end":1,"text":" Today we cover "},{"start":1,"end":2,"text":"graphs."},{"text":"  "}]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second, logger.Nop())
	tr, err := c.Transcribe(context.Background(), []byte("RIFF"), "lec.wav")
	require.NoError(t, err)
	assert.Equal(t, "en", tr.Language)
	assert.Equal(t, "Today we cover graphs.", tr.Text())
}

func TestClient_RejectsEmptyAudio(t *testing.T) {
	c := NewClient("http://127.0.0.1:1", time.Second, logger.Nop())
	_, err := c.Transcribe(context.Background(), nil, "")
	assert.Error(t, err)
}

type fakeTranscriber struct{ text string }

func (f fakeTranscriber) Transcribe(context.Context, []byte, string) (Transcript, error) {
	return Transcript{Segments: []Segment{{Text: f.text}}}, nil
}

type recordingSink struct {
	mu    sync.Mutex
	texts []string
}

func (s *recordingSink) Push(_ context.Context, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.texts = append(s.texts, text)
	return nil
}

func (s *recordingSink) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.texts)
}

func TestScribe_ProcessesQueue(t *testing.T) {
	sink := &recordingSink{}
	s := NewScribe(fakeTranscriber{text: "hello class"}, sink, 2, 1, logger.Nop())

	require.NoError(t, s.Submit(Chunk{Audio: []byte("a")}))
	require.NoError(t, s.Submit(Chunk{Audio: []byte("b")}))
	assert.ErrorIs(t, s.Submit(Chunk{Audio: []byte("c")}), ErrQueueFull)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool { return sink.len() == 2 }, 2*time.Second, 10*time.Millisecond)
	cancel()
	<-done
	assert.Equal(t, "hello class", sink.texts[0])
}
