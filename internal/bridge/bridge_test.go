package bridge

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/daiello/wabridge/internal/backend"
	"github.com/daiello/wabridge/internal/gateway"
	"github.com/daiello/wabridge/internal/speech"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeConversations struct {
	mu         sync.Mutex
	startCalls int
	startErr   error
	posted     []backend.Activity
	postErrs   []error
	getCalls   int
	watermarks []string
	sets       []backend.ActivitySet
	getErr     error
}

func (f *fakeConversations) StartConversation(context.Context) (backend.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.startCalls++
	if f.startErr != nil {
		return backend.Conversation{}, f.startErr
	}
	return backend.Conversation{ID: fmt.Sprintf("conv-%d", f.startCalls)}, nil
}

func (f *fakeConversations) PostActivity(_ context.Context, _ string, activity backend.Activity) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.posted = append(f.posted, activity)
	if len(f.postErrs) > 0 {
		err := f.postErrs[0]
		f.postErrs = f.postErrs[1:]
		return err
	}
	return nil
}

func (f *fakeConversations) GetActivities(_ context.Context, _ string, watermark string) (backend.ActivitySet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getCalls++
	f.watermarks = append(f.watermarks, watermark)
	if f.getErr != nil {
		return backend.ActivitySet{}, f.getErr
	}
	if len(f.sets) == 0 {
		return backend.ActivitySet{}, nil
	}
	set := f.sets[0]
	if len(f.sets) > 1 {
		f.sets = f.sets[1:]
	}
	return set, nil
}

type sentItem struct {
	kind     string
	dest     string
	text     string
	media    gateway.MediaType
	filename string
	url      string
}

type fakeGateway struct {
	mu    sync.Mutex
	sent  []sentItem
	voice string
	audio string
}

func (f *fakeGateway) SendText(_ context.Context, destination, text string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentItem{kind: "text", dest: destination, text: text})
	return fmt.Sprintf("wamid-%d", len(f.sent))
}

func (f *fakeGateway) SendMedia(_ context.Context, destination string, media gateway.MediaType, filename, contentURL, _ string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentItem{kind: "media", dest: destination, media: media, filename: filename, url: contentURL})
	return fmt.Sprintf("wamid-%d", len(f.sent))
}

func (f *fakeGateway) GetVoice(context.Context, string, string) io.ReadCloser {
	return io.NopCloser(strings.NewReader(f.voice))
}

func (f *fakeGateway) GetAudio(context.Context, string) io.ReadCloser {
	return io.NopCloser(strings.NewReader(f.audio))
}

type fakeSpeech struct {
	recognized  string
	synthesized []string
	synthOK     bool
}

func (f *fakeSpeech) Recognize(context.Context, io.Reader, string) string {
	return f.recognized
}

func (f *fakeSpeech) Synthesize(_ context.Context, text, id string) (speech.Artifact, bool) {
	f.synthesized = append(f.synthesized, text)
	if !f.synthOK {
		return speech.Artifact{}, false
	}
	return speech.Artifact{Name: "Audio_" + id + ".mp3", Path: "/tmp/Audio_" + id + ".mp3"}, true
}

func botReply(id, text string) backend.Activity {
	return backend.Activity{
		Type: backend.ActivityMessage,
		ID:   id,
		From: backend.ChannelAccount{ID: "assistant"},
		Text: text,
	}
}
