package jobs

import (
	"context"
	"errors"
	"strings"
	"sync"

	"ai-things/postforge/internal/audiofx"
	"ai-things/postforge/internal/db"
	"ai-things/postforge/internal/providers"
	"ai-things/postforge/internal/queue"
)

type queueMessage = queue.Message

type fakeText struct {
	mu      sync.Mutex
	calls   []string
	respond func(user string) (string, error)
}

func (f *fakeText) Name() string { return "fake" }

func (f *fakeText) Generate(_ context.Context, _, user string) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, user)
	f.mu.Unlock()
	return f.respond(user)
}

type fakeSpeech struct {
	voice string
	text  string
}

func (f *fakeSpeech) Synthesize(_ context.Context, text, voice string) (providers.Speech, error) {
	f.text, f.voice = text, voice
	return providers.Speech{PCM: []byte{0, 0, 1, 1}, SampleRate: 22050, Channels: 1, Voice: voice}, nil
}

type fakeEncoder struct {
	req audiofx.EncodeRequest
	err error
}

func (f *fakeEncoder) Encode(_ context.Context, req audiofx.EncodeRequest) (audiofx.EncodeResult, error) {
	f.req = req
	if f.err != nil {
		return audiofx.EncodeResult{}, f.err
	}
	return audiofx.EncodeResult{Path: req.OutputPath, Duration: 12.5}, nil
}

type finished struct {
	id, status, postPath string
	err                  error
}

type fakeStore struct {
	inserted []db.Run
	finished []finished
}

func (f *fakeStore) InsertRun(_ context.Context, run db.Run) error {
	f.inserted = append(f.inserted, run)
	return nil
}

func (f *fakeStore) FinishRun(_ context.Context, id, status, postPath string, _ any, runErr error) error {
	f.finished = append(f.finished, finished{id, status, postPath, runErr})
	return nil
}

type fakeQueue struct {
	pending   []*queue.Message
	published map[string][][]byte
}

func (f *fakeQueue) Publish(name string, payload []byte) error {
	if f.published == nil {
		f.published = map[string][][]byte{}
	}
	f.published[name] = append(f.published[name], payload)
	return nil
}

func (f *fakeQueue) Pop(string) (*queue.Message, error) {
	if len(f.pending) == 0 {
		return nil, nil
	}
	m := f.pending[0]
	f.pending = f.pending[1:]
	return m, nil
}

// ackLog records what happened to each message.
type ackLog struct {
	events []string
}

func (a *ackLog) message(name, body string, redelivered bool) *queue.Message {
	return queue.NewMessage([]byte(body), redelivered,
		func(bool) error { a.events = append(a.events, name+":ack"); return nil },
		func(_, requeue bool) error {
			if requeue {
				a.events = append(a.events, name+":requeue")
			} else {
				a.events = append(a.events, name+":drop")
			}
			return nil
		},
	)
}

func sectionedResponse(user string) (string, error) {
	if strings.Contains(user, "FAIL") {
		return "", errors.New("model refused")
	}
	return "A verse.\n### Image Prompt\nlighthouse at dusk\n### Video Prompt\nwaves rolling\n### Music\nTAGS: lofi, waves\nDURATION: 60", nil
}
