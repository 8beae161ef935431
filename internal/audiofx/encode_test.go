package audiofx

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncoderArgs(t *testing.T) {
	g := Compile(Spec{Kind: KindPseudoStereo}, 1, Options{OutputSampleRate: 44100})
	args := Encoder{Bitrate: "192k"}.Args(EncodeRequest{Channels: 1, SampleRate: 22050, Graph: g, OutputPath: "/tmp/x.mp3"})

	joined := strings.Join(args, " ")
	assert.Contains(t, joined, "-f s16le -ar 22050 -ac 1 -i pipe:0")
	assert.Contains(t, joined, "-filter_complex "+FilterComplex(g)+" -map [out]")
	assert.Contains(t, joined, "-ac 2 -ar 44100 -acodec libmp3lame -b:a 192k")
	assert.Equal(t, "/tmp/x.mp3", args[len(args)-1])
}

func TestEncoderArgsWithoutStages(t *testing.T) {
	args := Encoder{}.Args(EncodeRequest{Channels: 1, SampleRate: 22050, Graph: Compile(Spec{}, 1, Options{}), OutputPath: "o.mp3"})
	assert.NotContains(t, args, "-filter_complex")
	assert.NotContains(t, args, "-b:a")
}

func TestEncodeWritesAndProbes(t *testing.T) {
	out := filepath.Join(t.TempDir(), "audio", "run.mp3")
	var calls [][]string
	enc := Encoder{Run: func(_ context.Context, stdin io.Reader, name string, args ...string) (string, error) {
		calls = append(calls, append([]string{name}, args...))
		if stdin != nil {
			pcm, _ := io.ReadAll(stdin)
			require.Equal(t, []byte{1, 2, 3, 4}, pcm)
			return "", os.WriteFile(args[len(args)-1], []byte("mp3"), 0o644)
		}
		return "  Duration: 00:01:02.50, start: 0.000000, bitrate: 128 kb/s", assert.AnError
	}}

	res, err := enc.Encode(context.Background(), EncodeRequest{
		PCM: []byte{1, 2, 3, 4}, Channels: 1, SampleRate: 22050,
		Graph: Compile(Spec{Kind: KindPingPongEcho}, 1, Options{}), OutputPath: out,
	})
	require.NoError(t, err)
	assert.Equal(t, out, res.Path)
	assert.InDelta(t, 62.5, res.Duration, 0.001)
	require.Len(t, calls, 2)
	assert.Equal(t, "ffmpeg", calls[0][0])
}

func TestEncodeValidates(t *testing.T) {
	_, err := Encoder{}.Encode(context.Background(), EncodeRequest{SampleRate: 1, OutputPath: "x"})
	assert.Error(t, err)
	_, err = Encoder{}.Encode(context.Background(), EncodeRequest{PCM: []byte{1}, OutputPath: "x"})
	assert.Error(t, err)
	_, err = Encoder{}.Encode(context.Background(), EncodeRequest{PCM: []byte{1}, SampleRate: 1})
	assert.Error(t, err)
}

func TestEncodeFailureSurfacesOutput(t *testing.T) {
	enc := Encoder{Run: func(context.Context, io.Reader, string, ...string) (string, error) {
		return "Unknown encoder", assert.AnError
	}}
	_, err := enc.Encode(context.Background(), EncodeRequest{PCM: []byte{1}, SampleRate: 8000, OutputPath: filepath.Join(t.TempDir(), "o.mp3")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Unknown encoder")
}

func TestParseDuration(t *testing.T) {
	d, err := ParseDuration("Duration: 01:00:01.25")
	require.NoError(t, err)
	assert.InDelta(t, 3601.25, d, 0.001)

	_, err = ParseDuration("nothing here")
	assert.Error(t, err)
}
