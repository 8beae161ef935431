package audiofx

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ops(g Graph) []string {
	out := make([]string, 0, len(g.Stages))
	for _, st := range g.Stages {
		out = append(out, st.Op)
	}
	return out
}

func TestCompileNoneKeepsChannels(t *testing.T) {
	g := Compile(Spec{Kind: KindNone}, 2, Options{})
	assert.Empty(t, g.Stages)
	assert.Equal(t, 2, g.OutputChannels)
	assert.Empty(t, g.OutputLabel)
	assert.Empty(t, FilterComplex(g))
}

func TestCompileUnknownKindIsNone(t *testing.T) {
	g := Compile(Spec{Kind: "reverse-reverb"}, 1, Options{})
	assert.Empty(t, g.Stages)
	assert.Equal(t, 1, g.OutputChannels)
}

func TestCompilePseudoStereoFromMono(t *testing.T) {
	g := Compile(Spec{Kind: KindPseudoStereo}, 1, Options{})

	require.Equal(t, []string{"asplit", "amerge", "channelsplit", "adelay", "amerge"}, ops(g))
	assert.Equal(t, 2, g.OutputChannels)
	assert.Equal(t, "out", g.OutputLabel)
	assert.Equal(t, []Param{{"delays", "25"}}, g.Stages[3].Params)
	assert.Equal(t, []string{"right"}, g.Stages[3].Inputs)
	assert.Equal(t,
		"[0:a]asplit=2[mono0][mono1];[mono0][mono1]amerge=inputs=2[st];"+
			"[st]channelsplit=channel_layout=stereo[left][right];"+
			"[right]adelay=delays=25[right_delayed];"+
			"[left][right_delayed]amerge=inputs=2[out]",
		FilterComplex(g))
}

func TestCompilePseudoStereoFromStereoSkipsUpmix(t *testing.T) {
	g := Compile(Spec{Kind: KindPseudoStereo, DelayMs: 30}, 2, Options{})

	require.Equal(t, []string{"channelsplit", "adelay", "amerge"}, ops(g))
	assert.Equal(t, []string{InputLabel}, g.Stages[0].Inputs)
	assert.Equal(t, "30", g.Stages[1].Params[0].Value)
}

func TestCompileDownmixesSurround(t *testing.T) {
	g := Compile(Spec{Kind: KindPseudoStereo}, 6, Options{})
	require.NotEmpty(t, g.Stages)
	assert.Equal(t, "aformat", g.Stages[0].Op)
	assert.Equal(t, 2, g.OutputChannels)
}

func TestCompilePingPongEcho(t *testing.T) {
	g := Compile(Spec{Kind: KindPingPongEcho, DelayMs: 200, Decay: 0.5, MixFactor: 1}, 1, Options{})

	assert.Equal(t, []string{
		"asplit", "amerge",
		"asplit", "pan",
		"adelay", "volume", "pan",
		"adelay", "volume", "pan",
		"adelay", "volume", "pan",
		"amix",
	}, ops(g))
	assert.Equal(t, 2, g.OutputChannels)

	var delays, volumes, pans []string
	for _, st := range g.Stages {
		switch st.Op {
		case "adelay":
			delays = append(delays, st.Params[0].Value)
		case "volume":
			volumes = append(volumes, st.Params[0].Value)
		case "pan":
			pans = append(pans, st.Params[0].Value)
		}
	}
	assert.Equal(t, []string{"200|200", "400|400", "600|600"}, delays)
	assert.Equal(t, []string{"0.5", "0.25", "0.125"}, volumes)
	assert.Equal(t, []string{
		"stereo|c0=1*c0|c1=0.3*c1",
		"stereo|c0=0.1*c0|c1=1*c1",
		"stereo|c0=1*c0|c1=0.1*c1",
		"stereo|c0=0.1*c0|c1=1*c1",
	}, pans)

	mix := g.Stages[len(g.Stages)-1]
	assert.Equal(t, []string{"direct", "echo1", "echo2", "echo3"}, mix.Inputs)
	assert.Equal(t, Param{"inputs", "4"}, mix.Params[0])
}

func TestCompilePingPongDefaults(t *testing.T) {
	g := Compile(Spec{Kind: KindPingPongEcho, Decay: 3}, 2, Options{})
	assert.Equal(t, "asplit", g.Stages[0].Op)
	assert.Equal(t, "250|250", g.Stages[2].Params[0].Value)
	assert.Equal(t, "0.5", g.Stages[3].Params[0].Value)
}

func TestCompileRecordsSampleRate(t *testing.T) {
	assert.Equal(t, 44100, Compile(Spec{}, 1, Options{OutputSampleRate: 44100}).OutputSampleRate)
	assert.Zero(t, Compile(Spec{Kind: KindPseudoStereo}, 1, Options{}).OutputSampleRate)
}

func TestCompileInvalidChannelCount(t *testing.T) {
	assert.Equal(t, 1, Compile(Spec{}, 0, Options{}).OutputChannels)
}

func TestParseKind(t *testing.T) {
	assert.Equal(t, KindPseudoStereo, ParseKind("pseudoStereo"))
	assert.Equal(t, KindPseudoStereo, ParseKind(" pseudo-stereo "))
	assert.Equal(t, KindPingPongEcho, ParseKind("PingPongEcho"))
	assert.Equal(t, KindNone, ParseKind(""))
	assert.Equal(t, KindNone, ParseKind("chorus"))
}
