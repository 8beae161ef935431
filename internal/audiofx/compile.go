// Package audiofx compiles a declarative enhancement request into an ordered
// list of signal-processing stages and encodes synthesized speech with them.
//
// The compiler is string-format agnostic: stages are plain data, and only
// FilterComplex knows how ffmpeg spells them.
package audiofx

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Kind selects the channel effect.
type Kind string

const (
	KindNone         Kind = "none"
	KindPseudoStereo Kind = "pseudoStereo"
	KindPingPongEcho Kind = "pingPongEcho"
)

// ParseKind maps user input to a Kind; anything unrecognized is KindNone.
func ParseKind(value string) Kind {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "pseudostereo", "pseudo_stereo", "pseudo-stereo":
		return KindPseudoStereo
	case "pingpongecho", "ping_pong_echo", "ping-pong-echo", "pingpong":
		return KindPingPongEcho
	default:
		return KindNone
	}
}

func (k Kind) needsStereo() bool {
	return k == KindPseudoStereo || k == KindPingPongEcho
}

const (
	DefaultPseudoStereoDelayMs = 25.0
	DefaultPingPongDelayMs     = 250.0
	DefaultDecay               = 0.5
	DefaultMixFactor           = 1.0

	// pingPongTaps is the direct copy plus three echoes.
	pingPongTaps = 4

	// InputLabel is the encoder's first audio input.
	InputLabel = "0:a"
)

// Spec is the caller's enhancement request. Zero numeric fields take defaults.
type Spec struct {
	Kind      Kind    `json:"kind"`
	DelayMs   float64 `json:"delay_ms,omitempty"`
	Decay     float64 `json:"decay,omitempty"`
	MixFactor float64 `json:"mix_factor,omitempty"`
}

// Param is one filter argument. An empty Key is positional.
type Param struct {
	Key   string
	Value string
}

// Stage is one node of the processing graph. It has no behavior.
type Stage struct {
	Op      string
	Inputs  []string
	Outputs []string
	Params  []Param
}

// Options carries settings orthogonal to the channel effect.
type Options struct {
	// OutputSampleRate requests resampling; zero keeps the input rate.
	OutputSampleRate int
}

// Graph is the compiler output consumed by the encoder.
type Graph struct {
	Stages           []Stage
	OutputLabel      string // empty when Stages is empty
	OutputChannels   int
	OutputSampleRate int
}

// Compile turns spec into stages for an input with inputChannels channels.
// Mono input is duplicated to stereo first when the effect needs two
// channels. Unknown kinds compile like KindNone; Compile never fails.
func Compile(spec Spec, inputChannels int, opts Options) Graph {
	if inputChannels < 1 {
		inputChannels = 1
	}
	g := Graph{OutputChannels: inputChannels}
	if opts.OutputSampleRate > 0 {
		g.OutputSampleRate = opts.OutputSampleRate
	}

	kind := ParseKind(string(spec.Kind))
	if !kind.needsStereo() {
		return g
	}

	b := &builder{}
	current := InputLabel
	switch {
	case inputChannels == 1:
		current = b.upmix(current)
	case inputChannels > 2:
		current = b.add("aformat", []string{current}, []string{"st"}, Param{"channel_layouts", "stereo"})[0]
	}

	switch kind {
	case KindPseudoStereo:
		delay := spec.DelayMs
		if delay <= 0 {
			delay = DefaultPseudoStereoDelayMs
		}
		current = b.pseudoStereo(current, delay)
	case KindPingPongEcho:
		current = b.pingPong(current, spec)
	}

	g.Stages = b.stages
	g.OutputLabel = current
	g.OutputChannels = 2
	return g
}

type builder struct {
	stages []Stage
}

func (b *builder) add(op string, inputs, outputs []string, params ...Param) []string {
	b.stages = append(b.stages, Stage{Op: op, Inputs: inputs, Outputs: outputs, Params: params})
	return outputs
}

// upmix duplicates a mono stream and merges the copies into one 2-channel stream.
func (b *builder) upmix(in string) string {
	copies := b.add("asplit", []string{in}, []string{"mono0", "mono1"}, Param{"", "2"})
	return b.add("amerge", copies, []string{"st"}, Param{"inputs", "2"})[0]
}

// pseudoStereo delays the right channel against the left for a width illusion.
func (b *builder) pseudoStereo(in string, delayMs float64) string {
	lr := b.add("channelsplit", []string{in}, []string{"left", "right"}, Param{"channel_layout", "stereo"})
	delayed := b.add("adelay", []string{lr[1]}, []string{"right_delayed"}, Param{"delays", formatFloat(delayMs)})
	return b.add("amerge", []string{lr[0], delayed[0]}, []string{"out"}, Param{"inputs", "2"})[0]
}

// pingPong approximates a bouncing echo with delay, gain and pan only: one
// direct copy panned mostly left, then echoes at delay*k with gain decay^k,
// alternately panned right, left, right. It is not a physical echo model.
func (b *builder) pingPong(in string, spec Spec) string {
	delay := spec.DelayMs
	if delay <= 0 {
		delay = DefaultPingPongDelayMs
	}
	decay := spec.Decay
	if decay <= 0 || decay >= 1 {
		decay = DefaultDecay
	}
	mix := spec.MixFactor
	if mix <= 0 {
		mix = DefaultMixFactor
	}

	taps := make([]string, pingPongTaps)
	for i := range taps {
		taps[i] = fmt.Sprintf("tap%d", i)
	}
	b.add("asplit", []string{in}, taps, Param{"", strconv.Itoa(pingPongTaps)})

	mixInputs := make([]string, 0, pingPongTaps)
	mixInputs = append(mixInputs, b.add("pan", []string{taps[0]}, []string{"direct"}, panParam(1.0, 0.3))[0])
	for k := 1; k < pingPongTaps; k++ {
		ms := formatFloat(delay * float64(k))
		delayed := b.add("adelay", []string{taps[k]}, []string{fmt.Sprintf("echo%d_d", k)}, Param{"delays", ms + "|" + ms})
		gain := mix * math.Pow(decay, float64(k))
		quiet := b.add("volume", delayed, []string{fmt.Sprintf("echo%d_v", k)}, Param{"volume", formatFloat(gain)})
		left, right := 0.1, 1.0
		if k%2 == 0 {
			left, right = 1.0, 0.1
		}
		mixInputs = append(mixInputs, b.add("pan", quiet, []string{fmt.Sprintf("echo%d", k)}, panParam(left, right))[0])
	}

	return b.add("amix", mixInputs, []string{"out"},
		Param{"inputs", strconv.Itoa(len(mixInputs))},
		Param{"duration", "longest"},
		Param{"dropout_transition", "0"},
	)[0]
}

func panParam(left, right float64) Param {
	return Param{"", fmt.Sprintf("stereo|c0=%s*c0|c1=%s*c1", formatFloat(left), formatFloat(right))}
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
