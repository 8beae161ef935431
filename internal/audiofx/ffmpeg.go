package audiofx

import (
	"strings"
)

// FilterComplex serializes g into ffmpeg -filter_complex syntax. It returns
// "" for a graph without stages.
func FilterComplex(g Graph) string {
	if len(g.Stages) == 0 {
		return ""
	}
	parts := make([]string, 0, len(g.Stages))
	for _, st := range g.Stages {
		var b strings.Builder
		for _, in := range st.Inputs {
			b.WriteString("[" + in + "]")
		}
		b.WriteString(st.Op)
		if len(st.Params) > 0 {
			b.WriteString("=")
			for i, p := range st.Params {
				if i > 0 {
					b.WriteString(":")
				}
				if p.Key != "" {
					b.WriteString(p.Key + "=")
				}
				b.WriteString(p.Value)
			}
		}
		for _, out := range st.Outputs {
			b.WriteString("[" + out + "]")
		}
		parts = append(parts, b.String())
	}
	return strings.Join(parts, ";")
}
