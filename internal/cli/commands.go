package cli

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"ai-things/postforge/internal/audiofx"
	"ai-things/postforge/internal/chunker"
	"ai-things/postforge/internal/document"
	"ai-things/postforge/internal/imagerank"
	"ai-things/postforge/internal/sections"
	"ai-things/postforge/internal/utils"
)

func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(stdout, string(out))
	return err
}

func readInput(path string) (string, error) {
	if path == "-" {
		data, err := io.ReadAll(os.Stdin)
		return string(data), err
	}
	data, err := os.ReadFile(path)
	return string(data), err
}

func runChunkPreview(args []string) error {
	fs := flag.NewFlagSet("chunk:Preview", flag.ContinueOnError)
	maxChars := fs.Int("max", 3000, "Maximum chunk size in characters")
	minChars := fs.Int("min", 200, "Minimum chunk size in characters")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		return errors.New("usage: chunk:Preview <file> [--max=N] [--min=N]")
	}

	var text string
	if fs.Arg(0) == "-" {
		raw, err := readInput("-")
		if err != nil {
			return err
		}
		text = raw
	} else {
		doc, err := document.Load(fs.Arg(0))
		if err != nil {
			return err
		}
		text = doc.Text
	}

	chunks := chunker.Split(text, *maxChars, *minChars)
	utils.Debug("chunk preview", "chunks", len(chunks), "max", *maxChars, "min", *minChars)
	for _, c := range chunks {
		fmt.Fprintf(stdout, "--- chunk %d (%d chars) ---\n%s\n", c.Index, len([]rune(c.Text)), c.Text)
	}
	return nil
}

func runImagesRank(args []string) error {
	fs := flag.NewFlagSet("images:Rank", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		return errors.New("usage: images:Rank <document.json | url...>")
	}

	urls := fs.Args()
	if fs.NArg() == 1 && utils.FileExists(fs.Arg(0)) {
		doc, err := document.Load(fs.Arg(0))
		if err != nil {
			return err
		}
		urls = doc.Images
	}
	ranked := imagerank.Rank(urls)
	if len(ranked) == 0 {
		fmt.Fprintln(stdout, "no usable images")
		return nil
	}
	return printJSON(ranked)
}

func runSectionsExtract(args []string) error {
	fs := flag.NewFlagSet("sections:Extract", flag.ContinueOnError)
	music := fs.Bool("music", false, "Run the music-only extraction")
	if err := fs.Parse(args); err != nil {
		return err
	}
	path := "-"
	if fs.NArg() > 0 {
		path = fs.Arg(0)
	}
	raw, err := readInput(path)
	if err != nil {
		return err
	}
	if *music {
		return printJSON(sections.ExtractMusic(raw))
	}
	return printJSON(sections.Extract(raw).WithMusic())
}

func runAudioGraph(args []string) error {
	fs := flag.NewFlagSet("audio:Graph", flag.ContinueOnError)
	kind := fs.String("kind", string(audiofx.KindPseudoStereo), "Enhancement: none, pseudoStereo, pingPongEcho")
	channels := fs.Int("channels", 1, "Input channel count")
	delayMs := fs.Float64("delay-ms", 0, "Delay in milliseconds (0 uses the effect default)")
	decay := fs.Float64("decay", 0, "Echo decay in (0,1) (0 uses the default)")
	mix := fs.Float64("mix", 0, "Echo mix factor (0 uses the default)")
	sampleRate := fs.Int("sample-rate", 0, "Output sample rate (0 keeps the input rate)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	g := audiofx.Compile(audiofx.Spec{
		Kind:      audiofx.ParseKind(*kind),
		DelayMs:   *delayMs,
		Decay:     *decay,
		MixFactor: *mix,
	}, *channels, audiofx.Options{OutputSampleRate: *sampleRate})

	fc := audiofx.FilterComplex(g)
	if fc == "" {
		fmt.Fprintf(stdout, "no filter graph (channels=%d)\n", g.OutputChannels)
		return nil
	}
	fmt.Fprintf(stdout, "%s\n", fc)
	fmt.Fprintf(stdout, "map=[%s] channels=%d\n", g.OutputLabel, g.OutputChannels)
	return nil
}
