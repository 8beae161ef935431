package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"ai-things/postforge/internal/audiofx"
	"ai-things/postforge/internal/chunker"
	"ai-things/postforge/internal/config"
	"ai-things/postforge/internal/db"
	"ai-things/postforge/internal/document"
	"ai-things/postforge/internal/fallback"
	"ai-things/postforge/internal/imagerank"
	"ai-things/postforge/internal/pipeline"
	"ai-things/postforge/internal/post"
	"ai-things/postforge/internal/prompts"
	"ai-things/postforge/internal/sections"
	"ai-things/postforge/internal/utils"
)

type GeneratePostJob struct {
	BaseJob
	Deps Deps
}

func NewGeneratePostJob(deps Deps, input, output string) GeneratePostJob {
	return GeneratePostJob{
		BaseJob: BaseJob{QueueInput: input, QueueOutput: output},
		Deps:    deps,
	}
}

// MediaResult records one fallback chain.
type MediaResult struct {
	Prompt   string   `json:"prompt,omitempty"`
	Provider string   `json:"provider,omitempty"`
	Ref      string   `json:"ref,omitempty"`
	Skipped  bool     `json:"skipped,omitempty"`
	Error    string   `json:"error,omitempty"`
	Tried    []string `json:"tried,omitempty"`
}

type AudioResult struct {
	Path        string  `json:"path,omitempty"`
	Duration    float64 `json:"duration,omitempty"`
	Enhancement string  `json:"enhancement,omitempty"`
	Channels    int     `json:"channels,omitempty"`
	Error       string  `json:"error,omitempty"`
}

// RunResult is everything one document run produced. Template, model and
// voice live here rather than in shared state so concurrent runs stay apart.
type RunResult struct {
	RunID        string                 `json:"run_id"`
	DocumentPath string                 `json:"document_path,omitempty"`
	SourceURL    string                 `json:"source_url,omitempty"`
	Title        string                 `json:"title"`
	Slug         string                 `json:"slug"`
	Template     string                 `json:"template"`
	Model        string                 `json:"model"`
	Voice        string                 `json:"voice,omitempty"`
	PrimaryImage string                 `json:"primary_image,omitempty"`
	Chunks       []pipeline.ChunkResult `json:"chunks"`
	Aggregated   pipeline.Aggregated    `json:"aggregated"`
	Image        MediaResult            `json:"image"`
	Video        MediaResult            `json:"video"`
	Music        sections.Music         `json:"music"`
	Audio        AudioResult            `json:"audio"`
	PostPath     string                 `json:"post_path,omitempty"`
	StartedAt    time.Time              `json:"started_at"`
	FinishedAt   time.Time              `json:"finished_at"`
}

// Run processes opts.Path (a document or a directory of documents) or, with
// opts.Queue, consumes the input queue.
func (j GeneratePostJob) Run(ctx context.Context, jctx JobContext, opts JobOptions) error {
	if opts.Queue {
		return j.RunQueue(ctx, jctx, opts, func(ctx context.Context, payload QueuePayload) error {
			doc, err := payloadDocument(payload)
			if err != nil {
				return err
			}
			res, err := j.runBatch(ctx, jctx, []document.Document{doc})
			if err != nil {
				return err
			}
			if j.QueueOutput == "" {
				return nil
			}
			out, _ := json.Marshal(PostPayload{RunID: res[0].RunID, PostPath: res[0].PostPath, DocumentPath: doc.Path, Hostname: jctx.Config.Hostname})
			return jctx.Queue.Publish(j.QueueOutput, out)
		})
	}

	path := opts.Path
	if path == "" {
		path = jctx.Config.InputFolder
	}
	if path == "" {
		return errors.New("no document path given and app.input_folder is not set")
	}
	paths, err := documentPaths(path)
	if err != nil {
		return err
	}

	var docs []document.Document
	failed := 0
	for _, p := range paths {
		doc, err := document.Load(p)
		if err != nil {
			utils.Warn("document skipped", "path", p, "err", err)
			failed++
			continue
		}
		docs = append(docs, doc)
	}
	results, err := j.runBatch(ctx, jctx, docs)
	for _, r := range results {
		fmt.Println(r.PostPath)
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	failed += len(docs) - len(results)
	if failed == 0 {
		return nil
	}
	if err != nil {
		return fmt.Errorf("%d of %d documents failed, last: %w", failed, len(paths), err)
	}
	return fmt.Errorf("%d of %d documents failed", failed, len(paths))
}

// runBatch selects one template for the whole batch, then processes the
// documents strictly one after another. A failed document is logged and the
// batch moves on; the error reports the last failure.
func (j GeneratePostJob) runBatch(ctx context.Context, jctx JobContext, docs []document.Document) ([]RunResult, error) {
	if len(docs) == 0 {
		return nil, nil
	}
	templates := j.Deps.Templates
	if len(templates) == 0 {
		templates = []prompts.Template{prompts.DefaultTemplate}
	}
	tmpl, idx, err := j.Deps.RoundRobin.Select(templates)
	if err != nil {
		return nil, err
	}
	utils.Info("batch start", "documents", len(docs), "template", tmpl.Name, "template_index", idx)

	var results []RunResult
	var lastErr error
	for _, doc := range docs {
		if ctx.Err() != nil {
			return results, ctx.Err()
		}
		res, err := j.ProcessDocument(ctx, jctx, doc, tmpl)
		if err != nil {
			utils.Error("document failed", "path", doc.Path, "run_id", res.RunID, "err", err)
			lastErr = err
			continue
		}
		results = append(results, res)
	}
	return results, lastErr
}

// ProcessDocument runs the whole pipeline for one document and writes its post.
func (j GeneratePostJob) ProcessDocument(ctx context.Context, jctx JobContext, doc document.Document, tmpl prompts.Template) (RunResult, error) {
	cfg := jctx.Config
	now := j.now()
	res := RunResult{
		RunID:        uuid.NewString(),
		DocumentPath: doc.Path,
		SourceURL:    doc.URL,
		Title:        doc.Title,
		Slug:         doc.Slug(),
		Template:     tmpl.Name,
		Model:        j.Deps.Model,
		Voice:        cfg.Voice,
		StartedAt:    now,
	}
	logger := utils.ForRun(res.RunID)
	logger.Info("run start", "document", doc.Path, "slug", res.Slug, "template", tmpl.Name)

	if jctx.Store != nil {
		if err := jctx.Store.InsertRun(ctx, db.Run{
			ID: res.RunID, DocumentPath: doc.Path, SourceURL: doc.URL, Title: doc.Title, Slug: res.Slug,
			Template: tmpl.Name, Model: res.Model, Voice: res.Voice, Hostname: cfg.Hostname,
		}); err != nil {
			logger.Warn("run insert failed", "err", err)
		}
	}

	if primary, ok := imagerank.Primary(doc.Images); ok {
		res.PrimaryImage = primary.URL
	}

	chunks := chunker.Split(doc.Text, cfg.ChunkMaxChars, cfg.ChunkMinChars)
	logger.Info("document chunked", "stage", "chunk", "chunks", len(chunks))

	generated := pipeline.Orchestrator{Concurrency: cfg.Concurrency, RunID: res.RunID}.Run(ctx, chunks, j.generateFunc(tmpl))
	res.Chunks = generated.Chunks
	res.Aggregated = generated.Aggregated
	agg := generated.Aggregated

	res.Image = j.media(ctx, "image", j.Deps.ImagePlan, agg.ImagePrompts, "", res.Slug)
	res.Video = j.media(ctx, "video", j.Deps.VideoPlan, agg.VideoPrompts, res.Image.Ref, res.Slug)
	res.Music = j.pickMusic(agg)
	res.Audio = j.narrate(ctx, cfg, agg.Verses, res.Slug, res.Voice)

	md, err := post.Render(post.Post{
		Title:        doc.Title,
		SourceURL:    doc.URL,
		PrimaryImage: res.PrimaryImage,
		Verses:       agg.Verses,
		Image:        postMedia(res.Image),
		Video:        postMedia(res.Video),
		Audio:        post.Media{Ref: res.Audio.Path, Provider: "piper", Note: res.Audio.Error},
		MusicTags:    res.Music.Tags,
		MusicLength:  res.Music.Duration,
		Lyrics:       res.Music.Lyrics,
		RunID:        res.RunID,
		Template:     res.Template,
		Voice:        res.Voice,
		Model:        res.Model,
		GeneratedAt:  now,
		BaseDir:      filepath.Join(cfg.OutputFolder, postsDir),
	})
	if err == nil {
		res.PostPath = filepath.Join(cfg.OutputFolder, postsDir, res.Slug+".md")
		err = utils.WriteFile(res.PostPath, []byte(md))
	}
	res.FinishedAt = j.now()

	if raw, mErr := json.MarshalIndent(res, "", "  "); mErr == nil {
		if wErr := utils.WriteFile(filepath.Join(cfg.OutputFolder, runsDir, res.RunID+".json"), raw); wErr != nil {
			logger.Warn("run record write failed", "err", wErr)
		}
	}

	status := db.StatusSucceeded
	if err != nil {
		status = db.StatusFailed
		res.PostPath = ""
	}
	if jctx.Store != nil {
		if sErr := jctx.Store.FinishRun(ctx, res.RunID, status, res.PostPath, res, err); sErr != nil {
			logger.Warn("run finish failed", "err", sErr)
		}
	}
	if err != nil {
		return res, fmt.Errorf("write post: %w", err)
	}
	logger.Info("run done", "post", res.PostPath, "elapsed", res.FinishedAt.Sub(res.StartedAt).Truncate(time.Millisecond).String())
	return res, nil
}

func (j GeneratePostJob) generateFunc(tmpl prompts.Template) pipeline.GenerateFunc {
	return func(ctx context.Context, c chunker.Chunk) (string, error) {
		if j.Deps.Text == nil {
			return "", errors.New("no text generator configured")
		}
		system, user := tmpl.Render(c.Text)
		return j.Deps.Text.Generate(ctx, system, user)
	}
}

// media picks one prompt at random and runs it through plan. No prompt
// means the step is skipped without calling any provider.
func (j GeneratePostJob) media(ctx context.Context, kind string, plan fallback.Plan, candidates []string, sourceRef, slug string) MediaResult {
	prompt, ok := pipeline.Pick(j.Deps.Rand, candidates)
	if !ok {
		utils.Info("media step skipped", "stage", kind, "reason", "no prompt found")
		return MediaResult{Skipped: true, Error: fmt.Sprintf("no %s prompt found", kind)}
	}
	out := fallback.Dispatch(ctx, plan, fallback.Request{Prompt: prompt, SourceRef: sourceRef, Name: slug})
	res := MediaResult{Prompt: prompt, Provider: out.Provider, Skipped: out.Skipped}
	for _, a := range out.Attempts {
		res.Tried = append(res.Tried, a.Provider)
	}
	if out.Success {
		res.Ref = out.Artifact.Ref
		return res
	}
	if out.Err != nil {
		res.Error = out.Err.Error()
	}
	return res
}

func (j GeneratePostJob) pickMusic(agg pipeline.Aggregated) sections.Music {
	m := sections.Music{Lyrics: strings.Join(agg.Lyrics, "\n\n")}
	if i, ok := pipeline.PickIndex(j.Deps.Rand, len(agg.MusicTags)); ok {
		m.Tags = agg.MusicTags[i]
		m.Duration = agg.MusicDurations[i]
	}
	if m.Tags == "" && m.Lyrics == "" {
		return m
	}
	if m.Tags == "" {
		m.Tags = sections.DefaultMusicTags
	}
	if m.Duration == "" {
		m.Duration = sections.DefaultMusicDuration
	}
	return m
}

// narrate speaks the successful verses, applies the configured enhancement
// and encodes to MP3. Failures are recorded, never fatal.
func (j GeneratePostJob) narrate(ctx context.Context, cfg config.Config, verses []pipeline.Verse, slug, voice string) AudioResult {
	var parts []string
	for _, v := range verses {
		if v.Err == "" && strings.TrimSpace(v.Text) != "" {
			parts = append(parts, strings.TrimSpace(v.Text))
		}
	}
	if len(parts) == 0 || j.Deps.Speech == nil || j.Deps.Encoder == nil {
		return AudioResult{Error: "narration skipped"}
	}

	speech, err := j.Deps.Speech.Synthesize(ctx, strings.Join(parts, "\n\n"), voice)
	if err != nil {
		utils.Warn("narration failed", "stage", "tts", "err", err)
		return AudioResult{Error: err.Error()}
	}

	spec := audiofx.Spec{
		Kind:      audiofx.ParseKind(cfg.AudioEnhancement),
		DelayMs:   cfg.AudioDelayMs,
		Decay:     cfg.AudioDecay,
		MixFactor: cfg.AudioMixFactor,
	}
	graph := audiofx.Compile(spec, speech.Channels, audiofx.Options{OutputSampleRate: cfg.AudioOutputSampleRate})
	encoded, err := j.Deps.Encoder.Encode(ctx, audiofx.EncodeRequest{
		PCM:        speech.PCM,
		Channels:   speech.Channels,
		SampleRate: speech.SampleRate,
		Graph:      graph,
		OutputPath: filepath.Join(cfg.OutputFolder, audioDir, slug+".mp3"),
	})
	if err != nil {
		utils.Warn("narration failed", "stage", "encode", "err", err)
		return AudioResult{Error: err.Error(), Enhancement: string(spec.Kind)}
	}
	return AudioResult{Path: encoded.Path, Duration: encoded.Duration, Enhancement: string(spec.Kind), Channels: graph.OutputChannels}
}

func (j GeneratePostJob) now() time.Time {
	if j.Deps.Now != nil {
		return j.Deps.Now()
	}
	return time.Now()
}

func postMedia(m MediaResult) post.Media {
	return post.Media{Ref: m.Ref, Provider: m.Provider, Prompt: m.Prompt, Note: m.Error}
}

func payloadDocument(payload QueuePayload) (document.Document, error) {
	if len(payload.Document) > 0 {
		return document.FromJSON(payload.Document)
	}
	return document.Load(payload.DocumentPath)
}

var documentExts = map[string]bool{".json": true, ".txt": true, ".md": true}

// documentPaths expands a directory into its documents, sorted by name.
func documentPaths(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{path}, nil
	}
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() || !documentExts[strings.ToLower(filepath.Ext(e.Name()))] {
			continue
		}
		out = append(out, filepath.Join(path, e.Name()))
	}
	sort.Strings(out)
	if len(out) == 0 {
		return nil, fmt.Errorf("no documents in %s", path)
	}
	return out, nil
}
