// Package providers adapts external generation services to the pipeline's
// capability boundaries: text generation, image and video media, speech.
package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"ai-things/postforge/internal/utils"
)

// TextGenerator produces a model response for a system/user prompt pair.
type TextGenerator interface {
	Name() string
	Generate(ctx context.Context, system, user string) (string, error)
}

// Ollama calls a local or proxied Ollama /api/generate endpoint.
type Ollama struct {
	BaseURL string // e.g. http://localhost:11434
	Model   string
	APIKey  string // sent as X-API-key when set
	Client  *http.Client
}

func NewOllama(hostname string, port int, model string, timeout time.Duration) *Ollama {
	if port == 0 {
		port = 11434
	}
	if strings.TrimSpace(model) == "" {
		model = "llama3.2"
	}
	if timeout <= 0 {
		timeout = 600 * time.Second
	}
	base := hostname
	if !strings.Contains(base, "://") {
		base = fmt.Sprintf("http://%s:%d", hostname, port)
	}
	return &Ollama{BaseURL: strings.TrimRight(base, "/"), Model: model, Client: &http.Client{Timeout: timeout}}
}

func (o *Ollama) Name() string { return "ollama" }

func (o *Ollama) Generate(ctx context.Context, system, user string) (string, error) {
	if o.BaseURL == "" {
		return "", errors.New("missing ollama hostname (set ollama.hostname in config.ini)")
	}
	payload := map[string]any{
		"model":      o.Model,
		"keep_alive": 300,
		"system":     system,
		"prompt":     user,
		"stream":     false,
		"options": map[string]any{
			"seed":        time.Now().Unix(),
			"temperature": 1,
		},
	}
	headers := map[string]string{}
	if o.APIKey != "" {
		headers["X-API-key"] = o.APIKey
	}
	utils.Debug("ollama generate", "url", o.BaseURL+"/api/generate", "model", o.Model, "prompt_len", len(user))

	var decoded struct {
		Response string `json:"response"`
	}
	if err := postJSON(ctx, client(o.Client), o.BaseURL+"/api/generate", headers, payload, &decoded); err != nil {
		return "", fmt.Errorf("ollama: %w", err)
	}
	utils.Debug("ollama decoded", "response_len", len(decoded.Response))
	return decoded.Response, nil
}

// Gemini calls the generateContent REST endpoint.
type Gemini struct {
	APIKey  string
	Model   string
	BaseURL string
	Client  *http.Client
}

const geminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"

func NewGemini(apiKey, model string) *Gemini {
	if model == "" {
		model = "gemini-1.5-flash"
	}
	return &Gemini{APIKey: apiKey, Model: model, BaseURL: geminiBaseURL, Client: &http.Client{Timeout: 600 * time.Second}}
}

func (g *Gemini) Name() string { return "gemini" }

func (g *Gemini) Generate(ctx context.Context, system, user string) (string, error) {
	if g.APIKey == "" {
		return "", errors.New("missing gemini api key (set gemini.api_key in config.ini)")
	}
	payload := map[string]any{
		"contents": []any{
			map[string]any{
				"role":  "user",
				"parts": []any{map[string]any{"text": user}},
			},
		},
	}
	if strings.TrimSpace(system) != "" {
		payload["systemInstruction"] = map[string]any{
			"parts": []any{map[string]any{"text": system}},
		}
	}
	base := g.BaseURL
	if base == "" {
		base = geminiBaseURL
	}
	endpoint := fmt.Sprintf("%s/models/%s:generateContent?key=%s", strings.TrimRight(base, "/"), g.Model, url.QueryEscape(g.APIKey))

	var decoded map[string]any
	if err := postJSON(ctx, client(g.Client), endpoint, nil, payload, &decoded); err != nil {
		return "", fmt.Errorf("gemini: %w", err)
	}
	text, ok := utils.GetString(decoded, "candidates", "0", "content", "parts", "0", "text")
	if !ok || strings.TrimSpace(text) == "" {
		return "", errors.New("gemini response text missing")
	}
	return text, nil
}

// NewTextGenerator picks an implementation by name.
func NewTextGenerator(name string, ollama *Ollama, gemini *Gemini) (TextGenerator, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "ollama":
		return ollama, nil
	case "gemini":
		return gemini, nil
	default:
		return nil, fmt.Errorf("unknown text provider %q", name)
	}
}

func client(c *http.Client) *http.Client {
	if c == nil {
		return &http.Client{Timeout: 300 * time.Second}
	}
	return c
}

func postJSON(ctx context.Context, c *http.Client, endpoint string, headers map[string]string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return doJSON(c, req, out)
}

func doJSON(c *http.Client, req *http.Request, out any) error {
	resp, err := c.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("response status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
