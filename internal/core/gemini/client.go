package gemini

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/steveyiyo/voxrelay/internal/core/apierr"
	"github.com/steveyiyo/voxrelay/pkg/types"
)

// ErrNoAPIKey is returned by New when no key is configured.
var ErrNoAPIKey = errors.New("gemini: API key is not configured")

// ErrEmptyResponse means the model answered with neither text nor image.
var ErrEmptyResponse = errors.New("gemini: empty response")

// Options configures a Client.
type Options struct {
	APIKey string

	// BaseURL overrides the API endpoint. Used by tests.
	BaseURL string

	// Timeout bounds one generate-content request.
	Timeout time.Duration

	ThinkingModel  string
	ThinkingBudget int32
	SearchModel    string
	ImageModel     string
}

// Client sends text prompts to the generate-content endpoint.
type Client struct {
	c    *genai.Client
	opts Options
	wait func(attempt int) time.Duration
}

func New(ctx context.Context, opts Options) (*Client, error) {
	cl, err := newGenAI(ctx, opts, "v1beta")
	if err != nil {
		return nil, err
	}
	return &Client{c: cl, opts: opts, wait: backoff}, nil
}

func newGenAI(ctx context.Context, opts Options, version string) (*genai.Client, error) {
	if opts.APIKey == "" {
		return nil, ErrNoAPIKey
	}
	tr := &http.Transport{
		Proxy:             http.ProxyFromEnvironment,
		TLSClientConfig:   &tls.Config{MinVersion: tls.VersionTLS12},
		ForceAttemptHTTP2: false,
		MaxIdleConns:      100,
		IdleConnTimeout:   90 * time.Second,
	}
	hc := &http.Client{Transport: tr}
	reqTimeout := opts.Timeout
	if reqTimeout <= 0 {
		reqTimeout = 60 * time.Second
	}
	cl, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:     opts.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: hc,
		HTTPOptions: genai.HTTPOptions{
			BaseURL:    opts.BaseURL,
			APIVersion: version,
			Timeout:    &reqTimeout,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: new client: %w", err)
	}
	return cl, nil
}

func (g *Client) Close() error { return nil }

// Generate runs one prompt in the given mode.
func (g *Client) Generate(ctx context.Context, mode, text string) (types.Reply, error) {
	model, cfg, err := g.request(mode)
	if err != nil {
		return types.Reply{}, err
	}
	contents := []*genai.Content{genai.NewContentFromText(text, genai.RoleUser)}
	return g.callOnce(ctx, model, contents, cfg)
}

func (g *Client) request(mode string) (string, *genai.GenerateContentConfig, error) {
	switch mode {
	case types.ModeThinking:
		budget := g.opts.ThinkingBudget
		return g.opts.ThinkingModel, &genai.GenerateContentConfig{
			ThinkingConfig: &genai.ThinkingConfig{ThinkingBudget: &budget},
		}, nil
	case types.ModeSearch:
		// The Gemini API backend rejects the GoogleMaps tool client-side.
		return g.opts.SearchModel, &genai.GenerateContentConfig{
			Tools: []*genai.Tool{{GoogleSearch: &genai.GoogleSearch{}}},
		}, nil
	case types.ModeImage:
		return g.opts.ImageModel, &genai.GenerateContentConfig{
			ResponseModalities: []string{string(genai.ModalityText), string(genai.ModalityImage)},
		}, nil
	default:
		return "", nil, fmt.Errorf("gemini: unknown mode %q", mode)
	}
}

func (g *Client) callOnce(ctx context.Context, model string, contents []*genai.Content, cfg *genai.GenerateContentConfig) (types.Reply, error) {
	var lastErr error
	for i := 0; i < 3; i++ {
		resp, err := g.c.Models.GenerateContent(ctx, model, contents, cfg)
		if err != nil {
			lastErr = err
			if apierr.Retriable(err) {
				slog.Debug("gemini: retrying", "model", model, "attempt", i+1, "error", err)
				if !sleep(ctx, g.wait(i)) {
					return types.Reply{}, ctx.Err()
				}
				continue
			}
			return types.Reply{}, err
		}
		if reply, ok := parseReply(resp); ok {
			return reply, nil
		}
		lastErr = ErrEmptyResponse
		if !sleep(ctx, g.wait(i)) {
			return types.Reply{}, ctx.Err()
		}
	}
	return types.Reply{}, lastErr
}

// parseReply joins the text parts of the first candidate and picks its first
// inline image.
func parseReply(resp *genai.GenerateContentResponse) (types.Reply, bool) {
	var out types.Reply
	if resp == nil {
		return out, false
	}
	var sb strings.Builder
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, p := range cand.Content.Parts {
			if p.Thought {
				continue
			}
			if p.Text != "" {
				sb.WriteString(p.Text)
			}
			if out.Image == nil && p.InlineData != nil && strings.HasPrefix(p.InlineData.MIMEType, "image/") {
				out.Image = &types.Image{
					MIMEType: p.InlineData.MIMEType,
					Data:     base64.StdEncoding.EncodeToString(p.InlineData.Data),
				}
			}
		}
		break
	}
	out.Text = strings.TrimSpace(sb.String())
	return out, out.Text != "" || out.Image != nil
}

func backoff(attempt int) time.Duration {
	return time.Duration(300*(attempt+1)) * time.Millisecond
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
