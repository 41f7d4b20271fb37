package gemini

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/insurance-doc-classifier/internal/core/domain"
	"github.com/kirillkom/insurance-doc-classifier/internal/infrastructure/resilience"
)

const (
	DefaultEndpoint = "https://generativelanguage.googleapis.com"
	DefaultModel    = "gemini-pro"
)

type Options struct {
	Timeout    time.Duration
	HTTPClient *http.Client
	Guard      *resilience.Guard
}

// Client calls the generateContent method of the Gemini REST API.
type Client struct {
	baseURL    string
	model      string
	apiKey     string
	httpClient *http.Client
	guard      *resilience.Guard
}

func New(baseURL, model, apiKey string, opts Options) *Client {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = DefaultEndpoint
	}
	model = strings.TrimSpace(model)
	if model == "" {
		model = DefaultModel
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 60 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{
		baseURL:    baseURL,
		model:      model,
		apiKey:     apiKey,
		httpClient: httpClient,
		guard:      opts.Guard,
	}
}

type inlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inline_data,omitempty"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type generateRequest struct {
	Contents []content `json:"contents"`
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback,omitempty"`
}

// Generate sends the ordered payload as a single user turn and returns the
// concatenated text of the first candidate. The call is made once.
func (c *Client) Generate(ctx context.Context, payload domain.ContentPayload) (string, error) {
	if len(payload) == 0 {
		return "", domain.WrapError(domain.ErrInvalidInput, "gemini generate", fmt.Errorf("empty payload"))
	}
	request := generateRequest{Contents: []content{{Role: "user", Parts: toParts(payload)}}}
	path := fmt.Sprintf("/v1beta/models/%s:generateContent", c.model)

	var response generateResponse
	call := func(callCtx context.Context) error {
		response = generateResponse{}
		return c.postJSON(callCtx, path, request, &response, "generate")
	}

	var err error
	if c.guard != nil {
		err = c.guard.Do(ctx, "gemini.generate", call, classifyGeminiError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return "", wrapTemporaryIfNeeded("gemini generate", err)
	}

	if len(response.Candidates) == 0 {
		if response.PromptFeedback != nil && response.PromptFeedback.BlockReason != "" {
			return "", fmt.Errorf("gemini blocked prompt: %s", response.PromptFeedback.BlockReason)
		}
		return "", fmt.Errorf("no candidates returned from gemini")
	}
	var sb strings.Builder
	for _, p := range response.Candidates[0].Content.Parts {
		sb.WriteString(p.Text)
	}
	return strings.TrimSpace(sb.String()), nil
}

func toParts(payload domain.ContentPayload) []part {
	parts := make([]part, 0, len(payload))
	for _, p := range payload {
		switch p.Kind {
		case domain.PartKindAttachment:
			parts = append(parts, part{InlineData: &inlineData{
				MimeType: p.MimeType,
				Data:     base64.StdEncoding.EncodeToString(p.Data),
			}})
		default:
			parts = append(parts, part{Text: p.Text})
		}
	}
	return parts
}
