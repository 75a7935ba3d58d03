// Package summarize produces LLM summaries of SEI documents and whole
// processes. Summaries are cached; document bodies are pulled through the
// blob store so repeated summarizations never re-download.
package summarize

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/coolbeans/seiview/pkg/blob"
	"github.com/coolbeans/seiview/pkg/cache"
	"github.com/coolbeans/seiview/pkg/processo"
	"github.com/coolbeans/seiview/pkg/sei"
)

// FallbackSummary is returned when a document body cannot be turned into
// text (scanned PDFs, download failures). Summarization degrades instead
// of failing the request.
const FallbackSummary = "Conteúdo do documento indisponível para resumo."

const (
	documentSystemPrompt = "Você é um assistente especializado em documentos de processos administrativos do SEI. " +
		"Resuma o documento em português, em no máximo três parágrafos, destacando o objeto, as partes envolvidas e os encaminhamentos."

	understandingSystemPrompt = "Você é um assistente especializado em processos administrativos do SEI. " +
		"Com base no primeiro e no último documento de um processo, explique em português do que trata o processo e em que situação ele se encontra."
)

// DocumentSource downloads document bodies. *sei.Client satisfies it.
type DocumentSource interface {
	Download(ctx context.Context, token, idUnidade, protocoloDocumento string) (sei.Download, error)
}

// Doer sends HTTP requests. Tests inject one to fake the completions API.
type Doer interface {
	Do(request *http.Request) (*http.Response, error)
}

// Config wires a Summarizer.
type Config struct {
	// APIKey authenticates against the completions API.
	APIKey string

	// BaseURL overrides the completions endpoint, for OpenAI-compatible
	// upstreams. Empty uses the default.
	BaseURL string

	// Model is the chat model name. Default "gpt-4o-mini".
	Model string

	// SummaryTTL is how long cached summaries live. Default 48h.
	SummaryTTL time.Duration

	Source DocumentSource
	Cache  cache.Cache
	Blobs  *blob.Store
	Logger *slog.Logger

	// HTTPClient is injected by tests. Nil uses the library default.
	HTTPClient Doer
}

// Summarizer generates and caches document and process summaries.
type Summarizer struct {
	llm    openai.Client
	model  string
	ttl    time.Duration
	source DocumentSource
	cache  cache.Cache
	blobs  *blob.Store
	logger *slog.Logger
}

// New builds a Summarizer from config.
func New(config Config) *Summarizer {
	options := []option.RequestOption{option.WithAPIKey(config.APIKey)}
	if config.BaseURL != "" {
		options = append(options, option.WithBaseURL(config.BaseURL))
	}
	if config.HTTPClient != nil {
		options = append(options, option.WithHTTPClient(config.HTTPClient))
	}
	model := config.Model
	if model == "" {
		model = "gpt-4o-mini"
	}
	ttl := config.SummaryTTL
	if ttl <= 0 {
		ttl = 48 * time.Hour
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Summarizer{
		llm:    openai.NewClient(options...),
		model:  model,
		ttl:    ttl,
		source: config.Source,
		cache:  config.Cache,
		blobs:  config.Blobs,
		logger: logger.With("component", "summarize"),
	}
}

// Document summarizes a plain-text document body in a single completion.
func (summarizer *Summarizer) Document(ctx context.Context, text string) (string, error) {
	return summarizer.complete(ctx, documentSystemPrompt, text)
}

// Chunk is one piece of a streamed summary. Err and Done are terminal.
type Chunk struct {
	Content string
	Err     error
	Done    bool
}

// DocumentStream summarizes a document body, emitting the completion
// incrementally. The channel is closed after the Done or Err chunk.
func (summarizer *Summarizer) DocumentStream(ctx context.Context, text string) <-chan Chunk {
	return summarizer.stream(ctx, documentSystemPrompt, text)
}

func (summarizer *Summarizer) stream(ctx context.Context, systemPrompt, userPrompt string) <-chan Chunk {
	chunks := make(chan Chunk, 16)
	go func() {
		defer close(chunks)

		stream := summarizer.llm.Chat.Completions.NewStreaming(ctx, openai.ChatCompletionNewParams{
			Model: openai.ChatModel(summarizer.model),
			Messages: []openai.ChatCompletionMessageParamUnion{
				openai.SystemMessage(systemPrompt),
				openai.UserMessage(userPrompt),
			},
			Temperature: openai.Float(0.3),
		})
		defer stream.Close()

		for stream.Next() {
			event := stream.Current()
			if len(event.Choices) == 0 {
				continue
			}
			content := event.Choices[0].Delta.Content
			if content == "" {
				continue
			}
			select {
			case chunks <- Chunk{Content: content}:
			case <-ctx.Done():
				return
			}
		}
		if err := stream.Err(); err != nil {
			chunks <- Chunk{Err: fmt.Errorf("streaming summary: %w", err)}
			return
		}
		chunks <- Chunk{Done: true}
	}()
	return chunks
}

// DocumentByProtocol summarizes a document identified by its protocol
// number, downloading the body on first use. Summaries are cached; bodies
// that cannot be converted to text get the fallback summary, uncached so a
// later successful conversion can replace it.
func (summarizer *Summarizer) DocumentByProtocol(ctx context.Context, token, idUnidade, documento string) (string, error) {
	key := cache.DocumentSummaryKey(documento)
	var cached string
	if err := cache.GetJSON(ctx, summarizer.cache, key, &cached); err == nil {
		return cached, nil
	} else if !errors.Is(err, cache.ErrMiss) {
		summarizer.logger.Warn("summary cache read failed", "key", key, "error", err)
	}

	text, err := summarizer.documentText(ctx, token, idUnidade, documento)
	if err != nil {
		return "", err
	}
	if text == "" {
		return FallbackSummary, nil
	}

	summary, err := summarizer.Document(ctx, text)
	if err != nil {
		return "", err
	}
	if err := cache.SetJSON(ctx, summarizer.cache, key, summary, summarizer.ttl); err != nil {
		summarizer.logger.Warn("summary cache write failed", "key", key, "error", err)
	}
	return summary, nil
}

// Understanding is the whole-process summary derived from the boundary
// documents of its listing.
type Understanding struct {
	NumeroProcesso    string    `json:"numero_processo"`
	PrimeiroDocumento string    `json:"primeiro_documento"`
	UltimoDocumento   string    `json:"ultimo_documento"`
	Resumo            string    `json:"resumo"`
	GeradoEm          time.Time `json:"gerado_em"`
}

// Understand summarizes a process from the first and last documents of its
// listing. The result is cached keyed on the boundary documents, so a new
// document in the process naturally misses.
func (summarizer *Summarizer) Understand(ctx context.Context, token, numeroProcesso, idUnidade string, documentos []sei.Documento) (Understanding, error) {
	if len(documentos) == 0 {
		return Understanding{}, errors.New("process has no documents to summarize")
	}
	numero := processo.Normalize(numeroProcesso)
	first := documentos[0].DocumentoFormatado
	last := documentos[len(documentos)-1].DocumentoFormatado
	key := cache.UnderstandingKey(numero, first, last)

	var cached Understanding
	if err := cache.GetJSON(ctx, summarizer.cache, key, &cached); err == nil {
		return cached, nil
	} else if !errors.Is(err, cache.ErrMiss) {
		summarizer.logger.Warn("understanding cache read failed", "key", key, "error", err)
	}

	prompt, err := summarizer.understandingPrompt(ctx, token, numero, idUnidade, documentos)
	if err != nil {
		return Understanding{}, err
	}

	resumo, err := summarizer.complete(ctx, understandingSystemPrompt, prompt)
	if err != nil {
		return Understanding{}, err
	}

	understanding := Understanding{
		NumeroProcesso:    numero,
		PrimeiroDocumento: first,
		UltimoDocumento:   last,
		Resumo:            resumo,
		GeradoEm:          time.Now().UTC(),
	}
	if err := cache.SetJSON(ctx, summarizer.cache, key, understanding, summarizer.ttl); err != nil {
		summarizer.logger.Warn("understanding cache write failed", "key", key, "error", err)
	}
	return understanding, nil
}

// UnderstandStream is Understand without caching, emitting the summary
// incrementally for the SSE endpoint.
func (summarizer *Summarizer) UnderstandStream(ctx context.Context, token, numeroProcesso, idUnidade string, documentos []sei.Documento) <-chan Chunk {
	chunks := make(chan Chunk, 16)
	if len(documentos) == 0 {
		chunks <- Chunk{Err: errors.New("process has no documents to summarize")}
		close(chunks)
		return chunks
	}
	numero := processo.Normalize(numeroProcesso)

	go func() {
		prompt, err := summarizer.understandingPrompt(ctx, token, numero, idUnidade, documentos)
		if err != nil {
			chunks <- Chunk{Err: err}
			close(chunks)
			return
		}
		inner := summarizer.stream(ctx, understandingSystemPrompt, prompt)
		for chunk := range inner {
			select {
			case chunks <- chunk:
			case <-ctx.Done():
				close(chunks)
				return
			}
		}
		close(chunks)
	}()
	return chunks
}

// understandingPrompt gathers the boundary-document texts and assembles the
// process prompt. Unreadable boundaries degrade; both missing is an error.
func (summarizer *Summarizer) understandingPrompt(ctx context.Context, token, numero, idUnidade string, documentos []sei.Documento) (string, error) {
	first := documentos[0].DocumentoFormatado
	last := documentos[len(documentos)-1].DocumentoFormatado

	firstText := summarizer.boundaryText(ctx, token, idUnidade, first)
	lastText := firstText
	if last != first {
		lastText = summarizer.boundaryText(ctx, token, idUnidade, last)
	}
	if firstText == "" && lastText == "" {
		return "", errors.New("no readable content in boundary documents")
	}

	var prompt strings.Builder
	fmt.Fprintf(&prompt, "Processo %s, com %d documentos.\n\n", processo.Format(numero), len(documentos))
	fmt.Fprintf(&prompt, "Primeiro documento (%s):\n%s\n\n", first, firstText)
	fmt.Fprintf(&prompt, "Último documento (%s):\n%s\n", last, lastText)
	return prompt.String(), nil
}

func (summarizer *Summarizer) complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	completion, err := summarizer.llm.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(summarizer.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(userPrompt),
		},
		Temperature: openai.Float(0.3),
	})
	if err != nil {
		return "", fmt.Errorf("completion request: %w", err)
	}
	if len(completion.Choices) == 0 {
		return "", errors.New("completion returned no choices")
	}
	return completion.Choices[0].Message.Content, nil
}

// documentText returns the plain-text body of a document, downloading and
// blob-caching it on first use. Empty means the body has no text form.
func (summarizer *Summarizer) documentText(ctx context.Context, token, idUnidade, documento string) (string, error) {
	data, err := summarizer.blobs.GetOrFill("texto:"+documento, func() ([]byte, error) {
		download, err := summarizer.source.Download(ctx, token, idUnidade, documento)
		if err != nil {
			return nil, err
		}
		return []byte(download.Text), nil
	})
	if err != nil {
		return "", fmt.Errorf("fetching document %s: %w", documento, err)
	}
	return string(data), nil
}

// boundaryText is documentText with degradation: failures log and yield "".
func (summarizer *Summarizer) boundaryText(ctx context.Context, token, idUnidade, documento string) string {
	text, err := summarizer.documentText(ctx, token, idUnidade, documento)
	if err != nil {
		summarizer.logger.Warn("boundary document unavailable", "documento", documento, "error", err)
		return ""
	}
	return text
}
