// Package sei is the client surface for the upstream SEI REST API: login,
// paged document and progress listings, procedure lookup, document download
// and signing.
//
// Every call except Login goes through the transport retry policy and the
// shared circuit breaker. Received HTTP responses are never retried; their
// status codes are mapped to typed errors at this boundary.
package sei

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/coolbeans/seiview/pkg/retry"
)

// DefaultBaseURL points at the production SEI instance.
const DefaultBaseURL = "https://api.sead.pi.gov.br/sei/v1"

// maxBodyBytes bounds how much of any upstream response is read.
const maxBodyBytes = 20 * 1024 * 1024

// HTTPClient is the transport dependency, satisfied by *http.Client and by
// test doubles.
type HTTPClient interface {
	Do(request *http.Request) (*http.Response, error)
}

// Config holds construction parameters for a Client.
type Config struct {
	// BaseURL of the SEI API. Default: DefaultBaseURL.
	BaseURL string

	// HTTPClient is the underlying transport. If nil, an *http.Client with
	// Timeout is used.
	HTTPClient HTTPClient

	// Timeout is the per-request connect+read timeout for the default
	// transport. Default: 30s.
	Timeout time.Duration

	// Policy controls transport-level retries. Zero value means
	// retry.DefaultPolicy.
	Policy retry.Policy

	// Breaker is the shared circuit breaker. If nil, a breaker with the
	// reference parameters (3 failures, 60s cooldown) is created.
	Breaker *retry.Breaker

	// Logger for degradations. If nil, slog.Default is used.
	Logger *slog.Logger
}

// Client issues authenticated calls against the SEI API.
type Client struct {
	httpClient HTTPClient
	baseURL    string
	policy     retry.Policy
	breaker    *retry.Breaker
	logger     *slog.Logger
}

// NewClient creates a Client from config, filling in defaults.
func NewClient(config Config) *Client {
	baseURL := config.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		timeout := config.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	policy := config.Policy
	if policy.MaxAttempts == 0 {
		policy = retry.DefaultPolicy()
	}

	breaker := config.Breaker
	if breaker == nil {
		breaker = retry.NewBreaker(3, time.Minute)
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		httpClient: httpClient,
		baseURL:    baseURL,
		policy:     policy,
		breaker:    breaker,
		logger:     logger.With("component", "sei"),
	}
}

// Login authenticates against the SEI API. Login is never retried: bad
// credentials must fail fast.
func (client *Client) Login(ctx context.Context, usuario, senha, orgao string) (Session, error) {
	payload, err := json.Marshal(map[string]string{
		"Usuario": usuario,
		"Senha":   senha,
		"Orgao":   orgao,
	})
	if err != nil {
		return Session{}, fmt.Errorf("encode login payload: %w", err)
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, client.baseURL+"/orgaos/usuarios/login", bytes.NewReader(payload))
	if err != nil {
		return Session{}, fmt.Errorf("build login request: %w", err)
	}
	request.Header.Set("Content-Type", "application/json")
	request.Header.Set("accept", "application/json")

	response, err := client.httpClient.Do(request)
	if err != nil {
		return Session{}, &APIError{Kind: KindTransport, Message: "falha ao conectar com o serviço SEI", err: err}
	}
	defer response.Body.Close()

	body, err := readBody(response)
	if err != nil {
		return Session{}, err
	}
	if response.StatusCode != http.StatusOK {
		return Session{}, statusError(response.StatusCode, body, "falha ao autenticar no SEI")
	}

	var session Session
	if err := json.Unmarshal(body, &session); err != nil {
		return Session{}, fmt.Errorf("decode login response: %w", err)
	}
	return session, nil
}

// DocumentsPage fetches one page of a process's document listing.
func (client *Client) DocumentsPage(ctx context.Context, token, protocolo, idUnidade string, page, pageSize int) (DocumentPage, error) {
	query := url.Values{
		"protocolo_procedimento": {protocolo},
		"pagina":                 {strconv.Itoa(page)},
		"quantidade":             {strconv.Itoa(pageSize)},
		"sinal_geracao":          {"N"},
		"sinal_assinaturas":      {"N"},
		"sinal_publicacao":       {"N"},
		"sinal_campos":           {"N"},
		"sinal_completo":         {"N"},
	}

	var documentPage DocumentPage
	err := client.getJSON(ctx, token,
		"/unidades/"+url.PathEscape(idUnidade)+"/procedimentos/documentos",
		query, "falha ao listar documentos no SEI", &documentPage)
	if err != nil {
		return DocumentPage{}, err
	}
	return documentPage, nil
}

// ProgressPage fetches one page of a process's progress events.
func (client *Client) ProgressPage(ctx context.Context, token, protocolo, idUnidade string, page, pageSize int) (ProgressPage, error) {
	query := url.Values{
		"protocolo_procedimento": {protocolo},
		"sinal_atributos":        {"N"},
		"pagina":                 {strconv.Itoa(page)},
		"quantidade":             {strconv.Itoa(pageSize)},
	}

	var progressPage ProgressPage
	err := client.getJSON(ctx, token,
		"/unidades/"+url.PathEscape(idUnidade)+"/procedimentos/andamentos",
		query, "falha ao consultar andamentos no SEI", &progressPage)
	if err != nil {
		return ProgressPage{}, err
	}
	return progressPage, nil
}

// Procedure looks up procedure metadata: open units and the access link.
func (client *Client) Procedure(ctx context.Context, token, protocolo, idUnidade string) (Procedimento, error) {
	query := url.Values{
		"protocolo_procedimento":      {protocolo},
		"sinal_unidades_procedimento": {"S"},
	}

	var procedimento Procedimento
	err := client.getJSON(ctx, token,
		"/unidades/"+url.PathEscape(idUnidade)+"/procedimentos/consultar",
		query, "falha ao consultar procedimento no SEI", &procedimento)
	if err != nil {
		return Procedimento{}, err
	}
	return procedimento, nil
}

// Sign signs a document on behalf of the given user. The upstream replies
// 204 with no body on success.
func (client *Client) Sign(ctx context.Context, token, idUnidade, protocoloDocumento string, signRequest SignRequest) error {
	payload, err := json.Marshal(signRequest)
	if err != nil {
		return fmt.Errorf("encode sign payload: %w", err)
	}

	endpoint := client.baseURL + "/unidades/" + url.PathEscape(idUnidade) + "/documentos/assinar" +
		"?protocolo_documento=" + url.QueryEscape(protocoloDocumento)

	response, err := client.do(ctx, func(ctx context.Context) (*http.Request, error) {
		request, err := http.NewRequestWithContext(ctx, http.MethodPatch, endpoint, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		request.Header.Set("Content-Type", "application/json")
		return request, nil
	})
	if err != nil {
		return err
	}
	defer response.Body.Close()

	body, err := readBody(response)
	if err != nil {
		return err
	}
	if response.StatusCode != http.StatusOK && response.StatusCode != http.StatusNoContent {
		return statusError(response.StatusCode, body, "falha ao assinar documento no SEI")
	}
	return nil
}

// Health probes the upstream API. Any received HTTP response counts as
// reachable; only transport failures report it down.
func (client *Client) Health(ctx context.Context) error {
	response, err := client.do(ctx, func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, client.baseURL+"/orgaos", nil)
	})
	if err != nil {
		return err
	}
	response.Body.Close()
	return nil
}

// getJSON issues an authenticated GET and decodes a 200 response into
// target.
func (client *Client) getJSON(ctx context.Context, token, path string, query url.Values, fallback string, target any) error {
	endpoint := client.baseURL + path + "?" + query.Encode()

	response, err := client.do(ctx, func(ctx context.Context) (*http.Request, error) {
		request, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, err
		}
		request.Header.Set("accept", "application/json")
		setToken(request, token)
		return request, nil
	})
	if err != nil {
		return err
	}
	defer response.Body.Close()

	body, err := readBody(response)
	if err != nil {
		return err
	}
	if response.StatusCode != http.StatusOK {
		return statusError(response.StatusCode, body, fallback)
	}
	if err := json.Unmarshal(body, target); err != nil {
		return fmt.Errorf("decode response from %s: %w", path, err)
	}
	return nil
}

// do runs one upstream call through the breaker and the retry policy.
func (client *Client) do(ctx context.Context, build func(ctx context.Context) (*http.Request, error)) (*http.Response, error) {
	if err := client.breaker.Allow(); err != nil {
		return nil, &APIError{Kind: KindUnavailable, Message: "serviço SEI temporariamente indisponível", err: err}
	}

	response, err := client.policy.Do(ctx, func(ctx context.Context) (*http.Response, error) {
		request, err := build(ctx)
		if err != nil {
			return nil, fmt.Errorf("build request: %w", err)
		}
		return client.httpClient.Do(request)
	})
	if err != nil {
		client.breaker.RecordFailure()
		return nil, &APIError{Kind: KindTransport, Message: "falha ao conectar com o serviço SEI", err: err}
	}

	client.breaker.RecordSuccess()
	return response, nil
}

// setToken attaches the session token header. The upstream expects the
// value wrapped in literal double quotes.
func setToken(request *http.Request, token string) {
	if token != "" {
		request.Header.Set("token", `"`+token+`"`)
	}
}

func readBody(response *http.Response) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(response.Body, maxBodyBytes))
	if err != nil {
		return nil, &APIError{Kind: KindTransport, Message: "falha ao ler resposta do SEI", err: err}
	}
	return body, nil
}
