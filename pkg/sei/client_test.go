package sei

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/coolbeans/seiview/pkg/retry"
)

// MockHTTPClient implements HTTPClient for testing.
type MockHTTPClient struct {
	DoFunc func(request *http.Request) (*http.Response, error)
}

func (mockClient *MockHTTPClient) Do(request *http.Request) (*http.Response, error) {
	return mockClient.DoFunc(request)
}

func jsonResponse(statusCode int, body string) *http.Response {
	return &http.Response{
		StatusCode: statusCode,
		Header:     http.Header{"Content-Type": {"application/json"}},
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

func newTestClient(mockClient *MockHTTPClient) *Client {
	return NewClient(Config{
		BaseURL:    "https://sei.test/v1",
		HTTPClient: mockClient,
		Policy: retry.Policy{
			MaxAttempts:     3,
			InitialInterval: time.Millisecond,
			MaxInterval:     2 * time.Millisecond,
		},
	})
}

func TestLoginSuccess(t *testing.T) {
	var captured *http.Request
	var capturedBody []byte
	mockClient := &MockHTTPClient{
		DoFunc: func(request *http.Request) (*http.Response, error) {
			captured = request
			capturedBody, _ = io.ReadAll(request.Body)
			return jsonResponse(200, `{"Token":"abc123","Login":{"Nome":"Maria"},"Unidades":[{"IdUnidade":"7","Sigla":"SEAD"}]}`), nil
		},
	}

	client := newTestClient(mockClient)
	session, err := client.Login(context.Background(), "maria", "s3cret", "SEAD")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	if session.Token != "abc123" {
		t.Errorf("Token = %q, want abc123", session.Token)
	}
	if len(session.Unidades) != 1 || session.Unidades[0].IdUnidade != "7" {
		t.Errorf("Unidades = %+v, want one unit with id 7", session.Unidades)
	}
	if captured.URL.Path != "/v1/orgaos/usuarios/login" {
		t.Errorf("request path = %q", captured.URL.Path)
	}
	if !bytes.Contains(capturedBody, []byte(`"Usuario":"maria"`)) {
		t.Errorf("login body missing user: %s", capturedBody)
	}
}

func TestLoginBadCredentialsFailsFastWithoutRetry(t *testing.T) {
	attempts := 0
	mockClient := &MockHTTPClient{
		DoFunc: func(request *http.Request) (*http.Response, error) {
			attempts++
			return jsonResponse(401, `{"Message":"credenciais inválidas"}`), nil
		},
	}

	client := newTestClient(mockClient)
	_, err := client.Login(context.Background(), "maria", "wrong", "SEAD")
	if err == nil {
		t.Fatal("Login succeeded, want error")
	}
	if KindOf(err) != KindAuth {
		t.Errorf("KindOf = %q, want KindAuth", KindOf(err))
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1 (login is never retried)", attempts)
	}

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatal("error is not *APIError")
	}
	if apiErr.Message != "credenciais inválidas" {
		t.Errorf("Message = %q, want the upstream message", apiErr.Message)
	}
}

func TestDocumentsPageSendsQuotedTokenAndParams(t *testing.T) {
	var captured *http.Request
	mockClient := &MockHTTPClient{
		DoFunc: func(request *http.Request) (*http.Response, error) {
			captured = request
			return jsonResponse(200, `{"Info":{"Pagina":2,"TotalItens":35},"Documentos":[{"DocumentoFormatado":"DOC-1"}]}`), nil
		},
	}

	client := newTestClient(mockClient)
	page, err := client.DocumentsPage(context.Background(), "tok", "00002012041202595", "7", 2, 10)
	if err != nil {
		t.Fatalf("DocumentsPage failed: %v", err)
	}

	if page.Info.TotalItens != 35 {
		t.Errorf("TotalItens = %d, want 35", page.Info.TotalItens)
	}
	if len(page.Documentos) != 1 || page.Documentos[0].DocumentoFormatado != "DOC-1" {
		t.Errorf("Documentos = %+v", page.Documentos)
	}

	// Upstream quirk: token header value is wrapped in literal quotes.
	if got := captured.Header.Get("token"); got != `"tok"` {
		t.Errorf("token header = %q, want %q", got, `"tok"`)
	}

	query := captured.URL.Query()
	wantParams := map[string]string{
		"protocolo_procedimento": "00002012041202595",
		"pagina":                 "2",
		"quantidade":             "10",
		"sinal_completo":         "N",
	}
	for param, want := range wantParams {
		if got := query.Get(param); got != want {
			t.Errorf("query %s = %q, want %q", param, got, want)
		}
	}
	if !strings.HasSuffix(captured.URL.Path, "/unidades/7/procedimentos/documentos") {
		t.Errorf("path = %q", captured.URL.Path)
	}
}

func TestProgressPageStatusMapping(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		wantKind   Kind
	}{
		{"forbidden", 403, KindAuth},
		{"unknown process", 422, KindValidation},
		{"upstream failure", 500, KindUpstream},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			mockClient := &MockHTTPClient{
				DoFunc: func(request *http.Request) (*http.Response, error) {
					return jsonResponse(test.statusCode, `{}`), nil
				},
			}

			client := newTestClient(mockClient)
			_, err := client.ProgressPage(context.Background(), "tok", "123", "7", 1, 10)
			if err == nil {
				t.Fatal("ProgressPage succeeded, want error")
			}
			if KindOf(err) != test.wantKind {
				t.Errorf("KindOf = %q, want %q", KindOf(err), test.wantKind)
			}
		})
	}
}

func TestTransportFailureRetriesThenReportsKindTransport(t *testing.T) {
	attempts := 0
	mockClient := &MockHTTPClient{
		DoFunc: func(request *http.Request) (*http.Response, error) {
			attempts++
			return nil, &url.Error{Op: "Get", URL: request.URL.String(), Err: errors.New("connection refused")}
		},
	}

	client := newTestClient(mockClient)
	_, err := client.DocumentsPage(context.Background(), "tok", "123", "7", 1, 10)
	if err == nil {
		t.Fatal("DocumentsPage succeeded, want error")
	}
	if KindOf(err) != KindTransport {
		t.Errorf("KindOf = %q, want KindTransport", KindOf(err))
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	mockClient := &MockHTTPClient{
		DoFunc: func(request *http.Request) (*http.Response, error) {
			return nil, &url.Error{Op: "Get", URL: "x", Err: errors.New("connection refused")}
		},
	}

	breaker := retry.NewBreaker(3, time.Minute)
	client := NewClient(Config{
		BaseURL:    "https://sei.test/v1",
		HTTPClient: mockClient,
		Breaker:    breaker,
		Policy:     retry.Policy{MaxAttempts: 1, InitialInterval: time.Millisecond},
	})

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if _, err := client.DocumentsPage(ctx, "tok", "123", "7", 1, 10); KindOf(err) != KindTransport {
			t.Fatalf("call %d: KindOf = %q, want KindTransport", i, KindOf(err))
		}
	}

	// Fourth call must be refused without touching the transport.
	calls := 0
	mockClient.DoFunc = func(request *http.Request) (*http.Response, error) {
		calls++
		return jsonResponse(200, `{}`), nil
	}
	_, err := client.DocumentsPage(ctx, "tok", "123", "7", 1, 10)
	if KindOf(err) != KindUnavailable {
		t.Fatalf("KindOf = %q, want KindUnavailable", KindOf(err))
	}
	if calls != 0 {
		t.Errorf("transport calls while open = %d, want 0", calls)
	}
}

func TestSignTreats204AsSuccess(t *testing.T) {
	var captured *http.Request
	mockClient := &MockHTTPClient{
		DoFunc: func(request *http.Request) (*http.Response, error) {
			captured = request
			return &http.Response{StatusCode: http.StatusNoContent, Body: http.NoBody}, nil
		},
	}

	client := newTestClient(mockClient)
	err := client.Sign(context.Background(), "tok", "7", "DOC-9", SignRequest{
		Orgao: "SEAD", Cargo: "Analista", IdLogin: "maria", Senha: "s3cret", IdUsuario: "42",
	})
	if err != nil {
		t.Fatalf("Sign failed: %v", err)
	}
	if captured.Method != http.MethodPatch {
		t.Errorf("method = %q, want PATCH", captured.Method)
	}
	if got := captured.URL.Query().Get("protocolo_documento"); got != "DOC-9" {
		t.Errorf("protocolo_documento = %q, want DOC-9", got)
	}
}

func TestDownloadHTMLConvertsToText(t *testing.T) {
	mockClient := &MockHTTPClient{
		DoFunc: func(request *http.Request) (*http.Response, error) {
			response := jsonResponse(200, `<html><body><h1>Despacho</h1><p>Encaminhe-se &agrave; unidade.</p></body></html>`)
			response.Header.Set("Content-Disposition", `attachment; filename="despacho_01.html"`)
			return response, nil
		},
	}

	client := newTestClient(mockClient)
	download, err := client.Download(context.Background(), "tok", "7", "DOC-1")
	if err != nil {
		t.Fatalf("Download failed: %v", err)
	}
	if download.Type != DownloadHTML {
		t.Errorf("Type = %q, want html", download.Type)
	}
	if download.Filename != "despacho_01.html" {
		t.Errorf("Filename = %q", download.Filename)
	}
	if !strings.Contains(download.Text, "Despacho") {
		t.Errorf("Text = %q, want heading text preserved", download.Text)
	}
	if strings.Contains(download.Text, "<p>") {
		t.Errorf("Text still contains markup: %q", download.Text)
	}
}

func TestDownloadPDFKeepsRawContent(t *testing.T) {
	pdfBytes := "%PDF-1.7 fake"
	mockClient := &MockHTTPClient{
		DoFunc: func(request *http.Request) (*http.Response, error) {
			response := &http.Response{
				StatusCode: 200,
				Header:     http.Header{"Content-Type": {"application/pdf"}},
				Body:       io.NopCloser(strings.NewReader(pdfBytes)),
			}
			response.Header.Set("Content-Disposition", `attachment; filename="anexo.pdf"`)
			return response, nil
		},
	}

	client := newTestClient(mockClient)
	download, err := client.Download(context.Background(), "tok", "7", "DOC-2")
	if err != nil {
		t.Fatalf("Download failed: %v", err)
	}
	if download.Type != DownloadPDF {
		t.Errorf("Type = %q, want pdf", download.Type)
	}
	if string(download.Content) != pdfBytes {
		t.Errorf("Content altered: %q", download.Content)
	}
	if download.Text != "" {
		t.Errorf("Text = %q, want empty for pdf", download.Text)
	}
}

func TestDownloadMissingDispositionFallsBackToDefaultName(t *testing.T) {
	mockClient := &MockHTTPClient{
		DoFunc: func(request *http.Request) (*http.Response, error) {
			return jsonResponse(200, `<p>conteudo</p>`), nil
		},
	}

	client := newTestClient(mockClient)
	download, err := client.Download(context.Background(), "tok", "7", "DOC-3")
	if err != nil {
		t.Fatalf("Download failed: %v", err)
	}
	if download.Filename != "documento_DOC-3.html" {
		t.Errorf("Filename = %q", download.Filename)
	}
}

func TestExtractText(t *testing.T) {
	html := `<html><head><style>p{color:red}</style></head><body>
<script>alert(1)</script>
<h2>Termo de Abertura</h2>
<p>Primeiro par&aacute;grafo &amp; detalhes.</p>
<ul><li>Item um</li><li>Item dois</li></ul>
</body></html>`

	text := ExtractText([]byte(html))
	if strings.Contains(text, "alert(1)") {
		t.Error("script content leaked into text")
	}
	if strings.Contains(text, "color:red") {
		t.Error("style content leaked into text")
	}
	if !strings.Contains(text, "Termo de Abertura") {
		t.Errorf("heading missing: %q", text)
	}
	if !strings.Contains(text, "- Item um") {
		t.Errorf("list items missing: %q", text)
	}
	if !strings.Contains(text, "&") || strings.Contains(text, "&amp;") {
		t.Errorf("entity not decoded: %q", text)
	}
	if !strings.Contains(text, "parágrafo") {
		t.Errorf("accented entity not decoded: %q", text)
	}
}

func TestExtractTextFlattensTableRows(t *testing.T) {
	// SEI letterheads and signature blocks are laid out as tables; each row
	// must come out as one line with its cells run together.
	html := `<body>
<table>
<tr><td>Processo n&ordm;</td><td>00011.000123/2024-01</td></tr>
<tr><td>Interessado:</td><td>Secretaria de Administra&ccedil;&atilde;o</td></tr>
</table>
<p>Documento assinado eletronicamente por <b>MARIA SILVA</b>.</p>
</body>`

	text := ExtractText([]byte(html))
	lines := strings.Split(text, "\n")
	var rows []string
	for _, line := range lines {
		if strings.TrimSpace(line) != "" {
			rows = append(rows, line)
		}
	}
	if len(rows) != 3 {
		t.Fatalf("got %d lines, want 3: %q", len(rows), text)
	}
	if rows[0] != "Processo nº 00011.000123/2024-01" {
		t.Errorf("first row = %q", rows[0])
	}
	if rows[1] != "Interessado: Secretaria de Administração" {
		t.Errorf("second row = %q", rows[1])
	}
	if !strings.Contains(rows[2], "MARIA SILVA") {
		t.Errorf("signature line = %q", rows[2])
	}
}
