package sei

import (
	"context"
	"mime"
	"net/http"
	"net/url"
	"strings"
)

// Download fetches a document's body from the upstream store, sniffing the
// payload type from the Content-Disposition filename and converting HTML to
// plain text. PDFs are returned raw with an empty Text.
func (client *Client) Download(ctx context.Context, token, idUnidade, documentoFormatado string) (Download, error) {
	query := url.Values{"protocolo_documento": {documentoFormatado}}
	endpoint := client.baseURL + "/unidades/" + url.PathEscape(idUnidade) + "/documentos/baixar?" + query.Encode()

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
		return Download{}, err
	}
	defer response.Body.Close()

	body, err := readBody(response)
	if err != nil {
		return Download{}, err
	}
	if response.StatusCode != http.StatusOK {
		return Download{}, statusError(response.StatusCode, body, "falha ao baixar documento do SEI")
	}

	filename := dispositionFilename(response.Header.Get("Content-Disposition"))
	if filename == "" {
		filename = "documento_" + documentoFormatado + ".html"
	}

	download := Download{
		Filename: filename,
		Content:  body,
	}

	switch {
	case strings.HasSuffix(strings.ToLower(filename), ".pdf"),
		strings.Contains(response.Header.Get("Content-Type"), "application/pdf"):
		download.Type = DownloadPDF
	default:
		download.Type = DownloadHTML
		download.Text = ExtractText(body)
	}

	return download, nil
}

// dispositionFilename parses the filename out of a Content-Disposition
// header, tolerating malformed values.
func dispositionFilename(header string) string {
	if header == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(header)
	if err != nil {
		return ""
	}
	return params["filename"]
}
