package sei

import (
	"regexp"
	"strings"
)

// Pre-compiled patterns for HTML-to-text conversion of downloaded documents.
var (
	reScript     = regexp.MustCompile(`(?is)<script[^>]*>.*?</script>`)
	reStyle      = regexp.MustCompile(`(?is)<style[^>]*>.*?</style>`)
	reComment    = regexp.MustCompile(`(?s)<!--.*?-->`)
	reHeading    = regexp.MustCompile(`(?i)<h[1-6][^>]*>`)
	reHeadingEnd = regexp.MustCompile(`(?i)</h[1-6]>`)
	rePara       = regexp.MustCompile(`(?i)<(?:p|div|br)[^>]*/?>`)
	reRowEnd     = regexp.MustCompile(`(?i)</tr>`)
	reCellEnd    = regexp.MustCompile(`(?i)</t[dh]>`)
	reListItem   = regexp.MustCompile(`(?i)<li[^>]*>`)
	reTag        = regexp.MustCompile(`<[^>]+>`)
	reMultiNL    = regexp.MustCompile(`\n{3,}`)
	reMultiSpace = regexp.MustCompile(`[^\S\n]{2,}`)
	reLineEdges  = regexp.MustCompile(`(?m)^[\t ]+|[\t ]+$`)
)

// entityReplacer decodes the entities SEI's editor actually emits: the HTML
// basics plus the accented Latin letters of Portuguese legal text.
var entityReplacer = strings.NewReplacer(
	"&amp;", "&",
	"&lt;", "<",
	"&gt;", ">",
	"&quot;", "\"",
	"&nbsp;", " ",
	"&#39;", "'",
	"&aacute;", "á", "&Aacute;", "Á",
	"&agrave;", "à", "&Agrave;", "À",
	"&acirc;", "â", "&Acirc;", "Â",
	"&atilde;", "ã", "&Atilde;", "Ã",
	"&ccedil;", "ç", "&Ccedil;", "Ç",
	"&eacute;", "é", "&Eacute;", "É",
	"&ecirc;", "ê", "&Ecirc;", "Ê",
	"&iacute;", "í", "&Iacute;", "Í",
	"&oacute;", "ó", "&Oacute;", "Ó",
	"&ocirc;", "ô", "&Ocirc;", "Ô",
	"&otilde;", "õ", "&Otilde;", "Õ",
	"&uacute;", "ú", "&Uacute;", "Ú",
	"&ordm;", "º", "&ordf;", "ª",
	"&sect;", "§",
)

// ExtractText converts a downloaded HTML document to plain text for
// summarization. SEI documents lay out their letterhead, reference blocks
// and signatures as tables, so each table row becomes one line with its
// cells separated by a single space rather than one line per cell.
func ExtractText(rawHTML []byte) string {
	content := string(rawHTML)

	// Keep only the body when present.
	bodyStart := strings.Index(strings.ToLower(content), "<body")
	if bodyStart >= 0 {
		bodyTagEnd := strings.Index(content[bodyStart:], ">")
		if bodyTagEnd >= 0 {
			content = content[bodyStart+bodyTagEnd+1:]
		}
	}
	bodyEnd := strings.Index(strings.ToLower(content), "</body>")
	if bodyEnd >= 0 {
		content = content[:bodyEnd]
	}

	content = reScript.ReplaceAllString(content, "")
	content = reStyle.ReplaceAllString(content, "")
	content = reComment.ReplaceAllString(content, "")

	content = reHeading.ReplaceAllString(content, "\n\n")
	content = reHeadingEnd.ReplaceAllString(content, "\n")
	content = reListItem.ReplaceAllString(content, "\n- ")
	content = reRowEnd.ReplaceAllString(content, "\n")
	content = reCellEnd.ReplaceAllString(content, " ")
	content = rePara.ReplaceAllString(content, "\n")
	content = reTag.ReplaceAllString(content, "")

	content = entityReplacer.Replace(content)

	content = reMultiSpace.ReplaceAllString(content, " ")
	content = reLineEdges.ReplaceAllString(content, "")
	content = reMultiNL.ReplaceAllString(content, "\n\n")
	return strings.TrimSpace(content)
}
