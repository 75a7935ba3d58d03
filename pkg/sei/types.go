package sei

// Info is the pagination block every paged SEI listing carries.
type Info struct {
	Pagina          int `json:"Pagina"`
	TotalPaginas    int `json:"TotalPaginas"`
	QuantidadeItens int `json:"QuantidadeItens"`
	TotalItens      int `json:"TotalItens"`
}

// Unidade identifies an organizational unit.
type Unidade struct {
	IdUnidade string `json:"IdUnidade,omitempty"`
	Sigla     string `json:"Sigla,omitempty"`
	Descricao string `json:"Descricao,omitempty"`
}

// Usuario identifies a SEI user.
type Usuario struct {
	IdUsuario string `json:"IdUsuario,omitempty"`
	Sigla     string `json:"Sigla,omitempty"`
	Nome      string `json:"Nome,omitempty"`
}

// Documento is one entry of a process's document listing.
type Documento struct {
	IdDocumento        string  `json:"IdDocumento,omitempty"`
	DocumentoFormatado string  `json:"DocumentoFormatado"`
	Serie              string  `json:"Serie,omitempty"`
	Numero             string  `json:"Numero,omitempty"`
	Descricao          string  `json:"Descricao,omitempty"`
	Data               string  `json:"Data,omitempty"`
	UnidadeElaboradora Unidade `json:"UnidadeElaboradora,omitempty"`
}

// Andamento is one progress event of a process.
type Andamento struct {
	IdAndamento string  `json:"IdAndamento,omitempty"`
	Descricao   string  `json:"Descricao,omitempty"`
	DataHora    string  `json:"DataHora,omitempty"`
	Unidade     Unidade `json:"Unidade,omitempty"`
	Usuario     Usuario `json:"Usuario,omitempty"`
}

// DocumentPage is one page of the document listing, decoded once at the
// client boundary.
type DocumentPage struct {
	Info       Info        `json:"Info"`
	Documentos []Documento `json:"Documentos"`
}

// ProgressPage is one page of the progress-event listing.
type ProgressPage struct {
	Info       Info        `json:"Info"`
	Andamentos []Andamento `json:"Andamentos"`
}

// Session is the result of a successful login.
type Session struct {
	Token    string    `json:"Token"`
	Login    Usuario   `json:"Login"`
	Unidades []Unidade `json:"Unidades"`
}

// UnidadeAberta is a unit where the procedure is currently open.
type UnidadeAberta struct {
	Unidade Unidade `json:"Unidade"`
	Usuario Usuario `json:"UsuarioAtribuicao,omitempty"`
}

// Procedimento is the procedure-metadata lookup result.
type Procedimento struct {
	UnidadesProcedimentoAberto []UnidadeAberta `json:"UnidadesProcedimentoAberto"`
	LinkAcesso                 string          `json:"LinkAcesso,omitempty"`
}

// SignRequest carries the credentials for signing a document.
type SignRequest struct {
	Orgao     string `json:"Orgao"`
	Cargo     string `json:"Cargo"`
	IdLogin   string `json:"IdLogin"`
	Senha     string `json:"Senha"`
	IdUsuario string `json:"IdUsuario"`
}

// DownloadType tags the payload kind of a downloaded document.
type DownloadType string

const (
	DownloadHTML DownloadType = "html"
	DownloadPDF  DownloadType = "pdf"
)

// Download is a document body fetched from the upstream store. Text is the
// plain-text form for HTML payloads and empty for PDFs.
type Download struct {
	Type     DownloadType `json:"type"`
	Filename string       `json:"filename"`
	Content  []byte       `json:"content"`
	Text     string       `json:"text,omitempty"`
}
