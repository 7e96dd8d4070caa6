// Package metadata busca título, descrição, imagem e nome do site de páginas
// externas para pré-preencher receitas do tipo link.
//
// A busca é uma otimização: qualquer falha resulta em nil e é apenas registrada
// em log, nunca propagada ao chamador.
package metadata

import (
	"bytes"
	"context"
	"errors"
	"io"
	"mime"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/net/html/charset"
	"golang.org/x/text/transform"

	"github.com/gestaozabele/receitas/internal/config"
)

const (
	acceptHeader     = "text/html,application/xhtml+xml;q=0.9,*/*;q=0.1"
	defaultUserAgent = "ReceitasBot/1.0 (+link preview)"
	defaultTimeout   = 10 * time.Second
	defaultMaxBody   = 5 << 20
	maxRedirects     = 5

	MaxTitleLength       = 500
	MaxDescriptionLength = 500
	MaxImageURLLength    = 2000
	MaxSiteNameLength    = 256
)

// Categorias registradas em log quando uma busca é descartada.
const (
	categoryInvalidURL  = "invalid_url"
	categoryNetwork     = "network"
	categoryTimeout     = "timeout"
	categoryCanceled    = "canceled"
	categoryContentType = "content_type"
	categoryTooLarge    = "too_large"
	categoryStatus      = "status"
	categoryOther       = "other"
)

var (
	errTooManyRedirects  = errors.New("metadata: redirecionamentos demais")
	errRedirectNotHTTP   = errors.New("metadata: redirecionamento para esquema não suportado")
	errBodyLimitExceeded = errors.New("metadata: corpo acima do limite")
	errBodyTruncated     = errors.New("metadata: corpo cortado no Content-Length anunciado")
)

// Metadata descreve a prévia extraída. Campos ausentes ficam nil.
type Metadata struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	ImageURL    *string `json:"image_url"`
	SiteName    *string `json:"site_name"`
}

// Config descreve limites da busca.
type Config struct {
	MaxBodyBytes int64
	Timeout      time.Duration
	UserAgent    string
	HTTPClient   *http.Client
}

// ConfigFrom converte a configuração da aplicação.
func ConfigFrom(cfg config.MetadataConfig) Config {
	return Config{
		MaxBodyBytes: cfg.MaxBodyBytes,
		Timeout:      cfg.Timeout,
		UserAgent:    cfg.UserAgent,
	}
}

// Fetcher executa buscas limitadas em tamanho, tempo e tipo de conteúdo.
type Fetcher struct {
	cfg    Config
	client *http.Client
	logger zerolog.Logger
}

// NewFetcher aplica defaults e cria o cliente HTTP quando não informado.
func NewFetcher(cfg Config, logger zerolog.Logger) *Fetcher {
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = defaultMaxBody
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if strings.TrimSpace(cfg.UserAgent) == "" {
		cfg.UserAgent = defaultUserAgent
	}

	var client *http.Client
	if cfg.HTTPClient != nil {
		// cópia rasa: a política de redirecionamento não vaza para o cliente do chamador
		c := *cfg.HTTPClient
		if c.CheckRedirect == nil {
			c.CheckRedirect = checkRedirect
		}
		client = &c
	} else {
		client = &http.Client{
			Timeout:       cfg.Timeout,
			CheckRedirect: checkRedirect,
		}
	}

	return &Fetcher{cfg: cfg, client: client, logger: logger}
}

// FetchMetadata devolve nil em qualquer falha.
func (f *Fetcher) FetchMetadata(ctx context.Context, rawURL string) (md *Metadata) {
	defer func() {
		if rec := recover(); rec != nil {
			f.logger.Error().Interface("panic", rec).Str("url", rawURL).Msg("metadata: panic recuperado")
			md = nil
		}
	}()

	target, ok := parseTarget(rawURL)
	if !ok {
		f.discard(rawURL, categoryInvalidURL, nil)
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, f.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		f.discard(rawURL, categoryInvalidURL, err)
		return nil
	}
	req.Header.Set("User-Agent", f.cfg.UserAgent)
	req.Header.Set("Accept", acceptHeader)

	resp, err := f.client.Do(req)
	if err != nil {
		f.discard(rawURL, classify(err), err)
		return nil
	}
	defer resp.Body.Close()

	contentType := resp.Header.Get("Content-Type")
	if contentType != "" && !isHTML(contentType) {
		f.discard(rawURL, categoryContentType, nil)
		return nil
	}

	if resp.ContentLength > f.cfg.MaxBodyBytes {
		f.discard(rawURL, categoryTooLarge, nil)
		return nil
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		f.logger.Warn().Str("url", rawURL).Str("category", categoryStatus).Int("status", resp.StatusCode).Msg("metadata: busca descartada")
		return nil
	}

	body, err := readCapped(resp.Body, f.cfg.MaxBodyBytes)
	if err != nil {
		if errors.Is(err, errBodyLimitExceeded) {
			f.discard(rawURL, categoryTooLarge, nil)
		} else {
			f.discard(rawURL, classify(err), err)
		}
		return nil
	}

	// o cliente HTTP para de ler no Content-Length anunciado; um documento cortado
	// no meio de uma tag ou texto indica que o servidor mentiu sobre o tamanho
	if resp.ContentLength > 0 && cutShort(body) {
		f.discard(rawURL, categoryTooLarge, errBodyTruncated)
		return nil
	}

	p := extract(decode(body, contentType))
	return p.metadata(target)
}

func (f *Fetcher) discard(rawURL, category string, err error) {
	f.logger.Warn().Err(err).Str("url", rawURL).Str("category", category).Msg("metadata: busca descartada")
}

// parseTarget aceita apenas URLs absolutas http/https com host.
func parseTarget(rawURL string) (*url.URL, bool) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || !u.IsAbs() || u.Host == "" {
		return nil, false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, false
	}
	return u, true
}

func isHTML(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.ToLower(strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0]))
	}
	return mediaType == "text/html" || mediaType == "application/xhtml+xml"
}

// readCapped lê no máximo limit bytes; um byte a mais indica corpo grande demais,
// independente do Content-Length anunciado.
func readCapped(r io.Reader, limit int64) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(body)) > limit {
		return nil, errBodyLimitExceeded
	}
	return body, nil
}

// cutShort informa se o corpo não termina em '>' (desconsiderando espaços).
func cutShort(body []byte) bool {
	trimmed := bytes.TrimRight(body, " \t\r\n\f")
	return len(trimmed) > 0 && trimmed[len(trimmed)-1] != '>'
}

// decode converte o corpo para UTF-8 usando BOM, Content-Type ou <meta charset>.
func decode(body []byte, contentType string) io.Reader {
	enc, _, _ := charset.DetermineEncoding(body, contentType)
	return transform.NewReader(bytes.NewReader(body), enc.NewDecoder())
}

func checkRedirect(req *http.Request, via []*http.Request) error {
	if len(via) >= maxRedirects {
		return errTooManyRedirects
	}
	if req.URL.Scheme != "http" && req.URL.Scheme != "https" {
		return errRedirectNotHTTP
	}
	return nil
}

func classify(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return categoryTimeout
	case errors.Is(err, context.Canceled):
		return categoryCanceled
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return categoryTimeout
		}
		return categoryNetwork
	}
	return categoryOther
}
