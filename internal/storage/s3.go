package storage

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	amzDateFormat  = "20060102T150405Z"
	amzDayFormat   = "20060102"
	sigAlgorithm   = "AWS4-HMAC-SHA256"
	emptyBodyHash  = "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"
	defaultTimeout = 15 * time.Second
)

// S3Config descreve um bucket S3/R2.
type S3Config struct {
	Endpoint     string
	Region       string
	Bucket       string
	AccessKey    string
	SecretKey    string
	PublicDomain string
	HTTPClient   *http.Client
}

// S3Store grava e remove objetos assinando as requisições com SigV4.
type S3Store struct {
	cfg    S3Config
	client *http.Client
	now    func() time.Time
}

// NewS3Store valida a configuração e cria o store.
func NewS3Store(cfg S3Config) (*S3Store, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	cfg.Endpoint = strings.TrimRight(cfg.Endpoint, "/")

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}
	return &S3Store{cfg: cfg, client: client, now: time.Now}, nil
}

// Put envia o documento e devolve a URL pública, quando configurada.
func (s *S3Store) Put(ctx context.Context, obj Object) (*StoredObject, error) {
	key := strings.TrimLeft(strings.TrimSpace(obj.Key), "/")
	if key == "" {
		return nil, errors.New("storage: chave do objeto obrigatória")
	}
	if len(obj.Body) == 0 {
		return nil, errors.New("storage: corpo vazio")
	}

	contentType := strings.TrimSpace(obj.ContentType)
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	header := http.Header{}
	header.Set("Content-Type", contentType)
	if cc := strings.TrimSpace(obj.CacheControl); cc != "" {
		header.Set("Cache-Control", cc)
	}

	resp, err := s.do(ctx, http.MethodPut, key, obj.Body, header)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, responseError("upload", resp)
	}

	return &StoredObject{
		Key:  key,
		URL:  s.publicURL(key),
		ETag: strings.Trim(resp.Header.Get("ETag"), `"`),
	}, nil
}

// Delete remove o objeto; chave inexistente não é erro.
func (s *S3Store) Delete(ctx context.Context, key string) error {
	key = strings.TrimLeft(strings.TrimSpace(key), "/")
	if key == "" {
		return errors.New("storage: chave do objeto obrigatória")
	}

	resp, err := s.do(ctx, http.MethodDelete, key, nil, http.Header{})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return responseError("remoção", resp)
	}
	return nil
}

func (s *S3Store) do(ctx context.Context, method, key string, body []byte, header http.Header) (*http.Response, error) {
	target := fmt.Sprintf("%s/%s/%s", s.cfg.Endpoint, s.cfg.Bucket, escapeKey(key))

	req, err := http.NewRequestWithContext(ctx, method, target, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	for k, vals := range header {
		req.Header[k] = vals
	}
	req.ContentLength = int64(len(body))
	if len(body) > 0 {
		req.Header.Set("Content-Length", strconv.Itoa(len(body)))
	}

	payloadHash := emptyBodyHash
	if len(body) > 0 {
		sum := sha256.Sum256(body)
		payloadHash = hex.EncodeToString(sum[:])
	}

	sign(req, s.cfg, payloadHash, s.now().UTC())
	return s.client.Do(req)
}

func (s *S3Store) publicURL(key string) string {
	if domain := strings.TrimSpace(s.cfg.PublicDomain); domain != "" {
		return fmt.Sprintf("%s/%s", strings.TrimRight(domain, "/"), escapeKey(key))
	}
	return fmt.Sprintf("%s/%s/%s", s.cfg.Endpoint, s.cfg.Bucket, escapeKey(key))
}

func responseError(op string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return fmt.Errorf("storage: %s falhou (%d): %s", op, resp.StatusCode, strings.TrimSpace(string(body)))
}

func (cfg S3Config) validate() error {
	required := []struct{ value, msg string }{
		{cfg.Endpoint, "storage: endpoint do S3 ausente"},
		{cfg.Region, "storage: região do S3 ausente"},
		{cfg.Bucket, "storage: bucket do S3 ausente"},
		{cfg.AccessKey, "storage: access key ausente"},
		{cfg.SecretKey, "storage: secret key ausente"},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return errors.New(r.msg)
		}
	}
	if !strings.HasPrefix(cfg.Endpoint, "http://") && !strings.HasPrefix(cfg.Endpoint, "https://") {
		return errors.New("storage: endpoint deve incluir protocolo http/https")
	}
	return nil
}

func escapeKey(key string) string {
	return (&url.URL{Path: key}).EscapedPath()
}

// sign aplica SigV4 assinando host, x-amz-*, e os cabeçalhos de conteúdo presentes.
func sign(req *http.Request, cfg S3Config, payloadHash string, now time.Time) {
	amzDate := now.Format(amzDateFormat)
	day := now.Format(amzDayFormat)

	req.Header.Set("x-amz-date", amzDate)
	req.Header.Set("x-amz-content-sha256", payloadHash)

	headers, signed := canonicalHeaders(req)
	canonicalRequest := strings.Join([]string{
		req.Method,
		canonicalPath(req.URL.EscapedPath()),
		canonicalQuery(req.URL.Query()),
		headers,
		signed,
		payloadHash,
	}, "\n")

	scope := fmt.Sprintf("%s/%s/s3/aws4_request", day, cfg.Region)
	requestHash := sha256.Sum256([]byte(canonicalRequest))
	stringToSign := strings.Join([]string{sigAlgorithm, amzDate, scope, hex.EncodeToString(requestHash[:])}, "\n")

	key := hmacSHA256([]byte("AWS4"+cfg.SecretKey), []byte(day))
	for _, part := range []string{cfg.Region, "s3", "aws4_request"} {
		key = hmacSHA256(key, []byte(part))
	}
	signature := hex.EncodeToString(hmacSHA256(key, []byte(stringToSign)))

	req.Header.Set("Authorization", fmt.Sprintf("%s Credential=%s/%s, SignedHeaders=%s, Signature=%s",
		sigAlgorithm, cfg.AccessKey, scope, signed, signature))
}

func canonicalHeaders(req *http.Request) (string, string) {
	values := map[string]string{"host": req.URL.Host}
	for k, vals := range req.Header {
		lower := strings.ToLower(k)
		if lower == "authorization" || lower == "content-length" {
			continue
		}
		trimmed := make([]string, len(vals))
		for i, v := range vals {
			trimmed[i] = strings.TrimSpace(v)
		}
		values[lower] = strings.Join(trimmed, ",")
	}

	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		b.WriteString(name)
		b.WriteByte(':')
		b.WriteString(values[name])
		b.WriteByte('\n')
	}
	return b.String(), strings.Join(names, ";")
}

// canonicalPath reaplica o encoding exigido pelo SigV4 sobre o path já escapado.
func canonicalPath(escaped string) string {
	if escaped == "" {
		return "/"
	}
	raw, err := url.PathUnescape(escaped)
	if err != nil {
		raw = escaped
	}
	return uriEncode(raw, false)
}

func canonicalQuery(values url.Values) string {
	if len(values) == 0 {
		return ""
	}
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		vals := append([]string(nil), values[k]...)
		sort.Strings(vals)
		for _, v := range vals {
			parts = append(parts, uriEncode(k, true)+"="+uriEncode(v, true))
		}
	}
	return strings.Join(parts, "&")
}

func uriEncode(input string, encodeSlash bool) string {
	var b strings.Builder
	for i := 0; i < len(input); i++ {
		c := input[i]
		switch {
		case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c >= '0' && c <= '9',
			c == '-', c == '_', c == '.', c == '~':
			b.WriteByte(c)
		case c == '/' && !encodeSlash:
			b.WriteByte(c)
		default:
			fmt.Fprintf(&b, "%%%02X", c)
		}
	}
	return b.String()
}

func hmacSHA256(key, data []byte) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write(data)
	return mac.Sum(nil)
}
