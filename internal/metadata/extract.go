package metadata

import (
	"io"
	"net/url"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"
)

const (
	ogTitle       = "og:title"
	ogDescription = "og:description"
	ogImage       = "og:image"
	ogSiteName    = "og:site_name"
	metaDesc      = "description"
)

// page guarda os candidatos encontrados no documento; o primeiro valor não
// vazio de cada chave vence.
type page struct {
	meta  map[string]string
	title string
}

func (p *page) set(key, value string) {
	value = strings.TrimSpace(value)
	if value == "" {
		return
	}
	if _, ok := p.meta[key]; !ok {
		p.meta[key] = value
	}
}

func (p *page) complete() bool {
	for _, key := range []string{ogTitle, ogDescription, ogImage, ogSiteName} {
		if _, ok := p.meta[key]; !ok {
			return false
		}
	}
	return true
}

// extract percorre os tokens do HTML procurando <meta> e o primeiro <title>.
// O tokenizer já decodifica entidades em atributos e no texto do título.
func extract(r io.Reader) page {
	p := page{meta: make(map[string]string)}
	z := html.NewTokenizer(r)

	var (
		inTitle   bool
		titleSeen bool
		titleBuf  strings.Builder
	)

	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			if inTitle {
				p.title = strings.TrimSpace(titleBuf.String())
			}
			return p
		case html.StartTagToken, html.SelfClosingTagToken:
			name, hasAttr := z.TagName()
			switch string(name) {
			case "meta":
				if hasAttr {
					readMeta(z, &p)
				}
			case "title":
				if !titleSeen && tt == html.StartTagToken {
					inTitle = true
				}
			}
		case html.TextToken:
			if inTitle {
				titleBuf.Write(z.Text())
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			if inTitle && string(name) == "title" {
				inTitle = false
				titleSeen = true
				p.title = strings.TrimSpace(titleBuf.String())
			}
		}

		if titleSeen && p.complete() {
			return p
		}
	}
}

// readMeta aceita property ou name, em qualquer ordem em relação a content.
func readMeta(z *html.Tokenizer, p *page) {
	var (
		key        string
		content    string
		hasContent bool
	)
	for {
		attr, val, more := z.TagAttr()
		switch string(attr) {
		case "property":
			key = strings.ToLower(strings.TrimSpace(string(val)))
		case "name":
			if key == "" {
				key = strings.ToLower(strings.TrimSpace(string(val)))
			}
		case "content":
			content = string(val)
			hasContent = true
		}
		if !more {
			break
		}
	}
	if key == "" || !hasContent {
		return
	}

	switch key {
	case ogTitle, ogDescription, ogImage, ogSiteName, metaDesc:
		p.set(key, content)
	}
}

// metadata aplica a ordem de preferência e os limites de tamanho.
func (p page) metadata(target *url.URL) *Metadata {
	md := &Metadata{}

	md.Title = capped(firstNonEmpty(p.meta[ogTitle], p.title), MaxTitleLength)
	md.Description = capped(firstNonEmpty(p.meta[ogDescription], p.meta[metaDesc]), MaxDescriptionLength)
	md.ImageURL = capped(resolveImage(target, p.meta[ogImage]), MaxImageURLLength)
	md.SiteName = capped(firstNonEmpty(p.meta[ogSiteName], target.Hostname()), MaxSiteNameLength)

	return md
}

// resolveImage torna relativa em absoluta; esquemas que não sejam http/https são descartados.
func resolveImage(base *url.URL, raw string) string {
	if raw == "" {
		return ""
	}
	ref, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	abs := base.ResolveReference(ref)
	if abs.Scheme != "http" && abs.Scheme != "https" {
		return ""
	}
	return abs.String()
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func capped(value string, limit int) *string {
	if value == "" {
		return nil
	}
	value = truncate(value, limit)
	return &value
}

// truncate corta por caracteres (runes), não por bytes.
func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	n := 0
	for i := range s {
		if n == limit {
			return s[:i]
		}
		n++
	}
	return s
}
