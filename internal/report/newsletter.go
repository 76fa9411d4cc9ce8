package report

import (
	"bytes"
	"fmt"
	"html"
	"html/template"
	"regexp"
	"strings"

	"github.com/starford/newsletter-scanner/internal/models"
)

const (
	maxSections        = 12
	candidateArticles  = 8
	maxSectionArticles = 6
	maxTextArticles    = 5
	maxDescriptionLen  = 150
)

var tagRe = regexp.MustCompile(`<[^>]+>`)

// Newsletter is a rendered email.
type Newsletter struct {
	Subject string
	HTML    string
	Text    string
}

// Subject returns the newsletter subject for date (YYYY-MM-DD).
func Subject(date string) string {
	return fmt.Sprintf("Trending Topics %s – Marketing, AI & Analytics", date)
}

type palette struct {
	Color, Background string
	terms             []string
}

// Section colours are picked from the cluster's top terms; first match wins.
var palettes = []palette{
	{"#7c3aed", "#f5f3ff", []string{"ai", "llm", "ml", "generative"}},
	{"#059669", "#ecfdf5", []string{"analytics", "data", "bigquery", "ga4"}},
	{"#0891b2", "#ecfeff", []string{"marketing", "seo", "social", "advertising"}},
}

var defaultPalette = palette{Color: "#3b82f6", Background: "#eff6ff"}

func sectionPalette(topTerms []string) palette {
	joined := strings.Join(topTerms, " ")
	for _, p := range palettes {
		for _, w := range p.terms {
			if strings.Contains(joined, w) {
				return p
			}
		}
	}
	return defaultPalette
}

type newsletterArticle struct {
	Title, URL, Source, Description string
}

type newsletterSection struct {
	Number   int
	Label    string
	Size     int
	Palette  palette
	Summary  models.Summary
	Articles []newsletterArticle
	Links    []newsletterArticle
}

type newsletterData struct {
	ScanDate   string
	TotalItems int
	Sources    string
	Intro      string
	Sections   []newsletterSection
}

// BuildNewsletter renders the HTML and plain-text bodies.
func BuildNewsletter(clusters []models.Cluster, items []models.Item, meta models.RunMetadata, intro string) (Newsletter, error) {
	data := newsletterData{
		ScanDate:   meta.ScanDate,
		TotalItems: meta.TotalItems,
		Sources:    strings.Join(meta.SourcesUsed, ", "),
		Intro:      intro,
	}
	for i, c := range clusters[:min(len(clusters), maxSections)] {
		s := newsletterSection{
			Number:  i + 1,
			Label:   c.Label,
			Size:    c.Size,
			Palette: sectionPalette(c.TopTerms),
		}
		if c.Summary != nil {
			s.Summary = *c.Summary
		}
		for _, idx := range c.ItemIndices[:min(len(c.ItemIndices), candidateArticles)] {
			if idx < 0 || idx >= len(items) {
				continue
			}
			it := items[idx]
			if it.Title != "" && it.URL != "" && len(s.Articles) < maxSectionArticles {
				s.Articles = append(s.Articles, newsletterArticle{
					Title:       it.Title,
					URL:         it.URL,
					Source:      it.Source,
					Description: plainDescription(it.Description),
				})
			}
		}
		for _, idx := range c.ItemIndices[:min(len(c.ItemIndices), maxTextArticles)] {
			if idx >= 0 && idx < len(items) && items[idx].Title != "" {
				s.Links = append(s.Links, newsletterArticle{Title: items[idx].Title, URL: items[idx].URL})
			}
		}
		data.Sections = append(data.Sections, s)
	}

	var htmlBody bytes.Buffer
	if err := htmlTemplate.Execute(&htmlBody, data); err != nil {
		return Newsletter{}, fmt.Errorf("report: render html: %w", err)
	}
	return Newsletter{Subject: Subject(meta.ScanDate), HTML: htmlBody.String(), Text: renderText(data)}, nil
}

// plainDescription strips tags, cuts to maxDescriptionLen characters and unescapes entities.
func plainDescription(s string) string {
	s = tagRe.ReplaceAllString(s, "")
	if r := []rune(s); len(r) > maxDescriptionLen {
		s = string(r[:maxDescriptionLen])
	}
	return strings.TrimSpace(html.UnescapeString(s))
}

var funcs = template.FuncMap{"title": titleCase}

func renderText(d newsletterData) string {
	var b strings.Builder
	fmt.Fprintf(&b, "TRENDING TOPICS – %s\nMarketing, AI & Analytics\n%d source articles\n%s\n",
		d.ScanDate, d.TotalItems, strings.Repeat("=", 60))
	if d.Intro != "" {
		fmt.Fprintf(&b, "\n%s\n", d.Intro)
	}
	for _, s := range d.Sections {
		fmt.Fprintf(&b, "\n%s\n%d. %s\n   %d articles\n", strings.Repeat("─", 50), s.Number, strings.ToUpper(s.Label), s.Size)
		if s.Summary.Summary != "" {
			fmt.Fprintf(&b, "\n   %s\n", s.Summary.Summary)
		}
		if s.Summary.WhyItMatters != "" {
			fmt.Fprintf(&b, "\n   Why it matters: %s\n", s.Summary.WhyItMatters)
		}
		if s.Summary.ArticleIdea != "" {
			fmt.Fprintf(&b, "\n   Article idea: %s\n", s.Summary.ArticleIdea)
		}
		if s.Summary.ArticleAngle != "" {
			fmt.Fprintf(&b, "   Angle: %s\n", s.Summary.ArticleAngle)
		}
		b.WriteString("\n")
		for _, a := range s.Links {
			fmt.Fprintf(&b, "   - %s\n", a.Title)
			if a.URL != "" {
				fmt.Fprintf(&b, "     %s\n", a.URL)
			}
		}
	}
	return b.String()
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		r := []rune(w)
		words[i] = strings.ToUpper(string(r[:1])) + strings.ToLower(string(r[1:]))
	}
	return strings.Join(words, " ")
}

var htmlTemplate = template.Must(template.New("newsletter.html").Funcs(funcs).Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><meta name="viewport" content="width=device-width,initial-scale=1"></head>
<body style="font-family:-apple-system,BlinkMacSystemFont,'Segoe UI',Roboto,sans-serif;max-width:680px;margin:0 auto;padding:20px;color:#1f2937;background:#ffffff;">
<div style="background:linear-gradient(135deg,#1e40af,#7c3aed);padding:28px 24px;border-radius:12px;color:white;margin-bottom:28px;">
  <h1 style="margin:0 0 6px;font-size:24px;font-weight:700;">Trending Topics</h1>
  <p style="margin:0;opacity:0.9;font-size:15px;">Marketing, AI &amp; Analytics | {{.ScanDate}}</p>
  <p style="margin:10px 0 0;opacity:0.7;font-size:13px;">{{.TotalItems}} source articles from {{.Sources}}</p>
</div>
{{if .Intro}}
<div style="background:#f8fafc;border-left:4px solid #3b82f6;padding:16px 20px;margin-bottom:28px;border-radius:0 8px 8px 0;">
  <p style="margin:0;font-size:15px;line-height:1.6;color:#334155;">{{.Intro}}</p>
</div>
{{end}}
{{range .Sections}}
<div style="margin-bottom:28px;border:1px solid #e5e7eb;border-radius:12px;overflow:hidden;">
  <div style="background:{{.Palette.Background}};padding:16px 20px;border-bottom:1px solid #e5e7eb;">
    <h2 style="margin:0;font-size:17px;color:{{.Palette.Color}};">{{title .Label}}</h2>
    <span style="font-size:12px;color:#9ca3af;">{{.Size}} articles</span>
  </div>
  <div style="padding:16px 20px;">
    {{with .Summary.Summary}}<p style="margin:0 0 10px;font-size:14px;line-height:1.6;color:#374151;">{{.}}</p>{{end}}
    {{with .Summary.WhyItMatters}}<p style="margin:0 0 10px;font-size:13px;line-height:1.5;color:#6b7280;"><strong style="color:#374151;">Why it matters:</strong> {{.}}</p>{{end}}
    {{if or .Summary.ArticleIdea .Summary.ArticleAngle}}
    <div style="background:#fefce8;border:1px solid #fde68a;padding:12px 16px;border-radius:8px;margin:12px 0;">
      <p style="margin:0 0 4px;font-size:12px;font-weight:600;color:#92400e;text-transform:uppercase;">LinkedIn article idea</p>
      {{with .Summary.ArticleIdea}}<p style="margin:0 0 6px;font-size:14px;font-weight:600;color:#1f2937;">{{.}}</p>{{end}}
      {{with .Summary.ArticleAngle}}<p style="margin:0;font-size:13px;color:#78716c;line-height:1.5;">{{.}}</p>{{end}}
    </div>
    {{end}}
    {{if .Articles}}<div style="margin-top:12px;">
    {{range .Articles}}
      <div style="padding:8px 0;border-bottom:1px solid #f3f4f6;">
        <a href="{{.URL}}" style="text-decoration:none;color:#1e40af;font-size:14px;font-weight:500;line-height:1.4;">{{.Title}}</a>
        {{with .Description}}<p style="margin:4px 0 0;font-size:12px;color:#6b7280;line-height:1.4;">{{.}}</p>{{end}}
        <p style="margin:2px 0 0;"><span style="font-size:11px;color:#9ca3af;">{{.Source}}</span></p>
      </div>
    {{end}}
    </div>{{end}}
  </div>
</div>
{{end}}
<div style="margin-top:36px;padding:20px;background:#f9fafb;border-radius:8px;font-size:12px;color:#9ca3af;text-align:center;">
  <p style="margin:0;">Generated by Newsletter Scanner</p>
  <p style="margin:4px 0 0;">Sources: Google News, Reddit, HackerNews, Google Trends</p>
</div>
</body>
</html>
`))
