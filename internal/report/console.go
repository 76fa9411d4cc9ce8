// Package report renders scan results to the console, export files and email.
package report

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"

	"github.com/starford/newsletter-scanner/internal/models"
)

const (
	categoryTopKeywords = 5
	clusterTopTerms     = 5
)

// Console prints human-readable reports.
type Console struct {
	out         io.Writer
	topN        int
	showSources bool
}

// NewConsole returns a Console writing to out.
func NewConsole(out io.Writer, topN int, showSources bool) *Console {
	return &Console{out: out, topN: topN, showSources: showSources}
}

// WithTopN returns a copy limited to n topics.
func (c *Console) WithTopN(n int) *Console {
	cp := *c
	cp.topN = n
	return &cp
}

// Print writes the header, the top topics, the category breakdown and, when
// present, the clusters.
func (c *Console) Print(topics []models.Topic, clusters []models.Cluster, meta models.RunMetadata) {
	fmt.Fprintln(c.out)
	c.header(meta, len(topics))
	c.topTopics(topics)
	c.categories(topics)
	if len(clusters) > 0 {
		c.clusters(clusters)
	}
	fmt.Fprintln(c.out)
}

func (c *Console) header(meta models.RunMetadata, topicCount int) {
	sources := "N/A"
	if len(meta.SourcesUsed) > 0 {
		sources = strings.Join(meta.SourcesUsed, ", ")
	}
	lines := []string{
		"Newsletter Scanner",
		"Date: " + meta.ScanDate,
		fmt.Sprintf("Total items: %d | Topics extracted: %d", meta.TotalItems, topicCount),
		"Sources: " + sources,
	}
	width := len("SCAN REPORT")
	for _, l := range lines {
		width = max(width, len([]rune(l)))
	}
	fmt.Fprintf(c.out, "+- SCAN REPORT %s+\n", strings.Repeat("-", width-len("SCAN REPORT")))
	for _, l := range lines {
		fmt.Fprintf(c.out, "| %s%s |\n", l, strings.Repeat(" ", width-len([]rune(l))))
	}
	fmt.Fprintf(c.out, "+%s+\n", strings.Repeat("-", width+2))
}

func (c *Console) newTable(caption string, header []string) *tablewriter.Table {
	t := tablewriter.NewWriter(c.out)
	t.SetHeader(header)
	t.SetAutoWrapText(false)
	t.SetCaption(true, caption)
	return t
}

func (c *Console) topTopics(topics []models.Topic) {
	header := []string{"#", "Keyword", "Score", "Category", "Mentions"}
	if c.showSources {
		header = append(header, "Sources")
	}
	t := c.newTable(fmt.Sprintf("Top %d Trending Topics", c.topN), header)
	for i, topic := range topics[:min(c.topN, len(topics))] {
		category := "Other"
		if p := topic.PrimaryCategory(); p != nil {
			category = p.DisplayName
		}
		row := []string{
			strconv.Itoa(i + 1),
			topic.Keyword,
			fmt.Sprintf("%.3f", topic.TrendScore),
			category,
			strconv.Itoa(topic.MentionCount),
		}
		if c.showSources {
			row = append(row, strings.Join(topic.Sources, ", "))
		}
		t.Append(row)
	}
	t.Render()
}

type categoryGroup struct {
	key, display string
	keywords     []string
}

// groupByCategory collects topics under every category they match, largest group first.
func groupByCategory(topics []models.Topic) []categoryGroup {
	index := make(map[string]int)
	var groups []categoryGroup
	for _, topic := range topics {
		for _, cat := range topic.Categories {
			i, ok := index[cat.Category]
			if !ok {
				i = len(groups)
				index[cat.Category] = i
				groups = append(groups, categoryGroup{key: cat.Category, display: cat.DisplayName})
			}
			groups[i].keywords = append(groups[i].keywords, topic.Keyword)
		}
	}
	sort.SliceStable(groups, func(a, b int) bool { return len(groups[a].keywords) > len(groups[b].keywords) })
	return groups
}

func (c *Console) categories(topics []models.Topic) {
	t := c.newTable("Topics by Category", []string{"Category", "Count", "Top Keywords"})
	for _, g := range groupByCategory(topics) {
		display := g.display
		if display == "" {
			display = g.key
		}
		top := g.keywords[:min(categoryTopKeywords, len(g.keywords))]
		t.Append([]string{display, strconv.Itoa(len(g.keywords)), strings.Join(top, ", ")})
	}
	t.Render()
}

func (c *Console) clusters(clusters []models.Cluster) {
	t := c.newTable("Topic Clusters", []string{"#", "Label", "Size", "Top Terms"})
	for i, cl := range clusters {
		terms := cl.TopTerms[:min(clusterTopTerms, len(cl.TopTerms))]
		t.Append([]string{strconv.Itoa(i + 1), cl.Label, strconv.Itoa(cl.Size), strings.Join(terms, ", ")})
	}
	t.Render()
}
