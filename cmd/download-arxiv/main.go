package main

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cognicore/conceptmine/pkg/conceptmine/cleantext"
)

// arXiv API endpoint
const apiURL = "http://export.arxiv.org/api/query"

// ArxivFeed represents the XML response from arXiv API
type ArxivFeed struct {
	XMLName xml.Name     `xml:"feed"`
	Entries []ArxivEntry `xml:"entry"`
}

// ArxivEntry represents a single paper
type ArxivEntry struct {
	ID        string `xml:"id"`
	Title     string `xml:"title"`
	Summary   string `xml:"summary"`
	Published string `xml:"published"`
	Category  []struct {
		Term string `xml:"term,attr"`
	} `xml:"category"`
}

// Abstract is one line of the output corpus.
type Abstract struct {
	ArticleID   string    `json:"article_id"`
	Title       string    `json:"title"`
	PublishedAt time.Time `json:"published_at"`
	Categories  []string  `json:"categories"`
	Text        string    `json:"text"`
}

func main() {
	// Configuration
	category := "cs.AI" // Default: AI papers
	maxResults := 200
	outPath := "testdata/arxiv/abstracts.jsonl"

	if len(os.Args) > 1 {
		category = os.Args[1]
	}
	if len(os.Args) > 2 {
		fmt.Sscanf(os.Args[2], "%d", &maxResults)
	}
	if len(os.Args) > 3 {
		outPath = os.Args[3]
	}

	log.Printf("Downloading %d abstracts from arXiv category: %s\n", maxResults, category)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	feed, err := fetch(ctx, http.DefaultClient, apiURL, category, maxResults)
	if err != nil {
		log.Fatal("Failed to fetch:", err)
	}
	log.Printf("Received %d papers\n", len(feed.Entries))

	if err := os.MkdirAll(filepath.Dir(outPath), 0755); err != nil {
		log.Fatal("Failed to create output directory:", err)
	}
	outFile, err := os.Create(outPath)
	if err != nil {
		log.Fatal("Failed to create output file:", err)
	}
	defer outFile.Close()

	n, err := writeAbstracts(outFile, convert(feed))
	if err != nil {
		log.Fatal("Failed to write abstracts:", err)
	}
	log.Printf("Wrote %d abstracts to %s", n, outPath)
}

func fetch(ctx context.Context, client *http.Client, endpoint, category string, maxResults int) (*ArxivFeed, error) {
	params := url.Values{}
	params.Set("search_query", "cat:"+category)
	params.Set("max_results", fmt.Sprintf("%d", maxResults))
	params.Set("sortBy", "submittedDate")
	params.Set("sortOrder", "descending")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP error: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var feed ArxivFeed
	if err := xml.Unmarshal(body, &feed); err != nil {
		return nil, fmt.Errorf("parse XML: %w", err)
	}
	return &feed, nil
}

// convert keeps the abstract markup as-is; the pipeline cleans it.
func convert(feed *ArxivFeed) []Abstract {
	out := make([]Abstract, 0, len(feed.Entries))
	for _, entry := range feed.Entries {
		if strings.TrimSpace(entry.Summary) == "" {
			continue
		}
		pubTime, err := time.Parse(time.RFC3339, entry.Published)
		if err != nil {
			pubTime = time.Time{}
		}
		var cats []string
		seen := make(map[string]struct{})
		for _, c := range entry.Category {
			if _, ok := seen[c.Term]; ok || c.Term == "" {
				continue
			}
			seen[c.Term] = struct{}{}
			cats = append(cats, c.Term)
		}
		out = append(out, Abstract{
			ArticleID:   arxivID(entry.ID),
			Title:       cleantext.Collapse(entry.Title),
			PublishedAt: pubTime,
			Categories:  cats,
			Text:        strings.TrimSpace(entry.Summary),
		})
	}
	return out
}

// arxivID turns http://arxiv.org/abs/2401.01234v2 into 2401.01234v2.
func arxivID(id string) string {
	if i := strings.Index(id, "/abs/"); i >= 0 {
		return id[i+len("/abs/"):]
	}
	return id
}

func writeAbstracts(w io.Writer, abstracts []Abstract) (int, error) {
	enc := json.NewEncoder(w)
	for i, a := range abstracts {
		if err := enc.Encode(a); err != nil {
			return i, err
		}
	}
	return len(abstracts), nil
}
