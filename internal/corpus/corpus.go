// Package corpus reads article collections and writes concept tables.
package corpus

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/cognicore/conceptmine/pkg/conceptmine"
	"github.com/cognicore/conceptmine/pkg/conceptmine/aggregate"
)

// record accepts the field names used by our own downloader and by common
// abstract dumps.
type record struct {
	ArticleID string `json:"article_id"`
	ID        string `json:"id"`
	URL       string `json:"url"`
	Text      string `json:"text"`
	Abstract  string `json:"abstract"`
}

func (r record) article() conceptmine.Article {
	id := r.ArticleID
	if id == "" {
		id = r.ID
	}
	if id == "" {
		id = r.URL
	}
	text := r.Text
	if text == "" {
		text = r.Abstract
	}
	return conceptmine.Article{ID: id, Text: text}
}

// LoadFromJSONL loads articles from a JSONL file with proper error handling
func LoadFromJSONL(path string) ([]conceptmine.Article, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("read file %s: %w", path, err)
	}
	defer f.Close()

	articles, err := ReadJSONL(f, path)
	if err != nil {
		return nil, err
	}
	if len(articles) == 0 {
		return nil, fmt.Errorf("no valid articles found in %s", path)
	}
	return articles, nil
}

// ReadJSONL reads one article per line. Malformed lines are logged and
// skipped; name is only used in log messages.
func ReadJSONL(r io.Reader, name string) ([]conceptmine.Article, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	var articles []conceptmine.Article
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		var rec record
		if err := json.Unmarshal([]byte(text), &rec); err != nil {
			log.Printf("Warning: skipping malformed JSON at line %d in %s: %v", line, name, err)
			continue
		}
		articles = append(articles, rec.article())
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	return articles, nil
}

var header = []string{
	"article_id", "clean_concept", "avg_relevance",
	"concept_freq_per_art", "concept_count_per_art", "art_count",
}

// WriteCSV writes rows with a header line.
func WriteCSV(w io.Writer, rows []aggregate.Row) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, r := range rows {
		rec := []string{
			r.ArticleID,
			r.Concept,
			strconv.FormatFloat(r.AvgRelevance, 'f', -1, 64),
			strconv.Itoa(r.FreqPerArticle),
			strconv.Itoa(r.CountPerArticle),
			strconv.Itoa(r.ArticleCount),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteJSONL writes one JSON object per row.
func WriteJSONL(w io.Writer, rows []aggregate.Row) error {
	enc := json.NewEncoder(w)
	for _, r := range rows {
		if err := enc.Encode(r); err != nil {
			return err
		}
	}
	return nil
}
