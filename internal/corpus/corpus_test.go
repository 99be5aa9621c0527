package corpus

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cognicore/conceptmine/pkg/conceptmine/aggregate"
)

func TestLoadFromJSONL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "articles.jsonl")
	content := `{"article_id": "A1", "text": "We study graphs."}
not json

{"id": "A2", "abstract": "Noisy data."}
{"url": "http://arxiv.org/abs/1234", "text": "Deep networks."}
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	articles, err := LoadFromJSONL(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(articles) != 3 {
		t.Fatalf("expected 3 articles, got %+v", articles)
	}
	if articles[0].ID != "A1" || articles[0].Text != "We study graphs." {
		t.Errorf("article 0 = %+v", articles[0])
	}
	if articles[1].ID != "A2" || articles[1].Text != "Noisy data." {
		t.Errorf("aliases not applied: %+v", articles[1])
	}
	if articles[2].ID != "http://arxiv.org/abs/1234" {
		t.Errorf("url fallback not applied: %+v", articles[2])
	}
}

func TestLoadFromJSONLErrors(t *testing.T) {
	if _, err := LoadFromJSONL("/nonexistent/articles.jsonl"); err == nil {
		t.Error("expected error for missing file")
	}
	path := filepath.Join(t.TempDir(), "empty.jsonl")
	if err := os.WriteFile(path, []byte("\n\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFromJSONL(path); err == nil {
		t.Error("expected error for file without articles")
	}
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	rows := []aggregate.Row{
		{ArticleID: "A1", Concept: "field of study, applied", AvgRelevance: 0.5, FreqPerArticle: 2, CountPerArticle: 1, ArticleCount: 1},
	}
	if err := WriteCSV(&buf, rows); err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected header and one row, got %q", buf.String())
	}
	if lines[0] != "article_id,clean_concept,avg_relevance,concept_freq_per_art,concept_count_per_art,art_count" {
		t.Errorf("header = %q", lines[0])
	}
	if lines[1] != `A1,"field of study, applied",0.5,2,1,1` {
		t.Errorf("row = %q", lines[1])
	}
}

func TestWriteJSONL(t *testing.T) {
	var buf bytes.Buffer
	rows := []aggregate.Row{{ArticleID: "A1", Concept: "graph", AvgRelevance: 0.25, FreqPerArticle: 1, CountPerArticle: 1, ArticleCount: 1}}
	if err := WriteJSONL(&buf, rows); err != nil {
		t.Fatal(err)
	}
	want := `{"article_id":"A1","clean_concept":"graph","avg_relevance":0.25,"concept_freq_per_art":1,"concept_count_per_art":1,"art_count":1}`
	if strings.TrimSpace(buf.String()) != want {
		t.Errorf("got %s", buf.String())
	}
}
