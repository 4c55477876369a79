package llm

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/goccy/go-json"

	"github.com/countplus7/wbot-backend-sub000/pkg/retry"
)

// embeddingStub serves the embeddings endpoint, recording per-request batch
// sizes and answering each text "t<n>" with the vector {n} so callers can
// verify ordering.
func embeddingStub(t *testing.T, batchSizes *[]int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Input []string `json:"input"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("malformed embeddings request: %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		*batchSizes = append(*batchSizes, len(req.Input))

		type datum struct {
			Object    string    `json:"object"`
			Index     int       `json:"index"`
			Embedding []float32 `json:"embedding"`
		}
		data := make([]datum, len(req.Input))
		for i, text := range req.Input {
			var n float32
			fmt.Sscanf(text, "t%f", &n)
			data[i] = datum{Object: "embedding", Index: i, Embedding: []float32{n}}
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"data":   data,
			"model":  "text-embedding-ada-002",
			"usage":  map[string]int{"prompt_tokens": 0, "total_tokens": 0},
		})
	}))
}

func testClient(baseURL string) *Client {
	return NewClientWithConfig(ClientConfig{
		APIKey:     "test-key",
		BaseURL:    baseURL,
		EmbedRetry: retry.Policy{MaxAttempts: 1},
	})
}

func TestEmbedBatchSplitsLargeInputPreservingOrder(t *testing.T) {
	var batchSizes []int
	srv := embeddingStub(t, &batchSizes)
	defer srv.Close()

	texts := make([]string, 250)
	for i := range texts {
		texts[i] = fmt.Sprintf("t%d", i)
	}

	client := testClient(srv.URL)
	embeddings, err := client.EmbedBatch(context.Background(), texts)
	if err != nil {
		t.Fatal(err)
	}

	if len(embeddings) != len(texts) {
		t.Fatalf("embeddings = %d, want %d", len(embeddings), len(texts))
	}
	wantSizes := []int{100, 100, 50}
	if len(batchSizes) != len(wantSizes) {
		t.Fatalf("requests = %v, want sizes %v", batchSizes, wantSizes)
	}
	for i, want := range wantSizes {
		if batchSizes[i] != want {
			t.Errorf("request %d size = %d, want %d", i, batchSizes[i], want)
		}
	}
	for i, embedding := range embeddings {
		if len(embedding) != 1 || embedding[0] != float32(i) {
			t.Fatalf("embeddings[%d] = %v, order not preserved across requests", i, embedding)
		}
	}
}

func TestEmbedBatchSingleRequestAtLimit(t *testing.T) {
	var batchSizes []int
	srv := embeddingStub(t, &batchSizes)
	defer srv.Close()

	texts := make([]string, embedBatchMax)
	for i := range texts {
		texts[i] = fmt.Sprintf("t%d", i)
	}

	client := testClient(srv.URL)
	if _, err := client.EmbedBatch(context.Background(), texts); err != nil {
		t.Fatal(err)
	}
	if len(batchSizes) != 1 || batchSizes[0] != embedBatchMax {
		t.Errorf("requests = %v, want one request of %d", batchSizes, embedBatchMax)
	}
}

func TestEmbedBatchRejectsEmptyText(t *testing.T) {
	var batchSizes []int
	srv := embeddingStub(t, &batchSizes)
	defer srv.Close()

	client := testClient(srv.URL)
	if _, err := client.EmbedBatch(context.Background(), []string{"t1", "   "}); err == nil {
		t.Fatal("expected an input error for blank text")
	}
	if len(batchSizes) != 0 {
		t.Errorf("requests = %v, want none for rejected input", batchSizes)
	}
}

func TestEmbedBatchEmptyInputIsNoop(t *testing.T) {
	client := testClient("http://127.0.0.1:0")
	embeddings, err := client.EmbedBatch(context.Background(), nil)
	if err != nil || embeddings != nil {
		t.Errorf("embeddings = %v, err = %v, want nil, nil", embeddings, err)
	}
}
