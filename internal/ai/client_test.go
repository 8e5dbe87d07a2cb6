package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestClientComplete(t *testing.T) {
	var gotReq map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-key" {
			t.Errorf("authorization = %q", auth)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Fatal(err)
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]string{"content": "hello back"}},
			},
		})
	}))
	defer server.Close()

	c := NewClient("test-key", "test-model", server.URL)
	got, err := c.Complete(context.Background(), "system", "user", CompleteOptions{
		Temperature: 0.3,
		MaxTokens:   100,
		JSONObject:  true,
	})
	if err != nil {
		t.Fatal(err)
	}
	if got != "hello back" {
		t.Errorf("content = %q", got)
	}

	if gotReq["model"] != "test-model" {
		t.Errorf("model = %v", gotReq["model"])
	}
	if gotReq["max_tokens"] != float64(100) {
		t.Errorf("max_tokens = %v", gotReq["max_tokens"])
	}
	rf, _ := gotReq["response_format"].(map[string]interface{})
	if rf["type"] != "json_object" {
		t.Errorf("response_format = %v", gotReq["response_format"])
	}
	msgs, _ := gotReq["messages"].([]interface{})
	if len(msgs) != 2 {
		t.Fatalf("messages = %v", msgs)
	}
}

func TestClientCompleteErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error": "insufficient quota"}`, http.StatusTooManyRequests)
	}))
	defer server.Close()

	c := NewClient("k", "m", server.URL)
	if _, err := c.Complete(context.Background(), "s", "u", CompleteOptions{}); err == nil {
		t.Fatal("expected error on non-200 status")
	}
}

func TestClientCompleteNoChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{"choices": []interface{}{}})
	}))
	defer server.Close()

	c := NewClient("k", "m", server.URL)
	if _, err := c.Complete(context.Background(), "s", "u", CompleteOptions{}); err == nil {
		t.Fatal("expected error when no choices returned")
	}
}
