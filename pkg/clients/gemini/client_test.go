package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/redflow/redflow/pkg/errs"
	"github.com/redflow/redflow/pkg/models"
)

func candidateResponse(text string) string {
	encoded, _ := json.Marshal(text)

	return fmt.Sprintf(`{"candidates":[{"content":{"parts":[{"text":%s}]}}]}`, encoded)
}

func testPost() *models.Post {
	return &models.Post{
		ID:        "abc123",
		Subreddit: "golang",
		Title:     "A post about Go",
		SelfText:  "body text",
		Comments:  []models.Comment{{ID: "c1", Body: "great point"}},
	}
}

func TestGenerateScript(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "gemini-1.5-flash:generateContent")
		assert.Equal(t, "secret", r.Header.Get("x-goog-api-key"))

		var req generateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Contents, 1)

		prompt := req.Contents[0].Parts[0].Text
		assert.Contains(t, prompt, "A post about Go")
		assert.Contains(t, prompt, "great point")
		assert.Contains(t, prompt, "my angle")

		_, _ = w.Write([]byte(candidateResponse(`{"title": "Go post", "script": "narration text here"}`)))
	}))
	defer server.Close()

	client, err := NewClient(Config{APIKey: "secret", BaseURL: server.URL})
	require.NoError(t, err)

	script, err := client.GenerateScript(context.Background(), testPost(), "my angle")
	require.NoError(t, err)

	assert.Equal(t, "Go post", script.Title)
	assert.Equal(t, "narration text here", script.Text)
	assert.Equal(t, "abc123", script.SourcePostID)
	assert.Equal(t, "golang", script.SourceSubreddit)
	assert.Equal(t, "my angle", script.Annotation)
}

func TestGenerateScriptToleratesCodeFences(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(candidateResponse("```json\n{\"title\": \"T\", \"script\": \"S\"}\n```")))
	}))
	defer server.Close()

	client, err := NewClient(Config{APIKey: "secret", BaseURL: server.URL})
	require.NoError(t, err)

	script, err := client.GenerateScript(context.Background(), testPost(), "")
	require.NoError(t, err)
	assert.Equal(t, "T", script.Title)
	assert.Equal(t, "S", script.Text)
}

func TestGenerateScriptErrorClassification(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		kind   errs.Kind
	}{
		{name: "rate limited", status: http.StatusTooManyRequests, body: "{}", kind: errs.KindTransient},
		{name: "server error", status: http.StatusInternalServerError, body: "{}", kind: errs.KindTransient},
		{name: "bad request", status: http.StatusBadRequest, body: "{}", kind: errs.KindInvalidInput},
		{name: "no candidates", status: http.StatusOK, body: `{"candidates":[]}`, kind: errs.KindGenerationFailure},
		{name: "not json", status: http.StatusOK, body: candidateResponse("sorry, I cannot help"), kind: errs.KindGenerationFailure},
		{name: "missing fields", status: http.StatusOK, body: candidateResponse(`{"title": "only title"}`), kind: errs.KindGenerationFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			client, err := NewClient(Config{APIKey: "secret", BaseURL: server.URL})
			require.NoError(t, err)

			_, err = client.GenerateScript(context.Background(), testPost(), "")
			require.Error(t, err)
			assert.True(t, errs.IsKind(err, tt.kind), "got kind %s", errs.KindOf(err))
		})
	}
}

func TestNewClientRequiresAPIKey(t *testing.T) {
	_, err := NewClient(Config{})
	require.Error(t, err)
	assert.True(t, errs.IsKind(err, errs.KindInvalidInput))
}
