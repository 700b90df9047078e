package pdf

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGotenbergClient_RenderHTML(t *testing.T) {
	var gotHTML string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/forms/chromium/convert/html", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))
		f, _, err := r.FormFile("files")
		require.NoError(t, err)
		data, _ := io.ReadAll(f)
		gotHTML = string(data)
		assert.Equal(t, "true", r.FormValue("printBackground"))
		_, _ = w.Write([]byte("%PDF-1.7 fake"))
	}))
	defer srv.Close()

	out, err := NewGotenbergClient(srv.URL+"/", 0).RenderHTML(context.Background(), "<h1>Facture</h1>")
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.7 fake", string(out))
	assert.Equal(t, "<h1>Facture</h1>", gotHTML)
}

func TestGotenbergClient_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		http.Error(w, "chromium crashed", http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewGotenbergClient(srv.URL, 0)
	_, err := client.RenderHTML(context.Background(), "<p/>")
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "chromium crashed"))
	assert.Error(t, client.Ping(context.Background()))
}
