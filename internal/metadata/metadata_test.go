package metadata

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fuomag9/paperdrive/internal/errs"
)

func TestFindIdentifier(t *testing.T) {
	cases := map[string]string{
		"Available at https://doi.org/10.1109/CVPR.2016.90 (accessed)": "10.1109/CVPR.2016.90",
		"doi:10.1038/nature14539. Received 2014":                      "10.1038/nature14539",
		"DOI 10.1145/3292500.3330701 and later 10.1/xx":               "10.1145/3292500.3330701",
		"no identifier here":                                          Unknown,
		"10.12/too-short-registrant":                                  Unknown,
	}
	for text, want := range cases {
		assert.Equal(t, want, FindIdentifier(text), text)
	}
}

func TestExtractText_RejectsNonPDF(t *testing.T) {
	_, err := ExtractText([]byte("plain text, not a pdf"))
	assert.ErrorIs(t, err, errs.ErrValidation)

	_, err = ExtractText([]byte("%PDF-1.4\ngarbage without xref"))
	assert.ErrorIs(t, err, errs.ErrValidation)
}

const cslBody = `{
  "type": "proceedings-article",
  "title": "Deep Residual Learning for Image Recognition",
  "container-title": ["2016 IEEE Conference on Computer Vision and Pattern Recognition (CVPR)"],
  "page": "770-778",
  "DOI": "10.1109/cvpr.2016.90",
  "abstract": "<jats:p>Deeper neural networks\n are more difficult to train.</jats:p>",
  "author": [
    {"given": "Kaiming", "family": "He"},
    {"given": "Xiangyu", "family": "Zhang"},
    {"literal": "CVPR Committee"}
  ],
  "issued": {"date-parts": [[2016, 6]]}
}`

func TestResolver_Lookup(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/10.1109/CVPR.2016.90", r.URL.Path)
		assert.Equal(t, cslMediaType, r.Header.Get("Accept"))
		w.Header().Set("Content-Type", cslMediaType)
		_, _ = w.Write([]byte(cslBody))
	}))
	defer srv.Close()

	work, err := NewResolver(srv.URL, srv.Client()).Lookup(context.Background(), "10.1109/CVPR.2016.90")
	require.NoError(t, err)
	require.NotNil(t, work)

	assert.Equal(t, Work{
		Title:       "Deep Residual Learning for Image Recognition",
		Year:        "2016",
		Publication: "2016 IEEE Conference on Computer Vision and Pattern Recognition (CVPR)",
		Pages:       "770-778",
		Abstract:    "Deeper neural networks are more difficult to train.",
		DOI:         "10.1109/cvpr.2016.90",
		Authors:     "He, Kaiming and Zhang, Xiangyu and CVPR Committee",
	}, *work)
}

func TestResolver_MissingFieldsAreUnknown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"title": "Untitled draft"}`))
	}))
	defer srv.Close()

	work, err := NewResolver(srv.URL, srv.Client()).Lookup(context.Background(), "10.5555/draft")
	require.NoError(t, err)
	require.NotNil(t, work)
	assert.Equal(t, "Untitled draft", work.Title)
	assert.Equal(t, Unknown, work.Year)
	assert.Equal(t, Unknown, work.Authors)
	assert.Equal(t, Unknown, work.Abstract)
	assert.Equal(t, "10.5555/draft", work.DOI)
}

func TestResolver_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	work, err := NewResolver(srv.URL, srv.Client()).Lookup(context.Background(), "10.5555/missing")
	require.NoError(t, err)
	assert.Nil(t, work)
}

func TestResolver_UnknownIdentifierSkipsNetwork(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("resolver must not be called")
	}))
	defer srv.Close()

	work, err := NewResolver(srv.URL, srv.Client()).Lookup(context.Background(), Unknown)
	require.NoError(t, err)
	assert.Nil(t, work)
}

func TestResolver_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := NewResolver(srv.URL, srv.Client()).Lookup(context.Background(), "10.5555/x")
	assert.ErrorIs(t, err, errs.ErrRemote)
}
