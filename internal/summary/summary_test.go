package summary

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fuomag9/paperdrive/internal/errs"
)

func TestHTTP_Summarize(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		var in map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		assert.Equal(t, "long text", in["text"])
		_, _ = w.Write([]byte(`{"summary":"  short  "}`))
	}))
	defer srv.Close()

	got, err := NewHTTP(srv.URL, srv.Client()).Summarize(context.Background(), "long text")
	require.NoError(t, err)
	assert.Equal(t, "short", got)
}

func TestHTTP_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewHTTP(srv.URL, srv.Client()).Summarize(context.Background(), "x")
	assert.ErrorIs(t, err, errs.ErrRemote)
}

func TestLead_ShortTextUnchanged(t *testing.T) {
	got, err := NewLead().Summarize(context.Background(), "  One   sentence.\nTwo. ")
	require.NoError(t, err)
	assert.Equal(t, "One sentence. Two.", got)
}

func TestLead_KeepsWholeSentences(t *testing.T) {
	l := &Lead{MaxChars: 40}
	got, err := l.Summarize(context.Background(), "First sentence here. Second one is here. Third never fits in.")
	require.NoError(t, err)
	assert.Equal(t, "First sentence here. Second one is here.", got)
}

func TestLead_TruncatesOverlongSentence(t *testing.T) {
	l := &Lead{MaxChars: 10}
	got, err := l.Summarize(context.Background(), strings.Repeat("é", 50))
	require.NoError(t, err)
	assert.Equal(t, 10, utf8.RuneCountInString(got))
	assert.True(t, strings.HasSuffix(got, "…"))
}

type stub struct {
	out string
	err error
}

func (s stub) Summarize(context.Context, string) (string, error) { return s.out, s.err }

func TestFallback(t *testing.T) {
	var reported error
	f := &Fallback{
		Primary:   stub{err: errs.ErrRemote},
		Secondary: stub{out: "lead"},
		OnError:   func(err error) { reported = err },
	}
	got, err := f.Summarize(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, "lead", got)
	assert.ErrorIs(t, reported, errs.ErrRemote)

	f.Primary = stub{out: "model"}
	got, err = f.Summarize(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, "model", got)

	f.Secondary = stub{err: errors.New("unused")}
	_, err = f.Summarize(context.Background(), "x")
	assert.NoError(t, err)
}
