package library

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fuomag9/paperdrive/internal/credentials"
	"github.com/fuomag9/paperdrive/internal/database/dbtest"
	"github.com/fuomag9/paperdrive/internal/errs"
	"github.com/fuomag9/paperdrive/internal/lease"
	"github.com/fuomag9/paperdrive/internal/logger"
	"github.com/fuomag9/paperdrive/internal/metadata"
	"github.com/fuomag9/paperdrive/internal/oauth"
	"github.com/fuomag9/paperdrive/internal/storage"
	"github.com/fuomag9/paperdrive/internal/storage/storagetest"
	"github.com/fuomag9/paperdrive/internal/topics"
	"github.com/fuomag9/paperdrive/internal/workspace"
)

type fakeHandshake struct {
	result oauth.Result
	err    error
}

var _ Handshaker = (*fakeHandshake)(nil)

func (f *fakeHandshake) Begin(_ context.Context, hint string) (oauth.Authorization, error) {
	return oauth.Authorization{URL: "https://idp.example/auth?login_hint=" + hint, State: "st"}, nil
}

func (f *fakeHandshake) Complete(context.Context, string, string, string) (oauth.Result, error) {
	return f.result, f.err
}

type fakeCreds struct {
	mu    sync.Mutex
	pairs map[string]credentials.Pair
	err   error
}

var _ Credentials = (*fakeCreds)(nil)

func (f *fakeCreds) Store(_ context.Context, identity string, pair credentials.Pair) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pairs[identity] = pair
	return nil
}

func (f *fakeCreds) Fetch(_ context.Context, identity string) (credentials.Pair, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return credentials.Pair{}, f.err
	}
	p, ok := f.pairs[identity]
	if !ok {
		return credentials.Pair{}, errs.ErrIdentityNotFound
	}
	return p, nil
}

type fakeMetadata struct {
	mu      sync.Mutex
	text    map[string]string
	works   map[string]*metadata.Work
	lookups int
}

var _ Metadata = (*fakeMetadata)(nil)

func (f *fakeMetadata) ExtractText(data []byte) (string, error) {
	t, ok := f.text[string(data)]
	if !ok {
		return "", fmt.Errorf("%w: not a pdf", errs.ErrValidation)
	}
	return t, nil
}

func (f *fakeMetadata) FindIdentifier(text string) string { return metadata.FindIdentifier(text) }

func (f *fakeMetadata) Lookup(_ context.Context, id string) (*metadata.Work, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lookups++
	return f.works[id], nil
}

type fixedSummary string

func (s fixedSummary) Summarize(context.Context, string) (string, error) { return string(s), nil }

type fixture struct {
	svc   *Service
	mem   *storagetest.Memory
	creds *fakeCreds
	meta  *fakeMetadata
	hs    *fakeHandshake
	ws    string
}

const identity = "ada@example.org"

func work(doi, title string) *metadata.Work {
	return &metadata.Work{
		Title: title, Year: "2020", Publication: "Journal", Pages: "1-2",
		Abstract: "abs", DOI: doi, Authors: "Lovelace, Ada",
	}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		mem:   storagetest.NewMemory(),
		creds: &fakeCreds{pairs: map[string]credentials.Pair{}},
		meta: &fakeMetadata{
			text: map[string]string{
				"pdf-a": "Paper A. doi:10.1000/aaa. Body text.",
				"pdf-b": "Paper B, see 10.1000/bbb for details.",
				"pdf-x": "No identifier anywhere.",
				"pdf-u": "Cites 10.1000/unresolvable only.",
			},
			works: map[string]*metadata.Work{
				"10.1000/aaa": work("10.1000/aaa", "Paper A"),
				"10.1000/bbb": work("10.1000/bbb", "Paper B"),
				"10.1000/ccc": work("10.1000/ccc", "Paper C"),
			},
		},
		hs: &fakeHandshake{result: oauth.Result{
			Identity:    identity,
			Credentials: credentials.Pair{AccessSecret: "acc", RefreshSecret: "ref"},
		}},
	}

	log := logger.Nop()
	f.svc = New(Deps{
		Handshake:  f.hs,
		Creds:      f.creds,
		Workspaces: workspace.NewDirectory(dbtest.Open(t), log),
		Connector:  f.mem,
		Topics:     topics.NewStore(log),
		Locker:     lease.NewLocal(5 * time.Second),
		Metadata:   f.meta,
		Summarizer: fixedSummary("a summary"),
	}, log)

	sess, err := f.svc.CompleteAuthorization(context.Background(), "st", "code", "")
	require.NoError(t, err)
	f.ws = sess.WorkspaceID
	return f
}

func TestService_BeginAuthorization(t *testing.T) {
	f := newFixture(t)
	auth, err := f.svc.BeginAuthorization(context.Background(), "  ada@example.org ")
	require.NoError(t, err)
	assert.Contains(t, auth.URL, "login_hint=ada@example.org")
}

func TestService_CompleteAuthorization(t *testing.T) {
	f := newFixture(t)

	assert.NotEmpty(t, f.ws)
	assert.Equal(t, "acc", f.creds.pairs[identity].AccessSecret)
	assert.Equal(t, 1, f.mem.Calls["connect:acc"])

	// Signing in again reuses the workspace.
	sess, err := f.svc.CompleteAuthorization(context.Background(), "st2", "code", "")
	require.NoError(t, err)
	assert.Equal(t, f.ws, sess.WorkspaceID)
	assert.Equal(t, 1, f.mem.Calls["create_container"])
}

func TestService_CompleteAuthorizationFailureStoresNothing(t *testing.T) {
	f := newFixture(t)
	f.hs.result = oauth.Result{}
	f.hs.err = errs.ErrIdentityAssertionInvalid
	delete(f.creds.pairs, identity)

	_, err := f.svc.CompleteAuthorization(context.Background(), "st", "code", "")
	assert.ErrorIs(t, err, errs.ErrIdentityAssertionInvalid)
	assert.Empty(t, f.creds.pairs)
}

func TestService_IngestDocumentIntoNewTopic(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.svc.IngestDocument(ctx, f.ws, "vision", "a.pdf", []byte("pdf-a"))
	require.NoError(t, err)
	assert.True(t, res.Added)
	assert.Equal(t, 1, res.Record.Serial)
	assert.Equal(t, "10.1000/aaa", res.Record.Identifier)
	assert.Equal(t, "a summary", res.Record.Summary)
	assert.Equal(t, "", res.Record.Remarks)

	recs, err := f.svc.ListRecords(ctx, f.ws, "vision")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, res.Record, recs[0])

	names, err := f.svc.ListTopics(ctx, f.ws)
	require.NoError(t, err)
	assert.Equal(t, []string{"vision"}, names)
}

func TestService_IngestSameIdentifierTwice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.svc.IngestDocument(ctx, f.ws, "t", "a.pdf", []byte("pdf-a"))
	require.NoError(t, err)
	require.True(t, first.Added)

	second, err := f.svc.IngestByIdentifier(ctx, f.ws, "t", "10.1000/AAA")
	require.NoError(t, err)
	assert.False(t, second.Added)
	assert.Equal(t, first.Record, second.Record)
	assert.Equal(t, 1, f.meta.lookups, "known identifiers are not resolved again")

	recs, err := f.svc.ListRecords(ctx, f.ws, "t")
	require.NoError(t, err)
	assert.Len(t, recs, 1)
}

func TestService_IngestByIdentifier(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.IngestDocument(ctx, f.ws, "t", "a.pdf", []byte("pdf-a"))
	require.NoError(t, err)

	res, err := f.svc.IngestByIdentifier(ctx, f.ws, "t", " 10.1000/ccc ")
	require.NoError(t, err)
	assert.True(t, res.Added)
	assert.Equal(t, 2, res.Record.Serial)
	assert.Equal(t, "Paper C", res.Record.Name)
	assert.Empty(t, res.Record.Summary)
}

func TestService_IngestClipsOverlongGeneratedText(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	long := work("10.1000/long", "Long")
	long.Abstract = strings.Repeat("a", 40000)
	f.meta.works["10.1000/long"] = long

	res, err := f.svc.IngestByIdentifier(ctx, f.ws, "t", "10.1000/long")
	require.NoError(t, err)
	assert.Equal(t, topics.MaxCellChars, utf8.RuneCountInString(res.Record.Abstract))
	assert.True(t, strings.HasSuffix(res.Record.Abstract, "…"))

	recs, err := f.svc.ListRecords(ctx, f.ws, "t")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, res.Record.Abstract, recs[0].Abstract)
}

func TestService_UpdateRejectsOverlongRemarks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.IngestByIdentifier(ctx, f.ws, "t", "10.1000/ccc")
	require.NoError(t, err)

	remarks := strings.Repeat("r", topics.MaxCellChars+1)
	_, err = f.svc.UpdateRecord(ctx, f.ws, "t", 1, topics.Patch{Remarks: &remarks})
	require.ErrorIs(t, err, errs.ErrValidation)

	recs, err := f.svc.ListRecords(ctx, f.ws, "t")
	require.NoError(t, err)
	assert.Empty(t, recs[0].Remarks)
}

func TestService_IngestUnresolved(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.IngestDocument(ctx, f.ws, "t", "x.pdf", []byte("pdf-x"))
	assert.ErrorIs(t, err, errs.ErrUnresolvedDocument)

	_, err = f.svc.IngestDocument(ctx, f.ws, "t", "u.pdf", []byte("pdf-u"))
	assert.ErrorIs(t, err, errs.ErrUnresolvedDocument)

	_, err = f.svc.IngestByIdentifier(ctx, f.ws, "t", "10.1000/zzz")
	assert.ErrorIs(t, err, errs.ErrUnresolvedDocument)

	_, err = f.svc.IngestDocument(ctx, f.ws, "t", "bad.pdf", []byte("garbage"))
	assert.ErrorIs(t, err, errs.ErrValidation)

	assert.Empty(t, f.mem.Files(f.ws, "t.xlsx"), "failed ingests never write the topic")
}

func TestService_UpdateAndDeleteRecords(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, id := range []string{"10.1000/aaa", "10.1000/bbb", "10.1000/ccc"} {
		_, err := f.svc.IngestByIdentifier(ctx, f.ws, "t", id)
		require.NoError(t, err)
	}

	remarks := "must read"
	rec, err := f.svc.UpdateRecord(ctx, f.ws, "t", 3, topics.Patch{Remarks: &remarks})
	require.NoError(t, err)
	assert.Equal(t, "must read", rec.Remarks)

	require.NoError(t, f.svc.DeleteRecord(ctx, f.ws, "t", 2))

	recs, err := f.svc.ListRecords(ctx, f.ws, "t")
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, 1, recs[0].Serial)
	assert.Equal(t, "10.1000/aaa", recs[0].Identifier)
	assert.Equal(t, 2, recs[1].Serial)
	assert.Equal(t, "10.1000/ccc", recs[1].Identifier)
	assert.Equal(t, "must read", recs[1].Remarks)

	assert.ErrorIs(t, f.svc.DeleteRecord(ctx, f.ws, "t", 7), errs.ErrRecordNotFound)
	_, err = f.svc.UpdateRecord(ctx, f.ws, "t", 7, topics.Patch{Remarks: &remarks})
	assert.ErrorIs(t, err, errs.ErrRecordNotFound)
	_, err = f.svc.UpdateRecord(ctx, f.ws, "t", 1, topics.Patch{})
	assert.ErrorIs(t, err, errs.ErrValidation)
}

func TestService_ConcurrentIngestsKeepEveryRecord(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	ids := []string{"10.1000/aaa", "10.1000/bbb", "10.1000/ccc"}
	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, err := f.svc.IngestByIdentifier(ctx, f.ws, "t", id)
			assert.NoError(t, err)
		}(id)
	}
	wg.Wait()

	recs, err := f.svc.ListRecords(ctx, f.ws, "t")
	require.NoError(t, err)
	assert.Len(t, recs, 3)
	for i, r := range recs {
		assert.Equal(t, i+1, r.Serial)
	}
}

func TestService_UnknownWorkspace(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.ListTopics(context.Background(), "no-such-ws")
	assert.ErrorIs(t, err, errs.ErrWorkspaceNotFound)

	_, err = f.svc.ListTopics(context.Background(), "")
	assert.ErrorIs(t, err, errs.ErrValidation)
}

func TestService_ReauthenticationRequired(t *testing.T) {
	f := newFixture(t)
	f.creds.err = fmt.Errorf("%w: invalid_grant", errs.ErrCredentialRefreshFailed)

	_, err := f.svc.ListRecords(context.Background(), f.ws, "t")
	assert.True(t, errs.IsAuth(err))
}

func TestService_RemoteFailureIsSurfaced(t *testing.T) {
	f := newFixture(t)
	f.mem.Err = errors.Join(errs.ErrRemote, errors.New("quota exceeded"))

	_, err := f.svc.IngestByIdentifier(context.Background(), f.ws, "t", "10.1000/aaa")
	assert.ErrorIs(t, err, errs.ErrRemote)
}

func TestService_InvalidTopic(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.ListRecords(context.Background(), f.ws, "a/b")
	assert.ErrorIs(t, err, errs.ErrValidation)
	assert.ErrorIs(t, f.svc.DeleteRecord(context.Background(), f.ws, "", 1), errs.ErrValidation)
}

func TestService_UploadDocuments(t *testing.T) {
	f := newFixture(t)

	files, err := f.svc.UploadDocuments(context.Background(), f.ws, []Document{
		{Name: "a.pdf", Data: []byte("pdf-a")},
		{Name: "b.pdf", Data: []byte("pdf-b")},
	})
	require.NoError(t, err)
	assert.Len(t, files, 2)
	assert.Equal(t, [][]byte{[]byte("pdf-a")}, f.mem.Files(f.ws, "a.pdf"))

	got, err := f.mem.List(context.Background(), f.ws, storage.Filter{MimeType: storage.MimePDF})
	require.NoError(t, err)
	assert.Len(t, got, 2)

	_, err = f.svc.UploadDocuments(context.Background(), f.ws, nil)
	assert.ErrorIs(t, err, errs.ErrValidation)
	_, err = f.svc.UploadDocuments(context.Background(), f.ws, []Document{{Name: "../x.pdf"}})
	assert.ErrorIs(t, err, errs.ErrValidation)
}
