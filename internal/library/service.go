// Package library is the application layer: it signs users in and runs
// every topic operation on behalf of a workspace.
package library

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/fuomag9/paperdrive/internal/credentials"
	"github.com/fuomag9/paperdrive/internal/errs"
	"github.com/fuomag9/paperdrive/internal/lease"
	"github.com/fuomag9/paperdrive/internal/logger"
	"github.com/fuomag9/paperdrive/internal/metadata"
	"github.com/fuomag9/paperdrive/internal/oauth"
	"github.com/fuomag9/paperdrive/internal/storage"
	"github.com/fuomag9/paperdrive/internal/summary"
	"github.com/fuomag9/paperdrive/internal/topics"
)

// Handshaker runs the authorization handshake.
type Handshaker interface {
	Begin(ctx context.Context, ownerHint string) (oauth.Authorization, error)
	Complete(ctx context.Context, state, code, callbackURL string) (oauth.Result, error)
}

// Credentials stores and fetches credential pairs by identity.
type Credentials interface {
	Store(ctx context.Context, identity string, pair credentials.Pair) error
	Fetch(ctx context.Context, identity string) (credentials.Pair, error)
}

// Workspaces maps identities to workspace containers.
type Workspaces interface {
	Resolve(ctx context.Context, identity string, provider storage.Provider) (string, error)
	ResolveIdentity(ctx context.Context, workspaceID string) (string, error)
}

// Metadata reads documents and resolves their identifiers.
type Metadata interface {
	ExtractText(data []byte) (string, error)
	FindIdentifier(text string) string
	Lookup(ctx context.Context, identifier string) (*metadata.Work, error)
}

// Deps are the collaborators of a Service.
type Deps struct {
	Handshake  Handshaker
	Creds      Credentials
	Workspaces Workspaces
	Connector  storage.Connector
	Topics     *topics.Store
	Locker     lease.Locker
	Metadata   Metadata
	Summarizer summary.Summarizer
}

// Session is a signed-in user.
type Session struct {
	Identity    string `json:"identity"`
	WorkspaceID string `json:"workspace_id"`
}

// IngestResult reports the record for an ingested document. Added is false
// when the topic already held a record with the same identifier.
type IngestResult struct {
	Record topics.Record `json:"record"`
	Added  bool          `json:"added"`
}

// Document is an uploaded file.
type Document struct {
	Name string
	Data []byte
}

// Service implements the operations exposed over HTTP.
type Service struct {
	Deps
	log *logger.Logger
}

// New creates a library service
func New(deps Deps, log *logger.Logger) *Service {
	return &Service{Deps: deps, log: log.With("component", "library")}
}

// BeginAuthorization starts a sign-in.
func (s *Service) BeginAuthorization(ctx context.Context, ownerHint string) (oauth.Authorization, error) {
	return s.Handshake.Begin(ctx, strings.TrimSpace(ownerHint))
}

// CompleteAuthorization finishes a sign-in: the verified identity's
// credentials are stored and its workspace is created on first sign-in.
func (s *Service) CompleteAuthorization(ctx context.Context, state, code, callbackURL string) (Session, error) {
	res, err := s.Handshake.Complete(ctx, state, code, callbackURL)
	if err != nil {
		return Session{}, err
	}
	if err := s.Creds.Store(ctx, res.Identity, res.Credentials); err != nil {
		return Session{}, err
	}

	provider, err := s.Connector.Connect(ctx, res.Credentials.AccessSecret)
	if err != nil {
		return Session{}, err
	}
	workspaceID, err := s.Workspaces.Resolve(ctx, res.Identity, provider)
	if err != nil {
		return Session{}, err
	}

	s.log.Info("User signed in", "identity", res.Identity, "workspace_id", workspaceID)
	return Session{Identity: res.Identity, WorkspaceID: workspaceID}, nil
}

// ListTopics returns the topic names in the workspace.
func (s *Service) ListTopics(ctx context.Context, workspaceID string) ([]string, error) {
	p, err := s.provider(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	return s.Topics.ListTopics(ctx, p, workspaceID)
}

// ListRecords returns the records of topic in order.
func (s *Service) ListRecords(ctx context.Context, workspaceID, topic string) ([]topics.Record, error) {
	if err := topics.ValidateTopic(topic); err != nil {
		return nil, err
	}
	p, err := s.provider(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	d, err := s.Topics.Load(ctx, p, workspaceID, topic)
	if err != nil {
		return nil, err
	}
	return d.Records(), nil
}

// IngestDocument reads a PDF, resolves the DOI it cites first and appends
// the resulting record to topic.
func (s *Service) IngestDocument(ctx context.Context, workspaceID, topic, filename string, data []byte) (IngestResult, error) {
	if err := topics.ValidateTopic(topic); err != nil {
		return IngestResult{}, err
	}
	text, err := s.Metadata.ExtractText(data)
	if err != nil {
		return IngestResult{}, fmt.Errorf("%s: %w", filename, err)
	}
	identifier := s.Metadata.FindIdentifier(text)
	if identifier == "" || identifier == metadata.Unknown {
		return IngestResult{}, fmt.Errorf("%w: %s: no DOI found in document", errs.ErrUnresolvedDocument, filename)
	}

	return s.ingest(ctx, workspaceID, topic, identifier, func(ctx context.Context) (string, error) {
		return s.Summarizer.Summarize(ctx, text)
	})
}

// IngestByIdentifier resolves identifier and appends the record to topic.
func (s *Service) IngestByIdentifier(ctx context.Context, workspaceID, topic, identifier string) (IngestResult, error) {
	if err := topics.ValidateTopic(topic); err != nil {
		return IngestResult{}, err
	}
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return IngestResult{}, fmt.Errorf("%w: identifier is required", errs.ErrValidation)
	}
	return s.ingest(ctx, workspaceID, topic, identifier, nil)
}

// ingest skips resolution when the identifier is already present, resolves
// and summarizes outside the lease, then upserts under it.
func (s *Service) ingest(ctx context.Context, workspaceID, topic, identifier string, summarize func(context.Context) (string, error)) (IngestResult, error) {
	p, err := s.provider(ctx, workspaceID)
	if err != nil {
		return IngestResult{}, err
	}

	current, err := s.Topics.Load(ctx, p, workspaceID, topic)
	if err != nil {
		return IngestResult{}, err
	}
	if rec, ok := current.Find(identifier); ok {
		s.log.Debug("Identifier already in topic", "workspace_id", workspaceID, "topic", topic, "serial", rec.Serial)
		return IngestResult{Record: rec}, nil
	}

	work, err := s.Metadata.Lookup(ctx, identifier)
	if err != nil {
		return IngestResult{}, err
	}
	if work == nil {
		return IngestResult{}, fmt.Errorf("%w: %s", errs.ErrUnresolvedDocument, identifier)
	}
	rec := recordFromWork(work)
	if summarize != nil {
		if rec.Summary, err = summarize(ctx); err != nil {
			return IngestResult{}, err
		}
	}
	if clipRecord(&rec) {
		s.log.Warn("Generated text clipped to cell limit", "identifier", identifier, "limit", topics.MaxCellChars)
	}

	var result IngestResult
	err = s.withTopic(ctx, p, workspaceID, topic, func(d *topics.Dataset) (bool, error) {
		result.Record, result.Added = d.Upsert(rec)
		return result.Added, nil
	})
	if err != nil {
		return IngestResult{}, err
	}
	if result.Added {
		s.log.Info("Record added", "workspace_id", workspaceID, "topic", topic, "serial", result.Record.Serial)
	}
	return result, nil
}

// UpdateRecord merges patch into the record with serial.
func (s *Service) UpdateRecord(ctx context.Context, workspaceID, topic string, serial int, patch topics.Patch) (topics.Record, error) {
	if patch.Empty() {
		return topics.Record{}, fmt.Errorf("%w: empty patch", errs.ErrValidation)
	}
	p, err := s.providerForTopic(ctx, workspaceID, topic)
	if err != nil {
		return topics.Record{}, err
	}

	var rec topics.Record
	err = s.withTopic(ctx, p, workspaceID, topic, func(d *topics.Dataset) (bool, error) {
		var uerr error
		rec, uerr = d.Update(serial, patch)
		return uerr == nil, uerr
	})
	return rec, err
}

// DeleteRecord removes the record with serial and renumbers the rest.
func (s *Service) DeleteRecord(ctx context.Context, workspaceID, topic string, serial int) error {
	p, err := s.providerForTopic(ctx, workspaceID, topic)
	if err != nil {
		return err
	}
	return s.withTopic(ctx, p, workspaceID, topic, func(d *topics.Dataset) (bool, error) {
		if err := d.Delete(serial); err != nil {
			return false, err
		}
		return true, nil
	})
}

// UploadDocuments archives files in the workspace as PDFs.
func (s *Service) UploadDocuments(ctx context.Context, workspaceID string, docs []Document) ([]storage.File, error) {
	if len(docs) == 0 {
		return nil, fmt.Errorf("%w: no files", errs.ErrValidation)
	}
	p, err := s.provider(ctx, workspaceID)
	if err != nil {
		return nil, err
	}

	out := make([]storage.File, 0, len(docs))
	for _, doc := range docs {
		name := strings.TrimSpace(doc.Name)
		if name == "" || strings.ContainsAny(name, "/\\") {
			return out, fmt.Errorf("%w: invalid file name %q", errs.ErrValidation, doc.Name)
		}
		id, err := p.CreateFile(ctx, workspaceID, name, doc.Data, storage.MimePDF)
		if err != nil {
			return out, err
		}
		out = append(out, storage.File{ID: id, Name: name})
	}
	s.log.Info("Documents archived", "workspace_id", workspaceID, "count", len(out))
	return out, nil
}

// provider connects to storage as the owner of workspaceID, refreshing the
// owner's credentials if needed.
func (s *Service) provider(ctx context.Context, workspaceID string) (storage.Provider, error) {
	if strings.TrimSpace(workspaceID) == "" {
		return nil, fmt.Errorf("%w: workspace is required", errs.ErrValidation)
	}
	identity, err := s.Workspaces.ResolveIdentity(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	pair, err := s.Creds.Fetch(ctx, identity)
	if err != nil {
		return nil, err
	}
	return s.Connector.Connect(ctx, pair.AccessSecret)
}

func (s *Service) providerForTopic(ctx context.Context, workspaceID, topic string) (storage.Provider, error) {
	if err := topics.ValidateTopic(topic); err != nil {
		return nil, err
	}
	return s.provider(ctx, workspaceID)
}

// withTopic holds the topic lease across load, mutate and save. mutate
// reports whether the dataset changed and must be saved.
func (s *Service) withTopic(ctx context.Context, p storage.Provider, workspaceID, topic string, mutate func(*topics.Dataset) (bool, error)) error {
	release, err := s.Locker.Acquire(ctx, lease.TopicKey(workspaceID, topic))
	if err != nil {
		return err
	}
	defer release()

	d, err := s.Topics.Load(ctx, p, workspaceID, topic)
	if err != nil {
		return err
	}
	changed, err := mutate(d)
	if err != nil || !changed {
		return err
	}
	return s.Topics.Save(ctx, p, workspaceID, topic, d)
}

func recordFromWork(w *metadata.Work) topics.Record {
	return topics.Record{
		Name:        w.Title,
		Year:        w.Year,
		Publication: w.Publication,
		PageNo:      w.Pages,
		Abstract:    w.Abstract,
		Identifier:  w.DOI,
		Author:      w.Authors,
	}
}

// clipRecord shortens resolver and summarizer text that a workbook cell
// cannot hold. Clipped values end in "…". It reports whether anything changed.
func clipRecord(rec *topics.Record) bool {
	clipped := false
	for _, field := range []*string{&rec.Name, &rec.Publication, &rec.Summary, &rec.Abstract, &rec.Author} {
		if utf8.RuneCountInString(*field) > topics.MaxCellChars {
			*field = string([]rune(*field)[:topics.MaxCellChars-1]) + "…"
			clipped = true
		}
	}
	return clipped
}
