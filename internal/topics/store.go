package topics

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/fuomag9/paperdrive/internal/errs"
	"github.com/fuomag9/paperdrive/internal/logger"
	"github.com/fuomag9/paperdrive/internal/storage"
)

const (
	fileExt        = ".xlsx"
	maxTopicLength = 200
)

// FileName is the remote file that holds topic.
func FileName(topic string) string { return topic + fileExt }

// ValidateTopic rejects names that cannot be stored as a single remote file.
func ValidateTopic(topic string) error {
	if strings.TrimSpace(topic) == "" {
		return fmt.Errorf("%w: topic is required", errs.ErrValidation)
	}
	if utf8.RuneCountInString(topic) > maxTopicLength {
		return fmt.Errorf("%w: topic longer than %d characters", errs.ErrValidation, maxTopicLength)
	}
	for _, r := range topic {
		if r == '/' || r == '\\' || unicode.IsControl(r) {
			return fmt.Errorf("%w: topic contains %q", errs.ErrValidation, r)
		}
	}
	return nil
}

// Store reads and writes topic datasets in a workspace. Every Save rewrites
// the whole file; it does not serialize concurrent writers.
type Store struct {
	log *logger.Logger
}

// NewStore creates a topic store
func NewStore(log *logger.Logger) *Store {
	return &Store{log: log.With("component", "topics")}
}

// Load returns the dataset for topic. A topic without a file is empty.
func (s *Store) Load(ctx context.Context, p storage.Provider, workspaceID, topic string) (*Dataset, error) {
	if err := ValidateTopic(topic); err != nil {
		return nil, err
	}
	file, ok, err := s.find(ctx, p, workspaceID, topic)
	if err != nil {
		return nil, err
	}
	if !ok {
		return NewDataset(nil), nil
	}

	data, err := p.DownloadFile(ctx, file.ID)
	if err != nil {
		return nil, err
	}
	records, err := Decode(data)
	if err != nil {
		s.log.Warn("Topic file could not be parsed", "workspace_id", workspaceID, "topic", topic, "error", err)
		return nil, err
	}
	return NewDataset(records), nil
}

// Save overwrites the topic file with d, creating it on first save.
func (s *Store) Save(ctx context.Context, p storage.Provider, workspaceID, topic string, d *Dataset) error {
	if err := ValidateTopic(topic); err != nil {
		return err
	}
	data, err := Encode(d.Records())
	if err != nil {
		return err
	}

	file, ok, err := s.find(ctx, p, workspaceID, topic)
	if err != nil {
		return err
	}
	if ok {
		if _, err := p.UpdateFile(ctx, file.ID, data); err != nil {
			return err
		}
	} else if _, err := p.CreateFile(ctx, workspaceID, FileName(topic), data, storage.MimeXLSX); err != nil {
		return err
	}

	s.log.Debug("Saved topic dataset", "workspace_id", workspaceID, "topic", topic, "records", d.Len())
	return nil
}

// ListTopics returns the sorted topic names found in the workspace.
func (s *Store) ListTopics(ctx context.Context, p storage.Provider, workspaceID string) ([]string, error) {
	files, err := p.List(ctx, workspaceID, storage.Filter{MimeType: storage.MimeXLSX})
	if err != nil {
		return nil, err
	}
	seen := map[string]bool{}
	topics := make([]string, 0, len(files))
	for _, f := range files {
		name, ok := strings.CutSuffix(f.Name, fileExt)
		if !ok || name == "" || seen[name] {
			continue
		}
		seen[name] = true
		topics = append(topics, name)
	}
	sort.Strings(topics)
	return topics, nil
}

func (s *Store) find(ctx context.Context, p storage.Provider, workspaceID, topic string) (storage.File, bool, error) {
	files, err := p.List(ctx, workspaceID, storage.Filter{Name: FileName(topic)})
	if err != nil {
		return storage.File{}, false, err
	}
	if len(files) == 0 {
		return storage.File{}, false, nil
	}
	if len(files) > 1 {
		s.log.Warn("Multiple files for topic, using the first", "workspace_id", workspaceID, "topic", topic, "count", len(files))
	}
	return files[0], true, nil
}
