package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"golang.org/x/oauth2"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/fuomag9/paperdrive/internal/errs"
)

// DriveConnector builds Google Drive clients from bare access secrets.
type DriveConnector struct {
	httpClient *http.Client
	opts       []option.ClientOption
}

// NewDriveConnector creates a connector. httpClient bounds every call with its
// timeout; extra options are appended (endpoint overrides in tests).
func NewDriveConnector(httpClient *http.Client, opts ...option.ClientOption) *DriveConnector {
	return &DriveConnector{httpClient: httpClient, opts: opts}
}

// Connect uses a static token source: renewal is the credential store's job,
// not the SDK's.
func (c *DriveConnector) Connect(ctx context.Context, accessSecret string) (Provider, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessSecret, TokenType: "Bearer"})
	opts := append([]option.ClientOption{option.WithHTTPClient(oauth2.NewClient(ctx, ts))}, c.opts...)

	srv, err := drive.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: create drive client: %w", errs.ErrRemote, err)
	}
	return &Drive{files: srv.Files}, nil
}

// Drive implements Provider on the Drive v3 files API.
type Drive struct {
	files *drive.FilesService
}

func (d *Drive) List(ctx context.Context, parentID string, filter Filter) ([]File, error) {
	clauses := []string{fmt.Sprintf("'%s' in parents", escapeQuery(parentID)), "trashed = false"}
	if filter.Name != "" {
		clauses = append(clauses, fmt.Sprintf("name = '%s'", escapeQuery(filter.Name)))
	}
	if filter.MimeType != "" {
		clauses = append(clauses, fmt.Sprintf("mimeType = '%s'", escapeQuery(filter.MimeType)))
	}

	var out []File
	call := d.files.List().
		Q(strings.Join(clauses, " and ")).
		Spaces("drive").
		Fields("nextPageToken, files(id, name)").
		Context(ctx)
	err := call.Pages(ctx, func(page *drive.FileList) error {
		for _, f := range page.Files {
			out = append(out, File{ID: f.Id, Name: f.Name})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: list files: %w", errs.ErrRemote, err)
	}
	return out, nil
}

func (d *Drive) CreateContainer(ctx context.Context, name string) (string, error) {
	f, err := d.files.Create(&drive.File{Name: name, MimeType: MimeFolder}).
		Fields("id").
		Context(ctx).
		Do()
	if err != nil {
		return "", fmt.Errorf("%w: create folder: %w", errs.ErrRemote, err)
	}
	return f.Id, nil
}

func (d *Drive) CreateFile(ctx context.Context, parentID, name string, data []byte, mimeType string) (string, error) {
	meta := &drive.File{Name: name, Parents: []string{parentID}}
	f, err := d.files.Create(meta).
		Media(bytes.NewReader(data), googleapi.ContentType(mimeType)).
		Fields("id").
		Context(ctx).
		Do()
	if err != nil {
		return "", fmt.Errorf("%w: create file: %w", errs.ErrRemote, err)
	}
	return f.Id, nil
}

func (d *Drive) UpdateFile(ctx context.Context, id string, data []byte) (string, error) {
	f, err := d.files.Update(id, &drive.File{}).
		Media(bytes.NewReader(data)).
		Fields("id").
		Context(ctx).
		Do()
	if err != nil {
		return "", fmt.Errorf("%w: update file: %w", errs.ErrRemote, err)
	}
	return f.Id, nil
}

func (d *Drive) DownloadFile(ctx context.Context, id string) ([]byte, error) {
	resp, err := d.files.Get(id).Context(ctx).Download()
	if err != nil {
		return nil, fmt.Errorf("%w: download file: %w", errs.ErrRemote, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read file: %w", errs.ErrRemote, err)
	}
	return data, nil
}

// escapeQuery escapes a literal for use inside single quotes in a Drive query.
func escapeQuery(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `'`, `\'`)
}
