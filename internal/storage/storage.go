// Package storage is the contract with the remote storage provider that holds
// user workspaces, topic datasets and archived documents.
package storage

import "context"

// File is a remote object reference.
type File struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Filter narrows a List call. Empty fields match everything.
type Filter struct {
	Name     string
	MimeType string
}

// Provider is the set of remote calls the core needs. Every method blocks on
// network I/O; failures wrap errs.ErrRemote.
type Provider interface {
	List(ctx context.Context, parentID string, filter Filter) ([]File, error)
	CreateContainer(ctx context.Context, name string) (string, error)
	CreateFile(ctx context.Context, parentID, name string, data []byte, mimeType string) (string, error)
	UpdateFile(ctx context.Context, id string, data []byte) (string, error)
	DownloadFile(ctx context.Context, id string) ([]byte, error)
}

// Connector opens a Provider acting on behalf of the holder of accessSecret.
type Connector interface {
	Connect(ctx context.Context, accessSecret string) (Provider, error)
}

const (
	MimeFolder = "application/vnd.google-apps.folder"
	MimeXLSX   = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	MimePDF    = "application/pdf"
)
