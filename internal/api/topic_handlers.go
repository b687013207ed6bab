package api

import (
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/fuomag9/paperdrive/internal/errs"
	"github.com/fuomag9/paperdrive/internal/library"
	"github.com/fuomag9/paperdrive/internal/logger"
	"github.com/fuomag9/paperdrive/internal/topics"
)

const (
	maxUploadBytes  = 64 << 20
	maxJSONBytes    = 1 << 20
	maxIdentifiers  = 100
	multipartMemory = 32 << 20
)

// IngestOutcome is the per-item result of a batch ingest.
type IngestOutcome struct {
	Source string         `json:"source"`
	Record *topics.Record `json:"record,omitempty"`
	Added  bool           `json:"added"`
	Error  string         `json:"error,omitempty"`
}

// HandleListTopics returns the topic names of a workspace
func HandleListTopics(lib Library, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		names, err := lib.ListTopics(r.Context(), r.URL.Query().Get("user_folder"))
		if err != nil {
			respondError(w, log, err)
			return
		}
		respondJSON(w, http.StatusOK, map[string][]string{"topics": names})
	}
}

// HandleListRecords returns every record of a topic
func HandleListRecords(lib Library, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		records, err := lib.ListRecords(r.Context(), q.Get("user_folder"), q.Get("topic"))
		if err != nil {
			respondError(w, log, err)
			return
		}
		if records == nil {
			records = []topics.Record{}
		}
		respondJSON(w, http.StatusOK, records)
	}
}

// HandleIngestDocuments ingests every PDF in the multipart "files" field
func HandleIngestDocuments(lib Library, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		workspaceID, topic := q.Get("user_folder"), q.Get("topic")

		files, err := uploadedFiles(w, r)
		if err != nil {
			respondError(w, log, err)
			return
		}

		outcomes := make([]IngestOutcome, 0, len(files))
		for _, fh := range files {
			data, err := readPart(fh)
			if err != nil {
				respondError(w, log, err)
				return
			}
			res, err := lib.IngestDocument(r.Context(), workspaceID, topic, fh.Filename, data)
			outcome, ok := toOutcome(fh.Filename, res, err)
			if !ok {
				respondError(w, log, err)
				return
			}
			outcomes = append(outcomes, outcome)
		}
		respondJSON(w, http.StatusOK, outcomes)
	}
}

// HandleUploadDocuments archives the multipart "files" in the workspace
// without touching any topic
func HandleUploadDocuments(lib Library, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		files, err := uploadedFiles(w, r)
		if err != nil {
			respondError(w, log, err)
			return
		}

		docs := make([]library.Document, 0, len(files))
		for _, fh := range files {
			data, err := readPart(fh)
			if err != nil {
				respondError(w, log, err)
				return
			}
			docs = append(docs, library.Document{Name: fh.Filename, Data: data})
		}

		stored, err := lib.UploadDocuments(r.Context(), r.URL.Query().Get("user_folder"), docs)
		if err != nil {
			respondError(w, log, err)
			return
		}
		respondJSON(w, http.StatusCreated, map[string]any{"files": stored})
	}
}

// HandleIngestIdentifiers ingests a JSON array of DOIs
func HandleIngestIdentifiers(lib Library, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		workspaceID, topic := q.Get("user_folder"), q.Get("topic")

		var identifiers []string
		if err := decodeJSON(w, r, &identifiers); err != nil {
			respondError(w, log, err)
			return
		}
		if len(identifiers) == 0 || len(identifiers) > maxIdentifiers {
			respondError(w, log, fmt.Errorf("%w: between 1 and %d identifiers required", errs.ErrValidation, maxIdentifiers))
			return
		}

		outcomes := make([]IngestOutcome, 0, len(identifiers))
		for _, id := range identifiers {
			res, err := lib.IngestByIdentifier(r.Context(), workspaceID, topic, id)
			outcome, ok := toOutcome(id, res, err)
			if !ok {
				respondError(w, log, err)
				return
			}
			outcomes = append(outcomes, outcome)
		}
		respondJSON(w, http.StatusOK, outcomes)
	}
}

// HandleUpdateRecord applies a partial update to one record
func HandleUpdateRecord(lib Library, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		serial, err := serialParam(r)
		if err != nil {
			respondError(w, log, err)
			return
		}

		var patch topics.Patch
		if err := decodeJSON(w, r, &patch); err != nil {
			respondError(w, log, err)
			return
		}

		rec, err := lib.UpdateRecord(r.Context(), q.Get("user_folder"), q.Get("topic"), serial, patch)
		if err != nil {
			respondError(w, log, err)
			return
		}
		respondJSON(w, http.StatusOK, rec)
	}
}

// HandleDeleteRecord removes one record and renumbers the rest
func HandleDeleteRecord(lib Library, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		serial, err := serialParam(r)
		if err != nil {
			respondError(w, log, err)
			return
		}
		if err := lib.DeleteRecord(r.Context(), q.Get("user_folder"), q.Get("topic"), serial); err != nil {
			respondError(w, log, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func toOutcome(source string, res library.IngestResult, err error) (IngestOutcome, bool) {
	if err != nil {
		if !recoverable(err) {
			return IngestOutcome{}, false
		}
		return IngestOutcome{Source: source, Error: err.Error()}, true
	}
	rec := res.Record
	return IngestOutcome{Source: source, Record: &rec, Added: res.Added}, true
}

func serialParam(r *http.Request) (int, error) {
	serial, err := strconv.Atoi(chi.URLParam(r, "serial"))
	if err != nil || serial < 1 {
		return 0, fmt.Errorf("%w: serial must be a positive integer", errs.ErrValidation)
	}
	return serial, nil
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: invalid request body: %v", errs.ErrValidation, err)
	}
	return nil
}

func uploadedFiles(w http.ResponseWriter, r *http.Request) ([]*multipart.FileHeader, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		return nil, fmt.Errorf("%w: invalid multipart upload: %v", errs.ErrValidation, err)
	}
	files := r.MultipartForm.File["files"]
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: no files uploaded", errs.ErrValidation)
	}
	return files, nil
}

func readPart(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", errs.ErrValidation, fh.Filename, err)
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", errs.ErrValidation, fh.Filename, err)
	}
	return data, nil
}
