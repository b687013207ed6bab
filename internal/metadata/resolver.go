package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/fuomag9/paperdrive/internal/errs"
)

// Unknown fills fields the citation data does not carry.
const Unknown = "Unknown"

const cslMediaType = "application/vnd.citationstyles.csl+json"

// Work is the bibliographic data of one document.
type Work struct {
	Title       string
	Year        string
	Publication string
	Pages       string
	Abstract    string
	DOI         string
	Authors     string
}

// Resolver looks DOIs up through content negotiation on a DOI resolver.
type Resolver struct {
	baseURL    string
	httpClient *http.Client
}

// NewResolver creates a resolver against baseURL (e.g. https://doi.org).
func NewResolver(baseURL string, httpClient *http.Client) *Resolver {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Resolver{baseURL: strings.TrimRight(baseURL, "/"), httpClient: httpClient}
}

// Lookup returns citation data for doi, or nil when the resolver does not
// know it.
func (r *Resolver) Lookup(ctx context.Context, doi string) (*Work, error) {
	doi = strings.TrimSpace(doi)
	if doi == "" || doi == Unknown {
		return nil, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+"/"+escapeDOI(doi), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: doi lookup: %v", errs.ErrValidation, err)
	}
	req.Header.Set("Accept", cslMediaType)

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: doi lookup: %w", errs.ErrRemote, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, nil
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("%w: doi lookup: resolver status %d", errs.ErrRemote, resp.StatusCode)
	}

	var item cslItem
	if err := json.NewDecoder(io.LimitReader(resp.Body, 4<<20)).Decode(&item); err != nil {
		return nil, fmt.Errorf("%w: doi lookup: decode: %v", errs.ErrRemote, err)
	}
	work := item.work()
	if work.DOI == Unknown {
		work.DOI = doi
	}
	return &work, nil
}

// escapeDOI keeps the "/" separators of a DOI while escaping each segment.
func escapeDOI(doi string) string {
	parts := strings.Split(doi, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}

// cslItem is the subset of CSL-JSON the records need.
type cslItem struct {
	Title          flexString `json:"title"`
	ContainerTitle flexString `json:"container-title"`
	Page           flexString `json:"page"`
	Abstract       flexString `json:"abstract"`
	DOI            flexString `json:"DOI"`
	Author         []struct {
		Given   string `json:"given"`
		Family  string `json:"family"`
		Literal string `json:"literal"`
	} `json:"author"`
	Issued    cslDate `json:"issued"`
	Published cslDate `json:"published"`
}

type cslDate struct {
	DateParts [][]any `json:"date-parts"`
}

func (d cslDate) year() string {
	if len(d.DateParts) == 0 || len(d.DateParts[0]) == 0 {
		return ""
	}
	switch y := d.DateParts[0][0].(type) {
	case float64:
		return strconv.Itoa(int(y))
	case string:
		return y
	}
	return ""
}

var markupTag = regexp.MustCompile(`(?s)<[^>]*>`)

func (c cslItem) work() Work {
	year := c.Issued.year()
	if year == "" {
		year = c.Published.year()
	}

	authors := make([]string, 0, len(c.Author))
	for _, a := range c.Author {
		switch {
		case a.Family != "" && a.Given != "":
			authors = append(authors, a.Family+", "+a.Given)
		case a.Family != "":
			authors = append(authors, a.Family)
		case a.Literal != "":
			authors = append(authors, a.Literal)
		}
	}

	abstract := collapseWhitespace(markupTag.ReplaceAllString(string(c.Abstract), " "))

	return Work{
		Title:       orUnknown(string(c.Title)),
		Year:        orUnknown(year),
		Publication: orUnknown(string(c.ContainerTitle)),
		Pages:       orUnknown(string(c.Page)),
		Abstract:    orUnknown(abstract),
		DOI:         orUnknown(string(c.DOI)),
		Authors:     orUnknown(strings.Join(authors, " and ")),
	}
}

func orUnknown(s string) string {
	if s = strings.TrimSpace(s); s == "" {
		return Unknown
	}
	return s
}

// flexString accepts a JSON string or an array of strings (first element).
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*f = flexString(s)
		return nil
	}
	var list []string
	if err := json.Unmarshal(b, &list); err != nil {
		return nil
	}
	if len(list) > 0 {
		*f = flexString(list[0])
	}
	return nil
}

// ExtractText returns the plain text of a PDF document.
func (r *Resolver) ExtractText(data []byte) (string, error) { return ExtractText(data) }

// FindIdentifier returns the first DOI in text, or "Unknown".
func (r *Resolver) FindIdentifier(text string) string { return FindIdentifier(text) }
