// Package topics keeps one tabular dataset of document records per topic and
// persists it as a spreadsheet inside the user's workspace.
package topics

// Column headers in file order.
const (
	ColSerial      = "SL_NO"
	ColName        = "NAME"
	ColYear        = "YEAR"
	ColPublication = "PUBLICATION"
	ColPageNo      = "PAGE_NO"
	ColSummary     = "SUMMARY"
	ColAbstract    = "ABSTRACT"
	ColIdentifier  = "DOI"
	ColAuthor      = "AUTHOR"
	ColRemarks     = "REMARKS"
)

// Columns is the fixed column order of a topic file.
var Columns = []string{
	ColSerial, ColName, ColYear, ColPublication, ColPageNo,
	ColSummary, ColAbstract, ColIdentifier, ColAuthor, ColRemarks,
}

// Record is one document's normalized metadata. Serial is the 1-based
// position of the record within its dataset.
type Record struct {
	Serial      int    `json:"serial"`
	Name        string `json:"name"`
	Year        string `json:"year"`
	Publication string `json:"publication"`
	PageNo      string `json:"page_no"`
	Summary     string `json:"summary"`
	Abstract    string `json:"abstract"`
	Identifier  string `json:"identifier"`
	Author      string `json:"author"`
	Remarks     string `json:"remarks"`
}

// Patch holds the fields to change on a record. Nil fields are left alone.
type Patch struct {
	Name        *string `json:"name,omitempty"`
	Year        *string `json:"year,omitempty"`
	Publication *string `json:"publication,omitempty"`
	PageNo      *string `json:"page_no,omitempty"`
	Summary     *string `json:"summary,omitempty"`
	Abstract    *string `json:"abstract,omitempty"`
	Identifier  *string `json:"identifier,omitempty"`
	Author      *string `json:"author,omitempty"`
	Remarks     *string `json:"remarks,omitempty"`
}

// Empty reports whether the patch changes nothing.
func (p Patch) Empty() bool {
	return p.Name == nil && p.Year == nil && p.Publication == nil && p.PageNo == nil &&
		p.Summary == nil && p.Abstract == nil && p.Identifier == nil && p.Author == nil &&
		p.Remarks == nil
}

func (p Patch) apply(r *Record) {
	set := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
		}
	}
	set(&r.Name, p.Name)
	set(&r.Year, p.Year)
	set(&r.Publication, p.Publication)
	set(&r.PageNo, p.PageNo)
	set(&r.Summary, p.Summary)
	set(&r.Abstract, p.Abstract)
	set(&r.Identifier, p.Identifier)
	set(&r.Author, p.Author)
	set(&r.Remarks, p.Remarks)
}

func (r Record) row() []any {
	return []any{
		r.Serial, r.Name, r.Year, r.Publication, r.PageNo,
		r.Summary, r.Abstract, r.Identifier, r.Author, r.Remarks,
	}
}
