package topics

import (
	"fmt"
	"strings"

	"github.com/fuomag9/paperdrive/internal/errs"
)

// Dataset is the ordered record list of one topic. It is not safe for
// concurrent use; callers hold the topic lease around load, mutate and save.
type Dataset struct {
	records []Record
}

// NewDataset wraps records, renumbering them densely in their given order.
func NewDataset(records []Record) *Dataset {
	d := &Dataset{records: append([]Record(nil), records...)}
	d.renumber()
	return d
}

// Len returns the number of records.
func (d *Dataset) Len() int { return len(d.records) }

// Records returns a copy of the records in order.
func (d *Dataset) Records() []Record {
	return append([]Record(nil), d.records...)
}

// Find returns the record whose identifier matches.
func (d *Dataset) Find(identifier string) (Record, bool) {
	if i := d.indexOfIdentifier(identifier); i >= 0 {
		return d.records[i], true
	}
	return Record{}, false
}

// Upsert appends rec with the next serial unless a record with the same
// identifier already exists, in which case that record is returned and
// added is false.
func (d *Dataset) Upsert(rec Record) (Record, bool) {
	if i := d.indexOfIdentifier(rec.Identifier); i >= 0 {
		return d.records[i], false
	}
	rec.Serial = len(d.records) + 1
	d.records = append(d.records, rec)
	return rec, true
}

// Update merges patch into the record with serial.
func (d *Dataset) Update(serial int, patch Patch) (Record, error) {
	i := d.indexOfSerial(serial)
	if i < 0 {
		return Record{}, fmt.Errorf("%w: serial %d", errs.ErrRecordNotFound, serial)
	}
	if patch.Identifier != nil {
		if j := d.indexOfIdentifier(*patch.Identifier); j >= 0 && j != i {
			return Record{}, fmt.Errorf("%w: identifier %q already belongs to record %d",
				errs.ErrValidation, *patch.Identifier, d.records[j].Serial)
		}
	}

	rec := d.records[i]
	patch.apply(&rec)
	d.records[i] = rec
	return rec, nil
}

// Delete removes the record with serial and renumbers the rest.
func (d *Dataset) Delete(serial int) error {
	i := d.indexOfSerial(serial)
	if i < 0 {
		return fmt.Errorf("%w: serial %d", errs.ErrRecordNotFound, serial)
	}
	d.records = append(d.records[:i], d.records[i+1:]...)
	d.renumber()
	return nil
}

func (d *Dataset) renumber() {
	for i := range d.records {
		d.records[i].Serial = i + 1
	}
}

func (d *Dataset) indexOfSerial(serial int) int {
	for i, r := range d.records {
		if r.Serial == serial {
			return i
		}
	}
	return -1
}

// Identifiers compare case-insensitively; DOIs are case-insensitive.
func (d *Dataset) indexOfIdentifier(identifier string) int {
	identifier = strings.TrimSpace(identifier)
	for i, r := range d.records {
		if strings.EqualFold(strings.TrimSpace(r.Identifier), identifier) {
			return i
		}
	}
	return -1
}
