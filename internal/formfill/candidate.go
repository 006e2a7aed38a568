// File: internal/formfill/candidate.go
package formfill

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"
)

// Candidate holds one applicant's data, keyed by field purpose. Columns the
// CSV does not carry are simply absent.
type Candidate struct {
	fields map[FieldPurpose]string
}

// Value returns the candidate's value for a purpose and whether one exists.
func (c *Candidate) Value(p FieldPurpose) (string, bool) {
	v, ok := c.fields[p]
	return v, ok
}

// Fields returns how many values the candidate carries.
func (c *Candidate) Fields() int { return len(c.fields) }

// LoadCandidate reads the first data row of a header-keyed CSV file.
func LoadCandidate(path string) (*Candidate, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open candidate file: %w", err)
	}
	defer f.Close()
	return ReadCandidate(f)
}

// ReadCandidate parses candidate data from a CSV stream. Headers are matched
// case-insensitively with underscores and spaces interchangeable; unknown
// columns are skipped rather than rejected, so a widened sheet keeps loading.
func ReadCandidate(r io.Reader) (*Candidate, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	row, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read candidate row: %w", err)
	}
	if len(row) != len(header) {
		return nil, fmt.Errorf("candidate row has %d values for %d columns", len(row), len(header))
	}

	c := &Candidate{fields: make(map[FieldPurpose]string, len(header))}
	for i, col := range header {
		purpose, ok := columnPurpose(col)
		if !ok {
			continue
		}
		value := strings.TrimSpace(row[i])
		if value == "" {
			continue
		}
		c.fields[purpose] = value
	}
	if len(c.fields) == 0 {
		return nil, fmt.Errorf("no recognized columns in candidate file")
	}
	return c, nil
}

// columnPurpose maps a CSV header to a field purpose.
func columnPurpose(col string) (FieldPurpose, bool) {
	normalized := strings.ToLower(strings.TrimSpace(col))
	normalized = strings.ReplaceAll(normalized, " ", "_")
	switch FieldPurpose(normalized) {
	case PurposeAppointmentLocation, PurposeCountry, PurposeCity,
		PurposeCountryTravelingTo, PurposeFirstName, PurposeLastName,
		PurposeDateOfBirth, PurposeNationality, PurposeGender,
		PurposeMaritalStatus, PurposePassportNumber, PurposeConfirmPassportNumber,
		PurposePassportIssueDate, PurposePassportIssuePlace,
		PurposePassportExpiryDate, PurposeVisaType, PurposeEmail,
		PurposePhone, PurposeNationalID, PurposePosition:
		return FieldPurpose(normalized), true
	}
	return PurposeUnknown, false
}
