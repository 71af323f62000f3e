// Package roster reads and writes the CSV files operators hand the tool:
// target lists, new-account lists and the profiles ledger.
package roster

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/polzovatel/outlook-sweeper/internal/accounts"
)

const (
	ColEmail     = "Email"
	ColPass      = "Pass"
	ColProfileID = "Profile_id"
)

var ErrMissingColumn = errors.New("missing column")

type table struct {
	cols map[string]int
	rows [][]string
}

func parse(r io.Reader, required ...string) (*table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: empty file", ErrMissingColumn)
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	t := &table{cols: make(map[string]int, len(header))}
	for i, name := range header {
		name = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))
		if _, dup := t.cols[name]; !dup {
			t.cols[name] = i
		}
	}
	for _, col := range required {
		if _, ok := t.cols[strings.ToLower(col)]; !ok {
			return nil, fmt.Errorf("%w %q", ErrMissingColumn, col)
		}
	}
	t.rows, err = cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read rows: %w", err)
	}
	return t, nil
}

func (t *table) get(row []string, col string) string {
	i, ok := t.cols[strings.ToLower(col)]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func readFile[T any](path string, parseFn func(io.Reader) (T, error)) (T, error) {
	var zero T
	f, err := os.Open(path)
	if err != nil {
		return zero, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	out, err := parseFn(f)
	if err != nil {
		return zero, fmt.Errorf("%s: %w", path, err)
	}
	return out, nil
}

// ParseTargets returns the Email column, blanks dropped.
func ParseTargets(r io.Reader) ([]string, error) {
	t, err := parse(r, ColEmail)
	if err != nil {
		return nil, err
	}
	emails := make([]string, 0, len(t.rows))
	for _, row := range t.rows {
		if e := t.get(row, ColEmail); e != "" {
			emails = append(emails, e)
		}
	}
	return emails, nil
}

func ReadTargets(path string) ([]string, error) {
	return readFile(path, ParseTargets)
}

// ParseNewAccounts reads Email,Pass rows awaiting a profile.
func ParseNewAccounts(r io.Reader) ([]accounts.Credentials, error) {
	t, err := parse(r, ColEmail, ColPass)
	if err != nil {
		return nil, err
	}
	out := make([]accounts.Credentials, 0, len(t.rows))
	for _, row := range t.rows {
		email := t.get(row, ColEmail)
		if email == "" {
			continue
		}
		out = append(out, accounts.Credentials{Email: email, Password: t.get(row, ColPass)})
	}
	return out, nil
}

func ReadNewAccounts(path string) ([]accounts.Credentials, error) {
	return readFile(path, ParseNewAccounts)
}

// ParseProfiles reads the ledger: Email,Pass,Profile_id.
func ParseProfiles(r io.Reader) ([]accounts.Account, error) {
	t, err := parse(r, ColEmail, ColPass, ColProfileID)
	if err != nil {
		return nil, err
	}
	out := make([]accounts.Account, 0, len(t.rows))
	for _, row := range t.rows {
		email := t.get(row, ColEmail)
		if email == "" {
			continue
		}
		out = append(out, accounts.Account{
			Email:     email,
			Password:  t.get(row, ColPass),
			ProfileID: t.get(row, ColProfileID),
		})
	}
	return out, nil
}

func ReadProfiles(path string) ([]accounts.Account, error) {
	return readFile(path, ParseProfiles)
}
