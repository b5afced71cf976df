// Package inspector extracts the header row of a CSV file so the user can pick
// which column holds the email addresses.
package inspector

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/email-verifier/console/internal/models"
)

// ErrReadFailure is returned when the file content cannot be read.
var ErrReadFailure = errors.New("header read failure")

// Mode selects how the header line is split into columns.
type Mode string

const (
	// ModeNaive splits the first line on every comma. Quotes are not interpreted.
	ModeNaive Mode = "naive"
	// ModeQuoted reads the first record with a delimited-text reader that
	// understands quoted fields.
	ModeQuoted Mode = "quoted"
)

const utf8BOM = "\xef\xbb\xbf"

// ParseMode converts a config value into a Mode. An empty value means ModeNaive.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeNaive:
		return ModeNaive, nil
	case ModeQuoted:
		return ModeQuoted, nil
	default:
		return "", fmt.Errorf("unknown header mode: %q", s)
	}
}

// Inspector reads header rows.
type Inspector struct {
	mode Mode
}

// New creates an Inspector. Unknown modes fall back to ModeNaive.
func New(mode Mode) *Inspector {
	if mode != ModeQuoted {
		mode = ModeNaive
	}
	return &Inspector{mode: mode}
}

// Inspect reads the first line of the file and returns its columns in file
// order with the first column selected. An empty file yields an empty
// ColumnSet. Read errors wrap ErrReadFailure and come with an empty ColumnSet.
func (i *Inspector) Inspect(ctx context.Context, file *models.SelectedFile) (models.ColumnSet, error) {
	empty := models.NewColumnSet(nil)

	if err := ctx.Err(); err != nil {
		return empty, err
	}

	rc, err := file.Open()
	if err != nil {
		return empty, fmt.Errorf("%w: %v", ErrReadFailure, err)
	}
	defer rc.Close()

	br := bufio.NewReader(rc)
	if err := skipBOM(br); err != nil {
		return empty, fmt.Errorf("%w: %v", ErrReadFailure, err)
	}

	var columns []string
	switch i.mode {
	case ModeQuoted:
		columns, err = quotedHeader(br)
	default:
		columns, err = naiveHeader(br)
	}
	if err != nil {
		return empty, fmt.Errorf("%w: %v", ErrReadFailure, err)
	}

	return models.NewColumnSet(columns), nil
}

// SplitHeader splits a single header line the way ModeNaive does.
func SplitHeader(line string) []string {
	return strings.Split(line, ",")
}

func naiveHeader(br *bufio.Reader) ([]string, error) {
	line, err := br.ReadString('\n')
	if err != nil && err != io.EOF {
		return nil, err
	}
	if line == "" && err == io.EOF {
		return nil, nil
	}

	line = strings.TrimSuffix(line, "\n")
	line = strings.TrimSuffix(line, "\r")
	return SplitHeader(line), nil
}

func quotedHeader(br *bufio.Reader) ([]string, error) {
	// encoding/csv skips blank lines, but a blank first line is still the
	// header: one empty column, same as ModeNaive.
	head, err := br.Peek(2)
	if err != nil && err != io.EOF {
		return nil, err
	}
	if len(head) > 0 && (head[0] == '\n' || (head[0] == '\r' && (len(head) == 1 || head[1] == '\n'))) {
		return []string{""}, nil
	}

	r := csv.NewReader(br)
	r.LazyQuotes = true
	r.FieldsPerRecord = -1

	record, err := r.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return record, nil
}

func skipBOM(br *bufio.Reader) error {
	head, err := br.Peek(len(utf8BOM))
	if err != nil && err != io.EOF && err != bufio.ErrBufferFull {
		return err
	}
	if string(head) == utf8BOM {
		_, err = br.Discard(len(utf8BOM))
		return err
	}
	return nil
}
