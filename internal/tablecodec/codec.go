// Package tablecodec reads and writes the flat item table: a fixed
// number,title,content,detail header followed by one row per item.
package tablecodec

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Header is the declared column order. Files written by older releases
// carry exactly these names.
var Header = []string{"number", "title", "content", "detail"}

var (
	// ErrEmpty indicates input with no header row.
	ErrEmpty = errors.New("table is empty")
	// ErrHeaderMismatch indicates a header other than Header.
	ErrHeaderMismatch = errors.New("header mismatch")
	// ErrMalformedRow indicates a row that is not valid delimited text or has the wrong width.
	ErrMalformedRow = errors.New("malformed row")
	// ErrInvalidNumber indicates a number cell that is not a decimal integer.
	ErrInvalidNumber = errors.New("invalid number")
)

var bom = []byte{0xEF, 0xBB, 0xBF}

// Row is one decoded or to-be-encoded item. Line is the 1-based source line
// of the row when decoding and ignored when encoding.
type Row struct {
	Number  int
	Title   string
	Content string
	Detail  string
	Line    int
}

// Decode parses a whole table. The header is checked before any row is
// read, and any error rejects the table as a whole.
func Decode(r io.Reader) ([]Row, error) {
	br := bufio.NewReader(r)
	if lead, err := br.Peek(len(bom)); err == nil && bytes.Equal(lead, bom) {
		_, _ = br.Discard(len(bom))
	}

	cr := csv.NewReader(br)
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = true

	head, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, ErrEmpty
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrHeaderMismatch, err)
	}
	if err := checkHeader(head); err != nil {
		return nil, err
	}

	var rows []Row
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				return nil, fmt.Errorf("line %d: %w: %w", perr.StartLine, ErrMalformedRow, err)
			}
			return nil, fmt.Errorf("%w: %w", ErrMalformedRow, err)
		}
		line, _ := cr.FieldPos(0)
		if blank(rec) {
			continue
		}
		if len(rec) != len(Header) {
			return nil, fmt.Errorf("line %d: %w: want %d fields, got %d",
				line, ErrMalformedRow, len(Header), len(rec))
		}
		n, err := strconv.Atoi(strings.TrimSpace(rec[0]))
		if err != nil {
			return nil, fmt.Errorf("line %d: %w: %q", line, ErrInvalidNumber, rec[0])
		}
		rows = append(rows, Row{
			Number:  n,
			Title:   rec[1],
			Content: rec[2],
			Detail:  rec[3],
			Line:    line,
		})
	}
	return rows, nil
}

func checkHeader(head []string) error {
	if len(head) != len(Header) {
		return fmt.Errorf("%w: want %s, got %s",
			ErrHeaderMismatch, strings.Join(Header, ","), strings.Join(head, ","))
	}
	for i, name := range Header {
		if strings.TrimSpace(head[i]) != name {
			return fmt.Errorf("%w: column %d is %q, want %q", ErrHeaderMismatch, i+1, head[i], name)
		}
	}
	return nil
}

func blank(rec []string) bool {
	for _, f := range rec {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

// Encoder writes rows after the header. The header is written before the
// first row, or by Flush when no row was written.
type Encoder struct {
	w      *bufio.Writer
	header bool
	err    error
}

// NewEncoder returns an encoder writing to w.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: bufio.NewWriter(w)}
}

// Write encodes one row. Text fields are always quoted.
func (e *Encoder) Write(row Row) error {
	if err := e.writeHeader(); err != nil {
		return err
	}
	e.field(strconv.Itoa(row.Number), false)
	e.w.WriteByte(',')
	e.field(row.Title, true)
	e.w.WriteByte(',')
	e.field(row.Content, true)
	e.w.WriteByte(',')
	e.field(row.Detail, true)
	_, e.err = e.w.WriteString("\r\n")
	return e.err
}

// Flush writes any buffered data, including a lone header for an empty table.
func (e *Encoder) Flush() error {
	if err := e.writeHeader(); err != nil {
		return err
	}
	return e.w.Flush()
}

func (e *Encoder) writeHeader() error {
	if e.err != nil {
		return e.err
	}
	if e.header {
		return nil
	}
	e.header = true
	_, e.err = e.w.WriteString(strings.Join(Header, ",") + "\r\n")
	return e.err
}

func (e *Encoder) field(s string, quote bool) {
	if !quote {
		e.w.WriteString(s)
		return
	}
	e.w.WriteByte('"')
	e.w.WriteString(strings.ReplaceAll(s, `"`, `""`))
	e.w.WriteByte('"')
}
