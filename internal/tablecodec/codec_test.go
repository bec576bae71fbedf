package tablecodec_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rpggio/dsheet/internal/tablecodec"
	"github.com/stretchr/testify/require"
)

func encode(t *testing.T, rows ...tablecodec.Row) string {
	t.Helper()
	var buf bytes.Buffer
	enc := tablecodec.NewEncoder(&buf)
	for _, row := range rows {
		require.NoError(t, enc.Write(row))
	}
	require.NoError(t, enc.Flush())
	return buf.String()
}

func TestEncoder_QuotesTextFields(t *testing.T) {
	out := encode(t,
		tablecodec.Row{Number: 1, Title: "Valve", Content: "open, then close", Detail: `say "done"`},
		tablecodec.Row{Number: 12, Title: "Pump", Content: "line1\nline2", Detail: "ok"},
	)
	require.Equal(t,
		"number,title,content,detail\r\n"+
			"1,\"Valve\",\"open, then close\",\"say \"\"done\"\"\"\r\n"+
			"12,\"Pump\",\"line1\nline2\",\"ok\"\r\n",
		out)
}

func TestEncoder_EmptyTableHasHeader(t *testing.T) {
	require.Equal(t, "number,title,content,detail\r\n", encode(t))
}

func TestDecode_RoundTrip(t *testing.T) {
	rows := []tablecodec.Row{
		{Number: 1, Title: "Valve", Content: "open, then close", Detail: `say "done"`},
		{Number: 3, Title: "  padded  ", Content: "line1\nline2", Detail: "日本語"},
		{Number: 10, Title: "t", Content: "c", Detail: "d"},
	}
	got, err := tablecodec.Decode(strings.NewReader(encode(t, rows...)))
	require.NoError(t, err)
	require.Len(t, got, len(rows))
	for i := range rows {
		require.Equal(t, rows[i].Number, got[i].Number)
		require.Equal(t, rows[i].Title, got[i].Title)
		require.Equal(t, rows[i].Content, got[i].Content)
		require.Equal(t, rows[i].Detail, got[i].Detail)
	}
	require.Equal(t, 2, got[0].Line)
}

func TestDecode_AcceptsBOMAndUnquoted(t *testing.T) {
	in := "\xEF\xBB\xBFnumber, title ,content,detail\n7,a,b,c\n\n"
	got, err := tablecodec.Decode(strings.NewReader(in))
	require.NoError(t, err)
	require.Equal(t, []tablecodec.Row{{Number: 7, Title: "a", Content: "b", Detail: "c", Line: 2}}, got)
}

func TestDecode_Errors(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want error
	}{
		{"empty", "", tablecodec.ErrEmpty},
		{"missing column", "number,title,content\n1,a,b\n", tablecodec.ErrHeaderMismatch},
		{"reordered", "title,number,content,detail\n", tablecodec.ErrHeaderMismatch},
		{"localized", "no,title,content,detail\n", tablecodec.ErrHeaderMismatch},
		{"short row", "number,title,content,detail\n1,a,b\n", tablecodec.ErrMalformedRow},
		{"bad quote", "number,title,content,detail\n1,\"a,b,c\n", tablecodec.ErrMalformedRow},
		{"not a number", "number,title,content,detail\nx,a,b,c\n", tablecodec.ErrInvalidNumber},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tablecodec.Decode(strings.NewReader(tt.in))
			require.ErrorIs(t, err, tt.want)
		})
	}
}

func TestDecode_HeaderOnly(t *testing.T) {
	got, err := tablecodec.Decode(strings.NewReader("number,title,content,detail\r\n"))
	require.NoError(t, err)
	require.Empty(t, got)
}
