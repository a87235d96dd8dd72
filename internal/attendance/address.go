package attendance

import (
	"fmt"
	"strconv"
	"strings"
)

// Address converts 1-based row and column indices to a spreadsheet cell
// reference (1,1 → "A1", 5,28 → "AB5"). Column letters use bijective
// base-26: there is no zero digit, so 26 is "Z" and 27 is "AA".
func Address(row, col int) string {
	return ColumnName(col) + strconv.Itoa(row)
}

// ColumnName returns the letters for a 1-based column index.
func ColumnName(col int) string {
	var buf [14]byte
	i := len(buf)
	for col > 0 {
		i--
		buf[i] = byte('A' + (col-1)%26)
		col = (col - 1) / 26
	}
	return string(buf[i:])
}

// ParseAddress is the inverse of Address.
func ParseAddress(address string) (row, col int, err error) {
	s := strings.ToUpper(strings.TrimSpace(address))
	i := 0
	for i < len(s) && s[i] >= 'A' && s[i] <= 'Z' {
		col = col*26 + int(s[i]-'A'+1)
		i++
	}
	if i == 0 || i == len(s) || i > 13 {
		return 0, 0, fmt.Errorf("invalid cell address %q", address)
	}
	row, err = strconv.Atoi(s[i:])
	if err != nil || row < 1 || s[i] == '+' {
		return 0, 0, fmt.Errorf("invalid cell address %q", address)
	}
	return row, col, nil
}
