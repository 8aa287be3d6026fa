package hexconv

// Invalid marks bytes that aren't hexadecimal digits in the Halfbyte table.
const Invalid = 0xFF

// Halfbyte maps a character to the value of the hex digit it represents, or Invalid.
var Halfbyte = func() (table [256]byte) {
	for i := range table {
		table[i] = Invalid
	}

	for i, c := range "0123456789abcdef" {
		table[c] = byte(i)
	}

	for i, c := range "ABCDEF" {
		table[c] = byte(10 + i)
	}

	return table
}()

const digits = "0123456789abcdef"

// Append appends the lowercase hexadecimal representation of n, with no leading zeroes.
func Append(buff []byte, n uint64) []byte {
	if n == 0 {
		return append(buff, '0')
	}

	var scratch [16]byte
	offset := len(scratch)

	for ; n > 0; n >>= 4 {
		offset--
		scratch[offset] = digits[n&0xF]
	}

	return append(buff, scratch[offset:]...)
}
