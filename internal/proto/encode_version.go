package proto

import "fmt"

// This file encodes a uint32 as json-ignorable whitespace. JSON allows 4
// whitespace characters that decoders skip, so each one carries 2 bits.

// encodeVersion encodes a given uint32 as a json-ignorable sequence of whitespace
func encodeVersion(version uint32) []byte {
	result := []byte{}
	for version > 0 {
		nibble := version % 16
		version = version >> 4

		lo := byte(nibble & 0x3)
		hi := byte(nibble >> 2)
		result = append(result, encodeCrumb(lo), encodeCrumb(hi))
	}
	return result
}

// decodeVersion decodes a version from a json-ignorable sequence of whitespace
func decodeVersion(data []byte) (uint32, error) {
	var version uint32
	for i := len(data) - 1; i >= 0; i-- {
		crumb, err := decodeCrumb(data[i])
		if err != nil {
			return 0, err
		}
		version = version << 2
		version += uint32(crumb)
	}
	return version, nil
}

// encodeCrumb maps 2 bits onto one whitespace character.
func encodeCrumb(crumb byte) byte {
	switch crumb {
	case 0:
		return ' '
	case 1:
		return '\t'
	case 2:
		return '\r'
	case 3:
		return '\n'
	}
	panic(fmt.Sprintf("crumb out of range: %x", crumb))
}

func decodeCrumb(char byte) (byte, error) {
	switch char {
	case ' ':
		return 0, nil
	case '\t':
		return 1, nil
	case '\r':
		return 2, nil
	case '\n':
		return 3, nil
	}
	return 0, fmt.Errorf("char %x is not a whitespace crumb", char)
}

func isJSONIgnorableWhitespace(char byte) bool {
	return char == ' ' || char == '\t' || char == '\r' || char == '\n'
}
