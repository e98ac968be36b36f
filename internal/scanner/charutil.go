package scanner

// Character classes used by token scanning.  ASCII only: bytes of multi-byte
// UTF-8 sequences never match any of these.

func IsAlpha(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z' || b == '_'
}

func IsDigit(b byte) bool {
	return b >= '0' && b <= '9'
}

func IsAlnum(b byte) bool {
	return IsAlpha(b) || IsDigit(b)
}

func IsCtrl(b byte) bool {
	return b < 32
}
