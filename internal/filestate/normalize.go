package filestate

// NormalizePath produces the cache lookup key for path under the given
// case-sensitivity policy.
//
// If caseSensitive is true, only the directory portion (everything up to
// and including the last separator) is upper-cased; the file component
// keeps its original case, so display names stay intact while directory
// lookups remain stable regardless of how a client capitalized an
// intermediate folder. If caseSensitive is false, the entire path is
// upper-cased.
//
// Only ASCII a-z are folded in either case; multi-byte characters pass
// through untouched, matching the byte-oriented case table real SMB
// clients use.
func NormalizePath(path string, caseSensitive bool) string {
	if !caseSensitive {
		return asciiUpper(path, 0, len(path))
	}

	sep := lastSeparator(path)
	if sep < 0 {
		// No directory component; the whole string is the file name and
		// is left as-is.
		return path
	}
	return asciiUpper(path, 0, sep+1) + path[sep+1:]
}

func lastSeparator(path string) int {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '\\' || path[i] == '/' {
			return i
		}
	}
	return -1
}

// asciiUpper upper-cases only the ASCII a-z bytes in path[start:end],
// leaving everything else (including multi-byte UTF-8 sequences and the
// untouched suffix) byte-for-byte identical.
func asciiUpper(path string, start, end int) string {
	b := []byte(path)
	for i := start; i < end; i++ {
		if b[i] >= 'a' && b[i] <= 'z' {
			b[i] -= 'a' - 'A'
		}
	}
	return string(b)
}
