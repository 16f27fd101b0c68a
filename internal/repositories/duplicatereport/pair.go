package duplicatereport

// CanonicalPair orders two memorial ids so an unordered pair always maps to
// the same (a, b) row regardless of which direction the scan compared them.
func CanonicalPair(idA, idB string) (string, string) {
	if idB < idA {
		return idB, idA
	}
	return idA, idB
}
