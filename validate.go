package veriauth

// maxUsernameLength bounds usernames so record encodings and Redis keys stay
// small.
const maxUsernameLength = 64

// validUsername enforces the allowed-character policy: ASCII letters, digits,
// and underscore only, non-empty.
func validUsername(username string) bool {
	if username == "" || len(username) > maxUsernameLength {
		return false
	}
	for i := 0; i < len(username); i++ {
		c := username[i]
		switch {
		case c >= 'a' && c <= 'z':
		case c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9':
		case c == '_':
		default:
			return false
		}
	}
	return true
}
