package validation

import "github.com/ocflkit/ocflkit/digest"

func sumDigest(alg string, data []byte) string {
	d := digest.Get(alg).Digester()
	d.Write(data)
	return d.String()
}

// parseSidecarDigest extracts the digest from a "<digest>  <filename>\n"
// sidecar body (spec.md §6, E060's "digest, two spaces, filename" form).
func parseSidecarDigest(s string) string {
	for i := 0; i+1 < len(s); i++ {
		if s[i] == ' ' && s[i+1] == ' ' {
			return s[:i]
		}
	}
	return ""
}
