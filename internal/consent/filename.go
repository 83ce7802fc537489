// Package consent implements the file-system-driven consent database (§4.9,
// §4.8): the on-disk filename codec, the ConsentRecord type, and the
// directory watcher that keeps the recognition database synchronized with
// the consent capture directory.
package consent

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

const filenameTimeLayout = "20060102150405"

// EncodeFilename builds a consent capture filename in the
// YYYYMMDDhhmmss_<safe_name>.jpg form (§3). An empty name encodes as
// "unknown" per §4.8.
func EncodeFilename(name string, t time.Time) string {
	if name == "" {
		name = "unknown"
	}
	return fmt.Sprintf("%s_%s.jpg", t.Format(filenameTimeLayout), SanitizeName(name))
}

// ParseFilename decodes a consent capture filename (a base name or a full
// path) into its name and capture timestamp.
func ParseFilename(path string) (name string, capturedAt time.Time, err error) {
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	if len(base) < len(filenameTimeLayout)+2 || base[len(filenameTimeLayout)] != '_' {
		return "", time.Time{}, fmt.Errorf("consent: invalid capture filename %q", path)
	}
	ts := base[:len(filenameTimeLayout)]
	name = base[len(filenameTimeLayout)+1:]
	capturedAt, err = time.ParseInLocation(filenameTimeLayout, ts, time.Local)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("consent: invalid timestamp in %q: %w", path, err)
	}
	if name == "" {
		return "", time.Time{}, fmt.Errorf("consent: empty name in %q", path)
	}
	return name, capturedAt, nil
}

// SanitizeName normalizes a display name into the safe_name alphabet:
// lowercase alphanumerics plus '_' and '-'; spaces become underscores;
// leading/trailing underscores are trimmed.
func SanitizeName(name string) string {
	lower := strings.ToLower(name)
	var b strings.Builder
	for _, r := range lower {
		switch {
		case r == ' ':
			b.WriteRune('_')
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_', r == '-':
			b.WriteRune(r)
		}
	}
	sanitized := strings.Trim(b.String(), "_")
	if sanitized == "" {
		return "unknown"
	}
	return sanitized
}
