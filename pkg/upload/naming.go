package upload

import (
	"path/filepath"
	"regexp"
	"strings"

	"github.com/pario-ai/costdesk/pkg/models"
)

// Result objects are written by the backend as Price_<base>_<date>_<time>.csv.
// Failures produce Error_<base>_<date>_<time>.json, which never match.
var anyResult = regexp.MustCompile(`^Price_(.+)_([^_]+)_([^_]+)\.csv$`)

// BaseName strips the last extension, the way the backend derives <base>.
func BaseName(filename string) string {
	name := filepath.Base(filename)
	return strings.TrimSuffix(name, filepath.Ext(name))
}

// Extension returns the lower-cased extension without the dot.
func Extension(filename string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), "."))
}

func resultPattern(base string) *regexp.Regexp {
	return regexp.MustCompile(`^Price_` + regexp.QuoteMeta(base) + `_[^_]+_[^_]+\.csv$`)
}

// newestResult returns the most recently modified result object for base.
func newestResult(objs []models.ObjectInfo, base string) (models.ObjectInfo, bool) {
	return newest(objs, resultPattern(base))
}

// recoverResult picks the newest result object of any upload and derives the
// base name it was produced from.
func recoverResult(objs []models.ObjectInfo) (key, base string, ok bool) {
	obj, found := newest(objs, anyResult)
	if !found {
		return "", "", false
	}
	m := anyResult.FindStringSubmatch(obj.Key)
	return obj.Key, m[1], true
}

func newest(objs []models.ObjectInfo, re *regexp.Regexp) (models.ObjectInfo, bool) {
	var best models.ObjectInfo
	found := false
	for _, o := range objs {
		if !re.MatchString(o.Key) {
			continue
		}
		if !found || o.LastModified.After(best.LastModified) ||
			(o.LastModified.Equal(best.LastModified) && o.Key > best.Key) {
			best = o
			found = true
		}
	}
	return best, found
}
