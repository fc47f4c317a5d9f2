package marley

import (
	"net/http"
	"path"
	"regexp"
	"strings"
)

// downloadType is how an attachment extension is served.
type downloadType struct {
	mime       string
	attachment bool
}

var downloadTypes = map[string]downloadType{
	"jpg": {mime: "image/jpeg"},
	"pdf": {mime: "application/pdf"},
	"mov": {mime: "video/quicktime"},
	"m4v": {mime: "video/quicktime", attachment: true},
	"rb":  {mime: "text/plain", attachment: true},
}

var downloadName = regexp.MustCompile(`^[A-Za-z0-9_|-]+$`)

// Download serves /posts/<name>.<ext> from whichever article directory
// holds the file.
func Download(posts *PostStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		file := r.PathValue("file")
		ext := strings.TrimPrefix(path.Ext(file), ".")
		name := strings.TrimSuffix(file, "."+ext)
		dt, ok := downloadTypes[ext]
		if !ok || !downloadName.MatchString(name) {
			http.NotFound(w, r)
			return
		}
		p, ok := posts.FindFile(file)
		if !ok {
			http.NotFound(w, r)
			return
		}
		disposition := "inline"
		if dt.attachment {
			disposition = "attachment"
		}
		w.Header().Set("Content-Type", dt.mime)
		w.Header().Set("Content-Disposition", disposition+`; filename="`+file+`"`)
		http.ServeFile(w, r, p)
	}
}
