package api

import (
	"encoding/json"
	"fmt"
	"mime"
	"net/http"
	"net/url"

	"golang.org/x/xerrors"
)

const (
	maxBodyBytes      = 1 << 20
	maxMultipartBytes = 8 << 20
)

var errMalformedBody = xerrors.New("Malformed request body")

// formFields holds submitted values regardless of how the body was encoded.
type formFields map[string]string

func (f formFields) get(key string) string {
	return f[key]
}

// readFields accepts url-encoded, multipart and JSON bodies. JSON scalars are
// rendered to their text form so numbers and strings are treated alike.
func readFields(w http.ResponseWriter, r *http.Request) (formFields, error) {
	mediaType := ""
	if ct := r.Header.Get("Content-Type"); ct != "" {
		parsed, _, err := mime.ParseMediaType(ct)
		if err != nil {
			return nil, errMalformedBody
		}
		mediaType = parsed
	}

	switch mediaType {
	case "application/json":
		return readJSON(w, r)
	case "multipart/form-data":
		r.Body = http.MaxBytesReader(w, r.Body, maxMultipartBytes)
		if err := r.ParseMultipartForm(maxMultipartBytes); err != nil {
			return nil, errMalformedBody
		}
		return fromValues(r.PostForm), nil
	default:
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		if err := r.ParseForm(); err != nil {
			return nil, errMalformedBody
		}
		return fromValues(r.PostForm), nil
	}
}

func readJSON(w http.ResponseWriter, r *http.Request) (formFields, error) {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	decoder.UseNumber()

	var raw map[string]interface{}
	if err := decoder.Decode(&raw); err != nil {
		return nil, errMalformedBody
	}

	fields := make(formFields, len(raw))
	for key, value := range raw {
		switch v := value.(type) {
		case nil:
		case string:
			fields[key] = v
		case json.Number:
			fields[key] = v.String()
		case bool:
			fields[key] = fmt.Sprint(v)
		default:
			// Objects and arrays have no text form a field could use.
			return nil, errMalformedBody
		}
	}
	return fields, nil
}

func fromValues(values url.Values) formFields {
	fields := make(formFields, len(values))
	for key := range values {
		fields[key] = values.Get(key)
	}
	return fields
}
