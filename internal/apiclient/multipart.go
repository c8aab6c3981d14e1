package apiclient

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"sort"
)

// File is one uploaded file.
type File struct {
	Name    string
	Content []byte
}

// Multipart is a request body sent as multipart/form-data. Every file is
// sent under Field.
type Multipart struct {
	Field  string
	Files  []File
	Values map[string]string
}

func (m Multipart) encode() ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	keys := make([]string, 0, len(m.Values))
	for k := range m.Values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := w.WriteField(k, m.Values[k]); err != nil {
			return nil, "", err
		}
	}
	for _, f := range m.Files {
		part, err := w.CreateFormFile(m.Field, f.Name)
		if err != nil {
			return nil, "", err
		}
		if _, err := part.Write(f.Content); err != nil {
			return nil, "", err
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}

// encodeBody renders a request body once so a retry resends the same bytes.
func encodeBody(body any) ([]byte, string, error) {
	var (
		data        []byte
		contentType = "application/json"
		err         error
	)
	switch b := body.(type) {
	case nil:
		return nil, "", nil
	case Multipart:
		data, contentType, err = b.encode()
	case *Multipart:
		data, contentType, err = b.encode()
	default:
		data, err = json.Marshal(b)
	}
	if err != nil {
		return nil, "", fmt.Errorf("failed to encode request body: %w", err)
	}
	return data, contentType, nil
}
