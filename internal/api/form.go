package api

import (
	"bytes"
	"fmt"
	"io"
	"mime/multipart"
	"net/textproto"
)

// File is one multipart file part. Data is held in memory so a retried
// request can rebuild its body.
type File struct {
	Field       string
	Name        string
	ContentType string
	Data        []byte
}

// Form is a multipart body of fields and files.
type Form struct {
	fields [][2]string
	files  []File
}

// NewForm returns an empty form.
func NewForm() *Form { return &Form{} }

// Field appends a text field; empty values are skipped.
func (f *Form) Field(name, value string) *Form {
	if value != "" {
		f.fields = append(f.fields, [2]string{name, value})
	}
	return f
}

// File appends a file part; parts without data are skipped.
func (f *Form) File(file File) *Form {
	if len(file.Data) > 0 {
		f.files = append(f.files, file)
	}
	return f
}

func (f *Form) encode() (io.Reader, string, error) {
	var b bytes.Buffer
	w := multipart.NewWriter(&b)
	for _, kv := range f.fields {
		if err := w.WriteField(kv[0], kv[1]); err != nil {
			return nil, "", fmt.Errorf("write field %s: %w", kv[0], err)
		}
	}
	for _, file := range f.files {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, file.Field, file.Name))
		ct := file.ContentType
		if ct == "" {
			ct = "application/octet-stream"
		}
		h.Set("Content-Type", ct)
		fw, err := w.CreatePart(h)
		if err != nil {
			return nil, "", fmt.Errorf("create part %s: %w", file.Name, err)
		}
		if _, err := fw.Write(file.Data); err != nil {
			return nil, "", fmt.Errorf("write part %s: %w", file.Name, err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart: %w", err)
	}
	return &b, w.FormDataContentType(), nil
}
