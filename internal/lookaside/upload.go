package lookaside

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Uploader is a Publisher sending artifacts to a remote lookaside upload
// endpoint (upload.cgi protocol: a filename/hash probe followed by a
// multipart file upload when the content is missing).
type Uploader struct {
	// URL is the upload endpoint.
	URL string

	Client *http.Client
	Logger *log.Logger
}

// NewUploader returns an Uploader posting to url.
func NewUploader(url string, logger *log.Logger) *Uploader {
	if logger == nil {
		logger = log.New(os.Stderr, "[lookaside] ", log.LstdFlags)
	}
	return &Uploader{
		URL:    url,
		Client: &http.Client{Timeout: 5 * time.Minute},
		Logger: logger,
	}
}

// Publish uploads each file, skipping content the remote store already
// has. Entries are addressed by content hash, so replace changes nothing
// here: identical bytes are never sent twice.
func (u *Uploader) Publish(ctx context.Context, repoName string, paths []string, replace bool) error {
	for _, path := range paths {
		sum, err := fileChecksum(path)
		if err != nil {
			return err
		}
		name := filepath.Base(path)

		exists, err := u.exists(ctx, repoName, name, sum)
		if err != nil {
			return err
		}
		if exists {
			u.Logger.Printf("%s already uploaded as %s", name, sum)
			continue
		}

		if err := u.upload(ctx, repoName, name, sum, path); err != nil {
			return err
		}
		u.Logger.Printf("uploaded %s as %s", name, sum)
	}
	return nil
}

// exists probes the endpoint for (name, hash) without sending the file.
func (u *Uploader) exists(ctx context.Context, repoName, name, sum string) (bool, error) {
	body, contentType, err := multipartForm(map[string]string{
		"name":     repoName,
		"filename": name,
		"md5sum":   sum,
	}, "", "")
	if err != nil {
		return false, err
	}

	resp, err := u.post(ctx, body, contentType)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	reply, err := io.ReadAll(resp.Body)
	if err != nil {
		return false, fmt.Errorf("failed to read upload probe response: %w", err)
	}
	return strings.Contains(string(reply), "Available"), nil
}

func (u *Uploader) upload(ctx context.Context, repoName, name, sum, path string) error {
	body, contentType, err := multipartForm(map[string]string{
		"name":   repoName,
		"md5sum": sum,
	}, "file", path)
	if err != nil {
		return err
	}

	resp, err := u.post(ctx, body, contentType)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		reply, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("upload of %s failed: %s: %s",
			name, resp.Status, strings.TrimSpace(string(reply)))
	}
	return nil
}

func (u *Uploader) post(ctx context.Context, body *bytes.Buffer, contentType string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.URL, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build upload request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := u.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("upload request failed: %w", err)
	}
	return resp, nil
}

// multipartForm builds a multipart body with the given fields, optionally
// attaching the file at filePath under fileField.
func multipartForm(fields map[string]string, fileField, filePath string) (*bytes.Buffer, string, error) {
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)

	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			return nil, "", fmt.Errorf("failed to build upload form: %w", err)
		}
	}

	if fileField != "" {
		f, err := os.Open(filePath)
		if err != nil {
			return nil, "", fmt.Errorf("failed to open source file: %w", err)
		}
		defer f.Close()

		part, err := w.CreateFormFile(fileField, filepath.Base(filePath))
		if err != nil {
			return nil, "", fmt.Errorf("failed to build upload form: %w", err)
		}
		if _, err := io.Copy(part, f); err != nil {
			return nil, "", fmt.Errorf("failed to read %s: %w", filePath, err)
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to finish upload form: %w", err)
	}
	return body, w.FormDataContentType(), nil
}
