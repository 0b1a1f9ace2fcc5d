package main

import (
	"context"
	"crypto"
	_ "crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	_url "net/url"
	"os"
	"path"
	"path/filepath"

	"github.com/010DevX101/setup-seal/internal/metaerr"
)

// Download retrieves a release asset from the given url and saves it in the
// given directory.
// It returns the local path to the downloaded file.
func Download(ctx context.Context, client *http.Client, url string, dir string) (string, error) {
	u, err := _url.Parse(url)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	filename := path.Base(u.Path)
	if filename == "." || filename == "/" {
		filename = "download"
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode != http.StatusOK {
		return "", metaerr.WithMetadata(
			fmt.Errorf("unexpected response: %d - %s", resp.StatusCode, http.StatusText(resp.StatusCode)),
			"status", resp.StatusCode,
		)
	}

	file, err := os.Create(filepath.Join(dir, filename))
	if err != nil {
		return "", fmt.Errorf("create output file: %w", err)
	}
	defer func() {
		_ = file.Close()
	}()

	if _, err := io.Copy(file, resp.Body); err != nil {
		return "", fmt.Errorf("write output file: %w", err)
	}
	if err := file.Close(); err != nil {
		return "", fmt.Errorf("close output file: %w", err)
	}

	return file.Name(), nil
}

// fileDigest returns the sha256 digest of the named file.
func fileDigest(name string) (string, error) {
	f, err := os.Open(name)
	if err != nil {
		return "", err
	}
	defer func() {
		_ = f.Close()
	}()

	s, err := digest(f)
	if err != nil {
		return "", err
	}
	return "sha256:" + s, nil
}

func digest(in io.Reader) (string, error) {
	hash := crypto.SHA256.New()
	if _, err := io.Copy(hash, in); err != nil {
		return "", err
	}
	return hex.EncodeToString(hash.Sum(nil)), nil
}
