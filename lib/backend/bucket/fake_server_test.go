// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package bucket

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
)

// fakeS3 is a minimal S3-compatible HTTP server covering just enough
// of the head/get/put/del/list surface (with If-Match/If-None-Match
// conditional semantics) to exercise the Bucket backend end to end
// without a real object store.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string]fakeObject
}

type fakeObject struct {
	body        []byte
	contentType string
	etag        string
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: make(map[string]fakeObject)}
}

func (f *fakeS3) server() *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(f.handle))
}

func computeEtag(body []byte) string {
	sum := md5.Sum(body)
	return `"` + hex.EncodeToString(sum[:]) + `"`
}

// writeXMLError writes an S3-style XML error body so the aws-sdk-go-v2
// REST-XML deserializer can recover a modeled or generic API error
// with the given code, matching what isNotFound/isPreconditionFailed
// look for.
func writeXMLError(w http.ResponseWriter, status int, code string) {
	type errorXML struct {
		XMLName xml.Name `xml:"Error"`
		Code    string   `xml:"Code"`
		Message string   `xml:"Message"`
	}
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(status)
	fmt.Fprint(w, xml.Header)
	xml.NewEncoder(w).Encode(errorXML{Code: code, Message: code})
}

func (f *fakeS3) handle(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	// path-style: /<bucket>/<key...>
	parts := strings.SplitN(strings.TrimPrefix(r.URL.Path, "/"), "/", 2)
	if len(parts) < 2 {
		if r.URL.Query().Get("list-type") == "2" {
			f.handleList(w, r, parts[0])
			return
		}
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	key := parts[1]

	if r.URL.Query().Get("list-type") == "2" {
		f.handleList(w, r, parts[0])
		return
	}

	switch r.Method {
	case http.MethodHead:
		obj, ok := f.objects[key]
		if !ok {
			writeXMLError(w, http.StatusNotFound, "NotFound")
			return
		}
		w.Header().Set("ETag", obj.etag)
		w.Header().Set("Content-Type", obj.contentType)
		w.WriteHeader(http.StatusOK)

	case http.MethodGet:
		obj, ok := f.objects[key]
		if !ok {
			writeXMLError(w, http.StatusNotFound, "NoSuchKey")
			return
		}
		w.Header().Set("ETag", obj.etag)
		w.Header().Set("Content-Type", obj.contentType)
		w.WriteHeader(http.StatusOK)
		w.Write(obj.body)

	case http.MethodPut:
		if copySource := r.Header.Get("X-Amz-Copy-Source"); copySource != "" {
			f.handleCopy(w, r, key, copySource)
			return
		}
		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		existing, exists := f.objects[key]

		if ifNoneMatch := r.Header.Get("If-None-Match"); ifNoneMatch == "*" && exists {
			writeXMLError(w, http.StatusPreconditionFailed, "PreconditionFailed")
			return
		}
		if ifMatch := r.Header.Get("If-Match"); ifMatch != "" {
			if !exists || existing.etag != ifMatch {
				writeXMLError(w, http.StatusPreconditionFailed, "PreconditionFailed")
				return
			}
		}

		obj := fakeObject{body: body, contentType: r.Header.Get("Content-Type"), etag: computeEtag(body)}
		f.objects[key] = obj
		w.Header().Set("ETag", obj.etag)
		w.WriteHeader(http.StatusOK)

	case http.MethodDelete:
		existing, exists := f.objects[key]
		if ifMatch := r.Header.Get("If-Match"); ifMatch != "" {
			if !exists || existing.etag != ifMatch {
				writeXMLError(w, http.StatusPreconditionFailed, "PreconditionFailed")
				return
			}
		}
		delete(f.objects, key)
		w.WriteHeader(http.StatusNoContent)

	default:
		http.Error(w, "unsupported method", http.StatusMethodNotAllowed)
	}
}

func (f *fakeS3) handleCopy(w http.ResponseWriter, r *http.Request, targetKey, copySource string) {
	// copySource is "<bucket>/<key>", URL-decoded by the SDK already in
	// most cases; strip any leading slash defensively.
	copySource = strings.TrimPrefix(copySource, "/")
	sourceParts := strings.SplitN(copySource, "/", 2)
	if len(sourceParts) != 2 {
		http.Error(w, "bad copy source", http.StatusBadRequest)
		return
	}
	sourceObj, ok := f.objects[sourceParts[1]]
	if !ok {
		writeXMLError(w, http.StatusNotFound, "NoSuchKey")
		return
	}
	if ifMatch := r.Header.Get("X-Amz-Copy-Source-If-Match"); ifMatch != "" && sourceObj.etag != ifMatch {
		writeXMLError(w, http.StatusPreconditionFailed, "PreconditionFailed")
		return
	}
	if _, exists := f.objects[targetKey]; exists {
		if r.Header.Get("If-None-Match") == "*" {
			writeXMLError(w, http.StatusPreconditionFailed, "PreconditionFailed")
			return
		}
	}
	f.objects[targetKey] = sourceObj

	type copyResult struct {
		XMLName xml.Name `xml:"CopyObjectResult"`
		ETag    string   `xml:"ETag"`
	}
	w.Header().Set("Content-Type", "application/xml")
	xml.NewEncoder(w).Encode(copyResult{ETag: sourceObj.etag})
}

func (f *fakeS3) handleList(w http.ResponseWriter, r *http.Request, bucket string) {
	prefix := r.URL.Query().Get("prefix")

	type contentsXML struct {
		Key string `xml:"Key"`
	}
	type listResult struct {
		XMLName  xml.Name      `xml:"ListBucketResult"`
		Name     string        `xml:"Name"`
		Prefix   string        `xml:"Prefix"`
		Contents []contentsXML `xml:"Contents"`
	}

	result := listResult{Name: bucket, Prefix: prefix}
	for key := range f.objects {
		if strings.HasPrefix(key, prefix) {
			result.Contents = append(result.Contents, contentsXML{Key: key})
		}
	}
	w.Header().Set("Content-Type", "application/xml")
	fmt.Fprint(w, xml.Header)
	xml.NewEncoder(w).Encode(result)
}
