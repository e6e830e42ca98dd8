// Package batch fuses a stream of YAML requests, optionally zstd compressed.
package batch

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/akhenakh/rrf/internal/rrf"
	"github.com/akhenakh/rrf/internal/util"

	"github.com/klauspost/compress/zstd"
	"gopkg.in/yaml.v3"
)

var zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

// Request is one YAML document:
//
//	name: query-1
//	k: 60
//	ids_a: [10, 20, null, 30]
//	ids_b: [20, 40]
//
// A missing list is absent; a missing k uses the caller's default.
type Request struct {
	Name string   `yaml:"name"`
	K    *int64   `yaml:"k"`
	IDsA []*int64 `yaml:"ids_a"`
	IDsB []*int64 `yaml:"ids_b"`
}

type Result struct {
	Name string
	K    int64
	Rows []rrf.Row
	Err  error
}

type readCloser struct {
	io.Reader
	closers []func()
}

func (r *readCloser) Close() error {
	for _, c := range r.closers {
		c()
	}
	return nil
}

// newReader decompresses r when it starts with the zstd frame magic.
func newReader(r io.Reader) (*readCloser, error) {
	br := bufio.NewReader(r)
	head, err := br.Peek(len(zstdMagic))
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	if !bytes.Equal(head, zstdMagic) {
		return &readCloser{Reader: br}, nil
	}

	decoder, err := zstd.NewReader(br)
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd reader: %w", err)
	}
	return &readCloser{Reader: decoder, closers: []func(){decoder.Close}}, nil
}

// Decode reads every YAML document from r. Plain and zstd input are both accepted.
func Decode(r io.Reader) ([]Request, error) {
	rc, err := newReader(r)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	dec := yaml.NewDecoder(rc)
	var reqs []Request
	for {
		var req Request
		err := dec.Decode(&req)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("request %d: %w", len(reqs)+1, err)
		}
		if req.Name == "" {
			req.Name = fmt.Sprintf("#%d", len(reqs)+1)
		}
		reqs = append(reqs, req)
	}
	return reqs, nil
}

// Run fuses each request on its own. An invalid k fails only that request.
func Run(reqs []Request, defaultK int64) []Result {
	results := make([]Result, 0, len(reqs))
	for _, req := range reqs {
		k := defaultK
		if req.K != nil {
			k = *req.K
		}
		rows, err := rrf.Fuse(util.NullablePtrs(req.IDsA), util.NullablePtrs(req.IDsB), k)
		if err != nil {
			util.Debug("batch %s: %v", req.Name, err)
		}
		results = append(results, Result{Name: req.Name, K: k, Rows: rows, Err: err})
	}
	return results
}

// ProcessFile decodes and runs every request in path.
func ProcessFile(path string, defaultK int64) ([]Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	reqs, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}
	util.Debug("batch %s: %d requests", path, len(reqs))
	return Run(reqs, defaultK), nil
}
