package docsource

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

const maxLineSize = 16 * 1024 * 1024

var (
	gzipMagic = []byte{0x1f, 0x8b}
	zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}
)

// input is an opened source file or stdin. Content starting with a gzip or
// zstd frame header is decompressed whatever the file name.
type input struct {
	io.Reader
	closers []func() error
}

func openInput(path string) (*input, error) {
	in := &input{}
	f := os.Stdin
	if path != "-" {
		var err error
		if f, err = os.Open(path); err != nil {
			return nil, fmt.Errorf("open source: %w", err)
		}
		in.closers = append(in.closers, f.Close)
	}

	br := bufio.NewReader(f)
	head, _ := br.Peek(len(zstdMagic))
	switch {
	case bytes.HasPrefix(head, gzipMagic):
		gz, err := gzip.NewReader(br)
		if err != nil {
			_ = in.Close()
			return nil, fmt.Errorf("read gzip %s: %w", path, err)
		}
		in.Reader = gz
		in.closers = append(in.closers, gz.Close)
	case bytes.HasPrefix(head, zstdMagic):
		zr, err := zstd.NewReader(br)
		if err != nil {
			_ = in.Close()
			return nil, fmt.Errorf("read zstd %s: %w", path, err)
		}
		in.Reader = zr
		in.closers = append(in.closers, func() error {
			zr.Close()
			return nil
		})
	default:
		in.Reader = br
	}
	return in, nil
}

// Close releases the decompressor first, then the file.
func (in *input) Close() error {
	var errs []error
	for i := len(in.closers) - 1; i >= 0; i-- {
		errs = append(errs, in.closers[i]())
	}
	return errors.Join(errs...)
}

// NDJSON reads one JSON document per line. Blank lines are ignored.
type NDJSON struct {
	Path string
}

func (s *NDJSON) Each(ctx context.Context, fn func(Raw) error) error {
	in, err := openInput(s.Path)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		if err := fn(Raw{Body: bytes.Clone(line)}); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("scan %s: %w", s.Path, err)
	}
	return nil
}

// AllDocs reads a saved `_all_docs?include_docs=true` response.
type AllDocs struct {
	Path string
}

func (s *AllDocs) Each(ctx context.Context, fn func(Raw) error) error {
	in, err := openInput(s.Path)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	page, err := decodeAllDocs(in)
	if err != nil {
		return fmt.Errorf("read %s: %w", s.Path, err)
	}
	return emitRows(ctx, page.Rows, fn)
}
