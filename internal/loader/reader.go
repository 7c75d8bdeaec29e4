// Package loader reads a directory of documents into plain-text
// domain.Documents. Locations are resolved through viant/afs, so local
// paths, file:// URLs and the cloud schemes registered by afsc all work.
package loader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/viant/afs"
	"github.com/viant/afs/storage"
	"github.com/viant/afs/url"
	_ "github.com/viant/afsc/gs"
	_ "github.com/viant/afsc/s3"

	"github.com/qiongqiongyuren/co2yuan3/internal/domain"
	applog "github.com/qiongqiongyuren/co2yuan3/internal/platform/log"
)

var (
	// ErrNotFound is returned when the document location does not exist.
	ErrNotFound = errors.New("document location not found")
	// ErrNoDocuments is returned when a location yields no readable documents.
	ErrNoDocuments = errors.New("no documents found")
	// ErrUnsupported marks files without a registered parser.
	ErrUnsupported = errors.New("unsupported file type")
)

// Option configures a DirectoryReader.
type Option func(*DirectoryReader)

// WithRecursive controls whether subdirectories are visited.
func WithRecursive(recursive bool) Option {
	return func(r *DirectoryReader) { r.recursive = recursive }
}

// DirectoryReader loads every supported file under a location.
type DirectoryReader struct {
	fs        afs.Service
	registry  *ParserRegistry
	recursive bool
	logger    *slog.Logger
}

// NewDirectoryReader creates a reader; a nil registry means the built-in parsers.
func NewDirectoryReader(registry *ParserRegistry, opts ...Option) *DirectoryReader {
	if registry == nil {
		registry = NewParserRegistry()
	}
	r := &DirectoryReader{
		fs:        afs.New(),
		registry:  registry,
		recursive: true,
		logger:    applog.With("component", "loader"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Load reads all documents under location, ordered by path.
func (r *DirectoryReader) Load(ctx context.Context, location string) ([]domain.Document, error) {
	norm, err := normalizeLocation(location)
	if err != nil {
		return nil, err
	}
	ok, err := r.fs.Exists(ctx, norm)
	if err != nil {
		return nil, fmt.Errorf("check %s: %w", location, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, location)
	}

	var docs []domain.Document
	if err := r.walk(ctx, norm, &docs); err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, fmt.Errorf("%w in %s (supported: %s)", ErrNoDocuments, location, strings.Join(r.registry.SupportedTypes(), ", "))
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].Path < docs[j].Path })
	return docs, nil
}

func (r *DirectoryReader) walk(ctx context.Context, dirURL string, docs *[]domain.Document) error {
	objects, err := r.fs.List(ctx, dirURL)
	if err != nil {
		return fmt.Errorf("list %s: %w", dirURL, err)
	}
	for _, object := range objects {
		if err := ctx.Err(); err != nil {
			return err
		}
		name := object.Name()
		if object.IsDir() {
			if sameLocation(object.URL(), dirURL) || !r.recursive || isHidden(name) {
				continue
			}
			if err := r.walk(ctx, url.Join(dirURL, name), docs); err != nil {
				return err
			}
			continue
		}
		if isHidden(name) {
			continue
		}
		doc, err := r.loadFile(ctx, object)
		if errors.Is(err, ErrUnsupported) {
			r.logger.Debug("skipping unsupported file", "file", object.URL())
			continue
		}
		if err != nil {
			return err
		}
		if strings.TrimSpace(doc.Content) == "" {
			r.logger.Debug("skipping empty document", "file", doc.Path)
			continue
		}
		*docs = append(*docs, *doc)
	}
	return nil
}

func (r *DirectoryReader) loadFile(ctx context.Context, object storage.Object) (*domain.Document, error) {
	name := object.Name()
	parser, err := r.registry.Get(name)
	if err != nil {
		return nil, err
	}
	data, err := r.fs.Download(ctx, object)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", object.URL(), err)
	}
	res, err := parser.Parse(data, name)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", object.URL(), err)
	}

	path := url.Path(object.URL())
	meta := map[string]string{
		"file_name":          name,
		"file_path":          path,
		"file_type":          strings.TrimPrefix(strings.ToLower(filepath.Ext(name)), "."),
		"file_size":          strconv.FormatInt(object.Size(), 10),
		"last_modified_date": object.ModTime().UTC().Format(time.DateOnly),
	}
	for k, v := range res.Metadata {
		meta[k] = v
	}
	return &domain.Document{
		ID:       DocumentID(object.URL()),
		Path:     path,
		Content:  res.Content,
		Metadata: meta,
	}, nil
}

// normalizeLocation turns relative and bare absolute paths into file URLs.
func normalizeLocation(location string) (string, error) {
	norm := strings.TrimSpace(location)
	if norm == "" {
		return "", fmt.Errorf("%w: empty location", ErrNotFound)
	}
	if url.Scheme(norm, "") == "" && url.IsRelative(norm) {
		abs, err := filepath.Abs(norm)
		if err != nil {
			return "", fmt.Errorf("failed to get absolute path for %s: %w", location, err)
		}
		norm = abs
	}
	if url.Scheme(norm, "") == "" && !url.IsRelative(norm) {
		norm = url.ToFileURL(norm)
	}
	return norm, nil
}

func sameLocation(a, b string) bool {
	return strings.TrimRight(url.Path(a), "/") == strings.TrimRight(url.Path(b), "/")
}

func isHidden(name string) bool {
	return strings.HasPrefix(name, ".")
}
