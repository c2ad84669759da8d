package usecase

import (
	"context"
	"errors"
	"fmt"

	"hybridrag/internal/adapter/chunker"
	"hybridrag/internal/adapter/fs"
	"hybridrag/internal/adapter/store"
	"hybridrag/internal/domain"
	"hybridrag/internal/logger"
)

// IngestUseCase walks a directory, chunks text files and appends the chunks
// through a Coordinator. Source files are tracked in the store manifest so
// unchanged files are skipped on the next run.
type IngestUseCase struct {
	coordinator *Coordinator
	manifest    *store.Manifest
	walker      *fs.Walker
	chunker     *chunker.WindowChunker
	batchSize   int
}

func NewIngestUseCase(
	coordinator *Coordinator,
	manifest *store.Manifest,
	walker *fs.Walker,
	chunker *chunker.WindowChunker,
	batchSize int,
) *IngestUseCase {
	if batchSize <= 0 {
		batchSize = 64
	}
	return &IngestUseCase{
		coordinator: coordinator,
		manifest:    manifest,
		walker:      walker,
		chunker:     chunker,
		batchSize:   batchSize,
	}
}

// IngestOptions controls one ingest run.
type IngestOptions struct {
	Roles []string
	// Force re-ingests files whose modification time is unchanged.
	Force bool
	// Progress, if set, is called after each file with (done, total).
	Progress func(done, total int)
}

// IngestResult contains the results of an ingest run.
type IngestResult struct {
	FilesIngested  int
	FilesUnchanged int
	FilesSkipped   int
	ChunksAdded    int
	Errors         []string
}

// Ingest ingests every matching file under root. Chunks are appended in
// batches; a failed batch aborts the run and earlier batches stay committed.
func (u *IngestUseCase) Ingest(ctx context.Context, root string, opts IngestOptions) (*IngestResult, error) {
	files, err := u.walker.Walk(root)
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", root, err)
	}

	result := &IngestResult{}
	roles := domain.NormalizeRoles(opts.Roles)

	var (
		batch   []domain.ChunkRecord
		sources []store.SourceInfo
	)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		n, err := u.coordinator.Add(ctx, batch)
		if err != nil {
			return err
		}
		result.ChunksAdded += n
		for _, src := range sources {
			if u.manifest == nil {
				continue
			}
			if err := u.manifest.PutSource(src); err != nil {
				return domain.Persistence("ingest.manifest", err)
			}
		}
		batch = batch[:0]
		sources = sources[:0]
		return nil
	}

	for i, file := range files {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		prev, seen, err := u.source(file.Path)
		if err != nil {
			return result, domain.Persistence("ingest.manifest", err)
		}
		if !opts.Force && seen && prev.ModTime.Equal(file.ModTime) {
			result.FilesUnchanged++
			u.progress(opts, i+1, len(files))
			continue
		}

		content, err := fs.ReadText(file.Path)
		if err != nil {
			if !errors.Is(err, fs.ErrNotText) {
				result.Errors = append(result.Errors, fmt.Sprintf("failed to read %s: %v", file.RelPath, err))
			}
			result.FilesSkipped++
			u.progress(opts, i+1, len(files))
			continue
		}

		records := u.chunker.Chunk(file.RelPath, content, roles)
		if len(records) == 0 {
			result.FilesSkipped++
			u.progress(opts, i+1, len(files))
			continue
		}

		if seen {
			logger.Warn(ctx, "re-ingesting changed file; earlier chunks stay in the index", "path", file.RelPath)
		}

		batch = append(batch, records...)
		sources = append(sources, store.SourceInfo{
			Path:    file.Path,
			ModTime: file.ModTime,
			Chunks:  len(records),
		})
		result.FilesIngested++

		if len(batch) >= u.batchSize {
			if err := flush(); err != nil {
				return result, err
			}
		}
		u.progress(opts, i+1, len(files))
	}

	if err := flush(); err != nil {
		return result, err
	}

	logger.Info(ctx, "ingest complete",
		"root", root,
		"ingested", result.FilesIngested,
		"unchanged", result.FilesUnchanged,
		"skipped", result.FilesSkipped,
		"chunks", result.ChunksAdded,
	)
	return result, nil
}

func (u *IngestUseCase) source(path string) (store.SourceInfo, bool, error) {
	if u.manifest == nil {
		return store.SourceInfo{}, false, nil
	}
	return u.manifest.GetSource(path)
}

func (u *IngestUseCase) progress(opts IngestOptions, done, total int) {
	if opts.Progress != nil {
		opts.Progress(done, total)
	}
}
