package ingest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hyperjump/shiryo/internal/fileid"
	"github.com/hyperjump/shiryo/internal/models"
	"go.uber.org/zap"
)

// FileInput reads path into a submission. The id is derived from the absolute path and the
// folder from its directory relative to root.
func FileInput(path, root string) (*models.DocumentInput, os.FileInfo, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, nil, fmt.Errorf("absolute path: %w", err)
	}
	info, err := os.Stat(absPath)
	if err != nil {
		return nil, nil, fmt.Errorf("stat file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return nil, nil, fmt.Errorf("not a regular file: %s", absPath)
	}
	content, err := os.ReadFile(absPath)
	if err != nil {
		return nil, nil, fmt.Errorf("read file: %w", err)
	}
	folder := ""
	if root != "" {
		if absRoot, err := filepath.Abs(root); err == nil {
			folder = fileid.RelativeFolder(absRoot, absPath)
		}
	}
	return &models.DocumentInput{
		ID:        fileid.FileDocID(absPath),
		Title:     filepath.Base(absPath),
		Folder:    folder,
		SourceURI: absPath,
		Content:   content,
	}, info, nil
}

// SubmitFile ingests the file at path synchronously. Files already stored with the same
// source, size and an update time after their modification are skipped and the stored
// record is returned. If allowedExts is non-empty the extension must be listed.
func (s *Service) SubmitFile(ctx context.Context, path, root string, allowedExts []string) (*models.Document, error) {
	if len(allowedExts) > 0 && !ExtensionAllowed(filepath.Ext(path), allowedExts) {
		return nil, fmt.Errorf("%w: extension %q not in allowed list", models.ErrInvalidInput, filepath.Ext(path))
	}
	input, info, err := FileInput(path, root)
	if err != nil {
		return nil, err
	}
	if doc, err := s.corpus.Get(ctx, input.ID); err == nil && unchanged(doc, input, info) {
		s.logger.Debug("skipping unchanged file", zap.String("path", input.SourceURI))
		return doc, nil
	}
	return s.Submit(ctx, input)
}

// SubmitDirectory walks dir and ingests every regular file whose extension is allowed.
// Folders are taken relative to dir. Returns the number of files processed and the first
// error other than a conflict.
func (s *Service) SubmitDirectory(ctx context.Context, dir string, allowedExts []string) (n int, err error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return 0, fmt.Errorf("absolute path: %w", err)
	}
	info, err := os.Stat(absDir)
	if err != nil {
		return 0, fmt.Errorf("stat directory: %w", err)
	}
	if !info.IsDir() {
		return 0, fmt.Errorf("not a directory: %s", absDir)
	}
	err = filepath.WalkDir(absDir, func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			if path != absDir && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if len(allowedExts) > 0 && !ExtensionAllowed(filepath.Ext(path), allowedExts) {
			return nil
		}
		finfo, statErr := os.Stat(path)
		if statErr != nil || !finfo.Mode().IsRegular() {
			return nil
		}
		if _, subErr := s.SubmitFile(ctx, path, absDir, allowedExts); subErr != nil {
			s.logger.Warn("file not ingested", zap.String("path", path), zap.Error(subErr))
			return nil
		}
		n++
		return nil
	})
	return n, err
}

// RemoveFile deletes the record ingested from path.
func (s *Service) RemoveFile(ctx context.Context, path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("absolute path: %w", err)
	}
	return s.Remove(ctx, fileid.FileDocID(absPath))
}

// ExtensionAllowed reports whether ext (with or without the dot) is in allowed,
// ignoring case.
func ExtensionAllowed(ext string, allowed []string) bool {
	extNorm := strings.ToLower(strings.TrimPrefix(ext, "."))
	for _, a := range allowed {
		if strings.ToLower(strings.TrimPrefix(a, ".")) == extNorm {
			return true
		}
	}
	return false
}

func unchanged(doc *models.Document, input *models.DocumentInput, info os.FileInfo) bool {
	return doc.SourceURI == input.SourceURI &&
		doc.RawSizeBytes == info.Size() &&
		doc.Folder == models.NormalizeFolder(input.Folder) &&
		doc.Status != models.StatusPending &&
		!doc.UpdatedAt.Before(info.ModTime())
}
