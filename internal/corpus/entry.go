package corpus

import (
	"strings"

	"github.com/hyperjump/shiryo/internal/models"
	"github.com/hyperjump/shiryo/pkg/utils"
)

// Entry is the derived, query-ready projection of one record. Entries are immutable once
// built; a write replaces the entry instead of mutating it.
type Entry struct {
	ID      string
	Label   string // title as submitted, for display
	Title   string // normalized
	Body    string // normalized
	Tags    []string
	Tokens  map[string]struct{}
	Folder  string
	Version uint64
	Status  models.Status
}

// HasToken reports whether tok occurs in the title, body or tags.
func (e *Entry) HasToken(tok string) bool {
	_, ok := e.Tokens[tok]
	return ok
}

// project builds the entry for doc, copying its version.
func project(doc *models.Document) *Entry {
	e := &Entry{
		ID:      doc.ID,
		Label:   doc.Title,
		Title:   utils.NormalizeText(doc.Title),
		Body:    utils.NormalizeText(doc.ExtractedText),
		Folder:  doc.Folder,
		Version: doc.Version,
		Status:  doc.Status,
		Tokens:  make(map[string]struct{}),
	}
	for _, tag := range doc.Tags {
		if t := utils.NormalizeText(tag); t != "" {
			e.Tags = append(e.Tags, t)
		}
	}
	for _, text := range append([]string{e.Title, e.Body}, e.Tags...) {
		for _, tok := range utils.Tokenize(text) {
			e.Tokens[tok] = struct{}{}
		}
	}
	return e
}

// inScope reports whether folder is scope or lies beneath it. The root scope "" holds
// every folder.
func inScope(folder, scope string) bool {
	return scope == "" || folder == scope || strings.HasPrefix(folder, scope+"/")
}

// ancestors returns folder and each of its parents, excluding the root.
// "sales/pricing" yields ["sales/pricing", "sales"].
func ancestors(folder string) []string {
	var out []string
	for folder != "" {
		out = append(out, folder)
		i := strings.LastIndexByte(folder, '/')
		if i < 0 {
			break
		}
		folder = folder[:i]
	}
	return out
}
