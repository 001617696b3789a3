// Package intake validates user-picked images and keeps them as an ordered
// selection with unique names.
package intake

import (
	"errors"
	"fmt"
	"strings"

	iface "TableDetFront/interface"
	"TableDetFront/monitor"

	"github.com/gabriel-vasile/mimetype"
)

var ErrIndex = errors.New("no file at that position")

// Rejection explains why a candidate was dropped.
type Rejection struct {
	Name   string
	Reason string
}

// Report summarizes one AddFiles call.
type Report struct {
	Added      []string
	Rejected   []Rejection
	Duplicates []string
}

type Selection struct {
	maxSize int64
	files   []iface.SelectedFile
}

func NewSelection(maxSize int64) *Selection {
	return &Selection{maxSize: maxSize}
}

// AddFiles accepts candidates that sniff as images and are smaller than
// the size limit, drops names already present, and appends the rest in
// order. prepare, when non-nil, runs on every newly added file.
func (s *Selection) AddFiles(candidates []iface.Candidate, prepare func(*iface.SelectedFile)) Report {
	var rep Report
	seen := make(map[string]bool, len(s.files)+len(candidates))
	for _, f := range s.files {
		seen[f.Name] = true
	}
	for _, c := range candidates {
		mime, reason := s.check(c)
		if reason != "" {
			rep.Rejected = append(rep.Rejected, Rejection{Name: c.Name, Reason: reason})
			monitor.FilesTotal.WithLabelValues("rejected").Inc()
			continue
		}
		if seen[c.Name] {
			rep.Duplicates = append(rep.Duplicates, c.Name)
			monitor.FilesTotal.WithLabelValues("duplicate").Inc()
			continue
		}
		seen[c.Name] = true
		f := iface.SelectedFile{
			Name:    c.Name,
			Size:    c.Size,
			MIME:    mime,
			Content: c.Content,
		}
		if prepare != nil {
			prepare(&f)
		}
		s.files = append(s.files, f)
		rep.Added = append(rep.Added, c.Name)
		monitor.FilesTotal.WithLabelValues("accepted").Inc()
	}
	return rep
}

func (s *Selection) check(c iface.Candidate) (string, string) {
	if c.Name == "" {
		return "", "missing file name"
	}
	if c.Size >= s.maxSize || int64(len(c.Content)) >= s.maxSize {
		return "", fmt.Sprintf("larger than %dMB", s.maxSize/(1024*1024))
	}
	mime := mimetype.Detect(c.Content)
	if !strings.HasPrefix(mime.String(), "image/") {
		return "", "not an image"
	}
	return mime.String(), ""
}

// Remove drops the file at index and returns it.
func (s *Selection) Remove(index int) (iface.SelectedFile, error) {
	if index < 0 || index >= len(s.files) {
		return iface.SelectedFile{}, fmt.Errorf("%w: %d", ErrIndex, index)
	}
	f := s.files[index]
	s.files = append(s.files[:index], s.files[index+1:]...)
	return f, nil
}

func (s *Selection) Reset() {
	s.files = nil
}

func (s *Selection) Len() int {
	return len(s.files)
}

func (s *Selection) Empty() bool {
	return len(s.files) == 0
}

// Files returns a copy of the selection in insertion order.
func (s *Selection) Files() []iface.SelectedFile {
	out := make([]iface.SelectedFile, len(s.files))
	copy(out, s.files)
	return out
}

// Find returns the file with the given name.
func (s *Selection) Find(name string) (iface.SelectedFile, bool) {
	for _, f := range s.files {
		if f.Name == name {
			return f, true
		}
	}
	return iface.SelectedFile{}, false
}

// Message renders the user-facing notification text for a report's
// rejected and duplicate entries. Either string is empty when there is
// nothing to report.
func (r Report) Message() (rejected string, duplicates string) {
	if len(r.Rejected) > 0 {
		names := make([]string, 0, len(r.Rejected))
		for _, rj := range r.Rejected {
			names = append(names, fmt.Sprintf("%s (%s)", rj.Name, rj.Reason))
		}
		rejected = fmt.Sprintf("%d file(s) ignored, only images below the size limit are accepted: %s",
			len(r.Rejected), strings.Join(names, ", "))
	}
	if len(r.Duplicates) > 0 {
		duplicates = fmt.Sprintf("Already selected: %s", strings.Join(r.Duplicates, ", "))
	}
	return rejected, duplicates
}
