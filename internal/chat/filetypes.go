// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// SupportedExtensions lists the document types the backend can index.
var SupportedExtensions = []string{
	".pdf", ".png", ".jpg", ".jpeg", ".gif", ".webp",
	".doc", ".docx", ".xls", ".xlsx", ".csv", ".ppt", ".pptx",
	".txt", ".md", ".markdown",
}

// SupportedMIMETypes is consulted for files whose extension is missing or
// not listed in SupportedExtensions.
var SupportedMIMETypes = []string{
	"application/pdf",
	"image/png", "image/jpeg", "image/jpg", "image/gif", "image/webp",
	"application/msword",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	"application/vnd.ms-excel",
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	"application/vnd.ms-powerpoint",
	"application/vnd.openxmlformats-officedocument.presentationml.presentation",
	"text/plain", "text/csv", "text/markdown", "text/x-markdown",
}

// StagedFile is a local file waiting to be uploaded.
type StagedFile struct {
	Path string
	Name string
	Size int64
	MIME string
}

// Inspect reports whether path is a regular, readable file of a supported
// type and describes it.
func Inspect(path string) (StagedFile, bool) {
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return StagedFile{}, false
	}
	f := StagedFile{Path: path, Name: filepath.Base(path), Size: info.Size()}

	mt, err := mimetype.DetectFile(path)
	if err != nil {
		return StagedFile{}, false
	}
	f.MIME = mt.String()

	ext := strings.ToLower(filepath.Ext(path))
	switch {
	case ext == "":
		return f, supportedMIME(mt)
	case slices.Contains(SupportedExtensions, ext):
		return f, true
	default:
		// Unknown extension: only a recognised binary signature counts.
		// Any printable bytes sniff as text/plain.
		return f, supportedMIME(mt) && !isText(mt)
	}
}

func isText(mt *mimetype.MIME) bool {
	for m := mt; m != nil; m = m.Parent() {
		if m.Is("text/plain") {
			return true
		}
	}
	return false
}

func supportedMIME(mt *mimetype.MIME) bool {
	for _, t := range SupportedMIMETypes {
		if mt.Is(t) {
			return true
		}
	}
	return false
}

// ExpandPaths resolves "~" and lists the regular files of directories (one
// level deep). Arguments that cannot be read are returned in unreadable.
func ExpandPaths(args []string) (paths, unreadable []string) {
	for _, a := range args {
		p := expandHome(a)
		info, err := os.Stat(p)
		if err != nil {
			unreadable = append(unreadable, a)
			continue
		}
		if !info.IsDir() {
			paths = append(paths, p)
			continue
		}
		entries, err := os.ReadDir(p)
		if err != nil {
			unreadable = append(unreadable, a)
			continue
		}
		for _, e := range entries {
			if !e.IsDir() {
				paths = append(paths, filepath.Join(p, e.Name()))
			}
		}
	}
	return paths, unreadable
}

func expandHome(p string) string {
	if p == "~" || strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(p, "~"))
		}
	}
	return p
}
