// Package segment implements the Readonly and Writable segment kinds
// (spec §4.5, C5): each owns one value store (any C2 store) and one
// ReadableIndex per declared index column, persisted under its own
// subdirectory via a manifest that names the backing store file per
// column, dispatched through the store registry (C1).
package segment

import (
	goccyjson "github.com/goccy/go-json"
	"github.com/spf13/afero"

	"github.com/erigontech/segstore/schema"
	"github.com/erigontech/segstore/segerr"
	"github.com/erigontech/segstore/store"
)

// Kind distinguishes a segment directory's role, matching the dir/<kind>-
// <NNNN> naming in spec §4.6.1 and §6.
type Kind string

const (
	KindReadonly Kind = "rd"
	KindWritable Kind = "wr"
)

// IndexFile names the backing store for one declared index.
type IndexFile struct {
	IndexID  int    `json:"indexId"`
	Name     string `json:"name"`
	FileName string `json:"fileName"`
}

// Manifest is the per-segment manifest described in spec §6: value store
// file plus one file per index, each with a registry-dispatched suffix.
type Manifest struct {
	ValueStoreFile string      `json:"valueStoreFile"`
	Indices        []IndexFile `json:"indices"`
	DeleteBitmap   string      `json:"deleteBitmap,omitempty"`
}

const manifestFileName = "segmeta.json"

func saveManifest(fs store.FS, dir string, m Manifest) error {
	b, err := goccyjson.MarshalIndent(m, "", "  ")
	if err != nil {
		return segerr.Io(dir, err)
	}
	path := dir + "/" + manifestFileName
	if err := afero.WriteFile(fs, path, b, 0o644); err != nil {
		return segerr.Io(path, err)
	}
	return nil
}

func loadManifest(fs store.FS, dir string) (Manifest, error) {
	path := dir + "/" + manifestFileName
	b, err := afero.ReadFile(fs, path)
	if err != nil {
		return Manifest{}, segerr.Io(path, err)
	}
	var m Manifest
	if err := goccyjson.Unmarshal(b, &m); err != nil {
		return Manifest{}, segerr.Corruption(path, "segment manifest decode failed: "+err.Error())
	}
	return m, nil
}

// indexDefByID finds the declared index definition for id within sch.
func indexDefByID(sch schema.Schema, id int) (schema.IndexDef, bool) {
	for _, def := range sch.Indices() {
		if def.ID == id {
			return def, true
		}
	}
	return schema.IndexDef{}, false
}
