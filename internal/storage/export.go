package storage

import (
	"encoding/json"
	"io"
	"os"

	"github.com/san-kum/crmlgpu/internal/md"
)

type ExportData struct {
	RunMetadata
	Thermo []md.Thermo `json:"thermo"`
}

// ExportJSON writes a run with its full thermo trace, virials included.
func ExportJSON(w io.Writer, meta RunMetadata, thermo []md.Thermo) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(ExportData{RunMetadata: meta, Thermo: thermo})
}

func ExportJSONFile(path string, meta RunMetadata, thermo []md.Thermo) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return ExportJSON(file, meta, thermo)
}
