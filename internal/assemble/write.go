package assemble

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/techpack-cli/internal/model"
)

// Output file names inside a job's output directory.
const (
	TableFile    = "techpacks.csv"
	AuditFile    = "techpacks_audit.csv"
	WorkbookFile = "techpacks.xlsx"
)

// WriteCSV writes the primary table.
func WriteCSV(out *model.JobOutput, path string) error {
	return writeCSV(path, out.Header, out.Rows)
}

// WriteAuditCSV writes the audit table.
func WriteAuditCSV(out *model.JobOutput, path string) error {
	return writeCSV(path, model.AuditHeader, auditRecords(out.Audit))
}

// WriteXLSX writes both tables into one workbook, the primary table on the
// first sheet.
func WriteXLSX(out *model.JobOutput, path string) error {
	f := xlsx.NewFile()
	if err := addSheet(f, "Tech Packs", out.Header, out.Rows); err != nil {
		return err
	}
	if err := addSheet(f, "Audit", model.AuditHeader, auditRecords(out.Audit)); err != nil {
		return err
	}
	return eris.Wrapf(f.Save(path), "assemble: save %s", path)
}

// WriteFiles writes every output file for a job into dir and returns the
// paths written.
func WriteFiles(out *model.JobOutput, dir string, withXLSX bool) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, eris.Wrapf(err, "assemble: create %s", dir)
	}

	paths := []string{filepath.Join(dir, TableFile), filepath.Join(dir, AuditFile)}
	if err := WriteCSV(out, paths[0]); err != nil {
		return nil, err
	}
	if err := WriteAuditCSV(out, paths[1]); err != nil {
		return nil, err
	}
	if withXLSX {
		p := filepath.Join(dir, WorkbookFile)
		if err := WriteXLSX(out, p); err != nil {
			return nil, err
		}
		paths = append(paths, p)
	}
	return paths, nil
}

func writeCSV(path string, header []string, rows [][]string) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "assemble: create %s", path)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		return eris.Wrap(err, "assemble: write header")
	}
	if err := w.WriteAll(rows); err != nil {
		return eris.Wrap(err, "assemble: write rows")
	}
	return eris.Wrapf(f.Sync(), "assemble: sync %s", path)
}

func addSheet(f *xlsx.File, name string, header []string, rows [][]string) error {
	sheet, err := f.AddSheet(name)
	if err != nil {
		return eris.Wrapf(err, "assemble: add sheet %s", name)
	}
	for _, rec := range append([][]string{header}, rows...) {
		r := sheet.AddRow()
		for _, v := range rec {
			r.AddCell().SetString(v)
		}
	}
	return nil
}

func auditRecords(audit []model.AuditRow) [][]string {
	out := make([][]string, len(audit))
	for i, a := range audit {
		out[i] = []string{a.Key, a.Field, a.Value, a.Rationale, strconv.FormatBool(a.NeedsReview)}
	}
	return out
}
