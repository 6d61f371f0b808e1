package contacts

import (
	"fmt"
	"hash/fnv"
	"path/filepath"
	"strings"

	"github.com/Candra0x6/WA-Website-Offer-Automation/pkg/logx"
)

// Required sheet columns; matching is case-insensitive on trimmed headers.
const (
	colName        = "business name"
	colPhone       = "phone"
	colDescription = "description"
	colWebsite     = "website"
	colMapsLink    = "google maps link"
)

// List is a slice-backed Source.
type List struct {
	jobs        []Job
	fingerprint string
}

func (l *List) Len() int            { return len(l.jobs) }
func (l *List) At(i int) Job        { return l.jobs[i] }
func (l *List) Fingerprint() string { return l.fingerprint }

// Valid reports how many jobs carry no skip reason.
func (l *List) Valid() int {
	n := 0
	for _, j := range l.jobs {
		if j.SkipReason == "" {
			n++
		}
	}
	return n
}

// Load reads the job list from an .xlsx or .csv file. Rows that fail
// validation are kept in place with a skip reason so indexes stay stable.
func Load(path, region string, log logx.Logger) (*List, error) {
	if region == "" {
		region = "US"
	}

	var (
		rows [][]string
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		rows, err = readExcel(path)
	case ".csv":
		rows, err = readCSV(path)
	default:
		return nil, fmt.Errorf("contacts: unsupported file type %q (want .xlsx or .csv)", filepath.Ext(path))
	}
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("contacts: %s is empty", path)
	}

	cols, err := mapColumns(rows[0])
	if err != nil {
		return nil, fmt.Errorf("contacts: %s: %w", path, err)
	}

	jobs := make([]Job, 0, len(rows)-1)
	invalid := 0
	for i, row := range rows[1:] {
		raw := Business{
			Name:        cell(row, cols[colName]),
			Phone:       cell(row, cols[colPhone]),
			Description: cell(row, cols[colDescription]),
			Website:     cell(row, cols[colWebsite]),
			MapsLink:    cell(row, cols[colMapsLink]),
		}
		b, reason := normalize(raw, region)
		if reason != "" {
			invalid++
			log.Debug("contact row invalid",
				logx.Int("row", i+2),
				logx.String("name", raw.Name),
				logx.String("reason", reason),
			)
		}
		jobs = append(jobs, Job{Index: len(jobs), Business: b, SkipReason: reason})
	}

	l := &List{jobs: jobs, fingerprint: fingerprint(path, jobs)}
	log.Info("contacts loaded",
		logx.String("file", path),
		logx.Int("rows", len(jobs)),
		logx.Int("invalid", invalid),
		logx.String("fingerprint", l.fingerprint),
	)
	return l, nil
}

// mapColumns resolves header names to indexes. Business Name and Phone are
// required; the rest are optional (-1 when absent).
func mapColumns(header []string) (map[string]int, error) {
	cols := map[string]int{
		colName:        -1,
		colPhone:       -1,
		colDescription: -1,
		colWebsite:     -1,
		colMapsLink:    -1,
	}
	for i, h := range header {
		key := strings.ToLower(strings.TrimSpace(h))
		if _, ok := cols[key]; ok {
			cols[key] = i
		}
	}
	var missing []string
	for _, required := range []string{colName, colPhone} {
		if cols[required] < 0 {
			missing = append(missing, required)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required columns: %s", strings.Join(missing, ", "))
	}
	return cols, nil
}

func cell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

// fingerprint hashes the file name plus every row identity. Two loads of the
// same content agree; any reorder, edit, or different file disagrees.
func fingerprint(path string, jobs []Job) string {
	h := fnv.New64a()
	_, _ = h.Write([]byte(filepath.Base(path)))
	for _, j := range jobs {
		_, _ = h.Write([]byte("\x00" + j.Business.Name + "\x01" + j.Business.Phone))
	}
	return fmt.Sprintf("%016x", h.Sum64())
}
