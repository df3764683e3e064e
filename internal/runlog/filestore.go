package runlog

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// FileStore — дефолтный журнал для CLI: по одному JSON-файлу на запись
// в заданном каталоге. Имя файла начинается с сортируемого таймстемпа,
// поэтому "новые первыми" — это обратная лексикографическая сортировка имён.
type FileStore struct {
	dir string
}

// Формат таймстемпа в имени файла: сортируемый, без двоеточий (безопасен для FS).
const fileTSFormat = "20060102T150405.000000000Z"

func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("runlog: create log dir %s: %w", dir, err)
	}
	return &FileStore{dir: dir}, nil
}

func (f *FileStore) Append(_ context.Context, rec Record) error {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("runlog: marshal record: %w", err)
	}

	name := fmt.Sprintf("%s_%s_%s.json", rec.Timestamp.UTC().Format(fileTSFormat), rec.Kind, rec.ID)
	path := filepath.Join(f.dir, name)

	// O_EXCL: append-only журнал, перезапись существующей записи — ошибка
	fh, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("runlog: create record file: %w", err)
	}
	defer fh.Close()

	if _, err := fh.Write(data); err != nil {
		return fmt.Errorf("runlog: write record file: %w", err)
	}
	return nil
}

func (f *FileStore) Recent(_ context.Context, accountID, kind string, limit int) ([]Record, error) {
	entries, err := os.ReadDir(f.dir)
	if err != nil {
		return nil, fmt.Errorf("runlog: read log dir %s: %w", f.dir, err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		// Фильтр по типу прямо из имени файла, чтобы не читать лишнее
		if kind != "" && !strings.Contains(e.Name(), "_"+kind+"_") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Sort(sort.Reverse(sort.StringSlice(names)))

	out := make([]Record, 0, limit)
	for _, name := range names {
		if len(out) >= limit {
			break
		}
		data, err := os.ReadFile(filepath.Join(f.dir, name))
		if err != nil {
			return nil, fmt.Errorf("runlog: read record %s: %w", name, err)
		}
		var rec Record
		if err := json.Unmarshal(data, &rec); err != nil {
			// Битый файл в журнале не должен ронять оценку — пропускаем
			continue
		}
		if accountID != "" && rec.AccountID != accountID {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

// Dir — путь к каталогу журнала (для сообщений оператору).
func (f *FileStore) Dir() string { return f.dir }

// ensure интерфейс
var _ Store = (*FileStore)(nil)

// parseFileTS — обратная операция к имени файла (используется в тестах каталога).
func parseFileTS(name string) (time.Time, bool) {
	idx := strings.Index(name, "_")
	if idx <= 0 {
		return time.Time{}, false
	}
	ts, err := time.Parse(fileTSFormat, name[:idx])
	if err != nil {
		return time.Time{}, false
	}
	return ts, true
}
