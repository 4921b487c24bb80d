package service

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bytedance/sonic"

	"github.com/xentristech/tradingpro-sub001/internal/models"
)

// JSONLStore пишет журнал в файлы journal-YYYYMMDD.jsonl, строка на событие.
// Файл ротируется по дате, строки никогда не перезаписываются.
type JSONLStore struct {
	mu   sync.Mutex
	dir  string
	day  string
	file *os.File
	w    *bufio.Writer
}

func NewJSONLStore(dir string) (*JSONLStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("journal mkdir %s: %w", dir, err)
	}
	return &JSONLStore{dir: dir}, nil
}

func (s *JSONLStore) Append(ctx context.Context, e models.JournalEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	day := e.At.UTC().Format("20060102")
	if e.At.IsZero() {
		day = time.Now().UTC().Format("20060102")
	}
	if err := s.rotateLocked(day); err != nil {
		return err
	}

	line, err := sonic.Marshal(e)
	if err != nil {
		return fmt.Errorf("journal marshal: %w", err)
	}
	if _, err := s.w.Write(line); err != nil {
		return fmt.Errorf("journal write: %w", err)
	}
	if err := s.w.WriteByte('\n'); err != nil {
		return fmt.Errorf("journal write: %w", err)
	}
	// каждое событие сразу на диск: после падения журнал должен быть полон
	if err := s.w.Flush(); err != nil {
		return fmt.Errorf("journal flush: %w", err)
	}
	return nil
}

func (s *JSONLStore) rotateLocked(day string) error {
	if s.file != nil && s.day == day {
		return nil
	}
	if s.file != nil {
		_ = s.w.Flush()
		_ = s.file.Close()
	}

	name := filepath.Join(s.dir, "journal-"+day+".jsonl")
	f, err := os.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("journal open %s: %w", name, err)
	}
	s.file = f
	s.w = bufio.NewWriter(f)
	s.day = day
	return nil
}

func (s *JSONLStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return nil
	}
	if err := s.w.Flush(); err != nil {
		return err
	}
	err := s.file.Close()
	s.file = nil
	return err
}

// ReadAll читает все сегменты каталога в хронологическом порядке.
// Используется в replay, на торговом пути не вызывается.
func ReadAll(dir string) ([]models.JournalEntry, error) {
	names, err := filepath.Glob(filepath.Join(dir, "journal-*.jsonl"))
	if err != nil {
		return nil, fmt.Errorf("journal glob: %w", err)
	}
	sort.Strings(names)

	var out []models.JournalEntry
	for _, name := range names {
		f, err := os.Open(name)
		if err != nil {
			return nil, fmt.Errorf("journal open %s: %w", name, err)
		}
		sc := bufio.NewScanner(f)
		sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
		lineNo := 0
		for sc.Scan() {
			lineNo++
			raw := strings.TrimSpace(sc.Text())
			if raw == "" {
				continue
			}
			var e models.JournalEntry
			if err := sonic.UnmarshalString(raw, &e); err != nil {
				_ = f.Close()
				return nil, fmt.Errorf("journal %s:%d decode: %w", name, lineNo, err)
			}
			out = append(out, e)
		}
		if err := sc.Err(); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("journal %s scan: %w", name, err)
		}
		_ = f.Close()
	}
	return out, nil
}
