package journal

import (
	"bufio"
	"encoding/json"
	"log"
	"os"
	"path/filepath"
	"sync"

	"hydra-waf/internal/models"
)

// Journal is the append-only newline-delimited JSON record of every inspected
// request. Writes serialize through a mutex; reads open a fresh handle.
type Journal struct {
	mu   sync.Mutex
	path string
	file *os.File

	subMu sync.Mutex
	subs  map[chan models.Record]struct{}
}

func Open(path string) (*Journal, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	return &Journal{
		path: path,
		file: f,
		subs: make(map[chan models.Record]struct{}),
	}, nil
}

// Append writes one record as a single line. Verdicts other than "safe" are
// fsynced before returning so a crash cannot lose attack evidence.
func (j *Journal) Append(rec models.Record) error {
	line, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	line = append(line, '\n')

	j.mu.Lock()
	_, err = j.file.Write(line)
	if err == nil && rec.Verdict != models.VerdictSafe {
		err = j.file.Sync()
	}
	j.mu.Unlock()

	if err == nil {
		j.broadcast(rec)
	}
	return err
}

// LoadAll parses the journal line by line. Malformed lines are skipped.
func (j *Journal) LoadAll() ([]models.Record, error) {
	f, err := os.Open(j.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var records []models.Record
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec models.Record
		if err := json.Unmarshal(line, &rec); err != nil {
			continue
		}
		records = append(records, rec)
	}
	return records, scanner.Err()
}

func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.file.Close()
}

// --- LIVE STREAM ---

// Subscribe returns a channel receiving every record appended from now on.
// Slow consumers drop records rather than stalling the hot path.
func (j *Journal) Subscribe() chan models.Record {
	ch := make(chan models.Record, 100)
	j.subMu.Lock()
	j.subs[ch] = struct{}{}
	j.subMu.Unlock()
	return ch
}

func (j *Journal) Unsubscribe(ch chan models.Record) {
	j.subMu.Lock()
	delete(j.subs, ch)
	j.subMu.Unlock()
}

func (j *Journal) broadcast(rec models.Record) {
	j.subMu.Lock()
	defer j.subMu.Unlock()
	for ch := range j.subs {
		select {
		case ch <- rec:
		default:
			log.Printf("[WARN] journal: dropping record for slow stream subscriber")
		}
	}
}
