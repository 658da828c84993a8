package replay

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"swapstream/internal/model"
)

const maxJournalLine = 1 << 20

// JournalReader streams transaction records from a JSONL journal file.
type JournalReader struct {
	file    *os.File
	scanner *bufio.Scanner
	line    int
}

func OpenJournal(path string) (*JournalReader, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), maxJournalLine)
	return &JournalReader{file: file, scanner: scanner}, nil
}

// Next returns the next transaction record, or io.EOF after the last line.
// Blank lines are skipped.
func (r *JournalReader) Next() (model.TxRecord, error) {
	for r.scanner.Scan() {
		r.line++
		raw := r.scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		var tx model.TxRecord
		if err := json.Unmarshal(raw, &tx); err != nil {
			return model.TxRecord{}, fmt.Errorf("journal line %d: %w", r.line, err)
		}
		return tx, nil
	}
	if err := r.scanner.Err(); err != nil {
		return model.TxRecord{}, fmt.Errorf("read journal: %w", err)
	}
	return model.TxRecord{}, io.EOF
}

func (r *JournalReader) Close() error {
	return r.file.Close()
}
