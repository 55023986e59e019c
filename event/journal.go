package event

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"
)

type LogData struct {
	Time    int64  `json:"time"`
	Service string `json:"service"`
	Action  string `json:"action"`
	Data    string `json:"data"`
}

// Journal appends events to a JSON lines file.
type Journal struct {
	mu      sync.Mutex
	file    *os.File
	service string
}

func OpenJournal(path, service string) (*Journal, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, err
	}
	file, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY|os.O_CREATE, 0600)
	if err != nil {
		return nil, err
	}
	return &Journal{file: file, service: service}, nil
}

func (j *Journal) Write(action string, body []byte) error {
	line, err := json.Marshal(LogData{
		Time:    time.Now().UnixMicro(),
		Service: j.service,
		Action:  action,
		Data:    string(body),
	})
	if err != nil {
		return err
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	_, err = j.file.Write(append(line, '\n'))
	return err
}

func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.file.Close()
}

// ReadJournal calls fn for every entry of the file at path, stopping at the
// first error.
func ReadJournal(path string, fn func(LogData) error) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		entry := LogData{}
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			return err
		}
		if err := fn(entry); err != nil {
			return err
		}
	}
	return scanner.Err()
}
