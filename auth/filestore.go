package auth

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// FileStore looks credentials up in a flat file of "user:password"
// records, one per line. The file is reopened on every lookup so edits
// take effect without a restart.
type FileStore struct {
	Path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{Path: path}
}

func (f *FileStore) Contains(user, password string) (bool, error) {
	file, err := os.Open(f.Path)
	if err != nil {
		return false, fmt.Errorf("auth: open credentials: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSuffix(scanner.Text(), "\r")
		name, secret, ok := strings.Cut(line, ":")
		if !ok || name != user {
			continue
		}
		if matchSecret(secret, password) {
			return true, nil
		}
	}
	if err := scanner.Err(); err != nil {
		return false, fmt.Errorf("auth: read credentials: %w", err)
	}
	return false, nil
}
