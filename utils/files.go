package utils

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

var ErrUnsafeName = errors.New("unsafe file name")

// ArtifactPath resolves a bare file name inside base. Names carrying any
// directory component are rejected so a worker cannot point outside base.
func ArtifactPath(base, name string) (string, error) {
	if name == "" || name == "." || name == ".." {
		return "", ErrUnsafeName
	}
	if strings.ContainsAny(name, `/\`) || strings.ContainsRune(name, 0) {
		return "", ErrUnsafeName
	}

	baseAbs, err := filepath.Abs(base)
	if err != nil {
		return "", err
	}
	joined := filepath.Join(baseAbs, name)
	if filepath.Dir(joined) != baseAbs {
		return "", ErrUnsafeName
	}
	return joined, nil
}

// RegularFileExists reports whether path exists and is not a directory.
func RegularFileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.Mode().IsRegular()
}

func EnsureDir(path string) error {
	return os.MkdirAll(path, 0o755)
}

func NewJobID() string {
	return uuid.NewString()
}
