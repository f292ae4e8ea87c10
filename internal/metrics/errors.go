package metrics

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"syscall"

	"github.com/torosent/walwatch/internal/sampler"
)

var errnoNames = map[syscall.Errno]string{
	syscall.ENOENT:  "File not found",
	syscall.EACCES:  "Permission denied",
	syscall.EPERM:   "Permission denied",
	syscall.ENOTDIR: "Not a directory",
	syscall.EMFILE:  "Too many open files",
	syscall.ENFILE:  "Too many open files",
	syscall.EIO:     "I/O error",
	syscall.ESTALE:  "Stale file handle",
}

// ErrorName buckets a sampling failure under a short label. Sentinel errors
// win over errno values, which win over the failing filesystem operation.
func ErrorName(err error) string {
	switch {
	case err == nil:
		return "Unknown error"
	case errors.Is(err, sampler.ErrTempDirUnavailable):
		return "Temp directory unavailable"
	case errors.Is(err, fs.ErrNotExist):
		return "File not found"
	case errors.Is(err, fs.ErrPermission):
		return "Permission denied"
	}

	var errno syscall.Errno
	if errors.As(err, &errno) {
		if name, ok := errnoNames[errno]; ok {
			return name
		}
		return capitalize(errno.Error())
	}

	var pathErr *fs.PathError
	if errors.As(err, &pathErr) && pathErr.Op != "" {
		return capitalize(pathErr.Op) + " failed"
	}
	return TypeLabel(fmt.Sprintf("%T", err))
}

// TypeLabel turns a Go type name such as "*sqlite3.Error" into "Error (sqlite3)".
func TypeLabel(typeName string) string {
	name := strings.TrimPrefix(strings.TrimSpace(typeName), "*")
	if name == "" {
		return "Unknown error"
	}
	if idx := strings.LastIndex(name, "/"); idx != -1 {
		name = name[idx+1:]
	}
	pkg, base, ok := strings.Cut(name, ".")
	if !ok {
		return capitalize(name)
	}
	switch pkg {
	case "errors", "fmt":
		return "Error"
	case "main":
		return capitalize(base)
	}
	return fmt.Sprintf("%s (%s)", capitalize(base), pkg)
}

func capitalize(s string) string {
	if s == "" {
		return ""
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
