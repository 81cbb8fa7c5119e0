package scripting

import (
	"bytes"
	"math"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/acruikshank/scriptpool/pkg/metrics"
)

// ScriptFileExtension selects which directory entries participate in
// directory execution.
const ScriptFileExtension = ".js"

// maxScriptFileLength sits just below the unsigned 32-bit maximum;
// files at or above it are rejected without a read attempt.
const maxScriptFileLength = math.MaxUint32 - 1

func scriptFileTooLarge(size int64) bool {
	return size >= maxScriptFileLength
}

// ExecFile executes the script file at path. A directory is recursed
// into, executing every entry with the script file extension and
// stopping at the first failure; a directory with no matching entries
// is a failure. Failures are reported as false with a log line, never
// as a panic across the pooling boundary.
func (c *CoreScope) ExecFile(path string, opts ExecOptions) bool {
	info, err := os.Stat(path)
	if err != nil {
		c.log.Warn("script file doesn't exist", zap.String("path", path))
		return false
	}

	if info.IsDir() {
		entries, err := os.ReadDir(path)
		if err != nil {
			c.log.Warn("unable to read script directory",
				zap.String("path", path), zap.Error(err))
			return false
		}

		matched := false
		for _, entry := range entries {
			if !strings.HasSuffix(entry.Name(), ScriptFileExtension) {
				continue
			}
			matched = true
			if !c.ExecFile(filepath.Join(path, entry.Name()), opts) {
				return false
			}
		}

		if !matched {
			c.log.Warn("no script files in directory",
				zap.String("path", path),
				zap.String("extension", ScriptFileExtension))
			return false
		}
		return true
	}

	if scriptFileTooLarge(info.Size()) {
		c.log.Warn("attempted to execute script file larger than 2GB",
			zap.String("path", path), zap.Int64("size", info.Size()))
		metrics.ScriptFiles.WithLabelValues("failed").Inc()
		return false
	}

	data, err := os.ReadFile(path) //nolint:gosec // G304: path supplied by the caller
	if err != nil {
		c.log.Warn("unable to read script file",
			zap.String("path", path), zap.Error(err))
		metrics.ScriptFiles.WithLabelValues("failed").Inc()
		return false
	}

	if len(data) >= 2 && data[0] == '#' && data[1] == '!' {
		nl := bytes.IndexByte(data, '\n')
		if nl < 0 {
			// a file of just a shebang is the same as an empty file
			metrics.ScriptFiles.WithLabelValues("ok").Inc()
			return true
		}
		data = data[nl+1:]
	}

	ok := c.driver.Exec(string(data), path, opts)
	if ok {
		metrics.ScriptFiles.WithLabelValues("ok").Inc()
	} else {
		metrics.ScriptFiles.WithLabelValues("failed").Inc()
	}
	return ok
}
