package metrics

import (
	"fmt"
	"log"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"
)

type Logger interface {
	Log(info *MetricsInfo)
}

type StdoutLogger struct{}

func NewStdoutLogger() *StdoutLogger {
	return &StdoutLogger{}
}

func (l *StdoutLogger) Log(info *MetricsInfo) {
	infoStr, err := info.ToJSON()
	if err == nil {
		log.Print(infoStr)
	} else {
		log.Printf("StdoutLogger: error: %v", err)
	}
}

const defaultQueueSize = 2000
const defaultLogWriters = 2
const defaultMaxLogFileSize = 1024 * 1024 * 1024
const defaultMaxLogFiles = 10

// FileLogger appends one JSON document per request to size-rotated log
// files. Log writes never block request processing beyond the queue.
type FileLogger struct {
	MetricsQueue   chan *MetricsInfo
	LogDir         string
	MaxLogFileSize int64
	MaxLogFiles    int
	Verbose        bool
}

func NewFileLogger(logDir string, maxLogFileSize int64, maxLogFiles int, verbose bool) *FileLogger {
	if maxLogFileSize <= 0 {
		maxLogFileSize = defaultMaxLogFileSize
	}
	if maxLogFiles <= 0 {
		maxLogFiles = defaultMaxLogFiles
	}
	logger := &FileLogger{
		MetricsQueue:   make(chan *MetricsInfo, defaultQueueSize),
		LogDir:         logDir,
		MaxLogFileSize: maxLogFileSize,
		MaxLogFiles:    maxLogFiles,
		Verbose:        verbose,
	}

	for i := 0; i < defaultLogWriters; i++ {
		go logger.startLogWriter(i)
	}

	return logger
}

func (l *FileLogger) Log(info *MetricsInfo) {
	l.MetricsQueue <- info
}

func (l *FileLogger) startLogWriter(idx int) {
	f, err := l.openLogFile(idx)
	if err != nil {
		log.Printf("FileLogger%d: log open error: %v", idx, err)
	}

	for info := range l.MetricsQueue {
		infoStr, err := info.ToJSON()
		if err != nil {
			log.Printf("FileLogger%d: info.ToJSON() error: %v", idx, err)
			continue
		}

		f, err = l.tryRotateLogFile(f, idx)
		if err != nil {
			continue
		}

		if _, err := f.WriteString(infoStr); err != nil {
			log.Printf("FileLogger%d: write error: %v", idx, err)
			continue
		}
		f.Sync()
	}
}

func (l *FileLogger) openLogFile(idx int) (*os.File, error) {
	logFilePath := path.Join(l.LogDir, fmt.Sprintf("log%d", idx))
	return os.OpenFile(logFilePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
}

// tryRotateLogFile renames the current log file away once it exceeds
// MaxLogFileSize, reclaiming the oldest rotated file when MaxLogFiles
// is reached.
func (l *FileLogger) tryRotateLogFile(currFile *os.File, idx int) (*os.File, error) {
	info, err := currFile.Stat()
	if err != nil {
		log.Printf("FileLogger%d: log rotation error: %v", idx, err)
		return currFile, nil
	}

	if info.Size() < l.MaxLogFileSize {
		return currFile, nil
	}

	currLogFilePath := path.Join(l.LogDir, fmt.Sprintf("log%d", idx))
	var rotatedLogFilePath string
	for i := 0; i < l.MaxLogFiles; i++ {
		filePath := path.Join(l.LogDir, fmt.Sprintf("log%d.%d", idx, i))
		if _, err := os.Stat(filePath); os.IsNotExist(err) {
			rotatedLogFilePath = filePath
			break
		}
	}

	if len(rotatedLogFilePath) == 0 {
		rotatedLogFilePath, err = l.oldestRotatedFile(idx)
		if err != nil {
			log.Printf("FileLogger%d: log rotation error: %v", idx, err)
			return currFile, nil
		}
		if l.Verbose {
			log.Printf("FileLogger%d: maximum number of log files reached, overwriting %s", idx, rotatedLogFilePath)
		}
		if err := os.Remove(rotatedLogFilePath); err != nil {
			log.Printf("FileLogger%d: log rotation error: %v", idx, err)
			return currFile, nil
		}
	}

	currFile.Close()
	if err := os.Rename(currLogFilePath, rotatedLogFilePath); err != nil {
		log.Printf("FileLogger%d: log rotation error: %v", idx, err)
		return currFile, nil
	}

	if l.Verbose {
		log.Printf("FileLogger%d: log file rotated: %v", idx, rotatedLogFilePath)
	}

	f, err := l.openLogFile(idx)
	if err != nil {
		log.Printf("FileLogger%d: log rotation error: %v", idx, err)
	}
	return f, err
}

func (l *FileLogger) oldestRotatedFile(idx int) (string, error) {
	entries, err := os.ReadDir(l.LogDir)
	if err != nil {
		return "", err
	}

	var oldestName string
	oldestTime := time.Now()
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}

		fileName := filepath.Base(entry.Name())
		fn := strings.TrimSuffix(fileName, path.Ext(fileName))
		if fn != fmt.Sprintf("log%d", idx) {
			continue
		}

		fi, err := entry.Info()
		if err != nil {
			continue
		}
		if fi.ModTime().Before(oldestTime) {
			oldestName = entry.Name()
			oldestTime = fi.ModTime()
		}
	}

	if len(oldestName) == 0 {
		return path.Join(l.LogDir, fmt.Sprintf("log%d.%d", idx, 0)), nil
	}
	return path.Join(l.LogDir, oldestName), nil
}
