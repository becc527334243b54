package logging

import (
	"io"
	"log"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

// #region setup
// Setup points the standard logger at stderr, or at a rotating file when
// logFile is set. The returned closer releases the file.
func Setup(logFile string) io.Closer {
	if logFile == "" {
		log.SetOutput(os.Stderr)
		return nopCloser{}
	}
	w := &lumberjack.Logger{
		Filename:   logFile,
		MaxSize:    50, // MB
		MaxBackups: 5,
		MaxAge:     28, // days
		Compress:   true,
	}
	log.SetOutput(io.MultiWriter(os.Stderr, w))
	log.Printf("[LOG] writing to %s", logFile)
	return w
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
// #endregion setup
