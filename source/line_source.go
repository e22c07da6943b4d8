package source

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"
)

// LineSource reads one sample per line. Blank lines and lines starting with
// '#' are skipped; malformed lines are logged and skipped.
type LineSource struct {
	reader io.Reader
	logger *zap.Logger
}

func NewLineSource(reader io.Reader, logger *zap.Logger) *LineSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LineSource{reader: reader, logger: logger.Named("line-source")}
}

// Run returns nil at end of input.
func (s *LineSource) Run(ctx context.Context, out chan<- Sample) error {
	scanner := bufio.NewScanner(s.reader)
	lineNumber := 0
	for scanner.Scan() {
		lineNumber++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		sample, err := ParseLine(line)
		if err != nil {
			s.logger.Warn("Skipping malformed line", zap.Int("line", lineNumber), zap.Error(err))
			continue
		}
		if err := send(ctx, out, sample); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrReadFailed, err)
	}
	s.logger.Info("Reached end of input", zap.Int("lines", lineNumber))
	return nil
}
