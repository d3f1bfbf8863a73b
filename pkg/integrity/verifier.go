package integrity

import (
	"bufio"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"hash"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"

	"cleanupd/pkg/models"
)

// StreamingHasher calculates a sha256 digest and byte count as data flows through
type StreamingHasher struct {
	sha256Hash hash.Hash
	size       int64
}

// NewStreamingHasher creates a new streaming hasher
func NewStreamingHasher() *StreamingHasher {
	return &StreamingHasher{sha256Hash: sha256.New()}
}

// Write implements io.Writer
func (sh *StreamingHasher) Write(p []byte) (int, error) {
	n, err := sh.sha256Hash.Write(p)
	sh.size += int64(n)
	return n, err
}

// Sum returns the hex digest of everything written so far
func (sh *StreamingHasher) Sum() string {
	return hex.EncodeToString(sh.sha256Hash.Sum(nil))
}

// Size returns the number of bytes written so far
func (sh *StreamingHasher) Size() int64 {
	return sh.size
}

// VerificationResult contains backup verification results
type VerificationResult struct {
	BackupID      string `json:"backup_id"`
	ExpectedSum   string `json:"expected_sum"`
	CalculatedSum string `json:"calculated_sum"`
	ExpectedSize  int64  `json:"expected_size"`
	ActualSize    int64  `json:"actual_size"`
	ExpectedRows  int64  `json:"expected_rows"`
	RecoveredRows int64  `json:"recovered_rows"`
	ChecksumOK    bool   `json:"checksum_ok"`
	SizeOK        bool   `json:"size_ok"`
	RecoveryOK    bool   `json:"recovery_ok"`
	ErrorMessage  string `json:"error_message,omitempty"`
}

// Valid reports whether all three checks passed
func (r VerificationResult) Valid() bool {
	return r.ChecksumOK && r.SizeOK && r.RecoveryOK
}

// Verifier checks backup files written by the archive store
type Verifier struct {
	logger *zap.Logger
}

// NewVerifier creates a backup verifier
func NewVerifier(logger *zap.Logger) *Verifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Verifier{logger: logger.Named("integrity")}
}

// Verify runs the checksum, size and recovery checks against a backup.
// A returned error means the file could not be read at all; failed checks
// are reported through the result.
func (v *Verifier) Verify(ctx context.Context, handle models.BackupHandle) (VerificationResult, error) {
	result := VerificationResult{
		BackupID:     handle.ID,
		ExpectedSum:  handle.Checksum,
		ExpectedSize: handle.Size,
		ExpectedRows: handle.Rows,
	}

	info, err := os.Stat(handle.Path)
	if err != nil {
		return result, fmt.Errorf("failed to stat backup %s: %w", handle.Path, err)
	}
	result.ActualSize = info.Size()
	result.SizeOK = result.ActualSize == handle.Size

	sum, err := checksum(ctx, handle.Path)
	if err != nil {
		return result, err
	}
	result.CalculatedSum = sum
	result.ChecksumOK = strings.EqualFold(sum, handle.Checksum)

	rows, err := recoverRows(ctx, handle.Path)
	result.RecoveredRows = rows
	result.RecoveryOK = err == nil && rows == handle.Rows

	var problems []string
	if !result.SizeOK {
		problems = append(problems, fmt.Sprintf("size mismatch: expected=%d, actual=%d", handle.Size, result.ActualSize))
	}
	if !result.ChecksumOK {
		problems = append(problems, "checksum mismatch")
	}
	if err != nil {
		problems = append(problems, fmt.Sprintf("recovery failed: %v", err))
	} else if !result.RecoveryOK {
		problems = append(problems, fmt.Sprintf("row count mismatch: expected=%d, recovered=%d", handle.Rows, rows))
	}
	result.ErrorMessage = strings.Join(problems, "; ")

	v.logger.Info("backup verified",
		zap.String("backup_id", handle.ID),
		zap.Bool("valid", result.Valid()),
		zap.Bool("checksum_ok", result.ChecksumOK),
		zap.Bool("size_ok", result.SizeOK),
		zap.Bool("recovery_ok", result.RecoveryOK),
	)
	return result, nil
}

func checksum(ctx context.Context, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open backup: %w", err)
	}
	defer f.Close()

	hasher := NewStreamingHasher()
	if _, err := io.Copy(hasher, &contextReader{ctx: ctx, r: f}); err != nil {
		return "", fmt.Errorf("failed to hash backup: %w", err)
	}
	return hasher.Sum(), nil
}

// recoverRows simulates a restore by decoding every row in the backup
func recoverRows(ctx context.Context, path string) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	var r io.Reader = &contextReader{ctx: ctx, r: f}
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(r)
		if err != nil {
			return 0, fmt.Errorf("invalid gzip stream: %w", err)
		}
		defer gz.Close()
		r = gz
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)

	var rows int64
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var row map[string]any
		if err := json.Unmarshal(line, &row); err != nil {
			return rows, fmt.Errorf("row %d is not valid JSON: %w", rows+1, err)
		}
		rows++
	}
	if err := scanner.Err(); err != nil {
		return rows, err
	}
	return rows, nil
}

// contextReader stops reads once ctx is done
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (cr *contextReader) Read(p []byte) (int, error) {
	if err := cr.ctx.Err(); err != nil {
		return 0, err
	}
	return cr.r.Read(p)
}
