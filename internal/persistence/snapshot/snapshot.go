// Package snapshot stores save documents as zstd-compressed files: one JSON
// header line followed by the document.
package snapshot

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/klauspost/compress/zstd"

	"tappytrade.io/internal/persistence/save"
)

const fileVersion = 1

type Header struct {
	Version       int    `json:"version"`
	Player        string `json:"player"`
	SchemaVersion int    `json:"save_schema_version"`
	SavedAt       int64  `json:"saved_at"`
	Size          int    `json:"size"`
}

// WriteSnapshot writes header and body to path through a temp file so a
// crash never leaves a truncated save behind.
func WriteSnapshot(path string, h Header, body []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if err := writeTo(f, h, body); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

func writeTo(w io.Writer, h Header, body []byte) error {
	enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	bw := bufio.NewWriterSize(enc, 64*1024)

	h.Version = fileVersion
	h.Size = len(body)
	hb, _ := json.Marshal(h)
	if _, err := bw.Write(hb); err != nil {
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		return err
	}
	if _, err := bw.Write(body); err != nil {
		return err
	}
	if err := bw.Flush(); err != nil {
		return err
	}
	return enc.Close()
}

func ReadSnapshot(path string) (Header, []byte, error) {
	var h Header
	f, err := os.Open(path)
	if err != nil {
		return h, nil, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return h, nil, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 64*1024)
	line, err := br.ReadBytes('\n')
	if err != nil {
		return h, nil, fmt.Errorf("read header: %w", err)
	}
	if err := json.Unmarshal(line, &h); err != nil {
		return h, nil, fmt.Errorf("decode header: %w", err)
	}
	body, err := io.ReadAll(br)
	if err != nil {
		return h, nil, fmt.Errorf("read body: %w", err)
	}
	if h.Size != len(body) {
		return h, nil, fmt.Errorf("body size %d, header says %d", len(body), h.Size)
	}
	return h, body, nil
}

var playerRe = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

var ErrBadPlayer = errors.New("snapshot: invalid player id")

// ValidPlayer reports whether id is usable as a file name component.
func ValidPlayer(id string) bool { return playerRe.MatchString(id) }

// FileStore keeps one snapshot per player under dir.
type FileStore struct {
	dir string
	now func() time.Time
}

func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir, now: time.Now}
}

func (s *FileStore) Path(player string) string {
	return filepath.Join(s.dir, player+".save.zst")
}

func (s *FileStore) Load(_ context.Context, player string) ([]byte, error) {
	if !ValidPlayer(player) {
		return nil, ErrBadPlayer
	}
	_, body, err := ReadSnapshot(s.Path(player))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, save.ErrNotFound
	}
	return body, err
}

func (s *FileStore) Save(_ context.Context, player string, data []byte) error {
	if !ValidPlayer(player) {
		return ErrBadPlayer
	}
	var tag struct {
		SaveSchemaVersion int `json:"saveSchemaVersion"`
	}
	_ = json.Unmarshal(data, &tag)
	h := Header{Player: player, SchemaVersion: tag.SaveSchemaVersion, SavedAt: s.now().UnixMilli()}
	return WriteSnapshot(s.Path(player), h, data)
}
