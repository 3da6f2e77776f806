// Package segment persists forward-map snapshots of an index as .drix
// files: a fixed header, one roaring-encoded key set per document, a JSON
// dictionary locating them, and a checksummed footer.
package segment

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Date-Recurring-Index/internal/indexer/index"
	"github.com/RoaringBitmap/roaring"
)

// MagicBytes identifies a valid .drix snapshot file ("DRIX").
const (
	MagicBytes    uint32 = 0x44524958
	FormatVersion uint32 = 1
	HeaderSize    int    = 64
	FooterSize    int    = 32
	Extension            = ".drix"
)

// SnapshotHeader is the 64-byte header written at the start of every
// snapshot.
type SnapshotHeader struct {
	Magic      uint32
	Version    uint32
	DocCount   uint32
	KeyCount   uint32
	CreatedAt  int64
	DictOffset int64
	DictSize   int64
	PostOffset int64
	PostSize   int64
}

// DictEntry locates one document's key set in the postings section.
type DictEntry struct {
	DocID      uint32 `json:"d"`
	PostOffset int64  `json:"o"`
	PostLen    int    `json:"l"`
	KeyCount   int    `json:"n"`
}

// Writer serialises forward-map entries into new snapshot files.
type Writer struct {
	dataDir string
}

func NewWriter(dataDir string) *Writer {
	return &Writer{dataDir: dataDir}
}

func (w *Writer) Dir() string {
	return w.dataDir
}

// Write atomically creates a snapshot of entries, which must be sorted by
// document id. It writes to a .tmp file first and renames on success.
func (w *Writer) Write(entries []index.Entry) (string, error) {
	name := fmt.Sprintf("snap_%d%s", time.Now().UnixNano(), Extension)
	finalPath := filepath.Join(w.dataDir, name)
	tmpPath := finalPath + ".tmp"

	if err := os.MkdirAll(w.dataDir, 0755); err != nil {
		return "", fmt.Errorf("creating snapshot directory: %w", err)
	}
	f, err := os.Create(tmpPath)
	if err != nil {
		return "", fmt.Errorf("creating temp snapshot file: %w", err)
	}
	defer f.Close()
	defer os.Remove(tmpPath)

	headerBytes := make([]byte, HeaderSize)
	if _, err := f.Write(headerBytes); err != nil {
		return "", fmt.Errorf("writing header: %w", err)
	}

	crc := crc32.NewIEEE()
	postingsStart := int64(HeaderSize)
	offset := int64(0)
	dict := make([]DictEntry, 0, len(entries))
	all := make([]*roaring.Bitmap, 0, len(entries))
	for _, entry := range entries {
		data, err := entry.Keys.MarshalBinary()
		if err != nil {
			return "", fmt.Errorf("encoding keys for document %d: %w", entry.DocID, err)
		}
		if _, err := f.Write(data); err != nil {
			return "", fmt.Errorf("writing keys for document %d: %w", entry.DocID, err)
		}
		crc.Write(data)
		dict = append(dict, DictEntry{
			DocID:      entry.DocID,
			PostOffset: offset,
			PostLen:    len(data),
			KeyCount:   entry.Keys.Len(),
		})
		all = append(all, entry.Keys.Bitmap())
		offset += int64(len(data))
	}
	postingsSize := offset
	dictStart := postingsStart + postingsSize

	dictData, err := json.Marshal(dict)
	if err != nil {
		return "", fmt.Errorf("marshaling dictionary: %w", err)
	}
	if _, err := f.Write(dictData); err != nil {
		return "", fmt.Errorf("writing dictionary: %w", err)
	}
	crc.Write(dictData)
	dictSize := int64(len(dictData))

	keyCount := uint32(0)
	if len(all) > 0 {
		keyCount = uint32(roaring.FastOr(all...).GetCardinality())
	}

	footer := make([]byte, FooterSize)
	binary.LittleEndian.PutUint32(footer[0:4], crc.Sum32())
	binary.LittleEndian.PutUint32(footer[4:8], uint32(len(entries)))
	binary.LittleEndian.PutUint64(footer[8:16], uint64(dictStart))
	binary.LittleEndian.PutUint64(footer[16:24], uint64(dictSize))
	binary.LittleEndian.PutUint64(footer[24:32], uint64(postingsSize))
	if _, err := f.Write(footer); err != nil {
		return "", fmt.Errorf("writing footer: %w", err)
	}

	binary.LittleEndian.PutUint32(headerBytes[0:4], MagicBytes)
	binary.LittleEndian.PutUint32(headerBytes[4:8], FormatVersion)
	binary.LittleEndian.PutUint32(headerBytes[8:12], uint32(len(entries)))
	binary.LittleEndian.PutUint32(headerBytes[12:16], keyCount)
	binary.LittleEndian.PutUint64(headerBytes[16:24], uint64(time.Now().Unix()))
	binary.LittleEndian.PutUint64(headerBytes[24:32], uint64(dictStart))
	binary.LittleEndian.PutUint64(headerBytes[32:40], uint64(dictSize))
	binary.LittleEndian.PutUint64(headerBytes[40:48], uint64(postingsStart))
	binary.LittleEndian.PutUint64(headerBytes[48:56], uint64(postingsSize))
	if _, err := f.WriteAt(headerBytes, 0); err != nil {
		return "", fmt.Errorf("updating header: %w", err)
	}
	if err := f.Sync(); err != nil {
		return "", fmt.Errorf("syncing snapshot file: %w", err)
	}
	f.Close()
	if err := os.Rename(tmpPath, finalPath); err != nil {
		return "", fmt.Errorf("renaming snapshot file: %w", err)
	}
	return name, nil
}

// List returns the snapshot file names in dir, oldest first. A missing
// directory has no snapshots.
func List(dir string) ([]string, error) {
	dirEntries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("listing snapshots: %w", err)
	}
	var names []string
	for _, e := range dirEntries {
		if !e.IsDir() && strings.HasPrefix(e.Name(), "snap_") && strings.HasSuffix(e.Name(), Extension) {
			names = append(names, e.Name())
		}
	}
	sort.Slice(names, func(i, j int) bool {
		return snapshotSeq(names[i]) < snapshotSeq(names[j])
	})
	return names, nil
}

// Latest returns the newest snapshot name, or "" if there is none.
func Latest(dir string) (string, error) {
	names, err := List(dir)
	if err != nil || len(names) == 0 {
		return "", err
	}
	return names[len(names)-1], nil
}

// Prune deletes all but the newest keep snapshots.
func Prune(dir string, keep int) (int, error) {
	names, err := List(dir)
	if err != nil {
		return 0, err
	}
	if keep < 1 {
		keep = 1
	}
	removed := 0
	for i := 0; i < len(names)-keep; i++ {
		if err := os.Remove(filepath.Join(dir, names[i])); err != nil && !os.IsNotExist(err) {
			return removed, fmt.Errorf("removing snapshot %s: %w", names[i], err)
		}
		removed++
	}
	return removed, nil
}

func snapshotSeq(name string) int64 {
	var seq int64
	fmt.Sscanf(strings.TrimSuffix(strings.TrimPrefix(name, "snap_"), Extension), "%d", &seq)
	return seq
}
