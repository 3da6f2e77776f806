package segment

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Date-Recurring-Index/internal/indexer/index"
	apperrors "github.com/Adithya-Monish-Kumar-K/Date-Recurring-Index/pkg/errors"
)

type Reader struct {
	file     *os.File
	filePath string
	header   SnapshotHeader
	dict     []DictEntry
	postBase int64
}

// OpenReader opens a snapshot and verifies its header and checksum.
func OpenReader(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening snapshot file: %w", err)
	}
	r, err := open(f, path)
	if err != nil {
		f.Close()
		return nil, err
	}
	return r, nil
}

func open(f *os.File, path string) (*Reader, error) {
	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat snapshot file: %w", err)
	}
	if info.Size() < int64(HeaderSize+FooterSize) {
		return nil, fmt.Errorf("%w: %s is truncated", apperrors.ErrSnapshotCorrupt, filepath.Base(path))
	}
	headerBytes := make([]byte, HeaderSize)
	if _, err := f.ReadAt(headerBytes, 0); err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}
	magic := binary.LittleEndian.Uint32(headerBytes[0:4])
	if magic != MagicBytes {
		return nil, fmt.Errorf("%w: bad magic bytes %x", apperrors.ErrSnapshotCorrupt, magic)
	}
	header := SnapshotHeader{
		Magic:      magic,
		Version:    binary.LittleEndian.Uint32(headerBytes[4:8]),
		DocCount:   binary.LittleEndian.Uint32(headerBytes[8:12]),
		KeyCount:   binary.LittleEndian.Uint32(headerBytes[12:16]),
		CreatedAt:  int64(binary.LittleEndian.Uint64(headerBytes[16:24])),
		DictOffset: int64(binary.LittleEndian.Uint64(headerBytes[24:32])),
		DictSize:   int64(binary.LittleEndian.Uint64(headerBytes[32:40])),
		PostOffset: int64(binary.LittleEndian.Uint64(headerBytes[40:48])),
		PostSize:   int64(binary.LittleEndian.Uint64(headerBytes[48:56])),
	}
	if header.Version != FormatVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", apperrors.ErrSnapshotCorrupt, header.Version)
	}
	if header.PostOffset+header.PostSize != header.DictOffset ||
		header.DictOffset+header.DictSize+int64(FooterSize) != info.Size() {
		return nil, fmt.Errorf("%w: section offsets do not match file size", apperrors.ErrSnapshotCorrupt)
	}

	body := make([]byte, header.PostSize+header.DictSize)
	if _, err := f.ReadAt(body, header.PostOffset); err != nil {
		return nil, fmt.Errorf("reading snapshot body: %w", err)
	}
	footer := make([]byte, FooterSize)
	if _, err := f.ReadAt(footer, header.DictOffset+header.DictSize); err != nil {
		return nil, fmt.Errorf("reading footer: %w", err)
	}
	if want, got := binary.LittleEndian.Uint32(footer[0:4]), crc32.ChecksumIEEE(body); want != got {
		return nil, fmt.Errorf("%w: checksum mismatch", apperrors.ErrSnapshotCorrupt)
	}

	var dict []DictEntry
	if err := json.Unmarshal(body[header.PostSize:], &dict); err != nil {
		return nil, fmt.Errorf("%w: parsing dictionary: %v", apperrors.ErrSnapshotCorrupt, err)
	}
	return &Reader{
		file:     f,
		filePath: path,
		header:   header,
		dict:     dict,
		postBase: header.PostOffset,
	}, nil
}

// Lookup reads the keys of one document.
func (r *Reader) Lookup(docID uint32) (index.PostingSet, bool, error) {
	idx := sort.Search(len(r.dict), func(i int) bool {
		return r.dict[i].DocID >= docID
	})
	if idx >= len(r.dict) || r.dict[idx].DocID != docID {
		return index.PostingSet{}, false, nil
	}
	keys, err := r.read(r.dict[idx])
	if err != nil {
		return index.PostingSet{}, false, err
	}
	return keys, true, nil
}

// ForEach calls fn for every document in id order.
func (r *Reader) ForEach(fn func(index.Entry) error) error {
	for _, entry := range r.dict {
		keys, err := r.read(entry)
		if err != nil {
			return err
		}
		if err := fn(index.Entry{DocID: entry.DocID, Keys: keys}); err != nil {
			return err
		}
	}
	return nil
}

// Entries reads the whole forward map.
func (r *Reader) Entries() ([]index.Entry, error) {
	entries := make([]index.Entry, 0, len(r.dict))
	err := r.ForEach(func(e index.Entry) error {
		entries = append(entries, e)
		return nil
	})
	return entries, err
}

func (r *Reader) read(entry DictEntry) (index.PostingSet, error) {
	data := make([]byte, entry.PostLen)
	if _, err := r.file.ReadAt(data, r.postBase+entry.PostOffset); err != nil {
		return index.PostingSet{}, fmt.Errorf("reading keys for document %d: %w", entry.DocID, err)
	}
	var keys index.PostingSet
	if err := keys.UnmarshalBinary(data); err != nil {
		return index.PostingSet{}, fmt.Errorf("%w: keys for document %d: %v", apperrors.ErrSnapshotCorrupt, entry.DocID, err)
	}
	return keys, nil
}

func (r *Reader) Name() string {
	return filepath.Base(r.filePath)
}

func (r *Reader) DocCount() uint32 {
	return r.header.DocCount
}

func (r *Reader) KeyCount() uint32 {
	return r.header.KeyCount
}

func (r *Reader) CreatedAt() time.Time {
	return time.Unix(r.header.CreatedAt, 0).UTC()
}

func (r *Reader) Close() error {
	return r.file.Close()
}
